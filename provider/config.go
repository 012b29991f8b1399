package provider

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"

	"github.com/ethereum/go-ethereum/common"

	"github.com/hypergrid-io/hypergrid/provider/executor"
)

// EndpointConfig is one provider's on-disk registration: the fields the
// Verifier needs (name, wallet, price) plus the Executor's endpoint
// template (spec §4.10). A provider process typically serves a handful of
// endpoints, so this is a flat JSON array rather than a database table —
// the teacher has no analogous "one file per deployment" config, so this
// follows the general env+file-config shape the rest of the pack uses
// (internal/config's own getEnv/godotenv pattern) rather than inventing a
// bespoke format.
type EndpointConfig struct {
	Name                 string   `json:"name"`
	WalletAddress        string   `json:"wallet_address"`
	PriceUnits           string   `json:"price_units"`
	Method               string   `json:"method"`
	RequestStructure     string   `json:"request_structure"`
	BaseURLTemplate      string   `json:"base_url_template"`
	PathParamKeys        []string `json:"path_param_keys,omitempty"`
	QueryParamKeys       []string `json:"query_param_keys,omitempty"`
	HeaderKeys           []string `json:"header_keys,omitempty"`
	BodyParamKeys        []string `json:"body_param_keys,omitempty"`
	APIKey               string   `json:"api_key,omitempty"`
	APIKeyQueryParamName string   `json:"api_key_query_param_name,omitempty"`
	APIKeyHeaderName     string   `json:"api_key_header_name,omitempty"`
}

// LoadEndpointConfigs reads the provider registration file at path.
func LoadEndpointConfigs(path string) ([]EndpointConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read provider config %s: %w", path, err)
	}
	var entries []EndpointConfig
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("parse provider config %s: %w", path, err)
	}
	return entries, nil
}

// Descriptor converts c into the Provider Executor's rendering template.
func (c EndpointConfig) Descriptor() executor.EndpointDescriptor {
	return executor.EndpointDescriptor{
		Name:                 c.Name,
		Method:               c.Method,
		RequestStructure:     executor.RequestStructure(c.RequestStructure),
		BaseURLTemplate:      c.BaseURLTemplate,
		PathParamKeys:        c.PathParamKeys,
		QueryParamKeys:       c.QueryParamKeys,
		HeaderKeys:           c.HeaderKeys,
		BodyParamKeys:        c.BodyParamKeys,
		APIKey:               c.APIKey,
		APIKeyQueryParamName: c.APIKeyQueryParamName,
		APIKeyHeaderName:     c.APIKeyHeaderName,
	}
}

// Validate checks c's rendered descriptor against the Executor's
// gojsonschema meta-schema (executor.ValidateDescriptor), catching a
// malformed registration at startup rather than at first call.
func (c EndpointConfig) Validate() error {
	raw, err := json.Marshal(map[string]interface{}{
		"name":              c.Name,
		"method":            c.Method,
		"request_structure": c.RequestStructure,
		"base_url_template": c.BaseURLTemplate,
	})
	if err != nil {
		return fmt.Errorf("encode endpoint descriptor for validation: %w", err)
	}
	return executor.ValidateDescriptor(raw)
}

// BuildProviderSet splits entries into the Verifier's
// RegisteredProvider set and the Executor's name->descriptor map, the two
// shapes C9 and C10 each need.
func BuildProviderSet(entries []EndpointConfig) (*ProviderSet, map[string]executor.EndpointDescriptor, error) {
	var registered []RegisteredProvider
	descriptors := map[string]executor.EndpointDescriptor{}
	for _, e := range entries {
		if err := e.Validate(); err != nil {
			return nil, nil, fmt.Errorf("provider %q: %w", e.Name, err)
		}
		priceUnits, ok := new(big.Int).SetString(e.PriceUnits, 10)
		if !ok {
			return nil, nil, fmt.Errorf("provider %q: invalid price_units %q", e.Name, e.PriceUnits)
		}
		registered = append(registered, RegisteredProvider{
			Name:          e.Name,
			WalletAddress: common.HexToAddress(e.WalletAddress),
			PriceUnits:    priceUnits,
		})
		descriptors[e.Name] = e.Descriptor()
	}
	return NewProviderSet(registered...), descriptors, nil
}
