package provider

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleConfigJSON = `[
  {
    "name": "weather",
    "wallet_address": "0x2222222222222222222222222222222222222222",
    "price_units": "50000",
    "method": "GET",
    "request_structure": "GetWithQuery",
    "base_url_template": "https://api.weather.example/v1/current",
    "query_param_keys": ["city"]
  },
  {
    "name": "free-ping",
    "wallet_address": "0x4444444444444444444444444444444444444444",
    "price_units": "0",
    "method": "GET",
    "request_structure": "GetWithPath",
    "base_url_template": "https://ping.example/{id}",
    "path_param_keys": ["id"]
  }
]`

func writeSampleConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "providers.json")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfigJSON), 0o644))
	return path
}

func TestLoadEndpointConfigs(t *testing.T) {
	path := writeSampleConfig(t)
	entries, err := LoadEndpointConfigs(path)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "weather", entries[0].Name)
}

func TestLoadEndpointConfigsMissingFile(t *testing.T) {
	_, err := LoadEndpointConfigs(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}

func TestBuildProviderSetFromConfig(t *testing.T) {
	path := writeSampleConfig(t)
	entries, err := LoadEndpointConfigs(path)
	require.NoError(t, err)

	providers, descriptors, err := BuildProviderSet(entries)
	require.NoError(t, err)
	require.Len(t, descriptors, 2)

	weather, err := providers.Lookup("weather")
	require.NoError(t, err)
	require.Equal(t, int64(50000), weather.PriceUnits.Int64())

	free, err := providers.Lookup("free-ping")
	require.NoError(t, err)
	require.Equal(t, int64(0), free.PriceUnits.Int64())

	_, err = providers.Lookup("does-not-exist")
	require.ErrorIs(t, err, ErrUnknownProvider)
}

func TestBuildProviderSetRejectsInvalidPrice(t *testing.T) {
	_, _, err := BuildProviderSet([]EndpointConfig{{
		Name:             "bad-price",
		WalletAddress:    "0x2222222222222222222222222222222222222222",
		PriceUnits:       "not-a-number",
		Method:           "GET",
		RequestStructure: "GetWithQuery",
		BaseURLTemplate:  "https://example.com",
	}})
	require.Error(t, err)
}

func TestBuildProviderSetRejectsInvalidDescriptor(t *testing.T) {
	_, _, err := BuildProviderSet([]EndpointConfig{{
		Name:             "",
		WalletAddress:    "0x2222222222222222222222222222222222222222",
		PriceUnits:       "0",
		Method:           "GET",
		RequestStructure: "GetWithQuery",
		BaseURLTemplate:  "https://example.com",
	}})
	require.Error(t, err)
}
