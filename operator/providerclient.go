package operator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// ProviderCallResult mirrors provider/executor.Response's wire shape. It is
// redeclared here (rather than imported) because this is the inter-process
// control message (§6 "Control messages (operator <-> provider)"), not a
// shared in-process type — the operator and provider are separate services.
type ProviderCallResult struct {
	Status int         `json:"status"`
	Body   interface{} `json:"body"`
}

// ProviderClient is the Call Dispatcher's seam onto the provider process's
// control surface (§6): HealthPing and CallProvider.
type ProviderClient interface {
	HealthPing(ctx context.Context, providerName, baseURL string) error
	CallProvider(ctx context.Context, providerName, baseURL string, arguments map[string]string, paymentTxHash string) (ProviderCallResult, error)
}

// HTTPProviderClient implements ProviderClient over plain HTTP, grounded on
// the same net/http call shape as the Provider Executor (C10) itself —
// there is no message-bus in this stack, so the provider's registered
// `site` URL (Registry Store, C2) doubles as its control endpoint.
type HTTPProviderClient struct {
	client *http.Client
}

func NewHTTPProviderClient(healthTimeout time.Duration) *HTTPProviderClient {
	return &HTTPProviderClient{client: &http.Client{Timeout: healthTimeout}}
}

type healthPingResponse struct {
	Status string `json:"status"`
}

// HealthPing implements spec §6's `HealthPing(provider_name) -> "Ack"`,
// bounded by the caller's context deadline (7s, §4.8 step 3).
func (c *HTTPProviderClient) HealthPing(ctx context.Context, providerName, baseURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/control/health", nil)
	if err != nil {
		return fmt.Errorf("build health ping request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("health ping %s: %w", providerName, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health ping %s: status %d", providerName, resp.StatusCode)
	}
	var body healthPingResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("decode health ping %s: %w", providerName, err)
	}
	if body.Status != "Ack" {
		return fmt.Errorf("health ping %s: unexpected status %q", providerName, body.Status)
	}
	return nil
}

// Ping implements payment.HealthPinger, letting one HTTPProviderClient
// instance serve both the dispatcher's preflight ping and the Payment
// Engine's own health check ahead of settlement (spec §4.6 preflight step
// vi). providerSite is the provider's control-surface base URL, the same
// value passed as baseURL to HealthPing.
func (c *HTTPProviderClient) Ping(ctx context.Context, providerSite string) error {
	return c.HealthPing(ctx, providerSite, providerSite)
}

type callProviderRequest struct {
	ProviderName  string            `json:"provider_name"`
	Arguments     map[string]string `json:"arguments"`
	PaymentTxHash string            `json:"payment_tx_hash,omitempty"`
}

// CallProvider implements spec §6's `CallProvider{provider_name, arguments,
// payment_tx_hash?} -> JSON string of provider response`, bounded by the
// caller's context deadline (60s, §4.8 step 6).
func (c *HTTPProviderClient) CallProvider(ctx context.Context, providerName, baseURL string, arguments map[string]string, paymentTxHash string) (ProviderCallResult, error) {
	raw, err := json.Marshal(callProviderRequest{
		ProviderName:  providerName,
		Arguments:     arguments,
		PaymentTxHash: paymentTxHash,
	})
	if err != nil {
		return ProviderCallResult{}, fmt.Errorf("encode call-provider request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/control/call", bytes.NewReader(raw))
	if err != nil {
		return ProviderCallResult{}, fmt.Errorf("build call-provider request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	// The shared client's Timeout is the health-ping bound; a provider call
	// is bounded by ctx alone.
	callClient := *c.client
	callClient.Timeout = 0
	resp, err := callClient.Do(req)
	if err != nil {
		return ProviderCallResult{}, fmt.Errorf("call provider %s: %w", providerName, err)
	}
	defer resp.Body.Close()

	var result ProviderCallResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return ProviderCallResult{}, fmt.Errorf("decode call-provider response from %s: %w", providerName, err)
	}
	return result, nil
}
