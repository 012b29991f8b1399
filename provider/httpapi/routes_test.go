package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/hypergrid-io/hypergrid/internal/config"
	"github.com/hypergrid-io/hypergrid/provider"
	"github.com/hypergrid-io/hypergrid/provider/executor"
)

type memSpentStore struct{ spent map[string]bool }

func newMemSpentStore() *memSpentStore { return &memSpentStore{spent: map[string]bool{}} }

func (m *memSpentStore) IsSpent(ctx context.Context, txHash string) (bool, error) {
	return m.spent[txHash], nil
}
func (m *memSpentStore) MarkSpent(ctx context.Context, txHash string) error {
	m.spent[txHash] = true
	return nil
}

type nilReceiptSource struct{}

func (nilReceiptSource) FetchReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	return nil, nil
}

type fixedNamehashResolver struct{ hash common.Hash }

func (f fixedNamehashResolver) NamehashFromTBA(ctx context.Context, tba common.Address) (common.Hash, error) {
	return f.hash, nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	providers, descriptors, err := provider.BuildProviderSet([]provider.EndpointConfig{
		{
			Name:             "weather",
			WalletAddress:    "0x2222222222222222222222222222222222222222",
			PriceUnits:       "0",
			Method:           "GET",
			RequestStructure: "GetWithQuery",
			BaseURLTemplate:  "http://upstream.local/weather",
			QueryParamKeys:   []string{"city"},
		},
	})
	require.NoError(t, err)

	verifier := provider.NewVerifier(common.Address{}, nilReceiptSource{}, fixedNamehashResolver{}, newMemSpentStore())
	cfg := &config.Config{Port: 0, Environment: "test", SourceNodeID: "alice.os"}
	return New(cfg, verifier, providers, descriptors, executor.NewExecutor(5*time.Second))
}

func TestHandleHealth(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/control/health", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "Ack", body.Status)
}

func TestHandleCallUnknownProvider(t *testing.T) {
	s := newTestServer(t)
	payload, _ := json.Marshal(callRequest{ProviderName: "unknown"})
	req := httptest.NewRequest(http.MethodPost, "/control/call", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleCallZeroPriceSkipsVerification(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "nyc", r.URL.Query().Get("city"))
		w.Write([]byte(`{"temp": 72}`))
	}))
	defer upstream.Close()

	providers, descriptors, err := provider.BuildProviderSet([]provider.EndpointConfig{
		{
			Name:             "weather",
			WalletAddress:    "0x2222222222222222222222222222222222222222",
			PriceUnits:       "0",
			Method:           "GET",
			RequestStructure: "GetWithQuery",
			BaseURLTemplate:  upstream.URL,
			QueryParamKeys:   []string{"city"},
		},
	})
	require.NoError(t, err)

	verifier := provider.NewVerifier(common.Address{}, nilReceiptSource{}, fixedNamehashResolver{}, newMemSpentStore())
	cfg := &config.Config{Environment: "test", SourceNodeID: "alice.os"}
	gin.SetMode(gin.TestMode)
	s := New(cfg, verifier, providers, descriptors, executor.NewExecutor(5*time.Second))

	payload, _ := json.Marshal(callRequest{ProviderName: "weather", Arguments: map[string]string{"city": "nyc"}})
	req := httptest.NewRequest(http.MethodPost, "/control/call", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp executor.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, http.StatusOK, resp.Status)
}

func TestHandleCallMissingTxHashForPaidProvider(t *testing.T) {
	providers, descriptors, err := provider.BuildProviderSet([]provider.EndpointConfig{
		{
			Name:             "weather",
			WalletAddress:    "0x2222222222222222222222222222222222222222",
			PriceUnits:       "50000",
			Method:           "GET",
			RequestStructure: "GetWithQuery",
			BaseURLTemplate:  "http://upstream.local/weather",
		},
	})
	require.NoError(t, err)
	require.Equal(t, 1, len(descriptors))

	verifier := provider.NewVerifier(common.Address{}, nilReceiptSource{}, fixedNamehashResolver{}, newMemSpentStore())
	cfg := &config.Config{Environment: "test", SourceNodeID: "alice.os"}
	gin.SetMode(gin.TestMode)
	s := New(cfg, verifier, providers, descriptors, executor.NewExecutor(5*time.Second))

	payload, _ := json.Marshal(callRequest{ProviderName: "weather"})
	req := httptest.NewRequest(http.MethodPost, "/control/call", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusPaymentRequired, rec.Code)
}
