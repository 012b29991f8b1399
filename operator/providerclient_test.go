package operator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHTTPProviderClientHealthPing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/control/health", r.URL.Path)
		json.NewEncoder(w).Encode(healthPingResponse{Status: "Ack"})
	}))
	defer srv.Close()

	client := NewHTTPProviderClient(time.Second)
	require.NoError(t, client.HealthPing(context.Background(), "weather", srv.URL))
}

func TestHTTPProviderClientCallProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/control/call", r.URL.Path)
		var req callProviderRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "weather", req.ProviderName)
		json.NewEncoder(w).Encode(ProviderCallResult{Status: 200, Body: map[string]interface{}{"ok": true}})
	}))
	defer srv.Close()

	client := NewHTTPProviderClient(time.Second)
	result, err := client.CallProvider(context.Background(), "weather", srv.URL, map[string]string{"city": "nyc"}, "0xabc")
	require.NoError(t, err)
	require.Equal(t, 200, result.Status)
}

func TestHTTPProviderClientPingSatisfiesHealthPinger(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(healthPingResponse{Status: "Ack"})
	}))
	defer srv.Close()

	client := NewHTTPProviderClient(time.Second)
	require.NoError(t, client.Ping(context.Background(), srv.URL))
}
