package executor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCallRendersPathAndAttachesNodeHeader(t *testing.T) {
	var gotPath, gotNodeHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotNodeHeader = r.Header.Get(nodeIDHeader)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	e := NewExecutor(5 * time.Second)
	desc := EndpointDescriptor{
		Name:             "lookup",
		Method:           "GET",
		RequestStructure: GetWithPath,
		BaseURLTemplate:  srv.URL + "/v1/{id}",
		PathParamKeys:    []string{"id"},
	}

	resp, warnings, err := e.Call(context.Background(), desc, map[string]string{"id": "42"}, "node.hypr")
	require.NoError(t, err)
	require.Empty(t, warnings)
	require.Equal(t, "/v1/42", gotPath)
	require.Equal(t, "node.hypr", gotNodeHeader)
	require.True(t, resp.Success())
}

func TestCallWarnsOnMissingArgumentWithoutFailing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	e := NewExecutor(5 * time.Second)
	desc := EndpointDescriptor{
		Method:           "GET",
		RequestStructure: GetWithQuery,
		BaseURLTemplate:  srv.URL,
		QueryParamKeys:   []string{"missing_key"},
	}

	_, warnings, err := e.Call(context.Background(), desc, map[string]string{}, "node.hypr")
	require.NoError(t, err)
	require.Len(t, warnings, 1)
}

func TestValidateDescriptorRejectsUnknownMethod(t *testing.T) {
	raw := []byte(`{"name":"x","method":"DELETE","request_structure":"GetWithPath","base_url_template":"http://x"}`)
	err := ValidateDescriptor(raw)
	require.Error(t, err)
}

func TestValidateDescriptorAcceptsWellFormed(t *testing.T) {
	raw := []byte(`{"name":"x","method":"GET","request_structure":"GetWithPath","base_url_template":"http://x/{id}"}`)
	require.NoError(t, ValidateDescriptor(raw))
}
