package operator

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hypergrid-io/hypergrid/internal/kvstore"
	"github.com/hypergrid-io/hypergrid/internal/model"
)

func TestHistoryAppendAndRecent(t *testing.T) {
	h, err := NewHistory(kvstore.NewInMemory())
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, h.Append(model.CallRecord{LookupKey: "weather"}))
	}

	recent := h.Recent(2)
	require.Len(t, recent, 2)
}

func TestHistoryTrimsToLimit(t *testing.T) {
	kv := kvstore.NewInMemory()
	h, err := NewHistory(kv)
	require.NoError(t, err)

	for i := 0; i < historyLimit+10; i++ {
		require.NoError(t, h.Append(model.CallRecord{LookupKey: "weather"}))
	}
	require.Len(t, h.Recent(historyLimit+10), historyLimit)

	reloaded, err := NewHistory(kv)
	require.NoError(t, err)
	require.Len(t, reloaded.Recent(historyLimit+10), historyLimit)
}
