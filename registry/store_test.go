package registry

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAllowedFactColumnsMatchesNoteLabelMapping(t *testing.T) {
	want := []string{"description", "instructions", "price", "wallet", "provider_id", "site"}
	for _, col := range want {
		require.True(t, allowedFactColumns[col], "expected %q to be an allowed fact column", col)
	}
	require.Len(t, allowedFactColumns, len(want))
}
