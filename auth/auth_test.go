package auth

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hypergrid-io/hypergrid/internal/kvstore"
	"github.com/hypergrid-io/hypergrid/internal/model"
)

type fakeLedger struct{ total string }

func (f fakeLedger) TotalSpentByClient(clientID string) (string, error) { return f.total, nil }

func newTestRegistry(t *testing.T, totalSpent string) *Registry {
	t.Helper()
	kv := kvstore.NewInMemory()
	t.Cleanup(func() { kv.Close() })
	r, err := NewRegistry(kv, fakeLedger{total: totalSpent})
	require.NoError(t, err)
	return r
}

func TestConfigureThenAuthenticate(t *testing.T) {
	r := newTestRegistry(t, "0")
	client, err := r.Configure("", "agent-1", "s3cr3t-token", "0xABC")
	require.NoError(t, err)

	got, err := r.Authenticate(client.ID, "s3cr3t-token", "")
	require.NoError(t, err)
	require.Equal(t, client.ID, got.ID)

	_, err = r.Authenticate(client.ID, "wrong-token", "")
	require.ErrorIs(t, err, ErrTokenMismatch)
}

func TestAuthenticateRejectsHalted(t *testing.T) {
	r := newTestRegistry(t, "0")
	client, err := r.Configure("", "agent-1", "token", "0xABC")
	require.NoError(t, err)
	require.NoError(t, r.SetStatus(client.ID, model.ClientHalted))

	_, err = r.Authenticate(client.ID, "token", "")
	require.ErrorIs(t, err, ErrHalted)
}

func TestCheckBudgetEnforcesPerCallAndCumulative(t *testing.T) {
	r := newTestRegistry(t, "9.00")
	client, err := r.Configure("", "agent-1", "token", "0xABC")
	require.NoError(t, err)
	require.NoError(t, r.SetLimits(client.ID, model.SpendingLimits{
		MaxPerCall: "5.00",
		MaxTotal:   "10.00",
		Currency:   "USDC",
	}))

	require.NoError(t, r.CheckBudget(client.ID, big.NewInt(1_000_000))) // $1, within per-call and (9+1<=10)

	err = r.CheckBudget(client.ID, big.NewInt(6_000_000)) // $6 > per-call limit
	require.ErrorIs(t, err, ErrPerCallExceeded)

	err = r.CheckBudget(client.ID, big.NewInt(2_000_000)) // $2: 9+2 > 10 total
	require.ErrorIs(t, err, ErrTotalExceeded)
}
