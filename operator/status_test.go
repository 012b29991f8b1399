package operator

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/hypergrid-io/hypergrid/chain"
	"github.com/hypergrid-io/hypergrid/delegation"
	"github.com/hypergrid-io/hypergrid/internal/kvstore"
	"github.com/hypergrid-io/hypergrid/wallet"
)

// notelessCaller answers every on-chain read as "note not present", enough
// to exercise StatusChecker without a live RPC endpoint.
type notelessCaller struct{}

func (notelessCaller) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return nil, nil
}

func (notelessCaller) StorageAt(ctx context.Context, account common.Address, key common.Hash, blockNumber *big.Int) ([]byte, error) {
	return nil, nil
}

type fixedBalance struct {
	bal *big.Int
	err error
}

func (f fixedBalance) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	return f.bal, f.err
}

func TestStatusSnapshotNoSelectionYet(t *testing.T) {
	wallets, err := wallet.NewManager(kvstore.NewInMemory())
	require.NoError(t, err)
	notes := chain.NewNoteReader(notelessCaller{}, common.Address{})
	verifier := delegation.NewVerifier(notes)

	checker := NewStatusChecker(wallets, verifier, fakeIdentity{err: wallet.ErrNoSelection}, nil)
	snap := checker.Snapshot(context.Background())

	require.False(t, snap.HasSelectedWallet)
	require.False(t, snap.OperatorTBAResolved)
	require.False(t, snap.DelegationVerified)
}

func TestStatusSnapshotFundedWallet(t *testing.T) {
	wallets, err := wallet.NewManager(kvstore.NewInMemory())
	require.NoError(t, err)
	created, err := wallets.Generate("primary", "")
	require.NoError(t, err)
	require.NoError(t, wallets.Select(created.ID))

	notes := chain.NewNoteReader(notelessCaller{}, common.Address{})
	verifier := delegation.NewVerifier(notes)
	identity := fakeIdentity{identity: Identity{
		TBA:       common.HexToAddress("0x1111111111111111111111111111111111111111"),
		EntryName: "operator.grid-beta.hypr",
	}}

	checker := NewStatusChecker(wallets, verifier, identity, fixedBalance{bal: big.NewInt(1)})
	snap := checker.Snapshot(context.Background())

	require.True(t, snap.HasSelectedWallet)
	require.True(t, snap.OperatorTBAResolved)
	require.True(t, snap.WalletFunded)
	require.False(t, snap.DelegationVerified)
}
