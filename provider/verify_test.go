package provider

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"

	"github.com/hypergrid-io/hypergrid/chain"
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

type fixedReceiptSource struct {
	receipt *types.Receipt
}

func (f fixedReceiptSource) FetchReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	return f.receipt, nil
}

type fixedResolver struct{ hash common.Hash }

func (f fixedResolver) NamehashFromTBA(ctx context.Context, tba common.Address) (common.Hash, error) {
	return f.hash, nil
}

func mkTransferLog(usdcAddr, from, to common.Address, amount *big.Int) *types.Log {
	return &types.Log{
		Address: usdcAddr,
		Topics:  []common.Hash{transferEventSig, common.BytesToHash(from.Bytes()), common.BytesToHash(to.Bytes())},
		Data:    common.LeftPadBytes(amount.Bytes(), 32),
	}
}

func TestVerifyPaymentRequiresTxHash(t *testing.T) {
	v := NewVerifier(common.Address{}, fixedReceiptSource{}, fixedResolver{}, newMemSpentStore())
	err := v.VerifyPayment(context.Background(), RegisteredProvider{}, "", "node")
	require.ErrorIs(t, err, ErrMissingTxHash)
}

func TestVerifyPaymentMatchesSecondQualifyingTransfer(t *testing.T) {
	usdcAddr := common.HexToAddress("0xaaaa000000000000000000000000000000aaaa")
	paymaster := common.HexToAddress("0xbbbb000000000000000000000000000000bbbb")
	payer := common.HexToAddress("0xcccc000000000000000000000000000000cccc")
	providerWallet := common.HexToAddress("0xdddd000000000000000000000000000000dddd")

	receipt := &types.Receipt{Logs: []*types.Log{
		mkTransferLog(usdcAddr, payer, paymaster, big.NewInt(1)),           // deposit: first Transfer
		mkTransferLog(usdcAddr, payer, providerWallet, big.NewInt(5_000)), // second: the one that counts
	}}

	prov := RegisteredProvider{Name: "weather", WalletAddress: providerWallet, PriceUnits: big.NewInt(5_000)}
	resolver := fixedResolver{hash: chain.Namehash("grid-wallet.requester.os")}

	v := NewVerifier(usdcAddr, fixedReceiptSource{receipt: receipt}, resolver, newMemSpentStore())
	err := v.VerifyPayment(context.Background(), prov, "0xabc", "requester.os")
	require.NoError(t, err)
}

func TestVerifyPaymentRejectsAlreadySpent(t *testing.T) {
	store := newMemSpentStore()
	store.spent["0xabc"] = true
	v := NewVerifier(common.Address{}, fixedReceiptSource{}, fixedResolver{}, store)
	err := v.VerifyPayment(context.Background(), RegisteredProvider{}, "0xabc", "node")
	require.ErrorIs(t, err, ErrTxAlreadySpent)
}
