package payment

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/hypergrid-io/hypergrid/delegation"
	"github.com/hypergrid-io/hypergrid/internal/model"
)

var errLimitStub = errors.New("cumulative spending limit exceeded")

func mustTestKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return key
}

type noBudget struct{ err error }

func (b noBudget) CheckBudget(clientID string, amountUnits *big.Int) error { return b.err }

type noSigners struct {
	id     string
	signer *ecdsa.PrivateKey
	err    error
}

func (s noSigners) Signer(id string) (*ecdsa.PrivateKey, error) { return s.signer, s.err }
func (s noSigners) SelectedSigner() (string, *ecdsa.PrivateKey, error) {
	return s.id, s.signer, s.err
}

type fixedDelegation struct{ status delegation.Status }

func (d fixedDelegation) Verify(ctx context.Context, operatorEntry string, hotWallet common.Address) delegation.Status {
	return d.status
}

func TestPayRejectsPlaceholderProviderWallet(t *testing.T) {
	e := NewEngine(nil, common.Address{}, noBudget{}, noSigners{}, nil, nil)
	out := e.Pay(context.Background(), Request{
		OperatorTBA:    common.HexToAddress("0x1"),
		ProviderWallet: "0x0000000000000000000000000000000000000000",
		AmountDisplay:  "1.00",
	})
	require.Equal(t, model.PaymentFailed, out.Kind)
}

func TestPaySkipsWhenOperatorHasNoTBA(t *testing.T) {
	e := NewEngine(nil, common.Address{}, noBudget{}, noSigners{}, nil, nil)
	out := e.Pay(context.Background(), Request{
		AmountDisplay:  "1.00",
		ProviderWallet: "0x000000000000000000000000000000000000ab",
	})
	require.Equal(t, model.PaymentSkipped, out.Kind)
}

func TestPayLimitExceededSurfacesBudgetError(t *testing.T) {
	e := NewEngine(nil, common.Address{}, noBudget{err: errLimitStub}, noSigners{}, nil, nil)
	out := e.Pay(context.Background(), Request{
		ClientID:       "client-1",
		OperatorTBA:    common.HexToAddress("0x1"),
		ProviderWallet: "0x00000000000000000000000000000000000000ab",
		AmountDisplay:  "1.00",
	})
	require.Equal(t, model.PaymentLimitExceeded, out.Kind)
}

func TestPaySkipsWhenDelegationFails(t *testing.T) {
	key := mustTestKey(t)
	e := NewEngine(nil, common.Address{}, noBudget{}, noSigners{id: "0xabc", signer: key},
		fixedDelegation{status: delegation.Status{Kind: delegation.HotWalletNotInList, Reason: "not delegated"}}, nil)
	out := e.Pay(context.Background(), Request{
		OperatorTBA:    common.HexToAddress("0x1"),
		ProviderWallet: "0x00000000000000000000000000000000000000ab",
		AmountDisplay:  "1.00",
	})
	require.Equal(t, model.PaymentSkipped, out.Kind)
}

func TestEncodeExecuteAndTransferProduceSelectors(t *testing.T) {
	data, err := encodeExecute(common.HexToAddress("0x1"), big.NewInt(0), []byte{0xde, 0xad})
	require.NoError(t, err)
	require.Equal(t, executeSelector, data[:4])

	transfer, err := encodeERC20Transfer(common.HexToAddress("0x2"), big.NewInt(1_000_000))
	require.NoError(t, err)
	require.Equal(t, erc20TransferSelector, transfer[:4])
}
