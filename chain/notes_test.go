package chain

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("rpc unavailable")

// scriptedCaller answers CallContract with a pre-packed return value,
// regardless of which function selector was dialed, enough to exercise a
// single NoteReader method per test without a live RPC endpoint.
type scriptedCaller struct {
	ret []byte
	err error
}

func (s scriptedCaller) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return s.ret, s.err
}

func (s scriptedCaller) StorageAt(ctx context.Context, account common.Address, key common.Hash, blockNumber *big.Int) ([]byte, error) {
	return nil, nil
}

func TestNamehashFromTBA(t *testing.T) {
	want := Namehash("operator.grid-beta.hypr")
	packed, err := nodeFn.Outputs.Pack(want)
	require.NoError(t, err)

	reader := NewNoteReader(scriptedCaller{ret: packed}, common.HexToAddress("0x3333333333333333333333333333333333333333"))
	got, err := reader.NamehashFromTBA(context.Background(), common.HexToAddress("0x1111111111111111111111111111111111111111"))
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestNamehashFromTBAPropagatesCallError(t *testing.T) {
	reader := NewNoteReader(scriptedCaller{err: errBoom}, common.HexToAddress("0x3333333333333333333333333333333333333333"))
	_, err := reader.NamehashFromTBA(context.Background(), common.HexToAddress("0x1111111111111111111111111111111111111111"))
	require.Error(t, err)
}
