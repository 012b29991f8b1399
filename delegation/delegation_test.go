package delegation

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/hypergrid-io/hypergrid/chain"
)

func TestVerifyRequiresIdentityAndHotWallet(t *testing.T) {
	v := NewVerifier(chain.NewNoteReader(nil, common.Address{}))
	status := v.Verify(context.Background(), "", common.HexToAddress("0x1"))
	require.Equal(t, NeedsIdentity, status.Kind)

	status = v.Verify(context.Background(), "operator.grid-beta.hypr", common.Address{})
	require.Equal(t, NeedsHotWallet, status.Kind)
}

func TestDecodeAddressList(t *testing.T) {
	addrTy, err := abi.NewType("address[]", "", nil)
	require.NoError(t, err)
	args := abi.Arguments{{Type: addrTy}}
	want := []common.Address{common.HexToAddress("0xabc"), common.HexToAddress("0xdef")}
	packed, err := args.Pack(want)
	require.NoError(t, err)

	got, err := decodeAddressList(packed)
	require.NoError(t, err)
	require.Equal(t, want, got)
}
