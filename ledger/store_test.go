package ledger

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"
)

func TestDecodeTransferLogsForTBAFiltersToRelevantLogs(t *testing.T) {
	tba := common.HexToAddress("0xaaaa000000000000000000000000000000aaaa")
	other := common.HexToAddress("0xbbbb000000000000000000000000000000bbbb")
	unrelated := common.HexToAddress("0xcccc000000000000000000000000000000cccc")

	mkLog := func(from, to common.Address) *types.Log {
		return &types.Log{
			Topics: []common.Hash{transferEventSig, common.BytesToHash(from.Bytes()), common.BytesToHash(to.Bytes())},
			Data:   common.LeftPadBytes([]byte{42}, 32),
			TxHash: common.HexToHash("0x1"),
		}
	}

	receipt := &types.Receipt{Logs: []*types.Log{
		mkLog(tba, other),
		mkLog(unrelated, other), // neither side is the TBA: dropped
	}}

	events := decodeTransferLogsForTBA(receipt, tba)
	require.Len(t, events, 1)
	require.Equal(t, tba.Hex(), events[0].From)
}
