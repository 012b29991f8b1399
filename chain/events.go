package chain

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// Registry contract event signatures (spec §6 "On-chain interfaces"):
//
//	Mint(bytes32 indexed parenthash, bytes32 indexed childhash, bytes label, bytes data)
//	Note(bytes32 indexed parenthash, bytes32 indexed labelhash, bytes label, bytes data)
var (
	mintEventSig = []byte("Mint(bytes32,bytes32,bytes,bytes)")
	noteEventSig = []byte("Note(bytes32,bytes32,bytes,bytes)")

	MintEventHash = crypto.Keccak256Hash(mintEventSig)
	NoteEventHash = crypto.Keccak256Hash(noteEventSig)
)

// noteLabels is the fixed allow-set of Note labels a provider entry cares
// about (spec §3, §4.1 scope rule).
var noteLabels = []string{
	"~description", "~instructions", "~price", "~wallet", "~provider-id", "~site",
}

// noteLabelHashes returns the keccak256 hash of each allowed note label, used
// as the topic2 (labelhash) filter value so only relevant Notes are ever fetched.
func noteLabelHashes() []common.Hash {
	hashes := make([]common.Hash, 0, len(noteLabels))
	for _, l := range noteLabels {
		hashes = append(hashes, crypto.Keccak256Hash([]byte(l)))
	}
	return hashes
}

// MakeFilters builds the Mint and Note filter queries against the registry
// contract, grounded on original_source's make_filters (chain.rs).
func MakeFilters(registry common.Address, fromBlock uint64) (mint, note ethereum.FilterQuery) {
	mint = ethereum.FilterQuery{
		Addresses: []common.Address{registry},
		Topics:    [][]common.Hash{{MintEventHash}},
		FromBlock: bigFromUint(fromBlock),
	}
	note = ethereum.FilterQuery{
		Addresses: []common.Address{registry},
		Topics:    [][]common.Hash{{NoteEventHash}, nil, noteLabelHashes()},
		FromBlock: bigFromUint(fromBlock),
	}
	return mint, note
}

func bigFromUint(n uint64) *big.Int { return new(big.Int).SetUint64(n) }

var bytesArgs = abi.Arguments{{Type: mustNewType("bytes")}, {Type: mustNewType("bytes")}}

func mustNewType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(err)
	}
	return typ
}

// DecodedMint is the (parenthash, childhash, label) tuple decoded from a
// Mint log.
type DecodedMint struct {
	ParentHash common.Hash
	ChildHash  common.Hash
	Label      string
}

// DecodedNote is the (parenthash, label, data) tuple decoded from a Note
// log.
type DecodedNote struct {
	ParentHash common.Hash
	Label      string
	Data       []byte
}

// DecodeMint decodes a Mint log's non-indexed (label, data) body; parent and
// child hashes come from topics[1] and topics[2].
func DecodeMint(log types.Log) (DecodedMint, error) {
	if len(log.Topics) < 3 {
		return DecodedMint{}, fmt.Errorf("mint log has %d topics, want 3", len(log.Topics))
	}
	values, err := bytesArgs.Unpack(log.Data)
	if err != nil {
		return DecodedMint{}, fmt.Errorf("unpack mint data: %w", err)
	}
	label, ok := values[0].([]byte)
	if !ok {
		return DecodedMint{}, fmt.Errorf("mint label field has unexpected type")
	}
	return DecodedMint{
		ParentHash: log.Topics[1],
		ChildHash:  log.Topics[2],
		Label:      string(label),
	}, nil
}

// DecodeNote decodes a Note log's non-indexed (label, data) body; the
// parent hash comes from topics[1].
func DecodeNote(log types.Log) (DecodedNote, error) {
	if len(log.Topics) < 2 {
		return DecodedNote{}, fmt.Errorf("note log has %d topics, want >= 2", len(log.Topics))
	}
	values, err := bytesArgs.Unpack(log.Data)
	if err != nil {
		return DecodedNote{}, fmt.Errorf("unpack note data: %w", err)
	}
	label, ok := values[0].([]byte)
	if !ok {
		return DecodedNote{}, fmt.Errorf("note label field has unexpected type")
	}
	data, ok := values[1].([]byte)
	if !ok {
		return DecodedNote{}, fmt.Errorf("note data field has unexpected type")
	}
	return DecodedNote{
		ParentHash: log.Topics[1],
		Label:      string(label),
		Data:       data,
	}, nil
}

// NoteColumnKey strips the leading '~' and replaces '-' with '_', per spec
// §4.1's scope rule, to form the providers-table column key.
func NoteColumnKey(label string) string {
	return strings.ReplaceAll(strings.TrimPrefix(label, "~"), "-", "_")
}

// IsAllowedNoteLabel reports whether label is one of the fixed allow-set.
func IsAllowedNoteLabel(label string) bool {
	for _, l := range noteLabels {
		if l == label {
			return true
		}
	}
	return false
}
