package chain

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

func callMsg(to common.Address, data []byte) ethereum.CallMsg {
	return ethereum.CallMsg{To: &to, Data: data}
}

// Namehash computes the hierarchical namehash of a dotted entry name
// (e.g. "~access-list.operator.grid-beta.hypr"), following the same
// right-to-left labeling scheme as ENS namehash, which the registry's
// hypermap-pattern naming is built on.
func Namehash(name string) common.Hash {
	node := common.Hash{}
	if name == "" {
		return node
	}
	labels := strings.Split(name, ".")
	for i := len(labels) - 1; i >= 0; i-- {
		labelHash := crypto.Keccak256Hash([]byte(labels[i]))
		node = crypto.Keccak256Hash(node.Bytes(), labelHash.Bytes())
	}
	return node
}

var getFn = mustNewGetFunction()

func mustNewGetFunction() abi.Method {
	bytes32Ty, _ := abi.NewType("bytes32", "", nil)
	addressTy, _ := abi.NewType("address", "", nil)
	bytesTy, _ := abi.NewType("bytes", "", nil)
	m, err := abi.NewMethod("get", "get", abi.Function, "view", false, false,
		abi.Arguments{{Name: "namehash", Type: bytes32Ty}},
		abi.Arguments{{Name: "tba", Type: addressTy}, {Name: "owner", Type: addressTy}, {Name: "data", Type: bytesTy}},
	)
	if err != nil {
		panic(err)
	}
	return m
}

// NoteReader resolves a registry note (by full dotted path or by its
// precomputed namehash) to its raw data payload, via the registry
// contract's read-only get(bytes32) method.
type NoteReader struct {
	caller   ContractCaller
	registry common.Address
}

func NewNoteReader(caller ContractCaller, registry common.Address) *NoteReader {
	return &NoteReader{caller: caller, registry: registry}
}

// GetByPath resolves a dotted entry path to its note data, or (nil, nil) if
// unset.
func (r *NoteReader) GetByPath(ctx context.Context, path string) ([]byte, error) {
	return r.GetByHash(ctx, Namehash(path))
}

// GetByHash resolves a precomputed namehash to its note data.
func (r *NoteReader) GetByHash(ctx context.Context, hash common.Hash) ([]byte, error) {
	calldata, err := getFn.Inputs.Pack(hash)
	if err != nil {
		return nil, fmt.Errorf("pack get() call: %w", err)
	}
	input := append(append([]byte{}, getFn.ID...), calldata...)

	raw, err := r.caller.CallContract(ctx, callMsg(r.registry, input), nil)
	if err != nil {
		return nil, fmt.Errorf("call get(%s): %w", hash.Hex(), err)
	}
	if len(raw) == 0 {
		return nil, nil
	}

	values, err := getFn.Outputs.Unpack(raw)
	if err != nil {
		return nil, fmt.Errorf("unpack get() result: %w", err)
	}
	data, ok := values[2].([]byte)
	if !ok {
		return nil, fmt.Errorf("get() data field has unexpected type")
	}
	if len(data) == 0 {
		return nil, nil
	}
	return data, nil
}

var nodeFn = mustNewNodeFunction()

func mustNewNodeFunction() abi.Method {
	addressTy, _ := abi.NewType("address", "", nil)
	bytes32Ty, _ := abi.NewType("bytes32", "", nil)
	m, err := abi.NewMethod("node", "node", abi.Function, "view", false, false,
		abi.Arguments{{Name: "tba", Type: addressTy}},
		abi.Arguments{{Name: "namehash", Type: bytes32Ty}},
	)
	if err != nil {
		panic(err)
	}
	return m
}

// NamehashFromTBA reverse-resolves a token-bound account to its registry
// namehash via the registry contract's node(address) view accessor, the
// mirror of get(bytes32)'s forward namehash->tba direction. The pack does
// not ship the registry contract's Solidity interface, so this ABI shape
// is inferred from get()'s own signature rather than copied verbatim.
func (r *NoteReader) NamehashFromTBA(ctx context.Context, tba common.Address) (common.Hash, error) {
	calldata, err := nodeFn.Inputs.Pack(tba)
	if err != nil {
		return common.Hash{}, fmt.Errorf("pack node() call: %w", err)
	}
	input := append(append([]byte{}, nodeFn.ID...), calldata...)

	raw, err := r.caller.CallContract(ctx, callMsg(r.registry, input), nil)
	if err != nil {
		return common.Hash{}, fmt.Errorf("call node(%s): %w", tba.Hex(), err)
	}
	values, err := nodeFn.Outputs.Unpack(raw)
	if err != nil {
		return common.Hash{}, fmt.Errorf("unpack node() result: %w", err)
	}
	namehash, ok := values[0].([32]byte)
	if !ok {
		return common.Hash{}, fmt.Errorf("node() result has unexpected type")
	}
	return common.Hash(namehash), nil
}
