// Package erc4337 provides the ERC-4337 Account Abstraction types needed to
// submit a gasless payment: a UserOperation whose sender is the operator's
// TBA, sponsored by a single pinned paymaster. Adapted from the SDK's
// general-purpose erc4337 package, trimmed to the pinned-paymaster,
// single-bundler shape this engine actually uses.
package erc4337

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// EntryPointV07Address is the canonical v0.7 EntryPoint deployment used for
// all chains this engine targets.
const EntryPointV07Address = "0x0000000071727De22E5E9d8BAf0edAc6f37da032"

// UserOperation is the off-chain representation of an ERC-4337 operation,
// built before bundler submission.
type UserOperation struct {
	Sender               common.Address `json:"sender"`
	Nonce                *big.Int       `json:"nonce"`
	InitCode             []byte         `json:"initCode"`
	CallData             []byte         `json:"callData"`
	VerificationGasLimit *big.Int       `json:"verificationGasLimit"`
	CallGasLimit         *big.Int       `json:"callGasLimit"`
	PreVerificationGas   *big.Int       `json:"preVerificationGas"`
	MaxPriorityFeePerGas *big.Int       `json:"maxPriorityFeePerGas"`
	MaxFeePerGas         *big.Int       `json:"maxFeePerGas"`
	PaymasterAndData     []byte         `json:"paymasterAndData"`
	Signature            []byte         `json:"signature"`
}

// PaymasterConfig pins the single sponsoring paymaster this engine uses
// (spec §6: "pinned paymaster ... verification gas 500000, post-op gas
// 300000").
type PaymasterConfig struct {
	Address           common.Address
	VerificationGas   *big.Int
	PostOpGas         *big.Int
}

// BuildPaymasterAndData concatenates the paymaster address with its pinned
// gas ceilings, the wire format EntryPoint v0.7 expects.
func (p PaymasterConfig) BuildPaymasterAndData() []byte {
	out := append([]byte{}, p.Address.Bytes()...)
	out = append(out, leftPad16(p.VerificationGas)...)
	out = append(out, leftPad16(p.PostOpGas)...)
	return out
}

func leftPad16(v *big.Int) []byte {
	b := v.Bytes()
	out := make([]byte, 16)
	copy(out[16-len(b):], b)
	return out
}

// BundlerClient submits UserOperations and retrieves their receipts.
type BundlerClient interface {
	SendUserOperation(op *UserOperation, entryPoint common.Address) (common.Hash, error)
	GetUserOperationReceipt(userOpHash common.Hash) (*Receipt, error)
}

// Receipt is the subset of a bundler's UserOperation receipt this engine
// needs to decide success/failure.
type Receipt struct {
	Success         bool
	TransactionHash common.Hash
	Reason          string
}
