package payment

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// operation codes for TBA execute(); this engine only ever sends CALL.
const operationCall uint8 = 0

var executeArgs = mustExecuteArgs()

func mustExecuteArgs() abi.Arguments {
	addrTy, err := abi.NewType("address", "", nil)
	if err != nil {
		panic(err)
	}
	uintTy, err := abi.NewType("uint256", "", nil)
	if err != nil {
		panic(err)
	}
	bytesTy, err := abi.NewType("bytes", "", nil)
	if err != nil {
		panic(err)
	}
	uint8Ty, err := abi.NewType("uint8", "", nil)
	if err != nil {
		panic(err)
	}
	return abi.Arguments{
		{Type: addrTy},
		{Type: uintTy},
		{Type: bytesTy},
		{Type: uint8Ty},
	}
}

// executeSelector is the 4-byte selector for execute(address,uint256,bytes,uint8).
var executeSelector = crypto.Keccak256([]byte("execute(address,uint256,bytes,uint8)"))[:4]

// encodeExecute builds calldata for a token-bound account's
// execute(target, value, data, operation) entry point, operation pinned to
// CALL (0). Grounded on the ERC-6551 execute() shape this registry's TBAs
// implement (spec §4.1 "Registry & TBA").
func encodeExecute(target common.Address, value *big.Int, data []byte) ([]byte, error) {
	if value == nil {
		value = big.NewInt(0)
	}
	packed, err := executeArgs.Pack(target, value, data, operationCall)
	if err != nil {
		return nil, err
	}
	return append(append([]byte{}, executeSelector...), packed...), nil
}

var erc20TransferArgs = mustErc20TransferArgs()

func mustErc20TransferArgs() abi.Arguments {
	addrTy, err := abi.NewType("address", "", nil)
	if err != nil {
		panic(err)
	}
	uintTy, err := abi.NewType("uint256", "", nil)
	if err != nil {
		panic(err)
	}
	return abi.Arguments{{Type: addrTy}, {Type: uintTy}}
}

// erc20TransferSelector is the 4-byte selector for transfer(address,uint256).
var erc20TransferSelector = crypto.Keccak256([]byte("transfer(address,uint256)"))[:4]

// encodeERC20Transfer builds calldata for the USDC transfer(to, amount) call
// that the TBA's execute() ultimately wraps.
func encodeERC20Transfer(to common.Address, amountUnits *big.Int) ([]byte, error) {
	packed, err := erc20TransferArgs.Pack(to, amountUnits)
	if err != nil {
		return nil, err
	}
	return append(append([]byte{}, erc20TransferSelector...), packed...), nil
}
