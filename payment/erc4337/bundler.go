package erc4337

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

// HTTPBundlerClient submits UserOperations to a bundler over its standard
// JSON-RPC surface (eth_sendUserOperation / eth_getUserOperationReceipt),
// using go-ethereum's rpc.Client the same way ethclient.Client does under
// chain.RPCLogSource.
type HTTPBundlerClient struct {
	rpc *rpc.Client
}

func NewHTTPBundlerClient(endpoint string) (*HTTPBundlerClient, error) {
	client, err := rpc.Dial(endpoint)
	if err != nil {
		return nil, fmt.Errorf("dial bundler rpc: %w", err)
	}
	return &HTTPBundlerClient{rpc: client}, nil
}

type userOperationWire struct {
	Sender               common.Address `json:"sender"`
	Nonce                *hexutil.Big   `json:"nonce"`
	InitCode             hexutil.Bytes  `json:"initCode"`
	CallData             hexutil.Bytes  `json:"callData"`
	VerificationGasLimit *hexutil.Big   `json:"verificationGasLimit"`
	CallGasLimit         *hexutil.Big   `json:"callGasLimit"`
	PreVerificationGas   *hexutil.Big   `json:"preVerificationGas"`
	MaxPriorityFeePerGas *hexutil.Big   `json:"maxPriorityFeePerGas"`
	MaxFeePerGas         *hexutil.Big   `json:"maxFeePerGas"`
	PaymasterAndData     hexutil.Bytes  `json:"paymasterAndData"`
	Signature            hexutil.Bytes  `json:"signature"`
}

func toWire(op *UserOperation) userOperationWire {
	return userOperationWire{
		Sender:               op.Sender,
		Nonce:                (*hexutil.Big)(op.Nonce),
		InitCode:             op.InitCode,
		CallData:             op.CallData,
		VerificationGasLimit: (*hexutil.Big)(op.VerificationGasLimit),
		CallGasLimit:         (*hexutil.Big)(op.CallGasLimit),
		PreVerificationGas:   (*hexutil.Big)(op.PreVerificationGas),
		MaxPriorityFeePerGas: (*hexutil.Big)(op.MaxPriorityFeePerGas),
		MaxFeePerGas:         (*hexutil.Big)(op.MaxFeePerGas),
		PaymasterAndData:     op.PaymasterAndData,
		Signature:            op.Signature,
	}
}

// SendUserOperation implements BundlerClient.
func (c *HTTPBundlerClient) SendUserOperation(op *UserOperation, entryPoint common.Address) (common.Hash, error) {
	var userOpHash common.Hash
	err := c.rpc.CallContext(context.Background(), &userOpHash, "eth_sendUserOperation", toWire(op), entryPoint)
	if err != nil {
		return common.Hash{}, fmt.Errorf("eth_sendUserOperation: %w", err)
	}
	return userOpHash, nil
}

type userOperationReceiptWire struct {
	Success bool   `json:"success"`
	Reason  string `json:"reason"`
	Receipt struct {
		TransactionHash common.Hash `json:"transactionHash"`
	} `json:"receipt"`
}

// GetUserOperationReceipt implements BundlerClient.
func (c *HTTPBundlerClient) GetUserOperationReceipt(userOpHash common.Hash) (*Receipt, error) {
	var wire *userOperationReceiptWire
	if err := c.rpc.CallContext(context.Background(), &wire, "eth_getUserOperationReceipt", userOpHash); err != nil {
		return nil, fmt.Errorf("eth_getUserOperationReceipt: %w", err)
	}
	if wire == nil {
		return nil, nil
	}
	return &Receipt{
		Success:         wire.Success,
		TransactionHash: wire.Receipt.TransactionHash,
		Reason:          wire.Reason,
	}, nil
}
