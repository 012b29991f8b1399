package chain

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// LogSource is the one internal interface presenting fetch/subscribe/bootstrap
// behind a single seam (spec §9 design note: "present one internal interface
// and dispatch inside" instead of juggling subscription/receipt-poll/bootstrap
// backends at call sites).
type LogSource interface {
	FetchLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	FetchReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	SubscribeLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error)
	BlockNumber(ctx context.Context) (uint64, error)
	ContractCaller
}

// ContractCaller is the narrow read-only eth_call seam used by the
// Delegation Verifier (C4) to read hypermap notes. StorageAt is part of the
// seam but has no caller: the Payment Engine does not read the TBA's
// ERC-1967 implementation slot.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	StorageAt(ctx context.Context, account common.Address, key common.Hash, blockNumber *big.Int) ([]byte, error)
}

// RPCLogSource is a LogSource backed by a live JSON-RPC / WebSocket
// go-ethereum client.
type RPCLogSource struct {
	client *ethclient.Client
}

// DialRPCLogSource dials an RPC endpoint. Use a ws:// or wss:// URL to get
// working SubscribeLogs support; an http(s):// URL will fail subscription
// calls (the caller falls back to polling via FetchLogs in that case).
func DialRPCLogSource(ctx context.Context, rpcURL string) (*RPCLogSource, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial chain RPC: %w", err)
	}
	return &RPCLogSource{client: client}, nil
}

func (s *RPCLogSource) FetchLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	return s.client.FilterLogs(ctx, q)
}

func (s *RPCLogSource) FetchReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	return s.client.TransactionReceipt(ctx, txHash)
}

func (s *RPCLogSource) SubscribeLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error) {
	return s.client.SubscribeFilterLogs(ctx, q, ch)
}

func (s *RPCLogSource) BlockNumber(ctx context.Context) (uint64, error) {
	return s.client.BlockNumber(ctx)
}

func (s *RPCLogSource) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return s.client.CallContract(ctx, msg, blockNumber)
}

func (s *RPCLogSource) StorageAt(ctx context.Context, account common.Address, key common.Hash, blockNumber *big.Int) ([]byte, error) {
	return s.client.StorageAt(ctx, account, key, blockNumber)
}

// BalanceAt reads a plain ETH balance, used by the operator's wallet-funding
// status check (operator.BalanceChecker).
func (s *RPCLogSource) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	return s.client.BalanceAt(ctx, account, blockNumber)
}

func (s *RPCLogSource) Close() { s.client.Close() }

// fetchLogsWithBackoff retries a transient RPC fetch failure with bounded
// exponential backoff, capped as described in spec §4.1 "Failures".
func fetchLogsWithBackoff(ctx context.Context, src LogSource, q ethereum.FilterQuery, maxRetries int) ([]types.Log, error) {
	backoff := 500 * time.Millisecond
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		logs, err := src.FetchLogs(ctx, q)
		if err == nil {
			return logs, nil
		}
		lastErr = err
		if attempt == maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > 8*time.Second {
			backoff = 8 * time.Second
		}
	}
	return nil, fmt.Errorf("fetch logs after %d retries: %w", maxRetries, lastErr)
}
