package chain

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/hypergrid-io/hypergrid/internal/kvstore"
)

// BootstrapCache is the "local cache collaborator" named in spec §4.1: a
// place to read historical logs from without hitting the RPC endpoint on
// every restart. Bootstrap appends the logs it gap-fills from RPC, so a later
// restart's bootstrap serves that range from local storage. Logs handled
// afterwards by the subscription or polling loop are not appended.
type BootstrapCache interface {
	// Load returns the cached logs and the block they're cached up to, for
	// the filter identified by tag.
	Load(tag string) (logs []types.Log, cachedToBlock uint64, err error)
	// Append records newly-confirmed logs as cached up to block.
	Append(tag string, logs []types.Log, toBlock uint64) error
}

// kvBootstrapCache is a BootstrapCache backed by the durable KV store.
type kvBootstrapCache struct {
	kv *kvstore.Store
}

func NewKVBootstrapCache(kv *kvstore.Store) BootstrapCache {
	return &kvBootstrapCache{kv: kv}
}

type cacheEntry struct {
	ToBlock uint64      `json:"to_block"`
	Logs    []types.Log `json:"logs"`
}

func cacheKey(tag string) string { return "chain_log_cache:" + tag }

func (c *kvBootstrapCache) Load(tag string) ([]types.Log, uint64, error) {
	var entry cacheEntry
	ok, err := c.kv.GetJSON(cacheKey(tag), &entry)
	if err != nil {
		return nil, 0, fmt.Errorf("load bootstrap cache %s: %w", tag, err)
	}
	if !ok {
		return nil, 0, nil
	}
	return entry.Logs, entry.ToBlock, nil
}

func (c *kvBootstrapCache) Append(tag string, newLogs []types.Log, toBlock uint64) error {
	existing, _, err := c.Load(tag)
	if err != nil {
		return err
	}
	merged := append(existing, newLogs...)
	return c.kv.SetJSON(cacheKey(tag), cacheEntry{ToBlock: toBlock, Logs: merged})
}

// bootstrap implements spec §4.1 (ii): read what the cache has, then
// RPC-fetch the gap up to the chain head. Falls back entirely to direct RPC
// fetch from fromBlock if the cache read fails (§4.1 "Bootstrap failure
// falls back to direct RPC fetch from last_checkpoint_block").
func bootstrap(ctx context.Context, src LogSource, cache BootstrapCache, tag string, query ethereum.FilterQuery, fromBlock uint64) ([]types.Log, uint64, error) {
	head, err := src.BlockNumber(ctx)
	if err != nil {
		return nil, fromBlock, fmt.Errorf("read chain head: %w", err)
	}

	cached, cachedTo, cacheErr := cache.Load(tag)
	startBlock := fromBlock
	var logs []types.Log
	if cacheErr == nil && cachedTo >= fromBlock {
		logs = append(logs, cached...)
		startBlock = cachedTo + 1
	}

	if startBlock <= head {
		gapQuery := query
		gapQuery.FromBlock = bigFromUint(startBlock)
		gapQuery.ToBlock = bigFromUint(head)
		gapLogs, err := fetchLogsWithBackoff(ctx, src, gapQuery, 5)
		if err != nil {
			return nil, fromBlock, fmt.Errorf("gap-fill RPC fetch from %d to %d: %w", startBlock, head, err)
		}
		logs = append(logs, gapLogs...)
		if err := cache.Append(tag, gapLogs, head); err != nil {
			// Cache write failures are not fatal to bootstrap itself.
			_ = err
		}
	}

	return logs, head, nil
}
