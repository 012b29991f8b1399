// Package chain is the Chain Indexer (C1): it owns the registry's Mint/Note
// event stream, decides which mints fall inside the configured root's scope,
// and feeds provider records and facts into the registry store (C2).
package chain

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/hypergrid-io/hypergrid/internal/kvstore"
)

// maxPendingAttempts bounds how many times a deferred Note (or a Mint seen
// before the root is known) is retried before being dropped, grounded on
// original_source's MAX_PENDING_ATTEMPTS = 3 (chain.rs).
const maxPendingAttempts = 3

// hyprNamehash is the namehash of "hypr", the network's top-level entry.
// A Mint whose label equals the configured root label and whose parent is
// this hash sets the indexer's root.
const hyprNamehash = "0x29575a1a0473dcc0e00d7137198ed715215de7bffd92911627d5e008410a5826"

// RegistryWriter is the subset of the registry store (C2) the indexer needs.
// Kept as a narrow interface here, implemented by registry.Store, to avoid
// an import cycle between chain and registry.
type RegistryWriter interface {
	HasProvider(ctx context.Context, hash common.Hash) (bool, error)
	InsertProvider(ctx context.Context, parentHash, childHash common.Hash, name string) error
	InsertProviderFacts(ctx context.Context, providerHash common.Hash, key, value string) error
}

type pendingLog struct {
	log     types.Log
	attempt int
}

// Indexer is the stateful owner of root_hash, last_checkpoint_block and the
// deferred-log queue described in spec §4.1.
type Indexer struct {
	mu sync.Mutex

	registryAddr common.Address
	rootLabel    string

	src      LogSource
	cache    BootstrapCache
	registry RegistryWriter
	kv       *kvstore.Store

	rootHash       *common.Hash
	lastCheckpoint uint64
	pending        []pendingLog

	logger *log.Logger
}

type IndexerOpts struct {
	RegistryAddr common.Address
	RootLabel    string
	Source       LogSource
	Cache        BootstrapCache
	Registry     RegistryWriter
	KV           *kvstore.Store
	Logger       *log.Logger
}

func NewIndexer(opts IndexerOpts) *Indexer {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Indexer{
		registryAddr: opts.RegistryAddr,
		rootLabel:    opts.RootLabel,
		src:          opts.Source,
		cache:        opts.Cache,
		registry:     opts.Registry,
		kv:           opts.KV,
		logger:       logger,
	}
}

// restoreState reloads root_hash and last_checkpoint_block from the KV
// store, so a restart re-derives state from >= last_checkpoint_block (spec
// §4.1 "Ordering and idempotence").
func (ix *Indexer) restoreState() {
	var rootHex string
	if ok, err := ix.kv.GetJSON(kvstore.KeyRootHash, &rootHex); err == nil && ok && rootHex != "" {
		h := common.HexToHash(rootHex)
		ix.rootHash = &h
	}
	var checkpoint uint64
	if ok, err := ix.kv.GetJSON(kvstore.KeyLastCheckpoint, &checkpoint); err == nil && ok {
		ix.lastCheckpoint = checkpoint
	}
}

func (ix *Indexer) persistCheckpoint() {
	ix.mu.Lock()
	checkpoint := ix.lastCheckpoint
	root := ix.rootHash
	ix.mu.Unlock()

	_ = ix.kv.SetJSON(kvstore.KeyLastCheckpoint, checkpoint)
	if root != nil {
		_ = ix.kv.SetJSON(kvstore.KeyRootHash, root.Hex())
	}
}

// Start bootstraps historical logs, then runs the live subscription (or
// polling fallback) and the periodic pending-queue / checkpoint tick, until
// ctx is cancelled. Matches spec §4.1's start() contract: (i) subscribe to
// Mint and Note filters, (ii) bootstrap from the local cache, (iii) process
// each log into the registry store, (iv) replay pending on a periodic tick.
func (ix *Indexer) Start(ctx context.Context, pollInterval time.Duration) error {
	ix.restoreState()

	mintFilter, noteFilter := MakeFilters(ix.registryAddr, ix.lastCheckpoint)

	logs, head, err := bootstrap(ctx, ix.src, ix.cache, "mint", mintFilter, ix.lastCheckpoint)
	if err != nil {
		ix.logger.Printf("chain: mint bootstrap failed, falling back to direct RPC fetch from %d: %v", ix.lastCheckpoint, err)
		logs, err = fetchLogsWithBackoff(ctx, ix.src, mintFilter, 2)
		if err != nil {
			ix.logger.Printf("chain: mint fallback fetch also failed: %v", err)
			logs = nil
		}
	}
	for _, l := range logs {
		ix.handleLog(ctx, l, 0)
	}
	ix.bumpCheckpoint(head)

	logs, head, err = bootstrap(ctx, ix.src, ix.cache, "note", noteFilter, ix.lastCheckpoint)
	if err != nil {
		ix.logger.Printf("chain: note bootstrap failed, falling back to direct RPC fetch from %d: %v", ix.lastCheckpoint, err)
		logs, err = fetchLogsWithBackoff(ctx, ix.src, noteFilter, 2)
		if err != nil {
			ix.logger.Printf("chain: note fallback fetch also failed: %v", err)
			logs = nil
		}
	}
	for _, l := range logs {
		ix.handleLog(ctx, l, 0)
	}
	ix.bumpCheckpoint(head)
	ix.persistCheckpoint()

	var wg sync.WaitGroup
	wg.Add(3)
	go func() { defer wg.Done(); ix.runSubscription(ctx, "mint", mintFilter) }()
	go func() { defer wg.Done(); ix.runSubscription(ctx, "note", noteFilter) }()
	go func() { defer wg.Done(); ix.runTick(ctx, pollInterval) }()
	wg.Wait()
	return ctx.Err()
}

func (ix *Indexer) bumpCheckpoint(block uint64) {
	ix.mu.Lock()
	if block > ix.lastCheckpoint {
		ix.lastCheckpoint = block
	}
	ix.mu.Unlock()
}

// runSubscription keeps a live subscription open for query, processing logs
// as they arrive and resubscribing (after a short delay) whenever the
// subscription errors out — spec §4.1 "subscription errors resubscribe
// keyed by the failing subscription id"; go-ethereum subscriptions aren't
// numbered, so here the key is simply the filter tag.
func (ix *Indexer) runSubscription(ctx context.Context, tag string, query ethereum.FilterQuery) {
	for {
		if ctx.Err() != nil {
			return
		}

		liveQuery := query
		liveQuery.FromBlock = nil // subscriptions only ever see new logs
		ch := make(chan types.Log, 64)
		sub, err := ix.src.SubscribeLogs(ctx, liveQuery, ch)
		if err != nil {
			ix.logger.Printf("chain: %s subscription unavailable (%v), falling back to polling", tag, err)
			ix.pollLoop(ctx, tag, query)
			return
		}

		ix.logger.Printf("chain: %s subscription established", tag)
		subscriptionLoop:
		for {
			select {
			case <-ctx.Done():
				sub.Unsubscribe()
				return
			case l := <-ch:
				ix.handleLog(ctx, l, 0)
			case err := <-sub.Err():
				ix.logger.Printf("chain: %s subscription error, resubscribing: %v", tag, err)
				break subscriptionLoop
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(2 * time.Second):
		}
	}
}

// pollLoop is the fallback path for RPC endpoints (e.g. plain HTTPS) that
// don't support eth_subscribe: it re-fetches logs from last_checkpoint_block
// on every tick.
func (ix *Indexer) pollLoop(ctx context.Context, tag string, query ethereum.FilterQuery) {
	ticker := time.NewTicker(12 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ix.mu.Lock()
			from := ix.lastCheckpoint + 1
			ix.mu.Unlock()

			q := query
			q.FromBlock = bigFromUint(from)
			q.ToBlock = nil
			logs, err := fetchLogsWithBackoff(ctx, ix.src, q, 2)
			if err != nil {
				ix.logger.Printf("chain: %s poll fetch failed: %v", tag, err)
				continue
			}
			for _, l := range logs {
				ix.handleLog(ctx, l, 0)
			}
		}
	}
}

// runTick periodically advances last_checkpoint_block and replays the
// pending queue, mirroring original_source's CHECKPOINT/DELAY timers.
func (ix *Indexer) runTick(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if head, err := ix.src.BlockNumber(ctx); err == nil {
				ix.bumpCheckpoint(head)
			}
			ix.replayPending(ctx)
			ix.persistCheckpoint()
		}
	}
}

// replayPending re-attempts every deferred log, dropping any that has hit
// maxPendingAttempts.
func (ix *Indexer) replayPending(ctx context.Context) {
	ix.mu.Lock()
	batch := ix.pending
	ix.pending = nil
	ix.mu.Unlock()

	if len(batch) == 0 {
		return
	}
	ix.logger.Printf("chain: replaying %d pending logs", len(batch))
	for _, p := range batch {
		ix.handleLog(ctx, p.log, p.attempt)
	}
}

// handleLog dispatches a single Mint or Note log, deferring it (up to
// maxPendingAttempts) on a recoverable error — e.g. root not yet known, or
// note's parent provider not yet minted.
func (ix *Indexer) handleLog(ctx context.Context, l types.Log, attempt int) {
	if len(l.Topics) == 0 {
		return
	}

	var err error
	switch l.Topics[0] {
	case MintEventHash:
		err = ix.processMint(ctx, l)
	case NoteEventHash:
		err = ix.processNote(ctx, l)
	default:
		return
	}

	if l.BlockNumber > 0 {
		ix.bumpCheckpoint(l.BlockNumber)
	}

	if err == nil {
		return
	}
	if attempt < maxPendingAttempts {
		ix.mu.Lock()
		ix.pending = append(ix.pending, pendingLog{log: l, attempt: attempt + 1})
		ix.mu.Unlock()
		ix.logger.Printf("chain: deferring log (attempt %d/%d): %v", attempt+1, maxPendingAttempts, err)
	} else {
		ix.logger.Printf("chain: dropping log after %d attempts: %v", maxPendingAttempts, err)
	}
}

// processMint applies the scope rule (spec §4.1): the first mint whose
// parent is the "hypr" namehash and whose label matches the configured root
// label sets the root. A mint whose parent equals the root installs a
// provider. Any other parent is ignored (not deferred — it's out of scope,
// not pending).
func (ix *Indexer) processMint(ctx context.Context, l types.Log) error {
	decoded, err := DecodeMint(l)
	if err != nil {
		return fmt.Errorf("decode mint: %w", err)
	}

	if decoded.Label == ix.rootLabel {
		if decoded.ParentHash.Hex() == hyprNamehash {
			ix.mu.Lock()
			if ix.rootHash == nil {
				root := decoded.ChildHash
				ix.rootHash = &root
				ix.logger.Printf("chain: root %s.hypr set to %s", ix.rootLabel, root.Hex())
			}
			ix.mu.Unlock()
		}
		return nil
	}

	ix.mu.Lock()
	root := ix.rootHash
	ix.mu.Unlock()
	if root == nil {
		return fmt.Errorf("root (%s.hypr) not yet found, deferring mint %q", ix.rootLabel, decoded.Label)
	}

	if decoded.ParentHash != *root {
		// Not a direct child of our root: out of scope, not an error.
		return nil
	}

	return ix.registry.InsertProvider(ctx, decoded.ParentHash, decoded.ChildHash, decoded.Label)
}

// processNote applies a Note to a known provider's facts, deferring if the
// root isn't known yet or the provider hasn't been minted into the registry
// store yet.
func (ix *Indexer) processNote(ctx context.Context, l types.Log) error {
	decoded, err := DecodeNote(l)
	if err != nil {
		return fmt.Errorf("decode note: %w", err)
	}
	if !IsAllowedNoteLabel(decoded.Label) {
		return nil
	}

	ix.mu.Lock()
	root := ix.rootHash
	ix.mu.Unlock()
	if root == nil {
		return fmt.Errorf("root (%s.hypr) not yet found, deferring note %q", ix.rootLabel, decoded.Label)
	}

	has, err := ix.registry.HasProvider(ctx, decoded.ParentHash)
	if err != nil {
		return fmt.Errorf("check provider %s: %w", decoded.ParentHash.Hex(), err)
	}
	if !has {
		return fmt.Errorf("provider %s not found for note %q, deferring", decoded.ParentHash.Hex(), decoded.Label)
	}

	key := NoteColumnKey(decoded.Label)
	value := decodeNoteValue(decoded.Data)
	return ix.registry.InsertProviderFacts(ctx, decoded.ParentHash, key, value)
}

// decodeNoteValue renders note bytes as UTF-8 text when valid, otherwise as
// 0x-prefixed hex — matching original_source's add_note fallback.
func decodeNoteValue(data []byte) string {
	if utf8.Valid(data) {
		return string(data)
	}
	return "0x" + common.Bytes2Hex(data)
}
