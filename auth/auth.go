// Package auth is Client Authorization (C5): opaque client identities,
// bearer-token hashing, and ledger-derived spending budgets.
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/google/uuid"

	"github.com/hypergrid-io/hypergrid/internal/kvstore"
	"github.com/hypergrid-io/hypergrid/internal/model"
	"github.com/hypergrid-io/hypergrid/internal/usdc"
)

var (
	ErrNotFound         = errors.New("authorized client not found")
	ErrHalted           = errors.New("authorized client is halted")
	ErrCapability       = errors.New("authorized client lacks required capability")
	ErrTokenMismatch    = errors.New("bearer token does not match")
	ErrPerCallExceeded  = errors.New("per-call spending limit exceeded")
	ErrTotalExceeded    = errors.New("cumulative spending limit exceeded")
)

// LedgerReader is the narrow seam into the USDC Ledger (C7) budgeting needs:
// the cumulative limit is always rechecked against the Ledger, never kept
// only in memory (spec §4.5).
type LedgerReader interface {
	TotalSpentByClient(clientID string) (string, error)
}

// Registry owns the authorized-client set.
type Registry struct {
	mu     sync.Mutex
	kv     *kvstore.Store
	ledger LedgerReader

	clients map[string]model.AuthorizedClient
}

func NewRegistry(kv *kvstore.Store, ledger LedgerReader) (*Registry, error) {
	r := &Registry{kv: kv, ledger: ledger, clients: map[string]model.AuthorizedClient{}}
	var clients []model.AuthorizedClient
	if ok, err := kv.GetJSON(kvstore.KeyAuthorizedClients, &clients); err != nil {
		return nil, fmt.Errorf("load authorized clients: %w", err)
	} else if ok {
		for _, c := range clients {
			r.clients[c.ID] = c
		}
	}
	return r, nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// persist must be called with mu held.
func (r *Registry) persist() error {
	clients := make([]model.AuthorizedClient, 0, len(r.clients))
	for _, c := range r.clients {
		clients = append(clients, c)
	}
	return r.kv.SetJSON(kvstore.KeyAuthorizedClients, clients)
}

// Configure creates or updates an authorized client. If clientID is empty,
// a new opaque id is minted.
func (r *Registry) Configure(clientID, name, rawToken, hotWallet string) (model.AuthorizedClient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if clientID != "" {
		existing, ok := r.clients[clientID]
		if !ok {
			return model.AuthorizedClient{}, ErrNotFound
		}
		if name != "" {
			existing.Name = name
		}
		if rawToken != "" {
			existing.TokenHashHex = hashToken(rawToken)
		}
		if hotWallet != "" {
			existing.HotWallet = hotWallet
		}
		r.clients[clientID] = existing
		if err := r.persist(); err != nil {
			return model.AuthorizedClient{}, err
		}
		return existing, nil
	}

	id := uuid.NewString()
	c := model.AuthorizedClient{
		ID:           id,
		Name:         name,
		HotWallet:    hotWallet,
		TokenHashHex: hashToken(rawToken),
		Capability:   model.CapabilityAll,
		Status:       model.ClientActive,
	}
	r.clients[id] = c
	if err := r.persist(); err != nil {
		return model.AuthorizedClient{}, err
	}
	return c, nil
}

// Authenticate validates (clientID, rawToken) against the stored hash,
// rejecting missing/halted/capability-deficient clients, comparing the
// token hash in constant time to avoid timing side-channels.
func (r *Registry) Authenticate(clientID, rawToken string, requiredCapability model.ClientCapability) (model.AuthorizedClient, error) {
	r.mu.Lock()
	client, ok := r.clients[clientID]
	r.mu.Unlock()

	if !ok {
		return model.AuthorizedClient{}, ErrNotFound
	}
	if client.Status == model.ClientHalted {
		return model.AuthorizedClient{}, ErrHalted
	}
	if requiredCapability != "" && client.Capability != model.CapabilityAll && client.Capability != requiredCapability {
		return model.AuthorizedClient{}, ErrCapability
	}

	want := hashToken(rawToken)
	if subtle.ConstantTimeCompare([]byte(want), []byte(client.TokenHashHex)) != 1 {
		return model.AuthorizedClient{}, ErrTokenMismatch
	}
	return client, nil
}

// Get returns a client by id without authenticating, for admin/listing
// endpoints.
func (r *Registry) Get(clientID string) (model.AuthorizedClient, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clients[clientID]
	return c, ok
}

// List returns every authorized client.
func (r *Registry) List() []model.AuthorizedClient {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.AuthorizedClient, 0, len(r.clients))
	for _, c := range r.clients {
		out = append(out, c)
	}
	return out
}

// SetStatus halts or reactivates a client.
func (r *Registry) SetStatus(clientID string, status model.ClientStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clients[clientID]
	if !ok {
		return ErrNotFound
	}
	c.Status = status
	r.clients[clientID] = c
	return r.persist()
}

// SetLimits updates a client's cached spending policy.
func (r *Registry) SetLimits(clientID string, limits model.SpendingLimits) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clients[clientID]
	if !ok {
		return ErrNotFound
	}
	c.Limits = limits
	r.clients[clientID] = c
	return r.persist()
}

// CheckBudget enforces the per-call limit against amountUnits directly, and
// the cumulative limit against the Ledger-derived total (never an
// in-memory-only counter, per spec §4.5). Returns nil if the call may
// proceed.
func (r *Registry) CheckBudget(clientID string, amountUnits *big.Int) error {
	r.mu.Lock()
	client, ok := r.clients[clientID]
	r.mu.Unlock()
	if !ok {
		return ErrNotFound
	}

	if client.Limits.MaxPerCall != "" {
		maxPerCall, err := usdc.DisplayToUnits(client.Limits.MaxPerCall)
		if err != nil {
			return fmt.Errorf("parse max_per_call: %w", err)
		}
		if amountUnits.Cmp(maxPerCall) > 0 {
			return ErrPerCallExceeded
		}
	}

	if client.Limits.MaxTotal != "" {
		maxTotal, err := usdc.DisplayToUnits(client.Limits.MaxTotal)
		if err != nil {
			return fmt.Errorf("parse max_total: %w", err)
		}
		spentDisplay, err := r.ledger.TotalSpentByClient(clientID)
		if err != nil {
			return fmt.Errorf("read ledger total for client %s: %w", clientID, err)
		}
		spent, err := usdc.DisplayToUnits(spentDisplay)
		if err != nil {
			spent = big.NewInt(0)
		}
		projected := new(big.Int).Add(spent, amountUnits)
		if projected.Cmp(maxTotal) > 0 {
			return ErrTotalExceeded
		}
	}

	return nil
}
