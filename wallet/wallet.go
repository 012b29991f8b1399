// Package wallet is Wallet Custody (C3): managed hot wallets, their
// plaintext-or-encrypted storage, the single "selected" wallet invariant,
// and a process-local-only decrypted-signer cache.
package wallet

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/hypergrid-io/hypergrid/internal/kvstore"
	"github.com/hypergrid-io/hypergrid/internal/model"
)

// Typed errors surfaced to the HTTP layer: plain sentinel values matched
// with errors.Is (model.TaggedError is not used here).
var (
	ErrWrongPassword  = errors.New("wrong password")
	ErrNotFound       = errors.New("wallet not found")
	ErrLastWallet     = errors.New("cannot delete the last managed wallet")
	ErrAlreadyPresent = errors.New("wallet with this address already exists")
	ErrPasswordNeeded = errors.New("wallet is password-protected; password required")
	ErrNoSelection    = errors.New("no wallet selected")
)

// Manager owns the managed-wallet set, the selection pointer and the
// volatile decrypted-signer cache. The cache is intentionally never
// persisted (spec §3 invariant: "the decrypted signer is held only in
// volatile memory, never persisted").
type Manager struct {
	mu sync.Mutex

	kv *kvstore.Store

	wallets    map[string]model.ManagedWallet // keyed by address (ID)
	selectedID string

	unlocked map[string]*ecdsa.PrivateKey // address -> decrypted signer, volatile only
}

func NewManager(kv *kvstore.Store) (*Manager, error) {
	m := &Manager{
		kv:       kv,
		wallets:  map[string]model.ManagedWallet{},
		unlocked: map[string]*ecdsa.PrivateKey{},
	}
	if err := m.load(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Manager) load() error {
	var wallets []model.ManagedWallet
	if ok, err := m.kv.GetJSON(kvstore.KeyManagedWallets, &wallets); err != nil {
		return fmt.Errorf("load managed wallets: %w", err)
	} else if ok {
		for _, w := range wallets {
			m.wallets[w.ID] = w
		}
	}
	var selected string
	if ok, err := m.kv.GetJSON(kvstore.KeySelectedWalletID, &selected); err != nil {
		return fmt.Errorf("load selected wallet: %w", err)
	} else if ok {
		m.selectedID = selected
	}
	return nil
}

// persist must be called with mu held.
func (m *Manager) persist() error {
	wallets := make([]model.ManagedWallet, 0, len(m.wallets))
	for _, w := range m.wallets {
		wallets = append(wallets, w)
	}
	if err := m.kv.SetJSON(kvstore.KeyManagedWallets, wallets); err != nil {
		return fmt.Errorf("persist managed wallets: %w", err)
	}
	if err := m.kv.SetJSON(kvstore.KeySelectedWalletID, m.selectedID); err != nil {
		return fmt.Errorf("persist selected wallet: %w", err)
	}
	return nil
}

// Generate creates a brand-new wallet with a random ECDSA key.
func (m *Manager) Generate(name, password string) (model.ManagedWallet, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return model.ManagedWallet{}, fmt.Errorf("generate key: %w", err)
	}
	return m.addKey(key, name, password)
}

// Import adds a wallet from an existing hex-encoded private key, grounded
// on go/signers/evm/client.go's NewClientSignerFromPrivateKey parsing.
func (m *Manager) Import(privateKeyHex, name, password string) (model.ManagedWallet, error) {
	privateKeyHex = strings.TrimPrefix(privateKeyHex, "0x")
	key, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return model.ManagedWallet{}, fmt.Errorf("invalid private key: %w", err)
	}
	return m.addKey(key, name, password)
}

func (m *Manager) addKey(key *ecdsa.PrivateKey, name, password string) (model.ManagedWallet, error) {
	address := crypto.PubkeyToAddress(key.PublicKey).Hex()

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.wallets[address]; exists {
		return model.ManagedWallet{}, ErrAlreadyPresent
	}

	storage, err := m.buildStorage(key, password)
	if err != nil {
		return model.ManagedWallet{}, err
	}

	w := model.ManagedWallet{
		ID:      address,
		Name:    name,
		Storage: storage,
		Limits:  model.SpendingLimits{Currency: "USDC"},
	}
	m.wallets[address] = w
	if password == "" {
		m.unlocked[address] = key
	}
	if m.selectedID == "" {
		m.selectedID = address
	}
	if err := m.persist(); err != nil {
		return model.ManagedWallet{}, err
	}
	return w, nil
}

func (m *Manager) buildStorage(key *ecdsa.PrivateKey, password string) (model.WalletStorage, error) {
	hexKey := fmt.Sprintf("%x", crypto.FromECDSA(key))
	if password == "" {
		return model.WalletStorage{Kind: model.StoragePlaintext, PlainHex: hexKey}, nil
	}
	ciphertext, salt, nonce, err := encryptPrivateKey(hexKey, password)
	if err != nil {
		return model.WalletStorage{}, fmt.Errorf("encrypt private key: %w", err)
	}
	return model.WalletStorage{Kind: model.StorageEncrypted, Ciphertext: ciphertext, Salt: salt, Nonce: nonce}, nil
}

// ListSummaries returns every managed wallet (without decrypted key
// material) and which one is currently selected.
func (m *Manager) ListSummaries() ([]model.ManagedWallet, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.ManagedWallet, 0, len(m.wallets))
	for _, w := range m.wallets {
		out = append(out, w)
	}
	return out, m.selectedID
}

// Select changes which wallet is the active one for outbound payments.
func (m *Manager) Select(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.wallets[id]; !ok {
		return ErrNotFound
	}
	m.selectedID = id
	return m.persist()
}

// Rename updates a wallet's display name.
func (m *Manager) Rename(id, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.wallets[id]
	if !ok {
		return ErrNotFound
	}
	w.Name = name
	m.wallets[id] = w
	return m.persist()
}

// Delete removes a wallet, refusing to remove the last one (spec §3:
// "at most one wallet is selected at any time" implies at least one must
// remain so selection stays well-defined for active operation).
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.wallets[id]; !ok {
		return ErrNotFound
	}
	if len(m.wallets) <= 1 {
		return ErrLastWallet
	}
	delete(m.wallets, id)
	delete(m.unlocked, id)
	if m.selectedID == id {
		m.selectedID = ""
		for other := range m.wallets {
			m.selectedID = other
			break
		}
	}
	return m.persist()
}

// Activate decrypts (if needed) and caches the signer for id in volatile
// memory, so subsequent payment attempts don't need the password again
// this process lifetime.
func (m *Manager) Activate(id, password string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.wallets[id]
	if !ok {
		return ErrNotFound
	}
	if _, already := m.unlocked[id]; already {
		return nil
	}

	switch w.Storage.Kind {
	case model.StoragePlaintext:
		key, err := crypto.HexToECDSA(w.Storage.PlainHex)
		if err != nil {
			return fmt.Errorf("parse stored key: %w", err)
		}
		m.unlocked[id] = key
		return nil
	case model.StorageEncrypted:
		if password == "" {
			return ErrPasswordNeeded
		}
		hexKey, err := decryptPrivateKey(w.Storage.Ciphertext, w.Storage.Salt, w.Storage.Nonce, password)
		if err != nil {
			return err
		}
		key, err := crypto.HexToECDSA(hexKey)
		if err != nil {
			return fmt.Errorf("parse decrypted key: %w", err)
		}
		m.unlocked[id] = key
		return nil
	default:
		return fmt.Errorf("unknown storage kind %d", w.Storage.Kind)
	}
}

// Deactivate drops the cached decrypted signer for id.
func (m *Manager) Deactivate(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.unlocked, id)
}

// Signer returns the cached decrypted key for id. A key added without a
// password is cached when it is added; any other key requires a prior
// Activate in this process.
func (m *Manager) Signer(id string) (*ecdsa.PrivateKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key, ok := m.unlocked[id]
	if !ok {
		return nil, ErrPasswordNeeded
	}
	return key, nil
}

// SelectedSigner returns the decrypted signer for the currently selected
// wallet.
func (m *Manager) SelectedSigner() (string, *ecdsa.PrivateKey, error) {
	m.mu.Lock()
	id := m.selectedID
	m.mu.Unlock()
	if id == "" {
		return "", nil, ErrNoSelection
	}
	key, err := m.Signer(id)
	return id, key, err
}

// ExportPrivateKey returns the hex-encoded private key for id, requiring the
// password when the wallet is encrypted (R1: import/export round-trips the
// same hex).
func (m *Manager) ExportPrivateKey(id, password string) (string, error) {
	m.mu.Lock()
	w, ok := m.wallets[id]
	m.mu.Unlock()
	if !ok {
		return "", ErrNotFound
	}
	switch w.Storage.Kind {
	case model.StoragePlaintext:
		return w.Storage.PlainHex, nil
	case model.StorageEncrypted:
		if password == "" {
			return "", ErrPasswordNeeded
		}
		return decryptPrivateKey(w.Storage.Ciphertext, w.Storage.Salt, w.Storage.Nonce, password)
	default:
		return "", fmt.Errorf("unknown storage kind %d", w.Storage.Kind)
	}
}

// SetPassword converts a plaintext-stored wallet to encrypted storage.
func (m *Manager) SetPassword(id, password string) error {
	if password == "" {
		return fmt.Errorf("password must not be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.wallets[id]
	if !ok {
		return ErrNotFound
	}
	var hexKey string
	switch w.Storage.Kind {
	case model.StoragePlaintext:
		hexKey = w.Storage.PlainHex
	case model.StorageEncrypted:
		return fmt.Errorf("wallet already password-protected")
	}
	ciphertext, salt, nonce, err := encryptPrivateKey(hexKey, password)
	if err != nil {
		return fmt.Errorf("encrypt private key: %w", err)
	}
	w.Storage = model.WalletStorage{Kind: model.StorageEncrypted, Ciphertext: ciphertext, Salt: salt, Nonce: nonce}
	m.wallets[id] = w
	return m.persist()
}

// RemovePassword converts an encrypted-storage wallet back to plaintext,
// given the correct password.
func (m *Manager) RemovePassword(id, password string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.wallets[id]
	if !ok {
		return ErrNotFound
	}
	if w.Storage.Kind != model.StorageEncrypted {
		return fmt.Errorf("wallet is not password-protected")
	}
	hexKey, err := decryptPrivateKey(w.Storage.Ciphertext, w.Storage.Salt, w.Storage.Nonce, password)
	if err != nil {
		return err
	}
	w.Storage = model.WalletStorage{Kind: model.StoragePlaintext, PlainHex: hexKey}
	m.wallets[id] = w
	return m.persist()
}
