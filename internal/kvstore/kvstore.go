// Package kvstore is the durable key/value state store backing the
// operator's serialized wallet/authorization/indexer state (spec §5, §6
// "Persisted state: KV"). It wraps a CometBFT dbm.DB the same way
// certenIO's pkg/kvdb adapter wraps it for ledger checkpoint state, except
// here the wrapper also knows how to (de)serialize the specific JSON-shaped
// values the operator persists.
package kvstore

import (
	"encoding/json"
	"fmt"

	dbm "github.com/cometbft/cometbft-db"
)

// Well-known keys, matching spec §6 "Persisted state: KV" verbatim.
const (
	KeyManagedWallets     = "managed_wallets"
	KeySelectedWalletID   = "selected_wallet_id"
	KeyOperatorEntryName  = "operator_entry_name"
	KeyOperatorTBAAddress = "operator_tba_address"
	KeyAuthorizedClients  = "authorized_clients"
	KeySpendingCaches     = "spending_caches"
	KeyCallHistory        = "call_history"
	KeyLastCheckpoint     = "last_checkpoint_block"
	KeyRootHash           = "root_hash"
	KeyGaslessEnabled     = "gasless_enabled"
)

// Store is a thin typed wrapper over a dbm.DB.
type Store struct {
	db dbm.DB
}

// Open opens (creating if absent) a GoLevelDB-backed store at dir/name.
// GoLevelDB is chosen because it is already present transitively in the
// module graph (via cometbft-db) and needs no cgo, unlike bbolt.
func Open(dir, name string) (*Store, error) {
	db, err := dbm.NewGoLevelDB(name, dir)
	if err != nil {
		return nil, fmt.Errorf("open kv store: %w", err)
	}
	return &Store{db: db}, nil
}

// NewInMemory backs the store with an in-memory DB, for tests.
func NewInMemory() *Store {
	return &Store{db: dbm.NewMemDB()}
}

func (s *Store) Close() error { return s.db.Close() }

// Get returns the raw bytes for key, or nil if absent.
func (s *Store) Get(key string) ([]byte, error) {
	v, err := s.db.Get([]byte(key))
	if err != nil {
		return nil, err
	}
	return v, nil
}

// Set durably writes key=value.
func (s *Store) Set(key string, value []byte) error {
	return s.db.SetSync([]byte(key), value)
}

// Delete removes key.
func (s *Store) Delete(key string) error {
	return s.db.DeleteSync([]byte(key))
}

// GetJSON decodes the value at key into out. If the key is absent, out is
// left untouched and ok is false.
func (s *Store) GetJSON(key string, out interface{}) (ok bool, err error) {
	raw, err := s.Get(key)
	if err != nil {
		return false, err
	}
	if raw == nil {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

// SetJSON encodes value as JSON and durably writes it at key.
func (s *Store) SetJSON(key string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.Set(key, raw)
}
