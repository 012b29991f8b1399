// Package registry is the Registry Store (C2): the durable table of
// providers assembled from Mint/Note events by the Chain Indexer (C1), and
// the read side consumed by the Call Dispatcher (C8) and the graph/status
// endpoints.
package registry

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/hypergrid-io/hypergrid/internal/model"
	"github.com/hypergrid-io/hypergrid/internal/sqlstore"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// allowedFactColumns is the fixed column set a Note may update (spec §3,
// §4.1): the leading '~' stripped and '-' replaced with '_'.
var allowedFactColumns = map[string]bool{
	"description":  true,
	"instructions": true,
	"price":        true,
	"wallet":       true,
	"provider_id":  true,
	"site":         true,
}

type Store struct {
	client *sqlstore.Client
}

func Open(ctx context.Context, databaseURL string) (*Store, error) {
	client, err := sqlstore.Open(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	if err := client.Migrate(ctx, migrationsFS); err != nil {
		client.Close()
		return nil, fmt.Errorf("migrate registry store: %w", err)
	}
	return &Store{client: client}, nil
}

func (s *Store) Close() error { return s.client.Close() }

// HasProvider reports whether a provider row exists for hash. Used by the
// Chain Indexer to decide whether to defer a Note.
func (s *Store) HasProvider(ctx context.Context, hash common.Hash) (bool, error) {
	var exists bool
	err := s.client.DB().QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM providers WHERE hash = $1)`, hash.Hex()).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check provider existence: %w", err)
	}
	return exists, nil
}

// InsertProvider installs a new provider row. Idempotent on hash: a
// re-processed Mint for an already-known hash is a no-op, matching spec
// §4.1's re-processing invariant.
func (s *Store) InsertProvider(ctx context.Context, parentHash, childHash common.Hash, name string) error {
	_, err := s.client.DB().ExecContext(ctx, `
		INSERT INTO providers (hash, parent_hash, name)
		VALUES ($1, $2, $3)
		ON CONFLICT (hash) DO NOTHING`,
		childHash.Hex(), parentHash.Hex(), name)
	if err != nil {
		return fmt.Errorf("insert provider %s: %w", childHash.Hex(), err)
	}
	return nil
}

// InsertProviderFacts updates one fact column on an existing provider row.
// It fails (rows affected == 0) when the provider hash isn't present yet —
// the signal the Chain Indexer uses to defer a Note whose provider hasn't
// been minted.
func (s *Store) InsertProviderFacts(ctx context.Context, providerHash common.Hash, key, value string) error {
	if !allowedFactColumns[key] {
		return fmt.Errorf("unknown fact column %q", key)
	}
	query := fmt.Sprintf(`UPDATE providers SET %s = $1, updated_at = now() WHERE hash = $2`, key)
	res, err := s.client.DB().ExecContext(ctx, query, value, providerHash.Hex())
	if err != nil {
		return fmt.Errorf("update provider fact %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected for fact %s: %w", key, err)
	}
	if n == 0 {
		return fmt.Errorf("provider %s not found for fact %s", providerHash.Hex(), key)
	}
	return nil
}

func scanProvider(row interface {
	Scan(dest ...interface{}) error
}) (model.Provider, error) {
	var p model.Provider
	var providerID, wallet, price, description, site, instructions sql.NullString
	err := row.Scan(&p.Hash, &p.ParentHash, &p.Name, &providerID, &wallet, &price, &description, &site, &instructions)
	if err != nil {
		return model.Provider{}, err
	}
	p.ProviderID = providerID.String
	p.Wallet = wallet.String
	p.Price = price.String
	p.Description = description.String
	p.Site = site.String
	p.Instructions = instructions.String
	return p, nil
}

const providerColumns = `hash, parent_hash, name, provider_id, wallet, price, description, site, instructions`

// GetProviderDetails resolves a provider by provider_id first, falling back
// to exact name match.
func (s *Store) GetProviderDetails(ctx context.Context, lookupKey string) (model.Provider, bool, error) {
	row := s.client.DB().QueryRowContext(ctx,
		`SELECT `+providerColumns+` FROM providers WHERE provider_id = $1 LIMIT 1`, lookupKey)
	p, err := scanProvider(row)
	if err == nil {
		return p, true, nil
	}
	if err != sql.ErrNoRows {
		return model.Provider{}, false, fmt.Errorf("lookup provider by provider_id: %w", err)
	}

	row = s.client.DB().QueryRowContext(ctx,
		`SELECT `+providerColumns+` FROM providers WHERE name = $1 LIMIT 1`, lookupKey)
	p, err = scanProvider(row)
	if err == nil {
		return p, true, nil
	}
	if err == sql.ErrNoRows {
		return model.Provider{}, false, nil
	}
	return model.Provider{}, false, fmt.Errorf("lookup provider by name: %w", err)
}

// Search returns providers whose name, provider_id, site or description
// contains q (case-insensitive substring), for the operator's /api/search.
func (s *Store) Search(ctx context.Context, q string) ([]model.Provider, error) {
	rows, err := s.client.DB().QueryContext(ctx, `
		SELECT `+providerColumns+` FROM providers
		WHERE name ILIKE '%' || $1 || '%'
		   OR provider_id ILIKE '%' || $1 || '%'
		   OR site ILIKE '%' || $1 || '%'
		   OR description ILIKE '%' || $1 || '%'
		ORDER BY name`, q)
	if err != nil {
		return nil, fmt.Errorf("search providers: %w", err)
	}
	defer rows.Close()

	var out []model.Provider
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, fmt.Errorf("scan provider row: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// All returns every provider, for the operator's /api/all.
func (s *Store) All(ctx context.Context) ([]model.Provider, error) {
	rows, err := s.client.DB().QueryContext(ctx, `SELECT `+providerColumns+` FROM providers ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list providers: %w", err)
	}
	defer rows.Close()

	var out []model.Provider
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, fmt.Errorf("scan provider row: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
