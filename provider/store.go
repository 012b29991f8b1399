package provider

import (
	"context"
	"embed"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/hypergrid-io/hypergrid/internal/sqlstore"
)

// postgres unique_violation SQLSTATE code.
const pqUniqueViolation = "23505"

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLSpentTxStore is the SQL-backed spent_tx_hashes set, grounded on the
// same sqlstore pool+migration pattern as the Registry Store (C2) and USDC
// Ledger (C7).
type SQLSpentTxStore struct {
	client *sqlstore.Client
}

func OpenSpentTxStore(ctx context.Context, databaseURL string) (*SQLSpentTxStore, error) {
	client, err := sqlstore.Open(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	if err := client.Migrate(ctx, migrationsFS); err != nil {
		client.Close()
		return nil, fmt.Errorf("migrate spent tx store: %w", err)
	}
	return &SQLSpentTxStore{client: client}, nil
}

func (s *SQLSpentTxStore) Close() error { return s.client.Close() }

func (s *SQLSpentTxStore) IsSpent(ctx context.Context, txHash string) (bool, error) {
	var exists bool
	err := s.client.DB().QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM spent_tx_hashes WHERE tx_hash = $1)`, txHash).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check spent tx hash: %w", err)
	}
	return exists, nil
}

// MarkSpent inserts txHash, failing if it is already present — this must
// be called strictly before the upstream HTTP call (spec §4.9 step 6, §7
// at-most-once billing invariant).
func (s *SQLSpentTxStore) MarkSpent(ctx context.Context, txHash string) error {
	_, err := s.client.DB().ExecContext(ctx,
		`INSERT INTO spent_tx_hashes (tx_hash) VALUES ($1)`, txHash)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			return fmt.Errorf("tx hash %s already marked spent", txHash)
		}
		return fmt.Errorf("mark tx hash spent: %w", err)
	}
	return nil
}
