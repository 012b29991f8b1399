// Package sqlstore is the shared Postgres connection-pool and migration
// runner used by every SQL-backed component (registry, ledger, provider
// spend tracking), grounded on the teacher pack's database client.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"log"
	"sort"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

// Client wraps a connection-pooled *sql.DB with embedded-migration support.
type Client struct {
	db     *sql.DB
	logger *log.Logger
}

type Option func(*Client)

func WithLogger(logger *log.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// Open opens a Postgres connection pool at databaseURL.
func Open(ctx context.Context, databaseURL string, opts ...Option) (*Client, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL cannot be empty")
	}

	c := &Client{logger: log.New(log.Writer(), "[sqlstore] ", log.LstdFlags)}
	for _, opt := range opts {
		opt(c)
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(time.Hour)
	c.db = db

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return c, nil
}

func (c *Client) DB() *sql.DB { return c.db }

func (c *Client) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}

func (c *Client) Ping(ctx context.Context) error { return c.db.PingContext(ctx) }

type Migration struct {
	Version string
	SQL     string
}

// Migrate applies every *.sql file in fsys (typically an embed.FS holding a
// migrations/ directory; that prefix is stripped from each version) not yet
// recorded in schema_migrations, in version order.
func (c *Client) Migrate(ctx context.Context, fsys fs.FS) error {
	migrations, err := readMigrations(fsys)
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}

	applied, err := c.appliedMigrations(ctx)
	if err != nil {
		if !strings.Contains(err.Error(), "does not exist") {
			return fmt.Errorf("read applied migrations: %w", err)
		}
		applied = map[string]bool{}
	}

	for _, m := range migrations {
		if applied[m.Version] {
			continue
		}
		tx, err := c.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %s: %w", m.Version, err)
		}
		if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration %s: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", m.Version, err)
		}
		c.logger.Printf("applied migration %s", m.Version)
	}
	return nil
}

func readMigrations(fsys fs.FS) ([]Migration, error) {
	var migrations []Migration
	err := fs.WalkDir(fsys, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".sql") {
			return nil
		}
		content, err := fs.ReadFile(fsys, path)
		if err != nil {
			return err
		}
		version := strings.TrimSuffix(strings.TrimPrefix(path, "migrations/"), ".sql")
		migrations = append(migrations, Migration{Version: version, SQL: string(content)})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(migrations, func(i, j int) bool { return migrations[i].Version < migrations[j].Version })
	return migrations, nil
}

func (c *Client) appliedMigrations(ctx context.Context) (map[string]bool, error) {
	rows, err := c.db.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := map[string]bool{}
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}
	return applied, rows.Err()
}
