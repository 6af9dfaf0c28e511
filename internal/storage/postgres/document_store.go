// Package postgres records completed documents in a Postgres ledger table.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/article-binder/internal/binder"
)

const defaultTable = "binder_documents"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// DocumentStoreConfig controls the Postgres connection pool used for ledger rows.
type DocumentStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// DocumentStore implements binder.Ledger.
type DocumentStore struct {
	pool  execCloser
	table string
}

// NewDocumentStore connects to Postgres using cfg.
func NewDocumentStore(ctx context.Context, cfg DocumentStoreConfig) (*DocumentStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("ledger.dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &DocumentStore{pool: pool, table: table}, nil
}

// NewDocumentStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewDocumentStoreWithPool(pool execCloser, table string) (*DocumentStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &DocumentStore{pool: pool, table: name}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Close releases the underlying pool resources.
func (s *DocumentStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// RecordDocument upserts a ledger row keyed by output path.
func (s *DocumentStore) RecordDocument(ctx context.Context, record binder.DocumentRecord) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("document store is not configured")
	}
	if record.OutputPath == "" {
		return fmt.Errorf("record output path is required")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	output_path,
	run_id,
	source_url,
	container,
	mirror_uri,
	pages,
	sha256,
	completed_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8
)
ON CONFLICT (output_path) DO UPDATE SET
	run_id = EXCLUDED.run_id,
	source_url = EXCLUDED.source_url,
	container = EXCLUDED.container,
	mirror_uri = EXCLUDED.mirror_uri,
	pages = EXCLUDED.pages,
	sha256 = EXCLUDED.sha256,
	completed_at = EXCLUDED.completed_at`, s.table)

	args := []any{
		record.OutputPath,
		record.RunID,
		record.SourceURL,
		record.Container,
		record.MirrorURI,
		record.Pages,
		record.SHA256,
		record.CompletedAt,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}
