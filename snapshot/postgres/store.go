// Package postgres persists snapshots in a PostgreSQL table. Each
// engine instance upserts one row keyed by a snapshot ID, so several
// engines can share a database with distinct keys.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"chatman/snapshot"
	"chatman/store"
)

// Store is a PostgreSQL-backed snapshot persister.
type Store struct {
	db     *sqlx.DB
	table  string
	key    string
	logger *slog.Logger
}

// Ensure Store implements Persister.
var _ snapshot.Persister = (*Store)(nil)

// New creates a snapshot store on db, pinging the database and
// creating the snapshot table if needed. The *sqlx.DB stays owned by
// the caller; Close does not close it.
func New(ctx context.Context, db *sqlx.DB, opts ...Option) (*Store, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	if db == nil {
		return nil, fmt.Errorf("postgres snapshot store: db is required")
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &Store{
		db:     db,
		table:  o.table,
		key:    o.key,
		logger: o.logger,
	}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return s, nil
}

// NewFromDB wraps an existing *sql.DB opened with the pq driver.
func NewFromDB(ctx context.Context, db *sql.DB, opts ...Option) (*Store, error) {
	return New(ctx, sqlx.NewDb(db, "postgres"), opts...)
}

func (s *Store) ensureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id       TEXT PRIMARY KEY,
			taken_at TIMESTAMPTZ NOT NULL,
			state    JSONB NOT NULL
		)`, s.table)
	_, err := s.db.ExecContext(ctx, query)
	return err
}

// Load returns the snapshot stored under this store's key, or
// snapshot.ErrNoSnapshot.
func (s *Store) Load(ctx context.Context) (*store.Snapshot, error) {
	var data []byte
	query := fmt.Sprintf("SELECT state FROM %s WHERE id = $1", s.table)
	if err := s.db.GetContext(ctx, &data, query, s.key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, snapshot.ErrNoSnapshot
		}
		return nil, fmt.Errorf("select snapshot: %w", err)
	}
	return snapshot.Unmarshal(data)
}

// Save upserts the snapshot row.
func (s *Store) Save(ctx context.Context, snap *store.Snapshot) error {
	data, err := snapshot.Marshal(snap)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (id, taken_at, state)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE
		SET taken_at = EXCLUDED.taken_at, state = EXCLUDED.state`, s.table)
	if _, err := s.db.ExecContext(ctx, query, s.key, snap.TakenAt.UTC(), data); err != nil {
		return fmt.Errorf("upsert snapshot: %w", err)
	}
	s.logger.Debug("snapshot written to postgres", "table", s.table, "key", s.key, "bytes", len(data))
	return nil
}

// Close is a no-op; the caller owns the database handle.
func (s *Store) Close(ctx context.Context) error {
	return nil
}
