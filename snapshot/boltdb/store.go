// Package boltdb persists snapshots in a local bbolt file. It is the
// simplest durable backend: one bucket, one key, no external services.
package boltdb

import (
	"context"
	"fmt"
	"log/slog"

	bolt "go.etcd.io/bbolt"

	"chatman/snapshot"
	"chatman/store"
)

var (
	bucketName = []byte("snapshots")
	latestKey  = []byte("latest")
)

// Store is a bbolt-backed snapshot persister.
type Store struct {
	db     *bolt.DB
	logger *slog.Logger
}

// Ensure Store implements Persister.
var _ snapshot.Persister = (*Store)(nil)

// New opens (or creates) the database file at path.
func New(path string, opts ...Option) (*Store, error) {
	o := &options{logger: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}

	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("create snapshot bucket: %w", err)
	}

	return &Store{db: db, logger: o.logger}, nil
}

// Load returns the latest snapshot, or snapshot.ErrNoSnapshot if none
// was ever saved.
func (s *Store) Load(ctx context.Context) (*store.Snapshot, error) {
	var snap *store.Snapshot
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName)
		if b == nil {
			return snapshot.ErrNoSnapshot
		}
		data := b.Get(latestKey)
		if data == nil {
			return snapshot.ErrNoSnapshot
		}
		// Decode inside the transaction: the byte slice is only valid
		// while the transaction is open.
		decoded, err := snapshot.Unmarshal(data)
		if err != nil {
			return err
		}
		snap = decoded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// Save replaces the stored snapshot.
func (s *Store) Save(ctx context.Context, snap *store.Snapshot) error {
	data, err := snapshot.Marshal(snap)
	if err != nil {
		return err
	}
	if err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Put(latestKey, data)
	}); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	s.logger.Debug("snapshot written to bolt", "bytes", len(data))
	return nil
}

// Close closes the database file.
func (s *Store) Close(ctx context.Context) error {
	return s.db.Close()
}
