// Package mongo persists snapshots in a MongoDB collection, one
// document per snapshot key.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	mongoopts "go.mongodb.org/mongo-driver/v2/mongo/options"

	"chatman/snapshot"
	"chatman/store"
)

// document is the stored snapshot shape. State carries the shared JSON
// interchange encoding so the payload is portable across backends.
type document struct {
	ID      string    `bson:"_id"`
	TakenAt time.Time `bson:"taken_at"`
	State   []byte    `bson:"state"`
}

// Store is a MongoDB-backed snapshot persister.
type Store struct {
	client     *mongo.Client
	database   string
	collection string
	key        string
	timeout    time.Duration
	logger     *slog.Logger
}

// Ensure Store implements Persister.
var _ snapshot.Persister = (*Store)(nil)

// New creates a snapshot store on client, pinging the deployment. The
// client stays owned by the caller; Close does not disconnect it.
func New(ctx context.Context, client *mongo.Client, opts ...Option) (*Store, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	if client == nil {
		return nil, fmt.Errorf("mongo snapshot store: client is required")
	}

	pingCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	return &Store{
		client:     client,
		database:   o.database,
		collection: o.collection,
		key:        o.key,
		timeout:    o.timeout,
		logger:     o.logger,
	}, nil
}

func (s *Store) coll() *mongo.Collection {
	return s.client.Database(s.database).Collection(s.collection)
}

// Load returns the snapshot stored under this store's key, or
// snapshot.ErrNoSnapshot.
func (s *Store) Load(ctx context.Context) (*store.Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var doc document
	if err := s.coll().FindOne(ctx, bson.M{"_id": s.key}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, snapshot.ErrNoSnapshot
		}
		return nil, fmt.Errorf("find snapshot: %w", err)
	}
	return snapshot.Unmarshal(doc.State)
}

// Save upserts the snapshot document.
func (s *Store) Save(ctx context.Context, snap *store.Snapshot) error {
	data, err := snapshot.Marshal(snap)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	doc := document{ID: s.key, TakenAt: snap.TakenAt.UTC(), State: data}
	_, err = s.coll().ReplaceOne(ctx, bson.M{"_id": s.key}, doc, mongoopts.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("upsert snapshot: %w", err)
	}
	s.logger.Debug("snapshot written to mongo",
		"database", s.database, "collection", s.collection, "bytes", len(data))
	return nil
}

// Close is a no-op; the caller owns the client.
func (s *Store) Close(ctx context.Context) error {
	return nil
}
