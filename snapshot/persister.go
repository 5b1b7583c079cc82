// Package snapshot defines the durable persistence contract for the
// chat engine. The engine's authoritative state is in memory; a
// Persister only loads it at startup and saves copies of it while the
// engine runs. Backends live in the subpackages (boltdb, postgres,
// mongo, s3, gcs) and all store the same JSON encoding, so state
// written by one backend can be restored by another.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"chatman/store"
)

// ErrNoSnapshot is returned by Load when the backend holds no
// snapshot yet. The engine treats it as a fresh start.
var ErrNoSnapshot = errors.New("snapshot: no snapshot")

// Persister loads and saves full-state snapshots.
type Persister interface {
	// Load returns the most recent snapshot, or ErrNoSnapshot.
	Load(ctx context.Context) (*store.Snapshot, error)

	// Save durably stores snap, replacing any previous snapshot.
	Save(ctx context.Context, snap *store.Snapshot) error

	// Close releases backend resources.
	Close(ctx context.Context) error
}

// Marshal encodes a snapshot in the interchange format shared by all
// backends.
func Marshal(snap *store.Snapshot) ([]byte, error) {
	if snap == nil {
		return nil, fmt.Errorf("marshal snapshot: %w", store.ErrInvalidSnapshot)
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	return data, nil
}

// Unmarshal decodes a snapshot produced by Marshal.
func Unmarshal(data []byte) (*store.Snapshot, error) {
	var snap store.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &snap, nil
}
