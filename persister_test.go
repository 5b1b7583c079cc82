package chatman

import (
	"context"
	"sync"

	"chatman/snapshot"
	"chatman/store"
)

// memPersister keeps the latest snapshot in memory for tests.
type memPersister struct {
	mu    sync.Mutex
	saved *store.Snapshot
}

func newMemPersister() *memPersister {
	return &memPersister{}
}

func (p *memPersister) Load(ctx context.Context) (*store.Snapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.saved == nil {
		return nil, snapshot.ErrNoSnapshot
	}
	return p.saved, nil
}

func (p *memPersister) Save(ctx context.Context, snap *store.Snapshot) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.saved = snap
	return nil
}

func (p *memPersister) Close(ctx context.Context) error {
	return nil
}

var _ snapshot.Persister = (*memPersister)(nil)
