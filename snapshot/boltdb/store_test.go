package boltdb

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"chatman/snapshot"
	"chatman/store"
)

func TestBoltPersister(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "snapshots.db")

	s, err := New(path)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer s.Close(ctx)

	t.Run("load before any save", func(t *testing.T) {
		if _, err := s.Load(ctx); !errors.Is(err, snapshot.ErrNoSnapshot) {
			t.Errorf("expected ErrNoSnapshot, got %v", err)
		}
	})

	t.Run("save and load round trip", func(t *testing.T) {
		snap := &store.Snapshot{
			TakenAt: time.Now().UTC().Truncate(time.Millisecond),
			Accounts: []store.Account{
				{Username: "alice", LoggedIn: true},
				{Username: "bob"},
			},
			Messages: []store.Message{
				{
					ID:                "m1",
					SenderUsername:    "bob",
					RecipientUsername: "alice",
					Body:              "hello",
					Time:              42,
					Delivered:         true,
					RecipientLoggedIn: true,
				},
			},
		}
		if err := s.Save(ctx, snap); err != nil {
			t.Fatalf("save failed: %v", err)
		}

		loaded, err := s.Load(ctx)
		if err != nil {
			t.Fatalf("load failed: %v", err)
		}
		if len(loaded.Accounts) != 2 || len(loaded.Messages) != 1 {
			t.Fatalf("unexpected shape: %d accounts, %d messages",
				len(loaded.Accounts), len(loaded.Messages))
		}
		if loaded.Accounts[0] != snap.Accounts[0] {
			t.Errorf("account mismatch: %+v vs %+v", loaded.Accounts[0], snap.Accounts[0])
		}
		if loaded.Messages[0] != snap.Messages[0] {
			t.Errorf("message mismatch: %+v vs %+v", loaded.Messages[0], snap.Messages[0])
		}
		if !loaded.TakenAt.Equal(snap.TakenAt) {
			t.Errorf("taken_at mismatch: %v vs %v", loaded.TakenAt, snap.TakenAt)
		}
	})

	t.Run("second save replaces", func(t *testing.T) {
		if err := s.Save(ctx, &store.Snapshot{
			TakenAt:  time.Now().UTC(),
			Accounts: []store.Account{{Username: "carol"}},
		}); err != nil {
			t.Fatalf("save failed: %v", err)
		}
		loaded, err := s.Load(ctx)
		if err != nil {
			t.Fatalf("load failed: %v", err)
		}
		if len(loaded.Accounts) != 1 || loaded.Accounts[0].Username != "carol" {
			t.Errorf("expected replacement snapshot, got %+v", loaded.Accounts)
		}
	})

	t.Run("rejects nil snapshot", func(t *testing.T) {
		if err := s.Save(ctx, nil); !errors.Is(err, store.ErrInvalidSnapshot) {
			t.Errorf("expected ErrInvalidSnapshot, got %v", err)
		}
	})
}

func TestBoltPersisterSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "snapshots.db")

	s, err := New(path)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if err := s.Save(ctx, &store.Snapshot{
		TakenAt:  time.Now().UTC(),
		Accounts: []store.Account{{Username: "alice"}},
	}); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if err := s.Close(ctx); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	reopened, err := New(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close(ctx)

	loaded, err := reopened.Load(ctx)
	if err != nil {
		t.Fatalf("load after reopen failed: %v", err)
	}
	if len(loaded.Accounts) != 1 || loaded.Accounts[0].Username != "alice" {
		t.Errorf("expected persisted snapshot, got %+v", loaded.Accounts)
	}
}
