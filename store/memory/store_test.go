package memory

import (
	"context"
	"errors"
	"testing"

	"chatman/store"
)

// newConnected returns a connected store for tests.
func newConnected(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s := New(opts...)
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	return s
}

func TestConnectionState(t *testing.T) {
	ctx := context.Background()
	s := New()

	if _, err := s.CreateAccount(ctx, "alice"); !errors.Is(err, store.ErrNotConnected) {
		t.Errorf("expected ErrNotConnected before Connect, got %v", err)
	}

	if err := s.Connect(ctx); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	if err := s.Connect(ctx); !errors.Is(err, store.ErrAlreadyConnected) {
		t.Errorf("expected ErrAlreadyConnected, got %v", err)
	}

	if err := s.Close(ctx); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if err := s.Close(ctx); !errors.Is(err, store.ErrNotConnected) {
		t.Errorf("expected ErrNotConnected on double close, got %v", err)
	}

	// Contents survive a close/reconnect cycle.
	if err := s.Connect(ctx); err != nil {
		t.Fatalf("reconnect failed: %v", err)
	}
}

func TestAccountRegistry(t *testing.T) {
	ctx := context.Background()
	s := newConnected(t)

	t.Run("create and get", func(t *testing.T) {
		acct, err := s.CreateAccount(ctx, "alice")
		if err != nil {
			t.Fatalf("create failed: %v", err)
		}
		if acct.Username != "alice" || acct.LoggedIn {
			t.Errorf("unexpected account: %+v", acct)
		}

		got, err := s.GetAccount(ctx, "alice")
		if err != nil {
			t.Fatalf("get failed: %v", err)
		}
		if got != acct {
			t.Errorf("get mismatch: %+v vs %+v", got, acct)
		}
	})

	t.Run("duplicate create", func(t *testing.T) {
		if _, err := s.CreateAccount(ctx, "alice"); !store.IsDuplicateEntry(err) {
			t.Errorf("expected duplicate entry, got %v", err)
		}
	})

	t.Run("get unknown", func(t *testing.T) {
		if _, err := s.GetAccount(ctx, "ghost"); !store.IsNotFound(err) {
			t.Errorf("expected not found, got %v", err)
		}
	})

	t.Run("login transitions", func(t *testing.T) {
		if err := s.Login(ctx, "alice"); err != nil {
			t.Fatalf("login failed: %v", err)
		}
		if err := s.Login(ctx, "alice"); !errors.Is(err, store.ErrAlreadyLoggedIn) {
			t.Errorf("expected ErrAlreadyLoggedIn, got %v", err)
		}
		if err := s.Logout(ctx, "alice"); err != nil {
			t.Fatalf("logout failed: %v", err)
		}
		if err := s.Logout(ctx, "alice"); !errors.Is(err, store.ErrNotLoggedIn) {
			t.Errorf("expected ErrNotLoggedIn, got %v", err)
		}
	})

	t.Run("delete returns purge count", func(t *testing.T) {
		if _, err := s.CreateAccount(ctx, "bob"); err != nil {
			t.Fatalf("create failed: %v", err)
		}
		for i := 0; i < 3; i++ {
			if _, err := s.Enqueue(ctx, store.MessageData{
				SenderUsername:    "alice",
				RecipientUsername: "bob",
				Body:              "x",
				Time:              int64(i),
			}); err != nil {
				t.Fatalf("enqueue failed: %v", err)
			}
		}
		purged, err := s.DeleteAccount(ctx, "bob")
		if err != nil {
			t.Fatalf("delete failed: %v", err)
		}
		if purged != 3 {
			t.Errorf("expected 3 purged, got %d", purged)
		}
		if _, err := s.DeleteAccount(ctx, "bob"); !store.IsNotFound(err) {
			t.Errorf("expected not found on second delete, got %v", err)
		}
	})
}

func TestEnqueueOrdering(t *testing.T) {
	ctx := context.Background()
	s := newConnected(t)

	if _, err := s.CreateAccount(ctx, "bob"); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	// Insert out of order; the mailbox orders by Time.
	for _, tm := range []int64{30, 10, 20} {
		if _, err := s.Enqueue(ctx, store.MessageData{
			SenderUsername:    "alice",
			RecipientUsername: "bob",
			Body:              "msg",
			Time:              tm,
		}); err != nil {
			t.Fatalf("enqueue failed: %v", err)
		}
	}

	// Equal timestamps keep arrival order.
	for _, body := range []string{"tie-a", "tie-b"} {
		if _, err := s.Enqueue(ctx, store.MessageData{
			SenderUsername:    "alice",
			RecipientUsername: "bob",
			Body:              body,
			Time:              20,
		}); err != nil {
			t.Fatalf("enqueue failed: %v", err)
		}
	}

	msgs, err := s.DrainPending(ctx, "bob", false)
	if err != nil {
		t.Fatalf("drain failed: %v", err)
	}
	wantTimes := []int64{10, 20, 20, 20, 30}
	if len(msgs) != len(wantTimes) {
		t.Fatalf("expected %d messages, got %d", len(wantTimes), len(msgs))
	}
	for i, want := range wantTimes {
		if msgs[i].Time != want {
			t.Errorf("position %d: expected time %d, got %d", i, want, msgs[i].Time)
		}
	}
	if msgs[1].Body != "msg" || msgs[2].Body != "tie-a" || msgs[3].Body != "tie-b" {
		t.Errorf("tie order broken: %q %q %q", msgs[1].Body, msgs[2].Body, msgs[3].Body)
	}
}

func TestEnqueueSnapshotsLoginFlag(t *testing.T) {
	ctx := context.Background()
	s := newConnected(t)

	if _, err := s.CreateAccount(ctx, "bob"); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	msg, err := s.Enqueue(ctx, store.MessageData{
		SenderUsername: "alice", RecipientUsername: "bob", Body: "offline", Time: 1,
	})
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	if msg.RecipientLoggedIn {
		t.Error("expected snapshot flag false while logged out")
	}

	if err := s.Login(ctx, "bob"); err != nil {
		t.Fatalf("login failed: %v", err)
	}
	msg, err = s.Enqueue(ctx, store.MessageData{
		SenderUsername: "alice", RecipientUsername: "bob", Body: "online", Time: 2,
	})
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	if !msg.RecipientLoggedIn {
		t.Error("expected snapshot flag true while logged in")
	}
}

func TestMailboxCapacity(t *testing.T) {
	ctx := context.Background()
	s := newConnected(t, WithMaxMailboxSize(2))

	if _, err := s.CreateAccount(ctx, "bob"); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := s.Enqueue(ctx, store.MessageData{
			SenderUsername: "alice", RecipientUsername: "bob", Body: "fill", Time: int64(i),
		}); err != nil {
			t.Fatalf("enqueue %d failed: %v", i, err)
		}
	}
	_, err := s.Enqueue(ctx, store.MessageData{
		SenderUsername: "alice", RecipientUsername: "bob", Body: "overflow", Time: 9,
	})
	if !store.IsMailboxFull(err) {
		t.Errorf("expected mailbox full, got %v", err)
	}

	// Delivered messages still count against capacity until they are
	// acknowledged.
	if _, err := s.DrainPending(ctx, "bob", false); err != nil {
		t.Fatalf("drain failed: %v", err)
	}
	_, err = s.Enqueue(ctx, store.MessageData{
		SenderUsername: "alice", RecipientUsername: "bob", Body: "still full", Time: 10,
	})
	if !store.IsMailboxFull(err) {
		t.Errorf("expected mailbox full after drain, got %v", err)
	}
}

func TestDrainPending(t *testing.T) {
	ctx := context.Background()
	s := newConnected(t)

	if _, err := s.CreateAccount(ctx, "bob"); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	t.Run("login state must match", func(t *testing.T) {
		if _, err := s.DrainPending(ctx, "bob", true); !errors.Is(err, store.ErrLoginStateMismatch) {
			t.Errorf("expected ErrLoginStateMismatch, got %v", err)
		}
	})

	t.Run("unknown account", func(t *testing.T) {
		if _, err := s.DrainPending(ctx, "ghost", false); !store.IsNotFound(err) {
			t.Errorf("expected not found, got %v", err)
		}
	})

	t.Run("marks delivered in place", func(t *testing.T) {
		if _, err := s.Enqueue(ctx, store.MessageData{
			SenderUsername: "alice", RecipientUsername: "bob", Body: "one", Time: 1,
		}); err != nil {
			t.Fatalf("enqueue failed: %v", err)
		}

		msgs, err := s.DrainPending(ctx, "bob", false)
		if err != nil {
			t.Fatalf("drain failed: %v", err)
		}
		if len(msgs) != 1 || !msgs[0].Delivered {
			t.Fatalf("expected 1 delivered message, got %+v", msgs)
		}

		again, err := s.DrainPending(ctx, "bob", false)
		if err != nil {
			t.Fatalf("second drain failed: %v", err)
		}
		if len(again) != 0 {
			t.Errorf("expected empty second drain, got %d messages", len(again))
		}

		n, err := s.PendingCount(ctx, "bob")
		if err != nil {
			t.Fatalf("pending count failed: %v", err)
		}
		if n != 0 {
			t.Errorf("expected 0 pending, got %d", n)
		}
	})
}

func TestAcknowledge(t *testing.T) {
	ctx := context.Background()
	s := newConnected(t)

	if _, err := s.CreateAccount(ctx, "bob"); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	enqueue := func(body string, tm int64) store.Message {
		t.Helper()
		msg, err := s.Enqueue(ctx, store.MessageData{
			SenderUsername: "alice", RecipientUsername: "bob", Body: body, Time: tm,
		})
		if err != nil {
			t.Fatalf("enqueue failed: %v", err)
		}
		return msg
	}

	t.Run("each ref removes at most one", func(t *testing.T) {
		// Two identical messages, one ref: only one goes away.
		enqueue("dup", 5)
		enqueue("dup", 5)
		if _, err := s.DrainPending(ctx, "bob", false); err != nil {
			t.Fatalf("drain failed: %v", err)
		}

		ref := store.MessageRef{
			SenderUsername: "alice", RecipientUsername: "bob", Body: "dup", Time: 5,
		}
		removed, err := s.Acknowledge(ctx, []store.MessageRef{ref})
		if err != nil {
			t.Fatalf("acknowledge failed: %v", err)
		}
		if removed != 1 {
			t.Errorf("expected 1 removed, got %d", removed)
		}

		// The same ref again removes the twin.
		removed, err = s.Acknowledge(ctx, []store.MessageRef{ref})
		if err != nil {
			t.Fatalf("acknowledge failed: %v", err)
		}
		if removed != 1 {
			t.Errorf("expected 1 removed, got %d", removed)
		}

		// Nothing left to match.
		removed, err = s.Acknowledge(ctx, []store.MessageRef{ref})
		if err != nil {
			t.Fatalf("acknowledge failed: %v", err)
		}
		if removed != 0 {
			t.Errorf("expected 0 removed, got %d", removed)
		}
	})

	t.Run("undelivered not matched", func(t *testing.T) {
		msg := enqueue("pending", 7)
		removed, err := s.Acknowledge(ctx, []store.MessageRef{{
			SenderUsername:    msg.SenderUsername,
			RecipientUsername: msg.RecipientUsername,
			Body:              msg.Body,
			Time:              msg.Time,
		}})
		if err != nil {
			t.Fatalf("acknowledge failed: %v", err)
		}
		if removed != 0 {
			t.Errorf("undelivered message removed: %d", removed)
		}
	})

	t.Run("unknown recipient ignored", func(t *testing.T) {
		removed, err := s.Acknowledge(ctx, []store.MessageRef{{
			SenderUsername: "alice", RecipientUsername: "ghost", Body: "x", Time: 1,
		}})
		if err != nil {
			t.Fatalf("acknowledge failed: %v", err)
		}
		if removed != 0 {
			t.Errorf("expected 0 removed, got %d", removed)
		}
	})
}

func TestSnapshotRestore(t *testing.T) {
	ctx := context.Background()
	s := newConnected(t)

	if _, err := s.CreateAccount(ctx, "alice"); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := s.CreateAccount(ctx, "bob"); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := s.Login(ctx, "alice"); err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if _, err := s.Enqueue(ctx, store.MessageData{
		SenderUsername: "bob", RecipientUsername: "alice", Body: "hello", Time: 1,
	}); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	if _, err := s.DrainPending(ctx, "alice", true); err != nil {
		t.Fatalf("drain failed: %v", err)
	}
	if _, err := s.Enqueue(ctx, store.MessageData{
		SenderUsername: "bob", RecipientUsername: "alice", Body: "again", Time: 2,
	}); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	snap, err := s.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}
	if len(snap.Accounts) != 2 || len(snap.Messages) != 2 {
		t.Fatalf("unexpected snapshot shape: %d accounts, %d messages",
			len(snap.Accounts), len(snap.Messages))
	}
	if snap.TakenAt.IsZero() {
		t.Error("expected TakenAt to be stamped")
	}

	t.Run("round trip into fresh store", func(t *testing.T) {
		restored := newConnected(t)
		if err := restored.Restore(ctx, snap); err != nil {
			t.Fatalf("restore failed: %v", err)
		}

		acct, err := restored.GetAccount(ctx, "alice")
		if err != nil {
			t.Fatalf("get failed: %v", err)
		}
		if !acct.LoggedIn {
			t.Error("expected alice restored logged in")
		}

		// The delivered flag survives: only "again" is pending.
		n, err := restored.PendingCount(ctx, "alice")
		if err != nil {
			t.Fatalf("pending count failed: %v", err)
		}
		if n != 1 {
			t.Errorf("expected 1 pending after restore, got %d", n)
		}

		// The delivered copy is still acknowledgeable.
		removed, err := restored.Acknowledge(ctx, []store.MessageRef{{
			SenderUsername: "bob", RecipientUsername: "alice", Body: "hello", Time: 1,
		}})
		if err != nil {
			t.Fatalf("acknowledge failed: %v", err)
		}
		if removed != 1 {
			t.Errorf("expected 1 removed, got %d", removed)
		}
	})

	t.Run("rejects nil snapshot", func(t *testing.T) {
		fresh := newConnected(t)
		if err := fresh.Restore(ctx, nil); !errors.Is(err, store.ErrInvalidSnapshot) {
			t.Errorf("expected ErrInvalidSnapshot, got %v", err)
		}
	})

	t.Run("rejects duplicate accounts", func(t *testing.T) {
		fresh := newConnected(t)
		bad := &store.Snapshot{Accounts: []store.Account{
			{Username: "alice"}, {Username: "alice"},
		}}
		if err := fresh.Restore(ctx, bad); !errors.Is(err, store.ErrInvalidSnapshot) {
			t.Errorf("expected ErrInvalidSnapshot, got %v", err)
		}
	})

	t.Run("rejects orphan messages", func(t *testing.T) {
		fresh := newConnected(t)
		bad := &store.Snapshot{
			Accounts: []store.Account{{Username: "alice"}},
			Messages: []store.Message{{RecipientUsername: "ghost", Body: "x"}},
		}
		if err := fresh.Restore(ctx, bad); !errors.Is(err, store.ErrInvalidSnapshot) {
			t.Errorf("expected ErrInvalidSnapshot, got %v", err)
		}
	})
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	s := newConnected(t)

	for _, name := range []string{"alice", "bob"} {
		if _, err := s.CreateAccount(ctx, name); err != nil {
			t.Fatalf("create failed: %v", err)
		}
	}
	if err := s.Login(ctx, "alice"); err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if _, err := s.Enqueue(ctx, store.MessageData{
		SenderUsername: "bob", RecipientUsername: "alice", Body: "a", Time: 1,
	}); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	if _, err := s.Enqueue(ctx, store.MessageData{
		SenderUsername: "alice", RecipientUsername: "bob", Body: "b", Time: 2,
	}); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	if _, err := s.DrainPending(ctx, "alice", true); err != nil {
		t.Fatalf("drain failed: %v", err)
	}

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	want := store.Stats{Accounts: 2, LoggedIn: 1, PendingMessages: 1, DeliveredMessages: 1}
	if stats != want {
		t.Errorf("stats mismatch: got %+v, want %+v", stats, want)
	}
}
