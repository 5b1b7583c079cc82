// Package store defines the storage contract for the chat engine.
//
// A Store owns the authoritative account registry and the per-recipient
// mailboxes. Every domain operation is atomic with respect to the
// account it touches: implementations must guard an account's login
// flag and its mailbox as a single unit, because Enqueue reads the flag
// and mutates the mailbox in one step.
package store

import (
	"context"
	"time"
)

// Account is a registered chat account.
type Account struct {
	Username string `json:"username"`
	LoggedIn bool   `json:"logged_in"`
}

// Message is a stored chat message. ID is assigned by the store and is
// used for logging and events only; it never crosses the wire.
//
// RecipientLoggedIn is a snapshot of the recipient's login flag taken
// at enqueue time, under the recipient's lock. It is informational and
// is not updated afterwards.
type Message struct {
	ID                string `json:"id"`
	SenderUsername    string `json:"sender_username"`
	RecipientUsername string `json:"recipient_username"`
	Body              string `json:"message"`
	Time              int64  `json:"time"`
	Delivered         bool   `json:"delivered"`
	RecipientLoggedIn bool   `json:"recipient_logged_in"`
}

// MessageData is the input to Enqueue. The store stamps everything
// else (ID, Delivered, RecipientLoggedIn).
type MessageData struct {
	SenderUsername    string
	RecipientUsername string
	Body              string
	Time              int64
}

// MessageRef identifies a stored message by its wire-visible fields.
// Acknowledgment matches on all four; each ref removes at most one
// message.
type MessageRef struct {
	SenderUsername    string
	RecipientUsername string
	Body              string
	Time              int64
}

// Stats is a point-in-time summary of store contents.
type Stats struct {
	Accounts          int64 `json:"accounts"`
	LoggedIn          int64 `json:"logged_in"`
	PendingMessages   int64 `json:"pending_messages"`
	DeliveredMessages int64 `json:"delivered_messages"`
}

// Snapshot is a full copy of store state, used by the snapshot
// persisters to survive restarts.
type Snapshot struct {
	TakenAt  time.Time `json:"taken_at"`
	Accounts []Account `json:"accounts"`
	Messages []Message `json:"messages"`
}

// AccountStore manages the account registry and login state.
type AccountStore interface {
	// CreateAccount registers a new account, logged out.
	// Returns ErrDuplicateEntry if the username is taken.
	CreateAccount(ctx context.Context, username string) (Account, error)

	// GetAccount returns the current account record.
	GetAccount(ctx context.Context, username string) (Account, error)

	// Login marks the account logged in.
	// Returns ErrAlreadyLoggedIn if it already is.
	Login(ctx context.Context, username string) error

	// Logout marks the account logged out.
	// Returns ErrNotLoggedIn if it already is.
	Logout(ctx context.Context, username string) error

	// DeleteAccount removes the account and purges its mailbox,
	// returning how many messages were purged. Messages the account
	// sent to other recipients are left in place.
	DeleteAccount(ctx context.Context, username string) (int64, error)

	// ListAccounts returns every account. Order is unspecified.
	ListAccounts(ctx context.Context) ([]Account, error)
}

// MailboxStore manages per-recipient message queues.
type MailboxStore interface {
	// Enqueue appends a message to the recipient's mailbox, stamping
	// Delivered=false and RecipientLoggedIn from the recipient's
	// current flag. The message is inserted in Time order; equal
	// timestamps keep arrival order. Returns ErrNotFound if the
	// recipient does not exist and ErrMailboxFull at capacity.
	Enqueue(ctx context.Context, data MessageData) (Message, error)

	// DrainPending verifies that the recipient's login flag equals
	// loggedIn (ErrLoginStateMismatch otherwise), marks every pending
	// message delivered in place and returns them in order. Drained
	// messages stay in the mailbox until acknowledged.
	DrainPending(ctx context.Context, username string, loggedIn bool) ([]Message, error)

	// Acknowledge removes delivered messages matching the refs and
	// returns how many were removed. Refs that match nothing are
	// ignored, so retrying an acknowledgment is safe.
	Acknowledge(ctx context.Context, refs []MessageRef) (int64, error)

	// PendingCount returns the number of undelivered messages waiting
	// for the account.
	PendingCount(ctx context.Context, username string) (int64, error)
}

// SnapshotStore exports and imports full store state.
type SnapshotStore interface {
	// Snapshot returns a consistent copy of all accounts and messages.
	Snapshot(ctx context.Context) (*Snapshot, error)

	// Restore replaces store contents with the snapshot.
	Restore(ctx context.Context, snap *Snapshot) error
}

// Store is the complete storage contract.
type Store interface {
	// Connect initializes the store. Must be called before any other
	// operation; calling twice returns ErrAlreadyConnected.
	Connect(ctx context.Context) error

	// Close releases resources. Operations after Close return
	// ErrNotConnected.
	Close(ctx context.Context) error

	// Stats returns a point-in-time summary.
	Stats(ctx context.Context) (Stats, error)

	AccountStore
	MailboxStore
	SnapshotStore
}
