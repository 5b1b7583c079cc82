package store

import "errors"

// Sentinel errors returned by Store implementations. Callers should
// test with errors.Is; implementations may wrap these with context.
var (
	// ErrNotFound indicates the requested account does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateEntry indicates the username is already registered.
	ErrDuplicateEntry = errors.New("duplicate entry")

	// ErrAlreadyLoggedIn indicates a login for an account that is
	// already logged in.
	ErrAlreadyLoggedIn = errors.New("already logged in")

	// ErrNotLoggedIn indicates a logout for an account that is not
	// logged in.
	ErrNotLoggedIn = errors.New("not logged in")

	// ErrLoginStateMismatch indicates the caller's asserted login
	// state does not match the account's actual state.
	ErrLoginStateMismatch = errors.New("login state mismatch")

	// ErrMailboxFull indicates the recipient's mailbox is at capacity.
	ErrMailboxFull = errors.New("mailbox full")

	// ErrNotConnected indicates the store is not connected.
	ErrNotConnected = errors.New("not connected")

	// ErrAlreadyConnected indicates Connect was called twice.
	ErrAlreadyConnected = errors.New("already connected")

	// ErrInvalidSnapshot indicates a snapshot that cannot be restored.
	ErrInvalidSnapshot = errors.New("invalid snapshot")
)

// IsNotFound reports whether err is ErrNotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsDuplicateEntry reports whether err is ErrDuplicateEntry.
func IsDuplicateEntry(err error) bool { return errors.Is(err, ErrDuplicateEntry) }

// IsMailboxFull reports whether err is ErrMailboxFull.
func IsMailboxFull(err error) bool { return errors.Is(err, ErrMailboxFull) }
