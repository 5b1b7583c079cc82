package chatman

import (
	"errors"
	"fmt"

	"chatman/store"
)

// Sentinel errors for the chatman package.
// Use errors.Is() to check for these errors.
//
// These wrap the corresponding store-level errors where applicable, so
// errors.Is(err, chatman.ErrNotFound) matches both engine-level and
// store-level "not found" errors.
var (
	// ErrNotFound is returned when the named account does not exist.
	// Wraps store.ErrNotFound for consistent error checking.
	ErrNotFound = fmt.Errorf("chatman: %w", store.ErrNotFound)

	// ErrAccountExists is returned when creating an account whose
	// username is taken. Wraps store.ErrDuplicateEntry.
	ErrAccountExists = fmt.Errorf("chatman: %w", store.ErrDuplicateEntry)

	// ErrAlreadyLoggedIn is returned when logging in an account that
	// is already logged in. Wraps store.ErrAlreadyLoggedIn.
	ErrAlreadyLoggedIn = fmt.Errorf("chatman: %w", store.ErrAlreadyLoggedIn)

	// ErrNotLoggedIn is returned when logging out an account that is
	// not logged in. Wraps store.ErrNotLoggedIn.
	ErrNotLoggedIn = fmt.Errorf("chatman: %w", store.ErrNotLoggedIn)

	// ErrRecipientNotFound is returned by Send when the recipient
	// account does not exist. Distinct from ErrNotFound so callers can
	// tell a bad recipient from a bad sender.
	ErrRecipientNotFound = errors.New("chatman: recipient not found")

	// ErrLoginStateMismatch is returned by Deliver when the caller's
	// asserted login state disagrees with the server's.
	// Wraps store.ErrLoginStateMismatch.
	ErrLoginStateMismatch = fmt.Errorf("chatman: %w", store.ErrLoginStateMismatch)

	// ErrMailboxFull is returned by Send when the recipient's mailbox
	// is at capacity. Wraps store.ErrMailboxFull.
	ErrMailboxFull = fmt.Errorf("chatman: %w", store.ErrMailboxFull)

	// ErrInvalidUsername is returned when a username is empty or
	// contains disallowed characters.
	ErrInvalidUsername = errors.New("chatman: invalid username")

	// ErrMessageTooLong is returned when a message body exceeds the
	// configured maximum length.
	ErrMessageTooLong = errors.New("chatman: message too long")

	// ErrStoreRequired is returned when no store is configured.
	ErrStoreRequired = errors.New("chatman: store is required")

	// ErrNotConnected is returned when operations are attempted before
	// Connect(). Wraps store.ErrNotConnected.
	ErrNotConnected = fmt.Errorf("chatman: %w", store.ErrNotConnected)

	// ErrAlreadyConnected is returned when Connect() is called twice.
	// Wraps store.ErrAlreadyConnected.
	ErrAlreadyConnected = fmt.Errorf("chatman: %w", store.ErrAlreadyConnected)
)

// Stable wire texts for the RPC error field. The empty string means
// success, so no error may map to "".
const (
	wireAccountExists      = "account already exists"
	wireAccountNotFound    = "account does not exist"
	wireAlreadyLoggedIn    = "account is already logged in"
	wireNotLoggedIn        = "account is not logged in"
	wireRecipientNotFound  = "recipient account does not exist"
	wireLoginStateMismatch = "login state mismatch"
	wireMailboxFull        = "recipient mailbox is full"
	wireInvalidUsername    = "invalid username"
	wireMessageTooLong     = "message too long"
	wireInternal           = "internal error"
)

// WireString serializes err for the RPC boundary: the empty string for
// nil, a stable human-readable text for each sentinel, and a catch-all
// for everything else so internal details never leak onto the wire.
func WireString(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrRecipientNotFound):
		return wireRecipientNotFound
	case errors.Is(err, store.ErrDuplicateEntry):
		return wireAccountExists
	case errors.Is(err, store.ErrAlreadyLoggedIn):
		return wireAlreadyLoggedIn
	case errors.Is(err, store.ErrNotLoggedIn):
		return wireNotLoggedIn
	case errors.Is(err, store.ErrLoginStateMismatch):
		return wireLoginStateMismatch
	case errors.Is(err, store.ErrMailboxFull):
		return wireMailboxFull
	case errors.Is(err, store.ErrNotFound):
		return wireAccountNotFound
	case errors.Is(err, ErrInvalidUsername):
		return wireInvalidUsername
	case errors.Is(err, ErrMessageTooLong):
		return wireMessageTooLong
	default:
		return wireInternal
	}
}

// EventPublishError is returned when event publishing fails while
// WithEventErrorsFatal(true) is set. The underlying operation already
// succeeded; only the notification failed.
type EventPublishError struct {
	Event string // event name, e.g. "MessageQueued"
	Err   error  // underlying publish error
}

func (e *EventPublishError) Error() string {
	return fmt.Sprintf("chatman: event %s publish failed: %v", e.Event, e.Err)
}

func (e *EventPublishError) Unwrap() error {
	return e.Err
}

// IsEventPublishError checks if the error is an event publish error
// and returns details. Useful when eventErrorsFatal=true but you still
// want to know the operation itself succeeded.
func IsEventPublishError(err error) (*EventPublishError, bool) {
	var epe *EventPublishError
	if errors.As(err, &epe) {
		return epe, true
	}
	return nil, false
}
