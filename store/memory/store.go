// Package memory provides the in-memory store implementation. It is
// the authoritative backend for the chat engine: accounts and
// mailboxes live here, and the snapshot persisters only load and save
// copies of its state.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"chatman/store"
)

// account couples the login flag with the mailbox under one lock.
// Enqueue reads the flag and mutates the mailbox as a single step, so
// the two must never be guarded separately.
type account struct {
	mu       sync.Mutex
	username string
	loggedIn bool
	mailbox  []*store.Message // ordered by Time, arrival order for ties
}

// insert places m in Time order, scanning from the tail so equal
// timestamps keep arrival order.
func (a *account) insert(m *store.Message) {
	i := len(a.mailbox)
	for i > 0 && a.mailbox[i-1].Time > m.Time {
		i--
	}
	a.mailbox = append(a.mailbox, nil)
	copy(a.mailbox[i+1:], a.mailbox[i:])
	a.mailbox[i] = m
}

// Store is an in-memory store.Store. The registry map is guarded by an
// RWMutex; every per-account operation holds the read lock for its
// full duration plus the account's own mutex, so CreateAccount,
// DeleteAccount, Restore and Snapshot can take the write lock and know
// no account operation is in flight.
type Store struct {
	connected  int32
	maxMailbox int

	mu       sync.RWMutex
	accounts map[string]*account
}

// New creates an in-memory store.
func New(opts ...Option) *Store {
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}
	return &Store{
		maxMailbox: options.maxMailboxSize,
		accounts:   make(map[string]*account),
	}
}

// Connect marks the store ready for use.
func (s *Store) Connect(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.connected, 0, 1) {
		return store.ErrAlreadyConnected
	}
	return nil
}

// Close marks the store disconnected. Contents are retained so a
// reconnect in tests sees the same state.
func (s *Store) Close(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.connected, 1, 0) {
		return store.ErrNotConnected
	}
	return nil
}

func (s *Store) checkConnected() error {
	if atomic.LoadInt32(&s.connected) != 1 {
		return store.ErrNotConnected
	}
	return nil
}

// CreateAccount registers username, logged out.
func (s *Store) CreateAccount(ctx context.Context, username string) (store.Account, error) {
	if err := s.checkConnected(); err != nil {
		return store.Account{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[username]; ok {
		return store.Account{}, fmt.Errorf("account %q: %w", username, store.ErrDuplicateEntry)
	}
	s.accounts[username] = &account{username: username}
	return store.Account{Username: username}, nil
}

// GetAccount returns the current record for username.
func (s *Store) GetAccount(ctx context.Context, username string) (store.Account, error) {
	if err := s.checkConnected(); err != nil {
		return store.Account{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	acct, ok := s.accounts[username]
	if !ok {
		return store.Account{}, fmt.Errorf("account %q: %w", username, store.ErrNotFound)
	}
	acct.mu.Lock()
	defer acct.mu.Unlock()
	return store.Account{Username: acct.username, LoggedIn: acct.loggedIn}, nil
}

// Login marks username logged in.
func (s *Store) Login(ctx context.Context, username string) error {
	return s.setLoggedIn(username, true)
}

// Logout marks username logged out.
func (s *Store) Logout(ctx context.Context, username string) error {
	return s.setLoggedIn(username, false)
}

func (s *Store) setLoggedIn(username string, loggedIn bool) error {
	if err := s.checkConnected(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	acct, ok := s.accounts[username]
	if !ok {
		return fmt.Errorf("account %q: %w", username, store.ErrNotFound)
	}
	acct.mu.Lock()
	defer acct.mu.Unlock()
	if acct.loggedIn == loggedIn {
		if loggedIn {
			return fmt.Errorf("account %q: %w", username, store.ErrAlreadyLoggedIn)
		}
		return fmt.Errorf("account %q: %w", username, store.ErrNotLoggedIn)
	}
	acct.loggedIn = loggedIn
	return nil
}

// DeleteAccount removes username and its mailbox. Messages username
// sent to other accounts stay where they are.
func (s *Store) DeleteAccount(ctx context.Context, username string) (int64, error) {
	if err := s.checkConnected(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.accounts[username]
	if !ok {
		return 0, fmt.Errorf("account %q: %w", username, store.ErrNotFound)
	}
	purged := int64(len(acct.mailbox))
	delete(s.accounts, username)
	return purged, nil
}

// ListAccounts returns every account, sorted by username.
func (s *Store) ListAccounts(ctx context.Context) ([]store.Account, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]store.Account, 0, len(s.accounts))
	for _, acct := range s.accounts {
		acct.mu.Lock()
		out = append(out, store.Account{Username: acct.username, LoggedIn: acct.loggedIn})
		acct.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

// Enqueue stores a message for data.RecipientUsername. The recipient's
// login flag is snapshotted under the same lock that guards the
// mailbox mutation.
func (s *Store) Enqueue(ctx context.Context, data store.MessageData) (store.Message, error) {
	if err := s.checkConnected(); err != nil {
		return store.Message{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	acct, ok := s.accounts[data.RecipientUsername]
	if !ok {
		return store.Message{}, fmt.Errorf("recipient %q: %w", data.RecipientUsername, store.ErrNotFound)
	}
	acct.mu.Lock()
	defer acct.mu.Unlock()
	if len(acct.mailbox) >= s.maxMailbox {
		return store.Message{}, fmt.Errorf("recipient %q: %w", data.RecipientUsername, store.ErrMailboxFull)
	}
	msg := &store.Message{
		ID:                uuid.NewString(),
		SenderUsername:    data.SenderUsername,
		RecipientUsername: data.RecipientUsername,
		Body:              data.Body,
		Time:              data.Time,
		Delivered:         false,
		RecipientLoggedIn: acct.loggedIn,
	}
	acct.insert(msg)
	return *msg, nil
}

// DrainPending marks every undelivered message for username delivered
// and returns them in mailbox order. The loggedIn assertion is checked
// against the account's flag under the account lock, so the set of
// messages returned is exactly the pending set at that moment.
func (s *Store) DrainPending(ctx context.Context, username string, loggedIn bool) ([]store.Message, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	acct, ok := s.accounts[username]
	if !ok {
		return nil, fmt.Errorf("account %q: %w", username, store.ErrNotFound)
	}
	acct.mu.Lock()
	defer acct.mu.Unlock()
	if acct.loggedIn != loggedIn {
		return nil, fmt.Errorf("account %q: %w", username, store.ErrLoginStateMismatch)
	}
	var drained []store.Message
	for _, m := range acct.mailbox {
		if m.Delivered {
			continue
		}
		m.Delivered = true
		drained = append(drained, *m)
	}
	return drained, nil
}

// Acknowledge removes delivered messages matching refs. Each ref
// removes at most one message; refs that match nothing (unknown
// recipient included) are ignored.
func (s *Store) Acknowledge(ctx context.Context, refs []store.MessageRef) (int64, error) {
	if err := s.checkConnected(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var removed int64
	for _, ref := range refs {
		acct, ok := s.accounts[ref.RecipientUsername]
		if !ok {
			continue
		}
		acct.mu.Lock()
		for i, m := range acct.mailbox {
			if !m.Delivered ||
				m.SenderUsername != ref.SenderUsername ||
				m.Body != ref.Body ||
				m.Time != ref.Time {
				continue
			}
			acct.mailbox = append(acct.mailbox[:i], acct.mailbox[i+1:]...)
			removed++
			break
		}
		acct.mu.Unlock()
	}
	return removed, nil
}

// PendingCount returns the number of undelivered messages waiting for
// username.
func (s *Store) PendingCount(ctx context.Context, username string) (int64, error) {
	if err := s.checkConnected(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	acct, ok := s.accounts[username]
	if !ok {
		return 0, fmt.Errorf("account %q: %w", username, store.ErrNotFound)
	}
	acct.mu.Lock()
	defer acct.mu.Unlock()
	var n int64
	for _, m := range acct.mailbox {
		if !m.Delivered {
			n++
		}
	}
	return n, nil
}

// Stats summarizes store contents.
func (s *Store) Stats(ctx context.Context) (store.Stats, error) {
	if err := s.checkConnected(); err != nil {
		return store.Stats{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var stats store.Stats
	for _, acct := range s.accounts {
		acct.mu.Lock()
		stats.Accounts++
		if acct.loggedIn {
			stats.LoggedIn++
		}
		for _, m := range acct.mailbox {
			if m.Delivered {
				stats.DeliveredMessages++
			} else {
				stats.PendingMessages++
			}
		}
		acct.mu.Unlock()
	}
	return stats, nil
}

// Snapshot returns a consistent copy of all state. The registry write
// lock excludes every in-flight operation, so the copy is atomic.
func (s *Store) Snapshot(ctx context.Context) (*store.Snapshot, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := &store.Snapshot{TakenAt: time.Now().UTC()}
	usernames := make([]string, 0, len(s.accounts))
	for name := range s.accounts {
		usernames = append(usernames, name)
	}
	sort.Strings(usernames)
	for _, name := range usernames {
		acct := s.accounts[name]
		snap.Accounts = append(snap.Accounts, store.Account{Username: acct.username, LoggedIn: acct.loggedIn})
		for _, m := range acct.mailbox {
			snap.Messages = append(snap.Messages, *m)
		}
	}
	return snap, nil
}

// Restore replaces store contents with snap. Messages are appended in
// snapshot order, which Snapshot already emits in mailbox order.
func (s *Store) Restore(ctx context.Context, snap *store.Snapshot) error {
	if err := s.checkConnected(); err != nil {
		return err
	}
	if snap == nil {
		return fmt.Errorf("nil snapshot: %w", store.ErrInvalidSnapshot)
	}
	accounts := make(map[string]*account, len(snap.Accounts))
	for _, a := range snap.Accounts {
		if _, ok := accounts[a.Username]; ok {
			return fmt.Errorf("duplicate account %q: %w", a.Username, store.ErrInvalidSnapshot)
		}
		accounts[a.Username] = &account{username: a.Username, loggedIn: a.LoggedIn}
	}
	for _, m := range snap.Messages {
		acct, ok := accounts[m.RecipientUsername]
		if !ok {
			return fmt.Errorf("message for unknown account %q: %w", m.RecipientUsername, store.ErrInvalidSnapshot)
		}
		msg := m
		if msg.ID == "" {
			msg.ID = uuid.NewString()
		}
		acct.mailbox = append(acct.mailbox, &msg)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts = accounts
	return nil
}

// Compile-time check
var _ store.Store = (*Store)(nil)
