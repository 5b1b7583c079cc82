package chatman

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/rbaliyan/event/v3"
	"github.com/rbaliyan/event/v3/transport/noop"
	eventredis "github.com/rbaliyan/event/v3/transport/redis"
	"golang.org/x/sync/semaphore"

	"chatman/retry"
	"chatman/snapshot"
	"chatman/store"
)

// Type aliases for commonly used store types.
// These allow users to work with the chatman package without importing
// store directly.
type (
	Account    = store.Account
	Message    = store.Message
	MessageRef = store.MessageRef
	Stats      = store.Stats
)

// SendRequest contains the data needed to send a message.
type SendRequest struct {
	SenderUsername    string
	RecipientUsername string
	Body              string
}

// DeliverRequest asks for the recipient's pending messages. LoggedIn
// is the client's view of its own session; the engine verifies it
// against the account's actual flag before handing anything over, so a
// client with a stale session cannot drain a mailbox.
type DeliverRequest struct {
	Username string
	LoggedIn bool
}

// Refs converts delivered messages into acknowledgment refs.
func Refs(msgs []Message) []MessageRef {
	refs := make([]MessageRef, 0, len(msgs))
	for _, m := range msgs {
		refs = append(refs, MessageRef{
			SenderUsername:    m.SenderUsername,
			RecipientUsername: m.RecipientUsername,
			Body:              m.Body,
			Time:              m.Time,
		})
	}
	return refs
}

// ServiceHealth provides health and state information about the service.
type ServiceHealth interface {
	// IsConnected returns true if the service is connected and ready.
	IsConnected() bool
}

// AccountService manages the account registry.
type AccountService interface {
	// CreateAccount registers a new account, logged out.
	CreateAccount(ctx context.Context, username string) (Account, error)
	// LogIn marks the account logged in.
	LogIn(ctx context.Context, username string) error
	// LogOut marks the account logged out.
	LogOut(ctx context.Context, username string) error
	// DeleteAccount removes the account and purges its mailbox.
	DeleteAccount(ctx context.Context, username string) error
	// ListAccounts returns accounts whose usernames match the wildcard
	// pattern (see Match). An empty pattern returns every account.
	ListAccounts(ctx context.Context, pattern string) ([]Account, error)
}

// MessageService moves messages through the mailbox lifecycle:
// queued by Send, handed over by Deliver, removed by Acknowledge.
type MessageService interface {
	// Send queues a message in the recipient's mailbox.
	Send(ctx context.Context, req SendRequest) (Message, error)
	// Deliver drains the recipient's pending messages, marking them
	// delivered. Delivered messages are retained until acknowledged.
	Deliver(ctx context.Context, req DeliverRequest) ([]Message, error)
	// Acknowledge removes delivered messages. Unknown refs are
	// ignored, so retries are safe.
	Acknowledge(ctx context.Context, refs []MessageRef) (int64, error)
	// PendingCount returns how many undelivered messages wait for the
	// account.
	PendingCount(ctx context.Context, username string) (int64, error)
}

// Service is the chat engine (server-side).
//
// Composed of:
//   - ServiceHealth: health and state queries (IsConnected)
//   - AccountService: account registry operations
//   - MessageService: send / deliver / acknowledge
type Service interface {
	ServiceHealth
	AccountService
	MessageService

	// Connect initializes the store, restores the latest snapshot when
	// a persister is configured, and starts background workers.
	Connect(ctx context.Context) error
	// Close drains in-flight operations, saves a final snapshot and
	// closes all backends.
	Close(ctx context.Context) error
	// Stats returns a point-in-time summary of engine state.
	Stats(ctx context.Context) (Stats, error)
	// Events returns per-service event instances for subscribing and
	// publishing. Each service has its own events bound to its own
	// event bus, enabling independent routing and parallel testing.
	Events() *ServiceEvents
}

// Connection states for the service.
const (
	stateDisconnected int32 = 0
	stateConnecting   int32 = 1
	stateConnected    int32 = 2
)

// snapshotSaveTimeout bounds a single background snapshot save.
const snapshotSaveTimeout = 30 * time.Second

// service is the default implementation of Service.
type service struct {
	store     store.Store
	persister snapshot.Persister
	logger    *slog.Logger
	opts      *options
	state     int32 // stateDisconnected, stateConnecting, or stateConnected
	otel      *otelInstrumentation
	sendSem   *semaphore.Weighted // limits concurrent sends
	eventBus  *event.Bus
	events    *ServiceEvents

	snapStop chan struct{} // closed by Close to stop the snapshot loop
	snapDone chan struct{} // closed by the snapshot loop on exit
}

// NewService creates a new chat engine.
// Call Connect() to initialize backends.
func NewService(opts ...Option) (Service, error) {
	o := newOptions(opts...)

	if o.store == nil {
		return nil, ErrStoreRequired
	}

	otelInstr, err := newOtelInstrumentation(o)
	if err != nil {
		return nil, fmt.Errorf("init otel: %w", err)
	}

	return &service{
		store:     o.store,
		persister: o.persister,
		logger:    o.logger,
		opts:      o,
		otel:      otelInstr,
		sendSem:   semaphore.NewWeighted(int64(o.maxConcurrentSends)),
	}, nil
}

// Events returns per-service event instances for subscribing and publishing.
func (s *service) Events() *ServiceEvents {
	return s.events
}

// IsConnected returns true if the service is connected and ready.
func (s *service) IsConnected() bool {
	return atomic.LoadInt32(&s.state) == stateConnected
}

// Connect initializes the store, restores persisted state and starts
// the background snapshot loop.
func (s *service) Connect(ctx context.Context) error {
	// Three-state transition keeps operations from seeing partial
	// initialization: stateDisconnected -> stateConnecting -> stateConnected.
	if !atomic.CompareAndSwapInt32(&s.state, stateDisconnected, stateConnecting) {
		return ErrAlreadyConnected
	}

	// Reset to disconnected on failure, set to connected on success.
	success := false
	defer func() {
		if success {
			atomic.StoreInt32(&s.state, stateConnected)
		} else {
			atomic.StoreInt32(&s.state, stateDisconnected)
		}
	}()

	if err := s.store.Connect(ctx); err != nil {
		return fmt.Errorf("connect store: %w", err)
	}

	if err := s.restoreSnapshot(ctx); err != nil {
		s.store.Close(ctx)
		return fmt.Errorf("restore snapshot: %w", err)
	}

	if err := s.initEventBus(ctx); err != nil {
		s.store.Close(ctx)
		return fmt.Errorf("init event bus: %w", err)
	}

	if s.persister != nil && s.opts.snapshotInterval > 0 {
		s.snapStop = make(chan struct{})
		s.snapDone = make(chan struct{})
		go s.snapshotLoop(s.opts.snapshotInterval)
	}

	success = true
	s.logger.Info("chat engine connected")
	return nil
}

// snapshotRetry bounds retries around persister calls. ErrNoSnapshot
// is terminal: an empty backend will stay empty no matter how often we
// ask.
var snapshotRetry = retry.Config{
	MaxRetries:     2,
	InitialBackoff: 250 * time.Millisecond,
	IsRetryable: func(err error) bool {
		return !errors.Is(err, snapshot.ErrNoSnapshot) &&
			!errors.Is(err, store.ErrInvalidSnapshot)
	},
}

// restoreSnapshot loads persisted state into the store, if any.
func (s *service) restoreSnapshot(ctx context.Context) error {
	if s.persister == nil {
		return nil
	}
	var snap *store.Snapshot
	err := retry.Do(ctx, snapshotRetry, func(ctx context.Context) error {
		var loadErr error
		snap, loadErr = s.persister.Load(ctx)
		return loadErr
	})
	if err != nil {
		if errors.Is(err, snapshot.ErrNoSnapshot) {
			s.logger.Info("no snapshot found, starting fresh")
			return nil
		}
		return err
	}
	if err := s.store.Restore(ctx, snap); err != nil {
		return err
	}
	s.logger.Info("snapshot restored",
		"taken_at", snap.TakenAt,
		"accounts", len(snap.Accounts),
		"messages", len(snap.Messages),
	)
	return nil
}

// busCounter generates unique suffixes for event bus names.
var busCounter int64

// initEventBus initializes the event bus for this service. Each
// service creates its own bus with a unique name, so multiple engines
// can run in one process (and in parallel tests).
func (s *service) initEventBus(ctx context.Context) error {
	serviceName := s.opts.serviceName
	if serviceName == "" {
		serviceName = "chatman"
	}
	busName := fmt.Sprintf("%s-%d", serviceName, atomic.AddInt64(&busCounter, 1))

	var bus *event.Bus
	var err error

	switch {
	case s.opts.eventTransport != nil:
		s.logger.Info("initializing event bus with custom transport")
		bus, err = event.NewBus(busName, event.WithTransport(s.opts.eventTransport))
	case s.opts.redisClient != nil:
		s.logger.Info("initializing event bus with Redis transport")
		t, transportErr := eventredis.New(s.opts.redisClient)
		if transportErr != nil {
			return fmt.Errorf("create redis transport: %w", transportErr)
		}
		bus, err = event.NewBus(busName, event.WithTransport(t))
	default:
		s.logger.Debug("initializing event bus with noop transport")
		bus, err = event.NewBus(busName, event.WithTransport(noop.New()))
	}

	if err != nil {
		return fmt.Errorf("create event bus: %w", err)
	}
	s.eventBus = bus

	s.events = newServiceEvents(busName)
	if err := registerServiceEvents(ctx, bus, s.events); err != nil {
		bus.Close(ctx)
		return fmt.Errorf("register service events: %w", err)
	}

	return nil
}

// snapshotLoop saves a snapshot every interval until Close.
func (s *service) snapshotLoop(interval time.Duration) {
	defer close(s.snapDone)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.snapStop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), snapshotSaveTimeout)
			if err := s.saveSnapshot(ctx); err != nil {
				s.logger.Error("periodic snapshot save failed", "error", err)
			}
			cancel()
		}
	}
}

// saveSnapshot exports store state and hands it to the persister.
func (s *service) saveSnapshot(ctx context.Context) error {
	snap, err := s.store.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("export state: %w", err)
	}
	err = retry.Do(ctx, snapshotRetry, func(ctx context.Context) error {
		return s.persister.Save(ctx, snap)
	})
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	s.logger.Debug("snapshot saved",
		"accounts", len(snap.Accounts),
		"messages", len(snap.Messages),
	)
	return nil
}

// Close drains in-flight operations, saves a final snapshot and closes
// all backends.
func (s *service) Close(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.state, stateConnected, stateDisconnected) {
		return nil
	}

	var errs []error

	// Wait for in-flight sends to complete (graceful shutdown). After
	// the state flips no new operations can start because checkAccess
	// fails, so acquiring every semaphore slot means quiescence.
	s.logger.Info("waiting for in-flight operations to complete...", "timeout", s.opts.shutdownTimeout)
	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, s.opts.shutdownTimeout)
	defer shutdownCancel()
	if err := s.sendSem.Acquire(shutdownCtx, int64(s.opts.maxConcurrentSends)); err != nil {
		s.logger.Warn("timeout waiting for in-flight operations, proceeding with shutdown",
			"error", err)
		errs = append(errs, fmt.Errorf("graceful shutdown timeout: %w", err))
	} else {
		s.sendSem.Release(int64(s.opts.maxConcurrentSends))
		s.logger.Info("all in-flight operations completed")
	}

	// Stop the snapshot loop before the final save so they don't race.
	if s.snapStop != nil {
		close(s.snapStop)
		<-s.snapDone
	}

	// Final save runs before the store closes; a crash after this
	// point loses nothing.
	if s.persister != nil {
		if err := s.saveSnapshot(ctx); err != nil {
			errs = append(errs, fmt.Errorf("final snapshot: %w", err))
		}
		if err := s.persister.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close persister: %w", err))
		}
	}

	// Close the event bus only when it runs a real transport. The noop
	// bus holds no resources.
	if s.eventBus != nil && (s.opts.eventTransport != nil || s.opts.redisClient != nil) {
		if err := s.eventBus.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close event bus: %w", err))
		}
	}

	if err := s.store.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}

	return errors.Join(errs...)
}

// checkAccess verifies the service is connected.
func (s *service) checkAccess() error {
	if atomic.LoadInt32(&s.state) != stateConnected {
		return ErrNotConnected
	}
	return nil
}

// Stats returns a point-in-time summary of engine state.
func (s *service) Stats(ctx context.Context) (Stats, error) {
	if err := s.checkAccess(); err != nil {
		return Stats{}, err
	}
	return s.store.Stats(ctx)
}

// publish sends an event payload, honoring the eventErrorsFatal
// setting: by default failures are reported to the failure handler and
// swallowed; when fatal, an EventPublishError is returned.
func publish[T any](ctx context.Context, s *service, ev event.Event[T], name string, payload T) error {
	if err := ev.Publish(ctx, payload); err != nil {
		if s.opts.eventErrorsFatal {
			return &EventPublishError{Event: name, Err: err}
		}
		s.opts.safeEventPublishFailure(name, err)
	}
	return nil
}

// isValidUsername checks if a username is valid.
// Valid usernames are non-empty and contain only safe characters.
// '*' is excluded so a username can never collide with a wildcard
// pattern; separators and control characters are excluded to keep
// usernames safe as map keys and log fields.
func isValidUsername(username string) bool {
	if username == "" {
		return false
	}
	for _, c := range username {
		if c == '*' || c == ':' || c == '/' || c == '\\' ||
			c == ' ' || c == '\t' || c == '\n' || c == '\r' ||
			c < 32 || c == 127 {
			return false
		}
	}
	return true
}
