package chatman

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"chatman/store"
)

// mapAccountErr translates store-level account errors into this
// package's sentinels, so callers only need errors.Is against the
// chatman errors.
func mapAccountErr(err error, username string) error {
	switch {
	case store.IsNotFound(err):
		return fmt.Errorf("%w: %q", ErrNotFound, username)
	case errors.Is(err, store.ErrAlreadyLoggedIn):
		return fmt.Errorf("%w: %q", ErrAlreadyLoggedIn, username)
	case errors.Is(err, store.ErrNotLoggedIn):
		return fmt.Errorf("%w: %q", ErrNotLoggedIn, username)
	default:
		return err
	}
}

// CreateAccount registers username, logged out. The caller logs in
// separately; registration does not establish a session.
func (s *service) CreateAccount(ctx context.Context, username string) (Account, error) {
	if err := s.checkAccess(); err != nil {
		return Account{}, err
	}
	if !isValidUsername(username) {
		return Account{}, fmt.Errorf("%w: %q", ErrInvalidUsername, username)
	}

	start := time.Now()
	ctx, endSpan := s.otel.startSpan(ctx, "chatman.account.create",
		attribute.String("username", username),
	)
	var opErr error
	defer func() {
		endSpan(opErr)
		s.otel.recordAccount(ctx, time.Since(start), "create", opErr)
	}()

	acct, err := s.store.CreateAccount(ctx, username)
	if err != nil {
		if store.IsDuplicateEntry(err) {
			opErr = fmt.Errorf("%w: %q", ErrAccountExists, username)
			return Account{}, opErr
		}
		opErr = fmt.Errorf("create account: %w", err)
		return Account{}, opErr
	}

	s.logger.Info("account created", "username", username)

	opErr = publish(ctx, s, s.events.AccountCreated, "AccountCreated", AccountCreatedEvent{
		Username:  username,
		CreatedAt: time.Now().UTC(),
	})
	return acct, opErr
}

// LogIn marks username logged in.
func (s *service) LogIn(ctx context.Context, username string) error {
	if err := s.checkAccess(); err != nil {
		return err
	}
	if !isValidUsername(username) {
		return fmt.Errorf("%w: %q", ErrInvalidUsername, username)
	}

	start := time.Now()
	ctx, endSpan := s.otel.startSpan(ctx, "chatman.account.login",
		attribute.String("username", username),
	)
	var opErr error
	defer func() {
		endSpan(opErr)
		s.otel.recordAccount(ctx, time.Since(start), "login", opErr)
	}()

	if err := s.store.Login(ctx, username); err != nil {
		opErr = mapAccountErr(err, username)
		return opErr
	}

	s.logger.Info("account logged in", "username", username)
	return nil
}

// LogOut marks username logged out. Pending messages stay queued and
// survive for the next login.
func (s *service) LogOut(ctx context.Context, username string) error {
	if err := s.checkAccess(); err != nil {
		return err
	}
	if !isValidUsername(username) {
		return fmt.Errorf("%w: %q", ErrInvalidUsername, username)
	}

	start := time.Now()
	ctx, endSpan := s.otel.startSpan(ctx, "chatman.account.logout",
		attribute.String("username", username),
	)
	var opErr error
	defer func() {
		endSpan(opErr)
		s.otel.recordAccount(ctx, time.Since(start), "logout", opErr)
	}()

	if err := s.store.Logout(ctx, username); err != nil {
		opErr = mapAccountErr(err, username)
		return opErr
	}

	s.logger.Info("account logged out", "username", username)
	return nil
}

// DeleteAccount removes username and purges its mailbox, regardless of
// login state. Messages the account sent to other recipients are left
// in their mailboxes.
func (s *service) DeleteAccount(ctx context.Context, username string) error {
	if err := s.checkAccess(); err != nil {
		return err
	}
	if !isValidUsername(username) {
		return fmt.Errorf("%w: %q", ErrInvalidUsername, username)
	}

	start := time.Now()
	ctx, endSpan := s.otel.startSpan(ctx, "chatman.account.delete",
		attribute.String("username", username),
	)
	var opErr error
	defer func() {
		endSpan(opErr)
		s.otel.recordAccount(ctx, time.Since(start), "delete", opErr)
	}()

	purged, err := s.store.DeleteAccount(ctx, username)
	if err != nil {
		opErr = mapAccountErr(err, username)
		return opErr
	}

	s.logger.Info("account deleted", "username", username, "purged_messages", purged)

	opErr = publish(ctx, s, s.events.AccountDeleted, "AccountDeleted", AccountDeletedEvent{
		Username:       username,
		PurgedMessages: purged,
		DeletedAt:      time.Now().UTC(),
	})
	return opErr
}

// ListAccounts returns accounts whose usernames match pattern, sorted
// by username. An empty pattern matches everything.
func (s *service) ListAccounts(ctx context.Context, pattern string) ([]Account, error) {
	if err := s.checkAccess(); err != nil {
		return nil, err
	}

	start := time.Now()
	ctx, endSpan := s.otel.startSpan(ctx, "chatman.account.list",
		attribute.String("pattern", pattern),
	)
	var opErr error
	defer func() {
		endSpan(opErr)
		s.otel.recordAccount(ctx, time.Since(start), "list", opErr)
	}()

	accounts, err := s.store.ListAccounts(ctx)
	if err != nil {
		opErr = fmt.Errorf("list accounts: %w", err)
		return nil, opErr
	}

	matched := make([]Account, 0, len(accounts))
	for _, acct := range accounts {
		if Match(pattern, acct.Username) {
			matched = append(matched, acct)
		}
	}
	return matched, nil
}
