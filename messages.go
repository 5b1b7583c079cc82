package chatman

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"chatman/store"
)

// Send queues a message for req.RecipientUsername. The engine stamps
// the timestamp; the recipient's login flag is snapshotted onto the
// message by the store, under the same lock that orders the mailbox.
// The sender does not need an account or a session: the wire protocol
// trusts the asserted sender name, and senders deleted later must not
// invalidate queued messages anyway.
func (s *service) Send(ctx context.Context, req SendRequest) (Message, error) {
	if err := s.checkAccess(); err != nil {
		return Message{}, err
	}
	if !isValidUsername(req.SenderUsername) {
		return Message{}, fmt.Errorf("%w: sender %q", ErrInvalidUsername, req.SenderUsername)
	}
	if !isValidUsername(req.RecipientUsername) {
		return Message{}, fmt.Errorf("%w: recipient %q", ErrInvalidUsername, req.RecipientUsername)
	}
	if len(req.Body) > s.opts.maxMessageLength {
		return Message{}, fmt.Errorf("%w: %d bytes (max %d)", ErrMessageTooLong, len(req.Body), s.opts.maxMessageLength)
	}

	// Bound concurrent sends; Close drains this semaphore for
	// graceful shutdown.
	if err := s.sendSem.Acquire(ctx, 1); err != nil {
		return Message{}, fmt.Errorf("acquire send slot: %w", err)
	}
	defer s.sendSem.Release(1)

	start := time.Now()
	ctx, endSpan := s.otel.startSpan(ctx, "chatman.message.send",
		attribute.String("sender", req.SenderUsername),
		attribute.String("recipient", req.RecipientUsername),
	)
	var opErr error
	defer func() {
		endSpan(opErr)
		s.otel.recordSend(ctx, time.Since(start), opErr)
	}()

	msg, err := s.store.Enqueue(ctx, store.MessageData{
		SenderUsername:    req.SenderUsername,
		RecipientUsername: req.RecipientUsername,
		Body:              req.Body,
		Time:              time.Now().UnixNano(),
	})
	if err != nil {
		switch {
		case store.IsNotFound(err):
			opErr = fmt.Errorf("%w: %q", ErrRecipientNotFound, req.RecipientUsername)
		case store.IsMailboxFull(err):
			opErr = fmt.Errorf("%w: %q", ErrMailboxFull, req.RecipientUsername)
		default:
			opErr = fmt.Errorf("enqueue: %w", err)
		}
		return Message{}, opErr
	}

	s.logger.Debug("message queued",
		"message_id", msg.ID,
		"sender", msg.SenderUsername,
		"recipient", msg.RecipientUsername,
		"recipient_logged_in", msg.RecipientLoggedIn,
	)

	opErr = publish(ctx, s, s.events.MessageQueued, "MessageQueued", MessageQueuedEvent{
		MessageID:         msg.ID,
		SenderUsername:    msg.SenderUsername,
		RecipientUsername: msg.RecipientUsername,
		RecipientLoggedIn: msg.RecipientLoggedIn,
		QueuedAt:          time.Now().UTC(),
	})
	return msg, opErr
}

// Deliver drains req.Username's pending messages in mailbox order,
// marking them delivered. Messages are retained until acknowledged, so
// a client that crashes between drain and acknowledgment sees them
// again on the next drain of a fresh session: at-least-once delivery.
func (s *service) Deliver(ctx context.Context, req DeliverRequest) ([]Message, error) {
	if err := s.checkAccess(); err != nil {
		return nil, err
	}
	if !isValidUsername(req.Username) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidUsername, req.Username)
	}

	start := time.Now()
	ctx, endSpan := s.otel.startSpan(ctx, "chatman.message.deliver",
		attribute.String("username", req.Username),
		attribute.Bool("logged_in", req.LoggedIn),
	)
	var opErr error
	var msgs []Message
	defer func() {
		endSpan(opErr)
		s.otel.recordDeliver(ctx, time.Since(start), len(msgs), opErr)
	}()

	msgs, err := s.store.DrainPending(ctx, req.Username, req.LoggedIn)
	if err != nil {
		switch {
		case store.IsNotFound(err):
			opErr = fmt.Errorf("%w: %q", ErrNotFound, req.Username)
		case errors.Is(err, store.ErrLoginStateMismatch):
			opErr = fmt.Errorf("%w: %q", ErrLoginStateMismatch, req.Username)
		default:
			opErr = fmt.Errorf("drain pending: %w", err)
		}
		return nil, opErr
	}

	if len(msgs) == 0 {
		return nil, nil
	}

	s.logger.Debug("messages delivered", "username", req.Username, "count", len(msgs))

	opErr = publish(ctx, s, s.events.MessagesDelivered, "MessagesDelivered", MessagesDeliveredEvent{
		Username:    req.Username,
		Count:       len(msgs),
		DeliveredAt: time.Now().UTC(),
	})
	return msgs, opErr
}

// Acknowledge removes delivered messages matching refs and returns how
// many were removed. Refs that match nothing are ignored, so a client
// re-sending an acknowledgment after a timeout cannot fail or remove
// anything twice.
func (s *service) Acknowledge(ctx context.Context, refs []MessageRef) (int64, error) {
	if err := s.checkAccess(); err != nil {
		return 0, err
	}

	start := time.Now()
	ctx, endSpan := s.otel.startSpan(ctx, "chatman.message.acknowledge",
		attribute.Int("ref_count", len(refs)),
	)
	var opErr error
	var removed int64
	defer func() {
		endSpan(opErr)
		s.otel.recordAcknowledge(ctx, time.Since(start), removed, opErr)
	}()

	if len(refs) == 0 {
		return 0, nil
	}

	removed, err := s.store.Acknowledge(ctx, refs)
	if err != nil {
		opErr = fmt.Errorf("acknowledge: %w", err)
		return 0, opErr
	}

	if removed == 0 {
		return 0, nil
	}

	s.logger.Debug("messages acknowledged", "count", removed)

	opErr = publish(ctx, s, s.events.MessagesAcknowledged, "MessagesAcknowledged", MessagesAcknowledgedEvent{
		Count:   removed,
		AckedAt: time.Now().UTC(),
	})
	return removed, opErr
}

// PendingCount returns how many undelivered messages wait for username.
func (s *service) PendingCount(ctx context.Context, username string) (int64, error) {
	if err := s.checkAccess(); err != nil {
		return 0, err
	}
	if !isValidUsername(username) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidUsername, username)
	}
	return s.store.PendingCount(ctx, username)
}
