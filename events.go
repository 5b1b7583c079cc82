package chatman

import (
	"context"
	"fmt"
	"time"

	"github.com/rbaliyan/event/v3"
)

// Event names for engine events.
const (
	EventNameAccountCreated       = "chatman.account.created"
	EventNameAccountDeleted       = "chatman.account.deleted"
	EventNameMessageQueued        = "chatman.message.queued"
	EventNameMessagesDelivered    = "chatman.messages.delivered"
	EventNameMessagesAcknowledged = "chatman.messages.acknowledged"
)

// AccountCreatedEvent is published when a new account is registered.
type AccountCreatedEvent struct {
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}

// AccountDeletedEvent is published when an account is deleted.
// PurgedMessages counts the mailbox entries dropped with it.
type AccountDeletedEvent struct {
	Username       string    `json:"username"`
	PurgedMessages int64     `json:"purged_messages"`
	DeletedAt      time.Time `json:"deleted_at"`
}

// MessageQueuedEvent is published when a message is accepted into a
// recipient's mailbox.
type MessageQueuedEvent struct {
	MessageID         string    `json:"message_id"`
	SenderUsername    string    `json:"sender_username"`
	RecipientUsername string    `json:"recipient_username"`
	RecipientLoggedIn bool      `json:"recipient_logged_in"`
	QueuedAt          time.Time `json:"queued_at"`
}

// MessagesDeliveredEvent is published when a drain hands pending
// messages to a recipient.
type MessagesDeliveredEvent struct {
	Username    string    `json:"username"`
	Count       int       `json:"count"`
	DeliveredAt time.Time `json:"delivered_at"`
}

// MessagesAcknowledgedEvent is published when delivered messages are
// acknowledged and removed.
type MessagesAcknowledgedEvent struct {
	Count   int64     `json:"count"`
	AckedAt time.Time `json:"acked_at"`
}

// ServiceEvents provides access to per-service event instances.
// Each service creates its own events bound to its own event bus,
// enabling independent event routing and parallel testing.
//
// Subscribe to events:
//
//	svc.Events().MessageQueued.Subscribe(ctx, handler)
//	svc.Events().MessagesDelivered.Subscribe(ctx, handler)
type ServiceEvents struct {
	// AccountCreated is published when a new account is registered.
	AccountCreated event.Event[AccountCreatedEvent]

	// AccountDeleted is published when an account is deleted.
	AccountDeleted event.Event[AccountDeletedEvent]

	// MessageQueued is published when a message is accepted.
	MessageQueued event.Event[MessageQueuedEvent]

	// MessagesDelivered is published when pending messages are drained.
	MessagesDelivered event.Event[MessagesDeliveredEvent]

	// MessagesAcknowledged is published when delivered messages are
	// acknowledged.
	MessagesAcknowledged event.Event[MessagesAcknowledgedEvent]
}

// newServiceEvents creates per-service event instances with a unique
// name prefix.
func newServiceEvents(namePrefix string) *ServiceEvents {
	return &ServiceEvents{
		AccountCreated:       event.New[AccountCreatedEvent](namePrefix + "." + EventNameAccountCreated),
		AccountDeleted:       event.New[AccountDeletedEvent](namePrefix + "." + EventNameAccountDeleted),
		MessageQueued:        event.New[MessageQueuedEvent](namePrefix + "." + EventNameMessageQueued),
		MessagesDelivered:    event.New[MessagesDeliveredEvent](namePrefix + "." + EventNameMessagesDelivered),
		MessagesAcknowledged: event.New[MessagesAcknowledgedEvent](namePrefix + "." + EventNameMessagesAcknowledged),
	}
}

// registerServiceEvents registers per-service events with the given bus.
func registerServiceEvents(ctx context.Context, bus *event.Bus, events *ServiceEvents) error {
	if err := event.Register(ctx, bus, events.AccountCreated); err != nil {
		return fmt.Errorf("register AccountCreated: %w", err)
	}
	if err := event.Register(ctx, bus, events.AccountDeleted); err != nil {
		return fmt.Errorf("register AccountDeleted: %w", err)
	}
	if err := event.Register(ctx, bus, events.MessageQueued); err != nil {
		return fmt.Errorf("register MessageQueued: %w", err)
	}
	if err := event.Register(ctx, bus, events.MessagesDelivered); err != nil {
		return fmt.Errorf("register MessagesDelivered: %w", err)
	}
	if err := event.Register(ctx, bus, events.MessagesAcknowledged); err != nil {
		return fmt.Errorf("register MessagesAcknowledged: %w", err)
	}
	return nil
}
