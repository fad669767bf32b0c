package bus

import (
	"context"

	"github.com/Iron-Ham/arbiter/internal/message"
)

// Handler receives a delivered message. It runs on the bus's delivery
// goroutine and must not block.
type Handler func(message.Message)

// Bus publishes arbitration messages and delivers them to subscribers of
// the same resource identifier.
type Bus interface {
	// Publish sends m to every subscriber of m.ResourceIdentifier,
	// including the publisher's own subscription.
	Publish(ctx context.Context, m message.Message) error
	// Subscribe delivers messages published for resourceID from now on.
	Subscribe(resourceID string, h Handler) (Subscription, error)
	// Close cancels every subscription.
	Close() error
}

// Subscription is an active Subscribe registration.
type Subscription interface {
	// Cancel stops delivery. No handler call starts after Cancel returns.
	Cancel()
}
