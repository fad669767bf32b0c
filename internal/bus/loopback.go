package bus

import (
	"context"
	"slices"
	"sync"

	"github.com/Iron-Ham/arbiter/internal/errors"
	"github.com/Iron-Ham/arbiter/internal/message"
)

// Loopback is an in-process Bus. Publish delivers to every matching
// subscriber before it returns, in subscription order.
type Loopback struct {
	mu      sync.Mutex
	subs    []*loopSubscription
	history []message.Message
	drop    func(message.Message) bool
	closed  bool
}

// NewLoopback returns an empty Loopback.
func NewLoopback() *Loopback { return &Loopback{} }

// SetDropFilter makes Publish silently discard messages for which drop
// returns true. Pass nil to deliver everything again. Dropped messages
// are still recorded in History.
func (l *Loopback) SetDropFilter(drop func(message.Message) bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.drop = drop
}

func (l *Loopback) Publish(ctx context.Context, m message.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := m.Validate(); err != nil {
		return errors.NewBusError("publish", err).WithResource(m.ResourceIdentifier)
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return errors.NewBusError("publish", errors.New("bus closed")).WithResource(m.ResourceIdentifier)
	}
	l.history = append(l.history, m)
	if l.drop != nil && l.drop(m) {
		l.mu.Unlock()
		return nil
	}
	var targets []*loopSubscription
	for _, s := range l.subs {
		if s.resourceID == m.ResourceIdentifier {
			targets = append(targets, s)
		}
	}
	l.mu.Unlock()

	for _, s := range targets {
		s.deliver(m)
	}
	return nil
}

func (l *Loopback) Subscribe(resourceID string, h Handler) (Subscription, error) {
	if resourceID == "" {
		return nil, errors.NewBusError("subscribe", errors.New("resource identifier is required"))
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, errors.NewBusError("subscribe", errors.New("bus closed")).WithResource(resourceID)
	}
	s := &loopSubscription{bus: l, resourceID: resourceID, handler: h}
	l.subs = append(l.subs, s)
	return s, nil
}

func (l *Loopback) Close() error {
	l.mu.Lock()
	subs := l.subs
	l.subs = nil
	l.closed = true
	l.mu.Unlock()
	for _, s := range subs {
		s.Cancel()
	}
	return nil
}

// History returns every message published so far, oldest first.
func (l *Loopback) History() []message.Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.history)
}

// Since returns the messages published after the first n.
func (l *Loopback) Since(n int) []message.Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	if n >= len(l.history) {
		return nil
	}
	return slices.Clone(l.history[n:])
}

// Len returns the number of published messages.
func (l *Loopback) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.history)
}

// Subscribers returns the number of active subscriptions for resourceID.
func (l *Loopback) Subscribers(resourceID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, s := range l.subs {
		if s.resourceID == resourceID {
			n++
		}
	}
	return n
}

type loopSubscription struct {
	bus        *Loopback
	resourceID string
	handler    Handler

	mu        sync.Mutex
	cancelled bool
}

func (s *loopSubscription) deliver(m message.Message) {
	s.mu.Lock()
	cancelled := s.cancelled
	s.mu.Unlock()
	if !cancelled {
		s.handler(m)
	}
}

func (s *loopSubscription) Cancel() {
	s.mu.Lock()
	s.cancelled = true
	s.mu.Unlock()

	l := s.bus
	l.mu.Lock()
	defer l.mu.Unlock()
	l.subs = slices.DeleteFunc(l.subs, func(o *loopSubscription) bool { return o == s })
}
