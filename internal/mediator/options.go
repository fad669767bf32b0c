package mediator

import (
	"time"

	"github.com/Iron-Ham/arbiter/internal/clock"
	"github.com/Iron-Ham/arbiter/internal/event"
	"github.com/Iron-Ham/arbiter/internal/logging"
	"github.com/Iron-Ham/arbiter/internal/observer"
	"github.com/Iron-Ham/arbiter/internal/proc"
	"github.com/Iron-Ham/arbiter/internal/resource"
	"github.com/Iron-Ham/arbiter/internal/runloop"
)

// Defaults used by the configuration layer.
const (
	DefaultResponseTimeout = 10 * time.Second
	DefaultDelegateTimeout = 30 * time.Second
	DefaultReapInterval    = 2 * time.Second
	DefaultDiscoveryWindow = 250 * time.Millisecond
)

// Config holds the mediator's identity and initial intent.
type Config struct {
	// ResourceID scopes all bus traffic. Required.
	ResourceID string
	// PID is the process this mediator represents. 0 means os.Getpid().
	PID int

	// PreferredAccess is the initial intent. AccessUnknown means none.
	PreferredAccess resource.Access
	// AccessPressure is the initial pressure. 0 means
	// resource.DefaultPressure; use SetAccessPressure for PressureNone.
	AccessPressure resource.Pressure
	BroadcastInfo  map[string]any

	// ResponseTimeout bounds the wait for an ACCESS_RESPONSE. 0 waits
	// forever.
	ResponseTimeout time.Duration
	// DelegateTimeout bounds the wait for a delegate completion. 0 waits
	// forever.
	DelegateTimeout time.Duration
	// DiscoveryWindow delays the first negotiation after activation so
	// that peers can answer the discovery SCAN. 0 negotiates at once.
	DiscoveryWindow time.Duration
	// ReapInterval is how often protocol peers are probed for liveness.
	// 0 disables probing.
	ReapInterval time.Duration
}

// Option configures optional collaborators of a Mediator.
type Option func(*Mediator)

// WithLogger sets the logger. A nil logger discards output.
func WithLogger(l *logging.Logger) Option {
	return func(m *Mediator) { m.logger = logging.OrNop(l) }
}

// WithClock sets the clock used for timestamps and timeouts.
func WithClock(c clock.Clock) Option {
	return func(m *Mediator) {
		if c != nil {
			m.clock = c
		}
	}
}

// WithLoop runs the mediator on loop instead of a private Serial loop.
// The caller owns loop and must keep it running until Close returns.
func WithLoop(loop runloop.Loop) Option {
	return func(m *Mediator) { m.loop = loop }
}

// WithEventBus publishes notifications on b instead of a private bus.
func WithEventBus(b *event.Bus) Option {
	return func(m *Mediator) {
		if b != nil {
			m.events = b
		}
	}
}

// WithObserver attaches a kernel observer, started on Activate and
// stopped on Deactivate. Its OwnPID should be the mediator's pid.
func WithObserver(o *observer.Observer) Option {
	return func(m *Mediator) { m.observer = o }
}

// WithLivenessProbe replaces proc.Alive for the reaper.
func WithLivenessProbe(alive func(pid int) bool) Option {
	return func(m *Mediator) {
		if alive != nil {
			m.alive = alive
		}
	}
}

// WithProcessInfo sets how metadata of newly seen protocol peers is
// looked up. Errors leave the metadata empty.
func WithProcessInfo(lookup func(pid int) (resource.ProcessInfo, error)) Option {
	return func(m *Mediator) { m.processInfo = lookup }
}

func defaultProcessInfo(pid int) (resource.ProcessInfo, error) {
	return proc.Read(proc.DefaultRoot, pid)
}
