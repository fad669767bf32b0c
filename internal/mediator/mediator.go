package mediator

import (
	"context"
	"maps"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/Iron-Ham/arbiter/internal/bus"
	"github.com/Iron-Ham/arbiter/internal/clock"
	"github.com/Iron-Ham/arbiter/internal/commandqueue"
	"github.com/Iron-Ham/arbiter/internal/errors"
	"github.com/Iron-Ham/arbiter/internal/event"
	"github.com/Iron-Ham/arbiter/internal/logging"
	"github.com/Iron-Ham/arbiter/internal/observer"
	"github.com/Iron-Ham/arbiter/internal/proc"
	"github.com/Iron-Ham/arbiter/internal/resource"
	"github.com/Iron-Ham/arbiter/internal/runloop"
)

// Reasons carried by UserDisappearedEvent.
const (
	ReasonTerminated = "terminated"
	ReasonClosed     = "closed"
	ReasonRemoved    = "removed"
)

// Mediator arbitrates one resource on behalf of one process.
type Mediator struct {
	cfg      Config
	pid      int
	bus      bus.Bus
	delegate Delegate

	loop        runloop.Loop
	ownLoop     *runloop.Serial
	clock       clock.Clock
	logger      *logging.Logger
	events      *event.Bus
	observer    *observer.Observer
	alive       func(int) bool
	processInfo func(int) (resource.ProcessInfo, error)

	lifecycle sync.Mutex
	started   bool
	sub       bus.Subscription
	cancel    context.CancelFunc
	wg        *conc.WaitGroup

	// Everything below is guarded by mu and only changed by loop tasks,
	// except for LookupUser creating a record.
	mu           sync.Mutex
	active       bool
	generation   uint64
	discovering  bool
	discovery    clock.Timer
	self         *resource.User
	accessSince  time.Time
	users        *resource.Registry
	pending      map[int]*pendingRequest
	refused      map[int]bool
	selfRefused  bool
	answering    map[int]uint64
	lentTo       int
	borrowerHeld bool
	lentFrom     int
	queue        *commandqueue.Queue
	selfCmd      *commandqueue.Command
	cmdTimer     clock.Timer
	suspended    int
	statusDirty  bool
	represented  any
	effects      []func()
	nextToken    uint64
}

type pendingRequest struct {
	access resource.Access
	sentAt time.Time
	token  uint64
	timer  clock.Timer
}

// New creates an inactive Mediator. cfg.ResourceID, b and d are required.
func New(cfg Config, b bus.Bus, d Delegate, opts ...Option) (*Mediator, error) {
	if cfg.ResourceID == "" {
		return nil, errors.NewValidationError("resource identifier is required").WithField("resource")
	}
	if b == nil {
		return nil, errors.NewValidationError("message bus is required").WithField("bus")
	}
	if d == nil {
		return nil, errors.NewValidationError("delegate is required").WithField("delegate")
	}
	if cfg.PID < 0 {
		return nil, errors.NewValidationError("pid must not be negative").WithField("pid").WithValue(cfg.PID)
	}
	if cfg.AccessPressure < 0 || cfg.AccessPressure > resource.PressureRequired {
		return nil, errors.NewValidationError("access pressure out of range").
			WithField("access_pressure").WithValue(int(cfg.AccessPressure))
	}

	pid := cfg.PID
	if pid == 0 {
		pid = os.Getpid()
	}

	m := &Mediator{
		cfg:         cfg,
		pid:         pid,
		bus:         b,
		delegate:    d,
		clock:       clock.Real(),
		logger:      logging.NopLogger(),
		events:      event.NewBus(),
		alive:       proc.Alive,
		processInfo: defaultProcessInfo,
		users:       resource.NewRegistry(),
		pending:     make(map[int]*pendingRequest),
		refused:     make(map[int]bool),
		answering:   make(map[int]uint64),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.loop == nil {
		m.ownLoop = runloop.NewSerial()
		m.loop = m.ownLoop
	}
	m.logger = m.logger.WithResource(cfg.ResourceID).WithPID(pid)
	m.events.SetLogger(m.logger)
	m.queue = commandqueue.New(m.clock)

	m.self = resource.NewUser(pid, true)
	m.self.PreferredAccess = cfg.PreferredAccess
	if m.self.PreferredAccess == resource.AccessUnknown {
		m.self.PreferredAccess = resource.AccessNone
	}
	m.self.ActualAccess = resource.AccessNone
	if cfg.AccessPressure != 0 {
		m.self.AccessPressure = cfg.AccessPressure
	}
	m.self.BroadcastInfo = maps.Clone(cfg.BroadcastInfo)
	m.self.Process = m.lookupProcess(pid)
	m.self.FirstSeen = m.clock.Now()
	return m, nil
}

// PID returns the pid this mediator represents.
func (m *Mediator) PID() int { return m.pid }

// ResourceID returns the resource identifier.
func (m *Mediator) ResourceID() string { return m.cfg.ResourceID }

// Events returns the bus on which notifications are published.
func (m *Mediator) Events() *event.Bus { return m.events }

// Activate subscribes to the bus, announces this process, scans for peers
// and starts the reaper and the observer.
func (m *Mediator) Activate(ctx context.Context) error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()
	if m.started {
		return errors.New("mediator already active")
	}

	sub, err := m.bus.Subscribe(m.cfg.ResourceID, m.receive)
	if err != nil {
		return errors.NewBusError("subscribe", err).WithResource(m.cfg.ResourceID)
	}
	if !m.run(m.activate) {
		sub.Cancel()
		return errors.Wrap(errors.ErrInactive, "run loop stopped")
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.sub = sub
	m.cancel = cancel
	m.wg = conc.NewWaitGroup()
	m.started = true

	if m.cfg.ReapInterval > 0 {
		m.wg.Go(func() { m.reapLoop(runCtx) })
	}
	if m.observer != nil {
		obs := m.observer
		m.wg.Go(func() {
			if err := obs.Start(runCtx, m.observed); err != nil && runCtx.Err() == nil {
				m.run(func() { m.observerFailed(err) })
			}
		})
	}
	return nil
}

// Deactivate stops background work, broadcasts a final STATUS releasing
// everything and unsubscribes. The host's own use of the resource is not
// changed. Deactivating an inactive mediator is a no-op.
func (m *Mediator) Deactivate() error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()
	if !m.started {
		return nil
	}
	m.started = false

	m.cancel()
	m.wg.Wait()
	if m.observer != nil {
		m.observer.Stop()
	}

	sub := m.sub
	m.sub = nil
	if !m.run(func() {
		m.deactivate()
		m.effect(sub.Cancel)
	}) {
		sub.Cancel()
	}
	return nil
}

// Close deactivates the mediator and, when it owns its loop, waits for
// the final messages to go out and stops the loop.
func (m *Mediator) Close() error {
	err := m.Deactivate()
	if m.ownLoop != nil {
		m.ownLoop.Sync()
		m.ownLoop.Stop()
	}
	return err
}

// Active reports whether the mediator currently participates.
func (m *Mediator) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// SetPreferredAccess changes this process's intent and renegotiates.
func (m *Mediator) SetPreferredAccess(a resource.Access) error {
	if a == resource.AccessUnknown || a > resource.AccessBlocking {
		return errors.NewValidationError("preferred access must be none, shared or blocking").
			WithField("preferred_access").WithValue(a.String())
	}
	return m.post(func() {
		if m.self.PreferredAccess == a {
			return
		}
		m.self.PreferredAccess = a
		m.forgetRefusals()
		m.announce()
		m.consider()
	})
}

// SetAccessPressure changes how hard this process wants the resource.
func (m *Mediator) SetAccessPressure(p resource.Pressure) error {
	if p < resource.PressureNone || p > resource.PressureRequired {
		return errors.NewValidationError("access pressure out of range").
			WithField("access_pressure").WithValue(int(p))
	}
	return m.post(func() {
		if m.self.AccessPressure == p {
			return
		}
		m.self.AccessPressure = p
		m.forgetRefusals()
		m.announce()
		m.consider()
	})
}

// SetBroadcastInfo replaces the metadata published with every STATUS.
func (m *Mediator) SetBroadcastInfo(info map[string]any) error {
	info = maps.Clone(info)
	return m.post(func() {
		if change := m.self.Apply(resource.Status{
			PreferredAccess: m.self.PreferredAccess,
			ActualAccess:    m.self.ActualAccess,
			AccessPressure:  m.self.AccessPressure,
			BroadcastInfo:   info,
		}); change.Any() {
			m.announce()
		}
	})
}

// SetActualAccess records an access change the host made on its own, for
// example after losing the device. Peers are told and negotiation resumes.
func (m *Mediator) SetActualAccess(a resource.Access) error {
	if a == resource.AccessUnknown || a > resource.AccessBlocking {
		return errors.NewValidationError("actual access must be none, shared or blocking").
			WithField("actual_access").WithValue(a.String())
	}
	return m.post(func() {
		if m.setActual(a) {
			m.consider()
		}
	})
}

// ConsiderRequestingAccess forgets earlier denials and renegotiates.
func (m *Mediator) ConsiderRequestingAccess() error {
	return m.post(func() {
		m.forgetRefusals()
		m.consider()
	})
}

// Scan asks every peer to re-announce its status.
func (m *Mediator) Scan() error {
	return m.post(func() {
		if m.active {
			m.send(m.scanMessage(0))
		}
	})
}

// RemoveUser retires the user for pid as if its process had terminated.
func (m *Mediator) RemoveUser(pid int) error {
	return m.post(func() { m.retire(pid, ReasonRemoved) })
}

// SetRepresentedObject stores an opaque host value.
func (m *Mediator) SetRepresentedObject(v any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.represented = v
}

// RepresentedObject returns the value stored by SetRepresentedObject.
func (m *Mediator) RepresentedObject() any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.represented
}

// Users returns copies of the known users in first-seen order.
func (m *Mediator) Users() []*resource.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	users := m.users.Users()
	out := make([]*resource.User, len(users))
	for i, u := range users {
		out[i] = u.Clone()
	}
	return out
}

// LookupUser returns a copy of the user for pid. With create set, an
// unknown pid is registered as a non-protocol user of unknown access,
// which peers' negotiation then treats as a holder.
func (m *Mediator) LookupUser(pid int, create bool) (*resource.User, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if u := m.users.Get(pid); u != nil {
		return u.Clone(), true
	}
	if !create || pid <= 0 || pid == m.pid {
		return nil, false
	}
	u, _ := m.users.GetOrCreate(pid, false)
	u.FirstSeen = m.clock.Now()
	u.LastSeen = u.FirstSeen
	m.run(func() {
		if m.users.Get(pid) == u {
			m.emit(event.NewUserAppearedEvent(m.source(), u))
			m.consider()
		}
	})
	return u.Clone(), true
}

// Snapshot is a point-in-time copy of a mediator's state.
type Snapshot struct {
	ResourceID string
	PID        int
	Active     bool

	PreferredAccess resource.Access
	ActualAccess    resource.Access
	AccessPressure  resource.Pressure
	BroadcastInfo   map[string]any
	// AccessSince is when the current non-None access began.
	AccessSince time.Time

	// Pending lists peers whose ACCESS_RESPONSE is awaited, ascending.
	Pending []int
	// LentTo is the peer this process yielded to; LentFrom the peer that
	// yielded to this process. Zero means none.
	LentTo   int
	LentFrom int

	StatusSuspended int
	Commands        commandqueue.Snapshot
	Users           []*resource.User
}

// Snapshot returns the current state.
func (m *Mediator) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Snapshot{
		ResourceID:      m.cfg.ResourceID,
		PID:             m.pid,
		Active:          m.active,
		PreferredAccess: m.self.PreferredAccess,
		ActualAccess:    m.self.ActualAccess,
		AccessPressure:  m.self.AccessPressure,
		BroadcastInfo:   maps.Clone(m.self.BroadcastInfo),
		AccessSince:     m.accessSince,
		LentTo:          m.lentTo,
		LentFrom:        m.lentFrom,
		StatusSuspended: m.suspended,
		Commands:        m.queue.Snapshot(),
	}
	s.Pending = slices.Sorted(maps.Keys(m.pending))
	for _, u := range m.users.Users() {
		s.Users = append(s.Users, u.Clone())
	}
	return s
}

// run posts fn to the loop. fn runs with mu held; effects it records run
// in order after mu is released.
func (m *Mediator) run(fn func()) bool {
	return m.loop.Post(func() {
		m.mu.Lock()
		fn()
		effects := m.effects
		m.effects = nil
		m.mu.Unlock()

		for _, e := range effects {
			e()
		}
	})
}

func (m *Mediator) post(fn func()) error {
	if !m.run(fn) {
		return errors.Wrap(errors.ErrInactive, "run loop stopped")
	}
	return nil
}

func (m *Mediator) effect(fn func()) {
	m.effects = append(m.effects, fn)
}

func (m *Mediator) emit(e event.Event) {
	m.effect(func() { m.events.Publish(e) })
}

func (m *Mediator) source() event.Source {
	return event.Source{ResourceID: m.cfg.ResourceID, PID: m.pid, At: m.clock.Now()}
}

func (m *Mediator) lookupProcess(pid int) resource.ProcessInfo {
	if m.processInfo != nil {
		if info, err := m.processInfo(pid); err == nil {
			return info
		}
	}
	return resource.ProcessInfo{PID: pid, UID: -1}
}
