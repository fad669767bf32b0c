package observer

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/Iron-Ham/arbiter/internal/clock"
	"github.com/Iron-Ham/arbiter/internal/errors"
	"github.com/Iron-Ham/arbiter/internal/logging"
	"github.com/Iron-Ham/arbiter/internal/resource"
)

// DefaultPollInterval is the rescan period when no change notification
// arrives.
const DefaultPollInterval = time.Second

// Config selects what the Observer tracks.
type Config struct {
	DeviceClass  string
	PollInterval time.Duration
	// OwnPID is never reported; the mediator speaks for it.
	OwnPID int
	Hooks  Hooks
}

// Option configures an Observer.
type Option func(*Observer)

// WithLogger attaches a logger.
func WithLogger(l *logging.Logger) Option {
	return func(o *Observer) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithClock replaces the clock driving the polling loop.
func WithClock(c clock.Clock) Option {
	return func(o *Observer) {
		if c != nil {
			o.clock = c
		}
	}
}

// Observer turns registry scans into per-process observations.
type Observer struct {
	registry Registry
	cfg      Config
	logger   *logging.Logger
	clock    clock.Clock

	// scanMu serializes scans; mu guards the published state below.
	scanMu          sync.Mutex
	deviceDecisions map[string]bool
	clientDecisions map[string]bool

	mu      sync.Mutex
	devices map[string]Device
	users   map[int]Observation

	lifecycle sync.Mutex
	cancel    context.CancelFunc
	wg        *conc.WaitGroup
}

// New returns an Observer reading reg.
func New(reg Registry, cfg Config, opts ...Option) *Observer {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	o := &Observer{
		registry:        reg,
		cfg:             cfg,
		logger:          logging.NopLogger(),
		clock:           clock.Real(),
		deviceDecisions: make(map[string]bool),
		clientDecisions: make(map[string]bool),
		devices:         make(map[string]Device),
		users:           make(map[int]Observation),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Scan runs one registry pass and returns the differences from the last.
func (o *Observer) Scan(ctx context.Context) (Change, error) {
	o.scanMu.Lock()
	defer o.scanMu.Unlock()

	class := o.cfg.DeviceClass
	found, err := o.registry.Devices(ctx, class)
	if err != nil {
		return Change{}, errors.NewRegistryError("enumerate devices", err).WithDeviceClass(class)
	}

	present := make(map[string]Device, len(found))
	for _, d := range found {
		accepted, decided := o.deviceDecisions[d.ID]
		if !decided {
			accepted = o.cfg.Hooks.trackDevice(d)
			o.deviceDecisions[d.ID] = accepted
			if !accepted {
				o.logger.Debug("device not tracked", "device", d.ID, "name", d.Name)
			}
		}
		if accepted {
			present[d.ID] = d
		}
	}
	pruneDecisions(o.deviceDecisions, func(id string) bool {
		return slices.ContainsFunc(found, func(d Device) bool { return d.ID == id })
	})

	tracked := make([]Device, 0, len(present))
	for _, d := range present {
		tracked = append(tracked, d)
	}
	sort.Slice(tracked, func(i, j int) bool { return tracked[i].ID < tracked[j].ID })

	var clients []Client
	if len(tracked) > 0 {
		clients, err = o.registry.Clients(ctx, tracked)
		if err != nil {
			return Change{}, errors.NewRegistryError("enumerate clients", err).WithDeviceClass(class)
		}
	}
	observed := o.fold(clients)

	o.mu.Lock()
	defer o.mu.Unlock()
	var change Change
	for _, d := range tracked {
		if _, ok := o.devices[d.ID]; !ok {
			change.Arrived = append(change.Arrived, d)
		}
	}
	for id, d := range o.devices {
		if _, ok := present[id]; !ok {
			change.Removed = append(change.Removed, d)
		}
	}
	sort.Slice(change.Removed, func(i, j int) bool { return change.Removed[i].ID < change.Removed[j].ID })

	pids := make([]int, 0, len(observed))
	for pid := range observed {
		pids = append(pids, pid)
	}
	sort.Ints(pids)
	for _, pid := range pids {
		obs := observed[pid]
		prev, ok := o.users[pid]
		if !ok || prev.Access != obs.Access || prev.TrackingKey != obs.TrackingKey {
			change.Upserted = append(change.Upserted, obs)
		}
	}
	for pid := range o.users {
		if _, ok := observed[pid]; !ok {
			change.Gone = append(change.Gone, pid)
		}
	}
	sort.Ints(change.Gone)

	o.devices = present
	o.users = observed
	return change, nil
}

// fold applies the client hook to new connections and merges the accepted
// ones into one observation per process.
func (o *Observer) fold(clients []Client) map[int]Observation {
	seen := make(map[string]bool, len(clients))
	out := make(map[int]Observation)
	for _, c := range clients {
		if c.PID == o.cfg.OwnPID {
			continue
		}
		key := c.Key()
		seen[key] = true
		accepted, decided := o.clientDecisions[key]
		if !decided {
			accepted = o.cfg.Hooks.trackClient(c)
			o.clientDecisions[key] = accepted
			if !accepted {
				o.logger.Debug("client not tracked", "pid", c.PID, "process", c.Process.DisplayName(), "node", c.Node)
			}
		}
		if !accepted {
			continue
		}

		obs, ok := out[c.PID]
		if !ok {
			obs = Observation{PID: c.PID, Access: resource.AccessNone, Process: c.Process}
		}
		obs.Access = strongest(obs.Access, InferAccess(c))
		if !slices.Contains(obs.Devices, c.DeviceID) {
			obs.Devices = append(obs.Devices, c.DeviceID)
		}
		out[c.PID] = obs
	}
	for pid, obs := range out {
		sort.Strings(obs.Devices)
		obs.TrackingKey = "observer:" + strings.Join(obs.Devices, ",")
		out[pid] = obs
	}
	pruneDecisions(o.clientDecisions, func(k string) bool { return seen[k] })
	return out
}

func pruneDecisions(m map[string]bool, keep func(string) bool) {
	for k := range m {
		if !keep(k) {
			delete(m, k)
		}
	}
}

// Devices returns the tracked devices as of the last scan.
func (o *Observer) Devices() []Device {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Device, 0, len(o.devices))
	for _, d := range o.devices {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Observations returns the per-process view as of the last scan.
func (o *Observer) Observations() []Observation {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Observation, 0, len(o.users))
	for _, obs := range o.users {
		out = append(out, obs)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PID < out[j].PID })
	return out
}

// Start scans once and then keeps scanning in the background, passing
// every non-empty Change to fn. fn runs on the observer's goroutine. A
// failing first scan is returned and nothing is started; later failures
// are logged and retried on the next tick.
func (o *Observer) Start(ctx context.Context, fn func(Change)) error {
	o.lifecycle.Lock()
	defer o.lifecycle.Unlock()
	if o.cancel != nil {
		return errors.New("observer already started")
	}

	change, err := o.Scan(ctx)
	if err != nil {
		o.logger.Error("observer failed to start", "device_class", o.cfg.DeviceClass, "error", err)
		return err
	}
	if !change.Empty() {
		fn(change)
	}

	runCtx, cancel := context.WithCancel(ctx)
	hints, err := o.registry.Watch(runCtx)
	if err != nil {
		o.logger.Warn("device watch unavailable, polling only", "error", err)
		hints = nil
	}

	o.cancel = cancel
	o.wg = conc.NewWaitGroup()
	o.wg.Go(func() { o.loop(runCtx, hints, fn) })
	return nil
}

func (o *Observer) loop(ctx context.Context, hints <-chan string, fn func(Change)) {
	ticker := o.clock.NewTicker(o.cfg.PollInterval)
	defer ticker.Stop()

	failing := false
	for {
		select {
		case <-ctx.Done():
			return
		case path, ok := <-hints:
			if !ok {
				hints = nil
				continue
			}
			o.logger.Debug("device node changed", "path", path)
		case <-ticker.C():
		}

		change, err := o.Scan(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if !failing {
				o.logger.Warn("observer scan failed", "error", err)
				failing = true
			}
			continue
		}
		if failing {
			o.logger.Info("observer scan recovered")
			failing = false
		}
		if !change.Empty() {
			fn(change)
		}
	}
}

// Stop ends background scanning and waits for the loop to exit.
func (o *Observer) Stop() {
	o.lifecycle.Lock()
	defer o.lifecycle.Unlock()
	if o.cancel == nil {
		return
	}
	o.cancel()
	o.wg.Wait()
	o.cancel = nil
	o.wg = nil
}
