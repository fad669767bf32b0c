package mediator

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/Iron-Ham/arbiter/internal/bus"
	"github.com/Iron-Ham/arbiter/internal/clock"
	"github.com/Iron-Ham/arbiter/internal/event"
	"github.com/Iron-Ham/arbiter/internal/message"
	"github.com/Iron-Ham/arbiter/internal/resource"
	"github.com/Iron-Ham/arbiter/internal/runloop"
	"github.com/Iron-Ham/arbiter/internal/testutil"
)

const testResource = "ir-remote"

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// harness runs several mediators on one manual loop over a loopback bus,
// so every interleaving is reproducible.
type harness struct {
	t     *testing.T
	loop  *runloop.Manual
	bus   *bus.Loopback
	clock *clock.Fake
	res   *testutil.ScarceResource

	mu    sync.Mutex
	dead  map[int]bool
	nodes []*node
}

type node struct {
	m      *Mediator
	d      *testutil.PolicyDelegate
	events []event.Event
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		t:     t,
		loop:  runloop.NewManual(),
		bus:   bus.NewLoopback(),
		clock: clock.NewFake(epoch),
		res:   testutil.NewScarceResource(),
		dead:  make(map[int]bool),
	}
	t.Cleanup(func() {
		for _, n := range h.nodes {
			_ = n.m.Deactivate()
		}
		h.loop.RunUntilIdle()
		h.loop.Stop()
	})
	return h
}

func (h *harness) alive(pid int) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.dead[pid]
}

func (h *harness) kill(pid int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dead[pid] = true
}

// add creates an inactive mediator for pid. setup adjusts the default
// config: no discovery window, no reaper, 10s response and 30s delegate
// timeouts.
func (h *harness) add(pid int, setup func(*Config), opts ...Option) *node {
	h.t.Helper()
	cfg := Config{
		ResourceID:      testResource,
		PID:             pid,
		ResponseTimeout: DefaultResponseTimeout,
		DelegateTimeout: DefaultDelegateTimeout,
	}
	if setup != nil {
		setup(&cfg)
	}
	d := testutil.NewPolicyDelegate(strconv.Itoa(pid), h.res)
	all := append([]Option{
		WithLoop(h.loop),
		WithClock(h.clock),
		WithLivenessProbe(h.alive),
		WithProcessInfo(func(pid int) (resource.ProcessInfo, error) {
			return resource.ProcessInfo{PID: pid, Name: "proc-" + strconv.Itoa(pid), UID: 1000}, nil
		}),
	}, opts...)
	m, err := New(cfg, h.bus, d, all...)
	if err != nil {
		h.t.Fatalf("New(%d) error = %v", pid, err)
	}
	n := &node{m: m, d: d}
	m.Events().SubscribeAll(func(e event.Event) { n.events = append(n.events, e) })
	h.nodes = append(h.nodes, n)
	return n
}

func (h *harness) activate(nodes ...*node) {
	h.t.Helper()
	for _, n := range nodes {
		if err := n.m.Activate(context.Background()); err != nil {
			h.t.Fatalf("Activate(%d) error = %v", n.m.PID(), err)
		}
		h.settle()
	}
}

// activateAll activates every node before any of them runs, as when
// processes start at the same moment.
func (h *harness) activateAll(nodes ...*node) {
	h.t.Helper()
	for _, n := range nodes {
		if err := n.m.Activate(context.Background()); err != nil {
			h.t.Fatalf("Activate(%d) error = %v", n.m.PID(), err)
		}
	}
	h.settle()
}

// settle runs the loop until idle, checking after every task that no two
// mediators hold conflicting access.
func (h *harness) settle() {
	h.t.Helper()
	for h.loop.RunOne() {
		h.checkExclusion()
	}
}

func (h *harness) checkExclusion() {
	h.t.Helper()
	blocking, shared := 0, 0
	for _, n := range h.nodes {
		// A killed process no longer holds anything.
		if !h.alive(n.m.PID()) {
			continue
		}
		switch n.m.Snapshot().ActualAccess {
		case resource.AccessBlocking:
			blocking++
		case resource.AccessShared:
			shared++
		}
	}
	if blocking > 1 || (blocking == 1 && shared > 0) {
		h.t.Fatalf("conflicting holders: %d blocking, %d shared", blocking, shared)
	}
}

// inject publishes msg as if a process outside the harness sent it.
func (h *harness) inject(msg message.Message) {
	h.t.Helper()
	if err := h.bus.Publish(context.Background(), msg); err != nil {
		h.t.Fatalf("Publish(%s) error = %v", msg, err)
	}
	h.settle()
}

// sent returns the messages published since mark that match kind.
func (h *harness) sent(mark int, kind message.Kind) []message.Message {
	var out []message.Message
	for _, m := range h.bus.Since(mark) {
		if m.Kind == kind {
			out = append(out, m)
		}
	}
	return out
}

func (n *node) snapshot() Snapshot { return n.m.Snapshot() }

func (n *node) count(eventType string) int {
	c := 0
	for _, e := range n.events {
		if e.EventType() == eventType {
			c++
		}
	}
	return c
}

func (n *node) last(eventType string) event.Event {
	for i := len(n.events) - 1; i >= 0; i-- {
		if n.events[i].EventType() == eventType {
			return n.events[i]
		}
	}
	return nil
}

func (n *node) user(pid int) *resource.User {
	u, ok := n.m.LookupUser(pid, false)
	if !ok {
		return nil
	}
	return u
}

// step describes one expected message for requireOrder.
type step struct {
	kind   message.Kind
	from   int
	to     int
	actual resource.Access
}

func (s step) matches(m message.Message) bool {
	if m.Kind != s.kind || m.SenderPID != s.from || m.TargetPID != s.to {
		return false
	}
	return s.kind != message.KindStatus || m.ActualAccess == s.actual
}

// requireOrder checks that want occurs in msgs in order, other messages
// interleaved.
func requireOrder(t *testing.T, msgs []message.Message, want ...step) {
	t.Helper()
	i := 0
	for _, m := range msgs {
		if i < len(want) && want[i].matches(m) {
			i++
		}
	}
	if i < len(want) {
		var got []string
		for _, m := range msgs {
			got = append(got, m.String())
		}
		t.Fatalf("message %d (%s %d->%d) not found in order; traffic:\n%v",
			i, want[i].kind, want[i].from, want[i].to, got)
	}
}

func peerStatus(pid int, preferred, actual resource.Access, target int) message.Message {
	u := resource.NewUser(pid, true)
	u.PreferredAccess = preferred
	u.ActualAccess = actual
	return message.NewStatus(testResource, u, target)
}
