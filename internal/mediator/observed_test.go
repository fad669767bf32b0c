package mediator

import (
	"errors"
	"testing"
	"time"

	"github.com/Iron-Ham/arbiter/internal/event"
	"github.com/Iron-Ham/arbiter/internal/message"
	"github.com/Iron-Ham/arbiter/internal/observer"
	"github.com/Iron-Ham/arbiter/internal/resource"
	"github.com/Iron-Ham/arbiter/internal/testutil"
)

const (
	openRO = 0o100000
	openRW = 0o100002
)

func remoteDevice() observer.Device {
	return observer.Device{ID: "input5", Class: "input", Name: "IR Remote", Nodes: []string{"/dev/input/event3"}}
}

func openClient(pid, flags, uid int, name string) observer.Client {
	return observer.Client{
		DeviceID: "input5",
		Node:     "/dev/input/event3",
		PID:      pid,
		FD:       4,
		Flags:    flags,
		Process:  resource.ProcessInfo{PID: pid, Name: name, UID: uid},
	}
}

func observed(h *harness, reg observer.Registry) *observer.Observer {
	return observer.New(reg, observer.Config{
		DeviceClass:  "input",
		PollInterval: time.Hour,
		OwnPID:       100,
		Hooks:        observer.Hooks{TrackClient: observer.ExcludeSharedSystemDaemons},
	}, observer.WithClock(h.clock))
}

func TestObserver_NonProtocolUsers(t *testing.T) {
	h := newHarness(t)
	reg := observer.NewMemoryRegistry()
	reg.AddDevice(remoteDevice())
	reg.Open(openClient(400, openRW, 1000, "lircd-player"))
	reg.Open(openClient(500, openRO, 0, "inputd"))
	reg.Open(openClient(100, openRW, 1000, "self"))

	n := h.add(100, required, WithObserver(observed(h, reg)))
	if err := n.m.Activate(t.Context()); err != nil {
		t.Fatal(err)
	}
	testutil.Eventually(t, 2*time.Second, func() bool {
		h.settle()
		return n.user(400) != nil
	}, "observed user never appeared")

	u := n.user(400)
	if u.UsingProtocol || u.ActualAccess != resource.AccessBlocking || u.Process.Name != "lircd-player" {
		t.Errorf("user 400 = %+v", u)
	}
	if u.TrackingKey == "" {
		t.Error("tracking key not recorded")
	}
	if n.user(500) != nil {
		t.Error("shared system daemon should be ignored")
	}
	if n.user(100) != nil {
		t.Error("own pid listed as a user")
	}
	if n.count(event.TypeDeviceArrived) != 1 {
		t.Errorf("device.arrived = %d, want 1", n.count(event.TypeDeviceArrived))
	}

	// A non-protocol holder blocks but is never asked.
	mark := h.bus.Len()
	if err := n.m.SetPreferredAccess(resource.AccessBlocking); err != nil {
		t.Fatal(err)
	}
	h.settle()
	if got := len(h.sent(mark, message.KindAccessRequest)); got != 0 {
		t.Errorf("sent %d requests to a non-protocol user", got)
	}
	if s := n.snapshot(); s.ActualAccess != resource.AccessNone {
		t.Fatalf("actual = %s while blocked", s.ActualAccess)
	}

	reg.Close(400)
	reg.Notify("/dev/input/event3")
	testutil.Eventually(t, 2*time.Second, func() bool {
		h.settle()
		return n.snapshot().ActualAccess == resource.AccessBlocking
	}, "mediator never took the released device")

	gone := n.last(event.TypeUserDisappeared).(event.UserDisappearedEvent)
	if gone.User.PID != 400 || gone.Reason != ReasonClosed {
		t.Errorf("user.disappeared = %+v", gone)
	}
}

func TestObserver_ProtocolUserKeepsItsOwnStatus(t *testing.T) {
	h := newHarness(t)
	reg := observer.NewMemoryRegistry()
	reg.AddDevice(remoteDevice())

	n := h.add(100, nil, WithObserver(observed(h, reg)))
	peer := h.add(300, func(c *Config) { c.PreferredAccess = resource.AccessShared })
	h.activate(n, peer)

	// The kernel sees a write handle, the peer says it shares.
	reg.Open(openClient(300, openRW, 1000, "peer"))
	reg.Notify("/dev/input/event3")
	testutil.Eventually(t, 2*time.Second, func() bool {
		h.settle()
		u := n.user(300)
		return u != nil && u.TrackingKey != ""
	}, "observation never reached the protocol user")

	u := n.user(300)
	if !u.UsingProtocol || u.ActualAccess != resource.AccessShared {
		t.Errorf("user 300 = %+v, want protocol user sharing", u)
	}

	// Closing the handle does not retire a protocol user.
	reg.Close(300)
	reg.Notify("/dev/input/event3")
	testutil.Never(t, 50*time.Millisecond, func() bool {
		h.settle()
		return n.user(300) == nil
	}, "protocol user retired by the observer")
}

func TestObserver_FailureIsReported(t *testing.T) {
	h := newHarness(t)
	reg := observer.NewMemoryRegistry()
	reg.SetError(errors.New("sysfs unavailable"))

	n := h.add(100, func(c *Config) { c.PreferredAccess = resource.AccessShared }, WithObserver(observed(h, reg)))
	if err := n.m.Activate(t.Context()); err != nil {
		t.Fatalf("Activate() error = %v, observer failures must not stop activation", err)
	}
	testutil.Eventually(t, 2*time.Second, func() bool {
		h.settle()
		return n.count(event.TypeObserverFailed) == 1
	}, "observer.failed never published")

	if !n.m.Active() || n.snapshot().ActualAccess != resource.AccessShared {
		t.Error("mediator should keep working on protocol information")
	}
}
