package mediate

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/arbiter/internal/config"
	"github.com/Iron-Ham/arbiter/internal/errors"
	"github.com/Iron-Ham/arbiter/internal/event"
	"github.com/Iron-Ham/arbiter/internal/host"
	"github.com/Iron-Ham/arbiter/internal/resource"
	"github.com/Iron-Ham/arbiter/internal/testutil"
)

// safeBuffer is a bytes.Buffer that can be read while serve writes to it.
type safeBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *safeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *safeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func testConfig(t *testing.T, pid int) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Mediator.Resource = "ir-remote"
	cfg.Mediator.PID = pid
	cfg.Mediator.ReapInterval = 0
	cfg.Mediator.DiscoveryWindow = 20 * time.Millisecond
	cfg.Bus.Dir = t.TempDir()
	cfg.Bus.PollInterval = 20 * time.Millisecond
	cfg.Observer.Enabled = false
	cfg.Logging.Enabled = false
	return cfg
}

func parsedFlags(t *testing.T, args ...string) (*cobra.Command, *hostFlags) {
	t.Helper()
	var f hostFlags
	cmd := &cobra.Command{Use: "test"}
	f.register(cmd.Flags())
	if err := cmd.Flags().Parse(args); err != nil {
		t.Fatalf("Parse(%v) error = %v", args, err)
	}
	return cmd, &f
}

func TestHostFlags_Apply(t *testing.T) {
	cmd, f := parsedFlags(t,
		"--access", "exclusive",
		"--pressure", "70",
		"--yield", "pressure",
		"--info", "room=den,app=player",
		"--pid", "4242",
	)
	m := config.Default().Mediator
	m.BroadcastInfo = map[string]any{"room": "kitchen", "seat": "left"}

	if err := f.apply(cmd.Flags(), &m); err != nil {
		t.Fatalf("apply() error = %v", err)
	}
	if m.PreferredAccess != resource.AccessBlocking {
		t.Errorf("PreferredAccess = %s, want blocking", m.PreferredAccess)
	}
	if m.AccessPressure != 70 {
		t.Errorf("AccessPressure = %d, want 70", m.AccessPressure)
	}
	if m.YieldPolicy != resource.YieldByPressure {
		t.Errorf("YieldPolicy = %q, want pressure", m.YieldPolicy)
	}
	if m.PID != 4242 {
		t.Errorf("PID = %d, want 4242", m.PID)
	}
	want := map[string]any{"room": "den", "app": "player", "seat": "left"}
	if len(m.BroadcastInfo) != len(want) {
		t.Fatalf("BroadcastInfo = %v, want %v", m.BroadcastInfo, want)
	}
	for k, v := range want {
		if m.BroadcastInfo[k] != v {
			t.Errorf("BroadcastInfo[%q] = %v, want %v", k, m.BroadcastInfo[k], v)
		}
	}
}

func TestHostFlags_OnlyChangedApply(t *testing.T) {
	cmd, f := parsedFlags(t, "--access", "shared")
	m := config.Default().Mediator
	m.AccessPressure = resource.PressureRequired
	m.YieldPolicy = resource.YieldNever
	m.PID = 7

	if err := f.apply(cmd.Flags(), &m); err != nil {
		t.Fatalf("apply() error = %v", err)
	}
	if m.PreferredAccess != resource.AccessShared {
		t.Errorf("PreferredAccess = %s, want shared", m.PreferredAccess)
	}
	if m.AccessPressure != resource.PressureRequired || m.YieldPolicy != resource.YieldNever || m.PID != 7 {
		t.Errorf("unchanged fields overwritten: %+v", m)
	}
}

func TestHostFlags_ExplicitNonePressure(t *testing.T) {
	cmd, f := parsedFlags(t, "--pressure", "none")
	m := config.Default().Mediator
	if err := f.apply(cmd.Flags(), &m); err != nil {
		t.Fatalf("apply() error = %v", err)
	}
	if m.AccessPressure != resource.PressureNone {
		t.Errorf("AccessPressure = %s, want none", m.AccessPressure)
	}
}

func TestHostFlags_Rejects(t *testing.T) {
	tests := [][]string{
		{"--access", "sometimes"},
		{"--pressure", "101"},
		{"--yield", "maybe"},
		{"--info", "novalue"},
	}
	for _, args := range tests {
		var f hostFlags
		cmd := &cobra.Command{Use: "test"}
		f.register(cmd.Flags())
		if err := cmd.Flags().Parse(args); err == nil {
			t.Errorf("Parse(%v) error = nil", args)
		}
	}

	cmd, f := parsedFlags(t, "--pid", "-3")
	m := config.Default().Mediator
	if err := f.apply(cmd.Flags(), &m); err == nil {
		t.Error("apply() accepted a negative pid")
	}
}

func TestServe(t *testing.T) {
	cfg := testConfig(t, 1001)
	cfg.Mediator.PreferredAccess = resource.AccessBlocking

	ctx, cancel := context.WithCancel(t.Context())
	out := &safeBuffer{}
	done := make(chan error, 1)
	go func() { done <- serve(ctx, out, cfg) }()

	testutil.Eventually(t, 2*time.Second, func() bool {
		return strings.Contains(out.String(), "access none -> blocking")
	}, "serve never took the free resource")
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("serve() did not return after cancel")
	}

	got := out.String()
	for _, want := range []string{
		"Arbitrating ir-remote as pid 1001",
		"joined ir-remote as pid 1001",
		"Left ir-remote holding blocking",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}

func TestServe_InvalidHost(t *testing.T) {
	cfg := testConfig(t, 1001)
	cfg.Mediator.Resource = ""
	if err := serve(t.Context(), &safeBuffer{}, cfg); err == nil {
		t.Fatal("serve() without a resource should fail")
	}
}

func TestEventLine(t *testing.T) {
	at := time.Date(2026, 3, 1, 9, 30, 5, 0, time.UTC)
	src := event.Source{ResourceID: "ir-remote", PID: 100, At: at}

	denied := event.NewResponseReceivedEvent(src, 200, resource.AccessBlocking, resource.ResultDeny,
		errors.NewArbitrationError(200, resource.AccessBlocking, resource.ResultDeny))
	if got := eventLine(denied); !strings.HasPrefix(got, "09:30:05  pid 200 refused blocking") {
		t.Errorf("eventLine(denied) = %q", got)
	}

	silent := event.NewResponseReceivedEvent(src, 200, resource.AccessBlocking, resource.ResultError,
		errors.NewUnresponsiveError(200, resource.AccessBlocking, 10*time.Second))
	if got := eventLine(silent); !strings.HasPrefix(got, "09:30:05  warning: pid 200 refused blocking") {
		t.Errorf("eventLine(unresponsive) = %q", got)
	}
}

func TestSteering_SetAccessPressure(t *testing.T) {
	cfg := testConfig(t, 1001)
	delegate := host.NewPolicyDelegate(resource.YieldByPressure, resource.PressureOptional, nil, nil)
	h, err := host.New(cfg, delegate)
	if err != nil {
		t.Fatalf("host.New() error = %v", err)
	}
	t.Cleanup(func() { _ = h.Close() })

	s := steering{Mediator: h.Mediator, delegate: delegate}
	if err := s.SetAccessPressure(resource.PressureRequired); err != nil {
		t.Fatalf("SetAccessPressure() error = %v", err)
	}
	testutil.Eventually(t, time.Second, func() bool {
		return h.Mediator.Snapshot().AccessPressure == resource.PressureRequired
	}, "mediator pressure not updated")

	peer := resource.NewUser(2002, true)
	peer.AccessPressure = resource.PressurePartiallySupported
	var got resource.Result
	delegate.SetApplicationAccess(resource.AccessNone, peer, func(r resource.Result) { got = r })
	if got != resource.ResultDeny {
		t.Errorf("request at partial pressure = %s, want deny once own pressure is required", got)
	}
}
