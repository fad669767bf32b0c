package observer

import (
	"context"
	"testing"
	"time"

	"github.com/Iron-Ham/arbiter/internal/errors"
	"github.com/Iron-Ham/arbiter/internal/resource"
)

const (
	flagsRO = 0o100000
	flagsRW = 0o100002
)

func remote() Device {
	return Device{ID: "input5", Class: "input", Name: "IR Remote", Nodes: []string{"/dev/input/event3"}}
}

func client(pid, fd, flags, uid int, name string) Client {
	return Client{
		DeviceID: "input5",
		Node:     "/dev/input/event3",
		PID:      pid,
		FD:       fd,
		Flags:    flags,
		Process:  resource.ProcessInfo{PID: pid, Name: name, UID: uid},
	}
}

func TestObserver_ScanDiff(t *testing.T) {
	reg := NewMemoryRegistry()
	obs := New(reg, Config{DeviceClass: "input", OwnPID: 1})
	ctx := context.Background()

	reg.AddDevice(remote())
	reg.Open(client(200, 3, flagsRO, 1000, "viewer"))
	reg.Open(client(200, 4, flagsRW, 1000, "viewer"))
	reg.Open(client(300, 5, flagsRO, 1000, "player"))
	reg.Open(client(1, 6, flagsRW, 1000, "self"))

	change, err := obs.Scan(ctx)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if len(change.Arrived) != 1 || change.Arrived[0].ID != "input5" {
		t.Errorf("Arrived = %v", change.Arrived)
	}
	if len(change.Upserted) != 2 {
		t.Fatalf("Upserted = %+v, want pids 200 and 300", change.Upserted)
	}
	if got := change.Upserted[0]; got.PID != 200 || got.Access != resource.AccessBlocking {
		t.Errorf("pid 200 = %+v, want blocking", got)
	}
	if got := change.Upserted[1]; got.PID != 300 || got.Access != resource.AccessShared {
		t.Errorf("pid 300 = %+v, want shared", got)
	}
	if change.Upserted[0].TrackingKey != "observer:input5" {
		t.Errorf("TrackingKey = %q", change.Upserted[0].TrackingKey)
	}

	// Nothing changed.
	change, _ = obs.Scan(ctx)
	if !change.Empty() {
		t.Errorf("second scan = %+v, want empty", change)
	}

	reg.Close(300)
	change, _ = obs.Scan(ctx)
	if len(change.Gone) != 1 || change.Gone[0] != 300 {
		t.Errorf("Gone = %v, want [300]", change.Gone)
	}

	reg.RemoveDevice("input5")
	change, _ = obs.Scan(ctx)
	if len(change.Removed) != 1 || len(change.Gone) != 1 || change.Gone[0] != 200 {
		t.Errorf("after removal = %+v", change)
	}
	if len(obs.Devices()) != 0 || len(obs.Observations()) != 0 {
		t.Error("observer state not cleared after device removal")
	}
}

func TestObserver_AccessChangeIsUpsert(t *testing.T) {
	reg := NewMemoryRegistry()
	obs := New(reg, Config{DeviceClass: "input"})
	ctx := context.Background()
	reg.AddDevice(remote())
	reg.Open(client(200, 3, flagsRO, 1000, "viewer"))
	_, _ = obs.Scan(ctx)

	reg.Open(client(200, 4, flagsRW, 1000, "viewer"))
	change, _ := obs.Scan(ctx)
	if len(change.Upserted) != 1 || change.Upserted[0].Access != resource.AccessBlocking {
		t.Errorf("Upserted = %+v, want pid 200 blocking", change.Upserted)
	}
}

func TestObserver_Hooks(t *testing.T) {
	reg := NewMemoryRegistry()
	deviceAsks := 0
	clientAsks := 0
	obs := New(reg, Config{
		DeviceClass: "input",
		Hooks: Hooks{
			TrackDevice: func(d Device) bool {
				deviceAsks++
				return d.Name == "IR Remote"
			},
			TrackClient: Chain(ExcludeSharedSystemDaemons, func(c Client, pid int, name string) bool {
				clientAsks++
				return name != "blocked"
			}),
		},
	})
	ctx := context.Background()

	reg.AddDevice(remote())
	reg.AddDevice(Device{ID: "input9", Class: "input", Name: "Keyboard", Nodes: []string{"/dev/input/event9"}})
	reg.Open(client(100, 3, flagsRO, 0, "daemon"))     // shared system daemon
	reg.Open(client(101, 3, flagsRW, 0, "root-app"))   // exclusive, tracked
	reg.Open(client(102, 3, flagsRO, 1000, "blocked")) // host says no

	change, err := obs.Scan(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(change.Arrived) != 1 {
		t.Errorf("Arrived = %v, want only the remote", change.Arrived)
	}
	if len(change.Upserted) != 1 || change.Upserted[0].PID != 101 {
		t.Errorf("Upserted = %+v, want only pid 101", change.Upserted)
	}

	_, _ = obs.Scan(ctx)
	if deviceAsks != 2 {
		t.Errorf("TrackDevice asked %d times, want 2", deviceAsks)
	}
	if clientAsks != 2 {
		t.Errorf("TrackClient asked %d times, want 2", clientAsks)
	}
}

func TestObserver_RegistryError(t *testing.T) {
	reg := NewMemoryRegistry()
	reg.SetError(errors.New("permission denied"))
	obs := New(reg, Config{DeviceClass: "input"})

	_, err := obs.Scan(context.Background())
	if !errors.Is(err, errors.ErrRegistry) {
		t.Fatalf("Scan() error = %v, want ErrRegistry", err)
	}
	if err := obs.Start(context.Background(), func(Change) {}); !errors.Is(err, errors.ErrRegistry) {
		t.Errorf("Start() error = %v, want ErrRegistry", err)
	}
	obs.Stop()
}

func TestObserver_StartWatchesChanges(t *testing.T) {
	reg := NewMemoryRegistry()
	reg.AddDevice(remote())
	obs := New(reg, Config{DeviceClass: "input", PollInterval: time.Hour})

	changes := make(chan Change, 8)
	if err := obs.Start(context.Background(), func(c Change) { changes <- c }); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer obs.Stop()

	select {
	case c := <-changes:
		if len(c.Arrived) != 1 {
			t.Errorf("initial change = %+v", c)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no initial change")
	}

	reg.Open(client(400, 3, flagsRW, 1000, "grabber"))
	reg.Notify("/dev/input/event3")

	select {
	case c := <-changes:
		if len(c.Upserted) != 1 || c.Upserted[0].PID != 400 {
			t.Errorf("change = %+v", c)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("watch hint did not trigger a scan")
	}

	if err := obs.Start(context.Background(), func(Change) {}); err == nil {
		t.Error("second Start() should fail")
	}
}

func TestInferAccess(t *testing.T) {
	tests := []struct {
		flags int
		want  resource.Access
	}{
		{flagsRO, resource.AccessShared},
		{flagsRW, resource.AccessBlocking},
		{0o1, resource.AccessBlocking},
		{-1, resource.AccessUnknown},
	}
	for _, tt := range tests {
		if got := InferAccess(Client{Flags: tt.flags}); got != tt.want {
			t.Errorf("InferAccess(%o) = %v, want %v", tt.flags, got, tt.want)
		}
	}
}

func TestClient_Key(t *testing.T) {
	c := Client{DeviceID: "lirc0", Node: "/dev/lirc0", PID: 4000, FD: 7, Flags: flagsRW}
	if got, want := c.Key(), "lirc0|/dev/lirc0|4000|7"; got != want {
		t.Errorf("Key() = %q, want %q", got, want)
	}
	// Flags and process details do not identify the connection.
	other := c
	other.Flags = flagsRO
	other.Process.Name = "mode2"
	if other.Key() != c.Key() {
		t.Errorf("Key() changed with flags: %q vs %q", other.Key(), c.Key())
	}
}

func TestExcludeSharedSystemDaemons(t *testing.T) {
	tests := []struct {
		name string
		c    Client
		want bool
	}{
		{"system read-only", client(1, 1, flagsRO, 0, "hidd"), false},
		{"system exclusive", client(1, 1, flagsRW, 0, "hidd"), true},
		{"user read-only", client(1, 1, flagsRO, 1000, "app"), true},
		{"unknown uid", client(1, 1, flagsRO, -1, "app"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExcludeSharedSystemDaemons(tt.c, tt.c.PID, tt.c.Process.Name); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}
