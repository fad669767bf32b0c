//go:build linux

package observer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/sys/unix"

	"github.com/Iron-Ham/arbiter/internal/resource"
)

type fakeKernel struct {
	sys, proc, dev string
}

func newFakeKernel(t *testing.T) fakeKernel {
	t.Helper()
	root := t.TempDir()
	k := fakeKernel{
		sys:  filepath.Join(root, "sys"),
		proc: filepath.Join(root, "proc"),
		dev:  filepath.Join(root, "dev"),
	}
	class := filepath.Join(k.sys, "class", "input")
	mkdir(t, filepath.Join(class, "input5"))
	mkdir(t, filepath.Join(class, "event3"))
	mkdir(t, filepath.Join(class, "js0"))
	write(t, filepath.Join(class, "input5", "name"), "IR Remote\n")
	write(t, filepath.Join(class, "input5", "uevent"), "PRODUCT=3/5ac/8242/100\nNAME=\"IR Remote\"\n")
	write(t, filepath.Join(class, "event3", "uevent"), "MAJOR=13\nMINOR=67\nDEVNAME=input/event3\n")
	write(t, filepath.Join(class, "js0", "uevent"), "MAJOR=13\nMINOR=0\nDEVNAME=input/js0\n")
	symlink(t, "../input5", filepath.Join(class, "event3", "device"))
	symlink(t, "../input5", filepath.Join(class, "js0", "device"))

	mkdir(t, filepath.Join(k.dev, "input"))
	write(t, filepath.Join(k.dev, "input", "event3"), "")
	write(t, filepath.Join(k.dev, "input", "js0"), "")

	mkdir(t, k.proc)
	write(t, filepath.Join(k.proc, "stat"), "btime 1700000000\n")
	return k
}

func (k fakeKernel) process(t *testing.T, pid, comm string, fds map[string]string) {
	t.Helper()
	dir := filepath.Join(k.proc, pid)
	mkdir(t, filepath.Join(dir, "fd"))
	mkdir(t, filepath.Join(dir, "fdinfo"))
	write(t, filepath.Join(dir, "stat"), pid+" ("+comm+") S 1 1 1 0 -1 0 0 0 0 0 0 0 0 0 20 0 1 0 100 0 0\n")
	for fd, spec := range fds {
		target, flags, _ := cut(spec)
		symlink(t, target, filepath.Join(dir, "fd", fd))
		write(t, filepath.Join(dir, "fdinfo", fd), "pos:\t0\nflags:\t"+flags+"\n")
	}
}

func cut(s string) (string, string, bool) {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '@' {
			return s[:i], s[i+1:], true
		}
	}
	return s, "", false
}

func mkdir(t *testing.T, p string) {
	t.Helper()
	if err := os.MkdirAll(p, 0o755); err != nil {
		t.Fatal(err)
	}
}

func write(t *testing.T, p, content string) {
	t.Helper()
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func symlink(t *testing.T, target, p string) {
	t.Helper()
	if err := os.Symlink(target, p); err != nil {
		t.Fatal(err)
	}
}

func (k fakeKernel) registry(glob string) *LinuxRegistry {
	return NewLinuxRegistry(LinuxConfig{SysfsRoot: k.sys, ProcRoot: k.proc, DevRoot: k.dev, NodeGlob: glob}, nil)
}

func TestLinuxRegistry_Devices(t *testing.T) {
	k := newFakeKernel(t)
	devices, err := k.registry("event*").Devices(context.Background(), "input")
	if err != nil {
		t.Fatalf("Devices() error = %v", err)
	}
	if len(devices) != 1 {
		t.Fatalf("Devices() = %+v, want the folded input5", devices)
	}
	d := devices[0]
	if d.ID != "input5" || d.Name != "IR Remote" || d.Class != "input" {
		t.Errorf("device = %+v", d)
	}
	wantNode := filepath.Join(k.dev, "input", "event3")
	if len(d.Nodes) != 1 || d.Nodes[0] != wantNode {
		t.Errorf("Nodes = %v, want [%s]", d.Nodes, wantNode)
	}
	if d.Rdevs[0] != unix.Mkdev(13, 67) {
		t.Errorf("Rdev = %d, want 13:67", d.Rdevs[0])
	}

	all, _ := k.registry("*").Devices(context.Background(), "input")
	if len(all[0].Nodes) != 2 {
		t.Errorf("glob * nodes = %v, want event3 and js0", all[0].Nodes)
	}
}

func TestLinuxRegistry_MissingClass(t *testing.T) {
	k := newFakeKernel(t)
	if _, err := k.registry("*").Devices(context.Background(), "hidraw"); err == nil {
		t.Error("Devices() of a missing class should fail")
	}
}

func TestLinuxRegistry_Clients(t *testing.T) {
	k := newFakeKernel(t)
	event3 := filepath.Join(k.dev, "input", "event3")
	js0 := filepath.Join(k.dev, "input", "js0")
	k.process(t, "500", "grabber", map[string]string{"4": event3 + "@0100002"})
	k.process(t, "501", "viewer", map[string]string{"7": event3 + "@0100000", "8": js0 + "@0100000"})
	k.process(t, "502", "other", map[string]string{"3": "/tmp/x@0100002"})

	reg := k.registry("event*")
	ctx := context.Background()
	devices, err := reg.Devices(ctx, "input")
	if err != nil {
		t.Fatal(err)
	}
	clients, err := reg.Clients(ctx, devices)
	if err != nil {
		t.Fatalf("Clients() error = %v", err)
	}
	if len(clients) != 2 {
		t.Fatalf("Clients() = %+v, want two event3 connections", clients)
	}
	if c := clients[0]; c.FD != 4 || InferAccess(c) != resource.AccessBlocking {
		t.Errorf("grabber client = %+v, want fd 4 blocking", c)
	}
	if c := clients[0]; c.PID != 500 || c.DeviceID != "input5" || c.Process.Name != "grabber" {
		t.Errorf("first client = %+v", c)
	}
	if c := clients[1]; c.PID != 501 || c.FD != 7 || c.Node != event3 {
		t.Errorf("second client = %+v", c)
	}
}

func TestLinuxRegistry_ObserverEndToEnd(t *testing.T) {
	k := newFakeKernel(t)
	event3 := filepath.Join(k.dev, "input", "event3")
	k.process(t, "600", "player", map[string]string{"5": event3 + "@0100000"})

	obs := New(k.registry("event*"), Config{DeviceClass: "input"})
	change, err := obs.Scan(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(change.Upserted) != 1 || change.Upserted[0].PID != 600 || change.Upserted[0].Access != resource.AccessShared {
		t.Errorf("Upserted = %+v", change.Upserted)
	}
}
