//go:build linux

package proc

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"
)

// fakeProc builds a minimal proc tree for pid under a temp root.
func fakeProc(t *testing.T, pid int, comm string) string {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, strconv.Itoa(pid))
	for _, sub := range []string{"fd", "fdinfo"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	// 20 fields after comm; starttime (the 20th) is 500 ticks = 5s.
	stat := strconv.Itoa(pid) + " (" + comm + ") S 1 1 1 0 -1 0 0 0 0 0 0 0 0 0 20 0 1 0 500 0 0\n"
	writeFile(t, filepath.Join(dir, "stat"), stat)
	writeFile(t, filepath.Join(root, "stat"), "cpu 1 2 3\nbtime 1700000000\n")
	return root
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func addFD(t *testing.T, root string, pid, fd int, target, flags string) {
	t.Helper()
	dir := filepath.Join(root, strconv.Itoa(pid))
	if err := os.Symlink(target, filepath.Join(dir, "fd", strconv.Itoa(fd))); err != nil {
		t.Fatal(err)
	}
	if flags != "" {
		writeFile(t, filepath.Join(dir, "fdinfo", strconv.Itoa(fd)), "pos:\t0\nflags:\t"+flags+"\nmnt_id:\t25\n")
	}
}

func TestRead(t *testing.T) {
	root := fakeProc(t, 4242, "my (odd) app")

	info, err := Read(root, 4242)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if info.Name != "my (odd) app" {
		t.Errorf("Name = %q", info.Name)
	}
	want := time.Unix(1700000000, 0).Add(5 * time.Second)
	if !info.StartedAt.Equal(want) {
		t.Errorf("StartedAt = %v, want %v", info.StartedAt, want)
	}
	if info.UID != os.Getuid() {
		t.Errorf("UID = %d, want %d", info.UID, os.Getuid())
	}
}

func TestRead_Missing(t *testing.T) {
	if _, err := Read(t.TempDir(), 1); err == nil {
		t.Error("Read() of missing pid should fail")
	}
}

func TestParseStat_Invalid(t *testing.T) {
	for _, raw := range []string{"", "12 no parens", "12 (x) S 1"} {
		if _, _, err := parseStat([]byte(raw)); err == nil {
			t.Errorf("parseStat(%q) should fail", raw)
		}
	}
}

func TestPIDs(t *testing.T) {
	root := fakeProc(t, 10, "a")
	if err := os.MkdirAll(filepath.Join(root, "self"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(root, "20"), 0o755); err != nil {
		t.Fatal(err)
	}
	pids, err := PIDs(root)
	if err != nil {
		t.Fatal(err)
	}
	if len(pids) != 2 {
		t.Errorf("PIDs() = %v, want [10 20]", pids)
	}
}

func TestOpenFiles(t *testing.T) {
	root := fakeProc(t, 77, "player")
	target := filepath.Join(t.TempDir(), "node")
	writeFile(t, target, "")

	addFD(t, root, 77, 3, target, "0100000")  // O_RDONLY|O_LARGEFILE
	addFD(t, root, 77, 4, target, "0100002")  // O_RDWR
	addFD(t, root, 77, 5, "socket:[991]", "") // no fdinfo

	fds, err := OpenFiles(root, 77)
	if err != nil {
		t.Fatalf("OpenFiles() error = %v", err)
	}
	if len(fds) != 3 {
		t.Fatalf("got %d fds, want 3", len(fds))
	}

	byFD := map[int]FileDescriptor{}
	for _, fd := range fds {
		byFD[fd.FD] = fd
	}
	if byFD[3].Target != target || byFD[3].Writable() {
		t.Errorf("fd 3 = %+v, want read-only %s", byFD[3], target)
	}
	if !byFD[4].Writable() {
		t.Errorf("fd 4 = %+v, want writable", byFD[4])
	}
	if byFD[5].Flags != -1 || byFD[5].Writable() {
		t.Errorf("fd 5 = %+v, want unknown flags", byFD[5])
	}
	if byFD[3].IsChar {
		t.Error("regular file reported as character device")
	}
}

func TestOpenFiles_CharDevice(t *testing.T) {
	root := fakeProc(t, 78, "tty")
	addFD(t, root, 78, 0, "/dev/null", "0100002")

	fds, err := OpenFiles(root, 78)
	if err != nil {
		t.Fatal(err)
	}
	if len(fds) != 1 || !fds[0].IsChar || fds[0].Rdev == 0 {
		t.Errorf("fds = %+v, want /dev/null as char device", fds)
	}
}
