//go:build linux

package observer

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/sourcegraph/conc/pool"
	"golang.org/x/sys/unix"

	"github.com/Iron-Ham/arbiter/internal/logging"
	"github.com/Iron-Ham/arbiter/internal/proc"
)

// LinuxRegistry reads devices from /sys/class/<class>, their nodes from
// /dev and client connections from /proc/<pid>/fd.
//
// Class devices whose parent is another device of the same class (an
// input device and its event, mouse and js handlers, for example) are
// folded into that parent, so the parent is the tracked Device and the
// handlers' nodes are its Nodes.
type LinuxRegistry struct {
	cfg    LinuxConfig
	logger *logging.Logger

	mu       sync.Mutex
	nodeDirs map[string]bool
}

// NewLinuxRegistry returns a registry reading the filesystems in cfg.
func NewLinuxRegistry(cfg LinuxConfig, logger *logging.Logger) *LinuxRegistry {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &LinuxRegistry{
		cfg:      cfg.withDefaults(),
		logger:   logger,
		nodeDirs: make(map[string]bool),
	}
}

type classEntry struct {
	name   string
	dir    string
	parent string
	uevent map[string]string
}

func (r *LinuxRegistry) Devices(ctx context.Context, class string) ([]Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	classDir := filepath.Join(r.cfg.SysfsRoot, "class", class)
	dirents, err := os.ReadDir(classDir)
	if err != nil {
		return nil, err
	}

	entries := make(map[string]*classEntry, len(dirents))
	for _, de := range dirents {
		dir := filepath.Join(classDir, de.Name())
		entries[de.Name()] = &classEntry{
			name:   de.Name(),
			dir:    dir,
			uevent: readUevent(filepath.Join(dir, "uevent")),
		}
	}
	for _, e := range entries {
		if link, err := os.Readlink(filepath.Join(e.dir, "device")); err == nil {
			if p := filepath.Base(link); p != e.name && entries[p] != nil {
				e.parent = p
			}
		}
	}

	devices := make(map[string]*Device)
	for _, e := range entries {
		if e.parent != "" {
			continue
		}
		devices[e.name] = &Device{
			ID:      e.name,
			Class:   class,
			Name:    deviceName(e.dir),
			SysPath: e.dir,
		}
	}

	dirs := make(map[string]bool)
	for _, e := range entries {
		owner := e.name
		if e.parent != "" {
			owner = e.parent
		}
		d := devices[owner]
		devname := e.uevent["DEVNAME"]
		if d == nil || devname == "" {
			continue
		}
		if ok, _ := path.Match(r.cfg.NodeGlob, path.Base(devname)); !ok {
			continue
		}
		node := filepath.Join(r.cfg.DevRoot, devname)
		d.Nodes = append(d.Nodes, node)
		d.Rdevs = append(d.Rdevs, nodeRdev(node, e.uevent))
		dirs[filepath.Dir(node)] = true
	}

	r.mu.Lock()
	for dir := range dirs {
		r.nodeDirs[dir] = true
	}
	r.mu.Unlock()

	out := make([]Device, 0, len(devices))
	for _, d := range devices {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// readUevent parses KEY=VALUE lines. A missing file yields an empty map.
func readUevent(p string) map[string]string {
	out := make(map[string]string)
	data, err := os.ReadFile(p)
	if err != nil {
		return out
	}
	for line := range strings.SplitSeq(string(data), "\n") {
		if k, v, ok := strings.Cut(line, "="); ok {
			out[k] = strings.Trim(v, `"`)
		}
	}
	return out
}

func deviceName(dir string) string {
	for _, p := range []string{"name", "device/name", "device/product"} {
		if data, err := os.ReadFile(filepath.Join(dir, p)); err == nil {
			if s := strings.TrimSpace(string(data)); s != "" {
				return s
			}
		}
	}
	return ""
}

// nodeRdev prefers the live node's device number and falls back to the
// MAJOR/MINOR the kernel announced.
func nodeRdev(node string, uevent map[string]string) uint64 {
	var st unix.Stat_t
	if err := unix.Stat(node, &st); err == nil && st.Mode&unix.S_IFMT == unix.S_IFCHR {
		return uint64(st.Rdev)
	}
	major, err1 := strconv.ParseUint(uevent["MAJOR"], 10, 32)
	minor, err2 := strconv.ParseUint(uevent["MINOR"], 10, 32)
	if err1 != nil || err2 != nil {
		return 0
	}
	return unix.Mkdev(uint32(major), uint32(minor))
}

type nodeRef struct {
	deviceID string
	node     string
}

func (r *LinuxRegistry) Clients(ctx context.Context, devices []Device) ([]Client, error) {
	byPath := make(map[string]nodeRef)
	byRdev := make(map[uint64]nodeRef)
	for _, d := range devices {
		for i, n := range d.Nodes {
			ref := nodeRef{deviceID: d.ID, node: n}
			byPath[n] = ref
			if i < len(d.Rdevs) && d.Rdevs[i] != 0 {
				byRdev[d.Rdevs[i]] = ref
			}
		}
	}
	if len(byPath) == 0 {
		return nil, nil
	}

	pids, err := proc.PIDs(r.cfg.ProcRoot)
	if err != nil {
		return nil, err
	}

	p := pool.NewWithResults[[]Client]().WithContext(ctx).WithMaxGoroutines(r.cfg.Workers)
	for _, pid := range pids {
		p.Go(func(ctx context.Context) ([]Client, error) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return r.clientsOf(pid, byPath, byRdev), nil
		})
	}
	results, err := p.Wait()
	if err != nil {
		return nil, err
	}

	var out []Client
	for _, cs := range results {
		out = append(out, cs...)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PID != out[j].PID {
			return out[i].PID < out[j].PID
		}
		return out[i].FD < out[j].FD
	})
	return out, nil
}

// clientsOf matches one process's descriptors against the device nodes.
// Processes that exit or deny access mid-scan contribute nothing.
func (r *LinuxRegistry) clientsOf(pid int, byPath map[string]nodeRef, byRdev map[uint64]nodeRef) []Client {
	fds, err := proc.OpenFiles(r.cfg.ProcRoot, pid)
	if err != nil {
		return nil
	}
	var out []Client
	for _, fd := range fds {
		ref, ok := byPath[fd.Target]
		if !ok && fd.IsChar {
			ref, ok = byRdev[fd.Rdev]
		}
		if !ok {
			continue
		}
		out = append(out, Client{
			DeviceID: ref.deviceID,
			Node:     ref.node,
			PID:      pid,
			FD:       fd.FD,
			Flags:    fd.Flags,
		})
	}
	if len(out) == 0 {
		return nil
	}
	info, err := proc.Read(r.cfg.ProcRoot, pid)
	if err != nil {
		r.logger.Debug("process metadata unavailable", "pid", pid, "error", err)
	}
	for i := range out {
		out[i].Process = info
	}
	return out
}

// Watch reports creation and removal of entries in the device root and in
// every node directory seen by Devices.
func (r *LinuxRegistry) Watch(ctx context.Context) (<-chan string, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(r.cfg.DevRoot); err != nil {
		_ = w.Close()
		return nil, err
	}
	r.mu.Lock()
	for dir := range r.nodeDirs {
		if dir != r.cfg.DevRoot {
			if err := w.Add(dir); err != nil {
				r.logger.Debug("cannot watch node directory", "dir", dir, "error", err)
			}
		}
	}
	r.mu.Unlock()

	out := make(chan string, 16)
	go func() {
		defer close(out)
		defer func() { _ = w.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
					continue
				}
				select {
				case out <- ev.Name:
				default:
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				r.logger.Warn("device watcher error", "error", err)
			}
		}
	}()
	return out, nil
}
