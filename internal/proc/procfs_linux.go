//go:build linux

package proc

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"github.com/Iron-Ham/arbiter/internal/resource"
)

// clockTicks is USER_HZ, which Linux fixes at 100 for userspace.
const clockTicks = 100

// Read returns display metadata for pid.
func Read(root string, pid int) (resource.ProcessInfo, error) {
	dir := filepath.Join(root, strconv.Itoa(pid))
	info := resource.ProcessInfo{PID: pid}

	stat, err := os.ReadFile(filepath.Join(dir, "stat"))
	if err != nil {
		return info, fmt.Errorf("read stat for pid %d: %w", pid, err)
	}
	comm, startTicks, err := parseStat(stat)
	if err != nil {
		return info, fmt.Errorf("parse stat for pid %d: %w", pid, err)
	}
	info.Name = comm
	if btime, ok := bootTime(root); ok {
		info.StartedAt = btime.Add(time.Duration(startTicks) * time.Second / clockTicks)
	}

	if exe, err := os.Readlink(filepath.Join(dir, "exe")); err == nil {
		info.Exe = strings.TrimSuffix(exe, " (deleted)")
	}

	var st unix.Stat_t
	if err := unix.Stat(dir, &st); err == nil {
		info.UID = int(st.Uid)
	} else {
		info.UID = -1
	}
	return info, nil
}

// parseStat extracts comm and starttime. comm sits in parentheses and may
// itself contain spaces and parentheses, so the last ')' ends it.
func parseStat(raw []byte) (string, int64, error) {
	open := bytes.IndexByte(raw, '(')
	closing := bytes.LastIndexByte(raw, ')')
	if open < 0 || closing < open || closing+2 > len(raw) {
		return "", 0, fmt.Errorf("invalid stat format")
	}
	comm := string(raw[open+1 : closing])
	fields := strings.Fields(string(raw[closing+2:]))
	// starttime is field 22 overall, the 20th after comm.
	if len(fields) < 20 {
		return comm, 0, fmt.Errorf("stat has %d fields after comm", len(fields))
	}
	start, err := strconv.ParseInt(fields[19], 10, 64)
	if err != nil {
		return comm, 0, fmt.Errorf("starttime: %w", err)
	}
	return comm, start, nil
}

func bootTime(root string) (time.Time, bool) {
	f, err := os.Open(filepath.Join(root, "stat"))
	if err != nil {
		return time.Time{}, false
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if rest, ok := strings.CutPrefix(line, "btime "); ok {
			sec, err := strconv.ParseInt(strings.TrimSpace(rest), 10, 64)
			if err != nil {
				return time.Time{}, false
			}
			return time.Unix(sec, 0), true
		}
	}
	return time.Time{}, false
}

// PIDs lists the numeric entries of root.
func PIDs(root string) ([]int, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}
	pids := make([]int, 0, len(entries))
	for _, e := range entries {
		if pid, ok := parsePID(e.Name()); ok {
			pids = append(pids, pid)
		}
	}
	return pids, nil
}

// OpenFiles lists the open descriptors of pid. Entries that vanish or
// cannot be read mid-scan are skipped; a process whose fd directory is
// unreadable yields an error.
func OpenFiles(root string, pid int) ([]FileDescriptor, error) {
	fdDir := filepath.Join(root, strconv.Itoa(pid), "fd")
	entries, err := os.ReadDir(fdDir)
	if err != nil {
		return nil, err
	}

	fds := make([]FileDescriptor, 0, len(entries))
	for _, e := range entries {
		n, err := strconv.Atoi(e.Name())
		if err != nil {
			continue
		}
		entry := filepath.Join(fdDir, e.Name())
		target, err := os.Readlink(entry)
		if err != nil {
			continue
		}
		fd := FileDescriptor{PID: pid, FD: n, Target: target, Flags: -1}

		var st unix.Stat_t
		if err := unix.Stat(entry, &st); err == nil && st.Mode&unix.S_IFMT == unix.S_IFCHR {
			fd.IsChar = true
			fd.Rdev = uint64(st.Rdev)
		}
		if flags, ok := readFlags(filepath.Join(root, strconv.Itoa(pid), "fdinfo", e.Name())); ok {
			fd.Flags = flags
		}
		fds = append(fds, fd)
	}
	return fds, nil
}

// readFlags parses the octal "flags:" line of an fdinfo entry.
func readFlags(path string) (int, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	for line := range strings.SplitSeq(string(data), "\n") {
		if rest, ok := strings.CutPrefix(line, "flags:"); ok {
			v, err := strconv.ParseInt(strings.TrimSpace(rest), 8, 64)
			if err != nil {
				return 0, false
			}
			return int(v), true
		}
	}
	return 0, false
}
