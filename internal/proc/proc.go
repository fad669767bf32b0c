// Package proc reads process metadata and open file descriptors from the
// proc filesystem and probes process liveness.
//
// Functions take the proc root explicitly so tests can point them at a
// fabricated tree. DefaultRoot is the live filesystem.
package proc

import (
	"errors"
	"strconv"
)

// DefaultRoot is the mount point of the proc filesystem.
const DefaultRoot = "/proc"

// ErrUnsupported is returned on platforms without a proc filesystem.
var ErrUnsupported = errors.New("proc filesystem not supported on this platform")

// FileDescriptor is one open file of a process.
type FileDescriptor struct {
	PID    int
	FD     int
	Target string // readlink of the fd entry
	Flags  int    // open(2) flags from fdinfo, -1 when unreadable
	Rdev   uint64 // device number of the target when it is a device node
	IsChar bool   // target is a character device
}

// Writable reports whether the descriptor was opened for writing.
func (f FileDescriptor) Writable() bool {
	return f.Flags >= 0 && f.Flags&accessModeMask != readOnly
}

const (
	accessModeMask = 0o3
	readOnly       = 0o0
)

func parsePID(name string) (int, bool) {
	pid, err := strconv.Atoi(name)
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}
