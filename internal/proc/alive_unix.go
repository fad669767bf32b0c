//go:build unix

package proc

import "golang.org/x/sys/unix"

// Alive reports whether pid names a running process. A process owned by
// another user answers EPERM and counts as alive.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || err == unix.EPERM
}
