//go:build !linux

package proc

import "github.com/Iron-Ham/arbiter/internal/resource"

func Read(root string, pid int) (resource.ProcessInfo, error) {
	return resource.ProcessInfo{PID: pid}, ErrUnsupported
}

func PIDs(root string) ([]int, error) { return nil, ErrUnsupported }

func OpenFiles(root string, pid int) ([]FileDescriptor, error) { return nil, ErrUnsupported }
