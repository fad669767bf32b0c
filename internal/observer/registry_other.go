//go:build !linux

package observer

import (
	"context"
	"errors"

	"github.com/Iron-Ham/arbiter/internal/logging"
)

var errUnsupported = errors.New("kernel device registry not supported on this platform")

// LinuxRegistry is unavailable off Linux; every call fails so the
// observer reports a registry error and the mediator runs protocol-only.
type LinuxRegistry struct{}

func NewLinuxRegistry(LinuxConfig, *logging.Logger) *LinuxRegistry { return &LinuxRegistry{} }

func (*LinuxRegistry) Devices(context.Context, string) ([]Device, error) { return nil, errUnsupported }

func (*LinuxRegistry) Clients(context.Context, []Device) ([]Client, error) {
	return nil, errUnsupported
}

func (*LinuxRegistry) Watch(context.Context) (<-chan string, error) { return nil, errUnsupported }
