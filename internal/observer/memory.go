package observer

import (
	"context"
	"slices"
	"sync"
)

// MemoryRegistry is a Registry whose devices and clients are set by hand.
// Tests and simulations use it in place of the kernel.
type MemoryRegistry struct {
	mu      sync.Mutex
	devices []Device
	clients []Client
	err     error
	hints   chan string
}

// NewMemoryRegistry returns an empty registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{hints: make(chan string, 16)}
}

// AddDevice makes d present.
func (m *MemoryRegistry) AddDevice(d Device) {
	m.mu.Lock()
	m.devices = slices.DeleteFunc(m.devices, func(o Device) bool { return o.ID == d.ID })
	m.devices = append(m.devices, d)
	m.mu.Unlock()
	m.Notify(d.ID)
}

// RemoveDevice removes the device and every connection to it.
func (m *MemoryRegistry) RemoveDevice(id string) {
	m.mu.Lock()
	m.devices = slices.DeleteFunc(m.devices, func(o Device) bool { return o.ID == id })
	m.clients = slices.DeleteFunc(m.clients, func(c Client) bool { return c.DeviceID == id })
	m.mu.Unlock()
	m.Notify(id)
}

// Open adds a client connection.
func (m *MemoryRegistry) Open(c Client) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clients = append(m.clients, c)
}

// Close removes every connection held by pid.
func (m *MemoryRegistry) Close(pid int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clients = slices.DeleteFunc(m.clients, func(c Client) bool { return c.PID == pid })
}

// SetError makes every enumeration fail with err until cleared with nil.
func (m *MemoryRegistry) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Notify sends a change hint to the watcher without blocking.
func (m *MemoryRegistry) Notify(path string) {
	select {
	case m.hints <- path:
	default:
	}
}

func (m *MemoryRegistry) Devices(ctx context.Context, class string) ([]Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var out []Device
	for _, d := range m.devices {
		if class == "" || d.Class == class {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *MemoryRegistry) Clients(ctx context.Context, devices []Device) ([]Client, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var out []Client
	for _, c := range m.clients {
		if slices.ContainsFunc(devices, func(d Device) bool { return d.ID == c.DeviceID }) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *MemoryRegistry) Watch(ctx context.Context) (<-chan string, error) {
	out := make(chan string)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case p := <-m.hints:
				select {
				case out <- p:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
