package observer

import (
	"context"
	"strconv"

	"github.com/Iron-Ham/arbiter/internal/resource"
)

// Device is one kernel device of the observed class.
type Device struct {
	// ID is the device's stable name within its class, e.g. "input7".
	ID    string
	Class string
	// Name is the human-readable device name when the kernel exposes one.
	Name    string
	SysPath string
	// Nodes are the device files through which clients connect.
	Nodes []string
	// Rdevs are the device numbers of Nodes, in the same order.
	Rdevs []uint64
}

// HasNode reports whether path is one of the device's nodes.
func (d Device) HasNode(path string) bool {
	for _, n := range d.Nodes {
		if n == path {
			return true
		}
	}
	return false
}

// Client is one open connection of a process to a device node.
type Client struct {
	DeviceID string
	Node     string
	PID      int
	FD       int
	// Flags holds the open(2) flags, or -1 when they could not be read.
	Flags   int
	Process resource.ProcessInfo
}

// Key identifies the connection across scans.
func (c Client) Key() string {
	return c.DeviceID + "|" + c.Node + "|" + strconv.Itoa(c.PID) + "|" + strconv.Itoa(c.FD)
}

// Registry is the kernel's view of devices and their clients.
type Registry interface {
	// Devices lists the devices currently present in class.
	Devices(ctx context.Context, class string) ([]Device, error)
	// Clients lists the open connections to any of devices.
	Clients(ctx context.Context, devices []Device) ([]Client, error)
	// Watch reports paths that changed in a way that may add or remove
	// devices. The channel closes when ctx ends. A registry that cannot
	// watch returns a nil channel and relies on polling.
	Watch(ctx context.Context) (<-chan string, error)
}

// Hooks let the host decide what gets tracked. A nil hook accepts
// everything.
type Hooks struct {
	// TrackDevice is asked once for each newly present device.
	TrackDevice func(d Device) bool
	// TrackClient is asked once for each new connection with the pid and
	// display name of its owning process.
	TrackClient func(c Client, pid int, name string) bool
}

func (h Hooks) trackDevice(d Device) bool {
	return h.TrackDevice == nil || h.TrackDevice(d)
}

func (h Hooks) trackClient(c Client) bool {
	return h.TrackClient == nil || h.TrackClient(c, c.PID, c.Process.DisplayName())
}

// Observation is the folded view of one process's accepted connections.
type Observation struct {
	PID     int
	Access  resource.Access
	Process resource.ProcessInfo
	// TrackingKey correlates the observation with the observer's table.
	TrackingKey string
	Devices     []string
}

// Change lists what differs from the previous scan.
type Change struct {
	Arrived  []Device
	Removed  []Device
	Upserted []Observation
	Gone     []int
}

// Empty reports whether nothing changed.
func (c Change) Empty() bool {
	return len(c.Arrived) == 0 && len(c.Removed) == 0 && len(c.Upserted) == 0 && len(c.Gone) == 0
}
