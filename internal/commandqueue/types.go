package commandqueue

import (
	"time"

	"github.com/Iron-Ham/arbiter/internal/resource"
)

// Status is the lifecycle state of a command.
type Status string

const (
	// StatusPending means the command waits behind the running one.
	StatusPending Status = "pending"
	// StatusRunning means the host is carrying the command out.
	StatusRunning Status = "running"
	// StatusFinished means the host reported a result.
	StatusFinished Status = "finished"
	// StatusAbandoned means the command gave up waiting on the host.
	StatusAbandoned Status = "abandoned"
	// StatusDropped means the queue was reset before the command started.
	StatusDropped Status = "dropped"
)

func (s Status) String() string { return string(s) }

// IsTerminal reports whether the command will not change state again.
func (s Status) IsTerminal() bool {
	return s == StatusFinished || s == StatusAbandoned || s == StatusDropped
}

// SelfRequest is the RequestedBy value of a command the mediator issued
// on its own behalf.
const SelfRequest = 0

// Command asks the host to move to Access.
type Command struct {
	ID          uint64
	Access      resource.Access
	RequestedBy int
	Status      Status
	Result      resource.Result

	EnqueuedAt time.Time
	StartedAt  time.Time
	FinishedAt time.Time

	start  func(*Command)
	finish func(*Command)
}

// IsSelf reports whether the mediator issued the command for itself.
func (c *Command) IsSelf() bool { return c.RequestedBy == SelfRequest }

// Snapshot is a point-in-time view of the queue.
type Snapshot struct {
	Running  *Command
	Pending  []Command
	Finished uint64
}
