package commandqueue

import (
	"errors"
	"fmt"

	"github.com/Iron-Ham/arbiter/internal/clock"
	"github.com/Iron-Ham/arbiter/internal/resource"
)

// Sentinel errors returned by queue operations.
var (
	ErrNotRunning = errors.New("command is not running")
	ErrBadResult  = errors.New("invalid command result")
)

// Queue runs commands one at a time in enqueue order.
type Queue struct {
	clock    clock.Clock
	pending  []*Command
	running  *Command
	nextID   uint64
	finished uint64
}

// New returns an empty queue stamping commands with clk.
func New(clk clock.Clock) *Queue {
	return &Queue{clock: clk}
}

// Enqueue adds a command. start is invoked when the command begins; the
// host's answer must be reported through Finish. finish is invoked once
// the command reaches a result, whether reported or abandoned. If nothing
// is running the command starts before Enqueue returns.
func (q *Queue) Enqueue(access resource.Access, requestedBy int, start, finish func(*Command)) *Command {
	q.nextID++
	cmd := &Command{
		ID:          q.nextID,
		Access:      access,
		RequestedBy: requestedBy,
		Status:      StatusPending,
		EnqueuedAt:  q.clock.Now(),
		start:       start,
		finish:      finish,
	}
	q.pending = append(q.pending, cmd)
	q.advance()
	return cmd
}

// Finish records the host's result for the running command id and starts
// the next command.
func (q *Queue) Finish(id uint64, result resource.Result) error {
	if !result.IsValid() {
		return fmt.Errorf("%w: %d", ErrBadResult, result)
	}
	return q.complete(id, StatusFinished, result)
}

// Abandon gives up on the running command id, treating it as failed.
func (q *Queue) Abandon(id uint64) error {
	return q.complete(id, StatusAbandoned, resource.ResultError)
}

func (q *Queue) complete(id uint64, status Status, result resource.Result) error {
	cmd := q.running
	if cmd == nil || cmd.ID != id {
		return fmt.Errorf("%w: %d", ErrNotRunning, id)
	}
	cmd.Status = status
	cmd.Result = result
	cmd.FinishedAt = q.clock.Now()
	q.running = nil
	q.finished++
	if cmd.finish != nil {
		cmd.finish(cmd)
	}
	q.advance()
	return nil
}

// advance starts the oldest pending command when nothing is running. A
// start callback may finish its command synchronously, so this loops.
func (q *Queue) advance() {
	for q.running == nil && len(q.pending) > 0 {
		cmd := q.pending[0]
		q.pending[0] = nil
		q.pending = q.pending[1:]
		cmd.Status = StatusRunning
		cmd.StartedAt = q.clock.Now()
		q.running = cmd
		if cmd.start != nil {
			cmd.start(cmd)
		}
	}
}

// Running returns the command the host is working on, or nil.
func (q *Queue) Running() *Command { return q.running }

// Len returns the number of commands that have not finished.
func (q *Queue) Len() int {
	n := len(q.pending)
	if q.running != nil {
		n++
	}
	return n
}

// Idle reports whether no command is running or pending.
func (q *Queue) Idle() bool { return q.Len() == 0 }

// Reset drops every pending command and forgets the running one. A late
// Finish for the forgotten command returns ErrNotRunning. Finish callbacks
// are not invoked.
func (q *Queue) Reset() {
	for _, cmd := range q.pending {
		cmd.Status = StatusDropped
	}
	if q.running != nil {
		q.running.Status = StatusDropped
	}
	q.pending = nil
	q.running = nil
}

// Snapshot copies the queue state.
func (q *Queue) Snapshot() Snapshot {
	s := Snapshot{Finished: q.finished}
	if q.running != nil {
		cp := *q.running
		s.Running = &cp
	}
	for _, cmd := range q.pending {
		s.Pending = append(s.Pending, *cmd)
	}
	return s
}
