package mediator

import (
	"context"

	"github.com/Iron-Ham/arbiter/internal/errors"
	"github.com/Iron-Ham/arbiter/internal/event"
	"github.com/Iron-Ham/arbiter/internal/observer"
	"github.com/Iron-Ham/arbiter/internal/resource"
)

// observed runs on the observer's goroutine.
func (m *Mediator) observed(ch observer.Change) {
	m.run(func() { m.applyObservation(ch) })
}

// applyObservation merges what the kernel reports. Protocol users are
// authoritative about themselves; only their metadata is filled in.
func (m *Mediator) applyObservation(ch observer.Change) {
	if !m.active {
		return
	}
	for _, d := range ch.Arrived {
		m.logger.Info("device arrived", "device", d.ID, "name", d.Name)
		m.emit(event.NewDeviceArrivedEvent(m.source(), d.ID, d.Name, d.Nodes))
	}
	for _, d := range ch.Removed {
		m.logger.Info("device removed", "device", d.ID, "name", d.Name)
		m.emit(event.NewDeviceRemovedEvent(m.source(), d.ID, d.Name))
	}

	changed := false
	now := m.clock.Now()
	for _, obs := range ch.Upserted {
		if obs.PID == m.pid {
			continue
		}
		u, created := m.users.GetOrCreate(obs.PID, false)
		u.TrackingKey = obs.TrackingKey
		if u.UsingProtocol {
			if u.Process.Name == "" {
				u.Process = obs.Process
			}
			continue
		}
		if created {
			u.FirstSeen = now
		}
		u.LastSeen = now
		u.Process = obs.Process

		change := u.Apply(resource.Status{
			PreferredAccess: obs.Access,
			ActualAccess:    obs.Access,
			AccessPressure:  u.AccessPressure,
			BroadcastInfo:   u.BroadcastInfo,
		})
		switch {
		case created:
			m.logger.Info("non-protocol user appeared",
				"peer", u.PID, "name", u.Process.DisplayName(), "access", u.ActualAccess.String())
			m.emit(event.NewUserAppearedEvent(m.source(), u))
		case change.Any():
			m.emit(event.NewUserUpdatedEvent(m.source(), u, change))
		default:
			continue
		}
		changed = true
	}

	for _, pid := range ch.Gone {
		if u := m.users.Get(pid); u != nil && !u.UsingProtocol {
			m.retire(pid, ReasonClosed)
		}
	}
	if changed {
		m.consider()
	}
}

func (m *Mediator) observerFailed(err error) {
	m.logger.Error("kernel observer unavailable, continuing with protocol peers only", "error", err)
	m.emit(event.NewObserverFailedEvent(m.source(), err))
}

func (m *Mediator) reapLoop(ctx context.Context) {
	ticker := m.clock.NewTicker(m.cfg.ReapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			m.run(m.reap)
		}
	}
}

// reap retires protocol peers whose process is gone, and settles pending
// requests to processes that never made it into the registry.
func (m *Mediator) reap() {
	if !m.active {
		return
	}
	for _, u := range m.users.Users() {
		if u.UsingProtocol && !m.alive(u.PID) {
			m.retire(u.PID, ReasonTerminated)
		}
	}
	settled := false
	for pid := range m.pending {
		if m.users.Get(pid) == nil && !m.alive(pid) {
			m.settleGone(pid)
			settled = true
		}
	}
	if settled {
		m.consider()
	}
}

// retire forgets pid. A request pending with it counts as denied, and a
// lending relationship with it ends, so negotiation is reconsidered.
func (m *Mediator) retire(pid int, reason string) {
	u, err := m.users.Remove(pid)
	if err != nil {
		return
	}
	m.logger.Info("user disappeared", "peer", pid, "reason", reason)
	m.emit(event.NewUserDisappearedEvent(m.source(), u, reason))

	m.settleGone(pid)
	delete(m.refused, pid)
	if pid == m.lentTo {
		m.clearLentTo()
	}
	if pid == m.lentFrom {
		m.lentFrom = 0
	}
	m.selfRefused = false
	m.consider()
}

func (m *Mediator) settleGone(pid int) {
	pr, ok := m.pending[pid]
	if !ok {
		return
	}
	stopTimer(pr.timer)
	delete(m.pending, pid)
	err := errors.NewPeerGoneError(pid, pr.access)
	m.logger.WithPeer(pid).Info("pending request settled, peer is gone", "requested", pr.access.String())
	m.emit(event.NewResponseReceivedEvent(m.source(), pid, pr.access, resource.ResultDeny, err))
}
