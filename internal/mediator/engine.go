package mediator

import (
	"context"
	"time"

	"github.com/Iron-Ham/arbiter/internal/clock"
	"github.com/Iron-Ham/arbiter/internal/commandqueue"
	"github.com/Iron-Ham/arbiter/internal/errors"
	"github.com/Iron-Ham/arbiter/internal/event"
	"github.com/Iron-Ham/arbiter/internal/logging"
	"github.com/Iron-Ham/arbiter/internal/message"
	"github.com/Iron-Ham/arbiter/internal/resource"
)

const publishTimeout = 2 * time.Second

func (m *Mediator) activate() {
	m.active = true
	m.logger.Info("mediator activated",
		"preferred", m.self.PreferredAccess.String(), "pressure", int(m.self.AccessPressure))
	m.emit(event.NewMediatorActivatedEvent(m.source()))

	m.send(m.statusMessage(message.NoTarget))
	m.send(m.scanMessage(message.NoTarget))

	m.generation++
	if w := m.cfg.DiscoveryWindow; w > 0 {
		gen := m.generation
		m.discovering = true
		m.discovery = m.clock.AfterFunc(w, func() {
			m.run(func() {
				if m.active && m.generation == gen && m.discovering {
					m.discovering = false
					m.consider()
				}
			})
		})
		return
	}
	m.consider()
}

func (m *Mediator) deactivate() {
	if !m.active {
		return
	}
	for pid, pr := range m.pending {
		stopTimer(pr.timer)
		delete(m.pending, pid)
	}
	stopTimer(m.cmdTimer)
	m.cmdTimer = nil
	stopTimer(m.discovery)
	m.discovery = nil
	m.discovering = false
	m.queue.Reset()
	m.selfCmd = nil
	clear(m.answering)
	m.suspended = 0
	m.statusDirty = false

	farewell := m.self.Clone()
	farewell.PreferredAccess = resource.AccessNone
	farewell.ActualAccess = resource.AccessNone
	if m.lentFrom != 0 {
		m.send(message.NewStatus(m.cfg.ResourceID, farewell, m.lentFrom))
	}
	m.send(message.NewStatus(m.cfg.ResourceID, farewell, message.NoTarget))

	m.active = false
	m.clearLentTo()
	m.lentFrom = 0
	m.forgetRefusals()
	m.users = resource.NewRegistry()
	m.logger.Info("mediator deactivated")
	m.emit(event.NewMediatorDeactivatedEvent(m.source()))
}

// receive runs on the bus's goroutine.
func (m *Mediator) receive(msg message.Message) {
	m.run(func() { m.handle(msg) })
}

func (m *Mediator) handle(msg message.Message) {
	if !m.active || msg.ResourceIdentifier != m.cfg.ResourceID || msg.SenderPID == m.pid || !msg.IsFor(m.pid) {
		return
	}
	if m.logger.Enabled(logging.LevelDebug) {
		m.logger.Debug("message received", "message", msg.String())
	}
	if u := m.users.Get(msg.SenderPID); u != nil {
		u.LastSeen = m.clock.Now()
	}

	switch msg.Kind {
	case message.KindScan:
		m.onScan(msg)
	case message.KindStatus:
		m.onStatus(msg)
	case message.KindAccessRequest:
		m.onRequest(msg)
	case message.KindAccessResponse:
		m.onResponse(msg)
	}
}

// onScan answers with a global STATUS. A targeted SCAN comes from a
// borrower asking us to re-announce, so it goes through announce.
func (m *Mediator) onScan(msg message.Message) {
	if msg.IsTargeted() {
		m.announce()
		return
	}
	m.statusTo(message.NoTarget)
}

func (m *Mediator) onStatus(msg message.Message) {
	u, created := m.users.GetOrCreate(msg.SenderPID, true)
	converted := !u.UsingProtocol
	u.UsingProtocol = true
	now := m.clock.Now()
	if created {
		u.FirstSeen = now
		u.Process = m.lookupProcess(msg.SenderPID)
	}
	u.LastSeen = now

	prev := u.ActualAccess
	change := u.Apply(resource.Status{
		PreferredAccess: msg.PreferredAccess,
		ActualAccess:    msg.ActualAccess,
		AccessPressure:  msg.Pressure(),
		BroadcastInfo:   msg.BroadcastInfo,
	})

	switch {
	case created:
		m.logger.Info("user appeared", "peer", u.PID, "actual", u.ActualAccess.String())
		m.emit(event.NewUserAppearedEvent(m.source(), u))
	case change.Any() || converted:
		m.emit(event.NewUserUpdatedEvent(m.source(), u, change))
		if change.BroadcastInfo {
			m.emit(event.NewBroadcastInfoUpdatedEvent(m.source(), u))
		}
	default:
		return
	}

	if change.Access {
		delete(m.refused, u.PID)
		// A holder stepping out of the way lifts a refused self-grab.
		want := m.self.PreferredAccess
		if !created && prev.Conflicts(want) && !u.ActualAccess.Conflicts(want) {
			m.selfRefused = false
		}
	}
	if u.PID == m.lentTo {
		switch {
		case u.ActualAccess.Holds():
			m.borrowerHeld = true
		case m.borrowerHeld || u.PreferredAccess == resource.AccessNone:
			m.logger.Info("borrower returned access", "peer", u.PID)
			m.clearLentTo()
		}
	}
	m.consider()
}

func (m *Mediator) onRequest(msg message.Message) {
	peer := msg.SenderPID
	want := msg.PreferredAccess

	u, created := m.users.GetOrCreate(peer, true)
	u.UsingProtocol = true
	if created {
		u.FirstSeen = m.clock.Now()
		u.LastSeen = u.FirstSeen
		u.Process = m.lookupProcess(peer)
		m.emit(event.NewUserAppearedEvent(m.source(), u))
	}

	if _, busy := m.answering[peer]; busy {
		m.logger.Debug("duplicate access request ignored", "peer", peer)
		return
	}

	log := m.logger.WithPeer(peer)
	if !m.self.ActualAccess.Conflicts(want) {
		log.Info("access request granted without change", "requested", want.String())
		m.send(message.NewAccessResponse(m.cfg.ResourceID, m.pid, peer, resource.ResultSuccess))
		m.emit(event.NewRequestAnsweredEvent(m.source(), peer, want, m.self.ActualAccess, resource.ResultSuccess))
		return
	}

	target := resource.AccessNone
	if want == resource.AccessShared && m.self.PreferredAccess == resource.AccessShared {
		target = resource.AccessShared
	}
	log.Info("asking host to yield", "requested", want.String(), "target", target.String())

	requester := u.Clone()
	cmd := m.queue.Enqueue(target, peer,
		func(c *commandqueue.Command) {
			m.suspend()
			m.callDelegate(c, requester)
		},
		func(c *commandqueue.Command) { m.answered(c, want) },
	)
	m.answering[peer] = cmd.ID
}

// answered runs when the host finished (or gave up on) yielding to a
// peer. The requester hears our new status before the response; the rest
// of the population hears it when the requester's SCAN arrives.
func (m *Mediator) answered(c *commandqueue.Command, want resource.Access) {
	peer := c.RequestedBy
	m.stopCommandTimer()
	delete(m.answering, peer)

	if c.Result == resource.ResultSuccess {
		m.setActual(c.Access)
		m.lentTo = peer
		m.borrowerHeld = false
		m.sendStatus(peer)
		if m.lentFrom != 0 && m.lentFrom != peer {
			m.sendStatus(m.lentFrom)
		}
		if !m.self.ActualAccess.Holds() {
			m.lentFrom = 0
		}
	}
	m.send(message.NewAccessResponse(m.cfg.ResourceID, m.pid, peer, c.Result))
	m.resume(c.Result != resource.ResultSuccess)

	m.logger.WithPeer(peer).Info("access request answered",
		"requested", want.String(), "result", c.Result.String(), "status", c.Status.String())
	m.emit(event.NewRequestAnsweredEvent(m.source(), peer, want, c.Access, c.Result))
	m.consider()
}

func (m *Mediator) onResponse(msg message.Message) {
	peer := msg.SenderPID
	pr, ok := m.pending[peer]
	if !ok {
		m.logger.Debug("unsolicited access response ignored", "peer", peer, "result", msg.Result.String())
		return
	}
	stopTimer(pr.timer)
	delete(m.pending, peer)

	log := m.logger.WithPeer(peer)
	if msg.Result != resource.ResultSuccess {
		m.refused[peer] = true
		err := errors.NewArbitrationError(peer, pr.access, msg.Result)
		log.Info("access request refused", "requested", pr.access.String(), "result", msg.Result.String())
		m.emit(event.NewResponseReceivedEvent(m.source(), peer, pr.access, msg.Result, err))
		return
	}

	log.Info("access request granted", "requested", pr.access.String(),
		"latency", m.clock.Now().Sub(pr.sentAt).String())
	m.lentFrom = peer
	m.selfRefused = false
	if u := m.users.Get(peer); u != nil && u.ActualAccess.Conflicts(pr.access) {
		// Assume the lender stepped down until its own STATUS says how far.
		u.ActualAccess = resource.AccessNone
		m.emit(event.NewUserUpdatedEvent(m.source(), u, resource.StatusChange{Access: true}))
	}
	m.send(m.scanMessage(peer))
	m.emit(event.NewResponseReceivedEvent(m.source(), peer, pr.access, resource.ResultSuccess, nil))
	m.consider()
}

// consider is the decision point run after any change of intent or of a
// peer's state. It asks conflicting protocol peers to yield and, once no
// holder is in the way, asks the host to adopt the preferred access.
// Holders with a higher access pressure than ours are never asked; we
// wait for them to release instead.
func (m *Mediator) consider() {
	// While the host yields to a peer, answered reconsiders at the end.
	if !m.active || m.discovering || len(m.answering) > 0 {
		return
	}
	want := m.self.PreferredAccess
	if want == resource.AccessUnknown {
		want = resource.AccessNone
	}
	if m.self.ActualAccess == want {
		return
	}
	if want == resource.AccessNone {
		if !m.selfRefused {
			m.requestSelf(resource.AccessNone)
		}
		return
	}

	blocked := false
	for _, u := range m.users.Holders(want) {
		blocked = true
		switch {
		case !u.UsingProtocol:
		case m.pending[u.PID] != nil:
		case u.PID == m.lentTo:
		case m.refused[u.PID]:
		case u.AccessPressure > m.self.AccessPressure:
		default:
			m.sendRequest(u.PID, want)
		}
	}
	// A borrower that has not announced its grab yet is not a holder in
	// the registry, so lending blocks the self-grab on its own.
	if blocked || len(m.pending) > 0 || m.selfRefused || m.lentTo != 0 {
		return
	}
	m.requestSelf(want)
}

func (m *Mediator) sendRequest(peer int, want resource.Access) {
	m.nextToken++
	pr := &pendingRequest{access: want, sentAt: m.clock.Now(), token: m.nextToken}
	if d := m.cfg.ResponseTimeout; d > 0 {
		token := pr.token
		pr.timer = m.clock.AfterFunc(d, func() {
			m.run(func() { m.responseTimedOut(peer, token) })
		})
	}
	m.pending[peer] = pr
	m.logger.WithPeer(peer).Info("requesting access", "access", want.String())
	m.send(message.NewAccessRequest(m.cfg.ResourceID, m.pid, peer, want))
}

func (m *Mediator) responseTimedOut(peer int, token uint64) {
	pr, ok := m.pending[peer]
	if !ok || pr.token != token {
		return
	}
	delete(m.pending, peer)
	m.refused[peer] = true
	err := errors.NewUnresponsiveError(peer, pr.access, m.cfg.ResponseTimeout)
	m.logger.WithPeer(peer).Warn("access request timed out", "timeout", m.cfg.ResponseTimeout.String())
	m.emit(event.NewResponseReceivedEvent(m.source(), peer, pr.access, resource.ResultError, err))
	m.consider()
}

// requestSelf asks the host to move to access. Only one such command is
// queued at a time.
func (m *Mediator) requestSelf(access resource.Access) {
	if m.selfCmd != nil {
		return
	}
	m.logger.Info("asking host to change access", "access", access.String())
	m.selfCmd = m.queue.Enqueue(access, commandqueue.SelfRequest,
		func(c *commandqueue.Command) { m.callDelegate(c, nil) },
		m.selfAnswered,
	)
}

func (m *Mediator) selfAnswered(c *commandqueue.Command) {
	m.stopCommandTimer()
	m.selfCmd = nil
	if c.Result != resource.ResultSuccess {
		m.selfRefused = true
		var err error = errors.NewArbitrationError(0, c.Access, c.Result)
		if c.Status == commandqueue.StatusAbandoned {
			err = errors.NewDelegateTimeoutError(c.Access, m.cfg.DelegateTimeout)
		}
		m.logger.Warn("host did not change access", "access", c.Access.String(), "result", c.Result.String())
		m.emit(event.NewResponseReceivedEvent(m.source(), 0, c.Access, c.Result, err))
		return
	}
	m.setActual(c.Access)
	m.consider()
}

// callDelegate hands c to the host outside the lock. A completion that
// arrives after the command was abandoned is ignored.
func (m *Mediator) callDelegate(c *commandqueue.Command, requestedBy *resource.User) {
	id, access := c.ID, c.Access
	if d := m.cfg.DelegateTimeout; d > 0 {
		m.cmdTimer = m.clock.AfterFunc(d, func() {
			m.run(func() {
				if running := m.queue.Running(); running != nil && running.ID == id {
					m.logger.Warn("delegate timed out", "access", access.String(), "timeout", d.String())
					_ = m.queue.Abandon(id)
				}
			})
		})
	}

	done := func(r resource.Result) {
		m.run(func() {
			if !r.IsValid() {
				m.logger.Warn("delegate reported an invalid result", "result", int(r))
				r = resource.ResultError
			}
			if err := m.queue.Finish(id, r); err != nil {
				m.logger.Debug("late delegate completion ignored", "command", id, "error", err)
			}
		})
	}
	m.effect(func() { m.delegate.SetApplicationAccess(access, requestedBy, done) })
}

func (m *Mediator) stopCommandTimer() {
	stopTimer(m.cmdTimer)
	m.cmdTimer = nil
}

// setActual records a new actual access and announces it unless status
// notifications are suspended. It reports whether anything changed.
func (m *Mediator) setActual(a resource.Access) bool {
	prev := m.self.ActualAccess
	if prev == a {
		return false
	}
	m.self.ActualAccess = a
	switch {
	case !a.Holds():
		m.accessSince = time.Time{}
	case !prev.Holds():
		m.accessSince = m.clock.Now()
	}
	m.logger.Info("actual access changed", "from", prev.String(), "to", a.String())
	m.emit(event.NewAccessChangedEvent(m.source(), prev, a, m.accessSince))
	m.announce()
	return true
}

// announce broadcasts our STATUS, first to the peer we borrowed from when
// we no longer hold the resource so it gets the first chance to reclaim.
func (m *Mediator) announce() {
	if !m.active {
		return
	}
	if m.suspended > 0 {
		m.statusDirty = true
		return
	}
	if m.lentFrom != 0 && !m.self.ActualAccess.Holds() {
		m.sendStatus(m.lentFrom)
		m.lentFrom = 0
	}
	m.sendStatus(message.NoTarget)
}

// statusTo sends our STATUS to target unless notifications are suspended.
func (m *Mediator) statusTo(target int) {
	if m.suspended > 0 {
		m.statusDirty = true
		return
	}
	m.sendStatus(target)
}

func (m *Mediator) sendStatus(target int) {
	m.send(m.statusMessage(target))
}

func (m *Mediator) suspend() {
	m.suspended++
}

// resume ends one suspension. With flush set, a STATUS withheld while
// suspended is sent now.
func (m *Mediator) resume(flush bool) {
	if m.suspended == 0 {
		return
	}
	m.suspended--
	if m.suspended > 0 || !m.statusDirty {
		return
	}
	m.statusDirty = false
	if flush {
		m.announce()
	}
}

func (m *Mediator) clearLentTo() {
	m.lentTo = 0
	m.borrowerHeld = false
}

func (m *Mediator) forgetRefusals() {
	clear(m.refused)
	m.selfRefused = false
}

func (m *Mediator) statusMessage(target int) message.Message {
	return message.NewStatus(m.cfg.ResourceID, m.self, target)
}

func (m *Mediator) scanMessage(target int) message.Message {
	return message.NewScan(m.cfg.ResourceID, m.pid, target)
}

// send publishes msg after the current task releases the lock.
func (m *Mediator) send(msg message.Message) {
	m.effect(func() {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := m.bus.Publish(ctx, msg); err != nil {
			m.logger.Warn("publish failed", "message", msg.String(), "error", err)
			return
		}
		if m.logger.Enabled(logging.LevelDebug) {
			m.logger.Debug("message sent", "message", msg.String())
		}
	})
}

func stopTimer(t clock.Timer) {
	if t != nil {
		t.Stop()
	}
}
