package tui

import (
	"fmt"

	"github.com/Iron-Ham/arbiter/internal/errors"
	"github.com/Iron-Ham/arbiter/internal/event"
	"github.com/Iron-Ham/arbiter/internal/resource"
)

// DescribeEvent returns a one-line human description of e.
func DescribeEvent(e event.Event) string {
	switch ev := e.(type) {
	case event.MediatorActivatedEvent:
		return fmt.Sprintf("joined %s as pid %d", ev.Resource(), ev.MediatorPID())
	case event.MediatorDeactivatedEvent:
		return fmt.Sprintf("left %s", ev.Resource())
	case event.UserAppearedEvent:
		return fmt.Sprintf("%s appeared (%s)", who(ev.User), ev.User.ActualAccess)
	case event.UserUpdatedEvent:
		return fmt.Sprintf("%s now %s", who(ev.User), ev.User.ActualAccess)
	case event.UserDisappearedEvent:
		return fmt.Sprintf("%s disappeared: %s", who(ev.User), ev.Reason)
	case event.BroadcastInfoUpdatedEvent:
		return fmt.Sprintf("%s updated its info: %s", who(ev.User), formatInfo(ev.User.BroadcastInfo))
	case event.AccessChangedEvent:
		return fmt.Sprintf("access %s -> %s", ev.Previous, ev.Current)
	case event.RequestAnsweredEvent:
		return fmt.Sprintf("answered pid %d asking for %s: %s (now %s)", ev.PeerPID, ev.Requested, ev.Result, ev.Yielded)
	case event.ResponseReceivedEvent:
		if ev.PeerPID == 0 {
			return fmt.Sprintf("host refused %s: %s", ev.Requested, describeErr(ev.Err))
		}
		if ev.Err != nil {
			return fmt.Sprintf("pid %d refused %s: %s", ev.PeerPID, ev.Requested, describeErr(ev.Err))
		}
		return fmt.Sprintf("pid %d yielded for %s", ev.PeerPID, ev.Requested)
	case event.ObserverFailedEvent:
		return fmt.Sprintf("kernel observer failed: %s", describeErr(ev.Err))
	case event.DeviceArrivedEvent:
		return fmt.Sprintf("device %s arrived (%s)", ev.DeviceID, orDash(ev.Name))
	case event.DeviceRemovedEvent:
		return fmt.Sprintf("device %s removed", ev.DeviceID)
	}
	return e.EventType()
}

// EventSeverity grades e for display. Events that carry no error are
// informational.
func EventSeverity(e event.Event) errors.Severity {
	var err error
	switch ev := e.(type) {
	case event.ResponseReceivedEvent:
		err = ev.Err
	case event.ObserverFailedEvent:
		err = ev.Err
	}
	if err == nil {
		return errors.SeverityInfo
	}
	return errors.GetSeverity(err)
}

// describeErr never retries on its own; a retryable error only tells the
// user that asking again may help.
func describeErr(err error) string {
	if err == nil {
		return "no reason given"
	}
	if !errors.IsUserFacing(err) {
		return "internal error, see the log"
	}
	if errors.IsRetryable(err) {
		return err.Error() + "; a later request may succeed"
	}
	return err.Error()
}

func who(u *resource.User) string {
	if u == nil {
		return "?"
	}
	return fmt.Sprintf("pid %d (%s)", u.PID, u.Process.DisplayName())
}
