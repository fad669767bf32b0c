package event

import (
	"time"

	"github.com/Iron-Ham/arbiter/internal/resource"
)

// Event is the interface that all events must implement.
type Event interface {
	// EventType returns "category.action", e.g. "user.appeared".
	EventType() string
	// Timestamp returns when the event occurred on the mediator's clock.
	Timestamp() time.Time
	// Resource returns the resource identifier of the publishing mediator.
	Resource() string
}

// Event type identifiers.
const (
	TypeMediatorActivated    = "mediator.activated"
	TypeMediatorDeactivated  = "mediator.deactivated"
	TypeUserAppeared         = "user.appeared"
	TypeUserUpdated          = "user.updated"
	TypeUserDisappeared      = "user.disappeared"
	TypeBroadcastInfoUpdated = "broadcastinfo.updated"
	TypeAccessChanged        = "access.changed"
	TypeRequestAnswered      = "request.answered"
	TypeResponseReceived     = "response.received"
	TypeObserverFailed       = "observer.failed"
	TypeDeviceArrived        = "device.arrived"
	TypeDeviceRemoved        = "device.removed"
)

// Source identifies the mediator that published an event.
type Source struct {
	ResourceID string
	PID        int
	At         time.Time
}

type baseEvent struct {
	eventType string
	source    Source
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.source.At }
func (e baseEvent) Resource() string     { return e.source.ResourceID }

// MediatorPID returns the pid the publishing mediator represents.
func (e baseEvent) MediatorPID() int { return e.source.PID }

func newBaseEvent(eventType string, src Source) baseEvent {
	if src.At.IsZero() {
		src.At = time.Now()
	}
	return baseEvent{eventType: eventType, source: src}
}

// -----------------------------------------------------------------------------
// Lifecycle Events
// -----------------------------------------------------------------------------

// MediatorActivatedEvent is emitted once the mediator has subscribed and
// announced itself.
type MediatorActivatedEvent struct {
	baseEvent
}

func NewMediatorActivatedEvent(src Source) MediatorActivatedEvent {
	return MediatorActivatedEvent{newBaseEvent(TypeMediatorActivated, src)}
}

// MediatorDeactivatedEvent is emitted after the farewell STATUS was sent.
type MediatorDeactivatedEvent struct {
	baseEvent
}

func NewMediatorDeactivatedEvent(src Source) MediatorDeactivatedEvent {
	return MediatorDeactivatedEvent{newBaseEvent(TypeMediatorDeactivated, src)}
}

// -----------------------------------------------------------------------------
// Population Events
// -----------------------------------------------------------------------------

// UserAppearedEvent is emitted when a process is first seen using or
// wanting the resource. User is a copy.
type UserAppearedEvent struct {
	baseEvent
	User *resource.User
}

func NewUserAppearedEvent(src Source, u *resource.User) UserAppearedEvent {
	return UserAppearedEvent{baseEvent: newBaseEvent(TypeUserAppeared, src), User: u.Clone()}
}

// UserUpdatedEvent is emitted when a known user's status changed.
type UserUpdatedEvent struct {
	baseEvent
	User   *resource.User
	Change resource.StatusChange
}

func NewUserUpdatedEvent(src Source, u *resource.User, change resource.StatusChange) UserUpdatedEvent {
	return UserUpdatedEvent{baseEvent: newBaseEvent(TypeUserUpdated, src), User: u.Clone(), Change: change}
}

// UserDisappearedEvent is emitted when a user's process terminated or
// stopped using the resource.
type UserDisappearedEvent struct {
	baseEvent
	User   *resource.User
	Reason string
}

func NewUserDisappearedEvent(src Source, u *resource.User, reason string) UserDisappearedEvent {
	return UserDisappearedEvent{baseEvent: newBaseEvent(TypeUserDisappeared, src), User: u.Clone(), Reason: reason}
}

// BroadcastInfoUpdatedEvent is emitted when a peer's broadcast info
// changed.
type BroadcastInfoUpdatedEvent struct {
	baseEvent
	User *resource.User
}

func NewBroadcastInfoUpdatedEvent(src Source, u *resource.User) BroadcastInfoUpdatedEvent {
	return BroadcastInfoUpdatedEvent{baseEvent: newBaseEvent(TypeBroadcastInfoUpdated, src), User: u.Clone()}
}

// -----------------------------------------------------------------------------
// Arbitration Events
// -----------------------------------------------------------------------------

// AccessChangedEvent is emitted when this process's actual access changed.
type AccessChangedEvent struct {
	baseEvent
	Previous resource.Access
	Current  resource.Access
	// Since is when the current non-None access began; zero for None.
	Since time.Time
}

func NewAccessChangedEvent(src Source, previous, current resource.Access, since time.Time) AccessChangedEvent {
	return AccessChangedEvent{
		baseEvent: newBaseEvent(TypeAccessChanged, src),
		Previous:  previous,
		Current:   current,
		Since:     since,
	}
}

// RequestAnsweredEvent is emitted after this process answered a peer's
// ACCESS_REQUEST.
type RequestAnsweredEvent struct {
	baseEvent
	PeerPID   int
	Requested resource.Access
	// Yielded is the access this process moved to for the peer.
	Yielded resource.Access
	Result  resource.Result
}

func NewRequestAnsweredEvent(src Source, peer int, requested, yielded resource.Access, result resource.Result) RequestAnsweredEvent {
	return RequestAnsweredEvent{
		baseEvent: newBaseEvent(TypeRequestAnswered, src),
		PeerPID:   peer,
		Requested: requested,
		Yielded:   yielded,
		Result:    result,
	}
}

// ResponseReceivedEvent is emitted when a negotiation this process started
// ended. Err is nil on success and otherwise an *errors.ArbitrationError.
type ResponseReceivedEvent struct {
	baseEvent
	PeerPID   int
	Requested resource.Access
	Result    resource.Result
	Err       error
}

func NewResponseReceivedEvent(src Source, peer int, requested resource.Access, result resource.Result, err error) ResponseReceivedEvent {
	return ResponseReceivedEvent{
		baseEvent: newBaseEvent(TypeResponseReceived, src),
		PeerPID:   peer,
		Requested: requested,
		Result:    result,
		Err:       err,
	}
}

// -----------------------------------------------------------------------------
// Observer Events
// -----------------------------------------------------------------------------

// ObserverFailedEvent is emitted once when the kernel observer cannot
// start. The mediator keeps running on protocol information alone.
type ObserverFailedEvent struct {
	baseEvent
	Err error
}

func NewObserverFailedEvent(src Source, err error) ObserverFailedEvent {
	return ObserverFailedEvent{baseEvent: newBaseEvent(TypeObserverFailed, src), Err: err}
}

// DeviceArrivedEvent is emitted when a tracked device appears.
type DeviceArrivedEvent struct {
	baseEvent
	DeviceID string
	Name     string
	Nodes    []string
}

func NewDeviceArrivedEvent(src Source, id, name string, nodes []string) DeviceArrivedEvent {
	return DeviceArrivedEvent{baseEvent: newBaseEvent(TypeDeviceArrived, src), DeviceID: id, Name: name, Nodes: nodes}
}

// DeviceRemovedEvent is emitted when a tracked device goes away.
type DeviceRemovedEvent struct {
	baseEvent
	DeviceID string
	Name     string
}

func NewDeviceRemovedEvent(src Source, id, name string) DeviceRemovedEvent {
	return DeviceRemovedEvent{baseEvent: newBaseEvent(TypeDeviceRemoved, src), DeviceID: id, Name: name}
}
