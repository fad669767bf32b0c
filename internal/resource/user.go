package resource

import (
	"maps"
	"reflect"
	"time"
)

// ProcessInfo describes the process behind a User, for display.
type ProcessInfo struct {
	PID       int
	Name      string
	Exe       string
	UID       int
	StartedAt time.Time
}

// DisplayName returns the best available human-readable name.
func (p ProcessInfo) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	if p.Exe != "" {
		return p.Exe
	}
	return "unknown"
}

// User is one process's participation state for a single resource.
type User struct {
	PID int

	// UsingProtocol is false for records synthesized from kernel
	// observation rather than from protocol messages.
	UsingProtocol bool

	// PreferredAccess is private intent; ActualAccess is the only value
	// ever broadcast about a peer.
	PreferredAccess Access
	ActualAccess    Access
	AccessPressure  Pressure

	// BroadcastInfo is opaque, serializable metadata the user publishes
	// alongside its status.
	BroadcastInfo map[string]any

	Process ProcessInfo

	// TrackingKey correlates the record with an object owned by the
	// kernel observer. The engine never interprets it.
	TrackingKey string

	FirstSeen time.Time
	LastSeen  time.Time
}

// NewUser returns a record for pid with unknown access.
func NewUser(pid int, usingProtocol bool) *User {
	return &User{
		PID:             pid,
		UsingProtocol:   usingProtocol,
		PreferredAccess: AccessUnknown,
		ActualAccess:    AccessUnknown,
		AccessPressure:  DefaultPressure,
		Process:         ProcessInfo{PID: pid},
	}
}

// Clone returns a deep-enough copy that callers outside the owning event
// loop may read without racing.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	c.BroadcastInfo = maps.Clone(u.BroadcastInfo)
	return &c
}

// Status is the published part of a User: the fields carried by a STATUS
// message.
type Status struct {
	PreferredAccess Access
	ActualAccess    Access
	AccessPressure  Pressure
	BroadcastInfo   map[string]any
}

// Status returns the published fields of u.
func (u *User) Status() Status {
	return Status{
		PreferredAccess: u.PreferredAccess,
		ActualAccess:    u.ActualAccess,
		AccessPressure:  u.AccessPressure,
		BroadcastInfo:   u.BroadcastInfo,
	}
}

// StatusChange reports which published fields an Apply call modified.
type StatusChange struct {
	Access        bool
	Pressure      bool
	BroadcastInfo bool
}

// Any reports whether anything changed.
func (c StatusChange) Any() bool {
	return c.Access || c.Pressure || c.BroadcastInfo
}

// Apply overwrites the published fields of u with s and reports what
// changed. Applying an identical status is a no-op.
func (u *User) Apply(s Status) StatusChange {
	var c StatusChange
	if u.PreferredAccess != s.PreferredAccess || u.ActualAccess != s.ActualAccess {
		u.PreferredAccess = s.PreferredAccess
		u.ActualAccess = s.ActualAccess
		c.Access = true
	}
	if u.AccessPressure != s.AccessPressure {
		u.AccessPressure = s.AccessPressure
		c.Pressure = true
	}
	if !sameInfo(u.BroadcastInfo, s.BroadcastInfo) {
		u.BroadcastInfo = maps.Clone(s.BroadcastInfo)
		c.BroadcastInfo = true
	}
	return c
}

// sameInfo compares broadcast info maps, treating nil and empty as equal.
func sameInfo(a, b map[string]any) bool {
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	return reflect.DeepEqual(a, b)
}
