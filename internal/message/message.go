package message

import (
	"fmt"

	"github.com/Iron-Ham/arbiter/internal/errors"
	"github.com/Iron-Ham/arbiter/internal/resource"
)

// Kind identifies one of the four protocol messages.
type Kind string

const (
	KindScan           Kind = "SCAN"
	KindStatus         Kind = "STATUS"
	KindAccessRequest  Kind = "ACCESS_REQUEST"
	KindAccessResponse Kind = "ACCESS_RESPONSE"
)

// IsValid reports whether k is a known message kind.
func (k Kind) IsValid() bool {
	switch k {
	case KindScan, KindStatus, KindAccessRequest, KindAccessResponse:
		return true
	}
	return false
}

// NoTarget is the TargetPID of a message addressed to every recipient.
const NoTarget = 0

// Message is a single arbitration message.
type Message struct {
	Kind               Kind               `json:"kind"`
	ResourceIdentifier string             `json:"resourceIdentifier"`
	SenderPID          int                `json:"senderPID"`
	TargetPID          int                `json:"targetPID,omitempty"`
	PreferredAccess    resource.Access    `json:"preferredAccess,omitempty"`
	ActualAccess       resource.Access    `json:"actualAccess,omitempty"`
	AccessPressure     *resource.Pressure `json:"accessPressure,omitempty"`
	BroadcastInfo      map[string]any     `json:"broadcastInfo,omitempty"`
	Result             resource.Result    `json:"result,omitempty"`
}

// IsTargeted reports whether the message names a single recipient.
func (m Message) IsTargeted() bool {
	return m.TargetPID != NoTarget
}

// IsFor reports whether a mediator running as pid should process m.
func (m Message) IsFor(pid int) bool {
	return m.TargetPID == NoTarget || m.TargetPID == pid
}

// Pressure returns the carried access pressure, or the default when absent.
func (m Message) Pressure() resource.Pressure {
	if m.AccessPressure == nil {
		return resource.DefaultPressure
	}
	return *m.AccessPressure
}

// String renders a compact description for logs.
func (m Message) String() string {
	s := fmt.Sprintf("%s %d", m.Kind, m.SenderPID)
	if m.IsTargeted() {
		s += fmt.Sprintf("->%d", m.TargetPID)
	}
	switch m.Kind {
	case KindStatus:
		s += fmt.Sprintf(" preferred=%s actual=%s pressure=%s", m.PreferredAccess, m.ActualAccess, m.Pressure())
	case KindAccessRequest:
		s += fmt.Sprintf(" preferred=%s", m.PreferredAccess)
	case KindAccessResponse:
		s += " " + m.Result.String()
	}
	return s
}

// NewScan builds a SCAN. target may be NoTarget.
func NewScan(resourceID string, sender, target int) Message {
	return Message{Kind: KindScan, ResourceIdentifier: resourceID, SenderPID: sender, TargetPID: target}
}

// NewStatus builds a STATUS announcing u. target may be NoTarget.
func NewStatus(resourceID string, u *resource.User, target int) Message {
	p := u.AccessPressure
	return Message{
		Kind:               KindStatus,
		ResourceIdentifier: resourceID,
		SenderPID:          u.PID,
		TargetPID:          target,
		PreferredAccess:    u.PreferredAccess,
		ActualAccess:       u.ActualAccess,
		AccessPressure:     &p,
		BroadcastInfo:      u.BroadcastInfo,
	}
}

// NewAccessRequest builds an ACCESS_REQUEST for the sender's preferred access.
func NewAccessRequest(resourceID string, sender, target int, preferred resource.Access) Message {
	return Message{
		Kind:               KindAccessRequest,
		ResourceIdentifier: resourceID,
		SenderPID:          sender,
		TargetPID:          target,
		PreferredAccess:    preferred,
	}
}

// NewAccessResponse builds an ACCESS_RESPONSE.
func NewAccessResponse(resourceID string, sender, target int, result resource.Result) Message {
	return Message{
		Kind:               KindAccessResponse,
		ResourceIdentifier: resourceID,
		SenderPID:          sender,
		TargetPID:          target,
		Result:             result,
	}
}

// Validate checks the fields required by m's kind.
func (m Message) Validate() error {
	if !m.Kind.IsValid() {
		return invalid("kind", m.Kind, "unknown message kind")
	}
	if m.ResourceIdentifier == "" {
		return invalid("resourceIdentifier", nil, "is required")
	}
	if m.SenderPID <= 0 {
		return invalid("senderPID", m.SenderPID, "must be positive")
	}
	if m.TargetPID < 0 {
		return invalid("targetPID", m.TargetPID, "must not be negative")
	}
	switch m.Kind {
	case KindAccessRequest:
		if !m.IsTargeted() {
			return invalid("targetPID", nil, "is required for "+string(m.Kind))
		}
		if m.PreferredAccess != resource.AccessShared && m.PreferredAccess != resource.AccessBlocking {
			return invalid("preferredAccess", m.PreferredAccess, "must be shared or blocking")
		}
	case KindAccessResponse:
		if !m.IsTargeted() {
			return invalid("targetPID", nil, "is required for "+string(m.Kind))
		}
		if !m.Result.IsValid() {
			return invalid("result", nil, "is required")
		}
	case KindStatus:
		if p := m.Pressure(); p < resource.PressureNone || p > resource.PressureRequired {
			return invalid("accessPressure", int(p), "must be within 0..100")
		}
	}
	return nil
}

func invalid(field string, value any, msg string) error {
	return errors.NewValidationError(msg).WithField(field).WithValue(value).WithCause(errors.ErrInvalidMessage)
}
