package message

import (
	"fmt"
	"math"

	"github.com/Iron-Ham/arbiter/internal/errors"
	"github.com/Iron-Ham/arbiter/internal/resource"
)

// Payload keys. They match the JSON field names of [Message].
const (
	KeyKind               = "kind"
	KeyResourceIdentifier = "resourceIdentifier"
	KeySenderPID          = "senderPID"
	KeyTargetPID          = "targetPID"
	KeyPreferredAccess    = "preferredAccess"
	KeyActualAccess       = "actualAccess"
	KeyAccessPressure     = "accessPressure"
	KeyBroadcastInfo      = "broadcastInfo"
	KeyResult             = "result"
)

// ToPayload converts m to a string-keyed dictionary holding only strings,
// integers and the broadcast info map. Absent optional fields are omitted.
func (m Message) ToPayload() map[string]any {
	p := map[string]any{
		KeyKind:               string(m.Kind),
		KeyResourceIdentifier: m.ResourceIdentifier,
		KeySenderPID:          int64(m.SenderPID),
	}
	if m.TargetPID != NoTarget {
		p[KeyTargetPID] = int64(m.TargetPID)
	}
	if m.PreferredAccess != resource.AccessUnknown {
		p[KeyPreferredAccess] = m.PreferredAccess.String()
	}
	if m.ActualAccess != resource.AccessUnknown {
		p[KeyActualAccess] = m.ActualAccess.String()
	}
	if m.AccessPressure != nil {
		p[KeyAccessPressure] = int64(*m.AccessPressure)
	}
	if len(m.BroadcastInfo) > 0 {
		p[KeyBroadcastInfo] = m.BroadcastInfo
	}
	if m.Result.IsValid() {
		p[KeyResult] = m.Result.String()
	}
	return p
}

// FromPayload rebuilds a Message from a dictionary produced by ToPayload or
// decoded from the wire. Unknown keys are ignored. The result is not
// validated.
func FromPayload(p map[string]any) (Message, error) {
	var m Message
	var err error

	kind, err := stringField(p, KeyKind)
	if err != nil {
		return m, err
	}
	m.Kind = Kind(kind)
	if m.ResourceIdentifier, err = stringField(p, KeyResourceIdentifier); err != nil {
		return m, err
	}
	if m.SenderPID, err = intField(p, KeySenderPID); err != nil {
		return m, err
	}
	if m.TargetPID, err = intField(p, KeyTargetPID); err != nil {
		return m, err
	}
	if m.PreferredAccess, err = accessField(p, KeyPreferredAccess); err != nil {
		return m, err
	}
	if m.ActualAccess, err = accessField(p, KeyActualAccess); err != nil {
		return m, err
	}
	if _, ok := p[KeyAccessPressure]; ok {
		v, err := intField(p, KeyAccessPressure)
		if err != nil {
			return m, err
		}
		pr := resource.Pressure(v)
		m.AccessPressure = &pr
	}
	if raw, ok := p[KeyBroadcastInfo]; ok && raw != nil {
		info, ok := raw.(map[string]any)
		if !ok {
			return m, payloadError(KeyBroadcastInfo, raw, "must be a dictionary")
		}
		m.BroadcastInfo = info
	}
	if s, err := stringField(p, KeyResult); err != nil {
		return m, err
	} else if s != "" {
		if err := m.Result.UnmarshalText([]byte(s)); err != nil {
			return m, payloadError(KeyResult, s, err.Error())
		}
	}
	return m, nil
}

func stringField(p map[string]any, key string) (string, error) {
	raw, ok := p[key]
	if !ok || raw == nil {
		return "", nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", payloadError(key, raw, "must be a string")
	}
	return s, nil
}

// intField accepts every numeric type a JSON or CBOR decoder may produce
// for an any-typed target.
func intField(p map[string]any, key string) (int, error) {
	raw, ok := p[key]
	if !ok || raw == nil {
		return 0, nil
	}
	switch v := raw.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case int32:
		return int(v), nil
	case uint64:
		if v > math.MaxInt32 {
			return 0, payloadError(key, raw, "out of range")
		}
		return int(v), nil
	case uint32:
		return int(v), nil
	case float64:
		if v != math.Trunc(v) {
			return 0, payloadError(key, raw, "must be an integer")
		}
		return int(v), nil
	}
	return 0, payloadError(key, raw, fmt.Sprintf("must be an integer, not %T", raw))
}

func accessField(p map[string]any, key string) (resource.Access, error) {
	s, err := stringField(p, key)
	if err != nil || s == "" {
		return resource.AccessUnknown, err
	}
	a, err := resource.ParseAccess(s)
	if err != nil {
		return resource.AccessUnknown, payloadError(key, s, err.Error())
	}
	return a, nil
}

func payloadError(key string, value any, msg string) error {
	return errors.NewValidationError(msg).WithField(key).WithValue(value).WithCause(errors.ErrInvalidMessage)
}
