package resource

import (
	"fmt"
	"strconv"
	"strings"
)

// Access describes how a process uses the resource.
type Access uint8

const (
	// AccessUnknown means the process uses the resource but the pattern is
	// not known. Reserved for users that do not speak the protocol.
	AccessUnknown Access = iota
	// AccessNone means the process does not use the resource.
	AccessNone
	// AccessShared means the process shares the resource with others.
	AccessShared
	// AccessBlocking means the process holds the resource exclusively.
	AccessBlocking
)

var accessNames = map[Access]string{
	AccessUnknown:  "unknown",
	AccessNone:     "none",
	AccessShared:   "shared",
	AccessBlocking: "blocking",
}

// String returns the lower-case wire name of the access level.
func (a Access) String() string {
	if name, ok := accessNames[a]; ok {
		return name
	}
	return "access(" + strconv.Itoa(int(a)) + ")"
}

// ParseAccess parses a wire or user-supplied access name. "exclusive" is
// accepted as an alias for blocking.
func ParseAccess(s string) (Access, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "unknown":
		return AccessUnknown, nil
	case "none", "":
		return AccessNone, nil
	case "shared":
		return AccessShared, nil
	case "blocking", "exclusive":
		return AccessBlocking, nil
	}
	return AccessUnknown, fmt.Errorf("unknown access %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (a Access) MarshalText() ([]byte, error) {
	if _, ok := accessNames[a]; !ok {
		return nil, fmt.Errorf("invalid access %d", a)
	}
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Access) UnmarshalText(text []byte) error {
	v, err := ParseAccess(string(text))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// Holds reports whether a process with this actual access is using the
// resource at all.
func (a Access) Holds() bool {
	return a == AccessShared || a == AccessBlocking || a == AccessUnknown
}

// Conflicts reports whether a holder with actual access a prevents a
// process from obtaining want. Shared excludes only blocking holders;
// blocking excludes every holder. Unknown is treated as blocking because a
// process of unknown pattern may hold the resource exclusively.
func (a Access) Conflicts(want Access) bool {
	switch want {
	case AccessShared:
		return a == AccessBlocking || a == AccessUnknown
	case AccessBlocking:
		return a.Holds()
	}
	return false
}

// Set implements pflag.Value.
func (a *Access) Set(s string) error {
	return a.UnmarshalText([]byte(s))
}

// Type implements pflag.Value.
func (a *Access) Type() string { return "access" }

// Pressure is the heuristic strength with which a process needs the
// resource. Higher values bias a mediator towards initiating requests.
type Pressure int

const (
	PressureNone               Pressure = 0
	PressureOptional           Pressure = 25
	PressurePartiallySupported Pressure = 50
	PressureRequired           Pressure = 100
)

// DefaultPressure is used when the host never sets a pressure.
const DefaultPressure = PressureOptional

// String returns a symbolic name for the well-known levels and the number
// otherwise.
func (p Pressure) String() string {
	switch p {
	case PressureNone:
		return "none"
	case PressureOptional:
		return "optional"
	case PressurePartiallySupported:
		return "partial"
	case PressureRequired:
		return "required"
	}
	return strconv.Itoa(int(p))
}

// ParsePressure accepts a symbolic level or an integer in [0, 100].
func ParsePressure(s string) (Pressure, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none":
		return PressureNone, nil
	case "optional", "":
		return PressureOptional, nil
	case "partial", "partially_supported", "partially-supported":
		return PressurePartiallySupported, nil
	case "required":
		return PressureRequired, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 || n > 100 {
		return PressureNone, fmt.Errorf("invalid access pressure %q", s)
	}
	return Pressure(n), nil
}

// Set implements pflag.Value.
func (p *Pressure) Set(s string) error {
	v, err := ParsePressure(s)
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// Type implements pflag.Value.
func (p *Pressure) Type() string { return "pressure" }

// Result is the outcome of an access change requested of a host
// application.
type Result uint8

const (
	resultUnset Result = iota
	// ResultSuccess means the change was made or was already in effect.
	ResultSuccess
	// ResultError means the host attempted the change and failed.
	ResultError
	// ResultDeny means the host refused to make the change.
	ResultDeny
)

// String returns the upper-case wire name of the result.
func (r Result) String() string {
	switch r {
	case ResultSuccess:
		return "SUCCESS"
	case ResultError:
		return "ERROR"
	case ResultDeny:
		return "DENY"
	}
	return "UNSET"
}

// IsValid reports whether r is one of the three defined results.
func (r Result) IsValid() bool {
	return r == ResultSuccess || r == ResultError || r == ResultDeny
}

// MarshalText implements encoding.TextMarshaler.
func (r Result) MarshalText() ([]byte, error) {
	if !r.IsValid() {
		return nil, fmt.Errorf("invalid result %d", r)
	}
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Result) UnmarshalText(text []byte) error {
	switch strings.ToUpper(string(text)) {
	case "SUCCESS":
		*r = ResultSuccess
	case "ERROR":
		*r = ResultError
	case "DENY":
		*r = ResultDeny
	default:
		return fmt.Errorf("unknown result %q", text)
	}
	return nil
}
