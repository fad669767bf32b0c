package resource

import (
	"fmt"
	"strings"
)

// YieldPolicy decides whether a host gives up its access when a peer asks.
type YieldPolicy string

const (
	// YieldAlways grants every request.
	YieldAlways YieldPolicy = "always"
	// YieldNever denies every request.
	YieldNever YieldPolicy = "never"
	// YieldByPressure grants requests from peers whose pressure is at least
	// the host's own.
	YieldByPressure YieldPolicy = "pressure"
)

// YieldPolicies lists the accepted policy names.
func YieldPolicies() []string {
	return []string{string(YieldAlways), string(YieldNever), string(YieldByPressure)}
}

// ParseYieldPolicy parses a policy name. The empty string means always.
func ParseYieldPolicy(s string) (YieldPolicy, error) {
	switch p := YieldPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return YieldAlways, nil
	case YieldAlways, YieldNever, YieldByPressure:
		return p, nil
	}
	return "", fmt.Errorf("unknown yield policy %q (want one of %s)", s, strings.Join(YieldPolicies(), ", "))
}

// Allows reports whether a host with pressure own yields to requester. A
// nil requester is the host's own change and is always allowed.
func (p YieldPolicy) Allows(requester *User, own Pressure) bool {
	if requester == nil {
		return true
	}
	switch p {
	case YieldNever:
		return false
	case YieldByPressure:
		return requester.AccessPressure >= own
	}
	return true
}

// Set implements pflag.Value.
func (p *YieldPolicy) Set(s string) error {
	v, err := ParseYieldPolicy(s)
	if err != nil {
		return err
	}
	*p = v
	return nil
}

func (p *YieldPolicy) String() string { return string(*p) }

// Type implements pflag.Value.
func (p *YieldPolicy) Type() string { return "policy" }
