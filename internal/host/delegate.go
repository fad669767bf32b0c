package host

import (
	"sync"
	"time"

	"github.com/Iron-Ham/arbiter/internal/logging"
	"github.com/Iron-Ham/arbiter/internal/resource"
)

// Decision records one answer given by a PolicyDelegate.
type Decision struct {
	At     time.Time
	Access resource.Access
	// RequestedBy is nil when the change was the host's own.
	RequestedBy *resource.User
	Result      resource.Result
}

// PolicyDelegate answers access changes for a host that holds no device of
// its own, as `arbiter run` does. Its own changes always succeed; peer
// requests are granted or refused by the yield policy.
type PolicyDelegate struct {
	logger *logging.Logger

	mu       sync.Mutex
	policy   resource.YieldPolicy
	pressure resource.Pressure
	current  resource.Access
	onDecide func(Decision)
}

// NewPolicyDelegate returns a delegate applying policy against pressure.
// onDecide, if non-nil, is called after every answer.
func NewPolicyDelegate(policy resource.YieldPolicy, pressure resource.Pressure, logger *logging.Logger, onDecide func(Decision)) *PolicyDelegate {
	if policy == "" {
		policy = resource.YieldAlways
	}
	return &PolicyDelegate{
		logger:   logging.OrNop(logger).WithComponent("delegate"),
		policy:   policy,
		pressure: pressure,
		current:  resource.AccessNone,
		onDecide: onDecide,
	}
}

// SetApplicationAccess implements mediator.Delegate.
func (d *PolicyDelegate) SetApplicationAccess(access resource.Access, requestedBy *resource.User, done func(resource.Result)) {
	d.mu.Lock()
	result := resource.ResultSuccess
	if !d.policy.Allows(requestedBy, d.pressure) {
		result = resource.ResultDeny
	} else {
		d.current = access
	}
	notify := d.onDecide
	d.mu.Unlock()

	args := []any{"access", access.String(), "result", result.String()}
	if requestedBy != nil {
		args = append(args, "peer", requestedBy.PID)
	}
	d.logger.Info("application access decided", args...)

	done(result)
	if notify != nil {
		notify(Decision{At: time.Now(), Access: access, RequestedBy: requestedBy, Result: result})
	}
}

// SetPressure updates the pressure compared against requesters.
func (d *PolicyDelegate) SetPressure(p resource.Pressure) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pressure = p
}

// SetPolicy changes the yield policy.
func (d *PolicyDelegate) SetPolicy(p resource.YieldPolicy) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.policy = p
}

// Access returns the access the delegate last agreed to.
func (d *PolicyDelegate) Access() resource.Access {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current
}
