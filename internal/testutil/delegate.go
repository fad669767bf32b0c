package testutil

import (
	"sync"

	"github.com/Iron-Ham/arbiter/internal/resource"
)

// DelegateCall records one SetApplicationAccess invocation.
type DelegateCall struct {
	Access resource.Access
	// RequestedBy is the requesting peer's pid, or 0 for the host's own
	// change.
	RequestedBy int
	Result      resource.Result
}

// PolicyDelegate applies access changes to a ScarceResource on behalf of
// Owner.
type PolicyDelegate struct {
	Owner    string
	Resource *ScarceResource
	Policy   resource.YieldPolicy
	// Pressure is compared against requesters under YieldByPressure.
	Pressure resource.Pressure

	mu    sync.Mutex
	calls []DelegateCall
	hold  bool
	held  []func()
}

// NewPolicyDelegate returns a delegate that always yields.
func NewPolicyDelegate(owner string, r *ScarceResource) *PolicyDelegate {
	return &PolicyDelegate{
		Owner:    owner,
		Resource: r,
		Policy:   resource.YieldAlways,
		Pressure: resource.DefaultPressure,
	}
}

// SetApplicationAccess implements mediator.Delegate.
func (d *PolicyDelegate) SetApplicationAccess(access resource.Access, requestedBy *resource.User, done func(resource.Result)) {
	result := d.apply(access, requestedBy)

	call := DelegateCall{Access: access, Result: result}
	if requestedBy != nil {
		call.RequestedBy = requestedBy.PID
	}

	d.mu.Lock()
	d.calls = append(d.calls, call)
	if d.hold {
		d.held = append(d.held, func() { done(result) })
		d.mu.Unlock()
		return
	}
	d.mu.Unlock()
	done(result)
}

func (d *PolicyDelegate) apply(access resource.Access, requestedBy *resource.User) resource.Result {
	d.mu.Lock()
	policy, pressure := d.Policy, d.Pressure
	d.mu.Unlock()

	if !policy.Allows(requestedBy, pressure) {
		return resource.ResultDeny
	}
	ok := true
	switch access {
	case resource.AccessNone:
		d.Resource.Unlock(d.Owner)
	case resource.AccessShared:
		ok = d.Resource.TrySharedLock(d.Owner)
	case resource.AccessBlocking:
		ok = d.Resource.TryExclusiveLock(d.Owner)
	}
	if !ok {
		return resource.ResultError
	}
	return resource.ResultSuccess
}

// SetPolicy changes the yield policy.
func (d *PolicyDelegate) SetPolicy(p resource.YieldPolicy) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Policy = p
}

// Hold makes later calls keep their completion until Release.
func (d *PolicyDelegate) Hold() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hold = true
}

// Release stops holding and delivers every held completion in order.
func (d *PolicyDelegate) Release() {
	d.mu.Lock()
	held := d.held
	d.held = nil
	d.hold = false
	d.mu.Unlock()

	for _, fn := range held {
		fn()
	}
}

// Calls returns a copy of the recorded calls.
func (d *PolicyDelegate) Calls() []DelegateCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]DelegateCall(nil), d.calls...)
}
