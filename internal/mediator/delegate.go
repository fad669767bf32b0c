package mediator

import (
	"github.com/Iron-Ham/arbiter/internal/resource"
)

// Delegate is implemented by the host application. The mediator calls it
// to change the host's actual use of the resource.
type Delegate interface {
	// SetApplicationAccess asks the host to move to access. requestedBy is
	// a copy of the peer that asked, or nil when the mediator acts for the
	// host itself. The host must call done exactly once, from any
	// goroutine, with the outcome. Until it does, no other command is
	// issued (unless the delegate timeout is configured).
	SetApplicationAccess(access resource.Access, requestedBy *resource.User, done func(resource.Result))
}

// DelegateFunc adapts a function to the Delegate interface.
type DelegateFunc func(access resource.Access, requestedBy *resource.User, done func(resource.Result))

// SetApplicationAccess calls f.
func (f DelegateFunc) SetApplicationAccess(access resource.Access, requestedBy *resource.User, done func(resource.Result)) {
	f(access, requestedBy, done)
}
