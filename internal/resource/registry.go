package resource

import (
	"errors"
	"slices"
)

// ErrUserNotFound is returned when no user is registered for a pid.
var ErrUserNotFound = errors.New("resource user not found")

// Registry indexes users by pid and remembers the order in which they were
// first seen. It applies no policy of its own.
type Registry struct {
	byPID map[int]*User
	order []int
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byPID: make(map[int]*User)}
}

// Get returns the user for pid, or nil.
func (r *Registry) Get(pid int) *User {
	return r.byPID[pid]
}

// GetOrCreate returns the user for pid, creating it with unknown access if
// absent. The second result reports whether a record was created.
func (r *Registry) GetOrCreate(pid int, usingProtocol bool) (*User, bool) {
	if u, ok := r.byPID[pid]; ok {
		return u, false
	}
	u := NewUser(pid, usingProtocol)
	r.byPID[pid] = u
	r.order = append(r.order, pid)
	return u, true
}

// Remove deletes the user for pid and returns it. Returns ErrUserNotFound
// if no such user is registered.
func (r *Registry) Remove(pid int) (*User, error) {
	u, ok := r.byPID[pid]
	if !ok {
		return nil, ErrUserNotFound
	}
	delete(r.byPID, pid)
	if i := slices.Index(r.order, pid); i >= 0 {
		r.order = slices.Delete(r.order, i, i+1)
	}
	return u, nil
}

// Users returns the registered users in first-seen order. The slice is a
// fresh copy; the records are shared.
func (r *Registry) Users() []*User {
	users := make([]*User, 0, len(r.order))
	for _, pid := range r.order {
		users = append(users, r.byPID[pid])
	}
	return users
}

// Len returns the number of registered users.
func (r *Registry) Len() int {
	return len(r.order)
}

// Holders returns users whose actual access conflicts with want. Protocol
// users whose status has not arrived yet are skipped; kernel-observed users
// of unknown pattern are included.
func (r *Registry) Holders(want Access) []*User {
	var out []*User
	for _, pid := range r.order {
		u := r.byPID[pid]
		if u.UsingProtocol && u.ActualAccess == AccessUnknown {
			continue
		}
		if u.ActualAccess.Conflicts(want) {
			out = append(out, u)
		}
	}
	return out
}
