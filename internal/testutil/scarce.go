package testutil

import (
	"slices"
	"sync"
)

// ScarceResource is an in-memory lock with exclusive and shared modes.
type ScarceResource struct {
	mu        sync.Mutex
	exclusive string
	shared    map[string]bool
	refused   int
}

// NewScarceResource returns an unlocked resource.
func NewScarceResource() *ScarceResource {
	return &ScarceResource{shared: make(map[string]bool)}
}

// TryExclusiveLock locks the resource for owner alone. An owner that is
// the only shared holder is upgraded.
func (r *ScarceResource) TryExclusiveLock(owner string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.exclusive == owner {
		return true
	}
	others := len(r.shared)
	if r.shared[owner] {
		others--
	}
	if r.exclusive != "" || others > 0 {
		r.refused++
		return false
	}
	delete(r.shared, owner)
	r.exclusive = owner
	return true
}

// TrySharedLock adds owner as a shared holder. An exclusive owner is
// downgraded.
func (r *ScarceResource) TrySharedLock(owner string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.exclusive == owner {
		r.exclusive = ""
	} else if r.exclusive != "" {
		r.refused++
		return false
	}
	r.shared[owner] = true
	return true
}

// Unlock releases whatever owner holds.
func (r *ScarceResource) Unlock(owner string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.exclusive == owner {
		r.exclusive = ""
	}
	delete(r.shared, owner)
}

// ExclusiveOwner returns the exclusive holder, or "".
func (r *ScarceResource) ExclusiveOwner() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.exclusive
}

// SharedOwners returns the shared holders, sorted.
func (r *ScarceResource) SharedOwners() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	owners := make([]string, 0, len(r.shared))
	for o := range r.shared {
		owners = append(owners, o)
	}
	slices.Sort(owners)
	return owners
}

// Refused counts lock attempts that were turned away because another
// owner held the resource.
func (r *ScarceResource) Refused() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.refused
}
