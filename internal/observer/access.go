package observer

import "github.com/Iron-Ham/arbiter/internal/resource"

const (
	accessModeMask = 0o3
	openReadOnly   = 0o0
)

// InferAccess derives a connection's access from its open mode.
func InferAccess(c Client) resource.Access {
	if c.Flags < 0 {
		return resource.AccessUnknown
	}
	if c.Flags&accessModeMask == openReadOnly {
		return resource.AccessShared
	}
	return resource.AccessBlocking
}

// SystemUIDMax is the highest uid treated as a system account.
const SystemUIDMax = 999

// ExcludeSharedSystemDaemons is a TrackClient hook that ignores read-only
// connections held by system accounts. Such daemons share the device with
// everyone and would otherwise surface as competing users.
func ExcludeSharedSystemDaemons(c Client, _ int, _ string) bool {
	if InferAccess(c) != resource.AccessShared {
		return true
	}
	uid := c.Process.UID
	return uid < 0 || uid > SystemUIDMax
}

// Chain combines TrackClient hooks; a client is tracked only if every
// non-nil hook accepts it.
func Chain(hooks ...func(Client, int, string) bool) func(Client, int, string) bool {
	return func(c Client, pid int, name string) bool {
		for _, h := range hooks {
			if h != nil && !h(c, pid, name) {
				return false
			}
		}
		return true
	}
}

// rank orders access levels for folding several connections of one pid.
func rank(a resource.Access) int {
	switch a {
	case resource.AccessBlocking:
		return 3
	case resource.AccessUnknown:
		return 2
	case resource.AccessShared:
		return 1
	}
	return 0
}

func strongest(a, b resource.Access) resource.Access {
	if rank(b) > rank(a) {
		return b
	}
	return a
}
