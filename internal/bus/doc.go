// Package bus carries arbitration messages between the mediators of every
// process on a host that shares a resource.
//
// The production transport is [FileBus]: one directory per resource
// identifier holding an append-only log. Publishers append one framed
// record under an flock(2); subscribers tail the log with fsnotify and a
// polling fallback, and deliver every record written after they
// subscribed, in log order. Each subscriber therefore sees the messages
// of a resource in the same order as every other subscriber.
//
// [Loopback] is an in-memory bus for tests. It delivers synchronously and
// keeps a history of everything published.
//
// Only one rotated log is retained. A subscriber that falls more than a
// whole log behind its writers loses the records of the log it skipped.
//
// Directory layout:
//
//	<dir>/
//	  <escaped resource identifier>/
//	    bus.log      current log
//	    bus.log.1    previous log, kept until the next rotation
//	    bus.lock     flock target serializing appends and rotation
package bus
