// Package resource defines the participation state shared by every arbiter
// instance: access levels, access pressure, request results, and the
// per-process [User] record together with the [Registry] that indexes users
// by process identifier.
//
// A [User] is created on first sighting of a process, either from a STATUS
// message sent by a peer mediator or from a client connection observed in
// the kernel device registry. Records created from kernel observation have
// UsingProtocol set to false; the arbitration engine never sends them
// protocol messages.
//
// # Thread Safety
//
// [Registry] is not safe for concurrent use. It is owned by exactly one
// mediator and only touched from that mediator's event loop.
package resource
