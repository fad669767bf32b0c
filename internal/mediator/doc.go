// Package mediator implements the leaderless arbitration engine.
//
// One Mediator runs per resource identifier per process. Mediators never
// talk to a broker: they broadcast STATUS announcements on a shared bus,
// ask conflicting holders to yield with ACCESS_REQUEST, and learn about
// processes that do not speak the protocol from a kernel observer.
//
// # Execution model
//
// Every bus delivery, timer expiry, observer change and delegate
// completion is posted to a [runloop.Loop] and handled to completion
// before the next one. Side effects produced by a task (bus messages,
// events, delegate calls) are collected while the state lock is held and
// performed in order after it is released, so event handlers and
// delegates may call back into the Mediator.
//
// # Negotiation
//
// A mediator whose preferred access conflicts with a peer's actual access
// sends that peer an ACCESS_REQUEST and records it as pending until the
// ACCESS_RESPONSE arrives, the response timeout expires, or the peer is
// seen to terminate. The peer asks its host through the [Delegate] to
// step down; on success it becomes the lender and the requester the
// borrower. Once no conflicting holder is left the mediator asks its own
// host to adopt the preferred access and announces the result.
//
// At most one delegate command is outstanding at a time; further
// commands wait in a [commandqueue.Queue].
package mediator
