// Package commandqueue serializes the access changes a mediator asks its
// host application to make.
//
// A host may take arbitrarily long to release or acquire the resource, so
// the mediator never has more than one outstanding request to it. Each
// [Command] waits in FIFO order; when the running command finishes the
// next one starts. A command the host never completes can be abandoned,
// after which a late completion for it is rejected as stale.
//
// The queue is not safe for concurrent use. It belongs to the run loop of
// the mediator that owns it.
//
// Usage:
//
//	q := commandqueue.New(clk)
//	q.Enqueue(resource.AccessNone, peerPID,
//	    func(c *commandqueue.Command) { delegate.SetApplicationAccess(...) },
//	    func(c *commandqueue.Command) { /* act on c.Result */ })
//	// later, from the delegate completion:
//	q.Finish(id, resource.ResultSuccess)
package commandqueue
