// Package event is the pub-sub bus through which a mediator tells its host
// what happened on the resource.
//
// The mediator publishes from its run loop; handlers are called
// synchronously on that goroutine and must return quickly. A panicking
// handler is logged and does not stop delivery to the others.
//
// # Event Categories
//
// Population:
//   - [UserAppearedEvent], [UserUpdatedEvent], [UserDisappearedEvent]
//   - [BroadcastInfoUpdatedEvent]: a peer changed its opaque metadata
//
// Arbitration:
//   - [AccessChangedEvent]: this process's actual access changed
//   - [RequestAnsweredEvent]: this process answered a peer's request
//   - [ResponseReceivedEvent]: a peer answered (or failed to answer) ours
//
// Lifecycle and observer:
//   - [MediatorActivatedEvent], [MediatorDeactivatedEvent]
//   - [ObserverFailedEvent], [DeviceArrivedEvent], [DeviceRemovedEvent]
//
// # Basic Usage
//
//	bus := event.NewBus()
//	bus.Subscribe(event.TypeAccessChanged, func(e event.Event) {
//	    changed := e.(event.AccessChangedEvent)
//	    fmt.Println(changed.Previous, "->", changed.Current)
//	})
//	bus.SubscribeAll(func(e event.Event) { log.Println(e.EventType()) })
//
// Event types follow the pattern "category.action".
package event
