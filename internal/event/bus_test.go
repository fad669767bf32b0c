package event

import (
	"sync"
	"testing"
	"time"

	"github.com/Iron-Ham/arbiter/internal/resource"
)

var testSource = Source{ResourceID: "remote", PID: 100, At: time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)}

func TestBus_Subscribe(t *testing.T) {
	bus := NewBus()

	called := false
	id := bus.Subscribe(TypeAccessChanged, func(e Event) { called = true })
	if id == "" {
		t.Error("Subscribe should return a non-empty ID")
	}
	if bus.SubscriptionCount() != 1 {
		t.Errorf("Expected 1 subscription, got %d", bus.SubscriptionCount())
	}
	if called {
		t.Error("Handler should not be called until an event is published")
	}
}

func TestBus_Publish(t *testing.T) {
	bus := NewBus()

	var received Event
	bus.Subscribe(TypeAccessChanged, func(e Event) { received = e })
	bus.Publish(NewAccessChangedEvent(testSource, resource.AccessNone, resource.AccessBlocking, testSource.At))

	if received == nil {
		t.Fatal("Handler should have received the event")
	}
	changed, ok := received.(AccessChangedEvent)
	if !ok {
		t.Fatalf("got %T, want AccessChangedEvent", received)
	}
	if changed.Current != resource.AccessBlocking || changed.Resource() != "remote" || changed.MediatorPID() != 100 {
		t.Errorf("unexpected event: %+v", changed)
	}
	if !changed.Timestamp().Equal(testSource.At) {
		t.Errorf("Timestamp() = %v, want source time", changed.Timestamp())
	}
}

func TestBus_OrderSpecificThenWildcard(t *testing.T) {
	bus := NewBus()

	var order []string
	bus.SubscribeAll(func(e Event) { order = append(order, "all") })
	bus.Subscribe(TypeUserAppeared, func(e Event) { order = append(order, "first") })
	bus.Subscribe(TypeUserAppeared, func(e Event) { order = append(order, "second") })
	bus.Subscribe(TypeUserDisappeared, func(e Event) { order = append(order, "other") })

	bus.Publish(NewUserAppearedEvent(testSource, resource.NewUser(5, true)))

	want := []string{"first", "second", "all"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus()

	calls := 0
	a := bus.Subscribe(TypeDeviceArrived, func(e Event) { calls++ })
	bus.Subscribe(TypeDeviceArrived, func(e Event) { calls += 10 })

	if !bus.Unsubscribe(a) {
		t.Error("Unsubscribe should report an existing subscription")
	}
	if bus.Unsubscribe(a) {
		t.Error("second Unsubscribe should report false")
	}
	bus.Publish(NewDeviceArrivedEvent(testSource, "input5", "IR Remote", nil))
	if calls != 10 {
		t.Errorf("calls = %d, want only the remaining handler", calls)
	}
}

func TestBus_PanicRecovery(t *testing.T) {
	bus := NewBus()

	reached := false
	bus.Subscribe(TypeObserverFailed, func(e Event) { panic("boom") })
	bus.Subscribe(TypeObserverFailed, func(e Event) { reached = true })

	bus.Publish(NewObserverFailedEvent(testSource, nil))
	if !reached {
		t.Error("a panicking handler must not stop delivery")
	}
}

func TestBus_Clear(t *testing.T) {
	bus := NewBus()
	bus.Subscribe(TypeUserUpdated, func(Event) {})
	bus.SubscribeAll(func(Event) {})
	bus.Clear()
	if bus.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d after Clear", bus.SubscriptionCount())
	}
}

func TestBus_ConcurrentPublish(t *testing.T) {
	bus := NewBus()

	var mu sync.Mutex
	count := 0
	bus.SubscribeAll(func(e Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for range 20 {
		wg.Go(func() {
			for range 50 {
				bus.Publish(NewMediatorActivatedEvent(testSource))
			}
		})
	}
	wg.Wait()

	if count != 1000 {
		t.Errorf("count = %d, want 1000", count)
	}
}

func TestEvents_CopyUsers(t *testing.T) {
	u := resource.NewUser(7, true)
	u.BroadcastInfo = map[string]any{"k": "v"}
	e := NewUserUpdatedEvent(testSource, u, resource.StatusChange{Access: true})

	u.ActualAccess = resource.AccessBlocking
	u.BroadcastInfo["k"] = "changed"
	if e.User.ActualAccess == resource.AccessBlocking || e.User.BroadcastInfo["k"] != "v" {
		t.Error("event must hold a copy of the user")
	}
	if e.EventType() != TypeUserUpdated || !e.Change.Access {
		t.Errorf("unexpected event %+v", e)
	}
}
