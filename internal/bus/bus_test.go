package bus

import (
	"sync"
	"testing"
)

const testEventType Type = "test.event"

// testEvent is a minimal event payload for bus tests.
type testEvent struct {
	value int
}

func (testEvent) EventType() Type { return testEventType }

func TestPublishDeliversInSubscriptionOrder(t *testing.T) {
	b := New()

	var order []string
	b.Subscribe(testEventType, func(Event) { order = append(order, "first") })
	b.Subscribe(testEventType, func(Event) { order = append(order, "second") })
	b.Subscribe(testEventType, func(Event) { order = append(order, "third") })

	b.Publish(testEvent{value: 1})

	if len(order) != 3 {
		t.Fatalf("expected 3 handler invocations, got %d", len(order))
	}
	if order[0] != "first" || order[1] != "second" || order[2] != "third" {
		t.Errorf("handlers ran out of order: %v", order)
	}
}

func TestPublishOnlyMatchingType(t *testing.T) {
	b := New()

	called := 0
	b.Subscribe("other.event", func(Event) { called++ })

	b.Publish(testEvent{})

	if called != 0 {
		t.Errorf("handler for unrelated type was invoked %d times", called)
	}
}

func TestPanickingHandlerDoesNotStopDelivery(t *testing.T) {
	b := New()

	var delivered []int
	b.Subscribe(testEventType, func(ev Event) {
		delivered = append(delivered, ev.(testEvent).value)
	})
	b.Subscribe(testEventType, func(Event) {
		panic("handler blew up")
	})
	b.Subscribe(testEventType, func(ev Event) {
		delivered = append(delivered, ev.(testEvent).value*10)
	})

	b.Publish(testEvent{value: 7})

	if len(delivered) != 2 {
		t.Fatalf("expected 2 deliveries around the panicking handler, got %d", len(delivered))
	}
	if delivered[0] != 7 || delivered[1] != 70 {
		t.Errorf("unexpected deliveries: %v", delivered)
	}
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	b := New()

	called := 0
	sub := b.Subscribe(testEventType, func(Event) { called++ })

	b.Unsubscribe(sub)
	b.Unsubscribe(sub) // second removal is a no-op
	b.Publish(testEvent{})

	if called != 0 {
		t.Errorf("handler invoked after unsubscribe: %d times", called)
	}
	if n := b.SubscriberCount(testEventType); n != 0 {
		t.Errorf("expected 0 subscribers, got %d", n)
	}
}

func TestUnsubscribeMiddleHandlerPreservesOrder(t *testing.T) {
	b := New()

	var order []string
	b.Subscribe(testEventType, func(Event) { order = append(order, "a") })
	middle := b.Subscribe(testEventType, func(Event) { order = append(order, "b") })
	b.Subscribe(testEventType, func(Event) { order = append(order, "c") })

	b.Unsubscribe(middle)
	b.Publish(testEvent{})

	if len(order) != 2 || order[0] != "a" || order[1] != "c" {
		t.Errorf("unexpected order after middle unsubscribe: %v", order)
	}
}

func TestPublishWithoutSubscribersIsSafe(t *testing.T) {
	b := New()
	// No subscribers: publish must not panic or block.
	b.Publish(testEvent{value: 1})
}

func TestConcurrentSubscribePublish(t *testing.T) {
	b := New()

	var mu sync.Mutex
	count := 0
	b.Subscribe(testEventType, func(Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				b.Publish(testEvent{value: j})
			}
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if count != 1000 {
		t.Errorf("expected 1000 deliveries, got %d", count)
	}
}
