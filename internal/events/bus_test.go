package events

import (
	"sync"
	"testing"
)

func TestPublishReachesSessionSubscribers(t *testing.T) {
	bus := NewBus()

	var got []string
	unsub := bus.Subscribe("s1", func(ev Event) {
		got = append(got, ev.Name)
	})
	defer unsub()

	bus.Publish("s1", AgentStart, nil)
	bus.Publish("s2", AgentStart, nil) // different session, not delivered
	bus.Publish("s1", AgentDone, nil)

	if len(got) != 2 || got[0] != AgentStart || got[1] != AgentDone {
		t.Fatalf("unexpected events: %v", got)
	}
}

func TestPublishPreservesOrder(t *testing.T) {
	bus := NewBus()

	var got []string
	unsub := bus.Subscribe("s1", func(ev Event) {
		got = append(got, ev.Name)
	})
	defer unsub()

	names := []string{AgentPlanning, AgentPlanReady, AgentExecuting, ToolExecuted, ToolExecuted, AgentReviewing, AgentReviewDone, AgentDone}
	for _, n := range names {
		bus.Publish("s1", n, nil)
	}

	if len(got) != len(names) {
		t.Fatalf("expected %d events, got %d", len(names), len(got))
	}
	for i, n := range names {
		if got[i] != n {
			t.Errorf("event %d: expected %s, got %s", i, n, got[i])
		}
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := NewBus()

	count := 0
	unsub := bus.Subscribe("s1", func(Event) { count++ })

	bus.Publish("s1", AgentStart, nil)
	unsub()
	bus.Publish("s1", AgentDone, nil)

	if count != 1 {
		t.Errorf("expected 1 delivered event, got %d", count)
	}
	if bus.SubscriberCount("s1") != 0 {
		t.Error("expected no remaining subscribers")
	}
}

func TestConcurrentPublish(t *testing.T) {
	bus := NewBus()

	var mu sync.Mutex
	count := 0
	unsub := bus.Subscribe("s1", func(Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	defer unsub()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				bus.Publish("s1", ToolExecuted, nil)
			}
		}()
	}
	wg.Wait()

	if count != 1000 {
		t.Errorf("expected 1000 events, got %d", count)
	}
}
