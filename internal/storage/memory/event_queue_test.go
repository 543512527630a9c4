package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

func TestEventQueueFIFO(t *testing.T) {
	queue := NewEventQueue()

	for i := 0; i < 3; i++ {
		err := queue.Append(context.Background(), domain.StatusEvent{
			ID:      fmt.Sprintf("evt-%d", i),
			OrderID: "order-1",
		})
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	for i := 0; i < 3; i++ {
		event, ok, err := queue.Next(context.Background())
		if err != nil || !ok {
			t.Fatalf("next %d: ok=%v err=%v", i, ok, err)
		}
		if want := fmt.Sprintf("evt-%d", i); event.ID != want {
			t.Fatalf("next %d: got %s, want %s", i, event.ID, want)
		}
	}

	if _, ok, err := queue.Next(context.Background()); err != nil || ok {
		t.Fatalf("expected empty queue, got ok=%v err=%v", ok, err)
	}
}

func TestEventQueueStats(t *testing.T) {
	queue := NewEventQueue()

	stats, err := queue.Stats(context.Background())
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.PendingCount != 0 || !stats.OldestPendingAt.IsZero() {
		t.Fatalf("unexpected empty stats: %+v", stats)
	}

	if err := queue.Append(context.Background(), domain.StatusEvent{ID: "evt-0"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := queue.Append(context.Background(), domain.StatusEvent{ID: "evt-1"}); err != nil {
		t.Fatalf("append: %v", err)
	}

	stats, _ = queue.Stats(context.Background())
	if stats.PendingCount != 2 {
		t.Fatalf("pending = %d, want 2", stats.PendingCount)
	}
	if stats.OldestPendingAt.IsZero() {
		t.Fatalf("expected oldest pending timestamp")
	}
}

func TestEventQueueConcurrentConsumers(t *testing.T) {
	const events = 100
	const consumers = 5

	queue := NewEventQueue()
	for i := 0; i < events; i++ {
		if err := queue.Append(context.Background(), domain.StatusEvent{ID: fmt.Sprintf("evt-%d", i)}); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	var mu sync.Mutex
	seen := make(map[string]int, events)

	var wg sync.WaitGroup
	for c := 0; c < consumers; c++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				event, ok, err := queue.Next(context.Background())
				if err != nil {
					t.Errorf("next: %v", err)
					return
				}
				if !ok {
					return
				}
				mu.Lock()
				seen[event.ID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != events {
		t.Fatalf("consumed %d distinct events, want %d", len(seen), events)
	}
	for id, count := range seen {
		if count != 1 {
			t.Fatalf("event %s consumed %d times", id, count)
		}
	}
}
