package postgres

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

func TestEventQueue_PostgresFIFO(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	queue := NewEventQueue(store)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	now := time.Now().UTC().Round(time.Microsecond)
	events := []domain.StatusEvent{
		{ID: "evt-1", OrderID: "order-1", Type: domain.EventTypeHoldGranted, OccurredAt: now},
		{ID: "evt-2", OrderID: "order-1", Type: domain.EventTypeOrderCommitted, StockLevels: map[string]int32{"prod-1": 3}, OccurredAt: now.Add(time.Millisecond)},
		{ID: "evt-3", OrderID: "order-2", Type: domain.EventTypeOrderRejected, OccurredAt: now.Add(2 * time.Millisecond)},
	}
	for _, event := range events {
		if err := queue.Append(ctx, event); err != nil {
			t.Fatalf("append %s: %v", event.ID, err)
		}
	}

	stats, err := queue.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.PendingCount != 3 {
		t.Fatalf("expected 3 pending events, got %d", stats.PendingCount)
	}

	for i, want := range events {
		got, ok, err := queue.Next(ctx)
		if err != nil {
			t.Fatalf("next %d: %v", i, err)
		}
		if !ok {
			t.Fatalf("expected event %d, queue is empty", i)
		}
		if got.ID != want.ID {
			t.Fatalf("FIFO order broken at %d: got=%s want=%s", i, got.ID, want.ID)
		}
	}

	if _, ok, err := queue.Next(ctx); err != nil || ok {
		t.Fatalf("expected empty queue, got ok=%v err=%v", ok, err)
	}
}

func TestEventQueue_PostgresConcurrentPollers(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	queue := NewEventQueue(store)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	const total = 20
	now := time.Now().UTC()
	for i := 0; i < total; i++ {
		if err := queue.Append(ctx, domain.StatusEvent{
			ID:         fmt.Sprintf("evt-concurrent-%d", i),
			OrderID:    "order-1",
			Type:       domain.EventTypeHoldGranted,
			OccurredAt: now,
		}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	var (
		mu   sync.Mutex
		seen = map[string]int{}
		wg   sync.WaitGroup
	)
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				event, ok, err := queue.Next(ctx)
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

	if len(seen) != total {
		t.Fatalf("expected %d distinct events, got %d", total, len(seen))
	}
	for id, count := range seen {
		if count != 1 {
			t.Fatalf("event %s delivered %d times", id, count)
		}
	}
}
