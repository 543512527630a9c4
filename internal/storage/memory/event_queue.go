package memory

import (
	"context"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

// queuedEvent хранит событие и момент постановки в очередь.
type queuedEvent struct {
	event      domain.StatusEvent
	enqueuedAt time.Time
}

// eventQueueInMemory — in-memory FIFO-очередь статусных событий.
type eventQueueInMemory struct {
	mu     sync.Mutex
	events []queuedEvent
}

// NewEventQueue создаёт пустую in-memory очередь событий.
func NewEventQueue() domain.EventQueue {
	return &eventQueueInMemory{}
}

// Append добавляет событие в хвост очереди.
func (q *eventQueueInMemory) Append(ctx context.Context, event domain.StatusEvent) error {
	_ = ctx

	q.mu.Lock()
	defer q.mu.Unlock()

	q.events = append(q.events, queuedEvent{event: event, enqueuedAt: time.Now().UTC()})
	return nil
}

// Next снимает самое старое событие. Мьютекс гарантирует, что из двух
// конкурирующих вызовов событие получит ровно один.
func (q *eventQueueInMemory) Next(ctx context.Context) (domain.StatusEvent, bool, error) {
	_ = ctx

	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return domain.StatusEvent{}, false, nil
	}

	head := q.events[0]
	q.events = q.events[1:]
	return head.event, true, nil
}

// Stats возвращает размер backlog и возраст головы очереди.
func (q *eventQueueInMemory) Stats(ctx context.Context) (domain.QueueStats, error) {
	_ = ctx

	q.mu.Lock()
	defer q.mu.Unlock()

	stats := domain.QueueStats{PendingCount: len(q.events)}
	if len(q.events) > 0 {
		stats.OldestPendingAt = q.events[0].enqueuedAt
	}
	return stats, nil
}

var _ domain.EventQueue = (*eventQueueInMemory)(nil)
