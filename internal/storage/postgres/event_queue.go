package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

type eventQueue struct {
	db *sql.DB
}

// NewEventQueue создаёт PostgreSQL-реализацию долговременной очереди событий.
// Next использует FOR UPDATE SKIP LOCKED: при нескольких конкурирующих
// poller'ах каждое событие снимает ровно один из них.
func NewEventQueue(store *Store) domain.EventQueue {
	return &eventQueue{db: store.DB()}
}

func (q *eventQueue) Append(ctx context.Context, event domain.StatusEvent) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var levels []byte
	if event.StockLevels != nil {
		encoded, err := json.Marshal(event.StockLevels)
		if err != nil {
			return fmt.Errorf("marshal stock levels: %w", err)
		}
		levels = encoded
	}

	if _, err := q.db.ExecContext(ctx, `
		INSERT INTO status_events (id, order_id, event_type, message, stock_levels, occurred_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`,
		event.ID, event.OrderID, string(event.Type), event.Message, levels, event.OccurredAt,
	); err != nil {
		return fmt.Errorf("insert status event: %w", err)
	}

	return nil
}

func (q *eventQueue) Next(ctx context.Context) (domain.StatusEvent, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var (
		event     domain.StatusEvent
		eventType string
		levels    []byte
	)

	err := q.db.QueryRowContext(ctx, `
		DELETE FROM status_events
		WHERE seq = (
			SELECT seq
			FROM status_events
			ORDER BY seq ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, order_id, event_type, message, stock_levels, occurred_at
	`).Scan(&event.ID, &event.OrderID, &eventType, &event.Message, &levels, &event.OccurredAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.StatusEvent{}, false, nil
		}
		return domain.StatusEvent{}, false, fmt.Errorf("pull status event: %w", err)
	}
	event.Type = domain.EventType(eventType)

	if len(levels) > 0 {
		if err := json.Unmarshal(levels, &event.StockLevels); err != nil {
			return domain.StatusEvent{}, false, fmt.Errorf("unmarshal stock levels: %w", err)
		}
	}

	return event, true, nil
}

func (q *eventQueue) Stats(ctx context.Context) (domain.QueueStats, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var (
		count  int
		oldest sql.NullTime
	)
	if err := q.db.QueryRowContext(ctx, `
		SELECT COUNT(*), MIN(enqueued_at)
		FROM status_events
	`).Scan(&count, &oldest); err != nil {
		return domain.QueueStats{}, fmt.Errorf("query queue stats: %w", err)
	}

	stats := domain.QueueStats{PendingCount: count}
	if oldest.Valid {
		stats.OldestPendingAt = oldest.Time
	}

	return stats, nil
}

var _ domain.EventQueue = (*eventQueue)(nil)
