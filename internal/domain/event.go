package domain

import "time"

// EventType определяет тип статусного события конвейера.
type EventType string

const (
	// EventTypeHoldGranted — резервирование выполнено, остатки списаны.
	EventTypeHoldGranted EventType = "hold.granted"
	// EventTypeOrderRejected — резервирование отклонено, шлюз не вызывался.
	EventTypeOrderRejected EventType = "order.rejected"
	// EventTypeOrderCommitted — оплата прошла, hold зафиксирован.
	EventTypeOrderCommitted EventType = "order.committed"
	// EventTypeOrderRolledBack — оплата не прошла, hold возвращён.
	EventTypeOrderRolledBack EventType = "order.rolled_back"
	// EventTypeHoldSwept — осиротевший hold возвращён supervisor-воркером.
	EventTypeHoldSwept EventType = "hold.swept"
)

// StatusEvent — статусное событие одного заказа. Для одного заказа события
// публикуются в порядке шагов конвейера; между заказами порядок не гарантируется.
type StatusEvent struct {
	ID      string
	OrderID string
	Type    EventType
	// Message — человекочитаемая строка статуса.
	Message string
	// StockLevels — актуальные остатки затронутых товаров;
	// заполняется для успешного завершения заказа.
	StockLevels map[string]int32
	OccurredAt  time.Time
}

// QueueStats описывает backlog долговременной очереди событий.
type QueueStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
