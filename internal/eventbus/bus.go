package eventbus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

var (
	busPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fulfillment_eventbus_published_total",
		Help: "Total number of status events published grouped by event type.",
	}, []string{"event_type"})
	busDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fulfillment_eventbus_dropped_total",
		Help: "Total number of broadcast deliveries dropped due to a slow subscriber.",
	})
	busSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fulfillment_eventbus_subscribers",
		Help: "Current number of connected broadcast subscribers.",
	})
)

const defaultSubscriberBuffer = 16

// Bus раздаёт статусные события в два стока: широковещательную рассылку
// подключённым подписчикам и долговременную FIFO-очередь, которую опрашивает
// отдельный механизм доставки.
//
// Подписчик получает каждое событие, опубликованное после подключения;
// истории и replay нет. Медленный подписчик публикацию не блокирует —
// событие для него отбрасывается.
type Bus struct {
	queue  domain.EventQueue
	logger *log.Entry

	mu     sync.Mutex
	nextID int
	subs   map[int]chan domain.StatusEvent
}

// New создаёт bus поверх переданной долговременной очереди.
func New(queue domain.EventQueue, logger *log.Entry) *Bus {
	if logger == nil {
		logger = log.WithField("component", "eventbus")
	}
	return &Bus{
		queue:  queue,
		logger: logger,
		subs:   make(map[int]chan domain.StatusEvent),
	}
}

// Publish ставит событие в долговременную очередь и рассылает его
// подключённым подписчикам. События одного заказа публикует его же
// конвейер последовательно, поэтому их порядок сохраняется в обоих стоках.
func (b *Bus) Publish(ctx context.Context, event domain.StatusEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	if err := b.queue.Append(ctx, event); err != nil {
		return fmt.Errorf("enqueue status event: %w", err)
	}

	b.mu.Lock()
	for _, sub := range b.subs {
		select {
		case sub <- event:
		default:
			busDroppedTotal.Inc()
		}
	}
	b.mu.Unlock()

	busPublishedTotal.WithLabelValues(string(event.Type)).Inc()
	b.logger.WithFields(log.Fields{
		"order_id":   event.OrderID,
		"event_type": event.Type,
	}).Debug("status event published")

	return nil
}

// Subscribe подключает нового подписчика и возвращает его канал вместе с
// функцией отключения. buffer <= 0 означает буфер по умолчанию.
func (b *Bus) Subscribe(buffer int) (<-chan domain.StatusEvent, func()) {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}

	ch := make(chan domain.StatusEvent, buffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()
	busSubscribers.Inc()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
			busSubscribers.Dec()
		})
	}

	return ch, cancel
}

// Poll снимает самое старое недоставленное событие из долговременной
// очереди. При нескольких конкурирующих poller'ах событие достаётся ровно
// одному — первому; единый логический поток при этом делится между ними
// недетерминированно.
func (b *Bus) Poll(ctx context.Context) (domain.StatusEvent, bool, error) {
	return b.queue.Next(ctx)
}

// Requeue возвращает событие в очередь после неудавшейся доставки.
func (b *Bus) Requeue(ctx context.Context, event domain.StatusEvent) error {
	return b.queue.Append(ctx, event)
}

// Stats возвращает состояние backlog долговременной очереди.
func (b *Bus) Stats(ctx context.Context) (domain.QueueStats, error) {
	return b.queue.Stats(ctx)
}

// Subscribers возвращает число подключённых подписчиков.
func (b *Bus) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.subs)
}
