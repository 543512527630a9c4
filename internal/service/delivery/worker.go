package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
	"github.com/vladislavdragonenkov/fulfillment/internal/eventbus"
)

const (
	defaultPollInterval   = 1 * time.Second
	defaultBatchSize      = 100
	defaultMaxAttempts    = 3
	defaultRetryBaseDelay = 50 * time.Millisecond
)

var (
	deliveryAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fulfillment_delivery_attempts_total",
		Help: "Total number of event delivery attempts grouped by result.",
	}, []string{"result"})
	deliveryPendingEvents = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fulfillment_delivery_pending_events",
		Help: "Current number of undelivered events in the durable queue.",
	})
	deliveryOldestPendingAge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fulfillment_delivery_oldest_pending_age_seconds",
		Help: "Age in seconds of the oldest undelivered event.",
	})
)

// WorkerOptions задаёт параметры delivery worker.
type WorkerOptions struct {
	Logger         *log.Entry
	DLQPublisher   domain.EventPublisher
	PollInterval   time.Duration
	BatchSize      int
	MaxAttempts    int
	RetryBaseDelay time.Duration
}

// Option настраивает Worker.
type Option func(*WorkerOptions)

// WithLogger задаёт logger для воркера.
func WithLogger(logger *log.Entry) Option {
	return func(opts *WorkerOptions) {
		opts.Logger = logger
	}
}

// WithDLQPublisher задаёт publisher для отправки в DLQ после исчерпания retry.
func WithDLQPublisher(publisher domain.EventPublisher) Option {
	return func(opts *WorkerOptions) {
		opts.DLQPublisher = publisher
	}
}

// WithPollInterval задаёт частоту опроса очереди событий.
func WithPollInterval(interval time.Duration) Option {
	return func(opts *WorkerOptions) {
		opts.PollInterval = interval
	}
}

// WithBatchSize задаёт максимум событий за один polling-цикл.
func WithBatchSize(batchSize int) Option {
	return func(opts *WorkerOptions) {
		opts.BatchSize = batchSize
	}
}

// WithMaxAttempts задаёт число попыток публикации перед DLQ.
func WithMaxAttempts(maxAttempts int) Option {
	return func(opts *WorkerOptions) {
		opts.MaxAttempts = maxAttempts
	}
}

// WithRetryBaseDelay задаёт базовый delay для exponential backoff.
func WithRetryBaseDelay(delay time.Duration) Option {
	return func(opts *WorkerOptions) {
		opts.RetryBaseDelay = delay
	}
}

// Worker — механизм доставки долговременной очереди: снимает события с шины
// по одному и публикует во внешний транспорт. Poll гарантирует, что каждое
// событие достаётся ровно одному воркеру, поэтому экземпляров может быть
// несколько.
type Worker struct {
	bus            *eventbus.Bus
	publisher      domain.EventPublisher
	dlqPublisher   domain.EventPublisher
	logger         *log.Entry
	pollInterval   time.Duration
	batchSize      int
	maxAttempts    int
	retryBaseDelay time.Duration
}

// NewWorker создаёт delivery worker.
func NewWorker(bus *eventbus.Bus, publisher domain.EventPublisher, options ...Option) *Worker {
	opts := WorkerOptions{
		PollInterval:   defaultPollInterval,
		BatchSize:      defaultBatchSize,
		MaxAttempts:    defaultMaxAttempts,
		RetryBaseDelay: defaultRetryBaseDelay,
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "delivery-worker")
	}

	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.RetryBaseDelay < 0 {
		opts.RetryBaseDelay = 0
	}

	return &Worker{
		bus:            bus,
		publisher:      publisher,
		dlqPublisher:   opts.DLQPublisher,
		logger:         logger,
		pollInterval:   opts.PollInterval,
		batchSize:      opts.BatchSize,
		maxAttempts:    opts.MaxAttempts,
		retryBaseDelay: opts.RetryBaseDelay,
	}
}

// Run запускает периодический polling очереди до отмены ctx.
func (w *Worker) Run(ctx context.Context) {
	if w.bus == nil || w.publisher == nil {
		w.logger.Warn("delivery worker is disabled: bus or publisher is nil")
		return
	}

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	w.ProcessOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.ProcessOnce(ctx)
		}
	}
}

// ProcessOnce выполняет один polling-цикл: до batchSize событий из очереди.
func (w *Worker) ProcessOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	w.refreshBacklogMetrics(ctx)

	for i := 0; i < w.batchSize; i++ {
		if ctx.Err() != nil {
			return
		}

		event, ok, err := w.bus.Poll(ctx)
		if err != nil {
			w.logger.WithError(err).Warn("failed to poll status event")
			return
		}
		if !ok {
			break
		}

		if err := w.publishWithRetry(ctx, event); err != nil {
			w.logger.WithError(err).WithFields(log.Fields{
				"event_id":   event.ID,
				"event_type": event.Type,
			}).Error("event delivery failed after retries")
			deliveryAttempts.WithLabelValues("failed").Inc()

			if dlqErr := w.publishToDLQ(event, err); dlqErr != nil {
				w.logger.WithError(dlqErr).WithField("event_id", event.ID).Warn("failed to publish to DLQ")
				deliveryAttempts.WithLabelValues("dlq_failed").Inc()

				// Ни доставить, ни в DLQ: возвращаем событие в очередь,
				// следующий цикл попробует снова.
				if reqErr := w.bus.Requeue(ctx, event); reqErr != nil {
					w.logger.WithError(reqErr).WithField("event_id", event.ID).Error("failed to requeue event, event lost")
				}
			}
			continue
		}
	}

	w.refreshBacklogMetrics(ctx)
}

func (w *Worker) publishWithRetry(ctx context.Context, event domain.StatusEvent) error {
	var lastErr error

	for attempt := 1; attempt <= w.maxAttempts; attempt++ {
		err := w.publisher.Publish(event)
		if err == nil {
			deliveryAttempts.WithLabelValues("sent").Inc()
			return nil
		}
		lastErr = err
		deliveryAttempts.WithLabelValues("retry_error").Inc()

		if attempt >= w.maxAttempts {
			break
		}

		delay := w.retryBackoff(attempt)
		if delay <= 0 {
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return fmt.Errorf("publish failed after %d attempts: %w", w.maxAttempts, lastErr)
}

func (w *Worker) refreshBacklogMetrics(ctx context.Context) {
	stats, err := w.bus.Stats(ctx)
	if err != nil {
		w.logger.WithError(err).Warn("failed to collect queue backlog stats")
		return
	}

	deliveryPendingEvents.Set(float64(stats.PendingCount))
	if stats.PendingCount == 0 || stats.OldestPendingAt.IsZero() {
		deliveryOldestPendingAge.Set(0)
		return
	}

	age := time.Since(stats.OldestPendingAt).Seconds()
	if age < 0 {
		age = 0
	}
	deliveryOldestPendingAge.Set(age)
}

func (w *Worker) retryBackoff(attempt int) time.Duration {
	if w.retryBaseDelay <= 0 {
		return 0
	}
	if attempt <= 1 {
		return w.retryBaseDelay
	}

	const maxDuration = time.Duration(1<<63 - 1)
	delay := w.retryBaseDelay
	for i := 1; i < attempt; i++ {
		if delay > maxDuration/2 {
			return maxDuration
		}
		delay *= 2
	}
	return delay
}

func (w *Worker) publishToDLQ(event domain.StatusEvent, publishErr error) error {
	if w.dlqPublisher == nil {
		return fmt.Errorf("dlq publisher is not configured")
	}

	payload, err := json.Marshal(map[string]any{
		"event_id":         event.ID,
		"order_id":         event.OrderID,
		"event_type":       event.Type,
		"message":          event.Message,
		"publish_error":    publishErr.Error(),
		"dlq_published_at": time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("marshal dlq payload: %w", err)
	}

	dlqEvent := event
	dlqEvent.Message = string(payload)
	if err := w.dlqPublisher.Publish(dlqEvent); err != nil {
		return fmt.Errorf("publish to dlq: %w", err)
	}

	return nil
}
