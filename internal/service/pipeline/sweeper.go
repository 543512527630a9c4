package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
	"github.com/vladislavdragonenkov/fulfillment/internal/eventbus"
	"github.com/vladislavdragonenkov/fulfillment/internal/ledger"
)

const (
	defaultSweepInterval = 1 * time.Minute
	defaultHoldTTL       = 5 * time.Minute
)

var (
	sweptHoldsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fulfillment_sweeper_holds_swept_total",
		Help: "Total number of orphaned holds rolled back by the sweeper",
	})
	sweepErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fulfillment_sweeper_errors_total",
		Help: "Total number of sweep attempts that failed to roll back a hold",
	})
	activeHoldsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fulfillment_ledger_active_holds",
		Help: "Number of unresolved holds currently tracked by the ledger",
	})
)

// SweeperOptions задаёт параметры supervisor-воркера.
type SweeperOptions struct {
	Logger   *log.Entry
	Interval time.Duration
	HoldTTL  time.Duration
}

// SweeperOption настраивает Sweeper.
type SweeperOption func(*SweeperOptions)

// WithSweeperLogger задаёт logger воркера.
func WithSweeperLogger(logger *log.Entry) SweeperOption {
	return func(opts *SweeperOptions) {
		opts.Logger = logger
	}
}

// WithSweepInterval задаёт период проверки осиротевших hold'ов.
func WithSweepInterval(interval time.Duration) SweeperOption {
	return func(opts *SweeperOptions) {
		opts.Interval = interval
	}
}

// WithHoldTTL задаёт максимальный возраст неразрешённого hold'а.
func WithHoldTTL(ttl time.Duration) SweeperOption {
	return func(opts *SweeperOptions) {
		opts.HoldTTL = ttl
	}
}

// Sweeper — supervisor-воркер осиротевших hold'ов. В нормальном режиме каждый
// hold разрешает горутина своего заказа; если она погибла, списанные остатки
// зависли бы навсегда. Sweeper периодически возвращает hold'ы старше TTL
// обратно на склад тем же Rollback, что и конвейер.
type Sweeper struct {
	ledger *ledger.Ledger
	orders domain.OrderStore
	bus    *eventbus.Bus
	logger *log.Entry

	interval time.Duration
	holdTTL  time.Duration
}

// NewSweeper создаёт supervisor-воркер с переданными опциями.
func NewSweeper(ldg *ledger.Ledger, orders domain.OrderStore, bus *eventbus.Bus, options ...SweeperOption) *Sweeper {
	opts := SweeperOptions{
		Interval: defaultSweepInterval,
		HoldTTL:  defaultHoldTTL,
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "sweeper")
	}
	if opts.Interval <= 0 {
		opts.Interval = defaultSweepInterval
	}
	if opts.HoldTTL <= 0 {
		opts.HoldTTL = defaultHoldTTL
	}

	return &Sweeper{
		ledger:   ldg,
		orders:   orders,
		bus:      bus,
		logger:   logger,
		interval: opts.Interval,
		holdTTL:  opts.HoldTTL,
	}
}

// Run запускает цикл воркера; блокирует до отмены ctx.
func (s *Sweeper) Run(ctx context.Context) {
	s.logger.WithFields(log.Fields{
		"interval": s.interval,
		"hold_ttl": s.holdTTL,
	}).Info("sweeper started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sweeper stopped")
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce выполняет один проход: возвращает все hold'ы старше TTL.
// Возвращает число возвращённых hold'ов.
func (s *Sweeper) SweepOnce(ctx context.Context) int {
	activeHoldsGauge.Set(float64(s.ledger.ActiveHolds()))

	cutoff := time.Now().UTC().Add(-s.holdTTL)
	stale := s.ledger.HeldBefore(cutoff)
	if len(stale) == 0 {
		return 0
	}

	swept := 0
	for _, orderID := range stale {
		logger := s.logger.WithField("order_id", orderID)

		if err := s.ledger.Rollback(ctx, orderID); err != nil {
			// ErrHoldNotFound означает гонку с конвейером заказа: hold успели
			// разрешить между HeldBefore и Rollback, делать нечего.
			if !isHoldGone(err) {
				logger.WithError(err).Error("failed to sweep orphaned hold")
				sweepErrorsTotal.Inc()
			}
			continue
		}

		swept++
		sweptHoldsTotal.Inc()
		logger.Warn("orphaned hold swept, stock restored")

		if err := s.orders.UpdateState(ctx, orderID, domain.OrderStateRolledBack); err != nil {
			logger.WithError(err).Error("failed to persist swept order state")
		}
		if err := s.bus.Publish(ctx, domain.StatusEvent{
			OrderID: orderID,
			Type:    domain.EventTypeHoldSwept,
			Message: fmt.Sprintf("orphaned hold for order %s rolled back by sweeper", orderID),
		}); err != nil {
			logger.WithError(err).Error("failed to publish swept event")
		}
	}

	activeHoldsGauge.Set(float64(s.ledger.ActiveHolds()))
	return swept
}

func isHoldGone(err error) bool {
	return errors.Is(err, domain.ErrHoldNotFound)
}
