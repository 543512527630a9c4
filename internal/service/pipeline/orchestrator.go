package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
	"github.com/vladislavdragonenkov/fulfillment/internal/eventbus"
	"github.com/vladislavdragonenkov/fulfillment/internal/ledger"
	"github.com/vladislavdragonenkov/fulfillment/internal/metrics"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/invoice"
)

const (
	defaultChargeTimeout = 10 * time.Second

	stageReserve = "reserve"
	stageCharge  = "charge"
)

// Options задаёт параметры оркестратора.
type Options struct {
	Logger           *log.Entry
	ChargeTimeout    time.Duration
	ShippingFeeMinor int64
	TaxRateBP        int64
	DisableMetrics   bool
}

// Option настраивает Orchestrator.
type Option func(*Options)

// WithLogger задаёт logger оркестратора.
func WithLogger(logger *log.Entry) Option {
	return func(opts *Options) {
		opts.Logger = logger
	}
}

// WithChargeTimeout задаёт таймаут обращения к платёжному шлюзу.
// Истечение таймаута обрабатывается как отказ шлюза и ведёт к rollback.
func WithChargeTimeout(timeout time.Duration) Option {
	return func(opts *Options) {
		opts.ChargeTimeout = timeout
	}
}

// WithPricing задаёт фиксированную стоимость доставки и ставку налога
// в базисных пунктах.
func WithPricing(shippingFeeMinor, taxRateBP int64) Option {
	return func(opts *Options) {
		opts.ShippingFeeMinor = shippingFeeMinor
		opts.TaxRateBP = taxRateBP
	}
}

// WithoutMetrics отключает prometheus-метрики (для тестов).
func WithoutMetrics() Option {
	return func(opts *Options) {
		opts.DisableMetrics = true
	}
}

// SubmitRequest — входящий заказ: список позиций без идентификатора
// плюс данные плательщика.
type SubmitRequest struct {
	Items     []domain.LineItem
	Payer     domain.Payer
	Discounts []domain.Discount
}

// Orchestrator проводит заказ через конечный автомат
//
//	Received → Reserving → {Rejected | Reserved} → Charging → {Committed | RolledBack}
//
// Каждый заказ обрабатывается отдельной горутиной, поэтому заказы
// прогрессируют конкурентно; ledger линеаризует только свои короткие
// операции, а вызов шлюза выполняется строго вне его критической секции
// и не блокирует резервирование и rollback других заказов.
type Orchestrator struct {
	ledger  *ledger.Ledger
	orders  domain.OrderStore
	calc    *invoice.Calculator
	gateway domain.PaymentGateway
	bus     *eventbus.Bus
	logger  *log.Entry
	metrics *metrics.PipelineMetrics

	chargeTimeout    time.Duration
	shippingFeeMinor int64
	taxRateBP        int64

	wg sync.WaitGroup
}

// NewOrchestrator создаёт рабочий экземпляр оркестратора.
func NewOrchestrator(
	ldg *ledger.Ledger,
	orders domain.OrderStore,
	calc *invoice.Calculator,
	gateway domain.PaymentGateway,
	bus *eventbus.Bus,
	options ...Option,
) *Orchestrator {
	opts := Options{
		ChargeTimeout: defaultChargeTimeout,
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "pipeline")
	}
	if opts.ChargeTimeout <= 0 {
		opts.ChargeTimeout = defaultChargeTimeout
	}

	var pipelineMetrics *metrics.PipelineMetrics
	if !opts.DisableMetrics {
		pipelineMetrics = metrics.NewPipelineMetrics()
	}

	return &Orchestrator{
		ledger:           ldg,
		orders:           orders,
		calc:             calc,
		gateway:          gateway,
		bus:              bus,
		logger:           logger,
		metrics:          pipelineMetrics,
		chargeTimeout:    opts.ChargeTimeout,
		shippingFeeMinor: opts.ShippingFeeMinor,
		taxRateBP:        opts.TaxRateBP,
	}
}

// Submit принимает заказ, считает счёт и запускает конвейер. Возвращает
// handle немедленно: вызывающий сам решает, ждать ли терминального
// состояния. Фатальные ошибки счёта (несуществующий товар) возвращаются
// сразу, конвейер не стартует.
func (o *Orchestrator) Submit(ctx context.Context, req SubmitRequest) (*Ticket, error) {
	now := time.Now().UTC()
	order := domain.Order{
		ID:        uuid.NewString(),
		Items:     req.Items,
		CreatedAt: now,
	}
	if errs := order.Validate(); len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	// Счёту нужны цены, а не остатки: считаем до резервирования и передаём
	// в оплату без изменений.
	inv, err := o.calc.Compute(ctx, order.Items, req.Discounts, o.shippingFeeMinor, o.taxRateBP)
	if err != nil {
		return nil, fmt.Errorf("compute invoice: %w", err)
	}

	record := domain.OrderRecord{
		ID:        order.ID,
		State:     domain.OrderStateReceived,
		Items:     order.Items,
		Invoice:   inv,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := o.orders.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("persist order: %w", err)
	}

	if o.metrics != nil {
		o.metrics.RecordOrderSubmitted()
	}

	ticket := newTicket(order.ID, inv)
	o.wg.Add(1)
	go o.run(order, inv, req.Payer, ticket)

	return ticket, nil
}

// run — конвейер одного заказа; работает на отдельной горутине с
// собственным контекстом, отвязанным от контекста отправителя.
func (o *Orchestrator) run(order domain.Order, inv domain.Invoice, payer domain.Payer, ticket *Ticket) {
	defer o.wg.Done()

	start := time.Now()
	defer func() {
		if o.metrics != nil {
			o.metrics.RecordPipelineDuration(time.Since(start))
			o.metrics.RecordOrderFinished()
		}
	}()

	ctx := context.Background()
	logger := o.logger.WithField("order_id", order.ID)

	o.setState(ctx, order.ID, domain.OrderStateReserving)

	reserveStart := time.Now()
	err := o.ledger.Reserve(ctx, order.ID, order.Items)
	if o.metrics != nil {
		o.metrics.RecordStageDuration(stageReserve, time.Since(reserveStart))
	}

	switch {
	case err == nil:
		// hold получен, идём к оплате
	case errors.Is(err, domain.ErrInsufficientStock):
		logger.WithError(err).Info("reservation denied")
		o.setState(ctx, order.ID, domain.OrderStateRejected)
		if o.metrics != nil {
			o.metrics.RecordOrderRejected()
		}
		o.publish(ctx, domain.StatusEvent{
			OrderID: order.ID,
			Type:    domain.EventTypeOrderRejected,
			Message: fmt.Sprintf("order %s rejected: insufficient stock", order.ID),
		})
		ticket.finish(Outcome{OrderID: order.ID, State: domain.OrderStateRejected, Invoice: inv, Err: err})
		return
	default:
		logger.WithError(err).Error("reservation aborted")
		o.setState(ctx, order.ID, domain.OrderStateFailed)
		if o.metrics != nil {
			o.metrics.RecordOrderFailed()
		}
		ticket.finish(Outcome{OrderID: order.ID, State: domain.OrderStateFailed, Invoice: inv, Err: err})
		return
	}

	o.setState(ctx, order.ID, domain.OrderStateReserved)
	o.publish(ctx, domain.StatusEvent{
		OrderID: order.ID,
		Type:    domain.EventTypeHoldGranted,
		Message: fmt.Sprintf("stock held for order %s", order.ID),
	})

	o.setState(ctx, order.ID, domain.OrderStateCharging)

	// Единственная долгая операция конвейера. Hold уже создан, блокировка
	// ledger отпущена: чужие reserve/rollback не ждут этот round-trip.
	chargeCtx, cancel := context.WithTimeout(ctx, o.chargeTimeout)
	chargeStart := time.Now()
	result, chargeErr := o.gateway.Charge(chargeCtx, domain.ChargeRequest{
		ReferenceID: order.ID,
		Invoice:     inv,
		Payer:       payer,
	})
	cancel()
	if o.metrics != nil {
		o.metrics.RecordStageDuration(stageCharge, time.Since(chargeStart))
	}

	if chargeErr == nil && result.Approved {
		o.ledger.Commit(order.ID)
		o.setState(ctx, order.ID, domain.OrderStateCommitted)
		if o.metrics != nil {
			o.metrics.RecordOrderCommitted()
		}

		levels, lvlErr := o.ledger.StockLevels(ctx, order.ProductIDs())
		if lvlErr != nil {
			logger.WithError(lvlErr).Warn("stock levels unavailable for committed event")
		}
		o.publish(ctx, domain.StatusEvent{
			OrderID:     order.ID,
			Type:        domain.EventTypeOrderCommitted,
			Message:     fmt.Sprintf("payment captured for order %s", order.ID),
			StockLevels: levels,
		})

		logger.WithField("transaction_id", result.TransactionID).Info("order committed")
		ticket.finish(Outcome{
			OrderID:       order.ID,
			State:         domain.OrderStateCommitted,
			Invoice:       inv,
			TransactionID: result.TransactionID,
		})
		return
	}

	// Отказ, таймаут и транспортная ошибка на этом уровне неразличимы:
	// все они разрешают hold через rollback. Код отказа сохраняем для логов.
	failure := chargeErr
	if failure == nil {
		failure = domain.ErrPaymentDeclined
	}
	logger.WithError(failure).WithField("decline_code", result.DeclineCode).Warn("payment failed")

	if rbErr := o.ledger.Rollback(ctx, order.ID); rbErr != nil {
		logger.WithError(rbErr).Error("rollback failed, hold left unresolved")
		o.setState(ctx, order.ID, domain.OrderStateFailed)
		if o.metrics != nil {
			o.metrics.RecordOrderFailed()
		}
		ticket.finish(Outcome{OrderID: order.ID, State: domain.OrderStateFailed, Invoice: inv, Err: rbErr})
		return
	}

	o.setState(ctx, order.ID, domain.OrderStateRolledBack)
	if o.metrics != nil {
		o.metrics.RecordOrderRolledBack()
	}
	o.publish(ctx, domain.StatusEvent{
		OrderID: order.ID,
		Type:    domain.EventTypeOrderRolledBack,
		Message: fmt.Sprintf("payment failed for order %s, stock restored", order.ID),
	})
	ticket.finish(Outcome{
		OrderID:     order.ID,
		State:       domain.OrderStateRolledBack,
		Invoice:     inv,
		DeclineCode: result.DeclineCode,
		Err:         failure,
	})
}

// Drain блокирует до завершения всех запущенных конвейеров или отмены ctx.
func (o *Orchestrator) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) setState(ctx context.Context, orderID string, state domain.OrderState) {
	if err := o.orders.UpdateState(ctx, orderID, state); err != nil {
		o.logger.WithError(err).WithFields(log.Fields{
			"order_id": orderID,
			"state":    state,
		}).Error("failed to persist order state")
	}
}

func (o *Orchestrator) publish(ctx context.Context, event domain.StatusEvent) {
	if err := o.bus.Publish(ctx, event); err != nil {
		o.logger.WithError(err).WithFields(log.Fields{
			"order_id":   event.OrderID,
			"event_type": event.Type,
		}).Error("failed to publish status event")
	}
}
