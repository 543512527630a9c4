package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PipelineMetrics содержит метрики конвейера обработки заказов.
type PipelineMetrics struct {
	// Счётчики терминальных исходов
	ordersSubmitted  prometheus.Counter
	ordersRejected   prometheus.Counter
	ordersCommitted  prometheus.Counter
	ordersRolledBack prometheus.Counter
	ordersFailed     prometheus.Counter

	// Гистограммы времени выполнения
	pipelineDuration prometheus.Histogram
	stageDuration    *prometheus.HistogramVec

	// Gauge заказов в полёте
	activeOrders prometheus.Gauge
}

// NewPipelineMetrics создаёт метрики конвейера в default registry.
func NewPipelineMetrics() *PipelineMetrics {
	return newPipelineMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func newPipelineMetricsWithRegisterer(registerer prometheus.Registerer) *PipelineMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &PipelineMetrics{
		ordersSubmitted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "fulfillment_orders_submitted_total",
			Help: "Total number of orders accepted into the pipeline",
		}),
		ordersRejected: registerCounter(registerer, prometheus.CounterOpts{
			Name: "fulfillment_orders_rejected_total",
			Help: "Total number of orders rejected due to insufficient stock",
		}),
		ordersCommitted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "fulfillment_orders_committed_total",
			Help: "Total number of orders committed after successful payment",
		}),
		ordersRolledBack: registerCounter(registerer, prometheus.CounterOpts{
			Name: "fulfillment_orders_rolled_back_total",
			Help: "Total number of orders rolled back after payment failure",
		}),
		ordersFailed: registerCounter(registerer, prometheus.CounterOpts{
			Name: "fulfillment_orders_failed_total",
			Help: "Total number of orders abandoned due to a data integrity fault",
		}),
		pipelineDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "fulfillment_pipeline_duration_seconds",
			Help:    "Duration of one order pipeline from submission to terminal state",
			Buckets: prometheus.DefBuckets,
		}),
		stageDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "fulfillment_stage_duration_seconds",
			Help:    "Duration of individual pipeline stages in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"stage"}),
		activeOrders: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "fulfillment_active_orders",
			Help: "Number of orders currently in flight",
		}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	collector := prometheus.NewGauge(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Gauge)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register gauge %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	collector := prometheus.NewHistogram(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Histogram)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogramVec(registerer prometheus.Registerer, opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	collector := prometheus.NewHistogramVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.HistogramVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram vec %q: %v", opts.Name, err))
	}
	return collector
}

// RecordOrderSubmitted увеличивает счётчик принятых заказов и заказов в полёте.
func (m *PipelineMetrics) RecordOrderSubmitted() {
	m.ordersSubmitted.Inc()
	m.activeOrders.Inc()
}

// RecordOrderRejected увеличивает счётчик отклонённых заказов.
func (m *PipelineMetrics) RecordOrderRejected() {
	m.ordersRejected.Inc()
}

// RecordOrderCommitted увеличивает счётчик успешно завершённых заказов.
func (m *PipelineMetrics) RecordOrderCommitted() {
	m.ordersCommitted.Inc()
}

// RecordOrderRolledBack увеличивает счётчик откаченных заказов.
func (m *PipelineMetrics) RecordOrderRolledBack() {
	m.ordersRolledBack.Inc()
}

// RecordOrderFailed увеличивает счётчик брошенных заказов.
func (m *PipelineMetrics) RecordOrderFailed() {
	m.ordersFailed.Inc()
}

// RecordOrderFinished уменьшает количество заказов в полёте.
func (m *PipelineMetrics) RecordOrderFinished() {
	m.activeOrders.Dec()
}

// RecordPipelineDuration записывает время прохождения конвейера заказом.
func (m *PipelineMetrics) RecordPipelineDuration(duration time.Duration) {
	m.pipelineDuration.Observe(duration.Seconds())
}

// RecordStageDuration записывает время выполнения шага конвейера.
func (m *PipelineMetrics) RecordStageDuration(stage string, duration time.Duration) {
	m.stageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}
