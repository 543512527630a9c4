package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fulfillment/internal/eventbus"
	healthcheck "github.com/vladislavdragonenkov/fulfillment/internal/health"
	"github.com/vladislavdragonenkov/fulfillment/internal/ledger"
	"github.com/vladislavdragonenkov/fulfillment/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/delivery"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/invoice"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/pipeline"
	"github.com/vladislavdragonenkov/fulfillment/internal/version"
)

// Config описывает настройки запуска приложения.
type Config struct {
	HTTPAddr    string
	MetricsAddr string

	// StorageDriver: "memory" или "postgres".
	StorageDriver string
	PostgresDSN   string
	AutoMigrate   bool

	// KafkaBrokers — список брокеров через запятую; пустая строка отключает
	// внешнюю доставку событий.
	KafkaBrokers string
	KafkaTopic   string
	DLQTopic     string

	// Платёжный шлюз. При пустом MerchantID и AllowMockGateway=true
	// используется mock-шлюз.
	GatewayEndpoint       string
	GatewayMerchantID     string
	GatewayTransactionKey string
	AllowMockGateway      bool

	ShippingFeeMinor int64
	TaxRateBP        int64
	ChargeTimeout    time.Duration

	SweepInterval time.Duration
	HoldTTL       time.Duration
}

// DefaultConfig возвращает конфигурацию для локального запуска.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:         ":8080",
		MetricsAddr:      ":9090",
		StorageDriver:    "memory",
		AutoMigrate:      true,
		KafkaTopic:       kafka.TopicStatusEvents,
		DLQTopic:         kafka.TopicDeadLetterQueue,
		AllowMockGateway: true,
		ShippingFeeMinor: 525,
		TaxRateBP:        725,
		ChargeTimeout:    10 * time.Second,
		SweepInterval:    time.Minute,
		HoldTTL:          5 * time.Minute,
	}
}

// Run собирает все компоненты конвейера и блокирует до отмены ctx.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	deps, err := NewDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.Close()

	bus := eventbus.New(deps.Queue, logger.WithField("component", "eventbus"))
	stockLedger := ledger.New(deps.Products, logger.WithField("component", "ledger"))
	calc := invoice.NewCalculator(deps.Products)

	orchestrator := pipeline.NewOrchestrator(
		stockLedger,
		deps.Orders,
		calc,
		deps.Gateway,
		bus,
		pipeline.WithLogger(logger.WithField("component", "pipeline")),
		pipeline.WithChargeTimeout(cfg.ChargeTimeout),
		pipeline.WithPricing(cfg.ShippingFeeMinor, cfg.TaxRateBP),
	)

	sweeper := pipeline.NewSweeper(
		stockLedger,
		deps.Orders,
		bus,
		pipeline.WithSweeperLogger(logger.WithField("component", "sweeper")),
		pipeline.WithSweepInterval(cfg.SweepInterval),
		pipeline.WithHoldTTL(cfg.HoldTTL),
	)
	go sweeper.Run(ctx)

	// Внешняя доставка событий работает только при настроенном Kafka.
	kafkaProducer, err := initKafkaProducer(cfg.KafkaBrokers, logger)
	if kafkaProducer != nil {
		publisher := kafka.NewEventPublisher(kafkaProducer, cfg.KafkaTopic)
		dlqPublisher := kafka.NewEventPublisher(kafkaProducer, cfg.DLQTopic)
		worker := delivery.NewWorker(
			bus,
			publisher,
			delivery.WithLogger(logger.WithField("component", "delivery-worker")),
			delivery.WithDLQPublisher(dlqPublisher),
		)
		go worker.Run(ctx)
	} else if err != nil {
		logger.Warn("status events will stay in the durable queue until kafka is available")
	}

	healthHandler := healthcheck.NewHandler(version.String())
	if deps.PG != nil {
		healthHandler.RegisterChecker("postgres", healthcheck.NewSimpleChecker("postgres", func() error {
			pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return deps.PG.Ping(pingCtx)
		}))
	}

	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)

	api := NewAPI(orchestrator, deps.Orders, bus, logger.WithField("layer", "http"))
	apiSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: api.Routes()}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("HTTP API слушает %s", cfg.HTTPAddr)
		errCh <- apiSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем HTTP API")
		shutdownHTTP(apiSrv, logger)

		// Даём запущенным конвейерам дойти до терминального состояния.
		drainCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		if err := orchestrator.Drain(drainCtx); err != nil {
			logger.WithError(err).Warn("drain превысил таймаут, часть заказов не завершена")
		}
		cancel()

		shutdownHTTP(metricsSrv, logger)
		closeKafka(kafkaProducer, logger)

		return ctx.Err()
	case err := <-errCh:
		shutdownHTTP(metricsSrv, logger)
		closeKafka(kafkaProducer, logger)

		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// startMetricsServer запускает HTTP-обработчик /metrics для Prometheus.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		logger.Infof("health checks: %s/healthz, %s/livez", addr, addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}
