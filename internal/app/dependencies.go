package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
	"github.com/vladislavdragonenkov/fulfillment/internal/gateway/authorizenet"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/payment"
	"github.com/vladislavdragonenkov/fulfillment/internal/storage/memory"
	"github.com/vladislavdragonenkov/fulfillment/internal/storage/postgres"
)

// Dependencies содержит хранилища и внешние клиенты приложения.
type Dependencies struct {
	Products domain.ProductStore
	Orders   domain.OrderStore
	Queue    domain.EventQueue
	Gateway  domain.PaymentGateway
	Logger   *log.Entry

	// PG заполнен только при StorageDriver=postgres.
	PG *postgres.Store
}

// NewDependencies инициализирует хранилища по выбранному драйверу и
// платёжный шлюз по конфигурации.
func NewDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*Dependencies, error) {
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	deps := &Dependencies{Logger: logger}

	switch cfg.StorageDriver {
	case "", "memory":
		deps.Products = memory.NewProductStore()
		deps.Orders = memory.NewOrderStore()
		deps.Queue = memory.NewEventQueue()
		logger.Info("using in-memory storage")
	case "postgres":
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if cfg.AutoMigrate {
			if err := store.MigrateUp(ctx, 0); err != nil {
				_ = store.Close()
				return nil, fmt.Errorf("apply migrations: %w", err)
			}
		}
		deps.PG = store
		deps.Products = postgres.NewProductStore(store)
		deps.Orders = postgres.NewOrderStore(store)
		deps.Queue = postgres.NewEventQueue(store)
		logger.Info("using postgres storage")
	default:
		return nil, fmt.Errorf("unknown storage driver: %q", cfg.StorageDriver)
	}

	gateway, err := initGateway(cfg, logger)
	if err != nil {
		deps.Close()
		return nil, err
	}
	deps.Gateway = gateway

	return deps, nil
}

// Close освобождает ресурсы зависимостей.
func (d *Dependencies) Close() {
	if d == nil {
		return
	}
	if d.PG != nil {
		if err := d.PG.Close(); err != nil {
			d.Logger.WithError(err).Warn("failed to close postgres store")
		}
	}
}

func initGateway(cfg Config, logger *log.Entry) (domain.PaymentGateway, error) {
	if cfg.GatewayMerchantID != "" && cfg.GatewayTransactionKey != "" {
		logger.WithField("endpoint", cfg.GatewayEndpoint).Info("using authorize.net payment gateway")
		return authorizenet.NewClient(authorizenet.Config{
			Endpoint:       cfg.GatewayEndpoint,
			MerchantID:     cfg.GatewayMerchantID,
			TransactionKey: cfg.GatewayTransactionKey,
		}, logger.WithField("component", "authorizenet")), nil
	}

	if !cfg.AllowMockGateway {
		return nil, fmt.Errorf("payment gateway credentials are not configured")
	}

	logger.Warn("payment gateway credentials are not configured, using mock gateway")
	return payment.NewMockGateway(), nil
}
