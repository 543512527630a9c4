package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fulfillment/internal/app"
	"github.com/vladislavdragonenkov/fulfillment/internal/version"
)

const (
	envHTTPAddr      = "FULFILLMENT_HTTP_ADDR"
	envMetricsAddr   = "FULFILLMENT_METRICS_ADDR"
	envStorageDriver = "FULFILLMENT_STORAGE_DRIVER"
	envPostgresDSN   = "FULFILLMENT_POSTGRES_DSN"
	envAutoMigrate   = "FULFILLMENT_POSTGRES_AUTO_MIGRATE"

	envKafkaBrokers = "FULFILLMENT_KAFKA_BROKERS"
	envKafkaTopic   = "FULFILLMENT_KAFKA_TOPIC"
	envDLQTopic     = "FULFILLMENT_KAFKA_DLQ_TOPIC"

	envGatewayEndpoint  = "FULFILLMENT_GATEWAY_ENDPOINT"
	envGatewayMerchant  = "FULFILLMENT_GATEWAY_MERCHANT_ID"
	envGatewayTxnKey    = "FULFILLMENT_GATEWAY_TRANSACTION_KEY"
	envAllowMockGateway = "FULFILLMENT_ALLOW_MOCK_GATEWAY"

	envShippingFeeMinor = "FULFILLMENT_SHIPPING_FEE_MINOR"
	envTaxRateBP        = "FULFILLMENT_TAX_RATE_BP"
	envChargeTimeout    = "FULFILLMENT_CHARGE_TIMEOUT"
	envSweepInterval    = "FULFILLMENT_SWEEP_INTERVAL"
	envHoldTTL          = "FULFILLMENT_HOLD_TTL"
)

// envLookup абстрагирует os.LookupEnv для тестируемости.
type envLookup func(key string) (string, bool)

// setupLogger настраивает формат и уровень логирования для сервиса.
func setupLogger() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)
}

// readConfigFromEnv формирует конфигурацию приложения из переменных
// окружения. Невалидные значения не прерывают запуск: параметр остаётся
// по умолчанию, а предупреждение возвращается вызывающему.
func readConfigFromEnv(lookup envLookup) (app.Config, []string) {
	cfg := app.DefaultConfig()
	var warnings []string

	if v, ok := lookup(envHTTPAddr); ok && strings.TrimSpace(v) != "" {
		cfg.HTTPAddr = strings.TrimSpace(v)
	}
	if v, ok := lookup(envMetricsAddr); ok && strings.TrimSpace(v) != "" {
		cfg.MetricsAddr = strings.TrimSpace(v)
	}
	if v, ok := lookup(envStorageDriver); ok && strings.TrimSpace(v) != "" {
		cfg.StorageDriver = strings.ToLower(strings.TrimSpace(v))
	}
	if v, ok := lookup(envPostgresDSN); ok && strings.TrimSpace(v) != "" {
		cfg.PostgresDSN = strings.TrimSpace(v)
	}
	if v, ok := lookup(envAutoMigrate); ok {
		parsed, err := parseBool(v)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: %v", envAutoMigrate, err))
		} else {
			cfg.AutoMigrate = parsed
		}
	}

	if v, ok := lookup(envKafkaBrokers); ok {
		cfg.KafkaBrokers = strings.TrimSpace(v)
	}
	if v, ok := lookup(envKafkaTopic); ok && strings.TrimSpace(v) != "" {
		cfg.KafkaTopic = strings.TrimSpace(v)
	}
	if v, ok := lookup(envDLQTopic); ok && strings.TrimSpace(v) != "" {
		cfg.DLQTopic = strings.TrimSpace(v)
	}

	if v, ok := lookup(envGatewayEndpoint); ok && strings.TrimSpace(v) != "" {
		cfg.GatewayEndpoint = strings.TrimSpace(v)
	}
	if v, ok := lookup(envGatewayMerchant); ok && strings.TrimSpace(v) != "" {
		cfg.GatewayMerchantID = strings.TrimSpace(v)
	}
	if v, ok := lookup(envGatewayTxnKey); ok && strings.TrimSpace(v) != "" {
		cfg.GatewayTransactionKey = strings.TrimSpace(v)
	}
	if v, ok := lookup(envAllowMockGateway); ok {
		parsed, err := parseBool(v)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: %v", envAllowMockGateway, err))
		} else {
			cfg.AllowMockGateway = parsed
		}
	}

	if v, ok := lookup(envShippingFeeMinor); ok {
		parsed, err := parseInt(v, func(n int) bool { return n >= 0 }, "must be >= 0")
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: %v", envShippingFeeMinor, err))
		} else {
			cfg.ShippingFeeMinor = int64(parsed)
		}
	}
	if v, ok := lookup(envTaxRateBP); ok {
		parsed, err := parseInt(v, func(n int) bool { return n >= 0 }, "must be >= 0")
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: %v", envTaxRateBP, err))
		} else {
			cfg.TaxRateBP = int64(parsed)
		}
	}
	if v, ok := lookup(envChargeTimeout); ok {
		parsed, err := parseDuration(v, func(d time.Duration) bool { return d > 0 }, "must be > 0")
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: %v", envChargeTimeout, err))
		} else {
			cfg.ChargeTimeout = parsed
		}
	}
	if v, ok := lookup(envSweepInterval); ok {
		parsed, err := parseDuration(v, func(d time.Duration) bool { return d > 0 }, "must be > 0")
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: %v", envSweepInterval, err))
		} else {
			cfg.SweepInterval = parsed
		}
	}
	if v, ok := lookup(envHoldTTL); ok {
		parsed, err := parseDuration(v, func(d time.Duration) bool { return d > 0 }, "must be > 0")
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: %v", envHoldTTL, err))
		} else {
			cfg.HoldTTL = parsed
		}
	}

	return cfg, warnings
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "t", "true", "y", "yes", "on":
		return true, nil
	case "0", "f", "false", "n", "no", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid bool value %q", raw)
	}
}

func parseInt(raw string, valid func(int) bool, constraint string) (int, error) {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid int value %q", raw)
	}
	if !valid(value) {
		return 0, fmt.Errorf("value %d %s", value, constraint)
	}
	return value, nil
}

func parseDuration(raw string, valid func(time.Duration) bool, constraint string) (time.Duration, error) {
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid duration value %q", raw)
	}
	if !valid(value) {
		return 0, fmt.Errorf("value %s %s", value, constraint)
	}
	return value, nil
}

func main() {
	setupLogger()

	cfg, warnings := readConfigFromEnv(os.LookupEnv)
	for _, warning := range warnings {
		log.Warn(warning)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields{
		"http_addr":    cfg.HTTPAddr,
		"metrics_addr": cfg.MetricsAddr,
		"storage":      cfg.StorageDriver,
		"version":      version.String(),
	}).Info("запускаем fulfillment service")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("приложение завершилось с ошибкой")
	}

	log.Info("fulfillment service остановлен")
}
