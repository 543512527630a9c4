package payment

import (
	"context"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

// MockGateway — конфигурируемая заглушка PaymentGateway для тестов и
// локальной разработки.
type MockGateway struct {
	mu sync.Mutex

	Result domain.ChargeResult
	Err    error
	// Delay имитирует сетевую задержку шлюза; уважает дедлайн ctx.
	Delay time.Duration

	ChargeCalls int
}

// NewMockGateway возвращает mock с одобрением платежа по умолчанию.
func NewMockGateway() *MockGateway {
	return &MockGateway{
		Result: domain.ChargeResult{Approved: true, TransactionID: "mock-txn"},
	}
}

// Charge возвращает заранее настроенный результат и считает вызовы.
func (m *MockGateway) Charge(ctx context.Context, req domain.ChargeRequest) (domain.ChargeResult, error) {
	m.mu.Lock()
	m.ChargeCalls++
	delay := m.Delay
	result := m.Result
	err := m.Err
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return domain.ChargeResult{}, ctx.Err()
		case <-time.After(delay):
		}
	}

	return result, err
}

// Calls возвращает число обращений к шлюзу.
func (m *MockGateway) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.ChargeCalls
}

var _ domain.PaymentGateway = (*MockGateway)(nil)
