package memory

import (
	"context"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

// orderStoreInMemory — простая in-memory реализация OrderStore.
type orderStoreInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.OrderRecord
}

// NewOrderStore возвращает in-memory хранилище заказов.
func NewOrderStore() domain.OrderStore {
	return &orderStoreInMemory{
		items: make(map[string]domain.OrderRecord),
	}
}

// Create сохраняет новый заказ, если ID ещё не занят.
func (s *orderStoreInMemory) Create(ctx context.Context, record domain.OrderRecord) error {
	_ = ctx

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.items[record.ID]; exists {
		return domain.ErrOrderExists
	}
	// Сохраняем копию позиций, чтобы избежать мутаций извне.
	items := make([]domain.LineItem, len(record.Items))
	copy(items, record.Items)
	record.Items = items
	s.items[record.ID] = record
	return nil
}

// Get возвращает заказ или ErrOrderNotFound, если его нет.
func (s *orderStoreInMemory) Get(ctx context.Context, id string) (domain.OrderRecord, error) {
	_ = ctx

	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.items[id]
	if !ok {
		return domain.OrderRecord{}, domain.ErrOrderNotFound
	}

	items := make([]domain.LineItem, len(record.Items))
	copy(items, record.Items)
	record.Items = items
	return record, nil
}

// UpdateState переводит заказ в новое состояние.
func (s *orderStoreInMemory) UpdateState(ctx context.Context, id string, state domain.OrderState) error {
	_ = ctx

	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.items[id]
	if !ok {
		return domain.ErrOrderNotFound
	}
	record.State = state
	record.UpdatedAt = time.Now().UTC()
	s.items[id] = record
	return nil
}

var _ domain.OrderStore = (*orderStoreInMemory)(nil)
