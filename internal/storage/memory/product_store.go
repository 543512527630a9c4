package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

// productStoreInMemory — in-memory реализация ProductStore для локальной
// разработки и тестов.
type productStoreInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.Product
}

// NewProductStore возвращает пустое in-memory хранилище товаров.
func NewProductStore() domain.ProductStore {
	return &productStoreInMemory{
		items: make(map[string]domain.Product),
	}
}

// Create сохраняет новый товар, если ID ещё не занят.
func (s *productStoreInMemory) Create(ctx context.Context, product domain.Product) (domain.Product, error) {
	_ = ctx

	s.mu.Lock()
	defer s.mu.Unlock()

	if product.ID == "" {
		product.ID = uuid.NewString()
	}
	if _, exists := s.items[product.ID]; exists {
		return domain.Product{}, domain.ErrProductExists
	}

	now := time.Now().UTC()
	product.CreatedAt = now
	product.UpdatedAt = now
	s.items[product.ID] = product
	return product, nil
}

// Get возвращает товар или ErrProductNotFound, если его нет.
func (s *productStoreInMemory) Get(ctx context.Context, id string) (domain.Product, error) {
	_ = ctx

	s.mu.RLock()
	defer s.mu.RUnlock()

	product, ok := s.items[id]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return product, nil
}

// AdjustStock применяет все изменения остатков как одну операцию.
// Сначала проверяются все дельты, потом применяются: частичных списаний
// наружу не видно ни при каком исходе.
func (s *productStoreInMemory) AdjustStock(ctx context.Context, deltas []domain.StockDelta) error {
	_ = ctx

	s.mu.Lock()
	defer s.mu.Unlock()

	// Дельты по одному товару суммируются до проверки, иначе заказ с двумя
	// позициями одного товара прошёл бы проверку по отдельности.
	combined := make(map[string]int32, len(deltas))
	for _, d := range deltas {
		if _, ok := s.items[d.ProductID]; !ok {
			return domain.ErrProductNotFound
		}
		combined[d.ProductID] += d.Delta
	}

	for id, delta := range combined {
		if s.items[id].Stock+delta < 0 {
			return domain.ErrInsufficientStock
		}
	}

	now := time.Now().UTC()
	for id, delta := range combined {
		product := s.items[id]
		product.Stock += delta
		product.UpdatedAt = now
		s.items[id] = product
	}

	return nil
}

// StockLevels возвращает остатки перечисленных товаров.
func (s *productStoreInMemory) StockLevels(ctx context.Context, ids []string) (map[string]int32, error) {
	_ = ctx

	s.mu.RLock()
	defer s.mu.RUnlock()

	levels := make(map[string]int32, len(ids))
	for _, id := range ids {
		product, ok := s.items[id]
		if !ok {
			return nil, domain.ErrProductNotFound
		}
		levels[id] = product.Stock
	}
	return levels, nil
}

var _ domain.ProductStore = (*productStoreInMemory)(nil)
