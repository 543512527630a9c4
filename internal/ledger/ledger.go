package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

// hold фиксирует, что остатки уже списаны под конкретный заказ
// и ждут разрешения: commit или rollback.
type hold struct {
	items     []domain.LineItem
	createdAt time.Time
}

// Ledger владеет остатками и таблицей hold'ов. Это единственный мутатор
// склада: reserve, rollback и commit защищены одной критической секцией,
// поэтому проверка-и-списание по всем позициям заказа наблюдается атомарно
// всеми конкурентными заказами. Операции ledger быстрые и CPU-bound;
// медленный вызов шлюза обязан происходить строго вне этой секции.
type Ledger struct {
	mu     sync.Mutex
	store  domain.ProductStore
	holds  map[string]hold
	logger *log.Entry
}

// New создаёт ledger поверх переданного хранилища товаров.
// Экземпляр создаётся один раз и передаётся по ссылке; глобального
// состояния у ledger нет.
func New(store domain.ProductStore, logger *log.Entry) *Ledger {
	if logger == nil {
		logger = log.WithField("component", "ledger")
	}
	return &Ledger{
		store:  store,
		holds:  make(map[string]hold),
		logger: logger,
	}
}

// Reserve пытается зарезервировать остатки под все позиции заказа.
// Списание — «всё или ничего»: при нехватке хотя бы по одной позиции склад
// не меняется и возвращается domain.ErrInsufficientStock. Ссылка на
// несуществующий товар — domain.ErrProductNotFound (фатальная ошибка
// целостности). На успехе создаётся hold; второй Reserve для того же заказа
// при неразрешённом hold возвращает domain.ErrHoldExists.
func (l *Ledger) Reserve(ctx context.Context, orderID string, items []domain.LineItem) error {
	if orderID == "" {
		return fmt.Errorf("reserve: order id is required")
	}
	if len(items) == 0 {
		return domain.ErrItemsRequired
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.holds[orderID]; exists {
		return domain.ErrHoldExists
	}

	deltas := make([]domain.StockDelta, 0, len(items))
	for _, item := range items {
		deltas = append(deltas, domain.StockDelta{ProductID: item.ProductID, Delta: -item.Qty})
	}

	if err := l.store.AdjustStock(ctx, deltas); err != nil {
		return err
	}

	held := make([]domain.LineItem, len(items))
	copy(held, items)
	l.holds[orderID] = hold{items: held, createdAt: time.Now().UTC()}

	l.logger.WithFields(log.Fields{
		"order_id": orderID,
		"items":    len(items),
	}).Debug("hold granted")

	return nil
}

// Rollback возвращает на склад ровно то, что было списано под hold заказа,
// и удаляет hold. Hold разрешается ровно один раз: повторный Rollback
// возвращает domain.ErrHoldNotFound и склад не трогает.
func (l *Ledger) Rollback(ctx context.Context, orderID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	h, ok := l.holds[orderID]
	if !ok {
		return fmt.Errorf("rollback order %s: %w", orderID, domain.ErrHoldNotFound)
	}

	deltas := make([]domain.StockDelta, 0, len(h.items))
	for _, item := range h.items {
		deltas = append(deltas, domain.StockDelta{ProductID: item.ProductID, Delta: item.Qty})
	}

	if err := l.store.AdjustStock(ctx, deltas); err != nil {
		// Hold остаётся: возврат не применился, списание всё ещё на складе.
		return fmt.Errorf("rollback order %s: %w", orderID, err)
	}

	delete(l.holds, orderID)
	l.logger.WithField("order_id", orderID).Debug("hold rolled back")
	return nil
}

// Commit удаляет hold, не трогая остатки: списание уже применено и теперь
// постоянное. Идемпотентен — commit заказа без hold'а является no-op.
func (l *Ledger) Commit(orderID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.holds[orderID]; !ok {
		l.logger.WithField("order_id", orderID).Debug("commit without hold, nothing to do")
		return
	}

	delete(l.holds, orderID)
	l.logger.WithField("order_id", orderID).Debug("hold committed")
}

// StockLevels возвращает текущие остатки перечисленных товаров.
// Чтение линеаризовано с мутациями той же критической секцией.
func (l *Ledger) StockLevels(ctx context.Context, ids []string) (map[string]int32, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.store.StockLevels(ctx, ids)
}

// HeldBefore возвращает идентификаторы заказов, чьи hold'ы созданы раньше
// cutoff и до сих пор не разрешены. Используется supervisor-воркером для
// возврата осиротевших hold'ов.
func (l *Ledger) HeldBefore(cutoff time.Time) []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	var stale []string
	for orderID, h := range l.holds {
		if h.createdAt.Before(cutoff) {
			stale = append(stale, orderID)
		}
	}
	return stale
}

// ActiveHolds возвращает число неразрешённых hold'ов.
func (l *Ledger) ActiveHolds() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.holds)
}
