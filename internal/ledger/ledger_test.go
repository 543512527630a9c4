package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
	"github.com/vladislavdragonenkov/fulfillment/internal/storage/memory"
)

func newTestLedger(t *testing.T, products ...domain.Product) (*Ledger, domain.ProductStore) {
	t.Helper()

	store := memory.NewProductStore()
	for _, product := range products {
		if _, err := store.Create(context.Background(), product); err != nil {
			t.Fatalf("seed product %s: %v", product.ID, err)
		}
	}
	return New(store, nil), store
}

func mustStock(t *testing.T, store domain.ProductStore, id string) int32 {
	t.Helper()

	levels, err := store.StockLevels(context.Background(), []string{id})
	if err != nil {
		t.Fatalf("stock levels for %s: %v", id, err)
	}
	return levels[id]
}

func TestReserveDecrementsAllItems(t *testing.T) {
	l, store := newTestLedger(t,
		domain.Product{ID: "prod-a", Title: "A", Stock: 10, PriceMinor: 100},
		domain.Product{ID: "prod-b", Title: "B", Stock: 5, PriceMinor: 200},
	)

	err := l.Reserve(context.Background(), "order-1", []domain.LineItem{
		{ProductID: "prod-a", Qty: 3},
		{ProductID: "prod-b", Qty: 2},
	})
	if err != nil {
		t.Fatalf("reserve failed: %v", err)
	}

	if got := mustStock(t, store, "prod-a"); got != 7 {
		t.Fatalf("prod-a stock = %d, want 7", got)
	}
	if got := mustStock(t, store, "prod-b"); got != 3 {
		t.Fatalf("prod-b stock = %d, want 3", got)
	}
	if got := l.ActiveHolds(); got != 1 {
		t.Fatalf("active holds = %d, want 1", got)
	}
}

func TestReserveAllOrNothing(t *testing.T) {
	// Первой позиции хватает, второй нет: склад не должен измениться вовсе.
	l, store := newTestLedger(t,
		domain.Product{ID: "prod-a", Title: "A", Stock: 4, PriceMinor: 100},
		domain.Product{ID: "prod-b", Title: "B", Stock: 3, PriceMinor: 200},
	)

	err := l.Reserve(context.Background(), "order-1", []domain.LineItem{
		{ProductID: "prod-a", Qty: 2},
		{ProductID: "prod-b", Qty: 5},
	})
	if !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	if got := mustStock(t, store, "prod-a"); got != 4 {
		t.Fatalf("prod-a stock = %d, want untouched 4", got)
	}
	if got := mustStock(t, store, "prod-b"); got != 3 {
		t.Fatalf("prod-b stock = %d, want untouched 3", got)
	}
	if got := l.ActiveHolds(); got != 0 {
		t.Fatalf("active holds = %d, want 0", got)
	}
}

func TestReserveSameProductTwiceInOneOrder(t *testing.T) {
	// Две позиции одного товара суммируются перед проверкой остатка.
	l, store := newTestLedger(t,
		domain.Product{ID: "prod-a", Title: "A", Stock: 5, PriceMinor: 100},
	)

	err := l.Reserve(context.Background(), "order-1", []domain.LineItem{
		{ProductID: "prod-a", Qty: 3},
		{ProductID: "prod-a", Qty: 3},
	})
	if !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock for combined qty 6 of 5, got %v", err)
	}
	if got := mustStock(t, store, "prod-a"); got != 5 {
		t.Fatalf("prod-a stock = %d, want untouched 5", got)
	}
}

func TestReserveValidation(t *testing.T) {
	l, _ := newTestLedger(t,
		domain.Product{ID: "prod-a", Title: "A", Stock: 5, PriceMinor: 100},
	)

	if err := l.Reserve(context.Background(), "", []domain.LineItem{{ProductID: "prod-a", Qty: 1}}); err == nil {
		t.Fatalf("expected error for empty order id")
	}
	if err := l.Reserve(context.Background(), "order-1", nil); !errors.Is(err, domain.ErrItemsRequired) {
		t.Fatalf("expected ErrItemsRequired, got %v", err)
	}
	err := l.Reserve(context.Background(), "order-1", []domain.LineItem{{ProductID: "prod-missing", Qty: 1}})
	if !errors.Is(err, domain.ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}
}

func TestReserveRejectsDuplicateHold(t *testing.T) {
	l, _ := newTestLedger(t,
		domain.Product{ID: "prod-a", Title: "A", Stock: 10, PriceMinor: 100},
	)

	items := []domain.LineItem{{ProductID: "prod-a", Qty: 1}}
	if err := l.Reserve(context.Background(), "order-1", items); err != nil {
		t.Fatalf("first reserve failed: %v", err)
	}
	if err := l.Reserve(context.Background(), "order-1", items); !errors.Is(err, domain.ErrHoldExists) {
		t.Fatalf("expected ErrHoldExists, got %v", err)
	}
}

func TestRollbackRestoresExactlyHeldAmount(t *testing.T) {
	l, store := newTestLedger(t,
		domain.Product{ID: "prod-a", Title: "A", Stock: 10, PriceMinor: 100},
		domain.Product{ID: "prod-b", Title: "B", Stock: 6, PriceMinor: 200},
	)

	items := []domain.LineItem{
		{ProductID: "prod-a", Qty: 4},
		{ProductID: "prod-b", Qty: 2},
	}
	if err := l.Reserve(context.Background(), "order-1", items); err != nil {
		t.Fatalf("reserve failed: %v", err)
	}
	if err := l.Rollback(context.Background(), "order-1"); err != nil {
		t.Fatalf("rollback failed: %v", err)
	}

	if got := mustStock(t, store, "prod-a"); got != 10 {
		t.Fatalf("prod-a stock = %d, want restored 10", got)
	}
	if got := mustStock(t, store, "prod-b"); got != 6 {
		t.Fatalf("prod-b stock = %d, want restored 6", got)
	}

	// Hold разрешается ровно один раз.
	if err := l.Rollback(context.Background(), "order-1"); !errors.Is(err, domain.ErrHoldNotFound) {
		t.Fatalf("expected ErrHoldNotFound on second rollback, got %v", err)
	}
	if got := mustStock(t, store, "prod-a"); got != 10 {
		t.Fatalf("prod-a stock = %d after stray rollback, want 10", got)
	}
}

func TestCommitIsFinalAndIdempotent(t *testing.T) {
	l, store := newTestLedger(t,
		domain.Product{ID: "prod-a", Title: "A", Stock: 10, PriceMinor: 100},
	)

	if err := l.Reserve(context.Background(), "order-1", []domain.LineItem{{ProductID: "prod-a", Qty: 3}}); err != nil {
		t.Fatalf("reserve failed: %v", err)
	}

	l.Commit("order-1")
	if got := mustStock(t, store, "prod-a"); got != 7 {
		t.Fatalf("prod-a stock = %d after commit, want 7", got)
	}
	if got := l.ActiveHolds(); got != 0 {
		t.Fatalf("active holds = %d after commit, want 0", got)
	}

	// Повторный commit — no-op, остатки не двигаются.
	l.Commit("order-1")
	if got := mustStock(t, store, "prod-a"); got != 7 {
		t.Fatalf("prod-a stock = %d after duplicate commit, want 7", got)
	}

	// Rollback после commit не возвращает товар.
	if err := l.Rollback(context.Background(), "order-1"); !errors.Is(err, domain.ErrHoldNotFound) {
		t.Fatalf("expected ErrHoldNotFound after commit, got %v", err)
	}
	if got := mustStock(t, store, "prod-a"); got != 7 {
		t.Fatalf("prod-a stock = %d after rollback attempt, want 7", got)
	}
}

func TestConcurrentReservesNeverOversell(t *testing.T) {
	const stock = 25
	const orders = 100

	l, store := newTestLedger(t,
		domain.Product{ID: "prod-a", Title: "A", Stock: stock, PriceMinor: 100},
	)

	var wg sync.WaitGroup
	var mu sync.Mutex
	granted := 0
	rejected := 0

	for i := 0; i < orders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := l.Reserve(context.Background(), fmt.Sprintf("order-%d", i), []domain.LineItem{
				{ProductID: "prod-a", Qty: 1},
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				granted++
			case errors.Is(err, domain.ErrInsufficientStock):
				rejected++
			default:
				t.Errorf("unexpected reserve error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if granted != stock {
		t.Fatalf("granted = %d, want exactly %d", granted, stock)
	}
	if rejected != orders-stock {
		t.Fatalf("rejected = %d, want %d", rejected, orders-stock)
	}
	if got := mustStock(t, store, "prod-a"); got != 0 {
		t.Fatalf("prod-a stock = %d, want 0", got)
	}
	if got := l.ActiveHolds(); got != stock {
		t.Fatalf("active holds = %d, want %d", got, stock)
	}
}

func TestConcurrentMixedResolutionConservesStock(t *testing.T) {
	const stock = 60
	const orders = 60

	l, store := newTestLedger(t,
		domain.Product{ID: "prod-a", Title: "A", Stock: stock, PriceMinor: 100},
	)

	var wg sync.WaitGroup
	committed := 0
	var mu sync.Mutex

	for i := 0; i < orders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			orderID := fmt.Sprintf("order-%d", i)
			if err := l.Reserve(context.Background(), orderID, []domain.LineItem{{ProductID: "prod-a", Qty: 1}}); err != nil {
				t.Errorf("reserve %s: %v", orderID, err)
				return
			}
			if i%2 == 0 {
				l.Commit(orderID)
				mu.Lock()
				committed++
				mu.Unlock()
				return
			}
			if err := l.Rollback(context.Background(), orderID); err != nil {
				t.Errorf("rollback %s: %v", orderID, err)
			}
		}(i)
	}
	wg.Wait()

	// Возвращено всё, кроме зафиксированных списаний.
	want := int32(stock - committed)
	if got := mustStock(t, store, "prod-a"); got != want {
		t.Fatalf("prod-a stock = %d, want %d", got, want)
	}
	if got := l.ActiveHolds(); got != 0 {
		t.Fatalf("active holds = %d, want 0", got)
	}
}

func TestHeldBeforeReturnsOnlyStaleHolds(t *testing.T) {
	l, _ := newTestLedger(t,
		domain.Product{ID: "prod-a", Title: "A", Stock: 10, PriceMinor: 100},
	)

	if err := l.Reserve(context.Background(), "order-old", []domain.LineItem{{ProductID: "prod-a", Qty: 1}}); err != nil {
		t.Fatalf("reserve failed: %v", err)
	}

	cutoff := time.Now().UTC().Add(time.Minute)
	stale := l.HeldBefore(cutoff)
	if len(stale) != 1 || stale[0] != "order-old" {
		t.Fatalf("unexpected stale holds: %v", stale)
	}

	past := time.Now().UTC().Add(-time.Minute)
	if stale := l.HeldBefore(past); len(stale) != 0 {
		t.Fatalf("expected no stale holds before %s, got %v", past, stale)
	}
}
