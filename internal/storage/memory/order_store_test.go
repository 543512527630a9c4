package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

func TestOrderCreateGetAndUpdateState(t *testing.T) {
	store := NewOrderStore()

	record := domain.OrderRecord{
		ID:    "order-1",
		State: domain.OrderStateReceived,
		Items: []domain.LineItem{{ProductID: "prod-a", Qty: 2}},
		Invoice: domain.Invoice{
			SubtotalMinor: 2000,
			TotalMinor:    2000,
		},
	}
	if err := store.Create(context.Background(), record); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := store.Create(context.Background(), record); !errors.Is(err, domain.ErrOrderExists) {
		t.Fatalf("expected ErrOrderExists, got %v", err)
	}

	got, err := store.Get(context.Background(), "order-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.State != domain.OrderStateReceived || got.Invoice.TotalMinor != 2000 {
		t.Fatalf("unexpected record: %+v", got)
	}

	if err := store.UpdateState(context.Background(), "order-1", domain.OrderStateCommitted); err != nil {
		t.Fatalf("update state failed: %v", err)
	}
	got, _ = store.Get(context.Background(), "order-1")
	if got.State != domain.OrderStateCommitted {
		t.Fatalf("state = %s, want committed", got.State)
	}
	if got.UpdatedAt.IsZero() {
		t.Fatalf("expected updated_at to be set")
	}

	if _, err := store.Get(context.Background(), "missing"); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
	if err := store.UpdateState(context.Background(), "missing", domain.OrderStateFailed); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestOrderGetReturnsCopyOfItems(t *testing.T) {
	store := NewOrderStore()

	source := domain.OrderRecord{
		ID:    "order-1",
		State: domain.OrderStateReceived,
		Items: []domain.LineItem{{ProductID: "prod-a", Qty: 2}},
	}
	if err := store.Create(context.Background(), source); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	// Мутация исходного и прочитанного слайсов не должна влиять на хранилище.
	source.Items[0].Qty = 99

	first, _ := store.Get(context.Background(), "order-1")
	first.Items[0].ProductID = "tampered"

	second, _ := store.Get(context.Background(), "order-1")
	if second.Items[0].ProductID != "prod-a" || second.Items[0].Qty != 2 {
		t.Fatalf("stored items were mutated: %+v", second.Items)
	}
}
