package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

func sampleOrderRecord(id string, createdAt time.Time) domain.OrderRecord {
	return domain.OrderRecord{
		ID:    id,
		State: domain.OrderStateReceived,
		Items: []domain.LineItem{
			{ProductID: "prod-1", Qty: 2},
			{ProductID: "prod-2", Qty: 1},
		},
		Invoice: domain.Invoice{
			SubtotalMinor: 5000,
			ShippingMinor: 525,
			TaxesMinor:    400,
			TotalMinor:    5925,
		},
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

func TestOrderStore_PostgresCreateGetAndUpdateState(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	orders := NewOrderStore(store)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	now := time.Now().UTC().Round(time.Microsecond)
	record := sampleOrderRecord("order-pg-1", now)

	if err := orders.Create(ctx, record); err != nil {
		t.Fatalf("create order: %v", err)
	}

	got, err := orders.Get(ctx, record.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if got.State != domain.OrderStateReceived {
		t.Fatalf("unexpected state: %s", got.State)
	}
	if got.Invoice.TotalMinor != 5925 {
		t.Fatalf("unexpected invoice total: %d", got.Invoice.TotalMinor)
	}
	if len(got.Items) != 2 || got.Items[0].ProductID != "prod-1" || got.Items[1].Qty != 1 {
		t.Fatalf("unexpected items: %+v", got.Items)
	}

	if err := orders.UpdateState(ctx, record.ID, domain.OrderStateCommitted); err != nil {
		t.Fatalf("update state: %v", err)
	}

	updated, err := orders.Get(ctx, record.ID)
	if err != nil {
		t.Fatalf("get updated order: %v", err)
	}
	if updated.State != domain.OrderStateCommitted {
		t.Fatalf("unexpected state after update: %s", updated.State)
	}
}

func TestOrderStore_PostgresErrors(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	orders := NewOrderStore(store)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	now := time.Now().UTC().Round(time.Microsecond)
	record := sampleOrderRecord("order-pg-dup", now)

	if _, err := orders.Get(ctx, "missing-order"); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}

	if err := orders.Create(ctx, record); err != nil {
		t.Fatalf("create order: %v", err)
	}
	if err := orders.Create(ctx, record); !errors.Is(err, domain.ErrOrderExists) {
		t.Fatalf("expected ErrOrderExists, got %v", err)
	}

	if err := orders.UpdateState(ctx, "missing-order", domain.OrderStateFailed); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound for missing order update, got %v", err)
	}
}
