package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

type orderStore struct {
	db *sql.DB
}

// NewOrderStore создаёт PostgreSQL-реализацию OrderStore.
func NewOrderStore(store *Store) domain.OrderStore {
	return &orderStore{db: store.DB()}
}

func (s *orderStore) Create(ctx context.Context, record domain.OrderRecord) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (
			id, state, subtotal_minor, shipping_minor, taxes_minor, total_minor, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`,
		record.ID, string(record.State),
		record.Invoice.SubtotalMinor, record.Invoice.ShippingMinor,
		record.Invoice.TaxesMinor, record.Invoice.TotalMinor,
		record.CreatedAt, record.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrOrderExists
		}
		return fmt.Errorf("insert order: %w", err)
	}

	for position, item := range record.Items {
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (order_id, position, product_id, qty)
			VALUES ($1,$2,$3,$4)
		`, record.ID, position, item.ProductID, item.Qty); err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create order: %w", err)
	}

	return nil
}

func (s *orderStore) Get(ctx context.Context, id string) (domain.OrderRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var record domain.OrderRecord
	var state string

	err := s.db.QueryRowContext(ctx, `
		SELECT id, state, subtotal_minor, shipping_minor, taxes_minor, total_minor, created_at, updated_at
		FROM orders
		WHERE id = $1
	`, id).Scan(
		&record.ID, &state,
		&record.Invoice.SubtotalMinor, &record.Invoice.ShippingMinor,
		&record.Invoice.TaxesMinor, &record.Invoice.TotalMinor,
		&record.CreatedAt, &record.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.OrderRecord{}, domain.ErrOrderNotFound
		}
		return domain.OrderRecord{}, fmt.Errorf("select order: %w", err)
	}
	record.State = domain.OrderState(state)

	items, err := s.loadItems(ctx, record.ID)
	if err != nil {
		return domain.OrderRecord{}, err
	}
	record.Items = items

	return record, nil
}

func (s *orderStore) UpdateState(ctx context.Context, id string, state domain.OrderState) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `
		UPDATE orders
		SET state = $2,
		    updated_at = $3
		WHERE id = $1
	`, id, string(state), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update order state: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrOrderNotFound
	}

	return nil
}

func (s *orderStore) loadItems(ctx context.Context, orderID string) ([]domain.LineItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT product_id, qty
		FROM order_items
		WHERE order_id = $1
		ORDER BY position ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order items: %w", err)
	}
	defer rows.Close()

	items := make([]domain.LineItem, 0)
	for rows.Next() {
		var item domain.LineItem
		if err := rows.Scan(&item.ProductID, &item.Qty); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order items: %w", err)
	}

	return items, nil
}

var _ domain.OrderStore = (*orderStore)(nil)
