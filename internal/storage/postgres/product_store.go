package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

const (
	opTimeout = 5 * time.Second
)

type productStore struct {
	db *sql.DB
}

// NewProductStore создаёт PostgreSQL-реализацию ProductStore.
func NewProductStore(store *Store) domain.ProductStore {
	return &productStore{db: store.DB()}
}

func (s *productStore) Create(ctx context.Context, product domain.Product) (domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if product.ID == "" {
		product.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	product.CreatedAt = now
	product.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, title, stock, price_minor, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`,
		product.ID, product.Title, product.Stock, product.PriceMinor,
		product.CreatedAt, product.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Product{}, domain.ErrProductExists
		}
		return domain.Product{}, fmt.Errorf("insert product: %w", err)
	}

	return product, nil
}

func (s *productStore) Get(ctx context.Context, id string) (domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var product domain.Product
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, stock, price_minor, created_at, updated_at
		FROM products
		WHERE id = $1
	`, id).Scan(
		&product.ID, &product.Title, &product.Stock, &product.PriceMinor,
		&product.CreatedAt, &product.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, domain.ErrProductNotFound
		}
		return domain.Product{}, fmt.Errorf("select product: %w", err)
	}

	return product, nil
}

// AdjustStock применяет все изменения в одной транзакции. Условие
// stock + delta >= 0 в каждом UPDATE делает проверку и списание атомарными
// на уровне базы: при нехватке остатка строка не обновляется, транзакция
// откатывается и ни один товар не меняется.
func (s *productStore) AdjustStock(ctx context.Context, deltas []domain.StockDelta) error {
	if len(deltas) == 0 {
		return nil
	}

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

	for _, delta := range deltas {
		var res sql.Result
		res, err = tx.ExecContext(ctx, `
			UPDATE products
			SET stock = stock + $2,
			    updated_at = NOW()
			WHERE id = $1
			  AND stock + $2 >= 0
		`, delta.ProductID, delta.Delta)
		if err != nil {
			return fmt.Errorf("adjust stock for %s: %w", delta.ProductID, err)
		}

		var affected int64
		affected, err = res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			var exists bool
			exists, err = s.productExistsTx(ctx, tx, delta.ProductID)
			if err != nil {
				return err
			}
			if !exists {
				err = fmt.Errorf("product %s: %w", delta.ProductID, domain.ErrProductNotFound)
				return err
			}
			err = fmt.Errorf("product %s: %w", delta.ProductID, domain.ErrInsufficientStock)
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit adjust stock: %w", err)
	}

	return nil
}

func (s *productStore) StockLevels(ctx context.Context, ids []string) (map[string]int32, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	levels := make(map[string]int32, len(ids))
	for _, id := range ids {
		if _, seen := levels[id]; seen {
			continue
		}

		var stock int32
		err := s.db.QueryRowContext(ctx, `SELECT stock FROM products WHERE id = $1`, id).Scan(&stock)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, fmt.Errorf("product %s: %w", id, domain.ErrProductNotFound)
			}
			return nil, fmt.Errorf("select stock: %w", err)
		}
		levels[id] = stock
	}

	return levels, nil
}

func (s *productStore) productExistsTx(ctx context.Context, tx *sql.Tx, id string) (bool, error) {
	var found string
	err := tx.QueryRowContext(ctx, `SELECT id FROM products WHERE id = $1`, id).Scan(&found)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return false, fmt.Errorf("check product exists: %w", err)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

var _ domain.ProductStore = (*productStore)(nil)
