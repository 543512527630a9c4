package domain

import "time"

// Product описывает товар с текущим остатком на складе.
// Остаток мутирует только ProductStore внутри своей атомарной операции.
type Product struct {
	ID string
	// Title — человекочитаемое название товара.
	Title string
	// Stock — доступный остаток; никогда не наблюдается отрицательным.
	Stock int32
	// PriceMinor — цена за единицу в минимальных денежных единицах.
	PriceMinor int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Validate проверяет базовые инварианты товара и возвращает список замечаний.
func (p *Product) Validate() []error {
	var errs []error

	if p.Title == "" {
		errs = append(errs, ErrProductTitleRequired)
	}
	if p.Stock < 0 {
		errs = append(errs, ErrProductStockNegative)
	}
	if p.PriceMinor < 0 {
		errs = append(errs, ErrProductPriceNegative)
	}

	return errs
}

// StockDelta описывает изменение остатка одного товара.
// Отрицательная Delta — резервирование, положительная — возврат.
type StockDelta struct {
	ProductID string
	Delta     int32
}
