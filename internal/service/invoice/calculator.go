package invoice

import (
	"context"
	"fmt"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

// basisPointsDivisor — знаменатель ставки налога, заданной в базисных пунктах.
const basisPointsDivisor = 10000

// Calculator считает денежную раскладку заказа. Читает цены товаров,
// остатки не трогает и никакого состояния не меняет.
type Calculator struct {
	products domain.ProductStore
}

// NewCalculator создаёт калькулятор поверх хранилища товаров.
func NewCalculator(products domain.ProductStore) *Calculator {
	return &Calculator{products: products}
}

// Compute вычисляет счёт заказа:
//
//	subtotal = Σ(qty × цена товара) − Σ(скидки)
//	taxes    = subtotal × taxRateBP / 10000
//	total    = subtotal + shipping + taxes
//
// Счёт считается до попытки резервирования — ему нужны цены, а не остатки —
// и дальше передаётся в оплату без изменений. Ссылка на несуществующий
// товар возвращает domain.ErrProductNotFound.
func (c *Calculator) Compute(
	ctx context.Context,
	items []domain.LineItem,
	discounts []domain.Discount,
	shippingMinor int64,
	taxRateBP int64,
) (domain.Invoice, error) {
	var subtotal int64
	for _, item := range items {
		product, err := c.products.Get(ctx, item.ProductID)
		if err != nil {
			return domain.Invoice{}, fmt.Errorf("price lookup for %s: %w", item.ProductID, err)
		}
		subtotal += int64(item.Qty) * product.PriceMinor
	}

	for _, discount := range discounts {
		subtotal -= discount.AmountMinor
	}
	if subtotal < 0 {
		subtotal = 0
	}

	taxes := subtotal * taxRateBP / basisPointsDivisor

	return domain.Invoice{
		SubtotalMinor: subtotal,
		ShippingMinor: shippingMinor,
		TaxesMinor:    taxes,
		TotalMinor:    subtotal + shippingMinor + taxes,
	}, nil
}
