package domain

import "errors"

var (
	// Ошибка отсутствия хотя бы одной позиции в заказе.
	ErrItemsRequired = errors.New("order must contain at least one line item")
	// Ошибка при некорректном количестве товара (<= 0).
	ErrItemQtyInvalid = errors.New("line item qty must be greater than zero")
	// Ошибка отсутствующего идентификатора товара в позиции.
	ErrItemProductRequired = errors.New("line item product_id is required")
	// Ошибка отсутствующего названия товара.
	ErrProductTitleRequired = errors.New("product title is required")
	// Ошибка отрицательного остатка товара.
	ErrProductStockNegative = errors.New("product stock must be non-negative")
	// Ошибка отрицательной цены товара.
	ErrProductPriceNegative = errors.New("product price must be non-negative")

	// ErrProductNotFound — позиция ссылается на несуществующий товар.
	// Это нарушение целостности данных, а не бизнес-отказ: операция
	// прерывается целиком, позиция не пропускается молча.
	ErrProductNotFound = errors.New("product not found")
	// ErrProductExists возвращается при попытке создать товар с занятым ID.
	ErrProductExists = errors.New("product already exists")
	// ErrInsufficientStock — ожидаемый отказ резервирования: остатка не
	// хватает хотя бы по одной позиции заказа.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrHoldExists — для заказа уже существует неразрешённый hold.
	ErrHoldExists = errors.New("hold already exists for order")
	// ErrHoldNotFound — hold отсутствует (уже разрешён или не создавался).
	// Повторный rollback — ошибка контракта и возвращает именно её.
	ErrHoldNotFound = errors.New("hold not found for order")

	// ErrOrderNotFound возвращается, если заказ не найден в хранилище.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderExists возвращается при конфликте идентификаторов заказов.
	ErrOrderExists = errors.New("order already exists")

	// ErrPaymentDeclined — шлюз отклонил списание (бизнес-ошибка).
	ErrPaymentDeclined = errors.New("payment declined")
	// ErrGatewayUnavailable — транспортная ошибка или таймаут шлюза.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
)

// IsIntegrityFault проверяет, относится ли ошибка к нарушениям целостности
// данных, которые нельзя обработать локально.
func IsIntegrityFault(err error) bool {
	return errors.Is(err, ErrProductNotFound)
}
