package domain

import "time"

// OrderState описывает положение заказа в конвейере обработки.
type OrderState string

const (
	// OrderStateReceived — заказ принят, обработка ещё не началась.
	OrderStateReceived OrderState = "received"
	// OrderStateReserving — выполняется резервирование остатков.
	OrderStateReserving OrderState = "reserving"
	// OrderStateRejected — резервирование отклонено, склад не тронут. Терминальный.
	OrderStateRejected OrderState = "rejected"
	// OrderStateReserved — hold получен, остатки списаны под заказ.
	OrderStateReserved OrderState = "reserved"
	// OrderStateCharging — идёт обращение к платёжному шлюзу.
	OrderStateCharging OrderState = "charging"
	// OrderStateCommitted — оплата прошла, hold зафиксирован. Терминальный.
	OrderStateCommitted OrderState = "committed"
	// OrderStateRolledBack — оплата не прошла, hold возвращён на склад. Терминальный.
	OrderStateRolledBack OrderState = "rolled_back"
	// OrderStateFailed — заказ брошен из-за нарушения целостности данных. Терминальный.
	OrderStateFailed OrderState = "failed"
)

// Terminal сообщает, завершена ли обработка заказа.
func (s OrderState) Terminal() bool {
	switch s {
	case OrderStateRejected, OrderStateCommitted, OrderStateRolledBack, OrderStateFailed:
		return true
	}
	return false
}

// LineItem представляет одну позицию заказа. Неизменяема после создания заказа.
type LineItem struct {
	ProductID string
	Qty       int32
}

// Order — принятый заказ: непрозрачный идентификатор и упорядоченный
// список позиций. После создания только читается.
type Order struct {
	ID        string
	Items     []LineItem
	CreatedAt time.Time
}

// Validate проверяет инварианты заказа и возвращает список замечаний.
func (o *Order) Validate() []error {
	var errs []error

	if len(o.Items) == 0 {
		errs = append(errs, ErrItemsRequired)
	}
	for _, item := range o.Items {
		if item.ProductID == "" {
			errs = append(errs, ErrItemProductRequired)
		}
		if item.Qty <= 0 {
			errs = append(errs, ErrItemQtyInvalid)
		}
	}

	return errs
}

// ProductIDs возвращает идентификаторы товаров заказа в порядке позиций.
func (o *Order) ProductIDs() []string {
	ids := make([]string, 0, len(o.Items))
	for _, item := range o.Items {
		ids = append(ids, item.ProductID)
	}
	return ids
}

// OrderRecord — заказ вместе с его текущим состоянием и счётом,
// как он хранится в OrderStore.
type OrderRecord struct {
	ID        string
	State     OrderState
	Items     []LineItem
	Invoice   Invoice
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Address — почтовый адрес для выставления счёта или доставки.
type Address struct {
	FirstName string
	LastName  string
	Company   string
	Street    string
	City      string
	State     string
	Zip       string
	Country   string
}

// Card — платёжный инструмент, передаваемый шлюзу как есть.
type Card struct {
	Number string
	// Expiry в формате YYYY-MM, как его ожидает шлюз.
	Expiry string
	Code   string
}

// Payer содержит данные плательщика для платёжного шлюза.
type Payer struct {
	FirstName string
	LastName  string
	Email     string
	Phone     string
	IP        string
	Card      Card
	BillTo    Address
	ShipTo    Address
}
