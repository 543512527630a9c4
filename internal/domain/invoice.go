package domain

// Invoice — денежная раскладка заказа. Вычисляется один раз до попытки
// оплаты и дальше не меняется; от исхода платежа не зависит.
type Invoice struct {
	SubtotalMinor int64
	ShippingMinor int64
	TaxesMinor    int64
	TotalMinor    int64
}

// Discount — скидка, вычитаемая из подытога заказа.
type Discount struct {
	Code        string
	AmountMinor int64
}
