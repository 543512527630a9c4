package domain

import "context"

// ProductStore описывает требования к хранилищу товаров.
// AdjustStock — единственная операция, меняющая остатки, и она обязана быть
// атомарной: реализация на хранилище без изоляции read-then-write некорректна.
type ProductStore interface {
	// Create сохраняет новый товар. Возвращает ErrProductExists при конфликте ID.
	Create(ctx context.Context, product Product) (Product, error)
	// Get возвращает товар по идентификатору или ErrProductNotFound.
	Get(ctx context.Context, id string) (Product, error)
	// AdjustStock применяет все изменения остатков как одну операцию
	// «всё или ничего»: если хотя бы одно изменение увело бы остаток в минус,
	// ни один товар не меняется и возвращается ErrInsufficientStock.
	// Ссылка на несуществующий товар — ErrProductNotFound, тоже без частичных
	// изменений.
	AdjustStock(ctx context.Context, deltas []StockDelta) error
	// StockLevels возвращает текущие остатки перечисленных товаров.
	StockLevels(ctx context.Context, ids []string) (map[string]int32, error)
}

// OrderStore хранит принятые заказы и их текущее состояние.
type OrderStore interface {
	// Create сохраняет новый заказ. Возвращает ErrOrderExists при конфликте ID.
	Create(ctx context.Context, record OrderRecord) error
	// Get возвращает заказ или ErrOrderNotFound.
	Get(ctx context.Context, id string) (OrderRecord, error)
	// UpdateState переводит заказ в новое состояние.
	UpdateState(ctx context.Context, id string, state OrderState) error
}

// ChargeRequest — запрос на списание средств.
type ChargeRequest struct {
	// ReferenceID — ссылка мерчанта на заказ, попадает в refId шлюза.
	ReferenceID string
	Invoice     Invoice
	Payer       Payer
}

// ChargeResult — ответ шлюза на списание.
type ChargeResult struct {
	Approved bool
	// TransactionID — идентификатор транзакции на стороне шлюза.
	TransactionID string
	// DeclineCode — код отказа провайдера; сохраняется для наблюдаемости,
	// наружу как причина не гарантируется.
	DeclineCode string
}

// PaymentGateway описывает взаимодействие с платёжным шлюзом.
// Charge обязан уважать дедлайн ctx: это единственная долгая операция конвейера.
type PaymentGateway interface {
	Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error)
}

// EventQueue — долговременная FIFO-очередь статусных событий.
type EventQueue interface {
	// Append добавляет событие в хвост очереди.
	Append(ctx context.Context, event StatusEvent) error
	// Next снимает и возвращает самое старое недоставленное событие.
	// При конкурирующих вызовах каждое событие получает ровно один из них.
	// Пустая очередь — (zero, false, nil).
	Next(ctx context.Context) (StatusEvent, bool, error)
	// Stats возвращает текущее состояние backlog очереди.
	Stats(ctx context.Context) (QueueStats, error)
}

// EventPublisher доставляет событие во внешний транспорт; должен быть идемпотентным.
type EventPublisher interface {
	Publish(event StatusEvent) error
}
