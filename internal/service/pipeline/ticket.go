package pipeline

import (
	"context"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

// Outcome — итог прохождения заказа через конвейер.
type Outcome struct {
	OrderID string
	State   domain.OrderState
	Invoice domain.Invoice
	// TransactionID заполняется при успешном списании.
	TransactionID string
	// DeclineCode сохраняет код отказа шлюза для наблюдаемости.
	DeclineCode string
	Err         error
}

// Ticket — ожидаемый handle конвейера одного заказа. Отправитель может
// вернуть клиенту только идентификатор заказа, а может заблокироваться на
// Wait до терминального состояния — оба режима поддерживаются одним handle.
type Ticket struct {
	orderID string
	invoice domain.Invoice
	done    chan struct{}
	outcome Outcome
}

func newTicket(orderID string, invoice domain.Invoice) *Ticket {
	return &Ticket{
		orderID: orderID,
		invoice: invoice,
		done:    make(chan struct{}),
	}
}

// OrderID возвращает идентификатор заказа, присвоенный при отправке.
func (t *Ticket) OrderID() string {
	return t.orderID
}

// Invoice возвращает счёт, вычисленный до попытки оплаты.
func (t *Ticket) Invoice() domain.Invoice {
	return t.invoice
}

// Done возвращает канал, закрываемый при достижении терминального состояния.
func (t *Ticket) Done() <-chan struct{} {
	return t.done
}

// Outcome возвращает итог без блокировки; второй результат false, пока
// конвейер не завершился.
func (t *Ticket) Outcome() (Outcome, bool) {
	select {
	case <-t.done:
		return t.outcome, true
	default:
		return Outcome{}, false
	}
}

// Wait блокирует до терминального состояния конвейера или отмены ctx.
func (t *Ticket) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-t.done:
		return t.outcome, nil
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

// finish публикует итог; вызывается ровно один раз из конвейера заказа.
func (t *Ticket) finish(outcome Outcome) {
	t.outcome = outcome
	close(t.done)
}
