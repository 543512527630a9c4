package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
	"github.com/vladislavdragonenkov/fulfillment/internal/eventbus"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/pipeline"
)

const submitWaitTimeout = 30 * time.Second

// API — HTTP-граница конвейера: приём заказов, чтение их состояния и
// выдача статусных событий.
type API struct {
	orchestrator *pipeline.Orchestrator
	orders       domain.OrderStore
	bus          *eventbus.Bus
	logger       *log.Entry
}

// NewAPI создаёт HTTP API поверх оркестратора.
func NewAPI(orchestrator *pipeline.Orchestrator, orders domain.OrderStore, bus *eventbus.Bus, logger *log.Entry) *API {
	if logger == nil {
		logger = log.WithField("layer", "http")
	}
	return &API{
		orchestrator: orchestrator,
		orders:       orders,
		bus:          bus,
		logger:       logger,
	}
}

// Routes возвращает mux со всеми обработчиками API.
func (a *API) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /orders", a.handleSubmitOrder)
	mux.HandleFunc("GET /orders/{id}", a.handleGetOrder)
	mux.HandleFunc("GET /events/next", a.handleNextEvent)
	mux.HandleFunc("GET /events/stream", a.handleEventStream)
	return mux
}

type lineItemPayload struct {
	ProductID string `json:"product_id"`
	Qty       int32  `json:"qty"`
}

type discountPayload struct {
	Code        string `json:"code"`
	AmountMinor int64  `json:"amount_minor"`
}

type addressPayload struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Company   string `json:"company"`
	Street    string `json:"street"`
	City      string `json:"city"`
	State     string `json:"state"`
	Zip       string `json:"zip"`
	Country   string `json:"country"`
}

type payerPayload struct {
	FirstName string         `json:"first_name"`
	LastName  string         `json:"last_name"`
	Email     string         `json:"email"`
	Phone     string         `json:"phone"`
	IP        string         `json:"ip"`
	Card      cardPayload    `json:"card"`
	BillTo    addressPayload `json:"bill_to"`
	ShipTo    addressPayload `json:"ship_to"`
}

type cardPayload struct {
	Number string `json:"number"`
	Expiry string `json:"expiry"`
	Code   string `json:"code"`
}

type submitOrderRequest struct {
	Items     []lineItemPayload `json:"items"`
	Discounts []discountPayload `json:"discounts"`
	Payer     payerPayload      `json:"payer"`
}

type invoicePayload struct {
	SubtotalMinor int64 `json:"subtotal_minor"`
	ShippingMinor int64 `json:"shipping_minor"`
	TaxesMinor    int64 `json:"taxes_minor"`
	TotalMinor    int64 `json:"total_minor"`
}

type orderResponse struct {
	OrderID       string         `json:"order_id"`
	State         string         `json:"state"`
	Invoice       invoicePayload `json:"invoice"`
	TransactionID string         `json:"transaction_id,omitempty"`
	DeclineCode   string         `json:"decline_code,omitempty"`
	Error         string         `json:"error,omitempty"`
}

type eventPayload struct {
	ID          string           `json:"id"`
	OrderID     string           `json:"order_id"`
	EventType   string           `json:"event_type"`
	Message     string           `json:"message,omitempty"`
	StockLevels map[string]int32 `json:"stock_levels,omitempty"`
	OccurredAt  time.Time        `json:"occurred_at"`
}

// handleSubmitOrder принимает заказ. По умолчанию отвечает 202 сразу после
// приёма; с ?wait=true блокируется до терминального состояния конвейера.
func (a *API) handleSubmitOrder(w http.ResponseWriter, r *http.Request) {
	var req submitOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	items := make([]domain.LineItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, domain.LineItem{ProductID: item.ProductID, Qty: item.Qty})
	}
	discounts := make([]domain.Discount, 0, len(req.Discounts))
	for _, discount := range req.Discounts {
		discounts = append(discounts, domain.Discount{Code: discount.Code, AmountMinor: discount.AmountMinor})
	}

	ticket, err := a.orchestrator.Submit(r.Context(), pipeline.SubmitRequest{
		Items:     items,
		Discounts: discounts,
		Payer:     toPayer(req.Payer),
	})
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, domain.ErrProductNotFound) {
			status = http.StatusNotFound
		}
		a.writeError(w, status, err)
		return
	}

	if r.URL.Query().Get("wait") != "true" {
		a.writeJSON(w, http.StatusAccepted, orderResponse{
			OrderID: ticket.OrderID(),
			State:   string(domain.OrderStateReceived),
			Invoice: toInvoicePayload(ticket.Invoice()),
		})
		return
	}

	waitCtx, cancel := context.WithTimeout(r.Context(), submitWaitTimeout)
	defer cancel()

	outcome, err := ticket.Wait(waitCtx)
	if err != nil {
		// Конвейер продолжает работать; клиент может опросить GET /orders/{id}.
		a.writeJSON(w, http.StatusAccepted, orderResponse{
			OrderID: ticket.OrderID(),
			State:   string(domain.OrderStateReceived),
			Invoice: toInvoicePayload(ticket.Invoice()),
		})
		return
	}

	resp := orderResponse{
		OrderID:       outcome.OrderID,
		State:         string(outcome.State),
		Invoice:       toInvoicePayload(outcome.Invoice),
		TransactionID: outcome.TransactionID,
		DeclineCode:   outcome.DeclineCode,
	}
	if outcome.Err != nil {
		resp.Error = outcome.Err.Error()
	}
	a.writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	record, err := a.orders.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			a.writeError(w, http.StatusNotFound, err)
			return
		}
		a.writeError(w, http.StatusInternalServerError, err)
		return
	}

	a.writeJSON(w, http.StatusOK, orderResponse{
		OrderID: record.ID,
		State:   string(record.State),
		Invoice: toInvoicePayload(record.Invoice),
	})
}

// handleNextEvent снимает следующее событие из долговременной очереди.
// 204 означает пустую очередь.
func (a *API) handleNextEvent(w http.ResponseWriter, r *http.Request) {
	event, ok, err := a.bus.Poll(r.Context())
	if err != nil {
		a.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	a.writeJSON(w, http.StatusOK, toEventPayload(event))
}

// handleEventStream раздаёт события как server-sent events. Подписка
// широковещательная: события доставляются всем подключённым клиентам, а
// медленный клиент события теряет.
func (a *API) handleEventStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		a.writeError(w, http.StatusInternalServerError, fmt.Errorf("streaming is not supported"))
		return
	}

	events, cancel := a.bus.Subscribe(0)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case event, open := <-events:
			if !open {
				return
			}
			payload, err := json.Marshal(toEventPayload(event))
			if err != nil {
				a.logger.WithError(err).Warn("failed to marshal stream event")
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, payload)
			flusher.Flush()
		}
	}
}

func (a *API) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		a.logger.WithError(err).Warn("failed to encode response")
	}
}

func (a *API) writeError(w http.ResponseWriter, status int, err error) {
	a.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func toPayer(p payerPayload) domain.Payer {
	return domain.Payer{
		FirstName: p.FirstName,
		LastName:  p.LastName,
		Email:     p.Email,
		Phone:     p.Phone,
		IP:        p.IP,
		Card: domain.Card{
			Number: p.Card.Number,
			Expiry: p.Card.Expiry,
			Code:   p.Card.Code,
		},
		BillTo: toAddress(p.BillTo),
		ShipTo: toAddress(p.ShipTo),
	}
}

func toAddress(a addressPayload) domain.Address {
	return domain.Address{
		FirstName: a.FirstName,
		LastName:  a.LastName,
		Company:   a.Company,
		Street:    a.Street,
		City:      a.City,
		State:     a.State,
		Zip:       a.Zip,
		Country:   a.Country,
	}
}

func toInvoicePayload(inv domain.Invoice) invoicePayload {
	return invoicePayload{
		SubtotalMinor: inv.SubtotalMinor,
		ShippingMinor: inv.ShippingMinor,
		TaxesMinor:    inv.TaxesMinor,
		TotalMinor:    inv.TotalMinor,
	}
}

func toEventPayload(event domain.StatusEvent) eventPayload {
	return eventPayload{
		ID:          event.ID,
		OrderID:     event.OrderID,
		EventType:   string(event.Type),
		Message:     event.Message,
		StockLevels: event.StockLevels,
		OccurredAt:  event.OccurredAt,
	}
}
