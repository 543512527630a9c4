package authorizenet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

const (
	// SandboxEndpoint — тестовый endpoint Authorize.Net.
	SandboxEndpoint = "https://apitest.authorize.net/xml/v1/request.api"

	transactionTypeAuthCapture = "authCaptureTransaction"
	responseCodeApproved       = "1"

	defaultHTTPTimeout = 30 * time.Second
)

// Config — параметры клиента Authorize.Net.
type Config struct {
	Endpoint       string
	MerchantID     string
	TransactionKey string
}

// Client реализует domain.PaymentGateway поверх JSON API Authorize.Net.
// Одна операция: authCaptureTransaction (авторизация и списание одним вызовом).
type Client struct {
	config     Config
	httpClient *http.Client
	logger     *log.Entry
}

// NewClient создаёт клиент платёжного шлюза.
func NewClient(config Config, logger *log.Entry) *Client {
	if config.Endpoint == "" {
		config.Endpoint = SandboxEndpoint
	}
	if logger == nil {
		logger = log.WithField("component", "authorizenet")
	}
	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
		logger:     logger,
	}
}

type chargeEnvelope struct {
	CreateTransactionRequest createTransactionRequest `json:"createTransactionRequest"`
}

type createTransactionRequest struct {
	MerchantAuthentication merchantAuthentication `json:"merchantAuthentication"`
	RefID                  string                 `json:"refId"`
	TransactionRequest     transactionRequest     `json:"transactionRequest"`
}

type merchantAuthentication struct {
	Name           string `json:"name"`
	TransactionKey string `json:"transactionKey"`
}

type transactionRequest struct {
	TransactionType string      `json:"transactionType"`
	Amount          string      `json:"amount"`
	Payment         payment     `json:"payment"`
	Tax             fee         `json:"tax"`
	Shipping        fee         `json:"shipping"`
	PONumber        string      `json:"poNumber"`
	Customer        customer    `json:"customer"`
	BillTo          wireAddress `json:"billTo"`
	ShipTo          wireAddress `json:"shipTo"`
	CustomerIP      string      `json:"customerIP"`
}

type payment struct {
	CreditCard creditCard `json:"creditCard"`
}

type creditCard struct {
	CardNumber     string `json:"cardNumber"`
	ExpirationDate string `json:"expirationDate"`
	CardCode       string `json:"cardCode"`
}

type fee struct {
	Amount      string `json:"amount"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type customer struct {
	ID string `json:"id"`
}

type wireAddress struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Company   string `json:"company"`
	Address   string `json:"address"`
	City      string `json:"city"`
	State     string `json:"state"`
	Zip       string `json:"zip"`
	Country   string `json:"country"`
}

type chargeResponse struct {
	TransactionResponse transactionResponse `json:"transactionResponse"`
	Messages            responseMessages    `json:"messages"`
}

type transactionResponse struct {
	ResponseCode string          `json:"responseCode"`
	TransID      string          `json:"transId"`
	Errors       []responseError `json:"errors"`
}

type responseError struct {
	ErrorCode string `json:"errorCode"`
	ErrorText string `json:"errorText"`
}

type responseMessages struct {
	ResultCode string            `json:"resultCode"`
	Message    []responseMessage `json:"message"`
}

type responseMessage struct {
	Code string `json:"code"`
	Text string `json:"text"`
}

// Charge выполняет authCaptureTransaction на сумму счёта. Транспортные
// ошибки и ошибки уровня API заворачиваются в domain.ErrGatewayUnavailable;
// ответ шлюза с responseCode != "1" — обычный отказ без ошибки.
func (c *Client) Charge(ctx context.Context, req domain.ChargeRequest) (domain.ChargeResult, error) {
	envelope := chargeEnvelope{
		CreateTransactionRequest: createTransactionRequest{
			MerchantAuthentication: merchantAuthentication{
				Name:           c.config.MerchantID,
				TransactionKey: c.config.TransactionKey,
			},
			RefID: req.ReferenceID,
			TransactionRequest: transactionRequest{
				TransactionType: transactionTypeAuthCapture,
				Amount:          minorToAmount(req.Invoice.TotalMinor),
				Payment: payment{
					CreditCard: creditCard{
						CardNumber:     req.Payer.Card.Number,
						ExpirationDate: req.Payer.Card.Expiry,
						CardCode:       req.Payer.Card.Code,
					},
				},
				Tax: fee{
					Amount: minorToAmount(req.Invoice.TaxesMinor),
					Name:   "taxes",
				},
				Shipping: fee{
					Amount: minorToAmount(req.Invoice.ShippingMinor),
					Name:   "shipping",
				},
				PONumber:   req.ReferenceID,
				Customer:   customer{ID: req.Payer.Email},
				BillTo:     toWireAddress(req.Payer.BillTo),
				ShipTo:     toWireAddress(req.Payer.ShipTo),
				CustomerIP: req.Payer.IP,
			},
		},
	}

	body, err := json.Marshal(envelope)
	if err != nil {
		return domain.ChargeResult{}, fmt.Errorf("marshal charge request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, bytes.NewReader(body))
	if err != nil {
		return domain.ChargeResult{}, fmt.Errorf("build charge request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return domain.ChargeResult{}, fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return domain.ChargeResult{}, fmt.Errorf("%w: read response: %v", domain.ErrGatewayUnavailable, err)
	}
	if httpResp.StatusCode != http.StatusOK {
		return domain.ChargeResult{}, fmt.Errorf("%w: unexpected status %d", domain.ErrGatewayUnavailable, httpResp.StatusCode)
	}

	// Authorize.Net начинает тело ответа с BOM (U+FEFF); убираем перед разбором.
	cleaned := strings.TrimPrefix(string(raw), "\ufeff")

	var resp chargeResponse
	if err := json.Unmarshal([]byte(cleaned), &resp); err != nil {
		return domain.ChargeResult{}, fmt.Errorf("%w: decode response: %v", domain.ErrGatewayUnavailable, err)
	}

	if resp.Messages.ResultCode != "" && !strings.EqualFold(resp.Messages.ResultCode, "Ok") {
		detail := "api error"
		if len(resp.Messages.Message) > 0 {
			detail = resp.Messages.Message[0].Text
		}
		return domain.ChargeResult{}, fmt.Errorf("%w: %s", domain.ErrGatewayUnavailable, detail)
	}

	result := domain.ChargeResult{
		Approved:      resp.TransactionResponse.ResponseCode == responseCodeApproved,
		TransactionID: resp.TransactionResponse.TransID,
	}
	if !result.Approved {
		result.DeclineCode = resp.TransactionResponse.ResponseCode
		if len(resp.TransactionResponse.Errors) > 0 {
			result.DeclineCode = resp.TransactionResponse.Errors[0].ErrorCode
		}
	}

	c.logger.WithFields(log.Fields{
		"ref_id":         req.ReferenceID,
		"approved":       result.Approved,
		"transaction_id": result.TransactionID,
	}).Debug("charge completed")

	return result, nil
}

func toWireAddress(addr domain.Address) wireAddress {
	return wireAddress{
		FirstName: addr.FirstName,
		LastName:  addr.LastName,
		Company:   addr.Company,
		Address:   addr.Street,
		City:      addr.City,
		State:     addr.State,
		Zip:       addr.Zip,
		Country:   addr.Country,
	}
}

// minorToAmount форматирует сумму в минорных единицах как десятичную строку
// с двумя знаками, как её ожидает шлюз.
func minorToAmount(minor int64) string {
	negative := minor < 0
	if negative {
		minor = -minor
	}
	amount := fmt.Sprintf("%d.%02d", minor/100, minor%100)
	if negative {
		return "-" + amount
	}
	return amount
}

var _ domain.PaymentGateway = (*Client)(nil)
