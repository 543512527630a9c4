package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
	"github.com/vladislavdragonenkov/fulfillment/internal/gateway/authorizenet"
)

const defaultTimeout = 30 * time.Second

// payment-probe выполняет одиночное тестовое списание через Authorize.Net
// sandbox. Утилита для проверки учётных данных мерчанта без запуска сервиса.
func main() {
	var (
		endpoint    string
		merchantID  string
		txnKey      string
		amountMinor int64
		cardNumber  string
		cardExpiry  string
		cardCode    string
	)

	flag.StringVar(&endpoint, "endpoint", authorizenet.SandboxEndpoint, "gateway endpoint")
	flag.StringVar(&merchantID, "merchant-id", "", "merchant id (fallback: FULFILLMENT_GATEWAY_MERCHANT_ID)")
	flag.StringVar(&txnKey, "transaction-key", "", "transaction key (fallback: FULFILLMENT_GATEWAY_TRANSACTION_KEY)")
	flag.Int64Var(&amountMinor, "amount-minor", 10000, "charge amount in minor units")
	flag.StringVar(&cardNumber, "card-number", "5424000000000015", "test card number")
	flag.StringVar(&cardExpiry, "card-expiry", "2030-12", "card expiry in YYYY-MM")
	flag.StringVar(&cardCode, "card-code", "999", "card verification code")
	flag.Parse()

	if strings.TrimSpace(merchantID) == "" {
		merchantID = strings.TrimSpace(os.Getenv("FULFILLMENT_GATEWAY_MERCHANT_ID"))
	}
	if strings.TrimSpace(txnKey) == "" {
		txnKey = strings.TrimSpace(os.Getenv("FULFILLMENT_GATEWAY_TRANSACTION_KEY"))
	}
	if merchantID == "" || txnKey == "" {
		fail("merchant id and transaction key are required")
	}

	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	client := authorizenet.NewClient(authorizenet.Config{
		Endpoint:       endpoint,
		MerchantID:     merchantID,
		TransactionKey: txnKey,
	}, log.WithField("component", "payment-probe"))

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	result, err := client.Charge(ctx, domain.ChargeRequest{
		ReferenceID: fmt.Sprintf("probe-%d", time.Now().Unix()),
		Invoice: domain.Invoice{
			SubtotalMinor: amountMinor,
			TotalMinor:    amountMinor,
		},
		Payer: domain.Payer{
			FirstName: "Jamie",
			LastName:  "Son",
			IP:        "192.168.1.1",
			Card: domain.Card{
				Number: cardNumber,
				Expiry: cardExpiry,
				Code:   cardCode,
			},
			BillTo: domain.Address{
				FirstName: "Jamie",
				LastName:  "Son",
				Street:    "123 Main St",
				City:      "Lehi",
				State:     "UT",
				Zip:       "84043",
				Country:   "US",
			},
		},
	})
	if err != nil {
		fail("charge failed: %v", err)
	}

	if result.Approved {
		fmt.Printf("charge approved: transaction_id=%s\n", result.TransactionID)
		return
	}
	fmt.Printf("charge declined: code=%s\n", result.DeclineCode)
	os.Exit(2)
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
