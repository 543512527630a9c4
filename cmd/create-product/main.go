package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
	"github.com/vladislavdragonenkov/fulfillment/internal/storage/postgres"
)

const defaultTimeout = 10 * time.Second

func main() {
	var (
		dsn        string
		id         string
		title      string
		stock      int
		priceMinor int64
	)

	flag.StringVar(&dsn, "dsn", "", "PostgreSQL DSN (fallback: FULFILLMENT_POSTGRES_DSN)")
	flag.StringVar(&id, "id", "", "product id (optional, generated when empty)")
	flag.StringVar(&title, "title", "", "product title")
	flag.IntVar(&stock, "stock", 0, "initial stock level")
	flag.Int64Var(&priceMinor, "price-minor", 0, "unit price in minor units")
	flag.Parse()

	if strings.TrimSpace(dsn) == "" {
		dsn = strings.TrimSpace(os.Getenv("FULFILLMENT_POSTGRES_DSN"))
	}
	if dsn == "" {
		fail("FULFILLMENT_POSTGRES_DSN (or -dsn) is required")
	}

	product := domain.Product{
		ID:         strings.TrimSpace(id),
		Title:      strings.TrimSpace(title),
		Stock:      int32(stock),
		PriceMinor: priceMinor,
	}
	if errs := product.Validate(); len(errs) > 0 {
		for _, err := range errs {
			_, _ = fmt.Fprintf(os.Stderr, "invalid product: %v\n", err)
		}
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	store, err := postgres.Open(ctx, dsn)
	if err != nil {
		fail("open postgres store: %v", err)
	}
	defer store.Close()

	products := postgres.NewProductStore(store)
	created, err := products.Create(ctx, product)
	if err != nil {
		fail("create product: %v", err)
	}

	fmt.Printf("product created: id=%s title=%q stock=%d price_minor=%d\n",
		created.ID, created.Title, created.Stock, created.PriceMinor)
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
