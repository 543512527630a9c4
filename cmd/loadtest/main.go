package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

const defaultQty = 1

type config struct {
	baseURL     string
	products    []string
	qty         int
	total       int
	concurrency int
	timeout     time.Duration
	wait        bool
	outputPath  string
}

type latencySummary struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

type report struct {
	StartedAt       time.Time        `json:"started_at"`
	DurationSeconds float64          `json:"duration_seconds"`
	TotalOrders     int64            `json:"total_orders"`
	SuccessOrders   int64            `json:"success_orders"`
	FailedOrders    int64            `json:"failed_orders"`
	ErrorRate       float64          `json:"error_rate"`
	RPS             float64          `json:"rps"`
	Statuses        map[string]int64 `json:"statuses"`
	States          map[string]int64 `json:"states"`
	LatencyMs       latencySummary   `json:"latency_ms"`
}

type collector struct {
	mu        sync.Mutex
	calls     int64
	success   int64
	failed    int64
	statuses  map[string]int64
	states    map[string]int64
	latencies []float64
}

func newCollector() *collector {
	return &collector{
		statuses: make(map[string]int64),
		states:   make(map[string]int64),
	}
}

func (c *collector) record(latency time.Duration, status int, state string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.calls++
	if err != nil {
		c.failed++
		c.statuses["transport_error"]++
	} else {
		if status >= 200 && status < 300 {
			c.success++
		} else {
			c.failed++
		}
		c.statuses[strconv.Itoa(status)]++
		if state != "" {
			c.states[state]++
		}
	}
	c.latencies = append(c.latencies, float64(latency.Microseconds())/1000.0)
}

func (c *collector) buildReport(startedAt time.Time, duration time.Duration) report {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := report{
		StartedAt:       startedAt.UTC(),
		DurationSeconds: duration.Seconds(),
		TotalOrders:     c.calls,
		SuccessOrders:   c.success,
		FailedOrders:    c.failed,
		ErrorRate:       ratio(c.failed, c.calls),
		Statuses:        make(map[string]int64, len(c.statuses)),
		States:          make(map[string]int64, len(c.states)),
		LatencyMs:       buildLatencySummary(c.latencies),
	}
	for status, count := range c.statuses {
		result.Statuses[status] = count
	}
	for state, count := range c.states {
		result.States[state] = count
	}
	if duration > 0 {
		result.RPS = float64(result.TotalOrders) / duration.Seconds()
	}

	return result
}

func parseConfig() (config, error) {
	var cfg config
	var productsValue string
	var timeoutValue string

	flag.StringVar(&cfg.baseURL, "addr", "http://localhost:8080", "fulfillment service base URL")
	flag.StringVar(&productsValue, "products", "", "comma-separated product ids to order (required)")
	flag.IntVar(&cfg.qty, "qty", defaultQty, "quantity per line item")
	flag.IntVar(&cfg.total, "total", 400, "total orders to submit")
	flag.IntVar(&cfg.concurrency, "concurrency", 40, "number of concurrent workers")
	flag.StringVar(&timeoutValue, "timeout", "35s", "per-request timeout")
	flag.BoolVar(&cfg.wait, "wait", true, "wait for the terminal state of every order")
	flag.StringVar(&cfg.outputPath, "output", "", "optional JSON report output file path")
	flag.Parse()

	timeout, err := time.ParseDuration(strings.TrimSpace(timeoutValue))
	if err != nil {
		return cfg, fmt.Errorf("parse timeout: %w", err)
	}
	cfg.timeout = timeout

	for _, product := range strings.Split(productsValue, ",") {
		product = strings.TrimSpace(product)
		if product != "" {
			cfg.products = append(cfg.products, product)
		}
	}

	if len(cfg.products) == 0 {
		return cfg, errors.New("products must not be empty")
	}
	if cfg.qty <= 0 {
		return cfg, errors.New("qty must be > 0")
	}
	if cfg.total <= 0 {
		return cfg, errors.New("total must be > 0")
	}
	if cfg.concurrency <= 0 {
		return cfg, errors.New("concurrency must be > 0")
	}
	if cfg.timeout <= 0 {
		return cfg, errors.New("timeout must be > 0")
	}

	cfg.baseURL = strings.TrimRight(strings.TrimSpace(cfg.baseURL), "/")

	return cfg, nil
}

func submitURL(cfg config) string {
	url := cfg.baseURL + "/orders"
	if cfg.wait {
		url += "?wait=true"
	}
	return url
}

func buildOrderBody(cfg config, worker, seq int) ([]byte, error) {
	items := make([]map[string]any, 0, len(cfg.products))
	for _, product := range cfg.products {
		items = append(items, map[string]any{
			"product_id": product,
			"qty":        cfg.qty,
		})
	}

	return json.Marshal(map[string]any{
		"items": items,
		"payer": map[string]any{
			"first_name": "Load",
			"last_name":  fmt.Sprintf("Worker%d", worker),
			"email":      fmt.Sprintf("load-%d-%d@example.com", worker, seq),
			"card": map[string]any{
				"number": "5424000000000015",
				"expiry": "2030-12",
				"code":   "999",
			},
		},
	})
}

func runLoad(cfg config, stats *collector) time.Duration {
	client := &http.Client{Timeout: cfg.timeout}
	url := submitURL(cfg)

	jobs := make(chan int)
	var wg sync.WaitGroup

	start := time.Now()
	for worker := 0; worker < cfg.concurrency; worker++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for seq := range jobs {
				body, err := buildOrderBody(cfg, worker, seq)
				if err != nil {
					stats.record(0, 0, "", err)
					continue
				}

				began := time.Now()
				resp, err := client.Post(url, "application/json", bytes.NewReader(body))
				latency := time.Since(began)
				if err != nil {
					stats.record(latency, 0, "", err)
					continue
				}

				var payload struct {
					State string `json:"state"`
				}
				_ = json.NewDecoder(resp.Body).Decode(&payload)
				_ = resp.Body.Close()

				stats.record(latency, resp.StatusCode, payload.State, nil)
			}
		}(worker)
	}

	for seq := 0; seq < cfg.total; seq++ {
		jobs <- seq
	}
	close(jobs)
	wg.Wait()

	return time.Since(start)
}

func buildLatencySummary(latencies []float64) latencySummary {
	if len(latencies) == 0 {
		return latencySummary{}
	}

	sorted := make([]float64, len(latencies))
	copy(sorted, latencies)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}

	return latencySummary{
		Min: sorted[0],
		Max: sorted[len(sorted)-1],
		Avg: sum / float64(len(sorted)),
		P50: percentile(sorted, 50),
		P95: percentile(sorted, 95),
		P99: percentile(sorted, 99),
	}
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}

	rank := (p / 100) * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper {
		return sorted[lower]
	}

	weight := rank - float64(lower)
	return sorted[lower]*(1-weight) + sorted[upper]*weight
}

func ratio(part, total int64) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total)
}

func writeReport(result report, outputPath string) error {
	encoded, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	fmt.Println(string(encoded))

	if strings.TrimSpace(outputPath) == "" {
		return nil
	}

	if dir := filepath.Dir(outputPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create report dir: %w", err)
		}
	}
	if err := os.WriteFile(outputPath, encoded, 0o644); err != nil {
		return fmt.Errorf("write report file: %w", err)
	}

	return nil
}

func main() {
	cfg, err := parseConfig()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	stats := newCollector()
	startedAt := time.Now()
	duration := runLoad(cfg, stats)

	result := stats.buildReport(startedAt, duration)
	if err := writeReport(result, cfg.outputPath); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "report failed: %v\n", err)
		os.Exit(1)
	}

	if result.FailedOrders > 0 {
		os.Exit(2)
	}
}
