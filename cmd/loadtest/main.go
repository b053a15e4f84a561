package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Нагрузочный генератор для HTTP API: гоняет сценарии чекаута
// и переходов статуса, собирая латентности и коды ответов.

type loadMode string

const (
	modeCreate              loadMode = "create"
	modeCreateConfirm       loadMode = "create-confirm"
	modeCreateConfirmCancel loadMode = "create-confirm-cancel"
)

type config struct {
	baseURL     string
	total       int
	concurrency int
	timeout     time.Duration
	mode        loadMode
	productID   string
	variant     string
	size        string
	qty         int32
	email       string
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

type stepReport struct {
	Calls     int64          `json:"calls"`
	Success   int64          `json:"success"`
	Failed    int64          `json:"failed"`
	ErrorRate float64        `json:"error_rate"`
	Statuses  map[string]int64 `json:"statuses"`
	LatencyMs latencySummary `json:"latency_ms"`
}

type report struct {
	StartedAt        time.Time             `json:"started_at"`
	DurationSeconds  float64               `json:"duration_seconds"`
	TotalScenarios   int64                 `json:"total_scenarios"`
	SuccessScenarios int64                 `json:"success_scenarios"`
	FailedScenarios  int64                 `json:"failed_scenarios"`
	ErrorRate        float64               `json:"error_rate"`
	RPS              float64               `json:"rps"`
	Steps            map[string]stepReport `json:"steps"`
}

type stepStats struct {
	calls     int64
	success   int64
	failed    int64
	statuses  map[string]int64
	latencies []float64
}

type collector struct {
	mu    sync.Mutex
	steps map[string]*stepStats
}

func newCollector() *collector {
	return &collector{steps: make(map[string]*stepStats)}
}

func (c *collector) record(step string, latency time.Duration, status int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats, ok := c.steps[step]
	if !ok {
		stats = &stepStats{statuses: make(map[string]int64)}
		c.steps[step] = stats
	}

	stats.calls++
	key := "error"
	if err == nil {
		key = fmt.Sprintf("%d", status)
	}
	stats.statuses[key]++
	if err == nil && status < 400 {
		stats.success++
	} else {
		stats.failed++
	}
	stats.latencies = append(stats.latencies, float64(latency.Milliseconds()))
}

func main() {
	cfg := parseFlags()

	client := &http.Client{Timeout: cfg.timeout}
	col := newCollector()

	var (
		success int64
		failed  int64
	)

	jobs := make(chan int)
	var wg sync.WaitGroup

	startedAt := time.Now()
	for w := 0; w < cfg.concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range jobs {
				if runScenario(client, cfg, col) {
					atomic.AddInt64(&success, 1)
				} else {
					atomic.AddInt64(&failed, 1)
				}
			}
		}()
	}

	for i := 0; i < cfg.total; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	elapsed := time.Since(startedAt)

	total := success + failed
	rep := report{
		StartedAt:        startedAt.UTC(),
		DurationSeconds:  elapsed.Seconds(),
		TotalScenarios:   total,
		SuccessScenarios: success,
		FailedScenarios:  failed,
		ErrorRate:        rate(failed, total),
		RPS:              float64(total) / math.Max(elapsed.Seconds(), 0.001),
		Steps:            col.build(),
	}

	printReport(rep, cfg.outputPath)
}

func parseFlags() config {
	var cfg config
	var mode string

	flag.StringVar(&cfg.baseURL, "addr", "http://localhost:8080", "base URL of the shop API")
	flag.IntVar(&cfg.total, "total", 100, "total number of scenarios")
	flag.IntVar(&cfg.concurrency, "concurrency", 10, "number of concurrent workers")
	flag.DurationVar(&cfg.timeout, "timeout", 10*time.Second, "per-request timeout")
	flag.StringVar(&mode, "mode", "create", "scenario: create|create-confirm|create-confirm-cancel")
	flag.StringVar(&cfg.productID, "product", "", "product id to order (required)")
	flag.StringVar(&cfg.variant, "variant", "", "color variant key or name (required)")
	flag.StringVar(&cfg.size, "size", "M", "size to order")
	var qty int
	flag.IntVar(&qty, "qty", 1, "quantity per order")
	flag.StringVar(&cfg.email, "email", "loadtest@example.com", "customer email")
	flag.StringVar(&cfg.outputPath, "output", "", "path to write JSON report (default stdout)")
	flag.Parse()

	cfg.mode = loadMode(mode)
	cfg.qty = int32(qty)

	switch cfg.mode {
	case modeCreate, modeCreateConfirm, modeCreateConfirmCancel:
	default:
		fail("unsupported mode: %s", mode)
	}
	if cfg.productID == "" || cfg.variant == "" {
		fail("-product and -variant are required")
	}
	if cfg.total <= 0 || cfg.concurrency <= 0 {
		fail("-total and -concurrency must be positive")
	}

	return cfg
}

// runScenario выполняет один сценарий: чекаут и, в зависимости от режима,
// перевод заказа в confirmed и отмену.
func runScenario(client *http.Client, cfg config, col *collector) bool {
	orderID, ok := createOrder(client, cfg, col)
	if !ok {
		return false
	}
	if cfg.mode == modeCreate {
		return true
	}

	if !transition(client, cfg, col, orderID, "confirmed") {
		return false
	}
	if cfg.mode == modeCreateConfirm {
		return true
	}

	return transition(client, cfg, col, orderID, "cancelled")
}

func createOrder(client *http.Client, cfg config, col *collector) (string, bool) {
	body, _ := json.Marshal(map[string]any{
		"items": []map[string]any{{
			"product_id": cfg.productID,
			"variant":    cfg.variant,
			"size":       cfg.size,
			"qty":        cfg.qty,
		}},
		"customer": map[string]any{
			"name":  "Load Test",
			"email": cfg.email,
		},
		"payment_method": "card",
	})

	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, cfg.baseURL+"/api/v1/orders", bytes.NewReader(body))
	if err != nil {
		col.record("create", 0, 0, err)
		return "", false
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", uuid.NewString())

	start := time.Now()
	resp, err := client.Do(req)
	latency := time.Since(start)
	if err != nil {
		col.record("create", latency, 0, err)
		return "", false
	}
	defer resp.Body.Close()

	col.record("create", latency, resp.StatusCode, nil)
	if resp.StatusCode != http.StatusCreated {
		_, _ = io.Copy(io.Discard, resp.Body)
		return "", false
	}

	var created struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil || created.ID == "" {
		return "", false
	}
	return created.ID, true
}

func transition(client *http.Client, cfg config, col *collector, orderID, status string) bool {
	body, _ := json.Marshal(map[string]string{"status": status, "reason": "loadtest"})

	url := fmt.Sprintf("%s/api/v1/orders/%s/transition", cfg.baseURL, orderID)
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		col.record(status, 0, 0, err)
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := client.Do(req)
	latency := time.Since(start)
	if err != nil {
		col.record(status, latency, 0, err)
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	col.record(status, latency, resp.StatusCode, nil)
	return resp.StatusCode == http.StatusOK
}

func (c *collector) build() map[string]stepReport {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := make(map[string]stepReport, len(c.steps))
	for name, stats := range c.steps {
		result[name] = stepReport{
			Calls:     stats.calls,
			Success:   stats.success,
			Failed:    stats.failed,
			ErrorRate: rate(stats.failed, stats.calls),
			Statuses:  stats.statuses,
			LatencyMs: summarize(stats.latencies),
		}
	}
	return result
}

func summarize(latencies []float64) latencySummary {
	if len(latencies) == 0 {
		return latencySummary{}
	}

	sorted := append([]float64(nil), latencies...)
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
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func rate(failed, total int64) float64 {
	if total == 0 {
		return 0
	}
	return float64(failed) / float64(total)
}

func printReport(rep report, outputPath string) {
	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		fail("marshal report: %v", err)
	}

	if outputPath == "" {
		fmt.Println(string(data))
		return
	}

	if dir := filepath.Dir(outputPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			fail("create report dir: %v", err)
		}
	}
	if err := os.WriteFile(outputPath, data, 0o644); err != nil {
		fail("write report: %v", err)
	}
	fmt.Printf("report written to %s\n", outputPath)
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
