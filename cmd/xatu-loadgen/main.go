// xatu-loadgen drives a Zipf-distributed request mix against a running
// dashboard service, so a few combinations stay hot while the long tail stays
// cold, roughly how real traffic treats the dashboards. It writes per-request
// samples as CSV and an aggregate summary as JSON.
package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

type Config struct {
	TargetURL       string
	Networks        string
	Windows         string
	Dashboards      string
	Concurrency     int
	Duration        time.Duration
	ZipfS           float64
	ZipfV           float64
	OutputPrefix    string
	RequestTimeout  time.Duration
	AppendTimestamp bool
	TimestampFormat string
}

func loadConfig() Config {
	var cfg Config
	flag.StringVar(&cfg.TargetURL, "target", "http://localhost:8080", "Dashboard service base URL")
	flag.StringVar(&cfg.Networks, "networks", "mainnet", "Networks CSV")
	flag.StringVar(&cfg.Windows, "windows", "", "Windows CSV (empty = every window the dashboard supports)")
	flag.StringVar(&cfg.Dashboards, "dashboards", "", "Dashboard ids CSV (empty = everything the service lists)")
	flag.IntVar(&cfg.Concurrency, "concurrency", 16, "Concurrent workers")
	flag.DurationVar(&cfg.Duration, "duration", 60*time.Second, "Test duration")
	flag.Float64Var(&cfg.ZipfS, "zipf-s", 1.3, "Zipf parameter s (>1)")
	flag.Float64Var(&cfg.ZipfV, "zipf-v", 1.0, "Zipf parameter v (>=1)")
	flag.StringVar(&cfg.OutputPrefix, "out", "results/loadgen", "Output file prefix (JSON/CSV)")
	flag.DurationVar(&cfg.RequestTimeout, "timeout", 30*time.Second, "Per-request timeout")
	flag.BoolVar(&cfg.AppendTimestamp, "append-ts", true, "Append timestamp to output prefix")
	flag.StringVar(&cfg.TimestampFormat, "ts-format", "iso", "Timestamp format: iso|unix|none")
	flag.Parse()
	return cfg
}

// combo is one dashboard request shape in the pool. Zipf rank follows pool
// order, so earlier combos receive most of the traffic.
type combo struct {
	Dashboard string
	Network   string
	Window    string
}

func (c combo) String() string {
	return c.Dashboard + "/" + c.Network + "/" + c.Window
}

func (c combo) URL(base string) string {
	return fmt.Sprintf("%s/api/v1/dashboards/%s?network=%s&window=%s",
		strings.TrimRight(base, "/"),
		url.PathEscape(c.Dashboard),
		url.QueryEscape(c.Network),
		url.QueryEscape(c.Window))
}

type descriptor struct {
	ID      string   `json:"id"`
	Windows []string `json:"windows"`
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if x := strings.TrimSpace(p); x != "" {
			out = append(out, x)
		}
	}
	return out
}

// discover asks the service for its dashboard list so the pool matches
// whatever the target actually serves.
func discover(client *http.Client, baseURL string) ([]descriptor, error) {
	resp, err := client.Get(strings.TrimRight(baseURL, "/") + "/api/v1/dashboards")
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list dashboards: status %d", resp.StatusCode)
	}
	var ds []descriptor
	if err := json.NewDecoder(resp.Body).Decode(&ds); err != nil {
		return nil, fmt.Errorf("decode dashboard list: %w", err)
	}
	return ds, nil
}

// makePool crosses dashboards with networks and windows. Window order is kept
// from the descriptor, so each dashboard's default (first) window lands
// earliest and soaks up the hot end of the Zipf curve.
func makePool(dashboards []descriptor, networks, windows []string) []combo {
	winSet := map[string]bool{}
	for _, w := range windows {
		winSet[w] = true
	}

	var pool []combo
	for _, d := range dashboards {
		for _, w := range d.Windows {
			if len(winSet) > 0 && !winSet[w] {
				continue
			}
			for _, n := range networks {
				pool = append(pool, combo{Dashboard: d.ID, Network: n, Window: w})
			}
		}
	}
	return pool
}

// request result (one sample per request)
type sample struct {
	Timestamp time.Time
	Latency   time.Duration
	Status    int
	Outcome   string
	ErrorMsg  string
	ComboIdx  int
	Combo     string
}

type summary struct {
	StartTime     time.Time      `json:"start"`
	EndTime       time.Time      `json:"end"`
	DurationSec   float64        `json:"duration_sec"`
	TotalRequests int64          `json:"total"`
	SuccessCount  int64          `json:"success"`
	ErrorCount    int64          `json:"errors"`
	ThroughputRPS float64        `json:"throughput_rps"`
	P50Ms         float64        `json:"p50_ms"`
	P95Ms         float64        `json:"p95_ms"`
	P99Ms         float64        `json:"p99_ms"`
	Outcomes      map[string]int `json:"outcomes"`
	Concurrency   int            `json:"concurrency"`
	ZipfS         float64        `json:"zipf_s"`
	ZipfV         float64        `json:"zipf_v"`
	PoolSize      int            `json:"pool_size"`
	TargetURL     string         `json:"target"`
}

type aggregatedResult struct {
	total    int64
	success  int64
	errors   int64
	latMs    []float64
	outcomes map[string]int
}

func main() {
	cfg := loadConfig()
	if err := os.MkdirAll(filepath.Dir(cfg.OutputPrefix), 0o750); err != nil {
		log.Fatalf("mkdir results: %v", err)
	}

	prefix := cfg.OutputPrefix
	if cfg.AppendTimestamp {
		switch strings.ToLower(cfg.TimestampFormat) {
		case "none":
		case "unix":
			prefix = fmt.Sprintf("%s_%d", prefix, time.Now().Unix())
		default: // "iso"
			prefix = fmt.Sprintf("%s_%s", prefix, time.Now().UTC().Format("20060102_150405Z"))
		}
	}

	// HTTP client for load generation
	httpClient := &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           (&net.Dialer{Timeout: 4 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
			MaxIdleConns:          1024,
			MaxIdleConnsPerHost:   256,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   4 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
		Timeout: cfg.RequestTimeout,
	}

	dashboards, err := discover(httpClient, cfg.TargetURL)
	if err != nil {
		log.Fatalf("discover dashboards: %v", err)
	}
	if only := splitCSV(cfg.Dashboards); len(only) > 0 {
		want := map[string]bool{}
		for _, id := range only {
			want[id] = true
		}
		var kept []descriptor
		for _, d := range dashboards {
			if want[d.ID] {
				kept = append(kept, d)
			}
		}
		dashboards = kept
	}

	pool := makePool(dashboards, splitCSV(cfg.Networks), splitCSV(cfg.Windows))
	if len(pool) == 0 {
		log.Fatalf("empty request pool")
	}
	log.Printf("using %d dashboard/network/window combos", len(pool))

	seed := time.Now().UnixNano()
	imax := uint64(len(pool)) - 1

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	// Prepare output files
	csvPath := prefix + "_samples.csv"
	jsonPath := prefix + "_summary.json"
	csvFile, err := os.Create(filepath.Clean(csvPath))
	if err != nil {
		log.Printf("open csv: %v", err)
		return
	}
	defer func() { _ = csvFile.Close() }()
	csvWriter := csv.NewWriter(csvFile)

	// Collects results asynchronously
	samplesChan := make(chan sample, 4096)
	resultsChan := make(chan aggregatedResult, 1)
	go func() {
		_ = csvWriter.Write([]string{"timestamp", "latency_ms", "status", "outcome", "error", "combo_idx", "combo"})
		var total, successCount, errorCount int64
		latencies := make([]float64, 0, 1<<20)
		outcomes := map[string]int{}
		for s := range samplesChan {
			total++
			if s.ErrorMsg == "" && s.Status >= 200 && s.Status < 300 {
				successCount++
				latencies = append(latencies, float64(s.Latency.Microseconds())/1000.0)
				outcomes[s.Outcome]++
			} else {
				errorCount++
			}
			_ = csvWriter.Write([]string{
				s.Timestamp.UTC().Format(time.RFC3339Nano),
				fmt.Sprintf("%.3f", float64(s.Latency.Microseconds())/1000.0),
				fmt.Sprintf("%d", s.Status),
				s.Outcome,
				s.ErrorMsg,
				fmt.Sprintf("%d", s.ComboIdx),
				s.Combo,
			})
		}
		csvWriter.Flush()
		if err := csvWriter.Error(); err != nil {
			log.Printf("csv flush error: %v", err)
		}
		resultsChan <- aggregatedResult{total: total, success: successCount, errors: errorCount, latMs: latencies, outcomes: outcomes}
	}()

	startTime := time.Now()
	log.Printf("loadgen start target=%s dur=%s conc=%d zipf(s=%.2f,v=%.2f) pool=%d",
		cfg.TargetURL, cfg.Duration, cfg.Concurrency, cfg.ZipfS, cfg.ZipfV, len(pool))

	var wg sync.WaitGroup
	wg.Add(cfg.Concurrency)

	for workerID := range cfg.Concurrency {
		go func(id int) {
			defer wg.Done()

			rWorker := rand.New(rand.NewSource(seed + int64(id) + 1))
			zipfDist := rand.NewZipf(rWorker, cfg.ZipfS, cfg.ZipfV, imax)
			for {
				select {
				case <-ctx.Done():
					return
				default:
				}

				v := zipfDist.Uint64()
				if v > uint64(math.MaxInt) {
					continue
				}
				idx := int(v)
				if idx >= len(pool) {
					continue
				}
				c := pool[idx]

				startReq := time.Now()
				req, _ := http.NewRequestWithContext(ctx, http.MethodGet, c.URL(cfg.TargetURL), nil)
				req.Header.Set("Accept", "application/json")
				resp, err := httpClient.Do(req)
				latency := time.Since(startReq)

				result := sample{
					Timestamp: startReq,
					Latency:   latency,
					ComboIdx:  idx,
					Combo:     c.String(),
				}

				if err != nil {
					result.ErrorMsg = err.Error()
				} else {
					result.Status = resp.StatusCode
					result.Outcome = resp.Header.Get("X-Cache-Outcome")
					_, _ = io.Copy(io.Discard, resp.Body)
					_ = resp.Body.Close()
					if resp.StatusCode < 200 || resp.StatusCode >= 300 {
						result.ErrorMsg = fmt.Sprintf("status=%d", resp.StatusCode)
					}
				}

				select {
				case samplesChan <- result:
				case <-ctx.Done():
					return
				}
			}
		}(workerID)
	}

	// close samples channel
	go func() {
		<-ctx.Done()
		wg.Wait()
		close(samplesChan)
	}()

	aggResult := <-resultsChan
	endTime := time.Now()
	elapsed := endTime.Sub(startTime).Seconds()

	sort.Float64s(aggResult.latMs)
	p50 := percentile(aggResult.latMs, 50)
	p95 := percentile(aggResult.latMs, 95)
	p99 := percentile(aggResult.latMs, 99)

	runSummary := summary{
		StartTime:     startTime.UTC(),
		EndTime:       endTime.UTC(),
		DurationSec:   elapsed,
		TotalRequests: aggResult.total,
		SuccessCount:  aggResult.success,
		ErrorCount:    aggResult.errors,
		ThroughputRPS: float64(aggResult.total) / elapsed,
		P50Ms:         p50,
		P95Ms:         p95,
		P99Ms:         p99,
		Outcomes:      aggResult.outcomes,
		Concurrency:   cfg.Concurrency,
		ZipfS:         cfg.ZipfS,
		ZipfV:         cfg.ZipfV,
		PoolSize:      len(pool),
		TargetURL:     cfg.TargetURL,
	}

	jsonFile, err := os.Create(filepath.Clean(jsonPath))
	if err == nil {
		enc := json.NewEncoder(jsonFile)
		enc.SetIndent("", "  ")
		_ = enc.Encode(runSummary)
		_ = jsonFile.Close()
	}

	log.Printf("done: total=%d succ=%d err=%d thr=%.2f rps p50=%.1fms p95=%.1fms p99=%.1fms outcomes=%v",
		aggResult.total, aggResult.success, aggResult.errors, runSummary.ThroughputRPS, p50, p95, p99, aggResult.outcomes)
	log.Printf("wrote %s and %s", jsonPath, csvPath)
}

func percentile(sortedValues []float64, p float64) float64 {
	if len(sortedValues) == 0 {
		return math.NaN()
	}
	if p <= 0 {
		return sortedValues[0]
	}
	if p >= 100 {
		return sortedValues[len(sortedValues)-1]
	}
	k := (p / 100.0) * float64(len(sortedValues)-1)
	f := math.Floor(k)
	i := int(f)
	if i >= len(sortedValues)-1 {
		return sortedValues[len(sortedValues)-1]
	}
	d := k - f
	return sortedValues[i]*(1-d) + sortedValues[i+1]*d
}
