// xatu-warm walks every dashboard, network, and window combination and
// requests each one once, so the first real visitor after a deploy or a bulk
// invalidation hits a warm cache instead of a cold multi-minute compute.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

type cfg struct {
	BaseURL     string
	Networks    []string
	Windows     []string
	Dashboards  []string
	Concurrency int
	Timeout     time.Duration
	OutPath     string
}

// target is one combination to warm.
type target struct {
	Dashboard string
	Network   string
	Window    string
}

type result struct {
	Target    target        `json:"target"`
	Status    int           `json:"status"`
	Outcome   string        `json:"outcome,omitempty"`
	Elapsed   time.Duration `json:"-"`
	ElapsedMS float64       `json:"elapsed_ms"`
	Err       string        `json:"error,omitempty"`
}

type summary struct {
	Start    time.Time      `json:"start"`
	End      time.Time      `json:"end"`
	Targets  int            `json:"targets"`
	Failures int            `json:"failures"`
	Outcomes map[string]int `json:"outcomes"`
	Results  []result       `json:"results"`
}

func main() {
	os.Exit(run())
}

func run() int {
	c := parseFlags()

	client := &http.Client{Timeout: c.Timeout}

	dashboards, err := discover(client, c.BaseURL, c.Dashboards)
	if err != nil {
		log.Printf("discover dashboards: %v", err)
		return 1
	}
	targets := expand(dashboards, c.Networks, c.Windows)
	if len(targets) == 0 {
		log.Printf("nothing to warm")
		return 1
	}

	log.Printf("warming %d targets against %s (concurrency=%d)", len(targets), c.BaseURL, c.Concurrency)
	start := time.Now().UTC()
	results := warm(client, c.BaseURL, targets, c.Concurrency)
	end := time.Now().UTC()

	s := summarize(start, end, results)
	for _, r := range s.Results {
		if r.Err != "" {
			log.Printf("FAIL %s/%s/%s: %s", r.Target.Dashboard, r.Target.Network, r.Target.Window, r.Err)
		}
	}
	log.Printf("done in %s: %d targets, %d failures, outcomes=%v",
		end.Sub(start).Round(time.Millisecond), s.Targets, s.Failures, s.Outcomes)

	if c.OutPath != "" {
		if err := writeSummary(c.OutPath, s); err != nil {
			log.Printf("write summary: %v", err)
			return 1
		}
		log.Printf("wrote %s", c.OutPath)
	}

	if s.Failures > 0 {
		return 1
	}
	return 0
}

func parseFlags() cfg {
	var c cfg
	var networks, windows, dashboards string

	flag.StringVar(&c.BaseURL, "target", "http://localhost:8080", "Dashboard service base URL")
	flag.StringVar(&networks, "networks", "mainnet", "Networks CSV")
	flag.StringVar(&windows, "windows", "", "Windows CSV (empty = every window the dashboard supports)")
	flag.StringVar(&dashboards, "dashboards", "", "Dashboard ids CSV (empty = everything the service lists)")
	flag.IntVar(&c.Concurrency, "concurrency", 2, "Concurrent warm requests")
	flag.DurationVar(&c.Timeout, "timeout", 5*time.Minute, "Per-request timeout (cold 90d windows are slow)")
	flag.StringVar(&c.OutPath, "out", "", "Optional JSON summary path")
	flag.Parse()

	c.Networks = splitCSV(networks)
	c.Windows = splitCSV(windows)
	c.Dashboards = splitCSV(dashboards)
	if c.Concurrency <= 0 {
		c.Concurrency = 1
	}
	return c
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

// descriptor is the slice of the list endpoint this tool needs.
type descriptor struct {
	ID      string   `json:"id"`
	Windows []string `json:"windows"`
}

// discover asks the service which dashboards it serves; only selects those
// named ids when the filter is non-empty.
func discover(client *http.Client, baseURL string, only []string) ([]descriptor, error) {
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
	if len(only) == 0 {
		return ds, nil
	}

	want := map[string]bool{}
	for _, id := range only {
		want[id] = true
	}
	var out []descriptor
	for _, d := range ds {
		if want[d.ID] {
			out = append(out, d)
		}
	}
	return out, nil
}

func expand(dashboards []descriptor, networks, windows []string) []target {
	var out []target
	for _, d := range dashboards {
		wins := d.Windows
		if len(windows) > 0 {
			wins = intersect(d.Windows, windows)
		}
		for _, n := range networks {
			for _, w := range wins {
				out = append(out, target{Dashboard: d.ID, Network: n, Window: w})
			}
		}
	}
	return out
}

func intersect(have, want []string) []string {
	set := map[string]bool{}
	for _, w := range want {
		set[w] = true
	}
	var out []string
	for _, h := range have {
		if set[h] {
			out = append(out, h)
		}
	}
	return out
}

func warm(client *http.Client, baseURL string, targets []target, concurrency int) []result {
	jobs := make(chan target)
	out := make(chan result)

	var wg sync.WaitGroup
	wg.Add(concurrency)
	for range concurrency {
		go func() {
			defer wg.Done()
			for tg := range jobs {
				out <- fetchOne(client, baseURL, tg)
			}
		}()
	}
	go func() {
		for _, tg := range targets {
			jobs <- tg
		}
		close(jobs)
		wg.Wait()
		close(out)
	}()

	var results []result
	for r := range out {
		results = append(results, r)
	}
	return results
}

func fetchOne(client *http.Client, baseURL string, tg target) result {
	u := fmt.Sprintf("%s/api/v1/dashboards/%s?network=%s&window=%s",
		strings.TrimRight(baseURL, "/"),
		url.PathEscape(tg.Dashboard),
		url.QueryEscape(tg.Network),
		url.QueryEscape(tg.Window))

	start := time.Now()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, u, nil)
	if err != nil {
		return result{Target: tg, Err: err.Error()}
	}
	resp, err := client.Do(req)
	elapsed := time.Since(start)
	r := result{Target: tg, Elapsed: elapsed, ElapsedMS: float64(elapsed.Microseconds()) / 1000.0}
	if err != nil {
		r.Err = err.Error()
		return r
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	r.Status = resp.StatusCode
	r.Outcome = resp.Header.Get("X-Cache-Outcome")
	if resp.StatusCode != http.StatusOK {
		r.Err = fmt.Sprintf("status=%d", resp.StatusCode)
	}
	return r
}

func summarize(start, end time.Time, results []result) summary {
	sort.Slice(results, func(i, j int) bool {
		a, b := results[i].Target, results[j].Target
		if a.Dashboard != b.Dashboard {
			return a.Dashboard < b.Dashboard
		}
		if a.Network != b.Network {
			return a.Network < b.Network
		}
		return a.Window < b.Window
	})

	s := summary{Start: start, End: end, Targets: len(results), Outcomes: map[string]int{}, Results: results}
	for _, r := range results {
		if r.Err != "" {
			s.Failures++
			continue
		}
		s.Outcomes[r.Outcome]++
	}
	return s
}

func writeSummary(path string, s summary) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return err
		}
	}
	f, err := os.Create(filepath.Clean(path))
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
