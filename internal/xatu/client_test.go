package xatu

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestDayURL_UnpaddedMonthAndDay(t *testing.T) {
	c := NewClient("https://data.example.org/xatu/", "", testLogger())

	day := time.Date(2026, 3, 7, 0, 0, 0, 0, time.UTC)
	got := c.DayURL("mainnet", "beacon_api_eth_v1_events_block", day)
	want := "https://data.example.org/xatu/mainnet/databases/default/beacon_api_eth_v1_events_block/2026/3/7.parquet"
	if got != want {
		t.Fatalf("DayURL=%q want %q", got, want)
	}

	day = time.Date(2026, 11, 23, 0, 0, 0, 0, time.UTC)
	got = c.DayURL("sepolia", "beacon_api_eth_v1_events_block", day)
	if !strings.HasSuffix(got, "/2026/11/23.parquet") {
		t.Fatalf("DayURL=%q, want trailing /2026/11/23.parquet", got)
	}
}

func TestFetchDay_DownloadsOnceThenServesFromDisk(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte("parquet-bytes"))
	}))
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	c := NewClient(srv.URL, dir, testLogger())
	ctx := context.Background()
	day := time.Date(2026, 8, 19, 0, 0, 0, 0, time.UTC)

	path, err := c.FetchDay(ctx, "mainnet", "beacon_api_eth_v1_events_block", day)
	if err != nil {
		t.Fatalf("FetchDay: %v", err)
	}
	wantPath := filepath.Join(dir, "mainnet_beacon_api_eth_v1_events_block_2026-08-19.parquet")
	if path != wantPath {
		t.Fatalf("path=%q want %q", path, wantPath)
	}
	b, err := os.ReadFile(path)
	if err != nil || string(b) != "parquet-bytes" {
		t.Fatalf("on-disk content=%q err=%v", b, err)
	}

	if _, err := c.FetchDay(ctx, "mainnet", "beacon_api_eth_v1_events_block", day); err != nil {
		t.Fatalf("second FetchDay: %v", err)
	}
	if n := hits.Load(); n != 1 {
		t.Fatalf("server hit %d times, want 1", n)
	}
}

func TestFetchDay_404IsDayMissing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	c := NewClient(srv.URL, dir, testLogger())
	day := time.Date(2026, 8, 19, 0, 0, 0, 0, time.UTC)

	_, err := c.FetchDay(context.Background(), "mainnet", "beacon_api_eth_v1_events_block", day)
	if !errors.Is(err, ErrDayMissing) {
		t.Fatalf("err=%v want ErrDayMissing", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("missing day must not leave files, found %d", len(entries))
	}
}

func TestFetchDay_ServerErrorSurfacesStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream busted", http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL, t.TempDir(), testLogger())
	day := time.Date(2026, 8, 19, 0, 0, 0, 0, time.UTC)

	_, err := c.FetchDay(context.Background(), "mainnet", "beacon_api_eth_v1_events_block", day)
	if err == nil || errors.Is(err, ErrDayMissing) {
		t.Fatalf("err=%v, want non-404 failure", err)
	}
	if !strings.Contains(err.Error(), "status=502") {
		t.Fatalf("err=%v, want status in message", err)
	}
}

func TestRemoveDay_AbsentFileIsFine(t *testing.T) {
	c := NewClient("http://unused", t.TempDir(), testLogger())
	day := time.Date(2026, 8, 19, 0, 0, 0, 0, time.UTC)
	if err := c.RemoveDay("mainnet", "tbl", day); err != nil {
		t.Fatalf("RemoveDay on absent file: %v", err)
	}
}
