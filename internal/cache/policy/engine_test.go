package policy

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethpandaops/xatu-dashboard/internal/cache"
	"github.com/ethpandaops/xatu-dashboard/internal/cache/memstore"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Set(t time.Time) {
	f.mu.Lock()
	f.now = t
	f.mu.Unlock()
}

func (f *fakeClock) Add(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func newEngineForTest(store cache.Store) (*Engine, *fakeClock) {
	fc := &fakeClock{}
	fc.Set(time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC))
	e := New(Config{Store: store, Logger: slog.New(slog.DiscardHandler)})
	e.now = fc.Now
	return e, fc
}

func countingCompute(n *atomic.Int64, payload string, err error) ComputeFunc {
	return func(context.Context) ([]byte, error) {
		n.Add(1)
		if err != nil {
			return nil, err
		}
		return []byte(payload), nil
	}
}

func TestGetOrRefresh_SecondCallWithinIntervalServesCached(t *testing.T) {
	e, fc := newEngineForTest(memstore.New())
	ctx := context.Background()

	var n atomic.Int64
	f := countingCompute(&n, "v1", nil)

	ent, out, err := e.GetOrRefresh(ctx, "k", 3*time.Hour, false, f)
	if err != nil || out != OutcomeMiss || string(ent.Payload) != "v1" {
		t.Fatalf("first call: out=%s err=%v payload=%q", out, err, ent.Payload)
	}

	fc.Add(time.Hour)
	ent, out, err = e.GetOrRefresh(ctx, "k", 3*time.Hour, false, f)
	if err != nil || out != OutcomeHit || string(ent.Payload) != "v1" {
		t.Fatalf("second call: out=%s err=%v payload=%q", out, err, ent.Payload)
	}
	if got := n.Load(); got != 1 {
		t.Fatalf("compute invoked %d times, want 1", got)
	}
}

func TestGetOrRefresh_RecomputesOncePastInterval(t *testing.T) {
	e, fc := newEngineForTest(memstore.New())
	ctx := context.Background()

	var n atomic.Int64
	if _, _, err := e.GetOrRefresh(ctx, "k", 3*time.Hour, false, countingCompute(&n, "v1", nil)); err != nil {
		t.Fatalf("t=0: %v", err)
	}

	fc.Add(time.Hour)
	if _, out, err := e.GetOrRefresh(ctx, "k", 3*time.Hour, false, countingCompute(&n, "v2", nil)); err != nil || out != OutcomeHit {
		t.Fatalf("t=1h: out=%s err=%v", out, err)
	}

	fc.Add(3 * time.Hour)
	ent, out, err := e.GetOrRefresh(ctx, "k", 3*time.Hour, false, countingCompute(&n, "v2", nil))
	if err != nil || out != OutcomeStale {
		t.Fatalf("t=4h: out=%s err=%v", out, err)
	}
	if string(ent.Payload) != "v2" {
		t.Fatalf("t=4h payload=%q want v2", ent.Payload)
	}
	if got := n.Load(); got != 2 {
		t.Fatalf("compute invoked %d times, want 2", got)
	}
}

func TestGetOrRefresh_AgeEqualToIntervalIsStale(t *testing.T) {
	e, fc := newEngineForTest(memstore.New())
	ctx := context.Background()

	var n atomic.Int64
	f := countingCompute(&n, "v", nil)
	if _, _, err := e.GetOrRefresh(ctx, "k", time.Hour, false, f); err != nil {
		t.Fatalf("seed: %v", err)
	}

	fc.Add(time.Hour)
	if _, out, err := e.GetOrRefresh(ctx, "k", time.Hour, false, f); err != nil || out != OutcomeStale {
		t.Fatalf("at exactly interval: out=%s err=%v", out, err)
	}
	if got := n.Load(); got != 2 {
		t.Fatalf("compute invoked %d times, want 2", got)
	}
}

func TestGetOrRefresh_ForceAlwaysComputes(t *testing.T) {
	e, _ := newEngineForTest(memstore.New())
	ctx := context.Background()

	var n atomic.Int64
	f := countingCompute(&n, "v", nil)

	if _, out, _ := e.GetOrRefresh(ctx, "k", 3*time.Hour, false, f); out != OutcomeMiss {
		t.Fatalf("seed out=%s", out)
	}
	// entry is brand new, a forced call must still recompute
	if _, out, err := e.GetOrRefresh(ctx, "k", 3*time.Hour, true, f); err != nil || out != OutcomeForced {
		t.Fatalf("forced: out=%s err=%v", out, err)
	}
	if got := n.Load(); got != 2 {
		t.Fatalf("compute invoked %d times, want 2", got)
	}
}

func TestGetOrRefresh_FailedForcedRefreshPreservesEntry(t *testing.T) {
	e, _ := newEngineForTest(memstore.New())
	ctx := context.Background()

	var n atomic.Int64
	if _, _, err := e.GetOrRefresh(ctx, "k", 3*time.Hour, false, countingCompute(&n, "good", nil)); err != nil {
		t.Fatalf("seed: %v", err)
	}

	boom := errors.New("upstream gone")
	_, out, err := e.GetOrRefresh(ctx, "k", 3*time.Hour, true, countingCompute(&n, "", boom))
	if !errors.Is(err, boom) || out != OutcomeError {
		t.Fatalf("forced failure: out=%s err=%v", out, err)
	}

	ent, out, err := e.GetOrRefresh(ctx, "k", 3*time.Hour, false, countingCompute(&n, "", boom))
	if err != nil || out != OutcomeHit {
		t.Fatalf("after failed force: out=%s err=%v", out, err)
	}
	if string(ent.Payload) != "good" {
		t.Fatalf("payload=%q want %q", ent.Payload, "good")
	}
}

func TestGetOrRefresh_FailedMissSurfacesErrorAndCachesNothing(t *testing.T) {
	store := memstore.New()
	e, _ := newEngineForTest(store)
	ctx := context.Background()

	boom := errors.New("no data")
	var n atomic.Int64
	if _, _, err := e.GetOrRefresh(ctx, "k", time.Hour, false, countingCompute(&n, "", boom)); !errors.Is(err, boom) {
		t.Fatalf("err=%v want %v", err, boom)
	}
	if _, ok, _ := store.Get(ctx, "k"); ok {
		t.Fatal("failed compute must not be cached")
	}

	// the key is retried on the next call, errors are never cached
	if _, _, err := e.GetOrRefresh(ctx, "k", time.Hour, false, countingCompute(&n, "", boom)); !errors.Is(err, boom) {
		t.Fatalf("retry err=%v want %v", err, boom)
	}
	if got := n.Load(); got != 2 {
		t.Fatalf("compute invoked %d times, want 2", got)
	}
}

func TestGetOrRefresh_ConcurrentStaleCallsShareOneCompute(t *testing.T) {
	e, fc := newEngineForTest(memstore.New())
	ctx := context.Background()

	var n atomic.Int64
	seed := countingCompute(&n, "old", nil)
	if _, _, err := e.GetOrRefresh(ctx, "k", time.Hour, false, seed); err != nil {
		t.Fatalf("seed: %v", err)
	}
	fc.Add(2 * time.Hour)

	release := make(chan struct{})
	slow := func(context.Context) ([]byte, error) {
		n.Add(1)
		<-release
		return []byte("new"), nil
	}

	const callers = 8
	var wg sync.WaitGroup
	results := make([]string, callers)
	errs := make([]error, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ent, _, err := e.GetOrRefresh(ctx, "k", time.Hour, false, slow)
			results[i] = string(ent.Payload)
			errs[i] = err
		}()
	}

	// let every goroutine reach the flight before releasing the compute
	for n.Load() == 0 {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(10 * time.Millisecond)
	close(release)
	wg.Wait()

	for i := range callers {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if results[i] != "new" {
			t.Fatalf("caller %d payload=%q want %q", i, results[i], "new")
		}
	}
	if got := n.Load(); got != 1 {
		t.Fatalf("compute invoked %d times, want 1", got)
	}
}

func TestGetOrRefresh_StoreGetErrorDegradesToCompute(t *testing.T) {
	st := &flakyStore{Store: memstore.New(), failGet: true}
	e, _ := newEngineForTest(st)
	ctx := context.Background()

	var n atomic.Int64
	ent, out, err := e.GetOrRefresh(ctx, "k", time.Hour, false, countingCompute(&n, "v", nil))
	if err != nil || string(ent.Payload) != "v" {
		t.Fatalf("out=%s err=%v payload=%q", out, err, ent.Payload)
	}
	if got := n.Load(); got != 1 {
		t.Fatalf("compute invoked %d times, want 1", got)
	}
}

func TestGetOrRefresh_StoreSetErrorStillServesResult(t *testing.T) {
	st := &flakyStore{Store: memstore.New(), failSet: true}
	e, _ := newEngineForTest(st)
	ctx := context.Background()

	var n atomic.Int64
	ent, _, err := e.GetOrRefresh(ctx, "k", time.Hour, false, countingCompute(&n, "v", nil))
	if err != nil || string(ent.Payload) != "v" {
		t.Fatalf("err=%v payload=%q", err, ent.Payload)
	}
}

func TestInvalidate_RemovesPrefix(t *testing.T) {
	store := memstore.New()
	e, _ := newEngineForTest(store)
	ctx := context.Background()

	f := func(context.Context) ([]byte, error) { return []byte("v"), nil }
	for _, k := range []string{"v1:mainnet:users:-7d", "v1:mainnet:users:-31d", "v1:holesky:users:-7d"} {
		if _, _, err := e.GetOrRefresh(ctx, k, time.Hour, false, f); err != nil {
			t.Fatalf("seed %q: %v", k, err)
		}
	}

	n, err := e.Invalidate(ctx, "v1:mainnet:users:")
	if err != nil || n != 2 {
		t.Fatalf("Invalidate: n=%d err=%v", n, err)
	}
	if _, ok, _ := store.Get(ctx, "v1:holesky:users:-7d"); !ok {
		t.Fatal("other network entry must survive")
	}
}

type flakyStore struct {
	cache.Store
	failGet bool
	failSet bool
}

func (s *flakyStore) Get(ctx context.Context, key string) (cache.Entry, bool, error) {
	if s.failGet {
		return cache.Entry{}, false, errors.New("store down")
	}
	return s.Store.Get(ctx, key)
}

func (s *flakyStore) Set(ctx context.Context, key string, e cache.Entry) error {
	if s.failSet {
		return errors.New("store down")
	}
	return s.Store.Set(ctx, key, e)
}
