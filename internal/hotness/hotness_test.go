package hotness

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/ethpandaops/xatu-dashboard/internal/cache/keys"
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

func (f *fakeClock) Add(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func newTracker(hl time.Duration) (*Tracker, *fakeClock) {
	fc := &fakeClock{now: time.Unix(0, 0).UTC()}
	tr := New(hl)
	tr.now = fc.Now
	return tr, fc
}

func almostEq(t *testing.T, got, want, eps float64) {
	t.Helper()
	if math.Abs(got-want) > eps {
		t.Fatalf("got=%g want=%g (eps=%g)", got, want, eps)
	}
}

func TestInc_AccumulatesWithoutElapsedTime(t *testing.T) {
	tr, _ := newTracker(time.Minute)

	key := "v1:mainnet:block-arrival:-7d"

	tr.Inc(key)
	almostEq(t, tr.Score(key), 1.0, 1e-9)

	tr.Inc(key)
	almostEq(t, tr.Score(key), 2.0, 1e-9)

	tr.Inc(key)
	almostEq(t, tr.Score(key), 3.0, 1e-9)
}

func TestScore_HalvesEveryHalfLife(t *testing.T) {
	hl := 2 * time.Second
	tr, fc := newTracker(hl)

	key := keys.Key("mainnet", "users", "-31d", "user=teku")

	tr.Inc(key)
	almostEq(t, tr.Score(key), 1.0, 1e-9)

	fc.Add(hl)
	almostEq(t, tr.Score(key), 0.5, 1e-6)

	fc.Add(hl)
	almostEq(t, tr.Score(key), 0.25, 1e-6)
}

func TestInc_ManyGoroutinesSameKey(t *testing.T) {
	tr, _ := newTracker(time.Minute)

	key := "v1:mainnet:nodes:-7d"
	const n = 256

	var wg sync.WaitGroup
	wg.Add(n)
	for range n {
		go func() {
			tr.Inc(key)
			wg.Done()
		}()
	}
	wg.Wait()

	almostEq(t, tr.Score(key), n, 1e-9)
}

func TestResetPrefix_DropsOnlyMatchingKeys(t *testing.T) {
	tr, _ := newTracker(time.Minute)

	tr.Inc(keys.Key("mainnet", "users", "-7d", ""))
	tr.Inc(keys.Key("mainnet", "users", "-31d", "user=teku"))
	tr.Inc(keys.Key("mainnet", "nodes", "-7d", ""))
	tr.Inc(keys.Key("holesky", "users", "-7d", ""))

	if got := tr.ResetPrefix(keys.Prefix("mainnet", "users")); got != 2 {
		t.Fatalf("reset count=%d want 2", got)
	}
	if got := tr.Score(keys.Key("mainnet", "users", "-7d", "")); got != 0 {
		t.Fatalf("score after reset=%g want 0", got)
	}
	if got := tr.Score(keys.Key("mainnet", "nodes", "-7d", "")); got <= 0 {
		t.Fatalf("unrelated dashboard was reset: score=%g", got)
	}
	if got := tr.Score(keys.Key("holesky", "users", "-7d", "")); got <= 0 {
		t.Fatalf("other network was reset: score=%g", got)
	}
	if got := tr.Size(); got != 2 {
		t.Fatalf("size=%d want 2", got)
	}
}

func TestDecay_Edges(t *testing.T) {
	if got := decay(0, 10, 60); got != 0 {
		t.Fatalf("zero score: got %g", got)
	}
	if got := decay(5, 0, 60); got != 5 {
		t.Fatalf("no elapsed time: got %g", got)
	}
	if got := decay(5, 10, 0); got != 5 {
		t.Fatalf("zero half-life: got %g", got)
	}
}

func TestSampled_DeterministicPerKey(t *testing.T) {
	key := "v1:mainnet:block-arrival:-7d"
	first := sampled(0.5, key)
	for range 10 {
		if got := sampled(0.5, key); got != first {
			t.Fatal("sampling decision changed between calls for the same key")
		}
	}
	if sampled(0, key) {
		t.Fatal("sample=0 must never log")
	}
	if !sampled(1, key) {
		t.Fatal("sample=1 must always log")
	}
}
