package hotness

import (
	"log/slog"

	"github.com/cespare/xxhash/v2"

	"github.com/ethpandaops/xatu-dashboard/internal/core/observability"
)

// Instrumented couples a Tracker with the tracked-keys gauge and hot-key
// threshold logging.
type Instrumented struct {
	inner     *Tracker
	threshold float64
	sample    float64
	log       *slog.Logger
}

// Instrument wraps t. threshold <= 0 disables hot-key logging; sample bounds
// how many of those log lines are emitted (0.01 keeps one key in a hundred).
func Instrument(t *Tracker, threshold, sample float64, logger *slog.Logger) *Instrumented {
	if logger == nil {
		logger = slog.Default()
	}
	return &Instrumented{inner: t, threshold: threshold, sample: sample, log: logger}
}

func (w *Instrumented) Inc(key string) {
	w.inner.Inc(key)
	if w.threshold > 0 {
		if score := w.inner.Score(key); score >= w.threshold && sampled(w.sample, key) {
			w.log.Info("hot key above threshold", "key", key, "score", score)
		}
	}
	observability.SetHotTrackedKeys(w.inner.Size())
}

func (w *Instrumented) ResetPrefix(prefix string) int {
	n := w.inner.ResetPrefix(prefix)
	observability.SetHotTrackedKeys(w.inner.Size())
	return n
}

func (w *Instrumented) Score(key string) float64 { return w.inner.Score(key) }

// sampled admits a deterministic slice of the key space, so the same hot key
// either always logs or never does instead of flapping.
func sampled(sample float64, key string) bool {
	if sample <= 0 {
		return false
	}
	if sample >= 1 {
		return true
	}
	const denom = 10000
	threshold := uint64(sample*denom + 0.5)
	if threshold == 0 {
		return false
	}
	return xxhash.Sum64String(key)%denom < threshold
}
