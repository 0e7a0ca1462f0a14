// Package policy decides when a cached dashboard payload is stale and must be
// recomputed. Refresh is lazy: nothing runs on a timer, an entry is only
// recomputed when the next request observes its age past the refresh interval.
package policy

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ethpandaops/xatu-dashboard/internal/cache"
	"github.com/ethpandaops/xatu-dashboard/internal/core/observability"
)

// Outcome classifies one GetOrRefresh call from the caller's point of view.
type Outcome string

const (
	OutcomeHit    Outcome = "hit"
	OutcomeMiss   Outcome = "miss"
	OutcomeStale  Outcome = "stale"
	OutcomeForced Outcome = "forced"
	OutcomeError  Outcome = "error"
)

// ComputeFunc produces a fresh payload for one cache key.
type ComputeFunc func(ctx context.Context) ([]byte, error)

type Config struct {
	Store  cache.Store
	Logger *slog.Logger

	// OpTimeout caps individual store operations; zero means no cap.
	OpTimeout time.Duration
}

type Engine struct {
	store     cache.Store
	logger    *slog.Logger
	opTimeout time.Duration

	now func() time.Time
	sf  singleflight.Group
}

func New(cfg Config) *Engine {
	lg := cfg.Logger
	if lg == nil {
		lg = slog.Default()
	}
	return &Engine{
		store:     cfg.Store,
		logger:    lg,
		opTimeout: cfg.OpTimeout,
		now:       time.Now,
	}
}

type flightResult struct {
	entry    cache.Entry
	computed bool
}

// GetOrRefresh returns the entry for key, recomputing it when no entry
// exists, the entry's age has reached refresh, or force is set. Concurrent
// callers for the same key share a single compute. When compute fails the
// previous entry stays in the store untouched and the error is returned.
func (e *Engine) GetOrRefresh(
	ctx context.Context,
	key string,
	refresh time.Duration,
	force bool,
	compute ComputeFunc,
) (cache.Entry, Outcome, error) {
	outcome := OutcomeMiss
	if force {
		outcome = OutcomeForced
	} else {
		ent, ok := e.lookup(ctx, key)
		if ok && e.fresh(ent, refresh) {
			observability.IncCacheResult(string(OutcomeHit))
			return ent, OutcomeHit, nil
		}
		if ok {
			outcome = OutcomeStale
		}
	}

	v, err, _ := e.sf.Do(key, func() (any, error) {
		// a flight that just finished may have stored a fresh entry
		// while this caller queued behind it
		if !force {
			if ent, ok := e.lookup(ctx, key); ok && e.fresh(ent, refresh) {
				return flightResult{entry: ent}, nil
			}
		}

		payload, cerr := compute(ctx)
		if cerr != nil {
			return nil, fmt.Errorf("compute %q: %w", key, cerr)
		}

		ent := cache.Entry{Payload: payload, ComputedAt: e.now()}

		// the write is detached from request cancellation so a result
		// computed for one caller still lands for the next
		wctx, cancel := e.opCtx(context.WithoutCancel(ctx))
		defer cancel()
		if serr := e.store.Set(wctx, key, ent); serr != nil {
			e.logger.Warn("cache set error, serving uncached result", "key", key, "err", serr)
		}
		return flightResult{entry: ent, computed: true}, nil
	})
	if err != nil {
		observability.IncCacheResult(string(OutcomeError))
		return cache.Entry{}, OutcomeError, err
	}

	fr := v.(flightResult)
	if !fr.computed {
		outcome = OutcomeHit
	} else {
		e.logger.Debug("cache refresh", "key", key, "outcome", string(outcome), "refresh", refresh.String())
	}
	observability.IncCacheResult(string(outcome))
	return fr.entry, outcome, nil
}

// Peek returns the stored entry without refreshing it, regardless of age.
func (e *Engine) Peek(ctx context.Context, key string) (cache.Entry, bool) {
	return e.lookup(ctx, key)
}

// Invalidate drops every entry under prefix and returns how many were removed.
func (e *Engine) Invalidate(ctx context.Context, prefix string) (int, error) {
	rctx, cancel := e.opCtx(ctx)
	defer cancel()
	n, err := e.store.DelPrefix(rctx, prefix)
	if err != nil {
		return n, fmt.Errorf("invalidate prefix %q: %w", prefix, err)
	}
	return n, nil
}

func (e *Engine) fresh(ent cache.Entry, refresh time.Duration) bool {
	return ent.Age(e.now()) < refresh
}

func (e *Engine) lookup(ctx context.Context, key string) (cache.Entry, bool) {
	rctx, cancel := e.opCtx(ctx)
	defer cancel()
	ent, ok, err := e.store.Get(rctx, key)
	if err != nil {
		e.logger.Warn("cache get error, continuing with compute path", "key", key, "err", err)
		return cache.Entry{}, false
	}
	return ent, ok
}

func (e *Engine) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.opTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.opTimeout)
}
