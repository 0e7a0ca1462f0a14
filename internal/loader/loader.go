// Package loader turns one dashboard request into a cached JSON payload. It
// validates the request coordinates, resolves the time window, and runs the
// dashboard's compute through the cache policy engine.
package loader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/ethpandaops/xatu-dashboard/internal/cache/keys"
	"github.com/ethpandaops/xatu-dashboard/internal/cache/policy"
	"github.com/ethpandaops/xatu-dashboard/internal/core/config"
	"github.com/ethpandaops/xatu-dashboard/internal/core/model"
	"github.com/ethpandaops/xatu-dashboard/internal/core/observability"
	"github.com/ethpandaops/xatu-dashboard/internal/dashboard"
	"github.com/ethpandaops/xatu-dashboard/internal/registry"
	"github.com/ethpandaops/xatu-dashboard/internal/usage"
)

// Source yields the event rows a dashboard computes over.
type Source interface {
	RowsForWindow(ctx context.Context, network, table string, iv model.Interval) ([]model.BlockEvent, error)
}

// Hotness scores cache keys by request rate.
type Hotness interface {
	Inc(key string)
}

// UsagePublisher records one event per served dashboard.
type UsagePublisher interface {
	Publish(ev usage.Event)
}

// Result is one dashboard payload together with how the cache served it.
type Result struct {
	Payload    []byte
	ComputedAt time.Time
	Outcome    policy.Outcome
}

type Loader struct {
	engine *policy.Engine
	source Source
	cfg    config.Config
	logger *slog.Logger

	hot Hotness
	pub UsagePublisher

	now func() time.Time // for tests
}

type Option func(*Loader)

// WithHotness bumps the request-heat score of every valid request's cache key.
func WithHotness(h Hotness) Option {
	return func(l *Loader) { l.hot = h }
}

// WithUsage publishes a usage event for every served dashboard.
func WithUsage(p UsagePublisher) Option {
	return func(l *Loader) { l.pub = p }
}

func New(engine *policy.Engine, source Source, cfg config.Config, logger *slog.Logger, opts ...Option) *Loader {
	l := &Loader{
		engine: engine,
		source: source,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
	for _, f := range opts {
		f(l)
	}
	return l
}

// Load serves req from cache or recomputes it, per the policy engine. Invalid
// coordinates fail before any data is read. The window is re-anchored at "now"
// on every recompute, so a refreshed entry always covers the trailing period.
func (l *Loader) Load(ctx context.Context, req model.Request) (*Result, error) {
	d, ok := dashboard.Lookup(req.Dashboard)
	if !ok {
		return nil, fmt.Errorf("%w: %q", model.ErrUnknownDashboard, req.Dashboard)
	}
	if !registry.IsNetwork(req.Network) {
		return nil, fmt.Errorf("%w: %q", model.ErrUnknownNetwork, req.Network)
	}

	label := req.Window
	if label == "" {
		label = registry.DefaultWindow().Label
	}
	win, ok := registry.WindowByLabel(label)
	if !ok || !d.SupportsWindow(label) {
		return nil, fmt.Errorf("%w: %q", model.ErrInvalidWindow, label)
	}

	params, err := url.ParseQuery(req.Params)
	if err != nil {
		return nil, fmt.Errorf("parse params %q: %w", req.Params, err)
	}

	refresh := l.cfg.Refresh(d.ID, d.Refresh)
	force := req.Force && l.cfg.DevMode
	key := keys.Key(req.Network, d.ID, win.Label, req.Params)

	if l.hot != nil {
		l.hot.Inc(key)
	}

	start := time.Now()
	ent, outcome, err := l.engine.GetOrRefresh(ctx, key, refresh, force, func(cctx context.Context) ([]byte, error) {
		return l.compute(cctx, d, req.Network, win, params)
	})
	if err != nil {
		return nil, err
	}

	if l.pub != nil {
		l.pub.Publish(usage.Event{
			Dashboard: d.ID,
			Network:   req.Network,
			Window:    win.Label,
			Outcome:   string(outcome),
			ElapsedMS: time.Since(start).Milliseconds(),
			TS:        time.Now().UTC(),
		})
	}

	l.logger.Debug("dashboard served",
		"dashboard", d.ID, "network", req.Network, "window", win.Label,
		"outcome", string(outcome), "bytes", len(ent.Payload))
	return &Result{Payload: ent.Payload, ComputedAt: ent.ComputedAt, Outcome: outcome}, nil
}

func (l *Loader) compute(ctx context.Context, d dashboard.Dashboard, network string, win model.Window, params url.Values) ([]byte, error) {
	iv := win.Resolve(l.now())
	start := l.now()

	rows, err := l.source.RowsForWindow(ctx, network, d.Table, iv)
	if err != nil {
		observability.ObserveComputeDuration(d.ID, network, err, time.Since(start).Seconds())
		return nil, err
	}

	payload, err := d.Compute(rows, dashboard.Input{
		Network:  network,
		Window:   win,
		Interval: iv,
		Params:   params,
	})
	observability.ObserveComputeDuration(d.ID, network, err, time.Since(start).Seconds())
	if err != nil {
		if errors.Is(err, model.ErrDataUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %v", model.ErrCompute, d.ID, err)
	}
	return payload, nil
}
