// Package kafka consumes data-landed events and drops the cached state they
// touch. The runner never recomputes anything; the next dashboard access does,
// so lazy refresh semantics survive invalidation.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ethpandaops/xatu-dashboard/internal/cache/keys"
	"github.com/ethpandaops/xatu-dashboard/internal/core/observability"
	"github.com/ethpandaops/xatu-dashboard/internal/dashboard"
	"github.com/ethpandaops/xatu-dashboard/internal/invalidation"
	"github.com/ethpandaops/xatu-dashboard/internal/registry"
)

// Invalidator drops cached dashboard results under a key prefix.
type Invalidator interface {
	Invalidate(ctx context.Context, prefix string) (int, error)
}

// FrameDropper drops the decoded frame and raw file for one lake day.
type FrameDropper interface {
	InvalidateDay(network, table string, day time.Time)
}

// HeatResetter zeroes request-heat scores under a cache key prefix.
type HeatResetter interface {
	ResetPrefix(prefix string) int
}

type Runner struct {
	log    *slog.Logger
	cfg    Config
	engine Invalidator
	frames FrameDropper
	heat   HeatResetter
	ms     *metricSet
	seen   *tsDedupe

	assigned atomic.Bool
	assignMu sync.RWMutex
	assign   map[int32]struct{}

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

type Options struct {
	Logger   *slog.Logger
	Register prometheus.Registerer

	// Heat, when set, is reset alongside the cached entries it scored.
	Heat HeatResetter
}

func New(cfg Config, engine Invalidator, frames FrameDropper, opts Options) *Runner {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Runner{
		log:    opts.Logger,
		cfg:    cfg,
		engine: engine,
		frames: frames,
		heat:   opts.Heat,
		ms:     newMetricSet(opts.Register),
		seen:   newTSDedupe(8192),
		assign: map[int32]struct{}{},
	}
}

func (r *Runner) Start(ctx context.Context) error {
	if !r.cfg.Enabled {
		r.log.Info("invalidation runner disabled")
		return nil
	}
	if r.engine == nil || r.frames == nil {
		return errors.New("kafka runner: engine and frame dropper are required")
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	cfg.Consumer.Group.Session.Timeout = r.cfg.SessionTimeout
	cfg.Consumer.Group.Heartbeat.Interval = r.cfg.Heartbeat
	cfg.Consumer.Group.Rebalance.Timeout = r.cfg.RebalanceTimeout
	if r.cfg.InitialOldest {
		cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	} else {
		cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	}
	cfg.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(r.cfg.Brokers, r.cfg.GroupID, cfg)
	if err != nil {
		return fmt.Errorf("consumer group: %w", err)
	}

	h := &groupHandler{
		setup: func(sess sarama.ConsumerGroupSession) {
			claims := sess.Claims()
			r.assignMu.Lock()
			r.assigned.Store(true)
			r.assign = map[int32]struct{}{}
			for _, parts := range claims {
				for _, p := range parts {
					r.assign[p] = struct{}{}
				}
			}
			r.assignMu.Unlock()
		},
		cleanup: func(sarama.ConsumerGroupSession) {
			r.assignMu.Lock()
			r.assigned.Store(false)
			r.assign = map[int32]struct{}{}
			r.assignMu.Unlock()
		},
		process: r.handleMessage,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			if err := group.Close(); err != nil {
				r.log.Error("kafka consumer group close", "err", err)
			}
		}()

		for {
			if err := group.Consume(ctx, []string{r.cfg.Topic}, h); err != nil {
				r.log.Error("kafka consume error", "err", err)
				select {
				case <-time.After(2 * time.Second):
				case <-ctx.Done():
					return
				}
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for err := range group.Errors() {
			r.log.Error("kafka group error", "err", err)
		}
	}()

	r.log.Info("kafka invalidation runner started",
		"topic", r.cfg.Topic, "group", r.cfg.GroupID, "brokers", r.cfg.Brokers)
	return nil
}

func (r *Runner) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
	r.log.Info("kafka invalidation runner stopped")
}

func (r *Runner) Readiness() (ready bool, detail string) {
	if !r.assigned.Load() {
		return false, "awaiting partition assignment"
	}
	r.assignMu.RLock()
	defer r.assignMu.RUnlock()
	parts := make([]int, 0, len(r.assign))
	for p := range r.assign {
		parts = append(parts, int(p))
	}
	sort.Ints(parts)
	return true, fmt.Sprintf("partitions %v", parts)
}

// ProcessOne applies a single raw message; the consume loop and integration
// tests share it.
func (r *Runner) ProcessOne(ctx context.Context, msg *sarama.ConsumerMessage) error {
	return r.handleMessage(ctx, msg)
}

// handleMessage applies one event. Malformed or irrelevant messages are
// dropped rather than returned as errors; an error here parks the claim on
// the same message, which must be reserved for retryable store failures.
func (r *Runner) handleMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	start := time.Now()

	if !msg.Timestamp.IsZero() {
		r.ms.lagGauge.Set(time.Since(msg.Timestamp).Seconds())
	}

	var ev invalidation.Event
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		r.drop("decode", err)
		return nil
	}
	if err := ev.Validate(); err != nil {
		r.drop("validate", err)
		return nil
	}
	if !registry.IsNetwork(ev.Network) {
		r.ms.apply.WithLabelValues("skip_network").Inc()
		r.ms.msgs.WithLabelValues("ok").Inc()
		r.log.Debug("event for unserved network", "network", ev.Network)
		return nil
	}
	if r.seen.seen(ev.Key(), ev.TS) {
		r.ms.apply.WithLabelValues("skip_duplicate").Inc()
		r.ms.msgs.WithLabelValues("ok").Inc()
		return nil
	}

	err := r.apply(ctx, ev)
	observability.ObserveInvalidation(ev.Op, err)
	r.ms.proc.WithLabelValues(ev.Op).Observe(time.Since(start).Seconds())
	if err != nil {
		r.ms.msgs.WithLabelValues("error").Inc()
		return err
	}
	r.seen.mark(ev.Key(), ev.TS)
	r.ms.msgs.WithLabelValues("ok").Inc()
	return nil
}

func (r *Runner) drop(stage string, err error) {
	r.ms.msgs.WithLabelValues("error").Inc()
	r.log.Warn("invalidation message dropped", "stage", stage, "err", err)
}

// apply drops the day's decoded frame and raw file, then every cached result
// of the dashboards reading the event's table on that network. All ops get
// the same treatment; for prune the data is simply gone on refetch.
func (r *Runner) apply(ctx context.Context, ev invalidation.Event) error {
	day, err := ev.Day()
	if err != nil {
		return err
	}
	r.frames.InvalidateDay(ev.Network, ev.Table, day)

	removed := 0
	for _, d := range dashboard.All() {
		if d.Table != ev.Table {
			continue
		}
		prefix := keys.Prefix(ev.Network, d.ID)
		n, derr := r.engine.Invalidate(ctx, prefix)
		if derr != nil {
			return fmt.Errorf("invalidate %s/%s: %w", ev.Network, d.ID, derr)
		}
		removed += n
		if r.heat != nil {
			r.heat.ResetPrefix(prefix)
		}
	}
	r.ms.apply.WithLabelValues("delete").Add(float64(removed))
	r.log.Info("cache invalidated",
		"op", ev.Op, "network", ev.Network, "table", ev.Table, "date", ev.Date, "entries", removed)
	return nil
}

type groupHandler struct {
	setup   func(sarama.ConsumerGroupSession)
	cleanup func(sarama.ConsumerGroupSession)
	process func(context.Context, *sarama.ConsumerMessage) error
}

func (h *groupHandler) Setup(sess sarama.ConsumerGroupSession) error {
	if h.setup != nil {
		h.setup(sess)
	}
	return nil
}

func (h *groupHandler) Cleanup(sess sarama.ConsumerGroupSession) error {
	if h.cleanup != nil {
		h.cleanup(sess)
	}
	return nil
}

func (h *groupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := sess.Context()
	for msg := range claim.Messages() {
		if err := h.process(ctx, msg); err != nil {
			return err
		}
		sess.MarkMessage(msg, "")
	}
	return nil
}
