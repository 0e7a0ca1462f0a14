package xatu

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/parquet-go/parquet-go"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/ethpandaops/xatu-dashboard/internal/core/model"
	"github.com/ethpandaops/xatu-dashboard/internal/core/observability"
)

// fetchWorkers bounds concurrent day downloads within one window load.
const fetchWorkers = 4

type frameKey struct {
	network string
	table   string
	day     string
}

func (k frameKey) id() string {
	return k.network + "|" + k.table + "|" + k.day
}

// Source hands dashboards their rows for a window. It owns the decoded-frame
// LRU; everything below it (disk cache, downloads) lives on the Client.
type Source struct {
	client *Client
	frames *lru.Cache[frameKey, []model.BlockEvent]
	lag    time.Duration
	logger *slog.Logger

	now func() time.Time
	sf  singleflight.Group
}

func NewSource(client *Client, frameCap int, lag time.Duration, logger *slog.Logger) (*Source, error) {
	if frameCap <= 0 {
		frameCap = 32
	}
	frames, err := lru.New[frameKey, []model.BlockEvent](frameCap)
	if err != nil {
		return nil, fmt.Errorf("frame cache: %w", err)
	}
	return &Source{
		client: client,
		frames: frames,
		lag:    lag,
		logger: logger,
		now:    time.Now,
	}, nil
}

func truncDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Days lists the UTC days that can hold rows for iv, oldest first, capped by
// the availability lag: the lake publishes finished days only, so the last
// usable day trails "now" by the lag.
func (s *Source) Days(iv model.Interval) []time.Time {
	last := truncDay(s.now().Add(-s.lag))
	first := truncDay(iv.Start)
	end := truncDay(iv.End.Add(-time.Nanosecond))
	if end.After(last) {
		end = last
	}

	var days []time.Time
	for d := first; !d.After(end); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

// RowsForWindow returns the events for (network, table) inside iv. Day files
// are fetched over a bounded worker pool; a day the lake has not published,
// or one that fails persistently, is skipped. Only a fully empty window is an
// error.
func (s *Source) RowsForWindow(ctx context.Context, network, table string, iv model.Interval) ([]model.BlockEvent, error) {
	days := s.Days(iv)
	if len(days) == 0 {
		return nil, fmt.Errorf("%w: no published days intersect %s", model.ErrDataUnavailable, iv)
	}

	frames := make([][]model.BlockEvent, len(days))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchWorkers)
	for i, day := range days {
		g.Go(func() error {
			evs, err := s.dayFrame(gctx, network, table, day)
			if err != nil {
				if errors.Is(err, ErrDayMissing) {
					s.logger.Debug("day not published",
						"network", network, "table", table, "day", day.Format("2006-01-02"))
					return nil
				}
				s.logger.Warn("day load failed, skipping",
					"network", network, "table", table, "day", day.Format("2006-01-02"), "err", err)
				return nil
			}
			frames[i] = evs
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	total := 0
	for _, f := range frames {
		total += len(f)
	}
	out := make([]model.BlockEvent, 0, total)
	for _, f := range frames {
		for _, ev := range f {
			if iv.Contains(ev.EventDateTime) {
				out = append(out, ev)
			}
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %s/%s has no rows in %s", model.ErrDataUnavailable, network, table, iv)
	}
	return out, nil
}

// dayFrame returns the decoded events for one day, through the LRU. Loads of
// the same day collapse onto a single decode; dashboards share tables, so
// concurrent computes would otherwise download the same file twice.
func (s *Source) dayFrame(ctx context.Context, network, table string, day time.Time) ([]model.BlockEvent, error) {
	key := frameKey{network: network, table: table, day: day.UTC().Format("2006-01-02")}
	if evs, ok := s.frames.Get(key); ok {
		observability.IncFrameCache(true)
		return evs, nil
	}
	observability.IncFrameCache(false)

	v, err, _ := s.sf.Do(key.id(), func() (any, error) {
		if evs, ok := s.frames.Get(key); ok {
			return evs, nil
		}
		evs, err := s.loadDay(ctx, network, table, day)
		if err != nil {
			return nil, err
		}
		s.frames.Add(key, evs)
		observability.SetFrameCacheEntries(s.frames.Len())
		return evs, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]model.BlockEvent), nil
}

func (s *Source) loadDay(ctx context.Context, network, table string, day time.Time) ([]model.BlockEvent, error) {
	path, err := s.client.FetchDay(ctx, network, table, day)
	if err != nil {
		return nil, err
	}

	evs, err := parquet.ReadFile[model.BlockEvent](path)
	if err == nil {
		return evs, nil
	}

	// bad bytes on disk: drop the file and fetch once more
	s.logger.Warn("corrupt day file, refetching", "path", path, "err", err)
	if rerr := s.client.RemoveDay(network, table, day); rerr != nil {
		return nil, rerr
	}
	if path, err = s.client.FetchDay(ctx, network, table, day); err != nil {
		return nil, err
	}
	evs, err = parquet.ReadFile[model.BlockEvent](path)
	if err != nil {
		_ = s.client.RemoveDay(network, table, day)
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return evs, nil
}

// InvalidateDay drops the decoded frame and the raw file for one day. The
// landed-data listener calls this so the next compute sees the reissued file.
func (s *Source) InvalidateDay(network, table string, day time.Time) {
	key := frameKey{network: network, table: table, day: day.UTC().Format("2006-01-02")}
	s.frames.Remove(key)
	observability.SetFrameCacheEntries(s.frames.Len())
	if err := s.client.RemoveDay(network, table, day); err != nil {
		s.logger.Warn("remove day file",
			"network", network, "table", table, "day", key.day, "err", err)
	}
}
