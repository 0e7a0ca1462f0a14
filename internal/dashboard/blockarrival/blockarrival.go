// Package blockarrival computes the block arrival dashboard: how quickly
// blocks propagate across the network, broken down per block, per client
// implementation, per country and per hour of day.
package blockarrival

import (
	"encoding/json"
	"time"

	"github.com/ethpandaops/xatu-dashboard/internal/aggregate"
	"github.com/ethpandaops/xatu-dashboard/internal/core/model"
	"github.com/ethpandaops/xatu-dashboard/internal/dashboard"
	"github.com/ethpandaops/xatu-dashboard/internal/registry"
)

// Table is the lake table every propagation dashboard reads.
const Table = "beacon_api_eth_v1_events_block"

func init() {
	dashboard.Register(dashboard.Dashboard{
		Descriptor: model.Descriptor{
			ID:          "block-arrival",
			Title:       "Block Arrival Times",
			Description: "Block propagation latency by block, client, country and hour",
			Table:       Table,
			Windows:     registry.WindowLabels(),
			Refresh:     registry.DefaultRefreshInterval,
		},
		Compute: compute,
	})
}

// Payload is the full dashboard result. Per-block rows stay internal; only
// aggregates are serialized, so payload size does not grow with the window.
type Payload struct {
	Network     string                      `json:"network"`
	Window      string                      `json:"window"`
	From        time.Time                   `json:"from"`
	To          time.Time                   `json:"to"`
	Summary     Summary                     `json:"summary"`
	Percentiles []dashboard.PercentilePoint `json:"percentiles"`
	Histogram   []aggregate.HistogramBin    `json:"histogram"`
	Clients     Clients                     `json:"clients"`
	Geo         Geo                         `json:"geo"`
	Hourly      Hourly                      `json:"hourly"`
}

type Summary struct {
	UniqueBlocks        int     `json:"unique_blocks"`
	TotalEvents         int     `json:"total_events"`
	AvgEventsPerBlock   float64 `json:"avg_events_per_block"`
	MedianPropagationMS float64 `json:"median_propagation_ms"`
}

// Clients covers the per-implementation sections. Chart repeats the
// Performance rows that clear the sample threshold, so renderers draw it
// without re-deriving the cutoff.
type Clients struct {
	Counts      []Count         `json:"counts"`
	Performance []ClientPerf    `json:"performance"`
	Chart       []ClientPerf    `json:"chart"`
	CDF         []CDFSeries     `json:"cdf"`
	Percentiles []PercentileRow `json:"percentiles"`
}

type Geo struct {
	Counts      []Count         `json:"counts"`
	Performance []CountryPerf   `json:"performance"`
	CDF         []CDFSeries     `json:"cdf"`
	Percentiles []PercentileRow `json:"percentiles"`
}

type Count struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type ClientPerf struct {
	Name           string  `json:"name"`
	MeanMS         float64 `json:"mean_ms"`
	MedianMS       float64 `json:"median_ms"`
	P95MS          float64 `json:"p95_ms"`
	SampleCount    int     `json:"sample_count"`
	SlowPercentage float64 `json:"slow_percentage"`
}

type CountryPerf struct {
	Name        string  `json:"name"`
	MedianMS    float64 `json:"median_ms"`
	SampleCount int     `json:"sample_count"`
}

type CDFSeries struct {
	Name   string               `json:"name"`
	Points []aggregate.CDFPoint `json:"points"`
}

type PercentileRow struct {
	Name        string  `json:"name"`
	P50MS       float64 `json:"p50_ms"`
	P90MS       float64 `json:"p90_ms"`
	P99MS       float64 `json:"p99_ms"`
	SampleCount int     `json:"sample_count"`
}

type HourlyPoint struct {
	Hour        int     `json:"hour"`
	MeanMinMS   float64 `json:"mean_min_ms"`
	MedianMinMS float64 `json:"median_min_ms"`
	P90MinMS    float64 `json:"p90_min_ms"`
	BlockCount  int     `json:"block_count"`
}

type Hourly struct {
	Hours       []HourlyPoint `json:"hours"`
	Correlation float64       `json:"correlation"`
	Verdict     string        `json:"verdict"`
}

func compute(rows []model.BlockEvent, in dashboard.Input) ([]byte, error) {
	if len(rows) == 0 {
		return nil, model.ErrDataUnavailable
	}

	capped := make([]float64, len(rows))
	for i, ev := range rows {
		capped[i] = aggregate.CappedMS(ev.PropagationSlotStartDiff)
	}

	blocks := blockStats(rows)
	mins := make([]float64, len(blocks))
	for i, b := range blocks {
		mins[i] = b.minMS
	}

	p := Payload{
		Network:     in.Network,
		Window:      in.Window.Label,
		From:        in.Interval.Start,
		To:          in.Interval.End,
		Summary:     summarize(blocks, len(rows)),
		Percentiles: percentileTable(mins),
		Histogram:   aggregate.Histogram(mins, histogramBins),
		Clients:     clientSections(rows, capped),
		Geo:         geoSections(rows),
		Hourly:      hourlyTrends(blocks),
	}
	return json.Marshal(p)
}
