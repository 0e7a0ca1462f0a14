package dashboard

import (
	"slices"

	"github.com/ethpandaops/xatu-dashboard/internal/aggregate"
	"github.com/ethpandaops/xatu-dashboard/internal/core/model"
)

// deep-dive histograms drop the long tail and bin finer than the
// block-level views
const (
	deepDiveHistogramMaxMS = 5000
	deepDiveHistogramBins  = 50
)

var (
	summaryQuantiles = []float64{0.1, 0.25, 0.5, 0.75, 0.9, 0.95, 0.99}
	summaryLabels    = []string{"p10", "p25", "p50", "p75", "p90", "p95", "p99"}
)

type PercentilePoint struct {
	Label   string  `json:"label"`
	ValueMS float64 `json:"value_ms"`
}

// PropagationSummary describes one cohort's raw propagation distribution.
// Unlike the block-level views the values are not capped; the histogram alone
// drops readings past 5000 ms.
type PropagationSummary struct {
	MinMS       float64                  `json:"min_ms"`
	MeanMS      float64                  `json:"mean_ms"`
	MedianMS    float64                  `json:"median_ms"`
	P90MS       float64                  `json:"p90_ms"`
	Percentiles []PercentilePoint        `json:"percentiles"`
	Histogram   []aggregate.HistogramBin `json:"histogram"`
}

func SummarizePropagation(rows []model.BlockEvent) PropagationSummary {
	if len(rows) == 0 {
		return PropagationSummary{}
	}

	vals := make([]float64, len(rows))
	var display []float64
	for i, ev := range rows {
		v := float64(ev.PropagationSlotStartDiff)
		vals[i] = v
		if v < deepDiveHistogramMaxMS {
			display = append(display, v)
		}
	}

	qs := aggregate.Quantiles(vals, summaryQuantiles)
	pts := make([]PercentilePoint, len(qs))
	for i, q := range qs {
		pts[i] = PercentilePoint{Label: summaryLabels[i], ValueMS: aggregate.Round(q, 2)}
	}

	return PropagationSummary{
		MinMS:       aggregate.Round(slices.Min(vals), 2),
		MeanMS:      aggregate.Round(aggregate.Mean(vals), 2),
		MedianMS:    aggregate.Round(aggregate.Median(vals), 2),
		P90MS:       aggregate.Round(aggregate.Quantile(vals, 0.9), 2),
		Percentiles: pts,
		Histogram:   aggregate.Histogram(display, deepDiveHistogramBins),
	}
}
