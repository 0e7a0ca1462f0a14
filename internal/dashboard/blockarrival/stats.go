package blockarrival

import (
	"math"
	"slices"
	"sort"

	"github.com/ethpandaops/xatu-dashboard/internal/aggregate"
	"github.com/ethpandaops/xatu-dashboard/internal/core/model"
	"github.com/ethpandaops/xatu-dashboard/internal/dashboard"
)

const (
	histogramBins = 30
	topClients    = 5
	topCountries  = 10
	maxCountRows  = 10
)

var (
	tableQuantiles = []float64{0.1, 0.25, 0.5, 0.75, 0.9, 0.95, 0.99}
	tableLabels    = []string{"p10", "p25", "p50", "p75", "p90", "p95", "p99"}
)

// blockStat folds the observations of one block. Several clients report the
// same block, so distributions over blocks use these, not raw events.
type blockStat struct {
	minMS    float64
	meanMS   float64
	medianMS float64
	p90MS    float64
	count    int
	hour     int
}

func blockStats(rows []model.BlockEvent) []blockStat {
	groups := aggregate.GroupBy(rows, model.BlockEvent.BlockID)
	out := make([]blockStat, 0, len(groups))
	for _, evs := range groups {
		vals := cappedOf(evs)
		out = append(out, blockStat{
			minMS:    slices.Min(vals),
			meanMS:   aggregate.Mean(vals),
			medianMS: aggregate.Median(vals),
			p90MS:    aggregate.Quantile(vals, 0.9),
			count:    len(evs),
			hour:     evs[0].EventDateTime.UTC().Hour(),
		})
	}
	return out
}

func cappedOf(evs []model.BlockEvent) []float64 {
	vals := make([]float64, len(evs))
	for i, ev := range evs {
		vals[i] = aggregate.CappedMS(ev.PropagationSlotStartDiff)
	}
	return vals
}

func summarize(blocks []blockStat, events int) Summary {
	medians := make([]float64, len(blocks))
	for i, b := range blocks {
		medians[i] = b.medianMS
	}
	return Summary{
		UniqueBlocks:        len(blocks),
		TotalEvents:         events,
		AvgEventsPerBlock:   aggregate.Round(float64(events)/float64(len(blocks)), 2),
		MedianPropagationMS: aggregate.Round(aggregate.Median(medians), 2),
	}
}

func percentileTable(mins []float64) []dashboard.PercentilePoint {
	vals := aggregate.Quantiles(mins, tableQuantiles)
	out := make([]dashboard.PercentilePoint, len(vals))
	for i, v := range vals {
		out[i] = dashboard.PercentilePoint{Label: tableLabels[i], ValueMS: aggregate.Round(v, 2)}
	}
	return out
}

// chartFloor is the minimum sample count for a group to appear in comparison
// charts: at least 10 events and at least 1% of the window.
func chartFloor(total int) float64 {
	return math.Max(10, float64(total)*0.01)
}

func clientSections(rows []model.BlockEvent, capped []float64) Clients {
	slowGate := aggregate.Quantile(capped, 0.75)
	groups := aggregate.GroupBy(rows, func(ev model.BlockEvent) string { return ev.MetaConsensusImpl })

	counts := countGroups(groups)
	perf := make([]ClientPerf, 0, len(groups))
	for name, evs := range groups {
		vals := cappedOf(evs)
		slow := 0
		for _, v := range vals {
			if v > slowGate {
				slow++
			}
		}
		perf = append(perf, ClientPerf{
			Name:           name,
			MeanMS:         aggregate.Round(aggregate.Mean(vals), 2),
			MedianMS:       aggregate.Round(aggregate.Median(vals), 2),
			P95MS:          aggregate.Round(aggregate.Quantile(vals, 0.95), 2),
			SampleCount:    len(evs),
			SlowPercentage: aggregate.Round(float64(slow)/float64(len(vals))*100, 1),
		})
	}
	sort.Slice(perf, func(i, j int) bool {
		if perf[i].MedianMS != perf[j].MedianMS {
			return perf[i].MedianMS < perf[j].MedianMS
		}
		return perf[i].Name < perf[j].Name
	})

	floor := chartFloor(len(rows))
	chart := make([]ClientPerf, 0, len(perf))
	for _, p := range perf {
		if float64(p.SampleCount) > floor {
			chart = append(chart, p)
		}
	}

	top := topNames(counts, topClients)
	return Clients{
		Counts:      counts,
		Performance: perf,
		Chart:       chart,
		CDF:         cdfSeries(groups, top),
		Percentiles: percentileRows(groups, top),
	}
}

func geoSections(rows []model.BlockEvent) Geo {
	groups := aggregate.GroupBy(rows, func(ev model.BlockEvent) string { return ev.MetaClientGeoCountry })

	counts := countGroups(groups)
	floor := chartFloor(len(rows))
	perf := make([]CountryPerf, 0, len(groups))
	for name, evs := range groups {
		if float64(len(evs)) <= floor {
			continue
		}
		perf = append(perf, CountryPerf{
			Name:        name,
			MedianMS:    aggregate.Round(aggregate.Median(cappedOf(evs)), 2),
			SampleCount: len(evs),
		})
	}
	sort.Slice(perf, func(i, j int) bool {
		if perf[i].MedianMS != perf[j].MedianMS {
			return perf[i].MedianMS < perf[j].MedianMS
		}
		return perf[i].Name < perf[j].Name
	})

	top := topNames(counts, topCountries)
	return Geo{
		Counts:      counts,
		Performance: perf,
		CDF:         cdfSeries(groups, top),
		Percentiles: percentileRows(groups, top),
	}
}

// countGroups ranks groups by event count, largest first, keeping the top
// rows only. Ties break on name so payloads stay byte-stable across runs.
func countGroups(groups map[string][]model.BlockEvent) []Count {
	out := make([]Count, 0, len(groups))
	for name, evs := range groups {
		out = append(out, Count{Name: name, Count: len(evs)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	if len(out) > maxCountRows {
		out = out[:maxCountRows]
	}
	return out
}

func topNames(counts []Count, n int) []string {
	if len(counts) > n {
		counts = counts[:n]
	}
	names := make([]string, len(counts))
	for i, c := range counts {
		names[i] = c.Name
	}
	return names
}

func cdfSeries(groups map[string][]model.BlockEvent, names []string) []CDFSeries {
	out := make([]CDFSeries, 0, len(names))
	for _, name := range names {
		evs := groups[name]
		if len(evs) == 0 {
			continue
		}
		out = append(out, CDFSeries{Name: name, Points: aggregate.CDF50(cappedOf(evs))})
	}
	return out
}

func percentileRows(groups map[string][]model.BlockEvent, names []string) []PercentileRow {
	out := make([]PercentileRow, 0, len(names))
	for _, name := range names {
		evs := groups[name]
		if len(evs) == 0 {
			continue
		}
		vals := cappedOf(evs)
		qs := aggregate.Quantiles(vals, []float64{0.5, 0.9, 0.99})
		out = append(out, PercentileRow{
			Name:        name,
			P50MS:       aggregate.Round(qs[0], 2),
			P90MS:       aggregate.Round(qs[1], 2),
			P99MS:       aggregate.Round(qs[2], 2),
			SampleCount: len(evs),
		})
	}
	return out
}

func hourlyTrends(blocks []blockStat) Hourly {
	groups := aggregate.GroupBy(blocks, func(b blockStat) int { return b.hour })

	hours := make([]int, 0, len(groups))
	for h := range groups {
		hours = append(hours, h)
	}
	sort.Ints(hours)

	points := make([]HourlyPoint, 0, len(hours))
	blockCounts := make([]float64, 0, len(hours))
	medianMins := make([]float64, 0, len(hours))
	for _, h := range hours {
		mins := make([]float64, len(groups[h]))
		for i, b := range groups[h] {
			mins[i] = b.minMS
		}
		median := aggregate.Median(mins)
		points = append(points, HourlyPoint{
			Hour:        h,
			MeanMinMS:   aggregate.Round(aggregate.Mean(mins), 2),
			MedianMinMS: aggregate.Round(median, 2),
			P90MinMS:    aggregate.Round(aggregate.Quantile(mins, 0.9), 2),
			BlockCount:  len(groups[h]),
		})
		blockCounts = append(blockCounts, float64(len(groups[h])))
		medianMins = append(medianMins, median)
	}

	corr := aggregate.Round(aggregate.Correlation(blockCounts, medianMins), 4)
	return Hourly{Hours: points, Correlation: corr, Verdict: correlationVerdict(corr)}
}

func correlationVerdict(c float64) string {
	switch {
	case c > 0.5:
		return "There is a moderate to strong positive correlation between block count and propagation time, suggesting higher network load may increase block propagation times."
	case c < -0.5:
		return "There is a moderate to strong negative correlation between block count and propagation time, suggesting the network may be more efficient during periods of higher activity."
	default:
		return "There is minimal correlation between block count and propagation time, suggesting block propagation is relatively stable regardless of network load."
	}
}
