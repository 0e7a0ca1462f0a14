// Package aggregate holds the statistics shared by the dashboards:
// propagation capping, quantiles, histogram binning, CDF steps and
// correlation. Empty inputs yield zero values, never NaN, so results stay
// JSON-encodable.
package aggregate

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/stat"
)

// PropagationCapMS caps propagation readings; a handful of pathological
// observations would otherwise dominate every distribution.
const PropagationCapMS = 6000

func CappedMS(diff int64) float64 {
	if diff > PropagationCapMS {
		return PropagationCapMS
	}
	return float64(diff)
}

// Quantile returns the pth (0..1) empirical quantile. The input need not be
// sorted; a copy is sorted internally.
func Quantile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	s := slices.Clone(values)
	slices.Sort(s)
	return quantileSorted(s, p)
}

// Quantiles evaluates several quantiles against one sorted copy.
func Quantiles(values []float64, ps []float64) []float64 {
	out := make([]float64, len(ps))
	if len(values) == 0 {
		return out
	}
	s := slices.Clone(values)
	slices.Sort(s)
	for i, p := range ps {
		out[i] = quantileSorted(s, p)
	}
	return out
}

func quantileSorted(sorted []float64, p float64) float64 {
	return stat.Quantile(p, stat.Empirical, sorted, nil)
}

func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return stat.Mean(values, nil)
}

func Median(values []float64) float64 {
	return Quantile(values, 0.5)
}

// Correlation returns the Pearson correlation of x and y, or 0 when it is
// undefined (fewer than two points or zero variance).
func Correlation(x, y []float64) float64 {
	if len(x) != len(y) || len(x) < 2 {
		return 0
	}
	c := stat.Correlation(x, y, nil)
	if math.IsNaN(c) || math.IsInf(c, 0) {
		return 0
	}
	return c
}

type HistogramBin struct {
	Lo    float64 `json:"lo"`
	Hi    float64 `json:"hi"`
	Count int     `json:"count"`
}

// Histogram bins values into bins equal-width buckets across [min, max].
// Degenerate input (all values equal) collapses to a single bin.
func Histogram(values []float64, bins int) []HistogramBin {
	if len(values) == 0 || bins <= 0 {
		return nil
	}
	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	if lo == hi {
		return []HistogramBin{{Lo: lo, Hi: hi, Count: len(values)}}
	}

	width := (hi - lo) / float64(bins)
	out := make([]HistogramBin, bins)
	for i := range out {
		out[i].Lo = lo + float64(i)*width
		out[i].Hi = lo + float64(i+1)*width
	}
	out[bins-1].Hi = hi
	for _, v := range values {
		i := int((v - lo) / width)
		if i >= bins {
			i = bins - 1
		}
		out[i].Count++
	}
	return out
}

type CDFPoint struct {
	ValueMS  float64 `json:"value_ms"`
	Fraction float64 `json:"fraction"`
}

// CDF50 rounds values to the nearest 50 ms and returns the cumulative step
// function over the distinct rounded values, ending at fraction 1.
func CDF50(values []float64) []CDFPoint {
	if len(values) == 0 {
		return nil
	}
	s := make([]float64, len(values))
	for i, v := range values {
		s[i] = math.Round(v/50) * 50
	}
	slices.Sort(s)

	n := float64(len(s))
	var out []CDFPoint
	for i := 0; i < len(s); i++ {
		// advance to the last occurrence so the step carries count(<= v)
		for i+1 < len(s) && s[i+1] == s[i] {
			i++
		}
		out = append(out, CDFPoint{ValueMS: s[i], Fraction: float64(i+1) / n})
	}
	return out
}

// Round rounds v to the given number of decimal places.
func Round(v float64, decimals int) float64 {
	m := math.Pow(10, float64(decimals))
	return math.Round(v*m) / m
}

// GroupBy buckets items by key, preserving input order within each bucket.
func GroupBy[K comparable, T any](items []T, key func(T) K) map[K][]T {
	out := make(map[K][]T)
	for _, it := range items {
		k := key(it)
		out[k] = append(out[k], it)
	}
	return out
}
