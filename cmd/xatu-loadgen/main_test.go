package main

import (
	"math"
	"testing"
)

func TestMakePool_DefaultWindowRanksFirst(t *testing.T) {
	ds := []descriptor{
		{ID: "block-arrival", Windows: []string{"-1d", "-7d"}},
		{ID: "users", Windows: []string{"-31d"}},
	}

	pool := makePool(ds, []string{"mainnet", "holesky"}, nil)
	if len(pool) != 6 {
		t.Fatalf("pool size = %d, want 6", len(pool))
	}
	// block-arrival's default window on mainnet takes the hot end
	want := combo{Dashboard: "block-arrival", Network: "mainnet", Window: "-1d"}
	if pool[0] != want {
		t.Fatalf("pool[0] = %+v, want %+v", pool[0], want)
	}
	if pool[1].Network != "holesky" || pool[1].Window != "-1d" {
		t.Fatalf("pool[1] = %+v, want holesky -1d", pool[1])
	}
}

func TestMakePool_WindowFilter(t *testing.T) {
	ds := []descriptor{
		{ID: "block-arrival", Windows: []string{"-1d", "-7d", "-31d"}},
	}

	pool := makePool(ds, []string{"mainnet"}, []string{"-7d"})
	if len(pool) != 1 {
		t.Fatalf("pool size = %d, want 1", len(pool))
	}
	if pool[0].Window != "-7d" {
		t.Fatalf("window = %q, want -7d", pool[0].Window)
	}
}

func TestComboURL(t *testing.T) {
	c := combo{Dashboard: "block-arrival", Network: "mainnet", Window: "-7d"}
	got := c.URL("http://localhost:8080/")
	want := "http://localhost:8080/api/v1/dashboards/block-arrival?network=mainnet&window=-7d"
	if got != want {
		t.Fatalf("url = %q, want %q", got, want)
	}
}

func TestPercentile(t *testing.T) {
	vals := []float64{10, 20, 30, 40, 50}

	cases := []struct {
		name string
		p    float64
		want float64
	}{
		{"p0 clamps to min", 0, 10},
		{"p100 clamps to max", 100, 50},
		{"p50 exact", 50, 30},
		{"p75 interpolates", 75, 40},
		{"p90 interpolates", 90, 46},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := percentile(vals, tc.p)
			if math.Abs(got-tc.want) > 1e-9 {
				t.Fatalf("percentile(%v) = %v, want %v", tc.p, got, tc.want)
			}
		})
	}

	if !math.IsNaN(percentile(nil, 50)) {
		t.Fatalf("percentile of empty slice should be NaN")
	}
}
