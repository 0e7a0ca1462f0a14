package main

import (
	"testing"
	"time"
)

func TestExpand_CrossesDashboardsNetworksWindows(t *testing.T) {
	ds := []descriptor{
		{ID: "block-arrival", Windows: []string{"-1d", "-7d", "-31d"}},
		{ID: "users", Windows: []string{"-31d"}},
	}

	got := expand(ds, []string{"mainnet", "holesky"}, nil)
	if len(got) != 8 {
		t.Fatalf("targets = %d, want 8", len(got))
	}
	first := target{Dashboard: "block-arrival", Network: "mainnet", Window: "-1d"}
	if got[0] != first {
		t.Fatalf("first target = %+v, want %+v", got[0], first)
	}
	last := target{Dashboard: "users", Network: "holesky", Window: "-31d"}
	if got[len(got)-1] != last {
		t.Fatalf("last target = %+v, want %+v", got[len(got)-1], last)
	}
}

func TestExpand_WindowFilterKeepsSupportedOnly(t *testing.T) {
	ds := []descriptor{
		{ID: "block-arrival", Windows: []string{"-1d", "-7d", "-31d"}},
		{ID: "users", Windows: []string{"-31d"}},
	}

	got := expand(ds, []string{"mainnet"}, []string{"-7d", "-90d"})
	if len(got) != 1 {
		t.Fatalf("targets = %d, want 1 (users supports no requested window)", len(got))
	}
	want := target{Dashboard: "block-arrival", Network: "mainnet", Window: "-7d"}
	if got[0] != want {
		t.Fatalf("target = %+v, want %+v", got[0], want)
	}
}

func TestSummarize_CountsOutcomesAndFailures(t *testing.T) {
	start := time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)
	results := []result{
		{Target: target{Dashboard: "users", Network: "mainnet", Window: "-31d"}, Status: 200, Outcome: "miss"},
		{Target: target{Dashboard: "block-arrival", Network: "mainnet", Window: "-7d"}, Status: 200, Outcome: "miss"},
		{Target: target{Dashboard: "block-arrival", Network: "mainnet", Window: "-1d"}, Status: 200, Outcome: "hit"},
		{Target: target{Dashboard: "nodes", Network: "holesky", Window: "-7d"}, Status: 503, Err: "status=503"},
	}

	s := summarize(start, start.Add(time.Minute), results)
	if s.Targets != 4 {
		t.Fatalf("targets = %d, want 4", s.Targets)
	}
	if s.Failures != 1 {
		t.Fatalf("failures = %d, want 1", s.Failures)
	}
	if s.Outcomes["miss"] != 2 || s.Outcomes["hit"] != 1 {
		t.Fatalf("outcomes = %v, want miss=2 hit=1", s.Outcomes)
	}
	// sorted by dashboard, then network, then window
	if s.Results[0].Target.Dashboard != "block-arrival" || s.Results[0].Target.Window != "-1d" {
		t.Fatalf("first sorted result = %+v", s.Results[0].Target)
	}
}

func TestSplitCSV_TrimsAndSkipsEmpty(t *testing.T) {
	got := splitCSV(" mainnet, holesky ,, ")
	if len(got) != 2 || got[0] != "mainnet" || got[1] != "holesky" {
		t.Fatalf("splitCSV = %v", got)
	}
	if splitCSV("") != nil {
		t.Fatalf("splitCSV(\"\") should be nil")
	}
}
