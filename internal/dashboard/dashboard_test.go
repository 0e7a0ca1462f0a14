package dashboard_test

import (
	"net/url"
	"testing"
	"time"

	"github.com/ethpandaops/xatu-dashboard/internal/core/model"
	"github.com/ethpandaops/xatu-dashboard/internal/dashboard"
)

func TestRegisterAndLookup(t *testing.T) {
	dashboard.Register(dashboard.Dashboard{
		Descriptor: model.Descriptor{ID: "zz-probe", Title: "Probe"},
		Compute: func(rows []model.BlockEvent, in dashboard.Input) ([]byte, error) {
			return []byte(`{}`), nil
		},
	})
	dashboard.Register(dashboard.Dashboard{
		Descriptor: model.Descriptor{ID: "aa-probe", Title: "Probe A"},
	})

	d, ok := dashboard.Lookup("zz-probe")
	if !ok || d.Title != "Probe" {
		t.Fatalf("Lookup(zz-probe) = %+v, %v", d, ok)
	}
	if _, ok := dashboard.Lookup("missing"); ok {
		t.Fatal("Lookup(missing) succeeded")
	}

	all := dashboard.All()
	if len(all) < 2 {
		t.Fatalf("All() returned %d descriptors", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i-1].ID >= all[i].ID {
			t.Fatalf("All() not sorted: %q before %q", all[i-1].ID, all[i].ID)
		}
	}
}

func TestInputParam_TrimsAndHandlesNil(t *testing.T) {
	in := dashboard.Input{Params: url.Values{"user": {" quickdraw42 "}}}
	if got := in.Param("user"); got != "quickdraw42" {
		t.Fatalf("Param(user) = %q", got)
	}
	if got := in.Param("node"); got != "" {
		t.Fatalf("Param(node) = %q, want empty", got)
	}
	var empty dashboard.Input
	if got := empty.Param("user"); got != "" {
		t.Fatalf("Param on zero Input = %q", got)
	}
}

func TestSummarizePropagation(t *testing.T) {
	at := time.Date(2026, 8, 18, 12, 0, 0, 0, time.UTC)
	rows := []model.BlockEvent{
		{EventDateTime: at, PropagationSlotStartDiff: 100},
		{EventDateTime: at, PropagationSlotStartDiff: 200},
		{EventDateTime: at, PropagationSlotStartDiff: 300},
		{EventDateTime: at, PropagationSlotStartDiff: 400},
		{EventDateTime: at, PropagationSlotStartDiff: 6000},
	}

	s := dashboard.SummarizePropagation(rows)
	if s.MinMS != 100 {
		t.Fatalf("MinMS=%v", s.MinMS)
	}
	if s.MeanMS != 1400 {
		t.Fatalf("MeanMS=%v", s.MeanMS)
	}
	if s.MedianMS != 300 {
		t.Fatalf("MedianMS=%v", s.MedianMS)
	}
	if s.P90MS != 6000 {
		t.Fatalf("P90MS=%v, deep dives must not cap readings", s.P90MS)
	}
	if len(s.Percentiles) != 7 || s.Percentiles[0].Label != "p10" || s.Percentiles[6].Label != "p99" {
		t.Fatalf("percentile rows = %+v", s.Percentiles)
	}

	// the 6000 ms reading is excluded from the histogram only
	total := 0
	for _, b := range s.Histogram {
		total += b.Count
	}
	if total != 4 {
		t.Fatalf("histogram holds %d readings, want 4", total)
	}

	if got := dashboard.SummarizePropagation(nil); len(got.Histogram) != 0 || got.MeanMS != 0 {
		t.Fatalf("zero-input summary = %+v", got)
	}
}
