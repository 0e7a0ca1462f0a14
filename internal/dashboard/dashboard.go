// Package dashboard is the capability registry for dashboards. Each dashboard
// package registers its descriptor and compute function from init; the loader
// stays generic over the registered set.
package dashboard

import (
	"net/url"
	"sort"
	"strings"

	"github.com/ethpandaops/xatu-dashboard/internal/core/model"
)

// Input carries the request-scoped values a compute sees beyond the rows.
type Input struct {
	Network  string
	Window   model.Window
	Interval model.Interval
	Params   url.Values
}

// Param returns the first value for a dashboard parameter, trimmed.
func (in Input) Param(name string) string {
	if in.Params == nil {
		return ""
	}
	return strings.TrimSpace(in.Params.Get(name))
}

// ComputeFunc turns one window of events into the dashboard's JSON payload.
// Implementations are pure over their inputs; caching is the loader's call.
type ComputeFunc func(rows []model.BlockEvent, in Input) ([]byte, error)

// Dashboard couples a descriptor with its computation.
type Dashboard struct {
	model.Descriptor
	Compute ComputeFunc
}

var reg = map[string]Dashboard{}

// Register adds a dashboard under its id. Called from init in each dashboard
// package; the last registration for an id wins.
func Register(d Dashboard) {
	reg[d.ID] = d
}

func Lookup(id string) (Dashboard, bool) {
	d, ok := reg[id]
	return d, ok
}

// All returns the registered descriptors sorted by id, so the listing payload
// is stable across restarts.
func All() []model.Descriptor {
	out := make([]model.Descriptor, 0, len(reg))
	for _, d := range reg {
		out = append(out, d.Descriptor)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
