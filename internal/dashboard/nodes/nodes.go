// Package nodes computes the node deep dive dashboard: everything reported by
// one node, selected by the node id segment of meta_client_name.
package nodes

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/ethpandaops/xatu-dashboard/internal/core/model"
	"github.com/ethpandaops/xatu-dashboard/internal/dashboard"
	"github.com/ethpandaops/xatu-dashboard/internal/dashboard/blockarrival"
	"github.com/ethpandaops/xatu-dashboard/internal/registry"
)

func init() {
	dashboard.Register(dashboard.Dashboard{
		Descriptor: model.Descriptor{
			ID:          "node-deep-dive",
			Title:       "Xatu Node Deep Dive",
			Description: "Single-node activity timeline and propagation performance",
			Table:       blockarrival.Table,
			Windows:     registry.WindowLabels(),
			Params:      []string{"node"},
			Refresh:     registry.DefaultRefreshInterval,
		},
		Compute: compute,
	})
}

type Payload struct {
	Network string      `json:"network"`
	Window  string      `json:"window"`
	From    time.Time   `json:"from"`
	To      time.Time   `json:"to"`
	Nodes   []string    `json:"nodes"`
	Node    *NodeDetail `json:"node,omitempty"`
}

type TimelinePoint struct {
	Date   string `json:"date"`
	Events int    `json:"events"`
}

type NodeDetail struct {
	NodeID          string                       `json:"node_id"`
	Username        string                       `json:"username"`
	Implementation  string                       `json:"implementation"`
	Version         string                       `json:"version"`
	Location        string                       `json:"location"`
	NetworkProvider string                       `json:"network_provider"`
	TotalEvents     int                          `json:"total_events"`
	FirstSeen       time.Time                    `json:"first_seen"`
	LastSeen        time.Time                    `json:"last_seen"`
	Timeline        []TimelinePoint              `json:"timeline"`
	Performance     dashboard.PropagationSummary `json:"performance"`
}

func compute(rows []model.BlockEvent, in dashboard.Input) ([]byte, error) {
	if len(rows) == 0 {
		return nil, model.ErrDataUnavailable
	}

	byNode := map[string][]model.BlockEvent{}
	for _, ev := range rows {
		if id, ok := dashboard.NodeID(ev.MetaClientName); ok {
			byNode[id] = append(byNode[id], ev)
		}
	}
	if len(byNode) == 0 {
		return nil, fmt.Errorf("%w: no events carry a node id", model.ErrDataUnavailable)
	}

	ids := make([]string, 0, len(byNode))
	for id := range byNode {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	p := Payload{
		Network: in.Network,
		Window:  in.Window.Label,
		From:    in.Interval.Start,
		To:      in.Interval.End,
		Nodes:   ids,
	}

	if selected := in.Param("node"); selected != "" {
		evs, ok := byNode[selected]
		if !ok {
			return nil, fmt.Errorf("%w: no events for node %q", model.ErrDataUnavailable, selected)
		}
		p.Node = nodeDetail(selected, evs)
	}

	return json.Marshal(p)
}

func nodeDetail(id string, evs []model.BlockEvent) *NodeDetail {
	first := evs[0]
	d := &NodeDetail{
		NodeID:          id,
		Implementation:  first.MetaConsensusImpl,
		Version:         first.MetaConsensusVersion,
		Location:        "Location Redacted",
		NetworkProvider: "ASN Redacted",
		TotalEvents:     len(evs),
		FirstSeen:       first.EventDateTime,
		LastSeen:        first.EventDateTime,
		Timeline:        timeline(evs),
		Performance:     dashboard.SummarizePropagation(evs),
	}
	if u, ok := dashboard.Username(first.MetaClientName); ok {
		d.Username = u
	}
	if loc, ok := dashboard.Location(first); ok {
		d.Location = loc
	}
	if asn, ok := dashboard.Provider(first); ok {
		d.NetworkProvider = asn
	}
	for _, ev := range evs {
		if ev.EventDateTime.Before(d.FirstSeen) {
			d.FirstSeen = ev.EventDateTime
		}
		if ev.EventDateTime.After(d.LastSeen) {
			d.LastSeen = ev.EventDateTime
		}
	}
	return d
}

// timeline counts the node's events per UTC day, oldest first.
func timeline(evs []model.BlockEvent) []TimelinePoint {
	byDay := map[string]int{}
	for _, ev := range evs {
		byDay[ev.EventDateTime.UTC().Format("2006-01-02")]++
	}

	days := make([]string, 0, len(byDay))
	for d := range byDay {
		days = append(days, d)
	}
	sort.Strings(days)

	out := make([]TimelinePoint, len(days))
	for i, d := range days {
		out[i] = TimelinePoint{Date: d, Events: byDay[d]}
	}
	return out
}
