// Package users computes the user deep dive dashboard: the operators
// contributing events, and for a selected operator the fleet of nodes behind
// their meta_client_name entries.
package users

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
			ID:          "user-deep-dive",
			Title:       "Xatu User Deep Dive",
			Description: "Per-operator node fleet, activity and propagation performance",
			Table:       blockarrival.Table,
			Windows:     registry.WindowLabels(),
			Params:      []string{"user"},
			Refresh:     registry.DefaultRefreshInterval,
		},
		Compute: compute,
	})
}

type Payload struct {
	Network   string      `json:"network"`
	Window    string      `json:"window"`
	From      time.Time   `json:"from"`
	To        time.Time   `json:"to"`
	Usernames []string    `json:"usernames"`
	User      *UserDetail `json:"user,omitempty"`
}

type UserDetail struct {
	Username        string                       `json:"username"`
	NodeCount       int                          `json:"node_count"`
	TotalEvents     int                          `json:"total_events"`
	Implementations []string                     `json:"implementations"`
	Versions        []string                     `json:"versions"`
	Locations       []string                     `json:"locations"`
	Nodes           []NodeRow                    `json:"nodes"`
	Performance     dashboard.PropagationSummary `json:"performance"`
}

// NodeRow is one node of the selected operator. Identity fields come from the
// node's first event in the window; redacted geo data stays redacted.
type NodeRow struct {
	NodeID          string    `json:"node_id"`
	Events          int       `json:"events"`
	Implementation  string    `json:"implementation"`
	Version         string    `json:"version"`
	Location        string    `json:"location"`
	NetworkProvider string    `json:"network_provider"`
	FirstSeen       time.Time `json:"first_seen"`
	LastSeen        time.Time `json:"last_seen"`
}

func compute(rows []model.BlockEvent, in dashboard.Input) ([]byte, error) {
	if len(rows) == 0 {
		return nil, model.ErrDataUnavailable
	}

	byUser := map[string][]model.BlockEvent{}
	for _, ev := range rows {
		if u, ok := dashboard.Username(ev.MetaClientName); ok {
			byUser[u] = append(byUser[u], ev)
		}
	}
	if len(byUser) == 0 {
		return nil, fmt.Errorf("%w: no events carry a usable client name", model.ErrDataUnavailable)
	}

	usernames := make([]string, 0, len(byUser))
	for u := range byUser {
		usernames = append(usernames, u)
	}
	sort.Strings(usernames)

	p := Payload{
		Network:   in.Network,
		Window:    in.Window.Label,
		From:      in.Interval.Start,
		To:        in.Interval.End,
		Usernames: usernames,
	}

	if selected := in.Param("user"); selected != "" {
		evs, ok := byUser[selected]
		if !ok {
			return nil, fmt.Errorf("%w: no events for user %q", model.ErrDataUnavailable, selected)
		}
		p.User = userDetail(selected, evs)
	}

	return json.Marshal(p)
}

func userDetail(username string, evs []model.BlockEvent) *UserDetail {
	impls := map[string]struct{}{}
	versions := map[string]struct{}{}
	locations := map[string]struct{}{}
	for _, ev := range evs {
		if ev.MetaConsensusImpl != "" {
			impls[ev.MetaConsensusImpl] = struct{}{}
		}
		if ev.MetaConsensusVersion != "" {
			versions[ev.MetaConsensusVersion] = struct{}{}
		}
		if loc, ok := dashboard.Location(ev); ok {
			locations[loc] = struct{}{}
		}
	}

	nodes := nodeRows(evs)
	return &UserDetail{
		Username:        username,
		NodeCount:       len(nodes),
		TotalEvents:     len(evs),
		Implementations: sortedKeys(impls),
		Versions:        sortedKeys(versions),
		Locations:       sortedKeys(locations),
		Nodes:           nodes,
		Performance:     dashboard.SummarizePropagation(evs),
	}
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// nodeRows folds the operator's events into one row per node, busiest first.
func nodeRows(evs []model.BlockEvent) []NodeRow {
	groups := map[string][]model.BlockEvent{}
	for _, ev := range evs {
		if id, ok := dashboard.NodeID(ev.MetaClientName); ok {
			groups[id] = append(groups[id], ev)
		}
	}

	out := make([]NodeRow, 0, len(groups))
	for id, nodeEvs := range groups {
		first := nodeEvs[0]
		row := NodeRow{
			NodeID:          id,
			Events:          len(nodeEvs),
			Implementation:  first.MetaConsensusImpl,
			Version:         first.MetaConsensusVersion,
			Location:        "Location Redacted",
			NetworkProvider: "ASN Redacted",
			FirstSeen:       nodeEvs[0].EventDateTime,
			LastSeen:        nodeEvs[0].EventDateTime,
		}
		if loc, ok := dashboard.Location(first); ok {
			row.Location = loc
		}
		if asn, ok := dashboard.Provider(first); ok {
			row.NetworkProvider = asn
		}
		for _, ev := range nodeEvs {
			if ev.EventDateTime.Before(row.FirstSeen) {
				row.FirstSeen = ev.EventDateTime
			}
			if ev.EventDateTime.After(row.LastSeen) {
				row.LastSeen = ev.EventDateTime
			}
		}
		out = append(out, row)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Events != out[j].Events {
			return out[i].Events > out[j].Events
		}
		return out[i].NodeID < out[j].NodeID
	})
	return out
}
