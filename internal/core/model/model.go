// Package model defines core domain types shared across the service.
package model

import (
	"errors"
	"fmt"
	"time"
)

// Error kinds surfaced to the presentation layer. None of them is fatal to
// the process; a failed load leaves other dashboards' cached entries alone.
var (
	ErrInvalidWindow    = errors.New("unsupported time window")
	ErrUnknownNetwork   = errors.New("unsupported network")
	ErrUnknownDashboard = errors.New("unknown dashboard")
	ErrDataUnavailable  = errors.New("source data unavailable")
	ErrCompute          = errors.New("dashboard computation failed")
)

// Window is a relative lookback period ("-7d") resolved against "now" at
// query time.
type Window struct {
	Label string
	Days  int
}

// Resolve returns the half-open interval [now - Days, now).
func (w Window) Resolve(now time.Time) Interval {
	return Interval{Start: now.AddDate(0, 0, -w.Days), End: now}
}

type Interval struct {
	Start time.Time
	End   time.Time
}

func (iv Interval) String() string {
	return fmt.Sprintf("[%s, %s)", iv.Start.Format(time.RFC3339), iv.End.Format(time.RFC3339))
}

func (iv Interval) Contains(t time.Time) bool {
	return !t.Before(iv.Start) && t.Before(iv.End)
}

// Request identifies one dashboard computation. Params carries optional
// dashboard-specific selections ("user=quickdraw42") already normalized by
// the router; Force is honored only when the service runs in dev mode.
type Request struct {
	Dashboard string
	Network   string
	Window    string
	Params    string
	Force     bool
}

// Descriptor is the immutable startup-time description of a dashboard.
// Params names the query parameters the dashboard accepts; anything else on
// the request is ignored so it cannot fragment cache keys.
type Descriptor struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Table       string        `json:"table"`
	Windows     []string      `json:"windows"`
	Params      []string      `json:"params,omitempty"`
	Refresh     time.Duration `json:"-"`
}

// SupportsWindow reports whether the dashboard accepts the window label.
func (d Descriptor) SupportsWindow(label string) bool {
	for _, w := range d.Windows {
		if w == label {
			return true
		}
	}
	return false
}

// BlockEvent is one row of the beacon_api_eth_v1_events_block table, limited
// to the columns the dashboards read. Nullable lake columns are tagged
// optional and decode to zero values when absent.
type BlockEvent struct {
	EventDateTime            time.Time `parquet:"event_date_time" json:"event_date_time"`
	Slot                     int64     `parquet:"slot" json:"slot"`
	Epoch                    int64     `parquet:"epoch" json:"epoch"`
	PropagationSlotStartDiff int64     `parquet:"propagation_slot_start_diff" json:"propagation_slot_start_diff"`
	MetaClientName           string    `parquet:"meta_client_name,optional" json:"meta_client_name"`
	MetaClientGeoCity        string    `parquet:"meta_client_geo_city,optional" json:"meta_client_geo_city"`
	MetaClientGeoCountry     string    `parquet:"meta_client_geo_country,optional" json:"meta_client_geo_country"`
	MetaClientGeoCountryCode string    `parquet:"meta_client_geo_country_code,optional" json:"meta_client_geo_country_code"`
	MetaClientGeoASOrg       string    `parquet:"meta_client_geo_autonomous_system_organization,optional" json:"meta_client_geo_autonomous_system_organization"`
	MetaConsensusImpl        string    `parquet:"meta_consensus_implementation,optional" json:"meta_consensus_implementation"`
	MetaConsensusVersion     string    `parquet:"meta_consensus_version,optional" json:"meta_consensus_version"`
}

// BlockID keys per-block aggregation; several clients report the same block.
func (e BlockEvent) BlockID() string {
	return fmt.Sprintf("%d_%d", e.Slot, e.Epoch)
}
