// Package invalidation defines the data-landed event the ingestion pipeline
// publishes when a lake day file is written, rewritten, or pruned.
package invalidation

import (
	"fmt"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// Event announces that one (network, table, day) file changed. Consumers drop
// whatever they cached for it; nothing is recomputed until the next access.
type Event struct {
	Version int       `json:"version"`
	Op      string    `json:"op"`
	Network string    `json:"network"`
	Table   string    `json:"table"`
	Date    string    `json:"date"`
	TS      time.Time `json:"ts"`
	Source  string    `json:"source,omitempty"`
}

func (e Event) Validate() error {
	if e.Version != 1 {
		return fmt.Errorf("version must be 1")
	}
	switch e.Op {
	case "landed", "backfill", "prune":
	default:
		return fmt.Errorf("op must be landed|backfill|prune")
	}
	if strings.TrimSpace(e.Network) == "" {
		return fmt.Errorf("network is required")
	}
	if strings.TrimSpace(e.Table) == "" {
		return fmt.Errorf("table is required")
	}
	if _, err := time.Parse(dateLayout, e.Date); err != nil {
		return fmt.Errorf("date must be YYYY-MM-DD: %w", err)
	}
	if e.TS.IsZero() {
		return fmt.Errorf("ts is required")
	}
	return nil
}

// Day returns the UTC day the event covers. Validate first.
func (e Event) Day() (time.Time, error) {
	d, err := time.Parse(dateLayout, e.Date)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", e.Date, err)
	}
	return d, nil
}

// Key identifies the logical target of the event; duplicate deliveries for
// one target carry the same key.
func (e Event) Key() string {
	return e.Network + "|" + e.Table + "|" + e.Date + "|" + e.Op
}
