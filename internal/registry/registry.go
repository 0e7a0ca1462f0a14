// Package registry is the static description of supported networks, time
// windows, and refresh defaults. Lookup only, no behavior.
package registry

import (
	"time"

	"github.com/ethpandaops/xatu-dashboard/internal/core/model"
)

// DefaultRefreshInterval is the maximum age a cached dashboard result may
// reach before it is treated as stale.
const DefaultRefreshInterval = 3 * time.Hour

var networks = []string{"mainnet", "holesky", "sepolia"}

// Windows are resolved relative to "now" at query time. The first entry is
// the default selection for the frontend.
var windows = []model.Window{
	{Label: "-7d", Days: 7},
	{Label: "-31d", Days: 31},
	{Label: "-90d", Days: 90},
}

func Networks() []string {
	out := make([]string, len(networks))
	copy(out, networks)
	return out
}

func DefaultNetwork() string {
	return networks[0]
}

func IsNetwork(name string) bool {
	for _, n := range networks {
		if n == name {
			return true
		}
	}
	return false
}

func Windows() []model.Window {
	out := make([]model.Window, len(windows))
	copy(out, windows)
	return out
}

func WindowLabels() []string {
	out := make([]string, len(windows))
	for i, w := range windows {
		out[i] = w.Label
	}
	return out
}

func WindowByLabel(label string) (model.Window, bool) {
	for _, w := range windows {
		if w.Label == label {
			return w, true
		}
	}
	return model.Window{}, false
}

func DefaultWindow() model.Window {
	return windows[0]
}
