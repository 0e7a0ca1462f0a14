package dashboard

import "github.com/ethpandaops/xatu-dashboard/internal/core/model"

// redacted is what the lake substitutes for geo fields contributors asked to
// keep private.
const redacted = "REDACTED"

// Location renders an event's geo fields as "City, CC"; ok is false when the
// city is missing or redacted.
func Location(ev model.BlockEvent) (string, bool) {
	if ev.MetaClientGeoCity == "" || ev.MetaClientGeoCity == redacted || ev.MetaClientGeoCountryCode == "" {
		return "", false
	}
	return ev.MetaClientGeoCity + ", " + ev.MetaClientGeoCountryCode, true
}

// Provider returns the autonomous system organization; ok is false when the
// field is missing or redacted.
func Provider(ev model.BlockEvent) (string, bool) {
	if ev.MetaClientGeoASOrg == "" || ev.MetaClientGeoASOrg == redacted {
		return "", false
	}
	return ev.MetaClientGeoASOrg, true
}
