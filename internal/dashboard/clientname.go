package dashboard

import "strings"

// meta_client_name values carry an operator path such as
// "ethpandaops/mainnet/sigma-mainnet-prysm-reth-001" or
// "pub-asn-city/robustdigress65/hashed-446c3e10". Username and NodeID pull
// the operator and node segments out of that path.

var anonymousNames = map[string]bool{
	"unknown":  true,
	"redacted": true,
	"none":     true,
	"null":     true,
}

var fleetPrefixes = map[string]bool{
	"ethpandaops":    true,
	"pub-asn-city":   true,
	"pub-noasn-city": true,
}

// Username extracts the operator name from a meta_client_name value. The
// second return is false when the value carries no usable name.
func Username(name string) (string, bool) {
	name = strings.TrimSpace(name)
	if name == "" || anonymousNames[strings.ToLower(name)] {
		return "", false
	}

	parts := strings.Split(name, "/")
	if len(parts) < 2 {
		return "", false
	}

	if fleetPrefixes[strings.ToLower(parts[0])] && len(parts[1]) >= 2 {
		u := strings.TrimSpace(parts[1])
		// fleet paths sometimes repeat the network before the operator
		if strings.ToLower(u) == "mainnet" && len(parts) >= 3 {
			u = strings.TrimSpace(parts[2])
		}
		if u == "" {
			return "", false
		}
		return u, true
	}

	// unrecognized layout: first segment that is neither a prefix nor a network
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if len(p) < 2 {
			continue
		}
		if l := strings.ToLower(p); fleetPrefixes[l] || l == "mainnet" {
			continue
		}
		return p, true
	}
	return "", false
}

// NodeID extracts the node identifier, the third path segment, falling back
// to the second when the path has only two.
func NodeID(name string) (string, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", false
	}

	parts := strings.Split(name, "/")
	if len(parts) >= 3 {
		if id := strings.TrimSpace(parts[2]); id != "" {
			return id, true
		}
		return "", false
	}
	if len(parts) == 2 {
		if id := strings.TrimSpace(parts[1]); id != "" {
			return id, true
		}
	}
	return "", false
}
