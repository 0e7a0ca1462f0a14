// Package health serves the liveness and readiness endpoints.
package health

import (
	"encoding/json"
	"net/http"
)

func Liveness() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}

// ReadinessReporter gates traffic during startup. The invalidation runner
// implements it while it waits for partition assignment.
type ReadinessReporter interface {
	Readiness() (ready bool, detail string)
}

// Readiness serves readiness as JSON. A nil reporter means nothing gates
// startup and the service is always ready.
func Readiness(rr ReadinessReporter) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		type resp struct {
			Status string `json:"status"`
			Detail string `json:"detail,omitempty"`
		}
		out := resp{Status: "ready"}
		if rr != nil {
			ready, detail := rr.Readiness()
			out.Detail = detail
			if !ready {
				out.Status = "not_ready"
			}
		}
		w.Header().Set("Content-Type", "application/json")
		if out.Status != "ready" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(out)
	}
}
