// Package router parses dashboard API requests and maps service errors to
// HTTP responses.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ethpandaops/xatu-dashboard/internal/core/model"
	"github.com/ethpandaops/xatu-dashboard/internal/core/observability"
	"github.com/ethpandaops/xatu-dashboard/internal/dashboard"
	"github.com/ethpandaops/xatu-dashboard/internal/loader"
	"github.com/ethpandaops/xatu-dashboard/internal/registry"
)

// route labels keep metric cardinality bounded to patterns, not ids
const (
	routeList      = "/api/v1/dashboards"
	routeDashboard = "/api/v1/dashboards/{id}"
	routeMeta      = "/api/v1/meta"
)

// Loader serves dashboard payloads from cache or recompute.
type Loader interface {
	Load(ctx context.Context, req model.Request) (*loader.Result, error)
}

// Catalog lists the lake's tables; the meta endpoint uses it best effort.
type Catalog interface {
	Tables(ctx context.Context) (map[string]string, error)
}

// ParseRequest extracts the request coordinates for dashboard id from query
// parameters. Only parameters the dashboard declares are kept, re-encoded in
// canonical order, so equivalent URLs share one cache key and undeclared
// parameters cannot fragment the cache.
func ParseRequest(r *http.Request, id string) model.Request {
	q := r.URL.Query()

	req := model.Request{
		Dashboard: strings.TrimSpace(id),
		Network:   strings.TrimSpace(q.Get("network")),
		Window:    strings.TrimSpace(q.Get("window")),
	}
	if req.Network == "" {
		req.Network = registry.DefaultNetwork()
	}
	if v := q.Get("force"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			req.Force = b
		}
	}

	if d, ok := dashboard.Lookup(req.Dashboard); ok && len(d.Params) > 0 {
		params := url.Values{}
		for _, name := range d.Params {
			if v := strings.TrimSpace(q.Get(name)); v != "" {
				params.Set(name, v)
			}
		}
		req.Params = params.Encode()
	}
	return req
}

// DashboardByID serves GET /api/v1/dashboards/{id}.
func DashboardByID(logger *slog.Logger, l Loader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}

		req := ParseRequest(r, chi.URLParam(r, "id"))
		res, err := l.Load(r.Context(), req)
		if err != nil {
			writeError(sw, logger, err)
		} else {
			sw.Header().Set("Content-Type", "application/json")
			sw.Header().Set("X-Computed-At", res.ComputedAt.UTC().Format(time.RFC3339))
			sw.Header().Set("X-Cache-Outcome", string(res.Outcome))
			_, _ = sw.Write(res.Payload)
		}
		observability.ObserveHTTP(r.Method, routeDashboard, sw.code, time.Since(start).Seconds())
	}
}

// ListDashboards serves GET /api/v1/dashboards.
func ListDashboards() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		writeJSON(w, http.StatusOK, map[string]any{"dashboards": dashboard.All()})
		observability.ObserveHTTP(r.Method, routeList, http.StatusOK, time.Since(start).Seconds())
	}
}

// Meta serves the frontend bootstrap data: networks, windows, and when the
// catalog answers in time, the lake's table names. A cold or failing catalog
// never blocks the endpoint.
func Meta(logger *slog.Logger, catalog Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		out := map[string]any{
			"networks":        registry.Networks(),
			"default_network": registry.DefaultNetwork(),
			"windows":         registry.WindowLabels(),
			"default_window":  registry.DefaultWindow().Label,
		}
		if catalog != nil {
			cctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			tables, err := catalog.Tables(cctx)
			cancel()
			if err != nil {
				logger.Warn("table catalog unavailable for meta", "err", err)
			} else {
				names := make([]string, 0, len(tables))
				for name := range tables {
					names = append(names, name)
				}
				sort.Strings(names)
				out["tables"] = names
			}
		}
		writeJSON(w, http.StatusOK, out)
		observability.ObserveHTTP(r.Method, routeMeta, http.StatusOK, time.Since(start).Seconds())
	}
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrInvalidWindow), errors.Is(err, model.ErrUnknownNetwork):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrUnknownDashboard), errors.Is(err, model.ErrDataUnavailable):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error("dashboard request failed", "err", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
