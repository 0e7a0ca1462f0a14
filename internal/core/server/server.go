// Package server wires the HTTP surface together and runs it until the
// context is canceled.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ethpandaops/xatu-dashboard/internal/core/config"
	"github.com/ethpandaops/xatu-dashboard/internal/core/health"
	middleware "github.com/ethpandaops/xatu-dashboard/internal/core/middleware"
	"github.com/ethpandaops/xatu-dashboard/internal/core/router"
)

type Options struct {
	Loader  router.Loader
	Catalog router.Catalog

	// Metrics is the metrics endpoint handler; nil leaves the route unmounted.
	Metrics http.Handler

	// Readiness gates /readyz; nil means always ready.
	Readiness health.ReadinessReporter
}

// Run serves the API until ctx is canceled, then shuts down gracefully.
func Run(ctx context.Context, cfg config.Config, logger *slog.Logger, opts Options) error {
	r := chi.NewRouter()
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logging(logger))
	r.Use(middleware.CORS())

	r.Get("/healthz", health.Liveness())
	r.Get("/readyz", health.Readiness(opts.Readiness))
	if cfg.MetricsEnabled && opts.Metrics != nil {
		r.Get(cfg.MetricsPath, opts.Metrics.ServeHTTP)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/dashboards", router.ListDashboards())
		r.Get("/dashboards/{id}", router.DashboardByID(logger, opts.Loader))
		r.Get("/meta", router.Meta(logger, opts.Catalog))
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// a cold 90d window downloads dozens of day files before the first
		// byte of the response goes out
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listen", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
