package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/ethpandaops/xatu-dashboard/internal/cache"
	"github.com/ethpandaops/xatu-dashboard/internal/cache/memstore"
	"github.com/ethpandaops/xatu-dashboard/internal/cache/policy"
	"github.com/ethpandaops/xatu-dashboard/internal/cache/redisstore"
	"github.com/ethpandaops/xatu-dashboard/internal/core/config"
	"github.com/ethpandaops/xatu-dashboard/internal/core/health"
	"github.com/ethpandaops/xatu-dashboard/internal/core/observability"
	"github.com/ethpandaops/xatu-dashboard/internal/core/server"
	_ "github.com/ethpandaops/xatu-dashboard/internal/dashboard/blockarrival"
	_ "github.com/ethpandaops/xatu-dashboard/internal/dashboard/nodes"
	_ "github.com/ethpandaops/xatu-dashboard/internal/dashboard/users"
	"github.com/ethpandaops/xatu-dashboard/internal/hotness"
	"github.com/ethpandaops/xatu-dashboard/internal/invalidation/kafka"
	"github.com/ethpandaops/xatu-dashboard/internal/loader"
	"github.com/ethpandaops/xatu-dashboard/internal/logger"
	"github.com/ethpandaops/xatu-dashboard/internal/metrics"
	"github.com/ethpandaops/xatu-dashboard/internal/usage"
	"github.com/ethpandaops/xatu-dashboard/internal/xatu"
)

var Version = "dev"

func main() {
	os.Exit(run())
}

func envInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func run() int {
	// overriding dev mode via flag
	devFlag := flag.Bool("dev", false, "enable dev mode (honor ?force=true)")
	flag.Parse()

	cfg := config.FromEnv()
	if *devFlag {
		cfg.DevMode = true
	}

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   cfg.LogConsole,
		SampleN:   envInt("LOG_SAMPLE_N", 0),
		Component: "xatu-dashboard",
	}, os.Stdout)
	appLog := logger.NewSlog(&zl)

	p := metrics.Init(metrics.Config{
		Enabled: cfg.MetricsEnabled,
		Path:    cfg.MetricsPath,
		Build: metrics.BuildInfo{
			Version:   Version,
			Revision:  os.Getenv("BUILD_REVISION"),
			BuildDate: os.Getenv("BUILD_DATE"),
		},
	})
	observability.Init(p.Registerer(), cfg.MetricsEnabled)

	appLog.Info("starting xatu-dashboard",
		"addr", cfg.Addr,
		"version", Version,
		"lake", cfg.XatuBaseURL,
		"cache_backend", cfg.CacheBackend,
		"dev_mode", cfg.DevMode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var store cache.Store
	switch cfg.CacheBackend {
	case "redis":
		rc, err := redisstore.New(ctx, cfg.RedisAddr)
		if err != nil {
			appLog.Error("redis connect failed", "addr", cfg.RedisAddr, "err", err)
			return 1
		}
		defer func() {
			if cerr := rc.Close(); cerr != nil {
				appLog.Warn("close redis client", "err", cerr)
			}
		}()
		store = rc
	default:
		store = memstore.New()
	}

	engine := policy.New(policy.Config{
		Store:     store,
		Logger:    appLog,
		OpTimeout: cfg.CacheOpTimeout,
	})

	client := xatu.NewClient(cfg.XatuBaseURL, cfg.DataDir, appLog)
	source, err := xatu.NewSource(client, cfg.FrameCacheSize, cfg.AvailabilityLag, appLog)
	if err != nil {
		appLog.Error("source setup failed", "err", err)
		return 1
	}

	heat := hotness.Instrument(hotness.New(cfg.HotnessHalfLife), cfg.HotThreshold, cfg.HotLogSample, appLog)

	ldOpts := []loader.Option{loader.WithHotness(heat)}
	if cfg.Usage.Enabled {
		pub, perr := usage.NewPublisher(cfg.Invalidation.Brokers, cfg.Usage.Topic, cfg.Usage.QueueSize, appLog)
		if perr != nil {
			appLog.Error("usage publisher setup failed", "err", perr)
			return 1
		}
		defer func() {
			if cerr := pub.Close(); cerr != nil {
				appLog.Warn("close usage publisher", "err", cerr)
			}
		}()
		ldOpts = append(ldOpts, loader.WithUsage(pub))
	}

	ld := loader.New(engine, source, cfg, appLog, ldOpts...)

	runner := kafka.New(kafka.FromService(cfg.Invalidation), engine, source, kafka.Options{
		Logger:   appLog,
		Register: p.Registerer(),
		Heat:     heat,
	})
	if err := runner.Start(ctx); err != nil {
		appLog.Error("invalidation runner failed", "err", err)
		return 1
	}
	defer runner.Stop()

	// readyz gates on partition assignment only when the runner is consuming
	var readiness health.ReadinessReporter
	if cfg.Invalidation.Enabled {
		readiness = runner
	}

	if err := server.Run(ctx, cfg, appLog, server.Options{
		Loader:    ld,
		Catalog:   client,
		Metrics:   p.Handler(),
		Readiness: readiness,
	}); err != nil {
		appLog.Error("server exited with error", "err", err)
		return 1
	}
	appLog.Info("server stopped")
	return 0
}
