package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type InvalidationCfg struct {
	Enabled bool
	Brokers string
	Topic   string
	GroupID string
}

type UsageCfg struct {
	Enabled   bool
	Topic     string
	QueueSize int
}

type Config struct {
	Addr       string
	LogLevel   string
	LogConsole bool

	XatuBaseURL string
	DataDir     string

	CacheBackend   string
	RedisAddr      string
	CacheOpTimeout time.Duration

	RefreshDefault   time.Duration
	RefreshOverrides map[string]time.Duration

	FrameCacheSize  int
	AvailabilityLag time.Duration

	HotnessHalfLife time.Duration
	HotThreshold    float64
	HotLogSample    float64

	DevMode bool

	MetricsEnabled bool
	MetricsPath    string

	Invalidation InvalidationCfg
	Usage        UsageCfg
}

func FromEnv() Config {
	frames := getint("FRAME_CACHE_SIZE", 32)
	if frames <= 0 {
		frames = 32
	}
	lag := getduration("AVAILABILITY_LAG", 24*time.Hour)
	if lag < 0 {
		lag = 0
	}

	return Config{
		Addr:       getenv("ADDR", ":8080"),
		LogLevel:   getenv("LOG_LEVEL", "info"),
		LogConsole: getbool("LOG_CONSOLE", false),

		XatuBaseURL: getenv("XATU_BASE_URL", "https://data.ethpandaops.io/xatu"),
		DataDir:     getenv("DATA_DIR", "./data"),

		CacheBackend:   strings.ToLower(getenv("CACHE_BACKEND", "memory")),
		RedisAddr:      getenv("REDIS_ADDR", "localhost:6379"),
		CacheOpTimeout: getduration("CACHE_OP_TIMEOUT", 250*time.Millisecond),

		RefreshDefault:   getduration("REFRESH_DEFAULT", 3*time.Hour),
		RefreshOverrides: parseDurationMap(getenv("REFRESH_OVERRIDES", "")),

		FrameCacheSize:  frames,
		AvailabilityLag: lag,

		HotnessHalfLife: getduration("HOTNESS_HALF_LIFE", 10*time.Minute),
		HotThreshold:    getfloat("HOT_THRESHOLD", 0),
		HotLogSample:    getfloat("HOT_LOG_SAMPLE", 0.01),

		DevMode: getbool("DEV_MODE", false),

		MetricsEnabled: getbool("METRICS_ENABLED", true),
		MetricsPath:    getenv("METRICS_PATH", "/metrics"),

		Invalidation: InvalidationCfg{
			Enabled: getbool("INVALIDATION_ENABLED", false),
			Brokers: getenv("KAFKA_BROKERS", "localhost:9092"),
			Topic:   getenv("KAFKA_TOPIC", "xatu-data-landed"),
			GroupID: getenv("KAFKA_GROUP_ID", "xatu-dashboard"),
		},
		Usage: UsageCfg{
			Enabled:   getbool("USAGE_ENABLED", false),
			Topic:     getenv("USAGE_TOPIC", "xatu-dashboard-usage"),
			QueueSize: getint("USAGE_QUEUE", 1024),
		},
	}
}

// Refresh resolves the refresh interval for a dashboard: a REFRESH_OVERRIDES
// entry wins, then the interval the dashboard declares, then the service-wide
// default.
func (c Config) Refresh(dashboard string, declared time.Duration) time.Duration {
	if d, ok := c.RefreshOverrides[dashboard]; ok {
		return d
	}
	if declared > 0 {
		return declared
	}
	return c.RefreshDefault
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v := os.Getenv(k); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes":
			return true
		case "0", "f", "false", "n", "no":
			return false
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// parse "block-arrival=1h,users=30m" into map
func parseDurationMap(s string) map[string]time.Duration {
	out := map[string]time.Duration{}
	s = strings.TrimSpace(s)
	if s == "" {
		return out
	}
	parts := strings.SplitSeq(s, ",")
	for p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		k := strings.TrimSpace(kv[0])
		v := strings.TrimSpace(kv[1])
		if k == "" {
			continue
		}
		if d, err := time.ParseDuration(v); err == nil {
			out[k] = d
		}
	}
	return out
}
