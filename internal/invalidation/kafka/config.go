package kafka

import (
	"strings"
	"time"

	"github.com/ethpandaops/xatu-dashboard/internal/core/config"
)

type Config struct {
	Enabled bool
	Brokers []string
	Topic   string
	GroupID string

	SessionTimeout   time.Duration
	Heartbeat        time.Duration
	RebalanceTimeout time.Duration
	InitialOldest    bool
}

// FromService wraps the service-level invalidation settings with consumer
// tuning defaults. Offsets start at oldest so a fresh consumer group catches
// up on events published while nothing was listening.
func FromService(c config.InvalidationCfg) Config {
	return Config{
		Enabled:          c.Enabled,
		Brokers:          split(c.Brokers),
		Topic:            c.Topic,
		GroupID:          c.GroupID,
		SessionTimeout:   30 * time.Second,
		Heartbeat:        3 * time.Second,
		RebalanceTimeout: 30 * time.Second,
		InitialOldest:    true,
	}
}

func split(s string) []string {
	var out []string
	for p := range strings.SplitSeq(s, ",") {
		if x := strings.TrimSpace(p); x != "" {
			out = append(out, x)
		}
	}
	return out
}
