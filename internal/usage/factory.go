package usage

import (
	"time"

	"github.com/redis/go-redis/v9"
)

type Config struct {
	Backend   string // "memory" or "redis"
	Retention time.Duration
	Prefix    string
}

// New returns the configured ledger wrapped with logging and metrics.
// Close it on shutdown.
func New(cfg Config, redisClient *redis.Client) *LoggingLedger {
	var inner Ledger
	switch cfg.Backend {
	case "redis":
		inner = NewRedisLedger(redisClient, RedisConfig{
			Prefix:    cfg.Prefix,
			Retention: cfg.Retention,
		})
	default:
		inner = NewMemoryLedger(cfg.Retention)
	}
	return NewLoggingLedger(inner)
}
