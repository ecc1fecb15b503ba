package usage

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"promptgate/internal/llm"
)

const (
	fieldStreams    = "streams"
	fieldPrompt     = "prompt_tokens"
	fieldCompletion = "completion_tokens"
	fieldTotal      = "total_tokens"
)

// RedisLedger stores each key as a hash of counters.
type RedisLedger struct {
	client    *redis.Client
	prefix    string
	retention time.Duration
}

type RedisConfig struct {
	Prefix string

	// Retention is refreshed on every write; 0 keeps rows forever.
	Retention time.Duration
}

// NewRedisLedger creates a Redis-backed ledger.
func NewRedisLedger(client *redis.Client, config RedisConfig) *RedisLedger {
	return &RedisLedger{
		client:    client,
		prefix:    config.Prefix,
		retention: config.Retention,
	}
}

// key builds the final Redis key with prefix.
func (l *RedisLedger) key(k Key) string {
	if l.prefix == "" {
		return k.String()
	}
	return l.prefix + ":" + k.String()
}

// Record increments all counters of key in one round trip.
func (l *RedisLedger) Record(ctx context.Context, key Key, u llm.Usage) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}

	redisKey := l.key(key)

	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HIncrBy(ctx, redisKey, fieldStreams, 1)
		pipe.HIncrBy(ctx, redisKey, fieldPrompt, int64(u.PromptTokens))
		pipe.HIncrBy(ctx, redisKey, fieldCompletion, int64(u.CompletionTokens))
		pipe.HIncrBy(ctx, redisKey, fieldTotal, int64(u.TotalTokens))
		if l.retention > 0 {
			pipe.Expire(ctx, redisKey, l.retention)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis record failed: %w", err)
	}
	return nil
}

// Totals reads the counters of key. A missing key is a clean miss.
func (l *RedisLedger) Totals(ctx context.Context, key Key) (Totals, bool, error) {
	if err := ctx.Err(); err != nil {
		return Totals{}, false, fmt.Errorf("context error: %w", err)
	}

	fields, err := l.client.HGetAll(ctx, l.key(key)).Result()
	if err != nil {
		return Totals{}, false, fmt.Errorf("redis totals failed: %w", err)
	}
	if len(fields) == 0 {
		return Totals{}, false, nil
	}

	t := Totals{Provider: key.Provider, Model: key.ModelID}
	for name, dst := range map[string]*int64{
		fieldStreams:    &t.Streams,
		fieldPrompt:     &t.PromptTokens,
		fieldCompletion: &t.CompletionTokens,
		fieldTotal:      &t.TotalTokens,
	} {
		if v, ok := fields[name]; ok {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return Totals{}, false, fmt.Errorf("redis totals field %s: %w", name, err)
			}
			*dst = n
		}
	}
	return t, true, nil
}

// Ping checks if Redis connection is healthy.
func (l *RedisLedger) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}
	return l.client.Ping(ctx).Err()
}
