package usage

import (
	"context"
	"io"
	"time"

	"go.uber.org/zap"

	"promptgate/internal/llm"
	"promptgate/internal/metrics"
	"promptgate/pkg/logging"
)

// LoggingLedger wraps a Ledger with logging + metrics.
type LoggingLedger struct {
	inner Ledger
}

// NewLoggingLedger returns a ledger that logs and records metrics.
func NewLoggingLedger(inner Ledger) *LoggingLedger {
	return &LoggingLedger{inner: inner}
}

// Ping checks the backend when it supports it; the memory ledger is always up.
func (l *LoggingLedger) Ping(ctx context.Context) error {
	if p, ok := l.inner.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Close releases the backend's background work (the memory janitor).
// The Redis client is owned by the caller and stays open.
func (l *LoggingLedger) Close() error {
	if c, ok := l.inner.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (l *LoggingLedger) Record(ctx context.Context, key Key, u llm.Usage) error {
	start := time.Now()
	err := l.inner.Record(ctx, key, u)

	fields := append(keyFields(key.String()),
		zap.Int("prompt_tokens", u.PromptTokens),
		zap.Int("completion_tokens", u.CompletionTokens),
		zap.Int("total_tokens", u.TotalTokens),
		zap.Float64("latency_ms", float64(time.Since(start).Microseconds())/1000.0),
	)

	logger := logging.L(ctx)
	if err != nil {
		metrics.LedgerOpsTotal.WithLabelValues("record", "error").Inc()
		logger.Error("usage_ledger_record", append(fields, zap.Error(err))...)
		return err
	}

	metrics.LedgerOpsTotal.WithLabelValues("record", "ok").Inc()
	logger.Debug("usage_ledger_record", fields...)
	return nil
}

func (l *LoggingLedger) Totals(ctx context.Context, key Key) (Totals, bool, error) {
	start := time.Now()
	t, ok, err := l.inner.Totals(ctx, key)

	result := "miss"
	switch {
	case err != nil:
		result = "error"
	case ok:
		result = "hit"
	}
	metrics.LedgerOpsTotal.WithLabelValues("totals", result).Inc()

	fields := append(keyFields(key.String()),
		zap.String("result", result),
		zap.Float64("latency_ms", float64(time.Since(start).Microseconds())/1000.0),
	)

	logger := logging.L(ctx)
	if err != nil {
		logger.Error("usage_ledger_totals", append(fields, zap.Error(err))...)
	} else {
		logger.Debug("usage_ledger_totals", fields...)
	}

	return t, ok, err
}

func keyFields(raw string) []zap.Field {
	fields := []zap.Field{zap.String("ledger_key", raw)}
	if k, ok := ParseKey(raw); ok {
		fields = append(fields,
			zap.String("provider", k.Provider),
			zap.String("model_id", k.ModelID),
		)
	}
	return fields
}
