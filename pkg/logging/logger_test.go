package logging

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestFromContextFallsBackToDefault(t *testing.T) {
	if got := FromContext(context.Background()); got != DefaultLogger() {
		t.Fatalf("expected default logger when none attached")
	}
}

func TestWithFieldsCarriesLogger(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	ctx := WithLogger(context.Background(), zap.New(core))
	ctx = WithFields(ctx, zap.String("stream_id", "abc"))

	L(ctx).Info("hello")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(entries))
	}
	if entries[0].ContextMap()["stream_id"] != "abc" {
		t.Fatalf("expected stream_id field, got %#v", entries[0].ContextMap())
	}
}

func TestNewLoggerLevel(t *testing.T) {
	logger, err := NewLogger(Options{Env: "production", Level: "warn"})
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	if logger.Core().Enabled(zap.InfoLevel) {
		t.Fatalf("info should be disabled at warn level")
	}
	if !logger.Core().Enabled(zap.WarnLevel) {
		t.Fatalf("warn should be enabled")
	}
}

func TestNewLoggerRejectsUnknownLevel(t *testing.T) {
	if _, err := NewLogger(Options{Env: "production", Level: "loud"}); err == nil {
		t.Fatalf("expected error for unknown level")
	}

	t.Setenv("LOG_LEVEL", "verbose")
	if _, err := NewLogger(Options{Env: "production"}); err == nil {
		t.Fatalf("expected error for unknown LOG_LEVEL")
	}
}
