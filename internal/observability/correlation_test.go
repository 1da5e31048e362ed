package observability

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestCorrelationID(t *testing.T) {
	if got := CorrelationID(context.Background()); got != "" {
		t.Errorf("CorrelationID(empty) = %q, want empty", got)
	}
	ctx := WithCorrelationID(context.Background(), "abc")
	if got := CorrelationID(ctx); got != "abc" {
		t.Errorf("CorrelationID() = %q, want abc", got)
	}
}

// TestLoggerFromContext verifies the stored logger wins over the fallback and a nil fallback is safe.
func TestLoggerFromContext(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	stored := zap.New(core)
	ctx := WithLogger(context.Background(), stored)

	LoggerFromContext(ctx, zap.NewNop()).Info("hello")
	if logs.Len() != 1 {
		t.Errorf("stored logger entries = %d, want 1", logs.Len())
	}
	if LoggerFromContext(context.Background(), nil) == nil {
		t.Error("LoggerFromContext(nil fallback) = nil, want nop logger")
	}
}
