package contact

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoggerFromContextFallsBackToDefault(t *testing.T) {
	assert.Same(t, slog.Default(), LoggerFromContext(context.Background()))
	assert.Same(t, slog.Default(), LoggerFromContext(ContextWithLogger(context.Background(), nil)))
}

func TestWithLogAttrs(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, nil))

	ctx, logger := WithLogAttrs(ContextWithLogger(context.Background(), base), "request_id", "req-9")
	assert.Same(t, logger, LoggerFromContext(ctx))

	LoggerFromContext(ctx).Info("hello")
	assert.Contains(t, buf.String(), "request_id=req-9")
	assert.Contains(t, buf.String(), "msg=hello")
}
