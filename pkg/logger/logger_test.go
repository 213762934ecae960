package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	appctx "github.com/AksahyDwivedi/pharmacy/internal/core/context"
)

func observed(level zapcore.Level) (*Logger, *observer.ObservedLogs) {
	atom := zap.NewAtomicLevelAt(level)
	core, logs := observer.New(atom)
	return &Logger{SugaredLogger: zap.New(core).Sugar(), level: atom}, logs
}

func TestNew_UnknownLevelFallsBackToInfo(t *testing.T) {
	l, err := New(Config{Level: "chatty"})
	require.NoError(t, err)
	assert.Equal(t, zapcore.InfoLevel, l.Level().Level())
}

func TestFromContext_AttachesTrace(t *testing.T) {
	l, logs := observed(zapcore.DebugLevel)
	ctx := WithLogger(context.Background(), l)
	ctx = appctx.WithTrace(ctx, &appctx.TraceContext{
		TraceID:   "t-1",
		RequestID: "r-1",
		Route:     "/api/medicines/:id",
	})

	Info(ctx, "saved", "entity", "medicines")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "t-1", fields["trace_id"])
	assert.Equal(t, "r-1", fields["request_id"])
	assert.Equal(t, "/api/medicines/:id", fields["route"])
	assert.Equal(t, "medicines", fields["entity"])
}

func TestDerivedLoggersShareLevel(t *testing.T) {
	l, logs := observed(zapcore.InfoLevel)
	child := l.WithComponent("mirror")

	child.Debugw("hidden")
	l.Level().SetLevel(zapcore.DebugLevel)
	child.Debugw("shown")

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "shown", entry.Message)
	assert.Equal(t, "mirror", entry.LoggerName)
	assert.Equal(t, "mirror", entry.ContextMap()["component"])
}
