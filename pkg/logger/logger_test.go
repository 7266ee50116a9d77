package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewRejectsBadLevel(t *testing.T) {
	_, err := New(Config{Level: "loud"})
	require.Error(t, err)
}

func TestNewDefaults(t *testing.T) {
	l, err := New(Config{})
	require.NoError(t, err)
	require.NotNil(t, l)
}

func TestFromContextAddsIDs(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	base := zap.New(core)

	ctx := context.WithValue(context.Background(), TableKey, "trades")
	ctx = ContextWithWriter(ctx, "w-1")

	FromContext(ctx, base).Info("pushed")

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	require.Equal(t, "trades", fields["table"])
	require.Equal(t, "w-1", fields["writer_id"])
	_, hasReader := fields["reader_id"]
	require.False(t, hasReader)
}

func TestSetReplacesGlobal(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	prev := Get()
	Set(zap.New(core))
	defer Set(prev)

	Named("writer").Info("hello")
	require.Equal(t, 1, logs.Len())
	require.Equal(t, "writer", logs.All()[0].LoggerName)
}
