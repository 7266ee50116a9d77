// Package testutil provides testing utilities for qdbbatch
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/bureau14/qdbbatch/pkg/column"
	"github.com/bureau14/qdbbatch/pkg/engine/memengine"
)

// TestLogger creates a test logger that writes to the test output.
// The logger is automatically cleaned up when the test completes.
func TestLogger(t *testing.T) *zap.Logger {
	return zaptest.NewLogger(t)
}

// TestContext creates a test context with a 30-second timeout.
// The caller must call the returned cancel function to avoid leaks.
func TestContext(_ *testing.T) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

// AssertEventually asserts that a condition becomes true within the specified timeout.
// It checks the condition every 10ms until it succeeds or the timeout expires.
func AssertEventually(t *testing.T, condition func() bool, timeout time.Duration, msg string) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}

	t.Fatalf("condition not met within %v: %s", timeout, msg)
}

// NewEngine starts a reference engine logging to the test output. It is
// closed when the test completes.
func NewEngine(t *testing.T, opts ...memengine.Option) *memengine.Engine {
	t.Helper()
	opts = append([]memengine.Option{memengine.WithLogger(TestLogger(t))}, opts...)
	eng, err := memengine.New(opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })
	return eng
}

// CreateTable creates alias in eng with a one hour shard.
func CreateTable(t *testing.T, eng *memengine.Engine, alias string, columns ...column.Schema) {
	t.Helper()
	code := eng.CreateTable(context.Background(), alias, time.Hour, columns)
	require.True(t, code.OK(), "create %s: %s", alias, code)
}

// Timestamps returns n timestamps one second apart starting at start.
func Timestamps(start time.Time, n int) []time.Time {
	out := make([]time.Time, n)
	for i := range out {
		out[i] = start.Add(time.Duration(i) * time.Second)
	}
	return out
}
