package observability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/bureau14/qdbbatch/pkg/qdberrors"
)

func TestSpanLifecycle(t *testing.T) {
	ctx, span := NewSpan(context.Background(), noop.NewTracerProvider().Tracer("test"), "push")
	require.NotNil(t, ctx)

	span.SetAttribute("rows", 10)
	span.SetAttribute("bytes", int64(512))
	span.SetAttribute("atomic", true)
	span.SetAttribute("ratio", 0.5)
	span.SetAttribute("mode", "fast")
	span.SetAttribute("elapsed", time.Second)
	span.RecordError(nil)
	span.RecordError(qdberrors.New(qdberrors.ErrorTypePartialFailure, "some tables failed"))

	assert.Len(t, span.attributes, 7)
	assert.Equal(t, "partial_failure", span.attributes[6].Value.AsString())
	assert.Equal(t, "1s", span.attributes[5].Value.AsString())
	span.End()
}

func TestNewSpanDefaultsToGlobalTracer(t *testing.T) {
	_, span := NewSpan(context.Background(), nil, "bulk_read")
	require.NotNil(t, span)
	assert.GreaterOrEqual(t, span.Duration(), time.Duration(0))
	span.End()
}
