// Package observability wraps OpenTelemetry tracing for push, bulk read and
// aggregate operations. Spans go to the global tracer provider, which is a
// noop until the host application installs one.
package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/bureau14/qdbbatch/pkg/qdberrors"
)

// InstrumentationName names the tracer used by every qdbbatch component.
const InstrumentationName = "github.com/bureau14/qdbbatch"

// Tracer returns the qdbbatch tracer of the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(InstrumentationName)
}

// Span is a tracing span that batches its attributes until End.
type Span struct {
	span       trace.Span
	startTime  time.Time
	attributes []attribute.KeyValue
}

// NewSpan starts a span on tracer, or on Tracer() when tracer is nil.
func NewSpan(ctx context.Context, tracer trace.Tracer, operationName string) (context.Context, *Span) {
	if tracer == nil {
		tracer = Tracer()
	}
	ctx, span := tracer.Start(ctx, operationName)
	return ctx, &Span{span: span, startTime: time.Now()}
}

// SetAttribute adds an attribute, converting common Go types.
func (s *Span) SetAttribute(key string, value interface{}) {
	var attr attribute.KeyValue

	switch v := value.(type) {
	case string:
		attr = attribute.String(key, v)
	case int:
		attr = attribute.Int(key, v)
	case int64:
		attr = attribute.Int64(key, v)
	case float64:
		attr = attribute.Float64(key, v)
	case bool:
		attr = attribute.Bool(key, v)
	case fmt.Stringer:
		attr = attribute.String(key, v.String())
	default:
		attr = attribute.String(key, fmt.Sprintf("%v", v))
	}

	s.attributes = append(s.attributes, attr)
}

// RecordError marks the span failed and tags it with the error kind.
// A nil err is ignored.
func (s *Span) RecordError(err error) {
	if err == nil {
		return
	}
	s.SetAttribute("error.kind", string(qdberrors.TypeOf(err)))
	s.span.RecordError(err)
	s.span.SetStatus(codes.Error, err.Error())
}

// Duration returns the time since the span started.
func (s *Span) Duration() time.Duration {
	return time.Since(s.startTime)
}

// End flushes the attributes and ends the span.
func (s *Span) End() {
	if len(s.attributes) > 0 {
		s.span.SetAttributes(s.attributes...)
	}
	s.span.End()
}
