// Package batch writes rows into the engine. RowWriter accumulates one row
// at a time across any number of tables, ColumnarWriter takes whole column
// arrays, and both hand a column-major Payload to an Executor which encodes
// it and issues exactly one engine call per push.
//
// Writers are single-owner and not safe for concurrent use. An Executor may
// be shared.
package batch

import (
	"context"
	"time"

	"github.com/apache/arrow/go/v17/arrow/memory"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/bureau14/qdbbatch/pkg/column"
	"github.com/bureau14/qdbbatch/pkg/compression"
	"github.com/bureau14/qdbbatch/pkg/engine"
	"github.com/bureau14/qdbbatch/pkg/logger"
	"github.com/bureau14/qdbbatch/pkg/metrics"
	"github.com/bureau14/qdbbatch/pkg/observability"
	"github.com/bureau14/qdbbatch/pkg/pool"
	"github.com/bureau14/qdbbatch/pkg/qdberrors"
	"github.com/bureau14/qdbbatch/pkg/wire"
)

// PushResult describes a push the engine answered.
type PushResult struct {
	// Rows is the number of rows in the payload.
	Rows int
	// Tables is the number of tables in the payload.
	Tables int
	// Bytes is the size of the encoded frame.
	Bytes int
	// Applied and Rejected are the engine's row counts. Both stay zero for
	// async pushes, which are only queued.
	Applied  int
	Rejected int
}

type executorOptions struct {
	log         *zap.Logger
	compression *compression.Config
	metrics     *metrics.Collector
	tracer      trace.Tracer
	allocator   memory.Allocator
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*executorOptions)

// WithLogger sets the executor logger.
func WithLogger(l *zap.Logger) ExecutorOption {
	return func(o *executorOptions) { o.log = l }
}

// WithCompression sets the frame compression. The default is LZ4.
func WithCompression(cfg compression.Config) ExecutorOption {
	return func(o *executorOptions) { o.compression = &cfg }
}

// WithMetrics routes push metrics to c instead of metrics.Default().
func WithMetrics(c *metrics.Collector) ExecutorOption {
	return func(o *executorOptions) { o.metrics = c }
}

// WithTracer sets the tracer used for push spans.
func WithTracer(t trace.Tracer) ExecutorOption {
	return func(o *executorOptions) { o.tracer = t }
}

// WithAllocator sets the Arrow allocator used to build frames.
func WithAllocator(mem memory.Allocator) ExecutorOption {
	return func(o *executorOptions) { o.allocator = mem }
}

// Executor turns payloads into engine pushes. It owns the encoded frame for
// the duration of the engine call only.
type Executor struct {
	eng     engine.Engine
	enc     *wire.Encoder
	log     *zap.Logger
	metrics *metrics.Collector
	tracer  trace.Tracer
}

// NewExecutor returns an executor pushing to eng.
func NewExecutor(eng engine.Engine, opts ...ExecutorOption) (*Executor, error) {
	if eng == nil {
		return nil, qdberrors.New(qdberrors.ErrorTypeInvalidArgument, "engine is nil")
	}
	o := executorOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = logger.Named("batch")
	}
	if o.compression == nil {
		o.compression = compression.DefaultConfig()
	}
	if o.metrics == nil {
		o.metrics = metrics.Default()
	}
	if o.tracer == nil {
		o.tracer = observability.Tracer()
	}

	comp, err := compression.NewCompressor(o.compression)
	if err != nil {
		return nil, qdberrors.Wrap(err, qdberrors.ErrorTypeConfig, "frame compression")
	}
	enc, err := wire.NewEncoder(comp, o.allocator)
	if err != nil {
		return nil, qdberrors.Wrap(err, qdberrors.ErrorTypeConfig, "frame encoder")
	}

	return &Executor{
		eng:     eng,
		enc:     enc,
		log:     o.log,
		metrics: o.metrics,
		tracer:  o.tracer,
	}, nil
}

// Engine returns the engine the executor pushes to.
func (x *Executor) Engine() engine.Engine { return x.eng }

// Push validates p, encodes it and hands it to the engine in one call.
// Nothing is retried. A payload without rows is a no-op unless it truncates
// explicit ranges.
func (x *Executor) Push(ctx context.Context, p Payload, mode engine.Mode, opts engine.PushOptions) (PushResult, error) {
	ctx, span := observability.NewSpan(ctx, x.tracer, "qdbbatch.push")
	defer span.End()
	span.SetAttribute("mode", mode.String())
	span.SetAttribute("tables", len(p.Tables))

	log := logger.FromContext(ctx, x.log)

	if err := p.Validate(); err != nil {
		x.fail(span, log, mode, err)
		return PushResult{}, err
	}

	res := PushResult{Rows: p.Rows(), Tables: len(p.Tables)}
	span.SetAttribute("rows", res.Rows)
	if res.Rows == 0 && !(mode == engine.Truncate && len(opts.TruncateRanges) > 0) {
		return res, nil
	}
	for _, rs := range opts.TruncateRanges {
		if err := engine.ValidateRanges(rs); err != nil {
			x.fail(span, log, mode, err)
			return PushResult{}, err
		}
	}

	timer := metrics.NewTimer()
	buf := pool.GetBuffer()
	defer pool.PutBuffer(buf)

	if err := x.enc.Encode(ctx, p.Tables, buf); err != nil {
		x.fail(span, log, mode, err)
		return PushResult{}, err
	}
	res.Bytes = buf.Len()
	buffered := p.MemoryUsage()
	span.SetAttribute("bytes", res.Bytes)
	span.SetAttribute("buffered_bytes", buffered)

	status, code := x.eng.PushBatch(ctx, buf.Bytes(), mode, opts)
	res.Applied = status.AppliedRows
	res.Rejected = status.RejectedRows

	if err := engine.Translate(code, "push"); err != nil {
		err = err.WithDetail("applied_rows", status.AppliedRows).
			WithDetail("rejected_rows", status.RejectedRows)
		if len(status.TableCodes) > 0 {
			tables := make(map[string]string, len(status.TableCodes))
			for alias, c := range status.TableCodes {
				tables[alias] = c.String()
			}
			err = err.WithDetail("tables", tables)
		}
		x.fail(span, log, mode, err)
		return res, err
	}

	elapsed := timer.Stop()
	x.metrics.ObservePush(mode.String(), res.Rows, res.Bytes, elapsed)
	log.Debug("pushed",
		zap.Stringer("mode", mode),
		zap.Int("tables", res.Tables),
		zap.Int("rows", res.Rows),
		zap.Int("bytes", res.Bytes),
		zap.Int64("buffered_bytes", buffered),
		zap.String("compression", string(x.enc.Algorithm())),
		zap.Duration("duration", elapsed))
	return res, nil
}

func (x *Executor) fail(span *observability.Span, log *zap.Logger, mode engine.Mode, err error) {
	kind := qdberrors.TypeOf(err)
	span.RecordError(err)
	x.metrics.ObserveError("push", string(kind))
	log.Warn("push failed",
		zap.Stringer("mode", mode),
		zap.String("kind", string(kind)),
		zap.Error(err))
}

// CreateTable creates alias with the given shard duration and columns.
func (x *Executor) CreateTable(ctx context.Context, alias string, shard time.Duration, columns []column.Schema) error {
	if alias == "" {
		return qdberrors.New(qdberrors.ErrorTypeInvalidArgument, "table alias is empty")
	}
	if shard <= 0 {
		return qdberrors.Newf(qdberrors.ErrorTypeInvalidArgument, "shard duration %s is not positive", shard)
	}
	if err := validateSchemas(columns); err != nil {
		return err
	}
	if err := engine.Translate(x.eng.CreateTable(ctx, alias, shard, columns), "create table"); err != nil {
		return x.adminError(err, alias)
	}
	x.log.Info("table created", zap.String("table", alias), zap.Duration("shard", shard), zap.Int("columns", len(columns)))
	return nil
}

// InsertColumns appends columns to alias.
func (x *Executor) InsertColumns(ctx context.Context, alias string, columns []column.Schema) error {
	if len(columns) == 0 {
		return qdberrors.New(qdberrors.ErrorTypeInvalidArgument, "no columns to insert")
	}
	if err := validateSchemas(columns); err != nil {
		return err
	}
	if err := engine.Translate(x.eng.InsertColumns(ctx, alias, columns), "insert columns"); err != nil {
		return x.adminError(err, alias)
	}
	return nil
}

// Columns returns every column of alias in table order.
func (x *Executor) Columns(ctx context.Context, alias string) ([]column.Schema, error) {
	return x.resolve(ctx, alias, nil)
}

// resolve binds names in alias with one engine call. A missing column is
// only attributed when a single name was asked for, since the engine does
// not say which one of several is missing.
func (x *Executor) resolve(ctx context.Context, alias string, names []string) ([]column.Schema, error) {
	schemas, code := x.eng.ResolveColumns(ctx, alias, names)
	if err := engine.Translate(code, "resolve columns"); err != nil {
		err = err.WithDetail("table", alias)
		if code == engine.ColumnNotFound && len(names) == 1 {
			err = err.WithDetail("column", names[0])
		}
		x.metrics.ObserveError("resolve", string(err.Type))
		return nil, err
	}
	return schemas, nil
}

func (x *Executor) adminError(err *qdberrors.Error, alias string) error {
	x.metrics.ObserveError("admin", string(err.Type))
	return err.WithDetail("table", alias)
}

func validateSchemas(columns []column.Schema) error {
	seen := make(map[string]struct{}, len(columns))
	for _, c := range columns {
		if err := c.Validate(); err != nil {
			return err
		}
		if _, dup := seen[c.Name]; dup {
			return qdberrors.Newf(qdberrors.ErrorTypeInvalidArgument, "column %s is listed twice", c.Name)
		}
		seen[c.Name] = struct{}{}
	}
	return nil
}
