// Package reader streams rows out of engine bulk reads.
//
// A Reader holds one engine result for its whole life and decodes it into
// Arrow records once. Rows and cells are views into those records: they are
// valid until the reader moves to another row or is closed, after which
// every access fails with a released error.
//
//	r, err := reader.Open(ctx, eng, []string{"price", "volume"},
//	    []reader.TableRange{reader.Table("trades", rng)})
//	if err != nil {
//	    return err
//	}
//	defer r.Close()
//	for r.Next() {
//	    row := r.Row()
//	    ...
//	}
//	return r.Err()
package reader

import (
	"context"
	"errors"
	"sync"

	"github.com/apache/arrow/go/v17/arrow/memory"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/bureau14/qdbbatch/pkg/column"
	"github.com/bureau14/qdbbatch/pkg/engine"
	"github.com/bureau14/qdbbatch/pkg/logger"
	"github.com/bureau14/qdbbatch/pkg/metrics"
	"github.com/bureau14/qdbbatch/pkg/observability"
	"github.com/bureau14/qdbbatch/pkg/qdberrors"
	"github.com/bureau14/qdbbatch/pkg/wire"
)

// TableRange pairs a table with the ranges to read. No ranges reads all time.
type TableRange = engine.TableRange

// Table builds a TableRange.
func Table(alias string, ranges ...engine.Range) TableRange {
	return TableRange{Alias: alias, Ranges: ranges}
}

type options struct {
	log       *zap.Logger
	metrics   *metrics.Collector
	tracer    trace.Tracer
	allocator memory.Allocator
}

// Option configures a Reader.
type Option func(*options)

// WithLogger sets the reader logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithMetrics routes read metrics to c instead of metrics.Default().
func WithMetrics(c *metrics.Collector) Option {
	return func(o *options) { o.metrics = c }
}

// WithTracer sets the tracer used for the open span.
func WithTracer(t trace.Tracer) Option {
	return func(o *options) { o.tracer = t }
}

// WithAllocator sets the Arrow allocator used to decode results.
func WithAllocator(mem memory.Allocator) Option {
	return func(o *options) { o.allocator = mem }
}

// Reader is a forward-only cursor over the rows of a bulk read. Tables come
// in the order requested; rows within a table by ascending timestamp.
// A Reader is not safe for concurrent use.
type Reader struct {
	id      string
	eng     engine.Engine
	handle  engine.Handle
	frame   *wire.Frame
	schemas []column.Schema
	log     *zap.Logger
	metrics *metrics.Collector

	table int
	row   int
	// gen changes on every move; views remember the gen they were made at.
	gen       uint64
	delivered int
	closed    bool
	err       error
	closeOnce sync.Once
}

// Open reads columns from tables. No columns selects every column of the
// first table, which the other tables must then share.
func Open(ctx context.Context, eng engine.Engine, columns []string, tables []TableRange, opts ...Option) (*Reader, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = logger.Named("reader")
	}
	if o.metrics == nil {
		o.metrics = metrics.Default()
	}

	id := uuid.NewString()
	ctx = logger.ContextWithReader(ctx, id)
	ctx, span := observability.NewSpan(ctx, o.tracer, "qdbbatch.bulk_read")
	defer span.End()
	span.SetAttribute("tables", len(tables))
	span.SetAttribute("columns", len(columns))

	log := logger.FromContext(ctx, o.log)
	fail := func(err error) (*Reader, error) {
		span.RecordError(err)
		o.metrics.ObserveError("bulk_read", string(qdberrors.TypeOf(err)))
		log.Warn("bulk read failed", zap.Error(err))
		return nil, err
	}

	if len(tables) == 0 {
		return fail(qdberrors.New(qdberrors.ErrorTypeInvalidArgument, "bulk read needs at least one table"))
	}
	for _, tr := range tables {
		if err := engine.ValidateRanges(tr.Ranges); err != nil {
			var qe *qdberrors.Error
			if errors.As(err, &qe) {
				return fail(qe.WithDetail("table", tr.Alias))
			}
			return fail(err)
		}
	}

	h, code := eng.BulkRead(ctx, columns, tables)
	if err := engine.Translate(code, "bulk read"); err != nil {
		return fail(err)
	}
	data, code := eng.ResultFrame(h)
	if err := engine.Translate(code, "result frame"); err != nil {
		_ = eng.Release(h)
		return fail(err)
	}
	frame, err := wire.Decode(data, o.allocator)
	if err != nil {
		_ = eng.Release(h)
		return fail(err)
	}

	r := &Reader{
		id:      id,
		eng:     eng,
		handle:  h,
		frame:   frame,
		log:     log,
		metrics: o.metrics,
		row:     -1,
	}
	if len(frame.Tables) > 0 {
		r.schemas = frame.Tables[0].Schemas
	}
	o.metrics.BulkReads.Inc()
	span.SetAttribute("rows", frame.Rows())
	log.Debug("bulk read opened", zap.Int("tables", len(frame.Tables)), zap.Int("rows", frame.Rows()))
	return r, nil
}

// ID returns the reader instance id used in logs.
func (r *Reader) ID() string { return r.id }

// Columns returns the schemas of the columns each row holds, in order.
func (r *Reader) Columns() []column.Schema {
	return append([]column.Schema(nil), r.schemas...)
}

// Next moves to the next row. It returns false at the end of the result
// or once the reader is closed.
func (r *Reader) Next() bool {
	if r.closed {
		if r.err == nil {
			r.err = qdberrors.New(qdberrors.ErrorTypeReleased, "reader is closed")
		}
		return false
	}
	r.gen++
	for r.table < len(r.frame.Tables) {
		t := r.frame.Tables[r.table]
		if r.row+1 < t.Len() {
			r.row++
			r.delivered++
			return true
		}
		r.table++
		r.row = -1
	}
	return false
}

// Row returns the current row, or nil before the first Next and after the
// last one.
func (r *Reader) Row() *Row {
	if r.closed || r.row < 0 || r.table >= len(r.frame.Tables) {
		return nil
	}
	return &Row{r: r, t: r.frame.Tables[r.table], row: r.row, gen: r.gen}
}

// Err returns the error that stopped iteration, if any.
func (r *Reader) Err() error { return r.err }

// Close releases the decoded records and the engine result. It is safe to
// call more than once.
func (r *Reader) Close() error {
	var err error
	r.closeOnce.Do(func() {
		r.closed = true
		r.gen++
		r.frame.Release()
		r.metrics.RowsRead.Add(float64(r.delivered))
		if e := engine.Translate(r.eng.Release(r.handle), "release"); e != nil {
			err = e
		}
		r.log.Debug("bulk read closed", zap.Int("rows", r.delivered))
	})
	return err
}

func (r *Reader) released() error {
	return qdberrors.New(qdberrors.ErrorTypeReleased, "row is no longer current").
		WithDetail("reader_id", r.id)
}
