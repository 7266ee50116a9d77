package batch

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bureau14/qdbbatch/pkg/column"
	"github.com/bureau14/qdbbatch/pkg/engine"
	"github.com/bureau14/qdbbatch/pkg/logger"
	"github.com/bureau14/qdbbatch/pkg/qdberrors"
	"github.com/bureau14/qdbbatch/pkg/wire"
)

// ColumnRef names one column of one table.
type ColumnRef struct {
	Table  string
	Column string
}

func (r ColumnRef) String() string { return r.Table + "." + r.Column }

// rowTable is the buffer set of one bound table.
type rowTable struct {
	alias   string
	schemas []column.Schema
	ts      *column.TimestampColumn
	cols    []column.Column
}

type slot struct {
	table int
	col   int
}

// RowWriter accumulates rows over columns that may span several tables.
// Each StartRow adds one row to every bound table; tables whose slots stay
// null for that row are not stored by the engine.
type RowWriter struct {
	id     string
	exec   *Executor
	opts   writerOptions
	log    *zap.Logger
	refs   []ColumnRef
	tables []*rowTable
	slots  []slot
	names  map[string]int
	rows   int
}

// NewRowWriter binds refs, in order, with one resolution call per table.
func NewRowWriter(ctx context.Context, exec *Executor, refs []ColumnRef, opts ...WriterOption) (*RowWriter, error) {
	if len(refs) == 0 {
		return nil, qdberrors.New(qdberrors.ErrorTypeInvalidArgument, "row writer needs at least one column")
	}

	id := uuid.NewString()
	o := newWriterOptions(ctx, id, opts)
	w := &RowWriter{
		id:    id,
		exec:  exec,
		opts:  o,
		log:   o.log,
		refs:  append([]ColumnRef(nil), refs...),
		slots: make([]slot, len(refs)),
		names: make(map[string]int, 2*len(refs)),
	}

	// Group the requested names per table in first-bind order.
	tableIdx := make(map[string]int)
	var (
		aliases []string
		names   [][]string
	)
	seen := make(map[ColumnRef]struct{}, len(refs))
	for i, r := range refs {
		if r.Table == "" || r.Column == "" {
			return nil, qdberrors.Newf(qdberrors.ErrorTypeInvalidArgument, "column reference %d is incomplete", i)
		}
		if _, dup := seen[r]; dup {
			return nil, qdberrors.Newf(qdberrors.ErrorTypeInvalidArgument, "column %s is bound twice", r)
		}
		seen[r] = struct{}{}

		ti, ok := tableIdx[r.Table]
		if !ok {
			ti = len(names)
			tableIdx[r.Table] = ti
			aliases = append(aliases, r.Table)
			names = append(names, nil)
		}
		w.slots[i] = slot{table: ti, col: len(names[ti])}
		names[ti] = append(names[ti], r.Column)
	}

	w.tables = make([]*rowTable, len(aliases))
	for ti, alias := range aliases {
		schemas, err := exec.resolve(ctx, alias, names[ti])
		if err != nil {
			return nil, err
		}
		t := &rowTable{
			alias:   alias,
			schemas: schemas,
			ts:      column.NewTimestampColumn(o.capacity),
			cols:    make([]column.Column, len(schemas)),
		}
		for j, s := range schemas {
			t.cols[j] = column.New(s, o.capacity)
		}
		w.tables[ti] = t
	}

	ambiguous := make(map[string]struct{})
	for i, r := range refs {
		w.names[r.String()] = i
		if _, taken := w.names[r.Column]; taken {
			ambiguous[r.Column] = struct{}{}
			continue
		}
		w.names[r.Column] = i
	}
	for name := range ambiguous {
		delete(w.names, name)
	}

	w.log.Debug("row writer bound", zap.Int("tables", len(w.tables)), zap.Int("columns", len(refs)))
	return w, nil
}

// ID returns the writer instance id used in logs.
func (w *RowWriter) ID() string { return w.id }

// Columns returns the bound columns in binding order.
func (w *RowWriter) Columns() []ColumnRef {
	return append([]ColumnRef(nil), w.refs...)
}

// RowCount returns the number of rows started since the last push or reset.
func (w *RowWriter) RowCount() int { return w.rows }

// StartRow begins a row at ts. Every bound slot starts null.
func (w *RowWriter) StartRow(ts time.Time) {
	at := column.FromTime(ts)
	for _, t := range w.tables {
		t.ts.Append(at)
		for _, c := range t.cols {
			c.AppendNull()
		}
	}
	w.rows++
}

// Reset drops every buffered row.
func (w *RowWriter) Reset() {
	for _, t := range w.tables {
		t.ts.Reset()
		for _, c := range t.cols {
			c.Reset()
		}
	}
	w.rows = 0
}

func (w *RowWriter) set(index int, v column.Value) error {
	if index < 0 || index >= len(w.slots) {
		return qdberrors.Newf(qdberrors.ErrorTypeColumnNotFound, "column offset %d is out of range", index).
			WithDetail("offset", index)
	}
	if w.rows == 0 {
		return qdberrors.New(qdberrors.ErrorTypeInvalidArgument, "no row started")
	}
	s := w.slots[index]
	if err := w.tables[s.table].cols[s.col].Set(w.rows-1, v); err != nil {
		var qe *qdberrors.Error
		if errors.As(err, &qe) {
			return qe.WithDetail("column", w.refs[index].String())
		}
		return err
	}
	return nil
}

func (w *RowWriter) offset(name string) (int, error) {
	i, ok := w.names[name]
	if !ok {
		return -1, qdberrors.Newf(qdberrors.ErrorTypeColumnNotFound, "column %s is not bound or is ambiguous", name).
			WithDetail("column", name)
	}
	return i, nil
}

// SetNull clears the slot at index in the current row.
func (w *RowWriter) SetNull(index int) error {
	if index < 0 || index >= len(w.slots) {
		return qdberrors.Newf(qdberrors.ErrorTypeColumnNotFound, "column offset %d is out of range", index).
			WithDetail("offset", index)
	}
	s := w.slots[index]
	return w.set(index, column.Null(w.tables[s.table].schemas[s.col].Type))
}

// SetDouble sets a double slot of the current row.
func (w *RowWriter) SetDouble(index int, v float64) error {
	return w.set(index, column.DoubleValue(v))
}

// SetInt64 sets an int64 slot of the current row.
func (w *RowWriter) SetInt64(index int, v int64) error {
	return w.set(index, column.Int64Value(v))
}

// SetBlob sets a blob slot of the current row. A nil v stores an empty
// blob; use SetNull for no value. v is retained until the push.
func (w *RowWriter) SetBlob(index int, v []byte) error {
	return w.set(index, column.BlobValue(v))
}

// SetString sets a string slot of the current row.
func (w *RowWriter) SetString(index int, v string) error {
	return w.set(index, column.StringValue(v))
}

// SetSymbol sets a symbol slot of the current row.
func (w *RowWriter) SetSymbol(index int, v string) error {
	return w.set(index, column.SymbolValue(v))
}

// SetTimestamp sets a timestamp slot of the current row.
func (w *RowWriter) SetTimestamp(index int, v time.Time) error {
	return w.set(index, column.TimestampValue(v))
}

// SetDoubleByName is SetDouble addressed by name. Names are the plain
// column name when unique across the bound tables, otherwise table.column.
func (w *RowWriter) SetDoubleByName(name string, v float64) error {
	i, err := w.offset(name)
	if err != nil {
		return err
	}
	return w.SetDouble(i, v)
}

// SetInt64ByName is SetInt64 addressed by name.
func (w *RowWriter) SetInt64ByName(name string, v int64) error {
	i, err := w.offset(name)
	if err != nil {
		return err
	}
	return w.SetInt64(i, v)
}

// SetBlobByName is SetBlob addressed by name.
func (w *RowWriter) SetBlobByName(name string, v []byte) error {
	i, err := w.offset(name)
	if err != nil {
		return err
	}
	return w.SetBlob(i, v)
}

// SetStringByName is SetString addressed by name.
func (w *RowWriter) SetStringByName(name string, v string) error {
	i, err := w.offset(name)
	if err != nil {
		return err
	}
	return w.SetString(i, v)
}

// SetSymbolByName is SetSymbol addressed by name.
func (w *RowWriter) SetSymbolByName(name string, v string) error {
	i, err := w.offset(name)
	if err != nil {
		return err
	}
	return w.SetSymbol(i, v)
}

// SetTimestampByName is SetTimestamp addressed by name.
func (w *RowWriter) SetTimestampByName(name string, v time.Time) error {
	i, err := w.offset(name)
	if err != nil {
		return err
	}
	return w.SetTimestamp(i, v)
}

// Payload returns the buffered rows as one batch per table, in first-bind
// order. The batches alias the writer buffers.
func (w *RowWriter) Payload() Payload {
	p := Payload{Tables: make([]wire.TableBatch, len(w.tables))}
	for i, t := range w.tables {
		p.Tables[i] = wire.TableBatch{
			Alias:      t.alias,
			Schemas:    t.schemas,
			Timestamps: t.ts,
			Columns:    t.cols,
		}
	}
	return p
}

// Push commits the buffered rows transactionally.
func (w *RowWriter) Push(ctx context.Context) (PushResult, error) {
	return w.push(ctx, engine.Transactional, nil)
}

// PushFast applies each table independently. A failure of some tables
// yields a partial_failure error.
func (w *RowWriter) PushFast(ctx context.Context) (PushResult, error) {
	return w.push(ctx, engine.Fast, nil)
}

// PushAsync queues the rows in the engine and returns once queued.
func (w *RowWriter) PushAsync(ctx context.Context) (PushResult, error) {
	return w.push(ctx, engine.Async, nil)
}

// PushTruncate replaces ranges of every bound table with the buffered
// rows. Without ranges the span of each table's rows is replaced.
func (w *RowWriter) PushTruncate(ctx context.Context, ranges ...engine.Range) (PushResult, error) {
	return w.push(ctx, engine.Truncate, ranges)
}

// push keeps the buffers when the engine call fails.
func (w *RowWriter) push(ctx context.Context, mode engine.Mode, ranges []engine.Range) (PushResult, error) {
	p := w.Payload()
	truncate, err := truncateAll(p, ranges)
	if err != nil {
		return PushResult{}, err
	}
	res, err := w.exec.Push(logger.ContextWithWriter(ctx, w.id), p, mode, w.opts.pushOptions(truncate))
	if err != nil {
		return res, err
	}
	w.Reset()
	return res, nil
}
