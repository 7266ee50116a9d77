package batch

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bureau14/qdbbatch/pkg/column"
	"github.com/bureau14/qdbbatch/pkg/engine"
	"github.com/bureau14/qdbbatch/pkg/logger"
	"github.com/bureau14/qdbbatch/pkg/qdberrors"
	"github.com/bureau14/qdbbatch/pkg/wire"
)

// TableColumns selects the columns of one table a ColumnarWriter binds.
// No columns binds every column of the table.
type TableColumns struct {
	Table   string
	Columns []string
}

type columnarTable struct {
	alias   string
	schemas []column.Schema
	ts      *column.TimestampColumn
	// cols holds one buffer per schema; nil until set.
	cols []column.Column
}

// ColumnarWriter takes whole column arrays per table. Schemas are resolved
// once, when the writer is created.
type ColumnarWriter struct {
	id     string
	exec   *Executor
	opts   writerOptions
	log    *zap.Logger
	tables []*columnarTable
	index  map[string]int
}

// NewColumnarWriter resolves the schemas of tables.
func NewColumnarWriter(ctx context.Context, exec *Executor, tables []TableColumns, opts ...WriterOption) (*ColumnarWriter, error) {
	if len(tables) == 0 {
		return nil, qdberrors.New(qdberrors.ErrorTypeInvalidArgument, "columnar writer needs at least one table")
	}

	id := uuid.NewString()
	o := newWriterOptions(ctx, id, opts)
	w := &ColumnarWriter{
		id:     id,
		exec:   exec,
		opts:   o,
		log:    o.log,
		tables: make([]*columnarTable, 0, len(tables)),
		index:  make(map[string]int, len(tables)),
	}
	for _, tc := range tables {
		if tc.Table == "" {
			return nil, qdberrors.New(qdberrors.ErrorTypeInvalidArgument, "table alias is empty")
		}
		if _, dup := w.index[tc.Table]; dup {
			return nil, qdberrors.Newf(qdberrors.ErrorTypeInvalidArgument, "table %s is listed twice", tc.Table)
		}
		schemas, err := exec.resolve(ctx, tc.Table, tc.Columns)
		if err != nil {
			return nil, err
		}
		w.index[tc.Table] = len(w.tables)
		w.tables = append(w.tables, &columnarTable{
			alias:   tc.Table,
			schemas: schemas,
			cols:    make([]column.Column, len(schemas)),
		})
	}

	w.log.Debug("columnar writer bound", zap.Int("tables", len(w.tables)))
	return w, nil
}

// ID returns the writer instance id used in logs.
func (w *ColumnarWriter) ID() string { return w.id }

// Schemas returns the bound columns of table.
func (w *ColumnarWriter) Schemas(table string) ([]column.Schema, error) {
	t, err := w.table(table)
	if err != nil {
		return nil, err
	}
	return append([]column.Schema(nil), t.schemas...), nil
}

// RowCount returns the number of timestamps set across all tables.
func (w *ColumnarWriter) RowCount() int {
	n := 0
	for _, t := range w.tables {
		if t.ts != nil {
			n += t.ts.Len()
		}
	}
	return n
}

// Reset drops every array set since the last push.
func (w *ColumnarWriter) Reset() {
	for _, t := range w.tables {
		t.ts = nil
		for i := range t.cols {
			t.cols[i] = nil
		}
	}
}

func (w *ColumnarWriter) table(alias string) (*columnarTable, error) {
	i, ok := w.index[alias]
	if !ok {
		return nil, qdberrors.Newf(qdberrors.ErrorTypeAliasNotFound, "table %s is not bound to this writer", alias).
			WithDetail("table", alias)
	}
	return w.tables[i], nil
}

// ColumnIndex returns the zero-based offset of name among the bound
// columns of table, the index accepted by the Set*ColumnAt setters.
func (w *ColumnarWriter) ColumnIndex(table, name string) (int, error) {
	t, err := w.table(table)
	if err != nil {
		return -1, err
	}
	off := column.Index(t.schemas, name)
	if off < 0 {
		return -1, qdberrors.Newf(qdberrors.ErrorTypeColumnNotFound, "column %s.%s is not bound", table, name).
			WithDetail("table", table).
			WithDetail("column", name)
	}
	return off, nil
}

// target checks that index addresses a bound column of type typ.
func (w *ColumnarWriter) target(alias string, index int, typ column.Type) (*columnarTable, error) {
	t, err := w.table(alias)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(t.schemas) {
		return nil, qdberrors.Newf(qdberrors.ErrorTypeColumnNotFound, "column index %d is out of range for %s", index, alias).
			WithDetail("table", alias).
			WithDetail("index", index)
	}
	s := t.schemas[index]
	if s.Type != typ {
		return nil, qdberrors.Newf(qdberrors.ErrorTypeTypeMismatch, "column %s.%s is %s, not %s", alias, s.Name, s.Type, typ).
			WithDetail("table", alias).
			WithDetail("column", s.Name)
	}
	return t, nil
}

func checkMask(n int, valid []bool) error {
	if valid != nil && len(valid) != n {
		return qdberrors.Newf(qdberrors.ErrorTypeInvalidArgument, "validity mask has %d entries for %d values", len(valid), n)
	}
	return nil
}

func present(valid []bool, i int) bool {
	return valid == nil || valid[i]
}

// SetTimestamps sets the timestamp index of table.
func (w *ColumnarWriter) SetTimestamps(table string, ts []time.Time) error {
	t, err := w.table(table)
	if err != nil {
		return err
	}
	c := column.NewTimestampColumn(len(ts))
	for _, v := range ts {
		c.Append(column.FromTime(v))
	}
	t.ts = c
	return nil
}

// SetDoubleColumn sets a double column. valid marks present values; nil
// means all present.
func (w *ColumnarWriter) SetDoubleColumn(table, name string, values []float64, valid []bool) error {
	off, err := w.ColumnIndex(table, name)
	if err != nil {
		return err
	}
	return w.SetDoubleColumnAt(table, off, values, valid)
}

// SetDoubleColumnAt is SetDoubleColumn addressing the column by offset.
func (w *ColumnarWriter) SetDoubleColumnAt(table string, off int, values []float64, valid []bool) error {
	t, err := w.target(table, off, column.TypeDouble)
	if err != nil {
		return err
	}
	if err := checkMask(len(values), valid); err != nil {
		return err
	}
	c := column.NewDoubleColumn(len(values))
	for i, v := range values {
		if present(valid, i) {
			c.Append(v)
		} else {
			c.AppendNull()
		}
	}
	t.cols[off] = c
	return nil
}

// SetInt64Column sets an int64 column.
func (w *ColumnarWriter) SetInt64Column(table, name string, values []int64, valid []bool) error {
	off, err := w.ColumnIndex(table, name)
	if err != nil {
		return err
	}
	return w.SetInt64ColumnAt(table, off, values, valid)
}

// SetInt64ColumnAt is SetInt64Column addressing the column by offset.
func (w *ColumnarWriter) SetInt64ColumnAt(table string, off int, values []int64, valid []bool) error {
	t, err := w.target(table, off, column.TypeInt64)
	if err != nil {
		return err
	}
	if err := checkMask(len(values), valid); err != nil {
		return err
	}
	c := column.NewInt64Column(len(values))
	for i, v := range values {
		if present(valid, i) {
			c.Append(v)
		} else {
			c.AppendNull()
		}
	}
	t.cols[off] = c
	return nil
}

// SetBlobColumn sets a blob column. A nil element is a null; an empty
// non-nil slice is a present empty blob. Slices are retained until the push.
func (w *ColumnarWriter) SetBlobColumn(table, name string, values [][]byte) error {
	off, err := w.ColumnIndex(table, name)
	if err != nil {
		return err
	}
	return w.SetBlobColumnAt(table, off, values)
}

// SetBlobColumnAt is SetBlobColumn addressing the column by offset.
func (w *ColumnarWriter) SetBlobColumnAt(table string, off int, values [][]byte) error {
	t, err := w.target(table, off, column.TypeBlob)
	if err != nil {
		return err
	}
	c := column.NewBlobColumn(len(values))
	for _, v := range values {
		if v == nil {
			c.AppendNull()
		} else {
			c.Append(v)
		}
	}
	t.cols[off] = c
	return nil
}

// SetStringColumn sets a string column.
func (w *ColumnarWriter) SetStringColumn(table, name string, values []string, valid []bool) error {
	off, err := w.ColumnIndex(table, name)
	if err != nil {
		return err
	}
	return w.SetStringColumnAt(table, off, values, valid)
}

// SetStringColumnAt is SetStringColumn addressing the column by offset.
func (w *ColumnarWriter) SetStringColumnAt(table string, off int, values []string, valid []bool) error {
	t, err := w.target(table, off, column.TypeString)
	if err != nil {
		return err
	}
	if err := checkMask(len(values), valid); err != nil {
		return err
	}
	c := column.NewStringColumn(len(values))
	fillStrings(c, values, valid)
	t.cols[off] = c
	return nil
}

// SetSymbolColumn sets a symbol column.
func (w *ColumnarWriter) SetSymbolColumn(table, name string, values []string, valid []bool) error {
	off, err := w.ColumnIndex(table, name)
	if err != nil {
		return err
	}
	return w.SetSymbolColumnAt(table, off, values, valid)
}

// SetSymbolColumnAt is SetSymbolColumn addressing the column by offset.
func (w *ColumnarWriter) SetSymbolColumnAt(table string, off int, values []string, valid []bool) error {
	t, err := w.target(table, off, column.TypeSymbol)
	if err != nil {
		return err
	}
	if err := checkMask(len(values), valid); err != nil {
		return err
	}
	c := column.NewSymbolColumn(t.schemas[off].Symtable, len(values))
	fillStrings(c, values, valid)
	t.cols[off] = c
	return nil
}

func fillStrings(c *column.StringColumn, values []string, valid []bool) {
	for i, v := range values {
		if present(valid, i) {
			c.Append(v)
		} else {
			c.AppendNull()
		}
	}
}

// SetTimestampColumn sets a timestamp column.
func (w *ColumnarWriter) SetTimestampColumn(table, name string, values []time.Time, valid []bool) error {
	off, err := w.ColumnIndex(table, name)
	if err != nil {
		return err
	}
	return w.SetTimestampColumnAt(table, off, values, valid)
}

// SetTimestampColumnAt is SetTimestampColumn addressing the column by offset.
func (w *ColumnarWriter) SetTimestampColumnAt(table string, off int, values []time.Time, valid []bool) error {
	t, err := w.target(table, off, column.TypeTimestamp)
	if err != nil {
		return err
	}
	if err := checkMask(len(values), valid); err != nil {
		return err
	}
	c := column.NewTimestampColumn(len(values))
	for i, v := range values {
		if present(valid, i) {
			c.Append(column.FromTime(v))
		} else {
			c.AppendNull()
		}
	}
	t.cols[off] = c
	return nil
}

// Payload returns the arrays set so far, one batch per table with at least
// one timestamp or column. Unset columns are filled with nulls.
func (w *ColumnarWriter) Payload() Payload {
	return w.payload(false)
}

// payload keeps zero-row batches of untouched tables when all is set, so a
// truncating push still erases their ranges.
func (w *ColumnarWriter) payload(all bool) Payload {
	p := Payload{Tables: make([]wire.TableBatch, 0, len(w.tables))}
	for _, t := range w.tables {
		ts := t.ts
		if ts == nil {
			ts = column.NewTimestampColumn(0)
		}
		set := ts.Len() > 0
		cols := make([]column.Column, len(t.schemas))
		for i, s := range t.schemas {
			if t.cols[i] != nil {
				cols[i] = t.cols[i]
				set = true
				continue
			}
			cols[i] = column.NullColumn(s, ts.Len())
		}
		if !set && !all {
			continue
		}
		p.Tables = append(p.Tables, wire.TableBatch{
			Alias:      t.alias,
			Schemas:    t.schemas,
			Timestamps: ts,
			Columns:    cols,
		})
	}
	return p
}

// Push commits every table transactionally.
func (w *ColumnarWriter) Push(ctx context.Context) (PushResult, error) {
	return w.push(ctx, engine.Transactional, nil)
}

// PushFast applies each table independently, unless the writer was built
// WithTransactional.
func (w *ColumnarWriter) PushFast(ctx context.Context) (PushResult, error) {
	return w.push(ctx, engine.Fast, nil)
}

// PushAsync queues the payload in the engine.
func (w *ColumnarWriter) PushAsync(ctx context.Context) (PushResult, error) {
	return w.push(ctx, engine.Async, nil)
}

// PushTruncate replaces ranges of every table with the payload.
func (w *ColumnarWriter) PushTruncate(ctx context.Context, ranges ...engine.Range) (PushResult, error) {
	return w.push(ctx, engine.Truncate, ranges)
}

func (w *ColumnarWriter) push(ctx context.Context, mode engine.Mode, ranges []engine.Range) (PushResult, error) {
	p := w.payload(mode == engine.Truncate && len(ranges) > 0)
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
