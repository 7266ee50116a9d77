package wire

import (
	"fmt"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"

	"github.com/bureau14/qdbbatch/pkg/column"
)

// TableBatch is the column-major payload of one table: a shared timestamp
// index and one typed buffer per column, all of the same length.
type TableBatch struct {
	Alias      string
	Schemas    []column.Schema
	Timestamps *column.TimestampColumn
	Columns    []column.Column
}

// Len returns the row count, the length of the timestamp index.
func (b TableBatch) Len() int {
	if b.Timestamps == nil {
		return 0
	}
	return b.Timestamps.Len()
}

// Table is a decoded table record. Values are read straight out of the
// Arrow buffers; nothing is materialized per row.
type Table struct {
	Alias   string
	Schemas []column.Schema

	rec     arrow.Record
	secs    *array.Int64
	nsecs   *array.Int64
	readers []cellReader
}

func newTable(rec arrow.Record) (*Table, error) {
	alias, schemas, err := schemasFromArrow(rec.Schema())
	if err != nil {
		return nil, err
	}

	ts, ok := rec.Column(0).(*array.Struct)
	if !ok {
		return nil, fmt.Errorf("timestamp index of %s is %T", alias, rec.Column(0))
	}
	t := &Table{
		Alias:   alias,
		Schemas: schemas,
		rec:     rec,
		secs:    ts.Field(0).(*array.Int64),
		nsecs:   ts.Field(1).(*array.Int64),
		readers: make([]cellReader, len(schemas)),
	}
	for i, s := range schemas {
		r, err := newCellReader(s.Type, rec.Column(i+1))
		if err != nil {
			return nil, fmt.Errorf("column %s of %s: %w", s.Name, alias, err)
		}
		t.readers[i] = r
	}
	return t, nil
}

// Len returns the number of rows.
func (t *Table) Len() int { return int(t.rec.NumRows()) }

// Timestamp returns the timestamp of row i.
func (t *Table) Timestamp(i int) column.Timespec {
	return column.Timespec{Sec: t.secs.Value(i), Nsec: t.nsecs.Value(i)}
}

// Value returns the cell of column col at row i.
func (t *Table) Value(col, i int) column.Value {
	return t.readers[col].value(i)
}

// IsNull reports whether the cell of column col at row i holds no value.
func (t *Table) IsNull(col, i int) bool {
	return t.readers[col].isNull(i)
}

// ColumnIndex returns the offset of name, or -1.
func (t *Table) ColumnIndex(name string) int {
	return column.Index(t.Schemas, name)
}

// Record exposes the underlying Arrow record.
func (t *Table) Record() arrow.Record { return t.rec }

// Release drops the table's reference to its record.
func (t *Table) Release() {
	if t.rec != nil {
		t.rec.Release()
		t.rec = nil
	}
}

type cellReader interface {
	value(i int) column.Value
	isNull(i int) bool
}

func newCellReader(t column.Type, arr arrow.Array) (cellReader, error) {
	switch t {
	case column.TypeDouble:
		if a, ok := arr.(*array.Float64); ok {
			return doubleReader{a}, nil
		}
	case column.TypeInt64:
		if a, ok := arr.(*array.Int64); ok {
			return int64Reader{a}, nil
		}
	case column.TypeTimestamp:
		if a, ok := arr.(*array.Struct); ok {
			return timespecReader{a, a.Field(0).(*array.Int64), a.Field(1).(*array.Int64)}, nil
		}
	case column.TypeBlob:
		if a, ok := arr.(*array.Binary); ok {
			return blobReader{a}, nil
		}
	case column.TypeString:
		if a, ok := arr.(*array.String); ok {
			return stringReader{a}, nil
		}
	case column.TypeSymbol:
		if a, ok := arr.(*array.Dictionary); ok {
			if dict, ok := a.Dictionary().(*array.String); ok {
				return symbolReader{a, dict}, nil
			}
		}
	}
	return nil, fmt.Errorf("array %s does not hold %s values", arr.DataType(), t)
}

type doubleReader struct{ a *array.Float64 }

func (r doubleReader) isNull(i int) bool {
	return r.value(i).IsNull()
}

func (r doubleReader) value(i int) column.Value {
	if r.a.IsNull(i) {
		return column.Null(column.TypeDouble)
	}
	return column.DoubleValue(r.a.Value(i))
}

type int64Reader struct{ a *array.Int64 }

func (r int64Reader) isNull(i int) bool {
	return r.value(i).IsNull()
}

func (r int64Reader) value(i int) column.Value {
	if r.a.IsNull(i) {
		return column.Null(column.TypeInt64)
	}
	return column.Int64Value(r.a.Value(i))
}

type timespecReader struct {
	a           *array.Struct
	secs, nsecs *array.Int64
}

func (r timespecReader) isNull(i int) bool {
	return r.value(i).IsNull()
}

func (r timespecReader) value(i int) column.Value {
	if r.a.IsNull(i) {
		return column.Null(column.TypeTimestamp)
	}
	return column.TimespecValue(column.Timespec{Sec: r.secs.Value(i), Nsec: r.nsecs.Value(i)})
}

type blobReader struct{ a *array.Binary }

func (r blobReader) isNull(i int) bool { return r.a.IsNull(i) }

func (r blobReader) value(i int) column.Value {
	if r.a.IsNull(i) {
		return column.Null(column.TypeBlob)
	}
	return column.BlobValue(r.a.Value(i))
}

type stringReader struct{ a *array.String }

func (r stringReader) isNull(i int) bool { return r.a.IsNull(i) }

func (r stringReader) value(i int) column.Value {
	if r.a.IsNull(i) {
		return column.Null(column.TypeString)
	}
	return column.StringValue(r.a.Value(i))
}

type symbolReader struct {
	a    *array.Dictionary
	dict *array.String
}

func (r symbolReader) isNull(i int) bool { return r.a.IsNull(i) }

func (r symbolReader) value(i int) column.Value {
	if r.a.IsNull(i) {
		return column.Null(column.TypeSymbol)
	}
	return column.SymbolValue(r.dict.Value(r.a.GetValueIndex(i)))
}
