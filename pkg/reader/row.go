package reader

import (
	"time"

	"github.com/bureau14/qdbbatch/pkg/column"
	"github.com/bureau14/qdbbatch/pkg/qdberrors"
	"github.com/bureau14/qdbbatch/pkg/wire"
)

// Synthetic cell offsets.
const (
	timestampCell = -1
	tableCell     = -2
)

// Row is a view of the current reader row. It does not own data.
type Row struct {
	r   *Reader
	t   *wire.Table
	row int
	gen uint64
}

func (w *Row) check() error {
	if w.r.closed || w.gen != w.r.gen {
		return w.r.released()
	}
	return nil
}

// Len returns the number of requested columns; $timestamp and $table are
// not counted.
func (w *Row) Len() int { return len(w.t.Schemas) }

// Timestamp returns the row timestamp.
func (w *Row) Timestamp() (time.Time, error) {
	if err := w.check(); err != nil {
		return time.Time{}, err
	}
	return w.t.Timestamp(w.row).Time(), nil
}

// Table returns the alias of the table the row belongs to.
func (w *Row) Table() (string, error) {
	if err := w.check(); err != nil {
		return "", err
	}
	return w.t.Alias, nil
}

// Cell returns the cell at column offset i.
func (w *Row) Cell(i int) (Cell, error) {
	if err := w.check(); err != nil {
		return Cell{}, err
	}
	if i < 0 || i >= len(w.t.Schemas) {
		return Cell{}, qdberrors.Newf(qdberrors.ErrorTypeColumnNotFound, "column offset %d is out of range", i).
			WithDetail("offset", i)
	}
	return Cell{row: w, col: i, typ: w.t.Schemas[i].Type}, nil
}

// CellByName returns the cell of the named column. The synthetic names
// $timestamp and $table address the row timestamp and table alias.
func (w *Row) CellByName(name string) (Cell, error) {
	if err := w.check(); err != nil {
		return Cell{}, err
	}
	switch name {
	case column.TimestampColumnName:
		return Cell{row: w, col: timestampCell, typ: column.TypeTimestamp}, nil
	case column.TableColumnName:
		return Cell{row: w, col: tableCell, typ: column.TypeString}, nil
	}
	i := w.t.ColumnIndex(name)
	if i < 0 {
		return Cell{}, qdberrors.Newf(qdberrors.ErrorTypeColumnNotFound, "column %s is not part of the result", name).
			WithDetail("column", name)
	}
	return w.Cell(i)
}

// Values returns the row values in column order. Blob payloads alias reader
// memory.
func (w *Row) Values() ([]column.Value, error) {
	if err := w.check(); err != nil {
		return nil, err
	}
	out := make([]column.Value, len(w.t.Schemas))
	for i := range out {
		out[i] = w.t.Value(i, w.row)
	}
	return out, nil
}

// Cell is a view of one value of a row. It is invalidated with its row.
type Cell struct {
	row *Row
	col int
	typ column.Type
}

// Type returns the column type.
func (c Cell) Type() column.Type { return c.typ }

// Value returns the tagged value of the cell.
func (c Cell) Value() (column.Value, error) {
	if c.row == nil {
		return column.Value{}, qdberrors.New(qdberrors.ErrorTypeReleased, "cell is not bound to a row")
	}
	if err := c.row.check(); err != nil {
		return column.Value{}, err
	}
	switch c.col {
	case timestampCell:
		return column.TimespecValue(c.row.t.Timestamp(c.row.row)), nil
	case tableCell:
		return column.StringValue(c.row.t.Alias), nil
	}
	return c.row.t.Value(c.col, c.row.row), nil
}

// IsNull reports whether the cell holds no value.
func (c Cell) IsNull() (bool, error) {
	v, err := c.Value()
	if err != nil {
		return false, err
	}
	return v.IsNull(), nil
}

// Interface returns the value as float64, int64, []byte, string or
// time.Time, or nil for a null cell.
func (c Cell) Interface() (interface{}, error) {
	v, err := c.Value()
	if err != nil {
		return nil, err
	}
	return v.Interface(), nil
}

// AsDouble returns a double cell. ok is false for a null.
func (c Cell) AsDouble() (float64, bool, error) {
	v, err := c.Value()
	if err != nil {
		return 0, false, err
	}
	return v.AsDouble()
}

// AsInt64 returns an int64 cell.
func (c Cell) AsInt64() (int64, bool, error) {
	v, err := c.Value()
	if err != nil {
		return 0, false, err
	}
	return v.AsInt64()
}

// AsBlob returns a blob cell. The slice aliases reader memory and is only
// valid while the cell is.
func (c Cell) AsBlob() ([]byte, bool, error) {
	v, err := c.Value()
	if err != nil {
		return nil, false, err
	}
	return v.AsBlob()
}

// AsString returns a string cell.
func (c Cell) AsString() (string, bool, error) {
	v, err := c.Value()
	if err != nil {
		return "", false, err
	}
	return v.AsString()
}

// AsSymbol returns a symbol cell.
func (c Cell) AsSymbol() (string, bool, error) {
	v, err := c.Value()
	if err != nil {
		return "", false, err
	}
	return v.AsSymbol()
}

// AsTimestamp returns a timestamp cell.
func (c Cell) AsTimestamp() (time.Time, bool, error) {
	v, err := c.Value()
	if err != nil {
		return time.Time{}, false, err
	}
	return v.AsTimestamp()
}
