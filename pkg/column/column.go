package column

import (
	"math"

	"github.com/bureau14/qdbbatch/pkg/qdberrors"
)

// Column is a typed, null-aware buffer of values. Appending a null never
// fails, and reading a null slot always yields a null Value.
type Column interface {
	Type() Type
	Len() int
	AppendNull()
	AppendValue(v Value) error
	// Set overwrites slot i. It fails with type_mismatch when v has another type.
	Set(i int, v Value) error
	IsNull(i int) bool
	Value(i int) Value
	// Take returns a new column holding the slots at indices, in that order.
	Take(indices []int) Column
	Reset()
	// MemoryUsage estimates the payload bytes held by the buffer.
	MemoryUsage() int64
}

// New returns an empty column buffer for s.
func New(s Schema, capacity int) Column {
	switch s.Type {
	case TypeDouble:
		return NewDoubleColumn(capacity)
	case TypeInt64:
		return NewInt64Column(capacity)
	case TypeTimestamp:
		return NewTimestampColumn(capacity)
	case TypeBlob:
		return NewBlobColumn(capacity)
	case TypeSymbol:
		return NewSymbolColumn(s.Symtable, capacity)
	default:
		return NewStringColumn(capacity)
	}
}

// NullColumn returns a column of n null slots.
func NullColumn(s Schema, n int) Column {
	c := New(s, n)
	for i := 0; i < n; i++ {
		c.AppendNull()
	}
	return c
}

func mismatch(col Type, v Value) error {
	return qdberrors.Newf(qdberrors.ErrorTypeTypeMismatch, "cannot store %s value in %s column", v.Type(), col).
		WithDetail("column_type", col.String()).
		WithDetail("value_type", v.Type().String())
}

// DoubleColumn stores doubles; NaN marks a null slot.
type DoubleColumn struct {
	values []float64
}

// NewDoubleColumn creates a new double column
func NewDoubleColumn(capacity int) *DoubleColumn {
	return &DoubleColumn{values: make([]float64, 0, capacity)}
}

func (c *DoubleColumn) Type() Type  { return TypeDouble }
func (c *DoubleColumn) Len() int    { return len(c.values) }
func (c *DoubleColumn) AppendNull() { c.values = append(c.values, math.NaN()) }

// Append adds a double. NaN is stored as null.
func (c *DoubleColumn) Append(v float64) { c.values = append(c.values, v) }

func (c *DoubleColumn) AppendValue(v Value) error {
	if v.Type() != TypeDouble {
		return mismatch(TypeDouble, v)
	}
	c.values = append(c.values, v.f)
	if v.null {
		c.values[len(c.values)-1] = math.NaN()
	}
	return nil
}

func (c *DoubleColumn) Set(i int, v Value) error {
	if v.Type() != TypeDouble {
		return mismatch(TypeDouble, v)
	}
	if v.null {
		c.values[i] = math.NaN()
	} else {
		c.values[i] = v.f
	}
	return nil
}

func (c *DoubleColumn) IsNull(i int) bool { return math.IsNaN(c.values[i]) }
func (c *DoubleColumn) Value(i int) Value { return DoubleValue(c.values[i]) }

// Values exposes the raw buffer, nulls included as NaN.
func (c *DoubleColumn) Values() []float64 { return c.values }

func (c *DoubleColumn) Take(indices []int) Column {
	out := NewDoubleColumn(len(indices))
	for _, i := range indices {
		out.values = append(out.values, c.values[i])
	}
	return out
}

func (c *DoubleColumn) Reset()             { c.values = c.values[:0] }
func (c *DoubleColumn) MemoryUsage() int64 { return int64(len(c.values) * 8) }

// Int64Column stores integers; math.MinInt64 marks a null slot.
type Int64Column struct {
	values []int64
}

// NewInt64Column creates a new integer column
func NewInt64Column(capacity int) *Int64Column {
	return &Int64Column{values: make([]int64, 0, capacity)}
}

func (c *Int64Column) Type() Type  { return TypeInt64 }
func (c *Int64Column) Len() int    { return len(c.values) }
func (c *Int64Column) AppendNull() { c.values = append(c.values, math.MinInt64) }

// Append adds an integer.
func (c *Int64Column) Append(v int64) { c.values = append(c.values, v) }

func (c *Int64Column) AppendValue(v Value) error {
	if v.Type() != TypeInt64 {
		return mismatch(TypeInt64, v)
	}
	if v.null {
		c.AppendNull()
		return nil
	}
	c.values = append(c.values, v.i)
	return nil
}

func (c *Int64Column) Set(i int, v Value) error {
	if v.Type() != TypeInt64 {
		return mismatch(TypeInt64, v)
	}
	if v.null {
		c.values[i] = math.MinInt64
	} else {
		c.values[i] = v.i
	}
	return nil
}

func (c *Int64Column) IsNull(i int) bool { return c.values[i] == math.MinInt64 }
func (c *Int64Column) Value(i int) Value { return Int64Value(c.values[i]) }

// Values exposes the raw buffer, nulls included as math.MinInt64.
func (c *Int64Column) Values() []int64 { return c.values }

func (c *Int64Column) Take(indices []int) Column {
	out := NewInt64Column(len(indices))
	for _, i := range indices {
		out.values = append(out.values, c.values[i])
	}
	return out
}

func (c *Int64Column) Reset()             { c.values = c.values[:0] }
func (c *Int64Column) MemoryUsage() int64 { return int64(len(c.values) * 8) }

// TimestampColumn stores Timespecs; NullTimespec marks a null slot.
// Writers also use it as the shared timestamp index of a batch.
type TimestampColumn struct {
	values []Timespec
}

// NewTimestampColumn creates a new timestamp column
func NewTimestampColumn(capacity int) *TimestampColumn {
	return &TimestampColumn{values: make([]Timespec, 0, capacity)}
}

func (c *TimestampColumn) Type() Type  { return TypeTimestamp }
func (c *TimestampColumn) Len() int    { return len(c.values) }
func (c *TimestampColumn) AppendNull() { c.values = append(c.values, NullTimespec) }

// Append adds a timestamp.
func (c *TimestampColumn) Append(ts Timespec) { c.values = append(c.values, ts) }

func (c *TimestampColumn) AppendValue(v Value) error {
	if v.Type() != TypeTimestamp {
		return mismatch(TypeTimestamp, v)
	}
	if v.null {
		c.AppendNull()
		return nil
	}
	c.values = append(c.values, v.ts)
	return nil
}

func (c *TimestampColumn) Set(i int, v Value) error {
	if v.Type() != TypeTimestamp {
		return mismatch(TypeTimestamp, v)
	}
	if v.null {
		c.values[i] = NullTimespec
	} else {
		c.values[i] = v.ts
	}
	return nil
}

func (c *TimestampColumn) IsNull(i int) bool { return c.values[i].IsNull() }
func (c *TimestampColumn) Value(i int) Value { return TimespecValue(c.values[i]) }

// At returns the raw Timespec at i.
func (c *TimestampColumn) At(i int) Timespec { return c.values[i] }

// Values exposes the raw buffer.
func (c *TimestampColumn) Values() []Timespec { return c.values }

func (c *TimestampColumn) Take(indices []int) Column {
	out := NewTimestampColumn(len(indices))
	for _, i := range indices {
		out.values = append(out.values, c.values[i])
	}
	return out
}

func (c *TimestampColumn) Reset()             { c.values = c.values[:0] }
func (c *TimestampColumn) MemoryUsage() int64 { return int64(len(c.values) * 16) }

// BlobColumn stores byte slices with a validity bitmap, so a present
// zero-length blob stays distinct from null.
type BlobColumn struct {
	values [][]byte
	valid  *Bitmap
}

// NewBlobColumn creates a new blob column
func NewBlobColumn(capacity int) *BlobColumn {
	return &BlobColumn{values: make([][]byte, 0, capacity), valid: NewBitmap(capacity)}
}

func (c *BlobColumn) Type() Type { return TypeBlob }
func (c *BlobColumn) Len() int   { return len(c.values) }

func (c *BlobColumn) AppendNull() {
	c.values = append(c.values, nil)
	c.valid.Append(false)
}

// Append adds a present blob. The slice is retained, not copied.
func (c *BlobColumn) Append(v []byte) {
	if v == nil {
		v = []byte{}
	}
	c.values = append(c.values, v)
	c.valid.Append(true)
}

func (c *BlobColumn) AppendValue(v Value) error {
	if v.Type() != TypeBlob {
		return mismatch(TypeBlob, v)
	}
	if v.null {
		c.AppendNull()
		return nil
	}
	c.Append(v.bytes)
	return nil
}

func (c *BlobColumn) Set(i int, v Value) error {
	if v.Type() != TypeBlob {
		return mismatch(TypeBlob, v)
	}
	if v.null {
		c.values[i] = nil
		c.valid.Set(i, false)
		return nil
	}
	c.values[i] = v.bytes
	c.valid.Set(i, true)
	return nil
}

func (c *BlobColumn) IsNull(i int) bool { return !c.valid.Get(i) }

func (c *BlobColumn) Value(i int) Value {
	if !c.valid.Get(i) {
		return Null(TypeBlob)
	}
	return BlobValue(c.values[i])
}

func (c *BlobColumn) Take(indices []int) Column {
	out := NewBlobColumn(len(indices))
	for _, i := range indices {
		if c.valid.Get(i) {
			out.Append(c.values[i])
		} else {
			out.AppendNull()
		}
	}
	return out
}

func (c *BlobColumn) Reset() {
	c.values = c.values[:0]
	c.valid.Reset()
}

func (c *BlobColumn) MemoryUsage() int64 {
	var total int64
	for _, v := range c.values {
		total += int64(len(v)) + 24
	}
	return total + int64(len(c.valid.words)*8)
}

// StringColumn stores strings with a validity bitmap. It also backs symbol
// columns, which carry the name of their symbol table.
type StringColumn struct {
	typ      Type
	symtable string
	values   []string
	valid    *Bitmap
}

// NewStringColumn creates a new string column
func NewStringColumn(capacity int) *StringColumn {
	return &StringColumn{typ: TypeString, values: make([]string, 0, capacity), valid: NewBitmap(capacity)}
}

// NewSymbolColumn creates a symbol column bound to symtable.
func NewSymbolColumn(symtable string, capacity int) *StringColumn {
	c := NewStringColumn(capacity)
	c.typ = TypeSymbol
	c.symtable = symtable
	return c
}

func (c *StringColumn) Type() Type { return c.typ }
func (c *StringColumn) Len() int   { return len(c.values) }

// Symtable returns the symbol table of a symbol column, or "".
func (c *StringColumn) Symtable() string { return c.symtable }

func (c *StringColumn) AppendNull() {
	c.values = append(c.values, "")
	c.valid.Append(false)
}

// Append adds a present string.
func (c *StringColumn) Append(v string) {
	c.values = append(c.values, v)
	c.valid.Append(true)
}

func (c *StringColumn) AppendValue(v Value) error {
	if v.Type() != c.typ {
		return mismatch(c.typ, v)
	}
	if v.null {
		c.AppendNull()
		return nil
	}
	c.Append(v.str)
	return nil
}

func (c *StringColumn) Set(i int, v Value) error {
	if v.Type() != c.typ {
		return mismatch(c.typ, v)
	}
	c.values[i] = v.str
	c.valid.Set(i, !v.null)
	return nil
}

func (c *StringColumn) IsNull(i int) bool { return !c.valid.Get(i) }

func (c *StringColumn) Value(i int) Value {
	if !c.valid.Get(i) {
		return Null(c.typ)
	}
	return Value{typ: c.typ, str: c.values[i]}
}

// Dictionary encodes the column as codes into a dictionary of distinct
// values in first-seen order. Null slots get code -1.
func (c *StringColumn) Dictionary() (codes []int32, dict []string) {
	codes = make([]int32, len(c.values))
	seen := make(map[string]int32)
	for i, v := range c.values {
		if !c.valid.Get(i) {
			codes[i] = -1
			continue
		}
		code, ok := seen[v]
		if !ok {
			code = int32(len(dict))
			seen[v] = code
			dict = append(dict, v)
		}
		codes[i] = code
	}
	return codes, dict
}

func (c *StringColumn) Take(indices []int) Column {
	out := NewStringColumn(len(indices))
	out.typ = c.typ
	out.symtable = c.symtable
	for _, i := range indices {
		if c.valid.Get(i) {
			out.Append(c.values[i])
		} else {
			out.AppendNull()
		}
	}
	return out
}

func (c *StringColumn) Reset() {
	c.values = c.values[:0]
	c.valid.Reset()
}

func (c *StringColumn) MemoryUsage() int64 {
	var total int64
	for _, v := range c.values {
		total += int64(len(v)) + 16
	}
	return total + int64(len(c.valid.words)*8)
}
