package wire

import (
	"fmt"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/memory"

	"github.com/bureau14/qdbbatch/pkg/column"
	"github.com/bureau14/qdbbatch/pkg/qdberrors"
)

// Metadata keys carried by the Arrow schema of every table record.
const (
	metaTable    = "qdb.table"
	metaType     = "qdb.type"
	metaSymtable = "qdb.symtable"
)

var timespecType = arrow.StructOf(
	arrow.Field{Name: "sec", Type: arrow.PrimitiveTypes.Int64},
	arrow.Field{Name: "nsec", Type: arrow.PrimitiveTypes.Int64},
)

var symbolType = &arrow.DictionaryType{
	IndexType: arrow.PrimitiveTypes.Int32,
	ValueType: arrow.BinaryTypes.String,
}

func arrowType(t column.Type) (arrow.DataType, error) {
	switch t {
	case column.TypeDouble:
		return arrow.PrimitiveTypes.Float64, nil
	case column.TypeInt64:
		return arrow.PrimitiveTypes.Int64, nil
	case column.TypeTimestamp:
		return timespecType, nil
	case column.TypeBlob:
		return arrow.BinaryTypes.Binary, nil
	case column.TypeString:
		return arrow.BinaryTypes.String, nil
	case column.TypeSymbol:
		return symbolType, nil
	}
	return nil, fmt.Errorf("unsupported column type %s", t)
}

// arrowSchema builds the record schema of a table batch: the $timestamp
// index followed by one field per column.
func arrowSchema(alias string, schemas []column.Schema) (*arrow.Schema, error) {
	fields := make([]arrow.Field, 0, len(schemas)+1)
	fields = append(fields, arrow.Field{Name: column.TimestampColumnName, Type: timespecType})

	for _, s := range schemas {
		dt, err := arrowType(s.Type)
		if err != nil {
			return nil, err
		}
		keys := []string{metaType}
		values := []string{s.Type.String()}
		if s.Symtable != "" {
			keys = append(keys, metaSymtable)
			values = append(values, s.Symtable)
		}
		fields = append(fields, arrow.Field{
			Name:     s.Name,
			Type:     dt,
			Nullable: true,
			Metadata: arrow.NewMetadata(keys, values),
		})
	}

	md := arrow.NewMetadata([]string{metaTable}, []string{alias})
	return arrow.NewSchema(fields, &md), nil
}

// schemasFromArrow is the inverse of arrowSchema.
func schemasFromArrow(sc *arrow.Schema) (string, []column.Schema, error) {
	md := sc.Metadata()
	idx := md.FindKey(metaTable)
	if idx < 0 {
		return "", nil, qdberrors.New(qdberrors.ErrorTypeInternal, "record schema has no table alias")
	}
	alias := md.Values()[idx]

	fields := sc.Fields()
	if len(fields) == 0 || fields[0].Name != column.TimestampColumnName {
		return "", nil, qdberrors.Newf(qdberrors.ErrorTypeInternal, "record of %s has no timestamp index", alias)
	}

	out := make([]column.Schema, 0, len(fields)-1)
	for _, f := range fields[1:] {
		ti := f.Metadata.FindKey(metaType)
		if ti < 0 {
			return "", nil, qdberrors.Newf(qdberrors.ErrorTypeInternal, "field %s has no column type", f.Name)
		}
		t, err := column.ParseType(f.Metadata.Values()[ti])
		if err != nil {
			return "", nil, err
		}
		s := column.Schema{Name: f.Name, Type: t}
		if si := f.Metadata.FindKey(metaSymtable); si >= 0 {
			s.Symtable = f.Metadata.Values()[si]
		}
		out = append(out, s)
	}
	return alias, out, nil
}

// buildRecord converts a table batch into an Arrow record. Double, int64
// and timestamp nulls travel as their sentinels; blob, string and symbol
// nulls use the Arrow validity bitmap.
func buildRecord(mem memory.Allocator, b TableBatch) (arrow.Record, error) {
	sc, err := arrowSchema(b.Alias, b.Schemas)
	if err != nil {
		return nil, err
	}

	n := b.Len()
	cols := make([]arrow.Array, 0, len(b.Columns)+1)
	defer func() {
		for _, c := range cols {
			c.Release()
		}
	}()

	cols = append(cols, buildTimespecs(mem, b.Timestamps.Values()))
	for i, c := range b.Columns {
		if c.Len() != n {
			return nil, qdberrors.Newf(qdberrors.ErrorTypeAlignment,
				"column %s has %d values for %d timestamps", b.Schemas[i].Name, c.Len(), n)
		}
		arr, err := buildArray(mem, c)
		if err != nil {
			return nil, err
		}
		cols = append(cols, arr)
	}

	return array.NewRecord(sc, cols, int64(n)), nil
}

func buildTimespecs(mem memory.Allocator, ts []column.Timespec) arrow.Array {
	sb := array.NewStructBuilder(mem, timespecType)
	defer sb.Release()

	secs := sb.FieldBuilder(0).(*array.Int64Builder)
	nsecs := sb.FieldBuilder(1).(*array.Int64Builder)
	sb.Reserve(len(ts))
	for _, t := range ts {
		sb.Append(true)
		secs.Append(t.Sec)
		nsecs.Append(t.Nsec)
	}
	return sb.NewArray()
}

func buildArray(mem memory.Allocator, c column.Column) (arrow.Array, error) {
	switch col := c.(type) {
	case *column.DoubleColumn:
		b := array.NewFloat64Builder(mem)
		defer b.Release()
		b.AppendValues(col.Values(), nil)
		return b.NewArray(), nil

	case *column.Int64Column:
		b := array.NewInt64Builder(mem)
		defer b.Release()
		b.AppendValues(col.Values(), nil)
		return b.NewArray(), nil

	case *column.TimestampColumn:
		return buildTimespecs(mem, col.Values()), nil

	case *column.BlobColumn:
		b := array.NewBinaryBuilder(mem, arrow.BinaryTypes.Binary)
		defer b.Release()
		b.Reserve(col.Len())
		for i := 0; i < col.Len(); i++ {
			if col.IsNull(i) {
				b.AppendNull()
				continue
			}
			v, _, _ := col.Value(i).AsBlob()
			b.Append(v)
		}
		return b.NewArray(), nil

	case *column.StringColumn:
		if col.Type() == column.TypeSymbol {
			return buildSymbols(mem, col), nil
		}
		b := array.NewStringBuilder(mem)
		defer b.Release()
		b.Reserve(col.Len())
		for i := 0; i < col.Len(); i++ {
			if col.IsNull(i) {
				b.AppendNull()
				continue
			}
			v, _, _ := col.Value(i).AsString()
			b.Append(v)
		}
		return b.NewArray(), nil
	}
	return nil, fmt.Errorf("unsupported column buffer %T", c)
}

// buildSymbols dictionary-encodes a symbol column.
func buildSymbols(mem memory.Allocator, col *column.StringColumn) arrow.Array {
	codes, dict := col.Dictionary()

	ib := array.NewInt32Builder(mem)
	defer ib.Release()
	for _, code := range codes {
		if code < 0 {
			ib.AppendNull()
		} else {
			ib.Append(code)
		}
	}
	indices := ib.NewArray()
	defer indices.Release()

	db := array.NewStringBuilder(mem)
	defer db.Release()
	db.AppendValues(dict, nil)
	values := db.NewArray()
	defer values.Release()

	return array.NewDictionaryArray(symbolType, indices, values)
}
