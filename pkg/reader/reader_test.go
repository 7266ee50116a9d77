package reader

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bureau14/qdbbatch/pkg/batch"
	"github.com/bureau14/qdbbatch/pkg/column"
	"github.com/bureau14/qdbbatch/pkg/engine"
	"github.com/bureau14/qdbbatch/pkg/engine/memengine"
	"github.com/bureau14/qdbbatch/pkg/metrics"
	"github.com/bureau14/qdbbatch/pkg/qdberrors"
	"github.com/bureau14/qdbbatch/pkg/testutil"
)

var (
	t0 = time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	t1 = t0.Add(time.Second)
	t2 = t0.Add(2 * time.Second)
)

// fixture holds "a" (price double, tag string, raw blob) with rows at t0,
// t1, t2, and "b" (price double, tag string) with one row at t1.
func fixture(t *testing.T) *memengine.Engine {
	t.Helper()
	eng := testutil.NewEngine(t)
	testutil.CreateTable(t, eng, "a",
		column.Schema{Name: "price", Type: column.TypeDouble},
		column.Schema{Name: "tag", Type: column.TypeString},
		column.Schema{Name: "raw", Type: column.TypeBlob})
	testutil.CreateTable(t, eng, "b",
		column.Schema{Name: "price", Type: column.TypeDouble},
		column.Schema{Name: "tag", Type: column.TypeString})

	ctx := context.Background()
	exec, err := batch.NewExecutor(eng, batch.WithLogger(testutil.TestLogger(t)))
	require.NoError(t, err)
	w, err := batch.NewColumnarWriter(ctx, exec, []batch.TableColumns{{Table: "a"}, {Table: "b"}})
	require.NoError(t, err)

	require.NoError(t, w.SetTimestamps("a", []time.Time{t2, t0, t1}))
	require.NoError(t, w.SetDoubleColumn("a", "price", []float64{3, 1, 2}, []bool{true, true, false}))
	require.NoError(t, w.SetStringColumn("a", "tag", []string{"z", "x", "y"}, nil))
	require.NoError(t, w.SetBlobColumn("a", "raw", [][]byte{[]byte("c"), nil, []byte("b")}))
	require.NoError(t, w.SetTimestamps("b", []time.Time{t1}))
	require.NoError(t, w.SetDoubleColumn("b", "price", []float64{10}, nil))
	require.NoError(t, w.SetStringColumn("b", "tag", []string{"q"}, nil))
	_, err = w.Push(ctx)
	require.NoError(t, err)
	return eng
}

func open(t *testing.T, eng engine.Engine, columns []string, tables ...TableRange) *Reader {
	t.Helper()
	r, err := Open(context.Background(), eng, columns, tables, WithLogger(testutil.TestLogger(t)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func timestamps(t *testing.T, r *Reader) []time.Time {
	t.Helper()
	var out []time.Time
	for r.Next() {
		ts, err := r.Row().Timestamp()
		require.NoError(t, err)
		out = append(out, ts)
	}
	require.NoError(t, r.Err())
	return out
}

func TestRowsAndCells(t *testing.T) {
	eng := fixture(t)
	reg := metrics.NewCollector(prometheus.NewRegistry())
	r, err := Open(context.Background(), eng, nil, []TableRange{Table("a")},
		WithLogger(testutil.TestLogger(t)), WithMetrics(reg))
	require.NoError(t, err)
	assert.Equal(t, []string{"price", "tag", "raw"}, column.Names(r.Columns()))
	assert.Nil(t, r.Row(), "no row before Next")

	require.True(t, r.Next())
	row := r.Row()
	assert.Equal(t, 3, row.Len())

	ts, err := row.Timestamp()
	require.NoError(t, err)
	assert.True(t, ts.Equal(t0))

	price, err := row.Cell(0)
	require.NoError(t, err)
	assert.Equal(t, column.TypeDouble, price.Type())
	v, ok, err := price.AsDouble()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1.0, v)

	_, _, err = price.AsInt64()
	assert.True(t, qdberrors.IsType(err, qdberrors.ErrorTypeTypeMismatch))

	raw, err := row.CellByName("raw")
	require.NoError(t, err)
	null, err := raw.IsNull()
	require.NoError(t, err)
	assert.True(t, null)
	b, ok, err := raw.AsBlob()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, b)

	tsCell, err := row.CellByName(column.TimestampColumnName)
	require.NoError(t, err)
	got, ok, err := tsCell.AsTimestamp()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, got.Equal(t0))

	tableCell, err := row.CellByName(column.TableColumnName)
	require.NoError(t, err)
	alias, ok, err := tableCell.AsString()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "a", alias)

	_, err = row.CellByName("missing")
	assert.True(t, qdberrors.IsType(err, qdberrors.ErrorTypeColumnNotFound))
	_, err = row.Cell(3)
	assert.True(t, qdberrors.IsType(err, qdberrors.ErrorTypeColumnNotFound))

	tag, err := row.CellByName("tag")
	require.NoError(t, err)
	iface, err := tag.Interface()
	require.NoError(t, err)
	assert.Equal(t, "x", iface)
	_, _, err = tag.AsSymbol()
	assert.True(t, qdberrors.IsType(err, qdberrors.ErrorTypeTypeMismatch))

	// Moving on invalidates the previous row and its cells.
	require.True(t, r.Next())
	_, err = row.Timestamp()
	assert.True(t, qdberrors.IsType(err, qdberrors.ErrorTypeReleased))
	_, err = price.Value()
	assert.True(t, qdberrors.IsType(err, qdberrors.ErrorTypeReleased))

	second := r.Row()
	p, err := second.Cell(0)
	require.NoError(t, err)
	null, err = p.IsNull()
	require.NoError(t, err)
	assert.True(t, null)

	require.True(t, r.Next())
	values, err := r.Row().Values()
	require.NoError(t, err)
	require.Len(t, values, 3)
	assert.Equal(t, 3.0, values[0].Interface())
	assert.Equal(t, []byte("c"), values[2].Interface())
	last := r.Row()

	assert.False(t, r.Next())
	assert.Nil(t, r.Row())
	assert.NoError(t, r.Err())

	require.NoError(t, r.Close())
	_, err = last.Table()
	assert.True(t, qdberrors.IsType(err, qdberrors.ErrorTypeReleased))
	_, err = Cell{}.Value()
	assert.True(t, qdberrors.IsType(err, qdberrors.ErrorTypeReleased))
	assert.NoError(t, r.Close(), "close is idempotent")
	assert.False(t, r.Next())
	assert.True(t, qdberrors.IsType(r.Err(), qdberrors.ErrorTypeReleased))

	assert.Equal(t, 0, eng.OpenHandles())
	assert.Equal(t, 3.0, promtest.ToFloat64(reg.RowsRead))
	assert.Equal(t, 1.0, promtest.ToFloat64(reg.BulkReads))
}

func TestRangeFiltering(t *testing.T) {
	eng := fixture(t)

	got := timestamps(t, open(t, eng, nil, Table("a", engine.NewRange(t0, t2))))
	require.Len(t, got, 2)
	assert.True(t, got[0].Equal(t0))
	assert.True(t, got[1].Equal(t1))

	assert.Empty(t, timestamps(t, open(t, eng, nil, Table("a", engine.NewRange(t2, t2)))))
	assert.Len(t, timestamps(t, open(t, eng, nil, Table("a"))), 3)

	got = timestamps(t, open(t, eng, nil, Table("a", engine.NewRange(t0, t1), engine.NewRange(t2, t2.Add(time.Hour)))))
	require.Len(t, got, 2)
	assert.True(t, got[1].Equal(t2))

	before := eng.OpenHandles()
	_, err := Open(context.Background(), eng, nil, []TableRange{Table("a", engine.NewRange(t2, t0))})
	assert.True(t, qdberrors.IsType(err, qdberrors.ErrorTypeInvalidArgument))
	assert.Equal(t, before, eng.OpenHandles(), "a failed open holds no handle")
}

func TestMultiTableAndColumnSubset(t *testing.T) {
	eng := fixture(t)

	r := open(t, eng, []string{"tag"}, Table("b"), Table("a"))
	assert.Equal(t, []string{"tag"}, column.Names(r.Columns()))

	var tables, tags []string
	for r.Next() {
		row := r.Row()
		assert.Equal(t, 1, row.Len())
		alias, err := row.Table()
		require.NoError(t, err)
		tables = append(tables, alias)
		c, err := row.Cell(0)
		require.NoError(t, err)
		tag, _, err := c.AsString()
		require.NoError(t, err)
		tags = append(tags, tag)
	}
	assert.Equal(t, []string{"b", "a", "a", "a"}, tables)
	assert.Equal(t, []string{"q", "x", "y", "z"}, tags)
}

func TestOpenErrors(t *testing.T) {
	eng := fixture(t)
	ctx := context.Background()

	_, err := Open(ctx, eng, []string{"raw"}, []TableRange{Table("a"), Table("b")})
	assert.True(t, qdberrors.IsType(err, qdberrors.ErrorTypeColumnNotFound))

	_, err = Open(ctx, eng, nil, []TableRange{Table("ghost")})
	assert.True(t, qdberrors.IsType(err, qdberrors.ErrorTypeAliasNotFound))

	_, err = Open(ctx, eng, nil, nil)
	assert.True(t, qdberrors.IsType(err, qdberrors.ErrorTypeInvalidArgument))

	assert.Equal(t, 0, eng.OpenHandles())
}

func TestEmptyTableIsNotAnError(t *testing.T) {
	eng := testutil.NewEngine(t)
	testutil.CreateTable(t, eng, "empty", column.Schema{Name: "v", Type: column.TypeInt64})

	r := open(t, eng, nil, Table("empty"))
	assert.False(t, r.Next())
	assert.NoError(t, r.Err())
	assert.Equal(t, []string{"v"}, column.Names(r.Columns()))
	assert.NotEmpty(t, r.ID())
}
