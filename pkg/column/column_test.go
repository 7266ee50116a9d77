package column

import (
	"math"
	"testing"
	"time"

	"github.com/bureau14/qdbbatch/pkg/qdberrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allSchemas = []Schema{
	{Name: "d", Type: TypeDouble},
	{Name: "b", Type: TypeBlob},
	{Name: "i", Type: TypeInt64},
	{Name: "s", Type: TypeString},
	{Name: "t", Type: TypeTimestamp},
	{Name: "y", Type: TypeSymbol, Symtable: "syms"},
}

func sampleValue(t Type) Value {
	switch t {
	case TypeDouble:
		return DoubleValue(1.5)
	case TypeBlob:
		return BlobValue([]byte("abc"))
	case TypeInt64:
		return Int64Value(42)
	case TypeString:
		return StringValue("hello")
	case TypeTimestamp:
		return TimestampValue(time.Unix(1700000000, 5))
	default:
		return SymbolValue("AAPL")
	}
}

func TestNullsAlwaysAppend(t *testing.T) {
	for _, s := range allSchemas {
		t.Run(s.Type.String(), func(t *testing.T) {
			c := New(s, 4)
			assert.Equal(t, s.Type, c.Type())

			c.AppendNull()
			require.NoError(t, c.AppendValue(sampleValue(s.Type)))
			require.NoError(t, c.AppendValue(Null(s.Type)))

			require.Equal(t, 3, c.Len())
			assert.True(t, c.IsNull(0))
			assert.False(t, c.IsNull(1))
			assert.True(t, c.IsNull(2))

			assert.True(t, c.Value(0).IsNull())
			assert.Nil(t, c.Value(0).Interface())
			assert.True(t, c.Value(1).Equal(sampleValue(s.Type)))
		})
	}
}

func TestSetOverwritesSlot(t *testing.T) {
	for _, s := range allSchemas {
		c := NullColumn(s, 2)
		require.NoError(t, c.Set(1, sampleValue(s.Type)))
		assert.True(t, c.IsNull(0), s.Type)
		assert.False(t, c.IsNull(1), s.Type)

		require.NoError(t, c.Set(1, Null(s.Type)))
		assert.True(t, c.IsNull(1), s.Type)
	}
}

func TestWrongTypeIsMismatch(t *testing.T) {
	c := New(Schema{Name: "d", Type: TypeDouble}, 1)
	err := c.AppendValue(Int64Value(1))
	require.Error(t, err)
	assert.True(t, qdberrors.IsType(err, qdberrors.ErrorTypeTypeMismatch))
	assert.Equal(t, 0, c.Len())

	sym := New(Schema{Name: "y", Type: TypeSymbol, Symtable: "s"}, 1)
	sym.AppendNull()
	err = sym.Set(0, StringValue("x"))
	assert.True(t, qdberrors.IsType(err, qdberrors.ErrorTypeTypeMismatch))
}

func TestSentinels(t *testing.T) {
	assert.True(t, DoubleValue(math.NaN()).IsNull())
	assert.True(t, Int64Value(math.MinInt64).IsNull())
	assert.True(t, TimespecValue(NullTimespec).IsNull())

	ints := NewInt64Column(1)
	ints.AppendNull()
	assert.Equal(t, int64(math.MinInt64), ints.Values()[0])

	doubles := NewDoubleColumn(1)
	doubles.AppendNull()
	assert.True(t, math.IsNaN(doubles.Values()[0]))
}

func TestEmptyBlobIsNotNull(t *testing.T) {
	c := NewBlobColumn(2)
	c.Append([]byte{})
	c.AppendNull()

	assert.False(t, c.IsNull(0))
	v, ok, err := c.Value(0).AsBlob()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, v)

	_, ok, err = c.Value(1).AsBlob()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestValueAccessors(t *testing.T) {
	v := Int64Value(7)
	i, ok, err := v.AsInt64()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(7), i)

	_, _, err = v.AsDouble()
	assert.True(t, qdberrors.IsType(err, qdberrors.ErrorTypeTypeMismatch))
	_, _, err = SymbolValue("x").AsString()
	assert.True(t, qdberrors.IsType(err, qdberrors.ErrorTypeTypeMismatch))

	ts := time.Date(2024, 1, 2, 3, 4, 5, 6, time.UTC)
	got, ok, err := TimestampValue(ts).AsTimestamp()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, ts.Equal(got))

	assert.Equal(t, "AAPL", SymbolValue("AAPL").Interface())
	assert.Equal(t, 1.5, DoubleValue(1.5).Interface())
	assert.Equal(t, "null", Null(TypeString).String())
}

func TestTake(t *testing.T) {
	c := NewStringColumn(3)
	c.Append("a")
	c.AppendNull()
	c.Append("c")

	out := c.Take([]int{2, 1, 0})
	require.Equal(t, 3, out.Len())
	assert.True(t, out.Value(0).Equal(StringValue("c")))
	assert.True(t, out.IsNull(1))
	assert.True(t, out.Value(2).Equal(StringValue("a")))
}

func TestDictionary(t *testing.T) {
	c := NewSymbolColumn("tickers", 5)
	c.Append("AAPL")
	c.Append("MSFT")
	c.AppendNull()
	c.Append("AAPL")

	codes, dict := c.Dictionary()
	assert.Equal(t, []int32{0, 1, -1, 0}, codes)
	assert.Equal(t, []string{"AAPL", "MSFT"}, dict)
	assert.Equal(t, "tickers", c.Symtable())
}

func TestResetKeepsNullSemantics(t *testing.T) {
	c := NewBlobColumn(1)
	c.Append([]byte("x"))
	c.Reset()
	assert.Equal(t, 0, c.Len())
	c.AppendNull()
	assert.True(t, c.IsNull(0))
}

func TestSchemaValidate(t *testing.T) {
	for _, s := range allSchemas {
		assert.NoError(t, s.Validate())
	}
	assert.Error(t, Schema{Name: "", Type: TypeDouble}.Validate())
	assert.Error(t, Schema{Name: "$timestamp", Type: TypeDouble}.Validate())
	assert.Error(t, Schema{Name: "x"}.Validate())
	assert.Error(t, Schema{Name: "x", Type: TypeSymbol}.Validate())
	assert.Error(t, Schema{Name: "x", Type: TypeString, Symtable: "s"}.Validate())

	typ, err := ParseType("int64")
	require.NoError(t, err)
	assert.Equal(t, TypeInt64, typ)
	_, err = ParseType("uninitialized")
	assert.Error(t, err)
}

func TestBitmap(t *testing.T) {
	b := NewBitmap(0)
	for i := 0; i < 130; i++ {
		b.Append(i%3 == 0)
	}
	assert.Equal(t, 130, b.Len())
	assert.Equal(t, 44, b.Count())
	assert.True(t, b.Get(129))
	b.Set(129, false)
	assert.False(t, b.Get(129))
	assert.Equal(t, 43, b.Count())
}

func TestPointBuffer(t *testing.T) {
	t0 := time.Unix(100, 0)
	b := NewPointBuffer[float64](4)
	b.Append(t0, 1)
	b.AppendNull(t0.Add(time.Second))
	b.Append(t0.Add(2*time.Second), 3)

	require.Equal(t, 3, b.Len())
	assert.Equal(t, t0, b.At(0).Timestamp)
	assert.False(t, b.At(1).Valid)
	assert.Equal(t, []float64{1, 3}, b.Values())
}

func TestTimespecOrdering(t *testing.T) {
	a := Timespec{Sec: 1, Nsec: 5}
	b := Timespec{Sec: 1, Nsec: 6}
	assert.True(t, a.Before(b))
	assert.Equal(t, 0, a.Compare(a))
	assert.True(t, MinTimespec.Before(a))
	assert.True(t, a.Before(MaxTimespec))
	assert.False(t, FromTime(time.Unix(3, 4)).IsNull())
}
