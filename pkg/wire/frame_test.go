package wire

import (
	"bytes"
	"context"
	"encoding/binary"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bureau14/qdbbatch/pkg/column"
	"github.com/bureau14/qdbbatch/pkg/compression"
	"github.com/bureau14/qdbbatch/pkg/qdberrors"
)

var mixedSchemas = []column.Schema{
	{Name: "price", Type: column.TypeDouble},
	{Name: "payload", Type: column.TypeBlob},
	{Name: "volume", Type: column.TypeInt64},
	{Name: "venue", Type: column.TypeString},
	{Name: "settled", Type: column.TypeTimestamp},
	{Name: "ticker", Type: column.TypeSymbol, Symtable: "tickers"},
}

// mixedBatch builds n rows where every third row is entirely null.
func mixedBatch(alias string, n int) TableBatch {
	t0 := time.Unix(1700000000, 0)
	b := TableBatch{
		Alias:      alias,
		Schemas:    mixedSchemas,
		Timestamps: column.NewTimestampColumn(n),
	}
	for _, s := range mixedSchemas {
		b.Columns = append(b.Columns, column.New(s, n))
	}
	for i := 0; i < n; i++ {
		b.Timestamps.Append(column.FromTime(t0.Add(time.Duration(i) * time.Second)))
		if i%3 == 2 {
			for _, c := range b.Columns {
				c.AppendNull()
			}
			continue
		}
		b.Columns[0].(*column.DoubleColumn).Append(float64(i) + 0.5)
		b.Columns[1].(*column.BlobColumn).Append(bytes.Repeat([]byte{byte(i)}, i))
		b.Columns[2].(*column.Int64Column).Append(int64(i * 100))
		b.Columns[3].(*column.StringColumn).Append("venue")
		b.Columns[4].(*column.TimestampColumn).Append(column.FromTime(t0.Add(time.Duration(i) * time.Hour)))
		b.Columns[5].(*column.StringColumn).Append([]string{"AAPL", "MSFT"}[i%2])
	}
	return b
}

func TestFrameRoundTrip(t *testing.T) {
	for _, algo := range []compression.Algorithm{compression.None, compression.LZ4, compression.Zstd, compression.Snappy} {
		t.Run(string(algo), func(t *testing.T) {
			comp, err := compression.NewCompressor(&compression.Config{Algorithm: algo})
			require.NoError(t, err)
			enc, err := NewEncoder(comp, nil)
			require.NoError(t, err)

			in := []TableBatch{mixedBatch("a", 7), mixedBatch("b", 4)}
			var buf bytes.Buffer
			require.NoError(t, enc.Encode(context.Background(), in, &buf))

			f, err := Decode(buf.Bytes(), nil)
			require.NoError(t, err)
			defer f.Release()

			require.Len(t, f.Tables, 2)
			assert.Equal(t, 11, f.Rows())
			for ti, want := range in {
				got := f.Tables[ti]
				assert.Equal(t, want.Alias, got.Alias)
				assert.Equal(t, want.Schemas, got.Schemas)
				require.Equal(t, want.Len(), got.Len())
				for i := 0; i < want.Len(); i++ {
					assert.Equal(t, want.Timestamps.At(i), got.Timestamp(i))
					for c := range want.Columns {
						assert.True(t, want.Columns[c].Value(i).Equal(got.Value(c, i)),
							"table %s row %d column %s: %v != %v", want.Alias, i, want.Schemas[c].Name,
							want.Columns[c].Value(i), got.Value(c, i))
						assert.Equal(t, want.Columns[c].IsNull(i), got.IsNull(c, i))
					}
				}
			}
		})
	}
}

func TestSentinelsTravelRaw(t *testing.T) {
	b := mixedBatch("a", 3)
	enc, err := NewEncoder(nil, nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, enc.Encode(context.Background(), []TableBatch{b}, &buf))
	f, err := Decode(buf.Bytes(), nil)
	require.NoError(t, err)
	defer f.Release()

	rec := f.Tables[0].Record()
	// price and volume carry no Arrow nulls, only sentinels
	assert.Equal(t, 0, rec.Column(1).NullN())
	assert.Equal(t, 0, rec.Column(3).NullN())
	// payload uses the validity bitmap
	assert.Equal(t, 1, rec.Column(2).NullN())

	v, ok, err := f.Tables[0].Value(2, 2).AsInt64()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, v)
	d, ok, err := f.Tables[0].Value(0, 2).AsDouble()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, math.IsNaN(d))
}

func TestEmptyBlobSurvives(t *testing.T) {
	b := TableBatch{
		Alias:      "blobs",
		Schemas:    []column.Schema{{Name: "b", Type: column.TypeBlob}},
		Timestamps: column.NewTimestampColumn(2),
		Columns:    []column.Column{column.NewBlobColumn(2)},
	}
	b.Timestamps.Append(column.Timespec{Sec: 1})
	b.Timestamps.Append(column.Timespec{Sec: 2})
	b.Columns[0].(*column.BlobColumn).Append([]byte{})
	b.Columns[0].AppendNull()

	enc, err := NewEncoder(nil, nil)
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, enc.Encode(context.Background(), []TableBatch{b}, &buf))
	f, err := Decode(buf.Bytes(), nil)
	require.NoError(t, err)
	defer f.Release()

	assert.False(t, f.Tables[0].IsNull(0, 0))
	assert.True(t, f.Tables[0].IsNull(0, 1))
}

func TestEncodeRejectsMisalignment(t *testing.T) {
	b := mixedBatch("a", 3)
	b.Columns[2].AppendNull()

	enc, err := NewEncoder(nil, nil)
	require.NoError(t, err)
	var buf bytes.Buffer
	err = enc.Encode(context.Background(), []TableBatch{b}, &buf)
	assert.True(t, qdberrors.IsType(err, qdberrors.ErrorTypeAlignment))
	assert.Zero(t, buf.Len())
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode([]byte("nope"), nil)
	assert.True(t, qdberrors.IsType(err, qdberrors.ErrorTypeInternal))

	enc, err := NewEncoder(nil, nil)
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, enc.Encode(context.Background(), []TableBatch{mixedBatch("a", 2)}, &buf))

	_, err = Decode(buf.Bytes()[:buf.Len()-5], nil)
	assert.True(t, qdberrors.IsType(err, qdberrors.ErrorTypeInternal))
}

func TestEmptyFrame(t *testing.T) {
	enc, err := NewEncoder(nil, nil)
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, enc.Encode(context.Background(), nil, &buf))

	f, err := Decode(buf.Bytes(), nil)
	require.NoError(t, err)
	assert.Empty(t, f.Tables)
}

func TestDecodeRejectsOversizedTableCount(t *testing.T) {
	enc, err := NewEncoder(nil, nil)
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, enc.Encode(context.Background(), nil, &buf))

	data := bytes.Clone(buf.Bytes())
	binary.LittleEndian.PutUint32(data[6:headerLen], math.MaxUint32)
	data = append(data, 0, 0, 0, 0)

	f, err := Decode(data, nil)
	assert.Nil(t, f)
	assert.True(t, qdberrors.IsType(err, qdberrors.ErrorTypeInternal))
	assert.Contains(t, err.Error(), "claims")
}
