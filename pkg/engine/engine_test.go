package engine

import (
	"testing"
	"time"

	"github.com/bureau14/qdbbatch/pkg/column"
	"github.com/bureau14/qdbbatch/pkg/qdberrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranslate(t *testing.T) {
	assert.Nil(t, Translate(Success, "push"))

	cases := map[Code]qdberrors.ErrorType{
		AliasNotFound:      qdberrors.ErrorTypeAliasNotFound,
		AliasAlreadyExists: qdberrors.ErrorTypeAliasAlreadyExists,
		IncompatibleType:   qdberrors.ErrorTypeIncompatibleType,
		ColumnNotFound:     qdberrors.ErrorTypeColumnNotFound,
		EmptyColumn:        qdberrors.ErrorTypeEmptyColumn,
		InvalidArgument:    qdberrors.ErrorTypeInvalidArgument,
		TypeMismatch:       qdberrors.ErrorTypeTypeMismatch,
		PartialFailure:     qdberrors.ErrorTypePartialFailure,
		InvalidHandle:      qdberrors.ErrorTypeReleased,
		Internal:           qdberrors.ErrorTypeInternal,
		Code(99):           qdberrors.ErrorTypeInternal,
	}
	for code, typ := range cases {
		err := Translate(code, "bulk_read")
		require.NotNil(t, err)
		assert.Equal(t, typ, err.Type, code.String())
		op, _ := err.Detail("op")
		assert.Equal(t, "bulk_read", op)
	}
}

func TestRangeSemantics(t *testing.T) {
	t0 := time.Unix(1000, 0)
	r := NewRange(t0, t0.Add(2*time.Second))

	assert.True(t, r.Contains(column.FromTime(t0)))
	assert.True(t, r.Contains(column.FromTime(t0.Add(time.Second))))
	assert.False(t, r.Contains(column.FromTime(t0.Add(2*time.Second))))

	empty := NewRange(t0, t0)
	assert.NoError(t, empty.Validate())
	assert.True(t, empty.Empty())
	assert.False(t, empty.Contains(column.FromTime(t0)))

	backwards := NewRange(t0, t0.Add(-time.Second))
	err := ValidateRanges([]Range{r, backwards})
	assert.True(t, qdberrors.IsType(err, qdberrors.ErrorTypeInvalidArgument))

	assert.True(t, AllTime.Contains(column.FromTime(time.Unix(0, 0))))
	assert.True(t, ContainsAny(nil, column.FromTime(t0)))
	assert.False(t, ContainsAny([]Range{empty}, column.FromTime(t0)))
}

func TestModeNames(t *testing.T) {
	for _, m := range []Mode{Transactional, Fast, Async, Truncate} {
		back, ok := ParseMode(m.String())
		require.True(t, ok)
		assert.Equal(t, m, back)
	}
	_, ok := ParseMode("eventual")
	assert.False(t, ok)
	assert.Equal(t, "population_stddev", PopulationStdDev.String())
	assert.True(t, DistinctCount.Counting())
	assert.False(t, Sum.Counting())
}
