// Package aggregate computes interval aggregations of one column on the
// engine side. The client only validates ranges and translates result codes.
package aggregate

import (
	"context"
	"errors"
	"math"

	"go.uber.org/zap"

	"github.com/bureau14/qdbbatch/pkg/engine"
	"github.com/bureau14/qdbbatch/pkg/logger"
	"github.com/bureau14/qdbbatch/pkg/observability"
	"github.com/bureau14/qdbbatch/pkg/qdberrors"
)

// Result is the aggregation over one range. Value is NaN when the range
// holds no point; Count is the number of non-null points in the range.
// Sum, Min, Max and Spread over an int64 column also set Int64 and Exact,
// since Value cannot hold integers above 2^53.
type Result struct {
	Range engine.Range
	Value float64
	Count int64
	Int64 int64
	Exact bool
}

// IsNull reports whether the range held no point.
func (r Result) IsNull() bool {
	return r.Count == 0 && math.IsNaN(r.Value)
}

// Compute aggregates column of alias over each range, or over the whole
// table when no range is given. One result is returned per range, in order.
func Compute(ctx context.Context, eng engine.Engine, alias, column string, kind engine.AggregateKind, ranges ...engine.Range) ([]Result, error) {
	ctx, span := observability.NewSpan(ctx, nil, "qdbbatch.aggregate")
	defer span.End()
	span.SetAttribute("table", alias)
	span.SetAttribute("column", column)
	span.SetAttribute("kind", kind)

	fail := func(err error) ([]Result, error) {
		span.RecordError(err)
		logger.WithContext(ctx).Debug("aggregate failed",
			zap.String("table", alias),
			zap.String("column", column),
			zap.Stringer("kind", kind),
			zap.Error(err))
		return nil, err
	}

	if err := engine.ValidateRanges(ranges); err != nil {
		return fail(err)
	}
	if len(ranges) == 0 {
		ranges = []engine.Range{engine.AllTime}
	}

	raw, code := eng.Aggregate(ctx, alias, column, kind, ranges)
	if err := engine.Translate(code, "aggregate"); err != nil {
		return fail(err.WithDetail("table", alias).WithDetail("column", column))
	}
	if len(raw) != len(ranges) {
		return fail(qdberrors.Newf(qdberrors.ErrorTypeInternal,
			"engine answered %d results for %d ranges", len(raw), len(ranges)))
	}

	out := make([]Result, len(raw))
	for i, r := range raw {
		out[i] = Result{Range: r.Range, Value: r.Value, Count: r.Count, Int64: r.Int64, Exact: r.Exact}
	}
	return out, nil
}

// Scalar aggregates column over a single range, or the whole table when r
// is nil.
func Scalar(ctx context.Context, eng engine.Engine, alias, column string, kind engine.AggregateKind, r *engine.Range) (Result, error) {
	var ranges []engine.Range
	if r != nil {
		ranges = []engine.Range{*r}
	}
	res, err := Compute(ctx, eng, alias, column, kind, ranges...)
	if err != nil {
		return Result{}, err
	}
	return res[0], nil
}

func shorthand(k engine.AggregateKind) func(context.Context, engine.Engine, string, string, ...engine.Range) ([]Result, error) {
	return func(ctx context.Context, eng engine.Engine, alias, column string, ranges ...engine.Range) ([]Result, error) {
		return Compute(ctx, eng, alias, column, k, ranges...)
	}
}

// Per-kind shorthands for Compute.
var (
	Average          = shorthand(engine.Average)
	Sum              = shorthand(engine.Sum)
	Min              = shorthand(engine.Min)
	Max              = shorthand(engine.Max)
	Kurtosis         = shorthand(engine.Kurtosis)
	Skewness         = shorthand(engine.Skewness)
	Count            = shorthand(engine.Count)
	DistinctCount    = shorthand(engine.DistinctCount)
	QuadraticMean    = shorthand(engine.QuadraticMean)
	PopulationStdDev = shorthand(engine.PopulationStdDev)
	Spread           = shorthand(engine.Spread)
	SumOfSquares     = shorthand(engine.SumOfSquares)
)

// IsEmptyColumn reports whether err means the column has no point at all.
func IsEmptyColumn(err error) bool {
	var qe *qdberrors.Error
	return errors.As(err, &qe) && qe.Type == qdberrors.ErrorTypeEmptyColumn
}
