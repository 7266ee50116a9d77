package memengine

import (
	"context"
	"math"

	"github.com/bureau14/qdbbatch/pkg/column"
	"github.com/bureau14/qdbbatch/pkg/engine"
)

// Aggregate implements engine.Engine. Numeric kinds need a double or int64
// column; Count and DistinctCount accept any type.
func (e *Engine) Aggregate(_ context.Context, alias, col string, kind engine.AggregateKind, ranges []engine.Range) ([]engine.AggregateResult, engine.Code) {
	if engine.ValidateRanges(ranges) != nil {
		return nil, engine.InvalidArgument
	}
	if len(ranges) == 0 {
		ranges = []engine.Range{engine.AllTime}
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	t, code := e.lookup(alias)
	if !code.OK() {
		return nil, code
	}
	off := column.Index(t.schemas, col)
	if off < 0 {
		return nil, engine.ColumnNotFound
	}
	typ := t.schemas[off].Type
	numeric := typ == column.TypeDouble || typ == column.TypeInt64
	if !kind.Counting() && !numeric {
		return nil, engine.TypeMismatch
	}

	all := t.scan(nil)
	total := 0
	for _, ref := range all {
		if !ref.s.cols[off].IsNull(ref.row) {
			total++
		}
	}
	if total == 0 {
		return nil, engine.EmptyColumn
	}

	out := make([]engine.AggregateResult, len(ranges))
	for i, r := range ranges {
		out[i] = aggregateRange(t, off, kind, numeric, r)
	}
	return out, engine.Success
}

func aggregateRange(t *table, off int, kind engine.AggregateKind, numeric bool, r engine.Range) engine.AggregateResult {
	res := engine.AggregateResult{Range: r}
	refs := t.scan([]engine.Range{r})

	if kind.Counting() {
		distinct := make(map[string]struct{})
		for _, ref := range refs {
			v := ref.s.cols[off].Value(ref.row)
			if v.IsNull() {
				continue
			}
			res.Count++
			distinct[v.String()] = struct{}{}
		}
		res.Value = float64(res.Count)
		if kind == engine.DistinctCount {
			res.Value = float64(len(distinct))
		}
		return res
	}

	if t.schemas[off].Type == column.TypeInt64 && kind.Integral() {
		return aggregateInt64(t, off, kind, refs, res)
	}

	points := column.NewPointBuffer[float64](len(refs))
	for _, ref := range refs {
		c, ts := ref.s.cols[off], ref.s.ts.At(ref.row).Time()
		if c.IsNull(ref.row) {
			points.AppendNull(ts)
			continue
		}
		points.Append(ts, numericValue(c.Value(ref.row)))
	}
	xs := points.Values()
	res.Count = int64(len(xs))
	res.Value = compute(kind, xs)
	return res
}

// aggregateInt64 keeps Sum, Min, Max and Spread of an int64 column in
// integer arithmetic. Value still carries the float64 result; Int64 is exact
// unless Sum or Spread overflowed.
func aggregateInt64(t *table, off int, kind engine.AggregateKind, refs []rowRef, res engine.AggregateResult) engine.AggregateResult {
	points := column.NewPointBuffer[int64](len(refs))
	for _, ref := range refs {
		c, ts := ref.s.cols[off], ref.s.ts.At(ref.row).Time()
		v, ok, _ := c.Value(ref.row).AsInt64()
		if !ok {
			points.AppendNull(ts)
			continue
		}
		points.Append(ts, v)
	}

	var (
		sum      int64
		lo, hi   int64 = math.MaxInt64, math.MinInt64
		overflow bool
		floats   []float64
	)
	for i := 0; i < points.Len(); i++ {
		p := points.At(i)
		if !p.Valid {
			continue
		}
		res.Count++
		floats = append(floats, float64(p.Value))
		next := sum + p.Value
		if (p.Value > 0 && next < sum) || (p.Value < 0 && next > sum) {
			overflow = true
		}
		sum = next
		lo, hi = min(lo, p.Value), max(hi, p.Value)
	}
	res.Value = compute(kind, floats)
	if res.Count == 0 {
		return res
	}

	switch kind {
	case engine.Sum:
		res.Int64, res.Exact = sum, !overflow
	case engine.Min:
		res.Int64, res.Exact = lo, true
	case engine.Max:
		res.Int64, res.Exact = hi, true
	case engine.Spread:
		d := hi - lo
		res.Int64, res.Exact = d, d >= 0
	}
	if res.Exact {
		res.Value = float64(res.Int64)
	}
	return res
}

func numericValue(v column.Value) float64 {
	if f, ok, err := v.AsDouble(); err == nil && ok {
		return f
	}
	if i, ok, err := v.AsInt64(); err == nil && ok {
		return float64(i)
	}
	return math.NaN()
}

// compute evaluates kind over xs; an empty xs yields NaN. Moments are
// population moments; Kurtosis is m4/m2² (not excess).
func compute(kind engine.AggregateKind, xs []float64) float64 {
	n := float64(len(xs))
	if len(xs) == 0 {
		return math.NaN()
	}

	var sum, sumSq float64
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, x := range xs {
		sum += x
		sumSq += x * x
		lo = math.Min(lo, x)
		hi = math.Max(hi, x)
	}
	mean := sum / n

	var m2, m3, m4 float64
	for _, x := range xs {
		d := x - mean
		m2 += d * d
		m3 += d * d * d
		m4 += d * d * d * d
	}
	m2, m3, m4 = m2/n, m3/n, m4/n

	switch kind {
	case engine.Average:
		return mean
	case engine.Sum:
		return sum
	case engine.Min:
		return lo
	case engine.Max:
		return hi
	case engine.Spread:
		return hi - lo
	case engine.SumOfSquares:
		return sumSq
	case engine.QuadraticMean:
		return math.Sqrt(sumSq / n)
	case engine.PopulationStdDev:
		return math.Sqrt(m2)
	case engine.Skewness:
		return m3 / math.Pow(m2, 1.5)
	case engine.Kurtosis:
		return m4 / (m2 * m2)
	}
	return math.NaN()
}
