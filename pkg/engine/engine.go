// Package engine defines the boundary between qdbbatch and the native
// time series engine: the operations the client drives, the raw result
// codes the engine answers with, and the single place those codes become
// qdberrors.
package engine

import (
	"context"
	"time"

	"github.com/bureau14/qdbbatch/pkg/column"
)

// Engine is the native time series engine. Implementations must be safe for
// concurrent use; writers and readers built on top of it are not.
type Engine interface {
	// CreateTable creates alias with the given shard duration and columns.
	CreateTable(ctx context.Context, alias string, shard time.Duration, columns []column.Schema) Code
	// InsertColumns appends columns to an existing table.
	InsertColumns(ctx context.Context, alias string, columns []column.Schema) Code
	// ResolveColumns returns the schemas of names in alias, in the order
	// requested, or every column when names is empty. Resolution is atomic:
	// one missing name fails the whole call.
	ResolveColumns(ctx context.Context, alias string, names []string) ([]column.Schema, Code)
	// PushBatch applies an encoded columnar frame under mode.
	PushBatch(ctx context.Context, frame []byte, mode Mode, opts PushOptions) (PushStatus, Code)
	// BulkRead materializes the requested columns of tables and returns an
	// engine-owned result handle the caller must Release.
	BulkRead(ctx context.Context, columns []string, tables []TableRange) (Handle, Code)
	// ResultFrame returns the encoded frame held by h. The bytes stay valid
	// until h is released.
	ResultFrame(h Handle) ([]byte, Code)
	// Release frees the result held by h.
	Release(h Handle) Code
	// Aggregate computes kind over column for each range.
	Aggregate(ctx context.Context, alias, column string, kind AggregateKind, ranges []Range) ([]AggregateResult, Code)
	// Close stops background work and frees all state.
	Close() error
}

// Handle identifies an engine-owned read result.
type Handle uint64

// Mode selects the durability contract of a push.
type Mode int

const (
	// Transactional commits every row of every table, or none.
	Transactional Mode = iota
	// Fast applies tables independently; a failure may leave some applied.
	Fast
	// Async queues the frame; the engine applies it on its own schedule.
	Async
	// Truncate replaces the pushed ranges of each table, transactionally.
	Truncate
)

var modeNames = map[Mode]string{
	Transactional: "transactional",
	Fast:          "fast",
	Async:         "async",
	Truncate:      "truncate",
}

func (m Mode) String() string {
	if s, ok := modeNames[m]; ok {
		return s
	}
	return "unknown"
}

// ParseMode maps a configuration name to a Mode.
func ParseMode(s string) (Mode, bool) {
	for m, name := range modeNames {
		if name == s {
			return m, true
		}
	}
	return Transactional, false
}

// PushOptions modifies how the engine applies a frame.
type PushOptions struct {
	// Atomic requires the whole multi-table frame to land as one unit even
	// under Fast or Async.
	Atomic bool
	// TruncateRanges are the per-table ranges replaced under Truncate.
	// A table without an entry is replaced over the time span of its batch.
	TruncateRanges map[string][]Range
	// DropDuplicates skips rows equal to an existing row at the same
	// timestamp.
	DropDuplicates bool
	// DuplicateColumns restricts the comparison to these columns; empty
	// compares every column of the batch.
	DuplicateColumns []string
}

// PushStatus reports how much of a frame the engine applied.
type PushStatus struct {
	AppliedRows  int
	RejectedRows int
	// TableCodes holds the code of every table that was not applied.
	TableCodes map[string]Code
}

// TableRange pairs a table with the ranges to read from it. No ranges means
// all time.
type TableRange struct {
	Alias  string
	Ranges []Range
}

// AggregateKind selects an interval aggregation.
type AggregateKind int

const (
	Average AggregateKind = iota
	Sum
	Min
	Max
	Kurtosis
	Skewness
	Count
	DistinctCount
	QuadraticMean
	PopulationStdDev
	Spread
	SumOfSquares
)

var aggregateNames = [...]string{
	"average", "sum", "min", "max", "kurtosis", "skewness", "count",
	"distinct_count", "quadratic_mean", "population_stddev", "spread", "sum_of_squares",
}

func (k AggregateKind) String() string {
	if int(k) >= 0 && int(k) < len(aggregateNames) {
		return aggregateNames[k]
	}
	return "unknown"
}

// Counting reports whether the kind yields a count rather than a double.
func (k AggregateKind) Counting() bool {
	return k == Count || k == DistinctCount
}

// Integral reports whether the kind has an exact result over int64 columns.
func (k AggregateKind) Integral() bool {
	return k == Sum || k == Min || k == Max || k == Spread
}

// AggregateResult is the answer for one range. Value is NaN when the range
// holds no points; Count is the number of non-null points in the range.
// For Integral kinds over an int64 column, Int64 holds the exact result and
// Exact is set, unless the integer sum or spread overflowed.
type AggregateResult struct {
	Range Range
	Value float64
	Count int64
	Int64 int64
	Exact bool
}
