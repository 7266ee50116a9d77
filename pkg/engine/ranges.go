package engine

import (
	"time"

	"github.com/bureau14/qdbbatch/pkg/column"
	"github.com/bureau14/qdbbatch/pkg/qdberrors"
)

// Range is a half-open time interval [Begin, End).
type Range struct {
	Begin column.Timespec
	End   column.Timespec
}

// AllTime is the range covering every representable timestamp.
var AllTime = Range{Begin: column.MinTimespec, End: column.MaxTimespec}

// NewRange builds [begin, end).
func NewRange(begin, end time.Time) Range {
	return Range{Begin: column.FromTime(begin), End: column.FromTime(end)}
}

// Contains reports whether ts falls in the range.
func (r Range) Contains(ts column.Timespec) bool {
	return ts.Compare(r.Begin) >= 0 && ts.Compare(r.End) < 0
}

// Empty reports whether the range can hold no point.
func (r Range) Empty() bool {
	return r.End.Compare(r.Begin) <= 0
}

// Validate rejects a range ending before it begins. A range ending where it
// begins is valid and empty.
func (r Range) Validate() error {
	if r.End.Compare(r.Begin) < 0 {
		return qdberrors.New(qdberrors.ErrorTypeInvalidArgument, "range ends before it begins").
			WithDetail("begin", r.Begin.Time()).
			WithDetail("end", r.End.Time())
	}
	return nil
}

// ValidateRanges validates every range.
func ValidateRanges(ranges []Range) error {
	for _, r := range ranges {
		if err := r.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ContainsAny reports whether ts falls in any of ranges; no ranges means all time.
func ContainsAny(ranges []Range, ts column.Timespec) bool {
	if len(ranges) == 0 {
		return true
	}
	for _, r := range ranges {
		if r.Contains(ts) {
			return true
		}
	}
	return false
}
