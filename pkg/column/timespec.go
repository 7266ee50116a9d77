package column

import (
	"math"
	"time"
)

// Timespec is the (seconds, nanoseconds) pair timestamps travel as.
type Timespec struct {
	Sec  int64
	Nsec int64
}

// NullTimespec is the sentinel a timestamp column stores for "no value".
var NullTimespec = Timespec{Sec: math.MinInt64, Nsec: math.MinInt64}

// MinTimespec and MaxTimespec bound the all-time interval.
var (
	MinTimespec = Timespec{Sec: math.MinInt64 + 1, Nsec: 0}
	MaxTimespec = Timespec{Sec: math.MaxInt64, Nsec: 999999999}
)

// FromTime converts t to a Timespec.
func FromTime(t time.Time) Timespec {
	return Timespec{Sec: t.Unix(), Nsec: int64(t.Nanosecond())}
}

// Time converts ts back to a UTC time.Time.
func (ts Timespec) Time() time.Time {
	return time.Unix(ts.Sec, ts.Nsec).UTC()
}

// IsNull reports whether ts is the null sentinel.
func (ts Timespec) IsNull() bool {
	return ts == NullTimespec
}

// Compare returns -1, 0 or +1.
func (ts Timespec) Compare(o Timespec) int {
	switch {
	case ts.Sec < o.Sec:
		return -1
	case ts.Sec > o.Sec:
		return 1
	case ts.Nsec < o.Nsec:
		return -1
	case ts.Nsec > o.Nsec:
		return 1
	}
	return 0
}

// Before reports whether ts sorts strictly before o.
func (ts Timespec) Before(o Timespec) bool {
	return ts.Compare(o) < 0
}
