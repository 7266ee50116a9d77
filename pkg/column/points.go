package column

import "time"

// PointValue is the set of Go types a PointBuffer can hold.
type PointValue interface {
	float64 | int64 | []byte | string | time.Time
}

// Point is one (timestamp, optional value) pair.
type Point[T PointValue] struct {
	Timestamp time.Time
	Value     T
	Valid     bool
}

// PointBuffer is a growable collection of points of one value type.
type PointBuffer[T PointValue] struct {
	points []Point[T]
}

// NewPointBuffer returns an empty buffer.
func NewPointBuffer[T PointValue](capacity int) *PointBuffer[T] {
	return &PointBuffer[T]{points: make([]Point[T], 0, capacity)}
}

// Append adds a point carrying v.
func (b *PointBuffer[T]) Append(ts time.Time, v T) {
	b.points = append(b.points, Point[T]{Timestamp: ts, Value: v, Valid: true})
}

// AppendNull adds a null point at ts.
func (b *PointBuffer[T]) AppendNull(ts time.Time) {
	b.points = append(b.points, Point[T]{Timestamp: ts})
}

// Len returns the number of points.
func (b *PointBuffer[T]) Len() int { return len(b.points) }

// At returns point i.
func (b *PointBuffer[T]) At(i int) Point[T] { return b.points[i] }

// Values returns the values of the non-null points in order.
func (b *PointBuffer[T]) Values() []T {
	out := make([]T, 0, len(b.points))
	for _, p := range b.points {
		if p.Valid {
			out = append(out, p.Value)
		}
	}
	return out
}
