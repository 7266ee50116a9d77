package batch

import (
	"context"

	"go.uber.org/zap"

	"github.com/bureau14/qdbbatch/pkg/engine"
	"github.com/bureau14/qdbbatch/pkg/logger"
)

// DefaultCapacity is the initial row capacity of writer buffers.
const DefaultCapacity = 1024

type writerOptions struct {
	capacity         int
	atomic           bool
	dropDuplicates   bool
	duplicateColumns []string
	log              *zap.Logger
}

// WriterOption configures a RowWriter or ColumnarWriter.
type WriterOption func(*writerOptions)

// WithCapacity sets the initial row capacity of the RowWriter column
// buffers. A ColumnarWriter sizes each buffer from the array it is given and
// ignores it.
func WithCapacity(n int) WriterOption {
	return func(o *writerOptions) {
		if n > 0 {
			o.capacity = n
		}
	}
}

// WithTransactional makes the engine apply the whole multi-table payload
// as one unit, even for fast and async pushes.
func WithTransactional() WriterOption {
	return func(o *writerOptions) { o.atomic = true }
}

// WithDropDuplicates skips pushed rows equal to a stored row with the same
// timestamp, comparing only columns when given.
func WithDropDuplicates(columns ...string) WriterOption {
	return func(o *writerOptions) {
		o.dropDuplicates = true
		o.duplicateColumns = columns
	}
}

// WithWriterLogger sets the writer logger.
func WithWriterLogger(l *zap.Logger) WriterOption {
	return func(o *writerOptions) { o.log = l }
}

func newWriterOptions(ctx context.Context, id string, opts []WriterOption) writerOptions {
	o := writerOptions{capacity: DefaultCapacity}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = logger.Named("writer")
	}
	o.log = logger.FromContext(logger.ContextWithWriter(ctx, id), o.log)
	return o
}

func (o writerOptions) pushOptions(truncate map[string][]engine.Range) engine.PushOptions {
	return engine.PushOptions{
		Atomic:           o.atomic,
		TruncateRanges:   truncate,
		DropDuplicates:   o.dropDuplicates,
		DuplicateColumns: o.duplicateColumns,
	}
}

// truncateAll applies ranges to every table of p. No ranges leaves the
// engine to replace the span of each batch.
func truncateAll(p Payload, ranges []engine.Range) (map[string][]engine.Range, error) {
	if len(ranges) == 0 {
		return nil, nil
	}
	if err := engine.ValidateRanges(ranges); err != nil {
		return nil, err
	}
	out := make(map[string][]engine.Range, len(p.Tables))
	for _, t := range p.Tables {
		out[t.Alias] = ranges
	}
	return out, nil
}
