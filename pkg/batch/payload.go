package batch

import (
	"github.com/hashicorp/go-multierror"

	"github.com/bureau14/qdbbatch/pkg/qdberrors"
	"github.com/bureau14/qdbbatch/pkg/wire"
)

// Payload is the column-major content of one push: one batch per table.
type Payload struct {
	Tables []wire.TableBatch
}

// Rows returns the number of rows across all tables.
func (p Payload) Rows() int {
	n := 0
	for _, t := range p.Tables {
		n += t.Len()
	}
	return n
}

// MemoryUsage estimates the bytes buffered by the payload before encoding.
func (p Payload) MemoryUsage() int64 {
	var n int64
	for _, t := range p.Tables {
		if t.Timestamps != nil {
			n += t.Timestamps.MemoryUsage()
		}
		for _, c := range t.Columns {
			if c != nil {
				n += c.MemoryUsage()
			}
		}
	}
	return n
}

// Validate checks every table is aligned: one schema per column and every
// column as long as its timestamp index. All misalignments are reported in
// the cause of a single alignment error.
func (p Payload) Validate() error {
	var result *multierror.Error
	for _, t := range p.Tables {
		if t.Alias == "" {
			return qdberrors.New(qdberrors.ErrorTypeInvalidArgument, "payload table has no alias")
		}
		if len(t.Schemas) != len(t.Columns) {
			result = multierror.Append(result, qdberrors.Newf(qdberrors.ErrorTypeAlignment,
				"table %s has %d schemas for %d columns", t.Alias, len(t.Schemas), len(t.Columns)))
			continue
		}
		n := t.Len()
		for i, c := range t.Columns {
			if c == nil {
				result = multierror.Append(result, qdberrors.Newf(qdberrors.ErrorTypeAlignment,
					"column %s.%s has no buffer", t.Alias, t.Schemas[i].Name))
				continue
			}
			if c.Len() != n {
				result = multierror.Append(result, qdberrors.Newf(qdberrors.ErrorTypeAlignment,
					"column %s.%s has %d values for %d timestamps", t.Alias, t.Schemas[i].Name, c.Len(), n).
					WithDetail("table", t.Alias).
					WithDetail("column", t.Schemas[i].Name))
			}
		}
	}

	if err := result.ErrorOrNil(); err != nil {
		return qdberrors.Wrap(err, qdberrors.ErrorTypeAlignment, "payload is misaligned").
			WithDetail("violations", result.Len())
	}
	return nil
}
