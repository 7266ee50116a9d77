package memengine

import (
	"bytes"
	"sort"
	"time"

	"github.com/bureau14/qdbbatch/pkg/column"
	"github.com/bureau14/qdbbatch/pkg/engine"
	"github.com/bureau14/qdbbatch/pkg/wire"
)

// entry is anything stored under an alias.
type entry interface {
	kind() string
}

// blobEntry is a non-table entry. It exists so that table operations on the
// wrong kind of alias can be told apart from missing aliases.
type blobEntry struct {
	data []byte
}

func (blobEntry) kind() string { return "blob" }

// table stores its points in shards keyed by time bucket. Every shard keeps
// one buffer per table column, aligned with its timestamp index.
type table struct {
	alias   string
	shard   time.Duration
	schemas []column.Schema
	shards  map[int64]*shard
}

func (*table) kind() string { return "table" }

type shard struct {
	ts   *column.TimestampColumn
	cols []column.Column
}

func newTable(alias string, shardDuration time.Duration, schemas []column.Schema) *table {
	return &table{
		alias:   alias,
		shard:   shardDuration,
		schemas: append([]column.Schema(nil), schemas...),
		shards:  make(map[int64]*shard),
	}
}

// bucket returns the shard key of ts: the index of the shard-sized window
// holding it, counted in whole seconds.
func (t *table) bucket(ts column.Timespec) int64 {
	width := int64(t.shard / time.Second)
	if width < 1 {
		width = 1
	}
	q := ts.Sec / width
	if ts.Sec%width < 0 {
		q--
	}
	return q
}

func (t *table) shardFor(ts column.Timespec) *shard {
	key := t.bucket(ts)
	s, ok := t.shards[key]
	if !ok {
		s = &shard{ts: column.NewTimestampColumn(64)}
		for _, sc := range t.schemas {
			s.cols = append(s.cols, column.New(sc, 64))
		}
		t.shards[key] = s
	}
	return s
}

// addColumns appends schemas; existing shards gain all-null buffers.
func (t *table) addColumns(schemas []column.Schema) {
	for _, sc := range schemas {
		t.schemas = append(t.schemas, sc)
		for _, s := range t.shards {
			s.cols = append(s.cols, column.NullColumn(sc, s.ts.Len()))
		}
	}
}

// binding maps the columns of a decoded batch onto table column offsets.
type binding struct {
	src     *wire.Table
	offsets []int
	dedup   []dedupColumn
}

// dedupColumn is one column compared for duplicates. src is -1 when the
// batch does not carry the column, so incoming rows hold null there.
type dedupColumn struct {
	off int
	src int
}

// bind checks that every batch column exists in t with the same type.
func (t *table) bind(src *wire.Table, opts engine.PushOptions) (*binding, engine.Code) {
	b := &binding{src: src, offsets: make([]int, len(src.Schemas))}
	for i, s := range src.Schemas {
		off := column.Index(t.schemas, s.Name)
		if off < 0 {
			return nil, engine.ColumnNotFound
		}
		if t.schemas[off].Type != s.Type {
			return nil, engine.TypeMismatch
		}
		b.offsets[i] = off
	}
	if opts.DropDuplicates {
		if len(opts.DuplicateColumns) == 0 {
			for i, off := range b.offsets {
				b.dedup = append(b.dedup, dedupColumn{off: off, src: i})
			}
		} else {
			for _, name := range opts.DuplicateColumns {
				off := column.Index(t.schemas, name)
				if off < 0 {
					return nil, engine.ColumnNotFound
				}
				b.dedup = append(b.dedup, dedupColumn{off: off, src: src.ColumnIndex(name)})
			}
		}
	}
	return b, engine.Success
}

// insert appends the batch rows and returns how many were stored. Rows whose
// bound cells are all null are not stored.
func (t *table) insert(b *binding, dropDuplicates bool) int {
	src := b.src
	stored := 0
	for i := 0; i < src.Len(); i++ {
		if allNull(src, i) {
			continue
		}
		ts := src.Timestamp(i)
		s := t.shardFor(ts)
		if dropDuplicates && s.contains(b, i, ts) {
			continue
		}

		s.ts.Append(ts)
		bound := make([]bool, len(s.cols))
		for c, off := range b.offsets {
			_ = s.cols[off].AppendValue(ownValue(src.Value(c, i)))
			bound[off] = true
		}
		for off, ok := range bound {
			if !ok {
				s.cols[off].AppendNull()
			}
		}
		stored++
	}
	return stored
}

func allNull(src *wire.Table, row int) bool {
	for c := range src.Schemas {
		if !src.IsNull(c, row) {
			return false
		}
	}
	return true
}

// ownValue copies blob payloads out of the decoded frame.
func ownValue(v column.Value) column.Value {
	if v.Type() == column.TypeBlob && !v.IsNull() {
		b, _, _ := v.AsBlob()
		return column.BlobValue(bytes.Clone(b))
	}
	return v
}

// contains reports whether the shard already holds a row at ts equal to
// batch row i on the dedup columns.
func (s *shard) contains(b *binding, i int, ts column.Timespec) bool {
	for r := 0; r < s.ts.Len(); r++ {
		if s.ts.At(r) != ts {
			continue
		}
		same := true
		for _, d := range b.dedup {
			incoming := column.Null(s.cols[d.off].Type())
			if d.src >= 0 {
				incoming = b.src.Value(d.src, i)
			}
			if !s.cols[d.off].Value(r).Equal(incoming) {
				same = false
				break
			}
		}
		if same {
			return true
		}
	}
	return false
}

// truncate removes the rows falling in any of ranges and returns the count.
func (t *table) truncate(ranges []engine.Range) int {
	removed := 0
	for key, s := range t.shards {
		keep := make([]int, 0, s.ts.Len())
		for r := 0; r < s.ts.Len(); r++ {
			if engine.ContainsAny(ranges, s.ts.At(r)) {
				continue
			}
			keep = append(keep, r)
		}
		if len(keep) == s.ts.Len() {
			continue
		}
		removed += s.ts.Len() - len(keep)
		if len(keep) == 0 {
			delete(t.shards, key)
			continue
		}
		s.take(keep)
	}
	return removed
}

func (s *shard) take(indices []int) {
	s.ts = s.ts.Take(indices).(*column.TimestampColumn)
	for i, c := range s.cols {
		s.cols[i] = c.Take(indices)
	}
}

// rowRef addresses one stored row.
type rowRef struct {
	s   *shard
	row int
}

// scan returns the rows falling in ranges (all time when empty), ordered by
// timestamp and, among equal timestamps, by insertion.
func (t *table) scan(ranges []engine.Range) []rowRef {
	keys := make([]int64, 0, len(t.shards))
	for k := range t.shards {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	var refs []rowRef
	for _, k := range keys {
		s := t.shards[k]
		start := len(refs)
		for r := 0; r < s.ts.Len(); r++ {
			if engine.ContainsAny(ranges, s.ts.At(r)) {
				refs = append(refs, rowRef{s: s, row: r})
			}
		}
		part := refs[start:]
		sort.SliceStable(part, func(i, j int) bool {
			return part[i].s.ts.At(part[i].row).Before(part[j].s.ts.At(part[j].row))
		})
	}
	return refs
}

// materialize builds the result batch of the given column offsets over refs.
func (t *table) materialize(refs []rowRef, offsets []int) wire.TableBatch {
	b := wire.TableBatch{
		Alias:      t.alias,
		Timestamps: column.NewTimestampColumn(len(refs)),
		Schemas:    make([]column.Schema, len(offsets)),
		Columns:    make([]column.Column, len(offsets)),
	}
	for i, off := range offsets {
		b.Schemas[i] = t.schemas[off]
		b.Columns[i] = column.New(t.schemas[off], len(refs))
	}
	for _, ref := range refs {
		b.Timestamps.Append(ref.s.ts.At(ref.row))
		for i, off := range offsets {
			_ = b.Columns[i].AppendValue(ref.s.cols[off].Value(ref.row))
		}
	}
	return b
}

// span returns the [first, last] interval of a batch as a half-open range.
func span(src *wire.Table) engine.Range {
	r := engine.Range{Begin: column.MaxTimespec, End: column.MinTimespec}
	for i := 0; i < src.Len(); i++ {
		ts := src.Timestamp(i)
		if ts.Before(r.Begin) {
			r.Begin = ts
		}
		if r.End.Before(ts) {
			r.End = ts
		}
	}
	r.End.Nsec++
	if r.End.Nsec == 1e9 {
		r.End.Sec++
		r.End.Nsec = 0
	}
	return r
}
