// Package wire encodes column-major batches into the frames exchanged with
// the engine, and decodes frames back into Arrow-backed tables.
//
// A frame is:
//
//	magic "QDBF" | version u8 | compression id u8 | table count u32
//	then per table: length u32 | compressed Arrow IPC stream
//
// Integers are little endian. Every table travels as its own IPC stream
// holding exactly one record.
package wire

import (
	"bytes"
	"context"
	"encoding/binary"

	"github.com/apache/arrow/go/v17/arrow/ipc"
	"github.com/apache/arrow/go/v17/arrow/memory"
	"golang.org/x/sync/errgroup"

	"github.com/bureau14/qdbbatch/pkg/compression"
	"github.com/bureau14/qdbbatch/pkg/pool"
	"github.com/bureau14/qdbbatch/pkg/qdberrors"
)

const (
	magic         = "QDBF"
	version  byte = 1
	headerLen     = len(magic) + 2 + 4
)

// Encoder turns table batches into frames. It is safe for concurrent use.
type Encoder struct {
	comp  compression.Compressor
	mem   memory.Allocator
	algID byte
}

// NewEncoder returns an encoder compressing each table with comp.
// A nil comp disables compression.
func NewEncoder(comp compression.Compressor, mem memory.Allocator) (*Encoder, error) {
	if comp == nil {
		var err error
		if comp, err = compression.NewCompressor(&compression.Config{Algorithm: compression.None}); err != nil {
			return nil, err
		}
	}
	if mem == nil {
		mem = memory.NewGoAllocator()
	}
	id, err := comp.Algorithm().ID()
	if err != nil {
		return nil, err
	}
	return &Encoder{comp: comp, mem: mem, algID: id}, nil
}

// Algorithm returns the compression the encoder applies.
func (e *Encoder) Algorithm() compression.Algorithm { return e.comp.Algorithm() }

// Encode writes the frame of batches into dst. Tables are encoded
// concurrently and laid out in the order given.
func (e *Encoder) Encode(ctx context.Context, batches []TableBatch, dst *bytes.Buffer) error {
	parts := make([][]byte, len(batches))

	g, ctx := errgroup.WithContext(ctx)
	for i := range batches {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			part, err := e.encodeTable(batches[i])
			if err != nil {
				return err
			}
			parts[i] = part
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if qdberrors.TypeOf(err) == qdberrors.ErrorTypeAlignment {
			return err
		}
		return qdberrors.Wrap(err, qdberrors.ErrorTypeInternal, "failed to encode frame")
	}

	var hdr [headerLen]byte
	copy(hdr[:], magic)
	hdr[4] = version
	hdr[5] = e.algID
	binary.LittleEndian.PutUint32(hdr[6:], uint32(len(parts)))
	dst.Write(hdr[:])

	var lenBuf [4]byte
	for _, p := range parts {
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(p)))
		dst.Write(lenBuf[:])
		dst.Write(p)
	}
	return nil
}

func (e *Encoder) encodeTable(b TableBatch) ([]byte, error) {
	rec, err := buildRecord(e.mem, b)
	if err != nil {
		return nil, err
	}
	defer rec.Release()

	buf := pool.GetBuffer()
	defer pool.PutBuffer(buf)

	w := ipc.NewWriter(buf, ipc.WithSchema(rec.Schema()), ipc.WithAllocator(e.mem))
	if err := w.Write(rec); err != nil {
		_ = w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	out, err := e.comp.Compress(buf.Bytes())
	if err != nil {
		return nil, err
	}
	if e.comp.Algorithm() == compression.None {
		out = bytes.Clone(out)
	}
	return out, nil
}

// Frame is a decoded frame. Its tables reference Arrow memory until Release.
type Frame struct {
	Tables []*Table
}

// Rows returns the total row count over all tables.
func (f *Frame) Rows() int {
	n := 0
	for _, t := range f.Tables {
		n += t.Len()
	}
	return n
}

// Release frees every table.
func (f *Frame) Release() {
	for _, t := range f.Tables {
		t.Release()
	}
	f.Tables = nil
}

// Decode parses a frame. The returned tables own their memory and do not
// alias data.
func Decode(data []byte, mem memory.Allocator) (*Frame, error) {
	if mem == nil {
		mem = memory.NewGoAllocator()
	}
	if len(data) < headerLen || string(data[:len(magic)]) != magic {
		return nil, qdberrors.New(qdberrors.ErrorTypeInternal, "not a qdbbatch frame")
	}
	if data[4] != version {
		return nil, qdberrors.Newf(qdberrors.ErrorTypeInternal, "unsupported frame version %d", data[4])
	}
	algo, err := compression.AlgorithmByID(data[5])
	if err != nil {
		return nil, qdberrors.Wrap(err, qdberrors.ErrorTypeInternal, "bad frame header")
	}
	comp, err := compression.ForAlgorithm(algo)
	if err != nil {
		return nil, qdberrors.Wrap(err, qdberrors.ErrorTypeInternal, "bad frame header")
	}
	count := int(binary.LittleEndian.Uint32(data[6:headerLen]))
	rest := data[headerLen:]
	// Every table needs at least its 4-byte length prefix.
	if count > len(rest)/4 {
		return nil, qdberrors.Newf(qdberrors.ErrorTypeInternal, "frame claims %d tables in %d bytes", count, len(rest))
	}

	f := &Frame{Tables: make([]*Table, 0, count)}
	for i := 0; i < count; i++ {
		if len(rest) < 4 {
			f.Release()
			return nil, qdberrors.New(qdberrors.ErrorTypeInternal, "truncated frame")
		}
		n := int(binary.LittleEndian.Uint32(rest))
		rest = rest[4:]
		if len(rest) < n {
			f.Release()
			return nil, qdberrors.New(qdberrors.ErrorTypeInternal, "truncated frame")
		}
		raw, err := comp.Decompress(rest[:n])
		if err != nil {
			f.Release()
			return nil, qdberrors.Wrap(err, qdberrors.ErrorTypeInternal, "failed to decompress table")
		}
		rest = rest[n:]

		t, err := decodeTable(raw, mem)
		if err != nil {
			f.Release()
			return nil, qdberrors.Wrap(err, qdberrors.ErrorTypeInternal, "failed to decode table")
		}
		f.Tables = append(f.Tables, t)
	}
	return f, nil
}

func decodeTable(raw []byte, mem memory.Allocator) (*Table, error) {
	r, err := ipc.NewReader(bytes.NewReader(raw), ipc.WithAllocator(mem))
	if err != nil {
		return nil, err
	}
	defer r.Release()

	if !r.Next() {
		if err := r.Err(); err != nil {
			return nil, err
		}
		return nil, qdberrors.New(qdberrors.ErrorTypeInternal, "table stream holds no record")
	}
	rec := r.Record()
	rec.Retain()

	t, err := newTable(rec)
	if err != nil {
		rec.Release()
		return nil, err
	}
	return t, nil
}
