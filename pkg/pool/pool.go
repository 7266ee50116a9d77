// Package pool provides typed object pooling for qdbbatch.
//
// The package provides:
//   - Generic type-safe object pooling with Pool[T]
//   - A shared bytes.Buffer pool used while encoding and compressing frames
//   - Allocation statistics for monitoring
//
// Example usage:
//
//	buf := pool.GetBuffer()
//	defer pool.PutBuffer(buf)
//
//	myPool := pool.New(
//	    func() *MyType { return &MyType{} },
//	    func(obj *MyType) { obj.Reset() },
//	)
//	obj := myPool.Get()
//	defer myPool.Put(obj)
package pool

import (
	"bytes"
	"sync"
	"sync/atomic"
)

// Pool represents a generic object pool with type safety.
// It wraps sync.Pool with statistics tracking and an optional reset hook.
// The pool is safe for concurrent use.
type Pool[T any] struct {
	pool  sync.Pool
	reset func(T)
	stats struct {
		allocated int64
		inUse     int64
		gets      int64
	}
}

// New creates a new typed pool with custom allocation and reset functions.
// reset may be nil.
func New[T any](newFn func() T, reset func(T)) *Pool[T] {
	p := &Pool[T]{reset: reset}
	p.pool.New = func() interface{} {
		atomic.AddInt64(&p.stats.allocated, 1)
		return newFn()
	}
	return p
}

// Get retrieves an object from the pool, allocating one when empty.
func (p *Pool[T]) Get() T {
	atomic.AddInt64(&p.stats.inUse, 1)
	atomic.AddInt64(&p.stats.gets, 1)
	return p.pool.Get().(T)
}

// Put resets obj and returns it to the pool.
func (p *Pool[T]) Put(obj T) {
	if p.reset != nil {
		p.reset(obj)
	}
	atomic.AddInt64(&p.stats.inUse, -1)
	p.pool.Put(obj)
}

// Stats is a snapshot of pool counters.
type Stats struct {
	Allocated int64
	InUse     int64
	Gets      int64
}

// Stats returns current pool statistics.
func (p *Pool[T]) Stats() Stats {
	return Stats{
		Allocated: atomic.LoadInt64(&p.stats.allocated),
		InUse:     atomic.LoadInt64(&p.stats.inUse),
		Gets:      atomic.LoadInt64(&p.stats.gets),
	}
}

// maxRetainedBuffer caps the capacity of buffers kept in the pool so one
// oversized frame does not pin memory forever.
const maxRetainedBuffer = 16 << 20

var bufferPool = New(
	func() *bytes.Buffer { return bytes.NewBuffer(make([]byte, 0, 64*1024)) },
	func(b *bytes.Buffer) { b.Reset() },
)

// GetBuffer returns an empty buffer from the shared pool.
func GetBuffer() *bytes.Buffer {
	return bufferPool.Get()
}

// PutBuffer returns buf to the shared pool. Oversized buffers are dropped.
func PutBuffer(buf *bytes.Buffer) {
	if buf == nil {
		return
	}
	if buf.Cap() > maxRetainedBuffer {
		atomic.AddInt64(&bufferPool.stats.inUse, -1)
		return
	}
	bufferPool.Put(buf)
}

// BufferStats reports statistics of the shared buffer pool.
func BufferStats() Stats {
	return bufferPool.Stats()
}
