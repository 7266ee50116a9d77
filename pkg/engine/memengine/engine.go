// Package memengine is an in-process implementation of engine.Engine.
//
// It keeps tables in memory, bucketed by shard duration, decodes pushed
// frames with the wire codec, serves bulk reads through a handle table and
// computes interval aggregations. Async pushes are queued and applied by a
// background flusher on a fixed interval; Close stops it.
package memengine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/apache/arrow/go/v17/arrow/memory"
	"go.uber.org/zap"

	"github.com/bureau14/qdbbatch/pkg/column"
	"github.com/bureau14/qdbbatch/pkg/compression"
	"github.com/bureau14/qdbbatch/pkg/engine"
	"github.com/bureau14/qdbbatch/pkg/logger"
	"github.com/bureau14/qdbbatch/pkg/wire"
)

// DefaultFlushInterval is how often queued async frames are applied.
const DefaultFlushInterval = 5 * time.Second

// Options configure an Engine.
type Options struct {
	FlushInterval time.Duration
	// QueueDepth bounds the async queue; a push into a full queue flushes it
	// synchronously first.
	QueueDepth  int
	Compression compression.Algorithm
	Logger      *zap.Logger
	Allocator   memory.Allocator
}

// Option mutates Options.
type Option func(*Options)

// WithFlushInterval sets the async flush interval.
func WithFlushInterval(d time.Duration) Option {
	return func(o *Options) { o.FlushInterval = d }
}

// WithQueueDepth bounds the async queue.
func WithQueueDepth(n int) Option {
	return func(o *Options) { o.QueueDepth = n }
}

// WithCompression sets the compression of bulk-read result frames.
func WithCompression(a compression.Algorithm) Option {
	return func(o *Options) { o.Compression = a }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Options) { o.Logger = l }
}

// Engine is an in-memory time series engine.
type Engine struct {
	opts Options
	log  *zap.Logger
	enc  *wire.Encoder

	mu      sync.RWMutex
	entries map[string]entry

	handleMu   sync.Mutex
	handles    map[engine.Handle][]byte
	nextHandle atomic.Uint64

	queueMu sync.Mutex
	queue   []queued
	closed  bool // set by Close; guarded by queueMu

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

type queued struct {
	frame []byte
	opts  engine.PushOptions
}

var _ engine.Engine = (*Engine)(nil)

// New starts an engine and its async flusher.
func New(opts ...Option) (*Engine, error) {
	o := Options{
		FlushInterval: DefaultFlushInterval,
		QueueDepth:    1024,
		Compression:   compression.None,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Logger == nil {
		o.Logger = logger.Named("memengine")
	}
	if o.Allocator == nil {
		o.Allocator = memory.NewGoAllocator()
	}
	if o.FlushInterval <= 0 {
		o.FlushInterval = DefaultFlushInterval
	}

	comp, err := compression.NewCompressor(&compression.Config{Algorithm: o.Compression, Level: compression.Fastest})
	if err != nil {
		return nil, err
	}
	enc, err := wire.NewEncoder(comp, o.Allocator)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		opts:    o,
		log:     o.Logger,
		enc:     enc,
		entries: make(map[string]entry),
		handles: make(map[engine.Handle][]byte),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go e.flushLoop()
	return e, nil
}

// Close flushes the async queue and stops the flusher. Async pushes after
// Close fail with engine.Internal. It is safe to call more than once.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		e.queueMu.Lock()
		e.closed = true
		e.queueMu.Unlock()

		close(e.stop)
		<-e.done
		e.flush()

		e.handleMu.Lock()
		e.handles = make(map[engine.Handle][]byte)
		e.handleMu.Unlock()
	})
	return nil
}

// PutBlob stores a non-table entry under alias.
func (e *Engine) PutBlob(alias string, data []byte) engine.Code {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.entries[alias]; ok {
		return engine.AliasAlreadyExists
	}
	e.entries[alias] = blobEntry{data: append([]byte(nil), data...)}
	return engine.Success
}

// lookup returns the table stored under alias. Callers hold mu.
func (e *Engine) lookup(alias string) (*table, engine.Code) {
	en, ok := e.entries[alias]
	if !ok {
		return nil, engine.AliasNotFound
	}
	t, ok := en.(*table)
	if !ok {
		return nil, engine.IncompatibleType
	}
	return t, engine.Success
}

func validateSchemas(existing, added []column.Schema) engine.Code {
	seen := make(map[string]struct{}, len(existing)+len(added))
	for _, s := range existing {
		seen[s.Name] = struct{}{}
	}
	for _, s := range added {
		if s.Validate() != nil {
			return engine.InvalidArgument
		}
		if _, dup := seen[s.Name]; dup {
			return engine.InvalidArgument
		}
		seen[s.Name] = struct{}{}
	}
	return engine.Success
}

// CreateTable implements engine.Engine.
func (e *Engine) CreateTable(_ context.Context, alias string, shard time.Duration, columns []column.Schema) engine.Code {
	if alias == "" || shard <= 0 {
		return engine.InvalidArgument
	}
	if code := validateSchemas(nil, columns); !code.OK() {
		return code
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if en, ok := e.entries[alias]; ok {
		if _, isTable := en.(*table); isTable {
			return engine.AliasAlreadyExists
		}
		return engine.IncompatibleType
	}
	e.entries[alias] = newTable(alias, shard, columns)
	e.log.Debug("table created",
		zap.String("table", alias),
		zap.Duration("shard", shard),
		zap.Int("columns", len(columns)))
	return engine.Success
}

// InsertColumns implements engine.Engine.
func (e *Engine) InsertColumns(_ context.Context, alias string, columns []column.Schema) engine.Code {
	if len(columns) == 0 {
		return engine.InvalidArgument
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	t, code := e.lookup(alias)
	if !code.OK() {
		return code
	}
	if code := validateSchemas(t.schemas, columns); !code.OK() {
		return code
	}
	t.addColumns(columns)
	return engine.Success
}

// ResolveColumns implements engine.Engine.
func (e *Engine) ResolveColumns(_ context.Context, alias string, names []string) ([]column.Schema, engine.Code) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	t, code := e.lookup(alias)
	if !code.OK() {
		return nil, code
	}
	if len(names) == 0 {
		return append([]column.Schema(nil), t.schemas...), engine.Success
	}
	out := make([]column.Schema, len(names))
	for i, n := range names {
		off := column.Index(t.schemas, n)
		if off < 0 {
			return nil, engine.ColumnNotFound
		}
		out[i] = t.schemas[off]
	}
	return out, engine.Success
}
