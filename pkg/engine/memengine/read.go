package memengine

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bureau14/qdbbatch/pkg/column"
	"github.com/bureau14/qdbbatch/pkg/engine"
	"github.com/bureau14/qdbbatch/pkg/pool"
	"github.com/bureau14/qdbbatch/pkg/wire"
)

// BulkRead implements engine.Engine. An empty column list selects every
// column of the first table; every table must then hold those names.
func (e *Engine) BulkRead(ctx context.Context, columns []string, tables []engine.TableRange) (engine.Handle, engine.Code) {
	if len(tables) == 0 {
		return 0, engine.InvalidArgument
	}
	for _, tr := range tables {
		if engine.ValidateRanges(tr.Ranges) != nil {
			return 0, engine.InvalidArgument
		}
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	resolved := make([]*table, len(tables))
	offsets := make([][]int, len(tables))
	for i, tr := range tables {
		t, code := e.lookup(tr.Alias)
		if !code.OK() {
			return 0, code
		}
		resolved[i] = t
	}
	if len(columns) == 0 {
		columns = column.Names(resolved[0].schemas)
	}
	for i, t := range resolved {
		offsets[i] = make([]int, len(columns))
		for c, name := range columns {
			off := column.Index(t.schemas, name)
			if off < 0 {
				return 0, engine.ColumnNotFound
			}
			offsets[i][c] = off
		}
	}

	batches := make([]wire.TableBatch, len(tables))
	var g errgroup.Group
	for i := range tables {
		i := i
		g.Go(func() error {
			t := resolved[i]
			batches[i] = t.materialize(t.scan(tables[i].Ranges), offsets[i])
			return nil
		})
	}
	_ = g.Wait()

	buf := pool.GetBuffer()
	defer pool.PutBuffer(buf)
	if err := e.enc.Encode(ctx, batches, buf); err != nil {
		e.log.Error("failed to encode read result", zap.Error(err))
		return 0, engine.Internal
	}

	h := engine.Handle(e.nextHandle.Add(1))
	e.handleMu.Lock()
	e.handles[h] = append([]byte(nil), buf.Bytes()...)
	e.handleMu.Unlock()
	return h, engine.Success
}

// ResultFrame implements engine.Engine.
func (e *Engine) ResultFrame(h engine.Handle) ([]byte, engine.Code) {
	e.handleMu.Lock()
	defer e.handleMu.Unlock()
	frame, ok := e.handles[h]
	if !ok {
		return nil, engine.InvalidHandle
	}
	return frame, engine.Success
}

// Release implements engine.Engine. Releasing an unknown or already
// released handle returns InvalidHandle.
func (e *Engine) Release(h engine.Handle) engine.Code {
	e.handleMu.Lock()
	defer e.handleMu.Unlock()
	if _, ok := e.handles[h]; !ok {
		return engine.InvalidHandle
	}
	delete(e.handles, h)
	return engine.Success
}

// OpenHandles returns the number of unreleased read results.
func (e *Engine) OpenHandles() int {
	e.handleMu.Lock()
	defer e.handleMu.Unlock()
	return len(e.handles)
}
