package memengine

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/bureau14/qdbbatch/pkg/engine"
	"github.com/bureau14/qdbbatch/pkg/wire"
)

// PushBatch implements engine.Engine. The frame is only read during the
// call; async pushes keep a private copy.
func (e *Engine) PushBatch(_ context.Context, frame []byte, mode engine.Mode, opts engine.PushOptions) (engine.PushStatus, engine.Code) {
	f, err := wire.Decode(frame, e.opts.Allocator)
	if err != nil {
		e.log.Warn("rejected malformed frame", zap.Error(err))
		return engine.PushStatus{}, engine.InvalidArgument
	}
	defer f.Release()

	switch mode {
	case engine.Transactional:
		return e.applyAtomic(f, opts, nil)
	case engine.Truncate:
		return e.applyAtomic(f, opts, truncateRanges(f, opts))
	case engine.Fast:
		if opts.Atomic {
			return e.applyAtomic(f, opts, nil)
		}
		return e.applyEach(f, opts)
	case engine.Async:
		return e.enqueue(f, frame, opts)
	}
	return engine.PushStatus{}, engine.InvalidArgument
}

func truncateRanges(f *wire.Frame, opts engine.PushOptions) map[string][]engine.Range {
	out := make(map[string][]engine.Range, len(f.Tables))
	for _, t := range f.Tables {
		if r, ok := opts.TruncateRanges[t.Alias]; ok {
			out[t.Alias] = append(out[t.Alias], r...)
			continue
		}
		if t.Len() > 0 {
			out[t.Alias] = append(out[t.Alias], span(t))
		}
	}
	return out
}

type bound struct {
	t *table
	b *binding
}

// bindAll resolves every table of f. Callers hold mu.
func (e *Engine) bindAll(f *wire.Frame, opts engine.PushOptions) ([]bound, engine.Code) {
	out := make([]bound, 0, len(f.Tables))
	for _, src := range f.Tables {
		t, code := e.lookup(src.Alias)
		if !code.OK() {
			return nil, code
		}
		b, code := t.bind(src, opts)
		if !code.OK() {
			return nil, code
		}
		out = append(out, bound{t: t, b: b})
	}
	return out, engine.Success
}

// applyAtomic validates every table before touching any of them. Rows
// skipped as all-null or duplicates are not rejections.
func (e *Engine) applyAtomic(f *wire.Frame, opts engine.PushOptions, truncate map[string][]engine.Range) (engine.PushStatus, engine.Code) {
	for _, rs := range truncate {
		if engine.ValidateRanges(rs) != nil {
			return engine.PushStatus{RejectedRows: f.Rows()}, engine.InvalidArgument
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	tables, code := e.bindAll(f, opts)
	if !code.OK() {
		return engine.PushStatus{RejectedRows: f.Rows()}, code
	}

	var st engine.PushStatus
	for alias, rs := range truncate {
		t, _ := e.lookup(alias)
		removed := t.truncate(rs)
		e.log.Debug("truncated", zap.String("table", alias), zap.Int("rows", removed))
	}
	for _, tb := range tables {
		st.AppliedRows += tb.t.insert(tb.b, opts.DropDuplicates)
	}
	return st, engine.Success
}

// applyEach applies tables independently.
func (e *Engine) applyEach(f *wire.Frame, opts engine.PushOptions) (engine.PushStatus, engine.Code) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var (
		st        engine.PushStatus
		firstCode = engine.Success
		applied   int
	)
	for _, src := range f.Tables {
		t, code := e.lookup(src.Alias)
		var b *binding
		if code.OK() {
			b, code = t.bind(src, opts)
		}
		if !code.OK() {
			if st.TableCodes == nil {
				st.TableCodes = make(map[string]engine.Code)
			}
			st.TableCodes[src.Alias] = code
			st.RejectedRows += src.Len()
			if firstCode.OK() {
				firstCode = code
			}
			continue
		}
		st.AppliedRows += t.insert(b, opts.DropDuplicates)
		applied++
	}

	switch {
	case firstCode.OK():
		return st, engine.Success
	case applied == 0:
		return st, firstCode
	default:
		return st, engine.PartialFailure
	}
}

// enqueue checks the frame binds, then queues a copy for the flusher.
func (e *Engine) enqueue(f *wire.Frame, frame []byte, opts engine.PushOptions) (engine.PushStatus, engine.Code) {
	e.mu.RLock()
	_, code := e.bindAll(f, opts)
	e.mu.RUnlock()
	if !code.OK() {
		return engine.PushStatus{RejectedRows: f.Rows()}, code
	}

	e.queueMu.Lock()
	full := !e.closed && len(e.queue) >= e.opts.QueueDepth
	e.queueMu.Unlock()
	if full {
		e.flush()
	}

	e.queueMu.Lock()
	defer e.queueMu.Unlock()
	if e.closed {
		e.log.Warn("async push after close")
		return engine.PushStatus{RejectedRows: f.Rows()}, engine.Internal
	}
	e.queue = append(e.queue, queued{frame: append([]byte(nil), frame...), opts: opts})
	return engine.PushStatus{}, engine.Success
}

func (e *Engine) flushLoop() {
	defer close(e.done)
	ticker := time.NewTicker(e.opts.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			e.flush()
		case <-e.stop:
			return
		}
	}
}

// flush applies every queued frame in arrival order. Failures cannot reach
// the pusher any more, so they are logged.
func (e *Engine) flush() {
	e.queueMu.Lock()
	pending := e.queue
	e.queue = nil
	e.queueMu.Unlock()

	for _, q := range pending {
		f, err := wire.Decode(q.frame, e.opts.Allocator)
		if err != nil {
			e.log.Error("async frame lost", zap.Error(err))
			continue
		}
		var (
			st   engine.PushStatus
			code engine.Code
		)
		if q.opts.Atomic {
			st, code = e.applyAtomic(f, q.opts, nil)
		} else {
			st, code = e.applyEach(f, q.opts)
		}
		f.Release()
		if !code.OK() {
			e.log.Error("async flush failed",
				zap.Stringer("code", code),
				zap.Int("applied_rows", st.AppliedRows),
				zap.Int("rejected_rows", st.RejectedRows))
		}
	}
	if len(pending) > 0 {
		e.log.Debug("async queue flushed", zap.Int("frames", len(pending)))
	}
}
