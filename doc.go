// Package qdbbatch is a client-side columnar batch write and bulk read
// engine for time series tables.
//
// Callers bind columns of one or more tables, fill typed column buffers and
// push them to the engine in one frame. Reads go the other way: a bulk read
// returns one frame holding every requested row, which the reader walks
// row by row without copying.
//
// # Packages
//
//   - pkg/batch: RowWriter (row at a time), ColumnarWriter (whole arrays)
//     and the Executor that validates, encodes and pushes a payload
//   - pkg/reader: Reader, Row and Cell over a bulk-read result
//   - pkg/aggregate: interval aggregations computed by the engine
//   - pkg/column: value types, timestamps, typed column buffers
//   - pkg/wire: the frame format, one compressed Arrow IPC stream per table
//   - pkg/engine: the Engine contract, push modes and result codes, plus
//     memengine, an in-memory reference engine
//   - pkg/config, pkg/logger, pkg/metrics, pkg/observability: ambient stack
//
// # Quick Start
//
//	eng, _ := memengine.New()
//	defer eng.Close()
//
//	exec, _ := batch.NewExecutor(eng)
//	_ = exec.CreateTable(ctx, "trades", time.Hour, []column.Schema{
//	    {Name: "price", Type: column.TypeDouble},
//	    {Name: "side", Type: column.TypeSymbol, Symtable: "sides"},
//	})
//
//	w, _ := batch.NewRowWriter(ctx, exec, []batch.ColumnRef{
//	    {Table: "trades", Column: "price"},
//	    {Table: "trades", Column: "side"},
//	})
//	w.StartRow(time.Now())
//	_ = w.SetDouble(0, 101.5)
//	_ = w.SetSymbol(1, "bid")
//	_, _ = w.Push(ctx)
//
//	r, _ := reader.Open(ctx, eng, nil, []reader.TableRange{reader.Table("trades")})
//	defer r.Close()
//	for r.Next() {
//	    price, _ := r.Row().CellByName("price")
//	    v, ok, _ := price.AsDouble()
//	    ...
//	}
//
// # Push Modes
//
//   - Transactional: every row of every table, or none
//   - Fast: tables apply independently; failures surface as partial_failure
//   - Async: the frame is queued and applied by the engine later
//   - Truncate: the pushed ranges are erased and replaced atomically
//
// # Command Line
//
// cmd/qdbbatch benchmarks push and read throughput (bench) and loads CSV
// files (load) against the reference engine.
package qdbbatch
