package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bureau14/qdbbatch/pkg/aggregate"
	"github.com/bureau14/qdbbatch/pkg/batch"
	"github.com/bureau14/qdbbatch/pkg/column"
	"github.com/bureau14/qdbbatch/pkg/compression"
	"github.com/bureau14/qdbbatch/pkg/engine"
	"github.com/bureau14/qdbbatch/pkg/reader"
)

type benchOptions struct {
	rows        int
	batchSize   int
	tables      int
	mode        string
	writer      string
	compression string
	level       string
	timeout     time.Duration
}

var benchSymbols = []string{"bid", "ask", "trade", "quote"}

func benchSchemas() []column.Schema {
	return []column.Schema{
		{Name: "price", Type: column.TypeDouble},
		{Name: "volume", Type: column.TypeInt64},
		{Name: "side", Type: column.TypeSymbol, Symtable: "bench_sides"},
	}
}

func newBenchCommand(a *app) *cobra.Command {
	o := &benchOptions{}
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Measure push and bulk read throughput",
		Long: `Create benchmark tables on a fresh reference engine, push generated rows
with the selected writer and mode, then read every row back.

Example:
  qdbbatch bench --rows 1000000 --tables 4 --writer columnar --mode fast --compression zstd`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.bench(cmd, o)
		},
	}
	cmd.Flags().IntVar(&o.rows, "rows", 100000, "Rows per table")
	cmd.Flags().IntVar(&o.batchSize, "batch-size", 10000, "Rows per push")
	cmd.Flags().IntVar(&o.tables, "tables", 1, "Number of tables written together")
	cmd.Flags().StringVar(&o.mode, "mode", "", "Push mode (transactional, fast, async, truncate); defaults to writer.mode")
	cmd.Flags().StringVar(&o.writer, "writer", "columnar", "Writer flavor (row, columnar)")
	cmd.Flags().StringVar(&o.compression, "compression", "", "Frame compression; defaults to writer.compression.algorithm")
	cmd.Flags().StringVar(&o.level, "compression-level", "", "Compression level (fastest, default, better, best); defaults to writer.compression.level")
	cmd.Flags().DurationVar(&o.timeout, "timeout", 10*time.Minute, "Overall timeout")
	return cmd
}

// benchWriter fills one batch of rows starting at the global row offset.
type benchWriter interface {
	pusher
	fill(offset, n int) error
}

func (a *app) bench(cmd *cobra.Command, o *benchOptions) error {
	if o.rows <= 0 || o.batchSize <= 0 || o.tables <= 0 {
		return fmt.Errorf("--rows, --batch-size and --tables must be positive")
	}
	mode, err := a.mode(o.mode)
	if err != nil {
		return err
	}
	if o.compression != "" {
		alg, err := compression.ParseAlgorithm(o.compression)
		if err != nil {
			return err
		}
		a.cfg.Writer.Compression.Algorithm = alg
	}
	if o.level != "" {
		a.cfg.Writer.Compression.Level = compression.ParseLevel(o.level)
	}

	stop := a.serveMetrics()
	defer stop()

	ctx, cancel := context.WithTimeout(cmd.Context(), o.timeout)
	defer cancel()

	eng, exec, err := a.open()
	if err != nil {
		return err
	}
	defer eng.Close()

	aliases := make([]string, o.tables)
	for i := range aliases {
		aliases[i] = fmt.Sprintf("bench_%d", i)
		if err := exec.CreateTable(ctx, aliases[i], a.cfg.Engine.ShardDuration, benchSchemas()); err != nil {
			return err
		}
	}

	w, err := a.benchWriter(ctx, exec, o.writer, aliases)
	if err != nil {
		return err
	}

	log := a.log.With(
		zap.String("writer", o.writer),
		zap.Stringer("mode", mode),
		zap.String("compression", string(a.cfg.Writer.Compression.Algorithm)))
	log.Info("starting bench", zap.Int("rows", o.rows), zap.Int("tables", o.tables))

	var pushed batch.PushResult
	start := time.Now()
	for offset := 0; offset < o.rows; offset += o.batchSize {
		n := min(o.batchSize, o.rows-offset)
		if err := w.fill(offset, n); err != nil {
			return err
		}
		res, err := push(ctx, w, mode)
		if err != nil {
			return err
		}
		pushed.Rows += res.Rows
		pushed.Bytes += res.Bytes
	}
	if mode == engine.Async {
		err := a.poll(ctx, func() (bool, error) {
			return applied(ctx, eng, aliases, int64(o.rows))
		})
		if err != nil {
			return err
		}
	}
	pushTime := time.Since(start)

	start = time.Now()
	read, err := readAll(ctx, eng, aliases)
	if err != nil {
		return err
	}
	readTime := time.Since(start)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "writer=%s mode=%s compression=%s level=%s tables=%d\n",
		o.writer, mode, a.cfg.Writer.Compression.Algorithm, a.cfg.Writer.Compression.Level, o.tables)
	fmt.Fprintf(out, "push: %d rows, %d bytes in %s (%.0f rows/s)\n",
		pushed.Rows, pushed.Bytes, pushTime, rate(pushed.Rows, pushTime))
	fmt.Fprintf(out, "read: %d rows in %s (%.0f rows/s)\n",
		read, readTime, rate(read, readTime))
	log.Info("bench finished", zap.Duration("push", pushTime), zap.Duration("read", readTime))
	return nil
}

func rate(n int, d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(n) / d.Seconds()
}

// poll calls done every half flush interval until it reports true.
func (a *app) poll(ctx context.Context, done func() (bool, error)) error {
	ticker := time.NewTicker(max(a.cfg.Engine.FlushInterval/2, time.Millisecond))
	defer ticker.Stop()
	for {
		ok, err := done()
		if err != nil || ok {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// applied reports whether every table holds want prices.
func applied(ctx context.Context, eng engine.Engine, aliases []string, want int64) (bool, error) {
	for _, alias := range aliases {
		res, err := aggregate.Scalar(ctx, eng, alias, "price", engine.Count, nil)
		if aggregate.IsEmptyColumn(err) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		if res.Count < want {
			return false, nil
		}
	}
	return true, nil
}

func readAll(ctx context.Context, eng engine.Engine, aliases []string) (int, error) {
	tables := make([]reader.TableRange, len(aliases))
	for i, alias := range aliases {
		tables[i] = reader.Table(alias)
	}
	r, err := reader.Open(ctx, eng, nil, tables)
	if err != nil {
		return 0, err
	}
	defer r.Close()

	n := 0
	for r.Next() {
		n++
	}
	return n, r.Err()
}

func (a *app) benchWriter(ctx context.Context, exec *batch.Executor, flavor string, aliases []string) (benchWriter, error) {
	opts := a.cfg.WriterOptions()
	switch flavor {
	case "row":
		var refs []batch.ColumnRef
		for _, alias := range aliases {
			for _, s := range benchSchemas() {
				refs = append(refs, batch.ColumnRef{Table: alias, Column: s.Name})
			}
		}
		w, err := batch.NewRowWriter(ctx, exec, refs, opts...)
		if err != nil {
			return nil, err
		}
		return &benchRowWriter{RowWriter: w, tables: len(aliases)}, nil
	case "columnar":
		tables := make([]batch.TableColumns, len(aliases))
		for i, alias := range aliases {
			tables[i] = batch.TableColumns{Table: alias}
		}
		w, err := batch.NewColumnarWriter(ctx, exec, tables, opts...)
		if err != nil {
			return nil, err
		}
		return &benchColumnarWriter{ColumnarWriter: w, aliases: aliases}, nil
	default:
		return nil, fmt.Errorf("unknown writer %q", flavor)
	}
}

var benchEpoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func benchRow(i int) (time.Time, float64, int64, string) {
	return benchEpoch.Add(time.Duration(i) * time.Millisecond),
		100 + float64(i%1000)/100,
		int64(i % 500),
		benchSymbols[i%len(benchSymbols)]
}

type benchRowWriter struct {
	*batch.RowWriter
	tables int
}

func (w *benchRowWriter) fill(offset, n int) error {
	for i := offset; i < offset+n; i++ {
		ts, price, volume, side := benchRow(i)
		w.StartRow(ts)
		for t := 0; t < w.tables; t++ {
			base := t * 3
			if err := w.SetDouble(base, price); err != nil {
				return err
			}
			if err := w.SetInt64(base+1, volume); err != nil {
				return err
			}
			if err := w.SetSymbol(base+2, side); err != nil {
				return err
			}
		}
	}
	return nil
}

type benchColumnarWriter struct {
	*batch.ColumnarWriter
	aliases []string
}

func (w *benchColumnarWriter) fill(offset, n int) error {
	ts := make([]time.Time, n)
	prices := make([]float64, n)
	volumes := make([]int64, n)
	sides := make([]string, n)
	for i := range ts {
		ts[i], prices[i], volumes[i], sides[i] = benchRow(offset + i)
	}
	for _, alias := range w.aliases {
		if err := w.SetTimestamps(alias, ts); err != nil {
			return err
		}
		if err := w.SetDoubleColumn(alias, "price", prices, nil); err != nil {
			return err
		}
		if err := w.SetInt64Column(alias, "volume", volumes, nil); err != nil {
			return err
		}
		if err := w.SetSymbolColumn(alias, "side", sides, nil); err != nil {
			return err
		}
	}
	return nil
}
