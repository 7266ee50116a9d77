package main

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	gojson "github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bureau14/qdbbatch/pkg/batch"
	"github.com/bureau14/qdbbatch/pkg/column"
	"github.com/bureau14/qdbbatch/pkg/engine"
	"github.com/bureau14/qdbbatch/pkg/qdberrors"
	"github.com/bureau14/qdbbatch/pkg/reader"
)

type loadOptions struct {
	csvPath string
	table   string
	mode    string
	dump    bool
}

func newLoadCommand(a *app) *cobra.Command {
	o := &loadOptions{}
	cmd := &cobra.Command{
		Use:   "load",
		Short: "Load a CSV file into a table and dump it back as JSON lines",
		Long: `Load a CSV file with a columnar writer, then bulk read the table and
print one JSON object per row.

The header names the timestamp column first and every other column as
name:type, with type one of double, int64, blob, string, symbol, timestamp.
Timestamps are RFC 3339. An empty cell is null.

Example:
  timestamp,price:double,side:symbol
  2024-01-01T00:00:00Z,10.5,bid`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.load(cmd, o)
		},
	}
	cmd.Flags().StringVar(&o.csvPath, "csv", "", "Path to the CSV file (required)")
	cmd.Flags().StringVar(&o.table, "table", "", "Table alias to create (required)")
	cmd.Flags().StringVar(&o.mode, "mode", "", "Push mode; defaults to writer.mode")
	cmd.Flags().BoolVar(&o.dump, "dump", true, "Print the loaded rows as JSON lines")
	_ = cmd.MarkFlagRequired("csv")
	_ = cmd.MarkFlagRequired("table")
	return cmd
}

func (a *app) load(cmd *cobra.Command, o *loadOptions) error {
	mode, err := a.mode(o.mode)
	if err != nil {
		return err
	}
	f, err := os.Open(o.csvPath)
	if err != nil {
		return fmt.Errorf("failed to open csv: %w", err)
	}
	defer f.Close()

	data, err := parseCSV(f, o.table)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	eng, exec, err := a.open()
	if err != nil {
		return err
	}
	defer eng.Close()

	if err := exec.CreateTable(ctx, o.table, a.cfg.Engine.ShardDuration, data.schemas); err != nil {
		return err
	}
	w, err := batch.NewColumnarWriter(ctx, exec, []batch.TableColumns{{Table: o.table}}, a.cfg.WriterOptions()...)
	if err != nil {
		return err
	}
	if err := data.fill(w, o.table); err != nil {
		return err
	}
	res, err := push(ctx, w, mode)
	if err != nil {
		return err
	}
	a.log.Info("loaded csv",
		zap.String("path", o.csvPath),
		zap.String("table", o.table),
		zap.Int("rows", res.Rows),
		zap.Int("bytes", res.Bytes))

	if mode == engine.Async {
		err := a.poll(ctx, func() (bool, error) {
			n, err := readAll(ctx, eng, []string{o.table})
			return n >= len(data.timestamps), err
		})
		if err != nil {
			return err
		}
	}
	if !o.dump {
		return nil
	}
	return dump(ctx, eng, o.table, cmd.OutOrStdout())
}

// csvData holds a parsed CSV file column by column.
type csvData struct {
	schemas    []column.Schema
	timestamps []time.Time
	cells      [][]string
	valid      [][]bool
}

func parseCSV(r io.Reader, table string) (*csvData, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}
	if len(header) < 2 {
		return nil, qdberrors.New(qdberrors.ErrorTypeInvalidArgument, "csv needs a timestamp and at least one column")
	}

	d := &csvData{}
	for _, h := range header[1:] {
		name, typ, ok := strings.Cut(h, ":")
		if !ok {
			return nil, qdberrors.Newf(qdberrors.ErrorTypeInvalidArgument, "header %q is not name:type", h)
		}
		t, err := column.ParseType(typ)
		if err != nil {
			return nil, err
		}
		s := column.Schema{Name: name, Type: t}
		if t == column.TypeSymbol {
			s.Symtable = table + "_" + name
		}
		d.schemas = append(d.schemas, s)
	}
	d.cells = make([][]string, len(d.schemas))
	d.valid = make([][]bool, len(d.schemas))

	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv: %w", err)
		}
		ts, err := time.Parse(time.RFC3339Nano, rec[0])
		if err != nil {
			return nil, qdberrors.Wrap(err, qdberrors.ErrorTypeInvalidArgument, "bad timestamp").
				WithDetail("line", line)
		}
		d.timestamps = append(d.timestamps, ts)
		for i, cell := range rec[1:] {
			d.cells[i] = append(d.cells[i], cell)
			d.valid[i] = append(d.valid[i], cell != "")
		}
	}
	return d, nil
}

// fill converts every column to its type and sets it on w.
func (d *csvData) fill(w *batch.ColumnarWriter, table string) error {
	if err := w.SetTimestamps(table, d.timestamps); err != nil {
		return err
	}
	for i, s := range d.schemas {
		if err := d.fillColumn(w, table, i, s); err != nil {
			return err
		}
	}
	return nil
}

func (d *csvData) fillColumn(w *batch.ColumnarWriter, table string, i int, s column.Schema) error {
	cells, valid := d.cells[i], d.valid[i]
	bad := func(row int, err error) error {
		return qdberrors.Wrap(err, qdberrors.ErrorTypeInvalidArgument, "bad cell").
			WithDetail("column", s.Name).
			WithDetail("line", row+2)
	}

	switch s.Type {
	case column.TypeDouble:
		values := make([]float64, len(cells))
		for j, c := range cells {
			if !valid[j] {
				continue
			}
			v, err := strconv.ParseFloat(c, 64)
			if err != nil {
				return bad(j, err)
			}
			values[j] = v
		}
		return w.SetDoubleColumn(table, s.Name, values, valid)
	case column.TypeInt64:
		values := make([]int64, len(cells))
		for j, c := range cells {
			if !valid[j] {
				continue
			}
			v, err := strconv.ParseInt(c, 10, 64)
			if err != nil {
				return bad(j, err)
			}
			values[j] = v
		}
		return w.SetInt64Column(table, s.Name, values, valid)
	case column.TypeTimestamp:
		values := make([]time.Time, len(cells))
		for j, c := range cells {
			if !valid[j] {
				continue
			}
			v, err := time.Parse(time.RFC3339Nano, c)
			if err != nil {
				return bad(j, err)
			}
			values[j] = v
		}
		return w.SetTimestampColumn(table, s.Name, values, valid)
	case column.TypeBlob:
		values := make([][]byte, len(cells))
		for j, c := range cells {
			if valid[j] {
				values[j] = []byte(c)
			}
		}
		return w.SetBlobColumn(table, s.Name, values)
	case column.TypeString:
		return w.SetStringColumn(table, s.Name, cells, valid)
	case column.TypeSymbol:
		return w.SetSymbolColumn(table, s.Name, cells, valid)
	default:
		return qdberrors.Newf(qdberrors.ErrorTypeTypeMismatch, "cannot load %s column", s.Type)
	}
}

// dump writes every row of table as one JSON object per line.
func dump(ctx context.Context, eng engine.Engine, table string, out io.Writer) error {
	r, err := reader.Open(ctx, eng, nil, []reader.TableRange{reader.Table(table)})
	if err != nil {
		return err
	}
	defer r.Close()

	names := column.Names(r.Columns())
	enc := gojson.NewEncoder(out)
	enc.SetEscapeHTML(false)
	for r.Next() {
		row := r.Row()
		ts, err := row.Timestamp()
		if err != nil {
			return err
		}
		values, err := row.Values()
		if err != nil {
			return err
		}
		obj := make(map[string]interface{}, len(values)+1)
		obj[column.TimestampColumnName] = ts.UTC().Format(time.RFC3339Nano)
		for i, v := range values {
			x := v.Interface()
			if b, ok := x.([]byte); ok {
				x = string(b)
			}
			obj[names[i]] = x
		}
		if err := enc.Encode(obj); err != nil {
			return err
		}
	}
	return r.Err()
}
