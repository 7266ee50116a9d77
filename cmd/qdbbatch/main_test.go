package main

import (
	"bufio"
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	gojson "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bureau14/qdbbatch/pkg/column"
	"github.com/bureau14/qdbbatch/pkg/qdberrors"
)

const sample = `timestamp,price:double,qty:int64,side:symbol,note:string
2024-01-01T00:00:00Z,10.5,3,bid,first
2024-01-01T00:00:01Z,,4,ask,
2024-01-01T00:00:02Z,11,,bid,third
`

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("QDBBATCH_ENGINE_FLUSH_INTERVAL", "20ms")
	t.Setenv("QDBBATCH_LOGGING_LEVEL", "error")

	var out bytes.Buffer
	root := newRootCommand()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestParseCSV(t *testing.T) {
	d, err := parseCSV(strings.NewReader(sample), "trades")
	require.NoError(t, err)

	assert.Equal(t, []column.Schema{
		{Name: "price", Type: column.TypeDouble},
		{Name: "qty", Type: column.TypeInt64},
		{Name: "side", Type: column.TypeSymbol, Symtable: "trades_side"},
		{Name: "note", Type: column.TypeString},
	}, d.schemas)
	assert.Len(t, d.timestamps, 3)
	assert.Equal(t, []bool{true, false, true}, d.valid[0])
	assert.Equal(t, []bool{true, true, false}, d.valid[1])
	assert.Equal(t, []string{"first", "", "third"}, d.cells[3])
}

func TestParseCSVErrors(t *testing.T) {
	tests := map[string]string{
		"single column": "timestamp\n",
		"no type":       "timestamp,price\n",
		"bad type":      "timestamp,price:decimal\n",
		"bad timestamp": "timestamp,price:double\nyesterday,1\n",
	}
	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := parseCSV(strings.NewReader(in), "t")
			assert.True(t, qdberrors.IsType(err, qdberrors.ErrorTypeInvalidArgument), "got %v", err)
		})
	}
}

func TestLoadCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trades.csv")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))

	for _, mode := range []string{"transactional", "fast", "async", "truncate"} {
		t.Run(mode, func(t *testing.T) {
			out, err := run(t, "load", "--csv", path, "--table", "trades", "--mode", mode)
			require.NoError(t, err)

			var rows []map[string]interface{}
			sc := bufio.NewScanner(strings.NewReader(out))
			for sc.Scan() {
				var row map[string]interface{}
				require.NoError(t, gojson.Unmarshal(sc.Bytes(), &row))
				rows = append(rows, row)
			}
			require.Len(t, rows, 3)
			assert.Equal(t, "2024-01-01T00:00:00Z", rows[0][column.TimestampColumnName])
			assert.Equal(t, 10.5, rows[0]["price"])
			assert.Equal(t, "bid", rows[0]["side"])
			assert.Nil(t, rows[1]["price"])
			assert.Nil(t, rows[1]["note"])
			assert.Nil(t, rows[2]["qty"])
		})
	}
}

func TestLoadCommandBadCell(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.csv")
	require.NoError(t, os.WriteFile(path, []byte("timestamp,qty:int64\n2024-01-01T00:00:00Z,many\n"), 0o600))

	_, err := run(t, "load", "--csv", path, "--table", "bad")
	require.Error(t, err)
	var qe *qdberrors.Error
	require.ErrorAs(t, err, &qe)
	line, _ := qe.Detail("line")
	assert.Equal(t, 2, line)
}

func TestBenchCommand(t *testing.T) {
	for _, writer := range []string{"row", "columnar"} {
		for _, mode := range []string{"transactional", "async"} {
			t.Run(writer+"/"+mode, func(t *testing.T) {
				out, err := run(t, "bench", "--rows", "50", "--batch-size", "20", "--tables", "2",
					"--writer", writer, "--mode", mode, "--compression", "zstd")
				require.NoError(t, err)
				assert.Contains(t, out, "push: 100 rows")
				assert.Contains(t, out, "read: 100 rows")
				assert.Contains(t, out, "compression=zstd")
			})
		}
	}
}

func TestBenchCompressionLevel(t *testing.T) {
	out, err := run(t, "bench", "--rows", "10", "--batch-size", "10",
		"--compression", "lz4", "--compression-level", "best")
	require.NoError(t, err)
	assert.Contains(t, out, "compression=lz4 level=best")
}

func TestBenchCommandRejectsBadFlags(t *testing.T) {
	_, err := run(t, "bench", "--writer", "pivot", "--rows", "1")
	assert.Error(t, err)
	_, err = run(t, "bench", "--mode", "eventual")
	assert.Error(t, err)
	_, err = run(t, "bench", "--rows", "0")
	assert.Error(t, err)
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "qdbbatch v"+version)
}
