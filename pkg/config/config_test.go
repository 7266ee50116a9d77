package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bureau14/qdbbatch/pkg/compression"
	"github.com/bureau14/qdbbatch/pkg/engine"
	"github.com/bureau14/qdbbatch/pkg/qdberrors"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	mode, err := cfg.Writer.PushMode()
	require.NoError(t, err)
	assert.Equal(t, engine.Transactional, mode)
	assert.Len(t, cfg.EngineOptions(nil), 3)
	assert.Len(t, cfg.ExecutorOptions(nil), 1)
	assert.Len(t, cfg.WriterOptions(), 1)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"log level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"capacity", func(c *Config) { c.Writer.Capacity = -1 }, "writer.capacity"},
		{"writer compression", func(c *Config) { c.Writer.Compression.Algorithm = "brotli" }, "writer.compression.algorithm"},
		{"mode", func(c *Config) { c.Writer.Mode = "eventual" }, "writer.mode"},
		{"reader compression", func(c *Config) { c.Reader.Compression = "rar" }, "reader.compression"},
		{"shard", func(c *Config) { c.Engine.ShardDuration = 0 }, "engine.shard_duration"},
		{"flush", func(c *Config) { c.Engine.FlushInterval = -time.Second }, "engine.flush_interval"},
		{"queue", func(c *Config) { c.Engine.QueueDepth = 0 }, "engine.queue_depth"},
		{"metrics", func(c *Config) { c.Metrics.Enabled = true; c.Metrics.Listen = "" }, "metrics.listen"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, qdberrors.IsType(err, qdberrors.ErrorTypeConfig))

			var qe *qdberrors.Error
			require.ErrorAs(t, err, &qe)
			field, ok := qe.Detail("field")
			require.True(t, ok)
			assert.Equal(t, tt.field, field)
		})
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "qdbbatch.yaml")

	cfg := Default()
	cfg.Writer.Capacity = 64
	cfg.Writer.Compression = compression.Config{Algorithm: compression.Zstd, Level: compression.Best}
	cfg.Writer.Mode = "fast"
	cfg.Writer.DropDuplicates = true
	cfg.Engine.FlushInterval = 250 * time.Millisecond
	cfg.Metrics.Enabled = true
	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
	assert.Len(t, loaded.WriterOptions(), 2)
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.yaml")
	require.NoError(t, os.WriteFile(path, []byte("writer:\n  mode: async\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "async", cfg.Writer.Mode)
	assert.Equal(t, Default().Writer.Capacity, cfg.Writer.Capacity)
	assert.Equal(t, Default().Engine, cfg.Engine)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("QDBBATCH_WRITER_MODE", "truncate")
	t.Setenv("QDBBATCH_ENGINE_FLUSH_INTERVAL", "100ms")
	t.Setenv("QDBBATCH_WRITER_COMPRESSION_ALGORITHM", "s2")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "truncate", cfg.Writer.Mode)
	assert.Equal(t, 100*time.Millisecond, cfg.Engine.FlushInterval)
	assert.Equal(t, compression.S2, cfg.Writer.Compression.Algorithm)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, qdberrors.IsType(err, qdberrors.ErrorTypeConfig))

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("engine:\n  queue_depth: 0\n"), 0o600))
	_, err = Load(path)
	assert.True(t, qdberrors.IsType(err, qdberrors.ErrorTypeConfig))
}
