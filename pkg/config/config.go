package config

import (
	"bytes"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/bureau14/qdbbatch/pkg/batch"
	"github.com/bureau14/qdbbatch/pkg/compression"
	"github.com/bureau14/qdbbatch/pkg/engine"
	"github.com/bureau14/qdbbatch/pkg/engine/memengine"
	"github.com/bureau14/qdbbatch/pkg/logger"
	"github.com/bureau14/qdbbatch/pkg/qdberrors"
)

// EnvPrefix prefixes environment overrides, e.g. QDBBATCH_WRITER_MODE.
const EnvPrefix = "QDBBATCH"

// Config is the client and reference engine configuration.
type Config struct {
	Logging logger.Config `yaml:"logging" mapstructure:"logging"`
	Writer  WriterConfig  `yaml:"writer" mapstructure:"writer"`
	Reader  ReaderConfig  `yaml:"reader" mapstructure:"reader"`
	Engine  EngineConfig  `yaml:"engine" mapstructure:"engine"`
	Metrics MetricsConfig `yaml:"metrics" mapstructure:"metrics"`
}

// WriterConfig configures row and columnar writers.
type WriterConfig struct {
	// Capacity is the initial row capacity of each table buffer
	Capacity    int                `yaml:"capacity" mapstructure:"capacity"`
	Compression compression.Config `yaml:"compression" mapstructure:"compression"`
	// Mode is the push mode used when the caller does not pick one
	Mode           string `yaml:"mode" mapstructure:"mode"`
	DropDuplicates bool   `yaml:"drop_duplicates" mapstructure:"drop_duplicates"`
}

// ReaderConfig configures bulk reads.
type ReaderConfig struct {
	// Compression is the algorithm of result frames built by the engine
	Compression compression.Algorithm `yaml:"compression" mapstructure:"compression"`
}

// EngineConfig only applies to the in-memory reference engine.
type EngineConfig struct {
	ShardDuration time.Duration `yaml:"shard_duration" mapstructure:"shard_duration"`
	FlushInterval time.Duration `yaml:"flush_interval" mapstructure:"flush_interval"`
	QueueDepth    int           `yaml:"queue_depth" mapstructure:"queue_depth"`
}

// MetricsConfig controls the Prometheus endpoint of the CLI.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Listen  string `yaml:"listen" mapstructure:"listen"`
}

// Default returns a configuration that passes Validate.
func Default() *Config {
	return &Config{
		Logging: logger.Config{
			Level:       "info",
			Encoding:    "json",
			OutputPaths: []string{"stderr"},
		},
		Writer: WriterConfig{
			Capacity:    batch.DefaultCapacity,
			Compression: *compression.DefaultConfig(),
			Mode:        engine.Transactional.String(),
		},
		Reader: ReaderConfig{
			Compression: compression.None,
		},
		Engine: EngineConfig{
			ShardDuration: time.Hour,
			FlushInterval: memengine.DefaultFlushInterval,
			QueueDepth:    1024,
		},
		Metrics: MetricsConfig{
			Listen: ":9090",
		},
	}
}

// Validate checks every section and returns the first violation.
func (c *Config) Validate() error {
	if _, err := zap.ParseAtomicLevel(c.Logging.Level); err != nil {
		return invalid("logging.level", "unknown log level %q", c.Logging.Level)
	}
	if c.Writer.Capacity < 0 {
		return invalid("writer.capacity", "capacity cannot be negative")
	}
	if _, err := compression.ParseAlgorithm(string(c.Writer.Compression.Algorithm)); err != nil {
		return invalid("writer.compression.algorithm", "unknown algorithm %q", c.Writer.Compression.Algorithm)
	}
	if _, err := c.Writer.PushMode(); err != nil {
		return err
	}
	if _, err := compression.ParseAlgorithm(string(c.Reader.Compression)); err != nil {
		return invalid("reader.compression", "unknown algorithm %q", c.Reader.Compression)
	}
	if c.Engine.ShardDuration <= 0 {
		return invalid("engine.shard_duration", "shard duration must be positive")
	}
	if c.Engine.FlushInterval <= 0 {
		return invalid("engine.flush_interval", "flush interval must be positive")
	}
	if c.Engine.QueueDepth <= 0 {
		return invalid("engine.queue_depth", "queue depth must be positive")
	}
	if c.Metrics.Enabled && c.Metrics.Listen == "" {
		return invalid("metrics.listen", "listen address is required when metrics are enabled")
	}
	return nil
}

func invalid(field, format string, args ...interface{}) error {
	return qdberrors.Newf(qdberrors.ErrorTypeConfig, format, args...).WithDetail("field", field)
}

// PushMode parses Mode.
func (w WriterConfig) PushMode() (engine.Mode, error) {
	m, ok := engine.ParseMode(w.Mode)
	if !ok {
		return 0, invalid("writer.mode", "unknown push mode %q", w.Mode)
	}
	return m, nil
}

// ExecutorOptions returns the executor options this configuration implies.
func (c *Config) ExecutorOptions(log *zap.Logger) []batch.ExecutorOption {
	opts := []batch.ExecutorOption{batch.WithCompression(c.Writer.Compression)}
	if log != nil {
		opts = append(opts, batch.WithLogger(log.Named("batch")))
	}
	return opts
}

// WriterOptions returns the writer options this configuration implies.
func (c *Config) WriterOptions() []batch.WriterOption {
	var opts []batch.WriterOption
	if c.Writer.Capacity > 0 {
		opts = append(opts, batch.WithCapacity(c.Writer.Capacity))
	}
	if c.Writer.DropDuplicates {
		opts = append(opts, batch.WithDropDuplicates())
	}
	return opts
}

// EngineOptions returns the reference engine options this configuration implies.
func (c *Config) EngineOptions(log *zap.Logger) []memengine.Option {
	opts := []memengine.Option{
		memengine.WithFlushInterval(c.Engine.FlushInterval),
		memengine.WithQueueDepth(c.Engine.QueueDepth),
		memengine.WithCompression(c.Reader.Compression),
	}
	if log != nil {
		opts = append(opts, memengine.WithLogger(log.Named("engine")))
	}
	return opts
}

// Load reads the YAML file at path on top of Default and applies
// QDBBATCH_ environment overrides. An empty path loads defaults and
// environment only. The result is validated.
func Load(path string) (*Config, error) {
	defaults, err := yaml.Marshal(Default())
	if err != nil {
		return nil, qdberrors.Wrap(err, qdberrors.ErrorTypeConfig, "failed to marshal defaults")
	}

	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return nil, qdberrors.Wrap(err, qdberrors.ErrorTypeConfig, "failed to read defaults")
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return nil, qdberrors.Wrap(err, qdberrors.ErrorTypeConfig, "failed to read config file").
				WithDetail("path", path)
		}
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, qdberrors.Wrap(err, qdberrors.ErrorTypeConfig, "failed to decode config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg to path as YAML.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return qdberrors.Wrap(err, qdberrors.ErrorTypeConfig, "failed to marshal config")
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return qdberrors.Wrap(err, qdberrors.ErrorTypeConfig, "failed to write config file").
			WithDetail("path", path)
	}
	return nil
}
