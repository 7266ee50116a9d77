package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bureau14/qdbbatch/pkg/batch"
	"github.com/bureau14/qdbbatch/pkg/config"
	"github.com/bureau14/qdbbatch/pkg/engine"
	"github.com/bureau14/qdbbatch/pkg/engine/memengine"
	"github.com/bureau14/qdbbatch/pkg/logger"
)

var version = "0.1.0"

// app carries state shared by subcommands once the configuration is loaded.
type app struct {
	configPath string
	logLevel   string

	cfg *config.Config
	log *zap.Logger
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "qdbbatch",
		Short: "Columnar batch writes and bulk reads for time series tables",
		Long: `qdbbatch drives the batch writers and the bulk reader against the
in-memory reference engine. Settings come from an optional YAML file,
QDBBATCH_* environment variables (a .env file is honored) and flags.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init()
		},
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "Path to a YAML configuration file")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level (debug, info, warn, error); overrides logging.level")

	root.AddCommand(
		&cobra.Command{
			Use:   "version",
			Short: "Show version information",
			Run: func(cmd *cobra.Command, _ []string) {
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "qdbbatch v%s\n", version)
				fmt.Fprintf(out, "Go version: %s\n", runtime.Version())
				fmt.Fprintf(out, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
			},
		},
		newBenchCommand(a),
		newLoadCommand(a),
	)
	return root
}

func (a *app) init() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	if err := logger.Init(cfg.Logging); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	a.cfg = cfg
	a.log = logger.Named("cli")
	return nil
}

// mode resolves a --mode flag, falling back to writer.mode.
func (a *app) mode(flag string) (engine.Mode, error) {
	if flag == "" {
		return a.cfg.Writer.PushMode()
	}
	m, ok := engine.ParseMode(flag)
	if !ok {
		return 0, fmt.Errorf("unknown push mode %q", flag)
	}
	return m, nil
}

// open starts a reference engine and an executor bound to it.
func (a *app) open() (*memengine.Engine, *batch.Executor, error) {
	eng, err := memengine.New(a.cfg.EngineOptions(a.log)...)
	if err != nil {
		return nil, nil, err
	}
	exec, err := batch.NewExecutor(eng, a.cfg.ExecutorOptions(a.log)...)
	if err != nil {
		_ = eng.Close()
		return nil, nil, err
	}
	return eng, exec, nil
}

// serveMetrics exposes the default Prometheus registry while the command
// runs. The returned function stops the server.
func (a *app) serveMetrics() func() {
	if !a.cfg.Metrics.Enabled {
		return func() {}
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              a.cfg.Metrics.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("metrics server failed", zap.Error(err))
		}
	}()
	a.log.Info("serving metrics", zap.String("listen", a.cfg.Metrics.Listen))
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

// pusher is satisfied by both batch writers.
type pusher interface {
	Push(ctx context.Context) (batch.PushResult, error)
	PushFast(ctx context.Context) (batch.PushResult, error)
	PushAsync(ctx context.Context) (batch.PushResult, error)
	PushTruncate(ctx context.Context, ranges ...engine.Range) (batch.PushResult, error)
}

func push(ctx context.Context, w pusher, mode engine.Mode) (batch.PushResult, error) {
	switch mode {
	case engine.Fast:
		return w.PushFast(ctx)
	case engine.Async:
		return w.PushAsync(ctx)
	case engine.Truncate:
		return w.PushTruncate(ctx)
	default:
		return w.Push(ctx)
	}
}
