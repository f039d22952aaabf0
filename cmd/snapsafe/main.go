// cmd/snapsafe/main.go
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"snapsafe/internal/checkpoint"
	"snapsafe/internal/config"
	"snapsafe/internal/history"
	"snapsafe/internal/workspace"
)

var (
	rootFlag    string
	verboseFlag bool
)

var rootCmd = &cobra.Command{
	Use:   "snapsafe",
	Short: "Checkpoint, assess, and transactionally execute file operations",
	Long: `snapsafe keeps content-addressed snapshots of workspace files and runs
multi-step plans transactionally: every plan is risk-assessed, gated on
approval, checkpointed before execution, and rolled back on failure.

State lives under <root>/.snapsafe: compressed snapshots per checkpoint,
a JSON index, the execution history database, and logs.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&rootFlag, "root", "r", ".", "Workspace root directory")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Also log to stderr")
}

// app bundles everything a subcommand needs.
type app struct {
	cfg       *config.Config
	store     *checkpoint.Store
	inspector *workspace.Inspector
	logger    *slog.Logger
}

// newApp loads the workspace config and opens the checkpoint store.
func newApp() (*app, error) {
	cfg, err := config.Load(rootFlag)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger := newLogger(cfg)

	store, err := checkpoint.New(cfg.Root,
		checkpoint.WithMaxCheckpoints(cfg.Checkpoints.MaxCheckpoints),
		checkpoint.WithConcurrency(cfg.Checkpoints.Concurrency),
		checkpoint.WithCapacityLimit(cfg.Checkpoints.MaxBytes),
		checkpoint.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint store: %w", err)
	}

	return &app{
		cfg:       cfg,
		store:     store,
		inspector: workspace.New(cfg.Root, logger),
		logger:    logger,
	}, nil
}

// openHistory opens the execution history database on demand.
func (a *app) openHistory() (*history.Store, error) {
	return history.Open(a.cfg.HistoryPath)
}

// newLogger writes structured logs to a rotating file under
// <root>/.snapsafe/logs, and to stderr as well with --verbose.
func newLogger(cfg *config.Config) *slog.Logger {
	sink := &lumberjack.Logger{
		Filename:   cfg.LogPath(),
		MaxSize:    cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAge:     cfg.Logging.MaxAgeDays,
	}

	var out io.Writer = sink
	if verboseFlag {
		out = io.MultiWriter(sink, os.Stderr)
	}

	level := slog.LevelInfo
	switch cfg.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	return slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))
}
