// Package main provides the citegraph CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/matsen/citegraph/internal/config"
	"github.com/matsen/citegraph/internal/logging"
)

// Version is set at build time via ldflags
var Version = "dev"

// Global flags
var (
	humanOutput bool
	configPath  string
	logLevel    string
	logFormat   string
)

// Effective settings, built in PersistentPreRunE.
var (
	cfg    *config.Config
	logger *zap.Logger
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	interrupted := ctx.Err() != nil
	stop()

	if logger != nil {
		_ = logger.Sync()
	}
	if err != nil {
		code := exitCode(err)
		if interrupted {
			code = ExitInterrupted
		}
		reportError(err)
		os.Exit(code)
	}
}

var rootCmd = &cobra.Command{
	Use:   "citegraph",
	Short: "Load a bibliographic JSON corpus into a property graph",
	Long: `citegraph streams a corpus of article records (one JSON array) into a
property graph of Article and Author nodes joined by AUTHORED and CITES
relationships.

The corpus may be a local file, stdin, or an http(s) URL, optionally gzip or
zstd compressed. Records are loaded in bounded batches with idempotent
upserts, so a failed run can simply be restarted.

All commands output JSON by default; use --human for text.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&humanOutput, "human", false, "Use human-readable output instead of JSON")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file (default ~/.config/citegraph/config.yml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format: json or console")
	rootCmd.Version = Version
}

// setup loads configuration and builds the logger before any command runs.
func setup(cmd *cobra.Command, args []string) error {
	loaded, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if logLevel != "" {
		loaded.Log.Level = logLevel
	}
	if logFormat != "" {
		loaded.Log.Format = logFormat
	}

	log, err := logging.New(loaded.Log.Level, loaded.Log.Format)
	if err != nil {
		return fmt.Errorf("%w: %v", config.ErrInvalid, err)
	}
	cfg = loaded
	logger = log.With(zap.String("command", cmd.Name()))
	return nil
}
