package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/matsen/citegraph/internal/pipeline"
	"github.com/matsen/citegraph/internal/store"
)

var statsTimeout time.Duration

func init() {
	statsCmd.Flags().DurationVar(&statsTimeout, "timeout", 30*time.Second, "Give up if the store does not answer in time")
	rootCmd.AddCommand(statsCmd)
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show node and relationship counts of the configured store",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

// StatsResult is the response for the stats command.
type StatsResult struct {
	Backend         string       `json:"backend"`
	Counts          store.Counts `json:"counts"`
	LastRunID       string       `json:"last_run_id,omitempty"`
	LastRunFinished string       `json:"last_run_finished,omitempty"`
}

func runStats(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	s, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore(s, logger)

	ctx, cancel := context.WithTimeout(cmd.Context(), statsTimeout)
	defer cancel()
	if err := s.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("%w: %w", pipeline.ErrStore, err)
	}
	counts, err := s.Counts(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", pipeline.ErrStore, err)
	}

	result := StatsResult{Backend: cfg.Store.Backend, Counts: counts}
	if meta, ok := s.(store.MetaStore); ok {
		if result.LastRunID, err = meta.GetMeta(ctx, store.MetaLastRunID); err != nil {
			return fmt.Errorf("%w: %w", pipeline.ErrStore, err)
		}
		if result.LastRunFinished, err = meta.GetMeta(ctx, store.MetaLastRunFinished); err != nil {
			return fmt.Errorf("%w: %w", pipeline.ErrStore, err)
		}
	}
	return output(result, func() {
		outputHuman("Store: %s\n", result.Backend)
		if result.LastRunID != "" {
			outputHuman("Last run: %s (finished %s)\n", result.LastRunID, result.LastRunFinished)
		}
		printCounts(counts)
	})
}
