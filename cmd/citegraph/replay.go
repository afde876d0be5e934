package main

import (
	"github.com/spf13/cobra"

	"github.com/matsen/citegraph/internal/config"
	"github.com/matsen/citegraph/internal/pipeline"
)

var replayReset bool

func init() {
	replayCmd.Flags().BoolVar(&replayReset, "reset", false, "Delete every node and relationship before loading")
	rootCmd.AddCommand(replayCmd)
}

var replayCmd = &cobra.Command{
	Use:   "replay <staging-file>",
	Short: "Load batches from a staging file",
	Long: `Load batches written by 'citegraph ingest --staging jsonl' into the
configured store, in the order they were staged.`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func runReplay(cmd *cobra.Command, args []string) error {
	if cmd.Flags().Changed("reset") {
		cfg.Ingest.Reset = replayReset
	}
	// Batches come from the file, not from staging settings.
	cfg.Ingest.Staging = config.StagingDirect
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx := cmd.Context()
	run := newRun(ctx)
	s, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore(s, run.Log)

	summary, err := pipeline.Replay(ctx, run, args[0], pipelineOptions(cfg, s))
	if err != nil {
		return err
	}
	return printSummary(summary)
}
