package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/matsen/citegraph/internal/config"
	"github.com/matsen/citegraph/internal/pipeline"
	"github.com/matsen/citegraph/internal/store"
)

var ingestFlags struct {
	input         string
	maxNodes      int
	mode          string
	staging       string
	stagingFile   string
	backend       string
	neo4jURI      string
	sqlitePath    string
	reset         bool
	limit         int
	metricsAddr   string
	shellLiterals bool
}

func init() {
	f := ingestCmd.Flags()
	f.StringVar(&ingestFlags.input, "input", "", "Corpus location: path, '-' for stdin, or http(s) URL")
	f.IntVar(&ingestFlags.maxNodes, "max-nodes", 0, "Records per batch")
	f.StringVar(&ingestFlags.mode, "mode", "", "Pass mode: single or two-pass")
	f.StringVar(&ingestFlags.staging, "staging", "", "Staging strategy: direct or jsonl")
	f.StringVar(&ingestFlags.stagingFile, "staging-file", "", "Staging file for jsonl staging (.zst to compress)")
	f.StringVar(&ingestFlags.backend, "store", "", "Store backend: neo4j, sqlite or memory")
	f.StringVar(&ingestFlags.neo4jURI, "neo4j-uri", "", "Neo4j URI")
	f.StringVar(&ingestFlags.sqlitePath, "sqlite-path", "", "SQLite database path")
	f.BoolVar(&ingestFlags.reset, "reset", false, "Delete every node and relationship before loading")
	f.IntVar(&ingestFlags.limit, "limit", 0, "Stop after this many records (0 = all)")
	f.StringVar(&ingestFlags.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	f.BoolVar(&ingestFlags.shellLiterals, "shell-literals", false, "Rewrite NumberInt(..)/NumberLong(..) wrappers")
	rootCmd.AddCommand(ingestCmd)
}

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Stream a corpus into the graph",
	Long: `Stream a corpus into the graph.

Usage:
  citegraph ingest --input dblp.json.gz
  citegraph ingest --input https://example.org/dblp.json --mode two-pass
  citegraph ingest --input - --store sqlite --sqlite-path graph.db < dblp.json
  citegraph ingest --input dblp.json --staging jsonl --staging-file batches.jsonl.zst

The input may also be given with JSON_FILE or JSON_URL, and the batch size
with MAX_NODES.`,
	Args: cobra.NoArgs,
	RunE: runIngest,
}

// applyIngestFlags overlays explicitly set flags onto c.
func applyIngestFlags(cmd *cobra.Command, c *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("input") {
		c.Input.Location = ingestFlags.input
	}
	if flags.Changed("max-nodes") {
		c.Ingest.MaxNodes = ingestFlags.maxNodes
	}
	if flags.Changed("mode") {
		c.Ingest.Mode = ingestFlags.mode
	}
	if flags.Changed("staging") {
		c.Ingest.Staging = ingestFlags.staging
	}
	if flags.Changed("staging-file") {
		c.Ingest.StagingFile = ingestFlags.stagingFile
	}
	if flags.Changed("store") {
		c.Store.Backend = ingestFlags.backend
	}
	if flags.Changed("neo4j-uri") {
		c.Store.Neo4j.URI = ingestFlags.neo4jURI
	}
	if flags.Changed("sqlite-path") {
		c.Store.SQLitePath = ingestFlags.sqlitePath
	}
	if flags.Changed("reset") {
		c.Ingest.Reset = ingestFlags.reset
	}
	if flags.Changed("limit") {
		c.Ingest.Limit = ingestFlags.limit
	}
	if flags.Changed("metrics-addr") {
		c.Metrics.Addr = ingestFlags.metricsAddr
	}
	if flags.Changed("shell-literals") {
		c.Input.ShellLiterals = ingestFlags.shellLiterals
	}
}

func runIngest(cmd *cobra.Command, args []string) error {
	applyIngestFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := cfg.ValidateInput(); err != nil {
		return err
	}

	ctx := cmd.Context()
	run := newRun(ctx)
	run.Log.Info("configuration",
		zap.String("input", cfg.Input.Location),
		zap.Int("max_nodes", cfg.Ingest.MaxNodes),
		zap.String("store", cfg.Store.Backend))

	var s store.Store
	if cfg.Ingest.Staging == config.StagingDirect {
		var err error
		if s, err = openStore(cfg); err != nil {
			return err
		}
		defer closeStore(s, run.Log)
	}

	summary, err := pipeline.Run(ctx, run, pipelineOptions(cfg, s))
	if err != nil {
		if summary != nil {
			run.Log.Error("ingestion failed",
				zap.Int("batches", summary.Batches),
				zap.Int("loaded", summary.Loaded),
				zap.Error(err))
		}
		return err
	}
	return printSummary(summary)
}
