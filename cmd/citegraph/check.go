package main

import (
	"github.com/spf13/cobra"

	"github.com/matsen/citegraph/internal/config"
	"github.com/matsen/citegraph/internal/edge"
	"github.com/matsen/citegraph/internal/pipeline"
	"github.com/matsen/citegraph/internal/store"
)

// maxReportedForwardRefs caps the sample of dangling citations in check output.
const maxReportedForwardRefs = 20

var (
	checkInput    string
	checkMaxNodes int
	checkLimit    int
)

func init() {
	checkCmd.Flags().StringVar(&checkInput, "input", "", "Corpus location: path, '-' for stdin, or http(s) URL")
	checkCmd.Flags().IntVar(&checkMaxNodes, "max-nodes", 0, "Records per batch")
	checkCmd.Flags().IntVar(&checkLimit, "limit", 0, "Stop after this many records (0 = all)")
	rootCmd.AddCommand(checkCmd)
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Dry-run a corpus into an in-memory graph",
	Long: `Parse a corpus and build its graph in memory without touching any store.

Reports node and relationship counts, placeholder articles, tolerated record
defects, and a sample of citations whose target never appears as a record.
Exits with status 3 on malformed input.`,
	Args: cobra.NoArgs,
	RunE: runCheck,
}

// CheckResult is the response for the check command.
type CheckResult struct {
	Status           string                  `json:"status"`
	Summary          *pipeline.Summary       `json:"summary"`
	ForwardRefs      int                     `json:"forward_refs"`
	ForwardRefSample []edge.OrphanedEdgeInfo `json:"forward_ref_sample"`
}

func runCheck(cmd *cobra.Command, args []string) error {
	if cmd.Flags().Changed("input") {
		cfg.Input.Location = checkInput
	}
	if cmd.Flags().Changed("max-nodes") {
		cfg.Ingest.MaxNodes = checkMaxNodes
	}
	if cmd.Flags().Changed("limit") {
		cfg.Ingest.Limit = checkLimit
	}
	cfg.Ingest.Staging = config.StagingDirect
	cfg.Ingest.Reset = false
	cfg.Store.Backend = string(store.BackendMemory)
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := cfg.ValidateInput(); err != nil {
		return err
	}

	ctx := cmd.Context()
	run := newRun(ctx)
	mem := store.NewMemory()

	summary, err := pipeline.Run(ctx, run, pipelineOptions(cfg, mem))
	if err != nil {
		return err
	}

	orphaned, _ := edge.DetectOrphanedEdges(edge.Cites, mem.Edges(edge.Cites), mem.TitledArticles())
	result := CheckResult{
		Status:           "ok",
		Summary:          summary,
		ForwardRefs:      len(orphaned),
		ForwardRefSample: orphaned,
	}
	if len(result.ForwardRefSample) > maxReportedForwardRefs {
		result.ForwardRefSample = result.ForwardRefSample[:maxReportedForwardRefs]
	}
	if result.ForwardRefSample == nil {
		result.ForwardRefSample = []edge.OrphanedEdgeInfo{}
	}

	return output(result, func() {
		outputHuman("Corpus OK: %d records\n", summary.Records)
		printCounts(*summary.Counts)
		outputHuman("Tolerated: %d malformed years, %d dropped authors, %d dropped references, %d ignored fields\n",
			summary.MalformedYears, summary.DroppedAuthors, summary.DroppedReferences, summary.IgnoredFields)
		if result.ForwardRefs > 0 {
			outputHuman("Citations to articles outside the corpus: %d\n", result.ForwardRefs)
			for _, o := range result.ForwardRefSample {
				outputHuman("  %s -> %s\n", o.SourceID, o.TargetID)
			}
			if result.ForwardRefs > len(result.ForwardRefSample) {
				outputHuman("  ... and %d more\n", result.ForwardRefs-len(result.ForwardRefSample))
			}
		}
	})
}
