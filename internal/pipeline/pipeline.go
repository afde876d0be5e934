// Package pipeline drives an ingestion run: it streams records from the
// input, extracts entities, accumulates batches and hands each flushed
// batch to the loader or to a staging file.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/matsen/citegraph/internal/batch"
	"github.com/matsen/citegraph/internal/importer"
	"github.com/matsen/citegraph/internal/loader"
	"github.com/matsen/citegraph/internal/runctx"
	"github.com/matsen/citegraph/internal/staging"
	"github.com/matsen/citegraph/internal/store"
	"github.com/matsen/citegraph/internal/stream"
)

// Mode selects how citations are ingested.
type Mode string

const (
	// ModeSingle ingests everything in one scan.
	ModeSingle Mode = "single"
	// ModeTwoPass ingests nodes and authorship first, then rescans the
	// input for citations.
	ModeTwoPass Mode = "two-pass"
)

// Staging selects where flushed batches go.
type Staging string

const (
	// StagingDirect loads every batch as soon as it is flushed.
	StagingDirect Staging = "direct"
	// StagingJSONL appends batches to a file for a later Replay.
	StagingJSONL Staging = "jsonl"
)

// Options parameterize a run.
type Options struct {
	Open       stream.Opener
	Rereadable bool // the opener can be called more than once
	BatchSize  int  // records per batch
	Mode       Mode
	Staging    Staging
	StagePath  string
	Limit      int // stop each pass after this many records, 0 = all

	// Destination, used with StagingDirect and by Replay.
	Store       store.Store
	Reset       bool
	ReadyDelay  time.Duration
	MaxAttempts int
	RetryDelay  time.Duration
}

// PassSummary describes one scan of the input.
type PassSummary struct {
	Pass     int           `json:"pass"`
	Scope    batch.Scope   `json:"scope"`
	Records  int           `json:"records"`
	Batches  int           `json:"batches"`
	Bytes    int64         `json:"bytes"`
	Duration time.Duration `json:"duration_ns"`
}

// Summary describes a finished run.
type Summary struct {
	RunID             string        `json:"run_id"`
	Mode              Mode          `json:"mode,omitempty"`
	Staging           Staging       `json:"staging"`
	Passes            []PassSummary `json:"passes,omitempty"`
	Records           int           `json:"records"`
	Batches           int           `json:"batches"`
	Loaded            int           `json:"loaded"`
	Staged            int           `json:"staged"`
	Attempts          int           `json:"attempts"`
	MalformedYears    int           `json:"malformed_years"`
	DroppedAuthors    int           `json:"dropped_authors"`
	DroppedReferences int           `json:"dropped_references"`
	IgnoredFields     int           `json:"ignored_fields"`
	Counts            *store.Counts `json:"counts,omitempty"`
	StagingSHA256     string        `json:"staging_sha256,omitempty"`
	AlreadyReplayed   bool          `json:"already_replayed,omitempty"`
	Duration          time.Duration `json:"duration_ns"`
}

// sink receives flushed batches.
type sink interface {
	submit(ctx context.Context, b *batch.Batch) error
}

type loadSink struct {
	loader  *loader.Loader
	summary *Summary
}

func (s *loadSink) submit(ctx context.Context, b *batch.Batch) error {
	report, err := s.loader.Load(ctx, b)
	s.summary.Attempts += report.Attempts()
	if err != nil {
		return err
	}
	s.summary.Loaded++
	return nil
}

type stageSink struct {
	writer  *staging.Writer
	summary *Summary
}

func (s *stageSink) submit(ctx context.Context, b *batch.Batch) error {
	if err := s.writer.Write(b); err != nil {
		return err
	}
	s.summary.Staged++
	return nil
}

func (o *Options) validate() error {
	if o.Open == nil {
		return fmt.Errorf("%w: no input opener", ErrOptions)
	}
	if o.BatchSize < 1 {
		return fmt.Errorf("%w: batch size must be positive, got %d", ErrOptions, o.BatchSize)
	}
	switch o.Mode {
	case ModeSingle:
	case ModeTwoPass:
		if !o.Rereadable {
			return fmt.Errorf("%w: two-pass mode needs an input that can be read twice", ErrOptions)
		}
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrOptions, string(o.Mode))
	}
	switch o.Staging {
	case StagingDirect:
		if o.Store == nil {
			return fmt.Errorf("%w: direct staging needs a store", ErrOptions)
		}
	case StagingJSONL:
		if o.StagePath == "" {
			return fmt.Errorf("%w: jsonl staging needs a staging file", ErrOptions)
		}
	default:
		return fmt.Errorf("%w: unknown staging %q", ErrOptions, string(o.Staging))
	}
	return nil
}

func (o *Options) scopes() []batch.Scope {
	if o.Mode == ModeTwoPass {
		return []batch.Scope{batch.ScopeEntities, batch.ScopeCitations}
	}
	return []batch.Scope{batch.ScopeAll}
}

// Run executes every pass of a run.
func Run(ctx context.Context, run *runctx.Run, opts Options) (*Summary, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	log := run.Log.With(zap.String("mode", string(opts.Mode)), zap.String("staging", string(opts.Staging)))
	summary := &Summary{RunID: run.ID.String(), Mode: opts.Mode, Staging: opts.Staging}

	var out sink
	var w *staging.Writer
	switch opts.Staging {
	case StagingDirect:
		if err := Prepare(ctx, run, opts); err != nil {
			return summary, err
		}
		out = &loadSink{loader: newLoader(run, opts), summary: summary}
	case StagingJSONL:
		var err error
		if w, err = staging.Create(opts.StagePath); err != nil {
			return summary, err
		}
		// A failed run leaves no partial staging file behind.
		defer func() {
			if w != nil {
				_ = w.Discard()
			}
		}()
		out = &stageSink{writer: w, summary: summary}
	}

	log.Info("ingestion started", zap.Int("batch_size", opts.BatchSize), zap.Int("limit", opts.Limit))
	for i, scope := range opts.scopes() {
		ps, err := runPass(ctx, run, &opts, i+1, scope, out, summary)
		summary.Passes = append(summary.Passes, ps)
		if err != nil {
			summary.Duration = run.Elapsed()
			return summary, err
		}
		log.Info("pass complete",
			zap.Int("pass", ps.Pass),
			zap.String("scope", string(ps.Scope)),
			zap.Int("records", ps.Records),
			zap.Int("batches", ps.Batches),
			zap.Int64("bytes", ps.Bytes),
			zap.Duration("elapsed", ps.Duration))
	}

	if w != nil {
		err := w.Close()
		w = nil
		if err != nil {
			return summary, err
		}
		if summary.StagingSHA256, err = staging.Fingerprint(opts.StagePath); err != nil {
			return summary, err
		}
		log.Info("batches staged",
			zap.String("path", opts.StagePath),
			zap.Int("batches", summary.Staged),
			zap.String("sha256", summary.StagingSHA256))
	} else if err := finish(ctx, run, opts.Store, summary); err != nil {
		return summary, err
	}
	summary.Duration = run.Elapsed()
	log.Info("ingestion complete",
		zap.Int("records", summary.Records),
		zap.Int("batches", summary.Batches),
		zap.Duration("elapsed", summary.Duration))
	return summary, nil
}

// runPass scans the input once with the given scope.
func runPass(ctx context.Context, run *runctx.Run, opts *Options, pass int, scope batch.Scope, out sink, summary *Summary) (PassSummary, error) {
	start := time.Now()
	ps := PassSummary{Pass: pass, Scope: scope}
	log := run.Log.With(zap.Int("pass", pass))

	rc, err := opts.Open(ctx)
	if err != nil {
		return ps, fmt.Errorf("%w: %w", ErrInput, err)
	}
	defer rc.Close()

	cur := stream.NewCursor(rc)
	acc := batch.New(opts.BatchSize, scope)
	acc.ContinueAfter(summary.Batches)

	flush := func() error {
		b := acc.Flush()
		if b == nil {
			return nil
		}
		ps.Batches++
		summary.Batches++
		ps.Bytes = cur.Offset()
		run.Metrics.RecordBatch(string(scope))
		run.Metrics.SetBytesRead(ps.Bytes)

		log.Info("batch flushed",
			zap.Int("batch", b.Seq),
			zap.Int("records", b.Records),
			zap.Int("elements", b.Size()),
			zap.Int("records_total", ps.Records),
			zap.Int64("bytes_read", ps.Bytes),
			zap.Duration("elapsed", run.Elapsed()))
		return out.submit(ctx, b)
	}

	for opts.Limit == 0 || ps.Records < opts.Limit {
		if err := ctx.Err(); err != nil {
			return ps, err
		}
		raw, err := cur.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return ps, err
		}

		ex, err := importer.Extract(raw)
		if err != nil {
			return ps, fmt.Errorf("record %d: %w", cur.Index(), err)
		}
		ps.Records++
		run.Metrics.RecordRecords(1)
		if pass == 1 {
			countDefects(run, ex, summary)
		}

		acc.Add(ex)
		if acc.ShouldFlush() {
			if err := flush(); err != nil {
				return ps, err
			}
		}
	}
	if err := flush(); err != nil {
		return ps, err
	}

	if pass == 1 {
		summary.Records = ps.Records
	}
	ps.Bytes = cur.Offset()
	ps.Duration = time.Since(start)
	return ps, nil
}

func countDefects(run *runctx.Run, ex *importer.Extraction, summary *Summary) {
	if ex.MalformedYear {
		summary.MalformedYears++
		run.Log.Debug("malformed year dropped", zap.String("id", ex.Article.ID))
	}
	summary.DroppedAuthors += ex.DroppedAuthors
	summary.DroppedReferences += ex.DroppedReferences
	summary.IgnoredFields += len(ex.IgnoredFields)
	run.Metrics.RecordExtraction(ex.MalformedYear, ex.DroppedAuthors, ex.DroppedReferences)
}

// Prepare waits for the store, creates its schema and optionally clears it.
func Prepare(ctx context.Context, run *runctx.Run, opts Options) error {
	if opts.Store == nil {
		return fmt.Errorf("%w: no store", ErrOptions)
	}
	attempts, err := store.WaitReady(ctx, opts.Store, opts.ReadyDelay, run.Log)
	if err != nil {
		return err
	}
	run.Log.Debug("store ready", zap.Int("probes", attempts))

	if err := opts.Store.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrStore, err)
	}
	if opts.Reset {
		run.Log.Info("deleting all nodes")
		if err := opts.Store.Reset(ctx); err != nil {
			return fmt.Errorf("%w: %w", ErrStore, err)
		}
	}
	return nil
}

// Replay loads every batch of a staging file in order.
func Replay(ctx context.Context, run *runctx.Run, path string, opts Options) (*Summary, error) {
	summary := &Summary{RunID: run.ID.String(), Staging: StagingJSONL}
	if err := Prepare(ctx, run, opts); err != nil {
		return summary, err
	}

	fingerprint, err := staging.Fingerprint(path)
	if err != nil {
		return summary, fmt.Errorf("%w: %w", ErrInput, err)
	}
	summary.StagingSHA256 = fingerprint

	meta, hasMeta := opts.Store.(store.MetaStore)
	if hasMeta {
		last, err := meta.GetMeta(ctx, store.MetaLastReplaySHA256)
		if err != nil {
			return summary, fmt.Errorf("%w: %w", ErrStore, err)
		}
		if last == fingerprint {
			summary.AlreadyReplayed = true
			run.Log.Info("staging file already replayed into this store, loading again",
				zap.String("path", path),
				zap.String("sha256", fingerprint))
		}
	}

	r, err := staging.Open(path)
	if err != nil {
		return summary, fmt.Errorf("%w: %w", ErrInput, err)
	}
	defer r.Close()

	out := &loadSink{loader: newLoader(run, opts), summary: summary}
	for {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		b, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return summary, err
		}
		summary.Batches++
		if b.Scope != batch.ScopeCitations {
			summary.Records += b.Records
		}
		run.Log.Info("replaying batch",
			zap.Int("batch", b.Seq),
			zap.String("scope", string(b.Scope)),
			zap.Int("elements", b.Size()))
		if err := out.submit(ctx, b); err != nil {
			return summary, err
		}
	}

	if err := finish(ctx, run, opts.Store, summary); err != nil {
		return summary, err
	}
	if hasMeta {
		if err := meta.SetMeta(ctx, store.MetaLastReplaySHA256, fingerprint); err != nil {
			return summary, fmt.Errorf("%w: recording replay: %w", ErrStore, err)
		}
	}
	summary.Duration = run.Elapsed()
	return summary, nil
}

func newLoader(run *runctx.Run, opts Options) *loader.Loader {
	return loader.New(opts.Store, loader.Options{
		MaxAttempts: opts.MaxAttempts,
		RetryDelay:  opts.RetryDelay,
		Logger:      run.Log,
		Metrics:     run.Metrics,
	})
}

// finish reads the final graph counts and, where the backend keeps
// bookkeeping, records the run as the last successful one.
func finish(ctx context.Context, run *runctx.Run, s store.Store, summary *Summary) error {
	c, err := s.Counts(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStore, err)
	}
	summary.Counts = &c
	run.Log.Info("graph counts",
		zap.Int64("nodes", c.Nodes()),
		zap.Int64("edges", c.Edges()),
		zap.Int64("placeholders", c.Placeholders))

	if meta, ok := s.(store.MetaStore); ok {
		if err := meta.SetMeta(ctx, store.MetaLastRunID, run.ID.String()); err != nil {
			return fmt.Errorf("%w: recording run: %w", ErrStore, err)
		}
		if err := meta.SetMeta(ctx, store.MetaLastRunFinished, time.Now().UTC().Format(time.RFC3339)); err != nil {
			return fmt.Errorf("%w: recording run: %w", ErrStore, err)
		}
	}
	return nil
}
