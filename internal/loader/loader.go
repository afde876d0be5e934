// Package loader writes batches to a store in a fixed sequence of
// idempotent phases, retrying each phase with the identical payload.
package loader

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/matsen/citegraph/internal/batch"
	"github.com/matsen/citegraph/internal/edge"
	"github.com/matsen/citegraph/internal/metrics"
	"github.com/matsen/citegraph/internal/store"
)

// Defaults for Options.
const (
	DefaultMaxAttempts = 15
	DefaultRetryDelay  = 500 * time.Millisecond
)

// ErrRetriesExhausted is wrapped by PhaseError when a phase never succeeded.
var ErrRetriesExhausted = errors.New("retries exhausted")

// Phase names one store call in a batch load.
type Phase string

const (
	PhaseArticles Phase = "articles"
	PhaseAuthors  Phase = "authors"
	PhaseAuthored Phase = "authored"
	PhaseCites    Phase = "cites"
)

// Phases lists the phases in load order. Nodes go before the edges that
// reference them.
var Phases = []Phase{PhaseArticles, PhaseAuthors, PhaseAuthored, PhaseCites}

// PhaseError reports a phase that failed permanently or ran out of attempts.
type PhaseError struct {
	Phase    Phase
	Seq      int
	Scope    batch.Scope
	Attempts int
	Err      error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("batch %d (%s): phase %s failed after %d attempt(s): %v", e.Seq, e.Scope, e.Phase, e.Attempts, e.Err)
}

func (e *PhaseError) Unwrap() error {
	return e.Err
}

// Options configures a Loader.
type Options struct {
	MaxAttempts int           // total attempts per phase, default 15
	RetryDelay  time.Duration // minimum spacing between attempts
	Logger      *zap.Logger
	Metrics     *metrics.Metrics
}

// PhaseReport describes one completed phase.
type PhaseReport struct {
	Phase    Phase         `json:"phase"`
	Elements int           `json:"elements"`
	Attempts int           `json:"attempts"`
	Duration time.Duration `json:"duration_ns"`
}

// Report describes one loaded batch.
type Report struct {
	Seq      int           `json:"seq"`
	Phases   []PhaseReport `json:"phases"`
	Duration time.Duration `json:"duration_ns"`
}

// Attempts returns the total store calls made for the batch.
func (r Report) Attempts() int {
	n := 0
	for _, p := range r.Phases {
		n += p.Attempts
	}
	return n
}

// Loader applies batches to a store. It is used from a single goroutine.
type Loader struct {
	store store.Store
	opts  Options
	log   *zap.Logger
}

// New creates a loader.
func New(s store.Store, opts Options) *Loader {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Loader{store: s, opts: opts, log: log}
}

// Load runs every non-empty phase of b in order. A phase that fails stops
// the batch; earlier phases stay applied, which is safe because every phase
// is idempotent.
func (l *Loader) Load(ctx context.Context, b *batch.Batch) (Report, error) {
	start := time.Now()
	report := Report{}
	if b.Empty() {
		return report, nil
	}
	report.Seq = b.Seq

	for _, phase := range Phases {
		n, call := l.phaseCall(phase, b)
		if n == 0 {
			continue
		}
		pr, err := l.runPhase(ctx, b, phase, n, call)
		report.Phases = append(report.Phases, pr)
		if err != nil {
			report.Duration = time.Since(start)
			return report, err
		}
	}

	report.Duration = time.Since(start)
	l.log.Debug("batch loaded",
		zap.Int("batch", b.Seq),
		zap.Int("attempts", report.Attempts()),
		zap.Duration("elapsed", report.Duration))
	return report, nil
}

// phaseCall returns the element count and the store call for a phase.
// The payload is built once so every attempt sends the same data.
func (l *Loader) phaseCall(phase Phase, b *batch.Batch) (int, func(context.Context) error) {
	switch phase {
	case PhaseArticles:
		nodes := store.ArticleNodes(b.Articles)
		return len(nodes), func(ctx context.Context) error {
			return l.store.UpsertNodes(ctx, edge.LabelArticle, nodes)
		}
	case PhaseAuthors:
		nodes := store.AuthorNodes(b.Authors)
		return len(nodes), func(ctx context.Context) error {
			return l.store.UpsertNodes(ctx, edge.LabelAuthor, nodes)
		}
	case PhaseAuthored:
		return len(b.Authored), func(ctx context.Context) error {
			return l.store.EnsureEdges(ctx, edge.Authored, b.Authored)
		}
	case PhaseCites:
		return len(b.Cites), func(ctx context.Context) error {
			return l.store.EnsureEdges(ctx, edge.Cites, b.Cites)
		}
	}
	return 0, nil
}

func (l *Loader) runPhase(ctx context.Context, b *batch.Batch, phase Phase, n int, call func(context.Context) error) (PhaseReport, error) {
	start := time.Now()
	pr := PhaseReport{Phase: phase, Elements: n}
	limiter := rate.NewLimiter(rate.Every(l.opts.RetryDelay), 1)

	var lastErr error
	for pr.Attempts < l.opts.MaxAttempts {
		if err := limiter.Wait(ctx); err != nil {
			// The next attempt would land past the deadline.
			<-ctx.Done()
			lastErr = ctx.Err()
			break
		}
		pr.Attempts++
		err := call(ctx)
		l.opts.Metrics.RecordAttempt(string(phase), err != nil)
		if err == nil {
			pr.Duration = time.Since(start)
			l.opts.Metrics.RecordPhase(string(phase), n, pr.Duration)
			return pr, nil
		}
		lastErr = err

		if store.IsPermanent(err) {
			break
		}
		l.log.Warn("phase failed, retrying",
			zap.Int("batch", b.Seq),
			zap.String("phase", string(phase)),
			zap.Int("attempt", pr.Attempts),
			zap.Int("max_attempts", l.opts.MaxAttempts),
			zap.Error(err))
	}

	pr.Duration = time.Since(start)
	perr := &PhaseError{Phase: phase, Seq: b.Seq, Scope: b.Scope, Attempts: pr.Attempts, Err: lastErr}
	if !store.IsPermanent(lastErr) {
		perr.Err = fmt.Errorf("%w: %v", ErrRetriesExhausted, lastErr)
	}
	l.log.Error("phase failed",
		zap.Int("batch", b.Seq),
		zap.String("scope", string(b.Scope)),
		zap.String("phase", string(phase)),
		zap.Int("attempts", pr.Attempts),
		zap.Error(perr.Err))
	return pr, perr
}
