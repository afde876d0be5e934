// Package runctx carries the per-run state that components share: run
// identity, logger, metrics and configuration.
package runctx

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/matsen/citegraph/internal/config"
	"github.com/matsen/citegraph/internal/metrics"
)

// Run is passed explicitly to every component of one ingestion run.
type Run struct {
	ID      uuid.UUID
	Started time.Time
	Log     *zap.Logger
	Metrics *metrics.Metrics
	Config  *config.Config
}

// New creates a run with a fresh id. The logger is tagged with the run id;
// nil log or m are replaced by no-op equivalents.
func New(cfg *config.Config, log *zap.Logger, m *metrics.Metrics) *Run {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg == nil {
		cfg = config.Default()
	}
	id := uuid.New()
	return &Run{
		ID:      id,
		Started: time.Now(),
		Log:     log.With(zap.String("run_id", id.String())),
		Metrics: m,
		Config:  cfg,
	}
}

// Elapsed returns the time since the run started.
func (r *Run) Elapsed() time.Duration {
	return time.Since(r.Started)
}
