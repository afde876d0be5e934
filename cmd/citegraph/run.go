package main

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/matsen/citegraph/internal/config"
	"github.com/matsen/citegraph/internal/metrics"
	"github.com/matsen/citegraph/internal/pipeline"
	"github.com/matsen/citegraph/internal/runctx"
	"github.com/matsen/citegraph/internal/store"
	"github.com/matsen/citegraph/internal/stream"
)

// newRun creates the run context and, when an address is configured,
// starts the metrics listener in the background.
func newRun(ctx context.Context) *runctx.Run {
	m := metrics.New()
	run := runctx.New(cfg, logger, m)
	if addr := cfg.Metrics.Addr; addr != "" {
		go func() {
			if err := m.Serve(ctx, addr, run.Log); err != nil {
				run.Log.Warn("metrics listener stopped", zap.Error(err))
			}
		}()
	}
	return run
}

// openStore opens the configured backend.
func openStore(c *config.Config) (store.Store, error) {
	backend, err := store.ParseBackend(c.Store.Backend)
	if err != nil {
		return nil, err
	}
	return store.Open(store.Options{
		Backend: backend,
		Neo4j: store.Neo4jConfig{
			URI:                   c.Store.Neo4j.URI,
			Username:              c.Store.Neo4j.User,
			Password:              c.Store.Neo4j.Password,
			Database:              c.Store.Neo4j.Database,
			MaxConnectionPoolSize: c.Store.Neo4j.MaxPoolSize,
			ConnectionTimeout:     c.Store.Neo4j.ConnectTimeout,
		},
		SQLitePath: config.ExpandPath(c.Store.SQLitePath),
	})
}

// closeStore closes s with a bounded wait, logging failures.
func closeStore(s store.Store, log *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.Close(ctx); err != nil {
		log.Warn("closing store", zap.Error(err))
	}
}

// pipelineOptions translates configuration into pipeline options.
func pipelineOptions(c *config.Config, s store.Store) pipeline.Options {
	location := c.Input.Location
	return pipeline.Options{
		Open: stream.NewOpener(location, stream.Options{
			HTTPClient:    httpClient(c.Input.HeaderTimeout),
			ShellLiterals: c.Input.ShellLiterals,
		}),
		Rereadable:  stream.Rereadable(location),
		BatchSize:   c.Ingest.MaxNodes,
		Mode:        pipeline.Mode(c.Ingest.Mode),
		Staging:     pipeline.Staging(c.Ingest.Staging),
		StagePath:   config.ExpandPath(c.Ingest.StagingFile),
		Limit:       c.Ingest.Limit,
		Store:       s,
		Reset:       c.Ingest.Reset,
		ReadyDelay:  c.Loader.ReadyDelay,
		MaxAttempts: c.Loader.MaxAttempts,
		RetryDelay:  c.Loader.RetryDelay,
	}
}

func httpClient(headerTimeout time.Duration) *http.Client {
	if headerTimeout <= 0 {
		headerTimeout = stream.DefaultHeaderTimeout
	}
	return &http.Client{Transport: &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		ResponseHeaderTimeout: headerTimeout,
	}}
}

// printSummary reports a finished or failed run.
func printSummary(s *pipeline.Summary) error {
	return output(s, func() {
		outputHuman("Run %s\n", s.RunID)
		for _, p := range s.Passes {
			outputHuman("  pass %d (%s): %d records, %d batches, %d bytes in %s\n",
				p.Pass, p.Scope, p.Records, p.Batches, p.Bytes, p.Duration.Round(time.Millisecond))
		}
		outputHuman("Records:  %d\n", s.Records)
		outputHuman("Batches:  %d (loaded %d, staged %d)\n", s.Batches, s.Loaded, s.Staged)
		if s.Attempts > 0 {
			outputHuman("Attempts: %d\n", s.Attempts)
		}
		if s.MalformedYears+s.DroppedAuthors+s.DroppedReferences+s.IgnoredFields > 0 {
			outputHuman("Tolerated: %d malformed years, %d dropped authors, %d dropped references, %d ignored fields\n",
				s.MalformedYears, s.DroppedAuthors, s.DroppedReferences, s.IgnoredFields)
		}
		if s.StagingSHA256 != "" {
			outputHuman("Staging:  sha256 %s\n", s.StagingSHA256)
		}
		if s.AlreadyReplayed {
			outputHuman("Note:     this staging file was already replayed into the store\n")
		}
		if s.Counts != nil {
			printCounts(*s.Counts)
		}
		outputHuman("Elapsed:  %s\n", s.Duration.Round(time.Millisecond))
	})
}

func printCounts(c store.Counts) {
	outputHuman("Graph:\n")
	outputHuman("  Article  %d (%d placeholders)\n", c.Articles, c.Placeholders)
	outputHuman("  Author   %d\n", c.Authors)
	outputHuman("  AUTHORED %d\n", c.Authored)
	outputHuman("  CITES    %d\n", c.Cites)
}
