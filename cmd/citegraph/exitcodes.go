package main

import (
	"context"
	"errors"

	"github.com/matsen/citegraph/internal/config"
	"github.com/matsen/citegraph/internal/pipeline"
	"github.com/matsen/citegraph/internal/store"
)

// Exit codes
const (
	ExitSuccess     = 0   // Success
	ExitError       = 1   // General error (invalid arguments, runtime failure)
	ExitConfigError = 2   // Configuration error (invalid values, unusable option combination)
	ExitDataError   = 3   // Input error (unreadable source, malformed JSON, missing _id)
	ExitStoreError  = 4   // Store error (retries exhausted, schema or reset failure)
	ExitInterrupted = 130 // Interrupted by SIGINT/SIGTERM
)

// exitCode maps an error returned by a command to a process exit code.
func exitCode(err error) int {
	switch {
	case err == nil:
		return ExitSuccess
	case errors.Is(err, context.Canceled):
		return ExitInterrupted
	case errors.Is(err, config.ErrInvalid),
		errors.Is(err, store.ErrUnknownBackend),
		pipeline.IsOptionsError(err):
		return ExitConfigError
	case pipeline.IsInputError(err):
		return ExitDataError
	case pipeline.IsStoreError(err):
		return ExitStoreError
	default:
		return ExitError
	}
}
