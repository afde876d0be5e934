package pipeline

import (
	"errors"

	"github.com/matsen/citegraph/internal/importer"
	"github.com/matsen/citegraph/internal/loader"
	"github.com/matsen/citegraph/internal/staging"
	"github.com/matsen/citegraph/internal/stream"
)

// Error categories. Failures are wrapped with one of these so the caller
// can choose an exit status without inspecting package-specific errors.
var (
	// ErrInput marks unreadable or malformed input.
	ErrInput = errors.New("input error")

	// ErrStore marks a destination failure: schema setup, reset, counting,
	// or a load phase that exhausted its attempts.
	ErrStore = errors.New("store error")

	// ErrOptions marks an unusable combination of run options.
	ErrOptions = errors.New("invalid run options")
)

// IsInputError reports whether err was caused by the input.
func IsInputError(err error) bool {
	return errors.Is(err, ErrInput) ||
		errors.Is(err, stream.ErrMalformed) ||
		errors.Is(err, importer.ErrMissingID) ||
		errors.Is(err, importer.ErrMalformedRecord) ||
		errors.Is(err, staging.ErrCorrupt)
}

// IsStoreError reports whether err was caused by the destination store.
func IsStoreError(err error) bool {
	var perr *loader.PhaseError
	return errors.Is(err, ErrStore) || errors.As(err, &perr)
}

// IsOptionsError reports whether err was caused by invalid options.
func IsOptionsError(err error) bool {
	return errors.Is(err, ErrOptions)
}
