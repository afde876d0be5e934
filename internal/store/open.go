package store

import (
	"fmt"
	"strings"
)

// Backend names a store implementation.
type Backend string

const (
	BackendNeo4j  Backend = "neo4j"
	BackendSQLite Backend = "sqlite"
	BackendMemory Backend = "memory"
)

// Backends lists the supported backends.
var Backends = []Backend{BackendNeo4j, BackendSQLite, BackendMemory}

// ParseBackend parses a backend name, case-insensitively.
func ParseBackend(s string) (Backend, error) {
	b := Backend(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Backends {
		if b == known {
			return b, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownBackend, s)
}

// Options selects and configures a backend.
type Options struct {
	Backend    Backend
	Neo4j      Neo4jConfig
	SQLitePath string
}

// Open creates the configured store. Network backends are not contacted
// until the first call.
func Open(opts Options) (Store, error) {
	switch opts.Backend {
	case BackendNeo4j:
		return OpenNeo4j(opts.Neo4j)
	case BackendSQLite:
		if opts.SQLitePath == "" {
			return nil, fmt.Errorf("sqlite: path required")
		}
		return OpenSQLite(opts.SQLitePath)
	case BackendMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, string(opts.Backend))
	}
}
