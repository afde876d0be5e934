// Package config handles layered run configuration: defaults, then a YAML
// file, then environment (including .env), then command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Pass modes.
const (
	ModeSingle  = "single"
	ModeTwoPass = "two-pass"
)

// Staging strategies.
const (
	StagingDirect = "direct"
	StagingJSONL  = "jsonl"
)

// ValidModes and ValidStaging list accepted values.
var (
	ValidModes    = []string{ModeSingle, ModeTwoPass}
	ValidStaging  = []string{StagingDirect, StagingJSONL}
	ValidBackends = []string{"neo4j", "sqlite", "memory"}
)

// Config is the effective configuration of a run.
type Config struct {
	Input   InputConfig   `yaml:"input"`
	Ingest  IngestConfig  `yaml:"ingest"`
	Store   StoreConfig   `yaml:"store"`
	Loader  LoaderConfig  `yaml:"loader"`
	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// InputConfig locates the corpus.
type InputConfig struct {
	Location      string        `yaml:"location"`       // path, "-", or http(s)/file URL
	ShellLiterals bool          `yaml:"shell_literals"` // rewrite NumberInt(..) wrappers
	HeaderTimeout time.Duration `yaml:"header_timeout"`
}

// IngestConfig shapes the pipeline.
type IngestConfig struct {
	MaxNodes    int    `yaml:"max_nodes"` // records per batch
	Mode        string `yaml:"mode"`
	Staging     string `yaml:"staging"`
	StagingFile string `yaml:"staging_file,omitempty"`
	Limit       int    `yaml:"limit,omitempty"` // stop after this many records, 0 = all
	Reset       bool   `yaml:"reset"`
}

// StoreConfig selects the destination.
type StoreConfig struct {
	Backend    string      `yaml:"backend"`
	Neo4j      Neo4jConfig `yaml:"neo4j"`
	SQLitePath string      `yaml:"sqlite_path,omitempty"`
}

// Neo4jConfig holds Neo4j connection settings.
type Neo4jConfig struct {
	URI            string        `yaml:"uri"`
	User           string        `yaml:"user"`
	Password       string        `yaml:"password,omitempty"`
	Database       string        `yaml:"database,omitempty"`
	MaxPoolSize    int           `yaml:"max_pool_size"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// LoaderConfig tunes retries and the readiness gate.
type LoaderConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	RetryDelay  time.Duration `yaml:"retry_delay"`
	ReadyDelay  time.Duration `yaml:"ready_delay"`
}

// LogConfig configures zap.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig configures the optional /metrics listener.
type MetricsConfig struct {
	Addr string `yaml:"addr,omitempty"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Input: InputConfig{
			HeaderTimeout: 30 * time.Second,
		},
		Ingest: IngestConfig{
			MaxNodes: 1000,
			Mode:     ModeSingle,
			Staging:  StagingDirect,
		},
		Store: StoreConfig{
			Backend: "neo4j",
			Neo4j: Neo4jConfig{
				URI:            "bolt://localhost:7687",
				User:           "neo4j",
				MaxPoolSize:    50,
				ConnectTimeout: 10 * time.Second,
			},
			SQLitePath: "citegraph.db",
		},
		Loader: LoaderConfig{
			MaxAttempts: 15,
			RetryDelay:  500 * time.Millisecond,
			ReadyDelay:  2 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadFile overlays a YAML file onto c. A missing file is an error only
// when required is set.
func (c *Config) LoadFile(path string, required bool) error {
	data, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		if os.IsNotExist(err) && !required {
			return nil
		}
		return fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("%w: parsing %s: %v", ErrInvalid, path, err)
	}
	return nil
}

// Save writes c as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	var problems []string
	if c.Ingest.MaxNodes < 1 {
		problems = append(problems, fmt.Sprintf("max_nodes must be positive, got %d", c.Ingest.MaxNodes))
	}
	if c.Ingest.Limit < 0 {
		problems = append(problems, fmt.Sprintf("limit must not be negative, got %d", c.Ingest.Limit))
	}
	if !contains(ValidModes, c.Ingest.Mode) {
		problems = append(problems, fmt.Sprintf("invalid mode: %s (valid: %v)", c.Ingest.Mode, ValidModes))
	}
	if !contains(ValidStaging, c.Ingest.Staging) {
		problems = append(problems, fmt.Sprintf("invalid staging: %s (valid: %v)", c.Ingest.Staging, ValidStaging))
	}
	if c.Ingest.Staging == StagingJSONL && c.Ingest.StagingFile == "" {
		problems = append(problems, "staging_file is required with jsonl staging")
	}
	if !contains(ValidBackends, c.Store.Backend) {
		problems = append(problems, fmt.Sprintf("invalid store backend: %s (valid: %v)", c.Store.Backend, ValidBackends))
	}
	if c.Store.Backend == "neo4j" && c.Store.Neo4j.URI == "" {
		problems = append(problems, "neo4j uri is required")
	}
	if c.Store.Backend == "sqlite" && c.Store.SQLitePath == "" {
		problems = append(problems, "sqlite_path is required")
	}
	if c.Loader.MaxAttempts < 1 {
		problems = append(problems, fmt.Sprintf("max_attempts must be positive, got %d", c.Loader.MaxAttempts))
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

// ValidateInput checks that an input location is set and, for two-pass
// runs, that it can be read twice.
func (c *Config) ValidateInput() error {
	if c.Input.Location == "" {
		return fmt.Errorf("%w: no input (set --input, JSON_FILE or JSON_URL)", ErrInvalid)
	}
	if c.Ingest.Mode == ModeTwoPass && c.Input.Location == "-" {
		return fmt.Errorf("%w: two-pass mode cannot re-read stdin", ErrInvalid)
	}
	return nil
}

// Redacted returns a copy safe to print.
func (c *Config) Redacted() *Config {
	cp := *c
	if cp.Store.Neo4j.Password != "" {
		cp.Store.Neo4j.Password = "***"
	}
	return &cp
}

// ExpandPath expands ~ to the user's home directory.
// Returns the original path unchanged if it doesn't start with ~.
func ExpandPath(path string) string {
	if len(path) == 0 || path[0] != '~' {
		return path
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return path // Return original if we can't get home directory
	}

	return filepath.Join(home, path[1:])
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}
