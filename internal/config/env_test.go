package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func lookupFrom(env map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(lookupFrom(map[string]string{
		EnvJSONFile:      "/data/dblp.json",
		EnvMaxNodes:      "5000",
		EnvNeo4jIP:       "10.0.0.5",
		EnvNeo4jPort:     "7688",
		EnvNeo4jUser:     "loader",
		EnvNeo4jPassword: "pw",
		EnvIngestMode:    ModeTwoPass,
	}))
	if err != nil {
		t.Fatalf("ApplyEnv() error = %v", err)
	}

	if cfg.Input.Location != "/data/dblp.json" {
		t.Errorf("Location = %q", cfg.Input.Location)
	}
	if cfg.Ingest.MaxNodes != 5000 {
		t.Errorf("MaxNodes = %d", cfg.Ingest.MaxNodes)
	}
	if cfg.Store.Neo4j.URI != "bolt://10.0.0.5:7688" {
		t.Errorf("URI = %q", cfg.Store.Neo4j.URI)
	}
	if cfg.Store.Neo4j.User != "loader" || cfg.Store.Neo4j.Password != "pw" {
		t.Errorf("credentials = %q/%q", cfg.Store.Neo4j.User, cfg.Store.Neo4j.Password)
	}
	if cfg.Ingest.Mode != ModeTwoPass {
		t.Errorf("Mode = %q", cfg.Ingest.Mode)
	}
}

func TestApplyEnv_Precedence(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(lookupFrom(map[string]string{
		EnvJSONFile:   "local.json",
		EnvJSONURL:    "https://example.org/dblp.json",
		EnvNeo4jIP:    "10.0.0.5",
		EnvNeo4jURI:   "neo4j://cluster:7687",
		EnvStore:      "SQLite",
		EnvSQLitePath: "/tmp/g.db",
	}))
	if err != nil {
		t.Fatalf("ApplyEnv() error = %v", err)
	}
	if cfg.Input.Location != "https://example.org/dblp.json" {
		t.Errorf("Location = %q, want JSON_URL to win", cfg.Input.Location)
	}
	if cfg.Store.Neo4j.URI != "neo4j://cluster:7687" {
		t.Errorf("URI = %q, want NEO4J_URI to win", cfg.Store.Neo4j.URI)
	}
	if cfg.Store.Backend != "sqlite" || cfg.Store.SQLitePath != "/tmp/g.db" {
		t.Errorf("Store = %+v", cfg.Store)
	}
}

func TestApplyEnv_PortOnly(t *testing.T) {
	cfg := Default()
	if err := cfg.ApplyEnv(lookupFrom(map[string]string{EnvNeo4jPort: "17687"})); err != nil {
		t.Fatal(err)
	}
	if cfg.Store.Neo4j.URI != "bolt://localhost:17687" {
		t.Errorf("URI = %q", cfg.Store.Neo4j.URI)
	}
}

func TestApplyEnv_BadMaxNodes(t *testing.T) {
	err := Default().ApplyEnv(lookupFrom(map[string]string{EnvMaxNodes: "lots"}))
	if !errors.Is(err, ErrInvalid) {
		t.Errorf("ApplyEnv() error = %v, want ErrInvalid", err)
	}
}

func TestApplyEnv_BlankIgnored(t *testing.T) {
	cfg := Default()
	if err := cfg.ApplyEnv(lookupFrom(map[string]string{EnvMaxNodes: "  ", EnvJSONFile: ""})); err != nil {
		t.Fatal(err)
	}
	if cfg.Ingest.MaxNodes != 1000 || cfg.Input.Location != "" {
		t.Errorf("blank values should be ignored: %+v", cfg.Ingest)
	}
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("CITEGRAPH_TEST_DOTENV=from-file\nCITEGRAPH_TEST_PRESET=from-file\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CITEGRAPH_TEST_PRESET", "from-env")
	t.Cleanup(func() { os.Unsetenv("CITEGRAPH_TEST_DOTENV") })

	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("LoadDotEnv() error = %v", err)
	}
	if got := os.Getenv("CITEGRAPH_TEST_DOTENV"); got != "from-file" {
		t.Errorf("CITEGRAPH_TEST_DOTENV = %q", got)
	}
	if got := os.Getenv("CITEGRAPH_TEST_PRESET"); got != "from-env" {
		t.Errorf("existing variable overridden: %q", got)
	}

	if err := LoadDotEnv(filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Errorf("missing .env: error = %v", err)
	}
}
