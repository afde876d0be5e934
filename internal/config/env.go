package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Environment variables understood by ApplyEnv.
const (
	EnvJSONFile      = "JSON_FILE"
	EnvJSONURL       = "JSON_URL"
	EnvMaxNodes      = "MAX_NODES"
	EnvNeo4jIP       = "NEO4J_IP"
	EnvNeo4jPort     = "NEO4J_PORT"
	EnvNeo4jURI      = "NEO4J_URI"
	EnvNeo4jUser     = "NEO4J_USER"
	EnvNeo4jPassword = "NEO4J_PASSWORD"
	EnvNeo4jDatabase = "NEO4J_DATABASE"
	EnvIngestMode    = "INGEST_MODE"
	EnvStore         = "CITEGRAPH_STORE"
	EnvSQLitePath    = "CITEGRAPH_SQLITE_PATH"
)

const defaultNeo4jPort = "7687"

// LoadDotEnv loads a .env file into the process environment without
// overriding variables that are already set. An empty path means ".env"
// in the working directory; a missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overlays environment variables onto c. JSON_URL takes
// precedence over JSON_FILE, and NEO4J_URI over NEO4J_IP/NEO4J_PORT.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	if v, ok := get(EnvJSONFile); ok {
		c.Input.Location = v
	}
	if v, ok := get(EnvJSONURL); ok {
		c.Input.Location = v
	}
	if v, ok := get(EnvMaxNodes); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not an integer", ErrInvalid, EnvMaxNodes, v)
		}
		c.Ingest.MaxNodes = n
	}
	if v, ok := get(EnvIngestMode); ok {
		c.Ingest.Mode = v
	}

	ip, hasIP := get(EnvNeo4jIP)
	port, hasPort := get(EnvNeo4jPort)
	if hasIP || hasPort {
		if !hasIP {
			ip = "localhost"
		}
		if !hasPort {
			port = defaultNeo4jPort
		}
		c.Store.Neo4j.URI = "bolt://" + net.JoinHostPort(ip, port)
	}
	if v, ok := get(EnvNeo4jURI); ok {
		c.Store.Neo4j.URI = v
	}
	if v, ok := get(EnvNeo4jUser); ok {
		c.Store.Neo4j.User = v
	}
	if v, ok := lookup(EnvNeo4jPassword); ok {
		c.Store.Neo4j.Password = v
	}
	if v, ok := get(EnvNeo4jDatabase); ok {
		c.Store.Neo4j.Database = v
	}
	if v, ok := get(EnvStore); ok {
		c.Store.Backend = strings.ToLower(v)
	}
	if v, ok := get(EnvSQLitePath); ok {
		c.Store.SQLitePath = ExpandPath(v)
	}
	return nil
}
