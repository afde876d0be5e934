package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/matsen/citegraph/internal/edge"
)

// Neo4jConfig holds connection settings for a Neo4j destination.
type Neo4jConfig struct {
	URI                   string
	Username              string
	Password              string
	Database              string
	MaxConnectionPoolSize int
	ConnectionTimeout     time.Duration
}

// Neo4j writes the graph to a Neo4j server through a single shared session.
// Every write call runs in its own explicit transaction and is attempted
// exactly once; retrying is the caller's job.
type Neo4j struct {
	driver   neo4j.DriverWithContext
	database string

	mu      sync.Mutex
	session neo4j.SessionWithContext
}

// OpenNeo4j creates a driver. It does not contact the server; use Ping or
// WaitReady for that.
func OpenNeo4j(cfg Neo4jConfig) (*Neo4j, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("neo4j: uri required")
	}
	auth := neo4j.BasicAuth(cfg.Username, cfg.Password, "")
	driver, err := neo4j.NewDriverWithContext(cfg.URI, auth, func(c *neo4j.Config) {
		if cfg.MaxConnectionPoolSize > 0 {
			c.MaxConnectionPoolSize = cfg.MaxConnectionPoolSize
		}
		if cfg.ConnectionTimeout > 0 {
			c.SocketConnectTimeout = cfg.ConnectionTimeout
		}
	})
	if err != nil {
		return nil, fmt.Errorf("neo4j: init driver: %w", err)
	}
	return &Neo4j{driver: driver, database: cfg.Database}, nil
}

func (s *Neo4j) Ping(ctx context.Context) error {
	return s.driver.VerifyConnectivity(ctx)
}

func (s *Neo4j) sess(ctx context.Context) neo4j.SessionWithContext {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		s.session = s.driver.NewSession(ctx, neo4j.SessionConfig{
			AccessMode:   neo4j.AccessModeWrite,
			DatabaseName: s.database,
		})
	}
	return s.session
}

// EnsureSchema creates uniqueness constraints on the id property.
func (s *Neo4j) EnsureSchema(ctx context.Context) error {
	for _, stmt := range constraintStatements() {
		if err := s.autoCommit(ctx, stmt, nil); err != nil {
			return fmt.Errorf("creating constraint: %w", err)
		}
	}
	return nil
}

// Reset deletes every node and relationship in batched inner transactions.
func (s *Neo4j) Reset(ctx context.Context) error {
	if err := s.autoCommit(ctx, resetStatement, nil); err != nil {
		return fmt.Errorf("resetting graph: %w", err)
	}
	return nil
}

func (s *Neo4j) UpsertNodes(ctx context.Context, label edge.Label, nodes []Node) error {
	if err := validateLabel(label); err != nil {
		return err
	}
	if len(nodes) == 0 {
		return nil
	}
	cypher := upsertNodesStatement(label, propertyKeys(nodes))
	return s.write(ctx, cypher, map[string]any{"rows": nodeRows(nodes)})
}

func (s *Neo4j) EnsureEdges(ctx context.Context, kind edge.Kind, edges []edge.Edge) error {
	if err := validateEdges(kind, edges); err != nil {
		return err
	}
	if len(edges) == 0 {
		return nil
	}
	return s.write(ctx, ensureEdgesStatement(kind), map[string]any{"rows": edgeRows(edges)})
}

func (s *Neo4j) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	queries := []struct {
		dst   *int64
		query string
	}{
		{&c.Articles, fmt.Sprintf("MATCH (n:%s) RETURN count(n)", edge.LabelArticle)},
		{&c.Placeholders, fmt.Sprintf("MATCH (n:%s) WHERE n.title IS NULL RETURN count(n)", edge.LabelArticle)},
		{&c.Authors, fmt.Sprintf("MATCH (n:%s) RETURN count(n)", edge.LabelAuthor)},
		{&c.Authored, fmt.Sprintf("MATCH ()-[r:%s]->() RETURN count(r)", edge.Authored)},
		{&c.Cites, fmt.Sprintf("MATCH ()-[r:%s]->() RETURN count(r)", edge.Cites)},
	}
	for _, q := range queries {
		v, err := s.single(ctx, q.query, nil)
		if err != nil {
			return Counts{}, fmt.Errorf("counting: %w", err)
		}
		n, ok := v.(int64)
		if !ok {
			return Counts{}, fmt.Errorf("counting: unexpected result type %T", v)
		}
		*q.dst = n
	}
	return c, nil
}

func (s *Neo4j) Node(ctx context.Context, label edge.Label, id string) (map[string]any, bool, error) {
	if err := validateLabel(label); err != nil {
		return nil, false, err
	}
	cypher := fmt.Sprintf("MATCH (n:%s {%s: $id}) RETURN properties(n)", label, IDProperty)
	v, err := s.single(ctx, cypher, map[string]any{"id": id})
	if errors.Is(err, errNoRecord) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	props, ok := v.(map[string]any)
	if !ok {
		return nil, false, fmt.Errorf("reading %s %s: unexpected result type %T", label, id, v)
	}
	delete(props, IDProperty)
	return props, true, nil
}

func (s *Neo4j) HasEdge(ctx context.Context, kind edge.Kind, e edge.Edge) (bool, error) {
	if err := kind.Validate(); err != nil {
		return false, err
	}
	cypher := fmt.Sprintf("MATCH (:%s {%s: $source})-[r:%s]->(:%s {%s: $target}) RETURN count(r)",
		kind.SourceLabel(), IDProperty, kind, kind.TargetLabel(), IDProperty)
	v, err := s.single(ctx, cypher, map[string]any{"source": e.SourceID, "target": e.TargetID})
	if err != nil {
		return false, err
	}
	n, _ := v.(int64)
	return n > 0, nil
}

// Close releases the session and the driver.
func (s *Neo4j) Close(ctx context.Context) error {
	s.mu.Lock()
	session := s.session
	s.session = nil
	s.mu.Unlock()

	var errs []error
	if session != nil {
		errs = append(errs, session.Close(ctx))
	}
	errs = append(errs, s.driver.Close(ctx))
	return errors.Join(errs...)
}

// write runs one statement in one explicit transaction.
func (s *Neo4j) write(ctx context.Context, cypher string, params map[string]any) error {
	tx, err := s.sess(ctx).BeginTransaction(ctx)
	if err != nil {
		return classify(err)
	}
	defer tx.Close(ctx)

	result, err := tx.Run(ctx, cypher, params)
	if err != nil {
		_ = tx.Rollback(ctx)
		return classify(err)
	}
	if _, err := result.Consume(ctx); err != nil {
		_ = tx.Rollback(ctx)
		return classify(err)
	}
	return classify(tx.Commit(ctx))
}

// autoCommit runs a statement outside an explicit transaction. Required for
// schema commands and CALL { } IN TRANSACTIONS.
func (s *Neo4j) autoCommit(ctx context.Context, cypher string, params map[string]any) error {
	result, err := s.sess(ctx).Run(ctx, cypher, params)
	if err != nil {
		return classify(err)
	}
	_, err = result.Consume(ctx)
	return classify(err)
}

var errNoRecord = errors.New("no record")

// single returns the first column of the single result row.
func (s *Neo4j) single(ctx context.Context, cypher string, params map[string]any) (any, error) {
	result, err := s.sess(ctx).Run(ctx, cypher, params)
	if err != nil {
		return nil, classify(err)
	}
	if !result.Next(ctx) {
		if err := result.Err(); err != nil {
			return nil, classify(err)
		}
		return nil, errNoRecord
	}
	values := result.Record().Values
	if _, err := result.Consume(ctx); err != nil {
		return nil, classify(err)
	}
	if len(values) == 0 {
		return nil, errNoRecord
	}
	return values[0], nil
}

// classify marks client errors (bad syntax, constraint violations, auth)
// as permanent. Transient and connectivity errors stay retryable.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var neoErr *neo4j.Neo4jError
	if errors.As(err, &neoErr) && neoErr.Classification() == "ClientError" {
		return fmt.Errorf("%w: %v", ErrPermanent, err)
	}
	return err
}

const resetStatement = "MATCH (n) CALL { WITH n DETACH DELETE n } IN TRANSACTIONS OF 10000 ROWS"

func constraintStatements() []string {
	stmts := make([]string, 0, 2)
	for _, label := range []edge.Label{edge.LabelArticle, edge.LabelAuthor} {
		name := strings.ToLower(string(label)) + "_id"
		stmts = append(stmts, fmt.Sprintf(
			"CREATE CONSTRAINT %s IF NOT EXISTS FOR (n:%s) REQUIRE n.%s IS UNIQUE",
			name, label, IDProperty))
	}
	return stmts
}

// upsertNodesStatement builds the MERGE statement for a node batch. Each
// key is set to the row's value, else the stored value, else the row's
// default.
func upsertNodesStatement(label edge.Label, keys []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "UNWIND $rows AS row\nMERGE (n:%s {%s: row.id})", label, IDProperty)
	for i, k := range keys {
		if i == 0 {
			b.WriteString("\nSET ")
		} else {
			b.WriteString(",\n    ")
		}
		q := quoteIdent(k)
		fmt.Fprintf(&b, "n.%s = coalesce(row.props.%s, n.%s, row.defaults.%s)", q, q, q, q)
	}
	return b.String()
}

func ensureEdgesStatement(kind edge.Kind) string {
	return fmt.Sprintf("UNWIND $rows AS row\n"+
		"MERGE (s:%s {%s: row.source})\n"+
		"MERGE (t:%s {%s: row.target})\n"+
		"MERGE (s)-[:%s]->(t)",
		kind.SourceLabel(), IDProperty, kind.TargetLabel(), IDProperty, kind)
}

func nodeRows(nodes []Node) []any {
	rows := make([]any, len(nodes))
	for i, n := range nodes {
		props := map[string]any{}
		for k, v := range n.Props {
			if v != nil {
				props[k] = v
			}
		}
		defaults := map[string]any{}
		for k, v := range n.Defaults {
			if v != nil {
				defaults[k] = v
			}
		}
		rows[i] = map[string]any{"id": n.ID, "props": props, "defaults": defaults}
	}
	return rows
}

func edgeRows(edges []edge.Edge) []any {
	rows := make([]any, len(edges))
	for i, e := range edges {
		rows[i] = map[string]any{"source": e.SourceID, "target": e.TargetID}
	}
	return rows
}

func quoteIdent(s string) string {
	return "`" + strings.ReplaceAll(s, "`", "``") + "`"
}
