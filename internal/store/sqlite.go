package store

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/matsen/citegraph/internal/edge"
	_ "modernc.org/sqlite"
)

// SQLite stores the graph in a local SQLite file as a node table and an
// edge table. Node properties are kept as a JSON object per row.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens or creates a SQLite graph at the given path.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// SQLite doesn't support concurrent writes
	db.SetMaxOpenConns(1)

	return &SQLite{db: db}, nil
}

func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// EnsureSchema creates the graph tables if they don't exist.
func (s *SQLite) EnsureSchema(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS nodes (
			label TEXT NOT NULL,
			id TEXT NOT NULL,
			props TEXT NOT NULL DEFAULT '{}',
			PRIMARY KEY (label, id)
		);

		CREATE TABLE IF NOT EXISTS edges (
			kind TEXT NOT NULL,
			source_id TEXT NOT NULL,
			target_id TEXT NOT NULL,
			PRIMARY KEY (kind, source_id, target_id)
		);

		CREATE INDEX IF NOT EXISTS idx_edges_target ON edges(kind, target_id);

		CREATE TABLE IF NOT EXISTS _meta (
			key TEXT PRIMARY KEY,
			value TEXT
		);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

func (s *SQLite) Reset(ctx context.Context) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM edges"); err != nil {
			return fmt.Errorf("clearing edges table: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM nodes"); err != nil {
			return fmt.Errorf("clearing nodes table: %w", err)
		}
		return nil
	})
}

// UpsertNodes applies all nodes in one transaction.
func (s *SQLite) UpsertNodes(ctx context.Context, label edge.Label, nodes []Node) error {
	if err := validateLabel(label); err != nil {
		return err
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		selectStmt, err := tx.PrepareContext(ctx, `SELECT props FROM nodes WHERE label = ? AND id = ?`)
		if err != nil {
			return fmt.Errorf("preparing node select: %w", err)
		}
		defer selectStmt.Close()

		upsertStmt, err := tx.PrepareContext(ctx, `
			INSERT INTO nodes (label, id, props) VALUES (?, ?, ?)
			ON CONFLICT (label, id) DO UPDATE SET props = excluded.props
		`)
		if err != nil {
			return fmt.Errorf("preparing node upsert: %w", err)
		}
		defer upsertStmt.Close()

		for _, n := range nodes {
			var raw string
			var existing map[string]any
			switch err := selectStmt.QueryRowContext(ctx, string(label), n.ID).Scan(&raw); err {
			case nil:
				if existing, err = decodeProps(raw); err != nil {
					return fmt.Errorf("decoding %s %s: %w", label, n.ID, err)
				}
			case sql.ErrNoRows:
			default:
				return fmt.Errorf("reading %s %s: %w", label, n.ID, err)
			}

			props, err := json.Marshal(mergeProps(existing, n))
			if err != nil {
				return fmt.Errorf("%w: encoding %s %s: %v", ErrPermanent, label, n.ID, err)
			}
			if _, err := upsertStmt.ExecContext(ctx, string(label), n.ID, string(props)); err != nil {
				return fmt.Errorf("upserting %s %s: %w", label, n.ID, err)
			}
		}
		return nil
	})
}

// EnsureEdges inserts placeholders and edges in one transaction.
func (s *SQLite) EnsureEdges(ctx context.Context, kind edge.Kind, edges []edge.Edge) error {
	if err := validateEdges(kind, edges); err != nil {
		return err
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		nodeStmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO nodes (label, id, props) VALUES (?, ?, '{}')`)
		if err != nil {
			return fmt.Errorf("preparing placeholder insert: %w", err)
		}
		defer nodeStmt.Close()

		edgeStmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO edges (kind, source_id, target_id) VALUES (?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("preparing edge insert: %w", err)
		}
		defer edgeStmt.Close()

		for _, e := range edges {
			if _, err := nodeStmt.ExecContext(ctx, string(kind.SourceLabel()), e.SourceID); err != nil {
				return fmt.Errorf("inserting placeholder %s: %w", e.SourceID, err)
			}
			if _, err := nodeStmt.ExecContext(ctx, string(kind.TargetLabel()), e.TargetID); err != nil {
				return fmt.Errorf("inserting placeholder %s: %w", e.TargetID, err)
			}
			if _, err := edgeStmt.ExecContext(ctx, string(kind), e.SourceID, e.TargetID); err != nil {
				return fmt.Errorf("inserting %s edge: %w", kind, err)
			}
		}
		return nil
	})
}

func (s *SQLite) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	queries := []struct {
		dst   *int64
		query string
		args  []any
	}{
		{&c.Articles, `SELECT COUNT(*) FROM nodes WHERE label = ?`, []any{string(edge.LabelArticle)}},
		{&c.Placeholders, `SELECT COUNT(*) FROM nodes WHERE label = ? AND json_extract(props, '$.title') IS NULL`, []any{string(edge.LabelArticle)}},
		{&c.Authors, `SELECT COUNT(*) FROM nodes WHERE label = ?`, []any{string(edge.LabelAuthor)}},
		{&c.Authored, `SELECT COUNT(*) FROM edges WHERE kind = ?`, []any{string(edge.Authored)}},
		{&c.Cites, `SELECT COUNT(*) FROM edges WHERE kind = ?`, []any{string(edge.Cites)}},
	}
	for _, q := range queries {
		if err := s.db.QueryRowContext(ctx, q.query, q.args...).Scan(q.dst); err != nil {
			return Counts{}, fmt.Errorf("counting: %w", err)
		}
	}
	return c, nil
}

func (s *SQLite) Node(ctx context.Context, label edge.Label, id string) (map[string]any, bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT props FROM nodes WHERE label = ? AND id = ?`, string(label), id).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading %s %s: %w", label, id, err)
	}
	props, err := decodeProps(raw)
	if err != nil {
		return nil, false, err
	}
	return props, true, nil
}

func (s *SQLite) HasEdge(ctx context.Context, kind edge.Kind, e edge.Edge) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM edges WHERE kind = ? AND source_id = ? AND target_id = ?`,
		string(kind), e.SourceID, e.TargetID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("querying edge: %w", err)
	}
	return n > 0, nil
}

// SetMeta records a key/value pair in the _meta table.
func (s *SQLite) SetMeta(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `INSERT OR REPLACE INTO _meta (key, value) VALUES (?, ?)`, key, value)
	return err
}

// GetMeta returns a value from the _meta table, "" if unset.
func (s *SQLite) GetMeta(ctx context.Context, key string) (string, error) {
	var value sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT value FROM _meta WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return value.String, nil
}

// Close closes the database connection.
func (s *SQLite) Close(ctx context.Context) error {
	return s.db.Close()
}

func (s *SQLite) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// decodeProps decodes a stored property object. Integral numbers come back
// as int64 to match what ArticleNode writes.
func decodeProps(raw string) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	var props map[string]any
	if err := dec.Decode(&props); err != nil {
		return nil, err
	}
	for k, v := range props {
		if n, ok := v.(json.Number); ok {
			if i, err := n.Int64(); err == nil {
				props[k] = i
			} else if f, err := n.Float64(); err == nil {
				props[k] = f
			}
		}
	}
	if props == nil {
		props = map[string]any{}
	}
	return props, nil
}
