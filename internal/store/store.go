// Package store defines the destination graph interface and its backends.
//
// A Store exposes two idempotent upsert primitives: create-or-update nodes of
// one label, and ensure directed edges of one kind exist, creating missing
// endpoints as bare placeholders. Each call is applied atomically, so a
// failed call can be repeated with the same payload.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/matsen/citegraph/internal/edge"
	"github.com/matsen/citegraph/internal/reference"
)

// IDProperty is the node property holding the corpus identifier.
const IDProperty = "_id"

// Errors returned by backends.
var (
	// ErrPermanent marks a failure that repeating the call cannot fix.
	ErrPermanent = errors.New("permanent store failure")

	// ErrUnknownBackend indicates an unsupported backend kind.
	ErrUnknownBackend = errors.New("unknown store backend")
)

// Store is the destination graph.
type Store interface {
	Pinger

	// EnsureSchema creates uniqueness constraints or tables if missing.
	EnsureSchema(ctx context.Context) error

	// Reset deletes every node and edge.
	Reset(ctx context.Context) error

	// UpsertNodes creates nodes absent by id and updates present ones.
	// See Node for the property rules.
	UpsertNodes(ctx context.Context, label edge.Label, nodes []Node) error

	// EnsureEdges makes sure exactly one edge of kind exists per pair,
	// creating id-only placeholder endpoints where needed.
	EnsureEdges(ctx context.Context, kind edge.Kind, edges []edge.Edge) error

	// Counts reports graph cardinalities.
	Counts(ctx context.Context) (Counts, error)

	Close(ctx context.Context) error
}

// Pinger checks that the destination accepts connections.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Inspector is implemented by backends that can read single entities back.
type Inspector interface {
	// Node returns the properties of a node, without the id property.
	Node(ctx context.Context, label edge.Label, id string) (map[string]any, bool, error)
	// HasEdge reports whether an edge exists.
	HasEdge(ctx context.Context, kind edge.Kind, e edge.Edge) (bool, error)
}

// MetaStore is implemented by backends that keep run bookkeeping next to
// the graph.
type MetaStore interface {
	SetMeta(ctx context.Context, key, value string) error
	GetMeta(ctx context.Context, key string) (string, error)
}

// Bookkeeping keys written after each successful load.
const (
	MetaLastRunID       = "last_run_id"
	MetaLastRunFinished = "last_run_finished"

	// MetaLastReplaySHA256 is the fingerprint of the last staging file
	// replayed into the store.
	MetaLastReplaySHA256 = "last_replay_sha256"
)

// Node is one node to upsert.
//
// A property present in Props overwrites the stored value; Props never
// carries blank values, so an existing title or year is never cleared.
// A property in Defaults is written only when the node has no value for it.
type Node struct {
	ID       string
	Props    map[string]any
	Defaults map[string]any
}

// Counts are graph cardinalities.
type Counts struct {
	Articles     int64 `json:"articles"`
	Placeholders int64 `json:"placeholders"` // Articles without a title property
	Authors      int64 `json:"authors"`
	Authored     int64 `json:"authored"`
	Cites        int64 `json:"cites"`
}

// Nodes returns the total number of nodes.
func (c Counts) Nodes() int64 {
	return c.Articles + c.Authors
}

// Edges returns the total number of edges.
func (c Counts) Edges() int64 {
	return c.Authored + c.Cites
}

// ArticleNode converts an article to its node form. The title sentinel is a
// default, never an overwrite.
func ArticleNode(a reference.Article) Node {
	n := Node{ID: a.ID, Props: map[string]any{}}
	switch a.Title {
	case "":
	case reference.UnknownTitle:
		n.Defaults = map[string]any{"title": reference.UnknownTitle}
	default:
		n.Props["title"] = a.Title
	}
	if a.Year != nil {
		n.Props["year"] = int64(*a.Year)
	}
	return n
}

// AuthorNode converts an author to its node form.
func AuthorNode(a reference.Author) Node {
	n := Node{ID: a.ID, Props: map[string]any{}}
	if a.HasName() {
		n.Props["name"] = a.Name
	} else {
		n.Defaults = map[string]any{"name": reference.UnknownName}
	}
	return n
}

// ArticleNodes converts a slice of articles.
func ArticleNodes(articles []reference.Article) []Node {
	nodes := make([]Node, len(articles))
	for i, a := range articles {
		nodes[i] = ArticleNode(a)
	}
	return nodes
}

// AuthorNodes converts a slice of authors.
func AuthorNodes(authors []reference.Author) []Node {
	nodes := make([]Node, len(authors))
	for i, a := range authors {
		nodes[i] = AuthorNode(a)
	}
	return nodes
}

// mergeProps applies the Node property rules to existing and returns the
// updated map. existing may be nil.
func mergeProps(existing map[string]any, n Node) map[string]any {
	out := make(map[string]any, len(existing)+len(n.Props)+len(n.Defaults))
	for k, v := range existing {
		out[k] = v
	}
	for k, v := range n.Props {
		if v == nil {
			continue
		}
		out[k] = v
	}
	for k, v := range n.Defaults {
		if _, ok := out[k]; !ok && v != nil {
			out[k] = v
		}
	}
	return out
}

// propertyKeys returns the sorted union of property names used by nodes.
func propertyKeys(nodes []Node) []string {
	set := map[string]struct{}{}
	for _, n := range nodes {
		for k := range n.Props {
			set[k] = struct{}{}
		}
		for k := range n.Defaults {
			set[k] = struct{}{}
		}
	}
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func validateLabel(label edge.Label) error {
	switch label {
	case edge.LabelArticle, edge.LabelAuthor:
		return nil
	}
	return fmt.Errorf("%w: unknown label %q", ErrPermanent, string(label))
}

func validateEdges(kind edge.Kind, edges []edge.Edge) error {
	if err := kind.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrPermanent, err)
	}
	for _, e := range edges {
		if err := e.Validate(); err != nil {
			return fmt.Errorf("%w: %s edge %s->%s: %v", ErrPermanent, kind, e.SourceID, e.TargetID, err)
		}
	}
	return nil
}

// IsPermanent reports whether err should not be retried.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrPermanent) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
