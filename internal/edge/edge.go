// Package edge defines the relationship kinds of the citation graph.
package edge

import (
	"errors"
	"fmt"
	"sort"
)

// Kind is a relationship type in the destination graph.
type Kind string

const (
	// Authored links an Author to an Article it wrote.
	Authored Kind = "AUTHORED"
	// Cites links a citing Article to a cited Article.
	Cites Kind = "CITES"
)

// Label is a node label in the destination graph.
type Label string

// Node labels used as edge endpoints.
const (
	LabelArticle Label = "Article"
	LabelAuthor  Label = "Author"
)

// Kinds lists every relationship kind in load order.
var Kinds = []Kind{Authored, Cites}

// SourceLabel returns the label of the node the edge starts at.
func (k Kind) SourceLabel() Label {
	if k == Authored {
		return LabelAuthor
	}
	return LabelArticle
}

// TargetLabel returns the label of the node the edge points to.
func (k Kind) TargetLabel() Label {
	return LabelArticle
}

// Validate checks that k is a known kind.
func (k Kind) Validate() error {
	switch k {
	case Authored, Cites:
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnknownKind, string(k))
}

// Edge represents a directed relationship between two nodes.
type Edge struct {
	// Identity: (SourceID, TargetID) within a kind
	SourceID string `json:"source_id"`
	TargetID string `json:"target_id"`
}

// Validation errors.
var (
	ErrEmptySourceID = errors.New("source_id is required")
	ErrEmptyTargetID = errors.New("target_id is required")
	ErrUnknownKind   = errors.New("unknown relationship kind")
)

// Validate returns an error if either endpoint is missing.
// Self edges are allowed: an article may cite itself in the corpus.
func (e Edge) Validate() error {
	if e.SourceID == "" {
		return ErrEmptySourceID
	}
	if e.TargetID == "" {
		return ErrEmptyTargetID
	}
	return nil
}

// Key returns the unique identity of this edge within kind.
func (e Edge) Key(kind Kind) Key {
	return Key{Kind: kind, SourceID: e.SourceID, TargetID: e.TargetID}
}

// Key represents the unique identity of an edge.
type Key struct {
	Kind     Kind
	SourceID string
	TargetID string
}

// Edge returns the endpoints of the key.
func (k Key) Edge() Edge {
	return Edge{SourceID: k.SourceID, TargetID: k.TargetID}
}

// Set is a deduplicating collection of edges of a single kind.
type Set struct {
	kind  Kind
	edges map[Key]struct{}
}

// NewSet creates an empty edge set for kind.
func NewSet(kind Kind) *Set {
	return &Set{kind: kind, edges: make(map[Key]struct{})}
}

// Add inserts e and reports whether it was new.
func (s *Set) Add(e Edge) bool {
	k := e.Key(s.kind)
	if _, ok := s.edges[k]; ok {
		return false
	}
	s.edges[k] = struct{}{}
	return true
}

// Has reports whether e is in the set.
func (s *Set) Has(e Edge) bool {
	_, ok := s.edges[e.Key(s.kind)]
	return ok
}

// Len returns the number of distinct edges.
func (s *Set) Len() int {
	return len(s.edges)
}

// Sorted returns the edges ordered by source then target.
func (s *Set) Sorted() []Edge {
	out := make([]Edge, 0, len(s.edges))
	for k := range s.edges {
		out = append(out, k.Edge())
	}
	Sort(out)
	return out
}

// Sort orders edges by source then target id.
func Sort(edges []Edge) {
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].SourceID != edges[j].SourceID {
			return edges[i].SourceID < edges[j].SourceID
		}
		return edges[i].TargetID < edges[j].TargetID
	})
}

// OrphanedEdgeInfo contains information about an edge with missing endpoints.
type OrphanedEdgeInfo struct {
	SourceID string `json:"source_id"`
	TargetID string `json:"target_id"`
	Kind     Kind   `json:"kind"`
	Reason   string `json:"reason"` // "missing_source", "missing_target", or "missing_both"
}

// DetectOrphanedEdges finds edges whose endpoints are not in the known ID
// set. In this graph orphans are legal (they become placeholders); the
// check is used to report forward references.
func DetectOrphanedEdges(kind Kind, edges []Edge, knownIDs map[string]bool) (orphaned []OrphanedEdgeInfo, resolved []Edge) {
	for _, e := range edges {
		sourceOK := knownIDs[e.SourceID]
		targetOK := knownIDs[e.TargetID]

		if sourceOK && targetOK {
			resolved = append(resolved, e)
			continue
		}
		info := OrphanedEdgeInfo{SourceID: e.SourceID, TargetID: e.TargetID, Kind: kind}
		switch {
		case !sourceOK && !targetOK:
			info.Reason = "missing_both"
		case !sourceOK:
			info.Reason = "missing_source"
		default:
			info.Reason = "missing_target"
		}
		orphaned = append(orphaned, info)
	}
	return orphaned, resolved
}
