package store

import (
	"context"
	"sync"

	"github.com/matsen/citegraph/internal/edge"
)

// Memory is an in-process graph. It backs dry runs and tests.
type Memory struct {
	mu    sync.Mutex
	nodes map[edge.Label]map[string]map[string]any
	edges map[edge.Key]struct{}
	calls map[string]int
}

// NewMemory creates an empty in-memory graph.
func NewMemory() *Memory {
	m := &Memory{calls: make(map[string]int)}
	m.clear()
	return m
}

func (m *Memory) clear() {
	m.nodes = map[edge.Label]map[string]map[string]any{
		edge.LabelArticle: {},
		edge.LabelAuthor:  {},
	}
	m.edges = make(map[edge.Key]struct{})
}

func (m *Memory) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (m *Memory) EnsureSchema(ctx context.Context) error {
	return ctx.Err()
}

func (m *Memory) Reset(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clear()
	return ctx.Err()
}

func (m *Memory) UpsertNodes(ctx context.Context, label edge.Label, nodes []Node) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateLabel(label); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["UpsertNodes:"+string(label)]++

	table := m.nodes[label]
	for _, n := range nodes {
		table[n.ID] = mergeProps(table[n.ID], n)
	}
	return nil
}

func (m *Memory) EnsureEdges(ctx context.Context, kind edge.Kind, edges []edge.Edge) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateEdges(kind, edges); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["EnsureEdges:"+string(kind)]++

	sources := m.nodes[kind.SourceLabel()]
	targets := m.nodes[kind.TargetLabel()]
	for _, e := range edges {
		if _, ok := sources[e.SourceID]; !ok {
			sources[e.SourceID] = map[string]any{}
		}
		if _, ok := targets[e.TargetID]; !ok {
			targets[e.TargetID] = map[string]any{}
		}
		m.edges[e.Key(kind)] = struct{}{}
	}
	return nil
}

func (m *Memory) Counts(ctx context.Context) (Counts, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var c Counts
	for _, props := range m.nodes[edge.LabelArticle] {
		c.Articles++
		if _, ok := props["title"]; !ok {
			c.Placeholders++
		}
	}
	c.Authors = int64(len(m.nodes[edge.LabelAuthor]))
	for k := range m.edges {
		switch k.Kind {
		case edge.Authored:
			c.Authored++
		case edge.Cites:
			c.Cites++
		}
	}
	return c, ctx.Err()
}

func (m *Memory) Node(ctx context.Context, label edge.Label, id string) (map[string]any, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	props, ok := m.nodes[label][id]
	if !ok {
		return nil, false, ctx.Err()
	}
	out := make(map[string]any, len(props))
	for k, v := range props {
		out[k] = v
	}
	return out, true, ctx.Err()
}

func (m *Memory) HasEdge(ctx context.Context, kind edge.Kind, e edge.Edge) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.edges[e.Key(kind)]
	return ok, ctx.Err()
}

// Calls returns how many times each write primitive was invoked, keyed by
// "UpsertNodes:<label>" and "EnsureEdges:<kind>".
func (m *Memory) Calls() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int, len(m.calls))
	for k, v := range m.calls {
		out[k] = v
	}
	return out
}

func (m *Memory) Close(ctx context.Context) error {
	return nil
}

// Edges returns every edge of kind, sorted.
func (m *Memory) Edges(kind edge.Kind) []edge.Edge {
	m.mu.Lock()
	defer m.mu.Unlock()
	var edges []edge.Edge
	for k := range m.edges {
		if k.Kind == kind {
			edges = append(edges, k.Edge())
		}
	}
	edge.Sort(edges)
	return edges
}

// TitledArticles returns the ids of articles that came from a primary
// record, i.e. every article that is not a placeholder.
func (m *Memory) TitledArticles() map[string]bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make(map[string]bool, len(m.nodes[edge.LabelArticle]))
	for id, props := range m.nodes[edge.LabelArticle] {
		if _, ok := props["title"]; ok {
			ids[id] = true
		}
	}
	return ids
}
