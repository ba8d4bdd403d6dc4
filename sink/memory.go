package sink

import (
	"context"
	"sort"
	"sync"

	"github.com/brunobiangulo/docgraph/cypher"
)

// Memory is an in-process graph that applies statements with the same merge
// semantics as a real store. It is used for dry runs and tests.
type Memory struct {
	mu      sync.Mutex
	nodes   map[cypher.NodeKey]struct{}
	edges   map[cypher.EdgeKey]struct{}
	batches int
	closed  bool
}

// NewMemory returns an empty in-memory graph.
func NewMemory() *Memory {
	return &Memory{
		nodes: make(map[cypher.NodeKey]struct{}),
		edges: make(map[cypher.EdgeKey]struct{}),
	}
}

// ApplyBatch merges every statement into the graph.
func (m *Memory) ApplyBatch(ctx context.Context, stmts []cypher.Statement) (Counts, error) {
	if err := ctx.Err(); err != nil {
		return Counts{}, ErrUnavailable
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return Counts{}, ErrUnavailable
	}
	m.batches++

	var c Counts
	for _, s := range stmts {
		for _, k := range []cypher.NodeKey{s.Subject, s.Object} {
			if _, ok := m.nodes[k]; !ok {
				m.nodes[k] = struct{}{}
				c.NodesCreated++
			}
		}
		if _, ok := m.edges[s.Edge()]; !ok {
			m.edges[s.Edge()] = struct{}{}
			c.EdgesCreated++
		}
	}
	return c, nil
}

// Close marks the graph closed; later batches fail with ErrUnavailable.
func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// NodeCount returns the number of distinct nodes.
func (m *Memory) NodeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.nodes)
}

// EdgeCount returns the number of distinct edges.
func (m *Memory) EdgeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.edges)
}

// Batches returns how many batches were applied.
func (m *Memory) Batches() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.batches
}

// Nodes returns all nodes sorted by label then name.
func (m *Memory) Nodes() []cypher.NodeKey {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]cypher.NodeKey, 0, len(m.nodes))
	for k := range m.nodes {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Label != out[j].Label {
			return out[i].Label < out[j].Label
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// HasEdge reports whether the edge exists.
func (m *Memory) HasEdge(e cypher.EdgeKey) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.edges[e]
	return ok
}
