package store

import (
	"context"
	"fmt"
	"sort"
)

// Subgraph is the part of the graph reached by a traversal.
type Subgraph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Neighborhood returns every node within maxDepth hops of the node
// (label, name), following edges in both directions, plus the edges between
// the returned nodes. Nodes are ordered by label and name, edges by id.
// A missing seed node yields sql.ErrNoRows.
func (s *Store) Neighborhood(ctx context.Context, label, name string, maxDepth int) (*Subgraph, error) {
	seed, err := s.GetNode(ctx, label, name)
	if err != nil {
		return nil, fmt.Errorf("store.Neighborhood: looking up %s %q: %w", label, name, err)
	}
	if maxDepth < 0 {
		maxDepth = 0
	}

	// The graph is small enough to walk in memory.
	edges, err := s.AllEdges(ctx)
	if err != nil {
		return nil, fmt.Errorf("store.Neighborhood: loading edges: %w", err)
	}
	neighbours := make(map[int64][]Node)
	for _, e := range edges {
		neighbours[e.Source.ID] = append(neighbours[e.Source.ID], e.Target)
		neighbours[e.Target.ID] = append(neighbours[e.Target.ID], e.Source)
	}

	visited := map[int64]Node{seed.ID: *seed}
	queue := []int64{seed.ID}
	for depth := 0; depth < maxDepth && len(queue) > 0; depth++ {
		var next []int64
		for _, id := range queue {
			for _, n := range neighbours[id] {
				if _, ok := visited[n.ID]; !ok {
					visited[n.ID] = n
					next = append(next, n.ID)
				}
			}
		}
		queue = next
	}

	sub := &Subgraph{Nodes: make([]Node, 0, len(visited))}
	for _, n := range visited {
		sub.Nodes = append(sub.Nodes, n)
	}
	sort.Slice(sub.Nodes, func(i, j int) bool {
		if sub.Nodes[i].Label != sub.Nodes[j].Label {
			return sub.Nodes[i].Label < sub.Nodes[j].Label
		}
		return sub.Nodes[i].Name < sub.Nodes[j].Name
	})
	for _, e := range edges {
		_, src := visited[e.Source.ID]
		_, dst := visited[e.Target.ID]
		if src && dst {
			sub.Edges = append(sub.Edges, e)
		}
	}
	return sub, nil
}
