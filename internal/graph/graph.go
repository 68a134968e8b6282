// Package graph maintains the in-memory dependency graph: a directed
// multigraph of symbols with typed edges, bounded traversals, and
// community detection. The graph is a transient view derived from the
// persisted dependency rows and is rebuilt on startup.
package graph

import (
	"fmt"
	"sort"
	"sync"

	dgraph "github.com/dominikbraun/graph"

	"github.com/locus-dev/locus/internal/store"
)

// pairKey identifies a directed node pair.
type pairKey struct {
	source, target string
}

// Graph is the typed directed multigraph. A dominikbraun graph carries the
// single-edge topology for traversal; edge kinds per pair live alongside,
// preserving multigraph semantics.
type Graph struct {
	mu sync.RWMutex

	g     dgraph.Graph[string, string]
	kinds map[pairKey]map[store.EdgeKind]bool
	nodes map[string]bool

	// insertion order of distinct edges, for faithful hydration dumps
	order []store.DependencyEdge
}

// New creates an empty dependency graph.
func New() *Graph {
	return &Graph{
		g:     dgraph.New(dgraph.StringHash, dgraph.Directed()),
		kinds: make(map[pairKey]map[store.EdgeKind]bool),
		nodes: make(map[string]bool),
	}
}

// AddSymbol registers a node.
func (gr *Graph) AddSymbol(id string) {
	gr.mu.Lock()
	defer gr.mu.Unlock()
	gr.addNodeLocked(id)
}

func (gr *Graph) addNodeLocked(id string) {
	if gr.nodes[id] {
		return
	}
	gr.nodes[id] = true
	_ = gr.g.AddVertex(id)
}

// AddEdge inserts a typed edge, registering both endpoints. Duplicate
// (source, target, kind) triples are ignored.
func (gr *Graph) AddEdge(e store.DependencyEdge) {
	gr.mu.Lock()
	defer gr.mu.Unlock()

	gr.addNodeLocked(e.SourceID)
	gr.addNodeLocked(e.TargetID)

	key := pairKey{e.SourceID, e.TargetID}
	if gr.kinds[key] == nil {
		gr.kinds[key] = make(map[store.EdgeKind]bool)
		_ = gr.g.AddEdge(e.SourceID, e.TargetID)
	}
	if gr.kinds[key][e.Kind] {
		return
	}
	gr.kinds[key][e.Kind] = true
	gr.order = append(gr.order, e)
}

// RemoveSymbols drops nodes and every edge touching them.
func (gr *Graph) RemoveSymbols(ids []string) {
	gr.mu.Lock()
	defer gr.mu.Unlock()

	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}

	for key := range gr.kinds {
		if drop[key.source] || drop[key.target] {
			_ = gr.g.RemoveEdge(key.source, key.target)
			delete(gr.kinds, key)
		}
	}

	kept := gr.order[:0]
	for _, e := range gr.order {
		if !drop[e.SourceID] && !drop[e.TargetID] {
			kept = append(kept, e)
		}
	}
	gr.order = kept

	for _, id := range ids {
		if gr.nodes[id] {
			delete(gr.nodes, id)
			_ = gr.g.RemoveVertex(id)
		}
	}
}

// Hydrate rebuilds the graph from persisted edges, in insertion order.
// Nodes are added for both endpoints of every edge.
func (gr *Graph) Hydrate(edges []store.DependencyEdge) {
	gr.mu.Lock()
	gr.g = dgraph.New(dgraph.StringHash, dgraph.Directed())
	gr.kinds = make(map[pairKey]map[store.EdgeKind]bool)
	gr.nodes = make(map[string]bool)
	gr.order = nil
	gr.mu.Unlock()

	for _, e := range edges {
		gr.AddEdge(e)
	}
}

// Edges returns every distinct edge in insertion order.
func (gr *Graph) Edges() []store.DependencyEdge {
	gr.mu.RLock()
	defer gr.mu.RUnlock()
	return append([]store.DependencyEdge(nil), gr.order...)
}

// NodeCount returns the number of nodes.
func (gr *Graph) NodeCount() int {
	gr.mu.RLock()
	defer gr.mu.RUnlock()
	return len(gr.nodes)
}

// EdgeCount returns the number of distinct (source, target, kind) edges.
func (gr *Graph) EdgeCount() int {
	gr.mu.RLock()
	defer gr.mu.RUnlock()
	return len(gr.order)
}

// HasNode reports whether a symbol id is present.
func (gr *Graph) HasNode(id string) bool {
	gr.mu.RLock()
	defer gr.mu.RUnlock()
	return gr.nodes[id]
}

// Indegree returns the number of incoming edges, kind multiplicity
// included.
func (gr *Graph) Indegree(id string) int {
	gr.mu.RLock()
	defer gr.mu.RUnlock()

	count := 0
	for key, kinds := range gr.kinds {
		if key.target == id {
			count += len(kinds)
		}
	}
	return count
}

// Outdegree returns the number of outgoing edges, kind multiplicity
// included.
func (gr *Graph) Outdegree(id string) int {
	gr.mu.RLock()
	defer gr.mu.RUnlock()

	count := 0
	for key, kinds := range gr.kinds {
		if key.source == id {
			count += len(kinds)
		}
	}
	return count
}

// EdgeKinds returns the kinds on a directed pair, sorted.
func (gr *Graph) EdgeKinds(source, target string) []store.EdgeKind {
	gr.mu.RLock()
	defer gr.mu.RUnlock()

	kinds := gr.kinds[pairKey{source, target}]
	result := make([]store.EdgeKind, 0, len(kinds))
	for k := range kinds {
		result = append(result, k)
	}
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result
}

// String summarizes the graph.
func (gr *Graph) String() string {
	gr.mu.RLock()
	defer gr.mu.RUnlock()
	return fmt.Sprintf("graph{nodes=%d edges=%d}", len(gr.nodes), len(gr.order))
}
