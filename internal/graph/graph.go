// Package graph provides an in-memory dependency graph over typed work item
// references, used to validate plans before they are persisted.
package graph

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/gantrylabs/gantry/pkg/models"
)

// ErrCycleDetected indicates a circular dependency was found among items of a
// single kind tier.
var ErrCycleDetected = errors.New("circular dependency detected")

// tiers lists the kind tiers cycle detection runs over.
var tiers = []models.ItemKind{models.KindEpic, models.KindStory, models.KindTask}

// Graph is a directed graph of work item references. Edges represent
// "depends on" relationships. Edges may cross tiers (task -> story), but the
// subgraph of edges within any single tier must be acyclic.
type Graph struct {
	mu sync.RWMutex
	// nodes maps ref key ("kind:id") to the typed reference.
	nodes map[string]models.ItemRef
	// edges maps ref key to the keys of items it depends on.
	edges map[string][]string
	// debugLog is an optional logging function.
	debugLog func(format string, args ...interface{})
}

// New creates a new empty graph.
func New() *Graph {
	return &Graph{
		nodes:    make(map[string]models.ItemRef),
		edges:    make(map[string][]string),
		debugLog: func(format string, args ...interface{}) {}, // no-op by default
	}
}

// SetDebugLog sets the debug logging function.
func (g *Graph) SetDebugLog(fn func(format string, args ...interface{})) {
	if fn != nil {
		g.debugLog = fn
	}
}

// Build constructs the graph from a set of item references and dependency
// edges. Returns an error if an edge endpoint is not among the items or if
// any single-tier subgraph contains a cycle.
func (g *Graph) Build(items []models.ItemRef, deps []models.Dependency) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.debugLog("[graph.Build] building graph from %d items and %d edges", len(items), len(deps))

	// First pass: register all items as nodes.
	for _, item := range items {
		key := item.String()
		g.nodes[key] = item
		g.edges[key] = nil // Initialize edges slice.
	}

	// Second pass: build edges, rejecting unknown endpoints.
	for _, dep := range deps {
		from := dep.Item.String()
		to := dep.DependsOn.String()
		if _, exists := g.nodes[from]; !exists {
			return fmt.Errorf("dependency source %s is not in the plan", from)
		}
		if _, exists := g.nodes[to]; !exists {
			return fmt.Errorf("%s depends on unknown item %s", from, to)
		}
		g.edges[from] = append(g.edges[from], to)
	}

	for _, kind := range tiers {
		if cycle := g.cycleLocked(kind); cycle != nil {
			return fmt.Errorf("%w: %s", ErrCycleDetected, strings.Join(cycle, " -> "))
		}
	}

	g.debugLog("[graph.Build] graph built successfully with %d nodes", len(g.nodes))
	return nil
}

// HasCycle returns true if any single-tier subgraph contains a circular
// dependency.
func (g *Graph) HasCycle() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for _, kind := range tiers {
		if g.cycleLocked(kind) != nil {
			return true
		}
	}
	return false
}

// cycleLocked runs a depth-first search with coloring over the subgraph of
// edges whose endpoints are both of the given kind, returning the offending
// cycle path or nil. An empty kind considers every edge. Assumes the lock
// is held.
func (g *Graph) cycleLocked(kind models.ItemKind) []string {
	// Color states: 0 = white (unvisited), 1 = gray (in progress), 2 = black (done).
	colors := make(map[string]int)

	var stack []string
	var cycle []string
	var visit func(key string) bool
	visit = func(key string) bool {
		colors[key] = 1 // Mark as in progress.
		stack = append(stack, key)

		for _, dep := range g.edges[key] {
			if kind != "" && g.nodes[dep].Kind != kind {
				continue // cross-tier edges never close a tier cycle
			}
			switch colors[dep] {
			case 1:
				// Found a back edge. The gray stack from the first visit of
				// dep down to here is the cycle.
				for i, k := range stack {
					if k == dep {
						cycle = append(append(cycle, stack[i:]...), dep)
						break
					}
				}
				return true
			case 0:
				if visit(dep) {
					return true
				}
			}
			// color == 2 means already processed, skip.
		}

		colors[key] = 2 // Mark as done.
		stack = stack[:len(stack)-1]
		return false
	}

	for _, key := range g.keysLocked(kind) {
		if colors[key] == 0 {
			if visit(key) {
				return cycle
			}
		}
	}
	return nil
}

// TopologicalSort returns every item in an order where dependencies come
// before the items that depend on them. Traversal order is lexical by ref
// key, so the result is stable across runs.
// Returns an error if the graph contains a cycle across any edges.
func (g *Graph) TopologicalSort() ([]models.ItemRef, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if cycle := g.cycleLocked(""); cycle != nil {
		return nil, fmt.Errorf("%w: %s", ErrCycleDetected, strings.Join(cycle, " -> "))
	}

	// Track visited nodes and build result in reverse post-order.
	visited := make(map[string]bool)
	var result []models.ItemRef

	var visit func(key string)
	visit = func(key string) {
		if visited[key] {
			return
		}
		visited[key] = true

		// Visit all dependencies first, in stable order.
		deps := append([]string(nil), g.edges[key]...)
		sort.Strings(deps)
		for _, dep := range deps {
			visit(dep)
		}

		// Add this node after its dependencies.
		result = append(result, g.nodes[key])
	}

	for _, key := range g.keysLocked("") {
		visit(key)
	}

	return result, nil
}

// Has returns true if the item is a node in the graph.
func (g *Graph) Has(item models.ItemRef) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.nodes[item.String()]
	return ok
}

// Size returns the number of items in the graph.
func (g *Graph) Size() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// Dependencies returns the items the given item depends on.
func (g *Graph) Dependencies(item models.ItemRef) []models.ItemRef {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []models.ItemRef
	for _, dep := range g.edges[item.String()] {
		out = append(out, g.nodes[dep])
	}
	return out
}

// Dependents returns the items that depend on the given item, in lexical
// order by ref key.
func (g *Graph) Dependents(item models.ItemRef) []models.ItemRef {
	g.mu.RLock()
	defer g.mu.RUnlock()

	target := item.String()
	var out []models.ItemRef
	for _, key := range g.keysLocked("") {
		for _, dep := range g.edges[key] {
			if dep == target {
				out = append(out, g.nodes[key])
				break
			}
		}
	}
	return out
}

// keysLocked returns the keys of nodes of the given kind in lexical order so
// traversals are deterministic. An empty kind returns every key. Assumes the
// lock is held.
func (g *Graph) keysLocked(kind models.ItemKind) []string {
	var keys []string
	for key, ref := range g.nodes {
		if kind == "" || ref.Kind == kind {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}
