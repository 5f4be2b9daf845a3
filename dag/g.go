// Copyright 2025 Binaek Sarkar
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package dag implements a small generic directed graph with a
// Kahn's-algorithm topological sort and first-cycle detection. The
// sort takes an explicit tie-break callback: a DFS-based order would
// depend on Go's randomized map iteration, and the scheduler needs a
// deterministic priority-then-id order.
package dag

import (
	"container/heap"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
)

// G is a directed graph over nodes identified by their String() value.
type G[T fmt.Stringer] interface {
	AddNode(T)
	AddEdge(from, to T) error
	// KahnOrder performs Kahn's algorithm. Among nodes simultaneously
	// ready (in-degree zero), less(a, b) decides whether a should be
	// emitted before b. Returns the ordered prefix that could be
	// resolved and the remaining node ids left over if a cycle
	// prevented full resolution.
	KahnOrder(less func(a, b T) bool) (ordered []T, remaining []string)
	DetectFirstCycle() []T
}

var (
	ErrSelfLoop = errors.New("self-loop not allowed")
)

type ErrCycle struct{ Path []string }

func (e ErrCycle) Error() string {
	return fmt.Sprintf("cycle detected: %s", strings.Join(e.Path, " -> "))
}

type gImpl[T fmt.Stringer] struct {
	lock  sync.RWMutex
	nodes map[string]T
	edges map[string]map[string]struct{}
}

func New[T fmt.Stringer]() G[T] {
	return &gImpl[T]{
		nodes: make(map[string]T),
		edges: make(map[string]map[string]struct{}),
	}
}

func (g *gImpl[T]) AddNode(node T) {
	g.lock.Lock()
	defer g.lock.Unlock()
	g.nodes[node.String()] = node
	if _, ok := g.edges[node.String()]; !ok {
		g.edges[node.String()] = make(map[string]struct{})
	}
}

func (g *gImpl[T]) AddEdge(from, to T) error {
	g.lock.Lock()
	defer g.lock.Unlock()

	if from.String() == to.String() {
		return ErrSelfLoop
	}
	if _, ok := g.edges[from.String()]; !ok {
		g.edges[from.String()] = make(map[string]struct{})
	}
	g.edges[from.String()][to.String()] = struct{}{}
	return nil
}

// nodeHeap is a priority queue of ready node ids, ordered by the
// caller-supplied less callback.
type nodeHeap[T fmt.Stringer] struct {
	ids  []string
	node map[string]T
	less func(a, b T) bool
}

func (h *nodeHeap[T]) Len() int { return len(h.ids) }
func (h *nodeHeap[T]) Less(i, j int) bool {
	return h.less(h.node[h.ids[i]], h.node[h.ids[j]])
}
func (h *nodeHeap[T]) Swap(i, j int) { h.ids[i], h.ids[j] = h.ids[j], h.ids[i] }
func (h *nodeHeap[T]) Push(x any)    { h.ids = append(h.ids, x.(string)) }
func (h *nodeHeap[T]) Pop() any {
	old := h.ids
	n := len(old)
	x := old[n-1]
	h.ids = old[:n-1]
	return x
}

// KahnOrder repeatedly emits a zero-in-degree node, breaking ties with
// less. Any nodes left over once no zero-in-degree node remains are
// returned as remaining so the caller can apply its own cycle-tolerant
// fallback instead of erroring outright.
func (g *gImpl[T]) KahnOrder(less func(a, b T) bool) (ordered []T, remaining []string) {
	g.lock.RLock()
	defer g.lock.RUnlock()

	indegree := make(map[string]int, len(g.nodes))
	for id := range g.nodes {
		indegree[id] = 0
	}
	for _, dests := range g.edges {
		for dest := range dests {
			indegree[dest]++
		}
	}

	h := &nodeHeap[T]{node: g.nodes, less: less}
	for id, deg := range indegree {
		if deg == 0 {
			h.ids = append(h.ids, id)
		}
	}
	heap.Init(h)

	visited := make(map[string]struct{}, len(g.nodes))
	for h.Len() > 0 {
		id := heap.Pop(h).(string)
		visited[id] = struct{}{}
		ordered = append(ordered, g.nodes[id])

		// Push each neighbor whose in-degree drops to zero onto the heap.
		for dest := range g.edges[id] {
			indegree[dest]--
			if indegree[dest] == 0 {
				heap.Push(h, dest)
			}
		}
	}

	for id := range g.nodes {
		if _, ok := visited[id]; !ok {
			remaining = append(remaining, id)
		}
	}
	slices.Sort(remaining)
	return ordered, remaining
}

// DetectFirstCycle returns the first cycle found via DFS, or an empty
// slice if the graph is acyclic. It is the generic primitive the
// validator needs for trigger-graph acyclicity.
func (g *gImpl[T]) DetectFirstCycle() []T {
	g.lock.RLock()
	defer g.lock.RUnlock()

	visited := make(map[string]struct{})
	visiting := make([]string, 0, len(g.nodes))

	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	slices.Sort(ids) // deterministic scan order

	var dfs func(node string) []string
	dfs = func(node string) []string {
		if idx := slices.Index(visiting, node); idx != -1 {
			path := append([]string{}, visiting[idx:]...)
			path = append(path, node)
			return path
		}
		if _, ok := visited[node]; ok {
			return nil
		}
		visiting = append(visiting, node)
		defer func() { visiting = visiting[:len(visiting)-1] }()
		visited[node] = struct{}{}

		neighbors := make([]string, 0, len(g.edges[node]))
		for n := range g.edges[node] {
			neighbors = append(neighbors, n)
		}
		slices.Sort(neighbors)
		for _, neighbor := range neighbors {
			if cycle := dfs(neighbor); len(cycle) > 0 {
				return cycle
			}
		}
		return nil
	}

	for _, id := range ids {
		if cycle := dfs(id); len(cycle) > 0 {
			result := make([]T, len(cycle))
			for i, nodeStr := range cycle {
				result[i] = g.nodes[nodeStr]
			}
			return result
		}
	}
	return []T{}
}
