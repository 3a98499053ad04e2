package graph

import (
	"slices"

	"github.com/roach88/cfgmigrate/internal/model"
)

// findCycle returns one cycle among the nodes Kahn's algorithm could not
// order, as a path whose first key is repeated at the end.
//
// Strongly connected components are found with Tarjan's algorithm; the
// smallest-keyed non-trivial component is walked back to its start by
// breadth-first search, which gives the shortest cycle through that key.
func findCycle(nodes map[model.Key]*Node, edges []Edge, indegree map[model.Key]int) []model.Key {
	adj := make(map[model.Key][]model.Key)
	for _, e := range edges {
		if indegree[e.From] > 0 && indegree[e.To] > 0 {
			adj[e.From] = append(adj[e.From], e.To)
		}
	}
	var remaining []model.Key
	for k := range nodes {
		if indegree[k] > 0 {
			remaining = append(remaining, k)
		}
	}
	slices.SortFunc(remaining, model.CompareKeys)
	for k := range adj {
		slices.SortFunc(adj[k], model.CompareKeys)
	}

	var best []model.Key
	for _, scc := range tarjanSCC(remaining, adj) {
		if len(scc) == 1 && !slices.Contains(adj[scc[0]], scc[0]) {
			continue
		}
		slices.SortFunc(scc, model.CompareKeys)
		if best == nil || model.CompareKeys(scc[0], best[0]) < 0 {
			best = scc
		}
	}
	if best == nil {
		return nil
	}
	return shortestCycle(best, adj)
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
func tarjanSCC(keys []model.Key, adj map[model.Key][]model.Key) [][]model.Key {
	var (
		index   = 0
		stack   []model.Key
		indices = make(map[model.Key]int)
		lowlink = make(map[model.Key]int)
		onStack = make(map[model.Key]bool)
		sccs    [][]model.Key
	)

	var strongConnect func(model.Key)
	strongConnect = func(v model.Key) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range adj[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []model.Key
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	for _, k := range keys {
		if _, visited := indices[k]; !visited {
			strongConnect(k)
		}
	}
	return sccs
}

// shortestCycle walks from the first member of scc back to itself.
func shortestCycle(scc []model.Key, adj map[model.Key][]model.Key) []model.Key {
	start := scc[0]
	inSCC := make(map[model.Key]bool, len(scc))
	for _, k := range scc {
		inSCC[k] = true
	}

	prev := map[model.Key]model.Key{}
	visited := map[model.Key]bool{}
	queue := []model.Key{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range adj[cur] {
			if !inSCC[next] {
				continue
			}
			if next == start {
				path := []model.Key{start}
				for k := cur; k != start; k = prev[k] {
					path = append(path, k)
				}
				path = append(path, start)
				// path runs backwards from start; the first and last
				// elements are both start, so reverse the middle.
				slices.Reverse(path[1 : len(path)-1])
				return path
			}
			if !visited[next] {
				visited[next] = true
				prev[next] = cur
				queue = append(queue, next)
			}
		}
	}
	return []model.Key{start, start}
}
