package graph

import (
	"fmt"
	"slices"

	"github.com/roach88/cfgmigrate/internal/model"
)

const (
	reasonSkipped   = "kind is skipped"
	reasonNotSource = "not present in source"
)

// Build selects seed objects from inv, pulls in everything they require,
// and orders the result. A dependency cycle is returned as a *GraphError.
func Build(inv *model.Inventory, sel Selection) (*Graph, error) {
	nodes := make(map[model.Key]*Node)
	var queue []*Node

	add := func(o model.Object, requested bool) *Node {
		if n, ok := nodes[o.Key()]; ok {
			n.Requested = n.Requested || requested
			return n
		}
		n := &Node{Key: o.Key(), Object: o, Requested: requested}
		nodes[n.Key] = n
		queue = append(queue, n)
		return n
	}

	matched := map[string]bool{}
	for _, o := range inv.All() {
		if sel.selects(o) {
			add(o, true)
			matched[o.ID] = true
			matched[o.Key().String()] = true
		}
	}

	var edges []Edge
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		for _, ref := range model.References(n.Object) {
			targets, miss := resolveRef(inv, sel, ref)
			if miss != nil {
				n.Missing = append(n.Missing, *miss)
				continue
			}
			for _, dep := range targets {
				add(dep, false)
				if slices.Contains(n.Deps, dep.Key()) {
					continue
				}
				n.Deps = append(n.Deps, dep.Key())
				edges = append(edges, Edge{From: n.Key, To: dep.Key(), Field: ref.Field})
			}
		}
		slices.SortFunc(n.Deps, model.CompareKeys)
	}

	g, err := assemble(nodes, edges)
	if err != nil {
		return nil, err
	}
	for _, id := range sel.IncludeIDs {
		if !matched[id] {
			g.UnmatchedIDs = append(g.UnmatchedIDs, id)
		}
	}
	return g, nil
}

// resolveRef maps a reference to the source objects it names. A list
// token that names no source list refers to a platform-provided list and
// yields no target and no Missing entry.
func resolveRef(inv *model.Inventory, sel Selection, ref model.Reference) ([]model.Object, *Missing) {
	missing := func(reason string) *Missing {
		return &Missing{Field: ref.Field, Kind: ref.Kind, ID: ref.ID, Name: ref.Name, Reason: reason}
	}

	var targets []model.Object
	if ref.ID != "" {
		o, ok := inv.Get(model.Key{Kind: ref.Kind, ID: ref.ID})
		if !ok {
			if slices.Contains(sel.SkipKinds, ref.Kind) {
				return nil, missing(reasonSkipped)
			}
			return nil, missing(reasonNotSource)
		}
		targets = []model.Object{o}
	} else {
		targets = inv.ByName(ref.Kind, ref.Name)
		if len(targets) == 0 {
			return nil, nil
		}
	}
	if slices.Contains(sel.SkipKinds, ref.Kind) {
		return nil, missing(reasonSkipped)
	}
	return targets, nil
}

// assemble indexes the edges and orders the nodes.
func assemble(nodes map[model.Key]*Node, edges []Edge) (*Graph, error) {
	slices.SortFunc(edges, func(a, b Edge) int {
		if c := model.CompareKeys(a.From, b.From); c != 0 {
			return c
		}
		return model.CompareKeys(a.To, b.To)
	})
	g := &Graph{
		nodes:      nodes,
		edges:      edges,
		dependents: make(map[model.Key][]model.Key),
	}
	for _, e := range edges {
		g.dependents[e.To] = append(g.dependents[e.To], e.From)
	}
	order, err := topoSort(nodes, edges)
	if err != nil {
		return nil, err
	}
	g.order = order
	return g, nil
}

// topoSort runs Kahn's algorithm. Ties are broken by kind rank, name and
// ID so the same inventory always yields the same order. Nodes left over
// lie on or behind a cycle; the cycle is reported.
func topoSort(nodes map[model.Key]*Node, edges []Edge) ([]model.Key, error) {
	indegree := make(map[model.Key]int, len(nodes))
	dependents := make(map[model.Key][]model.Key)
	for k := range nodes {
		indegree[k] = 0
	}
	for _, e := range edges {
		indegree[e.From]++
		dependents[e.To] = append(dependents[e.To], e.From)
	}

	var ready []*Node
	for k, d := range indegree {
		if d == 0 {
			ready = append(ready, nodes[k])
		}
	}

	order := make([]model.Key, 0, len(nodes))
	for len(ready) > 0 {
		slices.SortFunc(ready, compareNodes)
		n := ready[0]
		ready = ready[1:]
		order = append(order, n.Key)
		for _, d := range dependents[n.Key] {
			indegree[d]--
			if indegree[d] == 0 {
				ready = append(ready, nodes[d])
			}
		}
	}

	if len(order) < len(nodes) {
		path := findCycle(nodes, edges, indegree)
		return nil, &GraphError{
			Code:    ErrCodeCycle,
			Message: fmt.Sprintf("dependency cycle among %d objects", len(nodes)-len(order)),
			Path:    path,
		}
	}
	return order, nil
}
