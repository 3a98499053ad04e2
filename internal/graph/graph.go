// Package graph builds the dependency graph of the objects selected for
// migration and orders it so every object comes after what it requires.
package graph

import (
	"slices"
	"strings"

	"github.com/roach88/cfgmigrate/internal/model"
)

// Selection chooses the seed objects of a migration.
type Selection struct {
	// IncludeKinds limits seeds to these kinds; empty selects every kind.
	IncludeKinds []model.Kind
	// IncludeIDs limits seeds to these source IDs; empty selects every ID.
	// An entry is a bare ID, matching that ID in every kind, or kind/id.
	IncludeIDs []string
	// ExcludeIDs drops seeds, in the same forms as IncludeIDs. An excluded
	// object is still migrated when a selected object requires it.
	ExcludeIDs []string
	// SkipKinds are never migrated. Objects requiring one get a Missing entry.
	SkipKinds []model.Kind
}

func (s Selection) selects(o model.Object) bool {
	if len(s.IncludeKinds) > 0 && !slices.Contains(s.IncludeKinds, o.Kind) {
		return false
	}
	if slices.Contains(s.SkipKinds, o.Kind) {
		return false
	}
	if len(s.IncludeIDs) > 0 && !slices.ContainsFunc(s.IncludeIDs, idMatcher(o)) {
		return false
	}
	return !slices.ContainsFunc(s.ExcludeIDs, idMatcher(o))
}

// idMatcher matches selection entries naming o.
func idMatcher(o model.Object) func(string) bool {
	key := o.Key().String()
	return func(entry string) bool {
		return entry == o.ID || entry == key
	}
}

// Missing is a dependency that cannot be migrated (DependencyUnavailable).
type Missing struct {
	Field  string
	Kind   model.Kind
	ID     string
	Name   string
	Reason string
}

// Target returns the ID or name of the missing object.
func (m Missing) Target() string {
	if m.ID != "" {
		return m.ID
	}
	return "$" + m.Name
}

// Node is one object in the graph.
type Node struct {
	Key    model.Key
	Object model.Object

	// Requested is false for objects pulled in only as dependencies.
	Requested bool

	// Deps are the keys this node requires, sorted.
	Deps    []model.Key
	Missing []Missing
}

// Edge records that From requires To.
type Edge struct {
	From  model.Key
	To    model.Key
	Field string
}

// Graph is the dependency graph of one migration.
type Graph struct {
	nodes      map[model.Key]*Node
	edges      []Edge
	order      []model.Key
	dependents map[model.Key][]model.Key

	// UnmatchedIDs are IncludeIDs that matched no source object.
	UnmatchedIDs []string
}

// Nodes returns the nodes in topological order.
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, len(g.order))
	for i, k := range g.order {
		out[i] = g.nodes[k]
	}
	return out
}

// Node returns the node for key.
func (g *Graph) Node(key model.Key) (*Node, bool) {
	n, ok := g.nodes[key]
	return n, ok
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// Edges returns every edge, sorted by From then To.
func (g *Graph) Edges() []Edge {
	return slices.Clone(g.edges)
}

// Order returns the topological order.
func (g *Graph) Order() []model.Key {
	return slices.Clone(g.order)
}

// Dependents returns every node that transitively requires key, in
// topological order.
func (g *Graph) Dependents(key model.Key) []model.Key {
	seen := map[model.Key]bool{}
	queue := []model.Key{key}
	for len(queue) > 0 {
		k := queue[0]
		queue = queue[1:]
		for _, d := range g.dependents[k] {
			if !seen[d] {
				seen[d] = true
				queue = append(queue, d)
			}
		}
	}
	var out []model.Key
	for _, k := range g.order {
		if seen[k] {
			out = append(out, k)
		}
	}
	return out
}

// compareNodes orders ready nodes by kind rank, name, then ID.
func compareNodes(a, b *Node) int {
	if a.Key.Kind != b.Key.Kind {
		return a.Key.Kind.Rank() - b.Key.Kind.Rank()
	}
	if c := strings.Compare(a.Object.Name, b.Object.Name); c != 0 {
		return c
	}
	return strings.Compare(a.Key.ID, b.Key.ID)
}
