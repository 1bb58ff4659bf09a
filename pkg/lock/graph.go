package lock

import (
	"cmp"
	"slices"
)

// ID identifies a package within a lock file.
type ID struct {
	Name    string
	Version string
}

// String returns "name version".
func (id ID) String() string { return id.Name + " " + id.Version }

// Compare orders IDs by name, then version string.
func (id ID) Compare(other ID) int {
	if c := cmp.Compare(id.Name, other.Name); c != 0 {
		return c
	}
	return cmp.Compare(id.Version, other.Version)
}

// Node is a single locked package.
type Node struct {
	ID       ID
	Origin   Origin
	Checksum string // SHA-256 hex from the lock; empty for git and path packages
	Deps     []int  // Indices of direct dependencies, ascending
}

// Graph is an immutable arena of locked packages. Nodes are sorted by [ID]
// so that indices are a function of the lock contents, not of the order in
// which the file lists them.
//
// The zero value is an empty graph. Graph is safe for concurrent reads.
type Graph struct {
	version Version
	nodes   []Node
	index   map[ID]int
}

// Version returns the lock format the graph was read from.
func (g *Graph) Version() Version { return g.version }

// Len returns the number of packages.
func (g *Graph) Len() int { return len(g.nodes) }

// Node returns the package at index i. The returned Deps slice is a copy.
func (g *Graph) Node(i int) Node {
	n := g.nodes[i]
	n.Deps = slices.Clone(n.Deps)
	return n
}

// Nodes returns a copy of all packages in index order.
func (g *Graph) Nodes() []Node {
	out := make([]Node, len(g.nodes))
	for i := range g.nodes {
		out[i] = g.Node(i)
	}
	return out
}

// Lookup returns the index of the package with the given identity.
func (g *Graph) Lookup(id ID) (int, bool) {
	i, ok := g.index[id]
	return i, ok
}

// Dependencies returns the direct dependency indices of node i.
// The returned slice must not be modified.
func (g *Graph) Dependencies(i int) []int { return g.nodes[i].Deps }

// EdgeCount returns the number of dependency edges.
func (g *Graph) EdgeCount() int {
	n := 0
	for _, node := range g.nodes {
		n += len(node.Deps)
	}
	return n
}

// Roots returns nodes nothing depends on, in index order. For a single-crate
// project this is the root package; for a workspace it is every member that
// no other member depends on.
func (g *Graph) Roots() []int {
	incoming := make([]bool, len(g.nodes))
	for _, n := range g.nodes {
		for _, d := range n.Deps {
			incoming[d] = true
		}
	}
	var roots []int
	for i, has := range incoming {
		if !has {
			roots = append(roots, i)
		}
	}
	return roots
}

// Order returns every node index with dependencies before their dependents.
// Edges that close a cycle are skipped (see [Graph.CycleEdges]); the result
// depends only on the graph contents.
func (g *Graph) Order() []int {
	order, _ := g.walk()
	return order
}

// CycleEdges returns the edges ignored by [Graph.Order] because they close a
// cycle. Cargo permits such cycles through dev-dependencies.
func (g *Graph) CycleEdges() [][2]int {
	_, back := g.walk()
	return back
}

func (g *Graph) walk() ([]int, [][2]int) {
	const (
		white = iota
		gray
		black
	)

	color := make([]int, len(g.nodes))
	order := make([]int, 0, len(g.nodes))
	var backEdges [][2]int

	var dfs func(i int)
	dfs = func(i int) {
		color[i] = gray
		for _, d := range g.nodes[i].Deps {
			switch color[d] {
			case white:
				dfs(d)
			case gray:
				backEdges = append(backEdges, [2]int{i, d})
			}
		}
		color[i] = black
		order = append(order, i)
	}

	for _, i := range g.Roots() {
		if color[i] == white {
			dfs(i)
		}
	}
	for i := range g.nodes {
		if color[i] == white {
			dfs(i)
		}
	}
	return order, backEdges
}
