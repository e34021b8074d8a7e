// Package depgraph models the dependency graph between the packages a
// board verifies. An edge a → b means "a depends on b"; the scheduler
// emerges b before a. Cycles are representable: the checker breaks them
// explicitly rather than rejecting the graph.
package depgraph

import (
	"sort"
)

// Graph is a directed graph over package names.
type Graph struct {
	deps map[string]map[string]struct{}
}

// New initializes an empty Graph.
func New() *Graph {
	return &Graph{deps: map[string]map[string]struct{}{}}
}

// AddNode inserts a package with no dependencies yet. Returns false if
// the package is already present.
func (g *Graph) AddNode(pkg string) bool {
	if _, ok := g.deps[pkg]; ok {
		return false
	}

	g.deps[pkg] = map[string]struct{}{}

	return true
}

// AddDependency records that pkg depends on dep. Both nodes are created
// as needed; duplicate edges collapse.
func (g *Graph) AddDependency(pkg, dep string) {
	g.AddNode(pkg)
	g.AddNode(dep)
	g.deps[pkg][dep] = struct{}{}
}

// Has reports whether pkg is a node of the graph.
func (g *Graph) Has(pkg string) bool {
	_, ok := g.deps[pkg]

	return ok
}

// Dependencies returns pkg's direct dependencies, sorted.
func (g *Graph) Dependencies(pkg string) []string {
	deps := make([]string, 0, len(g.deps[pkg]))
	for dep := range g.deps[pkg] {
		deps = append(deps, dep)
	}

	sort.Strings(deps)

	return deps
}

// Nodes returns every package, sorted.
func (g *Graph) Nodes() []string {
	nodes := make([]string, 0, len(g.deps))
	for pkg := range g.deps {
		nodes = append(nodes, pkg)
	}

	sort.Strings(nodes)

	return nodes
}

// Toposort returns the packages in dependency-first order. The second
// result is false when the graph has a cycle; the partial order then
// covers only the acyclic portion.
func (g *Graph) Toposort() ([]string, bool) {
	indegree := map[string]int{}
	dependents := map[string][]string{}

	for pkg, deps := range g.deps {
		if _, ok := indegree[pkg]; !ok {
			indegree[pkg] = 0
		}

		for dep := range deps {
			indegree[pkg]++

			dependents[dep] = append(dependents[dep], pkg)
		}
	}

	var ready []string

	for pkg, deg := range indegree {
		if deg == 0 {
			ready = append(ready, pkg)
		}
	}

	sort.Strings(ready)

	var order []string

	for len(ready) > 0 {
		pkg := ready[0]
		ready = ready[1:]
		order = append(order, pkg)

		next := dependents[pkg]
		sort.Strings(next)

		for _, dependent := range next {
			indegree[dependent]--
			if indegree[dependent] == 0 {
				ready = append(ready, dependent)
			}
		}
	}

	return order, len(order) == len(g.deps)
}

// FindCycle returns one dependency cycle reachable from seed, or nil.
func (g *Graph) FindCycle(seed string) []string {
	const (
		unvisited = iota
		inStack
		done
	)

	state := map[string]int{}

	var cycle []string

	var visit func(pkg string, path []string) bool

	visit = func(pkg string, path []string) bool {
		state[pkg] = inStack
		path = append(path, pkg)

		for _, dep := range g.Dependencies(pkg) {
			switch state[dep] {
			case inStack:
				for i, p := range path {
					if p == dep {
						cycle = append([]string{}, path[i:]...)

						return true
					}
				}
			case unvisited:
				if visit(dep, path) {
					return true
				}
			}
		}

		state[pkg] = done

		return false
	}

	if !g.Has(seed) {
		return nil
	}

	visit(seed, nil)

	return cycle
}
