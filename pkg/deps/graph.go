// Package deps tracks which paths depend on which and walks those edges from
// a changed address, expanding wildcards against the live lists.
package deps

import (
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/wcstack/statecore/pkg/pathinfo"
)

type edge struct {
	source, target string
}

// Graph holds the static (declared) and dynamic (observed at read time) edges
// of one state instance, plus the set of list-valued paths. Edges are only
// ever appended.
type Graph struct {
	static  map[string][]string
	dynamic map[string][]string
	edges   mapset.Set[edge]
	dynEdge mapset.Set[edge]
	lists   mapset.Set[string]
	paths   mapset.Set[string]
}

func NewGraph() *Graph {
	return &Graph{
		static:  map[string][]string{},
		dynamic: map[string][]string{},
		edges:   mapset.NewThreadUnsafeSet[edge](),
		dynEdge: mapset.NewThreadUnsafeSet[edge](),
		lists:   mapset.NewThreadUnsafeSet[string](),
		paths:   mapset.NewThreadUnsafeSet[string](),
	}
}

// AddPath registers path and the structural edges between its prefixes, so
// `users.*.name` yields users -> users.* -> users.*.name. The owner of every
// wildcard is recorded as a list path.
func (g *Graph) AddPath(path string) error {
	if g.paths.Contains(path) {
		return nil
	}
	info, err := pathinfo.Parse(path)
	if err != nil {
		return err
	}
	g.paths.Add(path)
	for i := 1; i < len(info.CumulativePaths); i++ {
		g.AddStatic(info.CumulativePaths[i-1], info.CumulativePaths[i])
	}
	for _, listPath := range info.WildcardParentPaths {
		g.lists.Add(listPath)
	}
	return nil
}

// AddList marks path as list-valued.
func (g *Graph) AddList(path string) error {
	if err := g.AddPath(path); err != nil {
		return err
	}
	g.lists.Add(path)
	return nil
}

// AddStatic appends source -> target unless it is already present.
func (g *Graph) AddStatic(source, target string) bool {
	e := edge{source: source, target: target}
	if !g.edges.Add(e) {
		return false
	}
	g.static[source] = append(g.static[source], target)
	return true
}

// AddDynamic records that target read source while it was being computed.
func (g *Graph) AddDynamic(source, target string) bool {
	e := edge{source: source, target: target}
	if !g.dynEdge.Add(e) {
		return false
	}
	g.dynamic[source] = append(g.dynamic[source], target)
	return true
}

func (g *Graph) Static(source string) []string { return g.static[source] }

func (g *Graph) Dynamic(source string) []string { return g.dynamic[source] }

func (g *Graph) IsList(path string) bool { return g.lists.Contains(path) }

// Lists returns the list paths in no particular order.
func (g *Graph) Lists() []string { return g.lists.ToSlice() }

// EdgeCount reports the number of static and dynamic edges.
func (g *Graph) EdgeCount() (static, dynamic int) {
	return g.edges.Cardinality(), g.dynEdge.Cardinality()
}
