package graph

// RelationKind distinguishes catalog-reported bindings from inferred ones.
type RelationKind string

const (
	// KindDirect is a continuous aggregate bound to its source by the catalog.
	KindDirect RelationKind = "direct"
	// KindChained is a view-on-view dependency inferred from definitions or pg_depend.
	KindChained RelationKind = "chained"
)

// Relationship is a directed edge source -> target (target is built from source).
type Relationship struct {
	Source string       `json:"source"`
	Target string       `json:"target"`
	Kind   RelationKind `json:"kind"`
}

// DependencyGraph maps a node (table or view) to the nodes built directly on it.
// Children keep insertion order and never contain duplicates.
type DependencyGraph struct {
	// nodes holds every node in first-seen order, sources before their targets.
	nodes    []string
	known    map[string]bool
	children map[string][]string
	parents  map[string][]string
}

// NewDependencyGraph returns an empty graph.
func NewDependencyGraph() *DependencyGraph {
	return &DependencyGraph{
		known:    make(map[string]bool),
		children: make(map[string][]string),
		parents:  make(map[string][]string),
	}
}

// BuildGraph adds every relationship, in order, to a new graph.
func BuildGraph(rels []Relationship) *DependencyGraph {
	g := NewDependencyGraph()
	for _, r := range rels {
		g.AddEdge(r.Source, r.Target)
	}
	return g
}

// AddEdge records target as a dependent of source. Repeated edges and
// self-loops are ignored.
func (g *DependencyGraph) AddEdge(source, target string) {
	if source == "" || target == "" || source == target {
		return
	}
	g.touch(source)
	g.touch(target)
	if contains(g.children[source], target) {
		return
	}
	g.children[source] = append(g.children[source], target)
	g.parents[target] = append(g.parents[target], source)
}

func (g *DependencyGraph) touch(node string) {
	if g.known[node] {
		return
	}
	g.known[node] = true
	g.nodes = append(g.nodes, node)
}

// Children returns the nodes built directly on node.
func (g *DependencyGraph) Children(node string) []string {
	if g == nil {
		return nil
	}
	return g.children[node]
}

// Parents returns the nodes node is built directly from.
func (g *DependencyGraph) Parents(node string) []string {
	return g.parents[node]
}

// Has reports whether node takes part in any edge.
func (g *DependencyGraph) Has(node string) bool {
	if g == nil {
		return false
	}
	return g.known[node]
}

// Sources returns the nodes that have at least one dependent, in insertion order.
func (g *DependencyGraph) Sources() []string {
	var out []string
	for _, n := range g.nodes {
		if len(g.children[n]) > 0 {
			out = append(out, n)
		}
	}
	return out
}

// Nodes returns every node in first-seen order.
func (g *DependencyGraph) Nodes() []string {
	out := make([]string, len(g.nodes))
	copy(out, g.nodes)
	return out
}

// Len returns the number of nodes with at least one dependent.
func (g *DependencyGraph) Len() int {
	if g == nil {
		return 0
	}
	return len(g.children)
}

// Edges returns all edges in source insertion order.
func (g *DependencyGraph) Edges() []Relationship {
	var out []Relationship
	for _, n := range g.nodes {
		for _, c := range g.children[n] {
			out = append(out, Relationship{Source: n, Target: c})
		}
	}
	return out
}

// Roots returns nodes without parents (base tables), in insertion order.
func (g *DependencyGraph) Roots() []string {
	var roots []string
	for _, n := range g.nodes {
		if len(g.parents[n]) == 0 {
			roots = append(roots, n)
		}
	}
	return roots
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
