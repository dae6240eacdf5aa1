package graph

// Adjacency is the read side of a dependency graph.
type Adjacency interface {
	Children(node string) []string
	Has(node string) bool
}

// FindPath returns the first path from start to end found by depth-first
// search in child insertion order, including both endpoints. Nodes already on
// the current path are skipped, so cycles terminate. The path is not
// necessarily the shortest.
func FindPath(g Adjacency, start, end string) ([]string, bool) {
	return findPath(g, start, end, nil)
}

func findPath(g Adjacency, start, end string, path []string) ([]string, bool) {
	next := make([]string, len(path), len(path)+1)
	copy(next, path)
	next = append(next, start)

	if start == end {
		return next, true
	}
	if g == nil || !g.Has(start) {
		return nil, false
	}
	for _, child := range g.Children(start) {
		if contains(next, child) {
			continue
		}
		if found, ok := findPath(g, child, end, next); ok {
			return found, true
		}
	}
	return nil, false
}
