package graph

// Component is a set of nodes connected by dependency edges in either direction.
type Component struct {
	Nodes []string
}

// FindComponents detects connected components using undirected BFS, in node
// insertion order.
func FindComponents(g *DependencyGraph) []Component {
	visited := make(map[string]bool)
	var components []Component

	for _, name := range g.Nodes() {
		if visited[name] {
			continue
		}
		components = append(components, Component{Nodes: bfs(g, name, visited)})
	}
	return components
}

func bfs(g *DependencyGraph, start string, visited map[string]bool) []string {
	queue := []string{start}
	visited[start] = true
	var result []string

	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		result = append(result, node)

		neighbors := append(append([]string(nil), g.Children(node)...), g.Parents(node)...)
		for _, n := range neighbors {
			if !visited[n] {
				visited[n] = true
				queue = append(queue, n)
			}
		}
	}
	return result
}
