package graph

import "fmt"

// TopoResult holds the result of topological sorting.
type TopoResult struct {
	// Order lists nodes so that every node follows the nodes it is built from.
	Order []string `json:"order"`
	// HasCycle is true if the graph contains a cycle.
	HasCycle bool `json:"has_cycle"`
	// CycleNodes lists nodes involved in cycles (if any).
	CycleNodes []string `json:"cycle_nodes,omitempty"`
}

// TopoSort performs Kahn's algorithm on the given nodes within the graph.
// Ties keep the order of nodes.
func TopoSort(g *DependencyGraph, nodes []string) TopoResult {
	nodeSet := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		nodeSet[n] = true
	}

	inDegree := make(map[string]int, len(nodes))
	for _, n := range nodes {
		inDegree[n] = 0
	}
	for _, n := range nodes {
		for _, p := range g.Parents(n) {
			if nodeSet[p] {
				inDegree[n]++
			}
		}
	}

	var queue []string
	for _, n := range nodes {
		if inDegree[n] == 0 {
			queue = append(queue, n)
		}
	}

	var order []string
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		order = append(order, node)

		for _, child := range g.Children(node) {
			if !nodeSet[child] {
				continue
			}
			inDegree[child]--
			if inDegree[child] == 0 {
				queue = append(queue, child)
			}
		}
	}

	result := TopoResult{Order: order}
	if len(order) < len(nodes) {
		result.HasCycle = true
		for _, n := range nodes {
			if inDegree[n] > 0 {
				result.CycleNodes = append(result.CycleNodes, n)
			}
		}
	}
	return result
}

// RefreshOrder returns every aggregate in the graph in an order where each
// view follows the views it is built from. Base tables are left out.
func RefreshOrder(g *DependencyGraph) TopoResult {
	var views []string
	for _, n := range g.Nodes() {
		if len(g.Parents(n)) > 0 {
			views = append(views, n)
		}
	}
	return TopoSort(g, views)
}

// ValidateCycles checks for cycles and returns a descriptive error if found.
func ValidateCycles(result TopoResult) error {
	if !result.HasCycle {
		return nil
	}
	return fmt.Errorf("circular dependency detected among views: %v", result.CycleNodes)
}
