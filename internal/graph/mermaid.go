package graph

import (
	"fmt"
	"io"
	"sort"
	"strings"
)

// WriteMermaid writes the dependency graph in Mermaid format to w. Each
// connected component is a subgraph; base tables are drawn as cylinders.
func WriteMermaid(w io.Writer, g *DependencyGraph) error {
	components := FindComponents(g)
	for i := range components {
		sort.Strings(components[i].Nodes)
	}
	sort.Slice(components, func(i, j int) bool {
		return components[i].Nodes[0] < components[j].Nodes[0]
	})

	if _, err := fmt.Fprintln(w, "graph LR"); err != nil {
		return err
	}
	for i, comp := range components {
		fmt.Fprintf(w, "    subgraph chain_%d\n", i+1)
		for _, n := range comp.Nodes {
			if len(g.Parents(n)) == 0 {
				fmt.Fprintf(w, "        %s[(%q)]\n", mermaidID(n), n)
			} else {
				fmt.Fprintf(w, "        %s[%q]\n", mermaidID(n), n)
			}
		}
		for _, n := range comp.Nodes {
			for _, child := range g.Children(n) {
				fmt.Fprintf(w, "        %s --> %s\n", mermaidID(n), mermaidID(child))
			}
		}
		if _, err := fmt.Fprintln(w, "    end"); err != nil {
			return err
		}
	}
	return nil
}

// mermaidID converts a relation name to a Mermaid-safe node ID.
func mermaidID(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r == '_' || ('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z') || ('0' <= r && r <= '9'):
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return "n_" + b.String()
}
