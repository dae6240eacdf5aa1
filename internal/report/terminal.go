package report

import (
	"fmt"
	"io"

	"github.com/ddddddO/gtree"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/hurou927/tsdb-report/internal/graph"
)

// SelectChains returns the chains for bases, or every chain when bases is empty.
// Unknown bases are skipped.
func SelectChains(chains *graph.CompleteChains, bases ...string) []ChainReport {
	if len(bases) == 0 {
		bases = chains.Bases()
	}
	var out []ChainReport
	for _, base := range bases {
		chain, ok := chains.Chain(base)
		if !ok {
			continue
		}
		out = append(out, ChainReport{Base: base, Entries: orderedEntries(chain)})
	}
	return out
}

// WriteTree draws each chain as a tree with every view under its source.
func WriteTree(w io.Writer, chains []ChainReport) error {
	for _, c := range chains {
		root := gtree.NewRoot(c.Base)
		nodes := map[string]*gtree.Node{c.Base: root}
		for _, e := range c.Entries {
			parent, ok := nodes[e.Source]
			if !ok {
				parent = root
			}
			nodes[e.View] = parent.Add(fmt.Sprintf("%s (level %d)", e.View, e.Level))
		}
		if err := gtree.OutputFromRoot(w, root); err != nil {
			return fmt.Errorf("rendering tree for %s: %w", c.Base, err)
		}
	}
	return nil
}

// WriteChainTable lists every chain entry in a terminal table.
func WriteChainTable(w io.Writer, chains []ChainReport) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Base", "Level", "View", "Source", "Children"})
	for _, c := range chains {
		for _, e := range c.Entries {
			t.AppendRow(table.Row{c.Base, e.Level, e.View, e.Source, len(e.Children)})
		}
	}
	t.Render()
}
