package report

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/hurou927/tsdb-report/internal/config"
	"github.com/hurou927/tsdb-report/internal/graph"
)

// ChainFormatter renders a resolved chain as indented text.
type ChainFormatter struct {
	Labels config.Labels
}

// Format returns the base table on the first line followed by every view,
// ordered by level and then by name, indented one unit per level below the
// first. It returns "" for an empty chain.
func (f ChainFormatter) Format(chain *graph.Chain) string {
	if chain == nil || chain.Len() == 0 {
		return ""
	}
	v := f.Labels.Values

	lines := []string{fmt.Sprintf("`%s` (%s)", chain.Base(), v.BaseTable)}
	for _, e := range orderedEntries(chain) {
		lines = append(lines, fmt.Sprintf("%s↳ `%s` (%s %d, %s `%s`)",
			strings.Repeat("    ", max(e.Level-1, 0)), e.View, v.Level, e.Level, v.SourcedFrom, e.Source))
	}
	return strings.Join(lines, "\n")
}

// ViewEntry is a chain entry together with its view name.
type ViewEntry struct {
	View string `json:"view"`
	graph.ChainEntry
}

// orderedEntries returns the chain's entries sorted by level, then by name.
func orderedEntries(chain *graph.Chain) []ViewEntry {
	entries := make([]ViewEntry, 0, chain.Len())
	for _, view := range chain.Views() {
		e, _ := chain.Entry(view)
		entries = append(entries, ViewEntry{View: view, ChainEntry: e})
	}
	slices.SortFunc(entries, func(a, b ViewEntry) int {
		return cmp.Or(cmp.Compare(a.Level, b.Level), cmp.Compare(a.View, b.View))
	})
	return entries
}
