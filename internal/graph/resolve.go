package graph

import "log/slog"

// ChainEntry places one view inside the chain of a base table.
type ChainEntry struct {
	// Level is the number of hops from the base table.
	Level int `json:"level"`
	// Source is the node the view is built from directly.
	Source string `json:"source"`
	// Children lists views detected as built on this one.
	Children []string `json:"children,omitempty"`
}

// Chain holds the resolved entries for every view reachable from one base
// table. It is read-only once returned by the resolver.
type Chain struct {
	base    string
	views   []string
	entries map[string]*ChainEntry
}

func newChain(base string) *Chain {
	return &Chain{base: base, entries: make(map[string]*ChainEntry)}
}

// Base returns the base table the chain starts from.
func (c *Chain) Base() string { return c.base }

// Views returns the views of the chain in resolution order.
func (c *Chain) Views() []string {
	out := make([]string, len(c.views))
	copy(out, c.views)
	return out
}

// Len returns the number of views in the chain.
func (c *Chain) Len() int {
	if c == nil {
		return 0
	}
	return len(c.views)
}

// Entry returns a copy of the entry for view.
func (c *Chain) Entry(view string) (ChainEntry, bool) {
	if c == nil {
		return ChainEntry{}, false
	}
	e, ok := c.entries[view]
	if !ok {
		return ChainEntry{}, false
	}
	return ChainEntry{
		Level:    e.Level,
		Source:   e.Source,
		Children: append([]string(nil), e.Children...),
	}, true
}

// MaxLevel returns the deepest level in the chain.
func (c *Chain) MaxLevel() int {
	deepest := 0
	for _, e := range c.entries {
		if e.Level > deepest {
			deepest = e.Level
		}
	}
	return deepest
}

func (c *Chain) put(view string, level int, source string) {
	e, ok := c.entries[view]
	if !ok {
		e = &ChainEntry{Children: []string{}}
		c.entries[view] = e
		c.views = append(c.views, view)
	}
	e.Level = level
	e.Source = source
}

func (c *Chain) addChild(view, child string) {
	e, ok := c.entries[view]
	if !ok || contains(e.Children, child) {
		return
	}
	e.Children = append(e.Children, child)
}

// CompleteChains maps base tables to their resolved chains, in base table
// discovery order.
type CompleteChains struct {
	bases  []string
	chains map[string]*Chain
}

// Bases returns the base tables that have a chain.
func (cc *CompleteChains) Bases() []string {
	if cc == nil {
		return nil
	}
	out := make([]string, len(cc.bases))
	copy(out, cc.bases)
	return out
}

// Chain returns the chain for base.
func (cc *CompleteChains) Chain(base string) (*Chain, bool) {
	if cc == nil {
		return nil, false
	}
	c, ok := cc.chains[base]
	return c, ok
}

// Len returns the number of base tables with a chain.
func (cc *CompleteChains) Len() int {
	if cc == nil {
		return 0
	}
	return len(cc.bases)
}

// ResolveAll resolves a chain for every base table with at least one direct
// aggregate. g may be nil, in which case only definition text is used.
func ResolveAll(aggs *Aggregates, defs *Definitions, g *DependencyGraph, opts Options) *CompleteChains {
	cc := &CompleteChains{chains: make(map[string]*Chain)}
	for _, base := range aggs.Bases() {
		set, _ := aggs.Get(base)
		if len(set.Direct) == 0 {
			continue
		}
		cc.bases = append(cc.bases, base)
		cc.chains[base] = ResolveChain(base, set, defs, g, opts)
	}
	return cc
}

// ResolveChain computes level and source for every aggregate of base.
//
// Direct aggregates start at level 1. Indirect aggregates are placed from
// their definition text: under the first direct aggregate they reference
// (level 2), then under the first other indirect aggregate already placed
// (level 3). Anything still unplaced falls back to level 2 under base. A
// reconciliation pass raises a view to one past any chain member its
// definition references. Finally, when g has edges, the path found from base
// in g is authoritative for both level and source.
func ResolveChain(base string, set AggregateSet, defs *Definitions, g *DependencyGraph, opts Options) *Chain {
	m := opts.matcher()
	logger := opts.logger().With("base_table", base)
	c := newChain(base)

	for _, view := range set.Direct {
		if view == base {
			continue
		}
		c.put(view, 1, base)
	}

	for _, view := range set.Indirect {
		if view == base {
			continue
		}
		def, ok := defs.Get(view)
		if !ok {
			continue
		}
		for _, direct := range set.Direct {
			if direct == view || direct == base || !m.References(def, direct) {
				continue
			}
			c.put(view, 2, direct)
			c.addChild(direct, view)
			break
		}
		for _, other := range set.Indirect {
			if other == view || other == base {
				continue
			}
			if _, placed := c.entries[other]; !placed || !m.References(def, other) {
				continue
			}
			c.put(view, 3, other)
			c.addChild(other, view)
			break
		}
	}

	for _, view := range set.Indirect {
		if view == base {
			continue
		}
		if _, placed := c.entries[view]; placed {
			continue
		}
		logger.Debug("indirect aggregate source unresolved, defaulting to base table", "view", view)
		c.put(view, 2, base)
	}

	views := c.Views()
	for _, view := range views {
		def, ok := defs.Get(view)
		if !ok {
			continue
		}
		for _, other := range views {
			if other == view || !m.References(def, other) {
				continue
			}
			ve, oe := c.entries[view], c.entries[other]
			if oe.Level+1 > ve.Level {
				ve.Level = oe.Level + 1
				ve.Source = other
				c.addChild(other, view)
			}
		}
	}

	if g.Len() == 0 {
		return c
	}
	for _, view := range c.views {
		path, ok := FindPath(g, base, view)
		if !ok {
			continue
		}
		e := c.entries[view]
		level, source := len(path)-1, path[len(path)-2]
		if e.Level != level || e.Source != source {
			logger.Debug("dependency graph overrides chain placement",
				"view", view, "level", level, "source", source,
				"heuristic_level", e.Level, "heuristic_source", e.Source)
		}
		e.Level = level
		e.Source = source
	}
	return c
}

// Options tunes chain analysis.
type Options struct {
	// Matcher decides whether a definition references a name. Defaults to SubstringMatcher.
	Matcher Matcher
	// MaxChainDepth caps indirect-aggregate propagation. Defaults to DefaultMaxChainDepth.
	MaxChainDepth int
	// UseReferences takes chained relationships from catalog references
	// instead of definition text.
	UseReferences bool
	// SkipGraph disables path-based correction.
	SkipGraph bool
	Logger    *slog.Logger
}

func (o Options) matcher() Matcher {
	if o.Matcher == nil {
		return SubstringMatcher{}
	}
	return o.Matcher
}

func (o Options) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return o.Logger
}

// Input is the data the analysis needs from the catalog.
type Input struct {
	// Direct lists base table -> continuous aggregate bindings.
	Direct []Relationship
	// Chained lists view-on-view bindings already known to the catalog.
	Chained []Relationship
	// References lists relations referenced by each view's query.
	References  []ViewReference
	Definitions *Definitions
}

// Result is the outcome of a chain analysis.
type Result struct {
	Chained    []Relationship
	Graph      *DependencyGraph
	Aggregates *Aggregates
	Chains     *CompleteChains
}

// Analyze discovers chained relationships, builds the dependency graph and
// resolves the chain of every base table.
func Analyze(in Input, opts Options) *Result {
	defs := in.Definitions
	if defs == nil {
		defs = NewDefinitions()
	}

	var discovered []Relationship
	if opts.UseReferences {
		discovered = ChainedFromReferences(in.References, defs)
	} else {
		discovered = DiscoverChained(defs, opts.matcher())
	}
	chained := mergeRelationships(in.Chained, discovered)

	res := &Result{
		Chained:    chained,
		Graph:      BuildGraph(mergeRelationships(in.Direct, chained)),
		Aggregates: GroupAggregates(in.Direct, chained, opts.MaxChainDepth),
	}
	var g *DependencyGraph
	if !opts.SkipGraph {
		g = res.Graph
	}
	res.Chains = ResolveAll(res.Aggregates, defs, g, opts)

	opts.logger().Debug("chain analysis complete",
		"direct", len(in.Direct), "chained", len(chained),
		"bases", res.Chains.Len())
	return res
}

// mergeRelationships concatenates lists, dropping repeated source/target pairs.
func mergeRelationships(lists ...[]Relationship) []Relationship {
	type key struct{ source, target string }
	seen := make(map[key]bool)
	var out []Relationship
	for _, list := range lists {
		for _, r := range list {
			k := key{r.Source, r.Target}
			if seen[k] {
				continue
			}
			seen[k] = true
			out = append(out, r)
		}
	}
	return out
}
