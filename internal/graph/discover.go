package graph

// DefaultMaxChainDepth bounds indirect-aggregate propagation: after the first
// indirect placement, at most DefaultMaxChainDepth-1 further passes run.
const DefaultMaxChainDepth = 4

// DiscoverChained infers view-on-view relationships from definition text. For
// every ordered pair of distinct views (a, b), a is recorded as built from b
// when a's definition references b.
func DiscoverChained(defs *Definitions, m Matcher) []Relationship {
	if m == nil {
		m = SubstringMatcher{}
	}
	names := defs.Names()
	var out []Relationship
	for _, view := range names {
		def, _ := defs.Get(view)
		for _, other := range names {
			if other == view || !m.References(def, other) {
				continue
			}
			out = append(out, Relationship{Source: other, Target: view, Kind: KindChained})
		}
	}
	return out
}

// ViewReference is a relation referenced by a view's stored query, as
// recorded in the catalog.
type ViewReference struct {
	View       string
	Referenced string
}

// ChainedFromReferences turns catalog-recorded view references into chained
// relationships. Only pairs where both sides have a definition qualify.
func ChainedFromReferences(refs []ViewReference, defs *Definitions) []Relationship {
	var out []Relationship
	seen := make(map[Relationship]bool)
	for _, ref := range refs {
		if ref.View == ref.Referenced || !defs.Has(ref.View) || !defs.Has(ref.Referenced) {
			continue
		}
		r := Relationship{Source: ref.Referenced, Target: ref.View, Kind: KindChained}
		if seen[r] {
			continue
		}
		seen[r] = true
		out = append(out, r)
	}
	return out
}

// AggregateSet lists the aggregates reachable from one base table.
type AggregateSet struct {
	Direct   []string
	Indirect []string
}

// Aggregates groups aggregate sets by base table in first-seen order.
type Aggregates struct {
	bases []string
	sets  map[string]*AggregateSet
}

func newAggregates() *Aggregates {
	return &Aggregates{sets: make(map[string]*AggregateSet)}
}

func (a *Aggregates) set(base string) *AggregateSet {
	s, ok := a.sets[base]
	if !ok {
		s = &AggregateSet{}
		a.sets[base] = s
		a.bases = append(a.bases, base)
	}
	return s
}

// Bases returns base tables in first-seen order.
func (a *Aggregates) Bases() []string {
	out := make([]string, len(a.bases))
	copy(out, a.bases)
	return out
}

// Get returns a copy of the aggregate set for base.
func (a *Aggregates) Get(base string) (AggregateSet, bool) {
	s, ok := a.sets[base]
	if !ok {
		return AggregateSet{}, false
	}
	return AggregateSet{
		Direct:   append([]string(nil), s.Direct...),
		Indirect: append([]string(nil), s.Indirect...),
	}, true
}

// BasesOf returns the base tables that reach view, with whether the
// relationship is direct.
func (a *Aggregates) BasesOf(view string) (direct, indirect []string) {
	for _, base := range a.bases {
		s := a.sets[base]
		switch {
		case contains(s.Direct, view):
			direct = append(direct, base)
		case contains(s.Indirect, view):
			indirect = append(indirect, base)
		}
	}
	return direct, indirect
}

// GroupAggregates builds the per-base-table aggregate sets. Direct
// relationships seed the sets. A chained relationship whose source is a direct
// aggregate of a base makes its target indirect for that base; further passes
// follow chains from indirect aggregates until a pass adds nothing or
// maxDepth-1 further passes have run.
func GroupAggregates(direct, chained []Relationship, maxDepth int) *Aggregates {
	if maxDepth < 2 {
		maxDepth = DefaultMaxChainDepth
	}
	aggs := newAggregates()
	for _, r := range direct {
		s := aggs.set(r.Source)
		if r.Target != r.Source && !contains(s.Direct, r.Target) {
			s.Direct = append(s.Direct, r.Target)
		}
	}

	for _, r := range chained {
		for _, base := range aggs.bases {
			s := aggs.sets[base]
			if r.Target == base || !contains(s.Direct, r.Source) || contains(s.Indirect, r.Target) {
				continue
			}
			s.Indirect = append(s.Indirect, r.Target)
		}
	}

	for pass := 0; pass < maxDepth-1; pass++ {
		added := 0
		for _, r := range chained {
			for _, base := range aggs.bases {
				s := aggs.sets[base]
				if r.Target == base || !contains(s.Indirect, r.Source) || contains(s.Indirect, r.Target) {
					continue
				}
				s.Indirect = append(s.Indirect, r.Target)
				added++
			}
		}
		if added == 0 {
			break
		}
	}
	return aggs
}
