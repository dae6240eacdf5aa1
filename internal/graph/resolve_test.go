package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hurou927/tsdb-report/internal/testutil"
)

func threeLevelInput() Input {
	return Input{
		Direct: []Relationship{{Source: "raw", Target: "agg_1min", Kind: KindDirect}},
		Definitions: defsOf(
			"agg_1min", "SELECT time_bucket('1 minute', time) AS bucket, avg(v) FROM raw GROUP BY 1",
			"agg_1hour", "SELECT time_bucket('1 hour', bucket) AS bucket, avg(avg) FROM agg_1min GROUP BY 1",
			"agg_1day", "SELECT time_bucket('1 day', bucket) AS bucket, avg(avg) FROM agg_1hour GROUP BY 1",
		),
	}
}

func requireEntry(t *testing.T, c *Chain, view string, level int, source string) ChainEntry {
	t.Helper()
	e, ok := c.Entry(view)
	require.True(t, ok, "missing entry for %s", view)
	assert.Equal(t, level, e.Level, "level of %s", view)
	assert.Equal(t, source, e.Source, "source of %s", view)
	return e
}

func TestAnalyzeThreeLevelChain(t *testing.T) {
	for _, skip := range []bool{false, true} {
		res := Analyze(threeLevelInput(), Options{SkipGraph: skip, Logger: testutil.NewTestLogger(t)})

		require.Equal(t, []string{"raw"}, res.Chains.Bases())
		c, ok := res.Chains.Chain("raw")
		require.True(t, ok)
		assert.Equal(t, 3, c.Len())
		assert.Equal(t, 3, c.MaxLevel())

		e := requireEntry(t, c, "agg_1min", 1, "raw")
		assert.Equal(t, []string{"agg_1hour"}, e.Children)
		e = requireEntry(t, c, "agg_1hour", 2, "agg_1min")
		assert.Equal(t, []string{"agg_1day"}, e.Children)
		requireEntry(t, c, "agg_1day", 3, "agg_1hour")
	}
}

func TestResolveChainLevelsMatchGraphPaths(t *testing.T) {
	res := Analyze(threeLevelInput(), Options{})
	c, _ := res.Chains.Chain("raw")
	for _, view := range c.Views() {
		path, ok := FindPath(res.Graph, "raw", view)
		require.True(t, ok)
		e, _ := c.Entry(view)
		assert.Equal(t, len(path)-1, e.Level, view)
		assert.Equal(t, path[len(path)-2], e.Source, view)
	}
}

func TestResolveChainGraphOverridesHeuristic(t *testing.T) {
	set := AggregateSet{Direct: []string{"v1"}, Indirect: []string{"v3"}}
	defs := defsOf(
		"v1", "SELECT * FROM base",
		"v3", "SELECT * FROM v1",
	)

	heuristic := ResolveChain("base", set, defs, nil, Options{})
	requireEntry(t, heuristic, "v3", 2, "v1")

	g := BuildGraph([]Relationship{
		{Source: "base", Target: "v1"},
		{Source: "v1", Target: "v2"},
		{Source: "v2", Target: "v3"},
	})
	corrected := ResolveChain("base", set, defs, g, Options{})
	requireEntry(t, corrected, "v3", 3, "v2")
	requireEntry(t, corrected, "v1", 1, "base")
}

func TestResolveChainUnresolvedIndirectFallsBackToBase(t *testing.T) {
	set := AggregateSet{Direct: []string{"a"}, Indirect: []string{"mystery"}}
	c := ResolveChain("raw", set, defsOf("a", "SELECT * FROM raw"), nil, Options{Logger: testutil.NewTestLogger(t)})

	requireEntry(t, c, "a", 1, "raw")
	e := requireEntry(t, c, "mystery", 2, "raw")
	assert.Empty(t, e.Children)
	assert.Equal(t, []string{"a", "mystery"}, c.Views())
}

func TestResolveChainNeverContainsBase(t *testing.T) {
	set := AggregateSet{Direct: []string{"raw", "a"}, Indirect: []string{"raw", "b"}}
	defs := defsOf("a", "SELECT * FROM raw", "b", "SELECT * FROM a")
	g := BuildGraph([]Relationship{{Source: "raw", Target: "a"}, {Source: "a", Target: "b"}})

	c := ResolveChain("raw", set, defs, g, Options{})
	_, ok := c.Entry("raw")
	assert.False(t, ok)
	assert.Equal(t, []string{"a", "b"}, c.Views())
}

func TestResolveChainFirstMatchWins(t *testing.T) {
	set := AggregateSet{Direct: []string{"agg_a", "agg_b"}, Indirect: []string{"agg_c"}}
	defs := defsOf(
		"agg_a", "SELECT * FROM raw",
		"agg_b", "SELECT * FROM raw",
		"agg_c", "SELECT * FROM agg_a JOIN agg_b USING (bucket)",
	)
	c := ResolveChain("raw", set, defs, nil, Options{})
	requireEntry(t, c, "agg_c", 2, "agg_a")
	a, _ := c.Entry("agg_a")
	b, _ := c.Entry("agg_b")
	assert.Equal(t, []string{"agg_c"}, a.Children)
	assert.Empty(t, b.Children)
}

func TestResolveChainReconciliationRaisesLevels(t *testing.T) {
	// agg_d is listed before agg_c, so placement only sees agg_a for it; the
	// reconciliation pass lifts it under agg_c.
	set := AggregateSet{Direct: []string{"agg_a"}, Indirect: []string{"agg_d", "agg_b", "agg_c"}}
	defs := defsOf(
		"agg_a", "SELECT * FROM raw",
		"agg_b", "SELECT * FROM agg_a",
		"agg_c", "SELECT * FROM agg_b",
		"agg_d", "SELECT * FROM agg_c JOIN agg_a USING (bucket)",
	)
	c := ResolveChain("raw", set, defs, nil, Options{})
	requireEntry(t, c, "agg_b", 2, "agg_a")
	requireEntry(t, c, "agg_c", 3, "agg_b")
	requireEntry(t, c, "agg_d", 4, "agg_c")
	e, _ := c.Entry("agg_c")
	assert.Equal(t, []string{"agg_d"}, e.Children)
}

func TestResolveChainCyclicDefinitions(t *testing.T) {
	set := AggregateSet{Direct: []string{"agg_a"}, Indirect: []string{"agg_b"}}
	defs := defsOf("agg_a", "SELECT * FROM raw, agg_b", "agg_b", "SELECT * FROM agg_a")
	g := NewDependencyGraph()
	g.AddEdge("raw", "agg_a")
	g.AddEdge("agg_a", "agg_b")
	g.AddEdge("agg_b", "agg_a")

	c := ResolveChain("raw", set, defs, g, Options{})
	requireEntry(t, c, "agg_a", 1, "raw")
	requireEntry(t, c, "agg_b", 2, "agg_a")
}

func TestAnalyzeIsDeterministic(t *testing.T) {
	in := threeLevelInput()
	in.Direct = append(in.Direct, Relationship{Source: "logs", Target: "logs_1h", Kind: KindDirect})
	in.Definitions.Add("logs_1h", "SELECT * FROM logs")

	first := Analyze(in, Options{})
	second := Analyze(in, Options{})
	assert.Equal(t, first, second)
	assert.Equal(t, []string{"raw", "logs"}, first.Chains.Bases())
}

func TestAnalyzeWithCatalogReferences(t *testing.T) {
	in := Input{
		Direct: []Relationship{{Source: "raw", Target: "agg_1h", Kind: KindDirect}},
		References: []ViewReference{
			{View: "agg_1h", Referenced: "raw"},
			{View: "agg_1hour", Referenced: "agg_1h"},
		},
		Definitions: defsOf(
			"agg_1h", "SELECT * FROM raw",
			"agg_1hour", "SELECT * FROM agg_1h",
			"agg_1hours", "SELECT 1",
		),
	}
	res := Analyze(in, Options{UseReferences: true})
	assert.Equal(t, []Relationship{{Source: "agg_1h", Target: "agg_1hour", Kind: KindChained}}, res.Chained)
	c, _ := res.Chains.Chain("raw")
	requireEntry(t, c, "agg_1hour", 2, "agg_1h")
	assert.Equal(t, 2, c.Len())
}

func TestAnalyzeMergesCatalogChains(t *testing.T) {
	in := Input{
		Direct:      []Relationship{{Source: "raw", Target: "hourly", Kind: KindDirect}},
		Chained:     []Relationship{{Source: "hourly", Target: "daily", Kind: KindChained}},
		Definitions: defsOf("hourly", "SELECT 1", "daily", "SELECT 2"),
	}
	res := Analyze(in, Options{})
	c, _ := res.Chains.Chain("raw")
	requireEntry(t, c, "daily", 2, "hourly")
}

func TestAnalyzeBaseWithoutAggregates(t *testing.T) {
	res := Analyze(Input{}, Options{})
	assert.Equal(t, 0, res.Chains.Len())
	_, ok := res.Chains.Chain("raw")
	assert.False(t, ok)
}
