package catalog

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lithammer/dedent"

	"github.com/hurou927/tsdb-report/internal/graph"
	"github.com/hurou927/tsdb-report/internal/schema"
)

// Aggregate is a continuous aggregate and the hypertable it reads from.
type Aggregate struct {
	ViewSchema       string
	ViewName         string
	HypertableSchema string
	HypertableName   string
	MaterializedOnly bool
	// Definition is the user's query; empty when the source does not expose it.
	Definition string
}

var (
	aggregatesInformationQuery = dedent.Dedent(`
		SELECT
			hypertable_schema,
			hypertable_name,
			view_schema,
			view_name,
			materialized_only,
			COALESCE(view_definition, '') AS view_definition
		FROM timescaledb_information.continuous_aggregates
		WHERE view_schema = ANY($1)
		ORDER BY view_schema, view_name
	`)

	aggregatesCatalogQuery = dedent.Dedent(`
		SELECT
			h.schema_name,
			h.table_name,
			cagg.user_view_schema,
			cagg.user_view_name,
			cagg.materialized_only,
			'' AS view_definition
		FROM _timescaledb_catalog.continuous_agg cagg
		JOIN _timescaledb_catalog.hypertable h ON h.id = cagg.raw_hypertable_id
		WHERE cagg.user_view_schema = ANY($1)
		ORDER BY cagg.mat_hypertable_id
	`)

	aggregatesLegacyCatalogQuery = dedent.Dedent(`
		SELECT
			h.schema_name,
			h.table_name,
			cagg.user_view_schema,
			cagg.user_view_name,
			false AS materialized_only,
			'' AS view_definition
		FROM _timescaledb_catalog.continuous_agg cagg
		JOIN _timescaledb_catalog.hypertable h ON h.id = cagg.raw_hypertable_id
		WHERE cagg.user_view_schema = ANY($1)
		ORDER BY cagg.mat_hypertable_id
	`)

	materializationsQuery = dedent.Dedent(`
		SELECT
			mh.table_name,
			cagg.user_view_name
		FROM _timescaledb_catalog.continuous_agg cagg
		JOIN _timescaledb_catalog.hypertable mh ON mh.id = cagg.mat_hypertable_id
		ORDER BY cagg.mat_hypertable_id
	`)

	viewDefinitionsQuery = dedent.Dedent(`
		SELECT
			n.nspname,
			c.relname,
			pg_get_viewdef(c.oid, true)
		FROM pg_class c
		JOIN pg_namespace n ON n.oid = c.relnamespace
		WHERE c.relkind IN ('v', 'm')
			AND n.nspname = ANY($1)
		ORDER BY n.nspname, c.relname
	`)

	viewReferencesQuery = dedent.Dedent(`
		SELECT DISTINCT
			v.relname AS view_name,
			r.relname AS referenced_name
		FROM pg_depend d
		JOIN pg_rewrite w ON w.oid = d.objid
		JOIN pg_class v ON v.oid = w.ev_class
		JOIN pg_namespace vn ON vn.oid = v.relnamespace
		JOIN pg_class r ON r.oid = d.refobjid
		WHERE d.classid = 'pg_rewrite'::regclass
			AND d.refclassid = 'pg_class'::regclass
			AND d.deptype = 'n'
			AND v.oid <> r.oid
			AND vn.nspname = ANY($1)
		ORDER BY v.relname, r.relname
	`)
)

func scanAggregate(rows *sql.Rows) (Aggregate, error) {
	var a Aggregate
	err := rows.Scan(&a.HypertableSchema, &a.HypertableName, &a.ViewSchema, &a.ViewName, &a.MaterializedOnly, &a.Definition)
	return a, err
}

// ContinuousAggregates lists continuous aggregates in the configured schemas.
func (c *Collector) ContinuousAggregates(ctx context.Context) ([]Aggregate, error) {
	fetch := func(query string) func(context.Context) ([]Aggregate, error) {
		return func(ctx context.Context) ([]Aggregate, error) {
			return queryAll(ctx, c, query, scanAggregate, c.opts.Schemas)
		}
	}
	return optional(firstOf(ctx, c.logger, "continuous aggregates",
		Strategy[Aggregate]{Name: "timescaledb_information", Fetch: fetch(aggregatesInformationQuery)},
		Strategy[Aggregate]{Name: "timescaledb_catalog", Fetch: fetch(aggregatesCatalogQuery)},
		Strategy[Aggregate]{Name: "timescaledb_catalog_legacy", Fetch: fetch(aggregatesLegacyCatalogQuery)},
	))
}

// MaterializationMap maps each materialization hypertable name to the user
// view it backs.
func (c *Collector) MaterializationMap(ctx context.Context) (map[string]string, error) {
	type pair struct{ table, view string }
	rows, err := optional(firstOf(ctx, c.logger, "materializations",
		Strategy[pair]{Name: "timescaledb_catalog", Fetch: func(ctx context.Context) ([]pair, error) {
			return queryAll(ctx, c, materializationsQuery, func(rows *sql.Rows) (pair, error) {
				var p pair
				err := rows.Scan(&p.table, &p.view)
				return p, err
			})
		}},
	))
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(rows))
	for _, p := range rows {
		out[p.table] = p.view
	}
	return out, nil
}

// Relationships splits aggregates into base table bindings and view-on-view
// bindings. An aggregate whose reported source is another aggregate's
// materialization hypertable is built on that aggregate.
func Relationships(aggs []Aggregate, materializations map[string]string) (direct, chained []graph.Relationship) {
	for _, a := range aggs {
		if view, ok := materializations[a.HypertableName]; ok {
			chained = append(chained, graph.Relationship{Source: view, Target: a.ViewName, Kind: graph.KindChained})
			continue
		}
		direct = append(direct, graph.Relationship{Source: a.HypertableName, Target: a.ViewName, Kind: graph.KindDirect})
	}
	return direct, chained
}

// ViewDefinitions returns every view with a definition: continuous aggregates first,
// with the user's query where available, then plain and materialized views
// via pg_get_viewdef. The first definition seen for a name wins.
func (c *Collector) ViewDefinitions(ctx context.Context, aggs []Aggregate) ([]schema.View, error) {
	seen := make(map[string]bool)
	var views []schema.View
	add := func(v schema.View) {
		if v.Definition == "" || seen[v.Name] {
			return
		}
		seen[v.Name] = true
		views = append(views, v)
	}

	for _, a := range aggs {
		add(schema.View{Schema: a.ViewSchema, Name: a.ViewName, Definition: a.Definition})
	}

	plain, err := optional(firstOf(ctx, c.logger, "view definitions",
		Strategy[schema.View]{Name: "pg_get_viewdef", Fetch: func(ctx context.Context) ([]schema.View, error) {
			return queryAll(ctx, c, viewDefinitionsQuery, func(rows *sql.Rows) (schema.View, error) {
				var v schema.View
				err := rows.Scan(&v.Schema, &v.Name, &v.Definition)
				return v, err
			}, c.opts.Schemas)
		}},
	))
	if err != nil {
		return nil, fmt.Errorf("querying view definitions: %w", err)
	}
	for _, v := range plain {
		add(v)
	}
	return views, nil
}

// DirectRelationships reads continuous aggregates and splits them with
// Relationships.
func (c *Collector) DirectRelationships(ctx context.Context) (direct, chained []graph.Relationship, err error) {
	aggs, err := c.ContinuousAggregates(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("querying continuous aggregates: %w", err)
	}
	mats, err := c.MaterializationMap(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("querying materializations: %w", err)
	}
	direct, chained = Relationships(aggs, mats)
	return direct, chained, nil
}

// Definitions converts views into the ordered definition mapping used by
// chain analysis.
func Definitions(views []schema.View) *graph.Definitions {
	defs := graph.NewDefinitions()
	for _, v := range views {
		defs.Add(v.Name, v.Definition)
	}
	return defs
}

// ViewReferences lists the relations each view's stored query depends on,
// as recorded in pg_depend. Materialization hypertables are reported as the
// aggregate they back.
func (c *Collector) ViewReferences(ctx context.Context, materializations map[string]string) ([]graph.ViewReference, error) {
	refs, err := optional(firstOf(ctx, c.logger, "view references",
		Strategy[graph.ViewReference]{Name: "pg_depend", Fetch: func(ctx context.Context) ([]graph.ViewReference, error) {
			return queryAll(ctx, c, viewReferencesQuery, func(rows *sql.Rows) (graph.ViewReference, error) {
				var r graph.ViewReference
				err := rows.Scan(&r.View, &r.Referenced)
				return r, err
			}, c.opts.Schemas)
		}},
	))
	if err != nil {
		return nil, fmt.Errorf("querying view references: %w", err)
	}
	for i, r := range refs {
		if view, ok := materializations[r.Referenced]; ok {
			refs[i].Referenced = view
		}
	}
	return refs, nil
}
