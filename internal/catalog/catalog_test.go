package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hurou927/tsdb-report/internal/graph"
	"github.com/hurou927/tsdb-report/internal/schema"
	"github.com/hurou927/tsdb-report/internal/testutil"
)

var aggColumns = []string{"hypertable_schema", "hypertable_name", "view_schema", "view_name", "materialized_only", "view_definition"}

func newTestCollector(t *testing.T, opts Options) (*Collector, sqlmock.Sqlmock) {
	t.Helper()
	db, mock := testutil.NewMockDB(t)
	return NewCollector(db, opts, testutil.NewTestLogger(t)), mock
}

func TestNewCollectorDefaults(t *testing.T) {
	c := NewCollector(nil, Options{}, nil)
	assert.Equal(t, []string{"public"}, c.opts.Schemas)
	assert.Equal(t, 1, c.opts.Concurrency)
	assert.Equal(t, 10, c.opts.SlowQueryLimit)
	assert.NotNil(t, c.logger)
}

func TestContinuousAggregatesInformationSchema(t *testing.T) {
	c, mock := newTestCollector(t, Options{})
	mock.ExpectQuery(aggregatesInformationQuery).WithArgs([]string{"public"}).WillReturnRows(
		sqlmock.NewRows(aggColumns).
			AddRow("public", "conditions", "public", "conditions_1min", false, "SELECT time_bucket('1 minute', time) FROM conditions").
			AddRow("_timescaledb_internal", "_materialized_hypertable_2", "public", "conditions_1hour", true, "SELECT ... FROM conditions_1min"),
	)

	aggs, err := c.ContinuousAggregates(context.Background())
	require.NoError(t, err)
	require.Len(t, aggs, 2)
	assert.Equal(t, "conditions_1min", aggs[0].ViewName)
	assert.Equal(t, "conditions", aggs[0].HypertableName)
	assert.True(t, aggs[1].MaterializedOnly)
}

func TestContinuousAggregatesFallsBackToCatalog(t *testing.T) {
	c, mock := newTestCollector(t, Options{})
	mock.ExpectQuery(aggregatesInformationQuery).
		WillReturnError(&pgconn.PgError{Code: "42P01", Message: `relation "timescaledb_information.continuous_aggregates" does not exist`})
	mock.ExpectQuery(aggregatesCatalogQuery).
		WillReturnError(&pgconn.PgError{Code: "42703", Message: `column cagg.materialized_only does not exist`})
	mock.ExpectQuery(aggregatesLegacyCatalogQuery).WillReturnRows(
		sqlmock.NewRows(aggColumns).AddRow("public", "conditions", "public", "conditions_1min", false, ""),
	)

	aggs, err := c.ContinuousAggregates(context.Background())
	require.NoError(t, err)
	require.Len(t, aggs, 1)
	assert.Equal(t, "conditions_1min", aggs[0].ViewName)
	assert.Empty(t, aggs[0].Definition)
}

func TestContinuousAggregatesEmptyStrategyTriesNext(t *testing.T) {
	c, mock := newTestCollector(t, Options{})
	mock.ExpectQuery(aggregatesInformationQuery).WillReturnRows(sqlmock.NewRows(aggColumns))
	mock.ExpectQuery(aggregatesCatalogQuery).WillReturnRows(
		sqlmock.NewRows(aggColumns).AddRow("public", "metrics", "public", "metrics_daily", false, ""),
	)

	aggs, err := c.ContinuousAggregates(context.Background())
	require.NoError(t, err)
	require.Len(t, aggs, 1)
	assert.Equal(t, "metrics_daily", aggs[0].ViewName)
}

func TestContinuousAggregatesNoneAvailable(t *testing.T) {
	c, mock := newTestCollector(t, Options{})
	missing := &pgconn.PgError{Code: "3F000", Message: `schema "_timescaledb_catalog" does not exist`}
	mock.ExpectQuery(aggregatesInformationQuery).WillReturnError(missing)
	mock.ExpectQuery(aggregatesCatalogQuery).WillReturnError(missing)
	mock.ExpectQuery(aggregatesLegacyCatalogQuery).WillReturnError(missing)

	aggs, err := c.ContinuousAggregates(context.Background())
	require.NoError(t, err)
	assert.Empty(t, aggs)
}

func TestFirstOfStopsOnCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	rows, err := firstOf(ctx, testutil.NewTestLogger(t), "test",
		Strategy[int]{Name: "first", Fetch: func(context.Context) ([]int, error) {
			calls++
			cancel()
			return nil, context.Canceled
		}},
		Strategy[int]{Name: "second", Fetch: func(context.Context) ([]int, error) {
			calls++
			return []int{1}, nil
		}},
	)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, rows)
	assert.Equal(t, 1, calls)
}

func TestFirstOfTriesNextAfterUnexpectedError(t *testing.T) {
	rows, err := firstOf(context.Background(), testutil.NewTestLogger(t), "test",
		Strategy[int]{Name: "broken", Fetch: func(context.Context) ([]int, error) {
			return nil, errors.New("boom")
		}},
		Strategy[int]{Name: "working", Fetch: func(context.Context) ([]int, error) {
			return []int{7}, nil
		}},
	)
	require.NoError(t, err)
	assert.Equal(t, []int{7}, rows)

	_, err = firstOf[int](context.Background(), testutil.NewTestLogger(t), "test")
	assert.ErrorIs(t, err, ErrNoData)
}

func TestUnavailable(t *testing.T) {
	assert.True(t, unavailable(&pgconn.PgError{Code: "42P01"}))
	assert.True(t, unavailable(errors.Join(errors.New("wrapped"), &pgconn.PgError{Code: "42883"})))
	assert.False(t, unavailable(&pgconn.PgError{Code: "23505"}))
	assert.False(t, unavailable(errors.New("plain")))
}

func TestMaterializationMap(t *testing.T) {
	c, mock := newTestCollector(t, Options{})
	mock.ExpectQuery(materializationsQuery).WillReturnRows(
		sqlmock.NewRows([]string{"table_name", "user_view_name"}).
			AddRow("_materialized_hypertable_2", "conditions_1min").
			AddRow("_materialized_hypertable_3", "conditions_1hour"),
	)

	mats, err := c.MaterializationMap(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"_materialized_hypertable_2": "conditions_1min",
		"_materialized_hypertable_3": "conditions_1hour",
	}, mats)
}

func TestRelationshipsRewritesMaterializedSources(t *testing.T) {
	aggs := []Aggregate{
		{HypertableName: "conditions", ViewName: "conditions_1min"},
		{HypertableName: "_materialized_hypertable_2", ViewName: "conditions_1hour"},
		{HypertableName: "_materialized_hypertable_3", ViewName: "conditions_1day"},
		{HypertableName: "metrics", ViewName: "metrics_daily"},
	}
	mats := map[string]string{
		"_materialized_hypertable_2": "conditions_1min",
		"_materialized_hypertable_3": "conditions_1hour",
	}

	direct, chained := Relationships(aggs, mats)
	assert.Equal(t, []graph.Relationship{
		{Source: "conditions", Target: "conditions_1min", Kind: graph.KindDirect},
		{Source: "metrics", Target: "metrics_daily", Kind: graph.KindDirect},
	}, direct)
	assert.Equal(t, []graph.Relationship{
		{Source: "conditions_1min", Target: "conditions_1hour", Kind: graph.KindChained},
		{Source: "conditions_1hour", Target: "conditions_1day", Kind: graph.KindChained},
	}, chained)
}

func TestDirectRelationships(t *testing.T) {
	c, mock := newTestCollector(t, Options{})
	mock.ExpectQuery(aggregatesInformationQuery).WillReturnRows(
		sqlmock.NewRows(aggColumns).
			AddRow("public", "conditions", "public", "conditions_1min", false, "").
			AddRow("_timescaledb_internal", "_materialized_hypertable_2", "public", "conditions_1hour", false, ""),
	)
	mock.ExpectQuery(materializationsQuery).WillReturnRows(
		sqlmock.NewRows([]string{"table_name", "user_view_name"}).AddRow("_materialized_hypertable_2", "conditions_1min"),
	)

	direct, chained, err := c.DirectRelationships(context.Background())
	require.NoError(t, err)
	require.Len(t, direct, 1)
	require.Len(t, chained, 1)
	assert.Equal(t, "conditions_1min", chained[0].Source)
}

func TestViewDefinitionsFirstWins(t *testing.T) {
	c, mock := newTestCollector(t, Options{})
	aggs := []Aggregate{
		{ViewSchema: "public", ViewName: "conditions_1min", Definition: "SELECT FROM conditions"},
		{ViewSchema: "public", ViewName: "conditions_1hour"},
	}
	mock.ExpectQuery(viewDefinitionsQuery).WithArgs([]string{"public"}).WillReturnRows(
		sqlmock.NewRows([]string{"nspname", "relname", "pg_get_viewdef"}).
			AddRow("public", "active_devices", "SELECT id FROM devices").
			AddRow("public", "conditions_1hour", "SELECT FROM _materialized_hypertable_2").
			AddRow("public", "conditions_1min", "SELECT FROM _materialized_hypertable_1"),
	)

	views, err := c.ViewDefinitions(context.Background(), aggs)
	require.NoError(t, err)
	require.Len(t, views, 3)
	assert.Equal(t, "conditions_1min", views[0].Name)
	assert.Equal(t, "SELECT FROM conditions", views[0].Definition)
	assert.Equal(t, "active_devices", views[1].Name)
	assert.Equal(t, "conditions_1hour", views[2].Name)

	defs := Definitions(views)
	assert.Equal(t, []string{"conditions_1min", "active_devices", "conditions_1hour"}, defs.Names())
}

func TestViewReferencesTranslatesMaterializations(t *testing.T) {
	c, mock := newTestCollector(t, Options{})
	mock.ExpectQuery(viewReferencesQuery).WillReturnRows(
		sqlmock.NewRows([]string{"view_name", "referenced_name"}).
			AddRow("conditions_1hour", "_materialized_hypertable_2").
			AddRow("device_summary", "devices"),
	)

	refs, err := c.ViewReferences(context.Background(), map[string]string{"_materialized_hypertable_2": "conditions_1min"})
	require.NoError(t, err)
	assert.Equal(t, []graph.ViewReference{
		{View: "conditions_1hour", Referenced: "conditions_1min"},
		{View: "device_summary", Referenced: "devices"},
	}, refs)
}

func TestHypertablesFallback(t *testing.T) {
	c, mock := newTestCollector(t, Options{Schemas: []string{"public", "metrics"}})
	cols := []string{"schema", "name", "time_column", "num_chunks", "compression_enabled"}
	mock.ExpectQuery(hypertablesInformationQuery).WithArgs([]string{"public", "metrics"}).
		WillReturnError(&pgconn.PgError{Code: "42P01"})
	mock.ExpectQuery(hypertablesCatalogQuery).WithArgs([]string{"public", "metrics"}).WillReturnRows(
		sqlmock.NewRows(cols).
			AddRow("public", "conditions", "time", 12, true).
			AddRow("metrics", "cpu", "ts", 3, false),
	)

	hts, err := c.Hypertables(context.Background())
	require.NoError(t, err)
	require.Len(t, hts, 2)
	assert.Equal(t, "time", hts[0].TimeColumn)
	assert.Equal(t, 12, hts[0].NumChunks)

	uncompressed := UncompressedHypertables(hts)
	require.Len(t, uncompressed, 1)
	assert.Equal(t, "cpu", uncompressed[0].Name)
}

func TestSlowQueriesMissingExtension(t *testing.T) {
	c, mock := newTestCollector(t, Options{SlowQueryLimit: 5})
	mock.ExpectQuery(slowQueriesQuery).WithArgs(5).
		WillReturnError(&pgconn.PgError{Code: "42P01", Message: `relation "pg_stat_statements" does not exist`})
	mock.ExpectQuery(slowQueriesLegacyQuery).WithArgs(5).
		WillReturnError(&pgconn.PgError{Code: "42P01", Message: `relation "pg_stat_statements" does not exist`})

	slow, err := c.SlowQueries(context.Background())
	require.NoError(t, err)
	assert.Empty(t, slow)
}

func TestSlowQueriesLegacyColumns(t *testing.T) {
	c, mock := newTestCollector(t, Options{})
	mock.ExpectQuery(slowQueriesQuery).WithArgs(10).
		WillReturnError(&pgconn.PgError{Code: "42703", Message: `column "mean_exec_time" does not exist`})
	mock.ExpectQuery(slowQueriesLegacyQuery).WithArgs(10).WillReturnRows(
		sqlmock.NewRows([]string{"query", "calls", "mean_time", "total_time"}).
			AddRow("SELECT * FROM conditions", int64(42), 1250.5, 52521.0),
	)

	slow, err := c.SlowQueries(context.Background())
	require.NoError(t, err)
	require.Len(t, slow, 1)
	assert.InDelta(t, 1250.5, slow[0].MeanMS, 0.001)
}

func TestVersionNotInstalled(t *testing.T) {
	c, mock := newTestCollector(t, Options{})
	mock.ExpectQuery(versionQuery).WillReturnRows(sqlmock.NewRows([]string{"extversion"}))

	v, err := c.Version(context.Background())
	require.NoError(t, err)
	assert.Empty(t, v)
}

func TestCompressionStatRatio(t *testing.T) {
	assert.InDelta(t, 4.0, CompressionStat{BeforeBytes: 4096, AfterBytes: 1024}.Ratio(), 0.001)
	assert.Zero(t, CompressionStat{BeforeBytes: 4096}.Ratio())
}

func TestQueryAllAppliesTimeout(t *testing.T) {
	c, mock := newTestCollector(t, Options{QueryTimeout: 10 * time.Millisecond})
	mock.ExpectQuery(versionQuery).WillDelayFor(time.Second).WillReturnRows(sqlmock.NewRows([]string{"extversion"}))

	_, err := c.Version(context.Background())
	require.Error(t, err)
}

func TestSnapshot(t *testing.T) {
	c, mock := newTestCollector(t, Options{Concurrency: 1, ViewReferences: true})
	mock.MatchExpectationsInOrder(false)

	mock.ExpectQuery(schema.TablesQuery).WillReturnRows(
		sqlmock.NewRows([]string{"schema_name", "table_name", "partitioned", "column_name", "data_type", "is_nullable", "ordinal_position"}).
			AddRow("public", "conditions", false, "time", "timestamp with time zone", false, 1),
	)
	mock.ExpectQuery(schema.IndexesQuery).WillReturnRows(
		sqlmock.NewRows([]string{"schema_name", "table_name", "index_name", "method", "is_primary", "is_unique", "columns"}),
	)
	mock.ExpectQuery(aggregatesInformationQuery).WillReturnRows(
		sqlmock.NewRows(aggColumns).
			AddRow("public", "conditions", "public", "conditions_1min", false, "SELECT FROM conditions").
			AddRow("_timescaledb_internal", "_materialized_hypertable_2", "public", "conditions_1hour", false, "SELECT FROM conditions_1min"),
	)
	mock.ExpectQuery(materializationsQuery).WillReturnRows(
		sqlmock.NewRows([]string{"table_name", "user_view_name"}).AddRow("_materialized_hypertable_2", "conditions_1min"),
	)
	mock.ExpectQuery(viewDefinitionsQuery).WillReturnRows(sqlmock.NewRows([]string{"nspname", "relname", "pg_get_viewdef"}))
	mock.ExpectQuery(viewReferencesQuery).WillReturnRows(
		sqlmock.NewRows([]string{"view_name", "referenced_name"}).AddRow("conditions_1hour", "_materialized_hypertable_2"),
	)
	mock.ExpectQuery(versionQuery).WillReturnRows(sqlmock.NewRows([]string{"extversion"}).AddRow("2.14.2"))
	mock.ExpectQuery(hypertablesInformationQuery).WillReturnRows(
		sqlmock.NewRows([]string{"schema", "name", "time_column", "num_chunks", "compression_enabled"}).
			AddRow("public", "conditions", "time", 4, false),
	)
	mock.ExpectQuery(jobsInformationQuery).WillReturnRows(
		sqlmock.NewRows([]string{"job_id", "proc_name", "schema", "table", "schedule", "config"}).
			AddRow(1000, "policy_refresh_continuous_aggregate", "_timescaledb_internal", "_materialized_hypertable_2", "01:00:00", `{"start_offset": "3 days"}`),
	)
	mock.ExpectQuery(compressionStatsQuery).WillReturnRows(sqlmock.NewRows([]string{"schema", "table", "before", "after"}))
	mock.ExpectQuery(databaseSizeQuery).WillReturnRows(sqlmock.NewRows([]string{"bytes", "pretty"}).AddRow(int64(8_388_608), "8192 kB"))
	mock.ExpectQuery(connectionStatsQuery).WillReturnRows(sqlmock.NewRows([]string{"state", "count"}).AddRow("active", 1))
	mock.ExpectQuery(slowQueriesQuery).WillReturnError(&pgconn.PgError{Code: "55000"})
	mock.ExpectQuery(slowQueriesLegacyQuery).WillReturnError(&pgconn.PgError{Code: "55000"})
	mock.ExpectQuery(unusedIndexesQuery).WillReturnRows(sqlmock.NewRows([]string{"schema", "table", "index", "bytes"}))
	mock.ExpectQuery(bloatedTablesQuery).WillReturnError(errors.New("permission denied for view pg_stat_user_tables"))

	snap, err := c.Snapshot(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "2.14.2", snap.Version)
	require.Len(t, snap.Tables, 1)
	assert.Equal(t, []graph.Relationship{{Source: "conditions", Target: "conditions_1min", Kind: graph.KindDirect}}, snap.Direct)
	assert.Equal(t, []graph.Relationship{{Source: "conditions_1min", Target: "conditions_1hour", Kind: graph.KindChained}}, snap.Chained)
	assert.Equal(t, []graph.ViewReference{{View: "conditions_1hour", Referenced: "conditions_1min"}}, snap.References)
	require.Len(t, snap.Views, 2)
	assert.Equal(t, "8192 kB", snap.Size.Pretty)
	assert.Empty(t, snap.SlowQueries)
	assert.Empty(t, snap.BloatedTables)
	require.Len(t, snap.Jobs, 1)

	ht, ok := snap.Hypertable("conditions")
	assert.True(t, ok)
	assert.Equal(t, "time", ht.TimeColumn)
	_, ok = snap.Hypertable("missing")
	assert.False(t, ok)
}

func TestSnapshotFailsWithoutTables(t *testing.T) {
	c, mock := newTestCollector(t, Options{Concurrency: 1})
	mock.MatchExpectationsInOrder(false)
	mock.ExpectQuery(schema.TablesQuery).WillReturnError(errors.New("connection refused"))

	_, err := c.Snapshot(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "introspecting schema")
}
