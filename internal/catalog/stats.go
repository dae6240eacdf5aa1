package catalog

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lithammer/dedent"
)

// DatabaseSize is the on-disk size of the current database.
type DatabaseSize struct {
	Bytes  int64
	Pretty string
}

// ConnectionStat counts backends in one state.
type ConnectionStat struct {
	State string
	Count int
}

// SlowQuery is one pg_stat_statements entry.
type SlowQuery struct {
	Query   string
	Calls   int64
	MeanMS  float64
	TotalMS float64
}

// UnusedIndex is a non-unique index that has never been scanned.
type UnusedIndex struct {
	Schema string
	Table  string
	Index  string
	Bytes  int64
}

// BloatedTable is a table whose dead tuples exceed a fifth of its live ones.
type BloatedTable struct {
	Schema     string
	Table      string
	LiveTuples int64
	DeadTuples int64
}

var (
	databaseSizeQuery = dedent.Dedent(`
		SELECT
			pg_database_size(current_database()),
			pg_size_pretty(pg_database_size(current_database()))
	`)

	connectionStatsQuery = dedent.Dedent(`
		SELECT
			COALESCE(state, 'unknown') AS state,
			count(*)::int
		FROM pg_stat_activity
		WHERE datname = current_database()
		GROUP BY 1
		ORDER BY 2 DESC, 1
	`)

	// pg_stat_statements renamed its timing columns in 1.8.
	slowQueriesQuery = dedent.Dedent(`
		SELECT
			query,
			calls,
			mean_exec_time,
			total_exec_time
		FROM pg_stat_statements
		WHERE dbid = (SELECT oid FROM pg_database WHERE datname = current_database())
		ORDER BY mean_exec_time DESC
		LIMIT $1
	`)

	slowQueriesLegacyQuery = dedent.Dedent(`
		SELECT
			query,
			calls,
			mean_time,
			total_time
		FROM pg_stat_statements
		WHERE dbid = (SELECT oid FROM pg_database WHERE datname = current_database())
		ORDER BY mean_time DESC
		LIMIT $1
	`)

	unusedIndexesQuery = dedent.Dedent(`
		SELECT
			s.schemaname,
			s.relname,
			s.indexrelname,
			pg_relation_size(s.indexrelid)
		FROM pg_stat_user_indexes s
		JOIN pg_index i ON i.indexrelid = s.indexrelid
		WHERE s.idx_scan = 0
			AND NOT i.indisunique
			AND s.schemaname = ANY($1)
		ORDER BY pg_relation_size(s.indexrelid) DESC, s.indexrelname
	`)

	bloatedTablesQuery = dedent.Dedent(`
		SELECT
			schemaname,
			relname,
			n_live_tup,
			n_dead_tup
		FROM pg_stat_user_tables
		WHERE n_dead_tup > 1000
			AND n_dead_tup > n_live_tup * 0.2
			AND schemaname = ANY($1)
		ORDER BY n_dead_tup DESC, relname
	`)
)

// DatabaseSize returns the size of the current database.
func (c *Collector) DatabaseSize(ctx context.Context) (DatabaseSize, error) {
	sizes, err := queryAll(ctx, c, databaseSizeQuery, func(rows *sql.Rows) (DatabaseSize, error) {
		var s DatabaseSize
		err := rows.Scan(&s.Bytes, &s.Pretty)
		return s, err
	})
	if err != nil {
		return DatabaseSize{}, fmt.Errorf("querying database size: %w", err)
	}
	if len(sizes) == 0 {
		return DatabaseSize{}, nil
	}
	return sizes[0], nil
}

// ConnectionStats counts the current database's backends by state.
func (c *Collector) ConnectionStats(ctx context.Context) ([]ConnectionStat, error) {
	stats, err := queryAll(ctx, c, connectionStatsQuery, func(rows *sql.Rows) (ConnectionStat, error) {
		var s ConnectionStat
		err := rows.Scan(&s.State, &s.Count)
		return s, err
	})
	if err != nil {
		return nil, fmt.Errorf("querying connection stats: %w", err)
	}
	return stats, nil
}

func scanSlowQuery(rows *sql.Rows) (SlowQuery, error) {
	var q SlowQuery
	err := rows.Scan(&q.Query, &q.Calls, &q.MeanMS, &q.TotalMS)
	return q, err
}

// SlowQueries returns the statements with the highest mean execution time.
// It is empty when pg_stat_statements is not installed.
func (c *Collector) SlowQueries(ctx context.Context) ([]SlowQuery, error) {
	limit := c.opts.SlowQueryLimit
	return optional(firstOf(ctx, c.logger, "slow queries",
		Strategy[SlowQuery]{Name: "pg_stat_statements", Fetch: func(ctx context.Context) ([]SlowQuery, error) {
			return queryAll(ctx, c, slowQueriesQuery, scanSlowQuery, limit)
		}},
		Strategy[SlowQuery]{Name: "pg_stat_statements_legacy", Fetch: func(ctx context.Context) ([]SlowQuery, error) {
			return queryAll(ctx, c, slowQueriesLegacyQuery, scanSlowQuery, limit)
		}},
	))
}

// UnusedIndexes lists never-scanned, non-unique indexes, largest first.
func (c *Collector) UnusedIndexes(ctx context.Context) ([]UnusedIndex, error) {
	idx, err := queryAll(ctx, c, unusedIndexesQuery, func(rows *sql.Rows) (UnusedIndex, error) {
		var u UnusedIndex
		err := rows.Scan(&u.Schema, &u.Table, &u.Index, &u.Bytes)
		return u, err
	}, c.opts.Schemas)
	if err != nil {
		return nil, fmt.Errorf("querying unused indexes: %w", err)
	}
	return idx, nil
}

// BloatedTables lists tables with a high share of dead tuples.
func (c *Collector) BloatedTables(ctx context.Context) ([]BloatedTable, error) {
	tables, err := queryAll(ctx, c, bloatedTablesQuery, func(rows *sql.Rows) (BloatedTable, error) {
		var b BloatedTable
		err := rows.Scan(&b.Schema, &b.Table, &b.LiveTuples, &b.DeadTuples)
		return b, err
	}, c.opts.Schemas)
	if err != nil {
		return nil, fmt.Errorf("querying bloated tables: %w", err)
	}
	return tables, nil
}
