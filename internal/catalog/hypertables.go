package catalog

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lithammer/dedent"
)

// Hypertable is a table partitioned into chunks by TimescaleDB.
type Hypertable struct {
	Schema             string
	Name               string
	TimeColumn         string
	NumChunks          int
	CompressionEnabled bool
}

// Job is a background job such as a refresh, compression or retention policy.
type Job struct {
	ID               int
	Proc             string
	HypertableSchema string
	Hypertable       string
	ScheduleInterval string
	Config           string
}

// CompressionStat compares a hypertable's size before and after compression.
type CompressionStat struct {
	Schema      string
	Table       string
	BeforeBytes int64
	AfterBytes  int64
}

// Ratio returns how many times smaller the compressed data is, or 0 when
// nothing has been compressed.
func (s CompressionStat) Ratio() float64 {
	if s.AfterBytes <= 0 {
		return 0
	}
	return float64(s.BeforeBytes) / float64(s.AfterBytes)
}

var (
	versionQuery = dedent.Dedent(`
		SELECT extversion
		FROM pg_extension
		WHERE extname = 'timescaledb'
	`)

	hypertablesInformationQuery = dedent.Dedent(`
		SELECT
			h.hypertable_schema,
			h.hypertable_name,
			COALESCE(d.column_name, '') AS time_column,
			h.num_chunks,
			h.compression_enabled
		FROM timescaledb_information.hypertables h
		LEFT JOIN timescaledb_information.dimensions d
			ON d.hypertable_schema = h.hypertable_schema
			AND d.hypertable_name = h.hypertable_name
			AND d.dimension_number = 1
		WHERE h.hypertable_schema = ANY($1)
		ORDER BY h.hypertable_schema, h.hypertable_name
	`)

	hypertablesCatalogQuery = dedent.Dedent(`
		SELECT
			h.schema_name,
			h.table_name,
			COALESCE((
				SELECT d.column_name
				FROM _timescaledb_catalog.dimension d
				WHERE d.hypertable_id = h.id
				ORDER BY d.id
				LIMIT 1
			), '') AS time_column,
			(SELECT count(*) FROM _timescaledb_catalog.chunk c WHERE c.hypertable_id = h.id)::int AS num_chunks,
			h.compressed_hypertable_id IS NOT NULL AS compression_enabled
		FROM _timescaledb_catalog.hypertable h
		WHERE h.schema_name = ANY($1)
			AND h.table_name NOT LIKE '\_materialized\_hypertable\_%'
			AND h.table_name NOT LIKE '\_compressed\_hypertable\_%'
		ORDER BY h.schema_name, h.table_name
	`)

	jobsInformationQuery = dedent.Dedent(`
		SELECT
			job_id,
			proc_name,
			COALESCE(hypertable_schema, ''),
			COALESCE(hypertable_name, ''),
			schedule_interval::text,
			COALESCE(config::text, '')
		FROM timescaledb_information.jobs
		WHERE job_id >= 1000
		ORDER BY job_id
	`)

	jobsCatalogQuery = dedent.Dedent(`
		SELECT
			j.id,
			j.proc_name,
			COALESCE(h.schema_name, ''),
			COALESCE(h.table_name, ''),
			j.schedule_interval::text,
			COALESCE(j.config::text, '')
		FROM _timescaledb_config.bgw_job j
		LEFT JOIN _timescaledb_catalog.hypertable h ON h.id = j.hypertable_id
		WHERE j.id >= 1000
		ORDER BY j.id
	`)

	compressionStatsQuery = dedent.Dedent(`
		SELECT
			h.hypertable_schema,
			h.hypertable_name,
			COALESCE(s.before_compression_total_bytes, 0),
			COALESCE(s.after_compression_total_bytes, 0)
		FROM timescaledb_information.hypertables h
		CROSS JOIN LATERAL hypertable_compression_stats(
			format('%I.%I', h.hypertable_schema, h.hypertable_name)::regclass
		) s
		WHERE h.compression_enabled
			AND h.hypertable_schema = ANY($1)
		ORDER BY h.hypertable_schema, h.hypertable_name
	`)
)

// Version returns the installed TimescaleDB extension version, or "" when the
// extension is not installed.
func (c *Collector) Version(ctx context.Context) (string, error) {
	versions, err := queryAll(ctx, c, versionQuery, func(rows *sql.Rows) (string, error) {
		var v string
		err := rows.Scan(&v)
		return v, err
	})
	if err != nil {
		return "", fmt.Errorf("querying extension version: %w", err)
	}
	if len(versions) == 0 {
		return "", nil
	}
	return versions[0], nil
}

func scanHypertable(rows *sql.Rows) (Hypertable, error) {
	var h Hypertable
	err := rows.Scan(&h.Schema, &h.Name, &h.TimeColumn, &h.NumChunks, &h.CompressionEnabled)
	return h, err
}

// Hypertables lists hypertables in the configured schemas. Materialization
// and compression hypertables are internal and not included.
func (c *Collector) Hypertables(ctx context.Context) ([]Hypertable, error) {
	return optional(firstOf(ctx, c.logger, "hypertables",
		Strategy[Hypertable]{Name: "timescaledb_information", Fetch: func(ctx context.Context) ([]Hypertable, error) {
			return queryAll(ctx, c, hypertablesInformationQuery, scanHypertable, c.opts.Schemas)
		}},
		Strategy[Hypertable]{Name: "timescaledb_catalog", Fetch: func(ctx context.Context) ([]Hypertable, error) {
			return queryAll(ctx, c, hypertablesCatalogQuery, scanHypertable, c.opts.Schemas)
		}},
	))
}

func scanJob(rows *sql.Rows) (Job, error) {
	var j Job
	err := rows.Scan(&j.ID, &j.Proc, &j.HypertableSchema, &j.Hypertable, &j.ScheduleInterval, &j.Config)
	return j, err
}

// Jobs lists user-defined background jobs. Built-in jobs (ids below 1000)
// such as telemetry are skipped.
func (c *Collector) Jobs(ctx context.Context) ([]Job, error) {
	return optional(firstOf(ctx, c.logger, "jobs",
		Strategy[Job]{Name: "timescaledb_information", Fetch: func(ctx context.Context) ([]Job, error) {
			return queryAll(ctx, c, jobsInformationQuery, scanJob)
		}},
		Strategy[Job]{Name: "timescaledb_config", Fetch: func(ctx context.Context) ([]Job, error) {
			return queryAll(ctx, c, jobsCatalogQuery, scanJob)
		}},
	))
}

// CompressionStats reports compression effectiveness per hypertable with
// compression enabled.
func (c *Collector) CompressionStats(ctx context.Context) ([]CompressionStat, error) {
	return optional(firstOf(ctx, c.logger, "compression stats",
		Strategy[CompressionStat]{Name: "hypertable_compression_stats", Fetch: func(ctx context.Context) ([]CompressionStat, error) {
			return queryAll(ctx, c, compressionStatsQuery, func(rows *sql.Rows) (CompressionStat, error) {
				var s CompressionStat
				err := rows.Scan(&s.Schema, &s.Table, &s.BeforeBytes, &s.AfterBytes)
				return s, err
			}, c.opts.Schemas)
		}},
	))
}

// UncompressedHypertables returns the hypertables without compression enabled.
func UncompressedHypertables(hts []Hypertable) []Hypertable {
	var out []Hypertable
	for _, h := range hts {
		if !h.CompressionEnabled {
			out = append(out, h)
		}
	}
	return out
}
