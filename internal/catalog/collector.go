// Package catalog reads TimescaleDB and PostgreSQL catalog metadata into typed
// records. Data that lives in different places across extension versions is
// read through an ordered list of strategies; the first one that yields rows
// wins.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/hurou927/tsdb-report/internal/db"
)

// ErrNoData is returned when every strategy for a piece of data failed or
// returned no rows.
var ErrNoData = errors.New("catalog: no strategy returned data")

// Options tunes collection.
type Options struct {
	Schemas        []string
	Concurrency    int
	QueryTimeout   time.Duration
	SlowQueryLimit int
	// ViewReferences also reads view dependencies from pg_depend.
	ViewReferences bool
}

// Collector runs catalog queries against one database.
type Collector struct {
	q      db.Querier
	opts   Options
	logger *slog.Logger
}

// NewCollector returns a Collector reading through q.
func NewCollector(q db.Querier, opts Options, logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if len(opts.Schemas) == 0 {
		opts.Schemas = []string{"public"}
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.SlowQueryLimit <= 0 {
		opts.SlowQueryLimit = 10
	}
	return &Collector{q: q, opts: opts, logger: logger}
}

// Strategy is one way of reading a piece of catalog data.
type Strategy[T any] struct {
	Name  string
	Fetch func(ctx context.Context) ([]T, error)
}

// firstOf tries strategies in order and returns the rows of the first one
// that succeeds with at least one row. Only context errors abort the search.
func firstOf[T any](ctx context.Context, logger *slog.Logger, what string, strategies ...Strategy[T]) ([]T, error) {
	for _, s := range strategies {
		rows, err := s.Fetch(ctx)
		switch {
		case ctx.Err() != nil:
			return nil, ctx.Err()
		case err != nil && unavailable(err):
			logger.Debug("catalog source unavailable", "data", what, "strategy", s.Name, "error", err)
			continue
		case err != nil:
			logger.Warn("catalog query failed", "data", what, "strategy", s.Name, "error", err)
			continue
		case len(rows) == 0:
			logger.Debug("catalog source returned no rows", "data", what, "strategy", s.Name)
			continue
		}
		logger.Debug("catalog source selected", "data", what, "strategy", s.Name, "rows", len(rows))
		return rows, nil
	}
	return nil, ErrNoData
}

// unavailableCodes are SQLSTATEs meaning the queried object does not exist
// in this server or extension version, or may not be read.
var unavailableCodes = map[string]bool{
	"42P01": true, // undefined_table
	"42703": true, // undefined_column
	"3F000": true, // invalid_schema_name
	"42883": true, // undefined_function
	"42501": true, // insufficient_privilege
	"55000": true, // object_not_in_prerequisite_state (pg_stat_statements not preloaded)
}

func unavailable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && unavailableCodes[pgErr.Code]
}

// queryAll runs query with the collector's timeout and scans every row.
func queryAll[T any](ctx context.Context, c *Collector, query string, scan func(*sql.Rows) (T, error), args ...any) ([]T, error) {
	if c.opts.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.QueryTimeout)
		defer cancel()
	}

	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// optional turns ErrNoData into an empty result.
func optional[T any](rows []T, err error) ([]T, error) {
	if errors.Is(err, ErrNoData) {
		return nil, nil
	}
	return rows, err
}
