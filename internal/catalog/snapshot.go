package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/hurou927/tsdb-report/internal/graph"
	"github.com/hurou927/tsdb-report/internal/schema"
)

// Snapshot is everything read from the database for one report.
type Snapshot struct {
	Version string
	Tables  []*schema.Table
	Views   []schema.View

	Aggregates       []Aggregate
	Materializations map[string]string
	Direct           []graph.Relationship
	Chained          []graph.Relationship
	References       []graph.ViewReference

	Hypertables []Hypertable
	Jobs        []Job
	Compression []CompressionStat

	Size          DatabaseSize
	Connections   []ConnectionStat
	SlowQueries   []SlowQuery
	UnusedIndexes []UnusedIndex
	BloatedTables []BloatedTable
}

// Hypertable returns the hypertable called name.
func (s *Snapshot) Hypertable(name string) (Hypertable, bool) {
	for _, h := range s.Hypertables {
		if h.Name == name {
			return h, true
		}
	}
	return Hypertable{}, false
}

// Snapshot reads the whole catalog. Query groups run concurrently, bounded by
// Options.Concurrency. Failing to read tables or aggregates aborts; other
// failures are logged and leave their part of the snapshot empty.
func (c *Collector) Snapshot(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.Concurrency)

	g.Go(func() error {
		tables, err := schema.Introspect(ctx, c.q, c.opts.Schemas)
		if err != nil {
			return fmt.Errorf("introspecting schema: %w", err)
		}
		snap.Tables = tables
		return nil
	})

	// Aggregate metadata is read in order: later queries depend on earlier results.
	g.Go(func() error {
		aggs, err := c.ContinuousAggregates(ctx)
		if err != nil {
			return fmt.Errorf("querying continuous aggregates: %w", err)
		}
		mats, err := c.MaterializationMap(ctx)
		if err != nil {
			return fmt.Errorf("querying materializations: %w", err)
		}
		views, err := c.ViewDefinitions(ctx, aggs)
		if err != nil {
			return err
		}
		var refs []graph.ViewReference
		if c.opts.ViewReferences {
			if refs, err = c.ViewReferences(ctx, mats); err != nil {
				return err
			}
		}
		snap.Aggregates = aggs
		snap.Materializations = mats
		snap.Direct, snap.Chained = Relationships(aggs, mats)
		snap.Views = views
		snap.References = refs
		return nil
	})

	g.Go(func() error {
		v, err := c.Version(ctx)
		snap.Version = v
		return c.soft(ctx, "version", err)
	})
	g.Go(func() error {
		hts, err := c.Hypertables(ctx)
		snap.Hypertables = hts
		return c.soft(ctx, "hypertables", err)
	})
	g.Go(func() error {
		jobs, err := c.Jobs(ctx)
		snap.Jobs = jobs
		return c.soft(ctx, "jobs", err)
	})
	g.Go(func() error {
		stats, err := c.CompressionStats(ctx)
		snap.Compression = stats
		return c.soft(ctx, "compression stats", err)
	})
	g.Go(func() error {
		size, err := c.DatabaseSize(ctx)
		snap.Size = size
		return c.soft(ctx, "database size", err)
	})
	g.Go(func() error {
		conns, err := c.ConnectionStats(ctx)
		snap.Connections = conns
		return c.soft(ctx, "connection stats", err)
	})
	g.Go(func() error {
		slow, err := c.SlowQueries(ctx)
		snap.SlowQueries = slow
		return c.soft(ctx, "slow queries", err)
	})
	g.Go(func() error {
		idx, err := c.UnusedIndexes(ctx)
		snap.UnusedIndexes = idx
		return c.soft(ctx, "unused indexes", err)
	})
	g.Go(func() error {
		tables, err := c.BloatedTables(ctx)
		snap.BloatedTables = tables
		return c.soft(ctx, "bloated tables", err)
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return snap, nil
}

// soft logs a non-essential collection error and swallows it. Context errors
// are returned so the group stops.
func (c *Collector) soft(ctx context.Context, what string, err error) error {
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	level := slog.LevelWarn
	if unavailable(err) || errors.Is(err, ErrNoData) {
		level = slog.LevelDebug
	}
	c.logger.Log(ctx, level, "skipping report section", "data", what, "error", err)
	return nil
}
