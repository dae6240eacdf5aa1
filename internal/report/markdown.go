package report

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/hurou927/tsdb-report/internal/graph"
	"github.com/hurou927/tsdb-report/internal/output"
)

// slowQueryPreview is how many characters of a statement the report shows.
const slowQueryPreview = 50

// WriteMarkdown renders the report as Markdown.
func WriteMarkdown(w io.Writer, r *Report) error {
	mw := output.NewWriter(w)
	l := r.Labels
	s := l.Sections
	m := l.Messages

	mw.Heading(1, l.Title, "")
	mw.Line(fmt.Sprintf(l.GeneratedOn, r.Meta.GeneratedAt.Format("2006-01-02 15:04:05")))
	mw.Blank()
	mw.Line(fmt.Sprintf(l.DatabaseInfo, r.Meta.Database, r.Meta.Host, r.Meta.Port))
	mw.Blank()
	version := r.Version
	if version == "" {
		version = l.Values.NA
	}
	mw.Line(fmt.Sprintf(l.TimescaleDBVersion, version))
	mw.Blank()

	mw.Heading(2, s.ExecutiveSummary, "")
	mw.Line(fmt.Sprintf(m.HealthScore, r.Health.Value))
	mw.Blank()
	if len(r.Health.Issues) > 0 {
		mw.Heading(3, s.CriticalIssues, "")
		mw.Bullets(r.Health.Issues)
	}
	if len(r.Health.Warnings) > 0 {
		mw.Heading(3, s.Warnings, "")
		mw.Bullets(r.Health.Warnings)
	}
	mw.Heading(3, s.KeyMetrics, "")
	metrics := []string{}
	if r.Metrics.DatabaseSize != "" {
		metrics = append(metrics, fmt.Sprintf(m.DatabaseSize, r.Metrics.DatabaseSize))
	}
	metrics = append(metrics,
		fmt.Sprintf(m.AggregateCount, r.Metrics.Aggregates),
		fmt.Sprintf(m.IndexCount, r.Metrics.Indexes),
	)
	if r.Metrics.UnusedIndexes > 0 {
		metrics = append(metrics, fmt.Sprintf(m.UnusedIndexCount, r.Metrics.UnusedIndexes))
	}
	mw.Bullets(metrics)

	mw.Heading(2, s.Overview, "")
	mw.Line(fmt.Sprintf(m.OverviewIntro, r.Metrics.Tables))
	mw.Line(fmt.Sprintf(m.OverviewCounts, r.Metrics.Hypertables, r.Metrics.Tables-r.Metrics.Hypertables))
	mw.Blank()

	mw.Heading(2, s.TableOfContents, "")
	toc := make([]string, len(r.Tables))
	for i, t := range r.Tables {
		toc[i] = fmt.Sprintf("[%s](#%s)", t.Name, output.Anchor(t.Name))
	}
	mw.Bullets(toc)

	writePerformance(mw, r)
	writeStorage(mw, r)
	writeTablesSummary(mw, r)
	writeTableDetails(mw, r)
	if err := writeDependencies(mw, r); err != nil {
		return err
	}
	return mw.Err()
}

func writePerformance(mw *output.Writer, r *Report) {
	l := r.Labels
	snap := r.Snapshot
	mw.Heading(2, l.Sections.Performance, "")

	if len(snap.Connections) > 0 {
		mw.Heading(3, l.Sections.ConnectionStatistics, "")
		rows := make([][]any, len(snap.Connections))
		for i, c := range snap.Connections {
			rows[i] = []any{c.State, c.Count}
		}
		mw.Table(l.Headers.Connections, rows)
	}

	if len(snap.SlowQueries) > 0 {
		mw.Heading(3, l.Sections.SlowQueries, "")
		rows := make([][]any, len(snap.SlowQueries))
		for i, q := range snap.SlowQueries {
			rows[i] = []any{output.Truncate(q.Query, slowQueryPreview), q.Calls, q.MeanMS, q.TotalMS}
		}
		mw.Table(l.Headers.SlowQueries, rows)
	}
}

func writeStorage(mw *output.Writer, r *Report) {
	l := r.Labels
	snap := r.Snapshot
	mw.Heading(2, l.Sections.Storage, "")

	if len(snap.Compression) > 0 {
		mw.Heading(3, l.Sections.CompressionStats, "")
		rows := make([][]any, len(snap.Compression))
		for i, c := range snap.Compression {
			ratio := l.Values.NA
			if c.Ratio() > 0 {
				ratio = fmt.Sprintf("%.1fx", c.Ratio())
			}
			rows[i] = []any{c.Table, humanize.IBytes(uint64(max(c.BeforeBytes, 0))), humanize.IBytes(uint64(max(c.AfterBytes, 0))), ratio}
		}
		mw.Table(l.Headers.Compression, rows)
	}

	var uncompressed [][]any
	for _, h := range snap.Hypertables {
		if !h.CompressionEnabled {
			uncompressed = append(uncompressed, []any{h.Name, h.NumChunks})
		}
	}
	if len(uncompressed) > 0 {
		mw.Heading(3, l.Sections.UncompressedTables, "")
		mw.Table(l.Headers.Uncompressed, uncompressed)
	}

	if len(snap.Jobs) > 0 {
		mw.Heading(3, l.Sections.Policies, "")
		rows := make([][]any, len(snap.Jobs))
		for i, j := range snap.Jobs {
			rows[i] = []any{j.ID, PolicyName(j.Proc), relationName(r, j.Hypertable), j.ScheduleInterval}
		}
		mw.Table(l.Headers.Jobs, rows)
	}
}

// relationName shows the aggregate a materialization hypertable backs.
func relationName(r *Report, name string) string {
	if view, ok := r.Snapshot.Materializations[name]; ok {
		return view
	}
	return name
}

func writeTablesSummary(mw *output.Writer, r *Report) {
	l := r.Labels
	desc := NewDescriber(l)
	mw.Heading(2, l.Sections.TablesSummary, "")

	rows := make([][]any, len(r.Tables))
	for i, t := range r.Tables {
		timeCol := t.TimeColumn
		if timeCol == "" {
			timeCol = l.Values.NA
		}
		aggs := l.Values.None
		if all := t.Aggregates(); len(all) > 0 {
			aggs = strings.Join(all, ", ")
		}
		rows[i] = []any{t.Name, desc.YesNo(t.Hypertable), timeCol, desc.YesNo(t.HasJSON), aggs, t.Purpose}
	}
	mw.Table(l.Headers.Summary, rows)
}

func writeTableDetails(mw *output.Writer, r *Report) {
	l := r.Labels
	s := l.Sections
	desc := NewDescriber(l)
	mw.Heading(2, s.TableDetails, "")

	for _, t := range r.Tables {
		mw.Heading(3, t.Name, output.Anchor(t.Name))
		mw.Field(s.Purpose, t.Purpose)

		if t.Hypertable {
			if t.TimeColumn != "" {
				mw.Field(s.Hypertable, fmt.Sprintf(l.Messages.HypertableTime, l.Values.Yes, output.Code(t.TimeColumn)))
			} else {
				mw.Field(s.Hypertable, l.Values.Yes)
			}
		}

		switch {
		case t.Chain != "":
			mw.Line(fmt.Sprintf("**%s:**", s.AggregateChain))
			mw.Blank()
			mw.Fence("", t.Chain)
		case len(t.Direct) > 0:
			names := make([]string, len(t.Direct))
			for i, d := range t.Direct {
				names[i] = output.Code(d)
			}
			mw.Field(s.DirectAggregates, strings.Join(names, ", "))
		}

		mw.Heading(4, s.Schema, "")
		cols := make([][]any, len(t.Columns))
		for i, c := range t.Columns {
			cols[i] = []any{c.Name, c.Type, desc.YesNo(c.Nullable), c.Purpose}
		}
		mw.Table(l.Headers.Schema, cols)

		if len(t.Indexes) > 0 {
			mw.Heading(4, s.Indexes, "")
			idx := make([][]any, len(t.Indexes))
			for i, ix := range t.Indexes {
				idx[i] = []any{ix.Name, strings.Join(ix.Columns, ", "), ix.Kind, ix.Purpose}
			}
			mw.Table(l.Headers.Index, idx)
		}
		mw.Line("---")
		mw.Blank()
	}
}

func writeDependencies(mw *output.Writer, r *Report) error {
	l := r.Labels
	s := l.Sections
	mw.Heading(2, s.AggregateDependencies, "")

	if len(r.Aggregates) == 0 {
		mw.Line(l.Messages.NoAggregates)
		mw.Blank()
		return nil
	}

	var diagram bytes.Buffer
	if err := graph.WriteMermaid(&diagram, r.Analysis.Graph); err != nil {
		return fmt.Errorf("rendering dependency diagram: %w", err)
	}
	mw.Fence("mermaid", diagram.String())

	for _, a := range r.Aggregates {
		mw.Heading(3, a.Name, output.Anchor(a.Name))
		for _, n := range a.Sources {
			switch {
			case n.Direct:
				mw.Field(s.SourcedDirectlyFrom, output.Code(n.Base))
			case n.Via != "":
				mw.Field(s.SourcedFrom, fmt.Sprintf("%s %s %s", output.Code(n.Base), s.Via, output.Code(n.Via)))
			default:
				mw.Field(s.SourcedIndirectlyFrom, output.Code(n.Base))
			}
		}
	}

	mw.Heading(3, s.RefreshOrder, "")
	mw.Line(l.Messages.RefreshOrderIntro)
	mw.Blank()
	for i, v := range r.RefreshOrder.Order {
		mw.Line(fmt.Sprintf("%d. %s", i+1, output.Code(v)))
	}
	mw.Blank()
	if r.RefreshOrder.HasCycle {
		mw.Line(fmt.Sprintf(l.Messages.CycleDetected, strings.Join(r.RefreshOrder.CycleNodes, ", ")))
		mw.Blank()
	}
	return nil
}
