// Package report assembles the schema and health report from a catalog
// snapshot and renders it.
package report

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hurou927/tsdb-report/internal/catalog"
	"github.com/hurou927/tsdb-report/internal/config"
	"github.com/hurou927/tsdb-report/internal/graph"
	"github.com/hurou927/tsdb-report/internal/health"
)

// Source provides the catalog snapshot a report is built from.
// *catalog.Collector implements it.
type Source interface {
	Snapshot(ctx context.Context) (*catalog.Snapshot, error)
}

// Meta describes the report run.
type Meta struct {
	Database    string    `json:"database"`
	Host        string    `json:"host"`
	Port        int       `json:"port"`
	GeneratedAt time.Time `json:"generated_at"`
	RunID       string    `json:"run_id,omitempty"`
}

// Options configures Build.
type Options struct {
	Labels   config.Labels
	Analysis graph.Options
	Meta     Meta
}

// Report is the complete, render-ready model.
type Report struct {
	Meta         Meta              `json:"meta"`
	Version      string            `json:"timescaledb_version"`
	Health       health.Score      `json:"health"`
	Metrics      Metrics           `json:"metrics"`
	Tables       []TableReport     `json:"tables"`
	Aggregates   []AggregateReport `json:"aggregates"`
	Chains       []ChainReport     `json:"chains"`
	RefreshOrder graph.TopoResult  `json:"refresh_order"`

	Snapshot *catalog.Snapshot `json:"-"`
	Analysis *graph.Result     `json:"-"`
	Labels   config.Labels     `json:"-"`
}

// Metrics are the key figures of the executive summary.
type Metrics struct {
	DatabaseSize   string `json:"database_size"`
	Tables         int    `json:"tables"`
	Hypertables    int    `json:"hypertables"`
	Aggregates     int    `json:"continuous_aggregates"`
	Indexes        int    `json:"indexes"`
	UnusedIndexes  int    `json:"unused_indexes"`
	BloatedTables  int    `json:"bloated_tables"`
	Uncompressed   int    `json:"uncompressed_hypertables"`
	BackgroundJobs int    `json:"background_jobs"`
}

// TableReport describes one regular table or hypertable.
type TableReport struct {
	Schema     string         `json:"schema"`
	Name       string         `json:"name"`
	Purpose    string         `json:"purpose"`
	Hypertable bool           `json:"hypertable"`
	TimeColumn string         `json:"time_column,omitempty"`
	HasJSON    bool           `json:"has_json"`
	Direct     []string       `json:"direct_aggregates,omitempty"`
	Indirect   []string       `json:"indirect_aggregates,omitempty"`
	Chain      string         `json:"chain,omitempty"`
	Columns    []ColumnReport `json:"columns"`
	Indexes    []IndexReport  `json:"indexes,omitempty"`
}

// Aggregates returns the direct aggregates followed by the indirect ones.
func (t TableReport) Aggregates() []string {
	return append(append([]string(nil), t.Direct...), t.Indirect...)
}

// ColumnReport describes a column.
type ColumnReport struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
	Purpose  string `json:"purpose,omitempty"`
}

// IndexReport describes an index.
type IndexReport struct {
	Name    string   `json:"name"`
	Columns []string `json:"columns"`
	Kind    string   `json:"kind"`
	Purpose string   `json:"purpose,omitempty"`
}

// AggregateReport describes a continuous aggregate and where it reads from.
type AggregateReport struct {
	Schema           string       `json:"schema"`
	Name             string       `json:"name"`
	MaterializedOnly bool         `json:"materialized_only"`
	Sources          []SourceNote `json:"sources"`
}

// SourceNote tells which base table an aggregate derives from. Via is the
// immediate source for indirect aggregates when it is known.
type SourceNote struct {
	Base   string `json:"base"`
	Direct bool   `json:"direct"`
	Via    string `json:"via,omitempty"`
}

// ChainReport is the resolved chain of one base table.
type ChainReport struct {
	Base    string      `json:"base"`
	Entries []ViewEntry `json:"entries"`
}

// Analyze runs chain analysis over a snapshot.
func Analyze(snap *catalog.Snapshot, opts graph.Options) *graph.Result {
	return graph.Analyze(graph.Input{
		Direct:      snap.Direct,
		Chained:     snap.Chained,
		References:  snap.References,
		Definitions: catalog.Definitions(snap.Views),
	}, opts)
}

// Build collects a snapshot from src and assembles the report.
func Build(ctx context.Context, src Source, opts Options) (*Report, error) {
	snap, err := src.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("collecting catalog: %w", err)
	}
	return FromSnapshot(snap, opts), nil
}

// FromSnapshot assembles the report from an already collected snapshot.
func FromSnapshot(snap *catalog.Snapshot, opts Options) *Report {
	labels := opts.Labels
	desc := NewDescriber(labels)
	analysis := Analyze(snap, opts.Analysis)
	formatter := ChainFormatter{Labels: labels}

	r := &Report{
		Meta:         opts.Meta,
		Version:      snap.Version,
		Snapshot:     snap,
		Analysis:     analysis,
		Labels:       labels,
		RefreshOrder: graph.RefreshOrder(analysis.Graph),
	}

	for _, t := range snap.Tables {
		tr := TableReport{
			Schema:  t.Schema,
			Name:    t.Name,
			Purpose: desc.Table(t.Name),
			HasJSON: t.HasJSON(),
		}
		if ht, ok := snap.Hypertable(t.Name); ok {
			tr.Hypertable = true
			tr.TimeColumn = ht.TimeColumn
		}
		if tr.TimeColumn == "" {
			for _, c := range t.Columns {
				if strings.EqualFold(c.Name, labels.Values.TimeColumn) {
					tr.TimeColumn = c.Name
					break
				}
			}
		}
		if set, ok := analysis.Aggregates.Get(t.Name); ok {
			tr.Direct, tr.Indirect = set.Direct, set.Indirect
		}
		if chain, ok := analysis.Chains.Chain(t.Name); ok {
			tr.Chain = formatter.Format(chain)
		}
		for _, c := range t.Columns {
			tr.Columns = append(tr.Columns, ColumnReport{
				Name:     c.Name,
				Type:     c.DataType,
				Nullable: c.Nullable,
				Purpose:  desc.Column(t.Name, c),
			})
		}
		for _, idx := range t.Indexes {
			tr.Indexes = append(tr.Indexes, IndexReport{
				Name:    idx.Name,
				Columns: idx.Columns,
				Kind:    desc.IndexKind(idx),
				Purpose: desc.Index(idx),
			})
		}
		r.Metrics.Indexes += len(t.Indexes)
		if tr.Hypertable {
			r.Metrics.Hypertables++
		}
		r.Tables = append(r.Tables, tr)
	}

	for _, a := range snap.Aggregates {
		r.Aggregates = append(r.Aggregates, AggregateReport{
			Schema:           a.ViewSchema,
			Name:             a.ViewName,
			MaterializedOnly: a.MaterializedOnly,
			Sources:          sourceNotes(analysis, a.ViewName),
		})
	}

	for _, base := range analysis.Chains.Bases() {
		chain, _ := analysis.Chains.Chain(base)
		r.Chains = append(r.Chains, ChainReport{Base: base, Entries: orderedEntries(chain)})
	}

	uncompressed := catalog.UncompressedHypertables(snap.Hypertables)
	means := make([]float64, len(snap.SlowQueries))
	for i, q := range snap.SlowQueries {
		means[i] = q.MeanMS
	}
	r.Health = health.Evaluate(health.Inputs{
		UnusedIndexes:           len(snap.UnusedIndexes),
		BloatedTables:           len(snap.BloatedTables),
		UncompressedHypertables: len(uncompressed),
		SlowQueryMeansMS:        means,
	})

	r.Metrics.DatabaseSize = snap.Size.Pretty
	r.Metrics.Tables = len(snap.Tables)
	r.Metrics.Aggregates = len(snap.Aggregates)
	r.Metrics.UnusedIndexes = len(snap.UnusedIndexes)
	r.Metrics.BloatedTables = len(snap.BloatedTables)
	r.Metrics.Uncompressed = len(uncompressed)
	r.Metrics.BackgroundJobs = len(snap.Jobs)
	return r
}

// sourceNotes lists every base table view derives from. For indirect
// aggregates the resolved immediate source is given when it is not the base
// table itself.
func sourceNotes(res *graph.Result, view string) []SourceNote {
	direct, indirect := res.Aggregates.BasesOf(view)
	var notes []SourceNote
	for _, base := range direct {
		notes = append(notes, SourceNote{Base: base, Direct: true})
	}
	for _, base := range indirect {
		note := SourceNote{Base: base}
		if chain, ok := res.Chains.Chain(base); ok {
			if e, ok := chain.Entry(view); ok && e.Source != base {
				note.Via = e.Source
			}
		}
		notes = append(notes, note)
	}
	return notes
}
