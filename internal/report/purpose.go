package report

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/hurou927/tsdb-report/internal/config"
	"github.com/hurou927/tsdb-report/internal/schema"
)

// Describer derives human-readable purposes from configured labels.
type Describer struct {
	labels config.Labels
}

// NewDescriber returns a Describer for labels.
func NewDescriber(labels config.Labels) Describer {
	return Describer{labels: labels}
}

// Table returns the configured purpose of a table or the default one.
func (d Describer) Table(name string) string {
	if p, ok := d.labels.TablePurposes[name]; ok && p != "" {
		return p
	}
	return d.labels.DefaultTablePurpose
}

// Column tries, in order: a table-specific entry, an exact column name, the
// data type patterns and the column name patterns. It returns "" when nothing
// matches.
func (d Describer) Column(table string, col schema.Column) string {
	if p := d.labels.ColumnPurposes[table][col.Name]; p != "" {
		return p
	}
	if p := d.labels.ColumnNames[col.Name]; p != "" {
		return p
	}
	if p := matchPattern(d.labels.ColumnTypes, col.DataType); p != "" {
		return p
	}
	return matchPattern(d.labels.ColumnPatterns, col.Name)
}

// Index describes an index by its kind first, then by name and column patterns.
func (d Describer) Index(idx schema.Index) string {
	ip := d.labels.IndexPurposes
	switch {
	case idx.IsPrimary:
		return ip.PrimaryKey
	case idx.IsUnique:
		return ip.Unique
	}
	if p := matchPattern(ip.Names, idx.Name); p != "" {
		return p
	}
	if len(idx.Columns) > 1 {
		return ip.MultiColumn
	}
	if p := matchPattern(ip.Columns, strings.Join(idx.Columns, ", ")); p != "" {
		return p
	}
	return ip.Default
}

// IndexKind returns the PRIMARY KEY, UNIQUE or INDEX label.
func (d Describer) IndexKind(idx schema.Index) string {
	switch {
	case idx.IsPrimary:
		return d.labels.Values.PrimaryKey
	case idx.IsUnique:
		return d.labels.Values.Unique
	default:
		return d.labels.Values.Index
	}
}

// YesNo returns the configured yes or no label.
func (d Describer) YesNo(b bool) string {
	if b {
		return d.labels.Values.Yes
	}
	return d.labels.Values.No
}

func matchPattern(patterns []config.Pattern, s string) string {
	s = strings.ToLower(s)
	for _, p := range patterns {
		if p.Match != "" && strings.Contains(s, strings.ToLower(p.Match)) {
			return p.Purpose
		}
	}
	return ""
}

// PolicyName turns a job procedure name such as
// "policy_refresh_continuous_aggregate" into "Refresh Continuous Aggregate".
func PolicyName(proc string) string {
	name := strings.TrimPrefix(proc, "policy_")
	name = strings.ReplaceAll(name, "_", " ")
	return cases.Title(language.English).String(name)
}
