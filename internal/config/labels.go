package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Labels holds every user-visible string of the report. A zero field in a
// labels file keeps the built-in default.
type Labels struct {
	Title              string `yaml:"title"`
	GeneratedOn        string `yaml:"generated_on"`
	DatabaseInfo       string `yaml:"database_info"`
	TimescaleDBVersion string `yaml:"timescaledb_version"`

	Sections Sections `yaml:"sections"`
	Messages Messages `yaml:"messages"`
	Values   Values   `yaml:"values"`
	Headers  Headers  `yaml:"headers"`

	// DefaultTablePurpose is used for tables without an entry in TablePurposes.
	DefaultTablePurpose string            `yaml:"default_table_purpose"`
	TablePurposes       map[string]string `yaml:"table_purposes"`
	// ColumnPurposes maps table -> column -> purpose.
	ColumnPurposes map[string]map[string]string `yaml:"column_purposes"`
	// ColumnNames maps an exact column name to a purpose for any table.
	ColumnNames map[string]string `yaml:"column_names"`
	// ColumnTypes and ColumnPatterns are tried in order against the data
	// type and the column name respectively.
	ColumnTypes    []Pattern     `yaml:"column_types"`
	ColumnPatterns []Pattern     `yaml:"column_patterns"`
	IndexPurposes  IndexPurposes `yaml:"index_purposes"`
}

// Sections holds headings and field labels.
type Sections struct {
	TableOfContents       string `yaml:"table_of_contents"`
	ExecutiveSummary      string `yaml:"executive_summary"`
	DatabaseHealth        string `yaml:"database_health"`
	CriticalIssues        string `yaml:"critical_issues"`
	Warnings              string `yaml:"warnings"`
	KeyMetrics            string `yaml:"key_metrics"`
	Overview              string `yaml:"overview"`
	Performance           string `yaml:"performance"`
	ConnectionStatistics  string `yaml:"connection_statistics"`
	SlowQueries           string `yaml:"slow_queries"`
	Storage               string `yaml:"storage"`
	CompressionStats      string `yaml:"compression_stats"`
	UncompressedTables    string `yaml:"uncompressed_tables"`
	Policies              string `yaml:"policies"`
	TablesSummary         string `yaml:"tables_summary"`
	TableDetails          string `yaml:"table_details"`
	AggregateDependencies string `yaml:"aggregate_dependencies"`
	RefreshOrder          string `yaml:"refresh_order"`
	Purpose               string `yaml:"purpose"`
	Hypertable            string `yaml:"hypertable"`
	AggregateChain        string `yaml:"aggregate_chain"`
	DirectAggregates      string `yaml:"direct_aggregates"`
	SourcedDirectlyFrom   string `yaml:"sourced_directly_from"`
	SourcedFrom           string `yaml:"sourced_from"`
	SourcedIndirectlyFrom string `yaml:"sourced_indirectly_from"`
	Via                   string `yaml:"via"`
	Schema                string `yaml:"schema"`
	Indexes               string `yaml:"indexes"`
}

// Messages holds sentence templates; verbs follow fmt.
type Messages struct {
	HealthScore       string `yaml:"health_score"`
	DatabaseSize      string `yaml:"database_size"`
	AggregateCount    string `yaml:"aggregate_count"`
	IndexCount        string `yaml:"index_count"`
	UnusedIndexCount  string `yaml:"unused_index_count"`
	OverviewIntro     string `yaml:"overview_intro"`
	OverviewCounts    string `yaml:"overview_counts"`
	HypertableTime    string `yaml:"hypertable_time"`
	RefreshOrderIntro string `yaml:"refresh_order_intro"`
	CycleDetected     string `yaml:"cycle_detected"`
	NoAggregates      string `yaml:"no_aggregates"`
}

// Values holds inline value strings.
type Values struct {
	BaseTable   string `yaml:"base_table"`
	Level       string `yaml:"level"`
	SourcedFrom string `yaml:"sourced_from"`
	Yes         string `yaml:"yes"`
	No          string `yaml:"no"`
	None        string `yaml:"none"`
	NA          string `yaml:"na"`
	PrimaryKey  string `yaml:"primary_key"`
	Unique      string `yaml:"unique"`
	Index       string `yaml:"index"`
	TimeColumn  string `yaml:"time_column"`
}

// Headers holds table column headers.
type Headers struct {
	Summary      []string `yaml:"summary"`
	Schema       []string `yaml:"schema"`
	Index        []string `yaml:"index"`
	SlowQueries  []string `yaml:"slow_queries"`
	Compression  []string `yaml:"compression"`
	Jobs         []string `yaml:"jobs"`
	Connections  []string `yaml:"connections"`
	Uncompressed []string `yaml:"uncompressed"`
}

// Pattern pairs a case-insensitive substring with a purpose.
type Pattern struct {
	Match   string `yaml:"match"`
	Purpose string `yaml:"purpose"`
}

// IndexPurposes describes indexes by kind and by name or column patterns.
type IndexPurposes struct {
	PrimaryKey  string    `yaml:"primary_key"`
	Unique      string    `yaml:"unique"`
	MultiColumn string    `yaml:"multi_column"`
	Default     string    `yaml:"default"`
	Names       []Pattern `yaml:"names"`
	Columns     []Pattern `yaml:"columns"`
}

// DefaultLabels returns the built-in English labels.
func DefaultLabels() Labels {
	return Labels{
		Title:              "TimescaleDB Database Schema",
		GeneratedOn:        "Generated on: %s",
		DatabaseInfo:       "Database: %s @ %s:%d",
		TimescaleDBVersion: "TimescaleDB Version: %s",
		Sections: Sections{
			TableOfContents:       "Table of Contents",
			ExecutiveSummary:      "Executive Summary",
			DatabaseHealth:        "Database Health Score",
			CriticalIssues:        "Critical Issues",
			Warnings:              "Warnings",
			KeyMetrics:            "Key Metrics",
			Overview:              "Overview",
			Performance:           "Performance Metrics",
			ConnectionStatistics:  "Connection Statistics",
			SlowQueries:           "Slowest Queries (by average execution time)",
			Storage:               "Storage Optimization",
			CompressionStats:      "Compression Effectiveness by Table",
			UncompressedTables:    "Tables Without Compression",
			Policies:              "Background Policies",
			TablesSummary:         "Tables Summary",
			TableDetails:          "Table Details",
			AggregateDependencies: "Continuous Aggregate Dependencies",
			RefreshOrder:          "Refresh Order",
			Purpose:               "Purpose",
			Hypertable:            "TimescaleDB Hypertable",
			AggregateChain:        "Continuous Aggregate Chain",
			DirectAggregates:      "Direct Continuous Aggregates",
			SourcedDirectlyFrom:   "Sourced Directly From",
			SourcedFrom:           "Sourced From",
			SourcedIndirectlyFrom: "Sourced Indirectly From",
			Via:                   "via",
			Schema:                "Schema",
			Indexes:               "Indexes",
		},
		Messages: Messages{
			HealthScore:       "Database Health Score: %d/100",
			DatabaseSize:      "Total Database Size: %s",
			AggregateCount:    "Continuous Aggregates: %d",
			IndexCount:        "Total Indexes: %d",
			UnusedIndexCount:  "Unused Indexes: %d",
			OverviewIntro:     "This database contains %d tables and uses TimescaleDB for time-series data storage.",
			OverviewCounts:    "There are %d TimescaleDB hypertables and %d regular tables.",
			HypertableTime:    "%s, using %s as time column",
			RefreshOrderIntro: "Refresh continuous aggregates in this order so each one reads up-to-date sources:",
			CycleDetected:     "Circular dependency among: %s",
			NoAggregates:      "No continuous aggregates found.",
		},
		Values: Values{
			BaseTable:   "base table",
			Level:       "level",
			SourcedFrom: "sourced from",
			Yes:         "Yes",
			No:          "No",
			None:        "None",
			NA:          "N/A",
			PrimaryKey:  "PRIMARY KEY",
			Unique:      "UNIQUE",
			Index:       "INDEX",
			TimeColumn:  "time",
		},
		Headers: Headers{
			Summary:      []string{"Table Name", "TimescaleDB Hypertable", "Primary Time Column", "Contains JSON/JSONB", "Aggregation Views", "Purpose"},
			Schema:       []string{"Column", "Type", "Nullable", "Purpose"},
			Index:        []string{"Name", "Columns", "Type", "Purpose"},
			SlowQueries:  []string{"Query", "Calls", "Mean (ms)", "Total (ms)"},
			Compression:  []string{"Table", "Before", "After", "Ratio"},
			Jobs:         []string{"Job", "Policy", "Relation", "Schedule"},
			Connections:  []string{"State", "Count"},
			Uncompressed: []string{"Table", "Chunks"},
		},
		DefaultTablePurpose: "Stores application data",
		ColumnNames: map[string]string{
			"time":       "Timestamp of the measurement or event",
			"created_at": "Row creation timestamp",
			"updated_at": "Last modification timestamp",
			"id":         "Surrogate identifier",
		},
		ColumnTypes: []Pattern{
			{Match: "json", Purpose: "Semi-structured payload"},
			{Match: "timestamp", Purpose: "Point in time"},
			{Match: "bool", Purpose: "Flag"},
		},
		ColumnPatterns: []Pattern{
			{Match: "bucket", Purpose: "Time bucket start"},
			{Match: "_id", Purpose: "Reference to a related entity"},
			{Match: "count", Purpose: "Number of rows aggregated"},
			{Match: "avg", Purpose: "Average over the bucket"},
		},
		IndexPurposes: IndexPurposes{
			PrimaryKey:  "Primary key lookup",
			Unique:      "Enforce uniqueness/lookup by unique value",
			MultiColumn: "Multi-column filtering/grouping",
			Default:     "General filtering/lookup",
			Names: []Pattern{
				{Match: "time_idx", Purpose: "Time-series index used for chunk exclusion"},
				{Match: "trgm", Purpose: "Text search"},
			},
			Columns: []Pattern{
				{Match: "time", Purpose: "Time range filtering"},
				{Match: "severity", Purpose: "Filter by severity"},
			},
		},
	}
}

// LoadLabels reads a YAML labels file over the built-in defaults. An empty
// path returns the defaults.
func LoadLabels(path string) (Labels, error) {
	labels := DefaultLabels()
	if path == "" {
		return labels, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return labels, fmt.Errorf("reading labels file: %w", err)
	}
	if err := yaml.Unmarshal(data, &labels); err != nil {
		return labels, fmt.Errorf("parsing labels file: %w", err)
	}
	return labels, nil
}
