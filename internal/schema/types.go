package schema

import "strings"

// Column represents a database column.
type Column struct {
	Name     string
	DataType string // formatted type (e.g. "timestamp with time zone", "jsonb")
	Nullable bool
	OrdPos   int // ordinal position (1-based)
}

// PrimaryKey represents a table's primary key.
type PrimaryKey struct {
	Columns []string
}

// Index represents an index on a table.
type Index struct {
	Name      string
	Columns   []string // column names or index expressions, in key order
	Method    string   // access method (btree, gin, ...)
	IsPrimary bool
	IsUnique  bool
}

// Table represents a database table with its columns and indexes.
type Table struct {
	Schema      string
	Name        string
	Partitioned bool
	Columns     []Column
	PrimaryKey  *PrimaryKey
	Indexes     []Index
}

// FullName returns schema-qualified table name.
func (t *Table) FullName() string {
	return t.Schema + "." + t.Name
}

// ColumnNames returns all column names in ordinal order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// Column returns the column called name.
func (t *Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// HasJSON reports whether any column is json or jsonb.
func (t *Table) HasJSON() bool {
	for _, c := range t.Columns {
		if strings.Contains(strings.ToLower(c.DataType), "json") {
			return true
		}
	}
	return false
}

// View is a plain or materialized view with its stored query text.
type View struct {
	Schema     string
	Name       string
	Definition string
}

// QualifiedName returns schema-qualified view name.
func (v View) QualifiedName() string {
	return v.Schema + "." + v.Name
}
