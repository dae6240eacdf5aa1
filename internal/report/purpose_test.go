package report

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hurou927/tsdb-report/internal/config"
	"github.com/hurou927/tsdb-report/internal/schema"
)

func TestDescriberTable(t *testing.T) {
	labels := config.DefaultLabels()
	labels.TablePurposes = map[string]string{"conditions": "Sensor readings"}
	d := NewDescriber(labels)

	assert.Equal(t, "Sensor readings", d.Table("conditions"))
	assert.Equal(t, "Stores application data", d.Table("devices"))
}

func TestDescriberColumn(t *testing.T) {
	labels := config.DefaultLabels()
	labels.ColumnPurposes = map[string]map[string]string{"conditions": {"time": "Reading time"}}
	d := NewDescriber(labels)

	tests := []struct {
		name  string
		table string
		col   schema.Column
		want  string
	}{
		{"table specific", "conditions", schema.Column{Name: "time", DataType: "timestamp with time zone"}, "Reading time"},
		{"exact name", "devices", schema.Column{Name: "time", DataType: "timestamp with time zone"}, "Timestamp of the measurement or event"},
		{"data type", "devices", schema.Column{Name: "attrs", DataType: "JSONB"}, "Semi-structured payload"},
		{"name pattern", "devices", schema.Column{Name: "site_id", DataType: "integer"}, "Reference to a related entity"},
		{"no match", "devices", schema.Column{Name: "temperature", DataType: "double precision"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, d.Column(tt.table, tt.col))
		})
	}
}

func TestDescriberIndex(t *testing.T) {
	d := NewDescriber(config.DefaultLabels())

	tests := []struct {
		name string
		idx  schema.Index
		want string
		kind string
	}{
		{"primary", schema.Index{Name: "devices_pkey", Columns: []string{"id"}, IsPrimary: true, IsUnique: true}, "Primary key lookup", "PRIMARY KEY"},
		{"unique", schema.Index{Name: "devices_serial_key", Columns: []string{"serial"}, IsUnique: true}, "Enforce uniqueness/lookup by unique value", "UNIQUE"},
		{"name pattern", schema.Index{Name: "conditions_time_idx", Columns: []string{"time"}}, "Time-series index used for chunk exclusion", "INDEX"},
		{"multi column", schema.Index{Name: "conditions_device", Columns: []string{"device_id", "time"}}, "Multi-column filtering/grouping", "INDEX"},
		{"column pattern", schema.Index{Name: "events_sev", Columns: []string{"severity"}}, "Filter by severity", "INDEX"},
		{"default", schema.Index{Name: "devices_name", Columns: []string{"name"}}, "General filtering/lookup", "INDEX"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, d.Index(tt.idx))
			assert.Equal(t, tt.kind, d.IndexKind(tt.idx))
		})
	}
}

func TestPolicyName(t *testing.T) {
	assert.Equal(t, "Refresh Continuous Aggregate", PolicyName("policy_refresh_continuous_aggregate"))
	assert.Equal(t, "Compression", PolicyName("policy_compression"))
	assert.Equal(t, "Retention", PolicyName("policy_retention"))
}
