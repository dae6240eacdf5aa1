package health

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name     string
		in       Inputs
		want     int
		issues   int
		warnings int
	}{
		{name: "healthy", in: Inputs{}, want: 100},
		{name: "unused indexes", in: Inputs{UnusedIndexes: 3}, want: 94, warnings: 1},
		{name: "unused indexes capped", in: Inputs{UnusedIndexes: 50}, want: 80, warnings: 1},
		{name: "bloat capped", in: Inputs{BloatedTables: 9}, want: 75, issues: 1},
		{name: "uncompressed", in: Inputs{UncompressedHypertables: 2}, want: 94, warnings: 1},
		{name: "uncompressed capped", in: Inputs{UncompressedHypertables: 10}, want: 85, warnings: 1},
		{name: "slow queries below threshold", in: Inputs{SlowQueryMeansMS: []float64{900, 1100}}, want: 100},
		{name: "slow queries above threshold", in: Inputs{SlowQueryMeansMS: []float64{900, 1300}}, want: 90, issues: 1},
		{
			name: "everything",
			in: Inputs{
				UnusedIndexes:           20,
				BloatedTables:           10,
				UncompressedHypertables: 10,
				SlowQueryMeansMS:        []float64{5000},
			},
			want:     30,
			issues:   2,
			warnings: 2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Evaluate(tt.in)
			assert.Equal(t, tt.want, got.Value)
			assert.Len(t, got.Issues, tt.issues)
			assert.Len(t, got.Warnings, tt.warnings)
		})
	}
}

func TestEvaluateMessages(t *testing.T) {
	got := Evaluate(Inputs{BloatedTables: 2, SlowQueryMeansMS: []float64{1500, 2500}})
	assert.Equal(t, []string{"2 tables with significant bloat", "Average slow query time: 2000.0ms"}, got.Issues)
	assert.Empty(t, got.Warnings)
}
