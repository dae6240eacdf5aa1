// Package health scores a database from its catalog statistics.
package health

import "fmt"

// Deduction weights and caps.
const (
	MaxScore = 100

	unusedIndexWeight = 2
	unusedIndexCap    = 20

	bloatedTableWeight = 5
	bloatedTableCap    = 25

	uncompressedWeight = 3
	uncompressedCap    = 15

	slowQueryPenalty     = 10
	slowQueryThresholdMS = 1000.0
)

// Inputs are the counts the score is computed from.
type Inputs struct {
	UnusedIndexes           int
	BloatedTables           int
	UncompressedHypertables int
	// SlowQueryMeansMS holds the mean execution time of each slow query.
	SlowQueryMeansMS []float64
}

// Score is the outcome of an evaluation.
type Score struct {
	Value int `json:"score"`
	// Issues need attention; Warnings are worth a look.
	Issues   []string `json:"issues,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// Evaluate starts from MaxScore and deducts for each finding, never going
// below zero.
func Evaluate(in Inputs) Score {
	s := Score{Value: MaxScore}

	if in.UnusedIndexes > 0 {
		s.Value -= min(in.UnusedIndexes*unusedIndexWeight, unusedIndexCap)
		s.Warnings = append(s.Warnings, fmt.Sprintf("%d unused indexes found", in.UnusedIndexes))
	}
	if in.BloatedTables > 0 {
		s.Value -= min(in.BloatedTables*bloatedTableWeight, bloatedTableCap)
		s.Issues = append(s.Issues, fmt.Sprintf("%d tables with significant bloat", in.BloatedTables))
	}
	if in.UncompressedHypertables > 0 {
		s.Value -= min(in.UncompressedHypertables*uncompressedWeight, uncompressedCap)
		s.Warnings = append(s.Warnings, fmt.Sprintf("%d hypertables without compression", in.UncompressedHypertables))
	}
	if avg, ok := mean(in.SlowQueryMeansMS); ok && avg > slowQueryThresholdMS {
		s.Value -= slowQueryPenalty
		s.Issues = append(s.Issues, fmt.Sprintf("Average slow query time: %.1fms", avg))
	}

	s.Value = max(s.Value, 0)
	return s
}

func mean(xs []float64) (float64, bool) {
	if len(xs) == 0 {
		return 0, false
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs)), true
}
