package service

import (
	"math"
	"sort"

	"github.com/noah-isme/marksheet-api/internal/models"
)

// totalsEpsilon absorbs float noise when comparing summed marks for ties.
const totalsEpsilon = 1e-9

// ReportResult is the derived report for one score matrix.
type ReportResult struct {
	Tests        []models.Test      `json:"tests"`
	Rows         []models.ReportRow `json:"rows"`
	MaximumTotal float64            `json:"maximum_total"`
	// EmptyDenominator is set when no tests are defined; every percentage is 0.
	EmptyDenominator bool `json:"empty_denominator"`
}

// ReportCalculator derives totals, percentages and competition ranks.
// It holds no state; Compute always rebuilds rows from the matrix.
type ReportCalculator struct{}

// NewReportCalculator constructs a calculator.
func NewReportCalculator() *ReportCalculator {
	return &ReportCalculator{}
}

// Compute returns one row per student in roster order.
func (c *ReportCalculator) Compute(matrix *models.ScoreMatrix) ReportResult {
	students := matrix.Students()
	tests := matrix.Tests()
	maxTotal := matrix.MaximumTotal()

	rows := make([]models.ReportRow, len(students))
	totals := make([]float64, len(students))
	for i, student := range students {
		marks, _ := matrix.Row(i)
		var total float64
		for _, mark := range marks {
			total += mark.Points()
		}
		totals[i] = total
		rows[i] = models.ReportRow{
			Position:     i,
			Student:      student,
			Marks:        marks,
			Total:        total,
			MaximumTotal: maxTotal,
			Percentage:   percentage(total, maxTotal),
		}
	}
	for i, rank := range CompetitionRanks(totals) {
		rows[i].Rank = rank
	}
	return ReportResult{
		Tests:            tests,
		Rows:             rows,
		MaximumTotal:     maxTotal,
		EmptyDenominator: maxTotal == 0,
	}
}

// CompetitionRanks assigns SQL RANK() style ranks: equal totals share a rank
// and the next lower total takes its 1-based position. [90 90 80 70] -> [1 1 3 4].
func CompetitionRanks(totals []float64) []int {
	order := make([]int, len(totals))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return totals[order[a]] > totals[order[b]]
	})
	ranks := make([]int, len(totals))
	for pos, idx := range order {
		if pos > 0 && math.Abs(totals[idx]-totals[order[pos-1]]) <= totalsEpsilon {
			ranks[idx] = ranks[order[pos-1]]
			continue
		}
		ranks[idx] = pos + 1
	}
	return ranks
}

// RankOrder returns a copy of rows sorted by rank; ties keep roster order.
func RankOrder(rows []models.ReportRow) []models.ReportRow {
	sorted := append([]models.ReportRow(nil), rows...)
	sort.SliceStable(sorted, func(a, b int) bool {
		return sorted[a].Rank < sorted[b].Rank
	})
	return sorted
}

// percentage rounds half-up to two decimals; zero when there is nothing to divide by.
func percentage(total, maxTotal float64) float64 {
	if maxTotal == 0 {
		return 0
	}
	return roundHalfUp(total/maxTotal*100, 2)
}

func roundHalfUp(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Floor(v*scale+0.5+totalsEpsilon) / scale
}
