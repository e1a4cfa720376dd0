package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/marksheet-api/internal/models"
)

func sampleMatrix(t *testing.T, names []string, tests []models.Test, marks [][]float64) *models.ScoreMatrix {
	t.Helper()
	matrix, err := models.NewScoreMatrix(models.TrimNames(names), tests)
	require.NoError(t, err)
	for s, row := range marks {
		for i, value := range row {
			if value < 0 {
				continue
			}
			require.NoError(t, matrix.SetMark(s, i, value))
		}
	}
	return matrix
}

func TestCompetitionRanks(t *testing.T) {
	cases := []struct {
		totals []float64
		want   []int
	}{
		{[]float64{90, 90, 80, 70}, []int{1, 1, 3, 4}},
		{[]float64{50, 50, 40}, []int{1, 1, 3}},
		{[]float64{10, 20, 30}, []int{3, 2, 1}},
		{[]float64{0, 0, 0}, []int{1, 1, 1}},
		{[]float64{0.1 + 0.2, 0.3}, []int{1, 1}},
		{[]float64{0.3, 0.1 + 0.2, 0.2}, []int{1, 1, 3}},
		{[]float64{70, 90, 80, 90}, []int{4, 1, 3, 1}},
		{nil, []int{}},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, CompetitionRanks(tc.totals), "totals %v", tc.totals)
	}
}

func TestReportCalculatorEndToEnd(t *testing.T) {
	matrix := sampleMatrix(t, []string{"Alice", "Bob", "Carol"},
		[]models.Test{{Name: "T1", Maximum: 20}, {Name: "T2", Maximum: 30}},
		[][]float64{{18, 25}, {15, 25}, {20, -1}})

	result := NewReportCalculator().Compute(matrix)
	require.Len(t, result.Rows, 3)
	assert.Equal(t, 50.0, result.MaximumTotal)
	assert.False(t, result.EmptyDenominator)

	totals := []float64{}
	percentages := []float64{}
	ranks := []int{}
	for i, row := range result.Rows {
		assert.Equal(t, i, row.Position)
		totals = append(totals, row.Total)
		percentages = append(percentages, row.Percentage)
		ranks = append(ranks, row.Rank)
	}
	assert.Equal(t, []float64{43, 40, 20}, totals)
	assert.Equal(t, []float64{86, 80, 40}, percentages)
	assert.Equal(t, []int{1, 2, 3}, ranks)
	assert.False(t, result.Rows[2].Marks[1].Set)
}

func TestReportCalculatorTiesShareRank(t *testing.T) {
	matrix := sampleMatrix(t, []string{"Alice", "Bob", "Carol"},
		[]models.Test{{Name: "T1", Maximum: 20}, {Name: "T2", Maximum: 30}},
		[][]float64{{18, 25}, {18, 25}, {20, -1}})

	result := NewReportCalculator().Compute(matrix)
	assert.Equal(t, 1, result.Rows[0].Rank)
	assert.Equal(t, 1, result.Rows[1].Rank)
	assert.Equal(t, 3, result.Rows[2].Rank)
}

func TestReportCalculatorWithoutTests(t *testing.T) {
	matrix := sampleMatrix(t, []string{"Alice", "Bob"}, nil, nil)

	result := NewReportCalculator().Compute(matrix)
	assert.True(t, result.EmptyDenominator)
	for _, row := range result.Rows {
		assert.Equal(t, 0.0, row.Percentage)
		assert.Equal(t, 0.0, row.Total)
		assert.Equal(t, 1, row.Rank)
	}
}

func TestReportCalculatorIsIdempotent(t *testing.T) {
	matrix := sampleMatrix(t, []string{"Alice", "Bob", "Carol"},
		[]models.Test{{Name: "T1", Maximum: 20}, {Name: "T2", Maximum: 30}},
		[][]float64{{18, 25}, {15, -1}, {20, 30}})

	calc := NewReportCalculator()
	assert.Equal(t, calc.Compute(matrix), calc.Compute(matrix))
}

func TestReportCalculatorAddTestKeepsTotals(t *testing.T) {
	matrix := sampleMatrix(t, []string{"Alice", "Bob"},
		[]models.Test{{Name: "T1", Maximum: 20}},
		[][]float64{{18}, {11.5}})
	calc := NewReportCalculator()
	before := calc.Compute(matrix)

	require.NoError(t, matrix.AddTest(models.Test{Name: "T2", Maximum: 30}))
	after := calc.Compute(matrix)

	for i := range before.Rows {
		assert.Equal(t, before.Rows[i].Total, after.Rows[i].Total)
	}
	assert.Equal(t, 50.0, after.MaximumTotal)
}

func TestReportCalculatorPercentageBounds(t *testing.T) {
	matrix := sampleMatrix(t, []string{"Full", "None", "Third"},
		[]models.Test{{Name: "T1", Maximum: 3}, {Name: "T2", Maximum: 3}},
		[][]float64{{3, 3}, {0, 0}, {1, -1}})

	result := NewReportCalculator().Compute(matrix)
	for _, row := range result.Rows {
		assert.GreaterOrEqual(t, row.Percentage, 0.0)
		assert.LessOrEqual(t, row.Percentage, 100.0)
	}
	assert.Equal(t, 100.0, result.Rows[0].Percentage)
	assert.Equal(t, 0.0, result.Rows[1].Percentage)
	assert.Equal(t, 16.67, result.Rows[2].Percentage)
}

func TestRoundHalfUp(t *testing.T) {
	assert.Equal(t, 82.5, roundHalfUp(82.5, 2))
	assert.Equal(t, 0.13, roundHalfUp(0.125, 2))
	assert.Equal(t, 66.67, roundHalfUp(200.0/3, 2))
	assert.Equal(t, 1.0, roundHalfUp(1.005, 0))
}

func TestRankOrderKeepsRosterOrderForTies(t *testing.T) {
	rows := []models.ReportRow{
		{Position: 0, Student: models.Student{Name: "Carol"}, Rank: 3},
		{Position: 1, Student: models.Student{Name: "Alice"}, Rank: 1},
		{Position: 2, Student: models.Student{Name: "Bob"}, Rank: 1},
	}
	sorted := RankOrder(rows)
	names := []string{}
	for _, row := range sorted {
		names = append(names, row.Student.Name)
	}
	assert.Equal(t, []string{"Alice", "Bob", "Carol"}, names)
	assert.Equal(t, "Carol", rows[0].Student.Name, "input must not be reordered")
}
