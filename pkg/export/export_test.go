package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func sampleDocument(students int) Document {
	doc := Document{
		Title: "MARKS RECORD — Maths — Term 1",
		Metadata: []Field{
			{Label: "School", Value: "Hilltop"},
			{Label: "Class", Value: "S2"},
		},
		Dataset: Dataset{
			Headers:  []string{"SN", "Name", "T1", "Total", "/Max", "Percentage", "Rank"},
			Kinds:    []ColumnKind{ColumnNumber, ColumnText, ColumnNumber, ColumnNumber, ColumnNumber, ColumnFixed2, ColumnNumber},
			Preamble: [][]string{{"", "", "03/02/2025"}, {"", "", "T1 (/ 20)"}},
		},
	}
	for i := 0; i < students; i++ {
		doc.Rows = append(doc.Rows, []string{
			fmt.Sprint(i + 1), fmt.Sprintf("Student%03d", i+1), "10", "10", "20", "50.00", "1",
		})
	}
	return doc
}

func padRow(row []string, width int) []string {
	out := make([]string, width)
	copy(out, row)
	return out
}

func TestDatasetGridPadsRows(t *testing.T) {
	data := Dataset{Headers: []string{"a", "b", "c"}, Preamble: [][]string{{"", "x"}}, Rows: [][]string{{"1"}}}
	assert.Equal(t, [][]string{{"", "x", ""}, {"a", "b", "c"}, {"1", "", ""}}, data.Grid())
	assert.Equal(t, 1, data.HeaderIndex())
}

func TestDatasetValidate(t *testing.T) {
	assert.Error(t, Dataset{}.Validate())
	assert.Error(t, Dataset{Headers: []string{"a"}, Rows: [][]string{{"1", "2"}}}.Validate())
	assert.Error(t, Dataset{Headers: []string{"a"}, Kinds: []ColumnKind{ColumnText, ColumnNumber}}.Validate())
	assert.Equal(t, ColumnText, Dataset{Headers: []string{"a", "b"}, Kinds: []ColumnKind{ColumnNumber}}.Kind(1))
	assert.NoError(t, sampleDocument(2).Validate())
}

func TestXLSXExporterMatchesGrid(t *testing.T) {
	doc := sampleDocument(3)
	out, err := NewXLSXExporter().Render(doc)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(out))
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{"Report"}, f.GetSheetList())

	rows, err := f.GetRows("Report")
	require.NoError(t, err)
	assert.Equal(t, []string{"School", "Hilltop"}, rows[0])
	assert.Equal(t, []string{"Class", "S2"}, rows[1])
	assert.Empty(t, rows[2])
	assert.Empty(t, rows[3])

	grid := doc.Grid()
	require.Len(t, rows, 4+len(grid))
	for i, line := range grid {
		assert.Equal(t, line, padRow(rows[4+i], len(doc.Headers)), "grid row %d", i)
	}

	width, err := f.GetColWidth("Report", "B")
	require.NoError(t, err)
	assert.Equal(t, 12.0, width)

	// rows 5-6 preamble, 7 header, 8-10 data
	for _, cell := range []string{"A8", "C8", "D8", "E8", "F8", "G8"} {
		assertNumberCell(t, f, cell)
	}
	for _, cell := range []string{"B8", "C5", "C6", "C7"} {
		typ, err := f.GetCellType("Report", cell)
		require.NoError(t, err)
		assert.Contains(t, []excelize.CellType{excelize.CellTypeSharedString, excelize.CellTypeInlineString}, typ, cell)
	}
	raw, err := f.GetCellValue("Report", "F8", excelize.Options{RawCellValue: true})
	require.NoError(t, err)
	assert.Equal(t, "50", raw)

	require.NoError(t, f.SetCellFormula("Report", "C20", "SUM(C8:C10)"))
	sum, err := f.CalcCellValue("Report", "C20")
	require.NoError(t, err)
	assert.Equal(t, "30", sum)
}

// assertNumberCell accepts an explicit "n" type or no type attribute, which
// spreadsheet readers treat as numeric.
func assertNumberCell(t *testing.T, f *excelize.File, cell string) {
	t.Helper()
	typ, err := f.GetCellType("Report", cell)
	require.NoError(t, err)
	assert.Contains(t, []excelize.CellType{excelize.CellTypeNumber, excelize.CellTypeUnset}, typ, cell)
}

func TestXLSXExporterLeavesBlankMarksEmpty(t *testing.T) {
	doc := sampleDocument(1)
	doc.Rows[0][2] = ""
	doc.Rows[0][4] = "12.5"
	out, err := NewXLSXExporter().Render(doc)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(out))
	require.NoError(t, err)
	defer f.Close()

	value, err := f.GetCellValue("Report", "C8")
	require.NoError(t, err)
	assert.Empty(t, value)
	value, err = f.GetCellValue("Report", "E8")
	require.NoError(t, err)
	assert.Equal(t, "12.5", value)
	assertNumberCell(t, f, "E8")
}

func TestColumnWidthsClamp(t *testing.T) {
	widths := ColumnWidths([][]string{{"a", strings.Repeat("x", 20), strings.Repeat("y", 60)}})
	assert.Equal(t, []float64{12, 22, 40}, widths)
}

func TestPDFExporterRepeatsHeaderAcrossPages(t *testing.T) {
	doc := sampleDocument(120)
	exporter := &PDFExporter{Compress: false}

	pdf, err := exporter.layout(doc)
	require.NoError(t, err)
	pages := pdf.PageCount()
	assert.Greater(t, pages, 1)

	out, err := exporter.Render(doc)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF-")))
	assert.Equal(t, pages, bytes.Count(out, []byte("(Percentage)")), "header drawn once per page")
	for _, row := range doc.Rows {
		assert.Contains(t, string(out), "("+row[1]+")")
	}
	assert.Contains(t, string(out), "(School: Hilltop)")
}

// pdfLiteral escapes s the way gofpdf writes text operands.
func pdfLiteral(s string) string {
	return "(" + strings.NewReplacer(`\`, `\\`, "(", `\(`, ")", `\)`).Replace(s) + ")"
}

func TestPDFAndXLSXAgreeOnContent(t *testing.T) {
	doc := sampleDocument(0)
	doc.Rows = [][]string{
		{"1", "Alice", "18", "18", "20", "90.00", "1"},
		{"2", "Bob", "", "0", "20", "0.00", "3"},
		{"3", "Carol (Jr)", "12.5", "12.5", "20", "62.50", "2"},
	}

	xlsxOut, err := NewXLSXExporter().Render(doc)
	require.NoError(t, err)
	f, err := excelize.OpenReader(bytes.NewReader(xlsxOut))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Report")
	require.NoError(t, err)

	pdfOut, err := (&PDFExporter{Compress: false}).Render(doc)
	require.NoError(t, err)
	text := string(pdfOut)

	grid := doc.Grid()
	table := rows[len(rows)-len(grid):]
	for i, line := range grid {
		assert.Equal(t, line, padRow(table[i], len(doc.Headers)), "xlsx grid row %d", i)
		for _, cell := range line {
			if cell == "" {
				continue
			}
			assert.Contains(t, text, pdfLiteral(cell), "pdf grid row %d", i)
		}
	}
	for _, field := range doc.Metadata {
		assert.Contains(t, text, pdfLiteral(field.Label+": "+field.Value))
	}
}

func TestPDFExporterRejectsEmptyHeaders(t *testing.T) {
	_, err := NewPDFExporter().Render(Document{})
	assert.Error(t, err)
}

func TestCSVExporterWritesMetadataAndGrid(t *testing.T) {
	doc := sampleDocument(2)
	out, err := NewCSVExporter().Render(doc)
	require.NoError(t, err)

	reader := csv.NewReader(bytes.NewReader(out))
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	require.NoError(t, err)
	assert.Equal(t, []string{"School", "Hilltop"}, records[0])
	grid := doc.Grid()
	assert.Equal(t, grid, records[len(records)-len(grid):])
}
