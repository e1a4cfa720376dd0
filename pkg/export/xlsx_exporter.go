package export

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
)

const (
	defaultSheetName = "Report"
	minColumnWidth   = 12
	maxColumnWidth   = 40
	// blank rows between the metadata block and the table
	metadataGap = 2
)

// XLSXExporter renders documents into a single-sheet workbook.
type XLSXExporter struct {
	SheetName string
}

// NewXLSXExporter builds an exporter writing to the "Report" sheet.
func NewXLSXExporter() *XLSXExporter {
	return &XLSXExporter{SheetName: defaultSheetName}
}

// Render lays out metadata rows, two blank rows, then the table grid.
func (e *XLSXExporter) Render(doc Document) ([]byte, error) {
	if err := doc.Validate(); err != nil {
		return nil, fmt.Errorf("xlsx: %w", err)
	}
	sheet := e.SheetName
	if sheet == "" {
		sheet = defaultSheetName
	}

	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, fmt.Errorf("failed to name sheet: %w", err)
	}

	row := 1
	for _, field := range doc.Metadata {
		if err := setRow(f, sheet, row, []string{field.Label, field.Value}); err != nil {
			return nil, err
		}
		row++
	}
	if len(doc.Metadata) > 0 {
		row += metadataGap
	}
	tableStart := row

	grid := doc.Grid()
	firstData := doc.HeaderIndex() + 1
	for i, line := range grid {
		var err error
		if i >= firstData {
			err = setDataRow(f, sheet, row, line, doc.Dataset)
		} else {
			err = setRow(f, sheet, row, line)
		}
		if err != nil {
			return nil, err
		}
		row++
	}

	if err := e.styleTable(f, sheet, doc.Dataset, tableStart); err != nil {
		return nil, err
	}
	for col, width := range ColumnWidths(grid) {
		name, err := excelize.ColumnNumberToName(col + 1)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve column: %w", err)
		}
		if err := f.SetColWidth(sheet, name, name, width); err != nil {
			return nil, fmt.Errorf("failed to size column %s: %w", name, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write Excel file: %w", err)
	}
	return buf.Bytes(), nil
}

func (e *XLSXExporter) styleTable(f *excelize.File, sheet string, data Dataset, tableStart int) error {
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"DBE9F7"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}
	lastCol := len(data.Headers)
	headerRow := tableStart + data.HeaderIndex()
	from, _ := excelize.CoordinatesToCellName(1, headerRow)
	to, _ := excelize.CoordinatesToCellName(lastCol, headerRow)
	if err := f.SetCellStyle(sheet, from, to, headerStyle); err != nil {
		return fmt.Errorf("failed to style header: %w", err)
	}

	if err := e.styleFixed2(f, sheet, data, headerRow); err != nil {
		return err
	}

	if len(data.Preamble) == 0 {
		return nil
	}
	preambleStyle, err := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"F7F7F7"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return fmt.Errorf("failed to create preamble style: %w", err)
	}
	from, _ = excelize.CoordinatesToCellName(1, tableStart)
	to, _ = excelize.CoordinatesToCellName(lastCol, headerRow-1)
	if err := f.SetCellStyle(sheet, from, to, preambleStyle); err != nil {
		return fmt.Errorf("failed to style preamble: %w", err)
	}
	return nil
}

// styleFixed2 applies the builtin "0.00" format to two-decimal data columns.
func (e *XLSXExporter) styleFixed2(f *excelize.File, sheet string, data Dataset, headerRow int) error {
	var cols []int
	for col := range data.Headers {
		if data.Kind(col) == ColumnFixed2 {
			cols = append(cols, col+1)
		}
	}
	if len(cols) == 0 || len(data.Rows) == 0 {
		return nil
	}
	style, err := f.NewStyle(&excelize.Style{NumFmt: 2})
	if err != nil {
		return fmt.Errorf("failed to create number style: %w", err)
	}
	for _, col := range cols {
		from, _ := excelize.CoordinatesToCellName(col, headerRow+1)
		to, _ := excelize.CoordinatesToCellName(col, headerRow+len(data.Rows))
		if err := f.SetCellStyle(sheet, from, to, style); err != nil {
			return fmt.Errorf("failed to style column %d: %w", col, err)
		}
	}
	return nil
}

// setDataRow writes numeric columns as numbers. Blank cells stay empty and
// unparsable ones stay text.
func setDataRow(f *excelize.File, sheet string, row int, values []string, data Dataset) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("failed to resolve row %d: %w", row, err)
	}
	cells := make([]interface{}, len(values))
	for i, v := range values {
		cells[i] = v
		if data.Kind(i) == ColumnText {
			continue
		}
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			cells[i] = nil
			continue
		}
		if n, err := strconv.ParseFloat(trimmed, 64); err == nil {
			cells[i] = n
		}
	}
	if err := f.SetSheetRow(sheet, cell, &cells); err != nil {
		return fmt.Errorf("failed to write row %d: %w", row, err)
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("failed to resolve row %d: %w", row, err)
	}
	cells := make([]interface{}, len(values))
	for i, v := range values {
		cells[i] = v
	}
	if err := f.SetSheetRow(sheet, cell, &cells); err != nil {
		return fmt.Errorf("failed to write row %d: %w", row, err)
	}
	return nil
}

// ColumnWidths sizes each grid column to its longest cell plus padding,
// clamped to [12, 40] characters.
func ColumnWidths(grid [][]string) []float64 {
	var widths []float64
	for _, line := range grid {
		for col, cell := range line {
			for len(widths) <= col {
				widths = append(widths, 0)
			}
			if w := float64(utf8.RuneCountInString(cell) + 2); w > widths[col] {
				widths[col] = w
			}
		}
	}
	for i, w := range widths {
		switch {
		case w < minColumnWidth:
			widths[i] = minColumnWidth
		case w > maxColumnWidth:
			widths[i] = maxColumnWidth
		}
	}
	return widths
}
