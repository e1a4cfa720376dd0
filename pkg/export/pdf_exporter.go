package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

const (
	pdfMargin     = 6.35 // 18pt
	pdfRowHeight  = 6.0
	pdfFontSize   = 9.0
	pdfCellMargin = 3.0
)

// PDFExporter renders documents as a landscape A4 table with a repeated header.
type PDFExporter struct {
	// Compress toggles stream compression; tests disable it to inspect output.
	Compress bool
}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{Compress: true}
}

// Render creates the PDF: title, metadata lines, then one bordered table.
func (e *PDFExporter) Render(doc Document) ([]byte, error) {
	pdf, err := e.layout(doc)
	if err != nil {
		return nil, err
	}
	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func (e *PDFExporter) layout(doc Document) (*gofpdf.Fpdf, error) {
	if err := doc.Validate(); err != nil {
		return nil, fmt.Errorf("pdf: %w", err)
	}
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetCompression(e.Compress)
	pdf.SetMargins(pdfMargin, pdfMargin, pdfMargin)
	pdf.SetAutoPageBreak(false, pdfMargin)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	if doc.Title != "" {
		pdf.SetFont("Arial", "B", 14)
		pdf.CellFormat(0, 10, tr(doc.Title), "", 1, "C", false, 0, "")
	}
	pdf.SetFont("Arial", "", pdfFontSize)
	for _, field := range doc.Metadata {
		pdf.CellFormat(0, 5, tr(field.Label+": "+field.Value), "", 1, "L", false, 0, "")
	}
	pdf.Ln(3)

	grid := doc.Grid()
	pageWidth, pageHeight := pdf.GetPageSize()
	widths := fitWidths(pdf, grid, pageWidth-2*pdfMargin)
	headerIndex := doc.HeaderIndex()

	drawRow := func(line []string, bold bool, fill bool) {
		if bold {
			pdf.SetFont("Arial", "B", pdfFontSize)
		} else {
			pdf.SetFont("Arial", "", pdfFontSize)
		}
		for col, cell := range line {
			align := "C"
			if col == 1 && !bold {
				align = "L"
			}
			pdf.CellFormat(widths[col], pdfRowHeight, tr(cell), "1", 0, align, fill, 0, "")
		}
		pdf.Ln(-1)
	}
	drawHeader := func() {
		pdf.SetFillColor(219, 233, 247)
		drawRow(grid[headerIndex], true, true)
	}

	for i, line := range grid {
		if pdf.GetY()+pdfRowHeight > pageHeight-pdfMargin {
			pdf.AddPage()
			if i > headerIndex {
				drawHeader()
			}
		}
		switch {
		case i < headerIndex:
			pdf.SetFillColor(247, 247, 247)
			drawRow(line, false, true)
		case i == headerIndex:
			drawHeader()
		default:
			drawRow(line, false, false)
		}
	}
	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("layout pdf: %w", err)
	}
	return pdf, nil
}

// fitWidths sizes columns to their widest cell and scales them to the usable width.
func fitWidths(pdf *gofpdf.Fpdf, grid [][]string, usable float64) []float64 {
	pdf.SetFont("Arial", "B", pdfFontSize)
	widths := make([]float64, len(grid[0]))
	var total float64
	for col := range widths {
		for _, line := range grid {
			if w := pdf.GetStringWidth(line[col]) + 2*pdfCellMargin; w > widths[col] {
				widths[col] = w
			}
		}
		total += widths[col]
	}
	if total == 0 {
		return widths
	}
	scale := usable / total
	for col := range widths {
		widths[col] *= scale
	}
	return widths
}
