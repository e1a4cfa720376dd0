package export

import "fmt"

// ColumnKind tells typed renderers how to store a data column.
type ColumnKind int

const (
	// ColumnText keeps the cell as text.
	ColumnText ColumnKind = iota
	// ColumnNumber stores the cell as a plain number.
	ColumnNumber
	// ColumnFixed2 stores a number shown with two decimals.
	ColumnFixed2
)

// Dataset defines tabular export content. Cells are pre-formatted strings so
// every renderer prints exactly the same values.
type Dataset struct {
	Headers []string
	// Kinds aligns with Headers and applies to Rows only; missing entries are text.
	Kinds []ColumnKind
	// Preamble rows sit above the header row and align with Headers.
	Preamble [][]string
	Rows     [][]string
}

// Kind returns the kind of column col.
func (d Dataset) Kind(col int) ColumnKind {
	if col < 0 || col >= len(d.Kinds) {
		return ColumnText
	}
	return d.Kinds[col]
}

// Field is one label/value line of the metadata block.
type Field struct {
	Label string
	Value string
}

// Document is a dataset plus the title and metadata printed above it.
type Document struct {
	Title    string
	Metadata []Field
	Dataset
}

// Validate checks that the table has a header and no row is wider than it.
func (d Dataset) Validate() error {
	if len(d.Headers) == 0 {
		return fmt.Errorf("dataset requires at least one header")
	}
	if len(d.Kinds) > len(d.Headers) {
		return fmt.Errorf("dataset has %d column kinds for %d headers", len(d.Kinds), len(d.Headers))
	}
	for i, row := range d.Preamble {
		if len(row) > len(d.Headers) {
			return fmt.Errorf("preamble row %d has %d cells for %d headers", i+1, len(row), len(d.Headers))
		}
	}
	for i, row := range d.Rows {
		if len(row) > len(d.Headers) {
			return fmt.Errorf("row %d has %d cells for %d headers", i+1, len(row), len(d.Headers))
		}
	}
	return nil
}

// Grid returns preamble rows, the header row and data rows in render order,
// each padded to the header width. All renderers lay out this grid.
func (d Dataset) Grid() [][]string {
	width := len(d.Headers)
	grid := make([][]string, 0, len(d.Preamble)+1+len(d.Rows))
	for _, row := range d.Preamble {
		grid = append(grid, pad(row, width))
	}
	grid = append(grid, pad(d.Headers, width))
	for _, row := range d.Rows {
		grid = append(grid, pad(row, width))
	}
	return grid
}

// HeaderIndex is the position of the header row inside Grid.
func (d Dataset) HeaderIndex() int {
	return len(d.Preamble)
}

func pad(row []string, width int) []string {
	out := make([]string, width)
	copy(out, row)
	return out
}
