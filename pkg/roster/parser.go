// Package roster reads student lists from uploaded spreadsheets.
package roster

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/noah-isme/marksheet-api/internal/models"
	appErrors "github.com/noah-isme/marksheet-api/pkg/errors"
)

// identityHeaders are matched case- and space-insensitively, in priority order.
var identityHeaders = []string{"names", "name", "studentname", "fullname"}

// Roster is a parsed upload.
type Roster struct {
	Sheet      string           `json:"sheet,omitempty"`
	NameColumn string           `json:"name_column"`
	Students   []models.Student `json:"students"`
}

// Parser decodes .xlsx and .csv rosters.
type Parser struct {
	MaxBytes int64
}

// NewParser builds a parser refusing uploads above maxBytes (0 disables the limit).
func NewParser(maxBytes int64) *Parser {
	return &Parser{MaxBytes: maxBytes}
}

// Parse reads the roster from r. filename selects the format by extension;
// sheet picks an xlsx worksheet and defaults to the first one.
func (p *Parser) Parse(filename string, r io.Reader, sheet string) (*Roster, error) {
	data, err := p.read(r)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx", ".xlsm":
		return parseWorkbook(data, sheet)
	case ".csv":
		records, err := readCSV(data)
		if err != nil {
			return nil, err
		}
		return fromRecords(records, "")
	default:
		return nil, appErrors.Clonef(appErrors.ErrValidation, "unsupported roster file %q, expected .xlsx or .csv", filename)
	}
}

// ListSheets returns the worksheet names of an xlsx upload.
func (p *Parser) ListSheets(r io.Reader) ([]string, error) {
	data, err := p.read(r)
	if err != nil {
		return nil, err
	}
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "failed to open Excel file")
	}
	defer f.Close()
	return f.GetSheetList(), nil
}

func (p *Parser) read(r io.Reader) ([]byte, error) {
	if p.MaxBytes > 0 {
		r = io.LimitReader(r, p.MaxBytes+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read roster: %w", err)
	}
	if p.MaxBytes > 0 && int64(len(data)) > p.MaxBytes {
		return nil, appErrors.Clonef(appErrors.ErrValidation, "roster exceeds %d bytes", p.MaxBytes)
	}
	return data, nil
}

func parseWorkbook(data []byte, sheet string) (*Roster, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "failed to open Excel file")
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, appErrors.Clone(appErrors.ErrMissingIdentityColumn, "workbook has no sheets")
	}
	if sheet == "" {
		sheet = sheets[0]
	} else if idx, _ := f.GetSheetIndex(sheet); idx < 0 {
		return nil, appErrors.Clonef(appErrors.ErrNotFound, "sheet %q not found", sheet)
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read Excel rows: %w", err)
	}
	return fromRecords(rows, sheet)
}

func readCSV(data []byte) ([][]string, error) {
	reader := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	records, err := reader.ReadAll()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "failed to read CSV roster")
	}
	return records, nil
}

// fromRecords treats the first non-empty row as the header.
func fromRecords(records [][]string, sheet string) (*Roster, error) {
	start := -1
	for i, row := range records {
		if !blankRow(row) {
			start = i
			break
		}
	}
	if start < 0 {
		return nil, appErrors.Clone(appErrors.ErrMissingIdentityColumn, "roster has no header row")
	}
	headers := records[start]
	nameCol := IdentityColumn(headers)

	roster := &Roster{Sheet: sheet, NameColumn: strings.TrimSpace(headers[nameCol])}
	for _, row := range records[start+1:] {
		if nameCol >= len(row) {
			continue
		}
		name := strings.TrimSpace(row[nameCol])
		if name == "" {
			continue
		}
		student := models.Student{Name: name}
		for col, header := range headers {
			header = strings.TrimSpace(header)
			if col == nameCol || header == "" || col >= len(row) {
				continue
			}
			if value := strings.TrimSpace(row[col]); value != "" {
				if student.Attributes == nil {
					student.Attributes = map[string]string{}
				}
				student.Attributes[header] = value
			}
		}
		roster.Students = append(roster.Students, student)
	}
	return roster, nil
}

// IdentityColumn picks the name column: the first recognised header, else column 0.
func IdentityColumn(headers []string) int {
	normalised := make([]string, len(headers))
	for i, h := range headers {
		normalised[i] = strings.ToLower(strings.Join(strings.Fields(h), ""))
	}
	for _, want := range identityHeaders {
		for i, h := range normalised {
			if h == want {
				return i
			}
		}
	}
	return 0
}

func blankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
