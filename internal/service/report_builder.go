package service

import (
	"strconv"
	"strings"

	"github.com/noah-isme/marksheet-api/internal/models"
	"github.com/noah-isme/marksheet-api/pkg/export"
)

// Fixed report columns around the per-test columns.
const (
	ColumnSequence   = "SN"
	ColumnName       = "Name"
	ColumnTotal      = "Total"
	ColumnMaximum    = "/Max"
	ColumnPercentage = "Percentage"
	ColumnRank       = "Rank"
)

// ReportOptions tunes the tabular layout.
type ReportOptions struct {
	// Preamble adds the Date row and the "name (/ max)" row above the header.
	Preamble bool
	// MaxInHeader labels test columns as "name (/ max)" instead of the bare name.
	MaxInHeader bool
	// SortByRank orders data rows by rank instead of roster order.
	SortByRank bool
}

// ReportBuilder lays report rows out as a rectangular table. No I/O.
type ReportBuilder struct{}

// NewReportBuilder constructs a builder.
func NewReportBuilder() *ReportBuilder {
	return &ReportBuilder{}
}

// Build returns the header, optional preamble and one data row per report row.
func (b *ReportBuilder) Build(roster []models.Student, tests []models.Test, rows []models.ReportRow, opts ReportOptions) export.Dataset {
	width := 2 + len(tests) + 4
	headers := make([]string, 0, width)
	headers = append(headers, ColumnSequence, ColumnName)
	for _, test := range tests {
		if opts.MaxInHeader {
			headers = append(headers, test.Label())
		} else {
			headers = append(headers, test.Name)
		}
	}
	headers = append(headers, ColumnTotal, ColumnMaximum, ColumnPercentage, ColumnRank)

	kinds := make([]export.ColumnKind, 0, width)
	kinds = append(kinds, export.ColumnNumber, export.ColumnText)
	for range tests {
		kinds = append(kinds, export.ColumnNumber)
	}
	kinds = append(kinds, export.ColumnNumber, export.ColumnNumber, export.ColumnFixed2, export.ColumnNumber)

	dataset := export.Dataset{Headers: headers, Kinds: kinds}
	if opts.Preamble && len(tests) > 0 {
		dates := make([]string, width)
		labels := make([]string, width)
		for i, test := range tests {
			dates[2+i] = test.ShortDate()
			labels[2+i] = test.Label()
		}
		dataset.Preamble = [][]string{dates, labels}
	}

	ordered := rows
	if opts.SortByRank {
		ordered = RankOrder(rows)
	}
	dataset.Rows = make([][]string, 0, len(ordered))
	for _, row := range ordered {
		name := row.Student.Name
		if row.Position >= 0 && row.Position < len(roster) {
			name = roster[row.Position].Name
		}
		line := make([]string, 0, width)
		line = append(line, strconv.Itoa(row.SequenceNumber()), name)
		for i := range tests {
			cell := ""
			if i < len(row.Marks) {
				cell = row.Marks[i].String()
			}
			line = append(line, cell)
		}
		line = append(line,
			models.FormatNumber(row.Total),
			models.FormatNumber(row.MaximumTotal),
			models.FormatPercentage(row.Percentage),
			strconv.Itoa(row.Rank),
		)
		dataset.Rows = append(dataset.Rows, line)
	}
	return dataset
}

// Document wraps a computed report with its title and metadata block.
func (b *ReportBuilder) Document(meta models.Metadata, result ReportResult, roster []models.Student, opts ReportOptions) export.Document {
	fields := meta.Fields()
	metadata := make([]export.Field, 0, len(fields))
	for _, field := range fields {
		metadata = append(metadata, export.Field{Label: field.Label, Value: field.Value})
	}
	return export.Document{
		Title:    ReportTitle(meta),
		Metadata: metadata,
		Dataset:  b.Build(roster, result.Tests, result.Rows, opts),
	}
}

// ReportTitle joins "MARKS RECORD", subject and term with dash separators, skipping blank parts.
func ReportTitle(meta models.Metadata) string {
	parts := []string{"MARKS RECORD"}
	for _, part := range []string{meta.Subject, meta.Term} {
		if part = strings.TrimSpace(part); part != "" {
			parts = append(parts, part)
		}
	}
	return strings.Join(parts, " — ")
}
