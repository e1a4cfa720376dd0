// Command marksheet builds a marks record from a JSON description and writes
// the requested exports without starting the HTTP server.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/noah-isme/marksheet-api/internal/dto"
	"github.com/noah-isme/marksheet-api/internal/models"
	"github.com/noah-isme/marksheet-api/internal/repository"
	"github.com/noah-isme/marksheet-api/internal/service"
	"github.com/noah-isme/marksheet-api/pkg/roster"
)

// input is the JSON document read by the command. Marks rows are matched to
// students by position, so blank names are rejected; null leaves a cell
// ungraded.
type input struct {
	Metadata dto.MetadataPayload `json:"metadata"`
	Students []string            `json:"students"`
	Tests    []dto.TestPayload   `json:"tests"`
	Marks    [][]*float64        `json:"marks"`
}

type options struct {
	input       string
	outDir      string
	formats     []string
	sortByRank  bool
	preamble    bool
	maxInHeader bool
	quiet       bool
	verbose     bool
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "marksheet:", err)
		os.Exit(1)
	}
}

func parseFlags(args []string) (options, error) {
	var opts options
	fs := pflag.NewFlagSet("marksheet", pflag.ContinueOnError)
	fs.StringVarP(&opts.input, "input", "i", "", "JSON marks record (metadata, students, tests, marks)")
	fs.StringVarP(&opts.outDir, "out", "o", ".", "directory for generated files")
	fs.StringSliceVarP(&opts.formats, "formats", "f", []string{"xlsx", "pdf"}, "export formats: xlsx, pdf, csv")
	fs.BoolVar(&opts.sortByRank, "sort-rank", false, "order rows by rank instead of roster order")
	fs.BoolVar(&opts.preamble, "preamble", true, "include the date and test/max rows above the header")
	fs.BoolVar(&opts.maxInHeader, "max-in-header", false, "label test columns as \"name (/ max)\"")
	fs.BoolVarP(&opts.quiet, "quiet", "q", false, "skip the terminal preview")
	fs.BoolVarP(&opts.verbose, "verbose", "v", false, "log to stderr")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if opts.input == "" {
		return opts, fmt.Errorf("--input is required")
	}
	for _, f := range opts.formats {
		if !models.ReportFormat(strings.ToLower(f)).Valid() {
			return opts, fmt.Errorf("unsupported format %q", f)
		}
	}
	return opts, nil
}

func run(args []string, stdout io.Writer) error {
	opts, err := parseFlags(args)
	if err != nil {
		return err
	}
	logr := zap.NewNop()
	if opts.verbose {
		if logr, err = zap.NewDevelopment(); err != nil {
			return err
		}
		defer logr.Sync() //nolint:errcheck
	}

	doc, err := readInput(opts.input)
	if err != nil {
		return err
	}

	ctx := context.Background()
	exporter := service.NewExportService(nil, nil, nil, nil, service.ExportConfig{}, logr)
	svc := service.NewSessionService(repository.NewSessionRepository(1), roster.NewParser(0), exporter, nil, nil, nil, service.SessionServiceConfig{
		Preamble:    opts.preamble,
		MaxInHeader: opts.maxInHeader,
	}, logr)

	session, err := svc.Create(ctx, dto.CreateSessionRequest{Metadata: doc.Metadata, Students: doc.Students, Tests: doc.Tests})
	if err != nil {
		return err
	}
	if entries := markEntries(doc.Marks); len(entries) > 0 {
		if session, err = svc.BulkMarks(ctx, session.ID, dto.BulkMarksRequest{Entries: entries}); err != nil {
			return err
		}
	}

	query := dto.ExportQuery{}
	if opts.sortByRank {
		query.Sort = "rank"
	}
	if !opts.quiet {
		view, err := svc.Report(ctx, session.ID, query)
		if err != nil {
			return err
		}
		preview(stdout, session, view)
	}

	if err := os.MkdirAll(opts.outDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	for _, f := range opts.formats {
		rendered, err := svc.Export(ctx, session.ID, models.ReportFormat(strings.ToLower(f)), query)
		if err != nil {
			return err
		}
		target := filepath.Join(opts.outDir, rendered.Filename)
		if err := os.WriteFile(target, rendered.Data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", target, err)
		}
		fmt.Fprintln(stdout, "wrote", target)
	}
	return nil
}

func readInput(path string) (*input, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	var doc input
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode input: %w", err)
	}
	for i, name := range doc.Students {
		if strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("student %d has a blank name", i+1)
		}
	}
	if len(doc.Marks) > len(doc.Students) {
		return nil, fmt.Errorf("%d marks rows for %d students", len(doc.Marks), len(doc.Students))
	}
	return &doc, nil
}

func markEntries(marks [][]*float64) []dto.SetMarkRequest {
	entries := make([]dto.SetMarkRequest, 0)
	for student, row := range marks {
		for test, value := range row {
			if value == nil {
				continue
			}
			entries = append(entries, dto.SetMarkRequest{Student: student, Test: test, Value: value})
		}
	}
	return entries
}

// preview prints the report rows as a terminal table.
func preview(w io.Writer, session *models.Session, view *dto.ReportView) {
	if title := service.ReportTitle(session.Metadata); title != "" {
		fmt.Fprintln(w, title)
	}
	dataset := service.NewReportBuilder().Build(session.Matrix.Students(), view.Tests, view.Rows, service.ReportOptions{})

	align := make([]tw.Align, len(dataset.Headers))
	for i := range align {
		align[i] = tw.AlignRight
	}
	if len(align) > 1 {
		align[1] = tw.AlignLeft
	}
	table := tablewriter.NewTable(w, tablewriter.WithConfig(tablewriter.Config{
		Row: tw.CellConfig{
			Alignment: tw.CellAlignment{PerColumn: align},
		},
	}))
	table.Header(toAny(dataset.Headers)...)
	for _, row := range dataset.Rows {
		_ = table.Append(toAny(row)...)
	}
	_ = table.Render()
	if view.EmptyDenominator {
		fmt.Fprintln(w, "no tests defined; percentages are 0")
	}
}

func toAny(cells []string) []any {
	out := make([]any, len(cells))
	for i, cell := range cells {
		out[i] = cell
	}
	return out
}
