package service

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/noah-isme/marksheet-api/internal/dto"
	"github.com/noah-isme/marksheet-api/internal/models"
	"github.com/noah-isme/marksheet-api/internal/repository"
	appErrors "github.com/noah-isme/marksheet-api/pkg/errors"
	"github.com/noah-isme/marksheet-api/pkg/roster"
)

func newSessionServiceForTest(t *testing.T, cfg SessionServiceConfig) (*SessionService, *repository.SessionRepository) {
	t.Helper()
	store := repository.NewSessionRepository(0)
	exporter, _ := newExportServiceForTest(t, nil)
	svc := NewSessionService(store, roster.NewParser(1<<20), exporter, nil, NewMetricsService(), nil, cfg, zap.NewNop())
	return svc, store
}

func createSession(t *testing.T, svc *SessionService) *models.Session {
	t.Helper()
	session, err := svc.Create(context.Background(), dto.CreateSessionRequest{
		Metadata: dto.MetadataPayload{School: "Hilltop", Class: "S2", Term: "Term 1", Subject: "Maths"},
		Students: []string{"Alice", " ", "Bob", "Carol"},
		Tests: []dto.TestPayload{
			{Name: "T1", Date: "2025-02-03", Maximum: 20},
			{Name: "T2", Date: "10/03/2025", Maximum: 30},
		},
	})
	require.NoError(t, err)
	return session
}

func floatPtr(v float64) *float64 { return &v }

func TestSessionServiceCreate(t *testing.T) {
	svc, store := newSessionServiceForTest(t, SessionServiceConfig{})
	session := createSession(t, svc)

	assert.NotEmpty(t, session.ID)
	assert.Equal(t, 1, store.Count())
	assert.Equal(t, 3, session.Matrix.StudentCount(), "blank names are dropped")
	tests := session.Matrix.Tests()
	require.Len(t, tests, 2)
	assert.Equal(t, "03/02/2025", tests[0].ShortDate())
	assert.Equal(t, "10/03/2025", tests[1].ShortDate())
}

func TestSessionServiceCreateRejectsInvalidPayload(t *testing.T) {
	svc, store := newSessionServiceForTest(t, SessionServiceConfig{})
	ctx := context.Background()

	_, err := svc.Create(ctx, dto.CreateSessionRequest{Tests: []dto.TestPayload{{Maximum: 10}}})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = svc.Create(ctx, dto.CreateSessionRequest{Tests: []dto.TestPayload{{Name: "T1", Date: "March 3", Maximum: 10}}})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = svc.Create(ctx, dto.CreateSessionRequest{Tests: []dto.TestPayload{{Name: "T1", Maximum: 0}}})
	assert.ErrorIs(t, err, appErrors.ErrInvalidMaximum)
	assert.Equal(t, 0, store.Count())
}

func TestSessionServiceMarks(t *testing.T) {
	svc, _ := newSessionServiceForTest(t, SessionServiceConfig{})
	session := createSession(t, svc)
	ctx := context.Background()

	updated, err := svc.SetMark(ctx, session.ID, dto.SetMarkRequest{Student: 0, Test: 0, Value: floatPtr(18)})
	require.NoError(t, err)
	mark, _ := updated.Matrix.GetMark(0, 0)
	assert.Equal(t, models.Scored(18), mark)

	_, err = svc.SetMark(ctx, session.ID, dto.SetMarkRequest{Student: 0, Test: 0, Value: floatPtr(21)})
	assert.ErrorIs(t, err, appErrors.ErrOutOfRange)
	_, err = svc.SetMark(ctx, session.ID, dto.SetMarkRequest{Student: 9, Test: 0, Value: floatPtr(1)})
	assert.ErrorIs(t, err, appErrors.ErrUnknownEntity)
	_, err = svc.SetMark(ctx, session.ID, dto.SetMarkRequest{Student: -1, Test: 0, Value: floatPtr(1)})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	stored, err := svc.Get(ctx, session.ID)
	require.NoError(t, err)
	mark, _ = stored.Matrix.GetMark(0, 0)
	assert.Equal(t, 18.0, mark.Value, "rejected writes leave the session untouched")

	cleared, err := svc.SetMark(ctx, session.ID, dto.SetMarkRequest{Student: 0, Test: 0})
	require.NoError(t, err)
	mark, _ = cleared.Matrix.GetMark(0, 0)
	assert.False(t, mark.Set)
}

func TestSessionServiceBulkMarksIsAtomic(t *testing.T) {
	svc, _ := newSessionServiceForTest(t, SessionServiceConfig{})
	session := createSession(t, svc)
	ctx := context.Background()

	_, err := svc.BulkMarks(ctx, session.ID, dto.BulkMarksRequest{Entries: []dto.SetMarkRequest{
		{Student: 0, Test: 0, Value: floatPtr(18)},
		{Student: 1, Test: 1, Value: floatPtr(31)},
	}})
	assert.ErrorIs(t, err, appErrors.ErrOutOfRange)
	stored, _ := svc.Get(ctx, session.ID)
	mark, _ := stored.Matrix.GetMark(0, 0)
	assert.False(t, mark.Set)

	_, err = svc.BulkMarks(ctx, session.ID, dto.BulkMarksRequest{})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestSessionServiceSetRoster(t *testing.T) {
	svc, _ := newSessionServiceForTest(t, SessionServiceConfig{})
	session := createSession(t, svc)
	ctx := context.Background()
	_, err := svc.SetMark(ctx, session.ID, dto.SetMarkRequest{Student: 1, Test: 0, Value: floatPtr(12)})
	require.NoError(t, err)

	resp, err := svc.SetRoster(ctx, session.ID, dto.RosterRequest{Students: []string{"Alice", "Bob", "Carol", "Dan"}})
	require.NoError(t, err)
	assert.True(t, resp.MarksPreserved)
	assert.Len(t, resp.Students, 4)

	resp, err = svc.SetRoster(ctx, session.ID, dto.RosterRequest{Students: []string{"Bob", "Alice"}})
	require.NoError(t, err)
	assert.False(t, resp.MarksPreserved)
	stored, _ := svc.Get(ctx, session.ID)
	mark, _ := stored.Matrix.GetMark(0, 0)
	assert.False(t, mark.Set)

	_, err = svc.SetRoster(ctx, session.ID, dto.RosterRequest{Students: []string{"  "}})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestSessionServiceImportRosterUsesSheetAsClass(t *testing.T) {
	svc, _ := newSessionServiceForTest(t, SessionServiceConfig{})
	ctx := context.Background()
	session, err := svc.Create(ctx, dto.CreateSessionRequest{Metadata: dto.MetadataPayload{Subject: "Maths"}})
	require.NoError(t, err)

	f := excelize.NewFile()
	_, err = f.NewSheet("S2 Blue")
	require.NoError(t, err)
	require.NoError(t, f.SetSheetRow("S2 Blue", "A1", &[]interface{}{"Gender", "Student Name"}))
	require.NoError(t, f.SetSheetRow("S2 Blue", "A2", &[]interface{}{"F", "Alice"}))
	require.NoError(t, f.SetSheetRow("S2 Blue", "A3", &[]interface{}{"M", "Bob"}))
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	data := buf.Bytes()

	sheets, err := svc.ListSheets(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Contains(t, sheets, "S2 Blue")

	resp, err := svc.ImportRoster(ctx, session.ID, "class.xlsx", bytes.NewReader(data), "S2 Blue")
	require.NoError(t, err)
	assert.Equal(t, "Student Name", resp.NameColumn)
	require.Len(t, resp.Students, 2)
	assert.Equal(t, "Alice", resp.Students[0].Name)
	assert.Equal(t, "F", resp.Students[0].Attributes["Gender"])

	stored, _ := svc.Get(ctx, session.ID)
	assert.Equal(t, "S2 Blue", stored.Metadata.Class)
}

func TestSessionServiceImportRosterRejectsUnknownFormat(t *testing.T) {
	svc, _ := newSessionServiceForTest(t, SessionServiceConfig{})
	session := createSession(t, svc)
	_, err := svc.ImportRoster(context.Background(), session.ID, "roster.txt", strings.NewReader("Alice"), "")
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestSessionServiceTests(t *testing.T) {
	svc, _ := newSessionServiceForTest(t, SessionServiceConfig{})
	session := createSession(t, svc)
	ctx := context.Background()
	_, err := svc.SetMark(ctx, session.ID, dto.SetMarkRequest{Student: 0, Test: 1, Value: floatPtr(25)})
	require.NoError(t, err)

	updated, err := svc.AddTest(ctx, session.ID, dto.TestPayload{Name: "T3", Maximum: 10})
	require.NoError(t, err)
	assert.Equal(t, 3, updated.Matrix.TestCount())

	_, err = svc.AddTest(ctx, session.ID, dto.TestPayload{Name: "Quiz", Maximum: 0.5})
	assert.ErrorIs(t, err, appErrors.ErrInvalidMaximum)

	_, err = svc.UpdateTest(ctx, session.ID, 1, dto.TestPayload{Name: "T2", Maximum: 20})
	assert.ErrorIs(t, err, appErrors.ErrOutOfRange)
	_, err = svc.UpdateTest(ctx, session.ID, 7, dto.TestPayload{Name: "T2", Maximum: 20})
	assert.ErrorIs(t, err, appErrors.ErrUnknownEntity)

	updated, err = svc.DefineTests(ctx, session.ID, dto.DefineTestsRequest{Tests: []dto.TestPayload{
		{Name: "T1", Maximum: 20},
		{Name: "Midterm", Maximum: 40},
	}})
	require.NoError(t, err)
	require.Equal(t, 2, updated.Matrix.TestCount())
	mark, _ := updated.Matrix.GetMark(0, 1)
	assert.Equal(t, 25.0, mark.Value)
}

func TestSessionServiceReport(t *testing.T) {
	svc, _ := newSessionServiceForTest(t, SessionServiceConfig{})
	session := createSession(t, svc)
	ctx := context.Background()
	_, err := svc.BulkMarks(ctx, session.ID, dto.BulkMarksRequest{Entries: []dto.SetMarkRequest{
		{Student: 0, Test: 0, Value: floatPtr(10)},
		{Student: 1, Test: 0, Value: floatPtr(20)},
		{Student: 1, Test: 1, Value: floatPtr(30)},
		{Student: 2, Test: 0, Value: floatPtr(10)},
	}})
	require.NoError(t, err)

	view, err := svc.Report(ctx, session.ID, dto.ExportQuery{})
	require.NoError(t, err)
	assert.Equal(t, "roster", view.Order)
	assert.Equal(t, 50.0, view.MaximumTotal)
	require.Len(t, view.Rows, 3)
	assert.Equal(t, []int{2, 1, 2}, []int{view.Rows[0].Rank, view.Rows[1].Rank, view.Rows[2].Rank})

	view, err = svc.Report(ctx, session.ID, dto.ExportQuery{Sort: "rank"})
	require.NoError(t, err)
	assert.Equal(t, "rank", view.Order)
	assert.Equal(t, []string{"Bob", "Alice", "Carol"}, []string{view.Rows[0].Student.Name, view.Rows[1].Student.Name, view.Rows[2].Student.Name})

	_, err = svc.Report(ctx, session.ID, dto.ExportQuery{Sort: "name"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestSessionServiceExport(t *testing.T) {
	svc, _ := newSessionServiceForTest(t, SessionServiceConfig{Preamble: true})
	session := createSession(t, svc)
	ctx := context.Background()

	rendered, err := svc.Export(ctx, session.ID, models.ReportFormatCSV, dto.ExportQuery{})
	require.NoError(t, err)
	assert.Equal(t, "Maths_S2_Term_1_Report.csv", rendered.Filename)
	assert.Contains(t, string(rendered.Data), "03/02/2025")

	off := false
	rendered, err = svc.Export(ctx, session.ID, models.ReportFormatCSV, dto.ExportQuery{Preamble: &off})
	require.NoError(t, err)
	assert.NotContains(t, string(rendered.Data), "03/02/2025")

	_, err = svc.Export(ctx, session.ID, "docx", dto.ExportQuery{})
	assert.ErrorIs(t, err, appErrors.ErrUnsupportedFormat)

	empty, err := svc.Create(ctx, dto.CreateSessionRequest{Students: []string{"Alice"}})
	require.NoError(t, err)
	_, err = svc.Export(ctx, empty.ID, models.ReportFormatPDF, dto.ExportQuery{})
	assert.ErrorIs(t, err, appErrors.ErrEmptyDenominator)
}

func TestSessionServiceOptions(t *testing.T) {
	svc, _ := newSessionServiceForTest(t, SessionServiceConfig{Preamble: true})
	on := true
	opts := svc.Options(dto.ExportQuery{Sort: "rank", MaxInHeader: &on})
	assert.Equal(t, ReportOptions{Preamble: true, MaxInHeader: true, SortByRank: true}, opts)
}

func TestSessionServiceDeleteAndCleanup(t *testing.T) {
	svc, store := newSessionServiceForTest(t, SessionServiceConfig{IdleTTL: time.Millisecond})
	ctx := context.Background()
	first := createSession(t, svc)

	require.NoError(t, svc.Delete(ctx, first.ID))
	_, err := svc.Get(ctx, first.ID)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, first.ID), appErrors.ErrNotFound)

	second := createSession(t, svc)
	time.Sleep(5 * time.Millisecond)
	removed := svc.CleanupIdle(ctx)
	assert.Equal(t, []string{second.ID}, removed)
	assert.Equal(t, 0, store.Count())
}

func TestSessionServiceUpdateMetadata(t *testing.T) {
	svc, _ := newSessionServiceForTest(t, SessionServiceConfig{})
	session := createSession(t, svc)

	updated, err := svc.UpdateMetadata(context.Background(), session.ID, dto.MetadataPayload{Subject: "Physics", Class: "S3"})
	require.NoError(t, err)
	assert.Equal(t, "Physics", updated.Metadata.Subject)
	assert.Empty(t, updated.Metadata.School)

	_, err = svc.UpdateMetadata(context.Background(), session.ID, dto.MetadataPayload{Class: strings.Repeat("x", 61)})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}
