package service

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/marksheet-api/internal/dto"
	"github.com/noah-isme/marksheet-api/internal/models"
	appErrors "github.com/noah-isme/marksheet-api/pkg/errors"
	"github.com/noah-isme/marksheet-api/pkg/roster"
)

type sessionStore interface {
	Create(ctx context.Context, session *models.Session) error
	Get(ctx context.Context, id string) (*models.Session, error)
	Update(ctx context.Context, id string, fn func(*models.Session) error) (*models.Session, error)
	Delete(ctx context.Context, id string) error
	DeleteIdleSince(ctx context.Context, cutoff time.Time) []string
	Count() int
}

type rosterParser interface {
	Parse(filename string, r io.Reader, sheet string) (*roster.Roster, error)
	ListSheets(r io.Reader) ([]string, error)
}

type sessionExporter interface {
	RenderSession(ctx context.Context, session *models.Session, format models.ReportFormat, opts ReportOptions) (*RenderedExport, error)
}

// SessionServiceConfig holds export defaults and idle-session housekeeping.
type SessionServiceConfig struct {
	IdleTTL         time.Duration
	CleanupInterval time.Duration
	Preamble        bool
	MaxInHeader     bool
}

// SessionService owns the marks-record editing workflow.
type SessionService struct {
	store      sessionStore
	parser     rosterParser
	exporter   sessionExporter
	cache      *CacheService
	metrics    *MetricsService
	calculator *ReportCalculator
	validator  *validator.Validate
	logger     *zap.Logger
	cfg        SessionServiceConfig
}

// NewSessionService constructs the service.
func NewSessionService(store sessionStore, parser rosterParser, exporter sessionExporter, cache *CacheService, metrics *MetricsService, validate *validator.Validate, cfg SessionServiceConfig, logger *zap.Logger) *SessionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if parser == nil {
		parser = roster.NewParser(0)
	}
	return &SessionService{
		store:      store,
		parser:     parser,
		exporter:   exporter,
		cache:      cache,
		metrics:    metrics,
		calculator: NewReportCalculator(),
		validator:  validate,
		logger:     logger,
		cfg:        cfg,
	}
}

// Create starts a session, optionally seeded with a roster and tests.
func (s *SessionService) Create(ctx context.Context, req dto.CreateSessionRequest) (*models.Session, error) {
	if err := s.validate(req, "invalid session payload"); err != nil {
		return nil, err
	}
	tests, err := parseTests(req.Tests)
	if err != nil {
		return nil, err
	}
	matrix, err := models.NewScoreMatrix(models.TrimNames(req.Students), tests)
	if err != nil {
		return nil, err
	}
	session := &models.Session{Metadata: req.Metadata.Model(), Matrix: matrix}
	if err := s.store.Create(ctx, session); err != nil {
		return nil, err
	}
	s.metrics.SetActiveSessions(s.store.Count())
	s.logger.Info("session created", zap.String("session_id", session.ID), zap.Int("students", matrix.StudentCount()), zap.Int("tests", matrix.TestCount()))
	return session, nil
}

// Get returns the session.
func (s *SessionService) Get(ctx context.Context, id string) (*models.Session, error) {
	return s.store.Get(ctx, id)
}

// UpdateMetadata replaces the school/report information block.
func (s *SessionService) UpdateMetadata(ctx context.Context, id string, req dto.MetadataPayload) (*models.Session, error) {
	if err := s.validate(req, "invalid metadata payload"); err != nil {
		return nil, err
	}
	return s.store.Update(ctx, id, func(session *models.Session) error {
		session.Metadata = req.Model()
		return nil
	})
}

// Delete clears a session and its cached exports.
func (s *SessionService) Delete(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	_ = s.cache.InvalidateSession(ctx, id)
	s.metrics.SetActiveSessions(s.store.Count())
	s.logger.Info("session deleted", zap.String("session_id", id))
	return nil
}

// SetRoster replaces the roster with manually entered names.
func (s *SessionService) SetRoster(ctx context.Context, id string, req dto.RosterRequest) (*dto.RosterResponse, error) {
	if err := s.validate(req, "invalid roster payload"); err != nil {
		return nil, err
	}
	students := models.TrimNames(req.Students)
	if len(students) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "roster needs at least one non-blank name")
	}
	return s.replaceRoster(ctx, id, &roster.Roster{Students: students})
}

// ImportRoster parses an uploaded spreadsheet and replaces the roster with it.
// When the session has no class yet, the chosen sheet name becomes the class.
func (s *SessionService) ImportRoster(ctx context.Context, id, filename string, r io.Reader, sheet string) (*dto.RosterResponse, error) {
	parsed, err := s.parser.Parse(filename, r, sheet)
	if err != nil {
		return nil, err
	}
	if len(parsed.Students) == 0 {
		return nil, appErrors.Clonef(appErrors.ErrValidation, "no student names found in column %q", parsed.NameColumn)
	}
	return s.replaceRoster(ctx, id, parsed)
}

// ListSheets returns the worksheets of an uploaded workbook.
func (s *SessionService) ListSheets(r io.Reader) ([]string, error) {
	return s.parser.ListSheets(r)
}

func (s *SessionService) replaceRoster(ctx context.Context, id string, parsed *roster.Roster) (*dto.RosterResponse, error) {
	var preserved bool
	session, err := s.store.Update(ctx, id, func(session *models.Session) error {
		preserved = session.Matrix.ResizeRoster(parsed.Students)
		if strings.TrimSpace(session.Metadata.Class) == "" && parsed.Sheet != "" {
			session.Metadata.Class = parsed.Sheet
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !preserved {
		s.logger.Info("roster replaced, marks reset", zap.String("session_id", id), zap.Int("students", len(parsed.Students)))
	}
	return &dto.RosterResponse{
		Sheet:          parsed.Sheet,
		NameColumn:     parsed.NameColumn,
		Students:       session.Matrix.Students(),
		MarksPreserved: preserved,
	}, nil
}

// AddTest appends one test; existing students get an unset mark for it.
func (s *SessionService) AddTest(ctx context.Context, id string, req dto.TestPayload) (*models.Session, error) {
	if err := s.validate(req, "invalid test payload"); err != nil {
		return nil, err
	}
	test, err := parseTest(req)
	if err != nil {
		return nil, err
	}
	return s.store.Update(ctx, id, func(session *models.Session) error {
		return session.Matrix.AddTest(test)
	})
}

// UpdateTest changes the name, date or maximum of the test at index.
func (s *SessionService) UpdateTest(ctx context.Context, id string, index int, req dto.TestPayload) (*models.Session, error) {
	if err := s.validate(req, "invalid test payload"); err != nil {
		return nil, err
	}
	test, err := parseTest(req)
	if err != nil {
		return nil, err
	}
	return s.store.Update(ctx, id, func(session *models.Session) error {
		return session.Matrix.UpdateTest(index, test)
	})
}

// DefineTests replaces the whole test list in one step.
func (s *SessionService) DefineTests(ctx context.Context, id string, req dto.DefineTestsRequest) (*models.Session, error) {
	if err := s.validate(req, "invalid tests payload"); err != nil {
		return nil, err
	}
	tests, err := parseTests(req.Tests)
	if err != nil {
		return nil, err
	}
	return s.store.Update(ctx, id, func(session *models.Session) error {
		return session.Matrix.DefineTests(tests)
	})
}

// SetMark sets one cell; a nil value clears it.
func (s *SessionService) SetMark(ctx context.Context, id string, req dto.SetMarkRequest) (*models.Session, error) {
	if err := s.validate(req, "invalid mark payload"); err != nil {
		return nil, err
	}
	return s.store.Update(ctx, id, func(session *models.Session) error {
		if req.Value == nil {
			return session.Matrix.ClearMark(req.Student, req.Test)
		}
		return session.Matrix.SetMark(req.Student, req.Test, *req.Value)
	})
}

// BulkMarks applies every entry or none of them.
func (s *SessionService) BulkMarks(ctx context.Context, id string, req dto.BulkMarksRequest) (*models.Session, error) {
	if err := s.validate(req, "invalid marks payload"); err != nil {
		return nil, err
	}
	entries := make([]models.MarkEntry, len(req.Entries))
	for i, entry := range req.Entries {
		entries[i] = models.MarkEntry{Student: entry.Student, Test: entry.Test, Value: entry.Value}
	}
	return s.store.Update(ctx, id, func(session *models.Session) error {
		return session.Matrix.SetMarks(entries)
	})
}

// Report computes totals, percentages and ranks for the session.
func (s *SessionService) Report(ctx context.Context, id string, query dto.ExportQuery) (*dto.ReportView, error) {
	if err := s.validate(query, "invalid report query"); err != nil {
		return nil, err
	}
	session, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	result := s.calculator.Compute(session.Matrix)
	view := &dto.ReportView{
		Tests:            result.Tests,
		Rows:             result.Rows,
		MaximumTotal:     result.MaximumTotal,
		EmptyDenominator: result.EmptyDenominator,
		Order:            "roster",
	}
	if view.Tests == nil {
		view.Tests = []models.Test{}
	}
	if query.Sort == "rank" {
		view.Rows = RankOrder(result.Rows)
		view.Order = "rank"
	}
	return view, nil
}

// Export renders the session in the requested format.
func (s *SessionService) Export(ctx context.Context, id string, format models.ReportFormat, query dto.ExportQuery) (*RenderedExport, error) {
	if err := s.validate(query, "invalid export query"); err != nil {
		return nil, err
	}
	session, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.exporter.RenderSession(ctx, session, format, s.Options(query))
}

// Options resolves layout options from configured defaults and query overrides.
func (s *SessionService) Options(query dto.ExportQuery) ReportOptions {
	opts := ReportOptions{
		Preamble:    s.cfg.Preamble,
		MaxInHeader: s.cfg.MaxInHeader,
		SortByRank:  query.Sort == "rank",
	}
	if query.Preamble != nil {
		opts.Preamble = *query.Preamble
	}
	if query.MaxInHeader != nil {
		opts.MaxInHeader = *query.MaxInHeader
	}
	return opts
}

// StartCleanup periodically drops sessions idle for longer than IdleTTL.
func (s *SessionService) StartCleanup(ctx context.Context) {
	if s.cfg.CleanupInterval <= 0 || s.cfg.IdleTTL <= 0 {
		return
	}
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.CleanupIdle(ctx)
			}
		}
	}()
}

// CleanupIdle removes idle sessions now and returns their ids.
func (s *SessionService) CleanupIdle(ctx context.Context) []string {
	if s.cfg.IdleTTL <= 0 {
		return nil
	}
	removed := s.store.DeleteIdleSince(ctx, time.Now().UTC().Add(-s.cfg.IdleTTL))
	for _, id := range removed {
		_ = s.cache.InvalidateSession(ctx, id)
	}
	if len(removed) > 0 {
		s.logger.Info("idle sessions removed", zap.Int("count", len(removed)))
	}
	s.metrics.SetActiveSessions(s.store.Count())
	return removed
}

func (s *SessionService) validate(payload interface{}, message string) error {
	if err := s.validator.Struct(payload); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, message)
	}
	return nil
}

var testDateLayouts = []string{"2006-01-02", models.DateLayout}

func parseTest(req dto.TestPayload) (models.Test, error) {
	test := models.Test{Name: strings.TrimSpace(req.Name), Maximum: req.Maximum}
	raw := strings.TrimSpace(req.Date)
	if raw == "" {
		return test, nil
	}
	for _, layout := range testDateLayouts {
		if date, err := time.Parse(layout, raw); err == nil {
			test.Date = date
			return test, nil
		}
	}
	return models.Test{}, appErrors.Clonef(appErrors.ErrValidation, "test %q: date %q must be YYYY-MM-DD or DD/MM/YYYY", test.Name, raw)
}

func parseTests(payloads []dto.TestPayload) ([]models.Test, error) {
	tests := make([]models.Test, 0, len(payloads))
	for _, payload := range payloads {
		test, err := parseTest(payload)
		if err != nil {
			return nil, err
		}
		tests = append(tests, test)
	}
	return tests, nil
}
