package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/marksheet-api/internal/models"
	appErrors "github.com/noah-isme/marksheet-api/pkg/errors"
	"github.com/noah-isme/marksheet-api/pkg/export"
	"github.com/noah-isme/marksheet-api/pkg/storage"
)

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

// Renderer turns a laid-out document into file bytes.
type Renderer interface {
	Render(doc export.Document) ([]byte, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
	CacheTTL  time.Duration
}

// RenderedExport is one rendered file ready to be served or stored.
type RenderedExport struct {
	Filename    string
	ContentType string
	Format      models.ReportFormat
	Data        []byte
	Cached      bool
}

// ExportResult captures stored-file metadata for asynchronous jobs.
type ExportResult struct {
	RelativePath string
	Token        string
	URL          string
	Format       models.ReportFormat
	ExpiresAt    time.Time
}

// ExportService runs calculator, builder and exporter, and persists job output.
type ExportService struct {
	calculator *ReportCalculator
	builder    *ReportBuilder
	renderers  map[models.ReportFormat]Renderer
	storage    fileStorage
	signer     *storage.SignedURLSigner
	cache      *CacheService
	metrics    *MetricsService
	logger     *zap.Logger
	cfg        ExportConfig
}

// NewExportService constructs an ExportService with the xlsx, pdf and csv exporters.
// storage and signer may be nil when asynchronous jobs are disabled.
func NewExportService(store fileStorage, signer *storage.SignedURLSigner, cache *CacheService, metrics *MetricsService, cfg ExportConfig, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	return &ExportService{
		calculator: NewReportCalculator(),
		builder:    NewReportBuilder(),
		renderers: map[models.ReportFormat]Renderer{
			models.ReportFormatXLSX: export.NewXLSXExporter(),
			models.ReportFormatPDF:  export.NewPDFExporter(),
			models.ReportFormatCSV:  export.NewCSVExporter(),
		},
		storage: store,
		signer:  signer,
		cache:   cache,
		metrics: metrics,
		logger:  logger,
		cfg:     cfg,
	}
}

// WithRenderer overrides the renderer of one format.
func (s *ExportService) WithRenderer(format models.ReportFormat, r Renderer) *ExportService {
	s.renderers[format] = r
	return s
}

// Render produces a file for the matrix. Without tests there is nothing to
// report and ErrEmptyDenominator is returned.
func (s *ExportService) Render(format models.ReportFormat, meta models.Metadata, matrix *models.ScoreMatrix, opts ReportOptions) (*RenderedExport, error) {
	renderer, ok := s.renderers[format]
	if !ok {
		return nil, appErrors.Clonef(appErrors.ErrUnsupportedFormat, "unsupported export format %q", format)
	}
	if matrix.TestCount() == 0 {
		return nil, appErrors.Clone(appErrors.ErrEmptyDenominator, "add at least one test before exporting")
	}

	start := time.Now()
	result := s.calculator.Compute(matrix)
	doc := s.builder.Document(meta, result, matrix.Students(), opts)
	data, err := renderer.Render(doc)
	s.metrics.ObserveExport(format, time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", format, err)
	}
	return &RenderedExport{
		Filename:    Filename(meta, format),
		ContentType: format.ContentType(),
		Format:      format,
		Data:        data,
	}, nil
}

// RenderSession renders a session export, memoized by content when caching is on.
func (s *ExportService) RenderSession(ctx context.Context, session *models.Session, format models.ReportFormat, opts ReportOptions) (*RenderedExport, error) {
	var key string
	if s.cache.Enabled() && format.Valid() {
		var err error
		key, err = ExportCacheKey(session.ID, format, opts, session.Metadata, session.Matrix.Snapshot())
		if err != nil {
			return nil, err
		}
		if data, hit := s.cache.Get(ctx, key); hit {
			return &RenderedExport{
				Filename:    Filename(session.Metadata, format),
				ContentType: format.ContentType(),
				Format:      format,
				Data:        data,
				Cached:      true,
			}, nil
		}
	}

	rendered, err := s.Render(format, session.Metadata, session.Matrix, opts)
	if err != nil {
		return nil, err
	}
	if key != "" {
		_ = s.cache.Set(ctx, key, rendered.Data, s.cfg.CacheTTL)
	}
	return rendered, nil
}

// Generate renders a job's frozen snapshot, stores it and signs a download URL.
func (s *ExportService) Generate(_ context.Context, job *models.ReportJob) (*ExportResult, error) {
	if job == nil {
		return nil, fmt.Errorf("job nil")
	}
	if !s.filesEnabled() {
		return nil, errNoExportStorage
	}
	matrix, err := models.RestoreScoreMatrix(job.Params.Matrix)
	if err != nil {
		return nil, err
	}
	opts := ReportOptions{Preamble: job.Params.Preamble, MaxInHeader: job.Params.MaxInHeader, SortByRank: job.Params.SortByRank}
	rendered, err := s.Render(job.Params.Format, job.Params.Metadata, matrix, opts)
	if err != nil {
		return nil, err
	}

	relPath, err := s.storage.Save(path.Join("reports", job.ID, rendered.Filename), rendered.Data)
	if err != nil {
		return nil, err
	}

	token, expiresAt, err := s.signer.Generate(job.ID, relPath)
	if err != nil {
		return nil, err
	}
	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}

	return &ExportResult{
		RelativePath: relPath,
		Token:        token,
		URL:          fmt.Sprintf("%s/export/%s", prefix, token),
		Format:       job.Params.Format,
		ExpiresAt:    expiresAt,
	}, nil
}

// ParseToken validates download token metadata.
func (s *ExportService) ParseToken(token string, allowExpired bool) (storage.Claims, error) {
	if s.signer == nil {
		return storage.Claims{}, storage.ErrInvalidToken
	}
	return s.signer.Parse(token, allowExpired)
}

// Open returns a handle to the stored file.
func (s *ExportService) Open(relPath string) (*os.File, error) {
	if !s.filesEnabled() {
		return nil, errNoExportStorage
	}
	return s.storage.Open(relPath)
}

// Delete removes a stored export file.
func (s *ExportService) Delete(relPath string) error {
	if !s.filesEnabled() {
		return errNoExportStorage
	}
	return s.storage.Delete(relPath)
}

// Cleanup removes files older than ttl (defaults to configured ResultTTL when ttl <= 0).
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if !s.filesEnabled() {
		return nil, nil
	}
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

// filesEnabled reports whether stored exports are configured. The signer is
// checked first because a nil *storage.LocalStorage still yields a non-nil fileStorage.
func (s *ExportService) filesEnabled() bool {
	return s.signer != nil && s.storage != nil
}

var errNoExportStorage = errors.New("export storage not configured")

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Filename suggests "<subject>_<class>_<term>_Report.<ext>", skipping blank parts.
func Filename(meta models.Metadata, format models.ReportFormat) string {
	parts := make([]string, 0, 4)
	for _, raw := range []string{meta.Subject, meta.Class, meta.Term} {
		if part := sanitizeFilename(raw); part != "" {
			parts = append(parts, part)
		}
	}
	if len(parts) == 0 {
		parts = append(parts, "Marks")
	}
	parts = append(parts, "Report")
	return strings.Join(parts, "_") + "." + string(format)
}

func sanitizeFilename(raw string) string {
	result := unsafeFilenameChars.ReplaceAllString(strings.Join(strings.Fields(raw), "_"), "-")
	result = strings.Trim(result, ".-_")
	if len(result) > 60 {
		result = result[:60]
	}
	return result
}
