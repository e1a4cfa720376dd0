package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/marksheet-api/internal/models"
	appErrors "github.com/noah-isme/marksheet-api/pkg/errors"
)

const exportCachePrefix = "marksheet:export"

// CacheRepository abstracts persistence for cached payloads.
type CacheRepository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// CacheService orchestrates cache operations and related metrics.
type CacheService struct {
	repo       CacheRepository
	metrics    *MetricsService
	defaultTTL time.Duration
	logger     *zap.Logger
	enabled    bool
}

// NewCacheService constructs a cache service.
func NewCacheService(repo CacheRepository, metrics *MetricsService, defaultTTL time.Duration, logger *zap.Logger, enabled bool) *CacheService {
	if defaultTTL <= 0 {
		defaultTTL = 10 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheService{repo: repo, metrics: metrics, defaultTTL: defaultTTL, logger: logger, enabled: enabled}
}

// Enabled indicates whether caching is active.
func (s *CacheService) Enabled() bool {
	return s != nil && s.enabled && s.repo != nil
}

// Get returns the cached value and true on a hit. Backend failures count as misses.
func (s *CacheService) Get(ctx context.Context, key string) ([]byte, bool) {
	if !s.Enabled() {
		return nil, false
	}
	start := time.Now()
	value, err := s.repo.Get(ctx, key)
	s.metrics.RecordCacheOperation(err == nil, time.Since(start))
	if err != nil {
		if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	return value, true
}

// Set stores the value in cache.
func (s *CacheService) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if !s.Enabled() {
		return nil
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	start := time.Now()
	err := s.repo.Set(ctx, key, value, ttl)
	s.metrics.ObserveCacheWrite(time.Since(start))
	if err != nil {
		s.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
	return err
}

// InvalidateSession drops every cached export of a session.
func (s *CacheService) InvalidateSession(ctx context.Context, sessionID string) error {
	if !s.Enabled() {
		return nil
	}
	pattern := fmt.Sprintf("%s:%s:*", exportCachePrefix, sessionID)
	if err := s.repo.DeleteByPattern(ctx, pattern); err != nil {
		s.logger.Warn("cache invalidate failed", zap.String("pattern", pattern), zap.Error(err))
		return err
	}
	return nil
}

// exportFingerprint identifies one rendering input.
type exportFingerprint struct {
	Format   models.ReportFormat   `json:"format"`
	Options  ReportOptions         `json:"options"`
	Metadata models.Metadata       `json:"metadata"`
	Matrix   models.MatrixSnapshot `json:"matrix"`
}

// ExportCacheKey hashes everything that affects the rendered bytes, so edits
// produce a new key instead of requiring invalidation.
func ExportCacheKey(sessionID string, format models.ReportFormat, opts ReportOptions, meta models.Metadata, matrix models.MatrixSnapshot) (string, error) {
	payload, err := json.Marshal(exportFingerprint{Format: format, Options: opts, Metadata: meta, Matrix: matrix})
	if err != nil {
		return "", fmt.Errorf("fingerprint export: %w", err)
	}
	sum := sha256.Sum256(payload)
	return fmt.Sprintf("%s:%s:%s", exportCachePrefix, sessionID, hex.EncodeToString(sum[:])), nil
}
