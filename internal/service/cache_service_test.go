package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/marksheet-api/internal/models"
)

type brokenCache struct{}

func (brokenCache) Get(context.Context, string) ([]byte, error) {
	return nil, errors.New("connection refused")
}
func (brokenCache) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("connection refused")
}
func (brokenCache) DeleteByPattern(context.Context, string) error {
	return errors.New("connection refused")
}

func TestCacheServiceDisabled(t *testing.T) {
	svc := NewCacheService(&memoryCache{data: map[string][]byte{}}, nil, 0, nil, false)
	assert.False(t, svc.Enabled())
	_, hit := svc.Get(context.Background(), "k")
	assert.False(t, hit)
	assert.NoError(t, svc.Set(context.Background(), "k", []byte("v"), 0))

	var nilSvc *CacheService
	assert.False(t, nilSvc.Enabled())
}

func TestCacheServiceTreatsBackendFailureAsMiss(t *testing.T) {
	metrics := NewMetricsService()
	svc := NewCacheService(brokenCache{}, metrics, time.Minute, nil, true)

	_, hit := svc.Get(context.Background(), "k")
	assert.False(t, hit)
	assert.Error(t, svc.Set(context.Background(), "k", []byte("v"), 0))
	assert.Error(t, svc.InvalidateSession(context.Background(), "s1"))
	assert.Equal(t, uint64(1), metrics.Snapshot().CacheMisses)
}

func TestExportCacheKey(t *testing.T) {
	matrix := sampleMatrix(t, []string{"Alice"}, []models.Test{{Name: "T1", Maximum: 20}}, [][]float64{{18}})
	meta := models.Metadata{Subject: "Maths"}

	key, err := ExportCacheKey("s1", models.ReportFormatPDF, ReportOptions{}, meta, matrix.Snapshot())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, "marksheet:export:s1:"))

	same, _ := ExportCacheKey("s1", models.ReportFormatPDF, ReportOptions{}, meta, matrix.Snapshot())
	assert.Equal(t, key, same)

	otherFormat, _ := ExportCacheKey("s1", models.ReportFormatXLSX, ReportOptions{}, meta, matrix.Snapshot())
	otherOpts, _ := ExportCacheKey("s1", models.ReportFormatPDF, ReportOptions{SortByRank: true}, meta, matrix.Snapshot())
	assert.NotEqual(t, key, otherFormat)
	assert.NotEqual(t, key, otherOpts)
}
