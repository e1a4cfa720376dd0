package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/marksheet-api/internal/dto"
	"github.com/noah-isme/marksheet-api/internal/models"
	"github.com/noah-isme/marksheet-api/internal/service"
	appErrors "github.com/noah-isme/marksheet-api/pkg/errors"
)

type reportServiceMock struct {
	createResp  *dto.ReportJobResponse
	createErr   error
	lastRequest dto.ReportRequest
	statusResp  *dto.ReportStatusResponse
	statusErr   error
	listResp    []dto.ReportStatusResponse
	lastLimit   int
	download    *service.ReportDownload
	downloadErr error
}

func (m *reportServiceMock) CreateJob(ctx context.Context, req dto.ReportRequest) (*dto.ReportJobResponse, error) {
	m.lastRequest = req
	return m.createResp, m.createErr
}

func (m *reportServiceMock) GetStatus(ctx context.Context, id string) (*dto.ReportStatusResponse, error) {
	return m.statusResp, m.statusErr
}

func (m *reportServiceMock) ListJobs(ctx context.Context, sessionID string, limit int) ([]dto.ReportStatusResponse, error) {
	m.lastLimit = limit
	return m.listResp, nil
}

func (m *reportServiceMock) ResolveDownload(ctx context.Context, token string) (*service.ReportDownload, error) {
	return m.download, m.downloadErr
}

func newGinContext(method, path string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	return c, w
}

func TestReportHandlerGenerateReport(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &reportServiceMock{
		createResp: &dto.ReportJobResponse{ID: "job-1", Status: models.ReportStatusQueued, Progress: 0},
	}
	handler := NewReportHandler(mockSvc, nil)

	payload, _ := json.Marshal(dto.ReportRequest{SessionID: "s1", Format: models.ReportFormatPDF, SortByRank: true})
	c, w := newGinContext(http.MethodPost, "/reports/generate", payload)

	handler.GenerateReport(c)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "s1", mockSvc.lastRequest.SessionID)
	assert.True(t, mockSvc.lastRequest.SortByRank)
	assert.Contains(t, w.Body.String(), `"id":"job-1"`)
}

func TestReportHandlerGenerateReportError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewReportHandler(&reportServiceMock{createErr: appErrors.Clone(appErrors.ErrEmptyDenominator, "no tests")}, nil)

	c, w := newGinContext(http.MethodPost, "/reports/generate", []byte(`{"sessionId":"s1","format":"csv"}`))
	handler.GenerateReport(c)
	assert.Equal(t, http.StatusPreconditionFailed, w.Code)

	c, w = newGinContext(http.MethodPost, "/reports/generate", []byte(`not json`))
	handler.GenerateReport(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReportHandlerReportStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &reportServiceMock{
		statusResp: &dto.ReportStatusResponse{ID: "job-1", Status: models.ReportStatusFinished, Progress: 100},
	}
	handler := NewReportHandler(mockSvc, nil)

	c, w := newGinContext(http.MethodGet, "/reports/status/job-1", nil)
	c.Params = gin.Params{{Key: "id", Value: "job-1"}}

	handler.ReportStatus(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"FINISHED"`)
}

func TestReportHandlerSessionReports(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &reportServiceMock{listResp: []dto.ReportStatusResponse{{ID: "job-1"}}}
	handler := NewReportHandler(mockSvc, nil)

	c, w := newGinContext(http.MethodGet, "/sessions/s1/reports?limit=5", nil)
	c.Params = gin.Params{{Key: "id", Value: "s1"}}
	handler.SessionReports(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 5, mockSvc.lastLimit)
	assert.Contains(t, w.Body.String(), `"count":1`)

	c, w = newGinContext(http.MethodGet, "/sessions/s1/reports?limit=0", nil)
	handler.SessionReports(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReportHandlerDownloadReport(t *testing.T) {
	gin.SetMode(gin.TestMode)
	file, err := os.CreateTemp("", "report*.csv")
	require.NoError(t, err)
	defer os.Remove(file.Name())
	_, _ = file.WriteString("data")
	_, _ = file.Seek(0, 0)

	mockSvc := &reportServiceMock{
		download: &service.ReportDownload{
			File:        file,
			Filename:    "Maths_Report.csv",
			Format:      models.ReportFormatCSV,
			ContentType: "text/csv",
			ExpiresAt:   time.Now().Add(time.Hour),
		},
	}
	handler := NewReportHandler(mockSvc, nil)

	c, w := newGinContext(http.MethodGet, "/export/token", nil)
	c.Params = gin.Params{{Key: "token", Value: "token"}}

	handler.DownloadReport(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "data", w.Body.String())
	assert.Equal(t, `attachment; filename="Maths_Report.csv"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
}

func TestReportHandlerDownloadReportForbidden(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewReportHandler(&reportServiceMock{downloadErr: appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")}, nil)

	c, w := newGinContext(http.MethodGet, "/export/bad", nil)
	c.Params = gin.Params{{Key: "token", Value: "bad"}}
	handler.DownloadReport(c)
	assert.Equal(t, http.StatusForbidden, w.Code)
}
