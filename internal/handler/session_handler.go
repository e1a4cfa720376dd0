package handler

import (
	"context"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/marksheet-api/internal/dto"
	"github.com/noah-isme/marksheet-api/internal/models"
	"github.com/noah-isme/marksheet-api/internal/service"
	appErrors "github.com/noah-isme/marksheet-api/pkg/errors"
	"github.com/noah-isme/marksheet-api/pkg/response"
)

type sessionService interface {
	Create(ctx context.Context, req dto.CreateSessionRequest) (*models.Session, error)
	Get(ctx context.Context, id string) (*models.Session, error)
	UpdateMetadata(ctx context.Context, id string, req dto.MetadataPayload) (*models.Session, error)
	Delete(ctx context.Context, id string) error
	SetRoster(ctx context.Context, id string, req dto.RosterRequest) (*dto.RosterResponse, error)
	ImportRoster(ctx context.Context, id, filename string, r io.Reader, sheet string) (*dto.RosterResponse, error)
	ListSheets(r io.Reader) ([]string, error)
	AddTest(ctx context.Context, id string, req dto.TestPayload) (*models.Session, error)
	UpdateTest(ctx context.Context, id string, index int, req dto.TestPayload) (*models.Session, error)
	DefineTests(ctx context.Context, id string, req dto.DefineTestsRequest) (*models.Session, error)
	SetMark(ctx context.Context, id string, req dto.SetMarkRequest) (*models.Session, error)
	BulkMarks(ctx context.Context, id string, req dto.BulkMarksRequest) (*models.Session, error)
	Report(ctx context.Context, id string, query dto.ExportQuery) (*dto.ReportView, error)
	Export(ctx context.Context, id string, format models.ReportFormat, query dto.ExportQuery) (*service.RenderedExport, error)
}

// SessionHandler exposes marks-record editing endpoints.
type SessionHandler struct {
	sessions sessionService
}

// NewSessionHandler constructs handler.
func NewSessionHandler(sessions sessionService) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

func invalidPayload(c *gin.Context, err error) {
	response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
}

func (h *SessionHandler) respondSession(c *gin.Context, status int, session *models.Session, err error) {
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, status, dto.NewSessionResponse(session))
}

// Create godoc
// @Summary Start a marks record
// @Tags Sessions
// @Accept json
// @Produce json
// @Param payload body dto.CreateSessionRequest true "Metadata, optional roster and tests"
// @Success 201 {object} response.Envelope
// @Router /sessions [post]
func (h *SessionHandler) Create(c *gin.Context) {
	var req dto.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidPayload(c, err)
		return
	}
	session, err := h.sessions.Create(c.Request.Context(), req)
	h.respondSession(c, http.StatusCreated, session, err)
}

// Get godoc
// @Summary Get a marks record
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id} [get]
func (h *SessionHandler) Get(c *gin.Context) {
	session, err := h.sessions.Get(c.Request.Context(), c.Param("id"))
	h.respondSession(c, http.StatusOK, session, err)
}

// UpdateMetadata godoc
// @Summary Replace report metadata
// @Tags Sessions
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body dto.MetadataPayload true "Metadata"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/metadata [put]
func (h *SessionHandler) UpdateMetadata(c *gin.Context) {
	var req dto.MetadataPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidPayload(c, err)
		return
	}
	session, err := h.sessions.UpdateMetadata(c.Request.Context(), c.Param("id"), req)
	h.respondSession(c, http.StatusOK, session, err)
}

// Delete godoc
// @Summary Clear a marks record
// @Tags Sessions
// @Param id path string true "Session ID"
// @Success 204
// @Router /sessions/{id} [delete]
func (h *SessionHandler) Delete(c *gin.Context) {
	if err := h.sessions.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// SetRoster godoc
// @Summary Replace the roster with typed names
// @Tags Roster
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body dto.RosterRequest true "Student names"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/roster [put]
func (h *SessionHandler) SetRoster(c *gin.Context) {
	var req dto.RosterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidPayload(c, err)
		return
	}
	resp, err := h.sessions.SetRoster(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, resp)
}

// UploadRoster godoc
// @Summary Import the roster from a spreadsheet
// @Tags Roster
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Session ID"
// @Param file formData file true "Roster (.xlsx or .csv)"
// @Param sheet formData string false "Worksheet name, defaults to the first sheet"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/roster/upload [post]
func (h *SessionHandler) UploadRoster(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "file is required"))
		return
	}
	file, err := header.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "failed to read upload"))
		return
	}
	defer file.Close()

	resp, err := h.sessions.ImportRoster(c.Request.Context(), c.Param("id"), header.Filename, file, c.PostForm("sheet"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, resp)
}

// ListSheets godoc
// @Summary List worksheets of a workbook
// @Tags Roster
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Workbook (.xlsx)"
// @Success 200 {object} response.Envelope
// @Router /roster/sheets [post]
func (h *SessionHandler) ListSheets(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "file is required"))
		return
	}
	file, err := header.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "failed to read upload"))
		return
	}
	defer file.Close()

	sheets, err := h.sessions.ListSheets(file)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.SheetsResponse{Sheets: sheets})
}

// AddTest godoc
// @Summary Add a test column
// @Tags Tests
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body dto.TestPayload true "Test"
// @Success 201 {object} response.Envelope
// @Router /sessions/{id}/tests [post]
func (h *SessionHandler) AddTest(c *gin.Context) {
	var req dto.TestPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidPayload(c, err)
		return
	}
	session, err := h.sessions.AddTest(c.Request.Context(), c.Param("id"), req)
	h.respondSession(c, http.StatusCreated, session, err)
}

// DefineTests godoc
// @Summary Define every test at once
// @Tags Tests
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body dto.DefineTestsRequest true "Tests"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/tests [put]
func (h *SessionHandler) DefineTests(c *gin.Context) {
	var req dto.DefineTestsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidPayload(c, err)
		return
	}
	session, err := h.sessions.DefineTests(c.Request.Context(), c.Param("id"), req)
	h.respondSession(c, http.StatusOK, session, err)
}

// UpdateTest godoc
// @Summary Update test metadata
// @Tags Tests
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param test path int true "Test position (0-based)"
// @Param payload body dto.TestPayload true "Test"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/tests/{test} [put]
func (h *SessionHandler) UpdateTest(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("test"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "test must be a position"))
		return
	}
	var req dto.TestPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidPayload(c, err)
		return
	}
	session, err := h.sessions.UpdateTest(c.Request.Context(), c.Param("id"), index, req)
	h.respondSession(c, http.StatusOK, session, err)
}

// SetMark godoc
// @Summary Set or clear one mark
// @Tags Marks
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body dto.SetMarkRequest true "Mark; null value clears"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/marks [put]
func (h *SessionHandler) SetMark(c *gin.Context) {
	var req dto.SetMarkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidPayload(c, err)
		return
	}
	session, err := h.sessions.SetMark(c.Request.Context(), c.Param("id"), req)
	h.respondSession(c, http.StatusOK, session, err)
}

// BulkMarks godoc
// @Summary Set many marks atomically
// @Tags Marks
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body dto.BulkMarksRequest true "Entries"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/marks/bulk [post]
func (h *SessionHandler) BulkMarks(c *gin.Context) {
	var req dto.BulkMarksRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidPayload(c, err)
		return
	}
	session, err := h.sessions.BulkMarks(c.Request.Context(), c.Param("id"), req)
	h.respondSession(c, http.StatusOK, session, err)
}

// Report godoc
// @Summary Computed totals, percentages and ranks
// @Tags Reports
// @Produce json
// @Param id path string true "Session ID"
// @Param sort query string false "roster (default) or rank"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/report [get]
func (h *SessionHandler) Report(c *gin.Context) {
	var query dto.ExportQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		invalidPayload(c, err)
		return
	}
	view, err := h.sessions.Report(c.Request.Context(), c.Param("id"), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view)
}

// Export godoc
// @Summary Download the marks record
// @Tags Reports
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Produce application/pdf
// @Produce text/csv
// @Param id path string true "Session ID"
// @Param format path string true "xlsx, pdf or csv"
// @Param sort query string false "roster (default) or rank"
// @Param preamble query bool false "Include date and test/max rows"
// @Param max_in_header query bool false "Append (/ max) to test headers"
// @Success 200 {file} binary
// @Router /sessions/{id}/export/{format} [get]
func (h *SessionHandler) Export(c *gin.Context) {
	var query dto.ExportQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		invalidPayload(c, err)
		return
	}
	rendered, err := h.sessions.Export(c.Request.Context(), c.Param("id"), models.ReportFormat(c.Param("format")), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	if rendered.Cached {
		c.Header("X-Cache", "HIT")
	} else {
		c.Header("X-Cache", "MISS")
	}
	response.Attachment(c, rendered.Filename, rendered.ContentType, rendered.Data)
}
