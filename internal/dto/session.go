package dto

import (
	"time"

	"github.com/noah-isme/marksheet-api/internal/models"
)

// MetadataPayload is the school/report information block.
type MetadataPayload struct {
	District     string `json:"district" validate:"max=120"`
	Sector       string `json:"sector" validate:"max=120"`
	School       string `json:"school" validate:"max=160"`
	Class        string `json:"class" validate:"max=60"`
	AcademicYear string `json:"academic_year" validate:"max=30"`
	Term         string `json:"term" validate:"max=60"`
	Subject      string `json:"subject" validate:"max=120"`
	Teacher      string `json:"teacher" validate:"max=120"`
}

// Model converts the payload into the domain type.
func (p MetadataPayload) Model() models.Metadata {
	return models.Metadata(p)
}

// TestPayload describes one test. Date accepts YYYY-MM-DD or DD/MM/YYYY.
type TestPayload struct {
	Name    string  `json:"name" validate:"required,max=60"`
	Date    string  `json:"date" validate:"omitempty,max=10"`
	Maximum float64 `json:"maximum"`
}

// CreateSessionRequest starts a marks record; roster and tests are optional.
type CreateSessionRequest struct {
	Metadata MetadataPayload `json:"metadata"`
	Students []string        `json:"students" validate:"omitempty,max=500,dive,max=120"`
	Tests    []TestPayload   `json:"tests" validate:"omitempty,max=100,dive"`
}

// RosterRequest replaces the roster with manually entered names.
type RosterRequest struct {
	Students []string `json:"students" validate:"required,min=1,max=500,dive,max=120"`
}

// DefineTestsRequest replaces every test in one step.
type DefineTestsRequest struct {
	Tests []TestPayload `json:"tests" validate:"max=100,dive"`
}

// SetMarkRequest sets one cell; a null value clears it.
type SetMarkRequest struct {
	Student int      `json:"student" validate:"gte=0"`
	Test    int      `json:"test" validate:"gte=0"`
	Value   *float64 `json:"value"`
}

// BulkMarksRequest applies many cells atomically.
type BulkMarksRequest struct {
	Entries []SetMarkRequest `json:"entries" validate:"required,min=1,max=50000,dive"`
}

// ExportQuery carries optional layout overrides for report and export endpoints.
type ExportQuery struct {
	Sort        string `form:"sort" validate:"omitempty,oneof=roster rank"`
	Preamble    *bool  `form:"preamble"`
	MaxInHeader *bool  `form:"max_in_header"`
}

// SessionResponse is the full session view.
type SessionResponse struct {
	ID           string           `json:"id"`
	Metadata     models.Metadata  `json:"metadata"`
	Students     []models.Student `json:"students"`
	Tests        []models.Test    `json:"tests"`
	Marks        [][]models.Mark  `json:"marks"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
	LastAccessed time.Time        `json:"last_accessed_at"`
}

// NewSessionResponse renders a session.
func NewSessionResponse(s *models.Session) SessionResponse {
	snap := s.Matrix.Snapshot()
	students := snap.Students
	if students == nil {
		students = []models.Student{}
	}
	tests := snap.Tests
	if tests == nil {
		tests = []models.Test{}
	}
	marks := snap.Marks
	if marks == nil {
		marks = [][]models.Mark{}
	}
	return SessionResponse{
		ID:           s.ID,
		Metadata:     s.Metadata,
		Students:     students,
		Tests:        tests,
		Marks:        marks,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
		LastAccessed: s.LastAccessed,
	}
}

// RosterResponse reports the roster after a replacement.
type RosterResponse struct {
	Sheet      string           `json:"sheet,omitempty"`
	NameColumn string           `json:"name_column,omitempty"`
	Students   []models.Student `json:"students"`
	// MarksPreserved is false when the new roster was not an append-only
	// extension and every mark was reset.
	MarksPreserved bool `json:"marks_preserved"`
}

// SheetsResponse lists workbook sheets.
type SheetsResponse struct {
	Sheets []string `json:"sheets"`
}

// ReportView is the computed marks record.
type ReportView struct {
	Tests            []models.Test      `json:"tests"`
	Rows             []models.ReportRow `json:"rows"`
	MaximumTotal     float64            `json:"maximum_total"`
	EmptyDenominator bool               `json:"empty_denominator"`
	Order            string             `json:"order"`
}
