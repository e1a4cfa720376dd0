package dto

import (
	"time"

	"github.com/noah-isme/marksheet-api/internal/models"
)

// ReportRequest captures POST /reports/generate payload.
type ReportRequest struct {
	SessionID   string              `json:"sessionId" validate:"required"`
	Format      models.ReportFormat `json:"format" validate:"required,oneof=xlsx pdf csv"`
	SortByRank  bool                `json:"sortByRank"`
	Preamble    *bool               `json:"preamble,omitempty"`
	MaxInHeader *bool               `json:"maxInHeader,omitempty"`
	RequestedBy string              `json:"requestedBy" validate:"max=120"`
}

// ReportJobResponse is returned after enqueueing a report.
type ReportJobResponse struct {
	ID       string              `json:"id"`
	Status   models.ReportStatus `json:"status"`
	Progress int                 `json:"progress"`
}

// ReportStatusResponse exposes job progress metadata.
type ReportStatusResponse struct {
	ID         string              `json:"id"`
	SessionID  string              `json:"sessionId"`
	Format     models.ReportFormat `json:"format"`
	Status     models.ReportStatus `json:"status"`
	Progress   int                 `json:"progress"`
	ResultURL  *string             `json:"resultUrl,omitempty"`
	Error      *string             `json:"error,omitempty"`
	CreatedAt  time.Time           `json:"createdAt"`
	FinishedAt *time.Time          `json:"finishedAt,omitempty"`
}
