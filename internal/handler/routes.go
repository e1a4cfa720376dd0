package handler

import "github.com/gin-gonic/gin"

// Routes groups the API handlers. Reports is nil when asynchronous reports are disabled.
type Routes struct {
	Sessions *SessionHandler
	Reports  *ReportHandler
	Metrics  *MetricsHandler
}

// Register mounts the API under group.
func (r Routes) Register(api *gin.RouterGroup) {
	if r.Sessions != nil {
		sessions := api.Group("/sessions")
		sessions.POST("", r.Sessions.Create)
		sessions.GET("/:id", r.Sessions.Get)
		sessions.PUT("/:id/metadata", r.Sessions.UpdateMetadata)
		sessions.DELETE("/:id", r.Sessions.Delete)
		sessions.PUT("/:id/roster", r.Sessions.SetRoster)
		sessions.POST("/:id/roster/upload", r.Sessions.UploadRoster)
		sessions.POST("/:id/tests", r.Sessions.AddTest)
		sessions.PUT("/:id/tests", r.Sessions.DefineTests)
		sessions.PUT("/:id/tests/:test", r.Sessions.UpdateTest)
		sessions.PUT("/:id/marks", r.Sessions.SetMark)
		sessions.POST("/:id/marks/bulk", r.Sessions.BulkMarks)
		sessions.GET("/:id/report", r.Sessions.Report)
		sessions.GET("/:id/export/:format", r.Sessions.Export)
		if r.Reports != nil {
			sessions.GET("/:id/reports", r.Reports.SessionReports)
		}
		api.POST("/roster/sheets", r.Sessions.ListSheets)
	}

	if r.Reports != nil {
		reports := api.Group("/reports")
		reports.POST("/generate", r.Reports.GenerateReport)
		reports.GET("/status/:id", r.Reports.ReportStatus)
		api.GET("/export/:token", r.Reports.DownloadReport)
	}

	if r.Metrics != nil {
		api.GET("/metrics/summary", r.Metrics.Summary)
	}
}
