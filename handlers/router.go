package handlers

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes mounts the HTTP API on r
func RegisterRoutes(r *gin.Engine, analysis *AnalysisHandler, progress *ProgressHandler, reports *ReportHandler) {
	r.GET("/health", analysis.Health)

	api := r.Group("/api")
	{
		// Stage one
		api.POST("/preorganize", analysis.Preorganize)

		// Analysis sessions
		api.POST("/analyze", analysis.Analyze)
		api.GET("/sessions", analysis.ListSessions)
		api.GET("/sessions/:id", analysis.GetSession)
		api.POST("/sessions/:id/cancel", analysis.CancelSession)
		api.GET("/sessions/:id/progress", progress.Stream)

		// Reports
		api.GET("/reports/:id", reports.GetReport)

		// Rules
		api.POST("/rules/preview", analysis.PreviewRules)
	}
}
