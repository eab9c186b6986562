package handlers

import (
	"fmt"
	"net/http"

	"caselens-backend/service"

	"github.com/gin-gonic/gin"
)

// ReportHandler serves generated reports
type ReportHandler struct {
	orchestrator *service.Orchestrator
}

// NewReportHandler creates a new report handler
func NewReportHandler(orchestrator *service.Orchestrator) *ReportHandler {
	return &ReportHandler{orchestrator: orchestrator}
}

// GetReport handles GET /api/reports/:id?format=md|json|docx|pdf
func (h *ReportHandler) GetReport(c *gin.Context) {
	id, ok := parseSessionID(c)
	if !ok {
		return
	}
	format := c.DefaultQuery("format", service.FormatMarkdown)

	data, contentType, err := h.orchestrator.Report(c.Request.Context(), id, format)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	if format == service.FormatDOCX || format == service.FormatPDF {
		c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="report-%s.%s"`, id, format))
	}
	c.Data(http.StatusOK, contentType, data)
}
