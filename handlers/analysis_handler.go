package handlers

import (
	"net/http"
	"strconv"

	"caselens-backend/models"
	"caselens-backend/service"

	"github.com/gin-gonic/gin"
)

// AnalysisHandler handles HTTP requests for preorganization and analysis sessions
type AnalysisHandler struct {
	orchestrator *service.Orchestrator
}

// NewAnalysisHandler creates a new analysis handler
func NewAnalysisHandler(orchestrator *service.Orchestrator) *AnalysisHandler {
	return &AnalysisHandler{orchestrator: orchestrator}
}

// PreorganizeRequest represents the request body for stage one
type PreorganizeRequest struct {
	Documents       []models.RawDocument `json:"documents" binding:"required,min=1,dive"`
	CaseType        string               `json:"case_type"`
	ProcessPosition string               `json:"process_position"`
}

// AnalyzeRequest represents the request body for starting an analysis
type AnalyzeRequest struct {
	PreorganizedResult *models.PreorganizedResult `json:"preorganized_result"`
	Documents          []models.RawDocument       `json:"documents" binding:"dive"`
	CaseType           string                     `json:"case_type" binding:"required"`
	ProcessPosition    string                     `json:"process_position"`
	Scenario           string                     `json:"scenario"`
	RulePackageID      string                     `json:"rule_package_id"`
	Mode               models.AnalysisMode        `json:"mode"`
	Backend            string                     `json:"backend"`
}

// RulePreviewRequest represents the request body for a rule assembly preview
type RulePreviewRequest struct {
	RulePackageID string                        `json:"rule_package_id"`
	CaseType      string                        `json:"case_type"`
	Scenario      string                        `json:"scenario"`
	Panorama      *models.CrossDocumentPanorama `json:"panorama"`
}

// Preorganize handles POST /api/preorganize
func (h *AnalysisHandler) Preorganize(c *gin.Context) {
	var req PreorganizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	result, err := h.orchestrator.Preorganize(c.Request.Context(), req.Documents, req.CaseType, req.ProcessPosition)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    result,
	})
}

// Analyze handles POST /api/analyze
func (h *AnalysisHandler) Analyze(c *gin.Context) {
	var req AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	session, err := h.orchestrator.StartAnalysis(c.Request.Context(), service.AnalyzeRequest{
		Preorganized:    req.PreorganizedResult,
		Documents:       req.Documents,
		CaseType:        req.CaseType,
		ProcessPosition: req.ProcessPosition,
		Scenario:        req.Scenario,
		RulePackageID:   req.RulePackageID,
		Mode:            req.Mode,
		Backend:         req.Backend,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"data": gin.H{
			"session_id": session.ID,
			"status":     session.Status,
		},
	})
}

// GetSession handles GET /api/sessions/:id
func (h *AnalysisHandler) GetSession(c *gin.Context) {
	id, ok := parseSessionID(c)
	if !ok {
		return
	}

	session, err := h.orchestrator.Session(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    session,
	})
}

// ListSessions handles GET /api/sessions
func (h *AnalysisHandler) ListSessions(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit <= 0 {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "limit must be a positive integer")
		return
	}

	sessions, err := h.orchestrator.RecentSessions(c.Request.Context(), limit)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    sessions,
	})
}

// CancelSession handles POST /api/sessions/:id/cancel
func (h *AnalysisHandler) CancelSession(c *gin.Context) {
	id, ok := parseSessionID(c)
	if !ok {
		return
	}

	session, err := h.orchestrator.Cancel(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    session,
	})
}

// PreviewRules handles POST /api/rules/preview
func (h *AnalysisHandler) PreviewRules(c *gin.Context) {
	var req RulePreviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	rules := h.orchestrator.PreviewRules(c.Request.Context(), req.RulePackageID, service.RuleContext{
		CaseType: req.CaseType,
		Scenario: req.Scenario,
		Panorama: req.Panorama,
	})

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    rules,
	})
}

// Health handles GET /health
func (h *AnalysisHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"backends": h.orchestrator.Backends(),
	})
}
