package handlers

import (
	"errors"
	"net/http"

	"caselens-backend/corpus"
	"caselens-backend/repository"
	"caselens-backend/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func respondError(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{
		"success": false,
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}

// respondServiceError maps service and repository errors onto HTTP statuses
func respondServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repository.ErrSessionNotFound):
		respondError(c, http.StatusNotFound, "SESSION_NOT_FOUND", "Analysis session not found")
	case errors.Is(err, repository.ErrStaleTransition):
		respondError(c, http.StatusConflict, "SESSION_TERMINAL", err.Error())
	case errors.Is(err, service.ErrConfiguration):
		respondError(c, http.StatusBadRequest, "CONFIGURATION_ERROR", err.Error())
	case errors.Is(err, service.ErrInvalidMode),
		errors.Is(err, service.ErrNoAnalysisInput),
		errors.Is(err, service.ErrNoDocuments),
		errors.Is(err, service.ErrUnsupportedFormat),
		errors.Is(err, corpus.ErrUnknownPackage):
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
	case errors.Is(err, service.ErrReportNotReady):
		respondError(c, http.StatusConflict, "REPORT_NOT_READY", err.Error())
	case errors.Is(err, service.ErrRenderUnavailable):
		respondError(c, http.StatusNotImplemented, "RENDER_UNAVAILABLE", err.Error())
	default:
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
	}
}

func parseSessionID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_ID", "Invalid session ID format")
		return uuid.Nil, false
	}
	return id, true
}
