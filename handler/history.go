// Package handler implements the admin HTTP API: stamp history, runtime
// settings, stamp previews and manual cycle triggers.
package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/inkstamp/paperless-stamp/model"
	"github.com/inkstamp/paperless-stamp/pkg/logger"
	"github.com/inkstamp/paperless-stamp/store"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

type HistoryHandler struct {
	history store.History
}

func NewHistoryHandler(history store.History) *HistoryHandler {
	return &HistoryHandler{history: history}
}

// List returns the most recent outcomes, newest first
func (h *HistoryHandler) List(c *gin.Context) {
	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	outcomes, err := h.history.List(c.Request.Context(), limit)
	if err != nil {
		logger.Error(c.Request.Context(), "failed to list history", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load history"})
		return
	}
	if outcomes == nil {
		outcomes = []model.StampOutcome{}
	}

	c.JSON(http.StatusOK, gin.H{"outcomes": outcomes, "count": len(outcomes)})
}

// ForDocument returns every retained outcome of one document
func (h *HistoryHandler) ForDocument(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("document_id"))
	if err != nil || id < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid document ID"})
		return
	}

	outcomes, err := h.history.ForDocument(c.Request.Context(), id)
	if err != nil {
		logger.Error(c.Request.Context(), "failed to load document history", "document_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load history"})
		return
	}
	if len(outcomes) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "No outcomes recorded for document"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"document_id": id, "outcomes": outcomes})
}
