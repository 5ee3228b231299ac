package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/inkstamp/paperless-stamp/pkg/logger"
)

// Presigner hands out time-limited links to archived objects
type Presigner interface {
	GetPresignedURL(ctx context.Context, objectName string) (string, error)
}

type ArchiveHandler struct {
	presigner Presigner
}

func NewArchiveHandler(p Presigner) *ArchiveHandler {
	return &ArchiveHandler{presigner: p}
}

// Download redirects to a presigned link for an archived stamped copy
//
//	GET /api/archive/documents/42/20240315T120000Z-<cycle>.pdf
func (h *ArchiveHandler) Download(c *gin.Context) {
	object := strings.TrimPrefix(c.Param("object"), "/")
	if !strings.HasPrefix(object, "documents/") || strings.Contains(object, "..") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid object name"})
		return
	}

	url, err := h.presigner.GetPresignedURL(c.Request.Context(), object)
	if err != nil {
		logger.Error(c.Request.Context(), "failed to presign archive object", "object", object, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate URL"})
		return
	}
	c.Redirect(http.StatusFound, url)
}
