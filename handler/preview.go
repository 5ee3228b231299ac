package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/inkstamp/paperless-stamp/config"
	"github.com/inkstamp/paperless-stamp/model"
	"github.com/inkstamp/paperless-stamp/pdfmerge"
	"github.com/inkstamp/paperless-stamp/pkg/logger"
	"github.com/inkstamp/paperless-stamp/stamp"
)

// A4 portrait in points
const (
	defaultPreviewWidth  = 595.0
	defaultPreviewHeight = 842.0
	maxPreviewSide       = 14400.0
)

type PreviewHandler struct {
	resolver *config.Resolver
	merger   *pdfmerge.Merger
}

func NewPreviewHandler(resolver *config.Resolver) *PreviewHandler {
	return &PreviewHandler{resolver: resolver, merger: pdfmerge.NewMerger()}
}

// Preview renders the requested stamp types onto a blank page with the
// current settings. format=json returns the computed placements instead
// of the PDF.
//
//	GET /api/preview?type=paid&type=received&date=2024-03-15&width=595&height=842&document_id=1
func (h *PreviewHandler) Preview(c *gin.Context) {
	stampTypes := c.QueryArray("type")
	if len(stampTypes) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "At least one type is required"})
		return
	}

	width, ok := pageSide(c, "width", defaultPreviewWidth)
	if !ok {
		return
	}
	height, ok := pageSide(c, "height", defaultPreviewHeight)
	if !ok {
		return
	}
	documentID := 1
	if raw := c.Query("document_id"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "document_id must be a positive integer"})
			return
		}
		documentID = n
	}

	settings := h.resolver.Current(c.Request.Context())
	renderer := stamp.NewRenderer(settings.Opacity)

	overlays := make([]*stamp.Overlay, 0, len(stampTypes))
	for i, t := range settings.Order(stampTypes) {
		ts, err := settings.Lookup(t)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		o, err := renderer.Render(model.StampRequest{
			DocumentID:    documentID,
			StampType:     ts.Name,
			DisplayText:   ts.Text,
			StampDate:     c.Query("date"),
			SequenceIndex: i,
			Color:         ts.Color,
			Opacity:       settings.Opacity,
		}, width, height)
		var cfgErr *model.ConfigError
		if errors.As(err, &cfgErr) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err != nil {
			logger.Error(c.Request.Context(), "failed to render preview", "stamp_type", t, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to render stamp"})
			return
		}
		overlays = append(overlays, o)
	}

	if c.Query("format") == "json" {
		stamps := make([]gin.H, len(overlays))
		for i, o := range overlays {
			stamps[i] = gin.H{"request": o.Request, "placement": o.Placement}
		}
		c.JSON(http.StatusOK, gin.H{"width": width, "height": height, "stamps": stamps})
		return
	}

	blank, err := h.merger.Blank(width, height)
	if err == nil {
		var out []byte
		if out, err = h.merger.Merge(blank, overlays); err == nil {
			c.Header("Content-Disposition", `inline; filename="stamp-preview.pdf"`)
			c.Data(http.StatusOK, "application/pdf", out)
			return
		}
	}
	logger.Error(c.Request.Context(), "failed to build preview", "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to build preview"})
}

func pageSide(c *gin.Context, name string, def float64) (float64, bool) {
	raw := c.Query(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v <= 0 || v > maxPreviewSide {
		c.JSON(http.StatusBadRequest, gin.H{"error": name + " must be a positive number of points"})
		return 0, false
	}
	return v, true
}
