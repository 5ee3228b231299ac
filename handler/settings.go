package handler

import (
	"net/http"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/inkstamp/paperless-stamp/config"
	"github.com/inkstamp/paperless-stamp/pkg/logger"
	"github.com/inkstamp/paperless-stamp/store"
)

type SettingsHandler struct {
	settings store.Settings
	resolver *config.Resolver
}

func NewSettingsHandler(settings store.Settings, resolver *config.Resolver) *SettingsHandler {
	return &SettingsHandler{settings: settings, resolver: resolver}
}

// Get returns the stored runtime settings and the effective configuration
func (h *SettingsHandler) Get(c *gin.Context) {
	ctx := c.Request.Context()
	stored, err := h.settings.All(ctx)
	if err != nil {
		logger.Error(ctx, "failed to read settings", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read settings"})
		return
	}
	if stored == nil {
		stored = map[string]string{}
	}

	c.JSON(http.StatusOK, gin.H{
		"settings":  stored,
		"effective": effectiveView(h.resolver.Current(ctx)),
	})
}

// Update validates and stores a key/value map. An empty value removes the
// key so the configured default applies again. Nothing is written unless
// every key is valid, and writes and removals land in one store update.
// Changes apply from the next cycle on.
func (h *SettingsHandler) Update(c *gin.Context) {
	var body map[string]string
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Body must be a JSON object of string values"})
		return
	}
	if len(body) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No settings provided"})
		return
	}

	set := make(map[string]string, len(body))
	var remove, problems []string
	for key, value := range body {
		value = strings.TrimSpace(value)
		if value == "" {
			remove = append(remove, key)
			continue
		}
		if err := config.ValidateSetting(key, value); err != nil {
			problems = append(problems, err.Error())
			continue
		}
		set[key] = value
	}
	if len(problems) > 0 {
		sort.Strings(problems)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid settings", "details": problems})
		return
	}

	ctx := c.Request.Context()
	if err := h.settings.Apply(ctx, set, remove); err != nil {
		logger.Error(ctx, "failed to store settings", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store settings"})
		return
	}
	logger.Info(ctx, "runtime settings updated", "set", len(set), "removed", len(remove))

	h.Get(c)
}

func effectiveView(s config.StampSettings) gin.H {
	types := make(gin.H, len(s.Types))
	for name, tc := range s.Types {
		color := tc.Color
		if color == "" {
			color = s.DefaultColor
		}
		types[name] = gin.H{
			"text":          tc.Text,
			"color":         color,
			"date_field":    tc.DateField,
			"date_fallback": tc.DateFallback,
			"priority":      tc.Priority,
		}
	}
	return gin.H{
		"poll_interval": int(s.PollInterval.Seconds()),
		"default_color": s.DefaultColor,
		"opacity":       s.Opacity,
		"types":         types,
	}
}
