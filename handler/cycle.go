package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/inkstamp/paperless-stamp/pkg/logger"
	"github.com/inkstamp/paperless-stamp/worker"
)

// CycleRunner is the worker surface exposed over HTTP
type CycleRunner interface {
	TriggerNow() bool
	Status() worker.Status
}

type CycleHandler struct {
	worker CycleRunner
}

func NewCycleHandler(w CycleRunner) *CycleHandler {
	return &CycleHandler{worker: w}
}

// Health reports liveness and the last cycle summary
func (h *CycleHandler) Health(c *gin.Context) {
	status := h.worker.Status()
	body := gin.H{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"running":   status.Running,
	}
	if last := status.LastCycle; last != nil {
		body["last_cycle"] = gin.H{
			"cycle_id":    last.CycleID,
			"started_at":  last.StartedAt.Format(time.RFC3339),
			"duration_ms": last.DurationMS,
			"documents":   last.Documents,
			"outcomes":    len(last.Outcomes),
			"error":       last.Error,
		}
	}
	c.JSON(http.StatusOK, body)
}

// Trigger schedules an immediate cycle unless one is running or queued
func (h *CycleHandler) Trigger(c *gin.Context) {
	if !h.worker.TriggerNow() {
		c.JSON(http.StatusConflict, gin.H{"error": "A poll cycle is already running or queued"})
		return
	}
	logger.Info(c.Request.Context(), "manual poll cycle requested")
	c.JSON(http.StatusAccepted, gin.H{"message": "Poll cycle scheduled"})
}

// LastCycle returns the full report of the most recent cycle
func (h *CycleHandler) LastCycle(c *gin.Context) {
	status := h.worker.Status()
	if status.LastCycle == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No cycle has run yet"})
		return
	}
	c.JSON(http.StatusOK, status.LastCycle)
}
