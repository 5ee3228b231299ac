package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/inkstamp/paperless-stamp/config"
	"github.com/inkstamp/paperless-stamp/middleware"
	"github.com/inkstamp/paperless-stamp/store"
)

// Deps are the collaborators of the admin API. Metrics and Archive are
// optional.
type Deps struct {
	History   store.History
	Settings  store.Settings
	Resolver  *config.Resolver
	Worker    CycleRunner
	Metrics   sdkmetric.Reader
	Archive   Presigner
	RateLimit int // requests per minute per client
}

// NewRouter builds the gin engine with middleware and all routes
func NewRouter(d Deps) *gin.Engine {
	router := gin.New()

	router.Use(middleware.RequestID())
	router.Use(middleware.Recovery())
	router.Use(middleware.RequestLogger("/health"))
	if d.RateLimit > 0 {
		router.Use(middleware.RateLimit(d.RateLimit, time.Minute))
	}

	cycle := NewCycleHandler(d.Worker)
	history := NewHistoryHandler(d.History)
	settings := NewSettingsHandler(d.Settings, d.Resolver)
	preview := NewPreviewHandler(d.Resolver)

	router.GET("/health", cycle.Health)

	api := router.Group("/api")
	api.Use(middleware.NoCache())
	{
		api.GET("/history", history.List)
		api.GET("/history/:document_id", history.ForDocument)
		api.GET("/settings", settings.Get)
		api.PUT("/settings", settings.Update)
		api.GET("/preview", preview.Preview)
		api.GET("/cycle", cycle.LastCycle)
		api.POST("/cycle", cycle.Trigger)
		if d.Archive != nil {
			api.GET("/archive/*object", NewArchiveHandler(d.Archive).Download)
		}
		if d.Metrics != nil {
			api.GET("/metrics", NewMetricsHandler(d.Metrics).Snapshot)
		}
	}

	return router
}
