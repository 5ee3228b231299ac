package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/inkstamp/paperless-stamp/pkg/logger"
)

type MetricsHandler struct {
	reader sdkmetric.Reader
}

func NewMetricsHandler(reader sdkmetric.Reader) *MetricsHandler {
	return &MetricsHandler{reader: reader}
}

// Snapshot collects the current metric values. Counters report their
// per-attribute values, histograms their count and sum.
func (h *MetricsHandler) Snapshot(c *gin.Context) {
	var rm metricdata.ResourceMetrics
	if err := h.reader.Collect(c.Request.Context(), &rm); err != nil {
		logger.Error(c.Request.Context(), "failed to collect metrics", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to collect metrics"})
		return
	}

	out := gin.H{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				points := make([]gin.H, 0, len(data.DataPoints))
				for _, dp := range data.DataPoints {
					points = append(points, gin.H{"attributes": attributes(dp.Attributes.ToSlice()), "value": dp.Value})
				}
				out[m.Name] = points
			case metricdata.Histogram[float64]:
				points := make([]gin.H, 0, len(data.DataPoints))
				for _, dp := range data.DataPoints {
					points = append(points, gin.H{"attributes": attributes(dp.Attributes.ToSlice()), "count": dp.Count, "sum": dp.Sum})
				}
				out[m.Name] = points
			}
		}
	}
	c.JSON(http.StatusOK, out)
}

func attributes(kvs []attribute.KeyValue) map[string]string {
	out := make(map[string]string, len(kvs))
	for _, kv := range kvs {
		out[string(kv.Key)] = kv.Value.Emit()
	}
	return out
}
