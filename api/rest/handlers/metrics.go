package handlers

import (
	"net/http"

	"finetune-orchestrator/core/monitoring"
)

// MetricsHandler exposes job metrics for Prometheus scraping
type MetricsHandler struct {
	exporter *monitoring.MetricsExporter
}

// NewMetricsHandler creates a new metrics handler
func NewMetricsHandler(exporter *monitoring.MetricsExporter) *MetricsHandler {
	return &MetricsHandler{exporter: exporter}
}

// GetMetrics handles GET /metrics
func (h *MetricsHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	w.Write([]byte(h.exporter.GetPrometheusMetrics()))
}
