package routes

import (
	"net/http"

	"finetune-orchestrator/api/rest/handlers"
	"finetune-orchestrator/core/monitoring"

	"github.com/gorilla/mux"
)

// SetupRoutes configures all API routes
func SetupRoutes(r *mux.Router, tracker *monitoring.JobTracker, history handlers.JobHistory) {
	jobHandler := handlers.NewJobHandler(tracker, history)
	metricsHandler := handlers.NewMetricsHandler(monitoring.NewMetricsExporter(tracker))

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")
	r.HandleFunc("/metrics", metricsHandler.GetMetrics).Methods("GET")

	api := r.PathPrefix("/v1").Subrouter()

	// Job endpoints
	api.HandleFunc("/job", jobHandler.GetJob).Methods("GET")
	api.HandleFunc("/job/events", jobHandler.GetJobEvents).Methods("GET")
	api.HandleFunc("/job/artifacts", jobHandler.GetJobArtifacts).Methods("GET")
}
