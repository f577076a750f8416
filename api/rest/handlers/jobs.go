package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"finetune-orchestrator/core/models"
	"finetune-orchestrator/core/monitoring"
)

// JobHistory is the read side of the job state store
type JobHistory interface {
	ListEvents(ctx context.Context, jobID string, limit int) ([]models.JobEvent, error)
	ListArtifacts(ctx context.Context, jobID string) ([]models.JobArtifact, error)
}

// JobHandler serves the progress of the running fine-tuning job
type JobHandler struct {
	tracker *monitoring.JobTracker
	history JobHistory
}

// NewJobHandler creates a new job handler
func NewJobHandler(tracker *monitoring.JobTracker, history JobHistory) *JobHandler {
	return &JobHandler{
		tracker: tracker,
		history: history,
	}
}

// GetJob handles GET /v1/job
func (h *JobHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.tracker.Snapshot())
}

// GetJobEvents handles GET /v1/job/events
func (h *JobHandler) GetJobEvents(w http.ResponseWriter, r *http.Request) {
	jobID, ok := h.currentJobID(w)
	if !ok {
		return
	}

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	events, err := h.history.ListEvents(r.Context(), jobID, limit)
	if err != nil {
		http.Error(w, "Failed to fetch events: "+err.Error(), http.StatusInternalServerError)
		return
	}

	items := make([]map[string]interface{}, len(events))
	for i, event := range events {
		item := map[string]interface{}{
			"at":     event.At,
			"run_id": event.RunID,
			"step":   event.Step,
			"type":   event.Type,
		}
		if event.Reason != "" {
			item["reason"] = event.Reason
		}
		items[i] = item
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items": items,
	})
}

// GetJobArtifacts handles GET /v1/job/artifacts
func (h *JobHandler) GetJobArtifacts(w http.ResponseWriter, r *http.Request) {
	jobID, ok := h.currentJobID(w)
	if !ok {
		return
	}

	artifacts, err := h.history.ListArtifacts(r.Context(), jobID)
	if err != nil {
		http.Error(w, "Failed to fetch artifacts: "+err.Error(), http.StatusInternalServerError)
		return
	}

	typeFilter := models.ArtifactType(r.URL.Query().Get("type"))
	items := make([]map[string]interface{}, 0, len(artifacts))
	for _, artifact := range artifacts {
		if typeFilter != "" && artifact.Type != typeFilter {
			continue
		}
		items = append(items, map[string]interface{}{
			"type":       artifact.Type,
			"uri":        artifact.URI,
			"created_at": artifact.CreatedAt,
		})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items": items,
	})
}

// currentJobID returns the fine-tuning id of the running job, answering 404
// while metadata has not been read yet
func (h *JobHandler) currentJobID(w http.ResponseWriter) (string, bool) {
	id := h.tracker.Snapshot().FineTuningID
	if id == "" {
		http.Error(w, "Job not found", http.StatusNotFound)
		return "", false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
