package routes

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"finetune-orchestrator/core/logging"
	"finetune-orchestrator/core/models"
	"finetune-orchestrator/core/monitoring"
	"finetune-orchestrator/core/repository"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*httptest.Server, *monitoring.JobTracker, *repository.FileStore) {
	t.Helper()
	tracker := monitoring.NewJobTracker(logging.Discard())
	store := repository.NewFileStore(t.TempDir())

	r := mux.NewRouter()
	SetupRoutes(r, tracker, store)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, tracker, store
}

func getJSON(t *testing.T, url string, v interface{}) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if v != nil && resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp.StatusCode
}

func TestHealth(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/health", "text/plain", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestGetJobSnapshot(t *testing.T) {
	srv, tracker, _ := newTestServer(t)
	tracker.Begin("run-1")
	tracker.SetFineTuningID("job1")
	tracker.StepStarted(models.StepFineTune)

	var snapshot monitoring.Snapshot
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/v1/job", &snapshot))

	assert.Equal(t, "job1", snapshot.FineTuningID)
	assert.Equal(t, models.JobStatusRunning, snapshot.Status)
	assert.Equal(t, models.StepFineTune, snapshot.CurrentStep)
}

func TestEventsBeforeMetadataIsNotFound(t *testing.T) {
	srv, tracker, _ := newTestServer(t)
	tracker.Begin("run-1")

	assert.Equal(t, http.StatusNotFound, getJSON(t, srv.URL+"/v1/job/events", nil))
}

func TestEventsAndArtifacts(t *testing.T) {
	srv, tracker, store := newTestServer(t)
	tracker.Begin("run-1")
	tracker.SetFineTuningID("job1")

	ctx := context.Background()
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.RecordEvent(ctx, &models.JobEvent{JobID: "job1", RunID: "run-1", At: at, Step: models.StepMetadata, Type: models.EventStepCompleted}))
	require.NoError(t, store.RecordEvent(ctx, &models.JobEvent{JobID: "job1", RunID: "run-1", At: at, Step: models.StepBuildImage, Type: models.EventStepFailed, Reason: "daemon down"}))
	require.NoError(t, store.RecordArtifact(ctx, &models.JobArtifact{JobID: "job1", Type: models.ArtifactTypeLog, URI: "gs://b/logs/job1.txt", CreatedAt: at}))
	require.NoError(t, store.RecordArtifact(ctx, &models.JobArtifact{JobID: "job1", Type: models.ArtifactTypeImage, URI: "gcr.io/p/m", CreatedAt: at}))

	var events struct {
		Items []map[string]interface{} `json:"items"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/v1/job/events", &events))
	require.Len(t, events.Items, 2)
	assert.Equal(t, "build_image", events.Items[1]["step"])
	assert.Equal(t, "daemon down", events.Items[1]["reason"])

	assert.Equal(t, http.StatusBadRequest, getJSON(t, srv.URL+"/v1/job/events?limit=abc", nil))

	var artifacts struct {
		Items []map[string]interface{} `json:"items"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/v1/job/artifacts?type=log", &artifacts))
	require.Len(t, artifacts.Items, 1)
	assert.Equal(t, "gs://b/logs/job1.txt", artifacts.Items[0]["uri"])
}

func TestMetrics(t *testing.T) {
	srv, tracker, _ := newTestServer(t)
	tracker.Begin("run-1")

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/plain")
}
