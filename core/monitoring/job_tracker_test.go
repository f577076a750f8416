package monitoring

import (
	"errors"
	"testing"
	"time"

	"finetune-orchestrator/core/logging"
	"finetune-orchestrator/core/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock advances one second per reading
type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

func newTestTracker() *JobTracker {
	tracker := NewJobTracker(logging.Discard())
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	tracker.now = clock.now
	return tracker
}

func TestTrackerLifecycle(t *testing.T) {
	tracker := newTestTracker()
	assert.Equal(t, models.JobStatusPending, tracker.Snapshot().Status)

	tracker.Begin("run-1")
	tracker.SetFineTuningID("job1")
	tracker.StepSkipped(models.StepMetadata)
	tracker.StepStarted(models.StepDownloadModel)

	s := tracker.Snapshot()
	assert.Equal(t, models.JobStatusRunning, s.Status)
	assert.Equal(t, models.StepDownloadModel, s.CurrentStep)
	require.Len(t, s.Steps, 2)
	assert.Equal(t, StepStatusSkipped, s.Steps[0].Status)
	assert.Equal(t, StepStatusRunning, s.Steps[1].Status)

	tracker.StepCompleted(models.StepDownloadModel)
	tracker.StepStarted(models.StepBuildImage)
	tracker.StepFailed(models.StepBuildImage, errors.New("daemon down"))
	tracker.Finish(models.JobStatusFailed, errors.New("build_image: daemon down"))

	s = tracker.Snapshot()
	assert.Equal(t, models.JobStatusFailed, s.Status)
	assert.Empty(t, s.CurrentStep)
	assert.Equal(t, "run-1", s.RunID)
	assert.Equal(t, "job1", s.FineTuningID)
	require.Len(t, s.Steps, 3)
	assert.Equal(t, StepStatusCompleted, s.Steps[1].Status)
	assert.Equal(t, time.Second, s.Steps[1].Duration(time.Time{}))
	assert.Equal(t, "daemon down", s.Steps[2].Error)
	require.NotNil(t, s.FinishedAt)
}

func TestSnapshotIsACopy(t *testing.T) {
	tracker := newTestTracker()
	tracker.Begin("run-1")
	tracker.StepStarted(models.StepFineTune)

	s := tracker.Snapshot()
	s.Steps[0].Status = StepStatusFailed

	assert.Equal(t, StepStatusRunning, tracker.Snapshot().Steps[0].Status)
}

func TestMetricsExporter(t *testing.T) {
	tracker := newTestTracker()
	tracker.Begin("run-1")
	tracker.StepStarted(models.StepMetadata)
	tracker.StepCompleted(models.StepMetadata)

	exporter := NewMetricsExporter(tracker)
	out := exporter.GetPrometheusMetrics()

	assert.Contains(t, out, `finetune_job_status{status="running"} 1`)
	assert.Contains(t, out, `finetune_job_status{status="failed"} 0`)
	assert.Contains(t, out, `finetune_step_duration_seconds{step="metadata",status="completed"} 1.000`)
	assert.Contains(t, out, "finetune_steps_completed 1")
}
