package monitoring

import (
	"fmt"
	"strings"
	"time"

	"finetune-orchestrator/core/models"
)

// MetricsExporter renders job progress in the Prometheus text format
type MetricsExporter struct {
	tracker *JobTracker
	now     func() time.Time
}

// NewMetricsExporter creates a new metrics exporter
func NewMetricsExporter(tracker *JobTracker) *MetricsExporter {
	return &MetricsExporter{tracker: tracker, now: time.Now}
}

// GetPrometheusMetrics returns metrics in Prometheus format
func (me *MetricsExporter) GetPrometheusMetrics() string {
	s := me.tracker.Snapshot()
	now := me.now()

	var b strings.Builder

	b.WriteString("# HELP finetune_job_status Current job status, 1 for the active status\n")
	b.WriteString("# TYPE finetune_job_status gauge\n")
	for _, status := range []models.JobStatus{
		models.JobStatusPending, models.JobStatusRunning, models.JobStatusCompleted, models.JobStatusFailed,
	} {
		value := 0
		if s.Status == status {
			value = 1
		}
		fmt.Fprintf(&b, "finetune_job_status{status=%q} %d\n", status, value)
	}

	completed := 0
	b.WriteString("# HELP finetune_step_duration_seconds Wall time spent in each step\n")
	b.WriteString("# TYPE finetune_step_duration_seconds gauge\n")
	for _, step := range s.Steps {
		if step.Status == StepStatusCompleted {
			completed++
		}
		fmt.Fprintf(&b, "finetune_step_duration_seconds{step=%q,status=%q} %.3f\n",
			step.Step, step.Status, step.Duration(now).Seconds())
	}

	b.WriteString("# HELP finetune_steps_completed Number of steps completed in this run\n")
	b.WriteString("# TYPE finetune_steps_completed gauge\n")
	fmt.Fprintf(&b, "finetune_steps_completed %d\n", completed)

	return b.String()
}
