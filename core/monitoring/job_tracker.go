package monitoring

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"finetune-orchestrator/core/models"
)

// StepStatus is the state of a single workflow step
type StepStatus string

const (
	StepStatusRunning   StepStatus = "running"
	StepStatusCompleted StepStatus = "completed"
	StepStatusFailed    StepStatus = "failed"
	StepStatusSkipped   StepStatus = "skipped"
)

// StepState records the progress of one step
type StepState struct {
	Step       models.JobStep `json:"step"`
	Status     StepStatus     `json:"status"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// Duration returns how long the step ran, up to now for a running step
func (s StepState) Duration(now time.Time) time.Duration {
	if s.FinishedAt != nil {
		return s.FinishedAt.Sub(s.StartedAt)
	}
	return now.Sub(s.StartedAt)
}

// Snapshot is a point-in-time copy of the job progress
type Snapshot struct {
	FineTuningID string           `json:"fine_tuning_id,omitempty"`
	RunID        string           `json:"run_id,omitempty"`
	Status       models.JobStatus `json:"status"`
	CurrentStep  models.JobStep   `json:"current_step,omitempty"`
	Steps        []StepState      `json:"steps"`
	StartedAt    *time.Time       `json:"started_at,omitempty"`
	FinishedAt   *time.Time       `json:"finished_at,omitempty"`
	Error        string           `json:"error,omitempty"`
}

// JobTracker keeps the in-memory progress of the running job
type JobTracker struct {
	mu       sync.RWMutex
	snapshot Snapshot
	index    map[models.JobStep]int
	now      func() time.Time
	logger   *slog.Logger
}

// NewJobTracker creates a tracker for a pending job
func NewJobTracker(logger *slog.Logger) *JobTracker {
	return &JobTracker{
		snapshot: Snapshot{Status: models.JobStatusPending},
		index:    make(map[models.JobStep]int),
		now:      time.Now,
		logger:   logger,
	}
}

// Begin marks the job as running and resets step history
func (t *JobTracker) Begin(runID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	t.snapshot = Snapshot{
		RunID:     runID,
		Status:    models.JobStatusRunning,
		StartedAt: &now,
	}
	t.index = make(map[models.JobStep]int)
}

// SetFineTuningID attaches the job id once metadata is known
func (t *JobTracker) SetFineTuningID(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.snapshot.FineTuningID = id
}

// StepStarted records the start of step
func (t *JobTracker) StepStarted(step models.JobStep) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.snapshot.CurrentStep = step
	t.upsert(StepState{Step: step, Status: StepStatusRunning, StartedAt: t.now()})
}

// StepCompleted records the successful end of step
func (t *JobTracker) StepCompleted(step models.JobStep) {
	t.finishStep(step, StepStatusCompleted, nil)
}

// StepFailed records the failure of step
func (t *JobTracker) StepFailed(step models.JobStep, err error) {
	t.finishStep(step, StepStatusFailed, err)
}

// StepSkipped records a step restored from a previous run
func (t *JobTracker) StepSkipped(step models.JobStep) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	t.upsert(StepState{Step: step, Status: StepStatusSkipped, StartedAt: now, FinishedAt: &now})
}

// Finish marks the whole job as completed or failed
func (t *JobTracker) Finish(status models.JobStatus, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	t.snapshot.Status = status
	t.snapshot.CurrentStep = ""
	t.snapshot.FinishedAt = &now
	if err != nil {
		t.snapshot.Error = err.Error()
	}
}

// Snapshot returns a copy of the current progress
func (t *JobTracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s := t.snapshot
	s.Steps = append([]StepState(nil), t.snapshot.Steps...)
	return s
}

// Start logs a heartbeat with the current step until ctx is done
func (t *JobTracker) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.heartbeat()
		}
	}
}

func (t *JobTracker) heartbeat() {
	s := t.Snapshot()
	if s.Status != models.JobStatusRunning || s.CurrentStep == "" {
		return
	}
	for _, step := range s.Steps {
		if step.Step == s.CurrentStep && step.Status == StepStatusRunning {
			t.logger.Info("Job still running", "step", step.Step, "elapsed", step.Duration(t.now()).Round(time.Second))
			return
		}
	}
}

func (t *JobTracker) finishStep(step models.JobStep, status StepStatus, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	state := StepState{Step: step, Status: status, StartedAt: now, FinishedAt: &now}
	if i, ok := t.index[step]; ok {
		state.StartedAt = t.snapshot.Steps[i].StartedAt
	}
	if err != nil {
		state.Error = err.Error()
	}
	t.upsert(state)
}

// upsert replaces the state of a step or appends it; callers hold mu
func (t *JobTracker) upsert(state StepState) {
	if i, ok := t.index[state.Step]; ok {
		t.snapshot.Steps[i] = state
		return
	}
	t.index[state.Step] = len(t.snapshot.Steps)
	t.snapshot.Steps = append(t.snapshot.Steps, state)
}
