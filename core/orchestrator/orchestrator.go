package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"finetune-orchestrator/core/models"
	"finetune-orchestrator/core/monitoring"
	"finetune-orchestrator/core/repository"
	"finetune-orchestrator/core/workspace"

	"github.com/google/uuid"
)

// MetadataReader reads job parameters from the instance the job runs on
type MetadataReader interface {
	Identity(ctx context.Context) (models.InstanceIdentity, error)
	ReadAll(ctx context.Context) (map[string]string, error)
}

// ObjectStore moves files between the VM and object storage
type ObjectStore interface {
	Upload(ctx context.Context, localPath, destinationURI string) error
	Download(ctx context.Context, sourceURI, localPath string) (string, error)
}

// Trainer fine-tunes and optionally quantizes a model
type Trainer interface {
	FineTune(ctx context.Context, modelDir, datasetPath string) (*models.TrainingArtifacts, error)
	Quantize(ctx context.Context, artifacts *models.TrainingArtifacts) error
}

// Packager compresses a directory into an archive
type Packager interface {
	Compress(sourceDir, nameHint string) (string, error)
}

// ImageBuilder builds and pushes the serving image
type ImageBuilder interface {
	Build(ctx context.Context, imageName string) error
	Push(ctx context.Context, imageName string) error
}

// JobLog is the lifecycle of the job log file
type JobLog interface {
	Path() string
	Rename(newPath string) error
}

// Dependencies are the collaborators of the orchestrator
type Dependencies struct {
	Metadata  MetadataReader
	Store     ObjectStore
	Trainer   Trainer
	Packager  Packager
	Images    ImageBuilder
	Workspace *workspace.Workspace
	Log       JobLog
	State     repository.StateStore
	Tracker   *monitoring.JobTracker
	Logger    *slog.Logger
}

// Options select optional steps and destinations
type Options struct {
	// LogDestination receives the renamed job log
	LogDestination string
	// ArtifactDestination receives the zipped fine-tuned model; packaging is skipped when empty
	ArtifactDestination string
	Quantize            bool
	Resume              bool
}

// Orchestrator runs one fine-tuning job end to end
type Orchestrator struct {
	deps   Dependencies
	opts   Options
	logger *slog.Logger
	now    func() time.Time
	newID  func() string
}

// New creates an orchestrator
func New(deps Dependencies, opts Options) *Orchestrator {
	if deps.Tracker == nil {
		deps.Tracker = monitoring.NewJobTracker(deps.Logger)
	}
	return &Orchestrator{
		deps:   deps,
		opts:   opts,
		logger: deps.Logger,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// FetchAndValidateMetadata reads the job parameters from instance metadata.
// Missing parameters are logged but the partial parameters are still returned.
func (o *Orchestrator) FetchAndValidateMetadata(ctx context.Context) (models.JobParameters, error) {
	id, err := o.deps.Metadata.Identity(ctx)
	if err != nil {
		return models.JobParameters{}, err
	}
	o.logger.Info("Fetching metadata from instance...", "project", id.Project, "zone", id.Zone, "instance", id.Instance)

	items, err := o.deps.Metadata.ReadAll(ctx)
	if err != nil {
		return models.JobParameters{}, err
	}

	params := models.JobParametersFromMetadata(items)
	if missing := params.MissingFields(); len(missing) > 0 {
		o.logger.Error("One or more required metadata variables are empty.", "missing", missing)
	}

	o.logger.Info("Metadata fetched successfully.")
	return params, nil
}

// Run executes the workflow. The log is always renamed and uploaded, also
// after a failed step. A failure is returned as *JobError.
func (o *Orchestrator) Run(ctx context.Context) (*models.JobOutcome, error) {
	st := &runState{
		runID:   o.newID(),
		outputs: make(map[string]string),
	}
	outcome := &models.JobOutcome{
		RunID:     st.runID,
		Status:    models.JobStatusRunning,
		StartedAt: o.now(),
	}

	o.deps.Tracker.Begin(st.runID)
	o.logger.Info("Starting fine-tuning startup script", "run_id", st.runID)

	jobErr := o.execute(ctx, st, outcome)
	if jobErr != nil {
		o.logFailure(jobErr)
	}

	logURI, finErr := o.finalize(ctx, st)
	if finErr != nil {
		o.logFailure(finErr)
	}

	outcome.FineTuningID = st.params.FineTuningID
	outcome.Artifacts = st.artifacts
	outcome.ModelArchive = st.outputs[outputModelArchive]
	outcome.LogURI = logURI
	outcome.FinishedAt = o.now()

	err := joinErrors(jobErr, finErr)
	if err != nil {
		outcome.Status = models.JobStatusFailed
	} else {
		outcome.Status = models.JobStatusCompleted
	}
	o.deps.Tracker.Finish(outcome.Status, err)
	return outcome, err
}

func (o *Orchestrator) execute(ctx context.Context, st *runState, outcome *models.JobOutcome) *JobError {
	o.deps.Tracker.StepStarted(models.StepMetadata)
	if err := o.metadataStep(ctx, st); err != nil {
		o.deps.Tracker.StepFailed(models.StepMetadata, err)
		return newJobError(models.StepMetadata, err)
	}
	o.deps.Tracker.SetFineTuningID(st.params.FineTuningID)
	o.deps.Tracker.StepCompleted(models.StepMetadata)
	o.recordEvent(ctx, st, models.StepMetadata, models.EventStepCompleted, "")
	outcome.CompletedSteps = append(outcome.CompletedSteps, models.StepMetadata)

	resumeAfter := o.resumePoint(ctx, st)

	for _, s := range o.steps() {
		if !s.enabled {
			continue
		}
		if s.index <= resumeAfter {
			o.logger.Info("Skipping step completed by a previous run", "step", s.name)
			o.deps.Tracker.StepSkipped(s.name)
			o.recordEvent(ctx, st, s.name, models.EventStepSkipped, "resumed")
			outcome.SkippedSteps = append(outcome.SkippedSteps, s.name)
			continue
		}

		o.deps.Tracker.StepStarted(s.name)
		o.recordEvent(ctx, st, s.name, models.EventStepStarted, "")

		if err := s.run(ctx, st); err != nil {
			o.deps.Tracker.StepFailed(s.name, err)
			o.recordEvent(ctx, st, s.name, models.EventStepFailed, err.Error())
			return newJobError(s.name, err)
		}

		o.deps.Tracker.StepCompleted(s.name)
		o.recordEvent(ctx, st, s.name, models.EventStepCompleted, "")
		outcome.CompletedSteps = append(outcome.CompletedSteps, s.name)
		o.saveCursor(ctx, st, s.name, false)
	}

	o.saveCursor(ctx, st, models.StepPushImage, true)
	return nil
}

// logFailure logs a failed step once, with its stack. Missing dependencies get
// their own message.
func (o *Orchestrator) logFailure(jobErr *JobError) {
	if errors.Is(jobErr, ErrMissingDependency) {
		o.logger.Error("Missing dependency: "+jobErr.Err.Error(), "step", jobErr.Step, "stack", jobErr.Stack())
		return
	}
	o.logger.Error("Error encountered during fine-tuning setup", "step", jobErr.Step, "error", jobErr.Err.Error(), "stack", jobErr.Stack())
}

func joinErrors(jobErr, finErr *JobError) error {
	switch {
	case jobErr == nil && finErr == nil:
		return nil
	case finErr == nil:
		return jobErr
	case jobErr == nil:
		return finErr
	}
	return errors.Join(jobErr, finErr)
}
