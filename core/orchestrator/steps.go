package orchestrator

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"finetune-orchestrator/core/models"
)

// cursor output keys
const (
	outputModelDir       = "model_dir"
	outputDatasetPath    = "dataset_path"
	outputTrainingDir    = "output_dir"
	outputQuantizedModel = "quantized_model"
	outputModelArchive   = "model_archive"
)

// runState carries values between the steps of one run
type runState struct {
	runID     string
	params    models.JobParameters
	artifacts *models.TrainingArtifacts
	outputs   map[string]string
}

type step struct {
	index   int
	name    models.JobStep
	enabled bool
	run     func(ctx context.Context, st *runState) error
}

// steps lists the workflow after metadata, in execution order
func (o *Orchestrator) steps() []step {
	return []step{
		{1, models.StepClearWorkspace, true, o.clearWorkspace},
		{2, models.StepDownloadModel, true, o.downloadModel},
		{3, models.StepDownloadDataset, true, o.downloadDataset},
		{4, models.StepFineTune, true, o.fineTune},
		{5, models.StepQuantize, o.opts.Quantize, o.quantize},
		{6, models.StepPackageModel, o.opts.ArtifactDestination != "", o.packageModel},
		{7, models.StepBuildImage, true, o.buildImage},
		{8, models.StepPushImage, true, o.pushImage},
	}
}

func (o *Orchestrator) stepIndex(name models.JobStep) int {
	for _, s := range o.steps() {
		if s.name == name {
			return s.index
		}
	}
	return 0
}

func (o *Orchestrator) metadataStep(ctx context.Context, st *runState) error {
	params, err := o.FetchAndValidateMetadata(ctx)
	if err != nil {
		return err
	}
	st.params = params
	return params.Validate()
}

func (o *Orchestrator) clearWorkspace(_ context.Context, _ *runState) error {
	if err := o.deps.Workspace.Clear(); err != nil {
		return err
	}
	o.logger.Info("Storage cleared.")
	return nil
}

func (o *Orchestrator) downloadModel(ctx context.Context, st *runState) error {
	o.logger.Info(fmt.Sprintf("Downloading the model from: %s", st.params.ModelPath))
	local, err := o.deps.Store.Download(ctx, st.params.ModelPath, o.deps.Workspace.Root())
	if err != nil {
		return err
	}
	st.outputs[outputModelDir] = o.deps.Workspace.Root()
	o.logger.Info("Model downloaded successfully.", "path", local)
	return nil
}

func (o *Orchestrator) downloadDataset(ctx context.Context, st *runState) error {
	o.logger.Info(fmt.Sprintf("Downloading dataset from: %s", st.params.DatasetPath))
	if _, err := o.deps.Store.Download(ctx, st.params.DatasetPath, o.deps.Workspace.Root()); err != nil {
		return err
	}
	st.outputs[outputDatasetPath] = o.deps.Workspace.Path(path.Base(st.params.DatasetPath))
	o.logger.Info("Dataset downloaded successfully.")
	return nil
}

func (o *Orchestrator) fineTune(ctx context.Context, st *runState) error {
	modelDir := o.deps.Workspace.Root()
	datasetPath := st.outputs[outputDatasetPath]
	if datasetPath == "" {
		datasetPath = o.deps.Workspace.Path(path.Base(st.params.DatasetPath))
	}

	artifacts, err := o.deps.Trainer.FineTune(ctx, modelDir, datasetPath)
	if err != nil {
		return err
	}
	st.artifacts = artifacts
	st.outputs[outputTrainingDir] = artifacts.OutputDir
	for _, dir := range artifacts.CheckpointDirs {
		o.recordArtifact(ctx, st, models.ArtifactTypeCheckpoint, dir)
	}
	o.logger.Info("Fine-tuning completed successfully.")
	return nil
}

func (o *Orchestrator) quantize(ctx context.Context, st *runState) error {
	if err := o.deps.Trainer.Quantize(ctx, st.artifacts); err != nil {
		return err
	}
	st.outputs[outputQuantizedModel] = st.artifacts.QuantizedModel
	o.recordArtifact(ctx, st, models.ArtifactTypeQuantizedModel, st.artifacts.QuantizedModel)
	return nil
}

func (o *Orchestrator) packageModel(ctx context.Context, st *runState) error {
	archivePath, err := o.deps.Packager.Compress(st.artifacts.OutputDir, st.params.ModelSaveName)
	if err != nil {
		return err
	}
	if err := o.deps.Store.Upload(ctx, archivePath, o.opts.ArtifactDestination); err != nil {
		return err
	}

	uri := destinationURI(o.opts.ArtifactDestination, archivePath)
	st.outputs[outputModelArchive] = uri
	o.recordArtifact(ctx, st, models.ArtifactTypeModelArchive, uri)
	o.logger.Info("Model archive uploaded", "uri", uri)
	return nil
}

func (o *Orchestrator) buildImage(ctx context.Context, st *runState) error {
	return o.deps.Images.Build(ctx, st.params.DockerImageName)
}

func (o *Orchestrator) pushImage(ctx context.Context, st *runState) error {
	if err := o.deps.Images.Push(ctx, st.params.DockerImageName); err != nil {
		return err
	}
	o.recordArtifact(ctx, st, models.ArtifactTypeImage, st.params.DockerImageName)
	return nil
}

// finalize renames the log to {fineTuningId}.txt in the working directory and
// uploads it. The run id names the log when metadata never provided an id.
func (o *Orchestrator) finalize(ctx context.Context, st *runState) (string, *JobError) {
	name := st.params.FineTuningID
	if name == "" {
		name = st.runID
	}
	logPath := o.deps.Workspace.Path(name + ".txt")

	if err := o.deps.Log.Rename(logPath); err != nil {
		o.logger.Error("Log file not found for renaming.", "path", o.deps.Log.Path())
		return "", newJobError(models.StepFinalize, err)
	}
	o.logger.Info(fmt.Sprintf("Log file renamed to: %s", logPath))

	if err := o.deps.Store.Upload(ctx, logPath, o.opts.LogDestination); err != nil {
		return "", newJobError(models.StepFinalize, err)
	}

	uri := destinationURI(o.opts.LogDestination, logPath)
	o.recordArtifact(ctx, st, models.ArtifactTypeLog, uri)
	return uri, nil
}

// resumePoint loads the cursor of a previous run of the same job and restores
// its outputs. It returns the index of the last step to skip, 0 for none.
func (o *Orchestrator) resumePoint(ctx context.Context, st *runState) int {
	if !o.opts.Resume || o.deps.State == nil {
		return 0
	}

	cursor, err := o.deps.State.LoadCursor(ctx, st.params.FineTuningID)
	if err != nil {
		o.logger.Error("Failed to load job cursor, running all steps", "error", err)
		return 0
	}
	if cursor == nil || cursor.Completed || cursor.LastCompleted == "" {
		return 0
	}

	for k, v := range cursor.Outputs {
		st.outputs[k] = v
	}
	if dir := st.outputs[outputTrainingDir]; dir != "" {
		st.artifacts = &models.TrainingArtifacts{
			OutputDir:      dir,
			QuantizedModel: st.outputs[outputQuantizedModel],
		}
	}

	o.logger.Info("Resuming job", "previous_run_id", cursor.RunID, "last_completed", cursor.LastCompleted)
	return o.stepIndex(cursor.LastCompleted)
}

func (o *Orchestrator) saveCursor(ctx context.Context, st *runState, last models.JobStep, completed bool) {
	if o.deps.State == nil {
		return
	}
	cursor := &models.JobCursor{
		FineTuningID:  st.params.FineTuningID,
		RunID:         st.runID,
		LastCompleted: last,
		Outputs:       st.outputs,
		Completed:     completed,
		UpdatedAt:     o.now(),
	}
	if err := o.deps.State.SaveCursor(ctx, cursor); err != nil {
		o.logger.Error("Failed to save job cursor", "step", last, "error", err)
	}
}

func (o *Orchestrator) recordEvent(ctx context.Context, st *runState, name models.JobStep, typ models.EventType, reason string) {
	if o.deps.State == nil || st.params.FineTuningID == "" {
		return
	}
	event := &models.JobEvent{
		JobID:  st.params.FineTuningID,
		RunID:  st.runID,
		At:     o.now(),
		Step:   name,
		Type:   typ,
		Reason: reason,
	}
	if err := o.deps.State.RecordEvent(ctx, event); err != nil {
		o.logger.Error("Failed to record job event", "step", name, "error", err)
	}
}

func (o *Orchestrator) recordArtifact(ctx context.Context, st *runState, typ models.ArtifactType, uri string) {
	if o.deps.State == nil || st.params.FineTuningID == "" {
		return
	}
	artifact := &models.JobArtifact{
		JobID:     st.params.FineTuningID,
		Type:      typ,
		URI:       uri,
		CreatedAt: o.now(),
		MetaJSON:  map[string]interface{}{"run_id": st.runID},
	}
	if err := o.deps.State.RecordArtifact(ctx, artifact); err != nil {
		o.logger.Error("Failed to record job artifact", "type", typ, "error", err)
	}
}

// destinationURI is the object a file uploaded to dest ends up at
func destinationURI(dest, localPath string) string {
	if strings.HasSuffix(dest, "/") {
		return dest + filepath.Base(localPath)
	}
	return dest
}
