package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidParameters is returned when a required job parameter is empty
var ErrInvalidParameters = errors.New("invalid job parameters")

// Instance metadata keys holding the job parameters
const (
	MetadataKeyModelPath     = "model_path"
	MetadataKeyDatasetPath   = "dataset_path"
	MetadataKeyModelSaveName = "model_save_name"
	MetadataKeyDockerImage   = "docker_image"
	MetadataKeyFineTuningID  = "fine_tuning_id"
)

// JobParameters are the inputs of one fine-tuning job, read from instance metadata
type JobParameters struct {
	ModelPath       string // gs:// or s3:// URI of the base model (usually a .zip)
	DatasetPath     string // URI of the JSONL dataset
	ModelSaveName   string
	FineTuningID    string
	DockerImageName string // registry/repository:tag, used for build and push
}

// JobParametersFromMetadata maps instance metadata items onto job parameters
func JobParametersFromMetadata(items map[string]string) JobParameters {
	return JobParameters{
		ModelPath:       items[MetadataKeyModelPath],
		DatasetPath:     items[MetadataKeyDatasetPath],
		ModelSaveName:   items[MetadataKeyModelSaveName],
		FineTuningID:    items[MetadataKeyFineTuningID],
		DockerImageName: items[MetadataKeyDockerImage],
	}
}

// MissingFields returns the metadata keys whose values are empty
func (p JobParameters) MissingFields() []string {
	fields := []struct {
		key   string
		value string
	}{
		{MetadataKeyModelPath, p.ModelPath},
		{MetadataKeyDatasetPath, p.DatasetPath},
		{MetadataKeyModelSaveName, p.ModelSaveName},
		{MetadataKeyFineTuningID, p.FineTuningID},
		{MetadataKeyDockerImage, p.DockerImageName},
	}

	var missing []string
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.key)
		}
	}
	return missing
}

// Validate checks that every required parameter is present
func (p JobParameters) Validate() error {
	if missing := p.MissingFields(); len(missing) > 0 {
		return fmt.Errorf("%w: empty %s", ErrInvalidParameters, strings.Join(missing, ", "))
	}
	return nil
}

// JobStep names one stage of the fine-tuning workflow
type JobStep string

const (
	StepMetadata        JobStep = "metadata"
	StepClearWorkspace  JobStep = "clear_workspace"
	StepDownloadModel   JobStep = "download_model"
	StepDownloadDataset JobStep = "download_dataset"
	StepFineTune        JobStep = "fine_tune"
	StepQuantize        JobStep = "quantize"
	StepPackageModel    JobStep = "package_model"
	StepBuildImage      JobStep = "build_image"
	StepPushImage       JobStep = "push_image"
	StepFinalize        JobStep = "finalize"
)

// JobStatus represents the current status of a job
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// JobOutcome summarises one execution of the workflow
type JobOutcome struct {
	RunID          string
	FineTuningID   string
	Status         JobStatus
	CompletedSteps []JobStep
	SkippedSteps   []JobStep
	Artifacts      *TrainingArtifacts
	ModelArchive   string // object store URI, empty unless packaging ran
	LogURI         string
	StartedAt      time.Time
	FinishedAt     time.Time
}

// TrainingArtifacts are the files written by one fine-tuning run
type TrainingArtifacts struct {
	OutputDir      string
	ModelFiles     []string
	TokenizerFiles []string
	CheckpointDirs []string
	QuantizedModel string
}

// JobCursor records how far a job got, so a restarted job can resume
type JobCursor struct {
	FineTuningID  string            `yaml:"fine_tuning_id"`
	RunID         string            `yaml:"run_id"`
	LastCompleted JobStep           `yaml:"last_completed,omitempty"`
	Outputs       map[string]string `yaml:"outputs,omitempty"`
	Completed     bool              `yaml:"completed"`
	UpdatedAt     time.Time         `yaml:"updated_at"`
}
