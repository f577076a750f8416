package models

import "time"

// EventType classifies a job event
type EventType string

const (
	EventStepStarted   EventType = "step_started"
	EventStepCompleted EventType = "step_completed"
	EventStepFailed    EventType = "step_failed"
	EventStepSkipped   EventType = "step_skipped"
)

// JobEvent represents a step transition of a job run
type JobEvent struct {
	ID       int64                  `yaml:"-"`
	JobID    string                 `yaml:"job_id"`
	RunID    string                 `yaml:"run_id"`
	At       time.Time              `yaml:"at"`
	Step     JobStep                `yaml:"step"`
	Type     EventType              `yaml:"type"`
	Reason   string                 `yaml:"reason,omitempty"`
	MetaJSON map[string]interface{} `yaml:"meta,omitempty"`
}

// ArtifactType represents the type of job artifact
type ArtifactType string

const (
	ArtifactTypeCheckpoint     ArtifactType = "checkpoint"
	ArtifactTypeModelArchive   ArtifactType = "model_archive"
	ArtifactTypeQuantizedModel ArtifactType = "quantized_model"
	ArtifactTypeImage          ArtifactType = "image"
	ArtifactTypeLog            ArtifactType = "log"
)

// JobArtifact represents something a job published (archive URI, image name, log URI)
type JobArtifact struct {
	ID        int64                  `yaml:"-"`
	JobID     string                 `yaml:"job_id"`
	Type      ArtifactType           `yaml:"type"`
	URI       string                 `yaml:"uri"`
	CreatedAt time.Time              `yaml:"created_at"`
	MetaJSON  map[string]interface{} `yaml:"meta,omitempty"`
}
