package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"finetune-orchestrator/core/models"

	"gopkg.in/yaml.v3"
)

// ErrInvalidJobID is returned for ids that cannot name a state directory
var ErrInvalidJobID = errors.New("invalid job id")

const (
	cursorFile    = "cursor.yaml"
	eventsFile    = "events.yaml"
	artifactsFile = "artifacts.yaml"
)

// FileStore keeps job state as YAML files under one directory per job
type FileStore struct {
	root string
	mu   sync.Mutex
}

// NewFileStore creates a store rooted at dir
func NewFileStore(dir string) *FileStore {
	return &FileStore{root: dir}
}

func (s *FileStore) LoadCursor(_ context.Context, fineTuningID string) (*models.JobCursor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var cursor models.JobCursor
	found, err := s.read(fineTuningID, cursorFile, &cursor)
	if err != nil || !found {
		return nil, err
	}
	return &cursor, nil
}

func (s *FileStore) SaveCursor(_ context.Context, cursor *models.JobCursor) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.write(cursor.FineTuningID, cursorFile, cursor)
}

func (s *FileStore) RecordEvent(_ context.Context, event *models.JobEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var events []models.JobEvent
	if _, err := s.read(event.JobID, eventsFile, &events); err != nil {
		return err
	}
	event.ID = int64(len(events) + 1)
	events = append(events, *event)
	return s.write(event.JobID, eventsFile, events)
}

func (s *FileStore) RecordArtifact(_ context.Context, artifact *models.JobArtifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var artifacts []models.JobArtifact
	if _, err := s.read(artifact.JobID, artifactsFile, &artifacts); err != nil {
		return err
	}
	artifact.ID = int64(len(artifacts) + 1)
	artifacts = append(artifacts, *artifact)
	return s.write(artifact.JobID, artifactsFile, artifacts)
}

func (s *FileStore) ListEvents(_ context.Context, jobID string, limit int) ([]models.JobEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var events []models.JobEvent
	if _, err := s.read(jobID, eventsFile, &events); err != nil {
		return nil, err
	}
	for i := range events {
		events[i].ID = int64(i + 1)
	}
	if limit > 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}
	return events, nil
}

func (s *FileStore) ListArtifacts(_ context.Context, jobID string) ([]models.JobArtifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var artifacts []models.JobArtifact
	if _, err := s.read(jobID, artifactsFile, &artifacts); err != nil {
		return nil, err
	}
	for i := range artifacts {
		artifacts[i].ID = int64(i + 1)
	}
	return artifacts, nil
}

// Close is a no-op
func (s *FileStore) Close() error {
	return nil
}

func (s *FileStore) path(jobID, name string) (string, error) {
	if jobID == "" || !filepath.IsLocal(jobID) || filepath.Base(jobID) != jobID {
		return "", fmt.Errorf("%w: %q", ErrInvalidJobID, jobID)
	}
	return filepath.Join(s.root, jobID, name), nil
}

func (s *FileStore) read(jobID, name string, v interface{}) (bool, error) {
	path, err := s.path(jobID, name)
	if err != nil {
		return false, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return true, nil
}

// write replaces the file atomically through a temporary file in the same directory
func (s *FileStore) write(jobID, name string, v interface{}) error {
	path, err := s.path(jobID, name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", name, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), name+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
