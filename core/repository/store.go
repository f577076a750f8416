package repository

import (
	"context"

	"finetune-orchestrator/core/models"
)

// StateStore persists job progress between process restarts
type StateStore interface {
	LoadCursor(ctx context.Context, fineTuningID string) (*models.JobCursor, error)
	SaveCursor(ctx context.Context, cursor *models.JobCursor) error
	RecordEvent(ctx context.Context, event *models.JobEvent) error
	RecordArtifact(ctx context.Context, artifact *models.JobArtifact) error
	ListEvents(ctx context.Context, jobID string, limit int) ([]models.JobEvent, error)
	ListArtifacts(ctx context.Context, jobID string) ([]models.JobArtifact, error)
	Close() error
}

// PostgresStore keeps job state in Postgres
type PostgresStore struct {
	db        *DB
	cursors   *CursorRepository
	events    *EventRepository
	artifacts *ArtifactRepository
}

// NewPostgresStore creates a store on db; the schema must already be migrated
func NewPostgresStore(db *DB) *PostgresStore {
	return &PostgresStore{
		db:        db,
		cursors:   NewCursorRepository(db),
		events:    NewEventRepository(db),
		artifacts: NewArtifactRepository(db),
	}
}

func (s *PostgresStore) LoadCursor(ctx context.Context, fineTuningID string) (*models.JobCursor, error) {
	return s.cursors.GetCursor(ctx, fineTuningID)
}

func (s *PostgresStore) SaveCursor(ctx context.Context, cursor *models.JobCursor) error {
	return s.cursors.SaveCursor(ctx, cursor)
}

func (s *PostgresStore) RecordEvent(ctx context.Context, event *models.JobEvent) error {
	return s.events.CreateEvent(ctx, event)
}

func (s *PostgresStore) RecordArtifact(ctx context.Context, artifact *models.JobArtifact) error {
	return s.artifacts.CreateArtifact(ctx, artifact)
}

func (s *PostgresStore) ListEvents(ctx context.Context, jobID string, limit int) ([]models.JobEvent, error) {
	return s.events.GetJobEvents(ctx, jobID, limit)
}

func (s *PostgresStore) ListArtifacts(ctx context.Context, jobID string) ([]models.JobArtifact, error) {
	return s.artifacts.GetJobArtifacts(ctx, jobID, nil)
}

// Close closes the connection pool
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
