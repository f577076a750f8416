package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"finetune-orchestrator/core/models"
)

// CursorRepository persists job cursors in Postgres
type CursorRepository struct {
	db *DB
}

// NewCursorRepository creates a new cursor repository
func NewCursorRepository(db *DB) *CursorRepository {
	return &CursorRepository{db: db}
}

// GetCursor returns the cursor of a fine-tuning job, or nil when none was saved
func (r *CursorRepository) GetCursor(ctx context.Context, fineTuningID string) (*models.JobCursor, error) {
	query := `
		SELECT fine_tuning_id, run_id, last_completed, outputs_json, completed, updated_at
		FROM job_cursors
		WHERE fine_tuning_id = $1
	`

	var cursor models.JobCursor
	var lastCompleted, outputsJSON string
	err := r.db.QueryRowContext(ctx, query, fineTuningID).Scan(
		&cursor.FineTuningID,
		&cursor.RunID,
		&lastCompleted,
		&outputsJSON,
		&cursor.Completed,
		&cursor.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cursor: %w", err)
	}

	cursor.LastCompleted = models.JobStep(lastCompleted)
	if outputsJSON != "" {
		if err := json.Unmarshal([]byte(outputsJSON), &cursor.Outputs); err != nil {
			return nil, fmt.Errorf("failed to decode cursor outputs: %w", err)
		}
	}
	return &cursor, nil
}

// SaveCursor inserts or replaces the cursor of a fine-tuning job
func (r *CursorRepository) SaveCursor(ctx context.Context, cursor *models.JobCursor) error {
	outputs := cursor.Outputs
	if outputs == nil {
		outputs = map[string]string{}
	}
	outputsJSON, err := json.Marshal(outputs)
	if err != nil {
		return fmt.Errorf("failed to encode cursor outputs: %w", err)
	}

	query := `
		INSERT INTO job_cursors (fine_tuning_id, run_id, last_completed, outputs_json, completed, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (fine_tuning_id) DO UPDATE SET
			run_id = EXCLUDED.run_id,
			last_completed = EXCLUDED.last_completed,
			outputs_json = EXCLUDED.outputs_json,
			completed = EXCLUDED.completed,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		cursor.FineTuningID,
		cursor.RunID,
		string(cursor.LastCompleted),
		string(outputsJSON),
		cursor.Completed,
		cursor.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save cursor: %w", err)
	}
	return nil
}
