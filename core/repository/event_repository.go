package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"finetune-orchestrator/core/models"
)

// EventRepository handles database operations for job events
type EventRepository struct {
	db *DB
}

// NewEventRepository creates a new event repository
func NewEventRepository(db *DB) *EventRepository {
	return &EventRepository{db: db}
}

// CreateEvent inserts a step transition and sets its id
func (r *EventRepository) CreateEvent(ctx context.Context, event *models.JobEvent) error {
	metaJSON, err := encodeMeta(event.MetaJSON)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO job_events (job_id, run_id, at, step, type, reason, meta_json)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`

	err = r.db.QueryRowContext(ctx, query,
		event.JobID,
		event.RunID,
		event.At,
		string(event.Step),
		string(event.Type),
		event.Reason,
		metaJSON,
	).Scan(&event.ID)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

// GetJobEvents retrieves the newest limit events of a job, oldest first
func (r *EventRepository) GetJobEvents(ctx context.Context, jobID string, limit int) ([]models.JobEvent, error) {
	query := `
		SELECT id, job_id, run_id, at, step, type, reason, meta_json
		FROM (
			SELECT id, job_id, run_id, at, step, type, reason, meta_json
			FROM job_events
			WHERE job_id = $1
			ORDER BY at DESC, id DESC
			LIMIT $2
		) newest
		ORDER BY at ASC, id ASC
	`

	rows, err := r.db.QueryContext(ctx, query, jobID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []models.JobEvent
	for rows.Next() {
		var event models.JobEvent
		var step, eventType, metaJSON string

		err := rows.Scan(
			&event.ID,
			&event.JobID,
			&event.RunID,
			&event.At,
			&step,
			&eventType,
			&event.Reason,
			&metaJSON,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		event.Step = models.JobStep(step)
		event.Type = models.EventType(eventType)
		event.MetaJSON = decodeMeta(metaJSON)

		events = append(events, event)
	}

	return events, rows.Err()
}

func encodeMeta(meta map[string]interface{}) (string, error) {
	if len(meta) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("failed to encode meta: %w", err)
	}
	return string(data), nil
}

func decodeMeta(raw string) map[string]interface{} {
	if raw == "" || raw == "{}" {
		return nil
	}
	var meta map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		return nil
	}
	return meta
}
