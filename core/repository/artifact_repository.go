package repository

import (
	"context"
	"fmt"

	"finetune-orchestrator/core/models"
)

// ArtifactRepository handles database operations for job artifacts
type ArtifactRepository struct {
	db *DB
}

// NewArtifactRepository creates a new artifact repository
func NewArtifactRepository(db *DB) *ArtifactRepository {
	return &ArtifactRepository{db: db}
}

// GetJobArtifacts retrieves artifacts for a job, optionally of one type
func (r *ArtifactRepository) GetJobArtifacts(ctx context.Context, jobID string, artifactType *models.ArtifactType) ([]models.JobArtifact, error) {
	query := `
		SELECT id, job_id, type, uri, created_at, meta_json
		FROM job_artifacts
		WHERE job_id = $1
	`
	args := []interface{}{jobID}
	argIndex := 2

	if artifactType != nil {
		query += fmt.Sprintf(" AND type = $%d", argIndex)
		args = append(args, string(*artifactType))
	}

	query += " ORDER BY created_at ASC, id ASC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query artifacts: %w", err)
	}
	defer rows.Close()

	var artifacts []models.JobArtifact
	for rows.Next() {
		var artifact models.JobArtifact
		var kind, metaJSON string

		err := rows.Scan(
			&artifact.ID,
			&artifact.JobID,
			&kind,
			&artifact.URI,
			&artifact.CreatedAt,
			&metaJSON,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan artifact: %w", err)
		}
		artifact.Type = models.ArtifactType(kind)
		artifact.MetaJSON = decodeMeta(metaJSON)

		artifacts = append(artifacts, artifact)
	}

	return artifacts, rows.Err()
}

// CreateArtifact creates a new artifact record and sets its id
func (r *ArtifactRepository) CreateArtifact(ctx context.Context, artifact *models.JobArtifact) error {
	metaJSON, err := encodeMeta(artifact.MetaJSON)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO job_artifacts (job_id, type, uri, meta_json, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	err = r.db.QueryRowContext(ctx, query,
		artifact.JobID,
		string(artifact.Type),
		artifact.URI,
		metaJSON,
		artifact.CreatedAt,
	).Scan(&artifact.ID)
	if err != nil {
		return fmt.Errorf("failed to insert artifact: %w", err)
	}
	return nil
}
