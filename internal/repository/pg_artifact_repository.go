package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/researchgpt/evidence-service/internal/domain"
	"github.com/researchgpt/evidence-service/internal/observability"
)

// putRetries bounds how many times Put retries after losing a version race
// to a concurrent writer.
const putRetries = 3

// Compile-time interface verification.
var _ ArtifactRepository = (*PgArtifactRepository)(nil)

// PgArtifactRepository is a PostgreSQL implementation of ArtifactRepository.
//
// Version assignment uses INSERT ... SELECT COALESCE(MAX(version), 0) + 1
// guarded by a UNIQUE(run_id, step_name, version) constraint. Two writers
// racing for the same next version serialize through the constraint: the
// loser retries and claims the following version, so versions stay
// contiguous and no write is lost.
type PgArtifactRepository struct {
	db      DBTX
	metrics *observability.Metrics
}

// NewPgArtifactRepository creates a new PostgreSQL artifact repository.
// metrics may be nil.
func NewPgArtifactRepository(db DBTX, metrics *observability.Metrics) *PgArtifactRepository {
	return &PgArtifactRepository{db: db, metrics: metrics}
}

// Put writes content as the next version for (runID, stepName) and returns
// the version it claimed.
func (r *PgArtifactRepository) Put(ctx context.Context, runID uuid.UUID, stepName string, content []byte) (int, error) {
	if runID == uuid.Nil {
		return 0, domain.NewValidationError("run_id", "run ID is required")
	}
	if stepName == "" {
		return 0, domain.NewValidationError("step_name", "step name is required")
	}
	if len(content) == 0 {
		return 0, domain.NewValidationError("content", "content is required")
	}

	query := `
		INSERT INTO artifacts (id, run_id, step_name, version, content, created_at)
		SELECT $1, $2, $3, COALESCE(MAX(version), 0) + 1, $4, NOW()
		FROM artifacts
		WHERE run_id = $2 AND step_name = $3
		RETURNING version`

	var lastErr error
	for attempt := 0; attempt < putRetries; attempt++ {
		var version int
		err := r.db.QueryRow(ctx, query, uuid.New(), runID, stepName, content).Scan(&version)
		if err == nil {
			if r.metrics != nil {
				r.metrics.RecordArtifactWritten(stepName)
			}
			return version, nil
		}
		if !isPgUniqueViolation(err) {
			return 0, fmt.Errorf("failed to put artifact: %w", err)
		}
		// Lost the race for this version number; recompute and retry.
		if r.metrics != nil {
			r.metrics.RecordArtifactVersionConflict()
		}
		lastErr = err
	}

	return 0, fmt.Errorf("artifact version contention for run %s step %s: %w (%v)",
		runID, stepName, domain.ErrVersionConflict, lastErr)
}

// GetLatest returns the highest version artifact for (runID, stepName).
func (r *PgArtifactRepository) GetLatest(ctx context.Context, runID uuid.UUID, stepName string) (*domain.Artifact, error) {
	query := `
		SELECT id, run_id, step_name, version, content, created_at
		FROM artifacts
		WHERE run_id = $1 AND step_name = $2
		ORDER BY version DESC
		LIMIT 1`

	artifact, err := scanArtifact(r.db.QueryRow(ctx, query, runID, stepName))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("artifact", stepName)
		}
		return nil, fmt.Errorf("failed to get latest artifact: %w", err)
	}

	return artifact, nil
}

// ListLatest returns the latest artifact per step for a run.
func (r *PgArtifactRepository) ListLatest(ctx context.Context, runID uuid.UUID) (map[string]*domain.Artifact, error) {
	query := `
		SELECT DISTINCT ON (step_name) id, run_id, step_name, version, content, created_at
		FROM artifacts
		WHERE run_id = $1
		ORDER BY step_name, version DESC`

	rows, err := r.db.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list latest artifacts: %w", err)
	}
	defer rows.Close()

	latest := make(map[string]*domain.Artifact)
	for rows.Next() {
		artifact, err := scanArtifact(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan artifact: %w", err)
		}
		latest[artifact.StepName] = artifact
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating artifacts: %w", err)
	}

	return latest, nil
}

// scanArtifact scans a single row into an Artifact.
func scanArtifact(row pgx.Row) (*domain.Artifact, error) {
	var artifact domain.Artifact
	var content []byte

	err := row.Scan(
		&artifact.ID, &artifact.RunID, &artifact.StepName,
		&artifact.Version, &content, &artifact.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	artifact.Content = content
	return &artifact, nil
}
