package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/researchgpt/evidence-service/internal/domain"
)

// PostgreSQL error codes used for constraint violation detection.
const (
	pgUniqueViolation     = "23505" // unique_violation
	pgForeignKeyViolation = "23503" // foreign_key_violation
)

// Compile-time interface verification.
var _ RunRepository = (*PgRunRepository)(nil)

// PgRunRepository is a PostgreSQL implementation of RunRepository.
type PgRunRepository struct {
	db DBTX
}

// NewPgRunRepository creates a new PostgreSQL run repository.
func NewPgRunRepository(db DBTX) *PgRunRepository {
	return &PgRunRepository{db: db}
}

// Create inserts a new run.
func (r *PgRunRepository) Create(ctx context.Context, run *domain.Run) error {
	if run == nil {
		return domain.NewValidationError("run", "run cannot be nil")
	}
	if run.ID == uuid.Nil {
		return domain.NewValidationError("id", "run ID is required")
	}
	if !run.Status.IsValid() {
		return domain.NewValidationError("status", "unknown run status")
	}

	query := `
		INSERT INTO runs (id, topic, step, status, error_message, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.db.Exec(ctx, query,
		run.ID, run.Topic, run.Step, run.Status,
		nullString(run.ErrorMessage), run.CreatedAt, run.UpdatedAt,
	)
	if err != nil {
		if isPgUniqueViolation(err) {
			return domain.NewAlreadyExistsError("run", run.ID.String())
		}
		return fmt.Errorf("failed to create run: %w", err)
	}

	return nil
}

// Get retrieves a run by its ID.
func (r *PgRunRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Run, error) {
	query := `
		SELECT id, topic, step, status, error_message, created_at, updated_at
		FROM runs
		WHERE id = $1`

	run, err := scanRun(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("run", id.String())
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	return run, nil
}

// List retrieves runs ordered by creation time descending.
func (r *PgRunRepository) List(ctx context.Context, limit, offset int) ([]*domain.Run, error) {
	applyPaginationDefaults(&limit, &offset)

	query := `
		SELECT id, topic, step, status, error_message, created_at, updated_at
		FROM runs
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`

	rows, err := r.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := make([]*domain.Run, 0, limit)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, nil
}

// UpdateState sets the run's step, status, and error message.
func (r *PgRunRepository) UpdateState(ctx context.Context, id uuid.UUID, step string, status domain.RunStatus, errorMessage string) error {
	if !status.IsValid() {
		return domain.NewValidationError("status", "unknown run status")
	}

	query := `
		UPDATE runs
		SET step = $1, status = $2, error_message = $3, updated_at = $4
		WHERE id = $5`

	result, err := r.db.Exec(ctx, query,
		step, status, nullString(errorMessage), time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update run state: %w", err)
	}

	if result.RowsAffected() == 0 {
		return domain.NewNotFoundError("run", id.String())
	}

	return nil
}

// scanRun scans a single row into a Run.
func scanRun(row pgx.Row) (*domain.Run, error) {
	var run domain.Run
	var errorMessage *string

	err := row.Scan(
		&run.ID, &run.Topic, &run.Step, &run.Status,
		&errorMessage, &run.CreatedAt, &run.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if errorMessage != nil {
		run.ErrorMessage = *errorMessage
	}
	return &run, nil
}

// isPgUniqueViolation checks if the error is a PostgreSQL unique constraint violation.
func isPgUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	return false
}

// nullString returns a pointer to the string if non-empty, otherwise nil.
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
