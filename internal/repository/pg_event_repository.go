package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/researchgpt/evidence-service/internal/domain"
)

// Compile-time interface verification.
var _ EventRepository = (*PgEventRepository)(nil)

// PgEventRepository is a PostgreSQL implementation of EventRepository.
// Events are append-only; a BIGSERIAL sequence column fixes the per-run
// total order at insertion time.
type PgEventRepository struct {
	db DBTX
}

// NewPgEventRepository creates a new PostgreSQL event repository.
func NewPgEventRepository(db DBTX) *PgEventRepository {
	return &PgEventRepository{db: db}
}

// Append persists an event at the end of the run's log.
func (r *PgEventRepository) Append(ctx context.Context, event *domain.Event) error {
	if event == nil {
		return domain.NewValidationError("event", "event cannot be nil")
	}
	if event.ID == uuid.Nil {
		return domain.NewValidationError("id", "event ID is required")
	}
	if event.RunID == uuid.Nil {
		return domain.NewValidationError("run_id", "run ID is required")
	}
	if event.EventKind == "" {
		return domain.NewValidationError("event_kind", "event kind is required")
	}

	query := `
		INSERT INTO events (id, run_id, source_name, event_kind, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.db.Exec(ctx, query,
		event.ID, event.RunID, event.SourceName, event.EventKind,
		[]byte(event.Payload), event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}

	return nil
}

// List returns the run's events ascending by insertion order.
func (r *PgEventRepository) List(ctx context.Context, runID uuid.UUID) ([]*domain.Event, error) {
	query := `
		SELECT id, run_id, source_name, event_kind, payload, created_at
		FROM events
		WHERE run_id = $1
		ORDER BY seq ASC`

	rows, err := r.db.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var events []*domain.Event
	for rows.Next() {
		var event domain.Event
		var payload []byte
		if err := rows.Scan(
			&event.ID, &event.RunID, &event.SourceName, &event.EventKind,
			&payload, &event.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		event.Payload = payload
		events = append(events, &event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}

	return events, nil
}
