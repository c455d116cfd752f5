// Package repository provides data access interfaces and implementations
// for the evidence service.
//
// # Overview
//
// This package defines repository interfaces and their PostgreSQL
// implementations following the repository pattern to abstract data
// persistence from business logic.
//
// # Repository Interfaces
//
// The package provides the following repository interfaces:
//
//   - RunRepository: Manages run lifecycle and state transitions
//   - EventRepository: Manages the append-only per-run event log
//   - ArtifactRepository: Manages versioned artifact snapshots
//
// # Thread Safety
//
// All repository implementations are safe for concurrent use by multiple
// goroutines. The underlying pgxpool handles connection pooling and
// synchronization.
//
// # Error Handling
//
// All methods return domain-specific errors from the domain package.
// Wrap database errors with context using fmt.Errorf with %w verb.
// Common errors include:
//
//   - domain.ErrNotFound: Resource does not exist
//   - domain.ErrAlreadyExists: Unique constraint violation
//   - domain.ErrInvalidInput: Invalid parameters provided
//
// # Transactions
//
// Use the DBTX interface to support both pool and transaction contexts.
// Pass a transaction from database.DB.WithTransaction for atomic operations.
package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/researchgpt/evidence-service/internal/database"
	"github.com/researchgpt/evidence-service/internal/domain"
)

// DBTX is the database interface supporting both pool and transaction
// contexts. Repository constructors accept DBTX so the same implementation
// works against a connection pool, a transaction, or a mock.
type DBTX = database.DBTX

// RunRepository manages run lifecycle and state.
type RunRepository interface {
	// Create inserts a new run.
	Create(ctx context.Context, run *domain.Run) error

	// Get retrieves a run by ID.
	Get(ctx context.Context, id uuid.UUID) (*domain.Run, error)

	// List retrieves runs ordered by creation time descending.
	List(ctx context.Context, limit, offset int) ([]*domain.Run, error)

	// UpdateState sets the run's step, status, and error message.
	UpdateState(ctx context.Context, id uuid.UUID, step string, status domain.RunStatus, errorMessage string) error
}

// EventRepository manages the durable per-run event log.
type EventRepository interface {
	// Append persists an event at the end of the run's log.
	Append(ctx context.Context, event *domain.Event) error

	// List returns the run's events ascending by insertion order.
	List(ctx context.Context, runID uuid.UUID) ([]*domain.Event, error)
}

// ArtifactRepository manages versioned artifact snapshots.
type ArtifactRepository interface {
	// Put writes content as the next version for (runID, stepName) and
	// returns the version it claimed.
	Put(ctx context.Context, runID uuid.UUID, stepName string, content []byte) (int, error)

	// GetLatest returns the highest version artifact for (runID, stepName).
	GetLatest(ctx context.Context, runID uuid.UUID, stepName string) (*domain.Artifact, error)

	// ListLatest returns the latest artifact per step for a run.
	ListLatest(ctx context.Context, runID uuid.UUID) (map[string]*domain.Artifact, error)
}

// Pagination defaults and limits for list queries.
const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

// applyPaginationDefaults normalizes limit and offset values.
// It clamps limit to [1, maxListLimit] and ensures offset >= 0.
func applyPaginationDefaults(limit, offset *int) {
	if *limit <= 0 {
		*limit = defaultListLimit
	}
	if *limit > maxListLimit {
		*limit = maxListLimit
	}
	if *offset < 0 {
		*offset = 0
	}
}
