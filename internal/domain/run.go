package domain

import (
	"time"

	"github.com/google/uuid"
)

// RunStatus represents the lifecycle status of a run.
type RunStatus string

const (
	// RunStatusRunning indicates the run has a job executing in the background.
	RunStatusRunning RunStatus = "running"

	// RunStatusAwaitingFeedback indicates a step completed and the run is
	// waiting for user input before proceeding.
	RunStatusAwaitingFeedback RunStatus = "awaiting_feedback"

	// RunStatusCompleted indicates the run finished successfully.
	RunStatusCompleted RunStatus = "completed"

	// RunStatusFailed indicates the run ended in failure. Prior events and
	// artifacts are retained for inspection.
	RunStatusFailed RunStatus = "failed"
)

// IsTerminal returns true if the status is a terminal state.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}

// IsValid returns true if the status is a known value.
func (s RunStatus) IsValid() bool {
	switch s {
	case RunStatusRunning, RunStatusAwaitingFeedback, RunStatusCompleted, RunStatusFailed:
		return true
	}
	return false
}

// Run is a long-running unit of work. Its step and status are mutated only
// by the job driver at well-defined transition points; the core never
// deletes a run.
type Run struct {
	ID           uuid.UUID `json:"id"`
	Topic        string    `json:"topic,omitempty"`
	Step         string    `json:"step"`
	Status       RunStatus `json:"status"`
	ErrorMessage string    `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// NewRun creates a run in its initial state.
func NewRun(topic string) *Run {
	now := time.Now().UTC()
	return &Run{
		ID:        uuid.New(),
		Topic:     topic,
		Step:      "created",
		Status:    RunStatusAwaitingFeedback,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
