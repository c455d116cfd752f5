package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Artifact is a named, versioned snapshot of a run's output. Versions for a
// given (run_id, step_name) pair start at 1 and increment by 1 per write;
// only the highest version is "current", older versions are retained for
// history and never mutated.
type Artifact struct {
	ID        uuid.UUID       `json:"id"`
	RunID     uuid.UUID       `json:"run_id"`
	StepName  string          `json:"step_name"`
	Version   int             `json:"version"`
	Content   json.RawMessage `json:"content"`
	CreatedAt time.Time       `json:"created_at"`
}
