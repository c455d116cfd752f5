package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event kind constants emitted by job drivers.
const (
	EventKindStart     = "start"
	EventKindThinking  = "thinking"
	EventKindSearching = "searching"
	EventKindRanking   = "ranking"
	EventKindOutput    = "output"
	EventKindWarning   = "warning"
	EventKindError     = "error"
	EventKindComplete  = "complete"
)

// Event is one immutable progress record emitted during a run. Events are
// append-only; their total order per run is insertion order. Each event has
// two destinations: the durable log (source of truth, supports replay) and
// zero or more live subscriber channels.
type Event struct {
	ID         uuid.UUID       `json:"id"`
	RunID      uuid.UUID       `json:"run_id"`
	SourceName string          `json:"source_name"`
	EventKind  string          `json:"event_kind"`
	Payload    json.RawMessage `json:"payload"`
	CreatedAt  time.Time       `json:"created_at"`
}

// NewEvent creates an event with a JSON-serialized payload.
// The ID and timestamp are assigned here so that the event has a complete
// representation even if persistence later fails.
func NewEvent(runID uuid.UUID, sourceName, eventKind string, payload interface{}) (*Event, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Event{
		ID:         uuid.New(),
		RunID:      runID,
		SourceName: sourceName,
		EventKind:  eventKind,
		Payload:    payloadBytes,
		CreatedAt:  time.Now().UTC(),
	}, nil
}

// MessagePayload is the common payload shape for progress events.
type MessagePayload struct {
	Message string `json:"message"`
}
