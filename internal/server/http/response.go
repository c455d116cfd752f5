package httpserver

import (
	"encoding/json"
	"time"

	"github.com/researchgpt/evidence-service/internal/domain"
)

// Response types for JSON serialization.

type runResponse struct {
	RunID        string    `json:"run_id"`
	Topic        string    `json:"topic,omitempty"`
	Step         string    `json:"step"`
	Status       string    `json:"status"`
	ErrorMessage string    `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type listRunsResponse struct {
	Runs          []runResponse `json:"runs"`
	NextPageToken string        `json:"next_page_token,omitempty"`
}

type discoverResponse struct {
	RunID   string `json:"run_id"`
	Step    string `json:"step"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

type eventResponse struct {
	ID         string          `json:"id"`
	RunID      string          `json:"run_id"`
	SourceName string          `json:"source_name"`
	EventKind  string          `json:"event_kind"`
	Payload    json.RawMessage `json:"payload"`
	CreatedAt  time.Time       `json:"created_at"`
}

type listEventsResponse struct {
	Events     []eventResponse `json:"events"`
	TotalCount int             `json:"total_count"`
}

type artifactResponse struct {
	ID        string          `json:"id"`
	RunID     string          `json:"run_id"`
	StepName  string          `json:"step_name"`
	Version   int             `json:"version"`
	Content   json.RawMessage `json:"content"`
	CreatedAt time.Time       `json:"created_at"`
}

type putArtifactResponse struct {
	RunID    string `json:"run_id"`
	StepName string `json:"step_name"`
	Version  int    `json:"version"`
}

type listArtifactsResponse struct {
	Artifacts map[string]artifactResponse `json:"artifacts"`
}

// Converter functions

func runToResponse(run *domain.Run) runResponse {
	return runResponse{
		RunID:        run.ID.String(),
		Topic:        run.Topic,
		Step:         run.Step,
		Status:       string(run.Status),
		ErrorMessage: run.ErrorMessage,
		CreatedAt:    run.CreatedAt,
		UpdatedAt:    run.UpdatedAt,
	}
}

func eventToResponse(event *domain.Event) eventResponse {
	return eventResponse{
		ID:         event.ID.String(),
		RunID:      event.RunID.String(),
		SourceName: event.SourceName,
		EventKind:  event.EventKind,
		Payload:    event.Payload,
		CreatedAt:  event.CreatedAt,
	}
}

func artifactToResponse(artifact *domain.Artifact) artifactResponse {
	return artifactResponse{
		ID:        artifact.ID.String(),
		RunID:     artifact.RunID.String(),
		StepName:  artifact.StepName,
		Version:   artifact.Version,
		Content:   artifact.Content,
		CreatedAt: artifact.CreatedAt,
	}
}
