package httpserver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/researchgpt/evidence-service/internal/domain"
	"github.com/researchgpt/evidence-service/internal/scout"
)

// Pagination and validation constants.
const (
	defaultPageSize    = 50
	maxPageSize        = 100
	maxRequestBodySize = 1 << 20 // 1 MB limit for request bodies
)

// createRunRequest is the JSON request body for creating a run.
type createRunRequest struct {
	Topic string `json:"topic" validate:"required,min=3,max=10000"`
}

// discoverRequest is the JSON request body for starting source discovery.
type discoverRequest struct {
	Topic         string   `json:"topic" validate:"required,min=3,max=10000"`
	Description   string   `json:"description,omitempty" validate:"max=10000"`
	Keywords      []string `json:"keywords,omitempty" validate:"max=50,dive,min=1,max=200"`
	ApproachLabel string   `json:"approach_label,omitempty" validate:"max=200"`
	Feedback      string   `json:"feedback,omitempty" validate:"max=10000"`
}

// putArtifactRequest is the JSON request body for a manual artifact write.
type putArtifactRequest struct {
	StepName string          `json:"step_name" validate:"required,min=1,max=200"`
	Content  json.RawMessage `json:"content" validate:"required"`
}

// createRun handles POST /api/v1/runs.
func (s *Server) createRun(w http.ResponseWriter, r *http.Request) {
	var req createRunRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	run := domain.NewRun(req.Topic)
	if err := s.runs.Create(r.Context(), run); err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, runToResponse(run))
}

// getRun handles GET /api/v1/runs/{runID}.
func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	runID, ok := parseUUID(w, chi.URLParam(r, "runID"), "run_id")
	if !ok {
		return
	}

	run, err := s.runs.Get(r.Context(), runID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, runToResponse(run))
}

// listRuns handles GET /api/v1/runs.
func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePaginationParams(r)

	runs, err := s.runs.List(r.Context(), limit, offset)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	summaries := make([]runResponse, len(runs))
	for i, run := range runs {
		summaries[i] = runToResponse(run)
	}

	writeJSON(w, http.StatusOK, listRunsResponse{
		Runs:          summaries,
		NextPageToken: encodePageToken(offset, limit, len(runs)),
	})
}

// startDiscovery handles POST /api/v1/runs/{runID}/discover.
// Input is validated synchronously; the job itself runs in the background
// and reports through the event log.
func (s *Server) startDiscovery(w http.ResponseWriter, r *http.Request) {
	runID, ok := parseUUID(w, chi.URLParam(r, "runID"), "run_id")
	if !ok {
		return
	}

	var req discoverRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	run, err := s.runs.Get(r.Context(), runID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if run.Status == domain.RunStatusRunning {
		writeError(w, http.StatusConflict, "a job is already running for this run")
		return
	}

	jobReq := scout.DiscoveryRequest{
		Topic:         req.Topic,
		Description:   req.Description,
		Keywords:      req.Keywords,
		ApproachLabel: req.ApproachLabel,
		Feedback:      req.Feedback,
	}

	// The job outlives the request; detach cancellation but keep values.
	jobCtx := context.WithoutCancel(r.Context())
	go func() {
		if jobErr := s.scout.Run(jobCtx, runID, jobReq); jobErr != nil {
			s.logger.Error().Err(jobErr).Str("run_id", runID.String()).Msg("discovery job failed")
		}
	}()

	writeJSON(w, http.StatusAccepted, discoverResponse{
		RunID:   runID.String(),
		Step:    scout.StepName,
		Status:  string(domain.RunStatusRunning),
		Message: "source discovery started",
	})
}

// listEvents handles GET /api/v1/runs/{runID}/events.
func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	runID, ok := parseUUID(w, chi.URLParam(r, "runID"), "run_id")
	if !ok {
		return
	}

	if _, err := s.runs.Get(r.Context(), runID); err != nil {
		writeDomainError(w, err)
		return
	}

	events, err := s.eventLog.List(r.Context(), runID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	responses := make([]eventResponse, len(events))
	for i, event := range events {
		responses[i] = eventToResponse(event)
	}

	writeJSON(w, http.StatusOK, listEventsResponse{
		Events:     responses,
		TotalCount: len(responses),
	})
}

// putArtifact handles POST /api/v1/runs/{runID}/artifacts.
func (s *Server) putArtifact(w http.ResponseWriter, r *http.Request) {
	runID, ok := parseUUID(w, chi.URLParam(r, "runID"), "run_id")
	if !ok {
		return
	}

	var req putArtifactRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	if _, err := s.runs.Get(r.Context(), runID); err != nil {
		writeDomainError(w, err)
		return
	}

	version, err := s.artifacts.Put(r.Context(), runID, req.StepName, req.Content)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, putArtifactResponse{
		RunID:    runID.String(),
		StepName: req.StepName,
		Version:  version,
	})
}

// getArtifacts handles GET /api/v1/runs/{runID}/artifacts.
// With a step_name query parameter it returns that step's latest version;
// without one it returns the latest version of every step.
func (s *Server) getArtifacts(w http.ResponseWriter, r *http.Request) {
	runID, ok := parseUUID(w, chi.URLParam(r, "runID"), "run_id")
	if !ok {
		return
	}

	if stepName := r.URL.Query().Get("step_name"); stepName != "" {
		artifact, err := s.artifacts.GetLatest(r.Context(), runID, stepName)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, artifactToResponse(artifact))
		return
	}

	latest, err := s.artifacts.ListLatest(r.Context(), runID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	artifacts := make(map[string]artifactResponse, len(latest))
	for stepName, artifact := range latest {
		artifacts[stepName] = artifactToResponse(artifact)
	}

	writeJSON(w, http.StatusOK, listArtifactsResponse{Artifacts: artifacts})
}

// decodeAndValidate reads, unmarshals, and validates a JSON request body.
// It writes a 400 response and returns false on any failure.
func (s *Server) decodeAndValidate(w http.ResponseWriter, r *http.Request, out interface{}) bool {
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return false
	}

	if err := json.Unmarshal(body, out); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return false
	}

	if err := s.validate.Struct(out); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			writeError(w, http.StatusBadRequest,
				fmt.Sprintf("invalid field %s: failed %s validation", verrs[0].Field(), verrs[0].Tag()))
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}

	return true
}

// writeDomainError maps domain errors to HTTP status codes and writes a
// JSON error response. Internal error details are not leaked to clients.
func writeDomainError(w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "resource not found")
	case errors.Is(err, domain.ErrInvalidInput):
		var ve *domain.ValidationError
		if errors.As(err, &ve) {
			writeError(w, http.StatusBadRequest, ve.Error())
		} else {
			writeError(w, http.StatusBadRequest, "invalid input")
		}
	case errors.Is(err, domain.ErrAlreadyExists):
		writeError(w, http.StatusConflict, "resource already exists")
	case errors.Is(err, domain.ErrVersionConflict):
		writeError(w, http.StatusConflict, "artifact version conflict")
	case errors.Is(err, domain.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "rate limited")
	case errors.Is(err, domain.ErrServiceUnavailable):
		writeError(w, http.StatusServiceUnavailable, "service unavailable")
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// parseUUID parses a UUID from a string, writing a 400 error response if
// invalid. The parse error details are not echoed back.
func parseUUID(w http.ResponseWriter, s, fieldName string) (uuid.UUID, bool) {
	id, err := uuid.Parse(s)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("%s must be a valid UUID", fieldName))
		return uuid.Nil, false
	}
	return id, true
}

// parsePaginationParams extracts page_size and page_token from query
// parameters with default and maximum bounds.
func parsePaginationParams(r *http.Request) (limit, offset int) {
	limit = defaultPageSize
	if pageSizeStr := r.URL.Query().Get("page_size"); pageSizeStr != "" {
		if parsed, err := strconv.Atoi(pageSizeStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	if pageToken := r.URL.Query().Get("page_token"); pageToken != "" {
		decoded, err := base64.StdEncoding.DecodeString(pageToken)
		if err == nil {
			if parsed, parseErr := strconv.Atoi(string(decoded)); parseErr == nil && parsed > 0 {
				offset = parsed
			}
		}
	}

	return limit, offset
}

// encodePageToken encodes the next offset as a base64 page token. An empty
// string means the current page was short, so there are no more results.
func encodePageToken(offset, limit, returned int) string {
	if returned < limit {
		return ""
	}
	return base64.StdEncoding.EncodeToString([]byte(strconv.Itoa(offset + limit)))
}
