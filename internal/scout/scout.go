// Package scout drives the source discovery job for a run: keyword
// generation, provider fan-out via the aggregate orchestrator, LLM
// curation of each resource category, bundle assembly, and evidence
// planning. Progress is streamed through the event log; outputs are
// persisted as versioned artifacts.
package scout

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/researchgpt/evidence-service/internal/aggregate"
	"github.com/researchgpt/evidence-service/internal/domain"
	"github.com/researchgpt/evidence-service/internal/eventlog"
	"github.com/researchgpt/evidence-service/internal/llm"
	"github.com/researchgpt/evidence-service/internal/observability"
	"github.com/researchgpt/evidence-service/internal/repository"
)

const (
	// StepName is the run step claimed while discovery executes.
	StepName = "discover_sources"

	// ArtifactSources is the step name under which the result bundle is
	// versioned.
	ArtifactSources = "discovery_sources"

	// ArtifactEvidencePlan is the step name under which the evidence plan
	// is versioned.
	ArtifactEvidencePlan = "discovery_evidence_plan"
)

// Event source names attached to emitted progress events.
const (
	sourceScout   = "SourceScout"
	sourcePlanner = "EvidencePlanner"
	sourceSystem  = "System"
)

const (
	// maxCurationPapers caps how many merged papers are shown to the
	// ranking collaborator.
	maxCurationPapers = 15

	// maxPromptAuthors caps the author list per paper in prompt material.
	maxPromptAuthors = 3

	// fallbackPaperCount is how many top papers survive when ranking fails.
	fallbackPaperCount = 10

	// snippetMaxLen bounds cleaned snippets in dataset and learning
	// resource prompts; toolSnippetMaxLen does the same for tool prompts.
	snippetMaxLen     = 150
	toolSnippetMaxLen = 200

	// whyUsefulMaxLen bounds the curated why_useful annotations.
	whyUsefulMaxLen = 150
)

// providerNames is the fixed provider list recorded in bundle metadata.
var providerNames = []string{"openalex", "semanticscholar", "crossref", "unpaywall", "tavily"}

// DiscoveryRequest carries the user-facing inputs of one discovery job.
type DiscoveryRequest struct {
	Topic         string
	Description   string
	Keywords      []string
	ApproachLabel string

	// Feedback is optional user feedback from a previous iteration; it
	// steers keyword generation on re-runs.
	Feedback string
}

// Scout executes discovery jobs. One Scout serves all runs.
type Scout struct {
	generator    llm.Generator
	orchestrator *aggregate.Orchestrator
	runs         repository.RunRepository
	artifacts    repository.ArtifactRepository
	log          *eventlog.Log
	metrics      *observability.Metrics
	logger       zerolog.Logger
}

// New creates a discovery job driver. metrics may be nil.
func New(
	generator llm.Generator,
	orchestrator *aggregate.Orchestrator,
	runs repository.RunRepository,
	artifacts repository.ArtifactRepository,
	log *eventlog.Log,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *Scout {
	return &Scout{
		generator:    generator,
		orchestrator: orchestrator,
		runs:         runs,
		artifacts:    artifacts,
		log:          log,
		metrics:      metrics,
		logger:       logger,
	}
}

// Run executes the full discovery job for a run: keyword generation,
// aggregation, curation, bundle and evidence plan artifacts. On success
// the run transitions to awaiting_feedback; any fatal error emits a single
// System error event and transitions the run to failed. Prior events and
// artifacts survive a failure.
func (s *Scout) Run(ctx context.Context, runID uuid.UUID, req DiscoveryRequest) error {
	if err := s.runs.UpdateState(ctx, runID, StepName, domain.RunStatusRunning, ""); err != nil {
		return fmt.Errorf("claiming run: %w", err)
	}

	s.emit(ctx, runID, sourceScout, domain.EventKindStart,
		fmt.Sprintf("Starting source discovery for: %s", req.Topic))

	keywords, err := s.generateKeywords(ctx, runID, req)
	if err != nil {
		return s.fail(ctx, runID, err)
	}

	result, err := s.aggregate(ctx, runID, req, keywords)
	if err != nil {
		return s.fail(ctx, runID, err)
	}

	papers := s.curatePapers(ctx, runID, req, result.Papers)

	s.emit(ctx, runID, sourceScout, domain.EventKindSearching,
		"Searching for datasets, learning resources, and tools via Tavily...")
	datasets := s.curateDatasets(ctx, runID, req, result.DatasetHits)
	learning := s.curateLearning(ctx, runID, req, result.LearningHits)
	tools := s.curateTools(ctx, runID, req, result.ToolHits)

	bundle := &domain.ResultBundle{
		Metadata: domain.BundleMetadata{
			CreatedAt:      time.Now().UTC(),
			SearchKeywords: keywords,
			Providers:      providerNames,
		},
		Papers:            papers,
		Datasets:          datasets,
		Tools:             tools,
		LearningResources: learning,
	}

	s.emit(ctx, runID, sourceScout, domain.EventKindOutput,
		fmt.Sprintf("Final resources: %d papers, %d datasets, %d learning resources, %d tools",
			len(bundle.Papers), len(bundle.Datasets), len(bundle.LearningResources), len(bundle.Tools)))

	content, err := json.Marshal(bundle)
	if err != nil {
		return s.fail(ctx, runID, fmt.Errorf("serializing result bundle: %w", err))
	}
	if _, err := s.artifacts.Put(ctx, runID, ArtifactSources, content); err != nil {
		return s.fail(ctx, runID, fmt.Errorf("persisting result bundle: %w", err))
	}

	if err := s.planEvidence(ctx, runID, req, bundle); err != nil {
		return s.fail(ctx, runID, err)
	}

	s.emit(ctx, runID, sourceScout, domain.EventKindComplete,
		fmt.Sprintf("Source discovery complete. %d total resources with links.", bundle.TotalResources()))

	if err := s.runs.UpdateState(ctx, runID, StepName, domain.RunStatusAwaitingFeedback, ""); err != nil {
		return fmt.Errorf("releasing run: %w", err)
	}
	return nil
}

// generateKeywords asks the collaborator for targeted search keywords.
// An unparsable response is fatal; the rest of the pipeline is only as
// good as its queries.
func (s *Scout) generateKeywords(ctx context.Context, runID uuid.UUID, req DiscoveryRequest) ([]string, error) {
	s.emit(ctx, runID, sourceScout, domain.EventKindThinking, "Generating targeted search keywords...")

	raw, err := s.generator.Generate(ctx, keywordSystemPrompt, buildKeywordPrompt(req))
	if err != nil {
		return nil, fmt.Errorf("keyword generation: %w", err)
	}

	var resp struct {
		Keywords []string `json:"keywords"`
	}
	if err := llm.DecodeInto(raw, &resp); err != nil {
		return nil, fmt.Errorf("keyword generation: %w", err)
	}

	keywords := resp.Keywords
	if len(keywords) == 0 {
		keywords = req.Keywords
	}
	if len(keywords) == 0 {
		keywords = []string{req.Topic}
	}

	if s.metrics != nil {
		s.metrics.RecordKeywordsGenerated(len(keywords))
	}
	s.emit(ctx, runID, sourceScout, domain.EventKindThinking,
		fmt.Sprintf("Generated %d search keywords: %s", len(keywords), strings.Join(keywords, ", ")))
	return keywords, nil
}

// aggregate runs the provider fan-out and narrates its outcome. Provider
// warnings become warning events; only context cancellation is fatal.
func (s *Scout) aggregate(ctx context.Context, runID uuid.UUID, req DiscoveryRequest, keywords []string) (*aggregate.Result, error) {
	s.emit(ctx, runID, sourceScout, domain.EventKindSearching,
		"Searching OpenAlex and Semantic Scholar for relevant papers...")

	result, err := s.orchestrator.Aggregate(ctx, aggregate.QuerySpec{
		Topic:         req.Topic,
		Keywords:      keywords,
		ApproachLabel: req.ApproachLabel,
	})
	if err != nil {
		return nil, fmt.Errorf("aggregation: %w", err)
	}

	for _, warning := range result.Warnings {
		s.emit(ctx, runID, sourceScout, domain.EventKindWarning,
			fmt.Sprintf("%s: %s", warning.Source, warning.Message))
	}

	s.emit(ctx, runID, sourceScout, domain.EventKindSearching,
		fmt.Sprintf("Found %d papers from OpenAlex, %d from Semantic Scholar, %d unique after dedup",
			result.OpenAlexCount, result.SemanticScholarCount, len(result.Papers)))

	if result.VerifiedDOIs > 0 {
		s.emit(ctx, runID, sourceScout, domain.EventKindSearching,
			fmt.Sprintf("Verified %d DOIs via Crossref", result.VerifiedDOIs))
	}
	if result.OpenAccessPDFs > 0 {
		s.emit(ctx, runID, sourceScout, domain.EventKindSearching,
			fmt.Sprintf("Found %d open-access PDFs via Unpaywall", result.OpenAccessPDFs))
	}

	return result, nil
}

// planEvidence generates the evidence collection plan and persists it as
// its own artifact. An unparsable plan is fatal.
func (s *Scout) planEvidence(ctx context.Context, runID uuid.UUID, req DiscoveryRequest, bundle *domain.ResultBundle) error {
	s.emit(ctx, runID, sourcePlanner, domain.EventKindThinking,
		"Drafting the evidence collection plan...")

	prompt := buildEvidencePlanPrompt(req, len(bundle.Papers), len(bundle.Datasets), len(bundle.Tools))
	raw, err := s.generator.Generate(ctx, evidencePlanSystemPrompt, prompt)
	if err != nil {
		return fmt.Errorf("evidence planning: %w", err)
	}

	plan, err := llm.ExtractJSON(raw)
	if err != nil {
		return fmt.Errorf("evidence planning: %w", err)
	}

	if _, err := s.artifacts.Put(ctx, runID, ArtifactEvidencePlan, plan); err != nil {
		return fmt.Errorf("persisting evidence plan: %w", err)
	}

	s.emit(ctx, runID, sourcePlanner, domain.EventKindOutput, "Evidence collection plan ready.")
	return nil
}

// fail emits a single System error event, marks the run failed, and
// returns the original error.
func (s *Scout) fail(ctx context.Context, runID uuid.UUID, cause error) error {
	s.logger.Error().Err(cause).Str("run_id", runID.String()).Msg("discovery job failed")

	s.emit(ctx, runID, sourceSystem, domain.EventKindError,
		fmt.Sprintf("Source discovery failed: %s", cause))

	if err := s.runs.UpdateState(ctx, runID, StepName, domain.RunStatusFailed, cause.Error()); err != nil {
		s.logger.Error().Err(err).Str("run_id", runID.String()).Msg("failed to mark run failed")
	}
	return cause
}

// emit appends a message-payload progress event.
func (s *Scout) emit(ctx context.Context, runID uuid.UUID, sourceName, kind, message string) {
	s.log.Emit(ctx, runID, sourceName, kind, domain.MessagePayload{Message: message})
}
