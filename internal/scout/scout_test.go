package scout

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/researchgpt/evidence-service/internal/aggregate"
	"github.com/researchgpt/evidence-service/internal/domain"
	"github.com/researchgpt/evidence-service/internal/eventlog"
	"github.com/researchgpt/evidence-service/internal/observability"
	"github.com/researchgpt/evidence-service/internal/repository"
)

// fakeGenerator routes completions by a marker substring of the system
// prompt, so each collaborator step can be scripted independently.
type fakeGenerator struct {
	mu        sync.Mutex
	responses map[string]string
	errors    map[string]error
	calls     []string
}

func newFakeGenerator() *fakeGenerator {
	return &fakeGenerator{
		responses: map[string]string{
			"research librarian":    `{"keywords": ["graph neural networks", "molecule property prediction"]}`,
			"resource evaluator":    `{"papers": [{"title": "GNNs for Molecules", "authors": ["A. Author"], "year": 2021, "doi": "10.1/a", "url": "https://example.org/a", "why_relevant": "Directly on topic", "credibility_notes": "peer-reviewed"}]}`,
			"dataset curator":       `{"datasets": [{"name": "MoleculeNet", "domain": "chemistry", "url": "https://moleculenet.org", "why_relevant": "Benchmark datasets"}]}`,
			"resources curator":     `{"resources": [{"name": "GNN Course", "url": "https://example.org/course", "why_useful": "Full introduction", "source": "example.org"}]}`,
			"tools curator":         `{"tools": [{"name": "PyG", "type": "library", "url": "https://github.com/pyg-team/pytorch_geometric", "why_useful": "Builds the GNN models"}]}`,
			"methodology advisor":   `{"evidence_type": "secondary", "collection_strategy": ["Step 1: collect"], "inclusion_exclusion": {"include": ["relevant"], "exclude": ["off-topic"]}, "analysis_overview": "Statistical comparison", "expected_outputs": ["benchmark table"]}`,
		},
		errors: map[string]error{},
	}
}

func (g *fakeGenerator) Generate(_ context.Context, systemPrompt, _ string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for marker, err := range g.errors {
		if strings.Contains(systemPrompt, marker) {
			g.calls = append(g.calls, marker)
			return "", err
		}
	}
	for marker, resp := range g.responses {
		if strings.Contains(systemPrompt, marker) {
			g.calls = append(g.calls, marker)
			return resp, nil
		}
	}
	return "", errors.New("unexpected system prompt")
}

func (g *fakeGenerator) Provider() string { return "fake" }
func (g *fakeGenerator) Model() string    { return "fake-model" }

// memoryRunRepository records state transitions in memory.
type memoryRunRepository struct {
	mu          sync.Mutex
	transitions []domain.RunStatus
	step        string
	errMsg      string
	updateErr   error
}

func (r *memoryRunRepository) Create(context.Context, *domain.Run) error { return nil }
func (r *memoryRunRepository) Get(context.Context, uuid.UUID) (*domain.Run, error) {
	return nil, domain.NewNotFoundError("run", "")
}
func (r *memoryRunRepository) List(context.Context, int, int) ([]*domain.Run, error) {
	return nil, nil
}

func (r *memoryRunRepository) UpdateState(_ context.Context, _ uuid.UUID, step string, status domain.RunStatus, errorMessage string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return r.updateErr
	}
	r.transitions = append(r.transitions, status)
	r.step = step
	r.errMsg = errorMessage
	return nil
}

func (r *memoryRunRepository) statuses() []domain.RunStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.RunStatus(nil), r.transitions...)
}

// memoryArtifactRepository versions artifacts in memory.
type memoryArtifactRepository struct {
	mu       sync.Mutex
	contents map[string][]json.RawMessage
	putErr   error
}

func newMemoryArtifactRepository() *memoryArtifactRepository {
	return &memoryArtifactRepository{contents: make(map[string][]json.RawMessage)}
}

func (r *memoryArtifactRepository) Put(_ context.Context, _ uuid.UUID, stepName string, content []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.putErr != nil {
		return 0, r.putErr
	}
	r.contents[stepName] = append(r.contents[stepName], append(json.RawMessage(nil), content...))
	return len(r.contents[stepName]), nil
}

func (r *memoryArtifactRepository) GetLatest(_ context.Context, _ uuid.UUID, stepName string) (*domain.Artifact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	versions := r.contents[stepName]
	if len(versions) == 0 {
		return nil, domain.NewNotFoundError("artifact", stepName)
	}
	return &domain.Artifact{StepName: stepName, Version: len(versions), Content: versions[len(versions)-1]}, nil
}

func (r *memoryArtifactRepository) ListLatest(context.Context, uuid.UUID) (map[string]*domain.Artifact, error) {
	return nil, nil
}

func (r *memoryArtifactRepository) latest(stepName string) json.RawMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	versions := r.contents[stepName]
	if len(versions) == 0 {
		return nil
	}
	return versions[len(versions)-1]
}

// memoryEventRepository is the durable log backing the event log in tests.
type memoryEventRepository struct {
	mu     sync.Mutex
	events []*domain.Event
}

func (r *memoryEventRepository) Append(_ context.Context, event *domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *memoryEventRepository) List(context.Context, uuid.UUID) ([]*domain.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*domain.Event(nil), r.events...), nil
}

func (r *memoryEventRepository) byKind(kind string) []*domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Event
	for _, event := range r.events {
		if event.EventKind == kind {
			out = append(out, event)
		}
	}
	return out
}

// Provider fakes for the orchestrator.
type stubPaperSearcher struct {
	name    string
	records []domain.PaperRecord
}

func (s *stubPaperSearcher) Search(context.Context, string, int) ([]domain.PaperRecord, error) {
	return s.records, nil
}
func (s *stubPaperSearcher) Name() string    { return s.name }
func (s *stubPaperSearcher) IsEnabled() bool { return true }

type stubWebSearcher struct{}

func (s *stubWebSearcher) Search(_ context.Context, query string, _ int) ([]domain.WebHit, error) {
	return []domain.WebHit{{Title: "Hit for " + query, URL: "https://hits.example/" + query, Snippet: "snippet"}}, nil
}
func (s *stubWebSearcher) Name() string    { return "Tavily" }
func (s *stubWebSearcher) IsEnabled() bool { return true }

type scoutFixture struct {
	scout     *Scout
	generator *fakeGenerator
	runs      *memoryRunRepository
	artifacts *memoryArtifactRepository
	events    *memoryEventRepository
}

func newScoutFixture() *scoutFixture {
	generator := newFakeGenerator()
	runs := &memoryRunRepository{}
	artifacts := newMemoryArtifactRepository()
	events := &memoryEventRepository{}
	logger := zerolog.Nop()

	orchestrator := aggregate.New(
		&stubPaperSearcher{name: "OpenAlex", records: []domain.PaperRecord{
			{Title: "GNNs for Molecules", Authors: []string{"A. Author"}, Year: 2021, DOI: "10.1/a", URL: "https://example.org/a", CitationCount: 50},
			{Title: "Graph Learning Survey", Authors: []string{"B. Author"}, Year: 2020, CitationCount: 200},
		}},
		&stubPaperSearcher{name: "Semantic Scholar", records: []domain.PaperRecord{
			{Title: "GNNs for Molecules", DOI: "10.1/a", CitationCount: 55, Abstract: "An abstract."},
		}},
		nil,
		nil,
		&stubWebSearcher{},
		aggregate.Config{},
		logger,
	)

	log := eventlog.New(events, nil, nil, logger)
	return &scoutFixture{
		scout:     New(generator, orchestrator, runs, artifacts, log, nil, logger),
		generator: generator,
		runs:      runs,
		artifacts: artifacts,
		events:    events,
	}
}

var _ repository.RunRepository = (*memoryRunRepository)(nil)
var _ repository.ArtifactRepository = (*memoryArtifactRepository)(nil)
var _ repository.EventRepository = (*memoryEventRepository)(nil)

func testRequest() DiscoveryRequest {
	return DiscoveryRequest{
		Topic:         "Graph neural networks for molecule property prediction",
		Description:   "Benchmarking GNN architectures on molecular datasets",
		Keywords:      []string{"gnn", "molecules"},
		ApproachLabel: "Comparative Evaluation",
	}
}

func TestScout_Run(t *testing.T) {
	t.Run("happy path persists both artifacts and awaits feedback", func(t *testing.T) {
		f := newScoutFixture()
		runID := uuid.New()

		err := f.scout.Run(context.Background(), runID, testRequest())
		require.NoError(t, err)

		assert.Equal(t, []domain.RunStatus{domain.RunStatusRunning, domain.RunStatusAwaitingFeedback}, f.runs.statuses())
		assert.Equal(t, StepName, f.runs.step)

		var bundle domain.ResultBundle
		require.NoError(t, json.Unmarshal(f.artifacts.latest(ArtifactSources), &bundle))
		require.Len(t, bundle.Papers, 1)
		assert.Equal(t, "GNNs for Molecules", bundle.Papers[0].Title)
		assert.Equal(t, "OpenAlex + Semantic Scholar", bundle.Papers[0].Source)
		assert.Len(t, bundle.Datasets, 1)
		assert.Len(t, bundle.LearningResources, 1)
		assert.Len(t, bundle.Tools, 1)
		assert.Equal(t, []string{"openalex", "semanticscholar", "crossref", "unpaywall", "tavily"}, bundle.Metadata.Providers)
		assert.Equal(t, []string{"graph neural networks", "molecule property prediction"}, bundle.Metadata.SearchKeywords)

		var plan struct {
			EvidenceType string `json:"evidence_type"`
		}
		require.NoError(t, json.Unmarshal(f.artifacts.latest(ArtifactEvidencePlan), &plan))
		assert.Equal(t, "secondary", plan.EvidenceType)

		completes := f.events.byKind(domain.EventKindComplete)
		require.Len(t, completes, 1)
		assert.Empty(t, f.events.byKind(domain.EventKindError))
	})

	t.Run("keyword parse failure fails the run with one error event", func(t *testing.T) {
		f := newScoutFixture()
		f.generator.responses["research librarian"] = "I cannot help with that."
		runID := uuid.New()

		err := f.scout.Run(context.Background(), runID, testRequest())
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrUnparsableResponse)

		statuses := f.runs.statuses()
		assert.Equal(t, []domain.RunStatus{domain.RunStatusRunning, domain.RunStatusFailed}, statuses)
		assert.NotEmpty(t, f.runs.errMsg)

		errEvents := f.events.byKind(domain.EventKindError)
		require.Len(t, errEvents, 1)
		assert.Equal(t, "System", errEvents[0].SourceName)

		assert.Nil(t, f.artifacts.latest(ArtifactSources))
	})

	t.Run("ranking failure falls back to top papers with generic annotations", func(t *testing.T) {
		f := newScoutFixture()
		f.generator.errors["resource evaluator"] = errors.New("llm down")
		runID := uuid.New()

		err := f.scout.Run(context.Background(), runID, testRequest())
		require.NoError(t, err)

		var bundle domain.ResultBundle
		require.NoError(t, json.Unmarshal(f.artifacts.latest(ArtifactSources), &bundle))
		require.NotEmpty(t, bundle.Papers)
		for _, paper := range bundle.Papers {
			assert.Equal(t, "Found via academic database search", paper.WhyRelevant)
			assert.Equal(t, "unknown", paper.CredibilityNotes)
		}
		// Fallback preserves merged order: highest citations first.
		assert.Equal(t, "Graph Learning Survey", bundle.Papers[0].Title)

		assert.NotEmpty(t, f.events.byKind(domain.EventKindWarning))
		assert.Equal(t, []domain.RunStatus{domain.RunStatusRunning, domain.RunStatusAwaitingFeedback}, f.runs.statuses())
	})

	t.Run("dataset curation failure yields an empty category not raw hits", func(t *testing.T) {
		f := newScoutFixture()
		f.generator.errors["dataset curator"] = errors.New("llm down")
		runID := uuid.New()

		err := f.scout.Run(context.Background(), runID, testRequest())
		require.NoError(t, err)

		var bundle domain.ResultBundle
		require.NoError(t, json.Unmarshal(f.artifacts.latest(ArtifactSources), &bundle))
		assert.Empty(t, bundle.Datasets)
		assert.NotEmpty(t, bundle.LearningResources)
		assert.NotEmpty(t, bundle.Tools)
	})

	t.Run("evidence plan parse failure fails the run after the bundle persists", func(t *testing.T) {
		f := newScoutFixture()
		f.generator.responses["methodology advisor"] = "no json here"
		runID := uuid.New()

		err := f.scout.Run(context.Background(), runID, testRequest())
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrUnparsableResponse)

		// The sources bundle survived the failure; the plan did not.
		assert.NotNil(t, f.artifacts.latest(ArtifactSources))
		assert.Nil(t, f.artifacts.latest(ArtifactEvidencePlan))
		assert.Equal(t, []domain.RunStatus{domain.RunStatusRunning, domain.RunStatusFailed}, f.runs.statuses())
	})

	t.Run("claim failure aborts before any provider work", func(t *testing.T) {
		f := newScoutFixture()
		f.runs.updateErr = errors.New("db down")
		runID := uuid.New()

		err := f.scout.Run(context.Background(), runID, testRequest())
		require.Error(t, err)
		assert.Empty(t, f.generator.calls)
	})

	t.Run("records the generated keyword count", func(t *testing.T) {
		f := newScoutFixture()
		metrics := observability.NewMetrics("test_scout")
		f.scout.metrics = metrics
		runID := uuid.New()

		require.NoError(t, f.scout.Run(context.Background(), runID, testRequest()))

		// The fake librarian returns two keywords.
		assert.Equal(t, 2.0, testutil.ToFloat64(metrics.KeywordsGenerated))
	})

	t.Run("source labels reattach to ranked papers", func(t *testing.T) {
		f := newScoutFixture()
		runID := uuid.New()

		require.NoError(t, f.scout.Run(context.Background(), runID, testRequest()))

		var bundle domain.ResultBundle
		require.NoError(t, json.Unmarshal(f.artifacts.latest(ArtifactSources), &bundle))
		require.Len(t, bundle.Papers, 1)
		assert.Equal(t, "OpenAlex + Semantic Scholar", bundle.Papers[0].Source)
	})
}
