package httpserver

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/researchgpt/evidence-service/internal/domain"
	"github.com/researchgpt/evidence-service/internal/eventlog"
	"github.com/researchgpt/evidence-service/internal/repository"
	"github.com/researchgpt/evidence-service/internal/scout"
)

// memoryRunRepository is an in-memory RunRepository for handler tests.
type memoryRunRepository struct {
	mu   sync.Mutex
	runs map[uuid.UUID]*domain.Run
}

func newMemoryRunRepository() *memoryRunRepository {
	return &memoryRunRepository{runs: make(map[uuid.UUID]*domain.Run)}
}

func (r *memoryRunRepository) Create(_ context.Context, run *domain.Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.runs[run.ID]; ok {
		return domain.NewAlreadyExistsError("run", run.ID.String())
	}
	copied := *run
	r.runs[run.ID] = &copied
	return nil
}

func (r *memoryRunRepository) Get(_ context.Context, id uuid.UUID) (*domain.Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[id]
	if !ok {
		return nil, domain.NewNotFoundError("run", id.String())
	}
	copied := *run
	return &copied, nil
}

func (r *memoryRunRepository) List(_ context.Context, limit, offset int) ([]*domain.Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := make([]*domain.Run, 0, len(r.runs))
	for _, run := range r.runs {
		copied := *run
		all = append(all, &copied)
	}
	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (r *memoryRunRepository) UpdateState(_ context.Context, id uuid.UUID, step string, status domain.RunStatus, errorMessage string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[id]
	if !ok {
		return domain.NewNotFoundError("run", id.String())
	}
	run.Step = step
	run.Status = status
	run.ErrorMessage = errorMessage
	run.UpdatedAt = time.Now().UTC()
	return nil
}

// memoryArtifactRepository is an in-memory ArtifactRepository.
type memoryArtifactRepository struct {
	mu       sync.Mutex
	versions map[uuid.UUID]map[string][]*domain.Artifact
}

func newMemoryArtifactRepository() *memoryArtifactRepository {
	return &memoryArtifactRepository{versions: make(map[uuid.UUID]map[string][]*domain.Artifact)}
}

func (r *memoryArtifactRepository) Put(_ context.Context, runID uuid.UUID, stepName string, content []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.versions[runID] == nil {
		r.versions[runID] = make(map[string][]*domain.Artifact)
	}
	version := len(r.versions[runID][stepName]) + 1
	r.versions[runID][stepName] = append(r.versions[runID][stepName], &domain.Artifact{
		ID:        uuid.New(),
		RunID:     runID,
		StepName:  stepName,
		Version:   version,
		Content:   append(json.RawMessage(nil), content...),
		CreatedAt: time.Now().UTC(),
	})
	return version, nil
}

func (r *memoryArtifactRepository) GetLatest(_ context.Context, runID uuid.UUID, stepName string) (*domain.Artifact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	versions := r.versions[runID][stepName]
	if len(versions) == 0 {
		return nil, domain.NewNotFoundError("artifact", stepName)
	}
	return versions[len(versions)-1], nil
}

func (r *memoryArtifactRepository) ListLatest(_ context.Context, runID uuid.UUID) (map[string]*domain.Artifact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	latest := make(map[string]*domain.Artifact)
	for stepName, versions := range r.versions[runID] {
		latest[stepName] = versions[len(versions)-1]
	}
	return latest, nil
}

// memoryEventRepository is an in-memory EventRepository.
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

func (r *memoryEventRepository) List(_ context.Context, runID uuid.UUID) ([]*domain.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Event
	for _, event := range r.events {
		if event.RunID == runID {
			out = append(out, event)
		}
	}
	return out, nil
}

// fakeJobDriver records discovery starts.
type fakeJobDriver struct {
	started chan scout.DiscoveryRequest
}

func (d *fakeJobDriver) Run(_ context.Context, _ uuid.UUID, req scout.DiscoveryRequest) error {
	d.started <- req
	return nil
}

type serverFixture struct {
	server    *Server
	runs      *memoryRunRepository
	artifacts *memoryArtifactRepository
	events    *memoryEventRepository
	eventLog  *eventlog.Log
	driver    *fakeJobDriver
}

func newServerFixture() *serverFixture {
	logger := zerolog.Nop()
	runs := newMemoryRunRepository()
	artifacts := newMemoryArtifactRepository()
	events := &memoryEventRepository{}
	log := eventlog.New(events, nil, nil, logger)
	driver := &fakeJobDriver{started: make(chan scout.DiscoveryRequest, 1)}

	server := NewServer(Config{Address: ":0"}, runs, artifacts, log, driver, nil, logger)
	return &serverFixture{
		server:    server,
		runs:      runs,
		artifacts: artifacts,
		events:    events,
		eventLog:  log,
		driver:    driver,
	}
}

var _ repository.RunRepository = (*memoryRunRepository)(nil)
var _ repository.ArtifactRepository = (*memoryArtifactRepository)(nil)
var _ repository.EventRepository = (*memoryEventRepository)(nil)

func (f *serverFixture) request(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	f.server.Router().ServeHTTP(rec, req)
	return rec
}

func (f *serverFixture) seedRun(t *testing.T, status domain.RunStatus) *domain.Run {
	t.Helper()
	run := domain.NewRun("Graph neural networks for molecules")
	run.Status = status
	require.NoError(t, f.runs.Create(context.Background(), run))
	return run
}

func TestCreateRun(t *testing.T) {
	t.Run("creates a run", func(t *testing.T) {
		f := newServerFixture()
		rec := f.request(t, http.MethodPost, "/api/v1/runs", map[string]string{"topic": "Graph neural networks"})
		require.Equal(t, http.StatusCreated, rec.Code)

		var resp runResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "Graph neural networks", resp.Topic)
		assert.Equal(t, "created", resp.Step)
		assert.Equal(t, string(domain.RunStatusAwaitingFeedback), resp.Status)
		assert.NotEmpty(t, resp.RunID)
	})

	t.Run("rejects a short topic", func(t *testing.T) {
		f := newServerFixture()
		rec := f.request(t, http.MethodPost, "/api/v1/runs", map[string]string{"topic": "ab"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rejects malformed JSON", func(t *testing.T) {
		f := newServerFixture()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/runs", strings.NewReader("{not json"))
		rec := httptest.NewRecorder()
		f.server.Router().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestGetRun(t *testing.T) {
	t.Run("returns the run", func(t *testing.T) {
		f := newServerFixture()
		run := f.seedRun(t, domain.RunStatusAwaitingFeedback)

		rec := f.request(t, http.MethodGet, "/api/v1/runs/"+run.ID.String(), nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp runResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, run.ID.String(), resp.RunID)
	})

	t.Run("unknown run is 404", func(t *testing.T) {
		f := newServerFixture()
		rec := f.request(t, http.MethodGet, "/api/v1/runs/"+uuid.NewString(), nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("invalid UUID is 400", func(t *testing.T) {
		f := newServerFixture()
		rec := f.request(t, http.MethodGet, "/api/v1/runs/not-a-uuid", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestStartDiscovery(t *testing.T) {
	discoverBody := map[string]interface{}{
		"topic":          "Graph neural networks for molecules",
		"keywords":       []string{"gnn"},
		"approach_label": "Comparative Evaluation",
	}

	t.Run("accepts and starts the job in the background", func(t *testing.T) {
		f := newServerFixture()
		run := f.seedRun(t, domain.RunStatusAwaitingFeedback)

		rec := f.request(t, http.MethodPost, "/api/v1/runs/"+run.ID.String()+"/discover", discoverBody)
		require.Equal(t, http.StatusAccepted, rec.Code)

		var resp discoverResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, run.ID.String(), resp.RunID)
		assert.Equal(t, scout.StepName, resp.Step)

		select {
		case req := <-f.driver.started:
			assert.Equal(t, "Graph neural networks for molecules", req.Topic)
			assert.Equal(t, []string{"gnn"}, req.Keywords)
		case <-time.After(time.Second):
			t.Fatal("job driver was not invoked")
		}
	})

	t.Run("rejects malformed input before any background work", func(t *testing.T) {
		f := newServerFixture()
		run := f.seedRun(t, domain.RunStatusAwaitingFeedback)

		rec := f.request(t, http.MethodPost, "/api/v1/runs/"+run.ID.String()+"/discover", map[string]string{})
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		select {
		case <-f.driver.started:
			t.Fatal("job driver must not run on invalid input")
		case <-time.After(50 * time.Millisecond):
		}
	})

	t.Run("conflicts while a job is running", func(t *testing.T) {
		f := newServerFixture()
		run := f.seedRun(t, domain.RunStatusRunning)

		rec := f.request(t, http.MethodPost, "/api/v1/runs/"+run.ID.String()+"/discover", discoverBody)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("unknown run is 404", func(t *testing.T) {
		f := newServerFixture()
		rec := f.request(t, http.MethodPost, "/api/v1/runs/"+uuid.NewString()+"/discover", discoverBody)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestListEvents(t *testing.T) {
	f := newServerFixture()
	run := f.seedRun(t, domain.RunStatusAwaitingFeedback)

	ctx := context.Background()
	f.eventLog.Emit(ctx, run.ID, "SourceScout", domain.EventKindStart, domain.MessagePayload{Message: "one"})
	f.eventLog.Emit(ctx, run.ID, "SourceScout", domain.EventKindSearching, domain.MessagePayload{Message: "two"})

	rec := f.request(t, http.MethodGet, "/api/v1/runs/"+run.ID.String()+"/events", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp listEventsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 2, resp.TotalCount)
	assert.Equal(t, domain.EventKindStart, resp.Events[0].EventKind)
	assert.Equal(t, domain.EventKindSearching, resp.Events[1].EventKind)
}

func TestArtifacts(t *testing.T) {
	t.Run("put assigns contiguous versions", func(t *testing.T) {
		f := newServerFixture()
		run := f.seedRun(t, domain.RunStatusAwaitingFeedback)
		path := "/api/v1/runs/" + run.ID.String() + "/artifacts"
		body := map[string]interface{}{"step_name": "notes", "content": map[string]string{"k": "v"}}

		rec := f.request(t, http.MethodPost, path, body)
		require.Equal(t, http.StatusCreated, rec.Code)
		var first putArtifactResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &first))
		assert.Equal(t, 1, first.Version)

		rec = f.request(t, http.MethodPost, path, body)
		require.Equal(t, http.StatusCreated, rec.Code)
		var second putArtifactResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &second))
		assert.Equal(t, 2, second.Version)
	})

	t.Run("put without step_name is 400", func(t *testing.T) {
		f := newServerFixture()
		run := f.seedRun(t, domain.RunStatusAwaitingFeedback)
		rec := f.request(t, http.MethodPost, "/api/v1/runs/"+run.ID.String()+"/artifacts",
			map[string]interface{}{"content": map[string]string{"k": "v"}})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("get with step_name returns the latest version", func(t *testing.T) {
		f := newServerFixture()
		run := f.seedRun(t, domain.RunStatusAwaitingFeedback)
		_, err := f.artifacts.Put(context.Background(), run.ID, "notes", []byte(`{"v":1}`))
		require.NoError(t, err)
		_, err = f.artifacts.Put(context.Background(), run.ID, "notes", []byte(`{"v":2}`))
		require.NoError(t, err)

		rec := f.request(t, http.MethodGet, "/api/v1/runs/"+run.ID.String()+"/artifacts?step_name=notes", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp artifactResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, 2, resp.Version)
		assert.JSONEq(t, `{"v":2}`, string(resp.Content))
	})

	t.Run("get for a missing step is 404", func(t *testing.T) {
		f := newServerFixture()
		run := f.seedRun(t, domain.RunStatusAwaitingFeedback)
		rec := f.request(t, http.MethodGet, "/api/v1/runs/"+run.ID.String()+"/artifacts?step_name=missing", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("list returns latest per step", func(t *testing.T) {
		f := newServerFixture()
		run := f.seedRun(t, domain.RunStatusAwaitingFeedback)
		_, err := f.artifacts.Put(context.Background(), run.ID, "a", []byte(`{"v":1}`))
		require.NoError(t, err)
		_, err = f.artifacts.Put(context.Background(), run.ID, "b", []byte(`{"v":1}`))
		require.NoError(t, err)

		rec := f.request(t, http.MethodGet, "/api/v1/runs/"+run.ID.String()+"/artifacts", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp listArtifactsResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Len(t, resp.Artifacts, 2)
	})
}

func TestStreamEvents(t *testing.T) {
	f := newServerFixture()
	run := f.seedRun(t, domain.RunStatusRunning)

	ts := httptest.NewServer(f.server.Router())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/v1/runs/"+run.ID.String()+"/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	readFrame := func() (string, string) {
		var eventType, data string
		for {
			line, readErr := reader.ReadString('\n')
			require.NoError(t, readErr)
			line = strings.TrimRight(line, "\n")
			switch {
			case strings.HasPrefix(line, "event: "):
				eventType = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				data = strings.TrimPrefix(line, "data: ")
			case line == "":
				return eventType, data
			}
		}
	}

	eventType, _ := readFrame()
	assert.Equal(t, "stream_started", eventType)

	// The stream_started frame is sent after Subscribe, so the subscriber
	// is registered by now.
	f.eventLog.Emit(context.Background(), run.ID, "SourceScout", domain.EventKindThinking,
		domain.MessagePayload{Message: "working"})

	eventType, data := readFrame()
	assert.Equal(t, domain.EventKindThinking, eventType)

	var event domain.Event
	require.NoError(t, json.Unmarshal([]byte(data), &event))
	assert.Equal(t, run.ID, event.RunID)

	// A terminal event closes the stream.
	f.eventLog.Emit(context.Background(), run.ID, "SourceScout", domain.EventKindComplete,
		domain.MessagePayload{Message: "done"})
	eventType, _ = readFrame()
	assert.Equal(t, domain.EventKindComplete, eventType)

	_, readErr := reader.ReadString('\n')
	assert.Error(t, readErr)
}

func TestStreamEvents_Heartbeat(t *testing.T) {
	logger := zerolog.Nop()
	runs := newMemoryRunRepository()
	artifacts := newMemoryArtifactRepository()
	log := eventlog.New(&memoryEventRepository{}, nil, nil, logger)
	driver := &fakeJobDriver{started: make(chan scout.DiscoveryRequest, 1)}

	server := NewServer(
		Config{Address: ":0", HeartbeatInterval: 25 * time.Millisecond},
		runs, artifacts, log, driver, nil, logger,
	)
	f := &serverFixture{server: server, runs: runs, artifacts: artifacts, eventLog: log, driver: driver}
	run := f.seedRun(t, domain.RunStatusRunning)

	ts := httptest.NewServer(server.Router())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/v1/runs/"+run.ID.String()+"/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// An idle stream receives comment frames at the configured interval.
	reader := bufio.NewReader(resp.Body)
	for {
		line, readErr := reader.ReadString('\n')
		require.NoError(t, readErr)
		if strings.TrimRight(line, "\n") == ": heartbeat" {
			break
		}
	}
}

func TestPaginationTokens(t *testing.T) {
	f := newServerFixture()
	for i := 0; i < 3; i++ {
		f.seedRun(t, domain.RunStatusAwaitingFeedback)
	}

	rec := f.request(t, http.MethodGet, "/api/v1/runs?page_size=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var first listRunsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &first))
	require.Len(t, first.Runs, 2)
	require.NotEmpty(t, first.NextPageToken)

	rec = f.request(t, http.MethodGet, fmt.Sprintf("/api/v1/runs?page_size=2&page_token=%s", first.NextPageToken), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var second listRunsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &second))
	assert.Len(t, second.Runs, 1)
	assert.Empty(t, second.NextPageToken)
}
