package eventlog

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/researchgpt/evidence-service/internal/domain"
	"github.com/researchgpt/evidence-service/internal/observability"
)

// memoryEventRepository is an in-memory EventRepository for tests.
type memoryEventRepository struct {
	mu     sync.Mutex
	events map[uuid.UUID][]*domain.Event
	fail   bool
}

func newMemoryEventRepository() *memoryEventRepository {
	return &memoryEventRepository{events: make(map[uuid.UUID][]*domain.Event)}
}

func (m *memoryEventRepository) Append(_ context.Context, event *domain.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("connection refused")
	}
	m.events[event.RunID] = append(m.events[event.RunID], event)
	return nil
}

func (m *memoryEventRepository) List(_ context.Context, runID uuid.UUID) ([]*domain.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*domain.Event(nil), m.events[runID]...), nil
}

type recordingMirror struct {
	mu     sync.Mutex
	events []*domain.Event
	err    error
}

func (r *recordingMirror) Publish(_ context.Context, event *domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, event)
	return nil
}

func mustEvent(t *testing.T, runID uuid.UUID, kind, message string) *domain.Event {
	t.Helper()
	event, err := domain.NewEvent(runID, "SourceScout", kind, domain.MessagePayload{Message: message})
	require.NoError(t, err)
	return event
}

func receiveEvent(t *testing.T, sub *Subscription) *domain.Event {
	t.Helper()
	select {
	case event := <-sub.Events():
		return event
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func TestLog_Append(t *testing.T) {
	logger := zerolog.Nop()

	t.Run("persists then broadcasts", func(t *testing.T) {
		repo := newMemoryEventRepository()
		log := New(repo, nil, nil, logger)
		runID := uuid.New()

		sub := log.Subscribe(runID)
		defer log.Unsubscribe(sub)

		log.Append(context.Background(), mustEvent(t, runID, domain.EventKindStart, "starting"))

		received := receiveEvent(t, sub)
		assert.Equal(t, domain.EventKindStart, received.EventKind)

		stored, err := log.List(context.Background(), runID)
		require.NoError(t, err)
		require.Len(t, stored, 1)
		assert.Equal(t, received.ID, stored[0].ID)
	})

	t.Run("broadcasts even when persistence fails", func(t *testing.T) {
		repo := newMemoryEventRepository()
		repo.fail = true
		log := New(repo, nil, nil, logger)
		runID := uuid.New()

		sub := log.Subscribe(runID)
		defer log.Unsubscribe(sub)

		log.Append(context.Background(), mustEvent(t, runID, domain.EventKindThinking, "thinking"))

		received := receiveEvent(t, sub)
		assert.Equal(t, domain.EventKindThinking, received.EventKind)

		stored, err := log.List(context.Background(), runID)
		require.NoError(t, err)
		assert.Empty(t, stored)
	})

	t.Run("late subscribers see only subsequent events", func(t *testing.T) {
		repo := newMemoryEventRepository()
		log := New(repo, nil, nil, logger)
		runID := uuid.New()

		log.Append(context.Background(), mustEvent(t, runID, domain.EventKindStart, "e1"))

		sub := log.Subscribe(runID)
		defer log.Unsubscribe(sub)

		log.Append(context.Background(), mustEvent(t, runID, domain.EventKindSearching, "e2"))
		log.Append(context.Background(), mustEvent(t, runID, domain.EventKindComplete, "e3"))

		assert.Equal(t, domain.EventKindSearching, receiveEvent(t, sub).EventKind)
		assert.Equal(t, domain.EventKindComplete, receiveEvent(t, sub).EventKind)
		select {
		case extra := <-sub.Events():
			t.Fatalf("unexpected extra event: %s", extra.EventKind)
		default:
		}

		// The durable log still holds all three.
		stored, err := log.List(context.Background(), runID)
		require.NoError(t, err)
		assert.Len(t, stored, 3)
	})

	t.Run("mirrors events best effort", func(t *testing.T) {
		repo := newMemoryEventRepository()
		mirror := &recordingMirror{}
		log := New(repo, mirror, nil, logger)
		runID := uuid.New()

		log.Append(context.Background(), mustEvent(t, runID, domain.EventKindStart, "starting"))
		require.Len(t, mirror.events, 1)
	})

	t.Run("mirror failure does not block persistence or broadcast", func(t *testing.T) {
		repo := newMemoryEventRepository()
		mirror := &recordingMirror{err: errors.New("broker down")}
		log := New(repo, mirror, nil, logger)
		runID := uuid.New()

		sub := log.Subscribe(runID)
		defer log.Unsubscribe(sub)

		log.Append(context.Background(), mustEvent(t, runID, domain.EventKindStart, "starting"))
		assert.NotNil(t, receiveEvent(t, sub))

		stored, err := log.List(context.Background(), runID)
		require.NoError(t, err)
		assert.Len(t, stored, 1)
	})
}

func TestLog_Emit(t *testing.T) {
	repo := newMemoryEventRepository()
	log := New(repo, nil, nil, zerolog.Nop())
	runID := uuid.New()

	log.Emit(context.Background(), runID, "SourceScout", domain.EventKindThinking,
		domain.MessagePayload{Message: "Generated 7 search keywords"})

	stored, err := log.List(context.Background(), runID)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "SourceScout", stored[0].SourceName)
	assert.JSONEq(t, `{"message":"Generated 7 search keywords"}`, string(stored[0].Payload))
}

func TestRegistry(t *testing.T) {
	logger := zerolog.Nop()

	t.Run("full subscriber channel drops events without blocking", func(t *testing.T) {
		registry := NewRegistry(nil, logger)
		runID := uuid.New()
		sub := registry.Subscribe(runID)

		for i := 0; i < subscriberBufferSize+10; i++ {
			event, err := domain.NewEvent(runID, "SourceScout", domain.EventKindSearching, nil)
			require.NoError(t, err)

			done := make(chan struct{})
			go func() {
				registry.Broadcast(event)
				close(done)
			}()
			select {
			case <-done:
			case <-time.After(time.Second):
				t.Fatal("broadcast blocked on a full subscriber channel")
			}
		}

		assert.Len(t, sub.ch, subscriberBufferSize)
	})

	t.Run("broadcast reaches only the event's run", func(t *testing.T) {
		registry := NewRegistry(nil, logger)
		runA := uuid.New()
		runB := uuid.New()
		subA := registry.Subscribe(runA)
		subB := registry.Subscribe(runB)

		event, err := domain.NewEvent(runA, "SourceScout", domain.EventKindStart, nil)
		require.NoError(t, err)
		registry.Broadcast(event)

		assert.Len(t, subA.ch, 1)
		assert.Empty(t, subB.ch)
	})

	t.Run("unsubscribe closes the channel and is idempotent", func(t *testing.T) {
		registry := NewRegistry(nil, logger)
		runID := uuid.New()
		sub := registry.Subscribe(runID)

		registry.Unsubscribe(sub)
		registry.Unsubscribe(sub)

		_, open := <-sub.Events()
		assert.False(t, open)
		assert.Zero(t, registry.SubscriberCount(runID))
	})
}

func TestLog_Metrics(t *testing.T) {
	metrics := observability.NewMetrics("test_eventlog")
	repo := newMemoryEventRepository()
	log := New(repo, nil, metrics, zerolog.Nop())
	runID := uuid.New()

	sub := log.Subscribe(runID)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ActiveSubscribers))

	log.Append(context.Background(), mustEvent(t, runID, domain.EventKindStart, "starting"))
	receiveEvent(t, sub)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.EventsAppended.WithLabelValues(domain.EventKindStart)))
	assert.Zero(t, testutil.ToFloat64(metrics.EventAppendFailures))

	repo.fail = true
	log.Append(context.Background(), mustEvent(t, runID, domain.EventKindThinking, "thinking"))
	receiveEvent(t, sub)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.EventAppendFailures))

	log.Unsubscribe(sub)
	assert.Zero(t, testutil.ToFloat64(metrics.ActiveSubscribers))
}

func TestRegistry_Metrics(t *testing.T) {
	metrics := observability.NewMetrics("test_eventlog_registry")
	registry := NewRegistry(metrics, zerolog.Nop())
	runID := uuid.New()
	registry.Subscribe(runID)

	const overflow = 3
	for i := 0; i < subscriberBufferSize+overflow; i++ {
		event, err := domain.NewEvent(runID, "SourceScout", domain.EventKindSearching, nil)
		require.NoError(t, err)
		registry.Broadcast(event)
	}
	assert.Equal(t, float64(overflow), testutil.ToFloat64(metrics.EventBroadcastsDropped))

	registry.CloseAll()
	assert.Zero(t, testutil.ToFloat64(metrics.ActiveSubscribers))
}
