package eventlog

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/researchgpt/evidence-service/internal/domain"
	"github.com/researchgpt/evidence-service/internal/observability"
	"github.com/researchgpt/evidence-service/internal/repository"
)

// Mirror receives a best-effort copy of every appended event, typically
// for an external message bus. Implementations must not block Append for
// long; errors are logged and otherwise ignored.
type Mirror interface {
	Publish(ctx context.Context, event *domain.Event) error
}

// Log is the per-run event log: durable persistence first, then live
// broadcast, then an optional mirror. The durable log is the source of
// truth; the other two destinations are best-effort.
type Log struct {
	events   repository.EventRepository
	registry *Registry
	mirror   Mirror
	metrics  *observability.Metrics
	logger   zerolog.Logger
}

// New creates an event log over the given repository. mirror and metrics
// may be nil.
func New(events repository.EventRepository, mirror Mirror, metrics *observability.Metrics, logger zerolog.Logger) *Log {
	return &Log{
		events:   events,
		registry: NewRegistry(metrics, logger),
		mirror:   mirror,
		metrics:  metrics,
		logger:   logger,
	}
}

// Append persists the event and broadcasts it to live subscribers. When
// persistence fails the event is still broadcast so live progress is not
// lost; the failure is logged and the durable log permanently lacks the
// event. Append itself never fails the caller.
func (l *Log) Append(ctx context.Context, event *domain.Event) {
	if err := l.events.Append(ctx, event); err != nil {
		if l.metrics != nil {
			l.metrics.RecordEventAppendFailed()
		}
		l.logger.Warn().Err(err).
			Str("run_id", event.RunID.String()).
			Str("event_kind", event.EventKind).
			Msg("event persistence failed, broadcasting anyway")
	} else if l.metrics != nil {
		l.metrics.RecordEventAppended(event.EventKind)
	}

	l.registry.Broadcast(event)

	if l.mirror != nil {
		if err := l.mirror.Publish(ctx, event); err != nil {
			l.logger.Warn().Err(err).
				Str("run_id", event.RunID.String()).
				Msg("event mirror publish failed")
		}
	}
}

// Emit builds an event from a payload and appends it. Payloads that fail
// to serialize are logged and skipped.
func (l *Log) Emit(ctx context.Context, runID uuid.UUID, sourceName, eventKind string, payload interface{}) {
	event, err := domain.NewEvent(runID, sourceName, eventKind, payload)
	if err != nil {
		l.logger.Error().Err(err).
			Str("run_id", runID.String()).
			Str("event_kind", eventKind).
			Msg("failed to serialize event payload")
		return
	}
	l.Append(ctx, event)
}

// List returns the durable log for a run, ascending by insertion order.
func (l *Log) List(ctx context.Context, runID uuid.UUID) ([]*domain.Event, error) {
	return l.events.List(ctx, runID)
}

// Subscribe registers a live listener for a run. The listener sees only
// events appended after this call; callers wanting full history should
// fetch List first and tolerate the small window between the two.
func (l *Log) Subscribe(runID uuid.UUID) *Subscription {
	return l.registry.Subscribe(runID)
}

// Unsubscribe removes a live listener.
func (l *Log) Unsubscribe(sub *Subscription) {
	l.registry.Unsubscribe(sub)
}

// Close disconnects every live listener. Called on shutdown; the durable
// log is unaffected.
func (l *Log) Close() {
	l.registry.CloseAll()
}
