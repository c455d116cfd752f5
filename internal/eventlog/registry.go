// Package eventlog is the run event fan-out: every event is first made
// durable through the event repository, then broadcast to live
// subscribers. The durable log is the source of truth; the broadcast is
// best-effort delivery for connected streams.
package eventlog

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/researchgpt/evidence-service/internal/domain"
	"github.com/researchgpt/evidence-service/internal/observability"
)

// subscriberBufferSize is the per-subscriber channel capacity. A
// subscriber that falls this far behind starts losing events.
const subscriberBufferSize = 64

// Subscription is one live listener on a run's event stream.
type Subscription struct {
	id    uuid.UUID
	runID uuid.UUID
	ch    chan *domain.Event
}

// Events returns the subscription's receive channel. It is closed on
// Unsubscribe.
func (s *Subscription) Events() <-chan *domain.Event {
	return s.ch
}

// Registry tracks live subscribers per run. A single mutex makes
// subscribe, unsubscribe, and broadcast atomic relative to each other, so
// a subscriber present when Broadcast starts either receives the event or
// has it counted as dropped; it is never skipped silently.
type Registry struct {
	mu          sync.Mutex
	subscribers map[uuid.UUID]map[uuid.UUID]*Subscription
	metrics     *observability.Metrics
	logger      zerolog.Logger
}

// NewRegistry creates an empty subscriber registry. metrics may be nil.
func NewRegistry(metrics *observability.Metrics, logger zerolog.Logger) *Registry {
	return &Registry{
		subscribers: make(map[uuid.UUID]map[uuid.UUID]*Subscription),
		metrics:     metrics,
		logger:      logger,
	}
}

// Subscribe registers a new live listener for a run. The listener only
// sees events broadcast after this call returns.
func (r *Registry) Subscribe(runID uuid.UUID) *Subscription {
	sub := &Subscription{
		id:    uuid.New(),
		runID: runID,
		ch:    make(chan *domain.Event, subscriberBufferSize),
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.subscribers[runID] == nil {
		r.subscribers[runID] = make(map[uuid.UUID]*Subscription)
	}
	r.subscribers[runID][sub.id] = sub
	if r.metrics != nil {
		r.metrics.SubscriberAdded()
	}
	return sub
}

// Unsubscribe removes a listener and closes its channel. Safe to call
// more than once.
func (r *Registry) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	runSubs, ok := r.subscribers[sub.runID]
	if !ok {
		return
	}
	if _, ok := runSubs[sub.id]; !ok {
		return
	}
	delete(runSubs, sub.id)
	if len(runSubs) == 0 {
		delete(r.subscribers, sub.runID)
	}
	close(sub.ch)
	if r.metrics != nil {
		r.metrics.SubscriberRemoved()
	}
}

// Broadcast delivers an event to every live subscriber of its run. A full
// subscriber channel drops the event for that subscriber with a warning;
// Broadcast never blocks.
func (r *Registry) Broadcast(event *domain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, sub := range r.subscribers[event.RunID] {
		select {
		case sub.ch <- event:
		default:
			if r.metrics != nil {
				r.metrics.RecordBroadcastDropped()
			}
			r.logger.Warn().
				Str("run_id", event.RunID.String()).
				Str("event_kind", event.EventKind).
				Msg("subscriber channel full, dropping event")
		}
	}
}

// CloseAll removes every subscriber and closes their channels. Used on
// shutdown so streaming handlers unblock.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for runID, runSubs := range r.subscribers {
		for _, sub := range runSubs {
			close(sub.ch)
			if r.metrics != nil {
				r.metrics.SubscriberRemoved()
			}
		}
		delete(r.subscribers, runID)
	}
}

// SubscriberCount returns the number of live subscribers for a run.
func (r *Registry) SubscriberCount(runID uuid.UUID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subscribers[runID])
}
