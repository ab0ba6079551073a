package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	AlertCreated        Kind = "alert.created"
	AlertResolved       Kind = "alert.resolved"
	AlertDismissed      Kind = "alert.dismissed"
	AlertRead           Kind = "alert.read"
	DevicePhaseSet      Kind = "device.phase_set"
	DeviceModeToggled   Kind = "device.mode_toggled"
	DeviceStatusChanged Kind = "device.status_changed"
	DevicePhaseObserved Kind = "device.phase_observed"
	DiagnosticStarted   Kind = "diagnostic.started"
	DiagnosticCompleted Kind = "diagnostic.completed"
	DiagnosticCancelled Kind = "diagnostic.cancelled"
	BroadcastSent       Kind = "broadcast.sent"
)

const (
	EntityAlert        = "alert"
	EntityTrafficLight = "traffic_light"
	EntityDiagnostic   = "diagnostic"
	EntityBroadcast    = "broadcast"
)

// Event is one entry of the append-only change log.
type Event struct {
	ID       string         `json:"id"`
	At       time.Time      `json:"at"`
	Kind     Kind           `json:"kind"`
	Entity   string         `json:"entity"`
	EntityID string         `json:"entity_id"`
	Actor    string         `json:"actor"`
	Data     map[string]any `json:"data,omitempty"`
}

// Sink receives change events. Implementations must not block for long.
type Sink interface {
	Publish(ctx context.Context, e Event)
}

type SinkFunc func(ctx context.Context, e Event)

func (f SinkFunc) Publish(ctx context.Context, e Event) { f(ctx, e) }

// Discard drops every event.
var Discard Sink = SinkFunc(func(context.Context, Event) {})

// New stamps an event with id, time and the actor carried by ctx.
func New(ctx context.Context, at time.Time, kind Kind, entity, entityID string, data map[string]any) Event {
	return Event{
		ID:       uuid.NewString(),
		At:       at.UTC(),
		Kind:     kind,
		Entity:   entity,
		EntityID: entityID,
		Actor:    ActorFrom(ctx),
		Data:     data,
	}
}

type actorKey struct{}

const SystemActor = "system"

func WithActor(ctx context.Context, actor string) context.Context {
	if actor == "" {
		return ctx
	}
	return context.WithValue(ctx, actorKey{}, actor)
}

func ActorFrom(ctx context.Context) string {
	if v, ok := ctx.Value(actorKey{}).(string); ok && v != "" {
		return v
	}
	return SystemActor
}

// Multi fans one event out to several sinks in order.
type Multi []Sink

func (m Multi) Publish(ctx context.Context, e Event) {
	for _, s := range m {
		s.Publish(ctx, e)
	}
}

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

func (r *Recorder) Kinds() []Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Kind, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Kind)
	}
	return out
}

// Bus decouples publishers from slow sinks. Publish enqueues, Run drains.
type Bus struct {
	ch    chan Event
	sinks Multi
	log   *slog.Logger
	done  chan struct{}
}

func NewBus(buffer int, logger *slog.Logger, sinks ...Sink) *Bus {
	if buffer <= 0 {
		buffer = 256
	}
	return &Bus{ch: make(chan Event, buffer), sinks: sinks, log: logger, done: make(chan struct{})}
}

// Publish blocks only while the buffer is full and ctx is alive.
func (b *Bus) Publish(ctx context.Context, e Event) {
	select {
	case b.ch <- e:
	case <-ctx.Done():
		b.log.Warn("event dropped", "kind", e.Kind, "entity_id", e.EntityID, "err", ctx.Err())
	}
}

// Run delivers queued events until ctx is cancelled, then drains what is left.
func (b *Bus) Run(ctx context.Context) {
	defer close(b.done)
	for {
		select {
		case e := <-b.ch:
			b.sinks.Publish(context.WithoutCancel(ctx), e)
		case <-ctx.Done():
			for {
				select {
				case e := <-b.ch:
					b.sinks.Publish(context.WithoutCancel(ctx), e)
				default:
					return
				}
			}
		}
	}
}

// Done is closed once Run has returned.
func (b *Bus) Done() <-chan struct{} { return b.done }

// Filter narrows an audit query. Zero fields match everything.
type Filter struct {
	Entity   string
	EntityID string
	Kind     Kind
	Since    time.Time
	Limit    int
}

func (f Filter) Match(e Event) bool {
	if f.Entity != "" && e.Entity != f.Entity {
		return false
	}
	if f.EntityID != "" && e.EntityID != f.EntityID {
		return false
	}
	if f.Kind != "" && e.Kind != f.Kind {
		return false
	}
	if !f.Since.IsZero() && e.At.Before(f.Since) {
		return false
	}
	return true
}

// Appender is the write side of the audit log.
type Appender interface {
	AppendEvent(ctx context.Context, e Event) error
}

// Log persists every event it receives. Failures are logged, not returned.
func Log(store Appender, logger *slog.Logger) Sink {
	return SinkFunc(func(ctx context.Context, e Event) {
		if err := store.AppendEvent(ctx, e); err != nil {
			logger.Error("append audit event", "kind", e.Kind, "entity_id", e.EntityID, "err", err)
		}
	})
}
