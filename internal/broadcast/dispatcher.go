package broadcast

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"edgegrid/internal/events"
	"edgegrid/internal/models"
)

const (
	MaxBodyLength       = 500
	MinDurationMinutes  = 5
	MaxDurationMinutes  = 120
	DefaultHistoryLimit = 20
	MaxHistoryLimit     = 500
)

// Store is the append-only message log.
type Store interface {
	InsertBroadcast(ctx context.Context, m models.BroadcastMessage) error
	GetBroadcast(ctx context.Context, id string) (models.BroadcastMessage, error)
	RecentBroadcasts(ctx context.Context, limit int) ([]models.BroadcastMessage, error)
}

// Dispatcher accepts and records emergency messages. Delivery to the physical
// channels happens downstream of the broadcast.sent event.
type Dispatcher struct {
	store  Store
	events events.Sink
	log    *slog.Logger
	now    func() time.Time
}

func NewDispatcher(store Store, sink events.Sink, logger *slog.Logger) *Dispatcher {
	if sink == nil {
		sink = events.Discard
	}
	return &Dispatcher{store: store, events: sink, log: logger, now: time.Now}
}

func (d *Dispatcher) Send(ctx context.Context, body string, channels []models.Channel, priority models.Priority, durationMinutes int) (models.BroadcastMessage, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return models.BroadcastMessage{}, models.ErrEmptyMessage
	}
	if n := utf8.RuneCountInString(body); n > MaxBodyLength {
		return models.BroadcastMessage{}, fmt.Errorf("%d characters, limit %d: %w", n, MaxBodyLength, models.ErrMessageTooLong)
	}
	if err := ValidateChannels(channels); err != nil {
		return models.BroadcastMessage{}, err
	}
	if !priority.Valid() {
		return models.BroadcastMessage{}, fmt.Errorf("priority %q: %w", priority, models.ErrInvalidPriority)
	}
	if durationMinutes < MinDurationMinutes || durationMinutes > MaxDurationMinutes {
		return models.BroadcastMessage{}, fmt.Errorf("%d minutes, want %d..%d: %w",
			durationMinutes, MinDurationMinutes, MaxDurationMinutes, models.ErrInvalidDuration)
	}

	m := models.BroadcastMessage{
		ID:              uuid.NewString(),
		Body:            body,
		Channels:        append([]models.Channel(nil), channels...),
		Priority:        priority,
		DurationMinutes: durationMinutes,
		CreatedAt:       d.now().UTC(),
		Status:          models.BroadcastSent,
	}
	if err := d.store.InsertBroadcast(ctx, m); err != nil {
		return models.BroadcastMessage{}, err
	}
	d.log.Info("broadcast sent", "id", m.ID, "priority", priority, "channels", channels, "actor", events.ActorFrom(ctx))
	d.events.Publish(ctx, events.New(ctx, m.CreatedAt, events.BroadcastSent, events.EntityBroadcast, m.ID, map[string]any{
		"body":             m.Body,
		"channels":         m.Channels,
		"priority":         m.Priority,
		"duration_minutes": m.DurationMinutes,
	}))
	return m, nil
}

// ValidateChannels requires a non-empty set of known, distinct channels in
// which "all" appears only alone.
func ValidateChannels(channels []models.Channel) error {
	if len(channels) == 0 {
		return fmt.Errorf("no channel selected: %w", models.ErrInvalidChannelSet)
	}
	seen := make(map[models.Channel]bool, len(channels))
	for _, c := range channels {
		if !c.Valid() {
			return fmt.Errorf("channel %q: %w", c, models.ErrInvalidChannelSet)
		}
		if seen[c] {
			return fmt.Errorf("channel %q selected twice: %w", c, models.ErrInvalidChannelSet)
		}
		seen[c] = true
	}
	if seen[models.ChannelAll] && len(channels) > 1 {
		return fmt.Errorf("%q cannot be combined with specific channels: %w", models.ChannelAll, models.ErrInvalidChannelSet)
	}
	return nil
}

// ToggleChannel applies one click on a channel to the current selection.
// Selecting "all" replaces everything; selecting a specific channel drops "all".
func ToggleChannel(selection []models.Channel, c models.Channel) []models.Channel {
	if c == models.ChannelAll {
		return []models.Channel{models.ChannelAll}
	}
	out := make([]models.Channel, 0, len(selection)+1)
	found := false
	for _, s := range selection {
		switch s {
		case models.ChannelAll:
		case c:
			found = true
		default:
			out = append(out, s)
		}
	}
	if !found {
		out = append(out, c)
	}
	return out
}

// History returns the newest messages first. limit <= 0 uses
// DefaultHistoryLimit; larger than MaxHistoryLimit is capped.
func (d *Dispatcher) History(ctx context.Context, limit int) ([]models.BroadcastMessage, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	limit = min(limit, MaxHistoryLimit)
	return d.store.RecentBroadcasts(ctx, limit)
}

func (d *Dispatcher) Get(ctx context.Context, id string) (models.BroadcastMessage, error) {
	m, err := d.store.GetBroadcast(ctx, id)
	if err != nil {
		return models.BroadcastMessage{}, fmt.Errorf("broadcast %s: %w", id, err)
	}
	return m, nil
}

func (d *Dispatcher) Templates() []models.Template {
	return append([]models.Template(nil), models.TemplateCatalog...)
}

func (d *Dispatcher) Channels() []models.ChannelInfo {
	return append([]models.ChannelInfo(nil), models.ChannelCatalog...)
}

func (d *Dispatcher) Priorities() []models.PriorityInfo {
	return append([]models.PriorityInfo(nil), models.PriorityCatalog...)
}
