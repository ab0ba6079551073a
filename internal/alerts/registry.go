package alerts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"edgegrid/internal/events"
	"edgegrid/internal/models"
)

// Store persists alerts keyed by id. ListAlerts returns insertion order and
// missing ids surface as models.ErrNotFound.
type Store interface {
	InsertAlert(ctx context.Context, a models.Alert) error
	GetAlert(ctx context.Context, id string) (models.Alert, error)
	ListAlerts(ctx context.Context) ([]models.Alert, error)
	UpdateAlert(ctx context.Context, a models.Alert) error
	DeleteAlert(ctx context.Context, id string) error
}

// Registry owns the active -> resolved lifecycle of alerts.
type Registry struct {
	mu     sync.Mutex
	store  Store
	events events.Sink
	log    *slog.Logger
	now    func() time.Time
}

func NewRegistry(store Store, sink events.Sink, logger *slog.Logger) *Registry {
	if sink == nil {
		sink = events.Discard
	}
	return &Registry{store: store, events: sink, log: logger, now: time.Now}
}

// Create records an alert coming from the external feed.
func (r *Registry) Create(ctx context.Context, in models.NewAlert) (models.Alert, error) {
	if strings.TrimSpace(in.Title) == "" {
		return models.Alert{}, fmt.Errorf("%w: title is required", models.ErrInvalidInput)
	}
	if !in.Severity.Valid() {
		return models.Alert{}, fmt.Errorf("severity %q: %w", in.Severity, models.ErrInvalidSeverity)
	}
	now := r.now().UTC()
	a := models.Alert{
		ID:                  strings.TrimSpace(in.ID),
		Title:               strings.TrimSpace(in.Title),
		Description:         in.Description,
		Severity:            in.Severity,
		Category:            in.Category,
		Status:              in.Status,
		Location:            in.Location,
		DeviceID:            in.DeviceID,
		EstimatedResolution: in.EstimatedResolution,
		CreatedAt:           in.CreatedAt.UTC(),
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if in.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	switch a.Status {
	case "", models.AlertActive:
		a.Status = models.AlertActive
		if in.ResolvedAt != nil {
			return models.Alert{}, fmt.Errorf("%w: active alert cannot carry a resolution time", models.ErrInvalidInput)
		}
	case models.AlertResolved:
		resolved := now
		if in.ResolvedAt != nil {
			resolved = in.ResolvedAt.UTC()
		}
		if resolved.Before(a.CreatedAt) {
			return models.Alert{}, fmt.Errorf("%w: resolved before created", models.ErrInvalidInput)
		}
		a.ResolvedAt = &resolved
	default:
		return models.Alert{}, fmt.Errorf("status %q: %w", in.Status, models.ErrInvalidStatus)
	}

	if err := r.insert(ctx, a); err != nil {
		return models.Alert{}, err
	}
	r.events.Publish(ctx, events.New(ctx, now, events.AlertCreated, events.EntityAlert, a.ID, map[string]any{
		"severity": a.Severity,
		"category": a.Category,
		"status":   a.Status,
	}))
	return a, nil
}

func (r *Registry) insert(ctx context.Context, a models.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.store.GetAlert(ctx, a.ID); err == nil {
		return fmt.Errorf("%w: alert %s already exists", models.ErrInvalidInput, a.ID)
	} else if !errors.Is(err, models.ErrNotFound) {
		return err
	}
	return r.store.InsertAlert(ctx, a)
}

func (r *Registry) Get(ctx context.Context, id string) (models.Alert, error) {
	a, err := r.store.GetAlert(ctx, id)
	if err != nil {
		return models.Alert{}, fmt.Errorf("alert %s: %w", id, err)
	}
	return a, nil
}

// List returns the alerts matching every set predicate of f, in insertion order.
func (r *Registry) List(ctx context.Context, f models.AlertFilter) ([]models.Alert, error) {
	if f.Severity != "" && !f.Severity.Valid() {
		return nil, fmt.Errorf("severity %q: %w", f.Severity, models.ErrInvalidSeverity)
	}
	if f.Status != "" && !f.Status.Valid() {
		return nil, fmt.Errorf("status %q: %w", f.Status, models.ErrInvalidStatus)
	}
	all, err := r.store.ListAlerts(ctx)
	if err != nil {
		return nil, err
	}
	q := strings.ToLower(strings.TrimSpace(f.Query))
	out := make([]models.Alert, 0, len(all))
	for _, a := range all {
		if f.Severity != "" && a.Severity != f.Severity {
			continue
		}
		if f.Category != "" && a.Category != f.Category {
			continue
		}
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		if f.Unread && a.Read {
			continue
		}
		if q != "" && !matchesText(a, q) {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func matchesText(a models.Alert, q string) bool {
	return strings.Contains(strings.ToLower(a.Title), q) ||
		strings.Contains(strings.ToLower(a.Description), q) ||
		strings.Contains(strings.ToLower(a.Location), q)
}

// Resolve is one-way: a second call fails with ErrInvalidTransition.
func (r *Registry) Resolve(ctx context.Context, id string) (models.Alert, error) {
	now := r.now().UTC()
	a, err := r.resolve(ctx, id, now)
	if err != nil {
		return models.Alert{}, err
	}
	r.log.Info("alert resolved", "id", id, "actor", events.ActorFrom(ctx))
	r.events.Publish(ctx, events.New(ctx, now, events.AlertResolved, events.EntityAlert, id, map[string]any{
		"severity":    a.Severity,
		"resolved_at": *a.ResolvedAt,
	}))
	return a, nil
}

func (r *Registry) resolve(ctx context.Context, id string, now time.Time) (models.Alert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, err := r.store.GetAlert(ctx, id)
	if err != nil {
		return models.Alert{}, fmt.Errorf("alert %s: %w", id, err)
	}
	if a.Status == models.AlertResolved {
		return models.Alert{}, fmt.Errorf("alert %s already resolved: %w", id, models.ErrInvalidTransition)
	}
	resolved := now
	if resolved.Before(a.CreatedAt) {
		resolved = a.CreatedAt
	}
	a.Status = models.AlertResolved
	a.ResolvedAt = &resolved
	if err := r.store.UpdateAlert(ctx, a); err != nil {
		return models.Alert{}, err
	}
	return a, nil
}

// Dismiss hard-deletes the alert. The emitted event carries the final snapshot.
func (r *Registry) Dismiss(ctx context.Context, id string) error {
	a, err := r.remove(ctx, id)
	if err != nil {
		return err
	}
	r.log.Info("alert dismissed", "id", id, "actor", events.ActorFrom(ctx))
	r.events.Publish(ctx, events.New(ctx, r.now(), events.AlertDismissed, events.EntityAlert, id, map[string]any{
		"title":    a.Title,
		"severity": a.Severity,
		"status":   a.Status,
	}))
	return nil
}

func (r *Registry) remove(ctx context.Context, id string) (models.Alert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, err := r.store.GetAlert(ctx, id)
	if err != nil {
		return models.Alert{}, fmt.Errorf("alert %s: %w", id, err)
	}
	if err := r.store.DeleteAlert(ctx, id); err != nil {
		return models.Alert{}, fmt.Errorf("alert %s: %w", id, err)
	}
	return a, nil
}

// MarkRead flags the alert as seen. Marking a read alert again is a no-op
// and emits nothing.
func (r *Registry) MarkRead(ctx context.Context, id string) (models.Alert, error) {
	now := r.now().UTC()
	a, changed, err := r.markRead(ctx, id, now)
	if err != nil {
		return models.Alert{}, err
	}
	if changed {
		r.events.Publish(ctx, events.New(ctx, now, events.AlertRead, events.EntityAlert, id, nil))
	}
	return a, nil
}

func (r *Registry) markRead(ctx context.Context, id string, now time.Time) (models.Alert, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, err := r.store.GetAlert(ctx, id)
	if err != nil {
		return models.Alert{}, false, fmt.Errorf("alert %s: %w", id, err)
	}
	if a.Read {
		return a, false, nil
	}
	a.Read, a.ReadAt = true, &now
	if err := r.store.UpdateAlert(ctx, a); err != nil {
		return models.Alert{}, false, err
	}
	return a, true, nil
}

// MarkAllRead flags every unread alert and returns how many changed.
func (r *Registry) MarkAllRead(ctx context.Context) (int, error) {
	now := r.now().UTC()
	marked, err := r.markAllRead(ctx, now)
	for _, id := range marked {
		r.events.Publish(ctx, events.New(ctx, now, events.AlertRead, events.EntityAlert, id, nil))
	}
	if err != nil {
		return len(marked), err
	}
	if len(marked) > 0 {
		r.log.Info("alerts marked read", "count", len(marked), "actor", events.ActorFrom(ctx))
	}
	return len(marked), nil
}

func (r *Registry) markAllRead(ctx context.Context, now time.Time) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	all, err := r.store.ListAlerts(ctx)
	if err != nil {
		return nil, err
	}
	var marked []string
	for _, a := range all {
		if a.Read {
			continue
		}
		a.Read, a.ReadAt = true, &now
		if err := r.store.UpdateAlert(ctx, a); err != nil {
			return marked, err
		}
		marked = append(marked, a.ID)
	}
	return marked, nil
}

func (r *Registry) Summarize(ctx context.Context) (models.AlertSummary, error) {
	all, err := r.store.ListAlerts(ctx)
	if err != nil {
		return models.AlertSummary{}, err
	}
	s := models.AlertSummary{BySeverity: make(map[models.Severity]int, len(models.Severities))}
	for _, sev := range models.Severities {
		s.BySeverity[sev] = 0
	}
	var total time.Duration
	for _, a := range all {
		if !a.Read {
			s.UnreadCount++
		}
		switch a.Status {
		case models.AlertActive:
			s.ActiveCount++
			s.BySeverity[a.Severity]++
		case models.AlertResolved:
			if a.ResolvedAt == nil {
				continue
			}
			s.ResolvedCount++
			total += a.ResolvedAt.Sub(a.CreatedAt)
		}
	}
	if s.ResolvedCount > 0 {
		avg := total / time.Duration(s.ResolvedCount)
		s.AvgResolution = &avg
	}
	return s, nil
}
