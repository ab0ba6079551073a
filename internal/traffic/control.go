package traffic

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"edgegrid/internal/events"
	"edgegrid/internal/models"
)

// Store holds the provisioned signal inventory. Devices are never created or
// deleted here, only updated.
type Store interface {
	GetTrafficLight(ctx context.Context, id string) (models.TrafficLight, error)
	ListTrafficLights(ctx context.Context) ([]models.TrafficLight, error)
	UpdateTrafficLight(ctx context.Context, d models.TrafficLight) error
}

// ControlPlane applies operator commands to traffic signals. Status and mode
// are independent axes. A manual phase change always forces manual mode, and
// status refreshes never touch mode or phase.
type ControlPlane struct {
	mu     sync.Mutex
	store  Store
	events events.Sink
	log    *slog.Logger
	now    func() time.Time
}

func NewControlPlane(store Store, sink events.Sink, logger *slog.Logger) *ControlPlane {
	if sink == nil {
		sink = events.Discard
	}
	return &ControlPlane{store: store, events: sink, log: logger, now: time.Now}
}

func (c *ControlPlane) Phases() []models.PhaseOption {
	out := make([]models.PhaseOption, len(models.PhaseCatalog))
	copy(out, models.PhaseCatalog)
	return out
}

func (c *ControlPlane) Get(ctx context.Context, id string) (models.TrafficLight, error) {
	d, err := c.store.GetTrafficLight(ctx, id)
	if err != nil {
		return models.TrafficLight{}, fmt.Errorf("traffic light %s: %w", id, err)
	}
	return d, nil
}

// List returns one device when id is set, otherwise the whole inventory.
func (c *ControlPlane) List(ctx context.Context, id string) ([]models.TrafficLight, error) {
	if id != "" {
		d, err := c.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		return []models.TrafficLight{d}, nil
	}
	return c.store.ListTrafficLights(ctx)
}

// SetPhase puts the device into manual mode holding phase. holdSeconds is
// recorded for an external scheduler and not enforced here.
func (c *ControlPlane) SetPhase(ctx context.Context, id string, phase models.Phase, holdSeconds int) (models.TrafficLight, error) {
	d, err := c.mutate(ctx, id, func(d *models.TrafficLight, now time.Time) (events.Kind, map[string]any, error) {
		if !phase.Valid() {
			return "", nil, fmt.Errorf("phase %q: %w", phase, models.ErrInvalidPhase)
		}
		if holdSeconds < 0 {
			return "", nil, fmt.Errorf("hold %ds: %w", holdSeconds, models.ErrInvalidHold)
		}
		if d.Status != models.DeviceOperational {
			return "", nil, fmt.Errorf("traffic light %s is %s: %w", id, d.Status, models.ErrDeviceUnavailable)
		}
		data := map[string]any{
			"phase":          phase,
			"previous_phase": d.Phase,
			"previous_mode":  d.Mode,
			"hold_seconds":   holdSeconds,
		}
		d.Mode = models.ModeManual
		d.Phase = phase
		d.HoldSeconds = holdSeconds
		d.PhaseChangedAt = now
		return events.DevicePhaseSet, data, nil
	})
	if err == nil {
		c.log.Info("phase set", "id", id, "phase", phase, "hold_seconds", holdSeconds, "actor", events.ActorFrom(ctx))
	}
	return d, err
}

// ToggleMode flips automatic and manual without touching the phase.
func (c *ControlPlane) ToggleMode(ctx context.Context, id string) (models.TrafficLight, error) {
	d, err := c.mutate(ctx, id, func(d *models.TrafficLight, _ time.Time) (events.Kind, map[string]any, error) {
		if d.Status != models.DeviceOperational {
			return "", nil, fmt.Errorf("traffic light %s is %s: %w", id, d.Status, models.ErrDeviceUnavailable)
		}
		if d.Mode == models.ModeAutomatic {
			d.Mode = models.ModeManual
		} else {
			d.Mode = models.ModeAutomatic
		}
		return events.DeviceModeToggled, map[string]any{"mode": d.Mode, "phase": d.Phase}, nil
	})
	if err == nil {
		c.log.Info("mode toggled", "id", id, "mode", d.Mode, "actor", events.ActorFrom(ctx))
	}
	return d, err
}

// ReportStatus applies an operational status reported by field equipment.
func (c *ControlPlane) ReportStatus(ctx context.Context, id string, status models.DeviceStatus) (models.TrafficLight, error) {
	if !status.Valid() {
		return models.TrafficLight{}, fmt.Errorf("device status %q: %w", status, models.ErrInvalidStatus)
	}
	return c.mutate(ctx, id, func(d *models.TrafficLight, _ time.Time) (events.Kind, map[string]any, error) {
		if d.Status == status {
			return "", nil, nil
		}
		data := map[string]any{"status": status, "previous_status": d.Status}
		d.Status = status
		return events.DeviceStatusChanged, data, nil
	})
}

// ObservePhase records the phase reported by the external cycling driver.
// Manual devices hold an operator override and reject observations.
func (c *ControlPlane) ObservePhase(ctx context.Context, id string, phase models.Phase) (models.TrafficLight, error) {
	if !phase.Valid() {
		return models.TrafficLight{}, fmt.Errorf("phase %q: %w", phase, models.ErrInvalidPhase)
	}
	return c.mutate(ctx, id, func(d *models.TrafficLight, now time.Time) (events.Kind, map[string]any, error) {
		if d.Mode != models.ModeAutomatic {
			return "", nil, fmt.Errorf("traffic light %s is under manual control: %w", id, models.ErrInvalidTransition)
		}
		if d.Phase == phase {
			return "", nil, nil
		}
		d.Phase = phase
		d.PhaseChangedAt = now
		return events.DevicePhaseObserved, map[string]any{"phase": phase}, nil
	})
}

// mutate runs fn against the stored device under the lock and persists the
// result. An empty kind from fn leaves the device untouched. The event is
// published after the lock is released.
func (c *ControlPlane) mutate(ctx context.Context, id string, fn func(d *models.TrafficLight, now time.Time) (events.Kind, map[string]any, error)) (models.TrafficLight, error) {
	now := c.now().UTC()
	c.mu.Lock()
	d, err := c.store.GetTrafficLight(ctx, id)
	if err != nil {
		c.mu.Unlock()
		return models.TrafficLight{}, fmt.Errorf("traffic light %s: %w", id, err)
	}
	kind, data, err := fn(&d, now)
	if err == nil && kind != "" {
		d.UpdatedAt = now
		err = c.store.UpdateTrafficLight(ctx, d)
	}
	c.mu.Unlock()
	if err != nil {
		return models.TrafficLight{}, err
	}
	if kind != "" {
		c.events.Publish(ctx, events.New(ctx, now, kind, events.EntityTrafficLight, id, data))
	}
	return d, nil
}
