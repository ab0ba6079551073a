// Package feed applies messages from the external field feed to the
// alert registry and the device control plane.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"edgegrid/internal/events"
	"edgegrid/internal/models"
	"edgegrid/internal/mqttbus"
)

// Actor is recorded on every change the feed causes.
const Actor = "feed"

type AlertCreator interface {
	Create(ctx context.Context, in models.NewAlert) (models.Alert, error)
}

type DeviceReporter interface {
	ReportStatus(ctx context.Context, id string, status models.DeviceStatus) (models.TrafficLight, error)
	ObservePhase(ctx context.Context, id string, phase models.Phase) (models.TrafficLight, error)
}

type NodeReporter interface {
	Apply(rep models.NodeReport) error
}

type Feed struct {
	alerts  AlertCreator
	devices DeviceReporter
	nodes   NodeReporter
	log     *slog.Logger
}

func New(alerts AlertCreator, devices DeviceReporter, logger *slog.Logger) *Feed {
	return &Feed{alerts: alerts, devices: devices, log: logger}
}

// WithNodes also accepts node health reports.
func (f *Feed) WithNodes(nodes NodeReporter) *Feed {
	f.nodes = nodes
	return f
}

// Routes binds the feed handlers to their topics under prefix.
func (f *Feed) Routes(prefix string) map[string]mqttbus.Handler {
	routes := map[string]mqttbus.Handler{
		prefix + "/feed/alerts":  f.HandleAlert,
		prefix + "/feed/traffic": f.HandleTraffic,
	}
	if f.nodes != nil {
		routes[prefix+"/feed/nodes"] = f.HandleNode
	}
	return routes
}

type alertPayload struct {
	ID                  string     `json:"id"`
	Title               string     `json:"title"`
	Description         string     `json:"description"`
	Severity            string     `json:"severity"`
	Category            string     `json:"category"`
	Status              string     `json:"status"`
	Location            string     `json:"location"`
	DeviceID            string     `json:"device_id"`
	EstimatedResolution string     `json:"estimated_resolution"`
	CreatedAt           *time.Time `json:"created_at"`
	ResolvedAt          *time.Time `json:"resolved_at"`
}

type trafficPayload struct {
	DeviceID string `json:"device_id"`
	Status   string `json:"status"`
	Phase    string `json:"phase"`
}

// HandleAlert ingests one alert record.
func (f *Feed) HandleAlert(ctx context.Context, _ string, payload []byte) error {
	var p alertPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("%w: alert payload: %v", models.ErrInvalidInput, err)
	}
	in := models.NewAlert{
		ID:                  sanitize(p.ID),
		Title:               sanitize(p.Title),
		Description:         sanitize(p.Description),
		Severity:            models.Severity(p.Severity),
		Category:            sanitize(p.Category),
		Status:              models.AlertStatus(p.Status),
		Location:            sanitize(p.Location),
		DeviceID:            sanitize(p.DeviceID),
		EstimatedResolution: sanitize(p.EstimatedResolution),
		ResolvedAt:          p.ResolvedAt,
	}
	if p.CreatedAt != nil {
		in.CreatedAt = *p.CreatedAt
	}
	if in.Severity == "" {
		in.Severity = inferSeverity(in.Title + " " + in.Description)
	}
	a, err := f.alerts.Create(events.WithActor(ctx, Actor), in)
	if err != nil {
		return err
	}
	f.log.Info("feed alert ingested", "id", a.ID, "severity", a.Severity)
	return nil
}

// HandleTraffic applies a device report carrying a status, an observed
// phase, or both. Phase observations for devices under manual control are
// expected and dropped.
func (f *Feed) HandleTraffic(ctx context.Context, _ string, payload []byte) error {
	var p trafficPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("%w: traffic payload: %v", models.ErrInvalidInput, err)
	}
	if p.DeviceID == "" {
		return fmt.Errorf("%w: device_id is required", models.ErrInvalidInput)
	}
	if p.Status == "" && p.Phase == "" {
		return fmt.Errorf("%w: report carries neither status nor phase", models.ErrInvalidInput)
	}
	ctx = events.WithActor(ctx, Actor)
	if p.Status != "" {
		if _, err := f.devices.ReportStatus(ctx, p.DeviceID, models.DeviceStatus(p.Status)); err != nil {
			return err
		}
	}
	if p.Phase != "" {
		_, err := f.devices.ObservePhase(ctx, p.DeviceID, models.Phase(p.Phase))
		if errors.Is(err, models.ErrInvalidTransition) {
			f.log.Debug("phase observation ignored", "device_id", p.DeviceID, "err", err)
			return nil
		}
		return err
	}
	return nil
}

// HandleNode applies a health report pushed by an edge node agent.
func (f *Feed) HandleNode(_ context.Context, _ string, payload []byte) error {
	var rep models.NodeReport
	if err := json.Unmarshal(payload, &rep); err != nil {
		return fmt.Errorf("%w: node payload: %v", models.ErrInvalidInput, err)
	}
	if rep.NodeID == "" {
		return fmt.Errorf("%w: node_id is required", models.ErrInvalidInput)
	}
	return f.nodes.Apply(rep)
}
