package feed

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"edgegrid/internal/alerts"
	"edgegrid/internal/collector"
	"edgegrid/internal/events"
	"edgegrid/internal/memstore"
	"edgegrid/internal/models"
	"edgegrid/internal/traffic"
)

func newTestFeed(t *testing.T) (*Feed, *alerts.Registry, *traffic.ControlPlane, *events.Recorder) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rec := &events.Recorder{}
	reg := alerts.NewRegistry(memstore.NewAlerts(), rec, logger)
	cp := traffic.NewControlPlane(memstore.NewDevices(models.DefaultTrafficLights()), rec, logger)
	return New(reg, cp, logger), reg, cp, rec
}

func TestHandleAlert(t *testing.T) {
	f, reg, _, rec := newTestFeed(t)
	ctx := context.Background()
	payload := `{"id":"ext-9","title":"Sensor OFFLINE\u0000","description":"lost link","category":"Device","location":"Pier 4","device_id":"ENV_SENSOR_044","created_at":"2026-03-01T10:00:00Z"}`
	if err := f.HandleAlert(ctx, "edgegrid/feed/alerts", []byte(payload)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	a, err := reg.Get(ctx, "ext-9")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if a.Title != "Sensor OFFLINE" || a.Severity != models.SeverityHigh || a.Status != models.AlertActive {
		t.Fatalf("alert = %#v", a)
	}
	if evs := rec.Events(); len(evs) != 1 || evs[0].Actor != Actor {
		t.Fatalf("events = %#v", evs)
	}
}

func TestHandleAlertRejects(t *testing.T) {
	f, _, _, _ := newTestFeed(t)
	ctx := context.Background()
	cases := []struct {
		name    string
		payload string
	}{
		{"not json", `{`},
		{"no title", `{"severity":"low"}`},
		{"bad severity", `{"title":"x","severity":"apocalyptic"}`},
	}
	for _, tc := range cases {
		if err := f.HandleAlert(ctx, "", []byte(tc.payload)); !errors.Is(err, models.ErrInvalidInput) {
			t.Fatalf("%s: err = %v, want ErrInvalidInput", tc.name, err)
		}
	}
}

func TestHandleTraffic(t *testing.T) {
	f, _, cp, _ := newTestFeed(t)
	ctx := context.Background()
	if err := f.HandleTraffic(ctx, "", []byte(`{"device_id":"TL_003","phase":"red_ns"}`)); err != nil {
		t.Fatalf("observe: %v", err)
	}
	d, _ := cp.Get(ctx, "TL_003")
	if d.Phase != models.PhaseRedNS {
		t.Fatalf("phase = %s, want red_ns", d.Phase)
	}

	// TL_002 is manual: status applies, phase observation is dropped.
	if err := f.HandleTraffic(ctx, "", []byte(`{"device_id":"TL_002","status":"operational","phase":"green_ns"}`)); err != nil {
		t.Fatalf("report: %v", err)
	}
	d, _ = cp.Get(ctx, "TL_002")
	if d.Status != models.DeviceOperational || d.Phase != models.PhaseRedAll {
		t.Fatalf("TL_002 = %#v", d)
	}

	if err := f.HandleTraffic(ctx, "", []byte(`{"device_id":"TL_001"}`)); !errors.Is(err, models.ErrInvalidInput) {
		t.Fatalf("empty report err = %v, want ErrInvalidInput", err)
	}
	if err := f.HandleTraffic(ctx, "", []byte(`{"device_id":"TL_777","status":"offline"}`)); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("unknown device err = %v, want ErrNotFound", err)
	}
}

func TestSanitizeAndInfer(t *testing.T) {
	if got := sanitize("  a\x00b \xff "); got != "ab ?" {
		t.Fatalf("sanitize = %q", got)
	}
	if got := sanitize(strings.Repeat("x", maxTextLen+10)); len(got) != maxTextLen {
		t.Fatalf("sanitize len = %d, want %d", len(got), maxTextLen)
	}
	cases := map[string]models.Severity{
		"CRITICAL flooding": models.SeverityCritical,
		"link failure":      models.SeverityHigh,
		"image degraded":    models.SeverityMedium,
		"all good":          models.SeverityLow,
	}
	for text, want := range cases {
		if got := inferSeverity(text); got != want {
			t.Fatalf("inferSeverity(%q) = %s, want %s", text, got, want)
		}
	}
}

func TestRoutesTopics(t *testing.T) {
	f := New(nil, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	routes := f.Routes("city")
	for _, topic := range []string{"city/feed/alerts", "city/feed/traffic"} {
		if routes[topic] == nil {
			t.Fatalf("no handler for %s", topic)
		}
	}
	if len(routes) != 2 {
		t.Fatalf("routes = %d, want 2", len(routes))
	}
	routes = f.WithNodes(collector.NewService(nil, nil, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))).Routes("city")
	if routes["city/feed/nodes"] == nil || len(routes) != 3 {
		t.Fatalf("routes with nodes = %d", len(routes))
	}
}

func TestHandleNode(t *testing.T) {
	f, _, _, _ := newTestFeed(t)
	nodes := collector.NewService(nil, nil, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	f.WithNodes(nodes)
	ctx := context.Background()

	payload := `{"node_id":"node_003","cpu":32,"memory":54,"storage":67,"network":92,"uptime_seconds":702720,"services":["smart_lighting"]}`
	if err := f.HandleNode(ctx, "edgegrid/feed/nodes", []byte(payload)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	h, err := nodes.Get("node_003")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if h.Status != models.NodeHealthy || h.Uptime != "8d 3h 12m" || len(h.Services) != 1 {
		t.Fatalf("health = %#v", h)
	}

	for _, bad := range []string{`{`, `{"cpu":10}`, `{"node_id":"node_001","memory":140}`} {
		if err := f.HandleNode(ctx, "edgegrid/feed/nodes", []byte(bad)); !errors.Is(err, models.ErrInvalidInput) {
			t.Fatalf("%s: err = %v, want ErrInvalidInput", bad, err)
		}
	}
	err = f.HandleNode(ctx, "edgegrid/feed/nodes", []byte(`{"node_id":"node_404"}`))
	if !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("unknown node err = %v, want ErrNotFound", err)
	}
}
