package collector

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"edgegrid/internal/models"
)

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type observerFunc func(models.NodeHealth)

func (f observerFunc) ObserveNode(h models.NodeHealth) { f(h) }

func agent(t *testing.T, status int, rep models.NodeReport) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != StatusPath {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(rep)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		rep  models.NodeReport
		want models.NodeStatus
	}{
		{"alpha", models.NodeReport{CPU: 45, Memory: 62, Storage: 78, Network: 95}, models.NodeHealthy},
		{"beta", models.NodeReport{CPU: 78, Memory: 89, Storage: 45, Network: 87}, models.NodeWarning},
		{"disk full", models.NodeReport{CPU: 10, Memory: 10, Storage: 97, Network: 99}, models.NodeCritical},
		{"weak link", models.NodeReport{CPU: 10, Memory: 10, Storage: 10, Network: 60}, models.NodeWarning},
		{"link down", models.NodeReport{CPU: 10, Memory: 10, Storage: 10, Network: 20}, models.NodeCritical},
	}
	for _, tc := range cases {
		if got := Classify(tc.rep); got != tc.want {
			t.Fatalf("%s: status = %s, want %s", tc.name, got, tc.want)
		}
	}
}

func TestFormatUptime(t *testing.T) {
	sec := int64(15*86400 + 8*3600 + 23*60 + 59)
	if got := FormatUptime(sec); got != "15d 8h 23m" {
		t.Fatalf("uptime = %q, want 15d 8h 23m", got)
	}
}

func TestSnapshotStartsUnknown(t *testing.T) {
	s := NewService(nil, nil, nil, testLogger())
	snap := s.Snapshot()
	if len(snap) != len(models.NodeInventory) {
		t.Fatalf("nodes = %d, want %d", len(snap), len(models.NodeInventory))
	}
	for i, h := range snap {
		if h.ID != models.NodeInventory[i].ID || h.Status != models.NodeUnknown || h.UpdatedAt != nil {
			t.Fatalf("node %d = %#v, want unknown %s", i, h, models.NodeInventory[i].ID)
		}
	}
}

func TestApply(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	var seen []models.NodeHealth
	s := NewService(nil, nil, observerFunc(func(h models.NodeHealth) { seen = append(seen, h) }), testLogger())
	s.now = func() time.Time { return now }

	err := s.Apply(models.NodeReport{NodeID: "node_002", CPU: 78, Memory: 89, Storage: 45, Network: 87,
		UptimeSeconds: 12*86400 + 15*3600 + 45*60, Services: []string{"traffic_control", "emergency_systems"}})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	h, err := s.Get("node_002")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if h.Status != models.NodeWarning || h.Uptime != "12d 15h 45m" || h.UpdatedAt == nil || !h.UpdatedAt.Equal(now) {
		t.Fatalf("health = %#v", h)
	}
	if !reflect.DeepEqual(h.Services, []string{"traffic_control", "emergency_systems"}) {
		t.Fatalf("services = %v", h.Services)
	}
	if len(seen) != 1 || seen[0].ID != "node_002" {
		t.Fatalf("observed = %#v", seen)
	}

	cases := []struct {
		name string
		rep  models.NodeReport
		want error
	}{
		{"unknown node", models.NodeReport{NodeID: "node_404"}, models.ErrNotFound},
		{"cpu over 100", models.NodeReport{NodeID: "node_001", CPU: 101}, models.ErrInvalidInput},
		{"negative network", models.NodeReport{NodeID: "node_001", Network: -1}, models.ErrInvalidInput},
		{"negative uptime", models.NodeReport{NodeID: "node_001", UptimeSeconds: -5}, models.ErrInvalidInput},
	}
	for _, tc := range cases {
		if err := s.Apply(tc.rep); !errors.Is(err, tc.want) {
			t.Fatalf("%s: err = %v, want %v", tc.name, err, tc.want)
		}
	}
	if _, err := s.Get("node_404"); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("get missing err = %v, want ErrNotFound", err)
	}
}

func TestTickPollsAgents(t *testing.T) {
	healthy := agent(t, http.StatusOK, models.NodeReport{CPU: 45, Memory: 62, Storage: 78, Network: 95,
		UptimeSeconds: 3600, Services: []string{"traffic_analysis"}})
	broken := agent(t, http.StatusInternalServerError, models.NodeReport{})
	src := NewHTTPSource(map[string]string{"node_001": healthy.URL + "/", "node_002": broken.URL}, time.Second)
	s := NewService(nil, src, nil, testLogger())

	if err := s.Apply(models.NodeReport{NodeID: "node_002", CPU: 30, Memory: 30, Storage: 30, Network: 90}); err != nil {
		t.Fatalf("seed node_002: %v", err)
	}
	s.Tick(context.Background())

	snap := s.Snapshot()
	if snap[0].Status != models.NodeHealthy || snap[0].CPU != 45 || snap[0].Uptime != "0d 1h 0m" {
		t.Fatalf("node_001 = %#v", snap[0])
	}
	if snap[1].Status != models.NodeCritical || snap[1].Error == "" || snap[1].CPU != 30 {
		t.Fatalf("node_002 = %#v, want critical with last sample kept", snap[1])
	}
	if snap[2].Status != models.NodeUnknown {
		t.Fatalf("node_003 = %#v, want unknown without endpoint", snap[2])
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	s := NewService(nil, nil, nil, testLogger())
	if err := s.Apply(models.NodeReport{NodeID: "node_001", Network: 90, Services: []string{"a"}}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	snap := s.Snapshot()
	snap[0].Services[0] = "mutated"
	if h, _ := s.Get("node_001"); h.Services[0] != "a" {
		t.Fatalf("services = %v, want a", h.Services)
	}
}
