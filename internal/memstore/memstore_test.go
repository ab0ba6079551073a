package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"edgegrid/internal/events"
	"edgegrid/internal/models"
)

func TestAlertsKeepInsertionOrderAfterDelete(t *testing.T) {
	s := NewAlerts()
	ctx := context.Background()
	for _, id := range []string{"c", "a", "b"} {
		if err := s.InsertAlert(ctx, models.Alert{ID: id}); err != nil {
			t.Fatalf("insert %s: %v", id, err)
		}
	}
	if err := s.DeleteAlert(ctx, "a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	all, _ := s.ListAlerts(ctx)
	if len(all) != 2 || all[0].ID != "c" || all[1].ID != "b" {
		t.Fatalf("order = %#v, want c,b", all)
	}
	if err := s.UpdateAlert(ctx, models.Alert{ID: "a"}); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("update deleted err = %v, want ErrNotFound", err)
	}
}

func TestAlertsReturnCopies(t *testing.T) {
	s := NewAlerts()
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	if err := s.InsertAlert(ctx, models.Alert{ID: "x", ResolvedAt: &at}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	got, _ := s.GetAlert(ctx, "x")
	*got.ResolvedAt = at.Add(time.Hour)
	again, _ := s.GetAlert(ctx, "x")
	if !again.ResolvedAt.Equal(at) {
		t.Fatalf("stored resolved_at mutated to %v", again.ResolvedAt)
	}
}

func TestRunsRetentionKeepsLatestPerKey(t *testing.T) {
	s := NewRuns()
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		r := models.TestRun{ID: string(rune('a' + i)), TestID: "connectivity", Scope: "all", StartedAt: base.Add(time.Duration(i) * time.Hour)}
		if err := s.SaveRun(ctx, r); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	if err := s.SaveRun(ctx, models.TestRun{ID: "z", TestID: "storage", Scope: "node_001", StartedAt: base}); err != nil {
		t.Fatalf("save: %v", err)
	}

	n, err := s.DeleteRunsBefore(ctx, base.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if n != 2 {
		t.Fatalf("deleted = %d, want 2", n)
	}
	latest, err := s.LatestRun(ctx, "connectivity", "all")
	if err != nil || latest.ID != "c" {
		t.Fatalf("latest = %#v %v, want c", latest, err)
	}
	if _, err := s.LatestRun(ctx, "storage", "node_001"); err != nil {
		t.Fatalf("single-run key pruned: %v", err)
	}
	if _, err := s.LatestRun(ctx, "security", "all"); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("missing key err = %v, want ErrNotFound", err)
	}
}

func TestAuditFilterAndPrune(t *testing.T) {
	s := NewAudit()
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	evs := []events.Event{
		{ID: "1", At: base, Kind: events.AlertResolved, Entity: events.EntityAlert, EntityID: "a1"},
		{ID: "2", At: base.Add(time.Hour), Kind: events.DevicePhaseSet, Entity: events.EntityTrafficLight, EntityID: "TL_001"},
		{ID: "3", At: base.Add(2 * time.Hour), Kind: events.AlertDismissed, Entity: events.EntityAlert, EntityID: "a1"},
	}
	for _, e := range evs {
		if err := s.AppendEvent(ctx, e); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	got, _ := s.ListEvents(ctx, events.Filter{Entity: events.EntityAlert})
	if len(got) != 2 || got[0].ID != "3" || got[1].ID != "1" {
		t.Fatalf("alert events = %#v, want 3,1", got)
	}
	got, _ = s.ListEvents(ctx, events.Filter{Limit: 1})
	if len(got) != 1 || got[0].ID != "3" {
		t.Fatalf("limited = %#v", got)
	}
	n, _ := s.DeleteEventsBefore(ctx, base.Add(90*time.Minute))
	if n != 2 {
		t.Fatalf("pruned = %d, want 2", n)
	}
	got, _ = s.ListEvents(ctx, events.Filter{})
	if len(got) != 1 || got[0].ID != "3" {
		t.Fatalf("remaining = %#v", got)
	}
}
