package influx

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"edgegrid/internal/models"
)

type fakeWriter struct {
	mu     sync.Mutex
	points []*write.Point
	err    error
}

func (f *fakeWriter) WritePoint(_ context.Context, p ...*write.Point) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.points = append(f.points, p...)
	return f.err
}

func newTestRecorder(w pointWriter) *Recorder {
	return &Recorder{w: w, timeout: time.Second, log: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func TestRecordRunWritesPoint(t *testing.T) {
	w := &fakeWriter{}
	r := newTestRecorder(w)
	done := time.Date(2026, 3, 1, 10, 0, 30, 0, time.UTC)
	r.RecordRun(context.Background(), models.TestRun{TestID: "performance", Scope: "all", Status: models.RunFailed,
		StartedAt: done.Add(-2 * time.Minute), CompletedAt: &done,
		Metrics: models.RunMetrics{LatencyMs: 40, Throughput: 950, ErrorRate: 3}})

	if len(w.points) != 1 {
		t.Fatalf("points = %d, want 1", len(w.points))
	}
	p := w.points[0]
	if p.Name() != Measurement || !p.Time().Equal(done) {
		t.Fatalf("point = %s at %v", p.Name(), p.Time())
	}
	tags := map[string]string{}
	for _, tag := range p.TagList() {
		tags[tag.Key] = tag.Value
	}
	if tags["test_id"] != "performance" || tags["scope"] != "all" || tags["status"] != "failed" {
		t.Fatalf("tags = %v", tags)
	}
	fields := map[string]interface{}{}
	for _, f := range p.FieldList() {
		fields[f.Key] = f.Value
	}
	if fields["error_rate"] != 3.0 || fields["passed"] != false {
		t.Fatalf("fields = %v", fields)
	}
}

func TestRecordRunSkipsCancelledAndSurvivesErrors(t *testing.T) {
	w := &fakeWriter{err: errors.New("influx down")}
	r := newTestRecorder(w)
	r.RecordRun(context.Background(), models.TestRun{TestID: "storage", Scope: "node_001", Status: models.RunCancelled})
	if len(w.points) != 0 {
		t.Fatalf("cancelled run written")
	}
	r.RecordRun(context.Background(), models.TestRun{TestID: "storage", Scope: "node_001", Status: models.RunPassed})
	if len(w.points) != 1 {
		t.Fatalf("points = %d, want 1", len(w.points))
	}
}

func TestNewRequiresConfig(t *testing.T) {
	if _, err := New(Config{URL: "http://localhost:8086"}, slog.New(slog.NewTextHandler(io.Discard, nil))); err == nil {
		t.Fatal("expected error for incomplete config")
	}
}
