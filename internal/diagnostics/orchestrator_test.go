package diagnostics

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"edgegrid/internal/events"
	"edgegrid/internal/memstore"
	"edgegrid/internal/models"
)

var testCatalog = []models.DiagnosticTest{
	{ID: "connectivity", Name: "Network Connectivity", Duration: time.Millisecond},
	{ID: "slow", Name: "Slow", Duration: time.Hour},
}

type recorderFunc func(context.Context, models.TestRun)

func (f recorderFunc) RecordRun(ctx context.Context, r models.TestRun) { f(ctx, r) }

func newTestOrchestrator(t *testing.T, eval Evaluator, opts Options) (*Orchestrator, *events.Recorder) {
	t.Helper()
	rec := &events.Recorder{}
	if opts.Catalog == nil {
		opts.Catalog = testCatalog
	}
	opts.Events = rec
	o := NewOrchestrator(eval, memstore.NewRuns(), slog.New(slog.NewTextHandler(io.Discard, nil)), opts)
	t.Cleanup(o.Close)
	return o, rec
}

func passing() Evaluator {
	return EvaluatorFunc(func(context.Context, models.DiagnosticTest, string) (Outcome, error) {
		return Outcome{Passed: true, Metrics: models.RunMetrics{LatencyMs: 12, Throughput: 900, ErrorRate: 0.1}}, nil
	})
}

// gated blocks every evaluation until release is closed.
func gated(release <-chan struct{}) Evaluator {
	return EvaluatorFunc(func(ctx context.Context, _ models.DiagnosticTest, _ string) (Outcome, error) {
		select {
		case <-release:
			return Outcome{Passed: true}, nil
		case <-ctx.Done():
			return Outcome{}, ctx.Err()
		}
	})
}

func waitIdle(t *testing.T, o *Orchestrator, testID, scope string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for o.IsRunning(testID, scope) {
		if time.Now().After(deadline) {
			t.Fatalf("%s/%s still running", testID, scope)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestConcurrentStartExactlyOneWins(t *testing.T) {
	release := make(chan struct{})
	o, _ := newTestOrchestrator(t, gated(release), Options{})
	ctx := context.Background()

	const callers = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		ok      int
		busy    int
		barrier = make(chan struct{})
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-barrier
			_, err := o.Start(ctx, "connectivity", "node_001")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, models.ErrAlreadyRunning):
				busy++
			default:
				t.Errorf("start: %v", err)
			}
		}()
	}
	close(barrier)
	wg.Wait()
	if ok != 1 || busy != callers-1 {
		t.Fatalf("ok = %d busy = %d, want 1 and %d", ok, busy, callers-1)
	}
	if !o.IsRunning("connectivity", "node_001") {
		t.Fatal("run not in flight")
	}
	if _, found, err := o.Result(ctx, "connectivity", "node_001"); err != nil || found {
		t.Fatalf("result while in flight = %v %v, want none", found, err)
	}

	close(release)
	waitIdle(t, o, "connectivity", "node_001")
	run, found, err := o.Result(ctx, "connectivity", "node_001")
	if err != nil || !found {
		t.Fatalf("result = %v %v", found, err)
	}
	if run.Status != models.RunPassed || run.CompletedAt == nil {
		t.Fatalf("run = %#v, want passed", run)
	}
	if _, err := o.Start(ctx, "connectivity", "node_001"); err != nil {
		t.Fatalf("third start: %v", err)
	}
}

func TestKeysAreIndependent(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	o, _ := newTestOrchestrator(t, gated(release), Options{})
	ctx := context.Background()
	for _, scope := range []string{"node_001", "node_002", models.ScopeAll} {
		if _, err := o.Start(ctx, "connectivity", scope); err != nil {
			t.Fatalf("start %s: %v", scope, err)
		}
	}
	if n := len(o.Running()); n != 3 {
		t.Fatalf("running = %d, want 3", n)
	}
}

func TestStartValidation(t *testing.T) {
	o, _ := newTestOrchestrator(t, passing(), Options{})
	ctx := context.Background()
	if _, err := o.Start(ctx, "teleport", "node_001"); !errors.Is(err, models.ErrUnknownTest) {
		t.Fatalf("unknown test err = %v, want ErrUnknownTest", err)
	}
	if _, err := o.Start(ctx, "connectivity", "node_999"); !errors.Is(err, models.ErrInvalidScope) {
		t.Fatalf("bad scope err = %v, want ErrInvalidScope", err)
	}
	if _, _, err := o.Result(ctx, "teleport", models.ScopeAll); !errors.Is(err, models.ErrUnknownTest) {
		t.Fatalf("result unknown test err = %v, want ErrUnknownTest", err)
	}
}

func TestOutcomesAndRecording(t *testing.T) {
	cases := []struct {
		name   string
		eval   Evaluator
		status models.RunStatus
	}{
		{"passed", passing(), models.RunPassed},
		{"failed", EvaluatorFunc(func(context.Context, models.DiagnosticTest, string) (Outcome, error) {
			return Outcome{Passed: false, Metrics: models.RunMetrics{ErrorRate: 4.2}}, nil
		}), models.RunFailed},
		{"evaluator error", EvaluatorFunc(func(context.Context, models.DiagnosticTest, string) (Outcome, error) {
			return Outcome{}, errors.New("connection refused")
		}), models.RunFailed},
	}
	for _, tc := range cases {
		var (
			mu       sync.Mutex
			recorded []models.TestRun
		)
		o, rec := newTestOrchestrator(t, tc.eval, Options{Recorder: recorderFunc(func(_ context.Context, r models.TestRun) {
			mu.Lock()
			recorded = append(recorded, r)
			mu.Unlock()
		})})
		ctx := context.Background()
		if _, err := o.Start(ctx, "connectivity", models.ScopeAll); err != nil {
			t.Fatalf("%s: start: %v", tc.name, err)
		}
		waitIdle(t, o, "connectivity", models.ScopeAll)
		run, _, err := o.Result(ctx, "connectivity", models.ScopeAll)
		if err != nil {
			t.Fatalf("%s: result: %v", tc.name, err)
		}
		if run.Status != tc.status || run.Details == "" {
			t.Fatalf("%s: run = %#v, want %s with details", tc.name, run, tc.status)
		}
		o.Close()
		mu.Lock()
		if len(recorded) != 1 || recorded[0].ID != run.ID {
			t.Fatalf("%s: recorded = %#v", tc.name, recorded)
		}
		mu.Unlock()
		kinds := rec.Kinds()
		if len(kinds) != 2 || kinds[0] != events.DiagnosticStarted || kinds[1] != events.DiagnosticCompleted {
			t.Fatalf("%s: events = %v", tc.name, kinds)
		}
	}
}

func TestEvaluatorTimeoutFailsRun(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	o, _ := newTestOrchestrator(t, gated(block), Options{EvalTimeout: 5 * time.Millisecond})
	ctx := context.Background()
	if _, err := o.Start(ctx, "connectivity", "node_003"); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitIdle(t, o, "connectivity", "node_003")
	run, _, err := o.Result(ctx, "connectivity", "node_003")
	if err != nil {
		t.Fatalf("result: %v", err)
	}
	if run.Status != models.RunFailed {
		t.Fatalf("status = %s, want failed", run.Status)
	}
}

func TestCancel(t *testing.T) {
	o, rec := newTestOrchestrator(t, passing(), Options{})
	ctx := context.Background()
	if _, err := o.Cancel(ctx, "slow", "node_002"); !errors.Is(err, models.ErrNotRunning) {
		t.Fatalf("cancel idle err = %v, want ErrNotRunning", err)
	}
	started, err := o.Start(ctx, "slow", "node_002")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	run, err := o.Cancel(ctx, "slow", "node_002")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if run.ID != started.ID || run.Status != models.RunCancelled {
		t.Fatalf("cancelled run = %#v", run)
	}
	if o.IsRunning("slow", "node_002") {
		t.Fatal("still running after cancel")
	}
	latest, found, err := o.Result(ctx, "slow", "node_002")
	if err != nil || !found || latest.Status != models.RunCancelled {
		t.Fatalf("result = %#v %v %v", latest, found, err)
	}
	kinds := rec.Kinds()
	if kinds[len(kinds)-1] != events.DiagnosticCancelled {
		t.Fatalf("events = %v", kinds)
	}
}

func TestCloseCancelsInFlightAndRejectsStart(t *testing.T) {
	o, _ := newTestOrchestrator(t, passing(), Options{})
	ctx := context.Background()
	if _, err := o.Start(ctx, "slow", models.ScopeAll); err != nil {
		t.Fatalf("start: %v", err)
	}
	o.Close()
	run, found, err := o.Result(ctx, "slow", models.ScopeAll)
	if err != nil || !found || run.Status != models.RunCancelled {
		t.Fatalf("after close = %#v %v %v", run, found, err)
	}
	if _, err := o.Start(ctx, "slow", models.ScopeAll); !errors.Is(err, models.ErrInvalidTransition) {
		t.Fatalf("start after close err = %v, want ErrInvalidTransition", err)
	}
}

func TestDurationScale(t *testing.T) {
	o, _ := newTestOrchestrator(t, passing(), Options{DurationScale: 1e-9})
	ctx := context.Background()
	if _, err := o.Start(ctx, "slow", "node_001"); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitIdle(t, o, "slow", "node_001")
	run, _, err := o.Result(ctx, "slow", "node_001")
	if err != nil || run.Status != models.RunPassed {
		t.Fatalf("run = %#v %v", run, err)
	}
}
