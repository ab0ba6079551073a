package diagnostics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"edgegrid/internal/events"
	"edgegrid/internal/models"
)

// Outcome is what an Evaluator decides about one run.
type Outcome struct {
	Passed  bool
	Metrics models.RunMetrics
	Details string
}

// Evaluator produces the outcome of a test against a scope once its nominal
// duration has elapsed. It must honour ctx.
type Evaluator interface {
	Evaluate(ctx context.Context, test models.DiagnosticTest, scope string) (Outcome, error)
}

type EvaluatorFunc func(ctx context.Context, test models.DiagnosticTest, scope string) (Outcome, error)

func (f EvaluatorFunc) Evaluate(ctx context.Context, test models.DiagnosticTest, scope string) (Outcome, error) {
	return f(ctx, test, scope)
}

// RunStore keeps terminal runs. LatestRun returns models.ErrNotFound for a
// key that never completed.
type RunStore interface {
	SaveRun(ctx context.Context, run models.TestRun) error
	LatestRun(ctx context.Context, testID, scope string) (models.TestRun, error)
}

// Recorder observes terminal runs, e.g. for metrics backends.
type Recorder interface {
	RecordRun(ctx context.Context, run models.TestRun)
}

type Recorders []Recorder

func (rs Recorders) RecordRun(ctx context.Context, run models.TestRun) {
	for _, r := range rs {
		r.RecordRun(ctx, run)
	}
}

type Options struct {
	Catalog []models.DiagnosticTest
	Nodes   []models.Node
	// DurationScale multiplies every nominal test duration.
	DurationScale float64
	// EvalTimeout bounds a single Evaluate call.
	EvalTimeout time.Duration
	Recorder    Recorder
	Events      events.Sink
}

type key struct {
	test  string
	scope string
}

type flight struct {
	run    models.TestRun
	cancel context.CancelFunc
	done   chan struct{}
}

// Orchestrator runs diagnostic tests with at most one run in flight per
// (test, scope) key.
type Orchestrator struct {
	mu       sync.Mutex
	inflight map[key]*flight
	closed   bool
	wg       sync.WaitGroup

	catalog  map[string]models.DiagnosticTest
	tests    []models.DiagnosticTest
	nodes    []models.Node
	nodeIDs  map[string]bool
	eval     Evaluator
	store    RunStore
	recorder Recorder
	events   events.Sink
	log      *slog.Logger
	now      func() time.Time
	scale    float64
	timeout  time.Duration

	base   context.Context
	cancel context.CancelFunc
}

func NewOrchestrator(eval Evaluator, store RunStore, logger *slog.Logger, opts Options) *Orchestrator {
	if opts.Catalog == nil {
		opts.Catalog = models.DiagnosticCatalog
	}
	if opts.Nodes == nil {
		opts.Nodes = models.NodeInventory
	}
	if opts.DurationScale <= 0 {
		opts.DurationScale = 1
	}
	if opts.EvalTimeout <= 0 {
		opts.EvalTimeout = 30 * time.Second
	}
	if opts.Recorder == nil {
		opts.Recorder = Recorders(nil)
	}
	if opts.Events == nil {
		opts.Events = events.Discard
	}
	o := &Orchestrator{
		inflight: make(map[key]*flight),
		catalog:  make(map[string]models.DiagnosticTest, len(opts.Catalog)),
		tests:    append([]models.DiagnosticTest(nil), opts.Catalog...),
		nodes:    append([]models.Node(nil), opts.Nodes...),
		nodeIDs:  make(map[string]bool, len(opts.Nodes)),
		eval:     eval,
		store:    store,
		recorder: opts.Recorder,
		events:   opts.Events,
		log:      logger,
		now:      time.Now,
		scale:    opts.DurationScale,
		timeout:  opts.EvalTimeout,
	}
	for _, t := range opts.Catalog {
		o.catalog[t.ID] = t
	}
	for _, n := range opts.Nodes {
		o.nodeIDs[n.ID] = true
	}
	o.base, o.cancel = context.WithCancel(context.Background())
	return o
}

func (o *Orchestrator) Tests() []models.DiagnosticTest {
	return append([]models.DiagnosticTest(nil), o.tests...)
}

func (o *Orchestrator) Nodes() []models.Node {
	return append([]models.Node(nil), o.nodes...)
}

func (o *Orchestrator) lookup(testID, scope string) (models.DiagnosticTest, error) {
	test, ok := o.catalog[testID]
	if !ok {
		return models.DiagnosticTest{}, fmt.Errorf("test %q: %w", testID, models.ErrUnknownTest)
	}
	if scope != models.ScopeAll && !o.nodeIDs[scope] {
		return models.DiagnosticTest{}, fmt.Errorf("scope %q: %w", scope, models.ErrInvalidScope)
	}
	return test, nil
}

// Start claims the (test, scope) key and launches the run. The claim is a
// single check-and-set under the orchestrator lock; a second caller for the
// same key gets ErrAlreadyRunning.
func (o *Orchestrator) Start(ctx context.Context, testID, scope string) (models.TestRun, error) {
	test, err := o.lookup(testID, scope)
	if err != nil {
		return models.TestRun{}, err
	}
	k := key{testID, scope}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return models.TestRun{}, fmt.Errorf("orchestrator closed: %w", models.ErrInvalidTransition)
	}
	if _, busy := o.inflight[k]; busy {
		o.mu.Unlock()
		return models.TestRun{}, fmt.Errorf("test %s on %s: %w", testID, scope, models.ErrAlreadyRunning)
	}
	runCtx, cancel := context.WithCancel(o.base)
	f := &flight{
		run: models.TestRun{
			ID:        uuid.NewString(),
			TestID:    testID,
			Scope:     scope,
			Status:    models.RunRunning,
			StartedAt: o.now().UTC(),
		},
		cancel: cancel,
		done:   make(chan struct{}),
	}
	o.inflight[k] = f
	o.wg.Add(1)
	o.mu.Unlock()

	started := f.run
	o.events.Publish(ctx, events.New(ctx, started.StartedAt, events.DiagnosticStarted, events.EntityDiagnostic, started.ID, map[string]any{
		"test_id": testID,
		"scope":   scope,
	}))
	go o.execute(events.WithActor(runCtx, events.ActorFrom(ctx)), k, f, test)
	return started, nil
}

func (o *Orchestrator) execute(ctx context.Context, k key, f *flight, test models.DiagnosticTest) {
	defer o.wg.Done()
	defer close(f.done)
	defer f.cancel()

	wait := time.Duration(float64(test.Duration) * o.scale)
	timer := time.NewTimer(wait)
	defer timer.Stop()

	var (
		status  models.RunStatus
		outcome Outcome
	)
	select {
	case <-ctx.Done():
		status = models.RunCancelled
		outcome.Details = test.Name + " cancelled before completion."
	case <-timer.C:
		status, outcome = o.evaluate(ctx, test, k.scope)
	}
	o.finish(ctx, k, f, status, outcome)
}

func (o *Orchestrator) evaluate(ctx context.Context, test models.DiagnosticTest, scope string) (models.RunStatus, Outcome) {
	evalCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()
	out, err := o.eval.Evaluate(evalCtx, test, scope)
	if ctx.Err() != nil {
		return models.RunCancelled, Outcome{Details: test.Name + " cancelled before completion."}
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("evaluation timed out after %s", o.timeout)
		}
		return models.RunFailed, Outcome{Metrics: out.Metrics, Details: fmt.Sprintf("%s could not complete: %v", test.Name, err)}
	}
	if out.Passed {
		if out.Details == "" {
			out.Details = test.Name + " completed successfully. All systems operating normally."
		}
		return models.RunPassed, out
	}
	if out.Details == "" {
		out.Details = test.Name + " detected issues. Review recommended."
	}
	return models.RunFailed, out
}

func (o *Orchestrator) finish(ctx context.Context, k key, f *flight, status models.RunStatus, out Outcome) {
	completed := o.now().UTC()
	run := f.run
	run.Status = status
	run.CompletedAt = &completed
	run.Details = out.Details
	run.Metrics = out.Metrics

	// Persist before releasing the key so a caller that sees the key idle
	// also sees its result.
	rec := context.WithoutCancel(ctx)
	o.mu.Lock()
	if err := o.store.SaveRun(rec, run); err != nil {
		o.log.Error("save diagnostic run", "test_id", k.test, "scope", k.scope, "err", err)
	}
	f.run = run
	delete(o.inflight, k)
	o.mu.Unlock()

	o.recorder.RecordRun(rec, run)
	kind := events.DiagnosticCompleted
	if status == models.RunCancelled {
		kind = events.DiagnosticCancelled
	}
	o.log.Info("diagnostic finished", "test_id", k.test, "scope", k.scope, "status", status)
	o.events.Publish(rec, events.New(rec, completed, kind, events.EntityDiagnostic, run.ID, map[string]any{
		"test_id":    run.TestID,
		"scope":      run.Scope,
		"status":     run.Status,
		"latency_ms": run.Metrics.LatencyMs,
		"error_rate": run.Metrics.ErrorRate,
	}))
}

func (o *Orchestrator) IsRunning(testID, scope string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.inflight[key{testID, scope}]
	return ok
}

// Running lists the runs currently in flight ordered by start time.
func (o *Orchestrator) Running() []models.TestRun {
	o.mu.Lock()
	out := make([]models.TestRun, 0, len(o.inflight))
	for _, f := range o.inflight {
		out = append(out, f.run)
	}
	o.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

// Result returns the latest terminal run for the key. ok is false when the
// key has never completed.
func (o *Orchestrator) Result(ctx context.Context, testID, scope string) (run models.TestRun, ok bool, err error) {
	if _, err := o.lookup(testID, scope); err != nil {
		return models.TestRun{}, false, err
	}
	run, err = o.store.LatestRun(ctx, testID, scope)
	if errors.Is(err, models.ErrNotFound) {
		return models.TestRun{}, false, nil
	}
	if err != nil {
		return models.TestRun{}, false, err
	}
	return run, true, nil
}

// Cancel stops the in-flight run for the key and waits for its terminal
// record. A run that finishes while the cancel is delivered keeps its outcome.
func (o *Orchestrator) Cancel(ctx context.Context, testID, scope string) (models.TestRun, error) {
	if _, err := o.lookup(testID, scope); err != nil {
		return models.TestRun{}, err
	}
	o.mu.Lock()
	f, ok := o.inflight[key{testID, scope}]
	if !ok {
		o.mu.Unlock()
		return models.TestRun{}, fmt.Errorf("test %s on %s: %w", testID, scope, models.ErrNotRunning)
	}
	f.cancel()
	o.mu.Unlock()

	select {
	case <-f.done:
	case <-ctx.Done():
		return models.TestRun{}, ctx.Err()
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	return f.run, nil
}

// Close cancels every in-flight run and waits for them to be recorded.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()
	o.cancel()
	o.wg.Wait()
}
