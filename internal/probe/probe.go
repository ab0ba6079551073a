// Package probe evaluates diagnostic tests by issuing HTTP health checks
// against edge nodes.
package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"edgegrid/internal/diagnostics"
	"edgegrid/internal/models"
)

// Check describes how one catalog test is probed and judged.
type Check struct {
	Path         string
	Requests     int
	MaxErrorRate float64 // percent
	MaxLatencyMs float64
}

var DefaultChecks = map[string]Check{
	"connectivity": {Path: "/healthz", Requests: 5, MaxErrorRate: 0, MaxLatencyMs: 250},
	"performance":  {Path: "/healthz", Requests: 20, MaxErrorRate: 5, MaxLatencyMs: 100},
	"security":     {Path: "/readyz", Requests: 3, MaxErrorRate: 0, MaxLatencyMs: 1000},
	"storage":      {Path: "/readyz", Requests: 5, MaxErrorRate: 0, MaxLatencyMs: 500},
	"services":     {Path: "/readyz", Requests: 5, MaxErrorRate: 0, MaxLatencyMs: 500},
}

// Evaluator probes node base URLs. Each node sits behind its own circuit
// breaker so a dead node fails fast instead of eating the evaluation timeout.
type Evaluator struct {
	HTTP *http.Client

	nodes    map[string]string
	checks   map[string]Check
	breakers map[string]*gobreaker.CircuitBreaker
	log      *slog.Logger
}

var _ diagnostics.Evaluator = (*Evaluator)(nil)

func NewEvaluator(nodes map[string]string, checks map[string]Check, logger *slog.Logger) *Evaluator {
	if checks == nil {
		checks = DefaultChecks
	}
	e := &Evaluator{
		HTTP:     &http.Client{Timeout: 5 * time.Second},
		nodes:    make(map[string]string, len(nodes)),
		checks:   checks,
		breakers: make(map[string]*gobreaker.CircuitBreaker, len(nodes)),
		log:      logger,
	}
	for id, base := range nodes {
		e.nodes[id] = strings.TrimRight(base, "/")
		e.breakers[id] = newBreaker(id, logger)
	}
	return e
}

func newBreaker(node string, logger *slog.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:     "probe-" + node,
		Interval: time.Minute,
		Timeout:  30 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("probe breaker state", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
}

type tally struct {
	ok, failed int
	latency    time.Duration
	elapsed    time.Duration
}

func (e *Evaluator) Evaluate(ctx context.Context, test models.DiagnosticTest, scope string) (diagnostics.Outcome, error) {
	check, ok := e.checks[test.ID]
	if !ok {
		return diagnostics.Outcome{}, fmt.Errorf("no probe defined for test %s", test.ID)
	}
	targets, err := e.targets(scope)
	if err != nil {
		return diagnostics.Outcome{}, err
	}

	var total tally
	for _, node := range targets {
		t := e.probeNode(ctx, node, check)
		total.ok += t.ok
		total.failed += t.failed
		total.latency += t.latency
		total.elapsed += t.elapsed
	}
	if err := ctx.Err(); err != nil {
		return diagnostics.Outcome{}, err
	}

	n := total.ok + total.failed
	var m models.RunMetrics
	if total.ok > 0 {
		m.LatencyMs = float64(total.latency.Microseconds()) / 1000 / float64(total.ok)
	}
	if total.elapsed > 0 {
		m.Throughput = float64(total.ok) / total.elapsed.Seconds()
	}
	if n > 0 {
		m.ErrorRate = float64(total.failed) * 100 / float64(n)
	}

	passed := total.ok > 0 && m.ErrorRate <= check.MaxErrorRate && m.LatencyMs <= check.MaxLatencyMs
	details := fmt.Sprintf("%s: %d/%d probes succeeded across %d node(s), avg latency %.1fms, error rate %.1f%%.",
		test.Name, total.ok, n, len(targets), m.LatencyMs, m.ErrorRate)
	return diagnostics.Outcome{Passed: passed, Metrics: m, Details: details}, nil
}

func (e *Evaluator) targets(scope string) ([]string, error) {
	if scope != models.ScopeAll {
		if _, ok := e.nodes[scope]; !ok {
			return nil, fmt.Errorf("node %s has no probe address", scope)
		}
		return []string{scope}, nil
	}
	if len(e.nodes) == 0 {
		return nil, errors.New("no probe addresses configured")
	}
	out := make([]string, 0, len(e.nodes))
	for id := range e.nodes {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func (e *Evaluator) probeNode(ctx context.Context, node string, check Check) tally {
	var t tally
	url := e.nodes[node] + check.Path
	cb := e.breakers[node]
	start := time.Now()
	for i := 0; i < check.Requests; i++ {
		if ctx.Err() != nil {
			break
		}
		began := time.Now()
		_, err := cb.Execute(func() (any, error) {
			return nil, e.get(ctx, url)
		})
		if err != nil {
			t.failed++
			e.log.Debug("probe failed", "node", node, "url", url, "err", err)
			continue
		}
		t.ok++
		t.latency += time.Since(began)
	}
	t.elapsed = time.Since(start)
	return t
}

func (e *Evaluator) get(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := e.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s returned %s", url, resp.Status)
	}
	return nil
}
