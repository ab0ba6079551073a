package memstore

import (
	"context"
	"sync"
	"time"

	"edgegrid/internal/models"
)

type runKey struct{ test, scope string }

// Runs keeps terminal diagnostic runs per (test, scope), oldest first.
type Runs struct {
	mu    sync.RWMutex
	byKey map[runKey][]models.TestRun
}

func NewRuns() *Runs {
	return &Runs{byKey: make(map[runKey][]models.TestRun)}
}

func (s *Runs) SaveRun(_ context.Context, run models.TestRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := runKey{run.TestID, run.Scope}
	s.byKey[k] = append(s.byKey[k], cloneRun(run))
	return nil
}

func (s *Runs) LatestRun(_ context.Context, testID, scope string) (models.TestRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	runs := s.byKey[runKey{testID, scope}]
	if len(runs) == 0 {
		return models.TestRun{}, models.ErrNotFound
	}
	return cloneRun(runs[len(runs)-1]), nil
}

// ListRuns returns the history of one key, newest first.
func (s *Runs) ListRuns(_ context.Context, testID, scope string, limit int) ([]models.TestRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	runs := s.byKey[runKey{testID, scope}]
	out := make([]models.TestRun, 0, len(runs))
	for i := len(runs) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, cloneRun(runs[i]))
	}
	return out, nil
}

// DeleteRunsBefore drops runs started before cutoff, always keeping the
// latest run of every key.
func (s *Runs) DeleteRunsBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k, runs := range s.byKey {
		last := len(runs) - 1
		kept := runs[:0]
		for i, r := range runs {
			if i != last && r.StartedAt.Before(cutoff) {
				n++
				continue
			}
			kept = append(kept, r)
		}
		s.byKey[k] = kept
	}
	return n, nil
}

func cloneRun(r models.TestRun) models.TestRun {
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		r.CompletedAt = &t
	}
	return r
}
