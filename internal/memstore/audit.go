package memstore

import (
	"context"
	"sync"
	"time"

	"edgegrid/internal/events"
)

// Audit is an in-memory append-only event log.
type Audit struct {
	mu     sync.RWMutex
	events []events.Event
}

func NewAudit() *Audit { return &Audit{} }

func (s *Audit) AppendEvent(_ context.Context, e events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

// ListEvents returns matching events newest first.
func (s *Audit) ListEvents(_ context.Context, f events.Filter) ([]events.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []events.Event
	for i := len(s.events) - 1; i >= 0; i-- {
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
		if f.Match(s.events[i]) {
			out = append(out, s.events[i])
		}
	}
	return out, nil
}

func (s *Audit) DeleteEventsBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.events[:0]
	var n int64
	for _, e := range s.events {
		if e.At.Before(cutoff) {
			n++
			continue
		}
		kept = append(kept, e)
	}
	s.events = kept
	return n, nil
}
