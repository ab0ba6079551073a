package memstore

import (
	"context"
	"sync"

	"edgegrid/internal/models"
)

// Alerts keeps alerts in insertion order.
type Alerts struct {
	mu    sync.RWMutex
	order []string
	byID  map[string]models.Alert
}

func NewAlerts() *Alerts {
	return &Alerts{byID: make(map[string]models.Alert)}
}

func (s *Alerts) InsertAlert(_ context.Context, a models.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[a.ID]; !ok {
		s.order = append(s.order, a.ID)
	}
	s.byID[a.ID] = cloneAlert(a)
	return nil
}

func (s *Alerts) GetAlert(_ context.Context, id string) (models.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.byID[id]
	if !ok {
		return models.Alert{}, models.ErrNotFound
	}
	return cloneAlert(a), nil
}

func (s *Alerts) ListAlerts(_ context.Context) ([]models.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Alert, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, cloneAlert(s.byID[id]))
	}
	return out, nil
}

func (s *Alerts) UpdateAlert(_ context.Context, a models.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[a.ID]; !ok {
		return models.ErrNotFound
	}
	s.byID[a.ID] = cloneAlert(a)
	return nil
}

func (s *Alerts) DeleteAlert(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[id]; !ok {
		return models.ErrNotFound
	}
	delete(s.byID, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

func cloneAlert(a models.Alert) models.Alert {
	if a.ResolvedAt != nil {
		t := *a.ResolvedAt
		a.ResolvedAt = &t
	}
	if a.ReadAt != nil {
		t := *a.ReadAt
		a.ReadAt = &t
	}
	return a
}
