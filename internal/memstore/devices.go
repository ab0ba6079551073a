package memstore

import (
	"context"
	"sort"
	"sync"

	"edgegrid/internal/models"
)

type Devices struct {
	mu   sync.RWMutex
	byID map[string]models.TrafficLight
}

// NewDevices provisions the store with a fixed inventory.
func NewDevices(inventory []models.TrafficLight) *Devices {
	s := &Devices{byID: make(map[string]models.TrafficLight, len(inventory))}
	for _, d := range inventory {
		s.byID[d.ID] = d
	}
	return s
}

func (s *Devices) GetTrafficLight(_ context.Context, id string) (models.TrafficLight, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.byID[id]
	if !ok {
		return models.TrafficLight{}, models.ErrNotFound
	}
	return d, nil
}

func (s *Devices) ListTrafficLights(_ context.Context) ([]models.TrafficLight, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.TrafficLight, 0, len(s.byID))
	for _, d := range s.byID {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Devices) UpdateTrafficLight(_ context.Context, d models.TrafficLight) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[d.ID]; !ok {
		return models.ErrNotFound
	}
	s.byID[d.ID] = d
	return nil
}
