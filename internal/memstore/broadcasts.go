package memstore

import (
	"context"
	"sync"

	"edgegrid/internal/models"
)

// Broadcasts is an append-only message log.
type Broadcasts struct {
	mu   sync.RWMutex
	msgs []models.BroadcastMessage
}

func NewBroadcasts() *Broadcasts { return &Broadcasts{} }

func (s *Broadcasts) InsertBroadcast(_ context.Context, m models.BroadcastMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, cloneBroadcast(m))
	return nil
}

func (s *Broadcasts) GetBroadcast(_ context.Context, id string) (models.BroadcastMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.msgs {
		if m.ID == id {
			return cloneBroadcast(m), nil
		}
	}
	return models.BroadcastMessage{}, models.ErrNotFound
}

// RecentBroadcasts returns up to limit messages, newest first.
func (s *Broadcasts) RecentBroadcasts(_ context.Context, limit int) ([]models.BroadcastMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.BroadcastMessage, 0, min(limit, len(s.msgs)))
	for i := len(s.msgs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, cloneBroadcast(s.msgs[i]))
	}
	return out, nil
}

func cloneBroadcast(m models.BroadcastMessage) models.BroadcastMessage {
	m.Channels = append([]models.Channel(nil), m.Channels...)
	return m
}
