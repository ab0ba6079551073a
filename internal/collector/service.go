// Package collector keeps a health snapshot of the edge node inventory,
// refreshed from node status endpoints and from pushed reports.
package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"edgegrid/internal/models"
)

// Utilisation thresholds in percent. Network is link quality, so it degrades
// downwards.
const (
	WarnPercent     = 80
	CriticalPercent = 95
	NetworkWarn     = 70
	NetworkCritical = 40
)

// Source fetches a fresh sample for one node. ErrNoEndpoint means the node
// is not polled and only pushed reports update it.
type Source interface {
	Fetch(ctx context.Context, node models.Node) (models.NodeReport, error)
}

type Observer interface {
	ObserveNode(h models.NodeHealth)
}

type Service struct {
	mu     sync.RWMutex
	nodes  []models.Node
	health map[string]models.NodeHealth
	src    Source
	obs    Observer
	log    *slog.Logger
	now    func() time.Time
}

func NewService(nodes []models.Node, src Source, obs Observer, logger *slog.Logger) *Service {
	if nodes == nil {
		nodes = models.NodeInventory
	}
	s := &Service{
		nodes:  append([]models.Node(nil), nodes...),
		health: make(map[string]models.NodeHealth, len(nodes)),
		src:    src,
		obs:    obs,
		log:    logger,
		now:    time.Now,
	}
	for _, n := range s.nodes {
		s.health[n.ID] = models.NodeHealth{Node: n, Status: models.NodeUnknown, Services: []string{}}
	}
	return s
}

// Tick polls every node once. A node that cannot be reached keeps its last
// sample and turns critical.
func (s *Service) Tick(ctx context.Context) {
	if s.src == nil {
		return
	}
	for _, n := range s.nodes {
		rep, err := s.src.Fetch(ctx, n)
		if errors.Is(err, ErrNoEndpoint) {
			continue
		}
		if err != nil {
			s.log.Warn("fetch node health", "node", n.ID, "err", err)
			s.markUnreachable(n.ID, err)
			continue
		}
		rep.NodeID = n.ID
		if err := s.Apply(rep); err != nil {
			s.log.Warn("apply node report", "node", n.ID, "err", err)
		}
	}
}

func (s *Service) Loop(ctx context.Context, interval time.Duration) {
	s.Tick(ctx)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.Tick(ctx)
		}
	}
}

// Apply records a report for a known node.
func (s *Service) Apply(rep models.NodeReport) error {
	for name, v := range map[string]float64{"cpu": rep.CPU, "memory": rep.Memory, "storage": rep.Storage, "network": rep.Network} {
		if v < 0 || v > 100 {
			return fmt.Errorf("%w: %s %.1f outside 0..100", models.ErrInvalidInput, name, v)
		}
	}
	if rep.UptimeSeconds < 0 {
		return fmt.Errorf("%w: negative uptime", models.ErrInvalidInput)
	}
	at := rep.At.UTC()
	if rep.At.IsZero() {
		at = s.now().UTC()
	}

	s.mu.Lock()
	h, ok := s.health[rep.NodeID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("node %s: %w", rep.NodeID, models.ErrNotFound)
	}
	h.Status = Classify(rep)
	h.CPU, h.Memory, h.Storage, h.Network = rep.CPU, rep.Memory, rep.Storage, rep.Network
	h.UptimeSeconds = rep.UptimeSeconds
	h.Uptime = FormatUptime(rep.UptimeSeconds)
	h.Services = append([]string{}, rep.Services...)
	h.UpdatedAt = &at
	h.Error = ""
	s.health[rep.NodeID] = h
	s.mu.Unlock()

	if s.obs != nil {
		s.obs.ObserveNode(h)
	}
	return nil
}

func (s *Service) markUnreachable(id string, cause error) {
	s.mu.Lock()
	h := s.health[id]
	h.Status = models.NodeCritical
	h.Error = cause.Error()
	s.health[id] = h
	s.mu.Unlock()
	if s.obs != nil {
		s.obs.ObserveNode(h)
	}
}

// Snapshot returns every node in inventory order.
func (s *Service) Snapshot() []models.NodeHealth {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.NodeHealth, 0, len(s.nodes))
	for _, n := range s.nodes {
		out = append(out, clone(s.health[n.ID]))
	}
	return out
}

func (s *Service) Get(id string) (models.NodeHealth, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.health[id]
	if !ok {
		return models.NodeHealth{}, fmt.Errorf("node %s: %w", id, models.ErrNotFound)
	}
	return clone(h), nil
}

func clone(h models.NodeHealth) models.NodeHealth {
	h.Services = append([]string{}, h.Services...)
	if h.UpdatedAt != nil {
		t := *h.UpdatedAt
		h.UpdatedAt = &t
	}
	return h
}

// Classify grades a report by its worst resource.
func Classify(rep models.NodeReport) models.NodeStatus {
	worst := max(rep.CPU, rep.Memory, rep.Storage)
	switch {
	case worst >= CriticalPercent || rep.Network < NetworkCritical:
		return models.NodeCritical
	case worst >= WarnPercent || rep.Network < NetworkWarn:
		return models.NodeWarning
	default:
		return models.NodeHealthy
	}
}

// FormatUptime renders seconds as "15d 8h 23m".
func FormatUptime(sec int64) string {
	d := sec / 86400
	h := sec % 86400 / 3600
	m := sec % 3600 / 60
	return fmt.Sprintf("%dd %dh %dm", d, h, m)
}
