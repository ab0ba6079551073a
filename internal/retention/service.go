// Package retention prunes the audit log and diagnostic run history.
package retention

import (
	"context"
	"log/slog"
	"time"
)

type Store interface {
	DeleteEventsBefore(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteRunsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// compactor is implemented by stores that can reclaim space after a prune.
type compactor interface {
	Compact(ctx context.Context)
}

type Service struct {
	store         Store
	retentionDays int
	log           *slog.Logger
	now           func() time.Time
}

func NewService(store Store, days int, logger *slog.Logger) *Service {
	if days <= 0 {
		days = 14
	}
	return &Service{store: store, retentionDays: days, log: logger, now: time.Now}
}

// Run performs one cleanup pass.
func (s *Service) Run(ctx context.Context) {
	cutoff := s.now().UTC().AddDate(0, 0, -s.retentionDays)
	evs, err := s.store.DeleteEventsBefore(ctx, cutoff)
	if err != nil {
		s.log.Error("retention cleanup failed", "table", "audit_events", "err", err)
		return
	}
	runs, err := s.store.DeleteRunsBefore(ctx, cutoff)
	if err != nil {
		s.log.Error("retention cleanup failed", "table", "diagnostic_runs", "err", err)
		return
	}
	if c, ok := s.store.(compactor); ok && evs+runs > 0 {
		c.Compact(ctx)
	}
	s.log.Info("retention cleanup completed", "cutoff", cutoff, "events_deleted", evs, "runs_deleted", runs)
}

// Loop runs a pass immediately and then every interval until ctx is done.
func (s *Service) Loop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	s.Run(ctx)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.Run(ctx)
		}
	}
}
