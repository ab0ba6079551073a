package app

import (
	"context"
	"fmt"

	"edgegrid/internal/alerts"
	"edgegrid/internal/broadcast"
	"edgegrid/internal/config"
	"edgegrid/internal/db"
	"edgegrid/internal/events"
	"edgegrid/internal/memstore"
	"edgegrid/internal/models"
	"edgegrid/internal/retention"
	"edgegrid/internal/traffic"
	"edgegrid/internal/web"
)

type runStore interface {
	SaveRun(ctx context.Context, run models.TestRun) error
	LatestRun(ctx context.Context, testID, scope string) (models.TestRun, error)
	ListRuns(ctx context.Context, testID, scope string, limit int) ([]models.TestRun, error)
}

type auditStore interface {
	events.Appender
	web.AuditReader
}

type stores struct {
	alerts     alerts.Store
	devices    traffic.Store
	runs       runStore
	broadcasts broadcast.Store
	audit      auditStore
	retention  retention.Store
	ready      web.Pinger
	close      func() error
}

func openStores(cfg config.Config) (*stores, error) {
	switch cfg.Store {
	case config.StoreMemory:
		return memoryStores(), nil
	case config.StoreSQLite:
		return sqliteStores(cfg.DBPath)
	}
	return nil, fmt.Errorf("unknown store %q", cfg.Store)
}

func sqliteStores(path string) (*stores, error) {
	sqldb, err := db.Open(path)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(sqldb); err != nil {
		_ = sqldb.Close()
		return nil, err
	}
	repo := db.NewRepository(sqldb)
	return &stores{
		alerts:     repo,
		devices:    repo,
		runs:       repo,
		broadcasts: repo,
		audit:      repo,
		retention:  repo,
		ready:      repo,
		close:      sqldb.Close,
	}, nil
}

// memRetention prunes the two in-memory histories together.
type memRetention struct {
	*memstore.Audit
	*memstore.Runs
}

type alwaysReady struct{}

func (alwaysReady) Ping(context.Context) error { return nil }

func memoryStores() *stores {
	audit := memstore.NewAudit()
	runs := memstore.NewRuns()
	return &stores{
		alerts:     memstore.NewAlerts(),
		devices:    memstore.NewDevices(models.DefaultTrafficLights()),
		runs:       runs,
		broadcasts: memstore.NewBroadcasts(),
		audit:      audit,
		retention:  memRetention{Audit: audit, Runs: runs},
		ready:      alwaysReady{},
		close:      func() error { return nil },
	}
}

var _ retention.Store = memRetention{}
