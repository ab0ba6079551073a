// Package influx ships diagnostic run metrics to InfluxDB.
package influx

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"edgegrid/internal/models"
)

const Measurement = "diagnostic_run"

type Config struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

// pointWriter is the part of api.WriteAPIBlocking the recorder needs.
type pointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

type Recorder struct {
	w       pointWriter
	close   func()
	timeout time.Duration
	log     *slog.Logger
}

func New(cfg Config, logger *slog.Logger) (*Recorder, error) {
	if cfg.URL == "" || cfg.Token == "" || cfg.Org == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("influx config incomplete")
	}
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	return &Recorder{
		w:       client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		close:   client.Close,
		timeout: 5 * time.Second,
		log:     logger,
	}, nil
}

// RecordRun writes one point per measured run. Cancelled runs carry no
// measurement and are skipped. Write failures are logged.
func (r *Recorder) RecordRun(ctx context.Context, run models.TestRun) {
	if run.Status == models.RunCancelled {
		return
	}
	at := run.StartedAt
	if run.CompletedAt != nil {
		at = *run.CompletedAt
	}
	tags := map[string]string{
		"test_id": run.TestID,
		"scope":   run.Scope,
		"status":  string(run.Status),
	}
	fields := map[string]interface{}{
		"latency_ms": run.Metrics.LatencyMs,
		"throughput": run.Metrics.Throughput,
		"error_rate": run.Metrics.ErrorRate,
		"passed":     run.Status == models.RunPassed,
	}
	point := influxdb2.NewPoint(Measurement, tags, fields, at)

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if err := r.w.WritePoint(ctx, point); err != nil {
		r.log.Error("influx write failed", "test_id", run.TestID, "scope", run.Scope, "err", err)
	}
}

func (r *Recorder) Close() {
	if r.close != nil {
		r.close()
	}
}
