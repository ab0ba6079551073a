package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"edgegrid/internal/events"
	"edgegrid/internal/models"
)

// Repository implements every component store on one sqlite database.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) DB() *sql.DB { return r.db }

func (r *Repository) Ping(ctx context.Context) error { return r.db.PingContext(ctx) }

type scanner interface {
	Scan(dest ...any) error
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return models.ErrNotFound
	}
	return err
}

func affected(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return models.ErrNotFound
	}
	return nil
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}

func nullTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

// Alerts

const alertColumns = `id,title,description,severity,category,status,location,device_id,estimated_resolution,created_at,resolved_at,read_at`

func scanAlert(s scanner) (models.Alert, error) {
	var a models.Alert
	var resolved, read sql.NullTime
	if err := s.Scan(&a.ID, &a.Title, &a.Description, &a.Severity, &a.Category, &a.Status, &a.Location,
		&a.DeviceID, &a.EstimatedResolution, &a.CreatedAt, &resolved, &read); err != nil {
		return models.Alert{}, err
	}
	a.CreatedAt = a.CreatedAt.UTC()
	if resolved.Valid {
		t := resolved.Time.UTC()
		a.ResolvedAt = &t
	}
	if read.Valid {
		t := read.Time.UTC()
		a.Read, a.ReadAt = true, &t
	}
	return a, nil
}

func (r *Repository) InsertAlert(ctx context.Context, a models.Alert) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO alerts (`+alertColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		a.ID, a.Title, a.Description, a.Severity, a.Category, a.Status, a.Location, a.DeviceID, a.EstimatedResolution,
		a.CreatedAt.UTC(), nullTimePtr(a.ResolvedAt), nullTimePtr(a.ReadAt))
	return err
}

func (r *Repository) GetAlert(ctx context.Context, id string) (models.Alert, error) {
	a, err := scanAlert(r.db.QueryRowContext(ctx, `SELECT `+alertColumns+` FROM alerts WHERE id = ?`, id))
	return a, notFound(err)
}

func (r *Repository) ListAlerts(ctx context.Context) ([]models.Alert, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+alertColumns+` FROM alerts ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *Repository) UpdateAlert(ctx context.Context, a models.Alert) error {
	return affected(r.db.ExecContext(ctx, `UPDATE alerts SET title=?,description=?,severity=?,category=?,status=?,location=?,
		device_id=?,estimated_resolution=?,created_at=?,resolved_at=?,read_at=? WHERE id=?`,
		a.Title, a.Description, a.Severity, a.Category, a.Status, a.Location, a.DeviceID, a.EstimatedResolution,
		a.CreatedAt.UTC(), nullTimePtr(a.ResolvedAt), nullTimePtr(a.ReadAt), a.ID))
}

func (r *Repository) DeleteAlert(ctx context.Context, id string) error {
	return affected(r.db.ExecContext(ctx, `DELETE FROM alerts WHERE id=?`, id))
}

// Traffic lights

const lightColumns = `id,name,location,lat,lng,status,mode,phase,hold_seconds,phase_changed_at,updated_at`

func scanLight(s scanner) (models.TrafficLight, error) {
	var d models.TrafficLight
	var changed, updated sql.NullTime
	if err := s.Scan(&d.ID, &d.Name, &d.Location, &d.Lat, &d.Lng, &d.Status, &d.Mode, &d.Phase, &d.HoldSeconds,
		&changed, &updated); err != nil {
		return models.TrafficLight{}, err
	}
	if changed.Valid {
		d.PhaseChangedAt = changed.Time.UTC()
	}
	if updated.Valid {
		d.UpdatedAt = updated.Time.UTC()
	}
	return d, nil
}

func (r *Repository) GetTrafficLight(ctx context.Context, id string) (models.TrafficLight, error) {
	d, err := scanLight(r.db.QueryRowContext(ctx, `SELECT `+lightColumns+` FROM traffic_lights WHERE id = ?`, id))
	return d, notFound(err)
}

func (r *Repository) ListTrafficLights(ctx context.Context) ([]models.TrafficLight, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+lightColumns+` FROM traffic_lights ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.TrafficLight
	for rows.Next() {
		d, err := scanLight(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *Repository) UpdateTrafficLight(ctx context.Context, d models.TrafficLight) error {
	return affected(r.db.ExecContext(ctx, `UPDATE traffic_lights SET name=?,location=?,lat=?,lng=?,status=?,mode=?,phase=?,
		hold_seconds=?,phase_changed_at=?,updated_at=? WHERE id=?`,
		d.Name, d.Location, d.Lat, d.Lng, d.Status, d.Mode, d.Phase, d.HoldSeconds,
		nullTime(d.PhaseChangedAt), nullTime(d.UpdatedAt), d.ID))
}

// Diagnostic runs

const runColumns = `id,test_id,scope,status,started_at,completed_at,details,latency_ms,throughput,error_rate`

func scanRun(s scanner) (models.TestRun, error) {
	var run models.TestRun
	var completed sql.NullTime
	if err := s.Scan(&run.ID, &run.TestID, &run.Scope, &run.Status, &run.StartedAt, &completed, &run.Details,
		&run.Metrics.LatencyMs, &run.Metrics.Throughput, &run.Metrics.ErrorRate); err != nil {
		return models.TestRun{}, err
	}
	run.StartedAt = run.StartedAt.UTC()
	if completed.Valid {
		t := completed.Time.UTC()
		run.CompletedAt = &t
	}
	return run, nil
}

func (r *Repository) SaveRun(ctx context.Context, run models.TestRun) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO diagnostic_runs (`+runColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		run.ID, run.TestID, run.Scope, run.Status, run.StartedAt.UTC(), nullTimePtr(run.CompletedAt), run.Details,
		run.Metrics.LatencyMs, run.Metrics.Throughput, run.Metrics.ErrorRate)
	return err
}

func (r *Repository) LatestRun(ctx context.Context, testID, scope string) (models.TestRun, error) {
	run, err := scanRun(r.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM diagnostic_runs
		WHERE test_id = ? AND scope = ? ORDER BY seq DESC LIMIT 1`, testID, scope))
	return run, notFound(err)
}

// ListRuns returns one key's history, newest first.
func (r *Repository) ListRuns(ctx context.Context, testID, scope string, limit int) ([]models.TestRun, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `SELECT `+runColumns+` FROM diagnostic_runs
		WHERE test_id = ? AND scope = ? ORDER BY seq DESC LIMIT ?`, testID, scope, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]models.TestRun, 0, limit)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

// DeleteRunsBefore keeps the latest run of every key regardless of age.
func (r *Repository) DeleteRunsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM diagnostic_runs WHERE started_at < ?
		AND seq NOT IN (SELECT MAX(seq) FROM diagnostic_runs GROUP BY test_id, scope)`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Broadcasts

const broadcastColumns = `id,body,channels_json,priority,duration_minutes,created_at,status`

func scanBroadcast(s scanner) (models.BroadcastMessage, error) {
	var m models.BroadcastMessage
	var channels string
	if err := s.Scan(&m.ID, &m.Body, &channels, &m.Priority, &m.DurationMinutes, &m.CreatedAt, &m.Status); err != nil {
		return models.BroadcastMessage{}, err
	}
	m.CreatedAt = m.CreatedAt.UTC()
	if err := json.Unmarshal([]byte(channels), &m.Channels); err != nil {
		return models.BroadcastMessage{}, fmt.Errorf("broadcast %s channels: %w", m.ID, err)
	}
	return m, nil
}

func (r *Repository) InsertBroadcast(ctx context.Context, m models.BroadcastMessage) error {
	b, err := json.Marshal(m.Channels)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `INSERT INTO broadcasts (`+broadcastColumns+`) VALUES (?,?,?,?,?,?,?)`,
		m.ID, m.Body, string(b), m.Priority, m.DurationMinutes, m.CreatedAt.UTC(), m.Status)
	return err
}

func (r *Repository) GetBroadcast(ctx context.Context, id string) (models.BroadcastMessage, error) {
	m, err := scanBroadcast(r.db.QueryRowContext(ctx, `SELECT `+broadcastColumns+` FROM broadcasts WHERE id = ?`, id))
	return m, notFound(err)
}

func (r *Repository) RecentBroadcasts(ctx context.Context, limit int) ([]models.BroadcastMessage, error) {
	if limit <= 0 || limit > 500 {
		limit = 500
	}
	rows, err := r.db.QueryContext(ctx, `SELECT `+broadcastColumns+` FROM broadcasts ORDER BY seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]models.BroadcastMessage, 0, min(limit, 64))
	for rows.Next() {
		m, err := scanBroadcast(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Audit log

func (r *Repository) AppendEvent(ctx context.Context, e events.Event) error {
	b, err := json.Marshal(e.Data)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `INSERT INTO audit_events (id,at,kind,entity,entity_id,actor,data_json) VALUES (?,?,?,?,?,?,?)`,
		e.ID, e.At.UTC(), e.Kind, e.Entity, e.EntityID, e.Actor, string(b))
	return err
}

// ListEvents returns matching events newest first.
func (r *Repository) ListEvents(ctx context.Context, f events.Filter) ([]events.Event, error) {
	clauses := []string{"1=1"}
	args := []any{}
	if f.Entity != "" {
		clauses = append(clauses, "entity = ?")
		args = append(args, f.Entity)
	}
	if f.EntityID != "" {
		clauses = append(clauses, "entity_id = ?")
		args = append(args, f.EntityID)
	}
	if f.Kind != "" {
		clauses = append(clauses, "kind = ?")
		args = append(args, f.Kind)
	}
	if !f.Since.IsZero() {
		clauses = append(clauses, "at >= ?")
		args = append(args, f.Since.UTC())
	}
	limit := f.Limit
	if limit <= 0 || limit > 1000 {
		limit = 200
	}
	args = append(args, limit)
	query := fmt.Sprintf(`SELECT id,at,kind,entity,entity_id,actor,data_json FROM audit_events WHERE %s ORDER BY seq DESC LIMIT ?`,
		strings.Join(clauses, " AND "))
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]events.Event, 0, limit)
	for rows.Next() {
		var e events.Event
		var data string
		if err := rows.Scan(&e.ID, &e.At, &e.Kind, &e.Entity, &e.EntityID, &e.Actor, &data); err != nil {
			return nil, err
		}
		e.At = e.At.UTC()
		if data != "" && data != "null" {
			if err := json.Unmarshal([]byte(data), &e.Data); err != nil {
				return nil, fmt.Errorf("audit event %s data: %w", e.ID, err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *Repository) DeleteEventsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM audit_events WHERE at < ?`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Compact checkpoints the WAL after large deletes.
func (r *Repository) Compact(ctx context.Context) {
	_, _ = r.db.ExecContext(ctx, `PRAGMA wal_checkpoint(TRUNCATE)`)
	_, _ = r.db.ExecContext(ctx, `PRAGMA optimize`)
}
