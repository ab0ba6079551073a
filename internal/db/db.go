package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"edgegrid/internal/models"
)

func Open(path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir data dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.Exec(`PRAGMA synchronous=NORMAL; PRAGMA temp_store=MEMORY;`); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Migrate creates the schema and provisions the fixed signal inventory.
// Keyspaces are independent; alerts.device_id is a plain back-reference.
func Migrate(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS alerts (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			title TEXT NOT NULL,
			description TEXT NOT NULL,
			severity TEXT NOT NULL,
			category TEXT NOT NULL,
			status TEXT NOT NULL,
			location TEXT NOT NULL,
			device_id TEXT NOT NULL,
			estimated_resolution TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			resolved_at DATETIME,
			read_at DATETIME
		);`,
		`CREATE TABLE IF NOT EXISTS traffic_lights (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			location TEXT NOT NULL,
			lat REAL NOT NULL,
			lng REAL NOT NULL,
			status TEXT NOT NULL,
			mode TEXT NOT NULL,
			phase TEXT NOT NULL,
			hold_seconds INTEGER NOT NULL DEFAULT 0,
			phase_changed_at DATETIME,
			updated_at DATETIME
		);`,
		`CREATE TABLE IF NOT EXISTS diagnostic_runs (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			test_id TEXT NOT NULL,
			scope TEXT NOT NULL,
			status TEXT NOT NULL,
			started_at DATETIME NOT NULL,
			completed_at DATETIME,
			details TEXT NOT NULL,
			latency_ms REAL NOT NULL,
			throughput REAL NOT NULL,
			error_rate REAL NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS broadcasts (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			body TEXT NOT NULL,
			channels_json TEXT NOT NULL,
			priority TEXT NOT NULL,
			duration_minutes INTEGER NOT NULL,
			created_at DATETIME NOT NULL,
			status TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS audit_events (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			at DATETIME NOT NULL,
			kind TEXT NOT NULL,
			entity TEXT NOT NULL,
			entity_id TEXT NOT NULL,
			actor TEXT NOT NULL,
			data_json TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_key ON diagnostic_runs(test_id, scope, seq DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started ON diagnostic_runs(started_at);`,
		`CREATE INDEX IF NOT EXISTS idx_audit_entity ON audit_events(entity, entity_id, seq DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_audit_at ON audit_events(at);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate failed: %w", err)
		}
	}
	if err := addColumn(db, "alerts", "read_at", "DATETIME"); err != nil {
		return fmt.Errorf("migrate failed: %w", err)
	}
	return seedTrafficLights(db, models.DefaultTrafficLights())
}

// addColumn upgrades tables created before the column existed.
func addColumn(db *sql.DB, table, column, decl string) error {
	rows, err := db.Query(`SELECT name FROM pragma_table_info(?)`, table)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return err
		}
		if name == column {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	_, err = db.Exec(fmt.Sprintf(`ALTER TABLE %s ADD COLUMN %s %s`, table, column, decl))
	return err
}

func seedTrafficLights(db *sql.DB, inventory []models.TrafficLight) error {
	for _, d := range inventory {
		_, err := db.Exec(`INSERT INTO traffic_lights (id,name,location,lat,lng,status,mode,phase,hold_seconds)
			SELECT ?,?,?,?,?,?,?,?,0 WHERE NOT EXISTS (SELECT 1 FROM traffic_lights WHERE id = ?)`,
			d.ID, d.Name, d.Location, d.Lat, d.Lng, d.Status, d.Mode, d.Phase, d.ID)
		if err != nil {
			return err
		}
	}
	return nil
}
