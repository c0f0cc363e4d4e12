// Package storage provides SQLite-backed persistence for watch settings and the alert log.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rewired-gh/pricewatch/internal/models"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

// Storage wraps a SQLite database for all persistence operations.
type Storage struct {
	db        *sql.DB
	maxAlerts int
}

// AlertRecord is a logged alert together with its delivery outcome.
type AlertRecord struct {
	models.AlertEvent
	Delivered bool `json:"delivered"`
}

// New opens or creates the SQLite database at dbPath, keeping at most maxAlerts log rows.
// An empty dbPath defaults to $TMPDIR/pricewatch/data.db.
func New(maxAlerts int, dbPath string) (*Storage, error) {
	if dbPath == "" {
		dbPath = filepath.Join(os.TempDir(), "pricewatch", "data.db")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer; WAL allows concurrent readers
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	s := &Storage{db: db, maxAlerts: maxAlerts}
	if err := s.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS settings (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS alerts (
			id            TEXT PRIMARY KEY,
			direction     TEXT NOT NULL,
			market        TEXT NOT NULL,
			price         TEXT NOT NULL,
			relative_pct  TEXT NOT NULL,
			threshold_pct TEXT NOT NULL,
			fired_at      INTEGER NOT NULL,
			test          INTEGER NOT NULL DEFAULT 0,
			delivered     INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_fired_at ON alerts(fired_at DESC)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// GetSettings returns every stored setting.
func (s *Storage) GetSettings() (map[string]string, error) {
	rows, err := s.db.Query(`SELECT key, value FROM settings`)
	if err != nil {
		return nil, fmt.Errorf("failed to query settings: %w", err)
	}
	defer rows.Close()

	settings := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan setting: %w", err)
		}
		settings[key] = value
	}
	return settings, rows.Err()
}

// PutSettings upserts all given settings in one transaction.
func (s *Storage) PutSettings(values map[string]string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UnixNano()
	for key, value := range values {
		if _, err := tx.Exec(`
			INSERT INTO settings (key, value, updated_at) VALUES (?,?,?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			key, value, now,
		); err != nil {
			return fmt.Errorf("failed to save setting %s: %w", key, err)
		}
	}
	return tx.Commit()
}

// AddAlert logs a fired alert as not yet delivered and trims the log to maxAlerts rows.
func (s *Storage) AddAlert(alert *models.AlertEvent) error {
	if alert.ID == "" {
		return fmt.Errorf("alert ID must not be empty")
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.Exec(`
		INSERT INTO alerts
			(id, direction, market, price, relative_pct, threshold_pct, fired_at, test, delivered)
		VALUES (?,?,?,?,?,?,?,?,0)`,
		alert.ID, string(alert.Direction), alert.Market,
		alert.Price.String(), alert.RelativePct.String(), alert.ThresholdPct.String(),
		alert.FiredAt.UnixNano(), boolToInt(alert.Test),
	)
	if err != nil {
		return fmt.Errorf("failed to insert alert: %w", err)
	}

	if s.maxAlerts > 0 {
		if _, err = tx.Exec(`
			DELETE FROM alerts WHERE id NOT IN (
				SELECT id FROM alerts ORDER BY fired_at DESC LIMIT ?
			)`, s.maxAlerts); err != nil {
			return fmt.Errorf("failed to enforce alert cap: %w", err)
		}
	}

	return tx.Commit()
}

// MarkDelivered records the delivery outcome of a logged alert.
func (s *Storage) MarkDelivered(id string, delivered bool) error {
	res, err := s.db.Exec(`UPDATE alerts SET delivered = ? WHERE id = ?`, boolToInt(delivered), id)
	if err != nil {
		return fmt.Errorf("failed to update alert: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("alert not found: %s", id)
	}
	return nil
}

// RecentAlerts returns up to limit logged alerts, newest first.
func (s *Storage) RecentAlerts(limit int) ([]AlertRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, direction, market, price, relative_pct, threshold_pct, fired_at, test, delivered
		FROM alerts ORDER BY fired_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	records := []AlertRecord{}
	for rows.Next() {
		r, err := scanAlert(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		records = append(records, *r)
	}
	return records, rows.Err()
}

func scanAlert(scan func(...any) error) (*AlertRecord, error) {
	var r AlertRecord
	var direction, price, rel, threshold string
	var firedAtNano int64
	var test, delivered int
	err := scan(
		&r.ID, &direction, &r.Market, &price, &rel, &threshold,
		&firedAtNano, &test, &delivered,
	)
	if err != nil {
		return nil, err
	}
	r.Direction = models.Direction(direction)
	if r.Price, err = decimal.NewFromString(price); err != nil {
		return nil, fmt.Errorf("invalid price %q: %w", price, err)
	}
	if r.RelativePct, err = decimal.NewFromString(rel); err != nil {
		return nil, fmt.Errorf("invalid relative pct %q: %w", rel, err)
	}
	if r.ThresholdPct, err = decimal.NewFromString(threshold); err != nil {
		return nil, fmt.Errorf("invalid threshold pct %q: %w", threshold, err)
	}
	r.FiredAt = time.Unix(0, firedAtNano)
	r.Test = test != 0
	r.Delivered = delivered != 0
	return &r, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
