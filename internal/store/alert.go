package store

import (
	"database/sql"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = errors.New("not found")

// Alert is a fired alert as stored in the history table.
type Alert struct {
	ID             string
	Seq            int
	Detector       string
	Candidates     int
	BestConfidence float64
	SnapshotPath   string
	SnapshotError  string
	FiredAt        time.Time
}

// AlertRepository provides access to the alert history.
type AlertRepository struct {
	db *sql.DB
}

// Alerts returns the alert repository for this store.
func (s *Store) Alerts() *AlertRepository {
	return &AlertRepository{db: s.db}
}

// Create inserts a new alert.
func (r *AlertRepository) Create(a *Alert) error {
	if a.FiredAt.IsZero() {
		a.FiredAt = time.Now()
	}

	_, err := r.db.Exec(
		`INSERT INTO alerts (id, seq, detector, candidates, best_confidence, snapshot_path, snapshot_error, fired_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Seq, a.Detector, a.Candidates, a.BestConfidence, a.SnapshotPath, a.SnapshotError, a.FiredAt.UTC(),
	)
	return err
}

// GetByID retrieves an alert by its ID.
func (r *AlertRepository) GetByID(id string) (*Alert, error) {
	a := &Alert{}
	err := r.db.QueryRow(
		`SELECT id, seq, detector, candidates, best_confidence, snapshot_path, snapshot_error, fired_at
		 FROM alerts WHERE id = ?`,
		id,
	).Scan(&a.ID, &a.Seq, &a.Detector, &a.Candidates, &a.BestConfidence, &a.SnapshotPath, &a.SnapshotError, &a.FiredAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return a, nil
}

// List returns up to limit alerts, newest first. limit <= 0 returns all.
func (r *AlertRepository) List(limit int) ([]Alert, error) {
	query := `SELECT id, seq, detector, candidates, best_confidence, snapshot_path, snapshot_error, fired_at
		 FROM alerts ORDER BY fired_at DESC, seq DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []Alert
	for rows.Next() {
		var a Alert
		if err := rows.Scan(&a.ID, &a.Seq, &a.Detector, &a.Candidates, &a.BestConfidence, &a.SnapshotPath, &a.SnapshotError, &a.FiredAt); err != nil {
			return nil, err
		}
		alerts = append(alerts, a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return alerts, nil
}

// Count returns the number of stored alerts.
func (r *AlertRepository) Count() (int, error) {
	var n int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM alerts`).Scan(&n)
	return n, err
}
