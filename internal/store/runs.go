package store

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"geodedupe/internal/locfile"
)

// Run statuses.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// Run modes.
const (
	ModeSync        = "sync"
	ModeCooperative = "cooperative"
)

// Run is one dedupe pass over stored locations.
type Run struct {
	ID          string  `json:"id"`
	UserID      string  `json:"user_id"`
	RadiusM     float64 `json:"radius_m"`
	Mode        string  `json:"mode"`
	Status      string  `json:"status"`
	StartedAt   int64   `json:"started_at"`
	CompletedAt *int64  `json:"completed_at,omitempty"`
	InputCount  int     `json:"input_count"`
	KeptCount   int     `json:"kept_count"`
	LastError   *string `json:"last_error,omitempty"`
}

const runColumns = `id, user_id, radius_m, mode, status, started_at, completed_at, input_count, kept_count, last_error`

// CreateRun records a new running dedupe run and returns it.
func (db *DB) CreateRun(userID string, radius float64, mode string) (*Run, error) {
	run := &Run{
		ID:        uuid.New().String(),
		UserID:    userID,
		RadiusM:   radius,
		Mode:      mode,
		Status:    StatusRunning,
		StartedAt: time.Now().Unix(),
	}
	_, err := db.Exec(
		`INSERT INTO dedupe_runs (`+runColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.UserID, run.RadiusM, run.Mode, run.Status, run.StartedAt,
		run.CompletedAt, run.InputCount, run.KeptCount, run.LastError,
	)
	if err != nil {
		return nil, err
	}
	return run, nil
}

// FinishRun moves a running run to its final status. runErr, if not nil,
// is recorded as the run's last error.
func (db *DB) FinishRun(run *Run, status string, runErr error) error {
	if run.Status != StatusRunning {
		return ErrRunFinished
	}

	now := time.Now().Unix()
	run.Status = status
	run.CompletedAt = &now
	if runErr != nil {
		msg := runErr.Error()
		run.LastError = &msg
	}

	res, err := db.Exec(
		`UPDATE dedupe_runs SET status = ?, completed_at = ?, input_count = ?, kept_count = ?, last_error = ?
		 WHERE id = ? AND status = ?`,
		run.Status, run.CompletedAt, run.InputCount, run.KeptCount, run.LastError, run.ID, StatusRunning,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrRunNotFound
	}
	return nil
}

// GetRun retrieves a run by ID. Returns nil, nil if it does not exist.
func (db *DB) GetRun(id string) (*Run, error) {
	row := db.QueryRow(`SELECT `+runColumns+` FROM dedupe_runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

// ListRuns returns recent runs, most recent first.
func (db *DB) ListRuns(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`SELECT `+runColumns+` FROM dedupe_runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

func scanRun(row rowScanner) (*Run, error) {
	var run Run
	var completedAt sql.NullInt64
	var lastError sql.NullString
	err := row.Scan(&run.ID, &run.UserID, &run.RadiusM, &run.Mode, &run.Status, &run.StartedAt,
		&completedAt, &run.InputCount, &run.KeptCount, &lastError)
	if err != nil {
		return nil, err
	}
	if completedAt.Valid {
		run.CompletedAt = &completedAt.Int64
	}
	if lastError.Valid {
		run.LastError = &lastError.String
	}
	return &run, nil
}

// SaveRunPoints records which locations a run kept, in output order.
func (db *DB) SaveRunPoints(runID string, kept []locfile.Location) (err error) {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	stmt, err := tx.Prepare(`INSERT INTO dedupe_run_points (run_id, seq, timestamp, device_id) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, loc := range kept {
		if _, err = stmt.Exec(runID, i, loc.Timestamp, loc.DeviceID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetRunPoints returns the locations a run kept, in output order. Locations
// deleted since the run are left out.
func (db *DB) GetRunPoints(runID string) ([]locfile.Location, error) {
	rows, err := db.Query(
		`SELECT l.timestamp, l.user_id, l.device_id, l.lat, l.lon, l.accuracy_m, l.altitude_m, l.speed_kmh, l.source
		 FROM dedupe_run_points p
		 JOIN locations l ON l.timestamp = p.timestamp AND l.device_id = p.device_id
		 WHERE p.run_id = ?
		 ORDER BY p.seq`,
		runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var locations []locfile.Location
	for rows.Next() {
		loc, err := scanLocation(rows)
		if err != nil {
			return nil, err
		}
		locations = append(locations, loc)
	}
	return locations, rows.Err()
}

// MarkInterruptedRuns fails any run left running by a previous process.
func (db *DB) MarkInterruptedRuns() (int, error) {
	now := time.Now().Unix()
	res, err := db.Exec(
		`UPDATE dedupe_runs SET status = ?, completed_at = ?, last_error = ? WHERE status = ?`,
		StatusFailed, now, "interrupted", StatusRunning,
	)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		log.WithField("runs", n).Warn("marked interrupted dedupe runs as failed")
	}
	return int(n), nil
}
