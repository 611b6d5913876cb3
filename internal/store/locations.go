package store

import (
	"database/sql"
	"strings"

	"geodedupe/internal/locfile"
)

const locationColumns = `timestamp, user_id, device_id, lat, lon, accuracy_m, altitude_m, speed_kmh, source`

const insertLocationSQL = `INSERT OR IGNORE INTO locations (` + locationColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

// BBox is a bounding box in degrees.
type BBox struct {
	SwLng, SwLat, NeLng, NeLat float64
}

// LocationFilter narrows QueryLocations. Zero fields match everything.
type LocationFilter struct {
	UserID string
	BBox   *BBox
	Start  *int64
	End    *int64
}

// InsertLocation stores one location, ignoring an existing
// (timestamp, device_id) row.
func (db *DB) InsertLocation(loc locfile.Location) error {
	_, err := db.Exec(insertLocationSQL, locationArgs(loc)...)
	return err
}

// InsertLocationBatch inserts multiple locations in a single transaction
// Returns count of inserted and skipped (duplicate) locations
func (db *DB) InsertLocationBatch(locs []locfile.Location) (inserted, skipped int, err error) {
	tx, err := db.Begin()
	if err != nil {
		return 0, 0, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	stmt, err := tx.Prepare(insertLocationSQL)
	if err != nil {
		return 0, 0, err
	}
	defer stmt.Close()

	for _, loc := range locs {
		result, err := stmt.Exec(locationArgs(loc)...)
		if err != nil {
			return inserted, skipped, err
		}
		affected, _ := result.RowsAffected()
		if affected > 0 {
			inserted++
		} else {
			skipped++
		}
	}

	err = tx.Commit()
	return inserted, skipped, err
}

func locationArgs(loc locfile.Location) []any {
	return []any{
		loc.Timestamp, loc.UserID, loc.DeviceID, loc.Lat, loc.Lon,
		loc.AccuracyM, loc.AltitudeM, loc.SpeedKmh, loc.Source,
	}
}

// QueryLocations returns matching locations ordered by timestamp, the order
// dedupe runs consume them in.
func (db *DB) QueryLocations(f LocationFilter) ([]locfile.Location, error) {
	var where []string
	var args []any

	if f.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, f.UserID)
	}
	if f.BBox != nil {
		where = append(where, "lat >= ? AND lat <= ? AND lon >= ? AND lon <= ?")
		args = append(args, f.BBox.SwLat, f.BBox.NeLat, f.BBox.SwLng, f.BBox.NeLng)
	}
	if f.Start != nil {
		where = append(where, "timestamp >= ?")
		args = append(args, *f.Start)
	}
	if f.End != nil {
		where = append(where, "timestamp <= ?")
		args = append(args, *f.End)
	}

	query := `SELECT ` + locationColumns + ` FROM locations`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY timestamp, device_id"

	rows, err := db.Query(query, args...)
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

// CountLocations returns the number of stored locations for a user, or for
// everyone when userID is empty.
func (db *DB) CountLocations(userID string) (int, error) {
	var n int
	var err error
	if userID == "" {
		err = db.QueryRow(`SELECT COUNT(*) FROM locations`).Scan(&n)
	} else {
		err = db.QueryRow(`SELECT COUNT(*) FROM locations WHERE user_id = ?`, userID).Scan(&n)
	}
	return n, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLocation(row rowScanner) (locfile.Location, error) {
	var loc locfile.Location
	var acc, alt, speed sql.NullFloat64
	var source sql.NullString
	if err := row.Scan(&loc.Timestamp, &loc.UserID, &loc.DeviceID, &loc.Lat, &loc.Lon, &acc, &alt, &speed, &source); err != nil {
		return locfile.Location{}, err
	}
	loc.AccuracyM = nullFloat(acc)
	loc.AltitudeM = nullFloat(alt)
	loc.SpeedKmh = nullFloat(speed)
	if source.Valid {
		loc.Source = &source.String
	}
	return loc, nil
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
