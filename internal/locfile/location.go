package locfile

import "geodedupe/spatialgrid"

// Location is a single recorded position. Everything except Lat and Lon is
// payload as far as deduplication is concerned.
type Location struct {
	Timestamp int64   `json:"timestamp"`
	UserID    string  `json:"user_id"`
	DeviceID  string  `json:"device_id"`
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	// Extended fields
	AccuracyM *float64 `json:"accuracy_m,omitempty"` // meters
	AltitudeM *float64 `json:"altitude_m,omitempty"` // meters
	SpeedKmh  *float64 `json:"speed_kmh,omitempty"`
	Source    *string  `json:"source,omitempty"`

	// Properties holds any extra fields carried by the input file.
	Properties map[string]any `json:"properties,omitempty"`
}

// GetCoordinates implements spatialgrid.GeoPoint.
func (l Location) GetCoordinates() spatialgrid.Coordinates {
	return spatialgrid.Coordinates{Lat: l.Lat, Lng: l.Lon}
}

// LoadOptions fills in fields the input file does not carry.
type LoadOptions struct {
	UserID   string
	DeviceID string
}

// LoadStats summarizes a file load.
type LoadStats struct {
	Total   int     `json:"total"`
	Parsed  int     `json:"parsed"`
	Skipped int     `json:"skipped"`
	Errors  []error `json:"-"`
}
