package locfile

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Property keys mapped onto Location fields when reading and writing GeoJSON.
const (
	propTimestamp = "timestamp"
	propUserID    = "user_id"
	propDeviceID  = "device_id"
	propAccuracy  = "accuracy_m"
	propAltitude  = "altitude_m"
	propSpeed     = "speed_kmh"
	propSource    = "source"
)

// ReadGeoJSON reads a FeatureCollection and returns its Point features as
// locations, in file order. Feature properties other than the known keys are
// kept in Location.Properties. Features with any other geometry are skipped.
func ReadGeoJSON(r io.Reader, opts LoadOptions) ([]Location, LoadStats, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, LoadStats{}, fmt.Errorf("failed to read GeoJSON: %w", err)
	}

	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, LoadStats{}, fmt.Errorf("failed to parse GeoJSON: %w", err)
	}

	stats := LoadStats{Total: len(fc.Features)}
	locations := make([]Location, 0, len(fc.Features))
	for i, f := range fc.Features {
		pt, ok := f.Geometry.(orb.Point)
		if !ok {
			stats.Skipped++
			stats.Errors = append(stats.Errors, fmt.Errorf("feature %d: unsupported geometry %T", i, f.Geometry))
			continue
		}

		loc, err := locationFromFeature(pt, f.Properties, opts)
		if err != nil {
			stats.Skipped++
			stats.Errors = append(stats.Errors, fmt.Errorf("feature %d: %w", i, err))
			continue
		}
		locations = append(locations, loc)
		stats.Parsed++
	}

	return locations, stats, nil
}

func locationFromFeature(pt orb.Point, props geojson.Properties, opts LoadOptions) (Location, error) {
	loc := Location{
		Lat:      pt.Lat(),
		Lon:      pt.Lon(),
		UserID:   opts.UserID,
		DeviceID: opts.DeviceID,
	}

	extra := make(map[string]any, len(props))
	for k, v := range props {
		switch k {
		case propTimestamp:
			ts, err := parseTimestamp(v)
			if err != nil {
				return Location{}, err
			}
			loc.Timestamp = ts
		case propUserID:
			if s, ok := v.(string); ok && s != "" {
				loc.UserID = s
			}
		case propDeviceID:
			if s, ok := v.(string); ok && s != "" {
				loc.DeviceID = s
			}
		case propAccuracy:
			loc.AccuracyM = floatProp(v)
		case propAltitude:
			loc.AltitudeM = floatProp(v)
		case propSpeed:
			loc.SpeedKmh = floatProp(v)
		case propSource:
			if s, ok := v.(string); ok {
				loc.Source = &s
			}
		default:
			extra[k] = v
		}
	}
	if len(extra) > 0 {
		loc.Properties = extra
	}
	return loc, nil
}

// parseTimestamp accepts unix seconds or an RFC 3339 string.
func parseTimestamp(v any) (int64, error) {
	switch ts := v.(type) {
	case float64:
		return int64(ts), nil
	case json.Number:
		return ts.Int64()
	case string:
		t, err := time.Parse(time.RFC3339, ts)
		if err != nil {
			return 0, fmt.Errorf("invalid timestamp %q: %w", ts, err)
		}
		return t.Unix(), nil
	case nil:
		return 0, nil
	default:
		return 0, fmt.Errorf("invalid timestamp type %T", v)
	}
}

func floatProp(v any) *float64 {
	f, ok := v.(float64)
	if !ok {
		return nil
	}
	return &f
}

// WriteGeoJSON writes locations as a FeatureCollection of Point features.
func WriteGeoJSON(w io.Writer, locations []Location) error {
	fc := ToFeatureCollection(locations)
	data, err := fc.MarshalJSON()
	if err != nil {
		return fmt.Errorf("failed to encode GeoJSON: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	return nil
}

// ToFeatureCollection converts locations to GeoJSON features, putting the
// Location fields back into each feature's properties.
func ToFeatureCollection(locations []Location) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, loc := range locations {
		f := geojson.NewFeature(orb.Point{loc.Lon, loc.Lat})
		for k, v := range loc.Properties {
			f.Properties[k] = v
		}
		if loc.Timestamp != 0 {
			f.Properties[propTimestamp] = loc.Timestamp
		}
		if loc.UserID != "" {
			f.Properties[propUserID] = loc.UserID
		}
		if loc.DeviceID != "" {
			f.Properties[propDeviceID] = loc.DeviceID
		}
		if loc.AccuracyM != nil {
			f.Properties[propAccuracy] = *loc.AccuracyM
		}
		if loc.AltitudeM != nil {
			f.Properties[propAltitude] = *loc.AltitudeM
		}
		if loc.SpeedKmh != nil {
			f.Properties[propSpeed] = *loc.SpeedKmh
		}
		if loc.Source != nil {
			f.Properties[propSource] = *loc.Source
		}
		fc.Append(f)
	}
	return fc
}
