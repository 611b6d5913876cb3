package spatialgrid

import "math"

// EarthRadiusMeters is the mean Earth radius used for great-circle distances.
const EarthRadiusMeters = 6371071

// Coordinates is a position in degrees.
type Coordinates struct {
	Lat float64
	Lng float64
}

// DistanceMeters returns the haversine great-circle distance between a and b.
// The result is NaN when either position has a NaN or infinite component.
func DistanceMeters(a, b Coordinates) float64 {
	rlat1 := a.Lat * math.Pi / 180
	rlat2 := b.Lat * math.Pi / 180
	dLat := rlat2 - rlat1
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	sinLat := math.Sin(dLat / 2)
	sinLng := math.Sin(dLng / 2)
	h := sinLat*sinLat + math.Cos(rlat1)*math.Cos(rlat2)*sinLng*sinLng

	// Rounding can push h a hair past 1 for antipodal points.
	if h > 1 {
		h = 1
	}
	return 2 * EarthRadiusMeters * math.Asin(math.Sqrt(h))
}
