package spatialgrid

import "math"

// MetersPerDegree is the approximate length of one degree of latitude.
const MetersPerDegree = 111320

// CellSizeFactor scales the dedupe radius into the grid cell size. Any cell
// side of at least radius keeps every near pair inside a 3×3 neighborhood.
const CellSizeFactor = 1.5

// CellKey identifies one bucket of the degree grid.
type CellKey struct {
	X int64 // longitude cell index
	Y int64 // latitude cell index
}

// cellExtents returns the cell size in degrees of latitude and longitude for
// a cell of cellSize meters at the given latitude.
func cellExtents(lat, cellSize float64) (latExtent, lngExtent float64) {
	latExtent = cellSize / MetersPerDegree

	// Meridians converge towards the poles, so a longitude degree shrinks by
	// cos(lat). At exactly ±90° fall back to the unscaled extent.
	scale := MetersPerDegree * math.Cos(lat*math.Pi/180)
	if scale == 0 {
		scale = MetersPerDegree
	}
	lngExtent = cellSize / scale
	return latExtent, lngExtent
}

// CellKeyOf returns the home cell of a point for a cell side of cellSize meters.
func CellKeyOf(lat, lng, cellSize float64) CellKey {
	latExtent, lngExtent := cellExtents(lat, cellSize)
	return CellKey{
		X: int64(math.Floor(lng / lngExtent)),
		Y: int64(math.Floor(lat / latExtent)),
	}
}

// NeighborhoodOf returns the home cell of a point followed by its 8 adjacent
// cells.
func NeighborhoodOf(lat, lng, cellSize float64) [9]CellKey {
	home := CellKeyOf(lat, lng, cellSize)

	var keys [9]CellKey
	keys[0] = home
	n := 1
	for dx := int64(-1); dx <= 1; dx++ {
		for dy := int64(-1); dy <= 1; dy++ {
			if dx == 0 && dy == 0 {
				continue
			}
			keys[n] = CellKey{X: home.X + dx, Y: home.Y + dy}
			n++
		}
	}
	return keys
}
