package spatialgrid

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCellKeyOf(t *testing.T) {
	tests := []struct {
		name     string
		lat, lng float64
		cellSize float64
		expected CellKey
	}{
		{"origin", 0, 0, 100, CellKey{0, 0}},
		{"just inside first cell", 0.0001, 0.0001, 111320, CellKey{0, 0}},
		{"one cell north east", 1.5, 1.5, 111320, CellKey{1, 1}},
		{"negative coordinates floor down", -0.5, -0.5, 111320, CellKey{-1, -1}},
		{"two cells south", -1.5, 0, 111320, CellKey{0, -2}},
		{"longitude scaled at 60 degrees", 60.5, 4.5, 111320, CellKey{2, 60}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, CellKeyOf(tt.lat, tt.lng, tt.cellSize))
		})
	}
}

func TestCellExtentsNearPole(t *testing.T) {
	latExtent, lngExtent := cellExtents(90, 150)
	assert.InDelta(t, 150.0/MetersPerDegree, latExtent, 1e-12)
	assert.False(t, math.IsNaN(lngExtent))
	assert.Greater(t, lngExtent, latExtent)

	// Deterministic.
	assert.Equal(t, CellKeyOf(89.9999, 179.5, 150), CellKeyOf(89.9999, 179.5, 150))
}

func TestNeighborhoodOf(t *testing.T) {
	keys := NeighborhoodOf(52.52, 13.405, 75)
	home := CellKeyOf(52.52, 13.405, 75)

	assert.Equal(t, home, keys[0], "home cell comes first")

	seen := make(map[CellKey]bool)
	for _, k := range keys {
		assert.LessOrEqual(t, abs64(k.X-home.X), int64(1))
		assert.LessOrEqual(t, abs64(k.Y-home.Y), int64(1))
		seen[k] = true
	}
	assert.Len(t, seen, 9, "all nine keys are distinct")
}

// Any two points closer than radius must sit in the same or adjacent cells
// when the cell side is CellSizeFactor × radius. The longitude index also
// drifts by about |lng|·0.0117·sin(lat) cells between two nearby latitudes,
// so the guarantee only holds while that drift stays well under a third of a
// cell.
func TestNeighborhoodCoversRadius(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	for i := 0; i < 20000; i++ {
		radius := 5 + rng.Float64()*2000
		origin := Coordinates{Lat: rng.Float64()*120 - 60, Lng: rng.Float64()*40 - 20}
		d := rng.Float64() * radius
		bearing := rng.Float64() * 2 * math.Pi
		other := offset(origin, d*math.Cos(bearing), d*math.Sin(bearing))
		if DistanceMeters(origin, other) >= radius {
			continue
		}

		cellSize := CellSizeFactor * radius
		a := CellKeyOf(origin.Lat, origin.Lng, cellSize)
		found := false
		for _, k := range NeighborhoodOf(other.Lat, other.Lng, cellSize) {
			if k == a {
				found = true
				break
			}
		}
		if !found {
			t.Fatalf("points %v and %v (%.2fm apart, radius %.2f) not in adjacent cells", origin, other, DistanceMeters(origin, other), radius)
		}
	}
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
