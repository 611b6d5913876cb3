package spatialgrid

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGridAccept(t *testing.T) {
	origin := Coordinates{Lat: 48.1374, Lng: 11.5755}
	g := NewGrid[Point](100)

	require.True(t, g.Accept(pointAt(origin, "a")))
	assert.False(t, g.Accept(pointAt(origin, "duplicate")), "exact duplicate")
	assert.False(t, g.Accept(pointAt(offset(origin, 60, 60), "close")), "85m away")
	assert.True(t, g.Accept(pointAt(offset(origin, 0, 101), "far")), "101m away")
	assert.Equal(t, 2, g.Len())
	assert.Equal(t, 100.0, g.Radius())
}

func TestGridAcceptIsStrict(t *testing.T) {
	a := Coordinates{Lat: 0, Lng: 0}
	b := offset(a, 0, 250)
	d := DistanceMeters(a, b)

	g := NewGrid[Point](d)
	require.True(t, g.Accept(pointAt(a, 0)))
	assert.True(t, g.Accept(pointAt(b, 1)), "a point exactly radius away is kept")
}

func TestGridFirstOccurrenceWins(t *testing.T) {
	origin := Coordinates{Lat: -33.9249, Lng: 18.4241}
	g := NewGrid[Point](100)

	require.True(t, g.Accept(pointAt(origin, "first")))
	// Both are close to the first point but 180m from each other.
	assert.False(t, g.Accept(pointAt(offset(origin, 90, 0), "north")))
	assert.False(t, g.Accept(pointAt(offset(origin, -90, 0), "south")))
	// Rejected points never reject anything themselves.
	assert.True(t, g.Accept(pointAt(offset(origin, 170, 0), "further north")))
	assert.Equal(t, 2, g.Len())
}

func TestGridMalformedPointsPassThrough(t *testing.T) {
	nan := math.NaN()
	origin := Coordinates{Lat: 0, Lng: 0}
	g := NewGrid[Point](1000)

	require.True(t, g.Accept(pointAt(origin, "numeric")))
	assert.True(t, g.Accept(Point{Lat: nan, Lng: 0, Payload: "nan lat"}), "malformed point is kept")
	assert.True(t, g.Accept(Point{Lat: 0, Lng: nan, Payload: "nan lng"}), "malformed point is kept")
	assert.True(t, g.Accept(Point{Lat: nan, Lng: nan, Payload: "nan both"}), "malformed points never collide")
	assert.True(t, g.Accept(Point{Lat: math.Inf(1), Lng: 0, Payload: "inf"}), "infinite point is kept")
	assert.False(t, g.Accept(pointAt(origin, "duplicate")), "numeric duplicates are still caught")

	g2 := NewGrid[Point](1000)
	require.True(t, g2.Accept(Point{Lat: nan, Lng: 0}))
	assert.True(t, g2.Accept(pointAt(origin, "after nan")), "a kept malformed point never rejects")
}

func TestGridNonPositiveRadius(t *testing.T) {
	origin := Coordinates{Lat: 1, Lng: 1}
	for _, radius := range []float64{0, -5, math.NaN()} {
		g := NewGrid[Point](radius)
		for i := 0; i < 10; i++ {
			assert.True(t, g.Accept(pointAt(origin, i)), "radius %v", radius)
		}
		assert.Equal(t, 10, g.Len())
	}
}

func TestGridBucketsByHomeCell(t *testing.T) {
	origin := Coordinates{Lat: 0, Lng: 0}
	g := NewGrid[Point](10)

	for i := 0; i < 5; i++ {
		require.True(t, g.Accept(pointAt(offset(origin, float64(i)*1000, 0), i)))
	}
	assert.Equal(t, 5, g.Cells())
}
