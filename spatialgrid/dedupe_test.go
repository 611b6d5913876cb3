package spatialgrid

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var berlin = Coordinates{Lat: 52.5200, Lng: 13.4050}

func TestDedupeExactDuplicate(t *testing.T) {
	points := []Point{{Lat: 0, Lng: 0, Payload: "first"}, {Lat: 0, Lng: 0, Payload: "second"}}

	got := Dedupe(points, 1, nil)
	assert.Equal(t, []Point{{Lat: 0, Lng: 0, Payload: "first"}}, got)
}

func TestDedupeKeepsFarPoint(t *testing.T) {
	origin := Coordinates{Lat: 0, Lng: 0}
	points := []Point{
		pointAt(origin, 0),
		pointAt(origin, 1),
		pointAt(offset(origin, 0, 2000), 2),
	}

	got := Dedupe(points, 1000, nil)
	require.Len(t, got, 2)
	assert.Equal(t, []Point{points[0], points[2]}, got)
}

func TestDedupeScatteredBox(t *testing.T) {
	const radius = 50
	points := scatter(42, 10_000, berlin, 10_000)

	got := Dedupe(points, radius, nil)
	require.LessOrEqual(t, len(got), len(points))
	require.NotEmpty(t, got)
	assert.True(t, isSubsequence(got, points))

	if testing.Short() {
		t.Skip("pairwise separation check skipped in short mode")
	}
	for i := range got {
		for j := i + 1; j < len(got); j++ {
			d := DistanceMeters(got[i].GetCoordinates(), got[j].GetCoordinates())
			if d < radius {
				t.Fatalf("kept points %v and %v are %.3fm apart", got[i].Payload, got[j].Payload, d)
			}
		}
	}
}

func TestDedupeMatchesBruteForce(t *testing.T) {
	tests := []struct {
		name   string
		seed   uint64
		n      int
		origin Coordinates
		side   float64
		radius float64
	}{
		{"dense city block", 1, 3000, berlin, 1_000, 25},
		{"sparse region", 2, 2000, Coordinates{Lat: -23.5505, Lng: -46.6333}, 50_000, 800},
		{"equator", 3, 2500, Coordinates{Lat: 0, Lng: 0}, 5_000, 120},
		{"across the prime meridian", 4, 2500, Coordinates{Lat: 51.4769, Lng: -0.01}, 2_000, 40},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			points := scatter(tt.seed, tt.n, tt.origin, tt.side)
			got := Dedupe(points, tt.radius, nil)
			if diff := cmp.Diff(bruteForce(points, tt.radius), got); diff != "" {
				t.Errorf("Dedupe mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDedupeIdempotent(t *testing.T) {
	points := scatter(9, 5000, berlin, 3_000)
	once := Dedupe(points, 30, nil)
	twice := Dedupe(once, 30, nil)
	assert.Equal(t, once, twice)
}

func TestDedupeEmpty(t *testing.T) {
	called := false
	got := Dedupe([]Point{}, 10, func(int, int) { called = true })
	assert.NotNil(t, got)
	assert.Empty(t, got)
	assert.False(t, called, "observer is not called for empty input")

	assert.Empty(t, Dedupe[Point](nil, 10, nil))
}

func TestDedupeNonPositiveRadiusKeepsEverything(t *testing.T) {
	points := []Point{{Lat: 1, Lng: 1, Payload: 0}, {Lat: 1, Lng: 1, Payload: 1}, {Lat: 1, Lng: 1, Payload: 2}}
	for _, radius := range []float64{0, -100} {
		assert.Equal(t, points, Dedupe(points, radius, nil), "radius %v", radius)
	}
}

func TestDedupeMalformedPoints(t *testing.T) {
	nan := math.NaN()
	points := []Point{
		{Lat: 10, Lng: 10, Payload: "a"},
		{Lat: nan, Lng: 10, Payload: "bad"},
		{Lat: nan, Lng: 10, Payload: "bad again"},
		{Lat: 10, Lng: 10, Payload: "dup of a"},
	}

	got := Dedupe(points, 100, nil)
	payloads := make([]any, len(got))
	for i, p := range got {
		payloads[i] = p.Payload
	}
	assert.Equal(t, []any{"a", "bad", "bad again"}, payloads)
}

type taggedFix struct {
	lat, lng float64
	device   string
	tags     []string
}

func (f *taggedFix) GetCoordinates() Coordinates { return Coordinates{Lat: f.lat, Lng: f.lng} }

func TestDedupePassesPayloadThrough(t *testing.T) {
	a := &taggedFix{lat: 40.7128, lng: -74.0060, device: "phone", tags: []string{"home"}}
	b := &taggedFix{lat: 40.7128, lng: -74.0060, device: "watch"}
	c := &taggedFix{lat: 40.7306, lng: -73.9352, device: "car", tags: []string{"drive"}}

	got := Dedupe([]*taggedFix{a, b, c}, 10, nil)
	require.Len(t, got, 2)
	assert.Same(t, a, got[0])
	assert.Same(t, c, got[1])
	assert.Equal(t, []string{"home"}, got[0].tags)
}

func TestDedupeProgress(t *testing.T) {
	tests := []struct {
		name     string
		n        int
		expected []progressCall
	}{
		{"single point", 1, []progressCall{{1, 1}}},
		{"below interval", 1000, []progressCall{{1000, 1000}}},
		{"just past interval", 1001, []progressCall{{1000, 1001}, {1001, 1001}}},
		{"several intervals", 2500, []progressCall{{1000, 2500}, {2000, 2500}, {2500, 2500}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var rec recorder
			Dedupe(scatter(5, tt.n, berlin, 1_000), 10, rec.observe)
			assert.Equal(t, tt.expected, rec.calls)
		})
	}
}

func TestDedupeProgressMonotonic(t *testing.T) {
	var rec recorder
	points := scatter(8, 7777, berlin, 4_000)
	Dedupe(points, 20, rec.observe)

	require.NotEmpty(t, rec.calls)
	for i := 1; i < len(rec.calls); i++ {
		assert.GreaterOrEqual(t, rec.calls[i].Processed, rec.calls[i-1].Processed)
	}
	assert.Equal(t, progressCall{len(points), len(points)}, rec.calls[len(rec.calls)-1])
}
