package spatialgrid

import (
	"math"
	"math/rand/v2"
)

// metersPerDegree is the arc length of one degree on the dedupe sphere.
const metersPerDegree = EarthRadiusMeters * math.Pi / 180

// offset moves c by the given distances in meters along the local north and
// east axes.
func offset(c Coordinates, northM, eastM float64) Coordinates {
	return Coordinates{
		Lat: c.Lat + northM/metersPerDegree,
		Lng: c.Lng + eastM/(metersPerDegree*math.Cos(c.Lat*math.Pi/180)),
	}
}

func pointAt(c Coordinates, payload any) Point {
	return Point{Lat: c.Lat, Lng: c.Lng, Payload: payload}
}

// scatter returns n points spread uniformly over a sideM × sideM box whose
// south-west corner is origin. Payloads are the input indexes.
func scatter(seed uint64, n int, origin Coordinates, sideM float64) []Point {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	points := make([]Point, n)
	for i := range points {
		points[i] = pointAt(offset(origin, rng.Float64()*sideM, rng.Float64()*sideM), i)
	}
	return points
}

// bruteForce is the quadratic greedy dedupe the grid must agree with.
func bruteForce(points []Point, radius float64) []Point {
	kept := []Point{}
	for _, p := range points {
		close := false
		for _, k := range kept {
			if DistanceMeters(p.GetCoordinates(), k.GetCoordinates()) < radius {
				close = true
				break
			}
		}
		if !close {
			kept = append(kept, p)
		}
	}
	return kept
}

// isSubsequence reports whether sub appears in seq in order, comparing
// payload indexes.
func isSubsequence(sub, seq []Point) bool {
	i := 0
	for _, p := range seq {
		if i < len(sub) && sub[i].Payload == p.Payload {
			i++
		}
	}
	return i == len(sub)
}

type progressCall struct {
	Processed int
	Total     int
}

// recorder collects progress calls.
type recorder struct {
	calls []progressCall
}

func (r *recorder) observe(processed, total int) {
	r.calls = append(r.calls, progressCall{processed, total})
}
