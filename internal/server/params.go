package server

import (
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"geodedupe/internal/store"
	"geodedupe/spatialgrid"
)

type httpError struct {
	code int
	msg  string
}

func (e *httpError) Error() string { return e.msg }

func badRequest(msg string) *httpError {
	return &httpError{code: http.StatusBadRequest, msg: msg}
}

var (
	errInvalidBBox   = badRequest("invalid bbox format")
	errInvalidRadius = badRequest("invalid radius")
)

// parseBBox parses a bounding box string in format sw_lng,sw_lat,ne_lng,ne_lat
func parseBBox(bboxStr string) (store.BBox, error) {
	parts := strings.Split(bboxStr, ",")
	if len(parts) != 4 {
		return store.BBox{}, errInvalidBBox
	}

	var vals [4]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return store.BBox{}, errInvalidBBox
		}
		vals[i] = v
	}
	bbox := store.BBox{SwLng: vals[0], SwLat: vals[1], NeLng: vals[2], NeLat: vals[3]}
	if bbox.SwLat > bbox.NeLat || bbox.SwLng > bbox.NeLng {
		return store.BBox{}, errInvalidBBox
	}
	return bbox, nil
}

// Bounds for radii derived from the viewport.
const (
	minAutoRadius = 5.0
	maxAutoRadius = 10000.0
)

// radiusFromBBox picks a dedupe radius from the viewport size: 0.5% of its
// smaller side, clamped to [minAutoRadius, maxAutoRadius] meters.
func radiusFromBBox(bbox store.BBox) float64 {
	midLat := (bbox.SwLat + bbox.NeLat) / 2 * math.Pi / 180
	latSpan := (bbox.NeLat - bbox.SwLat) * spatialgrid.MetersPerDegree
	lonSpan := (bbox.NeLng - bbox.SwLng) * spatialgrid.MetersPerDegree * math.Cos(midLat)

	minSpan := math.Min(latSpan, lonSpan)
	radius := minSpan * 0.005

	if radius < minAutoRadius {
		radius = minAutoRadius
	}
	if radius > maxAutoRadius {
		radius = maxAutoRadius
	}
	return radius
}

// parseRadius reads the radius query parameter, returning def when absent.
// Zero and negative radii are valid and keep every point.
func parseRadius(q url.Values, def float64) (float64, error) {
	s := q.Get("radius")
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errInvalidRadius
	}
	return v, nil
}

// parseTimeRange reads the optional start and end unix timestamps.
func parseTimeRange(q url.Values) (start, end *int64, err error) {
	if s := q.Get("start"); s != "" {
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, nil, badRequest("invalid start timestamp")
		}
		start = &v
	}
	if s := q.Get("end"); s != "" {
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, nil, badRequest("invalid end timestamp")
		}
		end = &v
	}
	return start, end, nil
}

// writeError sends err as a plain-text response, using its status code when
// it is an httpError.
func writeError(w http.ResponseWriter, err error) {
	if he, ok := err.(*httpError); ok {
		http.Error(w, he.msg, he.code)
		return
	}
	http.Error(w, err.Error(), http.StatusInternalServerError)
}
