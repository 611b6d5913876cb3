package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	log "github.com/sirupsen/logrus"

	"geodedupe/internal/locfile"
	"geodedupe/internal/runner"
	"geodedupe/internal/store"
)

// maxUploadSize caps GeoJSON bodies and import uploads.
const maxUploadSize = 500 << 20

const geoJSONContentType = "application/geo+json"

// Progress is the SSE payload sent while a dedupe runs.
type Progress struct {
	Processed int `json:"processed"`
	Total     int `json:"total"`
}

// ImportProgress is the SSE payload sent while a file is imported.
type ImportProgress struct {
	Stats    ImportStats `json:"stats"`
	Message  string      `json:"message,omitempty"`
	Error    string      `json:"error,omitempty"`
	Complete bool        `json:"complete"`
}

type ImportStats struct {
	Total    int `json:"total"`
	Parsed   int `json:"parsed"`
	Errors   int `json:"errors"`
	Inserted int `json:"inserted"`
	Skipped  int `json:"skipped"`
}

// eventStream writes Server-Sent Events.
type eventStream struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func newEventStream(w http.ResponseWriter) (*eventStream, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errors.New("streaming not supported")
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	return &eventStream{w: w, flusher: flusher}, nil
}

func (es *eventStream) send(event string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		log.WithError(err).Error("failed to encode event")
		return
	}
	fmt.Fprintf(es.w, "event: %s\ndata: %s\n\n", event, data)
	es.flusher.Flush()
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeGeoJSON(w http.ResponseWriter, locs []locfile.Location) {
	w.Header().Set("Content-Type", geoJSONContentType)
	if err := locfile.WriteGeoJSON(w, locs); err != nil {
		log.WithError(err).Error("failed to write GeoJSON response")
	}
}

// OwnTracksPayload is the OwnTracks location message.
type OwnTracksPayload struct {
	Type      string  `json:"_type"`
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	Timestamp int64   `json:"tst"`
	TrackerID string  `json:"tid"`
	// Extended fields
	Accuracy *float64 `json:"acc,omitempty"` // meters
	Altitude *float64 `json:"alt,omitempty"` // meters
	Velocity *float64 `json:"vel,omitempty"` // km/h
}

// POST /owntracks - stores a location reported by an OwnTracks client
func (s *Server) handleOwnTracks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var payload OwnTracksPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	// Ignore non-location messages
	if payload.Type != "location" {
		writeJSON(w, http.StatusOK, map[string]any{})
		return
	}

	src := "owntracks"
	loc := locfile.Location{
		Timestamp: payload.Timestamp,
		UserID:    s.userID(r),
		DeviceID:  payload.TrackerID,
		Lat:       payload.Lat,
		Lon:       payload.Lon,
		AccuracyM: payload.Accuracy,
		AltitudeM: payload.Altitude,
		SpeedKmh:  payload.Velocity,
		Source:    &src,
	}
	if err := s.db.InsertLocation(loc); err != nil {
		log.WithError(err).Error("failed to store owntracks location")
		http.Error(w, "database error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{})
}

// userID returns the OwnTracks user header or the default user.
func (s *Server) userID(r *http.Request) string {
	if u := r.Header.Get("X-Limit-U"); u != "" {
		return u
	}
	return s.opts.DefaultUserID
}

// POST /api/dedupe - dedupes a GeoJSON FeatureCollection of points
func (s *Server) handleDedupe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	radius, err := parseRadius(q, s.opts.RadiusMeters)
	if err != nil {
		writeError(w, err)
		return
	}

	locs, stats, err := locfile.ReadGeoJSON(http.MaxBytesReader(w, r.Body, maxUploadSize), locfile.LoadOptions{})
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if stats.Skipped > 0 {
		log.WithField("skipped", stats.Skipped).Debug("ignored non-point features")
	}

	opts := runner.Options{
		Radius:      radius,
		Cooperative: s.opts.Cooperative,
	}

	if q.Get("stream") != "1" {
		kept, err := runner.Dedupe(r.Context(), locs, opts)
		if err != nil {
			// Only a cancelled request gets here; the client is gone.
			log.WithError(err).Debug("dedupe abandoned")
			return
		}
		writeGeoJSON(w, kept)
		return
	}

	es, err := newEventStream(w)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	opts.OnProgress = func(processed, total int) {
		es.send("progress", Progress{Processed: processed, Total: total})
	}
	kept, err := runner.Dedupe(r.Context(), locs, opts)
	if err != nil {
		log.WithError(err).Debug("dedupe abandoned")
		return
	}
	es.send("result", locfile.ToFeatureCollection(kept))
}

// POST /api/import - imports a GeoJSON or Timeline file with SSE progress
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		http.Error(w, "failed to parse form: "+err.Error(), http.StatusBadRequest)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "no file uploaded", http.StatusBadRequest)
		return
	}
	defer file.Close()

	opts := locfile.LoadOptions{
		UserID:   r.FormValue("user_id"),
		DeviceID: r.FormValue("device_id"),
	}
	if opts.UserID == "" {
		opts.UserID = s.opts.DefaultUserID
	}

	var format locfile.Format
	body := io.Reader(file)
	if f := r.FormValue("format"); f != "" {
		format, err = locfile.ParseFormat(f)
	} else {
		format, body, err = locfile.Sniff(header.Filename, file)
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if opts.DeviceID == "" && format == locfile.FormatTimeline {
		opts.DeviceID = "google-timeline"
	}

	es, err := newEventStream(w)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	es.send("progress", ImportProgress{Message: fmt.Sprintf("Parsing %s file...", format)})

	locations, loadStats, err := locfile.Load(body, format, opts)
	if err != nil {
		es.send("progress", ImportProgress{Error: err.Error(), Complete: true})
		return
	}

	stats := ImportStats{
		Total:  loadStats.Total,
		Parsed: loadStats.Parsed,
		Errors: loadStats.Skipped,
	}
	es.send("progress", ImportProgress{
		Stats:   stats,
		Message: fmt.Sprintf("Parsed %d locations, importing...", len(locations)),
	})

	const batchSize = 1000
	for i := 0; i < len(locations); i += batchSize {
		end := min(i+batchSize, len(locations))
		inserted, skipped, err := s.db.InsertLocationBatch(locations[i:end])
		if err != nil {
			es.send("progress", ImportProgress{
				Stats:    stats,
				Error:    fmt.Sprintf("Database error at batch %d: %v", i/batchSize, err),
				Complete: true,
			})
			return
		}
		stats.Inserted += inserted
		stats.Skipped += skipped

		es.send("progress", ImportProgress{
			Stats:   stats,
			Message: fmt.Sprintf("Imported %d/%d locations...", stats.Inserted+stats.Skipped, len(locations)),
		})
	}

	log.WithFields(log.Fields{
		"file":     header.Filename,
		"inserted": stats.Inserted,
		"skipped":  stats.Skipped,
	}).Info("import complete")
	es.send("progress", ImportProgress{
		Stats:    stats,
		Message:  fmt.Sprintf("Import complete: %d inserted, %d duplicates skipped", stats.Inserted, stats.Skipped),
		Complete: true,
	})
}

// locationFilter builds a store filter and a radius from the query. An
// explicit radius wins over one derived from the bbox.
func (s *Server) locationFilter(r *http.Request) (store.LocationFilter, float64, error) {
	q := r.URL.Query()
	filter := store.LocationFilter{UserID: q.Get("user")}
	def := s.opts.RadiusMeters

	if bboxStr := q.Get("bbox"); bboxStr != "" {
		bbox, err := parseBBox(bboxStr)
		if err != nil {
			return filter, 0, err
		}
		filter.BBox = &bbox
		def = radiusFromBBox(bbox)
	}

	start, end, err := parseTimeRange(q)
	if err != nil {
		return filter, 0, err
	}
	filter.Start, filter.End = start, end

	radius, err := parseRadius(q, def)
	if err != nil {
		return filter, 0, err
	}
	return filter, radius, nil
}

// GET /api/locations - stored locations, deduped for display
func (s *Server) handleLocations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	filter, radius, err := s.locationFilter(r)
	if err != nil {
		writeError(w, err)
		return
	}

	locs, err := s.db.QueryLocations(filter)
	if err != nil {
		log.WithError(err).Error("failed to query locations")
		http.Error(w, "database error", http.StatusInternalServerError)
		return
	}

	kept, err := runner.Dedupe(r.Context(), locs, runner.Options{Radius: radius, Cooperative: s.opts.Cooperative})
	if err != nil {
		log.WithError(err).Debug("dedupe abandoned")
		return
	}

	w.Header().Set("X-Dedupe-Radius", strconv.FormatFloat(radius, 'f', -1, 64))
	writeGeoJSON(w, kept)
}

// GET /api/runs lists recent runs; POST /api/runs dedupes stored locations
// and records the run.
func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		limit := 0
		if l := r.URL.Query().Get("limit"); l != "" {
			v, err := strconv.Atoi(l)
			if err != nil || v < 0 {
				http.Error(w, "invalid limit", http.StatusBadRequest)
				return
			}
			limit = v
		}
		runs, err := s.db.ListRuns(limit)
		if err != nil {
			log.WithError(err).Error("failed to list runs")
			http.Error(w, "database error", http.StatusInternalServerError)
			return
		}
		if runs == nil {
			runs = []store.Run{}
		}
		writeJSON(w, http.StatusOK, runs)

	case http.MethodPost:
		filter, radius, err := s.locationFilter(r)
		if err != nil {
			writeError(w, err)
			return
		}
		run, _, err := s.runner.Run(r.Context(), runner.Request{
			Filter:  filter,
			Options: runner.Options{Radius: radius, Cooperative: s.opts.Cooperative},
		})
		if err != nil {
			if run == nil {
				http.Error(w, "database error", http.StatusInternalServerError)
				return
			}
			writeJSON(w, http.StatusInternalServerError, run)
			return
		}
		writeJSON(w, http.StatusCreated, run)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// lookupRun fetches the run named in the path, writing the error response
// when it cannot.
func (s *Server) lookupRun(w http.ResponseWriter, r *http.Request) *store.Run {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return nil
	}
	run, err := s.db.GetRun(r.PathValue("id"))
	if err != nil {
		log.WithError(err).Error("failed to load run")
		http.Error(w, "database error", http.StatusInternalServerError)
		return nil
	}
	if run == nil {
		http.Error(w, store.ErrRunNotFound.Error(), http.StatusNotFound)
		return nil
	}
	return run
}

// GET /api/runs/{id}
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if run := s.lookupRun(w, r); run != nil {
		writeJSON(w, http.StatusOK, run)
	}
}

// GET /api/runs/{id}/points - the locations a run kept, as GeoJSON
func (s *Server) handleRunPoints(w http.ResponseWriter, r *http.Request) {
	run := s.lookupRun(w, r)
	if run == nil {
		return
	}
	points, err := s.db.GetRunPoints(run.ID)
	if err != nil {
		log.WithError(err).Error("failed to load run points")
		http.Error(w, "database error", http.StatusInternalServerError)
		return
	}
	writeGeoJSON(w, points)
}
