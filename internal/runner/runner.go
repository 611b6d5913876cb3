// Package runner drives dedupe passes over files and stored locations.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"geodedupe/internal/locfile"
	"geodedupe/internal/store"
	"geodedupe/spatialgrid"
)

// Options selects how a dedupe pass is executed.
type Options struct {
	Radius      float64
	Cooperative bool
	// Host runs cooperative batches; nil means spatialgrid.GoHost.
	Host       spatialgrid.Host
	OnProgress spatialgrid.ProgressFunc
}

// Dedupe removes near-duplicate locations with the engine chosen by opts.
// Only a cooperative pass can be cut short by ctx; it then returns the
// locations kept so far along with the context error.
func Dedupe(ctx context.Context, locs []locfile.Location, opts Options) ([]locfile.Location, error) {
	if !opts.Cooperative {
		return spatialgrid.Dedupe(locs, opts.Radius, opts.OnProgress), nil
	}
	pending := spatialgrid.DedupeCooperative(ctx, opts.Host, locs, opts.Radius, opts.OnProgress)
	<-pending.Done()
	return pending.Wait(context.Background())
}

// Mode returns the run mode name stored for opts.
func (o Options) Mode() string {
	if o.Cooperative {
		return store.ModeCooperative
	}
	return store.ModeSync
}

// Runner records dedupe passes over stored locations.
type Runner struct {
	db *store.DB
}

// New returns a runner backed by db.
func New(db *store.DB) *Runner {
	return &Runner{db: db}
}

// Request describes a stored-data run.
type Request struct {
	Filter store.LocationFilter
	Options
}

// Run dedupes the locations matching req.Filter in timestamp order and
// records the run with the kept points. The returned run reflects its final
// status even when err is not nil.
func (r *Runner) Run(ctx context.Context, req Request) (*store.Run, []locfile.Location, error) {
	run, err := r.db.CreateRun(req.Filter.UserID, req.Radius, req.Mode())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create run: %w", err)
	}
	logger := log.WithFields(log.Fields{"run": run.ID, "radius": req.Radius, "mode": run.Mode})
	started := time.Now()

	fail := func(status string, cause error) (*store.Run, []locfile.Location, error) {
		if err := r.db.FinishRun(run, status, cause); err != nil {
			logger.WithError(err).Error("failed to record run status")
		}
		logger.WithError(cause).Warnf("dedupe run %s", status)
		return run, nil, cause
	}

	locs, err := r.db.QueryLocations(req.Filter)
	if err != nil {
		return fail(store.StatusFailed, fmt.Errorf("failed to query locations: %w", err))
	}
	run.InputCount = len(locs)
	logger.WithField("points", len(locs)).Info("dedupe run started")

	opts := req.Options
	opts.OnProgress = func(processed, total int) {
		logger.Debugf("processed %d/%d", processed, total)
		if req.OnProgress != nil {
			req.OnProgress(processed, total)
		}
	}

	kept, err := Dedupe(ctx, locs, opts)
	if err != nil {
		status := store.StatusFailed
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			status = store.StatusCancelled
		}
		return fail(status, err)
	}
	run.KeptCount = len(kept)

	if err := r.db.SaveRunPoints(run.ID, kept); err != nil {
		return fail(store.StatusFailed, fmt.Errorf("failed to save kept points: %w", err))
	}
	if err := r.db.FinishRun(run, store.StatusCompleted, nil); err != nil {
		return run, kept, fmt.Errorf("failed to finish run: %w", err)
	}

	logger.WithFields(log.Fields{
		"points":  run.InputCount,
		"kept":    run.KeptCount,
		"elapsed": time.Since(started).Round(time.Millisecond),
	}).Info("dedupe run completed")
	return run, kept, nil
}
