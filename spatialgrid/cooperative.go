package spatialgrid

import "context"

// BatchSize is the number of points a cooperative run processes per host turn.
const BatchSize = 5000

// Pending is the eventual result of a cooperative run.
type Pending[P GeoPoint] struct {
	done   chan struct{}
	points []P
	err    error
}

func newPending[P GeoPoint]() *Pending[P] {
	return &Pending[P]{done: make(chan struct{})}
}

func (p *Pending[P]) resolve(points []P, err error) {
	p.points = points
	p.err = err
	close(p.done)
}

// Done is closed once the run has finished or was cancelled.
func (p *Pending[P]) Done() <-chan struct{} { return p.done }

// Wait blocks until the run finishes or ctx is done. On cancellation of the
// run itself it returns the points kept so far together with the run's
// context error.
func (p *Pending[P]) Wait(ctx context.Context) ([]P, error) {
	select {
	case <-p.done:
		return p.points, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// DedupeCooperative is Dedupe split into batches of BatchSize points, each
// run on its own host turn so other work on the host can interleave. The
// result is identical to Dedupe for the same points and radius.
//
// A nil host means GoHost. onProgress, if not nil, is called on the host after
// every batch with the number of points processed so far; the last call
// reports (len(points), len(points)).
//
// ctx is checked before every batch. If it is done, the run stops and
// resolves with the points kept so far and ctx.Err(). Empty input resolves
// immediately without touching the host.
func DedupeCooperative[P GeoPoint](ctx context.Context, host Host, points []P, radius float64, onProgress ProgressFunc) *Pending[P] {
	pending := newPending[P]()
	if len(points) == 0 {
		pending.resolve([]P{}, nil)
		return pending
	}
	if host == nil {
		host = GoHost{}
	}

	s := newScan(points, radius, onProgress)
	s.drive(ctx, pacing{batch: BatchSize, suspend: host.Defer}, pending.resolve)
	return pending
}
