package spatialgrid

import "context"

// ProgressInterval is how many points Dedupe processes between progress
// reports.
const ProgressInterval = 1000

// ProgressFunc observes a running dedupe. It is called synchronously from the
// run, never concurrently with itself. processed never decreases and the
// final call reports processed == total.
type ProgressFunc func(processed, total int)

// Dedupe returns the points of the input that are at least radius meters away
// from every earlier kept point, in input order. It runs to completion on the
// calling goroutine.
//
// onProgress, if not nil, is called each time at least ProgressInterval
// points went by since the previous report, and once more with
// (len(points), len(points)) at the end. It is not called for empty input.
func Dedupe[P GeoPoint](points []P, radius float64, onProgress ProgressFunc) []P {
	if len(points) == 0 {
		return []P{}
	}

	s := newScan(points, radius, onProgress)
	var kept []P
	s.drive(context.Background(), pacing{every: ProgressInterval}, func(result []P, _ error) {
		kept = result
	})
	return kept
}

// scan is the state of one dedupe run: the grid, the kept points and the
// position in the input. Both engines drive the same scan.
type scan[P GeoPoint] struct {
	points     []P
	grid       *Grid[P]
	kept       []P
	next       int
	lastReport int
	onProgress ProgressFunc
}

func newScan[P GeoPoint](points []P, radius float64, onProgress ProgressFunc) *scan[P] {
	return &scan[P]{
		points:     points,
		grid:       NewGrid[P](radius),
		kept:       make([]P, 0, len(points)/4+1),
		onProgress: onProgress,
	}
}

// pacing decides how a scan is split into turns.
type pacing struct {
	// batch is the number of points per turn; zero means all of them.
	batch int
	// every is the in-turn progress interval; zero disables it.
	every int
	// suspend schedules the next turn; nil runs turns back to back.
	suspend func(turn func())
}

func (s *scan[P]) done() bool { return s.next >= len(s.points) }

// advance feeds up to n points (all remaining when n <= 0) through the grid.
func (s *scan[P]) advance(n, every int) {
	end := len(s.points)
	if n > 0 && s.next+n < end {
		end = s.next + n
	}
	for ; s.next < end; s.next++ {
		p := s.points[s.next]
		if s.grid.Accept(p) {
			s.kept = append(s.kept, p)
		}
		if every > 0 && s.onProgress != nil && s.next-s.lastReport >= every {
			s.onProgress(s.next, len(s.points))
			s.lastReport = s.next
		}
	}
}

func (s *scan[P]) report() {
	if s.onProgress != nil {
		s.onProgress(s.next, len(s.points))
	}
}

// drive runs the scan turn by turn and calls finish exactly once, with the
// kept points and ctx.Err() if ctx ended before the input was exhausted.
// ctx is checked before each turn.
func (s *scan[P]) drive(ctx context.Context, p pacing, finish func([]P, error)) {
	var turn func()
	turn = func() {
		for {
			if err := ctx.Err(); err != nil {
				finish(s.kept, err)
				return
			}
			s.advance(p.batch, p.every)
			s.report()
			if s.done() {
				finish(s.kept, nil)
				return
			}
			if p.suspend != nil {
				p.suspend(turn)
				return
			}
		}
	}

	if p.suspend != nil {
		p.suspend(turn)
		return
	}
	turn()
}
