package spatialgrid

// GeoPoint is anything that has a position. Everything else about the value
// is carried through dedupe untouched.
type GeoPoint interface {
	GetCoordinates() Coordinates
}

// Point is a ready-made GeoPoint with an opaque payload.
type Point struct {
	Lat     float64
	Lng     float64
	Payload any
}

// GetCoordinates implements GeoPoint.
func (p Point) GetCoordinates() Coordinates {
	return Coordinates{Lat: p.Lat, Lng: p.Lng}
}

// Grid holds the accepted points of one dedupe run, bucketed by home cell.
// A Grid belongs to a single run and is not safe for concurrent use.
type Grid[P GeoPoint] struct {
	radius   float64
	cellSize float64
	cells    map[CellKey][]P
	size     int
}

// NewGrid returns an empty grid rejecting points closer than radius meters.
func NewGrid[P GeoPoint](radius float64) *Grid[P] {
	return &Grid[P]{
		radius:   radius,
		cellSize: CellSizeFactor * radius,
		cells:    make(map[CellKey][]P),
	}
}

// Radius returns the minimum separation in meters.
func (g *Grid[P]) Radius() float64 { return g.radius }

// Len returns the number of accepted points.
func (g *Grid[P]) Len() int { return g.size }

// Cells returns the number of non-empty buckets.
func (g *Grid[P]) Cells() int { return len(g.cells) }

// Accept decides whether p is kept. A point is rejected if any accepted point
// in its 3×3 cell neighborhood is strictly closer than the radius; otherwise
// it is stored in its home cell and accepted.
func (g *Grid[P]) Accept(p P) bool {
	// No distance is below a non-positive radius (and every comparison with a
	// NaN radius is false), so everything is kept and the grid can stay empty.
	if !(g.radius > 0) {
		g.size++
		return true
	}

	c := p.GetCoordinates()
	for _, key := range NeighborhoodOf(c.Lat, c.Lng, g.cellSize) {
		for _, kept := range g.cells[key] {
			if DistanceMeters(c, kept.GetCoordinates()) < g.radius {
				return false
			}
		}
	}

	home := CellKeyOf(c.Lat, c.Lng, g.cellSize)
	g.cells[home] = append(g.cells[home], p)
	g.size++
	return true
}
