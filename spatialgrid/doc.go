// Package spatialgrid removes near-duplicate geospatial points from an ordered
// sequence.
//
// Given a minimum separation radius in meters, the first occurrence of each
// point is kept and every later point closer than radius to an already kept
// point is dropped. Accepted points are bucketed into a coarse grid of
// degree-based cells whose side is 1.5 × radius, so each candidate is only
// compared against the 3×3 block of cells around it instead of every kept
// point.
//
// Two engines share the same scan:
//
//	// blocking, one pass
//	kept := spatialgrid.Dedupe(points, 50, nil)
//
//	// batched, one host turn per 5000 points
//	pending := spatialgrid.DedupeCooperative(ctx, nil, points, 50, nil)
//	kept, err := pending.Wait(ctx)
//
// Both return the same points in the same order. Points with NaN or infinite
// coordinates never compare as close to anything, so they are always kept and
// never cause another point to be dropped. Validate coordinates before calling
// if that is unwanted.
//
// The grid uses a flat degrees-per-meter conversion, so near the poles and
// across the antimeridian true neighbors may land in non-adjacent cells and
// escape deduplication. The longitude extent also depends on each point's own
// latitude, so at high latitudes and large longitudes two close points can
// fall into columns more than one apart.
package spatialgrid
