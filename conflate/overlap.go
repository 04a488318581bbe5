package conflate

import (
	"fmt"
	"math"

	"github.com/peterstace/simplefeatures/geom"
)

// analyzer classifies candidate pairs as edge-touch-only or significant
// overlap. It is read-only with respect to shared state, so one analyzer
// may be used concurrently from many goroutines.
type analyzer struct {
	threshold  float64
	edgeBuffer float64
}

// analyze computes the overlap edge for a pair of repaired footprints.
//
// The raw intersection and union areas are computed on the unbuffered
// geometries. The edge-touch test then erodes each polygon inward by the
// edge buffer: two footprints that merely share a boundary segment (a
// party wall between adjacent buildings) have disjoint eroded interiors,
// while footprints describing the same structure still overlap after
// erosion. If either polygon has no interior margin at the buffer
// distance, the test falls back to the raw ratio alone.
func (a analyzer) analyze(fa, fb *repairedFootprint) (OverlapEdge, error) {
	edge := OverlapEdge{A: fa.fp.ID, B: fb.fp.ID}
	if edge.B < edge.A {
		edge.A, edge.B = edge.B, edge.A
	}

	ga, gb := fa.poly.AsGeometry(), fb.poly.AsGeometry()

	inter, err := geom.Intersection(ga, gb)
	if err != nil {
		return edge, fmt.Errorf("intersection of %s and %s: %w", edge.A, edge.B, err)
	}
	union, err := geom.Union(ga, gb)
	if err != nil {
		return edge, fmt.Errorf("union of %s and %s: %w", edge.A, edge.B, err)
	}
	edge.IntersectionArea = inter.Area()
	edge.UnionArea = union.Area()

	if minArea := math.Min(fa.area, fb.area); minArea > 0 {
		edge.OverlapRatio = edge.IntersectionArea / minArea
	}
	if edge.UnionArea > 0 {
		edge.Jaccard = edge.IntersectionArea / edge.UnionArea
	}

	if a.edgeBuffer > 0 {
		shrunkA, okA := erodePolygon(fa.poly, a.edgeBuffer)
		shrunkB, okB := erodePolygon(fb.poly, a.edgeBuffer)
		if okA && okB {
			edge.TouchesOnly = !geom.Intersects(shrunkA.AsGeometry(), shrunkB.AsGeometry())
		}
		// If either polygon erodes to nothing it has no interior margin
		// for this test; the raw ratio decides alone.
	}

	edge.Significant = !edge.TouchesOnly && edge.OverlapRatio >= a.threshold
	return edge, nil
}

// AnalyzeOverlap repairs both footprints and computes their overlap edge
// under the given options. It is the same classification the engine
// applies to candidate pairs, exposed for diagnostics and for verifying
// that conflated outputs no longer overlap.
func AnalyzeOverlap(a, b Footprint, opts Options) (OverlapEdge, error) {
	if err := opts.Validate(); err != nil {
		return OverlapEdge{}, err
	}
	pa, err := RepairPolygon(a.ID, a.Geometry)
	if err != nil {
		return OverlapEdge{}, err
	}
	pb, err := RepairPolygon(b.ID, b.Geometry)
	if err != nil {
		return OverlapEdge{}, err
	}
	an := analyzer{threshold: opts.OverlapThreshold, edgeBuffer: opts.EdgeBufferMeters}
	return an.analyze(
		&repairedFootprint{fp: a, poly: pa, area: pa.Area()},
		&repairedFootprint{fp: b, poly: pb, area: pb.Area()},
	)
}

// erodePolygon shrinks p inward by dist using a miter inset of each ring:
// every edge is shifted toward the polygon interior and consecutive
// offset edges are re-intersected. The second return is false when the
// polygon has no interior margin at this distance -- the inset exterior
// ring collapses, flips orientation, or produces an invalid polygon.
// Insets that self-intersect are treated as collapsed rather than
// repaired, which routes the caller to the raw-intersection fallback.
func erodePolygon(p geom.Polygon, dist float64) (geom.Polygon, bool) {
	exterior := ringVertices(p.ExteriorRing())
	if len(exterior) < 3 {
		return geom.Polygon{}, false
	}
	// Orient every ring with the polygon interior on its left: exterior
	// counter-clockwise, holes clockwise. The inset then always offsets
	// leftward, shrinking the shell and growing the holes.
	if signedArea(exterior) < 0 {
		reverseVertices(exterior)
	}
	shell, ok := insetRing(exterior, dist)
	if !ok || signedArea(shell) <= 0 {
		return geom.Polygon{}, false
	}

	rings := make([]geom.LineString, 0, 1+p.NumInteriorRings())
	rings = append(rings, verticesToLineString(shell))
	for i := 0; i < p.NumInteriorRings(); i++ {
		hole := ringVertices(p.InteriorRingN(i))
		if len(hole) < 3 {
			continue
		}
		if signedArea(hole) > 0 {
			reverseVertices(hole)
		}
		grown, ok := insetRing(hole, dist)
		if !ok {
			continue
		}
		rings = append(rings, verticesToLineString(grown))
	}

	eroded := geom.NewPolygon(rings)
	if err := eroded.Validate(); err != nil {
		return geom.Polygon{}, false
	}
	return eroded, true
}

// insetRing offsets each edge of an open ring to its left by dist and
// returns the intersections of consecutive offset edges. The ring must be
// oriented with the region to keep on the left.
func insetRing(pts []geom.XY, dist float64) ([]geom.XY, bool) {
	n := len(pts)
	out := make([]geom.XY, 0, n)
	for i := 0; i < n; i++ {
		prev := pts[(i-1+n)%n]
		cur := pts[i]
		next := pts[(i+1)%n]

		// Offset anchor points of the two edges meeting at cur.
		p1, d1, ok1 := offsetEdge(prev, cur, dist)
		p2, d2, ok2 := offsetEdge(cur, next, dist)
		if !ok1 || !ok2 {
			return nil, false
		}

		cross := d1.X*d2.Y - d1.Y*d2.X
		if math.Abs(cross) < 1e-12 {
			// Collinear edges: the offset lines coincide, so the
			// offset of the shared vertex is exact.
			out = append(out, p2)
			continue
		}
		t := ((p2.X-p1.X)*d2.Y - (p2.Y-p1.Y)*d2.X) / cross
		out = append(out, geom.XY{X: p1.X + t*d1.X, Y: p1.Y + t*d1.Y})
	}
	if len(out) < 3 {
		return nil, false
	}
	return out, true
}

// offsetEdge shifts the edge a->b to its left by dist, returning a point
// on the offset line and the edge direction. ok is false for a
// zero-length edge.
func offsetEdge(a, b geom.XY, dist float64) (geom.XY, geom.XY, bool) {
	dx, dy := b.X-a.X, b.Y-a.Y
	length := math.Hypot(dx, dy)
	if length == 0 {
		return geom.XY{}, geom.XY{}, false
	}
	// Unit normal pointing left of the direction of travel.
	nx, ny := -dy/length*dist, dx/length*dist
	return geom.XY{X: a.X + nx, Y: a.Y + ny}, geom.XY{X: dx, Y: dy}, true
}

// ringVertices extracts the ring's vertices without the closing duplicate.
func ringVertices(ls geom.LineString) []geom.XY {
	seq := ls.Coordinates()
	n := seq.Length()
	if n > 1 && seq.GetXY(0) == seq.GetXY(n-1) {
		n--
	}
	pts := make([]geom.XY, n)
	for i := 0; i < n; i++ {
		pts[i] = seq.GetXY(i)
	}
	return pts
}

// verticesToLineString builds a closed LineString from open ring vertices.
func verticesToLineString(pts []geom.XY) geom.LineString {
	coords := make([]float64, 0, 2*(len(pts)+1))
	for _, p := range pts {
		coords = append(coords, p.X, p.Y)
	}
	coords = append(coords, pts[0].X, pts[0].Y)
	return geom.NewLineString(geom.NewSequence(coords, geom.DimXY))
}

// signedArea returns the shoelace area of an open ring: positive for
// counter-clockwise winding.
func signedArea(pts []geom.XY) float64 {
	var sum float64
	for i, p := range pts {
		q := pts[(i+1)%len(pts)]
		sum += p.X*q.Y - q.X*p.Y
	}
	return sum / 2
}

// reverseVertices reverses the ring in place.
func reverseVertices(pts []geom.XY) {
	for i, j := 0, len(pts)-1; i < j; i, j = i+1, j-1 {
		pts[i], pts[j] = pts[j], pts[i]
	}
}
