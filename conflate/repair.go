package conflate

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/peterstace/simplefeatures/geom"
)

// repairedFootprint is the engine's working record for one surviving
// input: the validated geometry, its derived area, and the dense ordinal
// used by the spatial index and the grouper.
type repairedFootprint struct {
	ordinal int
	fp      Footprint
	poly    geom.Polygon
	area    float64
}

// RepairPolygon validates and repairs a raw input polygon. It closes open
// rings, drops repeated consecutive vertices, and discards degenerate
// rings, then validates the result as a simple polygon. A polygon that is
// still invalid after cleaning (for example a self-intersecting "bowtie"
// ring) or that has zero area is unrepairable and yields a *GeometryError
// naming the footprint and the defect.
//
// RepairPolygon is a pure function: the input is never modified and the
// returned polygon shares no storage with it.
func RepairPolygon(id string, p orb.Polygon) (geom.Polygon, error) {
	if len(p) == 0 {
		return geom.Polygon{}, &GeometryError{FootprintID: id, Reason: "no rings"}
	}

	rings := make([]geom.LineString, 0, len(p))
	for i, ring := range p {
		cleaned := cleanRing(ring)
		if len(cleaned) < 3 {
			if i == 0 {
				return geom.Polygon{}, &GeometryError{
					FootprintID: id,
					Reason:      fmt.Sprintf("exterior ring has %d distinct vertices, need at least 3", len(cleaned)),
				}
			}
			// Degenerate holes contribute nothing; drop them.
			continue
		}
		rings = append(rings, closedLineString(cleaned))
	}

	poly := geom.NewPolygon(rings)
	if err := poly.Validate(); err != nil {
		return geom.Polygon{}, &GeometryError{FootprintID: id, Reason: err.Error()}
	}
	if poly.Area() <= 0 {
		return geom.Polygon{}, &GeometryError{FootprintID: id, Reason: "zero-area polygon"}
	}
	return poly, nil
}

// cleanRing returns the ring's vertices with the closing vertex and any
// repeated consecutive vertices removed.
func cleanRing(ring orb.Ring) []orb.Point {
	pts := []orb.Point(ring)
	if len(pts) > 1 && pts[0] == pts[len(pts)-1] {
		pts = pts[:len(pts)-1]
	}
	cleaned := make([]orb.Point, 0, len(pts))
	for _, p := range pts {
		if len(cleaned) > 0 && cleaned[len(cleaned)-1] == p {
			continue
		}
		cleaned = append(cleaned, p)
	}
	// The last vertex may still duplicate the first after unclosing.
	for len(cleaned) > 1 && cleaned[0] == cleaned[len(cleaned)-1] {
		cleaned = cleaned[:len(cleaned)-1]
	}
	return cleaned
}

// closedLineString builds a closed LineString from open ring vertices.
func closedLineString(pts []orb.Point) geom.LineString {
	coords := make([]float64, 0, 2*(len(pts)+1))
	for _, p := range pts {
		coords = append(coords, p[0], p[1])
	}
	coords = append(coords, pts[0][0], pts[0][1])
	return geom.NewLineString(geom.NewSequence(coords, geom.DimXY))
}

// repairAll repairs every input footprint, assigning dense ordinals to the
// survivors in input order. Unrepairable inputs are reported, not merged.
func repairAll(footprints []Footprint) ([]*repairedFootprint, []SkippedFootprint) {
	repaired := make([]*repairedFootprint, 0, len(footprints))
	var skipped []SkippedFootprint
	for _, fp := range footprints {
		poly, err := RepairPolygon(fp.ID, fp.Geometry)
		if err != nil {
			skipped = append(skipped, SkippedFootprint{ID: fp.ID, Reason: err.Error()})
			continue
		}
		repaired = append(repaired, &repairedFootprint{
			ordinal: len(repaired),
			fp:      fp,
			poly:    poly,
			area:    poly.Area(),
		})
	}
	return repaired, skipped
}
