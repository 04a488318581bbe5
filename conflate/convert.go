package conflate

import (
	"github.com/paulmach/orb"
	"github.com/peterstace/simplefeatures/geom"
)

// ringToLineString converts an orb.Ring to a closed simplefeatures
// LineString, appending the closing vertex if the ring is open.
func ringToLineString(r orb.Ring) geom.LineString {
	n := len(r)
	closed := n > 0 && r[0] == r[n-1]
	size := n
	if !closed {
		size = n + 1
	}
	coords := make([]float64, 0, 2*size)
	for _, p := range r {
		coords = append(coords, p[0], p[1])
	}
	if !closed {
		coords = append(coords, r[0][0], r[0][1])
	}
	return geom.NewLineString(geom.NewSequence(coords, geom.DimXY))
}

// orbToPolygon converts an orb.Polygon to a simplefeatures Polygon.
// No validation is performed here; callers go through RepairPolygon.
func orbToPolygon(p orb.Polygon) geom.Polygon {
	rings := make([]geom.LineString, len(p))
	for i, r := range p {
		rings[i] = ringToLineString(r)
	}
	return geom.NewPolygon(rings)
}

// lineStringToRing converts a closed simplefeatures LineString back to an
// orb.Ring.
func lineStringToRing(ls geom.LineString) orb.Ring {
	seq := ls.Coordinates()
	ring := make(orb.Ring, seq.Length())
	for i := 0; i < seq.Length(); i++ {
		xy := seq.GetXY(i)
		ring[i] = orb.Point{xy.X, xy.Y}
	}
	return ring
}

// polygonToOrb converts a simplefeatures Polygon back to an orb.Polygon.
func polygonToOrb(p geom.Polygon) orb.Polygon {
	out := make(orb.Polygon, 0, 1+p.NumInteriorRings())
	out = append(out, lineStringToRing(p.ExteriorRing()))
	for i := 0; i < p.NumInteriorRings(); i++ {
		out = append(out, lineStringToRing(p.InteriorRingN(i)))
	}
	return out
}

// orbGeometryToGeom converts an areal orb geometry back to its
// simplefeatures counterpart. The bool return is false for any other
// geometry type.
func orbGeometryToGeom(g orb.Geometry) (geom.Geometry, bool) {
	switch v := g.(type) {
	case orb.Polygon:
		return orbToPolygon(v).AsGeometry(), true
	case orb.MultiPolygon:
		polys := make([]geom.Polygon, len(v))
		for i, p := range v {
			polys[i] = orbToPolygon(p)
		}
		return geom.NewMultiPolygon(polys).AsGeometry(), true
	default:
		return geom.Geometry{}, false
	}
}

// geometryToOrb converts a simplefeatures areal geometry (Polygon or
// MultiPolygon) to the corresponding orb geometry. The bool return is
// false for any other geometry type.
func geometryToOrb(g geom.Geometry) (orb.Geometry, bool) {
	switch {
	case g.IsPolygon():
		return polygonToOrb(g.MustAsPolygon()), true
	case g.IsMultiPolygon():
		mp := g.MustAsMultiPolygon()
		out := make(orb.MultiPolygon, mp.NumPolygons())
		for i := 0; i < mp.NumPolygons(); i++ {
			out[i] = polygonToOrb(mp.PolygonN(i))
		}
		return out, true
	default:
		return nil, false
	}
}
