package conflate

import "github.com/paulmach/orb"

// square returns a closed axis-aligned square ring with the given origin
// and side length.
func square(x, y, size float64) orb.Polygon {
	return orb.Polygon{orb.Ring{
		{x, y},
		{x + size, y},
		{x + size, y + size},
		{x, y + size},
		{x, y},
	}}
}

// rect returns a closed axis-aligned rectangle.
func rect(x, y, w, h float64) orb.Polygon {
	return orb.Polygon{orb.Ring{
		{x, y},
		{x + w, y},
		{x + w, y + h},
		{x, y + h},
		{x, y},
	}}
}

// conf returns a pointer to a confidence value.
func conf(v float64) *float64 {
	return &v
}

// fp builds a footprint with an optional confidence.
func fp(id string, geometry orb.Polygon, confidence *float64) Footprint {
	return Footprint{ID: id, Geometry: geometry, Confidence: confidence, Source: "test"}
}
