package conflate

import (
	"github.com/peterstace/simplefeatures/geom"
	"github.com/peterstace/simplefeatures/rtree"
)

// spatialIndex is an immutable bounding-box index over the repaired
// footprints of one run. Record ids are footprint ordinals, so lookups
// stay on dense integers throughout the pipeline.
type spatialIndex struct {
	tree  *rtree.RTree
	boxes []rtree.Box
}

// buildIndex bulk-loads the footprints' bounding boxes, tagged with their
// ordinals as record ids. The index is rebuilt fresh each run and never
// mutated afterwards.
func buildIndex(fps []*repairedFootprint) *spatialIndex {
	boxes := make([]rtree.Box, len(fps))
	items := make([]rtree.BulkItem, len(fps))
	for i, f := range fps {
		boxes[i] = envelopeBox(f.poly)
		items[i] = rtree.BulkItem{Box: boxes[i], RecordID: i}
	}
	return &spatialIndex{tree: rtree.BulkLoad(items), boxes: boxes}
}

// candidates calls fn for every ordinal j > i whose bounding box
// intersects footprint i's box. Restricting to larger ordinals means a
// full scan over all i enumerates each unordered pair exactly once.
func (s *spatialIndex) candidates(i int, fn func(j int)) {
	_ = s.tree.RangeSearch(s.boxes[i], func(j int) error {
		if j > i {
			fn(j)
		}
		return nil
	})
}

// envelopeBox converts a polygon's envelope to an rtree box.
func envelopeBox(p geom.Polygon) rtree.Box {
	min, max, ok := p.Envelope().MinMaxXYs()
	if !ok {
		return rtree.Box{}
	}
	return rtree.Box{MinX: min.X, MinY: min.Y, MaxX: max.X, MaxY: max.Y}
}
