package conflate

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// FootprintsFromGeoJSON extracts footprints from a GeoJSON
// FeatureCollection. Only Polygon and MultiPolygon features are accepted;
// MultiPolygon features are split into one footprint per polygon with an
// index suffix on the id, since the engine conflates simple polygons.
//
// Recognized feature fields: the feature id (or an "id" property) becomes
// the footprint id, a numeric "confidence" property becomes the optional
// confidence, and a "source" property overrides the defaultSource tag.
// Features without an id are assigned "<source>/<index>".
func FootprintsFromGeoJSON(data []byte, defaultSource string) ([]Footprint, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("parsing feature collection: %w", err)
	}

	var footprints []Footprint
	for i, f := range fc.Features {
		source := defaultSource
		if s, ok := f.Properties["source"].(string); ok && s != "" {
			source = s
		}
		id := featureID(f, source, i)
		confidence := featureConfidence(f)

		switch g := f.Geometry.(type) {
		case orb.Polygon:
			footprints = append(footprints, Footprint{
				ID:         id,
				Geometry:   g,
				Confidence: confidence,
				Source:     source,
			})
		case orb.MultiPolygon:
			for j, poly := range g {
				footprints = append(footprints, Footprint{
					ID:         fmt.Sprintf("%s#%d", id, j),
					Geometry:   poly,
					Confidence: confidence,
					Source:     source,
				})
			}
		case nil:
			return nil, fmt.Errorf("feature %d (%s): missing geometry", i, id)
		default:
			return nil, fmt.Errorf("feature %d (%s): unsupported geometry type %s", i, id, f.Geometry.GeoJSONType())
		}
	}
	return footprints, nil
}

// featureID resolves a stable footprint id for a GeoJSON feature.
func featureID(f *geojson.Feature, source string, index int) string {
	switch v := f.ID.(type) {
	case string:
		if v != "" {
			return v
		}
	case float64:
		return fmt.Sprintf("%g", v)
	}
	if s, ok := f.Properties["id"].(string); ok && s != "" {
		return s
	}
	if n, ok := f.Properties["id"].(float64); ok {
		return fmt.Sprintf("%g", n)
	}
	return fmt.Sprintf("%s/%d", source, index)
}

// featureConfidence extracts an optional numeric confidence property.
func featureConfidence(f *geojson.Feature) *float64 {
	if n, ok := f.Properties["confidence"].(float64); ok {
		c := n
		return &c
	}
	return nil
}

// LoadFootprints reads a GeoJSON file and extracts its footprints, using
// the file path as the default source tag when none is given.
func LoadFootprints(path, source string) ([]Footprint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("input file not found: %s", path)
		}
		return nil, fmt.Errorf("reading input file: %w", err)
	}
	if source == "" {
		source = path
	}
	footprints, err := FootprintsFromGeoJSON(data, source)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return footprints, nil
}

// ReportToFeatureCollection converts conflation results into a GeoJSON
// FeatureCollection with provenance recorded in feature properties.
func ReportToFeatureCollection(report *RunReport) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, r := range report.Results {
		f := geojson.NewFeature(r.Geometry)
		f.ID = r.KeptFrom[0]
		f.Properties["keptFrom"] = r.KeptFrom
		f.Properties["strategyApplied"] = r.StrategyApplied
		f.Properties["degraded"] = r.Degraded
		if r.FinalConfidence != nil {
			f.Properties["confidence"] = *r.FinalConfidence
		}
		fc.Append(f)
	}
	return fc
}

// WriteResults writes the results FeatureCollection to path as indented
// GeoJSON.
func WriteResults(path string, report *RunReport) error {
	data, err := json.MarshalIndent(ReportToFeatureCollection(report), "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling results: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing results file: %w", err)
	}
	return nil
}
