package conflate

import (
	"fmt"
	"log"
	"sort"

	"github.com/paulmach/orb"
)

// Footprint is a single source's polygon describing one candidate building
// outline. Geometry must be expressed in a planar metric coordinate system;
// the engine never reprojects. Confidence is nil for sources that carry no
// model score (typically crowd-sourced data).
type Footprint struct {
	ID         string      `json:"id"`
	Geometry   orb.Polygon `json:"geometry"`
	Confidence *float64    `json:"confidence,omitempty"`
	Source     string      `json:"source,omitempty"`
}

// OverlapEdge describes the pairwise overlap between two repaired footprints.
// A and B are ordered so that A < B. Edges are computed for every candidate
// pair, significant or not, so callers can inspect near-misses.
type OverlapEdge struct {
	A                string  `json:"a"`
	B                string  `json:"b"`
	IntersectionArea float64 `json:"intersectionArea"`
	UnionArea        float64 `json:"unionArea"`
	OverlapRatio     float64 `json:"overlapRatio"` // intersection / min(areaA, areaB)
	Jaccard          float64 `json:"jaccard"`      // intersection / union
	TouchesOnly      bool    `json:"touchesOnly"`
	Significant      bool    `json:"significant"`
}

// Result is one conflated output footprint with merged provenance.
type Result struct {
	Geometry        orb.Geometry `json:"geometry"`
	KeptFrom        []string     `json:"keptFrom"` // sorted contributing input ids
	StrategyApplied string       `json:"strategyApplied"`
	FinalConfidence *float64     `json:"finalConfidence,omitempty"`
	Degraded        bool         `json:"degraded"`
}

// SkippedFootprint records an input that was excluded from conflation,
// either because its geometry could not be repaired or because its group
// failed to resolve.
type SkippedFootprint struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// RunStats summarizes the phases of a single conflation run.
type RunStats struct {
	Inputs           int `json:"inputs"`
	Repaired         int `json:"repaired"`
	CandidatePairs   int `json:"candidatePairs"`
	SignificantEdges int `json:"significantEdges"`
	Groups           int `json:"groups"`
	Results          int `json:"results"`
	Skipped          int `json:"skipped"`
}

// RunReport is the complete output of one conflation run. Results are
// sorted by their smallest contributing input id. Edges holds every
// computed overlap edge for diagnostics.
type RunReport struct {
	Results []Result           `json:"results"`
	Skipped []SkippedFootprint `json:"skipped"`
	Edges   []OverlapEdge      `json:"edges,omitempty"`
	Stats   RunStats           `json:"stats"`
}

// Strategy selects how each conflation group is collapsed into one result.
type Strategy string

const (
	StrategyHighestConfidence Strategy = "highest_confidence"
	StrategyLargestArea       Strategy = "largest_area"
	StrategyUnion             Strategy = "union"

	// strategyNone is recorded on singleton groups that pass through
	// without any resolution work.
	strategyNone = "none"
)

// MissingConfidencePolicy controls how footprints without a confidence
// score rank inside the highest-confidence strategy.
type MissingConfidencePolicy string

const (
	// MissingAsLowest ranks unscored footprints below any footprint with
	// an explicit score, including an explicit zero.
	MissingAsLowest MissingConfidencePolicy = "treat_as_lowest"
	// MissingAsOne treats unscored footprints as fully trusted.
	MissingAsOne MissingConfidencePolicy = "treat_as_one"
)

// lowThresholdWarning is the overlap threshold below which validation logs
// a warning: near-zero thresholds tend to merge most footprints in dense
// areas.
const lowThresholdWarning = 0.05

// Options configures a conflation run. Zero values are rejected by
// Validate; start from DefaultOptions and override fields as needed.
type Options struct {
	// OverlapThreshold is the minimum overlap ratio (intersection over
	// the smaller area) for a pair to be considered the same structure.
	// Must be in (0, 1].
	OverlapThreshold float64 `yaml:"overlapThreshold" json:"overlapThreshold"`

	// EdgeBufferMeters is the inward erosion distance used to distinguish
	// boundary-only contact from genuine interior overlap. Zero disables
	// the erosion test.
	EdgeBufferMeters float64 `yaml:"edgeBufferMeters" json:"edgeBufferMeters"`

	Strategy                Strategy                `yaml:"strategy" json:"strategy"`
	MissingConfidencePolicy MissingConfidencePolicy `yaml:"missingConfidencePolicy" json:"missingConfidencePolicy"`

	// MaxUnionGroupSize caps the union strategy. Groups larger than this
	// degrade to highest-confidence and are flagged Degraded, since very
	// large groups usually indicate a systemic false-positive rather
	// than a real duplicate cluster. Must be >= 2.
	MaxUnionGroupSize int `yaml:"maxUnionGroupSize" json:"maxUnionGroupSize"`

	// Workers bounds the parallelism of the pairwise overlap scan.
	// Zero means one worker per available CPU. Output is identical for
	// any worker count.
	Workers int `yaml:"workers,omitempty" json:"workers,omitempty"`
}

// DefaultOptions returns the documented defaults: threshold 0.30, edge
// buffer 0.5m, highest-confidence strategy, unscored footprints ranked
// lowest, union cap 50.
func DefaultOptions() Options {
	return Options{
		OverlapThreshold:        0.30,
		EdgeBufferMeters:        0.5,
		Strategy:                StrategyHighestConfidence,
		MissingConfidencePolicy: MissingAsLowest,
		MaxUnionGroupSize:       50,
	}
}

// Validate checks the option set before any processing begins. It returns
// a *ConfigError describing the first offending field.
func (o Options) Validate() error {
	if o.OverlapThreshold <= 0 || o.OverlapThreshold > 1 {
		return &ConfigError{Field: "overlapThreshold", Reason: fmt.Sprintf("must be in (0, 1], got %g", o.OverlapThreshold)}
	}
	if o.EdgeBufferMeters < 0 {
		return &ConfigError{Field: "edgeBufferMeters", Reason: fmt.Sprintf("must be >= 0, got %g", o.EdgeBufferMeters)}
	}
	switch o.Strategy {
	case StrategyHighestConfidence, StrategyLargestArea, StrategyUnion:
	default:
		return &ConfigError{Field: "strategy", Reason: fmt.Sprintf("unknown strategy %q", o.Strategy)}
	}
	switch o.MissingConfidencePolicy {
	case MissingAsLowest, MissingAsOne:
	default:
		return &ConfigError{Field: "missingConfidencePolicy", Reason: fmt.Sprintf("unknown policy %q", o.MissingConfidencePolicy)}
	}
	if o.MaxUnionGroupSize < 2 {
		return &ConfigError{Field: "maxUnionGroupSize", Reason: fmt.Sprintf("must be >= 2, got %d", o.MaxUnionGroupSize)}
	}
	if o.Workers < 0 {
		return &ConfigError{Field: "workers", Reason: fmt.Sprintf("must be >= 0, got %d", o.Workers)}
	}
	if o.OverlapThreshold < lowThresholdWarning {
		log.Printf("Warning: overlapThreshold %g is very low; dense areas may collapse into a single group", o.OverlapThreshold)
	}
	return nil
}

// sortedIDs returns the footprint ids in ascending order.
func sortedIDs(fps []*repairedFootprint) []string {
	ids := make([]string, len(fps))
	for i, f := range fps {
		ids[i] = f.fp.ID
	}
	sort.Strings(ids)
	return ids
}
