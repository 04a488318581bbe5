package conflate

import (
	"fmt"
	"math"
	"sort"

	"github.com/peterstace/simplefeatures/geom"
)

// resolver collapses one conflation group into a single result. All
// implementations are deterministic: identical groups always produce
// identical results.
type resolver interface {
	name() string
	resolve(group []*repairedFootprint) (Result, error)
}

// newResolver selects the resolver for a validated option set.
func newResolver(opts Options) resolver {
	hc := &highestConfidenceResolver{policy: opts.MissingConfidencePolicy}
	switch opts.Strategy {
	case StrategyLargestArea:
		return &largestAreaResolver{}
	case StrategyUnion:
		return &unionResolver{cap: opts.MaxUnionGroupSize, fallback: hc}
	default:
		return hc
	}
}

// highestConfidenceResolver keeps the group member with the maximum
// confidence. Ties break by larger derived area, then by smallest id.
type highestConfidenceResolver struct {
	policy MissingConfidencePolicy
}

func (r *highestConfidenceResolver) name() string { return string(StrategyHighestConfidence) }

// rank maps an optional confidence to a comparable value. Missing scores
// rank below any explicit score under treat_as_lowest (including an
// explicit zero), or as fully trusted under treat_as_one.
func (r *highestConfidenceResolver) rank(f *repairedFootprint) float64 {
	if f.fp.Confidence == nil {
		if r.policy == MissingAsOne {
			return 1.0
		}
		return -1.0
	}
	return *f.fp.Confidence
}

func (r *highestConfidenceResolver) resolve(group []*repairedFootprint) (Result, error) {
	winner := group[0]
	for _, f := range group[1:] {
		switch {
		case r.rank(f) > r.rank(winner):
			winner = f
		case r.rank(f) == r.rank(winner) && f.area > winner.area:
			winner = f
		case r.rank(f) == r.rank(winner) && f.area == winner.area && f.fp.ID < winner.fp.ID:
			winner = f
		}
	}
	return Result{
		Geometry:        polygonToOrb(winner.poly),
		KeptFrom:        sortedIDs(group),
		StrategyApplied: r.name(),
		FinalConfidence: winner.fp.Confidence,
	}, nil
}

// largestAreaResolver keeps the member with the maximum derived area,
// ties broken by smallest id.
type largestAreaResolver struct{}

func (r *largestAreaResolver) name() string { return string(StrategyLargestArea) }

func (r *largestAreaResolver) resolve(group []*repairedFootprint) (Result, error) {
	winner := group[0]
	for _, f := range group[1:] {
		if f.area > winner.area || (f.area == winner.area && f.fp.ID < winner.fp.ID) {
			winner = f
		}
	}
	return Result{
		Geometry:        polygonToOrb(winner.poly),
		KeptFrom:        sortedIDs(group),
		StrategyApplied: r.name(),
		FinalConfidence: winner.fp.Confidence,
	}, nil
}

// unionResolver merges the group into the geometric union of all members.
// Groups larger than the cap degrade to the highest-confidence fallback:
// a union over that many polygons is more likely a systemic overlap
// false-positive than a real duplicate cluster.
type unionResolver struct {
	cap      int
	fallback *highestConfidenceResolver
}

func (r *unionResolver) name() string { return string(StrategyUnion) }

func (r *unionResolver) resolve(group []*repairedFootprint) (Result, error) {
	if len(group) > r.cap {
		res, err := r.fallback.resolve(group)
		if err != nil {
			return Result{}, err
		}
		res.Degraded = true
		return res, nil
	}

	union := group[0].poly.AsGeometry()
	for _, f := range group[1:] {
		var err error
		union, err = geom.Union(union, f.poly.AsGeometry())
		if err != nil {
			return Result{}, fmt.Errorf("union with %s: %w", f.fp.ID, err)
		}
	}
	geometry, ok := geometryToOrb(union)
	if !ok {
		return Result{}, fmt.Errorf("union produced non-areal geometry %s", union.Type())
	}

	// Max over explicit scores; absent if no member carries one.
	var maxConf *float64
	for _, f := range group {
		if f.fp.Confidence != nil && (maxConf == nil || *f.fp.Confidence > *maxConf) {
			c := *f.fp.Confidence
			maxConf = &c
		}
	}

	return Result{
		Geometry:        geometry,
		KeptFrom:        sortedIDs(group),
		StrategyApplied: r.name(),
		FinalConfidence: maxConf,
	}, nil
}

// resolveWithResidualMerge resolves every group and, under the union
// strategy, re-checks the resolved outputs against each other. A union can
// cover enough of a neighboring result to cross the overlap threshold even
// when no individual pair of members did, so groups whose outputs still
// overlap significantly are merged and resolved again until the outputs
// are pairwise insignificant. Keep-one strategies emit original footprint
// geometry, which the pairwise scan already cleared, and skip the loop.
func resolveWithResidualMerge(groups [][]*repairedFootprint, opts Options) ([]Result, []SkippedFootprint, error) {
	results, skipped := resolveGroups(groups, opts)
	if opts.Strategy != StrategyUnion {
		return results, skipped, nil
	}
	for {
		merged, changed, err := mergeOverlappingResults(groups, results, opts.OverlapThreshold)
		if err != nil {
			return nil, nil, err
		}
		if !changed {
			return results, skipped, nil
		}
		groups = merged
		results, skipped = resolveGroups(groups, opts)
	}
}

// mergeOverlappingResults finds pairs of resolved outputs whose overlap
// ratio meets the threshold and merges their source groups. Every merge
// strictly reduces the group count, so the caller's loop terminates.
func mergeOverlappingResults(groups [][]*repairedFootprint, results []Result, threshold float64) ([][]*repairedFootprint, bool, error) {
	// Group members are sorted by id, as is each result's KeptFrom, so the
	// smallest id maps a result back to the group it came from.
	groupBy := make(map[string]int, len(groups))
	for gi, group := range groups {
		groupBy[group[0].fp.ID] = gi
	}

	type resolved struct {
		gi   int
		g    geom.Geometry
		area float64
	}
	live := make([]resolved, 0, len(results))
	for _, res := range results {
		g, ok := orbGeometryToGeom(res.Geometry)
		if !ok {
			return nil, false, fmt.Errorf("result %s: non-areal geometry", res.KeptFrom[0])
		}
		live = append(live, resolved{gi: groupBy[res.KeptFrom[0]], g: g, area: g.Area()})
	}

	uf := newUnionFind(len(groups))
	changed := false
	for i := 0; i < len(live); i++ {
		for j := i + 1; j < len(live); j++ {
			inter, err := geom.Intersection(live[i].g, live[j].g)
			if err != nil {
				return nil, false, fmt.Errorf("residual overlap check: %w", err)
			}
			smaller := math.Min(live[i].area, live[j].area)
			if smaller <= 0 {
				continue
			}
			if inter.Area()/smaller >= threshold {
				uf.union(live[i].gi, live[j].gi)
				changed = true
			}
		}
	}
	if !changed {
		return groups, false, nil
	}

	components := make(map[int][]*repairedFootprint, len(groups))
	for gi, group := range groups {
		root := uf.find(gi)
		components[root] = append(components[root], group...)
	}
	merged := make([][]*repairedFootprint, 0, len(components))
	for _, group := range components {
		sort.Slice(group, func(a, b int) bool { return group[a].fp.ID < group[b].fp.ID })
		merged = append(merged, group)
	}
	sort.Slice(merged, func(a, b int) bool { return merged[a][0].fp.ID < merged[b][0].fp.ID })
	return merged, true, nil
}

// resolveGroups applies the configured resolver to every group. Singleton
// groups pass through untouched with strategy "none". A group that fails
// to resolve is never partially emitted: all of its members are reported
// as skipped with the failure reason.
func resolveGroups(groups [][]*repairedFootprint, opts Options) ([]Result, []SkippedFootprint) {
	res := newResolver(opts)
	results := make([]Result, 0, len(groups))
	var skipped []SkippedFootprint
	for _, group := range groups {
		if len(group) == 1 {
			f := group[0]
			results = append(results, Result{
				Geometry:        polygonToOrb(f.poly),
				KeptFrom:        []string{f.fp.ID},
				StrategyApplied: strategyNone,
				FinalConfidence: f.fp.Confidence,
			})
			continue
		}
		result, err := res.resolve(group)
		if err != nil {
			for _, f := range group {
				skipped = append(skipped, SkippedFootprint{
					ID:     f.fp.ID,
					Reason: fmt.Sprintf("group resolution failed: %v", err),
				})
			}
			continue
		}
		results = append(results, result)
	}
	return results, skipped
}
