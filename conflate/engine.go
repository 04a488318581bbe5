package conflate

import (
	"context"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"
)

// pairRef identifies one candidate pair by footprint ordinals.
type pairRef struct {
	i, j int
}

// Run executes a full conflation pass over the input footprints: repair,
// candidate search, pairwise overlap analysis, transitive grouping, and
// per-group resolution. The engine holds no state across runs; the caller
// owns both the input and the returned report.
//
// The pairwise overlap scan is fanned out across opts.Workers goroutines
// (default: one per CPU), but edges are collected by pair ordinal and
// grouped in a fixed sorted order, so the output is identical for any
// worker count. ctx is checked between phases; a cancelled run returns
// ctx.Err() and no report, never a truncated one.
func Run(ctx context.Context, footprints []Footprint, opts Options) (*RunReport, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if err := checkUniqueIDs(footprints); err != nil {
		return nil, err
	}

	report := &RunReport{Stats: RunStats{Inputs: len(footprints)}}
	if len(footprints) == 0 {
		return report, nil
	}

	// Phase 1: repair. Unrepairable inputs are excluded and reported.
	repaired, skipped := repairAll(footprints)
	report.Skipped = skipped
	report.Stats.Repaired = len(repaired)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Phase 2: candidate enumeration and parallel overlap analysis.
	edges, err := scanOverlaps(ctx, repaired, opts)
	if err != nil {
		return nil, err
	}
	report.Edges = edges
	report.Stats.CandidatePairs = len(edges)
	for _, e := range edges {
		if e.Significant {
			report.Stats.SignificantEdges++
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Phase 3: transitive grouping over significant edges.
	groups := groupFootprints(repaired, edges)
	report.Stats.Groups = len(groups)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Phase 4: per-group resolution. Union outputs are re-checked against
	// each other and merged until no two results overlap significantly.
	results, resolveSkipped, err := resolveWithResidualMerge(groups, opts)
	if err != nil {
		return nil, err
	}
	report.Results = results
	report.Skipped = append(report.Skipped, resolveSkipped...)

	sort.Slice(report.Results, func(i, j int) bool {
		return report.Results[i].KeptFrom[0] < report.Results[j].KeptFrom[0]
	})
	sort.Slice(report.Skipped, func(i, j int) bool {
		return report.Skipped[i].ID < report.Skipped[j].ID
	})
	report.Stats.Results = len(report.Results)
	report.Stats.Skipped = len(report.Skipped)
	return report, nil
}

// checkUniqueIDs rejects duplicate caller-assigned ids up front; every
// downstream structure keys on them.
func checkUniqueIDs(footprints []Footprint) error {
	seen := make(map[string]struct{}, len(footprints))
	for _, fp := range footprints {
		if fp.ID == "" {
			return &InputError{Reason: "footprint with empty id"}
		}
		if _, dup := seen[fp.ID]; dup {
			return &InputError{FootprintID: fp.ID, Reason: "duplicate id"}
		}
		seen[fp.ID] = struct{}{}
	}
	return nil
}

// scanOverlaps enumerates candidate pairs via the spatial index and
// computes their overlap edges in parallel. Workers stride over a fixed
// pair list and write into a pre-sized slice indexed by pair ordinal, so
// no ordering depends on goroutine scheduling.
func scanOverlaps(ctx context.Context, repaired []*repairedFootprint, opts Options) ([]OverlapEdge, error) {
	index := buildIndex(repaired)
	var pairs []pairRef
	for i := range repaired {
		index.candidates(i, func(j int) {
			pairs = append(pairs, pairRef{i: i, j: j})
		})
	}
	if len(pairs) == 0 {
		return nil, nil
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > len(pairs) {
		workers = len(pairs)
	}

	an := analyzer{threshold: opts.OverlapThreshold, edgeBuffer: opts.EdgeBufferMeters}
	edges := make([]OverlapEdge, len(pairs))
	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for idx := w; idx < len(pairs); idx += workers {
				if err := gctx.Err(); err != nil {
					return err
				}
				p := pairs[idx]
				edge, err := an.analyze(repaired[p.i], repaired[p.j])
				if err != nil {
					return err
				}
				edges[idx] = edge
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return edges, nil
}
