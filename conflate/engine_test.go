package conflate

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunScenarios(t *testing.T) {
	ctx := context.Background()

	t.Run("coincident squares keep the best confidence", func(t *testing.T) {
		report, err := Run(ctx, []Footprint{
			fp("a", square(0, 0, 10), conf(0.9)),
			fp("b", square(0, 0, 10), conf(0.6)),
		}, DefaultOptions())
		require.NoError(t, err)
		require.Len(t, report.Results, 1)

		res := report.Results[0]
		assert.Equal(t, []string{"a", "b"}, res.KeptFrom)
		require.NotNil(t, res.FinalConfidence)
		assert.InDelta(t, 0.9, *res.FinalConfidence, 1e-9)
		assert.Empty(t, report.Skipped)
	})

	t.Run("transitive chain forms one group", func(t *testing.T) {
		// overlap(A,B)=0.5 and overlap(B,C)=0.5 while A and C only
		// touch at a shared edge.
		report, err := Run(ctx, []Footprint{
			fp("a", square(0, 0, 10), nil),
			fp("b", square(5, 0, 10), nil),
			fp("c", square(10, 0, 10), nil),
		}, DefaultOptions())
		require.NoError(t, err)
		require.Len(t, report.Results, 1)
		assert.Equal(t, []string{"a", "b", "c"}, report.Results[0].KeptFrom)
	})

	t.Run("edge contact never groups", func(t *testing.T) {
		report, err := Run(ctx, []Footprint{
			fp("a", square(0, 0, 10), nil),
			fp("b", square(10, 0, 10), nil),
		}, DefaultOptions())
		require.NoError(t, err)
		require.Len(t, report.Results, 2)
		assert.Equal(t, "none", report.Results[0].StrategyApplied)
		assert.Equal(t, "none", report.Results[1].StrategyApplied)
	})

	t.Run("unscored footprint loses to a scored one", func(t *testing.T) {
		report, err := Run(ctx, []Footprint{
			fp("crowd", square(0, 0, 10), nil),
			fp("ai", square(1, 1, 10), conf(0.85)),
		}, DefaultOptions())
		require.NoError(t, err)
		require.Len(t, report.Results, 1)
		require.NotNil(t, report.Results[0].FinalConfidence)
		assert.InDelta(t, 0.85, *report.Results[0].FinalConfidence, 1e-9)
	})

	t.Run("union strategy merges geometry", func(t *testing.T) {
		opts := DefaultOptions()
		opts.Strategy = StrategyUnion
		report, err := Run(ctx, []Footprint{
			fp("a", square(0, 0, 10), conf(0.7)),
			fp("b", square(5, 0, 10), conf(0.8)),
		}, opts)
		require.NoError(t, err)
		require.Len(t, report.Results, 1)

		res := report.Results[0]
		assert.Equal(t, []string{"a", "b"}, res.KeptFrom)
		assert.InDelta(t, 150.0, planar.Area(res.Geometry), 1e-6)
		require.NotNil(t, res.FinalConfidence)
		assert.InDelta(t, 0.8, *res.FinalConfidence, 1e-9)
		assert.False(t, res.Degraded)
	})
}

func TestRunValidation(t *testing.T) {
	ctx := context.Background()

	t.Run("zero options are rejected before processing", func(t *testing.T) {
		_, err := Run(ctx, []Footprint{fp("a", square(0, 0, 10), nil)}, Options{})
		var cfgErr *ConfigError
		require.True(t, errors.As(err, &cfgErr))
	})

	t.Run("threshold above one is rejected", func(t *testing.T) {
		opts := DefaultOptions()
		opts.OverlapThreshold = 1.5
		_, err := Run(ctx, nil, opts)
		var cfgErr *ConfigError
		require.True(t, errors.As(err, &cfgErr))
		assert.Equal(t, "overlapThreshold", cfgErr.Field)
	})

	t.Run("union cap below two is rejected", func(t *testing.T) {
		opts := DefaultOptions()
		opts.MaxUnionGroupSize = 1
		_, err := Run(ctx, nil, opts)
		var cfgErr *ConfigError
		require.True(t, errors.As(err, &cfgErr))
	})

	t.Run("duplicate ids are rejected", func(t *testing.T) {
		_, err := Run(ctx, []Footprint{
			fp("dup", square(0, 0, 10), nil),
			fp("dup", square(20, 0, 10), nil),
		}, DefaultOptions())
		var inErr *InputError
		require.True(t, errors.As(err, &inErr))
		assert.Equal(t, "dup", inErr.FootprintID)
	})

	t.Run("empty id is rejected", func(t *testing.T) {
		_, err := Run(ctx, []Footprint{fp("", square(0, 0, 10), nil)}, DefaultOptions())
		var inErr *InputError
		require.True(t, errors.As(err, &inErr))
	})

	t.Run("empty input is an empty report", func(t *testing.T) {
		report, err := Run(ctx, nil, DefaultOptions())
		require.NoError(t, err)
		assert.Empty(t, report.Results)
		assert.Empty(t, report.Skipped)
	})
}

func TestRunSkipsUnrepairable(t *testing.T) {
	report, err := Run(context.Background(), []Footprint{
		fp("good", square(0, 0, 10), nil),
		fp("bow", orb.Polygon{orb.Ring{{0, 0}, {10, 10}, {10, 0}, {0, 10}, {0, 0}}}, nil),
	}, DefaultOptions())
	require.NoError(t, err)

	require.Len(t, report.Results, 1)
	assert.Equal(t, []string{"good"}, report.Results[0].KeptFrom)
	require.Len(t, report.Skipped, 1)
	assert.Equal(t, "bow", report.Skipped[0].ID)
	assert.Equal(t, 2, report.Stats.Inputs)
	assert.Equal(t, 1, report.Stats.Repaired)
}

func TestRunCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := Run(ctx, []Footprint{
		fp("a", square(0, 0, 10), nil),
		fp("b", square(5, 0, 10), nil),
	}, DefaultOptions())
	require.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, report) // cancelled runs produce no output at all
}

// clusterFixture builds a deterministic field of overlapping squares with
// mixed confidences: several duplicate clusters plus isolated footprints.
func clusterFixture() []Footprint {
	var footprints []Footprint
	for c := 0; c < 5; c++ {
		base := float64(c) * 40
		footprints = append(footprints,
			fp(fmt.Sprintf("c%d-ai", c), square(base, 0, 12), conf(0.6+float64(c)*0.05)),
			fp(fmt.Sprintf("c%d-osm", c), square(base+2, 1, 12), nil),
			fp(fmt.Sprintf("c%d-gov", c), square(base+1, 2, 13), conf(0.9-float64(c)*0.1)),
		)
	}
	for i := 0; i < 4; i++ {
		footprints = append(footprints, fp(fmt.Sprintf("solo%d", i), square(float64(i)*30, 200, 8), conf(0.5)))
	}
	return footprints
}

func TestRunDeterministicAcrossWorkerCounts(t *testing.T) {
	ctx := context.Background()
	footprints := clusterFixture()

	single := DefaultOptions()
	single.Workers = 1
	parallel := DefaultOptions()
	parallel.Workers = 8

	first, err := Run(ctx, footprints, single)
	require.NoError(t, err)
	second, err := Run(ctx, footprints, parallel)
	require.NoError(t, err)

	assert.Equal(t, first.Results, second.Results)
	assert.Equal(t, first.Skipped, second.Skipped)
	assert.Equal(t, first.Stats, second.Stats)
}

func TestRunNoResidualOverlap(t *testing.T) {
	for _, strategy := range []Strategy{StrategyHighestConfidence, StrategyLargestArea, StrategyUnion} {
		t.Run(string(strategy), func(t *testing.T) {
			opts := DefaultOptions()
			opts.Strategy = strategy
			report, err := Run(context.Background(), clusterFixture(), opts)
			require.NoError(t, err)
			require.NotEmpty(t, report.Results)

			outputs := resultFootprints(t, report)
			for i := 0; i < len(outputs); i++ {
				for j := i + 1; j < len(outputs); j++ {
					edge, err := AnalyzeOverlap(outputs[i], outputs[j], opts)
					require.NoError(t, err)
					assert.False(t, edge.Significant, "outputs %s and %s still overlap", outputs[i].ID, outputs[j].ID)
				}
			}
		})
	}
}

func TestRunUnionMergesResidualOverlap(t *testing.T) {
	// Two L-shapes b and c each cover a quarter of square a, in disjoint
	// corners, staying under the threshold pairwise. Their union covers
	// half of a, so the resolved output must absorb a as well.
	a := fp("a", square(0, 0, 10), conf(0.7))
	b := fp("b", orb.Polygon{orb.Ring{
		{0, -10}, {10, -10}, {10, 0}, {5, 0}, {5, 5}, {0, 5}, {0, -10},
	}}, nil)
	c := fp("c", orb.Polygon{orb.Ring{
		{0, -10}, {10, -10}, {10, 5}, {5, 5}, {5, 0}, {0, 0}, {0, -10},
	}}, nil)

	opts := DefaultOptions()
	opts.Strategy = StrategyUnion
	report, err := Run(context.Background(), []Footprint{a, b, c}, opts)
	require.NoError(t, err)

	require.Len(t, report.Results, 1)
	res := report.Results[0]
	assert.Equal(t, []string{"a", "b", "c"}, res.KeptFrom)
	assert.Equal(t, string(StrategyUnion), res.StrategyApplied)
	assert.InDelta(t, 200.0, planar.Area(res.Geometry), 1e-6)
	require.NotNil(t, res.FinalConfidence)
	assert.InDelta(t, 0.7, *res.FinalConfidence, 1e-9)
}

func TestRunIdempotent(t *testing.T) {
	ctx := context.Background()
	opts := DefaultOptions()

	first, err := Run(ctx, clusterFixture(), opts)
	require.NoError(t, err)
	require.NotEmpty(t, first.Results)

	second, err := Run(ctx, resultFootprints(t, first), opts)
	require.NoError(t, err)

	require.Len(t, second.Results, len(first.Results))
	for i, res := range second.Results {
		assert.Equal(t, "none", res.StrategyApplied)
		assert.Equal(t, []string{first.Results[i].KeptFrom[0]}, res.KeptFrom)
		assert.Equal(t, first.Results[i].Geometry, res.Geometry)
	}
}

// resultFootprints feeds conflated outputs back in as inputs, keyed by
// their smallest contributing id.
func resultFootprints(t *testing.T, report *RunReport) []Footprint {
	t.Helper()
	outputs := make([]Footprint, len(report.Results))
	for i, res := range report.Results {
		poly, ok := res.Geometry.(orb.Polygon)
		require.True(t, ok, "result %d is not a polygon", i)
		outputs[i] = Footprint{
			ID:         res.KeptFrom[0],
			Geometry:   poly,
			Confidence: res.FinalConfidence,
			Source:     "conflated",
		}
	}
	return outputs
}
