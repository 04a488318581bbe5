package conflate

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadRunConfig(t *testing.T) {
	t.Run("partial options keep defaults", func(t *testing.T) {
		path := writeConfig(t, `
inputs:
  - path: ai.geojson
    source: ai
  - path: osm.geojson
output: merged.geojson
options:
  strategy: union
  overlapThreshold: 0.4
`)
		config, err := LoadRunConfig(path)
		require.NoError(t, err)

		require.Len(t, config.Inputs, 2)
		assert.Equal(t, "ai", config.Inputs[0].Source)
		assert.Equal(t, "merged.geojson", config.Output)

		assert.Equal(t, StrategyUnion, config.Options.Strategy)
		assert.InDelta(t, 0.4, config.Options.OverlapThreshold, 1e-9)
		// Unset fields stay at their defaults.
		assert.InDelta(t, 0.5, config.Options.EdgeBufferMeters, 1e-9)
		assert.Equal(t, MissingAsLowest, config.Options.MissingConfidencePolicy)
		assert.Equal(t, 50, config.Options.MaxUnionGroupSize)
	})

	t.Run("missing options block uses all defaults", func(t *testing.T) {
		path := writeConfig(t, "inputs:\n  - path: a.geojson\n")
		config, err := LoadRunConfig(path)
		require.NoError(t, err)
		assert.Equal(t, DefaultOptions(), config.Options)
	})

	t.Run("invalid option values are rejected", func(t *testing.T) {
		path := writeConfig(t, `
inputs:
  - path: a.geojson
options:
  overlapThreshold: 1.5
`)
		_, err := LoadRunConfig(path)
		var cfgErr *ConfigError
		require.True(t, errors.As(err, &cfgErr))
		assert.Equal(t, "overlapThreshold", cfgErr.Field)
	})

	t.Run("input without path is rejected", func(t *testing.T) {
		path := writeConfig(t, "inputs:\n  - source: ai\n")
		_, err := LoadRunConfig(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "path is required")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadRunConfig(filepath.Join(t.TempDir(), "nope.yaml"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not found")
	})

	t.Run("malformed yaml", func(t *testing.T) {
		path := writeConfig(t, "inputs: [unclosed")
		_, err := LoadRunConfig(path)
		require.Error(t, err)
	})
}

func TestOptionsValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Options)
		field  string
	}{
		{"zero threshold", func(o *Options) { o.OverlapThreshold = 0 }, "overlapThreshold"},
		{"threshold above one", func(o *Options) { o.OverlapThreshold = 1.01 }, "overlapThreshold"},
		{"negative buffer", func(o *Options) { o.EdgeBufferMeters = -0.1 }, "edgeBufferMeters"},
		{"unknown strategy", func(o *Options) { o.Strategy = "median" }, "strategy"},
		{"unknown policy", func(o *Options) { o.MissingConfidencePolicy = "guess" }, "missingConfidencePolicy"},
		{"union cap below two", func(o *Options) { o.MaxUnionGroupSize = 1 }, "maxUnionGroupSize"},
		{"negative workers", func(o *Options) { o.Workers = -1 }, "workers"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			opts := DefaultOptions()
			tc.mutate(&opts)
			err := opts.Validate()
			var cfgErr *ConfigError
			require.True(t, errors.As(err, &cfgErr))
			assert.Equal(t, tc.field, cfgErr.Field)
		})
	}

	t.Run("defaults are valid", func(t *testing.T) {
		require.NoError(t, DefaultOptions().Validate())
	})

	t.Run("threshold of one is valid", func(t *testing.T) {
		opts := DefaultOptions()
		opts.OverlapThreshold = 1
		require.NoError(t, opts.Validate())
	})
}
