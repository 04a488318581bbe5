package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kwv/conflate/conflate"
)

// AppOptions carries parsed CLI flags into the App. SetFlags records
// which flags the user set explicitly; only those override values from
// the config file.
type AppOptions struct {
	ConfigFile    string
	Inputs        []string
	Output        string
	RenderFile    string
	RenderFormat  string
	Stats         bool
	DumpEdges     bool
	Timeout       time.Duration
	Threshold     float64
	EdgeBuffer    float64
	Strategy      string
	MissingPolicy string
	MaxUnionSize  int
	Workers       int
	SetFlags      map[string]bool
}

// App encapsulates one CLI invocation: resolved configuration, input
// files, and output destinations.
type App struct {
	opts AppOptions
}

// NewApp creates a new App instance
func NewApp(opts AppOptions) *App {
	return &App{opts: opts}
}

// Run loads inputs, executes the conflation engine, and writes the
// requested outputs.
func (a *App) Run() error {
	config, err := a.resolveConfig()
	if err != nil {
		return err
	}

	footprints, err := a.loadInputs(config)
	if err != nil {
		return err
	}
	log.Printf("Loaded %d footprints from %d input(s)", len(footprints), len(config.Inputs))

	ctx := context.Background()
	if a.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.opts.Timeout)
		defer cancel()
	}

	start := time.Now()
	report, err := conflate.Run(ctx, footprints, config.Options)
	if err != nil {
		return fmt.Errorf("conflation run failed: %w", err)
	}
	log.Printf("Conflated %d footprints into %d results in %v (%d skipped)",
		report.Stats.Repaired, report.Stats.Results, time.Since(start).Round(time.Millisecond), report.Stats.Skipped)

	for _, s := range report.Skipped {
		log.Printf("Skipped %s: %s", s.ID, s.Reason)
	}

	if a.opts.Stats {
		printStats(report.Stats)
	}
	if a.opts.DumpEdges {
		printEdges(report.Edges)
	}

	if config.Output != "" {
		if err := conflate.WriteResults(config.Output, report); err != nil {
			return err
		}
		log.Printf("Wrote results to %s", config.Output)
	}

	if a.opts.RenderFile != "" {
		if err := a.render(footprints, report); err != nil {
			return err
		}
		log.Printf("Rendered overlap view to %s", a.opts.RenderFile)
	}

	return nil
}

// resolveConfig merges the config file (if any) with CLI flags. Flags the
// user set explicitly win over file values.
func (a *App) resolveConfig() (*conflate.RunConfig, error) {
	var config *conflate.RunConfig
	if a.opts.ConfigFile != "" {
		loaded, err := conflate.LoadRunConfig(a.opts.ConfigFile)
		if err != nil {
			return nil, err
		}
		config = loaded
	} else {
		config = &conflate.RunConfig{Options: conflate.DefaultOptions()}
	}

	for _, spec := range a.opts.Inputs {
		source, path := splitInputSpec(spec)
		config.Inputs = append(config.Inputs, conflate.InputConfig{Path: path, Source: source})
	}
	if len(config.Inputs) == 0 {
		return nil, fmt.Errorf("no inputs: pass -input or list inputs in the config file")
	}

	set := a.opts.SetFlags
	if set["output"] {
		config.Output = a.opts.Output
	}
	if set["threshold"] {
		config.Options.OverlapThreshold = a.opts.Threshold
	}
	if set["edge-buffer"] {
		config.Options.EdgeBufferMeters = a.opts.EdgeBuffer
	}
	if set["strategy"] {
		config.Options.Strategy = conflate.Strategy(a.opts.Strategy)
	}
	if set["missing-confidence"] {
		config.Options.MissingConfidencePolicy = conflate.MissingConfidencePolicy(a.opts.MissingPolicy)
	}
	if set["max-union-group"] {
		config.Options.MaxUnionGroupSize = a.opts.MaxUnionSize
	}
	if set["workers"] {
		config.Options.Workers = a.opts.Workers
	}

	if err := config.Options.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// loadInputs reads every configured GeoJSON file.
func (a *App) loadInputs(config *conflate.RunConfig) ([]conflate.Footprint, error) {
	var footprints []conflate.Footprint
	for _, in := range config.Inputs {
		fps, err := conflate.LoadFootprints(in.Path, in.Source)
		if err != nil {
			return nil, err
		}
		log.Printf("  %s: %d footprints", in.Path, len(fps))
		footprints = append(footprints, fps...)
	}
	return footprints, nil
}

// render writes the debug view as PNG or SVG, chosen by -render-format or
// the output file extension.
func (a *App) render(footprints []conflate.Footprint, report *conflate.RunReport) error {
	format := a.opts.RenderFormat
	if format == "" {
		format = strings.TrimPrefix(filepath.Ext(a.opts.RenderFile), ".")
	}

	f, err := os.Create(a.opts.RenderFile)
	if err != nil {
		return fmt.Errorf("creating render file: %w", err)
	}
	defer f.Close()

	r := conflate.NewRenderer(footprints, report.Results)
	switch format {
	case "svg":
		return r.RenderSVG(f)
	case "png", "":
		return r.RenderPNG(f)
	default:
		return fmt.Errorf("unknown render format %q (want png or svg)", format)
	}
}

// splitInputSpec parses an -input value of the form SOURCE=PATH. A bare
// path gets an empty source tag and falls back to per-feature properties.
func splitInputSpec(spec string) (source, path string) {
	if idx := strings.Index(spec, "="); idx > 0 && !strings.Contains(spec[:idx], string(os.PathSeparator)) {
		return spec[:idx], spec[idx+1:]
	}
	return "", spec
}

func printStats(s conflate.RunStats) {
	fmt.Println("\nRun statistics:")
	fmt.Printf("  inputs:            %d\n", s.Inputs)
	fmt.Printf("  repaired:          %d\n", s.Repaired)
	fmt.Printf("  candidate pairs:   %d\n", s.CandidatePairs)
	fmt.Printf("  significant edges: %d\n", s.SignificantEdges)
	fmt.Printf("  groups:            %d\n", s.Groups)
	fmt.Printf("  results:           %d\n", s.Results)
	fmt.Printf("  skipped:           %d\n", s.Skipped)
}

func printEdges(edges []conflate.OverlapEdge) {
	fmt.Println("\nOverlap edges:")
	for _, e := range edges {
		marker := " "
		if e.Significant {
			marker = "*"
		}
		fmt.Printf("%s %s -- %s  ratio=%.3f jaccard=%.3f touchesOnly=%v\n",
			marker, e.A, e.B, e.OverlapRatio, e.Jaccard, e.TouchesOnly)
	}
}
