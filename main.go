package main

import (
	"flag"
	"fmt"
	"log"
	"strings"
)

// Version is set at build time via -ldflags
var Version = "dev"

// stringList collects repeatable -input flags.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(value string) error {
	*s = append(*s, value)
	return nil
}

var (
	configFile    = flag.String("config", "", "Path to YAML run configuration")
	outputFile    = flag.String("output", "", "Output GeoJSON file for conflated results")
	renderFile    = flag.String("render", "", "Render inputs and results to this PNG or SVG file")
	renderFormat  = flag.String("render-format", "", "Render format: png or svg (default: from file extension)")
	statsOnly     = flag.Bool("stats", false, "Print per-phase statistics")
	edgesDump     = flag.Bool("edges", false, "Print every computed overlap edge (diagnostics)")
	timeout       = flag.Duration("timeout", 0, "Abort the run after this duration (0 = no timeout)")
	threshold     = flag.Float64("threshold", 0.30, "Overlap ratio threshold in (0, 1]")
	edgeBuffer    = flag.Float64("edge-buffer", 0.5, "Inward erosion distance in meters for the edge-touch test")
	strategy      = flag.String("strategy", "highest_confidence", "Resolution strategy: highest_confidence, largest_area, or union")
	missingPolicy = flag.String("missing-confidence", "treat_as_lowest", "Ranking for unscored footprints: treat_as_lowest or treat_as_one")
	maxUnionSize  = flag.Int("max-union-group", 50, "Union strategy degrades groups larger than this")
	workers       = flag.Int("workers", 0, "Overlap scan parallelism (0 = one per CPU)")
)

func main() {
	var inputs stringList
	flag.Var(&inputs, "input", "Input GeoJSON file, optionally as SOURCE=PATH (repeatable)")
	flag.Parse()
	fmt.Printf("conflate version: %s\n", Version)

	if *configFile == "" && len(inputs) == 0 {
		fmt.Println("conflate merges overlapping building footprints from multiple providers")
		fmt.Println()
		fmt.Println("Usage:")
		fmt.Println("  conflate -input ai=footprints-ai.geojson -input osm=footprints-osm.geojson -output merged.geojson")
		fmt.Println("  conflate -config run.yaml -stats")
		fmt.Println("  conflate -input a.geojson -input b.geojson -render overlap.png")
		fmt.Println()
		flag.PrintDefaults()
		return
	}

	// Flags that were explicitly set override the config file.
	setFlags := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = true })

	app := NewApp(AppOptions{
		ConfigFile:    *configFile,
		Inputs:        inputs,
		Output:        *outputFile,
		RenderFile:    *renderFile,
		RenderFormat:  *renderFormat,
		Stats:         *statsOnly,
		DumpEdges:     *edgesDump,
		Timeout:       *timeout,
		Threshold:     *threshold,
		EdgeBuffer:    *edgeBuffer,
		Strategy:      *strategy,
		MissingPolicy: *missingPolicy,
		MaxUnionSize:  *maxUnionSize,
		Workers:       *workers,
		SetFlags:      setFlags,
	})

	if err := app.Run(); err != nil {
		log.Fatalf("Error: %v", err)
	}
}
