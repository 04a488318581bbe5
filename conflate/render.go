package conflate

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"sort"

	"github.com/paulmach/orb"
	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/rasterizer"
	"github.com/tdewolff/canvas/renderers/svg"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// sourcePalette provides distinct stroke colors for input sources.
var sourcePalette = []color.RGBA{
	{31, 119, 180, 255},  // blue
	{255, 127, 14, 255},  // orange
	{44, 160, 44, 255},   // green
	{214, 39, 40, 255},   // red
	{148, 103, 189, 255}, // purple
	{140, 86, 75, 255},   // brown
}

// resultFill is the semi-transparent fill for conflated outputs,
// premultiplied for the canvas library.
var resultFill = color.RGBA{R: 38, G: 38, B: 38, A: 64}

// Renderer draws a conflation run for visual inspection: input footprints
// as outlines colored by source, conflated results as filled shapes.
// Coordinates are taken as planar meters; one meter maps to Scale canvas
// units.
type Renderer struct {
	Inputs  []Footprint
	Results []Result

	Scale      float64           // canvas units per meter (default 1)
	Padding    float64           // padding in meters around the drawing
	Resolution canvas.Resolution // PNG rasterization density
}

// NewRenderer creates a renderer with default scale, padding, and 300 DPI
// raster output.
func NewRenderer(inputs []Footprint, results []Result) *Renderer {
	return &Renderer{
		Inputs:     inputs,
		Results:    results,
		Scale:      1,
		Padding:    5,
		Resolution: canvas.DPI(300),
	}
}

// canvasRenderer is the subset shared by the svg and rasterizer backends.
type canvasRenderer interface {
	RenderPath(path *canvas.Path, style canvas.Style, m canvas.Matrix)
}

// RenderSVG writes the run as an SVG document.
func (r *Renderer) RenderSVG(w io.Writer) error {
	bound, ok := r.worldBound()
	if !ok {
		return fmt.Errorf("nothing to render")
	}
	width, height := r.sheetSize(bound)
	svgRenderer := svg.New(w, width, height, nil)
	r.renderToCanvas(svgRenderer, bound, width, height)
	return svgRenderer.Close()
}

// RenderPNG writes the run as a PNG image with a source legend.
func (r *Renderer) RenderPNG(w io.Writer) error {
	bound, ok := r.worldBound()
	if !ok {
		return fmt.Errorf("nothing to render")
	}
	width, height := r.sheetSize(bound)
	rast := rasterizer.New(width, height, r.Resolution, canvas.DefaultColorSpace)
	r.renderToCanvas(rast, bound, width, height)
	r.drawLegend(rast)
	return png.Encode(w, rast)
}

// worldBound is the union of all input and result bounds.
func (r *Renderer) worldBound() (orb.Bound, bool) {
	var bound orb.Bound
	found := false
	extend := func(g orb.Geometry) {
		if g == nil {
			return
		}
		if !found {
			bound = g.Bound()
			found = true
			return
		}
		bound = bound.Union(g.Bound())
	}
	for _, fp := range r.Inputs {
		extend(fp.Geometry)
	}
	for _, res := range r.Results {
		extend(res.Geometry)
	}
	return bound, found
}

func (r *Renderer) sheetSize(bound orb.Bound) (float64, float64) {
	width := (bound.Max[0] - bound.Min[0] + 2*r.Padding) * r.Scale
	height := (bound.Max[1] - bound.Min[1] + 2*r.Padding) * r.Scale
	return width, height
}

func (r *Renderer) renderToCanvas(renderer canvasRenderer, bound orb.Bound, width, height float64) {
	bgStyle := canvas.DefaultStyle
	bgStyle.Fill = canvas.Paint{Color: canvas.White}
	renderer.RenderPath(canvas.Rectangle(width, height), bgStyle, canvas.Identity)

	// Results underneath, inputs on top so provenance stays visible.
	fillStyle := canvas.DefaultStyle
	fillStyle.Fill = canvas.Paint{Color: resultFill}
	fillStyle.Stroke = canvas.Paint{Color: canvas.Black}
	fillStyle.StrokeWidth = 0.3 * r.Scale
	for _, res := range r.Results {
		for _, poly := range geometryPolygons(res.Geometry) {
			renderer.RenderPath(r.polygonPath(poly, bound), fillStyle, canvas.Identity)
		}
	}

	colors := r.sourceColors()
	for _, fp := range r.Inputs {
		style := canvas.DefaultStyle
		style.Fill = canvas.Paint{Color: canvas.Transparent}
		style.Stroke = canvas.Paint{Color: colors[fp.Source]}
		style.StrokeWidth = 0.15 * r.Scale
		renderer.RenderPath(r.polygonPath(fp.Geometry, bound), style, canvas.Identity)
	}
}

// polygonPath converts a polygon to a canvas path in sheet coordinates.
func (r *Renderer) polygonPath(poly orb.Polygon, bound orb.Bound) *canvas.Path {
	p := &canvas.Path{}
	for _, ring := range poly {
		for i, pt := range ring {
			x := (pt[0] - bound.Min[0] + r.Padding) * r.Scale
			y := (pt[1] - bound.Min[1] + r.Padding) * r.Scale
			if i == 0 {
				p.MoveTo(x, y)
			} else {
				p.LineTo(x, y)
			}
		}
		p.Close()
	}
	return p
}

// sourceColors assigns palette colors to sources in sorted name order so
// renders are stable across runs.
func (r *Renderer) sourceColors() map[string]color.RGBA {
	var names []string
	seen := make(map[string]struct{})
	for _, fp := range r.Inputs {
		if _, ok := seen[fp.Source]; !ok {
			seen[fp.Source] = struct{}{}
			names = append(names, fp.Source)
		}
	}
	sort.Strings(names)
	colors := make(map[string]color.RGBA, len(names))
	for i, name := range names {
		colors[name] = sourcePalette[i%len(sourcePalette)]
	}
	return colors
}

// drawLegend writes one line per source onto the rasterized image.
func (r *Renderer) drawLegend(rast *rasterizer.Rasterizer) {
	colors := r.sourceColors()
	var names []string
	for name := range colors {
		names = append(names, name)
	}
	sort.Strings(names)

	y := 16
	for _, name := range names {
		label := name
		if label == "" {
			label = "(untagged)"
		}
		d := font.Drawer{
			Dst:  rast,
			Src:  image.NewUniform(colors[name]),
			Face: basicfont.Face7x13,
			Dot:  fixed.P(8, y),
		}
		d.DrawString(label)
		y += 16
	}
}

// geometryPolygons flattens an areal orb geometry into polygons.
func geometryPolygons(g orb.Geometry) []orb.Polygon {
	switch v := g.(type) {
	case orb.Polygon:
		return []orb.Polygon{v}
	case orb.MultiPolygon:
		return v
	default:
		return nil
	}
}
