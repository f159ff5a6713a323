// Package render draws choropleth maps of model output columns as PNG
// images.
package render

import (
	"context"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/sells-group/gwr-cli/internal/dataset"
)

// Map describes one choropleth.
type Map struct {
	Column   string
	Title    string
	ColorMap string
}

// Name is the identifier of the map, used for file names and routes.
func (m Map) Name() string { return m.Column }

// Filename is the PNG file name of the map.
func (m Map) Filename() string { return m.Column + ".png" }

// Maps are the choropleths produced for every model run.
var Maps = []Map{
	{Column: "beta_poverty", Title: "GWR Coefficient: Poverty vs. Crime Rate", ColorMap: CoolWarm},
	{Column: "residuals", Title: "GWR Model Residuals (Prediction Errors)", ColorMap: RdYlBuR},
}

// Lookup returns the map in maps with the given name.
func Lookup(maps []Map, name string) (Map, bool) {
	for _, m := range maps {
		if m.Name() == name {
			return m, true
		}
	}
	return Map{}, false
}

// Options sizes the rendered image.
type Options struct {
	WidthIn  float64
	HeightIn float64
	DPI      int
}

func (o Options) withDefaults() Options {
	if o.WidthIn <= 0 {
		o.WidthIn = 10
	}
	if o.HeightIn <= 0 {
		o.HeightIn = 8
	}
	if o.DPI <= 0 {
		o.DPI = 96
	}
	return o
}

// Pixels returns the image dimensions for the options.
func (o Options) Pixels() (width, height int) {
	o = o.withDefaults()
	return int(o.WidthIn*float64(o.DPI) + 0.5), int(o.HeightIn*float64(o.DPI) + 0.5)
}

const (
	barWidth  = 1.1 * vg.Inch
	barMargin = 0.4 * vg.Inch
	titleRoom = 0.45 * vg.Inch
)

// Render draws column m.Column of rs as a PNG to w.
func Render(w io.Writer, rs *dataset.RecordSet, m Map, opts Options) error {
	opts = opts.withDefaults()

	values, err := rs.Column(m.Column)
	if err != nil {
		return eris.Wrapf(err, "render: %s", m.Name())
	}
	if len(values) == 0 {
		return eris.Wrapf(dataset.ErrParse, "render: %s has no records", m.Name())
	}
	cmap, err := NewColorMap(m.ColorMap)
	if err != nil {
		return err
	}
	lo, hi := valueRange(values)
	cmap.SetMin(lo)
	cmap.SetMax(hi)

	width := vg.Length(opts.WidthIn) * vg.Inch
	height := vg.Length(opts.HeightIn) * vg.Inch
	img := vgimg.NewWith(vgimg.UseWH(width, height), vgimg.UseDPI(opts.DPI))
	dc := draw.New(img)

	chart := newChoropleth(rs.Geometries(), values, cmap)
	p := plot.New()
	p.Title.Text = m.Title
	p.Title.TextStyle.Font.Size = vg.Points(14)
	p.Add(chart)
	p.HideAxes()
	fitAspect(p, chart, width-barWidth, height-titleRoom)
	p.Draw(draw.Crop(dc, 0, -barWidth, 0, 0))

	bar := plot.New()
	bar.Add(&plotter.ColorBar{ColorMap: cmap, Vertical: true, Colors: 256})
	bar.HideX()
	bar.Y.Padding = 0
	bar.Draw(draw.Crop(dc, width-barWidth+barMargin/4, -barMargin/2, barMargin, -titleRoom-barMargin/2))

	if _, err := (vgimg.PngCanvas{Canvas: img}).WriteTo(w); err != nil {
		return eris.Wrapf(err, "render: encode %s", m.Name())
	}
	return nil
}

// RenderAll writes every map as <dir>/<name>.png concurrently and returns
// the paths in map order.
func RenderAll(ctx context.Context, rs *dataset.RecordSet, maps []Map, dir string, opts Options) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "render: create %s", dir)
	}
	log := zap.L().With(zap.String("component", "render"))

	paths := make([]string, len(maps))
	g, ctx := errgroup.WithContext(ctx)
	for i, m := range maps {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return eris.Wrap(err, "render: cancelled")
			}
			path := filepath.Join(dir, m.Filename())
			if err := renderFile(path, rs, m, opts); err != nil {
				return err
			}
			log.Info("map written", zap.String("map", m.Name()), zap.String("path", path))
			paths[i] = path
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return paths, nil
}

func renderFile(path string, rs *dataset.RecordSet, m Map, opts Options) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "render: create %s", path)
	}
	if err := Render(f, rs, m, opts); err != nil {
		_ = f.Close()
		return err
	}
	return eris.Wrapf(f.Close(), "render: close %s", path)
}

// valueRange returns the finite extent of values, widened when every value
// is the same so the colour bar stays drawable.
func valueRange(values []float64) (float64, float64) {
	finite := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			finite = append(finite, v)
		}
	}
	if len(finite) == 0 {
		return 0, 1
	}
	lo, hi := floats.Min(finite), floats.Max(finite)
	if lo == hi {
		return lo - 0.5, hi + 0.5
	}
	return lo, hi
}

// fitAspect pads the shorter data axis so one data unit has the same length
// on both axes of a w by h drawing area.
func fitAspect(p *plot.Plot, chart *choropleth, w, h vg.Length) {
	xmin, xmax, ymin, ymax := chart.DataRange()
	dx, dy := xmax-xmin, ymax-ymin
	if dx <= 0 || dy <= 0 || w <= 0 || h <= 0 {
		return
	}
	area := float64(w / h)
	if data := dx / dy; data > area {
		pad := (dx/area - dy) / 2
		ymin, ymax = ymin-pad, ymax+pad
	} else {
		pad := (dy*area - dx) / 2
		xmin, xmax = xmin-pad, xmax+pad
	}
	p.X.Min, p.X.Max = xmin, xmax
	p.Y.Min, p.Y.Max = ymin, ymax
	p.X.Padding, p.Y.Padding = 0, 0
}
