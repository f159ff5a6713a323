package render

import (
	"image/color"

	"github.com/twpayne/go-geom"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// choropleth draws polygons filled by value. It implements plot.Plotter
// and plot.DataRanger.
type choropleth struct {
	polys   []*geom.MultiPolygon
	values  []float64
	cmap    palette.ColorMap
	edge    draw.LineStyle
	missing color.Color
}

func newChoropleth(polys []*geom.MultiPolygon, values []float64, cmap palette.ColorMap) *choropleth {
	return &choropleth{
		polys:  polys,
		values: values,
		cmap:   cmap,
		edge: draw.LineStyle{
			Color: color.Black,
			Width: vg.Points(0.5),
		},
		missing: color.Gray{Y: 200},
	}
}

// Plot fills every ring of every polygon and strokes its outline. Holes
// wind opposite to their shell and stay unfilled.
func (ch *choropleth) Plot(c draw.Canvas, p *plot.Plot) {
	trX, trY := p.Transforms(&c)
	for i, mp := range ch.polys {
		if mp == nil {
			continue
		}
		fill := ch.missing
		if v, err := ch.cmap.At(ch.values[i]); err == nil {
			fill = v
		}
		for j := range mp.NumPolygons() {
			poly := mp.Polygon(j)
			var path vg.Path
			for k := range poly.NumLinearRings() {
				coords := poly.LinearRing(k).Coords()
				for n, pt := range coords {
					at := vg.Point{X: trX(pt.X()), Y: trY(pt.Y())}
					if n == 0 {
						path.Move(at)
						continue
					}
					path.Line(at)
				}
				path.Close()
			}
			c.SetColor(fill)
			c.Fill(path)
			c.SetLineStyle(ch.edge)
			c.Stroke(path)
		}
	}
}

// DataRange returns the bounding box of all polygons.
func (ch *choropleth) DataRange() (xmin, xmax, ymin, ymax float64) {
	b := geom.NewBounds(geom.XY)
	for _, mp := range ch.polys {
		if mp != nil && !mp.Empty() {
			b.Extend(mp)
		}
	}
	if b.IsEmpty() {
		return 0, 1, 0, 1
	}
	return b.Min(0), b.Max(0), b.Min(1), b.Max(1)
}
