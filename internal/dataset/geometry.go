package dataset

import (
	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"go.uber.org/zap"
)

// toMultiPolygon converts a shapefile polygon record to a geom.MultiPolygon.
// Null shapes and polygons without usable rings yield nil.
func toMultiPolygon(shape shp.Shape) (*geom.MultiPolygon, error) {
	switch s := shape.(type) {
	case nil, *shp.Null:
		return nil, nil
	case *shp.Polygon:
		return ringsToMultiPolygon(s.Parts, s.Points), nil
	case *shp.PolygonZ:
		return ringsToMultiPolygon(s.Parts, s.Points), nil
	case *shp.PolygonM:
		return ringsToMultiPolygon(s.Parts, s.Points), nil
	default:
		return nil, eris.Wrapf(ErrParse, "unsupported shape type %T", shape)
	}
}

// ringsToMultiPolygon groups shapefile rings into polygons. Clockwise rings
// are shells; counter-clockwise rings are holes of the shell containing them.
func ringsToMultiPolygon(parts []int32, points []shp.Point) *geom.MultiPolygon {
	if len(parts) == 0 || len(points) == 0 {
		return nil
	}

	var polys []*geom.Polygon
	for i, start := range parts {
		end := int32(len(points))
		if i+1 < len(parts) {
			end = parts[i+1]
		}
		if start < 0 || end > int32(len(points)) || start >= end {
			zap.L().Debug("dataset: skipping out-of-range ring", zap.Int("part", i))
			continue
		}

		flat := ringCoords(points[start:end])
		if len(flat) < 8 {
			zap.L().Debug("dataset: skipping degenerate ring", zap.Int("part", i), zap.Int("points", len(flat)/2))
			continue
		}
		ring := geom.NewLinearRingFlat(geom.XY, flat)

		if len(polys) == 0 || !xy.IsRingCounterClockwise(geom.XY, flat) {
			poly := geom.NewPolygon(geom.XY)
			if err := poly.Push(ring); err != nil {
				zap.L().Debug("dataset: skipping malformed shell", zap.Int("part", i), zap.Error(err))
				continue
			}
			polys = append(polys, poly)
			continue
		}

		owner := len(polys) - 1
		first := geom.Coord{flat[0], flat[1]}
		for k, p := range polys {
			if xy.IsPointInRing(geom.XY, first, p.LinearRing(0).FlatCoords()) {
				owner = k
				break
			}
		}
		if err := polys[owner].Push(ring); err != nil {
			zap.L().Debug("dataset: skipping malformed hole", zap.Int("part", i), zap.Error(err))
		}
	}

	if len(polys) == 0 {
		return nil
	}
	mp := geom.NewMultiPolygon(geom.XY)
	for _, p := range polys {
		if err := mp.Push(p); err != nil {
			zap.L().Debug("dataset: skipping malformed polygon", zap.Error(err))
		}
	}
	if mp.NumPolygons() == 0 {
		return nil
	}
	return mp
}

// ringCoords flattens a ring, closing it if the source left it open.
func ringCoords(pts []shp.Point) []float64 {
	flat := make([]float64, 0, len(pts)*2+2)
	for _, p := range pts {
		flat = append(flat, p.X, p.Y)
	}
	if n := len(pts); n > 0 && (pts[0].X != pts[n-1].X || pts[0].Y != pts[n-1].Y) {
		flat = append(flat, pts[0].X, pts[0].Y)
	}
	return flat
}

// toShpPolygon converts a multipolygon to a shapefile polygon with shells
// clockwise and holes counter-clockwise. A nil geometry becomes a polygon
// with no parts, which reads back as missing.
func toShpPolygon(mp *geom.MultiPolygon) *shp.Polygon {
	var rings [][]shp.Point
	if mp != nil {
		for i := range mp.NumPolygons() {
			poly := mp.Polygon(i)
			for j := range poly.NumLinearRings() {
				flat := poly.LinearRing(j).FlatCoords()
				ccw := xy.IsRingCounterClockwise(geom.XY, flat)
				shell := j == 0
				rings = append(rings, shpRing(flat, shell == ccw))
			}
		}
	}
	if len(rings) == 0 {
		return &shp.Polygon{}
	}
	p := shp.Polygon(*shp.NewPolyLine(rings))
	return &p
}

func shpRing(flat []float64, reverse bool) []shp.Point {
	n := len(flat) / 2
	pts := make([]shp.Point, n)
	for i := range n {
		j := i
		if reverse {
			j = n - 1 - i
		}
		pts[i] = shp.Point{X: flat[2*j], Y: flat[2*j+1]}
	}
	return pts
}
