// Package features turns a record set into the response vector, design
// matrix and centroid coordinates a GWR model is fitted on.
package features

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"gonum.org/v1/gonum/mat"

	"github.com/sells-group/gwr-cli/internal/dataset"
	"github.com/sells-group/gwr-cli/internal/gwr"
)

// ErrNoRecords is returned when there is nothing to extract.
var ErrNoRecords = eris.Wrap(dataset.ErrParse, "features: no records")

// Coord is a centroid location.
type Coord = gwr.Coord

// Features holds the model inputs, index-aligned with the source records.
type Features struct {
	Y       []float64
	X       *mat.Dense
	Coords  []Coord
	Mapping CoefficientMapping
}

// Extract builds the response vector, the design matrix with columns in the
// order given, and one centroid per record. Every column is checked before
// any value is read.
func Extract(rs *dataset.RecordSet, dependent string, independent []string) (*Features, error) {
	for _, name := range append([]string{dependent}, independent...) {
		if !rs.HasColumn(name) {
			return nil, eris.Wrapf(dataset.ErrMissingColumn, "features: column %q", name)
		}
	}
	if len(independent) == 0 {
		return nil, eris.New("features: at least one independent column is required")
	}
	n := rs.Len()
	if n == 0 {
		return nil, ErrNoRecords
	}

	y, err := rs.Column(dependent)
	if err != nil {
		return nil, eris.Wrap(err, "features: dependent column")
	}

	X := mat.NewDense(n, len(independent), nil)
	for j, name := range independent {
		col, err := rs.Column(name)
		if err != nil {
			return nil, eris.Wrapf(err, "features: independent column %d", j)
		}
		X.SetCol(j, col)
	}

	coords := make([]Coord, n)
	for i, rec := range rs.Records {
		c, err := Centroid(rec.Geometry)
		if err != nil {
			return nil, eris.Wrapf(err, "features: record %d", rec.Index)
		}
		coords[i] = c
	}

	return &Features{
		Y:       y,
		X:       X,
		Coords:  coords,
		Mapping: NewMapping(independent),
	}, nil
}

// Centroid returns the area-weighted centroid of a multipolygon.
func Centroid(g *geom.MultiPolygon) (Coord, error) {
	if g == nil || g.NumPolygons() == 0 {
		return Coord{}, eris.Wrap(dataset.ErrParse, "features: empty geometry has no centroid")
	}
	c := xy.MultiPolygonCentroid(g)
	return Coord{X: c.X(), Y: c.Y()}, nil
}
