// Package datasettest builds synthetic community-area record sets and
// shapefiles for tests.
package datasettest

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/gwr-cli/internal/dataset"
)

// Predictors lists the socioeconomic columns in coefficient order.
var Predictors = []string{"income_pc", "poverty", "unemployed", "without_hs", "harship_in"}

// Square returns a counter-clockwise unit-grid square with its lower-left
// corner at (x, y).
func Square(x, y, size float64) *geom.MultiPolygon {
	return geom.NewMultiPolygon(geom.XY).MustSetCoords([][][]geom.Coord{{{
		{x, y}, {x + size, y}, {x + size, y + size}, {x, y + size}, {x, y},
	}}})
}

// Fields is the attribute schema of the synthetic community areas.
func Fields() []dataset.Field {
	return []dataset.Field{
		{Name: "community", Type: 'C', Size: 24},
		{Name: "num_crimes", Type: 'N', Size: 10},
		{Name: "income_pc", Type: 'N', Size: 10},
		{Name: "poverty", Type: 'F', Size: 19, Precision: 6},
		{Name: "unemployed", Type: 'F', Size: 19, Precision: 6},
		{Name: "without_hs", Type: 'F', Size: 19, Precision: 6},
		{Name: "harship_in", Type: 'N', Size: 10},
	}
}

// Grid builds a cols x rows grid of community areas whose crime counts
// depend on the predictors with a coefficient on poverty that drifts from
// west to east. The values are deterministic and free of collinearity.
func Grid(cols, rows int) *dataset.RecordSet {
	rs := dataset.New(Fields())
	i := 0
	for r := range rows {
		for c := range cols {
			fi := float64(i)
			x, y := float64(c), float64(r)

			income := 12000 + 900*math.Mod(fi*7, 23) + 150*y
			poverty := 8 + 3*math.Mod(fi*5, 11) + 0.7*x
			unemployed := 4 + 2*math.Mod(fi*3, 7) + 0.2*math.Sin(fi)
			withoutHS := 6 + 1.5*math.Mod(fi*11, 13) + 0.3*math.Cos(fi)
			hardship := math.Round(10 + 4*math.Mod(fi*13, 17))

			slope := 1.5 + 0.4*x
			crimes := math.Round(200 + slope*poverty - 0.004*income + 3*unemployed +
				2*withoutHS + 0.5*hardship + 5*math.Sin(fi*1.7))

			rs.Records = append(rs.Records, dataset.Record{
				Index:    i,
				Geometry: Square(x, y, 1),
				Values: []dataset.Value{
					{Text: "area"},
					{Number: crimes},
					{Number: math.Round(income)},
					{Number: poverty},
					{Number: unemployed},
					{Number: withoutHS},
					{Number: hardship},
				},
			})
			i++
		}
	}
	return rs
}

// Write stores rs as <dir>/<name>.shp and returns the path.
func Write(t testing.TB, dir, name string, rs *dataset.RecordSet) string {
	t.Helper()
	path := filepath.Join(dir, name+".shp")
	require.NoError(t, dataset.Write(path, rs))
	return path
}
