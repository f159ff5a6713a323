package features

import (
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/gwr-cli/internal/dataset"
	"github.com/sells-group/gwr-cli/internal/dataset/datasettest"
)

func TestExtract_ShapesAndOrder(t *testing.T) {
	rs := datasettest.Grid(4, 3)
	f, err := Extract(rs, "num_crimes", datasettest.Predictors)
	require.NoError(t, err)

	r, c := f.X.Dims()
	assert.Equal(t, 12, r)
	assert.Equal(t, 5, c)
	assert.Len(t, f.Y, 12)
	assert.Len(t, f.Coords, 12)

	// Column j of X is independent column j, row i is record i.
	for j, name := range datasettest.Predictors {
		col, err := rs.Column(name)
		require.NoError(t, err)
		for i := range col {
			assert.Equal(t, col[i], f.X.At(i, j), "%s row %d", name, i)
		}
	}
	crimes, err := rs.Column("num_crimes")
	require.NoError(t, err)
	assert.Equal(t, crimes, f.Y)
}

func TestExtract_CoordsAreIndexAligned(t *testing.T) {
	rs := datasettest.Grid(3, 2)
	f, err := Extract(rs, "num_crimes", datasettest.Predictors)
	require.NoError(t, err)

	// Grid cell (c, r) is a unit square with its corner at (c, r).
	for i := range rs.Records {
		c, r := i%3, i/3
		assert.InDelta(t, float64(c)+0.5, f.Coords[i].X, 1e-12)
		assert.InDelta(t, float64(r)+0.5, f.Coords[i].Y, 1e-12)
	}
}

func TestExtract_CustomOrder(t *testing.T) {
	rs := datasettest.Grid(2, 2)
	order := []string{"poverty", "income_pc"}
	f, err := Extract(rs, "num_crimes", order)
	require.NoError(t, err)

	pov, err := rs.Column("poverty")
	require.NoError(t, err)
	assert.Equal(t, pov[3], f.X.At(3, 0))
	assert.Equal(t, "beta_poverty", f.Mapping.Column(0))
	assert.Equal(t, 1, f.Mapping.Slot(0))
}

func TestExtract_MissingDependent(t *testing.T) {
	rs := dataset.New([]dataset.Field{
		{Name: "income_pc", Type: 'N'},
		{Name: "poverty", Type: 'F'},
		{Name: "unemployed", Type: 'F'},
		{Name: "without_hs", Type: 'F'},
		{Name: "harship_in", Type: 'N'},
	})
	_, err := Extract(rs, "num_crimes", datasettest.Predictors)
	require.Error(t, err)
	assert.True(t, eris.Is(err, dataset.ErrMissingColumn))
	assert.Contains(t, err.Error(), "num_crimes")
}

func TestExtract_MissingIndependent(t *testing.T) {
	rs := datasettest.Grid(2, 2)
	_, err := Extract(rs, "num_crimes", []string{"poverty", "median_rent"})
	require.Error(t, err)
	assert.True(t, eris.Is(err, dataset.ErrMissingColumn))
	assert.Contains(t, err.Error(), "median_rent")
}

func TestExtract_NoRecords(t *testing.T) {
	rs := dataset.New(datasettest.Fields())
	_, err := Extract(rs, "num_crimes", datasettest.Predictors)
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNoRecords))
	assert.True(t, eris.Is(err, dataset.ErrParse))
}

func TestExtract_NoIndependent(t *testing.T) {
	_, err := Extract(datasettest.Grid(2, 2), "num_crimes", nil)
	assert.Error(t, err)
}

func TestExtract_NilGeometry(t *testing.T) {
	rs := datasettest.Grid(2, 2)
	rs.Records[2].Geometry = nil
	_, err := Extract(rs, "num_crimes", datasettest.Predictors)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "record 2")
}

func TestCentroid_LShape(t *testing.T) {
	// Unit squares at (0,0), (1,0) and (0,1) form an L.
	mp := geom.NewMultiPolygon(geom.XY).MustSetCoords([][][]geom.Coord{{{
		{0, 0}, {2, 0}, {2, 1}, {1, 1}, {1, 2}, {0, 2}, {0, 0},
	}}})
	c, err := Centroid(mp)
	require.NoError(t, err)
	assert.InDelta(t, 5.0/6, c.X, 1e-12)
	assert.InDelta(t, 5.0/6, c.Y, 1e-12)
}

func TestCentroid_Empty(t *testing.T) {
	_, err := Centroid(nil)
	assert.True(t, eris.Is(err, dataset.ErrParse))

	_, err = Centroid(geom.NewMultiPolygon(geom.XY))
	assert.Error(t, err)
}
