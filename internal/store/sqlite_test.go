package store

import (
	"context"
	"math"
	"path/filepath"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/gwr-cli/internal/model"
	"github.com/sells-group/gwr-cli/internal/report"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func testRunConfig(dataset string) model.RunConfig {
	return model.RunConfig{
		Dataset:     dataset,
		Dependent:   "num_crimes",
		Independent: []string{"income_pc", "poverty"},
		Kernel:      "bisquare",
		Criterion:   "AICc",
	}
}

func TestSQLite_CreateAndGetRun(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, testRunConfig("chicago.shp"))
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, model.RunStatusRunning, run.Status)

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ID, got.ID)
	assert.Equal(t, model.RunStatusRunning, got.Status)
	assert.Equal(t, []string{"income_pc", "poverty"}, got.Config.Independent)
	assert.Nil(t, got.Result)
	assert.Zero(t, got.Bandwidth)
}

func TestSQLite_CompleteRun(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, testRunConfig("chicago.shp"))
	require.NoError(t, err)

	aicc := 512.5
	result := &model.RunResult{
		Bandwidth: 61,
		Summary: &report.Summary{
			Kernel:      "Adaptive bisquare",
			Bandwidth:   61,
			Diagnostics: []report.Metric{{Name: "aicc", Value: &aicc}, {Name: "critical_t"}},
		},
		Maps: []string{"maps/beta_poverty.png"},
	}
	require.NoError(t, st.CompleteRun(ctx, run.ID, result))

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, got.Status)
	assert.Equal(t, 61.0, got.Bandwidth)
	require.NotNil(t, got.Result)
	require.NotNil(t, got.Result.Summary)
	assert.Equal(t, "Adaptive bisquare", got.Result.Summary.Kernel)
	require.Len(t, got.Result.Summary.Diagnostics, 2)
	assert.Equal(t, 512.5, *got.Result.Summary.Diagnostics[0].Value)
	assert.Nil(t, got.Result.Summary.Diagnostics[1].Value)
}

func TestSQLite_FailRun(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, testRunConfig("chicago.shp"))
	require.NoError(t, err)
	require.NoError(t, st.FailRun(ctx, run.ID, "gwr: model fit failed"))

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusFailed, got.Status)
	assert.Equal(t, "gwr: model fit failed", got.Error)
}

func TestSQLite_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.GetRun(ctx, "missing")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNotFound))

	err = st.CompleteRun(ctx, "missing", &model.RunResult{})
	assert.True(t, eris.Is(err, ErrNotFound))

	err = st.FailRun(ctx, "missing", "x")
	assert.True(t, eris.Is(err, ErrNotFound))
}

func TestSQLite_ListRuns(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	a, err := st.CreateRun(ctx, testRunConfig("a.shp"))
	require.NoError(t, err)
	_, err = st.CreateRun(ctx, testRunConfig("b.shp"))
	require.NoError(t, err)
	require.NoError(t, st.FailRun(ctx, a.ID, "boom"))

	all, err := st.ListRuns(ctx, RunFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	failed, err := st.ListRuns(ctx, RunFilter{Status: model.RunStatusFailed})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, a.ID, failed[0].ID)

	byDataset, err := st.ListRuns(ctx, RunFilter{Dataset: "b.shp"})
	require.NoError(t, err)
	require.Len(t, byDataset, 1)
	assert.Equal(t, "b.shp", byDataset[0].Config.Dataset)

	limited, err := st.ListRuns(ctx, RunFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	offset, err := st.ListRuns(ctx, RunFilter{Limit: 10, Offset: 1})
	require.NoError(t, err)
	assert.Len(t, offset, 1)
}

func TestSQLite_Locations(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, testRunConfig("chicago.shp"))
	require.NoError(t, err)

	locs := []model.Location{
		{Index: 4, X: 1.5, Y: 2.5, Params: []float64{1, 2, 3}, Residual: -0.25, LocalR2: 0.9},
		{Index: 0, X: 0.5, Y: 0.5, Params: []float64{4, 5, 6}, Residual: 0.5, LocalR2: math.NaN()},
	}
	require.NoError(t, st.SaveLocations(ctx, run.ID, locs))

	got, err := st.GetLocations(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, 0, got[0].Index)
	assert.Equal(t, []float64{4, 5, 6}, got[0].Params)
	assert.True(t, math.IsNaN(got[0].LocalR2))
	assert.Equal(t, run.ID, got[0].RunID)

	assert.Equal(t, 4, got[1].Index)
	assert.Equal(t, 1.5, got[1].X)
	assert.Equal(t, 2.5, got[1].Y)
	assert.Equal(t, -0.25, got[1].Residual)
	assert.Equal(t, 0.9, got[1].LocalR2)

	// Saving again replaces rather than duplicates.
	require.NoError(t, st.SaveLocations(ctx, run.ID, locs[:1]))
	got, err = st.GetLocations(ctx, run.ID)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}
