package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/gwr-cli/internal/model"
)

func TestFormatRunsList(t *testing.T) {
	now := time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)
	runs := []model.Run{
		{
			ID:        "abc12345-6789-0000-0000-000000000000",
			Config:    model.RunConfig{Dataset: "/srv/data/airbnb_Chicago 2015.shp", Kernel: "bisquare"},
			Status:    model.RunStatusComplete,
			Bandwidth: 61,
			CreatedAt: now,
			UpdatedAt: now.Add(2 * time.Minute),
		},
		{
			ID:        "def12345-6789-0000-0000-000000000000",
			Config:    model.RunConfig{Dataset: "grid.shp", Kernel: "gaussian", Fixed: true},
			Status:    model.RunStatusFailed,
			Error:     "gwr: location 3 has 12 neighbours",
			CreatedAt: now.Add(-1 * time.Hour),
			UpdatedAt: now.Add(-59 * time.Minute),
		},
	}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)

	output := buf.String()
	assert.Contains(t, output, "ID")
	assert.Contains(t, output, "DATASET")
	assert.Contains(t, output, "airbnb_Chicago 2015.shp")
	assert.NotContains(t, output, "/srv/data")
	assert.Contains(t, output, "adaptive bisquare")
	assert.Contains(t, output, "fixed gaussian")
	assert.Contains(t, output, "complete")
	assert.Contains(t, output, "failed")
	assert.Contains(t, output, "61")
	assert.Contains(t, output, "2025-06-15 10:30")
	assert.Contains(t, output, "abc12345")
	assert.NotContains(t, output, "abc12345-")
}

func TestFormatLocations(t *testing.T) {
	locs := []model.Location{
		{Index: 0, X: 1.5, Y: 2.5, Params: []float64{10, -0.25}, Residual: 0.5, LocalR2: 0.75},
		{Index: 3, X: 4, Y: 5, Params: []float64{11, 0.125}, Residual: -1, LocalR2: 0.5},
	}

	var buf bytes.Buffer
	formatLocations(&buf, []string{"poverty"}, locs)

	output := buf.String()
	assert.Contains(t, output, "INTERCEPT")
	assert.Contains(t, output, "POVERTY")
	assert.Contains(t, output, "LOCAL_R2")
	assert.Contains(t, output, "-0.25")
	assert.Contains(t, output, "0.125")
	assert.Contains(t, output, "0.75")
}

func TestRunsStats(t *testing.T) {
	now := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

	runs := []model.Run{
		{ID: "1", Status: model.RunStatusComplete, Bandwidth: 61, CreatedAt: now, UpdatedAt: now.Add(2 * time.Minute)},
		{ID: "2", Status: model.RunStatusComplete, Bandwidth: 61, CreatedAt: now, UpdatedAt: now.Add(3 * time.Minute)},
		{ID: "3", Status: model.RunStatusFailed, CreatedAt: now, UpdatedAt: now.Add(time.Second)},
		{ID: "4", Status: model.RunStatusRunning, CreatedAt: now, UpdatedAt: now},
	}

	stats := computeRunStats(runs)
	assert.Equal(t, 4, stats.Total)
	assert.Equal(t, 2, stats.Complete)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 1, stats.Running)
	// Average duration of the 2 complete runs: (120s + 180s) / 2 = 150s.
	assert.InDelta(t, 150.0, stats.AvgDurSecs, 0.1)
	assert.Equal(t, map[float64]int{61: 2}, stats.Bandwidths)

	var buf bytes.Buffer
	formatRunStats(&buf, stats)
	assert.Contains(t, buf.String(), "Total runs:")
	assert.Contains(t, buf.String(), "150.0s")
	assert.Contains(t, buf.String(), "Bandwidth:")
}

func TestRunsStats_Empty(t *testing.T) {
	stats := computeRunStats(nil)
	assert.Zero(t, stats.Total)
	assert.Zero(t, stats.AvgDurSecs)

	var buf bytes.Buffer
	formatRunStats(&buf, stats)
	assert.NotContains(t, buf.String(), "Avg duration")
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "abc12345", truncateID("abc12345-6789"))
	assert.Equal(t, "short", truncateID("short"))
}
