package server

import (
	"bytes"
	"encoding/json"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/gwr-cli/internal/dataset/datasettest"
	"github.com/sells-group/gwr-cli/internal/render"
	"github.com/sells-group/gwr-cli/internal/report"
)

func testServer(t *testing.T, cache *render.MapCache) http.Handler {
	t.Helper()
	rs := datasettest.Grid(3, 3)
	require.NoError(t, rs.SetColumn("beta_poverty", []float64{-2, -1, 0, 1, 2, 3, 4, 5, 6}))
	require.NoError(t, rs.SetColumn("residuals", []float64{1, -1, 1, -1, 0, 0, 1, -1, 1}))

	aicc := 101.5
	return New(Result{
		RunID:   "run-1",
		Records: rs,
		Summary: "GWR summary text\n",
		Report: &report.Summary{
			Kernel:      "Adaptive bisquare",
			Bandwidth:   9,
			Diagnostics: []report.Metric{{Name: "aicc", Value: &aicc}, {Name: "critical_t"}},
		},
		Maps:      render.Maps,
		Rendering: render.Options{WidthIn: 4, HeightIn: 3, DPI: 50},
	}, cache).Routes()
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	h := testServer(t, render.NewMapCache(4, time.Minute))
	w := get(t, h, "/health")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var body struct {
		Status string            `json:"status"`
		RunID  string            `json:"run_id"`
		Cache  render.CacheStats `json:"cache"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "run-1", body.RunID)
	assert.Equal(t, 4, body.Cache.MaxEntries)
}

func TestSummary(t *testing.T) {
	h := testServer(t, nil)

	w := get(t, h, "/summary")
	require.Equal(t, http.StatusOK, w.Code)
	var s report.Summary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &s))
	assert.Equal(t, "Adaptive bisquare", s.Kernel)
	require.Len(t, s.Diagnostics, 2)
	assert.Equal(t, 101.5, *s.Diagnostics[0].Value)
	assert.Nil(t, s.Diagnostics[1].Value)

	w = get(t, h, "/summary.txt")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "GWR summary text\n", w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Type"), "text/plain")
}

func TestSummary_Missing(t *testing.T) {
	h := New(Result{}, nil).Routes()
	w := get(t, h, "/summary")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMaps_List(t *testing.T) {
	w := get(t, testServer(t, nil), "/maps")
	require.Equal(t, http.StatusOK, w.Code)

	var maps []struct {
		Name string `json:"name"`
		URL  string `json:"url"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &maps))
	require.Len(t, maps, 2)
	assert.Equal(t, "beta_poverty", maps[0].Name)
	assert.Equal(t, "/maps/residuals.png", maps[1].URL)
}

func TestMap_RendersAndCaches(t *testing.T) {
	cache := render.NewMapCache(4, time.Minute)
	h := testServer(t, cache)

	w := get(t, h, "/maps/beta_poverty.png")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Equal(t, "miss", w.Header().Get("X-Cache"))

	img, err := png.Decode(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 200, img.Bounds().Dx())
	assert.Equal(t, 150, img.Bounds().Dy())

	w = get(t, h, "/maps/beta_poverty.png")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "hit", w.Header().Get("X-Cache"))
	assert.Equal(t, 1, cache.Stats().Entries)
}

func TestMap_CacheCountsEachRequestOnce(t *testing.T) {
	cache := render.NewMapCache(4, time.Minute)
	h := testServer(t, cache)

	require.Equal(t, http.StatusOK, get(t, h, "/maps/residuals.png").Code)
	stats := cache.Stats()
	assert.Equal(t, int64(0), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)

	require.Equal(t, http.StatusOK, get(t, h, "/maps/residuals.png").Code)
	require.Equal(t, http.StatusOK, get(t, h, "/maps/beta_poverty.png").Code)
	stats = cache.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(2), stats.Misses)
	assert.Equal(t, 2, stats.Entries)
	assert.InDelta(t, 1.0/3.0, stats.HitRate, 0.001)
}

func TestMap_WithoutCache(t *testing.T) {
	w := get(t, testServer(t, nil), "/maps/residuals.png")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "bypass", w.Header().Get("X-Cache"))
}

func TestMap_Unknown(t *testing.T) {
	w := get(t, testServer(t, nil), "/maps/income.png")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMap_RenderFailure(t *testing.T) {
	h := New(Result{
		Records: datasettest.Grid(2, 2),
		Maps:    render.Maps,
	}, nil).Routes()
	w := get(t, h, "/maps/residuals.png")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestCORS(t *testing.T) {
	h := testServer(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://example.com")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
