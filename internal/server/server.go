// Package server exposes a completed model run over HTTP: its summary and
// its choropleth maps, rendered on demand and cached.
package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/gwr-cli/internal/dataset"
	"github.com/sells-group/gwr-cli/internal/render"
	"github.com/sells-group/gwr-cli/internal/report"
)

// Result is the read-only model output served to clients.
type Result struct {
	RunID     string
	Records   *dataset.RecordSet
	Summary   string
	Report    *report.Summary
	Maps      []render.Map
	Rendering render.Options
}

// Server serves one model result.
type Server struct {
	result Result
	cache  *render.MapCache
}

// New creates a Server. A nil cache renders every request.
func New(result Result, cache *render.MapCache) *Server {
	return &Server{result: result, cache: cache}
}

// Routes returns the HTTP handler with CORS and request logging applied.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodHead, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/summary", s.handleSummary)
	r.Get("/summary.txt", s.handleSummaryText)
	r.Get("/maps", s.handleMaps)
	r.Get("/maps/{name}.png", s.handleMap)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	body := map[string]any{"status": "ok"}
	if s.result.RunID != "" {
		body["run_id"] = s.result.RunID
	}
	if s.cache != nil {
		body["cache"] = s.cache.Stats()
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleSummary(w http.ResponseWriter, _ *http.Request) {
	if s.result.Report == nil {
		writeError(w, http.StatusNotFound, "no summary available")
		return
	}
	writeJSON(w, http.StatusOK, s.result.Report)
}

func (s *Server) handleSummaryText(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(s.result.Summary))
}

func (s *Server) handleMaps(w http.ResponseWriter, _ *http.Request) {
	type entry struct {
		Name  string `json:"name"`
		Title string `json:"title"`
		URL   string `json:"url"`
	}
	out := make([]entry, 0, len(s.result.Maps))
	for _, m := range s.result.Maps {
		out = append(out, entry{Name: m.Name(), Title: m.Title, URL: "/maps/" + m.Filename()})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleMap(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	m, ok := render.Lookup(s.result.Maps, name)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown map")
		return
	}

	draw := func() ([]byte, error) {
		var buf bytes.Buffer
		if err := render.Render(&buf, s.result.Records, m, s.result.Rendering); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}

	var (
		data        []byte
		err         error
		cacheStatus = "bypass"
	)
	if s.cache != nil {
		var hit bool
		data, hit, err = s.cache.GetOrRender(render.KeyFor(m, s.result.Rendering), draw)
		cacheStatus = "miss"
		if hit {
			cacheStatus = "hit"
		}
	} else {
		data, err = draw()
	}
	if err != nil {
		zap.L().Error("server: render map failed", zap.String("map", name), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "render failed")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=300")
	w.Header().Set("X-Cache", cacheStatus)
	_, _ = w.Write(data)
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
