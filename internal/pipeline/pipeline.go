// Package pipeline runs the load, extract, fit and report stages of a GWR
// analysis in order.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/gwr-cli/internal/config"
	"github.com/sells-group/gwr-cli/internal/dataset"
	"github.com/sells-group/gwr-cli/internal/features"
	"github.com/sells-group/gwr-cli/internal/gwr"
	"github.com/sells-group/gwr-cli/internal/model"
	"github.com/sells-group/gwr-cli/internal/render"
	"github.com/sells-group/gwr-cli/internal/report"
	"github.com/sells-group/gwr-cli/internal/store"
)

// Progress messages written to the console, in order.
const (
	MsgLoading    = "Loading the dataset..."
	MsgSearching  = "Calculating optimal bandwidth, this may take a moment..."
	MsgBandwidth  = "Optimal Bandwidth: "
	MsgGenerating = "Generating maps..."
)

// Pipeline orchestrates one model run.
type Pipeline struct {
	cfg       *config.Config
	store     store.Store
	out       io.Writer
	dataPath  string
	bandwidth float64
}

// Option customises a Pipeline.
type Option func(*Pipeline)

// WithStore persists runs and their locations to st.
func WithStore(st store.Store) Option {
	return func(p *Pipeline) { p.store = st }
}

// WithDataPath reads the dataset from path instead of the configured one.
func WithDataPath(path string) Option {
	return func(p *Pipeline) { p.dataPath = path }
}

// WithBandwidth fits at bw and skips the bandwidth search.
func WithBandwidth(bw float64) Option {
	return func(p *Pipeline) { p.bandwidth = bw }
}

// New creates a Pipeline that prints progress to out.
func New(cfg *config.Config, out io.Writer, opts ...Option) *Pipeline {
	if out == nil {
		out = io.Discard
	}
	p := &Pipeline{cfg: cfg, out: out}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Outcome is everything a completed run produced.
type Outcome struct {
	RunID     string
	DataPath  string
	Records   *dataset.RecordSet
	Features  *features.Features
	Bandwidth float64
	Results   *gwr.Results
	Global    *gwr.GlobalResults
	// Summary is the printed model summary block.
	Summary string
	Report  *report.Summary
	Maps    []string
}

// Prepared holds the loaded records and model inputs of a run.
type Prepared struct {
	DataPath string
	Records  *dataset.RecordSet
	Features *features.Features
	Search   gwr.SearchOptions
}

// SearchOptions translates the model configuration into fit and search
// options.
func SearchOptions(m config.ModelConfig) (gwr.SearchOptions, error) {
	kernel, err := gwr.ParseKernel(m.Kernel)
	if err != nil {
		return gwr.SearchOptions{}, err
	}
	criterion, err := gwr.ParseCriterion(m.Criterion)
	if err != nil {
		return gwr.SearchOptions{}, err
	}
	method, err := gwr.ParseSearchMethod(m.Search)
	if err != nil {
		return gwr.SearchOptions{}, err
	}
	return gwr.SearchOptions{
		Options: gwr.Options{
			Kernel:    kernel,
			Fixed:     m.Fixed,
			Spherical: m.Spherical,
			Pinv:      m.RankDeficient == "pinv",
			Alpha:     m.Alpha,
		},
		Criterion: criterion,
		Method:    method,
		Min:       m.BWMin,
		Max:       m.BWMax,
		Step:      m.Interval,
		Tolerance: m.Tolerance,
		MaxIter:   m.MaxIter,
	}, nil
}

// Prepare loads the dataset and extracts the model inputs. Every model
// column is checked before any fitting starts.
func (p *Pipeline) Prepare(ctx context.Context) (*Prepared, error) {
	opts, err := SearchOptions(p.cfg.Model)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: model options")
	}

	path := p.dataPath
	if path == "" {
		if path, err = p.cfg.DataPath(); err != nil {
			return nil, err
		}
	}

	p.println(MsgLoading)
	rs, err := dataset.Load(path)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: load %s", path)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	feats, err := features.Extract(rs, p.cfg.Model.Dependent, p.cfg.Model.Independent)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: extract features")
	}
	return &Prepared{DataPath: path, Records: rs, Features: feats, Search: opts}, nil
}

// SelectBandwidth prints the search progress and returns the optimal
// bandwidth for the prepared inputs.
func (p *Pipeline) SelectBandwidth(ctx context.Context, prep *Prepared) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	p.println(MsgSearching)
	start := time.Now()
	f := prep.Features
	bw, err := gwr.SelectBandwidth(f.Coords, f.Y, f.X, prep.Search)
	if err != nil {
		return 0, eris.Wrap(err, "pipeline: select bandwidth")
	}
	zap.L().Info("pipeline: bandwidth selected",
		zap.Float64("bandwidth", bw),
		zap.String("criterion", string(prep.Search.Criterion)),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
	p.println(MsgBandwidth + FormatBandwidth(bw))
	return bw, nil
}

// Run executes every stage and stops at the first error. When a store is
// configured the run is recorded and marked failed on error.
func (p *Pipeline) Run(ctx context.Context) (*Outcome, error) {
	log := zap.L().With(zap.String("component", "pipeline"))

	prep, err := p.Prepare(ctx)
	if err != nil {
		return nil, err
	}
	out := &Outcome{DataPath: prep.DataPath, Records: prep.Records, Features: prep.Features}

	if p.store != nil {
		run, err := p.store.CreateRun(ctx, p.runConfig(prep.DataPath))
		if err != nil {
			return nil, eris.Wrap(err, "pipeline: create run")
		}
		out.RunID = run.ID
		log = log.With(zap.String("run_id", run.ID))
	}

	if err := p.execute(ctx, prep, out); err != nil {
		p.recordFailure(ctx, log, out.RunID, err)
		return nil, err
	}

	if out.RunID != "" {
		if err := p.persist(ctx, out); err != nil {
			p.recordFailure(ctx, log, out.RunID, err)
			return nil, err
		}
	}
	log.Info("pipeline: run complete",
		zap.Float64("bandwidth", out.Bandwidth),
		zap.Int("records", out.Records.Len()),
		zap.Int("maps", len(out.Maps)),
	)
	return out, nil
}

func (p *Pipeline) execute(ctx context.Context, prep *Prepared, out *Outcome) error {
	f := prep.Features

	bw := p.bandwidth
	if bw <= 0 {
		var err error
		if bw, err = p.SelectBandwidth(ctx, prep); err != nil {
			return err
		}
	} else {
		p.println(MsgBandwidth + FormatBandwidth(bw))
	}
	out.Bandwidth = bw
	if err := ctx.Err(); err != nil {
		return err
	}

	res, err := gwr.Fit(f.Coords, f.Y, f.X, bw, prep.Search.Options)
	if err != nil {
		return eris.Wrap(err, "pipeline: fit model")
	}
	out.Results = res

	global, err := gwr.OLS(f.Y, f.X, prep.Search.Pinv)
	if err != nil {
		// The local fit stands on its own; only the comparison is lost.
		zap.L().Warn("pipeline: global regression failed", zap.Error(err))
		global = nil
	}
	out.Global = global

	out.Summary = gwr.Summary(res, global, f.Mapping.Names())
	p.println(out.Summary)
	out.Report = report.NewSummary(res, global, f.Mapping)
	out.Report.Dependent = p.cfg.Model.Dependent

	if err := report.Attach(out.Records, f.Mapping, res); err != nil {
		return eris.Wrap(err, "pipeline: attach results")
	}

	p.println(MsgGenerating)
	maps := p.Maps(out.Records)
	if dir := p.cfg.Render.OutputDir; dir != "" && len(maps) > 0 {
		paths, err := render.RenderAll(ctx, out.Records, maps, dir, p.RenderOptions())
		if err != nil {
			return eris.Wrap(err, "pipeline: render maps")
		}
		out.Maps = paths
	}
	return nil
}

// Maps returns the standard maps whose columns exist on rs. A model without
// poverty among its predictors has no poverty coefficient to draw.
func (p *Pipeline) Maps(rs *dataset.RecordSet) []render.Map {
	var maps []render.Map
	for _, m := range render.Maps {
		if !rs.HasColumn(m.Column) {
			zap.L().Warn("pipeline: skipping map without column", zap.String("map", m.Name()))
			continue
		}
		maps = append(maps, m)
	}
	return maps
}

// RenderOptions returns the configured canvas size.
func (p *Pipeline) RenderOptions() render.Options {
	return render.Options{
		WidthIn:  p.cfg.Render.WidthIn,
		HeightIn: p.cfg.Render.HeightIn,
		DPI:      p.cfg.Render.DPI,
	}
}

func (p *Pipeline) persist(ctx context.Context, out *Outcome) error {
	f := out.Features
	locs, err := store.Locations(out.RunID, out.Records.Indexes(), f.Coords, out.Results)
	if err != nil {
		return eris.Wrap(err, "pipeline: build locations")
	}
	if err := p.store.SaveLocations(ctx, out.RunID, locs); err != nil {
		return eris.Wrap(err, "pipeline: save locations")
	}
	result := &model.RunResult{Bandwidth: out.Bandwidth, Summary: out.Report, Maps: out.Maps}
	if err := p.store.CompleteRun(ctx, out.RunID, result); err != nil {
		return eris.Wrap(err, "pipeline: complete run")
	}
	return nil
}

// recordFailure logs a failed run and marks it failed in the store. It runs
// even when ctx is done.
func (p *Pipeline) recordFailure(ctx context.Context, log *zap.Logger, runID string, cause error) {
	log.Error("pipeline: run failed",
		zap.Bool("model_fit", gwr.IsFitError(cause)),
		zap.Error(cause),
	)
	if runID == "" {
		return
	}
	if err := p.store.FailRun(context.WithoutCancel(ctx), runID, cause.Error()); err != nil {
		log.Warn("pipeline: failed to record run failure", zap.Error(err))
	}
}

func (p *Pipeline) runConfig(path string) model.RunConfig {
	m := p.cfg.Model
	return model.RunConfig{
		Dataset:     path,
		Dependent:   m.Dependent,
		Independent: append([]string(nil), m.Independent...),
		Kernel:      m.Kernel,
		Fixed:       m.Fixed,
		Criterion:   m.Criterion,
	}
}

func (p *Pipeline) println(msg string) {
	fmt.Fprintln(p.out, msg) //nolint:errcheck
}

// FormatBandwidth renders a bandwidth with a trailing ".0" for whole values.
func FormatBandwidth(bw float64) string {
	s := strconv.FormatFloat(bw, 'f', -1, 64)
	if bw == float64(int64(bw)) {
		s += ".0"
	}
	return s
}
