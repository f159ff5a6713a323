package gwr

import (
	"math"
	"slices"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
)

// goldenDelta places the interior golden-section points.
const goldenDelta = 0.38197

// Criterion is a bandwidth selection criterion; lower is better.
type Criterion string

// Supported criteria.
const (
	AICc Criterion = "AICc"
	AIC  Criterion = "AIC"
	BIC  Criterion = "BIC"
	CV   Criterion = "CV"
)

// ParseCriterion accepts a criterion name in any case.
func ParseCriterion(s string) (Criterion, error) {
	for _, c := range []Criterion{AICc, AIC, BIC, CV} {
		if strings.EqualFold(strings.TrimSpace(s), string(c)) {
			return c, nil
		}
	}
	return "", eris.Errorf("gwr: unknown criterion %q", s)
}

// SearchMethod chooses how candidate bandwidths are generated.
type SearchMethod string

// Supported search methods.
const (
	GoldenSection SearchMethod = "golden_section"
	Interval      SearchMethod = "interval"
)

// ParseSearchMethod accepts a search method name in any case.
func ParseSearchMethod(s string) (SearchMethod, error) {
	switch m := SearchMethod(strings.ToLower(strings.TrimSpace(s))); m {
	case GoldenSection, Interval:
		return m, nil
	default:
		return "", eris.Errorf("gwr: unknown search method %q", s)
	}
}

// SearchOptions configures SelectBandwidth.
type SearchOptions struct {
	Options

	Criterion Criterion
	Method    SearchMethod
	// Min and Max override the default search range when positive.
	Min float64
	Max float64
	// Step is the spacing of interval search candidates.
	Step      float64
	Tolerance float64
	MaxIter   int
}

// SelectBandwidth searches for the bandwidth that minimises the criterion.
// Adaptive bandwidths are whole neighbour counts; fixed bandwidths are
// rounded to two decimals. Bandwidths whose fit fails score +Inf; the search
// fails only when no candidate can be fitted.
func SelectBandwidth(coords []Coord, y []float64, X mat.Matrix, opts SearchOptions) (float64, error) {
	m, err := newModel(coords, y, X, opts.Options)
	if err != nil {
		return 0, err
	}
	a, c, err := searchBounds(m, opts)
	if err != nil {
		return 0, err
	}
	criterion := opts.Criterion
	if criterion == "" {
		criterion = AICc
	}
	s := newSelector(opts, func(bw float64) (float64, error) {
		res, err := m.fit(bw)
		if err != nil {
			return 0, err
		}
		return res.Diagnostics.score(criterion), nil
	})
	s.log.Debug("bandwidth search",
		zap.String("method", string(s.method())),
		zap.String("criterion", string(criterion)),
		zap.Bool("fixed", opts.Fixed),
		zap.Float64("min", a),
		zap.Float64("max", c),
	)
	return s.run(a, c)
}

// searchBounds returns the search range. Adaptive searches span
// [40 + 2k, n] neighbours; fixed searches span half the closest pair
// distance to twice the widest.
func searchBounds(m *model, opts SearchOptions) (float64, float64, error) {
	var a, c float64
	n := float64(m.n)
	if opts.Fixed {
		a = m.dist.minNeighbour() / 2
		c = m.dist.maxDistance() * 2
	} else {
		a = math.Min(float64(40+2*m.k), n)
		c = n
	}
	if opts.Min > 0 {
		a = opts.Min
	}
	if opts.Max > 0 {
		c = opts.Max
	}
	if !opts.Fixed {
		a, c = math.Round(a), math.Min(math.Round(c), n)
	}
	if !finite(a) || !finite(c) || a <= 0 || a > c {
		return 0, 0, newFitError(-1, a, "invalid bandwidth range [%g, %g]", a, c)
	}
	return a, c, nil
}

// selector minimises an objective over bandwidths, memoising scores.
type selector struct {
	opts      SearchOptions
	objective func(bw float64) (float64, error)
	memo      map[float64]float64
	lastErr   error
	log       *zap.Logger
}

func newSelector(opts SearchOptions, objective func(float64) (float64, error)) *selector {
	return &selector{
		opts:      opts,
		objective: objective,
		memo:      make(map[float64]float64),
		log:       zap.L().With(zap.String("component", "gwr.selbw")),
	}
}

func (s *selector) run(a, c float64) (float64, error) {
	var (
		opt, score float64
		err        error
	)
	switch s.method() {
	case Interval:
		opt, score, err = s.interval(a, c)
	default:
		opt, score, err = s.golden(a, c)
	}
	if err != nil {
		return 0, err
	}
	if math.IsInf(score, 1) {
		opt, score = s.best()
	}
	if math.IsInf(score, 1) {
		if s.lastErr != nil {
			return 0, eris.Wrap(s.lastErr, "gwr: no bandwidth could be fitted")
		}
		return 0, newFitError(-1, opt, "every candidate bandwidth scored +Inf")
	}
	if !s.opts.Fixed {
		return opt, nil
	}
	return math.Min(math.Max(math.Round(opt*100)/100, a), c), nil
}

func (s *selector) method() SearchMethod {
	if s.opts.Method == "" {
		return GoldenSection
	}
	return s.opts.Method
}

// score evaluates the objective at bw once. Failed or NaN evaluations
// score +Inf.
func (s *selector) score(bw float64) float64 {
	if v, ok := s.memo[bw]; ok {
		return v
	}
	v := math.Inf(1)
	sc, err := s.objective(bw)
	if err != nil {
		s.lastErr = err
		s.log.Debug("candidate bandwidth failed", zap.Float64("bandwidth", bw), zap.Error(err))
	} else if !math.IsNaN(sc) {
		v = sc
	}
	s.memo[bw] = v
	return v
}

func (s *selector) golden(a, c float64) (float64, float64, error) {
	integer := !s.opts.Fixed
	tol := s.opts.Tolerance
	if tol <= 0 {
		tol = 1e-6
	}
	maxIter := s.opts.MaxIter
	if maxIter <= 0 {
		maxIter = 200
	}

	b := a + goldenDelta*math.Abs(c-a)
	d := c - goldenDelta*math.Abs(c-a)
	opt, optScore := b, math.Inf(1)
	diff := math.Inf(1)
	iter := 0
	for math.Abs(diff) > tol && iter < maxIter {
		iter++
		if integer {
			b, d = math.Round(b), math.Round(d)
		}
		scoreB, scoreD := s.score(b), s.score(d)
		if scoreB <= scoreD {
			opt, optScore = b, scoreB
			c = d
			d = b
			b = a + goldenDelta*math.Abs(c-a)
		} else {
			opt, optScore = d, scoreD
			a = b
			b = d
			d = c - goldenDelta*math.Abs(c-a)
		}
		diff = scoreB - scoreD
		if math.IsInf(scoreB, 1) && math.IsInf(scoreD, 1) {
			diff = 0
		}
		s.log.Debug("golden section step",
			zap.Int("iter", iter),
			zap.Float64("bandwidth", opt),
			zap.Float64("score", optScore),
		)
	}
	if math.Abs(diff) > tol {
		return 0, 0, newFitError(-1, opt, "golden section did not converge in %d iterations", maxIter)
	}
	return opt, optScore, nil
}

// interval scores every Step between a and c and keeps the lowest.
func (s *selector) interval(a, c float64) (float64, float64, error) {
	step := s.opts.Step
	if step <= 0 {
		return 0, 0, eris.New("gwr: interval search needs a positive step")
	}
	if !s.opts.Fixed {
		step = math.Max(1, math.Round(step))
	}

	scoreA, scoreC := s.score(a), s.score(c)
	opt, optScore := c, scoreC
	if scoreA < scoreC {
		opt, optScore = a, scoreA
	}
	for b := a + step; b < c; b += step {
		if sc := s.score(b); sc < optScore {
			opt, optScore = b, sc
		}
	}
	return opt, optScore, nil
}

// best returns the lowest memoised score, preferring the smaller bandwidth
// on ties.
func (s *selector) best() (float64, float64) {
	keys := make([]float64, 0, len(s.memo))
	for bw := range s.memo {
		keys = append(keys, bw)
	}
	slices.Sort(keys)
	opt, optScore := 0.0, math.Inf(1)
	for _, bw := range keys {
		if v := s.memo[bw]; v < optScore {
			opt, optScore = bw, v
		}
	}
	return opt, optScore
}
