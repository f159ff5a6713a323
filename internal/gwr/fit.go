package gwr

import (
	"math"

	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// adaptiveStretch widens adaptive radii so the bw-th neighbour keeps a
// non-zero bisquare weight.
const adaptiveStretch = 1.0000001

// Options configures a GWR fit.
type Options struct {
	Kernel Kernel
	// Fixed selects a distance bandwidth; otherwise the bandwidth is a
	// nearest-neighbour count.
	Fixed bool
	// Spherical treats coordinates as longitude/latitude and measures
	// great-circle distances.
	Spherical bool
	// Pinv solves rank-deficient local systems with the pseudo-inverse
	// instead of failing.
	Pinv  bool
	Alpha float64
}

func (o Options) kernel() Kernel {
	if o.Kernel == "" {
		return Bisquare
	}
	return o.Kernel
}

func (o Options) alpha() float64 {
	if o.Alpha <= 0 || o.Alpha >= 1 {
		return 0.05
	}
	return o.Alpha
}

// Diagnostics summarises the goodness of fit of a GWR model.
type Diagnostics struct {
	N         int     `json:"n" yaml:"n"`
	K         int     `json:"k" yaml:"k"`
	RSS       float64 `json:"rss" yaml:"rss"`
	TSS       float64 `json:"tss" yaml:"tss"`
	TrS       float64 `json:"tr_s" yaml:"tr_s"`
	DoF       float64 `json:"dof" yaml:"dof"`
	Sigma2    float64 `json:"sigma2" yaml:"sigma2"`
	LogLik    float64 `json:"log_likelihood" yaml:"log_likelihood"`
	AIC       float64 `json:"aic" yaml:"aic"`
	AICc      float64 `json:"aicc" yaml:"aicc"`
	BIC       float64 `json:"bic" yaml:"bic"`
	CV        float64 `json:"cv" yaml:"cv"`
	R2        float64 `json:"r2" yaml:"r2"`
	AdjR2     float64 `json:"adj_r2" yaml:"adj_r2"`
	AdjAlpha  float64 `json:"adj_alpha" yaml:"adj_alpha"`
	CriticalT float64 `json:"critical_t" yaml:"critical_t"`
}

// Results holds a fitted GWR model. Matrices have one row per location and
// one column per coefficient, intercept first.
type Results struct {
	Kernel    Kernel
	Fixed     bool
	Bandwidth float64
	N         int
	K         int

	Params  *mat.Dense
	BSE     *mat.Dense
	TValues *mat.Dense
	CCT     *mat.Dense

	Predicted []float64
	Residuals []float64
	Influence []float64
	LocalR2   []float64

	Diagnostics Diagnostics
}

// Param returns coefficient column j for every location.
func (r *Results) Param(j int) []float64 {
	return mat.Col(nil, j, r.Params)
}

// Fit calibrates a GWR model of y on X at the given bandwidth. X holds the
// predictors only; an intercept column is prepended.
func Fit(coords []Coord, y []float64, X mat.Matrix, bw float64, opts Options) (*Results, error) {
	m, err := newModel(coords, y, X, opts)
	if err != nil {
		return nil, err
	}
	return m.fit(bw)
}

// model is the validated design shared by a fit and a bandwidth search.
type model struct {
	n, k int
	x    *mat.Dense
	y    *mat.VecDense
	dist *distances
	opts Options
}

func newModel(coords []Coord, y []float64, X mat.Matrix, opts Options) (*model, error) {
	n := len(y)
	if n == 0 {
		return nil, eris.Wrap(ErrModelFit, "gwr: no observations")
	}
	r, p := X.Dims()
	if r != n || len(coords) != n {
		return nil, eris.Errorf("gwr: %d coordinates, %d responses and %d design rows differ", len(coords), n, r)
	}

	k := p + 1
	x := mat.NewDense(n, k, nil)
	for i := range n {
		if !finite(y[i]) || !finite(coords[i].X) || !finite(coords[i].Y) {
			return nil, eris.Wrapf(ErrModelFit, "gwr: non-finite response or coordinate at row %d", i)
		}
		x.Set(i, 0, 1)
		for j := range p {
			v := X.At(i, j)
			if !finite(v) {
				return nil, eris.Wrapf(ErrModelFit, "gwr: non-finite predictor at row %d column %d", i, j)
			}
			x.Set(i, j+1, v)
		}
	}

	opts.Kernel = opts.kernel()
	return &model{
		n:    n,
		k:    k,
		x:    x,
		y:    mat.NewVecDense(n, append([]float64(nil), y...)),
		dist: newDistances(coords, opts.Spherical),
		opts: opts,
	}, nil
}

func (m *model) checkBandwidth(bw float64) error {
	if !finite(bw) || bw <= 0 {
		return newFitError(-1, bw, "bandwidth must be positive")
	}
	if !m.opts.Fixed && (bw < 1 || int(bw) > m.n) {
		return newFitError(-1, bw, "adaptive bandwidth must count between 1 and %d neighbours", m.n)
	}
	return nil
}

// radius is the kernel bandwidth distance at location i.
func (m *model) radius(i int, bw float64) float64 {
	if m.opts.Fixed {
		return bw
	}
	return m.dist.kth(i, int(bw)) * adaptiveStretch
}

func (m *model) weights(dst []float64, i int, bw float64) error {
	radius := m.radius(i, bw)
	if !(radius > 0) {
		return newFitError(i, bw, "kernel radius is zero")
	}
	m.opts.Kernel.Weights(dst, m.dist.row(i), radius)
	return nil
}

func (m *model) fit(bw float64) (*Results, error) {
	if err := m.checkBandwidth(bw); err != nil {
		return nil, err
	}
	n, k := m.n, m.k

	res := &Results{
		Kernel:    m.opts.Kernel,
		Fixed:     m.opts.Fixed,
		Bandwidth: bw,
		N:         n,
		K:         k,
		Params:    mat.NewDense(n, k, nil),
		CCT:       mat.NewDense(n, k, nil),
		Predicted: make([]float64, n),
		Residuals: make([]float64, n),
		Influence: make([]float64, n),
		LocalR2:   make([]float64, n),
	}

	w := make([]float64, n)
	xtw := mat.NewDense(k, n, nil)
	beta := mat.NewVecDense(k, nil)
	var xtwx, s mat.Dense

	for i := range n {
		if err := m.weights(w, i, bw); err != nil {
			return nil, err
		}
		for j := range n {
			for c := range k {
				xtw.Set(c, j, m.x.At(j, c)*w[j])
			}
		}
		xtwx.Mul(xtw, m.x)

		inv, rank, ok := pseudoInverse(&xtwx)
		if !ok {
			return nil, newFitError(i, bw, "SVD of local system did not converge")
		}
		if rank < k && !m.opts.Pinv {
			return nil, newFitError(i, bw, "singular local system (rank %d of %d)", rank, k)
		}

		// s = (X'WX)^-1 X'W, so beta = s y and the hat-matrix diagonal
		// entry is x_i . s[:, i].
		s.Mul(inv, xtw)
		beta.MulVec(&s, m.y)

		xi := m.x.RawRowView(i)
		for c := range k {
			res.Params.Set(i, c, beta.AtVec(c))
			res.Influence[i] += xi[c] * s.At(c, i)
			row := s.RawRowView(c)
			res.CCT.Set(i, c, floats.Dot(row, row))
		}
		res.Predicted[i] = floats.Dot(xi, res.Params.RawRowView(i))
		res.Residuals[i] = m.y.AtVec(i) - res.Predicted[i]
	}

	if err := m.localR2(res, w); err != nil {
		return nil, err
	}
	res.Diagnostics = m.diagnostics(res)
	m.inference(res)
	return res, nil
}

// localR2 compares the kernel-weighted residual and total sums of squares
// around each location.
func (m *model) localR2(res *Results, w []float64) error {
	y := m.y.RawVector().Data
	for i := range m.n {
		if err := m.weights(w, i, res.Bandwidth); err != nil {
			return err
		}
		ybar := floats.Dot(w, y) / floats.Sum(w)
		var tss, rss float64
		for j := range m.n {
			d := y[j] - ybar
			tss += w[j] * d * d
			rss += w[j] * res.Residuals[j] * res.Residuals[j]
		}
		res.LocalR2[i] = (tss - rss) / tss
	}
	return nil
}

func (m *model) diagnostics(res *Results) Diagnostics {
	n := float64(m.n)
	y := m.y.RawVector().Data
	ybar := floats.Sum(y) / n

	d := Diagnostics{N: m.n, K: m.k}
	var cv float64
	for i := range m.n {
		r := res.Residuals[i]
		d.RSS += r * r
		dy := y[i] - ybar
		d.TSS += dy * dy
		loo := r / (1 - res.Influence[i])
		cv += loo * loo
	}
	d.TrS = floats.Sum(res.Influence)
	d.DoF = n - d.TrS
	d.Sigma2 = d.RSS / d.DoF
	d.LogLik = -n / 2 * (1 + math.Log(2*math.Pi*d.RSS/n))
	d.AIC = -2*d.LogLik + 2*(d.TrS+1)
	d.AICc = -2*d.LogLik + 2*n*(d.TrS+1)/(n-d.TrS-2)
	d.BIC = -2*d.LogLik + (d.TrS+1)*math.Log(n)
	d.CV = cv / n
	d.R2 = 1 - d.RSS/d.TSS
	d.AdjR2 = 1 - (1-d.R2)*(n-1)/(n-d.TrS-1)

	// Multiple-testing correction of alpha over the effective number of
	// parameters.
	d.AdjAlpha = m.opts.alpha() * float64(m.k) / d.TrS
	d.CriticalT = math.NaN()
	if m.n > 1 && d.AdjAlpha > 0 && d.AdjAlpha < 1 {
		t := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: n - 1}
		d.CriticalT = t.Quantile(1 - d.AdjAlpha/2)
	}
	return d
}

// inference fills the coefficient standard errors and t-values.
func (m *model) inference(res *Results) {
	sigma2 := res.Diagnostics.Sigma2
	res.BSE = mat.NewDense(m.n, m.k, nil)
	res.TValues = mat.NewDense(m.n, m.k, nil)
	for i := range m.n {
		for c := range m.k {
			se := math.Sqrt(res.CCT.At(i, c) * sigma2)
			res.BSE.Set(i, c, se)
			res.TValues.Set(i, c, res.Params.At(i, c)/se)
		}
	}
}

// score returns the value of a selection criterion.
func (d Diagnostics) score(c Criterion) float64 {
	switch c {
	case AIC:
		return d.AIC
	case BIC:
		return d.BIC
	case CV:
		return d.CV
	default:
		return d.AICc
	}
}
