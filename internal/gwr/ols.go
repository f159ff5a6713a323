package gwr

import (
	"math"

	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// GlobalResults holds an ordinary least squares fit over all locations.
// Coefficient slices are intercept first.
type GlobalResults struct {
	N int `json:"n" yaml:"n"`
	K int `json:"k" yaml:"k"`

	Params  []float64 `json:"params" yaml:"params"`
	BSE     []float64 `json:"bse" yaml:"bse"`
	TValues []float64 `json:"t_values" yaml:"t_values"`
	PValues []float64 `json:"p_values" yaml:"p_values"`

	RSS    float64 `json:"rss" yaml:"rss"`
	TSS    float64 `json:"tss" yaml:"tss"`
	Sigma2 float64 `json:"sigma2" yaml:"sigma2"`
	LogLik float64 `json:"log_likelihood" yaml:"log_likelihood"`
	AIC    float64 `json:"aic" yaml:"aic"`
	AICc   float64 `json:"aicc" yaml:"aicc"`
	BIC    float64 `json:"bic" yaml:"bic"`
	R2     float64 `json:"r2" yaml:"r2"`
	AdjR2  float64 `json:"adj_r2" yaml:"adj_r2"`
}

// OLS fits the global regression of y on X with an intercept. A
// rank-deficient design fails unless pinv is set.
func OLS(y []float64, X mat.Matrix, pinv bool) (*GlobalResults, error) {
	n := len(y)
	if n == 0 {
		return nil, eris.Wrap(ErrModelFit, "gwr: no observations")
	}
	r, p := X.Dims()
	if r != n {
		return nil, eris.Errorf("gwr: %d responses and %d design rows differ", n, r)
	}
	k := p + 1

	x := mat.NewDense(n, k, nil)
	for i := range n {
		x.Set(i, 0, 1)
		for j := range p {
			x.Set(i, j+1, X.At(i, j))
		}
	}
	yv := mat.NewVecDense(n, append([]float64(nil), y...))

	var xtx mat.Dense
	xtx.Mul(x.T(), x)
	inv, rank, ok := pseudoInverse(&xtx)
	if !ok {
		return nil, eris.Wrap(ErrModelFit, "gwr: SVD of global system did not converge")
	}
	if rank < k && !pinv {
		return nil, eris.Wrapf(ErrModelFit, "gwr: singular global system (rank %d of %d)", rank, k)
	}

	var xty, beta, fitted mat.VecDense
	xty.MulVec(x.T(), yv)
	beta.MulVec(inv, &xty)
	fitted.MulVec(x, &beta)

	g := &GlobalResults{N: n, K: k, Params: make([]float64, k)}
	for c := range k {
		g.Params[c] = beta.AtVec(c)
	}

	nf, kf := float64(n), float64(k)
	ybar := floats.Sum(y) / nf
	for i := range n {
		e := y[i] - fitted.AtVec(i)
		g.RSS += e * e
		d := y[i] - ybar
		g.TSS += d * d
	}
	g.Sigma2 = g.RSS / (nf - kf)
	g.LogLik = -nf / 2 * (1 + math.Log(2*math.Pi*g.RSS/nf))
	g.AIC = -2*g.LogLik + 2*(kf+1)
	g.AICc = -2*g.LogLik + 2*nf*(kf+1)/(nf-kf-2)
	g.BIC = -2*g.LogLik + (kf+1)*math.Log(nf)
	g.R2 = 1 - g.RSS/g.TSS
	g.AdjR2 = 1 - (1-g.R2)*(nf-1)/(nf-kf)

	g.BSE = make([]float64, k)
	g.TValues = make([]float64, k)
	g.PValues = make([]float64, k)
	dof := nf - kf
	for c := range k {
		g.BSE[c] = math.Sqrt(inv.At(c, c) * g.Sigma2)
		g.TValues[c] = g.Params[c] / g.BSE[c]
		g.PValues[c] = math.NaN()
		if dof > 0 && finite(g.TValues[c]) {
			t := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: dof}
			g.PValues[c] = 2 * t.Survival(math.Abs(g.TValues[c]))
		}
	}
	return g, nil
}
