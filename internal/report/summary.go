package report

import (
	"io"
	"math"
	"strconv"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/gwr-cli/internal/features"
	"github.com/sells-group/gwr-cli/internal/gwr"
)

// Metric is a named diagnostic. Value is nil when the statistic is not
// defined for the fit.
type Metric struct {
	Name  string   `json:"name" yaml:"name"`
	Value *float64 `json:"value" yaml:"value"`
}

// Coefficient is one row of the global regression table.
type Coefficient struct {
	Name     string   `json:"name" yaml:"name"`
	Estimate *float64 `json:"estimate" yaml:"estimate"`
	StdError *float64 `json:"std_error" yaml:"std_error"`
	TValue   *float64 `json:"t_value" yaml:"t_value"`
	PValue   *float64 `json:"p_value" yaml:"p_value"`
}

// GlobalSummary describes the global OLS model.
type GlobalSummary struct {
	Coefficients []Coefficient `json:"coefficients" yaml:"coefficients"`
	Diagnostics  []Metric      `json:"diagnostics" yaml:"diagnostics"`
}

// Summary is the machine-readable counterpart of the text summary.
type Summary struct {
	Model        string           `json:"model" yaml:"model"`
	Kernel       string           `json:"kernel" yaml:"kernel"`
	Fixed        bool             `json:"fixed" yaml:"fixed"`
	Bandwidth    float64          `json:"bandwidth" yaml:"bandwidth"`
	Observations int              `json:"observations" yaml:"observations"`
	Covariates   int              `json:"covariates" yaml:"covariates"`
	Dependent    string           `json:"dependent,omitempty" yaml:"dependent,omitempty"`
	Diagnostics  []Metric         `json:"diagnostics" yaml:"diagnostics"`
	Parameters   []gwr.ParamStats `json:"parameters" yaml:"parameters"`
	Global       *GlobalSummary   `json:"global,omitempty" yaml:"global,omitempty"`
}

// NewSummary collects the diagnostics of a GWR fit and, when global is not
// nil, of the global regression.
func NewSummary(res *gwr.Results, global *gwr.GlobalResults, mapping features.CoefficientMapping) *Summary {
	d := res.Diagnostics
	s := &Summary{
		Model:        "Geographically Weighted Regression",
		Kernel:       gwr.Describe(res.Kernel, res.Fixed),
		Fixed:        res.Fixed,
		Bandwidth:    res.Bandwidth,
		Observations: res.N,
		Covariates:   res.K,
		Diagnostics: []Metric{
			metric("rss", d.RSS),
			metric("effective_parameters", d.TrS),
			metric("degrees_of_freedom", d.DoF),
			metric("sigma2", d.Sigma2),
			metric("log_likelihood", d.LogLik),
			metric("aic", d.AIC),
			metric("aicc", d.AICc),
			metric("bic", d.BIC),
			metric("cv", d.CV),
			metric("r2", d.R2),
			metric("adj_r2", d.AdjR2),
			metric("adj_alpha", d.AdjAlpha),
			metric("critical_t", d.CriticalT),
		},
		Parameters: gwr.Stats(res, mapping.Names()),
	}
	if global != nil {
		s.Global = globalSummary(global, gwr.CoefficientNames(mapping.Names()))
	}
	return s
}

func globalSummary(g *gwr.GlobalResults, names []string) *GlobalSummary {
	out := &GlobalSummary{
		Diagnostics: []Metric{
			metric("rss", g.RSS),
			metric("sigma2", g.Sigma2),
			metric("log_likelihood", g.LogLik),
			metric("aic", g.AIC),
			metric("aicc", g.AICc),
			metric("bic", g.BIC),
			metric("r2", g.R2),
			metric("adj_r2", g.AdjR2),
		},
	}
	for j := range g.Params {
		name := "X" + strconv.Itoa(j)
		if j < len(names) {
			name = names[j]
		}
		out.Coefficients = append(out.Coefficients, Coefficient{
			Name:     name,
			Estimate: finite(g.Params[j]),
			StdError: finite(g.BSE[j]),
			TValue:   finite(g.TValues[j]),
			PValue:   finite(g.PValues[j]),
		})
	}
	return out
}

// WriteSummaryYAML writes the summary of a fit as YAML.
func WriteSummaryYAML(w io.Writer, res *gwr.Results, global *gwr.GlobalResults, mapping features.CoefficientMapping) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(NewSummary(res, global, mapping)); err != nil {
		return eris.Wrap(err, "report: encode summary yaml")
	}
	return eris.Wrap(enc.Close(), "report: close summary yaml")
}

func metric(name string, v float64) Metric {
	return Metric{Name: name, Value: finite(v)}
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
