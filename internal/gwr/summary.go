package gwr

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

const rule = "==========================================================================="
const thinRule = "---------------------------------------------------------------------------"

// ParamStats summarises one coefficient across locations.
type ParamStats struct {
	Name   string  `json:"name" yaml:"name"`
	Mean   float64 `json:"mean" yaml:"mean"`
	STD    float64 `json:"std" yaml:"std"`
	Min    float64 `json:"min" yaml:"min"`
	Median float64 `json:"median" yaml:"median"`
	Max    float64 `json:"max" yaml:"max"`
}

// CoefficientNames returns the coefficient labels for the given predictors,
// intercept first.
func CoefficientNames(predictors []string) []string {
	return append([]string{"Intercept"}, predictors...)
}

// Stats computes per-coefficient summary statistics. names labels the
// predictors; the intercept is added.
func Stats(res *Results, predictors []string) []ParamStats {
	names := CoefficientNames(predictors)
	out := make([]ParamStats, res.K)
	for j := range res.K {
		col := res.Param(j)
		mean, std := stat.PopMeanStdDev(col, nil)
		sorted := slices.Clone(col)
		slices.Sort(sorted)
		out[j] = ParamStats{
			Name:   label(names, j),
			Mean:   mean,
			STD:    std,
			Min:    floats.Min(col),
			Median: median(sorted),
			Max:    floats.Max(col),
		}
	}
	return out
}

// Summary renders the global and local model results as a text report.
// global may be nil.
func Summary(res *Results, global *GlobalResults, predictors []string) string {
	names := CoefficientNames(predictors)
	var b strings.Builder

	b.WriteString(rule + "\n")
	fmt.Fprintf(&b, "%-67s %12s\n", "Model type", "Gaussian")
	fmt.Fprintf(&b, "%-67s %12d\n", "Number of observations:", res.N)
	fmt.Fprintf(&b, "%-67s %12d\n\n", "Number of covariates:", res.K)

	if global != nil {
		b.WriteString("Global Regression Results\n")
		b.WriteString(thinRule + "\n")
		value(&b, "Residual sum of squares:", global.RSS)
		value(&b, "Log-likelihood:", global.LogLik)
		value(&b, "AIC:", global.AIC)
		value(&b, "AICc:", global.AICc)
		value(&b, "BIC:", global.BIC)
		value(&b, "R2:", global.R2)
		value(&b, "Adj. R2:", global.AdjR2)
		b.WriteString("\n")

		fmt.Fprintf(&b, "%-31s %10s %10s %10s %10s\n", "Variable", "Est.", "SE", "t(Est/SE)", "p-value")
		fmt.Fprintf(&b, "%-31s %10s %10s %10s %10s\n",
			strings.Repeat("-", 31), strings.Repeat("-", 10), strings.Repeat("-", 10),
			strings.Repeat("-", 10), strings.Repeat("-", 10))
		for j := range global.K {
			fmt.Fprintf(&b, "%-31s %10.3f %10.3f %10.3f %10.3f\n",
				truncate(label(names, j), 31), global.Params[j], global.BSE[j], global.TValues[j], global.PValues[j])
		}
		b.WriteString("\n")
	}

	d := res.Diagnostics
	b.WriteString("Geographically Weighted Regression (GWR) Results\n")
	b.WriteString(thinRule + "\n")
	fmt.Fprintf(&b, "%-54s %20s\n", "Spatial kernel:", Describe(res.Kernel, res.Fixed))
	value(&b, "Bandwidth used:", res.Bandwidth)
	b.WriteString("\nDiagnostic information\n")
	b.WriteString(thinRule + "\n")
	value(&b, "Residual sum of squares:", d.RSS)
	value(&b, "Effective number of parameters (trace(S)):", d.TrS)
	value(&b, "Degree of freedom (n - trace(S)):", d.DoF)
	value(&b, "Sigma estimate:", math.Sqrt(d.Sigma2))
	value(&b, "Log-likelihood:", d.LogLik)
	value(&b, "AIC:", d.AIC)
	value(&b, "AICc:", d.AICc)
	value(&b, "BIC:", d.BIC)
	value(&b, "R2:", d.R2)
	value(&b, "Adjusted R2:", d.AdjR2)
	value(&b, "Adj. alpha (95%):", d.AdjAlpha)
	value(&b, "Adj. critical t value (95%):", d.CriticalT)
	b.WriteString("\n")

	b.WriteString("Summary Statistics For GWR Parameter Estimates\n")
	b.WriteString(thinRule + "\n")
	fmt.Fprintf(&b, "%-20s %10s %10s %10s %10s %10s\n", "Variable", "Mean", "STD", "Min", "Median", "Max")
	fmt.Fprintf(&b, "%-20s %10s %10s %10s %10s %10s\n",
		strings.Repeat("-", 20), strings.Repeat("-", 10), strings.Repeat("-", 10),
		strings.Repeat("-", 10), strings.Repeat("-", 10), strings.Repeat("-", 10))
	for _, ps := range Stats(res, predictors) {
		fmt.Fprintf(&b, "%-20s %10.3f %10.3f %10.3f %10.3f %10.3f\n",
			truncate(ps.Name, 20), ps.Mean, ps.STD, ps.Min, ps.Median, ps.Max)
	}
	b.WriteString(rule + "\n")
	return b.String()
}

func value(b *strings.Builder, name string, v float64) {
	fmt.Fprintf(b, "%-67s %12.3f\n", name, v)
}

func label(names []string, j int) string {
	if j < len(names) {
		return names[j]
	}
	return fmt.Sprintf("X%d", j)
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

func median(sorted []float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
