// Package gwr fits geographically weighted regressions and selects their
// kernel bandwidth.
package gwr

import (
	"math"
	"strings"

	"github.com/rotisserie/eris"
)

// Kernel is a spatial weighting function.
type Kernel string

// Supported kernels.
const (
	Gaussian    Kernel = "gaussian"
	Bisquare    Kernel = "bisquare"
	Exponential Kernel = "exponential"
)

// ParseKernel accepts a kernel name in any case.
func ParseKernel(s string) (Kernel, error) {
	switch k := Kernel(strings.ToLower(strings.TrimSpace(s))); k {
	case Gaussian, Bisquare, Exponential:
		return k, nil
	default:
		return "", eris.Errorf("gwr: unknown kernel %q", s)
	}
}

// weight evaluates the kernel at scaled distance z = d / bandwidth.
func (k Kernel) weight(z float64) float64 {
	switch k {
	case Gaussian:
		return math.Exp(-0.5 * z * z)
	case Exponential:
		return math.Exp(-z)
	default:
		if z >= 1 {
			return 0
		}
		u := 1 - z*z
		return u * u
	}
}

// Weights fills dst with the kernel weights of dist at the given bandwidth.
// Bisquare weights are zero at and beyond the bandwidth.
func (k Kernel) Weights(dst, dist []float64, bandwidth float64) {
	for i, d := range dist {
		dst[i] = k.weight(d / bandwidth)
	}
}

// Describe returns a label such as "Adaptive bisquare".
func Describe(k Kernel, fixed bool) string {
	if fixed {
		return "Fixed " + string(k)
	}
	return "Adaptive " + string(k)
}
