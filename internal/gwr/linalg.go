package gwr

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// epsilon is the float64 machine epsilon.
var epsilon = math.Nextafter(1, 2) - 1

// pseudoInverse returns the Moore-Penrose inverse of a and its numerical
// rank. Singular values at or below max(s) * max(rows, cols) * eps count as
// zero. ok is false when the SVD does not converge.
func pseudoInverse(a mat.Matrix) (inv *mat.Dense, rank int, ok bool) {
	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDThin) {
		return nil, 0, false
	}
	vals := svd.Values(nil)
	r, c := a.Dims()
	tol := vals[0] * float64(max(r, c)) * epsilon

	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	vr, _ := v.Dims()
	for j, s := range vals {
		scale := 0.0
		if s > tol {
			scale = 1 / s
			rank++
		}
		for i := range vr {
			v.Set(i, j, v.At(i, j)*scale)
		}
	}

	inv = mat.NewDense(c, r, nil)
	inv.Mul(&v, u.T())
	return inv, rank, true
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
