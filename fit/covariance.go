package fit

import (
	"math"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
)

// standardErrors returns sqrt(diag((JᵀJ)^-1)) of the weighted residual
// function at x. With residuals already divided by σ this is the absolute
// parameter covariance.
func standardErrors(f func(dst, x []float64), x []float64, m int, step float64) []float64 {
	n := len(x)
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}

	jac := mat.NewDense(m, n, nil)
	fd.Jacobian(jac, f, x, &fd.JacobianSettings{Formula: fd.Central, Step: step})

	var jtj mat.SymDense
	jtj.SymOuterK(1, jac.T())
	var chol mat.Cholesky
	if ok := chol.Factorize(&jtj); !ok {
		return out
	}
	var cov mat.SymDense
	if err := chol.InverseTo(&cov); err != nil {
		return out
	}
	for i := range n {
		if v := cov.At(i, i); v >= 0 {
			out[i] = math.Sqrt(v)
		}
	}
	return out
}
