package lsq

import (
	"math"

	"github.com/cwbudde/algo-vecmath"
	"github.com/maorshutman/lm"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
)

// transformedGradSlack widens the gradient test for SolveTransformed, whose
// backend stops on its own, looser criteria.
const transformedGradSlack = 1e4

// boxMap is the change of variables x = φ(u) that maps the real line onto
// one parameter's interval: a sine for a finite box, a square-root hyperbola
// for a half-open one and the identity when unbounded.
type boxMap struct {
	lo, hi float64
}

func (b boxMap) toBox(u float64) float64 {
	loInf, hiInf := math.IsInf(b.lo, -1), math.IsInf(b.hi, 1)
	switch {
	case loInf && hiInf:
		return u
	case hiInf:
		return b.lo - 1 + math.Sqrt(u*u+1)
	case loInf:
		return b.hi + 1 - math.Sqrt(u*u+1)
	default:
		return b.lo + (b.hi-b.lo)*(math.Sin(u)+1)/2
	}
}

// fromBox inverts toBox. Points on a finite bound are pulled inside by a
// small margin so the transformed derivative does not vanish at the start.
func (b boxMap) fromBox(x float64) float64 {
	loInf, hiInf := math.IsInf(b.lo, -1), math.IsInf(b.hi, 1)
	switch {
	case loInf && hiInf:
		return x
	case hiInf:
		d := math.Max(x-b.lo+1, 1+1e-6)
		return math.Sqrt(d*d - 1)
	case loInf:
		d := math.Max(b.hi-x+1, 1+1e-6)
		return math.Sqrt(d*d - 1)
	default:
		s := 2*(x-b.lo)/(b.hi-b.lo) - 1
		s = math.Max(-1+1e-9, math.Min(1-1e-9, s))
		return math.Asin(s)
	}
}

// SolveTransformed minimises Σ r_i(x)² subject to the bounds of p by solving
// the unconstrained problem in u with x = φ(u). The backend does not report
// its termination reason, so convergence is judged afterwards from the
// projected gradient at the returned point.
func SolveTransformed(p Problem, s Settings) (Result, error) {
	if err := p.validate(); err != nil {
		return Result{}, err
	}
	s = s.withDefaults()

	n, m := len(p.X0), p.M
	fn := &counter{f: p.Func}
	maps := make([]boxMap, n)
	u0 := make([]float64, n)
	for i := range n {
		maps[i] = boxMap{lo: p.Lower[i], hi: p.Upper[i]}
		u0[i] = maps[i].fromBox(p.X0[i])
	}

	toBox := func(dst, u []float64) {
		for i := range u {
			dst[i] = maps[i].toBox(u[i])
		}
	}
	xu := make([]float64, n)
	residuals := func(dst, u []float64) {
		toBox(xu, u)
		fn.eval(dst, xu)
	}

	jac := lm.NumJac{Func: residuals}
	problem := lm.LMProblem{
		Dim:        n,
		Size:       m,
		Func:       residuals,
		Jac:        jac.Jac,
		InitParams: u0,
		Tau:        s.InitialDamping,
		Eps1:       s.GradTol,
		Eps2:       s.StepTol,
	}
	out, err := lm.LM(problem, &lm.Settings{Iterations: s.MaxIterations, ObjectiveTol: s.CostTol})

	res := Result{Status: BackendStopped}
	x := make([]float64, n)
	if err != nil || out == nil || len(out.X) != n {
		toBox(x, u0)
	} else {
		toBox(x, out.X)
	}
	project(x, p.Lower, p.Upper)

	r := make([]float64, m)
	fn.eval(r, x)
	res.X = x
	res.Cost = vecmath.DotProduct(r, r)

	if err == nil && projectedGradientNorm(p, fn, x, r, s) <= transformedGradSlack*s.GradTol*math.Max(1, res.Cost) {
		res.Status = GradientConverged
	}
	res.Evaluations = fn.n
	return res, nil
}

// projectedGradientNorm returns the infinity norm of Jᵀr with components
// pointing out of the box at an active bound removed.
func projectedGradientNorm(p Problem, fn *counter, x, r []float64, s Settings) float64 {
	n, m := len(x), len(r)
	jac := mat.NewDense(m, n, nil)
	fd.Jacobian(jac, fn.eval, x, &fd.JacobianSettings{Formula: fd.Central, Step: s.JacobianStep})
	var g mat.VecDense
	g.MulVec(jac.T(), mat.NewVecDense(m, r))
	pg := make([]float64, n)
	for i := range n {
		gi := g.AtVec(i)
		if (x[i] <= p.Lower[i] && gi > 0) || (x[i] >= p.Upper[i] && gi < 0) {
			continue
		}
		pg[i] = gi
	}
	return vecmath.MaxAbs(pg)
}
