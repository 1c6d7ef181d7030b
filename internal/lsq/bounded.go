package lsq

import (
	"math"
	"slices"

	"github.com/cwbudde/algo-vecmath"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
)

const maxDamping = 1e16

// Solve minimises Σ r_i(x)² subject to the bounds of p. Failing to converge
// is reported through Result.Status, not as an error.
func Solve(p Problem, s Settings) (Result, error) {
	if err := p.validate(); err != nil {
		return Result{}, err
	}
	s = s.withDefaults()

	n, m := len(p.X0), p.M
	fn := &counter{f: p.Func}

	x := slices.Clone(p.X0)
	project(x, p.Lower, p.Upper)

	r := make([]float64, m)
	fn.eval(r, x)
	cost := vecmath.DotProduct(r, r)

	var (
		jac    = mat.NewDense(m, n, nil)
		jtj    mat.SymDense
		grad   = mat.NewVecDense(n, nil)
		rhs    = mat.NewVecDense(n, nil)
		delta  = mat.NewVecDense(n, nil)
		h      = mat.NewSymDense(n, nil)
		chol   mat.Cholesky
		active = make([]bool, n)
		pg     = make([]float64, n)
		xn     = make([]float64, n)
		step   = make([]float64, n)
		rn     = make([]float64, m)
		jset   = &fd.JacobianSettings{Formula: fd.Central, Step: s.JacobianStep}
	)

	lambda := s.InitialDamping
	res := Result{Status: IterationLimit}

	for iter := 1; iter <= s.MaxIterations; iter++ {
		res.Iterations = iter

		if math.IsNaN(cost) || math.IsInf(cost, 0) {
			res.Status = DampingStalled
			break
		}

		fd.Jacobian(jac, fn.eval, x, jset)
		jtj.SymOuterK(1, jac.T())
		grad.MulVec(jac.T(), mat.NewVecDense(m, r))

		// A variable sitting on a bound with the descent direction pointing
		// outwards is frozen for this iteration.
		g := grad.RawVector().Data
		for i := range n {
			atLower := x[i] <= p.Lower[i] && g[i] > 0
			atUpper := x[i] >= p.Upper[i] && g[i] < 0
			active[i] = atLower || atUpper
			pg[i] = g[i]
			if active[i] {
				pg[i] = 0
			}
		}
		if vecmath.MaxAbs(pg) <= s.GradTol*math.Max(1, cost) {
			res.Status = GradientConverged
			break
		}
		vecmath.ScaleBlock(rhs.RawVector().Data, pg, -1)

		accepted := false
		for !accepted {
			if lambda > maxDamping {
				res.Status = DampingStalled
				break
			}
			for i := range n {
				for j := i; j < n; j++ {
					v := jtj.At(i, j)
					if active[i] || active[j] {
						v = 0
					}
					if i == j {
						if active[i] {
							v = 1
						} else {
							v += lambda * math.Max(jtj.At(i, i), 1e-12)
						}
					}
					h.SetSym(i, j, v)
				}
			}
			if ok := chol.Factorize(h); !ok {
				lambda *= 10
				continue
			}
			if err := chol.SolveVecTo(delta, rhs); err != nil {
				lambda *= 10
				continue
			}

			vecmath.AddBlock(xn, x, delta.RawVector().Data)
			project(xn, p.Lower, p.Upper)
			for i := range n {
				step[i] = xn[i] - x[i]
			}
			if math.Sqrt(vecmath.DotProduct(step, step)) <= s.StepTol*(math.Sqrt(vecmath.DotProduct(x, x))+s.StepTol) {
				res.Status = StepConverged
				break
			}

			fn.eval(rn, xn)
			costN := vecmath.DotProduct(rn, rn)
			if costN < cost {
				accepted = true
				reduction := (cost - costN) / cost
				copy(x, xn)
				copy(r, rn)
				cost = costN
				lambda = math.Max(lambda/10, 1e-12)
				if reduction < s.CostTol {
					res.Status = CostConverged
				}
			} else {
				lambda *= 10
			}
		}
		if res.Status != IterationLimit {
			break
		}
	}

	res.X = x
	res.Cost = cost
	res.Evaluations = fn.n
	return res, nil
}
