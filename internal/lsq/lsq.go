// Package lsq solves small box-constrained nonlinear least-squares problems.
//
// [Solve] is a projected Levenberg-Marquardt method: each iteration forms
// the Gauss-Newton normal equations from a central-difference Jacobian,
// damps them with λ·diag(JᵀJ), freezes variables held at an active bound and
// projects the trial point back into the box. [SolveTransformed] maps the box
// onto an unbounded space and hands the problem to an unconstrained
// Levenberg-Marquardt implementation.
package lsq

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidProblem is returned for inconsistent problem definitions.
var ErrInvalidProblem = errors.New("lsq: invalid problem")

// Problem defines residuals r(x) of length M over parameters bounded by
// Lower ≤ x ≤ Upper. Infinite bounds are allowed.
type Problem struct {
	Func  func(dst, x []float64)
	M     int
	X0    []float64
	Lower []float64
	Upper []float64
}

// Settings controls termination.
type Settings struct {
	MaxIterations int
	// GradTol bounds the infinity norm of the projected gradient, relative
	// to max(1, cost).
	GradTol float64
	// CostTol bounds the relative cost reduction of an accepted step.
	CostTol float64
	// StepTol bounds the step length relative to |x|.
	StepTol float64
	// InitialDamping is the starting λ.
	InitialDamping float64
	// JacobianStep is the central-difference step.
	JacobianStep float64
}

// DefaultSettings returns the settings used by the fitter.
func DefaultSettings() Settings {
	return Settings{
		MaxIterations:  200,
		GradTol:        1e-8,
		CostTol:        1e-12,
		StepTol:        1e-12,
		InitialDamping: 1e-3,
		JacobianStep:   1e-6,
	}
}

func (s Settings) withDefaults() Settings {
	d := DefaultSettings()
	if s.MaxIterations <= 0 {
		s.MaxIterations = d.MaxIterations
	}
	if s.GradTol <= 0 {
		s.GradTol = d.GradTol
	}
	if s.CostTol <= 0 {
		s.CostTol = d.CostTol
	}
	if s.StepTol <= 0 {
		s.StepTol = d.StepTol
	}
	if s.InitialDamping <= 0 {
		s.InitialDamping = d.InitialDamping
	}
	if s.JacobianStep <= 0 {
		s.JacobianStep = d.JacobianStep
	}
	return s
}

// Status reports why a solver stopped.
type Status int

// Termination reasons.
const (
	GradientConverged Status = iota
	CostConverged
	StepConverged
	IterationLimit
	DampingStalled
	BackendStopped
)

func (s Status) String() string {
	switch s {
	case GradientConverged:
		return "gradient tolerance reached"
	case CostConverged:
		return "cost tolerance reached"
	case StepConverged:
		return "step tolerance reached"
	case IterationLimit:
		return "iteration limit reached"
	case DampingStalled:
		return "damping stalled"
	case BackendStopped:
		return "backend stopped"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Result is the solver outcome.
type Result struct {
	X           []float64
	Cost        float64 // Σ r_i² at X
	Status      Status
	Iterations  int
	Evaluations int
}

// Converged reports whether a tolerance was met.
func (r Result) Converged() bool {
	return r.Status == GradientConverged || r.Status == CostConverged || r.Status == StepConverged
}

func (p Problem) validate() error {
	n := len(p.X0)
	switch {
	case p.Func == nil:
		return fmt.Errorf("%w: nil residual function", ErrInvalidProblem)
	case n == 0:
		return fmt.Errorf("%w: no parameters", ErrInvalidProblem)
	case p.M <= 0:
		return fmt.Errorf("%w: no residuals", ErrInvalidProblem)
	case len(p.Lower) != n || len(p.Upper) != n:
		return fmt.Errorf("%w: %d parameters but %d lower and %d upper bounds", ErrInvalidProblem, n, len(p.Lower), len(p.Upper))
	}
	for i := range n {
		if math.IsNaN(p.X0[i]) || math.IsInf(p.X0[i], 0) {
			return fmt.Errorf("%w: non-finite initial value x[%d]", ErrInvalidProblem, i)
		}
		if math.IsNaN(p.Lower[i]) || math.IsNaN(p.Upper[i]) || !(p.Lower[i] < p.Upper[i]) {
			return fmt.Errorf("%w: empty interval [%g, %g] for x[%d]", ErrInvalidProblem, p.Lower[i], p.Upper[i], i)
		}
	}
	return nil
}

// project clips x into the box in place.
func project(x, lo, hi []float64) {
	for i := range x {
		x[i] = math.Max(lo[i], math.Min(hi[i], x[i]))
	}
}

// counter wraps the residual function and counts evaluations.
type counter struct {
	f func(dst, x []float64)
	n int
}

func (c *counter) eval(dst, x []float64) {
	c.n++
	c.f(dst, x)
}
