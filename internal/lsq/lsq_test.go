package lsq

import (
	"errors"
	"math"
	"testing"
)

func rosenbrock(dst, x []float64) {
	dst[0] = 10 * (x[1] - x[0]*x[0])
	dst[1] = 1 - x[0]
}

func unbounded(n int) (lo, hi []float64) {
	lo, hi = make([]float64, n), make([]float64, n)
	for i := range n {
		lo[i], hi[i] = math.Inf(-1), math.Inf(1)
	}
	return lo, hi
}

func expDecayProblem() (Problem, [2]float64) {
	const a, b = 2.5, 0.3
	t := make([]float64, 10)
	y := make([]float64, 10)
	for i := range t {
		t[i] = float64(i)
		y[i] = a * math.Exp(-b*t[i])
	}
	return Problem{
		Func: func(dst, x []float64) {
			for i := range t {
				dst[i] = y[i] - x[0]*math.Exp(-x[1]*t[i])
			}
		},
		M:     len(t),
		X0:    []float64{1, 1},
		Lower: []float64{0, 0},
		Upper: []float64{10, 5},
	}, [2]float64{a, b}
}

func TestSolveRosenbrock(t *testing.T) {
	lo, hi := unbounded(2)
	res, err := Solve(Problem{Func: rosenbrock, M: 2, X0: []float64{-1.2, 1}, Lower: lo, Upper: hi}, DefaultSettings())
	if err != nil {
		t.Fatal(err)
	}
	if !res.Converged() {
		t.Fatalf("not converged: %v after %d iterations", res.Status, res.Iterations)
	}
	if math.Abs(res.X[0]-1) > 1e-6 || math.Abs(res.X[1]-1) > 1e-6 {
		t.Fatalf("x = %v, want (1, 1)", res.X)
	}
	if res.Cost > 1e-12 {
		t.Fatalf("cost = %v", res.Cost)
	}
	if res.Evaluations < res.Iterations {
		t.Fatalf("evaluations %d < iterations %d", res.Evaluations, res.Iterations)
	}
}

func TestSolveExponentialDecay(t *testing.T) {
	p, want := expDecayProblem()
	res, err := Solve(p, DefaultSettings())
	if err != nil {
		t.Fatal(err)
	}
	if !res.Converged() {
		t.Fatalf("not converged: %v", res.Status)
	}
	for i := range want {
		if math.Abs(res.X[i]-want[i]) > 1e-6 {
			t.Fatalf("x = %v, want %v", res.X, want)
		}
	}
}

func TestSolveActiveBound(t *testing.T) {
	p := Problem{
		Func:  func(dst, x []float64) { dst[0] = x[0] - 5; dst[1] = x[1] + 1 },
		M:     2,
		X0:    []float64{0, 0},
		Lower: []float64{-10, 0},
		Upper: []float64{3, 10},
	}
	res, err := Solve(p, DefaultSettings())
	if err != nil {
		t.Fatal(err)
	}
	if !res.Converged() {
		t.Fatalf("not converged: %v", res.Status)
	}
	if res.X[0] != 3 || res.X[1] != 0 {
		t.Fatalf("x = %v, want (3, 0)", res.X)
	}
	if math.Abs(res.Cost-5) > 1e-12 {
		t.Fatalf("cost = %v, want 5", res.Cost)
	}
}

func TestSolveStartOutsideBoxIsProjected(t *testing.T) {
	p, _ := expDecayProblem()
	p.X0 = []float64{50, -3}
	res, err := Solve(p, DefaultSettings())
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range res.X {
		if v < p.Lower[i] || v > p.Upper[i] {
			t.Fatalf("x[%d] = %v outside [%v, %v]", i, v, p.Lower[i], p.Upper[i])
		}
	}
}

func TestSolveIterationLimit(t *testing.T) {
	lo, hi := unbounded(2)
	s := DefaultSettings()
	s.MaxIterations = 1
	res, err := Solve(Problem{Func: rosenbrock, M: 2, X0: []float64{-1.2, 1}, Lower: lo, Upper: hi}, s)
	if err != nil {
		t.Fatal(err)
	}
	if res.Converged() || res.Status != IterationLimit || res.Iterations != 1 {
		t.Fatalf("status %v after %d iterations", res.Status, res.Iterations)
	}
}

func TestInvalidProblem(t *testing.T) {
	f := func(dst, x []float64) {}
	tests := map[string]Problem{
		"nil func":     {M: 1, X0: []float64{0}, Lower: []float64{-1}, Upper: []float64{1}},
		"no params":    {Func: f, M: 1},
		"no residuals": {Func: f, X0: []float64{0}, Lower: []float64{-1}, Upper: []float64{1}},
		"bounds len":   {Func: f, M: 1, X0: []float64{0, 0}, Lower: []float64{-1}, Upper: []float64{1}},
		"empty box":    {Func: f, M: 1, X0: []float64{0}, Lower: []float64{1}, Upper: []float64{1}},
		"nan start":    {Func: f, M: 1, X0: []float64{math.NaN()}, Lower: []float64{-1}, Upper: []float64{1}},
	}
	for name, p := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Solve(p, Settings{}); !errors.Is(err, ErrInvalidProblem) {
				t.Fatalf("Solve: err = %v", err)
			}
			if _, err := SolveTransformed(p, Settings{}); !errors.Is(err, ErrInvalidProblem) {
				t.Fatalf("SolveTransformed: err = %v", err)
			}
		})
	}
}

func TestBoxMapRoundTrip(t *testing.T) {
	maps := []boxMap{
		{lo: 3, hi: 150},
		{lo: 0, hi: math.Inf(1)},
		{lo: math.Inf(-1), hi: 4},
		{lo: math.Inf(-1), hi: math.Inf(1)},
	}
	for _, b := range maps {
		for _, x := range []float64{3.5, 20, 100} {
			if x < b.lo || x > b.hi {
				continue
			}
			if got := b.toBox(b.fromBox(x)); math.Abs(got-x) > 1e-9*math.Max(1, x) {
				t.Errorf("%+v: %v -> %v", b, x, got)
			}
		}
		for _, u := range []float64{-1e3, -2, 0, 2, 1e3} {
			if x := b.toBox(u); x < b.lo || x > b.hi {
				t.Errorf("%+v: toBox(%v) = %v outside box", b, u, x)
			}
		}
	}
}

func TestSolveTransformedExponentialDecay(t *testing.T) {
	p, want := expDecayProblem()
	res, err := SolveTransformed(p, DefaultSettings())
	if err != nil {
		t.Fatal(err)
	}
	for i := range want {
		if math.Abs(res.X[i]-want[i]) > 1e-3*want[i] {
			t.Fatalf("x = %v, want %v (status %v)", res.X, want, res.Status)
		}
	}
	for i, v := range res.X {
		if v < p.Lower[i] || v > p.Upper[i] {
			t.Fatalf("x[%d] = %v outside box", i, v)
		}
	}
}

func TestStatusString(t *testing.T) {
	if got := IterationLimit.String(); got != "iteration limit reached" {
		t.Fatalf("String() = %q", got)
	}
	if got := Status(42).String(); got != "Status(42)" {
		t.Fatalf("String() = %q", got)
	}
}
