package lsq

import "testing"

func BenchmarkSolveExponentialDecay(b *testing.B) {
	p, _ := expDecayProblem()
	s := DefaultSettings()
	b.ReportAllocs()
	for b.Loop() {
		if _, err := Solve(p, s); err != nil {
			b.Fatal(err)
		}
	}
}
