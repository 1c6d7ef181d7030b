package fit

import (
	"fmt"
	"slices"
	"strings"

	"github.com/cwbudde/algo-sed/dust"
)

// Parameter bounds shared by both modes.
const (
	MinTemperature = 3.0
	MaxTemperature = 150.0
	MinLogColumn   = 20.0
	MaxLogColumn   = 25.0
	MinBeta        = -1.0
	MaxBeta        = 4.0
)

// Params are the physical model parameters of a fit.
type Params struct {
	Temperature float64 // K
	LogColumn   float64 // log10 of N_tot in cm^-2
	Beta        float64
}

// Mode is a fit parameterization: the free parameters, their starting
// point and bounds, and the mapping from the solver vector to [Params].
type Mode struct {
	name    string
	params  []string
	initial []float64
	lower   []float64
	upper   []float64
	unpack  func(p []float64) Params
}

// FixedBeta holds β at beta and fits (T, log10 N) from (20 K, 22.8).
func FixedBeta(beta float64) Mode {
	return Mode{
		name:    "fixed",
		params:  []string{"T", "log10N"},
		initial: []float64{20, 22.8},
		lower:   []float64{MinTemperature, MinLogColumn},
		upper:   []float64{MaxTemperature, MaxLogColumn},
		unpack: func(p []float64) Params {
			return Params{Temperature: p[0], LogColumn: p[1], Beta: beta}
		},
	}
}

// Free fits (T, log10 N, β) from (30 K, 22.7, 1.2).
func Free() Mode {
	return Mode{
		name:    "free",
		params:  []string{"T", "log10N", "beta"},
		initial: []float64{30, 22.7, 1.2},
		lower:   []float64{MinTemperature, MinLogColumn, MinBeta},
		upper:   []float64{MaxTemperature, MaxLogColumn, MaxBeta},
		unpack: func(p []float64) Params {
			return Params{Temperature: p[0], LogColumn: p[1], Beta: p[2]}
		},
	}
}

// ParseMode maps "fixed" or "free" to a [Mode]. The fixed mode holds β at
// c.BetaFixed.
func ParseMode(s string, c dust.Constants) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fixed":
		return FixedBeta(c.BetaFixed), nil
	case "free":
		return Free(), nil
	default:
		return Mode{}, fmt.Errorf("%w: %q (want fixed or free)", ErrInvalidMode, s)
	}
}

// Name returns "fixed" or "free".
func (m Mode) Name() string { return m.name }

// ParamNames returns the names of the solver parameters.
func (m Mode) ParamNames() []string { return slices.Clone(m.params) }

// Initial returns the starting point.
func (m Mode) Initial() []float64 { return slices.Clone(m.initial) }

// Bounds returns copies of the lower and upper bounds.
func (m Mode) Bounds() (lower, upper []float64) {
	return slices.Clone(m.lower), slices.Clone(m.upper)
}

// Unpack maps a solver vector to model parameters.
func (m Mode) Unpack(p []float64) Params { return m.unpack(p) }

// WithInitial returns a copy of m starting from p0, e.g. to retry a fit that
// did not converge.
func (m Mode) WithInitial(p0 []float64) (Mode, error) {
	if len(p0) != len(m.initial) {
		return Mode{}, fmt.Errorf("%w: %s mode takes %d parameters, got %d", ErrInvalidMode, m.name, len(m.initial), len(p0))
	}
	m.initial = slices.Clone(p0)
	return m, nil
}

func (m Mode) valid() bool { return m.unpack != nil && len(m.initial) > 0 }
