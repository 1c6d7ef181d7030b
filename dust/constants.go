package dust

import (
	"errors"
	"fmt"
	"math"

	"github.com/cwbudde/algo-sed/units"
)

// Errors returned by the dust model.
var (
	ErrInvalidConstants = errors.New("dust: invalid constants")
	ErrInvalidParameter = errors.New("dust: invalid model parameter")
)

// Constants holds the calibration of the dust model and of the extraction
// that feeds it. A Constants value is never mutated after construction.
type Constants struct {
	BeamSolidAngle units.Quantity // Ω, solid angle
	GasToDust      float64        // R_gdr, mass ratio
	Kappa0         units.Quantity // κ0 at Nu0, area per mass
	Nu0            units.Quantity // reference frequency
	BetaFixed      float64        // β used by the fixed-β fit
	AtomicColumn   units.Quantity // N(H I), per area
	FracError      float64        // fractional flux uncertainty
	HydrogenMass   units.Quantity // m_H
}

// DefaultConstants returns the LMC calibration: 40" HPBW beam, R_gdr = 300,
// κ(230 GHz) = 0.8 cm^2/g, β = 1.96 and N(H I) = 2.6e21 cm^-2.
func DefaultConstants() Constants {
	return Constants{
		BeamSolidAngle: units.New(4.26e-8, units.Steradian),
		GasToDust:      300,
		Kappa0:         units.New(0.8, units.SquareCentimeterPerGram),
		Nu0:            units.New(230, units.Gigahertz),
		BetaFixed:      1.96,
		AtomicColumn:   units.New(2.6e21, units.PerSquareCentimeter),
		FracError:      0.10,
		HydrogenMass:   units.ProtonMass,
	}
}

// Option mutates a Constants value during construction.
type Option func(*Constants)

// WithBeamSolidAngle sets Ω.
func WithBeamSolidAngle(omega units.Quantity) Option {
	return func(c *Constants) { c.BeamSolidAngle = omega }
}

// WithGasToDust sets the gas-to-dust mass ratio.
func WithGasToDust(ratio float64) Option {
	return func(c *Constants) { c.GasToDust = ratio }
}

// WithOpacity sets the reference opacity κ0 at frequency ν0.
func WithOpacity(kappa0, nu0 units.Quantity) Option {
	return func(c *Constants) {
		c.Kappa0 = kappa0
		c.Nu0 = nu0
	}
}

// WithBetaFixed sets the emissivity index used by fixed-β fits.
func WithBetaFixed(beta float64) Option {
	return func(c *Constants) { c.BetaFixed = beta }
}

// WithAtomicColumn sets the atomic hydrogen column subtracted from N_tot.
func WithAtomicColumn(n units.Quantity) Option {
	return func(c *Constants) { c.AtomicColumn = n }
}

// WithFracError sets the fractional flux uncertainty.
func WithFracError(f float64) Option {
	return func(c *Constants) { c.FracError = f }
}

// ApplyOptions applies zero or more options to [DefaultConstants].
func ApplyOptions(opts ...Option) Constants {
	c := DefaultConstants()
	for _, opt := range opts {
		if opt != nil {
			opt(&c)
		}
	}
	return c
}

// Validate checks the dimension of every dimensioned field and the range of
// the scalar ones.
func (c Constants) Validate() error {
	dims := []struct {
		name string
		q    units.Quantity
		want units.Unit
	}{
		{"beam solid angle", c.BeamSolidAngle, units.Steradian},
		{"kappa0", c.Kappa0, units.SquareCentimeterPerGram},
		{"nu0", c.Nu0, units.Hertz},
		{"atomic column", c.AtomicColumn, units.PerSquareCentimeter},
		{"hydrogen mass", c.HydrogenMass, units.Gram},
	}
	for _, d := range dims {
		v, err := d.q.In(d.want)
		if err != nil {
			return fmt.Errorf("dust: %s: %w", d.name, err)
		}
		if d.name != "atomic column" && !(v > 0) {
			return fmt.Errorf("%w: %s must be > 0: %g", ErrInvalidConstants, d.name, v)
		}
	}
	if c.AtomicColumn.Base() < 0 {
		return fmt.Errorf("%w: atomic column must be >= 0", ErrInvalidConstants)
	}
	if !(c.GasToDust > 0) || math.IsInf(c.GasToDust, 0) {
		return fmt.Errorf("%w: gas-to-dust ratio must be > 0: %g", ErrInvalidConstants, c.GasToDust)
	}
	if !(c.FracError > 0) || math.IsInf(c.FracError, 0) {
		return fmt.Errorf("%w: fractional error must be > 0: %g", ErrInvalidConstants, c.FracError)
	}
	if math.IsNaN(c.BetaFixed) || math.IsInf(c.BetaFixed, 0) {
		return fmt.Errorf("%w: fixed beta must be finite", ErrInvalidConstants)
	}
	return nil
}

// MolecularColumn returns N(H2) = max(0, (N_tot - N_atomic)/2).
func (c Constants) MolecularColumn(ntot units.Quantity) (units.Quantity, error) {
	diff, err := ntot.Sub(c.AtomicColumn)
	if err != nil {
		return units.Quantity{}, fmt.Errorf("dust: molecular column: %w", err)
	}
	if diff.Base() <= 0 {
		return diff.Zero(), nil
	}
	return diff.Scale(0.5), nil
}
