// Package dust implements the modified-blackbody dust emission model.
//
// For a frequency ν, dust temperature T, total hydrogen column N and
// emissivity index β:
//
//	κ(ν) = κ0 (ν/ν0)^β
//	τ(ν) = N κ(ν) m_H / R_gdr
//	S(ν) = Ω B_ν(T) (1 - e^-τ)
//
// where B_ν is the Planck spectral radiance and Ω the beam solid angle. All
// inputs and outputs are [units.Quantity] values; the calibration constants
// live in an immutable [Constants] value passed to [NewModel], so callers can
// evaluate alternative physical regimes side by side.
//
// # Usage
//
//	m, err := dust.NewModel(dust.DefaultConstants())
//	nu, _ := dust.Frequency(units.New(250, units.Micrometer))
//	s, err := m.FluxDensity(nu, units.New(20, units.Kelvin),
//		units.New(3e22, units.PerSquareCentimeter), 1.96)
package dust
