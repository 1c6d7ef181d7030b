package dust

import (
	"fmt"
	"math"

	"github.com/cwbudde/algo-sed/units"
)

var (
	frequencyDim   = units.Hertz.Dim
	temperatureDim = units.Kelvin.Dim
	columnDim      = units.PerSquareCentimeter.Dim
	perSteradian   = units.New(1, units.Steradian)
)

// Model evaluates the modified-blackbody emission for fixed [Constants].
type Model struct {
	c Constants
}

// NewModel validates c and returns a model bound to it.
func NewModel(c Constants) (*Model, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &Model{c: c}, nil
}

// Constants returns the calibration the model was built with.
func (m *Model) Constants() Constants { return m.c }

// Frequency converts a wavelength into a frequency, ν = c/λ.
func Frequency(wavelength units.Quantity) (units.Quantity, error) {
	if !wavelength.Is(units.Centimeter.Dim) {
		return units.Quantity{}, fmt.Errorf("dust: wavelength [%s]: %w", wavelength.Dim(), units.ErrUnitConsistency)
	}
	if !(wavelength.Base() > 0) {
		return units.Quantity{}, fmt.Errorf("%w: wavelength must be > 0", ErrInvalidParameter)
	}
	return units.SpeedOfLight.Div(wavelength), nil
}

// Opacity returns κ(ν) = κ0 (ν/ν0)^β.
func (m *Model) Opacity(nu units.Quantity, beta float64) (units.Quantity, error) {
	ratio, err := nu.Div(m.c.Nu0).Pow(beta)
	if err != nil {
		return units.Quantity{}, fmt.Errorf("dust: opacity: %w", err)
	}
	if _, err := ratio.Dimensionless(); err != nil {
		return units.Quantity{}, fmt.Errorf("dust: opacity: %w", err)
	}
	return m.c.Kappa0.Mul(ratio), nil
}

// OpticalDepth returns τ(ν) = N κ(ν) m_H / R_gdr. The product must reduce to
// a pure number.
func (m *Model) OpticalDepth(nu, ntot units.Quantity, beta float64) (float64, error) {
	kappa, err := m.Opacity(nu, beta)
	if err != nil {
		return 0, err
	}
	tau, err := ntot.Mul(kappa).Mul(m.c.HydrogenMass).Scale(1 / m.c.GasToDust).Dimensionless()
	if err != nil {
		return 0, fmt.Errorf("dust: optical depth: %w", err)
	}
	return tau, nil
}

// Planck returns the blackbody spectral radiance B_ν(T) per steradian.
func Planck(nu, temperature units.Quantity) (units.Quantity, error) {
	if !nu.Is(frequencyDim) {
		return units.Quantity{}, fmt.Errorf("dust: planck frequency [%s]: %w", nu.Dim(), units.ErrUnitConsistency)
	}
	if !temperature.Is(temperatureDim) {
		return units.Quantity{}, fmt.Errorf("dust: planck temperature [%s]: %w", temperature.Dim(), units.ErrUnitConsistency)
	}
	if !(temperature.Base() > 0) {
		return units.Quantity{}, fmt.Errorf("%w: temperature must be > 0: %g K", ErrInvalidParameter, temperature.Base())
	}

	hnu := units.Planck.Mul(nu)
	x, err := hnu.Div(units.Boltzmann.Mul(temperature)).Dimensionless()
	if err != nil {
		return units.Quantity{}, err
	}

	// 2hν³/c² / (e^x - 1); expm1 overflows to +Inf for large x, giving 0.
	c2 := units.SpeedOfLight.Mul(units.SpeedOfLight)
	numer := hnu.Mul(nu).Mul(nu).Scale(2).Div(c2)
	return numer.Scale(1 / math.Expm1(x)).Div(perSteradian), nil
}

// FluxDensity returns S(ν) = Ω B_ν(T) (1 - e^-τ) with the beam of the model.
// The attenuation factor is evaluated as -expm1(-τ), which is accurate for
// τ → 0 and saturates at 1 for large τ.
func (m *Model) FluxDensity(nu, temperature, ntot units.Quantity, beta float64) (units.Quantity, error) {
	if !ntot.Is(columnDim) {
		return units.Quantity{}, fmt.Errorf("dust: column density [%s]: %w", ntot.Dim(), units.ErrUnitConsistency)
	}
	if ntot.Base() < 0 || math.IsNaN(ntot.Base()) {
		return units.Quantity{}, fmt.Errorf("%w: column density must be >= 0", ErrInvalidParameter)
	}
	bnu, err := Planck(nu, temperature)
	if err != nil {
		return units.Quantity{}, err
	}
	tau, err := m.OpticalDepth(nu, ntot, beta)
	if err != nil {
		return units.Quantity{}, err
	}
	return m.c.BeamSolidAngle.Mul(bnu).Scale(-math.Expm1(-tau)), nil
}

// FluxJy is FluxDensity with plain float arguments: wavelength in µm,
// temperature in K and column in cm^-2. It returns the flux in Jy.
func (m *Model) FluxJy(wavelengthUm, temperatureK, columnCm2, beta float64) (float64, error) {
	nu, err := Frequency(units.New(wavelengthUm, units.Micrometer))
	if err != nil {
		return 0, err
	}
	s, err := m.FluxDensity(nu, units.New(temperatureK, units.Kelvin), units.New(columnCm2, units.PerSquareCentimeter), beta)
	if err != nil {
		return 0, err
	}
	return s.In(units.Jansky)
}
