// Package units provides dimensioned physical quantities for the SED
// pipeline.
//
// A [Quantity] stores its value in CGS base units (centimetre, gram, second,
// kelvin) plus the radian, together with the integer exponent of each base.
// The dimension algebra and the physical constants come from
// gonum.org/v1/gonum/unit; only the CGS scaling is local. Arithmetic combines
// exponents; conversions into a [Unit] check that the
// dimensions agree and fail with [ErrUnitConsistency] otherwise. Nothing is
// coerced silently: a value leaves the package only through [Quantity.In] or
// [Quantity.Dimensionless].
//
// # Usage
//
//	nu := units.New(230, units.Gigahertz)
//	lam := units.SpeedOfLight.Div(nu)
//	um, err := lam.In(units.Micrometer)
//
// Unit strings such as "0.8 cm2/g", "4.26e-8 sr" or "MJy/sr" are accepted by
// [Parse] and [ParseUnit].
package units
