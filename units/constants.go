package units

import "gonum.org/v1/gonum/unit/constant"

// Physical constants (CODATA 2018), in CGS base units.
var (
	SpeedOfLight = fromSI(constant.LightSpeedInVacuum)
	Planck       = fromSI(constant.Planck)
	Boltzmann    = fromSI(constant.Boltzmann)

	// gonum only carries the unified atomic mass.
	ProtonMass = quantity(1.67262192369e-24, Dim{Mass: 1})
)
