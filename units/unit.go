package units

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
)

// Unit is a named scale factor relative to the CGS base of its dimension.
type Unit struct {
	Symbol string
	Scale  float64
	Dim    Dim
}

const arcsecRad = math.Pi / 648000

// Units used by the SED pipeline.
var (
	One = Unit{Symbol: "", Scale: 1}

	Centimeter = Unit{Symbol: "cm", Scale: 1, Dim: Dim{Length: 1}}
	Meter      = Unit{Symbol: "m", Scale: 100, Dim: Dim{Length: 1}}
	Millimeter = Unit{Symbol: "mm", Scale: 0.1, Dim: Dim{Length: 1}}
	Micrometer = Unit{Symbol: "um", Scale: 1e-4, Dim: Dim{Length: 1}}

	Gram     = Unit{Symbol: "g", Scale: 1, Dim: Dim{Mass: 1}}
	Kilogram = Unit{Symbol: "kg", Scale: 1000, Dim: Dim{Mass: 1}}

	Second    = Unit{Symbol: "s", Scale: 1, Dim: Dim{Time: 1}}
	Hertz     = Unit{Symbol: "Hz", Scale: 1, Dim: Dim{Time: -1}}
	Gigahertz = Unit{Symbol: "GHz", Scale: 1e9, Dim: Dim{Time: -1}}

	Kelvin = Unit{Symbol: "K", Scale: 1, Dim: Dim{Temperature: 1}}

	Radian    = Unit{Symbol: "rad", Scale: 1, Dim: Dim{Angle: 1}}
	Degree    = Unit{Symbol: "deg", Scale: math.Pi / 180, Dim: Dim{Angle: 1}}
	Arcsecond = Unit{Symbol: "arcsec", Scale: arcsecRad, Dim: Dim{Angle: 1}}
	Steradian = Unit{Symbol: "sr", Scale: 1, Dim: Dim{Angle: 2}}

	Erg = Unit{Symbol: "erg", Scale: 1, Dim: Dim{Length: 2, Mass: 1, Time: -2}}

	// Jansky is 1e-23 erg s^-1 cm^-2 Hz^-1, i.e. g s^-2 in CGS base.
	Jansky      = Unit{Symbol: "Jy", Scale: 1e-23, Dim: Dim{Mass: 1, Time: -2}}
	MilliJansky = Unit{Symbol: "mJy", Scale: 1e-26, Dim: Dim{Mass: 1, Time: -2}}
	MegaJansky  = Unit{Symbol: "MJy", Scale: 1e-17, Dim: Dim{Mass: 1, Time: -2}}

	JanskyPerSteradian      = Jansky.Per(Steradian)
	MegaJanskyPerSteradian  = MegaJansky.Per(Steradian)
	PerSquareCentimeter     = Centimeter.Pow(-2)
	SquareCentimeterPerGram = Centimeter.Pow(2).Per(Gram)
	CentimeterPerSecond     = Centimeter.Per(Second)
)

// Per returns the unit u/o.
func (u Unit) Per(o Unit) Unit {
	return Unit{Symbol: u.Symbol + "/" + o.Symbol, Scale: u.Scale / o.Scale, Dim: u.Dim.Div(o.Dim)}
}

// Times returns the unit u*o.
func (u Unit) Times(o Unit) Unit {
	return Unit{Symbol: u.Symbol + " " + o.Symbol, Scale: u.Scale * o.Scale, Dim: u.Dim.Mul(o.Dim)}
}

// Pow returns the unit raised to an integer power.
func (u Unit) Pow(n int) Unit {
	return Unit{Symbol: fmt.Sprintf("%s%d", u.Symbol, n), Scale: math.Pow(u.Scale, float64(n)), Dim: u.Dim.Pow(n)}
}

var symbols = map[string]Unit{
	"cm":     Centimeter,
	"m":      Meter,
	"mm":     Millimeter,
	"um":     Micrometer,
	"µm":     Micrometer,
	"micron": Micrometer,
	"g":      Gram,
	"kg":     Kilogram,
	"s":      Second,
	"Hz":     Hertz,
	"kHz":    {Symbol: "kHz", Scale: 1e3, Dim: Dim{Time: -1}},
	"MHz":    {Symbol: "MHz", Scale: 1e6, Dim: Dim{Time: -1}},
	"GHz":    Gigahertz,
	"K":      Kelvin,
	"rad":    Radian,
	"deg":    Degree,
	"arcmin": {Symbol: "arcmin", Scale: 60 * arcsecRad, Dim: Dim{Angle: 1}},
	"arcsec": Arcsecond,
	"sr":     Steradian,
	"erg":    Erg,
	"Jy":     Jansky,
	"mJy":    MilliJansky,
	"MJy":    MegaJansky,
}

// ParseUnit parses a unit expression such as "cm2/g", "MJy/sr", "MJy sr-1" or
// "cm-2". Factors are separated by spaces, '.' or '*'; a single '/' divides
// the numerator by everything after it. An empty string is dimensionless.
func ParseUnit(s string) (Unit, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return One, nil
	}
	num, den, hasDen := strings.Cut(s, "/")
	if hasDen && strings.Contains(den, "/") {
		return Unit{}, fmt.Errorf("units: multiple '/' in %q", s)
	}
	u, err := parseProduct(num)
	if err != nil {
		return Unit{}, fmt.Errorf("units: %q: %w", s, err)
	}
	if hasDen {
		d, err := parseProduct(den)
		if err != nil {
			return Unit{}, fmt.Errorf("units: %q: %w", s, err)
		}
		u = Unit{Scale: u.Scale / d.Scale, Dim: u.Dim.Div(d.Dim)}
	}
	u.Symbol = s
	return u, nil
}

func parseProduct(s string) (Unit, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || r == '.' || r == '*'
	})
	if len(fields) == 0 {
		return Unit{}, fmt.Errorf("empty unit factor")
	}
	out := One
	for _, f := range fields {
		u, err := parseFactor(f)
		if err != nil {
			return Unit{}, err
		}
		out = Unit{Scale: out.Scale * u.Scale, Dim: out.Dim.Mul(u.Dim)}
	}
	return out, nil
}

func parseFactor(f string) (Unit, error) {
	if f == "1" {
		return One, nil
	}
	i := len(f)
	for i > 0 && (f[i-1] >= '0' && f[i-1] <= '9' || f[i-1] == '-' || f[i-1] == '+') {
		i--
	}
	sym, expStr := f[:i], f[i:]
	base, ok := symbols[sym]
	if !ok {
		return Unit{}, fmt.Errorf("unknown unit %q", sym)
	}
	if expStr == "" {
		return base, nil
	}
	exp, err := strconv.Atoi(expStr)
	if err != nil || exp == 0 {
		return Unit{}, fmt.Errorf("bad exponent in %q", f)
	}
	return base.Pow(exp), nil
}

// Parse parses a quantity written as "<number> [unit]", e.g. "0.8 cm2/g".
func Parse(s string) (Quantity, error) {
	s = strings.TrimSpace(s)
	numStr, unitStr, _ := strings.Cut(s, " ")
	v, err := strconv.ParseFloat(numStr, 64)
	if err != nil {
		return Quantity{}, fmt.Errorf("units: bad number in %q: %w", s, err)
	}
	u, err := ParseUnit(unitStr)
	if err != nil {
		return Quantity{}, err
	}
	return New(v, u), nil
}

// MustParse is like [Parse] but panics on error. Intended for package-level
// constants.
func MustParse(s string) Quantity {
	q, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return q
}
