package units

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/unit"
)

// ErrUnitConsistency is returned when a conversion or operation does not
// reduce to the expected dimension.
var ErrUnitConsistency = errors.New("units: inconsistent dimensions")

// Base dimensions.
const (
	Length      = unit.LengthDim
	Mass        = unit.MassDim
	Time        = unit.TimeDim
	Temperature = unit.TemperatureDim
	Angle       = unit.AngleDim
)

var baseOrder = []unit.Dimension{Length, Mass, Time, Temperature, Angle}

var baseSymbols = map[unit.Dimension]string{
	Length:      "cm",
	Mass:        "g",
	Time:        "s",
	Temperature: "K",
	Angle:       "rad",
}

// Dim holds the exponent of each base dimension. A missing key is a zero
// exponent.
type Dim unit.Dimensions

// Dimensionless is the zero dimension.
var Dimensionless = Dim{}

// gonum mutates the receiver of Mul and Div, and writes into its dimension
// map, so every operand is built fresh with a non-nil map.
func (d Dim) unit(v float64) *unit.Unit {
	if d == nil {
		return unit.New(v, unit.Dimensions{})
	}
	return unit.New(v, unit.Dimensions(d))
}

// Mul returns the dimension of a product.
func (d Dim) Mul(o Dim) Dim {
	return Dim(d.unit(1).Mul(o.unit(1)).Dimensions())
}

// Div returns the dimension of a quotient.
func (d Dim) Div(o Dim) Dim {
	return Dim(d.unit(1).Div(o.unit(1)).Dimensions())
}

// Pow returns the dimension raised to an integer power.
func (d Dim) Pow(n int) Dim {
	out := make(Dim, len(d))
	for k, e := range d {
		if e*n != 0 {
			out[k] = e * n
		}
	}
	return out
}

// Equal reports whether d and o have the same exponents.
func (d Dim) Equal(o Dim) bool {
	return unit.DimensionsMatch(d.unit(1), o.unit(1))
}

// IsDimensionless reports whether every exponent is zero.
func (d Dim) IsDimensionless() bool { return d.Equal(Dimensionless) }

// String renders the dimension in CGS base symbols, e.g. "g s-2 rad-2".
func (d Dim) String() string {
	if d.IsDimensionless() {
		return "1"
	}
	parts := make([]string, 0, len(d))
	term := func(sym string, e int) {
		switch e {
		case 0:
		case 1:
			parts = append(parts, sym)
		default:
			parts = append(parts, fmt.Sprintf("%s%d", sym, e))
		}
	}
	for _, k := range baseOrder {
		term(baseSymbols[k], d[k])
	}
	for k, e := range d {
		if _, ok := baseSymbols[k]; !ok {
			term(k.String(), e)
		}
	}
	return strings.Join(parts, " ")
}

// Quantity is a value in CGS base units together with its dimension. The
// zero Quantity is a dimensionless zero.
type Quantity struct {
	u *unit.Unit
}

func quantity(v float64, d Dim) Quantity { return Quantity{u: d.unit(v)} }

// fromSI converts a gonum constant, held in SI base units, to CGS.
func fromSI(c unit.Uniter) Quantity {
	u := c.Unit()
	d := Dim(u.Dimensions())
	v := u.Value() * math.Pow(100, float64(d[Length])) * math.Pow(1000, float64(d[Mass]))
	return quantity(v, d)
}

func (q Quantity) unit() *unit.Unit {
	if q.u == nil {
		return unit.New(0, unit.Dimensions{})
	}
	return q.u.Copy()
}

// New returns v expressed in unit u.
func New(v float64, u Unit) Quantity {
	return quantity(v*u.Scale, u.Dim)
}

// Scalar returns a dimensionless quantity.
func Scalar(v float64) Quantity { return quantity(v, Dimensionless) }

// Dim returns the dimension of q.
func (q Quantity) Dim() Dim { return Dim(q.unit().Dimensions()) }

// Base returns the value in CGS base units. Callers that need a specific unit
// should use [Quantity.In].
func (q Quantity) Base() float64 {
	if q.u == nil {
		return 0
	}
	return q.u.Value()
}

// In returns the value of q expressed in u.
func (q Quantity) In(u Unit) (float64, error) {
	if !q.Is(u.Dim) {
		return 0, fmt.Errorf("units: cannot express [%s] in %s [%s]: %w", q.Dim(), u.Symbol, u.Dim, ErrUnitConsistency)
	}
	return q.Base() / u.Scale, nil
}

// Dimensionless returns the pure number held by q, or an error if q still
// carries a dimension.
func (q Quantity) Dimensionless() (float64, error) {
	if !q.Is(Dimensionless) {
		return 0, fmt.Errorf("units: expected dimensionless value, got [%s]: %w", q.Dim(), ErrUnitConsistency)
	}
	return q.Base(), nil
}

// Is reports whether q has dimension d.
func (q Quantity) Is(d Dim) bool {
	return unit.DimensionsMatch(q.unit(), d.unit(1))
}

// Mul returns q*o.
func (q Quantity) Mul(o Quantity) Quantity {
	return Quantity{u: q.unit().Mul(o.unit())}
}

// Div returns q/o.
func (q Quantity) Div(o Quantity) Quantity {
	return Quantity{u: q.unit().Div(o.unit())}
}

// Scale multiplies q by a pure number.
func (q Quantity) Scale(f float64) Quantity {
	u := q.unit()
	u.SetValue(u.Value() * f)
	return Quantity{u: u}
}

// Zero returns a zero value with the dimension of q.
func (q Quantity) Zero() Quantity { return q.Scale(0) }

// Add returns q+o. Both operands must share a dimension.
func (q Quantity) Add(o Quantity) (Quantity, error) {
	if !unit.DimensionsMatch(q.unit(), o.unit()) {
		return Quantity{}, fmt.Errorf("units: cannot add [%s] and [%s]: %w", q.Dim(), o.Dim(), ErrUnitConsistency)
	}
	return Quantity{u: q.unit().Add(o.unit())}, nil
}

// Sub returns q-o. Both operands must share a dimension.
func (q Quantity) Sub(o Quantity) (Quantity, error) {
	return q.Add(o.Scale(-1))
}

// Pow raises q to the power p. A dimensioned quantity may only be raised to
// an integer power.
func (q Quantity) Pow(p float64) (Quantity, error) {
	d := q.Dim()
	if d.IsDimensionless() {
		return Scalar(math.Pow(q.Base(), p)), nil
	}
	n := math.Round(p)
	if n != p || math.Abs(n) > 127 {
		return Quantity{}, fmt.Errorf("units: non-integer power %g of [%s]: %w", p, d, ErrUnitConsistency)
	}
	return quantity(math.Pow(q.Base(), p), d.Pow(int(n))), nil
}

// String formats q in base units.
func (q Quantity) String() string {
	d := q.Dim()
	if d.IsDimensionless() {
		return fmt.Sprintf("%g", q.Base())
	}
	return fmt.Sprintf("%g %s", q.Base(), d)
}
