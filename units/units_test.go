package units

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/unit"
	"gonum.org/v1/gonum/unit/constant"
)

func TestConversionRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		q    Quantity
		u    Unit
		want float64
	}{
		{"um to cm", New(250, Micrometer), Centimeter, 0.025},
		{"GHz to Hz", New(230, Gigahertz), Hertz, 230e9},
		{"MJy/sr to Jy/sr", New(1, MegaJanskyPerSteradian), JanskyPerSteradian, 1e6},
		{"arcsec to deg", New(3600, Arcsecond), Degree, 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.q.In(tc.u)
			if err != nil {
				t.Fatal(err)
			}
			if math.Abs(got-tc.want) > 1e-12*math.Abs(tc.want) {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestInRejectsMismatchedDimension(t *testing.T) {
	_, err := New(1, Jansky).In(JanskyPerSteradian)
	if !errors.Is(err, ErrUnitConsistency) {
		t.Fatalf("err = %v, want ErrUnitConsistency", err)
	}
}

func TestFrequencyFromWavelength(t *testing.T) {
	nu := SpeedOfLight.Div(New(100, Micrometer))
	hz, err := nu.In(Hertz)
	if err != nil {
		t.Fatal(err)
	}
	if want := 2.99792458e12; math.Abs(hz-want) > 1e-12*want {
		t.Fatalf("nu = %v Hz, want %v", hz, want)
	}
}

func TestIntensityTimesSolidAngleIsFlux(t *testing.T) {
	i := New(100, MegaJanskyPerSteradian)
	s := i.Mul(New(4.26e-8, Steradian))
	jy, err := s.In(Jansky)
	if err != nil {
		t.Fatal(err)
	}
	if want := 4.26; math.Abs(jy-want) > 1e-12 {
		t.Fatalf("S = %v Jy, want %v", jy, want)
	}
}

func TestDimensionless(t *testing.T) {
	ratio := New(460, Gigahertz).Div(New(230, Gigahertz))
	v, err := ratio.Dimensionless()
	if err != nil {
		t.Fatal(err)
	}
	if v != 2 {
		t.Fatalf("ratio = %v, want 2", v)
	}

	if _, err := New(1, Centimeter).Dimensionless(); !errors.Is(err, ErrUnitConsistency) {
		t.Fatalf("err = %v, want ErrUnitConsistency", err)
	}
}

func TestPow(t *testing.T) {
	if _, err := New(2, Centimeter).Pow(1.5); !errors.Is(err, ErrUnitConsistency) {
		t.Fatalf("non-integer power of a length: err = %v", err)
	}
	area, err := New(2, Centimeter).Pow(2)
	if err != nil {
		t.Fatal(err)
	}
	if !area.Is(Dim{Length: 2}) || area.Base() != 4 {
		t.Fatalf("area = %v", area)
	}
	x, err := Scalar(4).Pow(0.5)
	if err != nil || x.Base() != 2 {
		t.Fatalf("sqrt(4) = %v, %v", x, err)
	}
}

func TestAddRequiresSameDimension(t *testing.T) {
	if _, err := New(1, Kelvin).Add(New(1, Second)); !errors.Is(err, ErrUnitConsistency) {
		t.Fatalf("err = %v, want ErrUnitConsistency", err)
	}
	sum, err := New(1, Meter).Add(New(50, Centimeter))
	if err != nil {
		t.Fatal(err)
	}
	if got, _ := sum.In(Centimeter); got != 150 {
		t.Fatalf("sum = %v cm, want 150", got)
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		unit Unit
		want float64
	}{
		{"0.8 cm2/g", SquareCentimeterPerGram, 0.8},
		{"4.26e-8 sr", Steradian, 4.26e-8},
		{"230 GHz", Gigahertz, 230},
		{"2.6e21 cm-2", PerSquareCentimeter, 2.6e21},
		{"12 MJy sr-1", MegaJanskyPerSteradian, 12},
		{"300", One, 300},
		{"1600 arcsec2", Arcsecond.Pow(2), 1600},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			q, err := Parse(tc.in)
			if err != nil {
				t.Fatal(err)
			}
			got, err := q.In(tc.unit)
			if err != nil {
				t.Fatal(err)
			}
			if math.Abs(got-tc.want) > 1e-12*math.Abs(tc.want) {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestParseErrors(t *testing.T) {
	for _, in := range []string{"", "abc", "1 furlong", "1 cm/g/s", "1 cm0", "1 /sr"} {
		if _, err := Parse(in); err == nil {
			t.Errorf("Parse(%q) succeeded, want error", in)
		}
	}
}

func TestDimString(t *testing.T) {
	if got := MegaJanskyPerSteradian.Dim.String(); got != "g s-2 rad-2" {
		t.Fatalf("dim = %q", got)
	}
	if got := Dimensionless.String(); got != "1" {
		t.Fatalf("dim = %q", got)
	}
}

func TestConstantsMatchGonum(t *testing.T) {
	tests := []struct {
		name string
		q    Quantity
		si   unit.Uniter
		cgs  float64
	}{
		{"c", SpeedOfLight, constant.LightSpeedInVacuum, 1e2},
		{"h", Planck, constant.Planck, 1e7},
		{"k", Boltzmann, constant.Boltzmann, 1e7},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			want := tc.si.Unit().Value() * tc.cgs
			if got := tc.q.Base(); math.Abs(got-want) > 1e-15*want {
				t.Fatalf("%s = %v, want %v", tc.name, got, want)
			}
			if !tc.q.Is(Dim(tc.si.Unit().Dimensions())) {
				t.Fatalf("%s dim = %s", tc.name, tc.q.Dim())
			}
		})
	}
	if got := Boltzmann.Dim().String(); got != "cm2 g s-2 K-1" {
		t.Fatalf("k dim = %q", got)
	}
}

func TestDimEqualIgnoresZeroExponents(t *testing.T) {
	if !(Dim{Length: 1, Time: 0}).Equal(Dim{Length: 1}) {
		t.Fatal("zero exponent changed equality")
	}
	if !Centimeter.Dim.Div(Centimeter.Dim).IsDimensionless() {
		t.Fatal("cm/cm is not dimensionless")
	}
	if Hertz.Dim.Equal(Second.Dim) {
		t.Fatal("Hz equals s")
	}
}

func TestZeroQuantity(t *testing.T) {
	var q Quantity
	if v, err := q.Dimensionless(); err != nil || v != 0 {
		t.Fatalf("zero = %v, %v", v, err)
	}
	sum, err := q.Add(Scalar(3))
	if err != nil || sum.Base() != 3 {
		t.Fatalf("0+3 = %v, %v", sum, err)
	}
	if !q.Mul(New(2, Centimeter)).Is(Dim{Length: 1}) {
		t.Fatal("0*cm lost its dimension")
	}
}

func TestOperandsAreNotMutated(t *testing.T) {
	a := New(2, Centimeter)
	b := New(3, Second)
	_ = a.Mul(b)
	_ = a.Div(b)
	if a.Base() != 2 || !a.Is(Centimeter.Dim) || b.Base() != 3 || !b.Is(Second.Dim) {
		t.Fatalf("operands changed: a=%v b=%v", a, b)
	}
}
