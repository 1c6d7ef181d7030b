// Package sky holds celestial positions in the ICRS frame.
package sky

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrInvalidCoordinate is returned for unparseable or out-of-range
// coordinates.
var ErrInvalidCoordinate = errors.New("sky: invalid coordinate")

const (
	deg2rad = math.Pi / 180
	rad2deg = 180 / math.Pi
)

// Position is an ICRS right ascension and declination in degrees.
type Position struct {
	RA  float64
	Dec float64
}

// NewPosition validates ra in [0, 360) after wrapping and dec in [-90, 90].
func NewPosition(ra, dec float64) (Position, error) {
	if math.IsNaN(ra) || math.IsInf(ra, 0) || math.IsNaN(dec) || math.IsInf(dec, 0) {
		return Position{}, fmt.Errorf("%w: non-finite (%g, %g)", ErrInvalidCoordinate, ra, dec)
	}
	if dec < -90 || dec > 90 {
		return Position{}, fmt.Errorf("%w: declination %g out of range", ErrInvalidCoordinate, dec)
	}
	return Position{RA: wrap360(ra), Dec: dec}, nil
}

// Parse reads a position from sexagesimal strings such as "05h13m17.40s"
// and "-69d22m22.0s", or from plain decimal degrees.
func Parse(ra, dec string) (Position, error) {
	r, err := parseRA(ra)
	if err != nil {
		return Position{}, err
	}
	d, err := parseDec(dec)
	if err != nil {
		return Position{}, err
	}
	return NewPosition(r, d)
}

// MustParse is like [Parse] but panics on error.
func MustParse(ra, dec string) Position {
	p, err := Parse(ra, dec)
	if err != nil {
		panic(err)
	}
	return p
}

// Galactic returns the galactic longitude and latitude in degrees.
func (p Position) Galactic() (l, b float64) {
	v := unitVector(p.RA, p.Dec)
	var g [3]float64
	for i := range 3 {
		g[i] = icrsToGalactic[i][0]*v[0] + icrsToGalactic[i][1]*v[1] + icrsToGalactic[i][2]*v[2]
	}
	return fromUnitVector(g)
}

// FromGalactic converts galactic l, b in degrees to an ICRS position.
func FromGalactic(l, b float64) Position {
	g := unitVector(l, b)
	var v [3]float64
	for i := range 3 {
		// Transpose of the rotation.
		v[i] = icrsToGalactic[0][i]*g[0] + icrsToGalactic[1][i]*g[1] + icrsToGalactic[2][i]*g[2]
	}
	ra, dec := fromUnitVector(v)
	return Position{RA: ra, Dec: dec}
}

// Separation returns the great-circle distance to o in degrees.
func (p Position) Separation(o Position) float64 {
	dra := (o.RA - p.RA) * deg2rad
	d1, d2 := p.Dec*deg2rad, o.Dec*deg2rad
	sdra, cdra := math.Sincos(dra)
	sd1, cd1 := math.Sincos(d1)
	sd2, cd2 := math.Sincos(d2)
	num := math.Hypot(cd2*sdra, cd1*sd2-sd1*cd2*cdra)
	den := sd1*sd2 + cd1*cd2*cdra
	return math.Atan2(num, den) * rad2deg
}

// String formats the position in sexagesimal notation.
func (p Position) String() string {
	return FormatRA(p.RA) + " " + FormatDec(p.Dec)
}

// FormatRA renders ra degrees as "HHhMMmSS.SSs".
func FormatRA(ra float64) string {
	h, m, s := split(wrap360(ra)/15, 2)
	if h == 24 {
		h = 0
	}
	return fmt.Sprintf("%02dh%02dm%05.2fs", h, m, s)
}

// FormatDec renders dec degrees as "+DDdMMmSS.Ss".
func FormatDec(dec float64) string {
	sign := "+"
	if dec < 0 {
		sign = "-"
	}
	d, m, s := split(math.Abs(dec), 1)
	return fmt.Sprintf("%s%02dd%02dm%04.1fs", sign, d, m, s)
}

// split breaks v into whole units, minutes and seconds. Seconds are rounded
// to prec decimals before the carry, so 59.999s becomes the next minute.
func split(v float64, prec int) (int, int, float64) {
	scale := math.Pow(10, float64(prec))
	t := math.Round(v*3600*scale) / scale
	d := math.Floor(t / 3600)
	t -= d * 3600
	m := math.Floor(t / 60)
	return int(d), int(m), t - m*60
}

// icrsToGalactic is the rotation matrix from ICRS to galactic coordinates.
var icrsToGalactic = [3][3]float64{
	{-0.0548755604162154, -0.8734370902348850, -0.4838350155487132},
	{+0.4941094278755837, -0.4448296299600112, +0.7469822444972189},
	{-0.8676661490190047, -0.1980763734312015, +0.4559837761750669},
}

func unitVector(lon, lat float64) [3]float64 {
	sl, cl := math.Sincos(lon * deg2rad)
	sb, cb := math.Sincos(lat * deg2rad)
	return [3]float64{cb * cl, cb * sl, sb}
}

func fromUnitVector(v [3]float64) (lon, lat float64) {
	lon = math.Atan2(v[1], v[0]) * rad2deg
	lat = math.Atan2(v[2], math.Hypot(v[0], v[1])) * rad2deg
	return wrap360(lon), lat
}

func wrap360(a float64) float64 {
	a = math.Mod(a, 360)
	if a < 0 {
		a += 360
	}
	return a
}

func parseRA(s string) (float64, error) {
	v, sexagesimal, err := parseAngle(s, "h")
	if err != nil {
		return 0, err
	}
	if sexagesimal {
		if v < 0 || v >= 24 {
			return 0, fmt.Errorf("%w: right ascension %q out of range", ErrInvalidCoordinate, s)
		}
		return v * 15, nil
	}
	return v, nil
}

func parseDec(s string) (float64, error) {
	v, _, err := parseAngle(s, "d")
	return v, err
}

// parseAngle accepts "<a><unit><m>m<s>s", "<a>:<m>:<s>" or a decimal number.
// The boolean result reports whether the input was sexagesimal.
func parseAngle(s, unit string) (float64, bool, error) {
	in := strings.TrimSpace(s)
	if in == "" {
		return 0, false, fmt.Errorf("%w: empty angle", ErrInvalidCoordinate)
	}
	if v, err := strconv.ParseFloat(in, 64); err == nil {
		return v, false, nil
	}

	neg := false
	body := in
	switch body[0] {
	case '-':
		neg = true
		body = body[1:]
	case '+':
		body = body[1:]
	}

	var fields []string
	if strings.Contains(body, ":") {
		fields = strings.Split(body, ":")
	} else {
		r := strings.NewReplacer(unit, " ", "°", " ", "m", " ", "'", " ", "s", " ", "\"", " ")
		fields = strings.Fields(r.Replace(body))
	}
	if len(fields) == 0 || len(fields) > 3 {
		return 0, false, fmt.Errorf("%w: %q", ErrInvalidCoordinate, s)
	}

	var v float64
	scale := 1.0
	for i, f := range fields {
		x, err := strconv.ParseFloat(f, 64)
		if err != nil || x < 0 || (i > 0 && x >= 60) {
			return 0, false, fmt.Errorf("%w: %q", ErrInvalidCoordinate, s)
		}
		v += x / scale
		scale *= 60
	}
	if neg {
		v = -v
	}
	return v, true, nil
}
