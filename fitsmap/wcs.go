package fitsmap

import (
	"fmt"
	"math"
	"strings"

	"github.com/cwbudde/algo-sed/sky"
)

const (
	deg2rad = math.Pi / 180
	rad2deg = 180 / math.Pi
)

// Projection is a zenithal celestial projection.
type Projection int

// Supported projections.
const (
	Gnomonic     Projection = iota // TAN
	Orthographic                   // SIN
)

func (p Projection) String() string {
	switch p {
	case Gnomonic:
		return "TAN"
	case Orthographic:
		return "SIN"
	default:
		return fmt.Sprintf("Projection(%d)", int(p))
	}
}

// Frame identifies the celestial system of the map axes.
type Frame int

// Supported frames.
const (
	Equatorial Frame = iota // RA/DEC, ICRS
	Galactic                // GLON/GLAT
)

func (f Frame) String() string {
	switch f {
	case Equatorial:
		return "equatorial"
	case Galactic:
		return "galactic"
	default:
		return fmt.Sprintf("Frame(%d)", int(f))
	}
}

// WCS is a linear pixel transform followed by a zenithal projection with
// the reference point at the native pole (LONPOLE = 180).
type WCS struct {
	Frame      Frame
	Projection Projection
	CRVAL      [2]float64    // reference world coordinate, degrees
	CRPIX      [2]float64    // reference pixel, 1-based FITS convention
	CD         [2][2]float64 // degrees per pixel

	inv [2][2]float64
}

// NewWCS validates the transform and precomputes the inverse of CD.
func NewWCS(frame Frame, proj Projection, crval, crpix [2]float64, cd [2][2]float64) (WCS, error) {
	for _, v := range []float64{crval[0], crval[1], crpix[0], crpix[1], cd[0][0], cd[0][1], cd[1][0], cd[1][1]} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return WCS{}, fmt.Errorf("%w: non-finite WCS parameter", ErrMalformedMap)
		}
	}
	if crval[1] < -90 || crval[1] > 90 {
		return WCS{}, fmt.Errorf("%w: reference latitude %g out of range", ErrMalformedMap, crval[1])
	}
	det := cd[0][0]*cd[1][1] - cd[0][1]*cd[1][0]
	if det == 0 {
		return WCS{}, fmt.Errorf("%w: singular CD matrix", ErrMalformedMap)
	}
	w := WCS{Frame: frame, Projection: proj, CRVAL: crval, CRPIX: crpix, CD: cd}
	w.inv = [2][2]float64{
		{cd[1][1] / det, -cd[0][1] / det},
		{-cd[1][0] / det, cd[0][0] / det},
	}
	return w, nil
}

// WorldToPixel returns the zero-based fractional pixel (x, y) of pos.
func (w WCS) WorldToPixel(pos sky.Position) (x, y float64, err error) {
	lon, lat := pos.RA, pos.Dec
	if w.Frame == Galactic {
		lon, lat = pos.Galactic()
	}

	sinLat, cosLat := math.Sincos(lat * deg2rad)
	sinLat0, cosLat0 := math.Sincos(w.CRVAL[1] * deg2rad)
	sinDLon, cosDLon := math.Sincos((lon - w.CRVAL[0]) * deg2rad)

	// cosC is the cosine of the angular distance to the reference point.
	cosC := sinLat0*sinLat + cosLat0*cosLat*cosDLon
	xi := cosLat * sinDLon
	eta := cosLat0*sinLat - sinLat0*cosLat*cosDLon

	switch w.Projection {
	case Gnomonic:
		if cosC <= 0 {
			return 0, 0, fmt.Errorf("%w: %s is %.1f deg from the TAN reference point", ErrNotProjectable, pos, math.Acos(max(-1, cosC))*rad2deg)
		}
		xi /= cosC
		eta /= cosC
	case Orthographic:
		if cosC < 0 {
			return 0, 0, fmt.Errorf("%w: %s is on the far side of the SIN projection", ErrNotProjectable, pos)
		}
	default:
		return 0, 0, fmt.Errorf("%w: unsupported projection %v", ErrMalformedMap, w.Projection)
	}

	xi *= rad2deg
	eta *= rad2deg
	dx := w.inv[0][0]*xi + w.inv[0][1]*eta
	dy := w.inv[1][0]*xi + w.inv[1][1]*eta
	return dx + w.CRPIX[0] - 1, dy + w.CRPIX[1] - 1, nil
}

// PixelToWorld returns the ICRS position of the zero-based pixel (x, y).
func (w WCS) PixelToWorld(x, y float64) (sky.Position, error) {
	dx := x + 1 - w.CRPIX[0]
	dy := y + 1 - w.CRPIX[1]
	xi := (w.CD[0][0]*dx + w.CD[0][1]*dy) * deg2rad
	eta := (w.CD[1][0]*dx + w.CD[1][1]*dy) * deg2rad

	// Direction cosines in the frame where the reference point is the pole.
	var zeta float64
	switch w.Projection {
	case Gnomonic:
		n := math.Sqrt(1 + xi*xi + eta*eta)
		xi, eta, zeta = xi/n, eta/n, 1/n
	case Orthographic:
		r2 := xi*xi + eta*eta
		if r2 > 1 {
			return sky.Position{}, fmt.Errorf("%w: pixel (%g, %g) is outside the SIN disc", ErrNotProjectable, x, y)
		}
		zeta = math.Sqrt(1 - r2)
	default:
		return sky.Position{}, fmt.Errorf("%w: unsupported projection %v", ErrMalformedMap, w.Projection)
	}

	sinLat0, cosLat0 := math.Sincos(w.CRVAL[1] * deg2rad)
	lat := math.Asin(math.Max(-1, math.Min(1, zeta*sinLat0+eta*cosLat0))) * rad2deg
	lon := w.CRVAL[0] + math.Atan2(xi, zeta*cosLat0-eta*sinLat0)*rad2deg
	lon = math.Mod(lon, 360)
	if lon < 0 {
		lon += 360
	}

	if w.Frame == Galactic {
		return sky.FromGalactic(lon, lat), nil
	}
	return sky.NewPosition(lon, lat)
}

// parseCTYPE splits a pair of CTYPE values such as "RA---TAN"/"DEC--TAN".
func parseCTYPE(c1, c2 string) (Frame, Projection, error) {
	ax1, p1 := splitCTYPE(c1)
	ax2, p2 := splitCTYPE(c2)
	if p1 != p2 {
		return 0, 0, fmt.Errorf("%w: mismatched projections %q and %q", ErrMalformedMap, c1, c2)
	}

	var frame Frame
	switch {
	case ax1 == "RA" && ax2 == "DEC":
		frame = Equatorial
	case ax1 == "GLON" && ax2 == "GLAT":
		frame = Galactic
	default:
		return 0, 0, fmt.Errorf("%w: unsupported axes %q, %q", ErrMalformedMap, c1, c2)
	}

	switch p1 {
	case "TAN":
		return frame, Gnomonic, nil
	case "SIN":
		return frame, Orthographic, nil
	default:
		return 0, 0, fmt.Errorf("%w: unsupported projection %q", ErrMalformedMap, p1)
	}
}

func splitCTYPE(s string) (axis, proj string) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if len(s) < 5 {
		return strings.TrimRight(s, "-"), ""
	}
	return strings.TrimRight(s[:4], "-"), strings.TrimLeft(s[4:], "-")
}
