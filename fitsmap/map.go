package fitsmap

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/astrogo/fitsio"

	"github.com/cwbudde/algo-sed/units"
)

// Errors returned while loading and sampling maps.
var (
	ErrMalformedMap   = errors.New("fitsmap: malformed map")
	ErrInvalidMethod  = errors.New("fitsmap: invalid extraction method")
	ErrNotProjectable = errors.New("fitsmap: position not projectable")
	ErrBlankPixel     = errors.New("fitsmap: blank pixel")
)

// Map is a 2D calibrated intensity grid. Data is row-major with x varying
// fastest, so the pixel (x, y) lives at Data[y*Width+x].
type Map struct {
	Data   []float64
	Width  int
	Height int
	WCS    WCS
	Unit   units.Unit
}

// At returns the raw pixel value. It panics when (x, y) is out of range.
func (m *Map) At(x, y int) float64 {
	if x < 0 || x >= m.Width || y < 0 || y >= m.Height {
		panic(fmt.Sprintf("fitsmap: pixel (%d, %d) out of range %dx%d", x, y, m.Width, m.Height))
	}
	return m.Data[y*m.Width+x]
}

// Load reads the first HDU holding image data from a FITS file. The image
// must have exactly two axes and carry a celestial WCS.
func Load(path string) (*Map, error) {
	r, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("fitsmap: %w", err)
	}
	defer r.Close()

	f, err := fitsio.Open(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMalformedMap, path, err)
	}
	defer f.Close()

	img, err := firstImage(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	m, err := decode(img)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

func firstImage(f *fitsio.File) (fitsio.Image, error) {
	for _, hdu := range f.HDUs() {
		img, ok := hdu.(fitsio.Image)
		if !ok {
			continue
		}
		if len(img.Header().Axes()) > 0 {
			return img, nil
		}
	}
	return nil, fmt.Errorf("%w: no image HDU with data", ErrMalformedMap)
}

func decode(img fitsio.Image) (*Map, error) {
	hdr := img.Header()
	axes := hdr.Axes()
	if len(axes) != 2 {
		return nil, fmt.Errorf("%w: expected a 2D image, NAXIS=%d", ErrMalformedMap, len(axes))
	}
	w, h := axes[0], axes[1]
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("%w: empty image %dx%d", ErrMalformedMap, w, h)
	}

	data, err := readPixels(img, hdr.Bitpix(), w*h)
	if err != nil {
		return nil, err
	}
	if err := applyScaling(hdr, data); err != nil {
		return nil, err
	}

	wcs, err := parseWCS(hdr)
	if err != nil {
		return nil, err
	}
	unit, err := parseBUNIT(hdr)
	if err != nil {
		return nil, err
	}
	return &Map{Data: data, Width: w, Height: h, WCS: wcs, Unit: unit}, nil
}

// readPixels decodes the image into float64 using the storage type named by
// BITPIX.
func readPixels(img fitsio.Image, bitpix, n int) ([]float64, error) {
	out := make([]float64, n)
	var err error
	switch bitpix {
	case -64:
		raw := make([]float64, n)
		if err = img.Read(&raw); err == nil {
			copy(out, raw)
		}
	case -32:
		raw := make([]float32, n)
		if err = img.Read(&raw); err == nil {
			convert(out, raw)
		}
	case 8:
		raw := make([]uint8, n)
		if err = img.Read(&raw); err == nil {
			convert(out, raw)
		}
	case 16:
		raw := make([]int16, n)
		if err = img.Read(&raw); err == nil {
			convert(out, raw)
		}
	case 32:
		raw := make([]int32, n)
		if err = img.Read(&raw); err == nil {
			convert(out, raw)
		}
	case 64:
		raw := make([]int64, n)
		if err = img.Read(&raw); err == nil {
			convert(out, raw)
		}
	default:
		return nil, fmt.Errorf("%w: unsupported BITPIX %d", ErrMalformedMap, bitpix)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: reading pixels: %w", ErrMalformedMap, err)
	}
	return out, nil
}

func convert[T uint8 | int16 | int32 | int64 | float32](dst []float64, src []T) {
	for i, v := range src {
		dst[i] = float64(v)
	}
}

// applyScaling applies physical = BZERO + BSCALE*stored in place.
func applyScaling(hdr *fitsio.Header, data []float64) error {
	scale, _, err := floatKey(hdr, "BSCALE", 1)
	if err != nil {
		return err
	}
	zero, _, err := floatKey(hdr, "BZERO", 0)
	if err != nil {
		return err
	}
	if scale == 1 && zero == 0 {
		return nil
	}
	for i, v := range data {
		data[i] = zero + scale*v
	}
	return nil
}

func parseWCS(hdr *fitsio.Header) (WCS, error) {
	c1, err := stringKey(hdr, "CTYPE1")
	if err != nil {
		return WCS{}, err
	}
	c2, err := stringKey(hdr, "CTYPE2")
	if err != nil {
		return WCS{}, err
	}
	frame, proj, err := parseCTYPE(c1, c2)
	if err != nil {
		return WCS{}, err
	}
	if sys, ok := optionalString(hdr, "RADESYS"); ok && frame == Equatorial {
		switch strings.ToUpper(sys) {
		case "ICRS", "FK5":
		default:
			return WCS{}, fmt.Errorf("%w: unsupported RADESYS %q", ErrMalformedMap, sys)
		}
	}
	if pole, ok, err := floatKey(hdr, "LONPOLE", 180); err != nil {
		return WCS{}, err
	} else if ok && pole != 180 {
		return WCS{}, fmt.Errorf("%w: unsupported LONPOLE %g", ErrMalformedMap, pole)
	}

	var crval, crpix [2]float64
	for i, key := range []string{"CRVAL1", "CRVAL2", "CRPIX1", "CRPIX2"} {
		v, err := requiredFloat(hdr, key)
		if err != nil {
			return WCS{}, err
		}
		if i < 2 {
			crval[i] = v
		} else {
			crpix[i-2] = v
		}
	}

	cd, err := linearTransform(hdr)
	if err != nil {
		return WCS{}, err
	}
	return NewWCS(frame, proj, crval, crpix, cd)
}

// linearTransform resolves the pixel-to-intermediate matrix from CDi_j, or
// PCi_j with CDELTi, or CDELTi with CROTA2, in that order of precedence.
func linearTransform(hdr *fitsio.Header) ([2][2]float64, error) {
	var cd [2][2]float64
	cdKeys := [2][2]string{{"CD1_1", "CD1_2"}, {"CD2_1", "CD2_2"}}
	found := false
	for i := range 2 {
		for j := range 2 {
			v, ok, err := floatKey(hdr, cdKeys[i][j], 0)
			if err != nil {
				return cd, err
			}
			cd[i][j] = v
			found = found || ok
		}
	}
	if found {
		return cd, nil
	}

	cdelt1, err := requiredFloat(hdr, "CDELT1")
	if err != nil {
		return cd, err
	}
	cdelt2, err := requiredFloat(hdr, "CDELT2")
	if err != nil {
		return cd, err
	}

	pc := [2][2]float64{{1, 0}, {0, 1}}
	pcKeys := [2][2]string{{"PC1_1", "PC1_2"}, {"PC2_1", "PC2_2"}}
	hasPC := false
	for i := range 2 {
		for j := range 2 {
			v, ok, err := floatKey(hdr, pcKeys[i][j], pc[i][j])
			if err != nil {
				return cd, err
			}
			pc[i][j] = v
			hasPC = hasPC || ok
		}
	}
	if !hasPC {
		rot, _, err := floatKey(hdr, "CROTA2", 0)
		if err != nil {
			return cd, err
		}
		s, c := math.Sincos(rot * deg2rad)
		return [2][2]float64{
			{cdelt1 * c, -cdelt2 * s},
			{cdelt1 * s, cdelt2 * c},
		}, nil
	}
	cdelt := [2]float64{cdelt1, cdelt2}
	for i := range 2 {
		for j := range 2 {
			cd[i][j] = cdelt[i] * pc[i][j]
		}
	}
	return cd, nil
}

// parseBUNIT returns the map unit. A missing BUNIT is taken as MJy/sr; a
// present one must have the dimension of surface brightness.
func parseBUNIT(hdr *fitsio.Header) (units.Unit, error) {
	s, ok := optionalString(hdr, "BUNIT")
	if !ok || strings.TrimSpace(s) == "" {
		return units.MegaJanskyPerSteradian, nil
	}
	u, err := units.ParseUnit(s)
	if err != nil {
		return units.Unit{}, fmt.Errorf("fitsmap: BUNIT %q: %w: %w", s, units.ErrUnitConsistency, err)
	}
	if !u.Dim.Equal(units.MegaJanskyPerSteradian.Dim) {
		return units.Unit{}, fmt.Errorf("fitsmap: BUNIT %q is [%s], want surface brightness [%s]: %w",
			s, u.Dim, units.MegaJanskyPerSteradian.Dim, units.ErrUnitConsistency)
	}
	return u, nil
}

func floatKey(hdr *fitsio.Header, key string, def float64) (float64, bool, error) {
	card := hdr.Get(key)
	if card == nil {
		return def, false, nil
	}
	switch v := card.Value.(type) {
	case float64:
		return v, true, nil
	case float32:
		return float64(v), true, nil
	case int:
		return float64(v), true, nil
	case int64:
		return float64(v), true, nil
	case int32:
		return float64(v), true, nil
	default:
		return 0, false, fmt.Errorf("%w: %s is %T, want a number", ErrMalformedMap, key, card.Value)
	}
}

func requiredFloat(hdr *fitsio.Header, key string) (float64, error) {
	v, ok, err := floatKey(hdr, key, 0)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("%w: missing %s", ErrMalformedMap, key)
	}
	return v, nil
}

func optionalString(hdr *fitsio.Header, key string) (string, bool) {
	card := hdr.Get(key)
	if card == nil {
		return "", false
	}
	s, ok := card.Value.(string)
	return strings.TrimSpace(s), ok
}

func stringKey(hdr *fitsio.Header, key string) (string, error) {
	s, ok := optionalString(hdr, key)
	if !ok {
		return "", fmt.Errorf("%w: missing %s", ErrMalformedMap, key)
	}
	return s, nil
}
