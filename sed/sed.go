package sed

import (
	"errors"
	"sort"

	"github.com/cwbudde/algo-sed/units"
)

// Errors returned by the assembler and the CSV codec.
var (
	ErrMalformedCSV   = errors.New("sed: malformed CSV")
	ErrIncompleteSED  = errors.New("sed: incomplete SED")
	ErrInvalidOptions = errors.New("sed: invalid options")
)

// Point is the measurement of one band.
type Point struct {
	Band       string
	Wavelength units.Quantity // length
	File       string         // base name of the source map
	Intensity  units.Quantity // surface brightness
	Flux       units.Quantity // flux density
	FluxErr    units.Quantity // flux density
}

// SED is an ordered sequence of points, ascending in wavelength once
// sorted.
type SED []Point

// Sort orders s by wavelength, keeping the relative order of equal
// wavelengths.
func (s SED) Sort() {
	sort.SliceStable(s, func(i, j int) bool {
		return s[i].Wavelength.Base() < s[j].Wavelength.Base()
	})
}

// Sorted reports whether s is ascending in wavelength.
func (s SED) Sorted() bool {
	return sort.SliceIsSorted(s, func(i, j int) bool {
		return s[i].Wavelength.Base() < s[j].Wavelength.Base()
	})
}

// Arrays returns parallel slices of wavelength in µm, flux and flux error in
// Jy, as consumed by the fitter.
func (s SED) Arrays() (wavUm, fluxJy, errJy []float64, err error) {
	wavUm = make([]float64, len(s))
	fluxJy = make([]float64, len(s))
	errJy = make([]float64, len(s))
	for i, p := range s {
		if wavUm[i], err = p.Wavelength.In(units.Micrometer); err != nil {
			return nil, nil, nil, err
		}
		if fluxJy[i], err = p.Flux.In(units.Jansky); err != nil {
			return nil, nil, nil, err
		}
		if errJy[i], err = p.FluxErr.In(units.Jansky); err != nil {
			return nil, nil, nil, err
		}
	}
	return wavUm, fluxJy, errJy, nil
}
