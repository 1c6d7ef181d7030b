package fit

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
)

// Default wavelength range and size of the model curve, µm.
const (
	CurveMinUm  = 10.0
	CurveMaxUm  = 2300.0
	CurvePoints = 600
)

// LogGrid returns n wavelengths spaced evenly in log10 from lo to hi
// inclusive.
func LogGrid(lo, hi float64, n int) ([]float64, error) {
	if !(lo > 0) || !(hi > lo) || math.IsInf(hi, 0) || n < 2 {
		return nil, fmt.Errorf("%w: log grid [%g, %g] with %d points", ErrInvalidInput, lo, hi, n)
	}
	a, b := math.Log10(lo), math.Log10(hi)
	out := make([]float64, n)
	for i := range out {
		out[i] = math.Pow(10, a+(b-a)*float64(i)/float64(n-1))
	}
	out[0], out[n-1] = lo, hi
	return out, nil
}

// Curve evaluates the best-fit model of r at each wavelength, in Jy.
func (f *Fitter) Curve(r Result, wavUm []float64) ([]float64, error) {
	if !(r.Temperature > 0) || !(r.Column >= 0) {
		return nil, fmt.Errorf("%w: result T=%g N=%g", ErrInvalidInput, r.Temperature, r.Column)
	}
	out := make([]float64, len(wavUm))
	for i, w := range wavUm {
		s, err := f.model.FluxJy(w, r.Temperature, r.Column, r.Beta)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
		out[i] = s
	}
	return out, nil
}

// WriteCurveCSV writes a model curve with the header wav_um,S_Jy.
func WriteCurveCSV(w io.Writer, wavUm, fluxJy []float64) error {
	if len(wavUm) != len(fluxJy) {
		return fmt.Errorf("%w: curve length mismatch %d/%d", ErrInvalidInput, len(wavUm), len(fluxJy))
	}
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"wav_um", "S_Jy"}); err != nil {
		return err
	}
	for i := range wavUm {
		rec := []string{
			strconv.FormatFloat(wavUm[i], 'g', 15, 64),
			strconv.FormatFloat(fluxJy[i], 'g', 15, 64),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteCurveFile evaluates r on the default grid and writes it to path.
func (f *Fitter) WriteCurveFile(path string, r Result) error {
	grid, err := LogGrid(CurveMinUm, CurveMaxUm, CurvePoints)
	if err != nil {
		return err
	}
	flux, err := f.Curve(r, grid)
	if err != nil {
		return err
	}
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("fit: %w", err)
	}
	if err := WriteCurveCSV(out, grid, flux); err != nil {
		out.Close()
		return fmt.Errorf("fit: write %s: %w", path, err)
	}
	return out.Close()
}

// PeakWavelength returns the grid wavelength of maximum model flux. It is
// a coarse diagnostic for plots.
func PeakWavelength(wavUm, fluxJy []float64) float64 {
	best, peak := math.Inf(-1), math.NaN()
	for i, s := range fluxJy {
		if s > best {
			best, peak = s, wavUm[i]
		}
	}
	return peak
}
