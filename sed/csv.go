package sed

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cwbudde/algo-sed/units"
)

// Header is the column set of the SED artifact.
var Header = []string{"band", "wav_um", "file", "I_MJy_sr", "S_Jy", "Serr_Jy"}

// formatFloat keeps 15 significant digits, which hides the last-bit noise of
// unit conversion while staying well inside a 1e-14 relative round trip.
func formatFloat(v float64) string { return strconv.FormatFloat(v, 'g', 15, 64) }

// WriteCSV writes s with [Header] in its current order.
func WriteCSV(w io.Writer, s SED) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, p := range s {
		wav, err := p.Wavelength.In(units.Micrometer)
		if err != nil {
			return fmt.Errorf("sed: %s wavelength: %w", p.Band, err)
		}
		inten, err := p.Intensity.In(units.MegaJanskyPerSteradian)
		if err != nil {
			return fmt.Errorf("sed: %s intensity: %w", p.Band, err)
		}
		flux, err := p.Flux.In(units.Jansky)
		if err != nil {
			return fmt.Errorf("sed: %s flux: %w", p.Band, err)
		}
		ferr, err := p.FluxErr.In(units.Jansky)
		if err != nil {
			return fmt.Errorf("sed: %s flux error: %w", p.Band, err)
		}
		rec := []string{p.Band, formatFloat(wav), p.File, formatFloat(inten), formatFloat(flux), formatFloat(ferr)}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteFile replaces the file at path with the CSV rendering of s. The data
// is written to a temporary file in the same directory and renamed over
// path.
func WriteFile(path string, s SED) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("sed: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()
	if err = WriteCSV(tmp, s); err != nil {
		return fmt.Errorf("sed: write %s: %w", path, err)
	}
	// CreateTemp opens with 0600.
	if err = tmp.Chmod(0o644); err != nil {
		return fmt.Errorf("sed: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("sed: %w", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("sed: %w", err)
	}
	return nil
}

// ReadCSV parses an SED written by [WriteCSV]. Columns are located by name,
// so extra columns and a different column order are accepted.
func ReadCSV(r io.Reader) (SED, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedCSV, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrMalformedCSV)
	}

	col := make(map[string]int, len(records[0]))
	for i, name := range records[0] {
		col[strings.TrimSpace(name)] = i
	}
	for _, name := range Header {
		if _, ok := col[name]; !ok {
			return nil, fmt.Errorf("%w: missing column %q", ErrMalformedCSV, name)
		}
	}

	out := make(SED, 0, len(records)-1)
	for line, rec := range records[1:] {
		num := func(name string) (float64, error) {
			s := strings.TrimSpace(rec[col[name]])
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return 0, fmt.Errorf("%w: row %d column %s: %q", ErrMalformedCSV, line+1, name, s)
			}
			return v, nil
		}
		var vals [4]float64
		for i, name := range []string{"wav_um", "I_MJy_sr", "S_Jy", "Serr_Jy"} {
			if vals[i], err = num(name); err != nil {
				return nil, err
			}
		}
		out = append(out, Point{
			Band:       rec[col["band"]],
			Wavelength: units.New(vals[0], units.Micrometer),
			File:       rec[col["file"]],
			Intensity:  units.New(vals[1], units.MegaJanskyPerSteradian),
			Flux:       units.New(vals[2], units.Jansky),
			FluxErr:    units.New(vals[3], units.Jansky),
		})
	}
	return out, nil
}

// ReadFile reads an SED artifact from path.
func ReadFile(path string) (SED, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("sed: %w", err)
	}
	defer f.Close()
	s, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}
