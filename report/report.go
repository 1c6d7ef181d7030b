// Package report formats extraction and fit results as aligned text tables.
package report

import (
	"fmt"
	"io"
	"math"
	"text/tabwriter"

	"github.com/cwbudde/algo-sed/dust"
	"github.com/cwbudde/algo-sed/fit"
	"github.com/cwbudde/algo-sed/sed"
	"github.com/cwbudde/algo-sed/units"
)

// Option adds optional lines to [Write].
type Option func(*options)

type options struct {
	peakUm float64
}

// WithPeakWavelength adds the wavelength of the model peak, in µm.
func WithPeakWavelength(um float64) Option {
	return func(o *options) { o.peakUm = um }
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

// Write prints one fit block headed by [tag mode]: dust temperature, β,
// total and molecular column, the CSV artifact name, the convergence flag
// and the cost. Standard errors are appended where finite.
func Write(w io.Writer, tag string, r fit.Result, c dust.Constants, csvName string, opts ...Option) error {
	var o options
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	nh2, err := c.MolecularColumn(units.New(r.Column, units.PerSquareCentimeter))
	if err != nil {
		return fmt.Errorf("report: %w", err)
	}
	nh2cm, err := nh2.In(units.PerSquareCentimeter)
	if err != nil {
		return fmt.Errorf("report: %w", err)
	}

	if _, err := fmt.Fprintf(w, "[%s %s]\n", tag, r.Mode); err != nil {
		return err
	}
	tw := newTable(w)
	rows := []struct {
		label, value string
	}{
		{"T_d [K]", withErr("%.3f", r.Temperature, stdErr(r, 0))},
		{"beta", withErr("%.3f", r.Beta, betaErr(r))},
		{"N_tot [cm^-2]", withErr("%.3e", r.Column, columnErr(r))},
		{"N(H2) [cm^-2]", fmt.Sprintf("%.3e", nh2cm)},
		{"CSV", csvName},
		{"converged", fmt.Sprintf("%v (%v), cost=%.3g, iterations=%d", r.Converged, r.Status, r.Cost, r.Iterations)},
	}
	if o.peakUm > 0 {
		rows = append(rows, struct{ label, value string }{"peak [um]", fmt.Sprintf("%.1f", o.peakUm)})
	}
	for _, row := range rows {
		if _, err := fmt.Fprintf(tw, "%s\t%s\n", row.label, row.value); err != nil {
			return err
		}
	}
	return tw.Flush()
}

func withErr(format string, v, e float64) string {
	s := fmt.Sprintf(format, v)
	if math.IsNaN(e) || math.IsInf(e, 0) {
		return s
	}
	return s + " ± " + fmt.Sprintf(format, e)
}

func stdErr(r fit.Result, i int) float64 {
	if i >= len(r.StdErr) {
		return math.NaN()
	}
	return r.StdErr[i]
}

// betaErr is NaN for fixed-β fits, which carry no β parameter.
func betaErr(r fit.Result) float64 {
	if len(r.StdErr) < 3 {
		return math.NaN()
	}
	return r.StdErr[2]
}

// columnErr propagates σ(log10 N) to σ(N) = N ln10 σ(log10 N).
func columnErr(r fit.Result) float64 {
	return r.Column * math.Ln10 * stdErr(r, 1)
}

// WriteSED prints the SED points as a table in the order given.
func WriteSED(w io.Writer, s sed.SED) error {
	tw := newTable(w)
	if _, err := fmt.Fprintf(tw, "Band\tWavelength [um]\tI [MJy/sr]\tS [Jy]\tSerr [Jy]\tFile\n"); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(tw, "----\t---------------\t----------\t------\t---------\t----\n"); err != nil {
		return err
	}
	for _, p := range s {
		wav, err := p.Wavelength.In(units.Micrometer)
		if err != nil {
			return fmt.Errorf("report: %s: %w", p.Band, err)
		}
		inten, err := p.Intensity.In(units.MegaJanskyPerSteradian)
		if err != nil {
			return fmt.Errorf("report: %s: %w", p.Band, err)
		}
		flux, err := p.Flux.In(units.Jansky)
		if err != nil {
			return fmt.Errorf("report: %s: %w", p.Band, err)
		}
		ferr, err := p.FluxErr.In(units.Jansky)
		if err != nil {
			return fmt.Errorf("report: %s: %w", p.Band, err)
		}
		if _, err := fmt.Fprintf(tw, "%s\t%g\t%.4f\t%.4f\t%.4f\t%s\n", p.Band, wav, inten, flux, ferr, p.File); err != nil {
			return err
		}
	}
	return tw.Flush()
}

// WriteEnvelope prints the three fixed-β fits of a β envelope.
func WriteEnvelope(w io.Writer, env fit.Envelope) error {
	if _, err := fmt.Fprintf(w, "beta envelope %.2f ± %.2f\n", env.Beta0, env.Delta); err != nil {
		return err
	}
	tw := newTable(w)
	if _, err := fmt.Fprintf(tw, "beta\tT_d [K]\tN_tot [cm^-2]\tconverged\n"); err != nil {
		return err
	}
	for _, r := range env.Results() {
		if _, err := fmt.Fprintf(tw, "%.2f\t%.3f\t%.6e\t%v\n", r.Beta, r.Temperature, r.Column, r.Converged); err != nil {
			return err
		}
	}
	return tw.Flush()
}
