package sed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/cwbudde/algo-vecmath"

	"github.com/cwbudde/algo-sed/band"
	"github.com/cwbudde/algo-sed/dust"
	"github.com/cwbudde/algo-sed/fitsmap"
	"github.com/cwbudde/algo-sed/internal/logging"
	"github.com/cwbudde/algo-sed/sky"
	"github.com/cwbudde/algo-sed/units"
)

// Policy decides what happens when a band cannot be extracted.
type Policy int

// Policies.
const (
	// Strict aborts on the first failing band.
	Strict Policy = iota
	// Lenient logs and skips failing bands and marks the result incomplete.
	Lenient
)

func (p Policy) String() string {
	switch p {
	case Strict:
		return "strict"
	case Lenient:
		return "lenient"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

// ParsePolicy maps "strict" or "lenient" to a [Policy].
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "strict":
		return Strict, nil
	case "lenient":
		return Lenient, nil
	default:
		return 0, fmt.Errorf("%w: unknown policy %q", ErrInvalidOptions, s)
	}
}

// AssemblerConfig holds the assembler settings.
type AssemblerConfig struct {
	DataDir string
	Method  fitsmap.Method
	Policy  Policy
	Logger  *slog.Logger
}

// AssemblerOption mutates an AssemblerConfig.
type AssemblerOption func(*AssemblerConfig)

// DefaultAssemblerConfig returns bilinear extraction from the working
// directory with the strict policy.
func DefaultAssemblerConfig() AssemblerConfig {
	return AssemblerConfig{
		DataDir: ".",
		Method:  fitsmap.Bilinear,
		Policy:  Strict,
		Logger:  logging.Discard(),
	}
}

// WithDataDir sets the directory searched for band maps.
func WithDataDir(dir string) AssemblerOption {
	return func(cfg *AssemblerConfig) {
		if dir != "" {
			cfg.DataDir = dir
		}
	}
}

// WithMethod sets the sampling method.
func WithMethod(m fitsmap.Method) AssemblerOption {
	return func(cfg *AssemblerConfig) { cfg.Method = m }
}

// WithPolicy sets the failure policy.
func WithPolicy(p Policy) AssemblerOption {
	return func(cfg *AssemblerConfig) { cfg.Policy = p }
}

// WithLogger sets the logger for per-band progress.
func WithLogger(l *slog.Logger) AssemblerOption {
	return func(cfg *AssemblerConfig) {
		if l != nil {
			cfg.Logger = l
		}
	}
}

// ApplyAssemblerOptions applies zero or more options to the default config.
func ApplyAssemblerOptions(opts ...AssemblerOption) AssemblerConfig {
	cfg := DefaultAssemblerConfig()
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

// BandError records a band skipped under the lenient policy.
type BandError struct {
	Band string
	Err  error
}

func (e BandError) Error() string { return e.Band + ": " + e.Err.Error() }

func (e BandError) Unwrap() error { return e.Err }

// Result is the outcome of [Assembler.Assemble].
type Result struct {
	SED     SED
	Skipped []BandError
}

// Complete reports whether every band produced a point.
func (r *Result) Complete() bool { return len(r.Skipped) == 0 }

// Err returns nil for a complete result and an error wrapping
// [ErrIncompleteSED] and every band failure otherwise.
func (r *Result) Err() error {
	if r.Complete() {
		return nil
	}
	errs := make([]error, 0, len(r.Skipped)+1)
	errs = append(errs, fmt.Errorf("%w: %d band(s) skipped", ErrIncompleteSED, len(r.Skipped)))
	for _, s := range r.Skipped {
		errs = append(errs, s)
	}
	return errors.Join(errs...)
}

// Assembler extracts one SED point per registry band at a sky position.
type Assembler struct {
	registry  *band.Registry
	consts    dust.Constants
	cfg       AssemblerConfig
	extractor *fitsmap.Extractor
}

// NewAssembler validates consts and returns an assembler over reg.
func NewAssembler(reg *band.Registry, consts dust.Constants, opts ...AssemblerOption) (*Assembler, error) {
	if reg == nil || reg.Len() == 0 {
		return nil, fmt.Errorf("%w: empty band registry", ErrInvalidOptions)
	}
	if err := consts.Validate(); err != nil {
		return nil, err
	}
	cfg := ApplyAssemblerOptions(opts...)
	if cfg.Method != fitsmap.Nearest && cfg.Method != fitsmap.Bilinear {
		return nil, fmt.Errorf("%w: %v", fitsmap.ErrInvalidMethod, cfg.Method)
	}
	return &Assembler{
		registry:  reg,
		consts:    consts,
		cfg:       cfg,
		extractor: fitsmap.NewExtractor(cfg.Method, fitsmap.WithLogger(cfg.Logger)),
	}, nil
}

// Config returns the assembler settings.
func (a *Assembler) Config() AssemblerConfig { return a.cfg }

// Assemble visits the bands in registry order. The context is checked
// between bands. Under [Strict] the first failure is returned and no SED is
// produced; under [Lenient] failures are collected in Result.Skipped. The
// returned SED is sorted by wavelength.
func (a *Assembler) Assemble(ctx context.Context, pos sky.Position) (*Result, error) {
	log := a.cfg.Logger.With("position", pos.String())
	res := &Result{SED: make(SED, 0, a.registry.Len())}

	for _, spec := range a.registry.Specs() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p, err := a.extract(spec, pos)
		if err != nil {
			if a.cfg.Policy == Strict {
				return nil, fmt.Errorf("sed: band %s: %w", spec.Name, err)
			}
			log.Warn("skipping band", "band", spec.Name, "err", err)
			res.Skipped = append(res.Skipped, BandError{Band: spec.Name, Err: err})
			continue
		}
		log.Debug("extracted band", "band", spec.Name, "file", p.File, "flux", p.Flux)
		res.SED = append(res.SED, p)
	}

	if err := a.assignUncertainties(res.SED); err != nil {
		return nil, err
	}
	res.SED.Sort()
	if res.Complete() && len(res.SED) != a.registry.Len() {
		return nil, fmt.Errorf("sed: %d points for %d bands", len(res.SED), a.registry.Len())
	}
	return res, nil
}

func (a *Assembler) extract(spec band.Spec, pos sky.Position) (Point, error) {
	path, err := band.FindFile(a.cfg.DataDir, spec)
	if err != nil {
		return Point{}, err
	}
	intensity, err := a.extractor.ReadValue(path, pos)
	if err != nil {
		return Point{}, err
	}
	flux, err := fitsmap.IntensityToFlux(intensity, a.consts.BeamSolidAngle)
	if err != nil {
		return Point{}, err
	}
	return Point{
		Band:       spec.Name,
		Wavelength: spec.Wavelength,
		File:       filepath.Base(path),
		Intensity:  intensity,
		Flux:       flux,
	}, nil
}

// assignUncertainties sets FluxErr = FracError * Flux for every point.
func (a *Assembler) assignUncertainties(s SED) error {
	flux := make([]float64, len(s))
	for i, p := range s {
		v, err := p.Flux.In(units.Jansky)
		if err != nil {
			return err
		}
		flux[i] = v
	}
	sigma := make([]float64, len(s))
	vecmath.ScaleBlock(sigma, flux, a.consts.FracError)
	for i := range s {
		s[i].FluxErr = units.New(sigma[i], units.Jansky)
	}
	return nil
}
