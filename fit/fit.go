package fit

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/cwbudde/algo-vecmath"

	"github.com/cwbudde/algo-sed/dust"
	"github.com/cwbudde/algo-sed/internal/logging"
	"github.com/cwbudde/algo-sed/internal/lsq"
	"github.com/cwbudde/algo-sed/sed"
	"github.com/cwbudde/algo-sed/units"
)

// Errors returned by the fitter.
var (
	ErrInvalidInput = errors.New("fit: invalid input")
	ErrInvalidMode  = errors.New("fit: invalid mode")
)

// Solver selects the bounded least-squares backend.
type Solver int

// Solvers.
const (
	// ProjectedLM is the projected Levenberg-Marquardt solver.
	ProjectedLM Solver = iota
	// Transformed maps the box onto an unbounded space.
	Transformed
)

func (s Solver) String() string {
	switch s {
	case ProjectedLM:
		return "bounded"
	case Transformed:
		return "transformed"
	default:
		return fmt.Sprintf("Solver(%d)", int(s))
	}
}

// ParseSolver maps "bounded" or "transformed" to a [Solver].
func ParseSolver(s string) (Solver, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "bounded", "":
		return ProjectedLM, nil
	case "transformed":
		return Transformed, nil
	default:
		return 0, fmt.Errorf("%w: unknown solver %q", ErrInvalidMode, s)
	}
}

// Config holds the fitter settings.
type Config struct {
	Solver   Solver
	Settings lsq.Settings
	Logger   *slog.Logger
}

// Option mutates a Config.
type Option func(*Config)

// DefaultConfig returns the projected solver with a 200 iteration cap.
func DefaultConfig() Config {
	return Config{
		Solver:   ProjectedLM,
		Settings: lsq.DefaultSettings(),
		Logger:   logging.Discard(),
	}
}

// WithSolver selects the backend.
func WithSolver(s Solver) Option {
	return func(cfg *Config) { cfg.Solver = s }
}

// WithMaxIterations sets the iteration cap.
func WithMaxIterations(n int) Option {
	return func(cfg *Config) {
		if n > 0 {
			cfg.Settings.MaxIterations = n
		}
	}
}

// WithTolerances sets the gradient, cost and step tolerances. Non-positive
// values keep the defaults.
func WithTolerances(grad, cost, step float64) Option {
	return func(cfg *Config) {
		if grad > 0 {
			cfg.Settings.GradTol = grad
		}
		if cost > 0 {
			cfg.Settings.CostTol = cost
		}
		if step > 0 {
			cfg.Settings.StepTol = step
		}
	}
}

// WithLogger sets the logger for fit summaries.
func WithLogger(l *slog.Logger) Option {
	return func(cfg *Config) {
		if l != nil {
			cfg.Logger = l
		}
	}
}

// ApplyOptions applies zero or more options to the default config.
func ApplyOptions(opts ...Option) Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

// Result is the outcome of one fit.
type Result struct {
	Mode        string
	Temperature float64 // K
	Column      float64 // N_tot, cm^-2
	Beta        float64
	// StdErr holds the 1σ uncertainty of each solver parameter, in the order
	// of Mode.ParamNames, from the inverse of JᵀJ at the optimum. Entries
	// are NaN when the matrix is singular.
	StdErr      []float64
	Converged   bool
	Status      lsq.Status
	Cost        float64 // Σ r_i² with r_i = (S_i - model_i)/σ_i
	Iterations  int
	Evaluations int
}

// LogColumn returns log10 N_tot.
func (r Result) LogColumn() float64 { return math.Log10(r.Column) }

// Fitter fits the modified-blackbody model to an SED.
type Fitter struct {
	model *dust.Model
	cfg   Config
}

// NewFitter returns a fitter for the calibration c.
func NewFitter(c dust.Constants, opts ...Option) (*Fitter, error) {
	m, err := dust.NewModel(c)
	if err != nil {
		return nil, err
	}
	cfg := ApplyOptions(opts...)
	if cfg.Solver != ProjectedLM && cfg.Solver != Transformed {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMode, cfg.Solver)
	}
	return &Fitter{model: m, cfg: cfg}, nil
}

// Model returns the dust model used for fitting.
func (f *Fitter) Model() *dust.Model { return f.model }

// Constants returns the calibration of the fitter.
func (f *Fitter) Constants() dust.Constants { return f.model.Constants() }

// Validate checks that the three arrays have equal non-zero length and hold
// finite, strictly positive values.
func Validate(wavUm, fluxJy, errJy []float64) error {
	if len(wavUm) == 0 {
		return fmt.Errorf("%w: empty SED", ErrInvalidInput)
	}
	if len(fluxJy) != len(wavUm) || len(errJy) != len(wavUm) {
		return fmt.Errorf("%w: length mismatch %d/%d/%d", ErrInvalidInput, len(wavUm), len(fluxJy), len(errJy))
	}
	for _, col := range []struct {
		name string
		v    []float64
	}{{"wavelength", wavUm}, {"flux", fluxJy}, {"flux error", errJy}} {
		for i, v := range col.v {
			if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
				return fmt.Errorf("%w: %s[%d] = %g", ErrInvalidInput, col.name, i, v)
			}
		}
	}
	return nil
}

// Fit solves the bounded least-squares problem for mode. Non-convergence is
// reported in Result.Converged and never as an error.
func (f *Fitter) Fit(wavUm, fluxJy, errJy []float64, mode Mode) (Result, error) {
	if err := Validate(wavUm, fluxJy, errJy); err != nil {
		return Result{}, err
	}
	if !mode.valid() {
		return Result{}, fmt.Errorf("%w: zero Mode", ErrInvalidMode)
	}
	obj, err := newObjective(f.model, wavUm, fluxJy, errJy, mode)
	if err != nil {
		return Result{}, err
	}

	lower, upper := mode.Bounds()
	problem := lsq.Problem{
		Func:  obj.residuals,
		M:     len(wavUm),
		X0:    mode.Initial(),
		Lower: lower,
		Upper: upper,
	}
	var sol lsq.Result
	switch f.cfg.Solver {
	case Transformed:
		sol, err = lsq.SolveTransformed(problem, f.cfg.Settings)
	default:
		sol, err = lsq.Solve(problem, f.cfg.Settings)
	}
	if err != nil {
		return Result{}, fmt.Errorf("fit: %w", err)
	}

	p := mode.Unpack(sol.X)
	res := Result{
		Mode:        mode.Name(),
		Temperature: p.Temperature,
		Column:      math.Pow(10, p.LogColumn),
		Beta:        p.Beta,
		StdErr:      standardErrors(obj.residuals, sol.X, len(wavUm), f.cfg.Settings.JacobianStep),
		Converged:   sol.Converged(),
		Status:      sol.Status,
		Cost:        sol.Cost,
		Iterations:  sol.Iterations,
		Evaluations: sol.Evaluations,
	}
	f.cfg.Logger.Debug("fit finished",
		"mode", res.Mode,
		"solver", f.cfg.Solver,
		"T", res.Temperature,
		"log10N", p.LogColumn,
		"beta", res.Beta,
		"cost", res.Cost,
		"status", res.Status,
		"iterations", res.Iterations,
	)
	return res, nil
}

// FitSED fits the points of s.
func (f *Fitter) FitSED(s sed.SED, mode Mode) (Result, error) {
	wav, flux, ferr, err := s.Arrays()
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	return f.Fit(wav, flux, ferr, mode)
}

// FitMode parses mode with [ParseMode] and fits.
func (f *Fitter) FitMode(wavUm, fluxJy, errJy []float64, mode string) (Result, error) {
	m, err := ParseMode(mode, f.Constants())
	if err != nil {
		return Result{}, err
	}
	return f.Fit(wavUm, fluxJy, errJy, m)
}

// objective evaluates weighted residuals r = (S - model)·(1/σ).
type objective struct {
	model    *dust.Model
	nu       []units.Quantity
	flux     []float64
	invSigma []float64
	mode     Mode
	buf      []float64
}

func newObjective(m *dust.Model, wavUm, fluxJy, errJy []float64, mode Mode) (*objective, error) {
	o := &objective{
		model:    m,
		nu:       make([]units.Quantity, len(wavUm)),
		flux:     fluxJy,
		invSigma: make([]float64, len(errJy)),
		mode:     mode,
		buf:      make([]float64, len(wavUm)),
	}
	for i, w := range wavUm {
		nu, err := dust.Frequency(units.New(w, units.Micrometer))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
		o.nu[i] = nu
		o.invSigma[i] = 1 / errJy[i]
	}
	return o, nil
}

func (o *objective) residuals(dst, x []float64) {
	p := o.mode.Unpack(x)
	temp := units.New(p.Temperature, units.Kelvin)
	col := units.New(math.Pow(10, p.LogColumn), units.PerSquareCentimeter)
	for i, nu := range o.nu {
		s, err := o.model.FluxDensity(nu, temp, col, p.Beta)
		if err != nil {
			o.buf[i] = math.NaN()
			continue
		}
		jy, err := s.In(units.Jansky)
		if err != nil {
			jy = math.NaN()
		}
		o.buf[i] = -jy
	}
	// dst = (flux - model) * invSigma
	vecmath.AddBlock(dst, o.flux, o.buf)
	vecmath.MulBlockInPlace(dst, o.invSigma)
}

// Residuals returns the weighted residuals of r against the data.
func (f *Fitter) Residuals(wavUm, fluxJy, errJy []float64, r Result) ([]float64, error) {
	if err := Validate(wavUm, fluxJy, errJy); err != nil {
		return nil, err
	}
	model, err := f.Curve(r, wavUm)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(wavUm))
	vecmath.ScaleBlockInPlace(model, -1)
	vecmath.AddBlock(out, fluxJy, model)
	for i := range out {
		out[i] /= errJy[i]
	}
	return out, nil
}
