// Package config loads the sedfit run configuration from YAML with defaults
// and environment overrides.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cwbudde/algo-sed/dust"
	"github.com/cwbudde/algo-sed/fit"
	"github.com/cwbudde/algo-sed/fitsmap"
	"github.com/cwbudde/algo-sed/sed"
	"github.com/cwbudde/algo-sed/sky"
	"github.com/cwbudde/algo-sed/units"
)

const (
	configPathEnv = "SEDFIT_CONFIG"
	dataDirEnv    = "SEDFIT_DATA_DIR"
	databaseEnv   = "SEDFIT_DATABASE"
)

// ErrInvalidConfig is returned for values that cannot be turned into a run.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// Config is the complete run configuration.
type Config struct {
	Targets    []TargetConfig `yaml:"targets"`
	DataDir    string         `yaml:"data_dir"`
	OutputDir  string         `yaml:"output_dir"`
	WriteCurve bool           `yaml:"write_curve"`
	Database   string         `yaml:"database"` // empty disables the archive
	Method     string         `yaml:"method"`   // nearest | bilinear
	Policy     string         `yaml:"policy"`   // strict | lenient
	Modes      []string       `yaml:"modes"`    // fixed | free
	LogLevel   string         `yaml:"log_level"`
	Physics    PhysicsConfig  `yaml:"physics"`
	Envelope   EnvelopeConfig `yaml:"envelope"`
	Solver     SolverConfig   `yaml:"solver"`
}

// TargetConfig is one named sky position in sexagesimal or decimal degrees.
type TargetConfig struct {
	Tag string `yaml:"tag"`
	RA  string `yaml:"ra"`
	Dec string `yaml:"dec"`
}

// PhysicsConfig holds the dust calibration. Dimensioned values are unit
// strings such as "4.26e-8 sr" or "230 GHz".
type PhysicsConfig struct {
	BeamSolidAngle string  `yaml:"beam_solid_angle"`
	GasToDust      float64 `yaml:"gas_to_dust"`
	Kappa0         string  `yaml:"kappa0"`
	Nu0            string  `yaml:"nu0"`
	BetaFixed      float64 `yaml:"beta_fixed"`
	AtomicColumn   string  `yaml:"atomic_column"`
	FracError      float64 `yaml:"frac_error"`
}

// EnvelopeConfig controls the β envelope diagnostic.
type EnvelopeConfig struct {
	Enabled bool    `yaml:"enabled"`
	Beta0   float64 `yaml:"beta0"`
	Delta   float64 `yaml:"delta"`
}

// SolverConfig selects and tunes the least-squares backend.
type SolverConfig struct {
	Backend       string  `yaml:"backend"` // bounded | transformed
	MaxIterations int     `yaml:"max_iterations"`
	GradTol       float64 `yaml:"grad_tol"`
	CostTol       float64 `yaml:"cost_tol"`
	StepTol       float64 `yaml:"step_tol"`
}

// Target is a resolved [TargetConfig].
type Target struct {
	Tag      string
	Position sky.Position
}

// DefaultConfig returns the N113 run on the binned LMC maps.
func DefaultConfig() Config {
	return Config{
		Targets: []TargetConfig{
			{Tag: "N113", RA: "05h13m17.40s", Dec: "-69d22m22.0s"},
		},
		DataDir:    filepath.Join("data", "binned"),
		OutputDir:  ".",
		WriteCurve: true,
		Method:     "bilinear",
		Policy:     "strict",
		Modes:      []string{"fixed", "free"},
		LogLevel:   "info",
		Physics: PhysicsConfig{
			BeamSolidAngle: "4.26e-8 sr",
			GasToDust:      300,
			Kappa0:         "0.8 cm2/g",
			Nu0:            "230 GHz",
			BetaFixed:      1.96,
			AtomicColumn:   "2.6e21 cm-2",
			FracError:      0.10,
		},
		Envelope: EnvelopeConfig{
			Enabled: true,
			Beta0:   fit.DefaultEnvelopeBeta,
			Delta:   fit.DefaultEnvelopeDelta,
		},
		Solver: SolverConfig{
			Backend:       "bounded",
			MaxIterations: 200,
		},
	}
}

// Load reads the file named by SEDFIT_CONFIG, or returns the defaults with
// environment overrides when it is unset.
func Load() (Config, error) {
	if path := os.Getenv(configPathEnv); path != "" {
		return LoadFromPath(path)
	}
	cfg := DefaultConfig()
	cfg.applyEnvOverrides()
	return cfg, cfg.Validate()
}

// LoadFromPath reads a YAML file. Keys absent from the file keep their
// default values.
func LoadFromPath(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	cfg, err := Parse(raw)
	if err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML onto the defaults, then applies environment overrides
// and validates the result.
func Parse(raw []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	cfg.applyDefaults()
	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.DataDir == "" {
		c.DataDir = d.DataDir
	}
	if c.OutputDir == "" {
		c.OutputDir = d.OutputDir
	}
	if c.Method == "" {
		c.Method = d.Method
	}
	if c.Policy == "" {
		c.Policy = d.Policy
	}
	if len(c.Modes) == 0 {
		c.Modes = d.Modes
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
	if c.Solver.Backend == "" {
		c.Solver.Backend = d.Solver.Backend
	}
	if c.Solver.MaxIterations <= 0 {
		c.Solver.MaxIterations = d.Solver.MaxIterations
	}
	for i := range c.Targets {
		if c.Targets[i].Tag == "" {
			c.Targets[i].Tag = fmt.Sprintf("target%d", i+1)
		}
	}
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(dataDirEnv); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv(databaseEnv); v != "" {
		c.Database = v
	}
}

// Validate checks every field that the run depends on.
func (c Config) Validate() error {
	if len(c.Targets) == 0 {
		return fmt.Errorf("%w: no targets", ErrInvalidConfig)
	}
	if _, err := c.ResolveTargets(); err != nil {
		return err
	}
	if _, err := fitsmap.ParseMethod(c.Method); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if _, err := sed.ParsePolicy(c.Policy); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	consts, err := c.Constants()
	if err != nil {
		return err
	}
	if _, err := c.FitModes(consts); err != nil {
		return err
	}
	if _, err := fit.ParseSolver(c.Solver.Backend); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.Envelope.Enabled && !(c.Envelope.Delta >= 0) {
		return fmt.Errorf("%w: envelope delta must be >= 0: %g", ErrInvalidConfig, c.Envelope.Delta)
	}
	return nil
}

// ResolveTargets parses the target coordinates. Tags must be unique.
func (c Config) ResolveTargets() ([]Target, error) {
	out := make([]Target, 0, len(c.Targets))
	seen := make(map[string]bool, len(c.Targets))
	for _, t := range c.Targets {
		if seen[t.Tag] {
			return nil, fmt.Errorf("%w: duplicate target tag %q", ErrInvalidConfig, t.Tag)
		}
		seen[t.Tag] = true
		pos, err := sky.Parse(t.RA, t.Dec)
		if err != nil {
			return nil, fmt.Errorf("%w: target %s: %w", ErrInvalidConfig, t.Tag, err)
		}
		out = append(out, Target{Tag: t.Tag, Position: pos})
	}
	return out, nil
}

// Constants parses the physics section into validated dust constants.
func (c Config) Constants() (dust.Constants, error) {
	p := c.Physics
	quantities := []struct {
		name string
		raw  string
		dst  *units.Quantity
	}{
		{"beam_solid_angle", p.BeamSolidAngle, new(units.Quantity)},
		{"kappa0", p.Kappa0, new(units.Quantity)},
		{"nu0", p.Nu0, new(units.Quantity)},
		{"atomic_column", p.AtomicColumn, new(units.Quantity)},
	}
	for _, q := range quantities {
		v, err := units.Parse(q.raw)
		if err != nil {
			return dust.Constants{}, fmt.Errorf("%w: physics.%s: %w", ErrInvalidConfig, q.name, err)
		}
		*q.dst = v
	}
	consts := dust.ApplyOptions(
		dust.WithBeamSolidAngle(*quantities[0].dst),
		dust.WithOpacity(*quantities[1].dst, *quantities[2].dst),
		dust.WithAtomicColumn(*quantities[3].dst),
		dust.WithGasToDust(p.GasToDust),
		dust.WithBetaFixed(p.BetaFixed),
		dust.WithFracError(p.FracError),
	)
	if err := consts.Validate(); err != nil {
		return dust.Constants{}, fmt.Errorf("config: physics: %w", err)
	}
	return consts, nil
}

// FitModes resolves the configured fit modes in order.
func (c Config) FitModes(consts dust.Constants) ([]fit.Mode, error) {
	out := make([]fit.Mode, 0, len(c.Modes))
	for _, name := range c.Modes {
		m, err := fit.ParseMode(name, consts)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
		out = append(out, m)
	}
	return out, nil
}

// AssemblerOptions returns the sed options for this configuration.
func (c Config) AssemblerOptions(logger *slog.Logger) ([]sed.AssemblerOption, error) {
	method, err := fitsmap.ParseMethod(c.Method)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	policy, err := sed.ParsePolicy(c.Policy)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return []sed.AssemblerOption{
		sed.WithDataDir(c.DataDir),
		sed.WithMethod(method),
		sed.WithPolicy(policy),
		sed.WithLogger(logger),
	}, nil
}

// FitOptions returns the fitter options for this configuration.
func (c Config) FitOptions(logger *slog.Logger) ([]fit.Option, error) {
	solver, err := fit.ParseSolver(c.Solver.Backend)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return []fit.Option{
		fit.WithSolver(solver),
		fit.WithMaxIterations(c.Solver.MaxIterations),
		fit.WithTolerances(c.Solver.GradTol, c.Solver.CostTol, c.Solver.StepTol),
		fit.WithLogger(logger),
	}, nil
}

// CSVPath returns the SED CSV path of a target, e.g. "n113_sed_points.csv".
func (c Config) CSVPath(tag string) string {
	return filepath.Join(c.OutputDir, fileStem(tag)+"_sed_points.csv")
}

// CurvePath returns the model curve CSV path of a target and mode.
func (c Config) CurvePath(tag, mode string) string {
	return filepath.Join(c.OutputDir, fileStem(tag)+"_model_"+mode+".csv")
}

func fileStem(tag string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		case r >= 'A' && r <= 'Z':
			return r + 'a' - 'A'
		default:
			return '_'
		}
	}, tag)
}
