// Command sedfit extracts a far-infrared SED at one or more sky positions
// from Herschel PACS/SPIRE maps and fits a modified-blackbody dust model.
//
// Usage:
//
//	sedfit [flags]
//
// Without flags the configuration comes from $SEDFIT_CONFIG, or from the
// built-in defaults (N113 on the binned LMC maps in data/binned).
//
// Examples:
//
//	sedfit -data data/binned
//	sedfit -tag N159W -ra 05h39m36.5s -dec -69d45m35.0s
//	sedfit -config n113.yaml -db runs.db -log-level debug
//	sedfit -csv n113_sed_points.csv -mode free
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/cwbudde/algo-sed/archive"
	"github.com/cwbudde/algo-sed/band"
	"github.com/cwbudde/algo-sed/fit"
	"github.com/cwbudde/algo-sed/internal/config"
	"github.com/cwbudde/algo-sed/internal/logging"
	"github.com/cwbudde/algo-sed/report"
	"github.com/cwbudde/algo-sed/sed"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		stop()
		os.Exit(1)
	}
}

type flags struct {
	config   string
	data     string
	out      string
	csvIn    string
	tag      string
	ra       string
	dec      string
	method   string
	mode     string
	solver   string
	lenient  bool
	noCurve  bool
	db       string
	logLevel string
}

func parseFlags(args []string, stderr io.Writer) (flags, error) {
	var f flags
	fs := flag.NewFlagSet("sedfit", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&f.config, "config", "", "YAML configuration file (default $SEDFIT_CONFIG)")
	fs.StringVar(&f.data, "data", "", "directory holding the band maps")
	fs.StringVar(&f.out, "out", "", "output directory for CSV files")
	fs.StringVar(&f.csvIn, "csv", "", "fit an existing SED CSV instead of extracting")
	fs.StringVar(&f.tag, "tag", "", "target name; with -ra/-dec replaces the configured targets")
	fs.StringVar(&f.ra, "ra", "", "right ascension, e.g. 05h13m17.40s or degrees")
	fs.StringVar(&f.dec, "dec", "", "declination, e.g. -69d22m22.0s or degrees")
	fs.StringVar(&f.method, "method", "", "sampling method: nearest or bilinear")
	fs.StringVar(&f.mode, "mode", "", "comma-separated fit modes: fixed, free")
	fs.StringVar(&f.solver, "solver", "", "least-squares backend: bounded or transformed")
	fs.BoolVar(&f.lenient, "lenient", false, "skip failing bands instead of aborting")
	fs.BoolVar(&f.noCurve, "no-curve", false, "do not write model curve CSVs")
	fs.StringVar(&f.db, "db", "", "SQLite archive file (default $SEDFIT_DATABASE)")
	fs.StringVar(&f.logLevel, "log-level", "", "log level: debug, info, warn, error")
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: sedfit [flags]\n\n")
		fmt.Fprintf(stderr, "Extracts a dust SED from Herschel maps and fits a modified blackbody.\n\n")
		fmt.Fprintf(stderr, "Flags:\n")
		fs.PrintDefaults()
		fmt.Fprintf(stderr, "\nExamples:\n")
		fmt.Fprintf(stderr, "  sedfit -data data/binned\n")
		fmt.Fprintf(stderr, "  sedfit -tag N159W -ra 05h39m36.5s -dec -69d45m35.0s\n")
		fmt.Fprintf(stderr, "  sedfit -csv n113_sed_points.csv -mode free\n")
	}
	if err := fs.Parse(args); err != nil {
		return flags{}, err
	}
	if fs.NArg() > 0 {
		return flags{}, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}
	if (f.ra == "") != (f.dec == "") {
		return flags{}, errors.New("-ra and -dec must be given together")
	}
	return f, nil
}

// loadConfig merges the configuration file with the command line.
func loadConfig(f flags) (config.Config, error) {
	var (
		cfg config.Config
		err error
	)
	if f.config != "" {
		cfg, err = config.LoadFromPath(f.config)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return config.Config{}, err
	}

	if f.data != "" {
		cfg.DataDir = f.data
	}
	if f.out != "" {
		cfg.OutputDir = f.out
	}
	if f.method != "" {
		cfg.Method = f.method
	}
	if f.mode != "" {
		cfg.Modes = strings.Split(f.mode, ",")
	}
	if f.solver != "" {
		cfg.Solver.Backend = f.solver
	}
	if f.lenient {
		cfg.Policy = "lenient"
	}
	if f.noCurve {
		cfg.WriteCurve = false
	}
	if f.db != "" {
		cfg.Database = f.db
	}
	if f.logLevel != "" {
		cfg.LogLevel = f.logLevel
	}
	if f.ra != "" {
		tag := f.tag
		if tag == "" {
			tag = "target"
		}
		cfg.Targets = []config.TargetConfig{{Tag: tag, RA: f.ra, Dec: f.dec}}
	}
	return cfg, cfg.Validate()
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	f, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(f)
	if err != nil {
		return err
	}
	log := logging.NewWithWriter(stderr, cfg.LogLevel)

	consts, err := cfg.Constants()
	if err != nil {
		return err
	}
	fitOpts, err := cfg.FitOptions(log)
	if err != nil {
		return err
	}
	fitter, err := fit.NewFitter(consts, fitOpts...)
	if err != nil {
		return err
	}
	modes, err := cfg.FitModes(consts)
	if err != nil {
		return err
	}
	targets, err := cfg.ResolveTargets()
	if err != nil {
		return err
	}

	var store *archive.Store
	if cfg.Database != "" {
		store, err = archive.Open(cfg.Database, archive.WithMkdirAll())
		if err != nil {
			return err
		}
		defer store.Close()
	}

	p := &pipeline{cfg: cfg, fitter: fitter, modes: modes, store: store, log: log, out: stdout}

	if f.csvIn != "" {
		s, err := sed.ReadFile(f.csvIn)
		if err != nil {
			return err
		}
		t := targets[0]
		if f.ra == "" && f.tag == "" {
			t.Tag = strings.TrimSuffix(filepath.Base(f.csvIn), filepath.Ext(f.csvIn))
		} else if f.tag != "" {
			t.Tag = f.tag
		}
		return p.fitAndReport(ctx, t, s, f.csvIn)
	}

	aopts, err := cfg.AssemblerOptions(log)
	if err != nil {
		return err
	}
	asm, err := sed.NewAssembler(band.Default(), consts, aopts...)
	if err != nil {
		return err
	}
	for _, t := range targets {
		if err := p.extract(ctx, asm, t); err != nil {
			return fmt.Errorf("%s: %w", t.Tag, err)
		}
	}
	return nil
}

type pipeline struct {
	cfg    config.Config
	fitter *fit.Fitter
	modes  []fit.Mode
	store  *archive.Store
	log    *slog.Logger
	out    io.Writer
}

// extract assembles, writes and fits one target. An incomplete SED from the
// lenient policy is written but never fitted.
func (p *pipeline) extract(ctx context.Context, asm *sed.Assembler, t config.Target) error {
	log := p.log.With("target", t.Tag)
	log.Info("extracting", "position", t.Position.String(), "data", p.cfg.DataDir)

	res, err := asm.Assemble(ctx, t.Position)
	if err != nil {
		return err
	}
	csvPath := p.cfg.CSVPath(t.Tag)
	if err := sed.WriteFile(csvPath, res.SED); err != nil {
		return err
	}
	log.Info("wrote SED", "path", csvPath, "points", len(res.SED))

	if err := res.Err(); err != nil {
		log.Warn("SED incomplete, not fitting", "err", err)
		if _, werr := fmt.Fprintf(p.out, "[%s] incomplete SED, %d band(s) skipped\n", t.Tag, len(res.Skipped)); werr != nil {
			return werr
		}
		return report.WriteSED(p.out, res.SED)
	}
	return p.fitAndReport(ctx, t, res.SED, csvPath)
}

func (p *pipeline) fitAndReport(ctx context.Context, t config.Target, s sed.SED, csvPath string) error {
	log := p.log.With("target", t.Tag)
	if err := report.WriteSED(p.out, s); err != nil {
		return err
	}
	wav, flux, ferr, err := s.Arrays()
	if err != nil {
		return err
	}

	results := make([]fit.Result, 0, len(p.modes))
	for _, mode := range p.modes {
		r, err := p.fitter.Fit(wav, flux, ferr, mode)
		if err != nil {
			return fmt.Errorf("%s fit: %w", mode.Name(), err)
		}
		if !r.Converged {
			log.Warn("fit did not converge", "mode", r.Mode, "status", r.Status, "iterations", r.Iterations)
		}
		results = append(results, r)

		grid, err := fit.LogGrid(fit.CurveMinUm, fit.CurveMaxUm, fit.CurvePoints)
		if err != nil {
			return err
		}
		curve, err := p.fitter.Curve(r, grid)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintln(p.out); err != nil {
			return err
		}
		if err := report.Write(p.out, t.Tag, r, p.fitter.Constants(), filepath.Base(csvPath),
			report.WithPeakWavelength(fit.PeakWavelength(grid, curve))); err != nil {
			return err
		}
		if p.cfg.WriteCurve {
			path := p.cfg.CurvePath(t.Tag, r.Mode)
			if err := p.fitter.WriteCurveFile(path, r); err != nil {
				return err
			}
			log.Debug("wrote model curve", "path", path)
		}
	}

	if p.cfg.Envelope.Enabled {
		env, err := p.fitter.Envelope(wav, flux, ferr, p.cfg.Envelope.Beta0, p.cfg.Envelope.Delta)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintln(p.out); err != nil {
			return err
		}
		if err := report.WriteEnvelope(p.out, env); err != nil {
			return err
		}
	}

	if p.store != nil {
		id, err := p.store.SaveRun(ctx, t.Tag, t.Position, s, results...)
		if err != nil {
			return err
		}
		log.Info("archived run", "id", id)
	}
	return nil
}
