// Package archive keeps a local SQLite history of extraction runs: the
// position, the assembled SED and every fit made from it.
//
// Usage:
//
//	st, err := archive.Open("sedfit.db")
//	defer st.Close()
//	id, err := st.SaveRun(ctx, "N113", pos, s, fixed, free)
//	s, err := st.LoadSED(ctx, id)
package archive

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/cwbudde/algo-sed/fit"
	"github.com/cwbudde/algo-sed/internal/lsq"
	"github.com/cwbudde/algo-sed/sed"
	"github.com/cwbudde/algo-sed/sky"
	"github.com/cwbudde/algo-sed/units"
)

// ErrNotFound is returned when a run ID is unknown.
var ErrNotFound = errors.New("archive: run not found")

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id           TEXT PRIMARY KEY,
	tag          TEXT NOT NULL,
	ra_deg       REAL NOT NULL,
	dec_deg      REAL NOT NULL,
	created_unix INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS runs_tag ON runs(tag);

CREATE TABLE IF NOT EXISTS points (
	run_id      TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	seq         INTEGER NOT NULL,
	band        TEXT NOT NULL,
	wav_um      REAL NOT NULL,
	file        TEXT NOT NULL,
	i_mjy_sr    REAL NOT NULL,
	s_jy        REAL NOT NULL,
	serr_jy     REAL NOT NULL,
	PRIMARY KEY (run_id, seq)
);

CREATE TABLE IF NOT EXISTS fits (
	run_id       TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	seq          INTEGER NOT NULL,
	mode         TEXT NOT NULL,
	t_k          REAL NOT NULL,
	log_n        REAL NOT NULL,
	beta         REAL NOT NULL,
	converged    INTEGER NOT NULL,
	status       INTEGER NOT NULL,
	cost         REAL NOT NULL,
	iterations   INTEGER NOT NULL,
	evaluations  INTEGER NOT NULL,
	t_err        REAL,
	log_n_err    REAL,
	beta_err     REAL,
	PRIMARY KEY (run_id, seq)
);
`

// Run is one archived extraction.
type Run struct {
	ID       string
	Tag      string
	Position sky.Position
	Created  time.Time
}

type config struct {
	busyTimeout int
	mkdirAll    bool
	newID       func() string
	now         func() time.Time
}

// Option customises Open.
type Option func(*config)

// WithBusyTimeout sets PRAGMA busy_timeout in milliseconds. Default: 5000.
func WithBusyTimeout(ms int) Option { return func(c *config) { c.busyTimeout = ms } }

// WithMkdirAll creates the parent directory of the database file.
func WithMkdirAll() Option { return func(c *config) { c.mkdirAll = true } }

// WithIDGenerator replaces the UUIDv7 run ID generator.
func WithIDGenerator(gen func() string) Option { return func(c *config) { c.newID = gen } }

// WithClock replaces time.Now for run timestamps.
func WithClock(now func() time.Time) Option { return func(c *config) { c.now = now } }

// Store is an open archive.
type Store struct {
	db    *sql.DB
	newID func() string
	now   func() time.Time
}

// Open opens or creates the archive at path. ":memory:" gives a private
// in-memory database. The store holds a single connection.
func Open(path string, opts ...Option) (*Store, error) {
	cfg := config{
		busyTimeout: 5000,
		newID:       func() string { return uuid.Must(uuid.NewV7()).String() },
		now:         time.Now,
	}
	for _, o := range opts {
		o(&cfg)
	}

	if cfg.mkdirAll && path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("archive: mkdir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("archive: open: %w", err)
	}
	// Pragmas are per connection and every connection to :memory: is a
	// separate database.
	db.SetMaxOpenConns(1)
	for _, p := range []string{
		"PRAGMA foreign_keys = ON",
		fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.busyTimeout),
	} {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("archive: %s: %w", p, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("archive: schema: %w", err)
	}
	return &Store{db: db, newID: cfg.newID, now: cfg.now}, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// SaveRun stores the SED and fits of one extraction in a single transaction
// and returns the new run ID.
func (s *Store) SaveRun(ctx context.Context, tag string, pos sky.Position, points sed.SED, fits ...fit.Result) (string, error) {
	id := s.newID()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("archive: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	q, args, err := sq.Insert("runs").
		Columns("id", "tag", "ra_deg", "dec_deg", "created_unix").
		Values(id, tag, pos.RA, pos.Dec, s.now().UnixNano()).
		ToSql()
	if err != nil {
		return "", err
	}
	if _, err := tx.ExecContext(ctx, q, args...); err != nil {
		return "", fmt.Errorf("archive: insert run: %w", err)
	}

	if len(points) > 0 {
		ins := sq.Insert("points").Columns("run_id", "seq", "band", "wav_um", "file", "i_mjy_sr", "s_jy", "serr_jy")
		for i, p := range points {
			vals, err := pointValues(p)
			if err != nil {
				return "", fmt.Errorf("archive: point %s: %w", p.Band, err)
			}
			ins = ins.Values(append([]any{id, i, p.Band}, vals...)...)
		}
		if err := execBuilder(ctx, tx, ins); err != nil {
			return "", fmt.Errorf("archive: insert points: %w", err)
		}
	}

	if len(fits) > 0 {
		ins := sq.Insert("fits").Columns("run_id", "seq", "mode", "t_k", "log_n", "beta",
			"converged", "status", "cost", "iterations", "evaluations", "t_err", "log_n_err", "beta_err")
		for i, r := range fits {
			errs := [3]sql.NullFloat64{}
			for j := 0; j < len(r.StdErr) && j < 3; j++ {
				if v := r.StdErr[j]; !math.IsNaN(v) && !math.IsInf(v, 0) {
					errs[j] = sql.NullFloat64{Float64: v, Valid: true}
				}
			}
			ins = ins.Values(id, i, r.Mode, r.Temperature, r.LogColumn(), r.Beta,
				r.Converged, int(r.Status), r.Cost, r.Iterations, r.Evaluations, errs[0], errs[1], errs[2])
		}
		if err := execBuilder(ctx, tx, ins); err != nil {
			return "", fmt.Errorf("archive: insert fits: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("archive: commit: %w", err)
	}
	return id, nil
}

func pointValues(p sed.Point) ([]any, error) {
	wav, err := p.Wavelength.In(units.Micrometer)
	if err != nil {
		return nil, err
	}
	inten, err := p.Intensity.In(units.MegaJanskyPerSteradian)
	if err != nil {
		return nil, err
	}
	flux, err := p.Flux.In(units.Jansky)
	if err != nil {
		return nil, err
	}
	ferr, err := p.FluxErr.In(units.Jansky)
	if err != nil {
		return nil, err
	}
	return []any{wav, p.File, inten, flux, ferr}, nil
}

func execBuilder(ctx context.Context, tx *sql.Tx, b sq.InsertBuilder) error {
	q, args, err := b.ToSql()
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, q, args...)
	return err
}

// Run returns the run with the given ID.
func (s *Store) Run(ctx context.Context, id string) (Run, error) {
	q, args, err := sq.Select("id", "tag", "ra_deg", "dec_deg", "created_unix").
		From("runs").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return Run{}, err
	}
	r, err := scanRun(s.db.QueryRowContext(ctx, q, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Run{}, fmt.Errorf("archive: run %s: %w", id, err)
	}
	return r, nil
}

// Runs lists the runs for tag, oldest first. An empty tag lists every run.
func (s *Store) Runs(ctx context.Context, tag string) ([]Run, error) {
	b := sq.Select("id", "tag", "ra_deg", "dec_deg", "created_unix").From("runs").OrderBy("created_unix", "id")
	if tag != "" {
		b = b.Where(sq.Eq{"tag": tag})
	}
	q, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("archive: query runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("archive: scan run: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("archive: rows: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var (
		r       Run
		created int64
	)
	if err := row.Scan(&r.ID, &r.Tag, &r.Position.RA, &r.Position.Dec, &created); err != nil {
		return Run{}, err
	}
	r.Created = time.Unix(0, created).UTC()
	return r, nil
}

// LoadSED returns the points of a run in stored order.
func (s *Store) LoadSED(ctx context.Context, id string) (sed.SED, error) {
	if _, err := s.Run(ctx, id); err != nil {
		return nil, err
	}
	q, args, err := sq.Select("band", "wav_um", "file", "i_mjy_sr", "s_jy", "serr_jy").
		From("points").
		Where(sq.Eq{"run_id": id}).
		OrderBy("seq").
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("archive: query points: %w", err)
	}
	defer rows.Close()

	out := sed.SED{}
	for rows.Next() {
		var (
			p                      sed.Point
			wav, inten, flux, ferr float64
		)
		if err := rows.Scan(&p.Band, &wav, &p.File, &inten, &flux, &ferr); err != nil {
			return nil, fmt.Errorf("archive: scan point: %w", err)
		}
		p.Wavelength = units.New(wav, units.Micrometer)
		p.Intensity = units.New(inten, units.MegaJanskyPerSteradian)
		p.Flux = units.New(flux, units.Jansky)
		p.FluxErr = units.New(ferr, units.Jansky)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("archive: rows: %w", err)
	}
	return out, nil
}

// LoadFits returns the fits of a run in stored order.
func (s *Store) LoadFits(ctx context.Context, id string) ([]fit.Result, error) {
	if _, err := s.Run(ctx, id); err != nil {
		return nil, err
	}
	q, args, err := sq.Select("mode", "t_k", "log_n", "beta", "converged", "status", "cost",
		"iterations", "evaluations", "t_err", "log_n_err", "beta_err").
		From("fits").
		Where(sq.Eq{"run_id": id}).
		OrderBy("seq").
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("archive: query fits: %w", err)
	}
	defer rows.Close()

	var out []fit.Result
	for rows.Next() {
		var (
			r      fit.Result
			logN   float64
			status int
			errs   [3]sql.NullFloat64
		)
		if err := rows.Scan(&r.Mode, &r.Temperature, &logN, &r.Beta, &r.Converged, &status, &r.Cost,
			&r.Iterations, &r.Evaluations, &errs[0], &errs[1], &errs[2]); err != nil {
			return nil, fmt.Errorf("archive: scan fit: %w", err)
		}
		r.Column = math.Pow(10, logN)
		r.Status = lsq.Status(status)
		n := 2
		if r.Mode == "free" {
			n = 3
		}
		r.StdErr = make([]float64, n)
		for j := range n {
			r.StdErr[j] = math.NaN()
			if errs[j].Valid {
				r.StdErr[j] = errs[j].Float64
			}
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("archive: rows: %w", err)
	}
	return out, nil
}

// DeleteRun removes a run with its points and fits.
func (s *Store) DeleteRun(ctx context.Context, id string) error {
	q, args, err := sq.Delete("runs").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("archive: delete %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}
