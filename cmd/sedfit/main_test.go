package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cwbudde/algo-sed/archive"
	"github.com/cwbudde/algo-sed/dust"
	"github.com/cwbudde/algo-sed/internal/testutil"
	"github.com/cwbudde/algo-sed/sed"
	"github.com/cwbudde/algo-sed/sky"
)

var bandFiles = map[string]float64{
	"lmc_both_pacs_100_binned.fits":  100,
	"lmc_both_pacs_160_binned.fits":  160,
	"lmc_both_spire_250_binned.fits": 250,
	"lmc_both_spire_350_binned.fits": 350,
	"lmc_both_spire_500_binned.fits": 500,
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"SEDFIT_CONFIG", "SEDFIT_DATA_DIR", "SEDFIT_DATABASE"} {
		t.Setenv(k, "")
	}
}

// writeMaps writes constant maps around pos whose intensities reproduce
// 20 K dust with N_tot = 10^22.5 cm^-2 and β = 1.96.
func writeMaps(t *testing.T, pos sky.Position, skip string) string {
	t.Helper()
	m, err := dust.NewModel(dust.DefaultConstants())
	if err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	for name, wav := range bandFiles {
		if name == skip {
			continue
		}
		s, err := m.FluxJy(wav, 20, math.Pow(10, 22.5), 1.96)
		if err != nil {
			t.Fatal(err)
		}
		mjysr := s / 4.26e-8 / 1e6
		testutil.WriteMap(t, filepath.Join(dir, name), testutil.MapSpec{
			Width: 7, Height: 7,
			Fill:  func(int) float64 { return mjysr },
			Cards: testutil.TANCards(pos.RA, pos.Dec, 4, 4, 0.004),
		})
	}
	return dir
}

func TestRunExtractsFitsAndArchives(t *testing.T) {
	clearEnv(t)
	pos := sky.MustParse("05h13m17.40s", "-69d22m22.0s")
	data := writeMaps(t, pos, "")
	out := t.TempDir()
	db := filepath.Join(out, "db", "runs.db")

	var stdout, stderr bytes.Buffer
	args := []string{"-data", data, "-out", out, "-db", db, "-log-level", "error"}
	if err := run(context.Background(), args, &stdout, &stderr); err != nil {
		t.Fatalf("run: %v\nstderr:\n%s", err, stderr.String())
	}

	text := stdout.String()
	for _, want := range []string{"[N113 fixed]", "[N113 free]", "beta envelope 1.18", "n113_sed_points.csv", "SPIRE500"} {
		if !strings.Contains(text, want) {
			t.Errorf("stdout lacks %q:\n%s", want, text)
		}
	}
	if !strings.Contains(text, "T_d [K]        20.000") {
		t.Errorf("fixed fit did not recover 20 K:\n%s", text)
	}

	s, err := sed.ReadFile(filepath.Join(out, "n113_sed_points.csv"))
	if err != nil {
		t.Fatal(err)
	}
	if len(s) != 5 || !s.Sorted() {
		t.Fatalf("CSV SED has %d points, sorted=%v", len(s), s.Sorted())
	}
	for _, mode := range []string{"fixed", "free"} {
		if _, err := os.Stat(filepath.Join(out, "n113_model_"+mode+".csv")); err != nil {
			t.Errorf("curve %s: %v", mode, err)
		}
	}

	st, err := archive.Open(db)
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	runs, err := st.Runs(context.Background(), "N113")
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 {
		t.Fatalf("archived %d runs", len(runs))
	}
	fits, err := st.LoadFits(context.Background(), runs[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(fits) != 2 || fits[0].Mode != "fixed" || !fits[0].Converged {
		t.Fatalf("archived fits = %+v", fits)
	}
}

func TestRunStrictMissingBand(t *testing.T) {
	clearEnv(t)
	pos := sky.MustParse("05h13m17.40s", "-69d22m22.0s")
	data := writeMaps(t, pos, "lmc_both_spire_350_binned.fits")
	out := t.TempDir()

	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{"-data", data, "-out", out, "-log-level", "error"}, &stdout, &stderr)
	if err == nil || !strings.Contains(err.Error(), "SPIRE350") {
		t.Fatalf("err = %v, want missing SPIRE350", err)
	}
	if _, err := os.Stat(filepath.Join(out, "n113_sed_points.csv")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("CSV written for a failed strict run: %v", err)
	}
}

func TestRunLenientDoesNotFit(t *testing.T) {
	clearEnv(t)
	pos := sky.MustParse("05h13m17.40s", "-69d22m22.0s")
	data := writeMaps(t, pos, "lmc_both_pacs_100_binned.fits")
	out := t.TempDir()

	var stdout, stderr bytes.Buffer
	args := []string{"-data", data, "-out", out, "-lenient", "-log-level", "warn"}
	if err := run(context.Background(), args, &stdout, &stderr); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(stdout.String(), "incomplete SED, 1 band(s) skipped") {
		t.Fatalf("stdout:\n%s", stdout.String())
	}
	if strings.Contains(stdout.String(), "[N113 fixed]") {
		t.Fatal("incomplete SED was fitted")
	}
	if !strings.Contains(stderr.String(), "PACS100") {
		t.Fatalf("skip not logged:\n%s", stderr.String())
	}
}

func TestRunFromCSV(t *testing.T) {
	clearEnv(t)
	pos := sky.MustParse("05h13m17.40s", "-69d22m22.0s")
	data := writeMaps(t, pos, "")
	out := t.TempDir()

	var stdout, stderr bytes.Buffer
	if err := run(context.Background(), []string{"-data", data, "-out", out, "-no-curve", "-log-level", "error"}, &stdout, &stderr); err != nil {
		t.Fatal(err)
	}

	stdout.Reset()
	in := filepath.Join(out, "n113_sed_points.csv")
	args := []string{"-csv", in, "-out", out, "-mode", "free", "-solver", "bounded", "-log-level", "error"}
	if err := run(context.Background(), args, &stdout, &stderr); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(stdout.String(), "[n113_sed_points free]") || strings.Contains(stdout.String(), "fixed]") {
		t.Fatalf("stdout:\n%s", stdout.String())
	}
	if _, err := os.Stat(filepath.Join(out, "n113_model_fixed.csv")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("curve written with -no-curve: %v", err)
	}
}

func TestFlagErrors(t *testing.T) {
	clearEnv(t)
	var stdout, stderr bytes.Buffer
	tests := [][]string{
		{"-ra", "05h13m17.40s"},
		{"stray"},
		{"-method", "cubic"},
		{"-mode", "quadratic"},
	}
	for _, args := range tests {
		if err := run(context.Background(), args, &stdout, &stderr); err == nil {
			t.Errorf("run(%v) succeeded", args)
		}
	}
	if err := run(context.Background(), []string{"-h"}, &stdout, &stderr); !errors.Is(err, flag.ErrHelp) {
		t.Fatalf("-h: err = %v", err)
	}
	if !strings.Contains(stderr.String(), "Usage: sedfit") {
		t.Fatal("usage not printed")
	}
}
