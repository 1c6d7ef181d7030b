package archive

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/cwbudde/algo-sed/fit"
	"github.com/cwbudde/algo-sed/internal/lsq"
	"github.com/cwbudde/algo-sed/sed"
	"github.com/cwbudde/algo-sed/sky"
	"github.com/cwbudde/algo-sed/units"
)

var n113 = sky.MustParse("05h13m17.40s", "-69d22m22.0s")

func openMemory(t *testing.T, opts ...Option) *Store {
	t.Helper()
	st, err := Open(":memory:", opts...)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func sampleSED() sed.SED {
	var s sed.SED
	for i, name := range []string{"PACS100", "PACS160", "SPIRE250", "SPIRE350", "SPIRE500"} {
		wav := []float64{100, 160, 250, 350, 500}[i]
		inten := 100 * float64(i+1) / 3
		flux := inten * 1e6 * 4.26e-8
		s = append(s, sed.Point{
			Band:       name,
			Wavelength: units.New(wav, units.Micrometer),
			File:       fmt.Sprintf("%s.fits", name),
			Intensity:  units.New(inten, units.MegaJanskyPerSteradian),
			Flux:       units.New(flux, units.Jansky),
			FluxErr:    units.New(0.1*flux, units.Jansky),
		})
	}
	return s
}

func sampleFits() []fit.Result {
	return []fit.Result{
		{
			Mode: "fixed", Temperature: 21.3, Column: math.Pow(10, 22.41), Beta: 1.96,
			StdErr: []float64{0.5, 0.04}, Converged: true, Status: lsq.CostConverged,
			Cost: 0.67, Iterations: 5, Evaluations: 31,
		},
		{
			Mode: "free", Temperature: 24.9, Column: math.Pow(10, 22.2), Beta: 1.5,
			StdErr: []float64{3.1, math.NaN(), 0.4}, Converged: false, Status: lsq.IterationLimit,
			Cost: 0.31, Iterations: 200, Evaluations: 1601,
		},
	}
}

func TestSaveAndLoad(t *testing.T) {
	ctx := context.Background()
	st := openMemory(t)

	want := sampleSED()
	id, err := st.SaveRun(ctx, "N113", n113, want, sampleFits()...)
	if err != nil {
		t.Fatal(err)
	}
	u, err := uuid.Parse(id)
	if err != nil || u.Version() != 7 {
		t.Fatalf("run id %q is not a UUIDv7 (err %v)", id, err)
	}

	run, err := st.Run(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if run.Tag != "N113" || math.Abs(run.Position.RA-n113.RA) > 1e-12 || math.Abs(run.Position.Dec-n113.Dec) > 1e-12 {
		t.Fatalf("run = %+v", run)
	}

	got, err := st.LoadSED(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(want) {
		t.Fatalf("got %d points, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].Band != want[i].Band || got[i].File != want[i].File {
			t.Fatalf("point %d: %s/%s", i, got[i].Band, got[i].File)
		}
		gf, _ := got[i].Flux.In(units.Jansky)
		wf, _ := want[i].Flux.In(units.Jansky)
		if gf != wf {
			t.Fatalf("point %d flux %v, want %v", i, gf, wf)
		}
	}

	fits, err := st.LoadFits(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if len(fits) != 2 {
		t.Fatalf("got %d fits", len(fits))
	}
	fixed, free := fits[0], fits[1]
	if fixed.Mode != "fixed" || !fixed.Converged || fixed.Status != lsq.CostConverged || fixed.Iterations != 5 {
		t.Fatalf("fixed = %+v", fixed)
	}
	if math.Abs(fixed.LogColumn()-22.41) > 1e-12 || fixed.Temperature != 21.3 {
		t.Fatalf("fixed T=%v log10N=%v", fixed.Temperature, fixed.LogColumn())
	}
	if len(fixed.StdErr) != 2 || fixed.StdErr[1] != 0.04 {
		t.Fatalf("fixed StdErr = %v", fixed.StdErr)
	}
	if free.Converged || free.Status != lsq.IterationLimit || len(free.StdErr) != 3 {
		t.Fatalf("free = %+v", free)
	}
	if !math.IsNaN(free.StdErr[1]) || free.StdErr[2] != 0.4 {
		t.Fatalf("free StdErr = %v", free.StdErr)
	}
}

func TestRunsByTag(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	st := openMemory(t, WithClock(func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}))

	var ids []string
	for _, tag := range []string{"N113", "N159", "N113"} {
		id, err := st.SaveRun(ctx, tag, n113, sampleSED())
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, id)
	}

	runs, err := st.Runs(ctx, "N113")
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 || runs[0].ID != ids[0] || runs[1].ID != ids[2] {
		t.Fatalf("N113 runs = %+v", runs)
	}
	if !runs[0].Created.Equal(base.Add(time.Minute)) {
		t.Fatalf("created = %v", runs[0].Created)
	}

	all, err := st.Runs(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("all runs = %d", len(all))
	}
}

func TestDeleteRunCascades(t *testing.T) {
	ctx := context.Background()
	st := openMemory(t)
	id, err := st.SaveRun(ctx, "N113", n113, sampleSED(), sampleFits()...)
	if err != nil {
		t.Fatal(err)
	}
	if err := st.DeleteRun(ctx, id); err != nil {
		t.Fatal(err)
	}
	if _, err := st.LoadSED(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("LoadSED after delete: err = %v", err)
	}
	var n int
	if err := st.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM points").Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("%d orphan points", n)
	}
	if err := st.DeleteRun(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete: err = %v", err)
	}
}

func TestSaveRunIsAtomic(t *testing.T) {
	ctx := context.Background()
	st := openMemory(t, WithIDGenerator(func() string { return "fixed-id" }))

	bad := sampleSED()
	bad[3].Flux = units.New(1, units.Kelvin)
	if _, err := st.SaveRun(ctx, "N113", n113, bad); !errors.Is(err, units.ErrUnitConsistency) {
		t.Fatalf("err = %v, want ErrUnitConsistency", err)
	}
	if _, err := st.Run(ctx, "fixed-id"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("partial run stored: err = %v", err)
	}

	if _, err := st.SaveRun(ctx, "N113", n113, sampleSED()); err != nil {
		t.Fatal(err)
	}
	if _, err := st.SaveRun(ctx, "N113", n113, sampleSED()); err == nil {
		t.Fatal("duplicate run id accepted")
	}
}

func TestUnknownRun(t *testing.T) {
	st := openMemory(t)
	if _, err := st.LoadFits(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestFileDatabasePersists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "sedfit.db")

	st, err := Open(path, WithMkdirAll())
	if err != nil {
		t.Fatal(err)
	}
	id, err := st.SaveRun(ctx, "N113", n113, sampleSED())
	if err != nil {
		t.Fatal(err)
	}
	if err := st.Close(); err != nil {
		t.Fatal(err)
	}

	st, err = Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	s, err := st.LoadSED(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if len(s) != 5 {
		t.Fatalf("reopened run has %d points", len(s))
	}
}
