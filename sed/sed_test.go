package sed

import (
	"bytes"
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cwbudde/algo-sed/band"
	"github.com/cwbudde/algo-sed/dust"
	"github.com/cwbudde/algo-sed/fitsmap"
	"github.com/cwbudde/algo-sed/internal/testutil"
	"github.com/cwbudde/algo-sed/sky"
	"github.com/cwbudde/algo-sed/units"
)

var pos = sky.Position{RA: 78.25, Dec: -69.375}

// bandIntensity is the constant map value written for each band, MJy/sr.
var bandIntensity = map[string]float64{
	"PACS100":  310,
	"PACS160":  420,
	"SPIRE250": 250,
	"SPIRE350": 120,
	"SPIRE500": 45,
}

var bandFile = map[string]string{
	"PACS100":  "lmc_both_pacs_100_binned.fits",
	"PACS160":  "lmc_both_pacs_160_binned.fits",
	"SPIRE250": "lmc_both_spire_250_binned.fits",
	"SPIRE350": "lmc_both_spire_350_binned.fits",
	"SPIRE500": "lmc_both_spire_500_binned.fits",
}

func writeBands(t *testing.T, skip ...string) string {
	t.Helper()
	dir := t.TempDir()
	for name, file := range bandFile {
		if contains(skip, name) {
			continue
		}
		v := bandIntensity[name]
		testutil.WriteMap(t, filepath.Join(dir, file), testutil.MapSpec{
			Width: 9, Height: 9,
			Fill:  func(int) float64 { return v },
			Cards: testutil.TANCards(pos.RA, pos.Dec, 5, 5, 0.004),
		})
	}
	return dir
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func newAssembler(t *testing.T, dir string, opts ...AssemblerOption) *Assembler {
	t.Helper()
	a, err := NewAssembler(band.Default(), dust.DefaultConstants(), append([]AssemblerOption{WithDataDir(dir)}, opts...)...)
	if err != nil {
		t.Fatal(err)
	}
	return a
}

func TestAssembleStrict(t *testing.T) {
	a := newAssembler(t, writeBands(t))
	res, err := a.Assemble(context.Background(), pos)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Complete() || res.Err() != nil {
		t.Fatalf("incomplete result: %v", res.Err())
	}
	if len(res.SED) != 5 || !res.SED.Sorted() {
		t.Fatalf("SED has %d points, sorted=%v", len(res.SED), res.SED.Sorted())
	}

	omega := dust.DefaultConstants().BeamSolidAngle.Base()
	for i, spec := range band.Default().Specs() {
		p := res.SED[i]
		if p.Band != spec.Name || p.File != bandFile[spec.Name] {
			t.Fatalf("point %d = %s/%s, want %s/%s", i, p.Band, p.File, spec.Name, bandFile[spec.Name])
		}
		inten, _ := p.Intensity.In(units.MegaJanskyPerSteradian)
		flux, _ := p.Flux.In(units.Jansky)
		ferr, _ := p.FluxErr.In(units.Jansky)
		want := bandIntensity[spec.Name] * 1e6 * omega
		testutil.RequireRelClose(t, spec.Name+" I", inten, bandIntensity[spec.Name], 1e-12)
		testutil.RequireRelClose(t, spec.Name+" S", flux, want, 1e-12)
		testutil.RequireRelClose(t, spec.Name+" Serr", ferr, 0.1*want, 1e-12)
	}
}

func TestAssembleSortsByWavelength(t *testing.T) {
	specs := band.Default().Specs()
	for i, j := 0, len(specs)-1; i < j; i, j = i+1, j-1 {
		specs[i], specs[j] = specs[j], specs[i]
	}
	reg, err := band.NewRegistry(specs...)
	if err != nil {
		t.Fatal(err)
	}
	a, err := NewAssembler(reg, dust.DefaultConstants(), WithDataDir(writeBands(t)), WithMethod(fitsmap.Nearest))
	if err != nil {
		t.Fatal(err)
	}
	res, err := a.Assemble(context.Background(), pos)
	if err != nil {
		t.Fatal(err)
	}
	if !res.SED.Sorted() || res.SED[0].Band != "PACS100" {
		t.Fatalf("SED not sorted: first band %s", res.SED[0].Band)
	}
}

func TestAssembleStrictFailsAtomically(t *testing.T) {
	a := newAssembler(t, writeBands(t, "SPIRE350"))
	res, err := a.Assemble(context.Background(), pos)
	if !errors.Is(err, band.ErrMissingData) {
		t.Fatalf("err = %v, want ErrMissingData", err)
	}
	if res != nil {
		t.Fatalf("partial result returned: %+v", res)
	}
	if !strings.Contains(err.Error(), "SPIRE350") {
		t.Fatalf("error %q does not name the band", err)
	}
}

func TestAssembleAmbiguous(t *testing.T) {
	dir := writeBands(t)
	extra := filepath.Join(dir, "lmc_both_pacs_160_unbinned.fits")
	testutil.WriteMap(t, extra, testutil.MapSpec{Width: 3, Height: 3, Cards: testutil.TANCards(pos.RA, pos.Dec, 2, 2, 0.004)})

	_, err := newAssembler(t, dir).Assemble(context.Background(), pos)
	var amb *band.AmbiguousDataError
	if !errors.As(err, &amb) || len(amb.Candidates) != 2 {
		t.Fatalf("err = %v, want AmbiguousDataError with 2 candidates", err)
	}
}

func TestAssembleLenient(t *testing.T) {
	a := newAssembler(t, writeBands(t, "PACS100"), WithPolicy(Lenient))
	res, err := a.Assemble(context.Background(), pos)
	if err != nil {
		t.Fatal(err)
	}
	if res.Complete() || len(res.SED) != 4 || len(res.Skipped) != 1 {
		t.Fatalf("points=%d skipped=%d", len(res.SED), len(res.Skipped))
	}
	if res.Skipped[0].Band != "PACS100" {
		t.Fatalf("skipped %s", res.Skipped[0].Band)
	}
	if err := res.Err(); !errors.Is(err, ErrIncompleteSED) || !errors.Is(err, band.ErrMissingData) {
		t.Fatalf("Err() = %v", err)
	}
}

func TestAssembleHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := newAssembler(t, writeBands(t)).Assemble(ctx, pos); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestNewAssemblerValidation(t *testing.T) {
	if _, err := NewAssembler(band.Default(), dust.DefaultConstants(), WithMethod(fitsmap.Method(7))); !errors.Is(err, fitsmap.ErrInvalidMethod) {
		t.Fatalf("bad method: err = %v", err)
	}
	bad := dust.ApplyOptions(dust.WithFracError(0))
	if _, err := NewAssembler(band.Default(), bad); !errors.Is(err, dust.ErrInvalidConstants) {
		t.Fatalf("bad constants: err = %v", err)
	}
	if _, err := ParsePolicy("sloppy"); !errors.Is(err, ErrInvalidOptions) {
		t.Fatalf("bad policy: err = %v", err)
	}
}

func sampleSED() SED {
	s := SED{}
	for i, name := range []string{"PACS100", "PACS160", "SPIRE250", "SPIRE350", "SPIRE500"} {
		wav := []float64{100, 160, 250, 350, 500}[i]
		inten := 1.0 / 3 * float64(i+7) * 100
		flux := inten * 1e6 * 4.26e-8
		s = append(s, Point{
			Band:       name,
			Wavelength: units.New(wav, units.Micrometer),
			File:       bandFile[name],
			Intensity:  units.New(inten, units.MegaJanskyPerSteradian),
			Flux:       units.New(flux, units.Jansky),
			FluxErr:    units.New(0.1*flux, units.Jansky),
		})
	}
	return s
}

func TestCSVRoundTrip(t *testing.T) {
	want := sampleSED()
	var buf bytes.Buffer
	if err := WriteCSV(&buf, want); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(buf.String(), "band,wav_um,file,I_MJy_sr,S_Jy,Serr_Jy\n") {
		t.Fatalf("unexpected header: %q", strings.SplitN(buf.String(), "\n", 2)[0])
	}
	if !strings.Contains(buf.String(), "\nPACS100,100,lmc_both_pacs_100_binned.fits,") {
		t.Fatalf("wavelength not written cleanly:\n%s", buf.String())
	}

	got, err := ReadCSV(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(want) {
		t.Fatalf("got %d points, want %d", len(got), len(want))
	}
	gw, gs, ge, err := got.Arrays()
	if err != nil {
		t.Fatal(err)
	}
	ww, ws, we, err := want.Arrays()
	if err != nil {
		t.Fatal(err)
	}
	for _, pair := range [][2][]float64{{gw, ww}, {gs, ws}, {ge, we}} {
		d, err := testutil.MaxRelDiff(pair[0], pair[1])
		if err != nil || d > 1e-9 {
			t.Fatalf("round trip deviates by %v (err %v)", d, err)
		}
	}
	for i := range got {
		if got[i].Band != want[i].Band || got[i].File != want[i].File {
			t.Fatalf("row %d: %s/%s, want %s/%s", i, got[i].Band, got[i].File, want[i].Band, want[i].File)
		}
		gi, _ := got[i].Intensity.In(units.MegaJanskyPerSteradian)
		wi, _ := want[i].Intensity.In(units.MegaJanskyPerSteradian)
		if math.Abs(gi-wi) > 1e-9*wi {
			t.Fatalf("row %d intensity %v, want %v", i, gi, wi)
		}
	}
}

func TestReadCSVColumnOrder(t *testing.T) {
	in := "S_Jy,Serr_Jy,band,file,wav_um,I_MJy_sr,extra\n" +
		"4.26,0.426,SPIRE250,a.fits,250,100,x\n"
	s, err := ReadCSV(strings.NewReader(in))
	if err != nil {
		t.Fatal(err)
	}
	if len(s) != 1 || s[0].Band != "SPIRE250" {
		t.Fatalf("parsed %+v", s)
	}
	if wav, err := s[0].Wavelength.In(units.Micrometer); err != nil || math.Abs(wav-250) > 1e-12 {
		t.Fatalf("wavelength = %v, %v", wav, err)
	}
}

func TestReadCSVErrors(t *testing.T) {
	tests := map[string]string{
		"empty":          "",
		"missing column": "band,wav_um,file,I_MJy_sr,S_Jy\nPACS100,100,a.fits,1,2\n",
		"bad number":     "band,wav_um,file,I_MJy_sr,S_Jy,Serr_Jy\nPACS100,abc,a.fits,1,2,0.2\n",
		"ragged row":     "band,wav_um,file,I_MJy_sr,S_Jy,Serr_Jy\nPACS100,100,a.fits\n",
	}
	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := ReadCSV(strings.NewReader(in)); !errors.Is(err, ErrMalformedCSV) {
				t.Fatalf("err = %v, want ErrMalformedCSV", err)
			}
		})
	}
}

func TestWriteFileOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sed.csv")
	full := sampleSED()
	if err := WriteFile(path, full); err != nil {
		t.Fatal(err)
	}
	if err := WriteFile(path, full[:2]); err != nil {
		t.Fatal(err)
	}
	got, err := ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("read %d points after overwrite, want 2", len(got))
	}
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("temporary files left behind: %d entries", len(entries))
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o644 {
		t.Fatalf("mode = %v, want -rw-r--r--", perm)
	}
}
