package band

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/cwbudde/algo-sed/units"
)

// Errors returned by the registry and file lookup.
var (
	ErrMissingData   = errors.New("band: no map file matches")
	ErrAmbiguousData = errors.New("band: more than one map file matches")
	ErrInvalidSpec   = errors.New("band: invalid band spec")
)

// AmbiguousDataError lists every file that matched a band pattern.
type AmbiguousDataError struct {
	Band       string
	Dir        string
	Candidates []string
}

func (e *AmbiguousDataError) Error() string {
	return fmt.Sprintf("%v: %s in %s:\n - %s", ErrAmbiguousData, e.Band, e.Dir, strings.Join(e.Candidates, "\n - "))
}

// Is makes errors.Is(err, ErrAmbiguousData) hold.
func (e *AmbiguousDataError) Is(target error) bool { return target == ErrAmbiguousData }

// Spec is an immutable band description.
type Spec struct {
	Name       string
	Wavelength units.Quantity
	Pattern    *regexp.Regexp
}

// NewSpec builds a Spec from a wavelength in µm and a filename pattern. The
// pattern is matched case-insensitively.
func NewSpec(name string, wavelengthUm float64, pattern string) (Spec, error) {
	if name == "" {
		return Spec{}, fmt.Errorf("%w: empty name", ErrInvalidSpec)
	}
	if !(wavelengthUm > 0) {
		return Spec{}, fmt.Errorf("%w: %s: wavelength must be > 0: %g", ErrInvalidSpec, name, wavelengthUm)
	}
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return Spec{}, fmt.Errorf("%w: %s: %w", ErrInvalidSpec, name, err)
	}
	return Spec{Name: name, Wavelength: units.New(wavelengthUm, units.Micrometer), Pattern: re}, nil
}

// WavelengthUm returns the band wavelength in µm.
func (s Spec) WavelengthUm() float64 {
	v, _ := s.Wavelength.In(units.Micrometer)
	return v
}

// Match reports whether a file name belongs to the band.
func (s Spec) Match(name string) bool {
	return s.Pattern != nil && s.Pattern.MatchString(name)
}

// Registry is an ordered, read-only list of bands.
type Registry struct {
	specs []Spec
}

// NewRegistry returns a registry holding specs in the given order. Band names
// must be unique.
func NewRegistry(specs ...Spec) (*Registry, error) {
	seen := make(map[string]bool, len(specs))
	for _, s := range specs {
		if s.Name == "" || s.Pattern == nil || !s.Wavelength.Is(units.Micrometer.Dim) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidSpec, s.Name)
		}
		if seen[s.Name] {
			return nil, fmt.Errorf("%w: duplicate band %q", ErrInvalidSpec, s.Name)
		}
		seen[s.Name] = true
	}
	return &Registry{specs: slices.Clone(specs)}, nil
}

// Default returns the Herschel PACS and SPIRE bands used for the LMC maps,
// ordered by wavelength.
func Default() *Registry {
	defs := []struct {
		name    string
		wav     float64
		pattern string
	}{
		{"PACS100", 100, `lmc_both_pacs_100_.*\.fits$`},
		{"PACS160", 160, `lmc_both_pacs_160_.*\.fits$`},
		{"SPIRE250", 250, `lmc_both_spire_250_.*\.fits$`},
		{"SPIRE350", 350, `lmc_both_spire_350_.*\.fits$`},
		{"SPIRE500", 500, `lmc_both_spire_500_.*\.fits$`},
	}
	specs := make([]Spec, 0, len(defs))
	for _, d := range defs {
		s, err := NewSpec(d.name, d.wav, d.pattern)
		if err != nil {
			panic(err)
		}
		specs = append(specs, s)
	}
	r, err := NewRegistry(specs...)
	if err != nil {
		panic(err)
	}
	return r
}

// Len returns the number of bands.
func (r *Registry) Len() int { return len(r.specs) }

// Specs returns a copy of the bands in registry order.
func (r *Registry) Specs() []Spec { return slices.Clone(r.specs) }

// Lookup returns the band with the given name.
func (r *Registry) Lookup(name string) (Spec, bool) {
	for _, s := range r.specs {
		if s.Name == name {
			return s, true
		}
	}
	return Spec{}, false
}

// FindFile returns the single regular file in dir whose name matches spec.
func FindFile(dir string, spec Spec) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("band: %s: %w", spec.Name, err)
	}
	var candidates []string
	for _, e := range entries {
		if !spec.Match(e.Name()) || !isRegular(dir, e) {
			continue
		}
		candidates = append(candidates, e.Name())
	}
	switch len(candidates) {
	case 0:
		return "", fmt.Errorf("%w: %s in %s", ErrMissingData, spec.Name, dir)
	case 1:
		return filepath.Join(dir, candidates[0]), nil
	default:
		return "", &AmbiguousDataError{Band: spec.Name, Dir: dir, Candidates: candidates}
	}
}

// isRegular follows symlinks.
func isRegular(dir string, e fs.DirEntry) bool {
	if e.Type()&fs.ModeSymlink == 0 {
		return e.Type().IsRegular()
	}
	fi, err := os.Stat(filepath.Join(dir, e.Name()))
	return err == nil && fi.Mode().IsRegular()
}
