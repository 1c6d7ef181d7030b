package testutil

import (
	"os"
	"testing"

	"github.com/astrogo/fitsio"
)

// MapSpec describes a synthetic FITS image written by [WriteMap].
type MapSpec struct {
	Width, Height int
	// Axes overrides Width and Height, e.g. to write a cube.
	Axes []int
	// Bitpix selects the storage type; zero means -64.
	Bitpix int
	// Fill returns the stored value at the flat pixel index i.
	Fill  func(i int) float64
	Cards []fitsio.Card
}

// TANCards returns an equatorial TAN WCS with reference pixel (crpix1,
// crpix2) in the FITS 1-based convention at (ra, dec), square pixels of
// cdelt degrees and RA increasing to the left.
func TANCards(ra, dec, crpix1, crpix2, cdelt float64) []fitsio.Card {
	return []fitsio.Card{
		{Name: "CTYPE1", Value: "RA---TAN"},
		{Name: "CTYPE2", Value: "DEC--TAN"},
		{Name: "CRVAL1", Value: ra},
		{Name: "CRVAL2", Value: dec},
		{Name: "CRPIX1", Value: crpix1},
		{Name: "CRPIX2", Value: crpix2},
		{Name: "CDELT1", Value: -cdelt},
		{Name: "CDELT2", Value: cdelt},
		{Name: "RADESYS", Value: "ICRS"},
		{Name: "BUNIT", Value: "MJy/sr"},
	}
}

// WriteMap writes spec to path as a single primary image HDU.
func WriteMap(t testing.TB, path string, spec MapSpec) {
	t.Helper()

	axes := spec.Axes
	if len(axes) == 0 {
		axes = []int{spec.Width, spec.Height}
	}
	n := 1
	for _, a := range axes {
		n *= a
	}
	bitpix := spec.Bitpix
	if bitpix == 0 {
		bitpix = -64
	}
	fill := spec.Fill
	if fill == nil {
		fill = func(int) float64 { return 0 }
	}

	w, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer w.Close()

	f, err := fitsio.Create(w)
	if err != nil {
		t.Fatalf("fitsio create: %v", err)
	}
	defer f.Close()

	img := fitsio.NewImage(bitpix, axes)
	defer img.Close()

	if err := img.Header().Append(spec.Cards...); err != nil {
		t.Fatalf("append cards: %v", err)
	}

	switch bitpix {
	case -64:
		data := make([]float64, n)
		for i := range data {
			data[i] = fill(i)
		}
		err = img.Write(&data)
	case -32:
		data := make([]float32, n)
		for i := range data {
			data[i] = float32(fill(i))
		}
		err = img.Write(&data)
	case 16:
		data := make([]int16, n)
		for i := range data {
			data[i] = int16(fill(i))
		}
		err = img.Write(&data)
	case 32:
		data := make([]int32, n)
		for i := range data {
			data[i] = int32(fill(i))
		}
		err = img.Write(&data)
	default:
		t.Fatalf("unsupported bitpix %d", bitpix)
	}
	if err != nil {
		t.Fatalf("write pixels: %v", err)
	}
	if err := f.Write(img); err != nil {
		t.Fatalf("write HDU: %v", err)
	}
}

// RemoveCard returns cards without the named keyword.
func RemoveCard(cards []fitsio.Card, name string) []fitsio.Card {
	out := make([]fitsio.Card, 0, len(cards))
	for _, c := range cards {
		if c.Name != name {
			out = append(out, c)
		}
	}
	return out
}

// SetCard replaces or appends a keyword.
func SetCard(cards []fitsio.Card, name string, value any) []fitsio.Card {
	out := RemoveCard(cards, name)
	return append(out, fitsio.Card{Name: name, Value: value})
}
