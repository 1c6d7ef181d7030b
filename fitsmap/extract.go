package fitsmap

import (
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/cwbudde/algo-sed/internal/logging"
	"github.com/cwbudde/algo-sed/sky"
	"github.com/cwbudde/algo-sed/units"
)

// Method selects how a map is sampled at a fractional pixel.
type Method int

// Sampling methods.
const (
	Nearest Method = iota
	Bilinear
)

func (m Method) String() string {
	switch m {
	case Nearest:
		return "nearest"
	case Bilinear:
		return "bilinear"
	default:
		return fmt.Sprintf("Method(%d)", int(m))
	}
}

// ParseMethod maps "nearest" or "bilinear" to a [Method].
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "nearest":
		return Nearest, nil
	case "bilinear":
		return Bilinear, nil
	default:
		return 0, fmt.Errorf("%w: %q (want nearest or bilinear)", ErrInvalidMethod, s)
	}
}

// Sample returns the map value at the zero-based fractional pixel (x, y).
// Coordinates outside the grid are clamped to the nearest edge pixel.
func (m *Map) Sample(x, y float64, method Method) (float64, error) {
	if math.IsNaN(x) || math.IsNaN(y) || math.IsInf(x, 0) || math.IsInf(y, 0) {
		return 0, fmt.Errorf("%w: pixel (%g, %g)", ErrNotProjectable, x, y)
	}
	x = clamp(x, 0, float64(m.Width-1))
	y = clamp(y, 0, float64(m.Height-1))

	var v float64
	switch method {
	case Nearest:
		// Half-pixel ties go to the even index.
		v = m.At(int(math.RoundToEven(x)), int(math.RoundToEven(y)))
	case Bilinear:
		v = m.bilinear(x, y)
	default:
		return 0, fmt.Errorf("%w: %v", ErrInvalidMethod, method)
	}
	if math.IsNaN(v) {
		return 0, fmt.Errorf("%w at (%.3f, %.3f)", ErrBlankPixel, x, y)
	}
	return v, nil
}

// bilinear interpolates among the four neighbours of an in-range (x, y).
// Neighbours with zero weight are skipped so that a blank pixel next to an
// exact pixel centre does not leak into the result.
func (m *Map) bilinear(x, y float64) float64 {
	x0, y0 := int(math.Floor(x)), int(math.Floor(y))
	x1, y1 := min(x0+1, m.Width-1), min(y0+1, m.Height-1)
	fx, fy := x-float64(x0), y-float64(y0)

	var sum float64
	for _, n := range [4]struct {
		x, y int
		w    float64
	}{
		{x0, y0, (1 - fx) * (1 - fy)},
		{x1, y0, fx * (1 - fy)},
		{x0, y1, (1 - fx) * fy},
		{x1, y1, fx * fy},
	} {
		if n.w != 0 {
			sum += n.w * m.At(n.x, n.y)
		}
	}
	return sum
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// Value samples the map at a sky position and returns the surface
// brightness in the map's unit.
func (m *Map) Value(pos sky.Position, method Method) (units.Quantity, error) {
	x, y, err := m.WCS.WorldToPixel(pos)
	if err != nil {
		return units.Quantity{}, err
	}
	v, err := m.Sample(x, y, method)
	if err != nil {
		return units.Quantity{}, err
	}
	return units.New(v, m.Unit), nil
}

// IntensityToFlux returns the flux density I·Ω in Jy.
func IntensityToFlux(intensity, beam units.Quantity) (units.Quantity, error) {
	s := intensity.Mul(beam)
	if _, err := s.In(units.Jansky); err != nil {
		return units.Quantity{}, fmt.Errorf("fitsmap: intensity to flux: %w", err)
	}
	return s, nil
}

// ExtractorOption configures an [Extractor].
type ExtractorOption func(*Extractor)

// WithLogger sets the logger used for per-map debug output.
func WithLogger(l *slog.Logger) ExtractorOption {
	return func(e *Extractor) {
		if l != nil {
			e.logger = l
		}
	}
}

// Extractor reads single-pixel values from maps on disk. Each call loads one
// map, samples it and releases it.
type Extractor struct {
	method Method
	logger *slog.Logger
}

// NewExtractor returns an extractor using method.
func NewExtractor(method Method, opts ...ExtractorOption) *Extractor {
	e := &Extractor{
		method: method,
		logger: logging.Discard(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Method returns the sampling method.
func (e *Extractor) Method() Method { return e.method }

// ReadValue loads the map at path and returns its surface brightness at pos
// in MJy/sr.
func (e *Extractor) ReadValue(path string, pos sky.Position) (units.Quantity, error) {
	m, err := Load(path)
	if err != nil {
		return units.Quantity{}, err
	}
	x, y, err := m.WCS.WorldToPixel(pos)
	if err != nil {
		return units.Quantity{}, fmt.Errorf("%s: %w", path, err)
	}
	v, err := m.Sample(x, y, e.method)
	if err != nil {
		return units.Quantity{}, fmt.Errorf("%s: %w", path, err)
	}
	e.logger.Debug("sampled map",
		"file", path,
		"size", fmt.Sprintf("%dx%d", m.Width, m.Height),
		"x", x, "y", y,
		"method", e.method,
		"value", v,
		"unit", m.Unit.Symbol,
	)
	return units.New(v, m.Unit), nil
}
