package fit

import (
	"fmt"
	"math"
)

// Default β envelope used by the plotting diagnostics.
const (
	DefaultEnvelopeBeta  = 1.18
	DefaultEnvelopeDelta = 0.15
)

// EnvelopeStartTemperatures are the initial temperatures in K for the
// β0-Δβ, β0 and β0+Δβ fits. Steeper emissivity pulls T down, so each fit
// starts near where it will land.
var EnvelopeStartTemperatures = [3]float64{38, 35, 33}

// Envelope holds fixed-β fits at β0-Δβ, β0 and β0+Δβ.
type Envelope struct {
	Beta0 float64
	Delta float64
	Low   Result
	Mid   Result
	High  Result
}

// Results returns the three fits ordered by β.
func (e Envelope) Results() [3]Result { return [3]Result{e.Low, e.Mid, e.High} }

// Envelope fits the SED three times with β held at β0-Δβ, β0 and β0+Δβ. The
// spread of the resulting curves brackets the β uncertainty.
func (f *Fitter) Envelope(wavUm, fluxJy, errJy []float64, beta0, delta float64) (Envelope, error) {
	if math.IsNaN(beta0) || math.IsInf(beta0, 0) || !(delta >= 0) || math.IsInf(delta, 0) {
		return Envelope{}, fmt.Errorf("%w: envelope beta0=%g delta=%g", ErrInvalidInput, beta0, delta)
	}
	env := Envelope{Beta0: beta0, Delta: delta}
	for i, beta := range []float64{beta0 - delta, beta0, beta0 + delta} {
		mode := FixedBeta(beta)
		p0 := mode.Initial()
		p0[0] = EnvelopeStartTemperatures[i]
		mode, err := mode.WithInitial(p0)
		if err != nil {
			return Envelope{}, err
		}
		r, err := f.Fit(wavUm, fluxJy, errJy, mode)
		if err != nil {
			return Envelope{}, err
		}
		switch i {
		case 0:
			env.Low = r
		case 1:
			env.Mid = r
		default:
			env.High = r
		}
	}
	return env, nil
}
