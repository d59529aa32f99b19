package analysis

import (
	"fmt"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/stat"

	"github.com/san-kum/rolltune/internal/dynamo"
)

// minSpectrumSamples is the shortest trace with a meaningful spectrum.
const minSpectrumSamples = 4

// DominantFrequency returns the strongest roll-rate oscillation in a
// uniformly sampled trace, in Hz. The mean rate is removed first so a steady
// spin does not count.
func DominantFrequency(trace *dynamo.FlightTrace) (float64, error) {
	n := trace.Len()
	if n < minSpectrumSamples {
		return 0, fmt.Errorf("%w: need %d samples for a spectrum, have %d", dynamo.ErrEmptyTrace, minSpectrumSamples, n)
	}
	dt := trace.Duration() / float64(n-1)
	if !(dt > 0) {
		return 0, dynamo.ErrTraceOrder
	}

	rates := make([]float64, n)
	for i := range rates {
		rates[i] = trace.At(i).RollRate
	}
	mean := stat.Mean(rates, nil)
	for i := range rates {
		rates[i] -= mean
	}

	fft := fourier.NewFFT(n)
	coeffs := fft.Coefficients(nil, rates)

	best, peak := 0, 0.0
	for k := 1; k < len(coeffs); k++ {
		if a := cmplx.Abs(coeffs[k]); a > peak {
			best, peak = k, a
		}
	}
	if best == 0 {
		return 0, nil
	}
	return fft.Freq(best) / dt, nil
}
