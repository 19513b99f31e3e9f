package dataset

import (
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
	"gonum.org/v1/gonum/floats"
)

// PowerSpectrum returns the magnitude of the first half of the discrete
// Fourier transform of series with its mean removed. Bin k is k cycles over
// len(series) steps.
func PowerSpectrum(series []float64) []float64 {
	if len(series) < 2 {
		return nil
	}
	mean := floats.Sum(series) / float64(len(series))
	centered := make([]float64, len(series))
	for i, v := range series {
		centered[i] = v - mean
	}

	spec := fft.FFTReal(centered)
	ps := make([]float64, len(spec)/2)
	for i := range ps {
		ps[i] = cmplx.Abs(spec[i])
	}
	return ps
}

// DominantFrequency is the strongest non-constant bin of ps in cycles per
// step for a series of n steps, or 0 when there is none.
func DominantFrequency(ps []float64, n int) float64 {
	best, idx := 0.0, 0
	for i := 1; i < len(ps); i++ {
		if ps[i] > best {
			best, idx = ps[i], i
		}
	}
	if idx == 0 || n == 0 {
		return 0
	}
	return float64(idx) / float64(n)
}
