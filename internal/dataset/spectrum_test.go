package dataset

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPowerSpectrumSinusoid(t *testing.T) {
	const n, period = 64, 8
	series := make([]float64, n)
	for i := range series {
		series[i] = 3 + math.Cos(2*math.Pi*float64(i)/period)
	}

	ps := PowerSpectrum(series)
	require.Len(t, ps, n/2)
	assert.InDelta(t, 0, ps[0], 1e-9)
	assert.InDelta(t, n/2, ps[n/period], 1e-9)
	assert.InDelta(t, 1.0/period, DominantFrequency(ps, n), 1e-12)
}

func TestPowerSpectrumFlat(t *testing.T) {
	series := []float64{2, 2, 2, 2, 2, 2, 2, 2}
	ps := PowerSpectrum(series)
	for _, v := range ps {
		assert.InDelta(t, 0, v, 1e-12)
	}
	assert.Zero(t, DominantFrequency(ps, len(series)))
	assert.Nil(t, PowerSpectrum([]float64{1}))
}
