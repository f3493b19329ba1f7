package spectral

import (
	"math"
	"math/cmplx"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sine(n int, cycles float64) []float64 {
	x := make([]float64, n)
	for i := range x {
		x[i] = math.Sin(2 * math.Pi * cycles * float64(i) / float64(n))
	}
	return x
}

func TestBackendsAgree(t *testing.T) {
	for _, n := range []int{8, 30, 100, 128, 1000} {
		goDSP, err := NewRealTransform(BackendGoDSP, n)
		require.NoError(t, err)
		gonum, err := NewRealTransform(BackendGonum, n)
		require.NoError(t, err)

		x := sine(n, 3)
		for i := range x {
			x[i] += 0.1 * float64(i%7)
		}

		a := goDSP.Coefficients(nil, x)
		b := gonum.Coefficients(nil, x)
		require.Len(t, a, n/2+1)
		require.Len(t, b, n/2+1)
		for k := range a {
			assert.InDelta(t, 0, cmplx.Abs(a[k]-b[k]), 1e-8, "n=%d bin=%d", n, k)
		}
		assert.Equal(t, n, goDSP.Len())
		assert.Equal(t, n, gonum.Len())
	}
}

func TestNewRealTransformErrors(t *testing.T) {
	_, err := NewRealTransform("fftw", 8)
	assert.Error(t, err)
	_, err = NewRealTransform(BackendGonum, 0)
	assert.Error(t, err)
}

func TestComputeLogOfPower(t *testing.T) {
	ps := NewPowerSpectrum(LogOfPower, 0)
	coeffs := []complex128{5, complex(3, 4), 1, 0}

	dst := make([]float64, 4)
	floored, nonFinite := ps.ComputeLog(dst, coeffs)

	assert.Equal(t, 1, floored)
	assert.Zero(t, nonFinite)
	assert.Equal(t, 0.0, dst[0])
	assert.InDelta(t, 10*math.Log(25), dst[1], 1e-12)
	assert.Equal(t, 0.0, dst[2])
	assert.InDelta(t, 10*math.Log(DefaultPowerFloor), dst[3], 1e-9)
	assert.Equal(t, dst[3], ps.Floor())
}

func TestComputeLogSquaredLogMagnitude(t *testing.T) {
	ps := NewPowerSpectrum(SquaredLogMagnitude, 1e-12)
	dst := make([]float64, 2)
	ps.ComputeLog(dst, []complex128{1, complex(0, 20)})

	want := math.Pow(10*math.Log(20), 2)
	assert.InDelta(t, want, dst[1], 1e-9)
}

func TestComputeLogNeverNonFinite(t *testing.T) {
	ps := NewPowerSpectrum(LogOfPower, DefaultPowerFloor)
	dst := make([]float64, 8)
	ps.ComputeLog(dst, make([]complex128, 8))
	for _, v := range dst {
		assert.False(t, math.IsInf(v, 0) || math.IsNaN(v))
	}
}

func TestComputeLogMarksNonFinitePower(t *testing.T) {
	ps := NewPowerSpectrum(LogOfPower, DefaultPowerFloor)
	coeffs := []complex128{complex(math.NaN(), 0), complex(math.NaN(), 1), complex(math.Inf(1), 0), 0, 2}

	dst := make([]float64, 5)
	floored, nonFinite := ps.ComputeLog(dst, coeffs)

	assert.Equal(t, 1, floored)
	assert.Equal(t, 2, nonFinite, "bin 0 is never counted")
	assert.Equal(t, 0.0, dst[0])
	assert.True(t, math.IsNaN(dst[1]))
	assert.True(t, math.IsNaN(dst[2]))
	assert.Equal(t, ps.Floor(), dst[3])
	assert.InDelta(t, 10*math.Log(4), dst[4], 1e-12)
}

func TestParseLogConvention(t *testing.T) {
	c, err := ParseLogConvention("squared-log")
	require.NoError(t, err)
	assert.Equal(t, SquaredLogMagnitude, c)
	assert.Equal(t, "squared-log", c.String())

	c, err = ParseLogConvention("")
	require.NoError(t, err)
	assert.Equal(t, LogOfPower, c)

	_, err = ParseLogConvention("db")
	assert.Error(t, err)
}
