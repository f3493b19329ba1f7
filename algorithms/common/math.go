package common

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Numeric helpers shared by the cube pipeline, built on gonum

// Arange returns start, start+step, ... for every value below stop.
// Values are computed as start+i*step rather than by accumulation.
func Arange(start, stop, step float64) []float64 {
	if step <= 0 || stop <= start {
		return []float64{}
	}
	n := int(math.Ceil((stop - start) / step))
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}

// RFFTFreq returns the centre frequencies of the n/2+1 bins of a real DFT
// of length n at the given sample spacing d (seconds).
func RFFTFreq(n int, d float64) []float64 {
	if n <= 0 || d <= 0 {
		return []float64{}
	}
	out := make([]float64, n/2+1)
	if len(out) == 1 {
		return out
	}
	// k/(n·d) for k = 0..n/2
	floats.Span(out, 0, float64(len(out)-1))
	floats.Scale(1/(float64(n)*d), out)
	return out
}

// AllZero reports whether every element is exactly zero
func AllZero(data []float64) bool {
	for _, v := range data {
		if v != 0 {
			return false
		}
	}
	return true
}

// Mean calculates the arithmetic mean of a slice using gonum
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0.0
	}
	return stat.Mean(data, nil)
}
