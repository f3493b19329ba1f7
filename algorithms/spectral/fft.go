package spectral

import (
	"fmt"

	"github.com/mjibson/go-dsp/fft"
	"gonum.org/v1/gonum/dsp/fourier"
)

// FFT backend names accepted by NewRealTransform
const (
	BackendGoDSP = "go-dsp"
	BackendGonum = "gonum"
)

// RealTransform computes the non-negative frequency half (n/2+1 bins) of
// the DFT of a real sequence of fixed length n.
type RealTransform interface {
	Coefficients(dst []complex128, seq []float64) []complex128
	Len() int
}

// NewRealTransform returns a transform of length n for the named backend.
// The gonum backend holds scratch space, so each goroutine needs its own.
func NewRealTransform(backend string, n int) (RealTransform, error) {
	if n <= 0 {
		return nil, fmt.Errorf("transform length must be positive, got %d", n)
	}
	switch backend {
	case BackendGoDSP, "":
		return NewFFT(n), nil
	case BackendGonum:
		return NewRealFFT(n), nil
	default:
		return nil, fmt.Errorf("unknown fft backend %q", backend)
	}
}

// FFT provides Fast Fourier Transform functionality backed by mjibson/go-dsp
type FFT struct {
	n int
}

// NewFFT creates a new FFT calculator for sequences of length n
func NewFFT(n int) *FFT {
	return &FFT{n: n}
}

// Coefficients returns the first n/2+1 bins of the spectrum of seq
func (f *FFT) Coefficients(dst []complex128, seq []float64) []complex128 {
	if len(seq) != f.n {
		panic(fmt.Sprintf("spectral: sequence length %d does not match transform length %d", len(seq), f.n))
	}
	half := f.n/2 + 1
	if dst == nil {
		dst = make([]complex128, half)
	}
	copy(dst[:half], fft.FFTReal(seq))
	return dst[:half]
}

// Len returns the transform length
func (f *FFT) Len() int {
	return f.n
}

// RealFFT is a planned real FFT backed by gonum's dsp/fourier. It is not
// safe for concurrent use.
type RealFFT struct {
	plan *fourier.FFT
}

// NewRealFFT plans a real FFT of length n
func NewRealFFT(n int) *RealFFT {
	return &RealFFT{plan: fourier.NewFFT(n)}
}

// Coefficients returns the first n/2+1 bins of the spectrum of seq
func (r *RealFFT) Coefficients(dst []complex128, seq []float64) []complex128 {
	return r.plan.Coefficients(dst, seq)
}

// Len returns the transform length
func (r *RealFFT) Len() int {
	return r.plan.Len()
}
