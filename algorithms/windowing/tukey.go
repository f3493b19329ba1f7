package windowing

import (
	"math"
	"sync"
)

// Tukey represents a Tukey (tapered cosine) window. Alpha is the fraction
// of the window inside the cosine tapers: 0 gives a rectangular window,
// 1 gives a Hann window.
type Tukey struct {
	size         int
	alpha        float64
	symmetric    bool
	coefficients []float64
}

// NewTukey creates a new Tukey window. Alpha is clamped to [0, 1].
func NewTukey(size int, alpha float64, symmetric bool) *Tukey {
	t := &Tukey{
		size:      size,
		alpha:     math.Min(math.Max(alpha, 0), 1),
		symmetric: symmetric,
	}
	t.generate()
	return t
}

// generate fills the coefficients. A periodic window is the symmetric
// window of size+1 with the last sample dropped.
func (t *Tukey) generate() {
	if t.size <= 0 {
		t.coefficients = []float64{}
		return
	}
	m := t.size
	if !t.symmetric {
		m++
	}
	t.coefficients = tukeyCoefficients(m, t.alpha)[:t.size]
}

func tukeyCoefficients(m int, alpha float64) []float64 {
	w := make([]float64, m)
	if m == 1 || alpha == 0 {
		for i := range w {
			w[i] = 1
		}
		return w
	}

	span := float64(m - 1)
	if alpha == 1 {
		for i := range w {
			w[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/span)
		}
		return w
	}

	width := int(math.Floor(alpha * span / 2))
	for i := range m {
		n := float64(i)
		switch {
		case i <= width:
			w[i] = 0.5 * (1 + math.Cos(math.Pi*(-1+2*n/alpha/span)))
		case i >= m-width-1:
			w[i] = 0.5 * (1 + math.Cos(math.Pi*(-2/alpha+1+2*n/alpha/span)))
		default:
			w[i] = 1
		}
	}
	return w
}

// GetCoefficients returns a copy of the window coefficients
func (t *Tukey) GetCoefficients() []float64 {
	coeffs := make([]float64, len(t.coefficients))
	copy(coeffs, t.coefficients)
	return coeffs
}

type taperKey struct {
	size  int
	alpha float64
}

var (
	taperMu    sync.Mutex
	taperCache = map[taperKey][]float64{}
)

// Taper returns the symmetric Tukey coefficients for size and alpha. The
// result is memoized and shared between callers, so it must not be
// modified.
func Taper(size int, alpha float64) []float64 {
	key := taperKey{size: size, alpha: alpha}

	taperMu.Lock()
	defer taperMu.Unlock()

	if w, ok := taperCache[key]; ok {
		return w
	}
	w := NewTukey(size, alpha, true).GetCoefficients()
	taperCache[key] = w
	return w
}
