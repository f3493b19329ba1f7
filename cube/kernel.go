package cube

import (
	"fmt"

	"github.com/RyanBlaney/strain-cube/algorithms/common"
	"github.com/RyanBlaney/strain-cube/algorithms/spectral"
	"github.com/RyanBlaney/strain-cube/algorithms/windowing"
	"github.com/RyanBlaney/strain-cube/cube/config"
	"gonum.org/v1/gonum/mat"
)

// Block is the spectrogram of one source file: Segments × Channels × Bins
// log-power values in row-major order.
type Block struct {
	File      int
	Segments  int
	Channels  int
	Bins      int
	Data      []float64
	Floored   int // bins raised to the power floor
	NonFinite int // NaN bins from non-finite samples
}

// At returns the value for segment s, channel c (relative to the channel
// range) and bin f
func (b *Block) At(s, c, f int) float64 {
	return b.Data[(s*b.Channels+c)*b.Bins+f]
}

// Kernel computes tapered-FFT log-power spectrograms. It holds only
// read-only state and can be shared by workers.
type Kernel struct {
	params config.Params
	taper  []float64
	power  *spectral.PowerSpectrum
}

// NewKernel creates a kernel for params
func NewKernel(params config.Params) *Kernel {
	return &Kernel{
		params: params,
		taper:  windowing.Taper(params.SegLen, params.TaperAlpha),
		power:  spectral.NewPowerSpectrum(params.LogConvention, params.PowerFloor),
	}
}

// FloorValue is the value written for bins whose power is below the floor
func (k *Kernel) FloorValue() float64 {
	return k.power.Floor()
}

// Compute returns the spectrogram of channels [IndA, IndE) of data for a
// segment starting at each of positions. Bin 0 of every spectrum is 0.
func (k *Kernel) Compute(file int, data *mat.Dense, positions []int) (*Block, error) {
	p := k.params
	rows, cols := data.Dims()
	if cols < p.IndE {
		return nil, fmt.Errorf("matrix has %d channels, channel range ends at %d", cols, p.IndE)
	}

	tr, err := spectral.NewRealTransform(p.FFTBackend, p.SegLen)
	if err != nil {
		return nil, err
	}

	channels := p.Channels()
	out := &Block{
		File:     file,
		Segments: len(positions),
		Channels: channels,
		Bins:     p.IndF,
		Data:     make([]float64, len(positions)*channels*p.IndF),
	}

	raw := data.RawMatrix()
	seg := make([]float64, p.SegLen)
	coeffs := make([]complex128, p.SegLen/2+1)

	for s, pos := range positions {
		if pos < 0 || pos+p.SegLen > rows {
			return nil, fmt.Errorf("segment at %d needs samples up to %d, matrix has %d", pos, pos+p.SegLen, rows)
		}
		for c := range channels {
			col := p.IndA + c
			for t := range seg {
				seg[t] = raw.Data[(pos+t)*raw.Stride+col] * k.taper[t]
			}
			if p.StrictNumeric && common.AllZero(seg) {
				return nil, fmt.Errorf("segment at %d, channel %d: %w", pos, col, ErrDegenerateSegment)
			}
			coeffs = tr.Coefficients(coeffs, seg)
			off := (s*channels + c) * p.IndF
			floored, nonFinite := k.power.ComputeLog(out.Data[off:off+p.IndF], coeffs)
			if nonFinite > 0 && p.StrictNumeric {
				return nil, fmt.Errorf("segment at %d, channel %d: %d bins: %w", pos, col, nonFinite, ErrNonFinite)
			}
			out.Floored += floored
			out.NonFinite += nonFinite
		}
	}
	return out, nil
}
