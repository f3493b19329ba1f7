package config

import (
	"math"
	"time"

	"github.com/RyanBlaney/strain-cube/algorithms/spectral"
)

// Params holds the quantities derived from a Config. It is computed once
// per run and passed by value to every component.
type Params struct {
	SampleRate     int // Hz
	SamplesPerFile int // N
	SegLen         int // samples per segment
	Hop            int // samples between segment starts
	IndA           int // first channel, inclusive
	IndE           int // last channel, exclusive
	IndF           int // frequency bins kept
	NFiles         int

	ChannelSpacing float64
	TaperAlpha     float64
	FFTBackend     string
	LogConvention  spectral.LogConvention
	PowerFloor     float64
	StrictNumeric  bool
}

// Derive computes Params for a run over nFiles source files
func (c *Config) Derive(nFiles int) (Params, error) {
	if nFiles < 1 {
		return Params{}, invalid("at least one source file is required, got %d", nFiles)
	}

	n, ok := integral(c.FileDuration * float64(c.SampleRate))
	if !ok || n <= 0 {
		return Params{}, invalid("file duration %gs is not a whole number of samples at %d Hz", c.FileDuration, c.SampleRate)
	}
	segLen, ok := integral(float64(c.SampleRate) / c.FreqResolution)
	if !ok || segLen <= 0 {
		return Params{}, invalid("frequency resolution %g Hz does not give a whole segment length at %d Hz", c.FreqResolution, c.SampleRate)
	}
	hop, ok := integral(c.TimeResolution * float64(c.SampleRate))
	if !ok || hop <= 0 {
		return Params{}, invalid("time resolution %gs is not a whole number of samples at %d Hz", c.TimeResolution, c.SampleRate)
	}
	if segLen > n {
		return Params{}, invalid("segment length %d exceeds file length %d", segLen, n)
	}
	if hop > n {
		return Params{}, invalid("hop %d exceeds file length %d", hop, n)
	}

	indA := int(math.Floor(c.CableStart / c.ChannelSpacing))
	indE := int(math.Ceil(c.CableEnd / c.ChannelSpacing))
	if indE <= indA {
		return Params{}, invalid("cable span selects no channels")
	}

	indF := int(math.Floor(c.FreqMax/c.FreqResolution+1e-9)) + 1
	if indF > segLen/2+1 {
		return Params{}, invalid("frequency cutoff %g Hz is above the Nyquist bin of a %d sample segment", c.FreqMax, segLen)
	}

	conv, err := spectral.ParseLogConvention(c.LogPower)
	if err != nil {
		return Params{}, invalid("%v", err)
	}

	return Params{
		SampleRate:     c.SampleRate,
		SamplesPerFile: n,
		SegLen:         segLen,
		Hop:            hop,
		IndA:           indA,
		IndE:           indE,
		IndF:           indF,
		NFiles:         nFiles,
		ChannelSpacing: c.ChannelSpacing,
		TaperAlpha:     c.TaperAlpha,
		FFTBackend:     c.FFTBackend,
		LogConvention:  conv,
		PowerFloor:     c.PowerFloor,
		StrictNumeric:  c.StrictNumeric,
	}, nil
}

// Channels returns the number of channels in the selected cable span
func (p Params) Channels() int {
	return p.IndE - p.IndA
}

// TotalSegments is ⌊(nFiles·N − seg_len)/hop⌋ + 1
func (p Params) TotalSegments() int {
	return (p.NFiles*p.SamplesPerFile-p.SegLen)/p.Hop + 1
}

// SegmentsPerFileCeil is the largest number of segments any single file
// can contribute; it is used as the cube chunk length.
func (p Params) SegmentsPerFileCeil() int {
	return (p.SamplesPerFile + p.Hop - 1) / p.Hop
}

// HopDuration is the time between consecutive segment starts
func (p Params) HopDuration() time.Duration {
	return time.Duration(math.Round(float64(p.Hop) * float64(time.Second) / float64(p.SampleRate)))
}

// SegmentOffset is the time of global segment k relative to the first
// sample of the first file. It is exact for any k, unlike k·HopDuration.
func (p Params) SegmentOffset(k int) time.Duration {
	return time.Duration(mulDiv(int64(k)*int64(p.Hop), int64(time.Second), int64(p.SampleRate)))
}

// mulDiv computes a·b/c rounded to nearest; splitting a by c keeps the
// intermediate product small as long as c·b fits in an int64.
func mulDiv(a, b, c int64) int64 {
	q, r := a/c, a%c
	return q*b + (r*b+c/2)/c
}
