package spectral

import (
	"fmt"
	"math"
)

// LogConvention selects how a DFT coefficient is turned into a log value
type LogConvention int

const (
	// LogOfPower is 10·ln(|X|²)
	LogOfPower LogConvention = iota
	// SquaredLogMagnitude is (10·ln|X|)², kept for comparison with cubes
	// produced by early versions of the processing.
	SquaredLogMagnitude
)

// DefaultPowerFloor is the smallest power fed to the logarithm. With
// LogOfPower it maps to 10·ln(1e-30) ≈ -690.8.
const DefaultPowerFloor = 1e-30

func (c LogConvention) String() string {
	switch c {
	case LogOfPower:
		return "log-power"
	case SquaredLogMagnitude:
		return "squared-log"
	default:
		return "unknown"
	}
}

// ParseLogConvention converts "log-power" or "squared-log" into a LogConvention
func ParseLogConvention(name string) (LogConvention, error) {
	switch name {
	case "log-power", "":
		return LogOfPower, nil
	case "squared-log":
		return SquaredLogMagnitude, nil
	default:
		return LogOfPower, fmt.Errorf("unknown log-power convention %q", name)
	}
}

// PowerSpectrum converts complex spectra into floored natural-log power
type PowerSpectrum struct {
	convention LogConvention
	floor      float64
}

// NewPowerSpectrum creates a power spectrum calculator. A non-positive
// floor is replaced by DefaultPowerFloor.
func NewPowerSpectrum(convention LogConvention, floor float64) *PowerSpectrum {
	if floor <= 0 {
		floor = DefaultPowerFloor
	}
	return &PowerSpectrum{convention: convention, floor: floor}
}

// ComputeLog writes the log value of the first len(dst) coefficients into
// dst. Bin 0 is always set to exactly 0. Powers below the floor are raised
// to it; NaN or infinite powers, which only arise from non-finite input
// samples, are written as NaN. It returns the count of each.
func (ps *PowerSpectrum) ComputeLog(dst []float64, coeffs []complex128) (floored, nonFinite int) {
	for i := range dst {
		if i == 0 {
			dst[0] = 0
			continue
		}
		c := coeffs[i]
		power := real(c)*real(c) + imag(c)*imag(c)
		switch {
		case math.IsNaN(power) || math.IsInf(power, 0):
			dst[i] = math.NaN()
			nonFinite++
			continue
		case power < ps.floor:
			power = ps.floor
			floored++
		}
		dst[i] = ps.logValue(power)
	}
	return floored, nonFinite
}

func (ps *PowerSpectrum) logValue(power float64) float64 {
	if ps.convention == SquaredLogMagnitude {
		// 10·ln|X| = 5·ln|X|²
		v := 5 * math.Log(power)
		return v * v
	}
	return 10 * math.Log(power)
}

// Floor returns the log value assigned to floored bins
func (ps *PowerSpectrum) Floor() float64 {
	return ps.logValue(ps.floor)
}
