package zarr

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/x448/float16"
)

// DType is a little-endian Zarr v2 / numpy type string
type DType string

const (
	Float64      DType = "<f8"
	Float32      DType = "<f4"
	Float16      DType = "<f2"
	Int64        DType = "<i8"
	Int32        DType = "<i4"
	Int16        DType = "<i2"
	Datetime64NS DType = "<M8[ns]"
)

// ParseDType maps a plain type name ("float64", "float32", "float16") or a
// numpy type string onto a supported DType.
func ParseDType(name string) (DType, error) {
	switch name {
	case "float64":
		return Float64, nil
	case "float32":
		return Float32, nil
	case "float16":
		return Float16, nil
	case "int64":
		return Int64, nil
	}
	d := DType(name)
	if d.Size() == 0 {
		return "", fmt.Errorf("unsupported dtype %q", name)
	}
	return d, nil
}

// Size returns the element size in bytes, 0 for unsupported types
func (d DType) Size() int {
	switch d {
	case Float64, Int64, Datetime64NS:
		return 8
	case Float32, Int32:
		return 4
	case Float16, Int16:
		return 2
	default:
		return 0
	}
}

// MaxFinite returns the largest magnitude the type stores without
// overflowing, 0 for unsupported types
func (d DType) MaxFinite() float64 {
	switch d {
	case Float64:
		return math.MaxFloat64
	case Float32:
		return math.MaxFloat32
	case Float16:
		return float64(float16.Frombits(0x7bff).Float32()) // 65504
	case Int64, Datetime64NS:
		return math.MaxInt64
	case Int32:
		return math.MaxInt32
	case Int16:
		return math.MaxInt16
	default:
		return 0
	}
}

// Holds reports whether v is finite and fits the type's range
func (d DType) Holds(v float64) bool {
	return !math.IsNaN(v) && math.Abs(v) <= d.MaxFinite()
}

// fillValue is the JSON fill value written into .zarray
func (d DType) fillValue() any {
	if d == Datetime64NS {
		return nil
	}
	return 0
}

func (d DType) putFloat(b []byte, v float64) {
	switch d {
	case Float64:
		binary.LittleEndian.PutUint64(b, math.Float64bits(v))
	case Float32:
		binary.LittleEndian.PutUint32(b, math.Float32bits(float32(v)))
	case Float16:
		binary.LittleEndian.PutUint16(b, float16.Fromfloat32(float32(v)).Bits())
	case Int64, Datetime64NS:
		binary.LittleEndian.PutUint64(b, uint64(int64(math.Round(v))))
	case Int32:
		binary.LittleEndian.PutUint32(b, uint32(int32(math.Round(v))))
	case Int16:
		binary.LittleEndian.PutUint16(b, uint16(int16(math.Round(v))))
	}
}

func (d DType) float(b []byte) float64 {
	switch d {
	case Float64:
		return math.Float64frombits(binary.LittleEndian.Uint64(b))
	case Float32:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
	case Float16:
		return float64(float16.Frombits(binary.LittleEndian.Uint16(b)).Float32())
	case Int64, Datetime64NS:
		return float64(int64(binary.LittleEndian.Uint64(b)))
	case Int32:
		return float64(int32(binary.LittleEndian.Uint32(b)))
	case Int16:
		return float64(int16(binary.LittleEndian.Uint16(b)))
	}
	return math.NaN()
}

func (d DType) putInt(b []byte, v int64) {
	switch d {
	case Int64, Datetime64NS:
		binary.LittleEndian.PutUint64(b, uint64(v))
	default:
		d.putFloat(b, float64(v))
	}
}

func (d DType) int(b []byte) int64 {
	switch d {
	case Int64, Datetime64NS:
		return int64(binary.LittleEndian.Uint64(b))
	default:
		return int64(math.Round(d.float(b)))
	}
}
