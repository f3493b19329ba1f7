package zarr

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seq(n int, scale float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(i) * scale
	}
	return out
}

func TestCreateStoreLayout(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cube.zarr")
	g, err := CreateStore(dir, map[string]any{"title": "test"})
	require.NoError(t, err)

	arr, err := g.CreateArray("data", ArrayOptions{
		Shape:      []int{10, 2, 3},
		Chunks:     []int{4, 2, 3},
		DType:      Float64,
		Compressor: Zstd(1),
		Attributes: map[string]any{"_ARRAY_DIMENSIONS": []string{"time", "channel", "frequency"}},
	})
	require.NoError(t, err)
	defer arr.Close()

	raw, err := os.ReadFile(filepath.Join(dir, "data", ".zarray"))
	require.NoError(t, err)
	var meta map[string]any
	require.NoError(t, json.Unmarshal(raw, &meta))
	assert.Equal(t, float64(2), meta["zarr_format"])
	assert.Equal(t, "<f8", meta["dtype"])
	assert.Equal(t, []any{float64(4), float64(2), float64(3)}, meta["chunks"])
	assert.Equal(t, map[string]any{"id": "zstd", "level": float64(1)}, meta["compressor"])
	assert.Nil(t, meta["filters"])
	assert.Equal(t, "C", meta["order"])

	attrs, err := g.AttributesJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"title":"test"}`, string(attrs))

	_, err = OpenGroup(dir)
	require.NoError(t, err)
}

func TestWriteRowsAcrossChunks(t *testing.T) {
	for _, comp := range []*Compressor{nil, Zstd(3)} {
		dir := t.TempDir()
		arr, err := CreateArray(filepath.Join(dir, "a"), ArrayOptions{
			Shape:      []int{10, 3},
			Chunks:     []int{4, 3},
			DType:      Float64,
			Compressor: comp,
		})
		require.NoError(t, err)

		// unaligned sequential writes, the way the cube writer appends blocks
		require.NoError(t, arr.WriteRows(0, seq(9, 1)))
		require.NoError(t, arr.WriteRows(3, seq(12, 10)))
		require.NoError(t, arr.WriteRows(7, seq(9, 100)))
		require.NoError(t, arr.Close())

		reopened, err := OpenArray(filepath.Join(dir, "a"))
		require.NoError(t, err)
		got, err := reopened.ReadRows(0, 10)
		require.NoError(t, err)

		want := append(append(seq(9, 1), seq(12, 10)...), seq(9, 100)...)
		assert.Equal(t, want, got)

		// last chunk is stored padded to a full chunk
		_, err = os.Stat(filepath.Join(dir, "a", "2.0"))
		assert.NoError(t, err)
		reopened.Close()
	}
}

func TestUnwrittenRowsReadZero(t *testing.T) {
	arr, err := CreateArray(filepath.Join(t.TempDir(), "a"), ArrayOptions{
		Shape:  []int{8, 2},
		Chunks: []int{2, 2},
		DType:  Float32,
	})
	require.NoError(t, err)
	defer arr.Close()

	require.NoError(t, arr.WriteRows(0, []float64{1, 2, 3, 4}))
	got, err := arr.ReadRows(1, 3)
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 4, 0, 0, 0, 0}, got)
}

func TestWriteRowsBounds(t *testing.T) {
	arr, err := CreateArray(filepath.Join(t.TempDir(), "a"), ArrayOptions{
		Shape:  []int{4, 2},
		Chunks: []int{2, 2},
		DType:  Float64,
	})
	require.NoError(t, err)
	defer arr.Close()

	assert.ErrorIs(t, arr.WriteRows(3, seq(4, 1)), ErrOutOfBounds)
	assert.ErrorIs(t, arr.WriteRows(-1, seq(2, 1)), ErrOutOfBounds)
	assert.Error(t, arr.WriteRows(0, seq(3, 1)))
	_, err = arr.ReadRows(2, 3)
	assert.ErrorIs(t, err, ErrOutOfBounds)
}

func TestDTypes(t *testing.T) {
	values := []float64{0, 1.5, -2.25, 1024}
	for _, dt := range []DType{Float64, Float32, Float16} {
		arr, err := CreateArray(filepath.Join(t.TempDir(), "a"), ArrayOptions{Shape: []int{4}, DType: dt})
		require.NoError(t, err)
		require.NoError(t, arr.WriteRows(0, values))
		got, err := arr.ReadRows(0, 4)
		require.NoError(t, err)
		assert.Equal(t, values, got, string(dt))
		arr.Close()
	}

	ints := []int64{1594771200000000000, 1594771200500000000, -1}
	arr, err := CreateArray(filepath.Join(t.TempDir(), "t"), ArrayOptions{Shape: []int{3}, DType: Datetime64NS})
	require.NoError(t, err)
	require.NoError(t, arr.WriteIntRows(0, ints))
	got, err := arr.ReadIntRows(0, 3)
	require.NoError(t, err)
	assert.Equal(t, ints, got)
	arr.Close()

	i16, err := CreateArray(filepath.Join(t.TempDir(), "i"), ArrayOptions{Shape: []int{2, 2}, DType: Int16})
	require.NoError(t, err)
	require.NoError(t, i16.WriteRows(0, []float64{-3, 7, 32767, -32768}))
	back, err := i16.ReadRows(0, 2)
	require.NoError(t, err)
	assert.Equal(t, []float64{-3, 7, 32767, -32768}, back)
	i16.Close()
}

func TestParseDType(t *testing.T) {
	d, err := ParseDType("float16")
	require.NoError(t, err)
	assert.Equal(t, Float16, d)
	assert.Equal(t, 2, d.Size())

	d, err = ParseDType("<i4")
	require.NoError(t, err)
	assert.Equal(t, Int32, d)

	_, err = ParseDType(">f8")
	assert.Error(t, err)
}

func TestDTypeHolds(t *testing.T) {
	assert.Equal(t, 65504.0, Float16.MaxFinite())
	assert.True(t, Float16.Holds(-690.8))
	assert.True(t, Float16.Holds(65504))
	assert.False(t, Float16.Holds(119280), "squared-log floor")
	assert.True(t, Float32.Holds(119280))
	assert.False(t, Float64.Holds(math.Inf(-1)))
	assert.False(t, Float64.Holds(math.NaN()))
	assert.False(t, DType(">f8").Holds(0))
}

func TestCreateArrayRejectsInnerChunking(t *testing.T) {
	_, err := CreateArray(filepath.Join(t.TempDir(), "a"), ArrayOptions{
		Shape:  []int{4, 4},
		Chunks: []int{2, 2},
		DType:  Float64,
	})
	assert.Error(t, err)
}

func TestCreateStoreOverwrite(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cube.zarr")
	g, err := CreateStore(dir, nil)
	require.NoError(t, err)
	arr, err := g.CreateArray("old", ArrayOptions{Shape: []int{1}, DType: Float64})
	require.NoError(t, err)
	arr.Close()

	_, err = CreateStore(dir, nil)
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "old"))
	assert.True(t, os.IsNotExist(err))
}

func TestCreateStoreRefusesForeignDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("keep"), 0o644))

	_, err := CreateStore(dir, nil)
	assert.ErrorIs(t, err, ErrNotStore)
	_, err = os.Stat(filepath.Join(dir, "notes.txt"))
	assert.NoError(t, err)
}
