package source

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/RyanBlaney/strain-cube/store/zarr"
	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

var day = time.Date(2020, 7, 19, 0, 0, 0, 0, time.UTC)

func touch(t *testing.T, dir, name string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, name), 0o755))
}

func TestParseTimeOfDay(t *testing.T) {
	d, err := ParseTimeOfDay("rhone1khz_UTC_20200719_134530.000.zarr")
	require.NoError(t, err)
	assert.Equal(t, 13*time.Hour+45*time.Minute+30*time.Second, d)

	_, err = ParseTimeOfDay("rhone1khz_UTC_20200719.zarr")
	assert.ErrorIs(t, err, ErrBadFilename)

	_, err = ParseTimeOfDay("x_256000.zarr")
	assert.ErrorIs(t, err, ErrBadFilename)
}

func TestDiscoverOrdersChronologically(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "rhone1khz_UTC_20200719_000100.000.zarr")
	touch(t, dir, "rhone1khz_UTC_20200719_000000.000.zarr")
	touch(t, dir, "rhone1khz_UTC_20200719_000030.000.zarr")
	touch(t, dir, "notes.txt")
	touch(t, dir, ".hidden_000000.zarr")

	entries, err := Discover(dir, day, ".zarr")
	require.NoError(t, err)
	require.Len(t, entries, 3)

	for i, want := range []time.Duration{0, 30 * time.Second, 60 * time.Second} {
		assert.Equal(t, i, entries[i].Index)
		assert.Equal(t, want, entries[i].Offset)
		assert.Equal(t, day.Add(want), entries[i].Start)
	}
	assert.Equal(t, "rhone1khz_UTC_20200719_000000.000.zarr", entries[0].Name())
}

func TestDiscoverErrors(t *testing.T) {
	dir := t.TempDir()
	_, err := Discover(dir, day, ".zarr")
	assert.ErrorIs(t, err, ErrNoFiles)

	touch(t, dir, "broken.zarr")
	_, err = Discover(dir, day, ".zarr")
	assert.ErrorIs(t, err, ErrBadFilename)

	_, err = Discover(filepath.Join(dir, "missing"), day, ".zarr")
	assert.Error(t, err)
}

func TestDayDir(t *testing.T) {
	assert.Equal(t, filepath.Join("/data", "20200719"), DayDir("/data", day))
}

func TestParseTimestamp(t *testing.T) {
	want := time.Date(2020, 7, 19, 0, 0, 30, 500000000, time.UTC)
	for _, s := range []string{
		"2020-07-19T00:00:30.5Z",
		"2020-07-19T00:00:30.500",
		"2020-07-19 00:00:30.5",
		"2020-07-19T02:00:30.5+02:00",
	} {
		got, err := ParseTimestamp(s)
		require.NoError(t, err, s)
		assert.True(t, want.Equal(got), s)
	}
	_, err := ParseTimestamp("19.07.2020")
	assert.Error(t, err)
}

func writeZarrSource(t *testing.T, path string, grouped bool, rows, cols int, start string) {
	t.Helper()
	attrs := map[string]any{"starttime": start, "SamplingFrequency[Hz]": 1000}
	data := make([]float64, rows*cols)
	for i := range data {
		data[i] = float64(i)
	}

	var arr *zarr.Array
	var err error
	if grouped {
		g, gerr := zarr.CreateStore(path, attrs)
		require.NoError(t, gerr)
		arr, err = g.CreateArray("Acoustic", zarr.ArrayOptions{Shape: []int{rows, cols}, Chunks: []int{3, cols}, DType: zarr.Float32})
	} else {
		arr, err = zarr.CreateArray(path, zarr.ArrayOptions{Shape: []int{rows, cols}, Chunks: []int{3, cols}, DType: zarr.Int16, Attributes: attrs})
	}
	require.NoError(t, err)
	require.NoError(t, arr.WriteRows(0, data))
	require.NoError(t, arr.Close())
}

func TestZarrReader(t *testing.T) {
	for _, grouped := range []bool{false, true} {
		dir := t.TempDir()
		path := filepath.Join(dir, "das_000000.zarr")
		writeZarrSource(t, path, grouped, 8, 3, "2020-07-19T00:00:00.000000")

		r := NewZarrReader("")
		e := Entry{Index: 0, Path: path}
		ctx := context.Background()

		b, err := r.Read(ctx, e)
		require.NoError(t, err)
		rows, cols := b.Data.Dims()
		assert.Equal(t, 8, rows)
		assert.Equal(t, 3, cols)
		assert.Equal(t, 7.0, b.Data.At(2, 1))
		assert.Equal(t, day, b.Start)

		h, err := r.ReadHead(ctx, e, 4)
		require.NoError(t, err)
		assert.True(t, mat.Equal(b.Data.Slice(0, 4, 0, 3), h))

		start, err := r.StartTime(ctx, e)
		require.NoError(t, err)
		assert.Equal(t, day, start)
	}
}

func TestZarrReaderMissingAttr(t *testing.T) {
	path := filepath.Join(t.TempDir(), "das_000000.zarr")
	arr, err := zarr.CreateArray(path, zarr.ArrayOptions{Shape: []int{2, 2}, DType: zarr.Float64})
	require.NoError(t, err)
	arr.Close()

	_, err = NewZarrReader("starttime").Read(context.Background(), Entry{Path: path})
	assert.ErrorIs(t, err, ErrMissingAttr)
}

func TestZarrReaderRejectsNonMatrix(t *testing.T) {
	path := filepath.Join(t.TempDir(), "das_000000.zarr")
	arr, err := zarr.CreateArray(path, zarr.ArrayOptions{Shape: []int{4}, DType: zarr.Float64, Attributes: map[string]any{"starttime": "2020-07-19T00:00:00Z"}})
	require.NoError(t, err)
	arr.Close()

	_, err = NewZarrReader("").Read(context.Background(), Entry{Path: path})
	assert.ErrorIs(t, err, ErrShape)
}

func TestZarrReaderMissingFile(t *testing.T) {
	_, err := NewZarrReader("").Read(context.Background(), Entry{Path: filepath.Join(t.TempDir(), "gone.zarr")})
	assert.ErrorIs(t, err, ErrRead)
}

func writeWAV(t *testing.T, path string, rate, channels int, data []int) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	enc := wav.NewEncoder(f, rate, 16, channels, 1)
	require.NoError(t, enc.Write(&audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: rate},
		Data:           data,
		SourceBitDepth: 16,
	}))
	require.NoError(t, enc.Close())
}

func TestWAVReader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "das_000030.wav")
	writeWAV(t, path, 1000, 2, []int{1, -1, 2, -2, 3, -3})

	e := Entry{Path: path, Start: day.Add(30 * time.Second)}
	r := NewWAVReader(1000)
	b, err := r.Read(context.Background(), e)
	require.NoError(t, err)

	want := mat.NewDense(3, 2, []float64{1, -1, 2, -2, 3, -3})
	assert.True(t, mat.Equal(want, b.Data))
	assert.Equal(t, e.Start, b.Start)

	h, err := r.ReadHead(context.Background(), e, 2)
	require.NoError(t, err)
	assert.True(t, mat.Equal(want.Slice(0, 2, 0, 2), h))

	_, err = NewWAVReader(500).Read(context.Background(), e)
	assert.ErrorIs(t, err, ErrShape)
}

func TestMemoryReader(t *testing.T) {
	b := &Block{Entry: Entry{Path: "a"}, Data: mat.NewDense(3, 1, []float64{1, 2, 3}), Start: day}
	r := NewMemoryReader(b)

	got, err := r.Read(context.Background(), Entry{Path: "a"})
	require.NoError(t, err)
	got.Data.Set(0, 0, 99)
	assert.Equal(t, 1.0, b.Data.At(0, 0), "reads must not alias the stored matrix")
	assert.Equal(t, int64(1), r.Reads())

	h, err := r.ReadHead(context.Background(), Entry{Path: "a"}, 5)
	require.NoError(t, err)
	rows, _ := h.Dims()
	assert.Equal(t, 3, rows)

	_, err = r.Read(context.Background(), Entry{Path: "b"})
	assert.ErrorIs(t, err, ErrRead)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = r.Read(ctx, Entry{Path: "a"})
	assert.ErrorIs(t, err, context.Canceled)
}
