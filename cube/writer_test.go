package cube

import (
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/RyanBlaney/strain-cube/cube/config"
	"github.com/RyanBlaney/strain-cube/store/zarr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingSink tracks which segment rows have been written
type recordingSink struct {
	rowElems int
	covered  map[int]int
	fail     error
}

func newRecordingSink(rowElems int) *recordingSink {
	return &recordingSink{rowElems: rowElems, covered: map[int]int{}}
}

func (s *recordingSink) WriteRows(start int, data []float64) error {
	if s.fail != nil {
		return s.fail
	}
	for r := range len(data) / s.rowElems {
		s.covered[start+r]++
	}
	return nil
}

func block(file, segments, channels, bins int) *Block {
	return &Block{
		File:     file,
		Segments: segments,
		Channels: channels,
		Bins:     bins,
		Data:     make([]float64, segments*channels*bins),
	}
}

func TestWriterCoversEverySegmentOnce(t *testing.T) {
	n, hop, segLen, nFiles := 400, 30, 100, 5
	total := TotalSegments(n, hop, segLen, nFiles)
	sink := newRecordingSink(3 * 41)
	w := NewWriter(sink, total, 3, 41, nil)

	for i := range nFiles {
		segs := len(SegmentPositions(i, n, hop, segLen, nFiles))
		require.NoError(t, w.Append(block(i, segs, 3, 41)))
	}
	require.NoError(t, w.Finish())
	assert.Equal(t, total, w.Offset())
	require.Len(t, sink.covered, total)
	for k := range total {
		assert.Equal(t, 1, sink.covered[k], "segment %d", k)
	}
}

func TestWriterRejectsOverrunAndShape(t *testing.T) {
	w := NewWriter(newRecordingSink(2), 5, 1, 2, nil)
	require.NoError(t, w.Append(block(0, 3, 1, 2)))

	err := w.Append(block(1, 3, 1, 2))
	assert.ErrorIs(t, err, ErrOverrun)
	assert.Equal(t, 3, w.Offset())

	err = w.Append(block(1, 1, 2, 2))
	assert.ErrorIs(t, err, ErrBlockShape)

	short := block(1, 2, 1, 2)
	short.Data = short.Data[:3]
	assert.ErrorIs(t, w.Append(short), ErrBlockShape)
	long := block(1, 1, 1, 2)
	long.Data = make([]float64, 4)
	assert.ErrorIs(t, w.Append(long), ErrBlockShape)
	assert.Equal(t, 3, w.Offset())

	assert.ErrorIs(t, w.Finish(), ErrIncomplete)
	require.NoError(t, w.Append(block(1, 2, 1, 2)))
	assert.NoError(t, w.Finish())
}

func TestWriterSinkFailureKeepsOffset(t *testing.T) {
	sink := newRecordingSink(2)
	sink.fail = errors.New("disk full")
	w := NewWriter(sink, 4, 1, 2, nil)

	err := w.Append(block(0, 2, 1, 2))
	assert.ErrorIs(t, err, sink.fail)
	assert.Equal(t, 0, w.Offset())
}

func TestNewCoordinates(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.CableStart = 100
	cfg.CableEnd = 120
	p, err := cfg.Derive(3)
	require.NoError(t, err)

	start := time.Date(2020, 7, 19, 0, 0, 0, 0, time.UTC)
	c := NewCoordinates(p, start)

	assert.Equal(t, []float64{100, 104, 108, 112, 116}, c.Location)
	require.Len(t, c.Frequency, 101)
	for k, f := range c.Frequency {
		assert.InDelta(t, float64(k), f, 1e-9)
	}
	require.Len(t, c.Time, p.TotalSegments())
	assert.Equal(t, start.UnixNano(), c.Time[0])
	assert.Equal(t, start.Add(500*time.Millisecond).UnixNano(), c.Time[1])
	assert.Equal(t, start.Add(time.Duration(len(c.Time)-1)*500*time.Millisecond).UnixNano(), c.Time[len(c.Time)-1])
}

func TestCreateCubeLayout(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.SampleRate = 100
	cfg.FileDuration = 4
	cfg.CableEnd = 8
	cfg.FreqMax = 10
	p, err := cfg.Derive(3)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "out", "cube.zarr")
	start := time.Date(2020, 7, 19, 12, 0, 0, 0, time.UTC)
	c, err := CreateCube(path, p, start, CubeOptions{
		DType:      zarr.Float32,
		Compressor: zarr.Zstd(0),
		Attributes: map[string]any{"run_id": "test"},
	}, nil)
	require.NoError(t, err)

	total := p.TotalSegments()
	require.Equal(t, 23, total)
	for i := range 3 {
		segs := len(SegmentPositions(i, p.SamplesPerFile, p.Hop, p.SegLen, 3))
		b := block(i, segs, 2, 11)
		for j := range b.Data {
			b.Data[j] = float64(i)
		}
		require.NoError(t, c.Writer.Append(b))
	}
	require.NoError(t, c.Writer.Finish())

	g, err := zarr.OpenGroup(path)
	require.NoError(t, err)
	attrs, err := g.AttributesJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"run_id":"test","complete":false}`, string(attrs))

	require.NoError(t, c.MarkComplete(map[string]any{"floored": 4}))
	require.NoError(t, c.Close())
	attrs, err = g.AttributesJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"run_id":"test","complete":true,"floored":4}`, string(attrs))

	data, err := g.OpenArray(DataArray)
	require.NoError(t, err)
	defer data.Close()
	assert.Equal(t, []int{23, 2, 11}, data.Shape())
	assert.Equal(t, []int{8, 2, 11}, data.Chunks())
	assert.Equal(t, zarr.Float32, data.DType())

	rows, err := data.ReadRows(0, total)
	require.NoError(t, err)
	assert.Equal(t, 0.0, rows[0])
	assert.Equal(t, 1.0, rows[8*22])
	assert.Equal(t, 2.0, rows[len(rows)-1])

	loc, err := g.OpenArray(filepath.Join(CoordsGroup, LocationArray))
	require.NoError(t, err)
	defer loc.Close()
	locs, err := loc.ReadRows(0, 2)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 4}, locs)

	tm, err := g.OpenArray(filepath.Join(CoordsGroup, TimeArray))
	require.NoError(t, err)
	defer tm.Close()
	assert.Equal(t, zarr.Datetime64NS, tm.DType())
	times, err := tm.ReadIntRows(0, total)
	require.NoError(t, err)
	assert.Equal(t, start.Add(11*time.Second).UnixNano(), times[22])

	dims, err := tm.AttributesJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"_ARRAY_DIMENSIONS":["time"]}`, string(dims))

	fr, err := g.OpenArray(filepath.Join(CoordsGroup, FreqArray))
	require.NoError(t, err)
	defer fr.Close()
	freqs, err := fr.ReadRows(0, 11)
	require.NoError(t, err)
	assert.InDelta(t, 10.0, freqs[10], 1e-12)
	assert.False(t, math.IsNaN(freqs[0]))
}
