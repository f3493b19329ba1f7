package cube

import (
	"fmt"
	"maps"
	"time"

	"github.com/RyanBlaney/strain-cube/algorithms/common"
	"github.com/RyanBlaney/strain-cube/cube/config"
	"github.com/RyanBlaney/strain-cube/logging"
	"github.com/RyanBlaney/strain-cube/store/zarr"
	"gonum.org/v1/gonum/floats"
)

// Names inside the cube store
const (
	DataArray     = "data"
	CoordsGroup   = "coords"
	LocationArray = "location"
	FreqArray     = "frequency"
	TimeArray     = "time"
)

// Sink receives contiguous row writes along the segment axis
type Sink interface {
	WriteRows(start int, data []float64) error
}

// Writer appends blocks to a sink at a running segment offset. Writes are
// contiguous and never overlap; Finish checks that they covered the whole
// declared segment count.
type Writer struct {
	sink     Sink
	total    int
	channels int
	bins     int
	offset   int
	logger   logging.Logger
}

// NewWriter creates a writer for a cube of total × channels × bins
func NewWriter(sink Sink, total, channels, bins int, logger logging.Logger) *Writer {
	if logger == nil {
		logger = &logging.NoOpLogger{}
	}
	return &Writer{
		sink:     sink,
		total:    total,
		channels: channels,
		bins:     bins,
		logger:   logger.WithFields(logging.Fields{"component": "writer"}),
	}
}

// Append writes b at the current offset and advances it by b.Segments
func (w *Writer) Append(b *Block) error {
	if b.Channels != w.channels || b.Bins != w.bins {
		return fmt.Errorf("file %d: block %d×%d, cube %d×%d: %w", b.File, b.Channels, b.Bins, w.channels, w.bins, ErrBlockShape)
	}
	if b.Segments < 0 || len(b.Data) != b.Segments*b.Channels*b.Bins {
		return fmt.Errorf("file %d: %d values for %d segments of %d×%d: %w", b.File, len(b.Data), b.Segments, b.Channels, b.Bins, ErrBlockShape)
	}
	if w.offset+b.Segments > w.total {
		return fmt.Errorf("file %d: segments [%d, %d) of %d: %w", b.File, w.offset, w.offset+b.Segments, w.total, ErrOverrun)
	}
	if b.Segments > 0 {
		if err := w.sink.WriteRows(w.offset, b.Data); err != nil {
			return fmt.Errorf("file %d: %w", b.File, err)
		}
	}
	w.logger.Debug("block written", logging.Fields{"file": b.File, "offset": w.offset, "segments": b.Segments})
	w.offset += b.Segments
	return nil
}

// Offset returns the next segment to be written
func (w *Writer) Offset() int {
	return w.offset
}

// Total returns the declared segment count
func (w *Writer) Total() int {
	return w.total
}

// Finish reports ErrIncomplete unless exactly the declared segment count
// was written
func (w *Writer) Finish() error {
	if w.offset != w.total {
		return fmt.Errorf("wrote %d of %d segments: %w", w.offset, w.total, ErrIncomplete)
	}
	return nil
}

// Coordinates are the labels of the cube axes
type Coordinates struct {
	Location  []float64 // meters along the cable, per channel
	Frequency []float64 // Hz, per bin
	Time      []int64   // Unix nanoseconds, per segment
}

// NewCoordinates computes the axis labels for params, with segment 0
// starting at start
func NewCoordinates(p config.Params, start time.Time) Coordinates {
	// channel indices are exact in float64; scale afterwards
	loc := common.Arange(float64(p.IndA), float64(p.IndE), 1)
	floats.Scale(p.ChannelSpacing, loc)

	freq := common.RFFTFreq(p.SegLen, 1/float64(p.SampleRate))[:p.IndF]

	total := p.TotalSegments()
	t0 := start.UnixNano()
	times := make([]int64, total)
	for k := range times {
		times[k] = t0 + int64(p.SegmentOffset(k))
	}
	return Coordinates{Location: loc, Frequency: freq, Time: times}
}

// CubeOptions controls the on-disk representation of the cube
type CubeOptions struct {
	DType      zarr.DType
	Compressor *zarr.Compressor
	Attributes map[string]any
}

// Cube is an open output store with its writer
type Cube struct {
	Path   string
	group  *zarr.Group
	attrs  map[string]any
	data   *zarr.Array
	Writer *Writer
}

// CreateCube allocates the store at path (replacing an existing cube),
// writes the coordinate arrays, and returns a cube ready for appends. The
// data array is chunked by whole files' worth of segments.
func CreateCube(path string, p config.Params, start time.Time, opts CubeOptions, logger logging.Logger) (*Cube, error) {
	if opts.DType == "" {
		opts.DType = zarr.Float64
	}
	attrs := maps.Clone(opts.Attributes)
	if attrs == nil {
		attrs = map[string]any{}
	}
	attrs["complete"] = false
	g, err := zarr.CreateStore(path, attrs)
	if err != nil {
		return nil, err
	}

	total := p.TotalSegments()
	chunk := min(p.SegmentsPerFileCeil(), total)
	data, err := g.CreateArray(DataArray, zarr.ArrayOptions{
		Shape:      []int{total, p.Channels(), p.IndF},
		Chunks:     []int{chunk, p.Channels(), p.IndF},
		DType:      opts.DType,
		Compressor: opts.Compressor,
		Attributes: map[string]any{
			"_ARRAY_DIMENSIONS": []string{"time", "distance", "frequency"},
			"long_name":         "log power",
		},
	})
	if err != nil {
		return nil, err
	}

	if err := writeCoordinates(g, NewCoordinates(p, start), opts.Compressor); err != nil {
		data.Close()
		return nil, err
	}

	return &Cube{
		Path:   path,
		group:  g,
		attrs:  attrs,
		data:   data,
		Writer: NewWriter(data, total, p.Channels(), p.IndF, logger),
	}, nil
}

func writeCoordinates(g *zarr.Group, c Coordinates, comp *zarr.Compressor) error {
	coords, err := g.CreateGroup(CoordsGroup, nil)
	if err != nil {
		return err
	}

	floatCoord := func(name, dim, units string, values []float64) error {
		arr, err := coords.CreateArray(name, zarr.ArrayOptions{
			Shape:      []int{len(values)},
			DType:      zarr.Float64,
			Compressor: comp,
			Attributes: map[string]any{"_ARRAY_DIMENSIONS": []string{dim}, "units": units},
		})
		if err != nil {
			return err
		}
		defer arr.Close()
		return arr.WriteRows(0, values)
	}
	if err := floatCoord(LocationArray, "distance", "m", c.Location); err != nil {
		return fmt.Errorf("location coordinates: %w", err)
	}
	if err := floatCoord(FreqArray, "frequency", "Hz", c.Frequency); err != nil {
		return fmt.Errorf("frequency coordinates: %w", err)
	}

	arr, err := coords.CreateArray(TimeArray, zarr.ArrayOptions{
		Shape:      []int{len(c.Time)},
		DType:      zarr.Datetime64NS,
		Compressor: comp,
		Attributes: map[string]any{"_ARRAY_DIMENSIONS": []string{"time"}},
	})
	if err != nil {
		return fmt.Errorf("time coordinates: %w", err)
	}
	defer arr.Close()
	if err := arr.WriteIntRows(0, c.Time); err != nil {
		return fmt.Errorf("time coordinates: %w", err)
	}
	return nil
}

// MarkComplete rewrites the root attributes with extra merged in and
// complete set. Stores left behind by a failed run keep complete=false.
func (c *Cube) MarkComplete(extra map[string]any) error {
	attrs := maps.Clone(c.attrs)
	maps.Copy(attrs, extra)
	attrs["complete"] = true
	if err := c.group.SetAttributes(attrs); err != nil {
		return fmt.Errorf("mark cube complete: %w", err)
	}
	c.attrs = attrs
	return nil
}

// Close releases the data array
func (c *Cube) Close() error {
	return c.data.Close()
}
