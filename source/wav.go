package source

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/go-audio/wav"
	"gonum.org/v1/gonum/mat"
)

// WAVReader reads multichannel PCM WAV files, one DAS channel per WAV
// channel. WAV carries no absolute time, so the start time is the
// file-name timestamp on the acquisition day.
type WAVReader struct {
	SampleRate int // expected rate in Hz; 0 accepts any
}

// NewWAVReader creates a reader that rejects files not sampled at sampleRate
func NewWAVReader(sampleRate int) *WAVReader {
	return &WAVReader{SampleRate: sampleRate}
}

func (w *WAVReader) Extension() string { return ".wav" }

func (w *WAVReader) decode(e Entry) (*mat.Dense, error) {
	f, err := os.Open(e.Path)
	if err != nil {
		return nil, readErr(e, err)
	}
	defer f.Close()

	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		return nil, readErr(e, fmt.Errorf("not a valid PCM wav file"))
	}
	if w.SampleRate > 0 && int(d.SampleRate) != w.SampleRate {
		return nil, fmt.Errorf("%s: sample rate %d Hz, want %d Hz: %w", e.Path, d.SampleRate, w.SampleRate, ErrShape)
	}

	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, readErr(e, err)
	}
	channels := int(d.NumChans)
	if channels == 0 || len(buf.Data) == 0 || len(buf.Data)%channels != 0 {
		return nil, fmt.Errorf("%s: %d samples over %d channels: %w", e.Path, len(buf.Data), channels, ErrShape)
	}

	// interleaved frames are already samples × channels in row-major order
	data := make([]float64, len(buf.Data))
	for i, v := range buf.Data {
		data[i] = float64(v)
	}
	return mat.NewDense(len(data)/channels, channels, data), nil
}

func (w *WAVReader) Read(ctx context.Context, e Entry) (*Block, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := w.decode(e)
	if err != nil {
		return nil, err
	}
	return &Block{Entry: e, Data: data, Start: e.Start}, nil
}

func (w *WAVReader) ReadHead(ctx context.Context, e Entry, rows int) (*mat.Dense, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if rows <= 0 {
		return nil, fmt.Errorf("%s: head of %d rows: %w", e.Path, rows, ErrShape)
	}
	data, err := w.decode(e)
	if err != nil {
		return nil, err
	}
	return head(data, rows), nil
}

func (w *WAVReader) StartTime(ctx context.Context, e Entry) (time.Time, error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, err
	}
	return e.Start, nil
}
