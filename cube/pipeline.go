package cube

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/RyanBlaney/strain-cube/algorithms/common"
	"github.com/RyanBlaney/strain-cube/cube/config"
	"github.com/RyanBlaney/strain-cube/logging"
	"github.com/RyanBlaney/strain-cube/source"
	"github.com/RyanBlaney/strain-cube/store/zarr"
	"github.com/google/uuid"
)

// FileJob is everything a worker needs to process one file. Jobs are
// built by the orchestrator before dispatch; workers read nothing else.
type FileJob struct {
	Index     int
	Entry     source.Entry
	Next      *source.Entry // nil for the last file
	Positions []int
}

// FilePlan describes the segments one file contributes to the cube
type FilePlan struct {
	Entry    source.Entry
	First    int // global index of the file's first segment
	Segments int
}

// Plan is the resolved layout of a run
type Plan struct {
	Params config.Params
	Files  []FilePlan
	Total  int
}

// Summary reports a completed run
type Summary struct {
	RunID      string
	OutputPath string
	Files      int
	Segments   int
	Channels   int
	Bins       int
	Workers    int
	Parts      int
	Floored    int
	NonFinite  int
	Elapsed    time.Duration
	PerFile    time.Duration // mean compute time of one file
}

// Pipeline builds a spectrogram cube from the source files of one day
type Pipeline struct {
	cfg    *config.Config
	reader source.Reader
	logger logging.Logger
}

// NewReader returns the source reader selected by cfg.SourceFormat
func NewReader(cfg *config.Config) (source.Reader, error) {
	switch cfg.SourceFormat {
	case config.FormatZarr:
		return source.NewZarrReader(cfg.StartTimeAttr), nil
	case config.FormatHDF5:
		if !source.HDF5Available {
			return nil, fmt.Errorf("%w: hdf5 sources need a binary built with -tags hdf5", config.ErrInvalid)
		}
		return source.NewHDF5Reader(cfg.StartTimeAttr), nil
	case config.FormatWAV:
		return source.NewWAVReader(cfg.SampleRate), nil
	default:
		return nil, fmt.Errorf("%w: unknown source format %q", config.ErrInvalid, cfg.SourceFormat)
	}
}

// NewPipeline creates a pipeline. cfg must have been validated.
func NewPipeline(cfg *config.Config, reader source.Reader, logger logging.Logger) *Pipeline {
	if logger == nil {
		logger = &logging.NoOpLogger{}
	}
	return &Pipeline{
		cfg:    cfg,
		reader: reader,
		logger: logger.WithFields(logging.Fields{"component": "pipeline"}),
	}
}

// SourceDir returns the directory the source files are listed from
func (p *Pipeline) SourceDir() string {
	if p.cfg.DayDirs {
		return source.DayDir(p.cfg.SourceDir, p.cfg.Date())
	}
	return p.cfg.SourceDir
}

// Discover lists the source files of the configured day, limited to the
// first NFiles when that is set
func (p *Pipeline) Discover() ([]source.Entry, error) {
	entries, err := source.Discover(p.SourceDir(), p.cfg.Date(), p.reader.Extension())
	if err != nil {
		return nil, err
	}
	if n := p.cfg.NFiles; n > 0 {
		if n > len(entries) {
			return nil, fmt.Errorf("%d files requested, %d found in %s: %w", n, len(entries), p.SourceDir(), source.ErrNoFiles)
		}
		entries = entries[:n]
	}
	return entries, nil
}

// Plan derives the run parameters for entries and the segment range of
// every file
func (p *Pipeline) Plan(entries []source.Entry) (*Plan, error) {
	params, err := p.cfg.Derive(len(entries))
	if err != nil {
		return nil, err
	}

	plan := &Plan{Params: params, Files: make([]FilePlan, len(entries))}
	for i, e := range entries {
		first, last := SegmentRange(i, params.SamplesPerFile, params.Hop, params.SegLen, params.NFiles)
		plan.Files[i] = FilePlan{Entry: e, First: first, Segments: max(0, last-first+1)}
		plan.Total += plan.Files[i].Segments
	}
	if want := params.TotalSegments(); plan.Total != want {
		return nil, fmt.Errorf("scheduled %d segments, closed form gives %d", plan.Total, want)
	}
	return plan, nil
}

// Jobs builds the per-file work units for entries
func Jobs(params config.Params, entries []source.Entry) []FileJob {
	jobs := make([]FileJob, len(entries))
	for i := range entries {
		jobs[i] = FileJob{
			Index:     i,
			Entry:     entries[i],
			Positions: SegmentPositions(i, params.SamplesPerFile, params.Hop, params.SegLen, len(entries)),
		}
		if i+1 < len(entries) {
			next := entries[i+1]
			jobs[i].Next = &next
		}
	}
	return jobs
}

// Run discovers the source files and builds the cube
func (p *Pipeline) Run(ctx context.Context) (*Summary, error) {
	entries, err := p.Discover()
	if err != nil {
		return nil, err
	}
	return p.RunEntries(ctx, entries)
}

// RunEntries builds the cube from entries, which must be in chronological
// order. Any failure aborts the run; an output store that was already
// created stays on disk with the unwritten segments at zero.
func (p *Pipeline) RunEntries(ctx context.Context, entries []source.Entry) (*Summary, error) {
	began := time.Now()

	plan, err := p.Plan(entries)
	if err != nil {
		return nil, err
	}
	params := plan.Params

	start, err := p.reader.StartTime(ctx, entries[0])
	if err != nil {
		return nil, &StageError{File: 0, Path: entries[0].Path, Stage: StageRead, Err: err}
	}

	runID := uuid.NewString()
	logger := p.logger.WithFields(logging.Fields{"run_id": runID})
	logger.Info("starting run", logging.Fields{
		"files":    len(entries),
		"segments": plan.Total,
		"channels": params.Channels(),
		"bins":     params.IndF,
		"seg_len":  params.SegLen,
		"hop":      params.Hop,
		"start":    start.Format(time.RFC3339Nano),
		"output":   p.cfg.OutputPath,
	})

	kernel := NewKernel(params)
	opts, err := p.cubeOptions(runID, params, kernel.FloorValue(), start, entries[0])
	if err != nil {
		return nil, err
	}
	out, err := CreateCube(p.cfg.OutputPath, params, start, opts, logger)
	if err != nil {
		return nil, fmt.Errorf("create cube: %w", err)
	}
	defer out.Close()

	jobs := Jobs(params, entries)
	cont := NewContinuity(p.reader, params)
	exec := NewExecutor(p.cfg.Workers, p.cfg.Parts, logger)

	took := make([]float64, len(jobs))
	compute := func(ctx context.Context, i int) (*Block, error) {
		job := jobs[i]
		t0 := time.Now()
		ext, err := cont.Load(ctx, job.Entry, job.Next)
		if err != nil {
			return nil, err
		}
		blk, err := kernel.Compute(job.Index, ext.Data, job.Positions)
		if err != nil {
			return nil, &StageError{File: job.Index, Path: job.Entry.Path, Stage: StageKernel, Err: err}
		}
		took[i] = time.Since(t0).Seconds()
		return blk, nil
	}

	floored, nonFinite := 0, 0
	sink := func(b *Block) error {
		if err := out.Writer.Append(b); err != nil {
			return &StageError{File: b.File, Path: entries[b.File].Path, Stage: StageWrite, Err: err}
		}
		if b.NonFinite > 0 {
			logger.Warn("non-finite samples, bins written as NaN", logging.Fields{"file": entries[b.File].Path, "bins": b.NonFinite})
		}
		floored += b.Floored
		nonFinite += b.NonFinite
		return nil
	}

	err = exec.Run(ctx, len(jobs), compute, sink)
	if err == nil {
		err = out.Writer.Finish()
	}
	if err != nil {
		fields := logging.Fields{"written": out.Writer.Offset(), "segments": out.Writer.Total()}
		var se *StageError
		if errors.As(err, &se) {
			fields["file"] = se.Path
			fields["stage"] = se.Stage
		}
		logger.Warn("run aborted, output store is partially written", fields)
		return nil, err
	}

	if err := out.MarkComplete(map[string]any{"floored": floored, "non_finite": nonFinite}); err != nil {
		return nil, err
	}

	if floored > 0 {
		logger.Warn("bins below the power floor", logging.Fields{"count": floored, "floor": params.PowerFloor})
	}

	summary := &Summary{
		RunID:      runID,
		OutputPath: p.cfg.OutputPath,
		Files:      len(entries),
		Segments:   plan.Total,
		Channels:   params.Channels(),
		Bins:       params.IndF,
		Workers:    exec.Workers(),
		Parts:      len(Partition(len(entries), p.cfg.Parts)),
		Floored:    floored,
		NonFinite:  nonFinite,
		Elapsed:    time.Since(began),
		PerFile:    time.Duration(common.Mean(took) * float64(time.Second)),
	}
	logger.Info("run complete", logging.Fields{
		"files":    summary.Files,
		"segments": summary.Segments,
		"workers":  summary.Workers,
		"elapsed":  summary.Elapsed.Round(time.Millisecond).String(),
		"per_file": summary.PerFile.Round(time.Millisecond).String(),
	})
	return summary, nil
}

func (p *Pipeline) cubeOptions(runID string, params config.Params, floor float64, start time.Time, first source.Entry) (CubeOptions, error) {
	dtype, err := zarr.ParseDType(p.cfg.OutputDType)
	if err != nil {
		return CubeOptions{}, fmt.Errorf("%w: %v", config.ErrInvalid, err)
	}
	if !dtype.Holds(floor) {
		return CubeOptions{}, fmt.Errorf("%w: floor value %g does not fit %s output", config.ErrInvalid, floor, p.cfg.OutputDType)
	}
	var comp *zarr.Compressor
	if p.cfg.Compressor == "zstd" {
		comp = zarr.Zstd(p.cfg.CompressionLevel)
	}

	return CubeOptions{
		DType:      dtype,
		Compressor: comp,
		Attributes: map[string]any{
			"run_id":           runID,
			"created":          time.Now().UTC().Format(time.RFC3339),
			"start_time":       start.UTC().Format(time.RFC3339Nano),
			"first_file":       first.Name(),
			"n_files":          params.NFiles,
			"sample_rate":      params.SampleRate,
			"samples_per_file": params.SamplesPerFile,
			"seg_len":          params.SegLen,
			"hop":              params.Hop,
			"freq_resolution":  p.cfg.FreqResolution,
			"time_resolution":  p.cfg.TimeResolution,
			"freq_max":         p.cfg.FreqMax,
			"cable_start":      p.cfg.CableStart,
			"cable_end":        p.cfg.CableEnd,
			"channel_spacing":  params.ChannelSpacing,
			"taper_alpha":      params.TaperAlpha,
			"log_power":        params.LogConvention.String(),
			"power_floor":      params.PowerFloor,
		},
	}, nil
}
