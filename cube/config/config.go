package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/RyanBlaney/strain-cube/algorithms/spectral"
	"github.com/RyanBlaney/strain-cube/store/zarr"
	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every configuration validation failure
var ErrInvalid = errors.New("invalid configuration")

// Source file formats
const (
	FormatZarr = "zarr"
	FormatHDF5 = "hdf5"
	FormatWAV  = "wav"
)

// Config is the full set of run parameters. It is read once at startup,
// validated, and never mutated afterwards; workers only see the derived
// Params.
type Config struct {
	// Input
	SourceDir     string `json:"source_dir" yaml:"source_dir" mapstructure:"source_dir"`
	Year          int    `json:"year" yaml:"year" mapstructure:"year"`
	Month         int    `json:"month" yaml:"month" mapstructure:"month"`
	Day           int    `json:"day" yaml:"day" mapstructure:"day"`
	DayDirs       bool   `json:"day_dirs" yaml:"day_dirs" mapstructure:"day_dirs"` // <source_dir>/YYYYMMDD
	SourceFormat  string `json:"source_format" yaml:"source_format" mapstructure:"source_format"`
	StartTimeAttr string `json:"start_time_attr" yaml:"start_time_attr" mapstructure:"start_time_attr"`

	// Acquisition
	SampleRate     int     `json:"sample_rate" yaml:"sample_rate" mapstructure:"sample_rate"`       // Hz
	FileDuration   float64 `json:"file_duration" yaml:"file_duration" mapstructure:"file_duration"` // seconds
	ChannelSpacing float64 `json:"channel_spacing" yaml:"channel_spacing" mapstructure:"channel_spacing"`
	CableStart     float64 `json:"cable_start" yaml:"cable_start" mapstructure:"cable_start"` // meters
	CableEnd       float64 `json:"cable_end" yaml:"cable_end" mapstructure:"cable_end"`       // meters, exclusive

	// Spectral analysis
	FreqResolution float64 `json:"freq_resolution" yaml:"freq_resolution" mapstructure:"freq_resolution"` // Hz
	TimeResolution float64 `json:"time_resolution" yaml:"time_resolution" mapstructure:"time_resolution"` // seconds between segments
	FreqMax        float64 `json:"freq_max" yaml:"freq_max" mapstructure:"freq_max"`                      // Hz, inclusive
	TaperAlpha     float64 `json:"taper_alpha" yaml:"taper_alpha" mapstructure:"taper_alpha"`
	FFTBackend     string  `json:"fft_backend" yaml:"fft_backend" mapstructure:"fft_backend"`
	LogPower       string  `json:"log_power" yaml:"log_power" mapstructure:"log_power"`
	PowerFloor     float64 `json:"power_floor" yaml:"power_floor" mapstructure:"power_floor"`
	StrictNumeric  bool    `json:"strict_numeric" yaml:"strict_numeric" mapstructure:"strict_numeric"`

	// Execution
	NFiles  int `json:"n_files" yaml:"n_files" mapstructure:"n_files"` // 0 = every discovered file
	Workers int `json:"workers" yaml:"workers" mapstructure:"workers"`
	Parts   int `json:"parts" yaml:"parts" mapstructure:"parts"`

	// Output
	OutputPath       string `json:"output_path" yaml:"output_path" mapstructure:"output_path"`
	OutputDType      string `json:"output_dtype" yaml:"output_dtype" mapstructure:"output_dtype"`
	Compressor       string `json:"compressor" yaml:"compressor" mapstructure:"compressor"`
	CompressionLevel int    `json:"compression_level" yaml:"compression_level" mapstructure:"compression_level"`

	LogLevel  string `json:"log_level" yaml:"log_level" mapstructure:"log_level"`
	LogFormat string `json:"log_format" yaml:"log_format" mapstructure:"log_format"` // text or json
}

// DefaultConfig returns the parameters of the reference processing run:
// 30 s files at 1 kHz, 1 Hz resolution, half-window hop, the first 9.2 km
// of cable at 4 m spacing and everything up to 100 Hz.
func DefaultConfig() *Config {
	return &Config{
		SourceDir:      ".",
		Year:           2020,
		Month:          7,
		Day:            19,
		DayDirs:        true,
		SourceFormat:   FormatZarr,
		StartTimeAttr:  "starttime",
		SampleRate:     1000,
		FileDuration:   30,
		ChannelSpacing: 4,
		CableStart:     0,
		CableEnd:       9200,
		FreqResolution: 1,
		TimeResolution: 0.5,
		FreqMax:        100,
		TaperAlpha:     0.25,
		FFTBackend:     spectral.BackendGoDSP,
		LogPower:       spectral.LogOfPower.String(),
		PowerFloor:     spectral.DefaultPowerFloor,
		NFiles:         0,
		Workers:        0,
		Parts:          13,
		OutputPath:     "data/cube.zarr",
		OutputDType:    "float64",
		Compressor:     "zstd",
		LogLevel:       "info",
		LogFormat:      "text",
	}
}

// Load reads a YAML file on top of DefaultConfig
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	if err := yaml.NewDecoder(f).Decode(cfg); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the configuration as YAML
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Date returns the acquisition day at midnight UTC
func (c *Config) Date() time.Time {
	return time.Date(c.Year, time.Month(c.Month), c.Day, 0, 0, 0, 0, time.UTC)
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// integral returns x rounded to the nearest int and whether x was
// integral up to floating point noise.
func integral(x float64) (int, bool) {
	r := math.Round(x)
	return int(r), math.Abs(x-r) <= 1e-9*math.Max(1, math.Abs(x))
}

// Validate checks the user facing fields. It does not look at the source
// directory; the discovery stage reports problems with it.
func (c *Config) Validate() error {
	if c.Month < 1 || c.Month > 12 {
		return invalid("month %d out of range", c.Month)
	}
	if c.Day < 1 || c.Day > 31 {
		return invalid("day %d out of range", c.Day)
	}
	if c.Date().Day() != c.Day {
		return invalid("%04d-%02d-%02d is not a calendar date", c.Year, c.Month, c.Day)
	}
	switch c.SourceFormat {
	case FormatZarr, FormatHDF5, FormatWAV:
	default:
		return invalid("unknown source format %q", c.SourceFormat)
	}
	if c.SampleRate <= 0 {
		return invalid("sample rate must be positive, got %d", c.SampleRate)
	}
	if c.FileDuration <= 0 {
		return invalid("file duration must be positive, got %g", c.FileDuration)
	}
	if c.ChannelSpacing <= 0 {
		return invalid("channel spacing must be positive, got %g", c.ChannelSpacing)
	}
	if c.CableStart < 0 || c.CableEnd <= c.CableStart {
		return invalid("cable span [%g, %g) is empty or negative", c.CableStart, c.CableEnd)
	}
	if c.FreqResolution <= 0 {
		return invalid("frequency resolution must be positive, got %g", c.FreqResolution)
	}
	if c.TimeResolution <= 0 {
		return invalid("time resolution must be positive, got %g", c.TimeResolution)
	}
	if c.FreqMax < 0 {
		return invalid("frequency cutoff must not be negative, got %g", c.FreqMax)
	}
	if c.TaperAlpha < 0 || c.TaperAlpha > 1 {
		return invalid("taper alpha must be within [0, 1], got %g", c.TaperAlpha)
	}
	switch c.FFTBackend {
	case spectral.BackendGoDSP, spectral.BackendGonum:
	default:
		return invalid("unknown fft backend %q", c.FFTBackend)
	}
	if _, err := spectral.ParseLogConvention(c.LogPower); err != nil {
		return invalid("%v", err)
	}
	if c.PowerFloor < 0 {
		return invalid("power floor must not be negative, got %g", c.PowerFloor)
	}
	if c.NFiles < 0 || c.Workers < 0 {
		return invalid("file and worker counts must not be negative")
	}
	if c.Parts < 1 {
		return invalid("parts must be at least 1, got %d", c.Parts)
	}
	if c.OutputPath == "" {
		return invalid("output path is required")
	}
	switch c.OutputDType {
	case "float64", "float32", "float16":
	default:
		return invalid("unknown output dtype %q", c.OutputDType)
	}
	if err := c.checkFloorFits(); err != nil {
		return err
	}
	switch c.Compressor {
	case "", "none", "zstd":
	default:
		return invalid("unknown compressor %q", c.Compressor)
	}
	switch c.LogFormat {
	case "", "text", "json":
	default:
		return invalid("unknown log format %q", c.LogFormat)
	}
	_, err := c.Derive(1)
	return err
}

// checkFloorFits rejects output types that cannot store the value written
// for floored bins. Under squared-log that value is about 1.2e5, beyond
// float16.
func (c *Config) checkFloorFits() error {
	dtype, err := zarr.ParseDType(c.OutputDType)
	if err != nil {
		return invalid("%v", err)
	}
	conv, _ := spectral.ParseLogConvention(c.LogPower)
	floor := spectral.NewPowerSpectrum(conv, c.PowerFloor).Floor()
	if !dtype.Holds(floor) {
		return invalid("%s floor value %g overflows %s output", conv, floor, c.OutputDType)
	}
	return nil
}
