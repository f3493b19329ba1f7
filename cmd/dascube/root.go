package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/RyanBlaney/strain-cube/cube/config"
	"github.com/RyanBlaney/strain-cube/logging"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const envPrefix = "DASCUBE"

// flag name -> config key
var flagKeys = map[string]string{
	"source-dir":    "source_dir",
	"source-format": "source_format",
	"day-dirs":      "day_dirs",
	"output":        "output_path",
	"workers":       "workers",
	"parts":         "parts",
	"n-files":       "n_files",
	"sample-rate":   "sample_rate",
	"file-duration": "file_duration",
	"freq-res":      "freq_resolution",
	"time-res":      "time_resolution",
	"freq-max":      "freq_max",
	"cable-start":   "cable_start",
	"cable-end":     "cable_end",
	"taper-alpha":   "taper_alpha",
	"fft-backend":   "fft_backend",
	"log-power":     "log_power",
	"strict":        "strict_numeric",
	"dtype":         "output_dtype",
	"compressor":    "compressor",
	"log-level":     "log_level",
	"log-format":    "log_format",
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	var cfgFile, date string

	root := &cobra.Command{
		Use:           "dascube",
		Short:         "Build spectrogram cubes from DAS strain-rate files",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&cfgFile, "config", "c", "", "YAML configuration file")
	pf.StringVar(&date, "date", "", "acquisition day, YYYY-MM-DD")
	pf.String("source-dir", "", "root directory of the source files")
	pf.String("source-format", "", "source file format: zarr, hdf5 or wav")
	pf.Bool("day-dirs", true, "source files live in <source-dir>/YYYYMMDD")
	pf.StringP("output", "o", "", "output cube path")
	pf.IntP("workers", "w", 0, "worker goroutines, 0 for one per CPU")
	pf.Int("parts", 0, "number of sequential file batches")
	pf.IntP("n-files", "n", 0, "process only the first n files, 0 for all")
	pf.Int("sample-rate", 0, "sampling rate in Hz")
	pf.Float64("file-duration", 0, "source file duration in seconds")
	pf.Float64("freq-res", 0, "frequency resolution in Hz")
	pf.Float64("time-res", 0, "time between segments in seconds")
	pf.Float64("freq-max", 0, "highest frequency kept, Hz")
	pf.Float64("cable-start", 0, "start of the cable span in meters")
	pf.Float64("cable-end", 0, "end of the cable span in meters")
	pf.Float64("taper-alpha", 0, "fraction of the segment inside the Tukey taper")
	pf.String("fft-backend", "", "go-dsp or gonum")
	pf.String("log-power", "", "log-power or squared-log")
	pf.Bool("strict", false, "fail on identically zero segments instead of flooring")
	pf.String("dtype", "", "cube dtype: float64, float32 or float16")
	pf.String("compressor", "", "chunk compressor: zstd or none")
	pf.String("log-level", "", "debug, info, warn or error")
	pf.String("log-format", "", "text or json")

	for name, key := range flagKeys {
		if err := v.BindPFlag(key, pf.Lookup(name)); err != nil {
			panic(err)
		}
	}

	load := func() (*config.Config, error) {
		cfg, err := loadConfig(v, cfgFile, date)
		if err != nil {
			return nil, err
		}
		setupLogging(cfg)
		return cfg, nil
	}

	root.AddCommand(newRunCmd(load), newPlanCmd(load), newVersionCmd())
	return root
}

// loadConfig layers defaults, the config file, DASCUBE_* variables and
// flags, in increasing precedence
func loadConfig(v *viper.Viper, cfgFile, date string) (*config.Config, error) {
	cfg := config.DefaultConfig()

	defaults, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var keys map[string]any
	if err := yaml.Unmarshal(defaults, &keys); err != nil {
		return nil, err
	}
	for k, val := range keys {
		v.SetDefault(k, val)
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", cfgFile, err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if date != "" {
		d, err := time.Parse("2006-01-02", date)
		if err != nil {
			return nil, fmt.Errorf("%w: date %q: %v", config.ErrInvalid, date, err)
		}
		cfg.Year, cfg.Month, cfg.Day = d.Year(), int(d.Month()), d.Day()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setupLogging(cfg *config.Config) {
	l := logrus.New()
	if cfg.LogFormat == "json" {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	logger := logging.NewLogrusLogger(l)
	level, ok := logging.ParseLevel(cfg.LogLevel)
	logger.SetLevel(level)
	logging.SetGlobalLogger(logger)
	if !ok {
		logger.Warn("unknown log level, using info", logging.Fields{"level": cfg.LogLevel})
	}
}
