package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/RyanBlaney/strain-cube/cube"
	"github.com/RyanBlaney/strain-cube/cube/config"
	"github.com/RyanBlaney/strain-cube/logging"
	"github.com/spf13/cobra"
)

func newRunCmd(load func() (*config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Compute the spectrogram cube",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			reader, err := cube.NewReader(cfg)
			if err != nil {
				return err
			}
			summary, err := cube.NewPipeline(cfg, reader, logging.GetGlobalLogger()).Run(ctx)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%d files, %d segments × %d channels × %d bins written to %s\n",
				summary.Files, summary.Segments, summary.Channels, summary.Bins, summary.OutputPath)
			fmt.Fprintf(cmd.OutOrStdout(), "workers %d, parts %d, %s total, %s per file\n",
				summary.Workers, summary.Parts, summary.Elapsed.Round(time.Millisecond), summary.PerFile.Round(time.Millisecond))
			return nil
		},
	}
}
