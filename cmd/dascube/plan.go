package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/RyanBlaney/strain-cube/cube"
	"github.com/RyanBlaney/strain-cube/cube/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newPlanCmd(load func() (*config.Config, error)) *cobra.Command {
	var dump bool
	var show int

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show the derived parameters and segment layout without computing anything",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if dump {
				return yaml.NewEncoder(out).Encode(cfg)
			}

			reader, err := cube.NewReader(cfg)
			if err != nil {
				return err
			}
			pl := cube.NewPipeline(cfg, reader, nil)
			entries, err := pl.Discover()
			if err != nil {
				return err
			}
			plan, err := pl.Plan(entries)
			if err != nil {
				return err
			}
			printPlan(out, pl.SourceDir(), plan, show)
			return nil
		},
	}
	cmd.Flags().BoolVar(&dump, "dump-config", false, "print the effective configuration as YAML and exit")
	cmd.Flags().IntVar(&show, "show", 5, "number of files to list")
	return cmd
}

func printPlan(w io.Writer, dir string, plan *cube.Plan, show int) {
	p := plan.Params
	fmt.Fprintf(w, "source    %s (%d files)\n", dir, len(plan.Files))
	fmt.Fprintf(w, "samples   %d per file at %d Hz\n", p.SamplesPerFile, p.SampleRate)
	fmt.Fprintf(w, "segments  %d samples, hop %d (%s)\n", p.SegLen, p.Hop, p.HopDuration())
	fmt.Fprintf(w, "channels  [%d, %d) = %d\n", p.IndA, p.IndE, p.Channels())
	fmt.Fprintf(w, "bins      %d\n", p.IndF)
	fmt.Fprintf(w, "cube      %d × %d × %d, chunk %d\n\n", plan.Total, p.Channels(), p.IndF, min(p.SegmentsPerFileCeil(), plan.Total))

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "INDEX\tFILE\tFIRST\tSEGMENTS")
	for i, f := range plan.Files {
		if i >= show && i < len(plan.Files)-1 {
			if i == show {
				fmt.Fprintln(tw, "...\t\t\t")
			}
			continue
		}
		fmt.Fprintf(tw, "%d\t%s\t%d\t%d\n", f.Entry.Index, f.Entry.Name(), f.First, f.Segments)
	}
	tw.Flush()
}
