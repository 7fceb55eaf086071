package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/example/nxstacker/internal/config"
	"github.com/example/nxstacker/internal/experiment"
)

var (
	bold   = color.New(color.Bold).SprintFunc()
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	faint  = color.New(color.Faint).SprintFunc()
)

func newPtychoCommand(logLevel *string) *cobra.Command {
	opts := config.NewOptions()
	pty := &config.PtychoOptions{}

	cmd := &cobra.Command{
		Use:   "ptycho",
		Short: "Stack ptychography reconstructions into NXtomo files",
		Long:  "Collect ptychography reconstructions (PtyPy or PtyREX) from a processing directory, order them into a tomography stack and write one NXtomo file per saved quantity.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPtycho(cmd, opts, pty, *logLevel)
		},
	}
	opts.AddFlags(cmd)
	pty.BindFlags(cmd.Flags())
	return cmd
}

func runPtycho(cmd *cobra.Command, opts *config.Options, pty *config.PtychoOptions, logLevel string) error {
	log, err := newRunLogger(opts, logLevel)
	if err != nil {
		return err
	}
	defer log.Sync()

	fac, err := resolveFacility(opts)
	if err != nil {
		return err
	}

	expt := &experiment.Ptycho{
		Params:      pipelineParams(opts, fac, log),
		SaveComplex: pty.SaveComplex,
		SaveModulus: pty.SaveModulus,
		SavePhase:   pty.SavePhase,
		RemoveRamp:  pty.RemoveRamp,
		MedianNorm:  pty.MedianNorm,
		UnwrapPhase: pty.UnwrapPhase,
		Rescale:     pty.Rescale,
	}
	summary, err := expt.Run(cmd.Context())
	if err != nil {
		return err
	}
	printSummary(cmd, "ptychography", summary, opts.DryRun)
	return nil
}

func printSummary(cmd *cobra.Command, name string, summary *experiment.Summary, dryRun bool) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s: %s projections located, %s stacked, %s skipped\n",
		bold(name), bold(summary.Located), green(summary.Stacked), yellow(summary.Skipped))
	verb := "wrote"
	if dryRun {
		verb = faint("would write")
	}
	for _, path := range summary.Written {
		fmt.Fprintf(out, "  %s %s\n", verb, path)
	}
}
