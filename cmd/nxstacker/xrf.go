package main

import (
	"github.com/spf13/cobra"

	"github.com/example/nxstacker/internal/config"
	"github.com/example/nxstacker/internal/experiment"
)

func newXRFCommand(logLevel *string) *cobra.Command {
	opts := config.NewOptions()
	xrf := &config.XRFOptions{}

	cmd := &cobra.Command{
		Use:   "xrf",
		Short: "Stack windowed XRF elemental maps into NXtomo files",
		Long:  "Collect windowed X-ray fluorescence maps from a processing directory and write one NXtomo file per requested transition.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runXRF(cmd, opts, xrf, *logLevel)
		},
	}
	opts.AddFlags(cmd)
	xrf.BindFlags(cmd.Flags())
	_ = cmd.MarkFlagRequired("transition")
	return cmd
}

func runXRF(cmd *cobra.Command, opts *config.Options, xrf *config.XRFOptions, logLevel string) error {
	log, err := newRunLogger(opts, logLevel)
	if err != nil {
		return err
	}
	defer log.Sync()

	transitions, err := experiment.ParseTransitions(xrf.Transition)
	if err != nil {
		return err
	}
	fac, err := resolveFacility(opts)
	if err != nil {
		return err
	}

	expt := &experiment.XRF{
		Params:      pipelineParams(opts, fac, log),
		Transitions: transitions,
	}
	summary, err := expt.Run(cmd.Context())
	if err != nil {
		return err
	}
	printSummary(cmd, "xrf", summary, opts.DryRun)
	return nil
}
