// main.go bootstraps nxstacker: it builds the root Cobra command and
// executes with a signal-aware context.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/example/nxstacker/internal/buildinfo"
	"github.com/example/nxstacker/internal/config"
	"github.com/example/nxstacker/internal/experiment"
	"github.com/example/nxstacker/internal/facility"
	"github.com/example/nxstacker/internal/logging"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rootCmd := newRootCommand()
	err := rootCmd.ExecuteContext(ctx)
	handleError(err)
	if err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	logLevel := "info"
	configPath := ""
	cmd := &cobra.Command{
		Use:           "nxstacker",
		Short:         "Stack tomography projections into NXtomo files",
		Long:          "nxstacker collects processed projections from ptychography or XRF experiments and assembles them into NXtomo files ready for reconstruction.",
		Version:       buildinfo.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", logLevel, "Log level for nxstacker output (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file with flag defaults (default: NXSTACKER_CONFIG, then the nxstacker config dirs)")

	ptychoCmd := newPtychoCommand(&logLevel)
	xrfCmd := newXRFCommand(&logLevel)
	cmd.AddCommand(ptychoCmd, xrfCmd)
	cmd.Example = `  # Stack the phases of a range of ptychography scans
  nxstacker ptycho --proj-dir /dls/i14/data/2024/cm12345-1/processing --from-scan 279360-279560 --nxtomo-dir .

  # Stack two elemental maps from windowed XRF scans
  nxstacker xrf --from-scan 279360-279560 --transition Fe-Ka,Ca-Ka`

	bindViper(&configPath, ptychoCmd, xrfCmd)
	return cmd
}

// bindViper lets NXSTACKER_* environment variables and an optional
// config file fill any flag the user did not set explicitly.
func bindViper(configPath *string, commands ...*cobra.Command) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.SetEnvPrefix("NXSTACKER")
	v.AutomaticEnv()

	cobra.OnInitialize(func() {
		configFile := *configPath
		if configFile == "" {
			configFile = os.Getenv("NXSTACKER_CONFIG")
		}
		configureConfigFile(v, configFile)
		for _, cmd := range commands {
			if err := v.BindPFlags(cmd.Flags()); err != nil {
				cobra.CheckErr(err)
			}
		}
		if err := readConfigFile(v, configFile != ""); err != nil {
			cobra.CheckErr(err)
		}
		for _, cmd := range commands {
			cmd.Flags().VisitAll(func(f *pflag.Flag) {
				if f.Changed {
					return
				}
				if !v.IsSet(f.Name) {
					return
				}
				val := fmt.Sprintf("%v", v.Get(f.Name))
				if val != "" {
					_ = f.Value.Set(val)
				}
			})
		}
	})
}

func configureConfigFile(v *viper.Viper, explicitPath string) {
	if explicitPath != "" {
		v.SetConfigFile(explicitPath)
		return
	}
	v.SetConfigName("config")
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		v.AddConfigPath(filepath.Join(xdg, "nxstacker"))
	}
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", "nxstacker"))
	}
	v.AddConfigPath(".")
}

func readConfigFile(v *viper.Viper, strict bool) error {
	if err := v.ReadInConfig(); err != nil {
		var cfgErr viper.ConfigFileNotFoundError
		if errors.As(err, &cfgErr) && !strict {
			return nil
		}
		return err
	}
	return nil
}

func handleError(err error) {
	if err == nil || errors.Is(err, pflag.ErrHelp) {
		return
	}
	message := err.Error()
	var undetermined *facility.UndeterminedError
	if errors.As(err, &undetermined) {
		message = fmt.Sprintf("%s\nHint: pass --facility or set the BEAMLINE environment variable.", err)
	}
	fmt.Fprintf(os.Stderr, "Error: %s\n", message)
}

// newRunLogger builds the run logger and validates the shared options.
func newRunLogger(opts *config.Options, level string) (*zap.Logger, error) {
	log, err := logging.New(level, opts.Quiet)
	if err != nil {
		return nil, err
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return log, nil
}

func resolveFacility(opts *config.Options) (*facility.Facility, error) {
	table, err := facility.Load()
	if err != nil {
		return nil, err
	}
	dirs := []string{opts.ProjDir}
	if opts.RawDir != "" {
		dirs = append(dirs, opts.RawDir)
	}
	return table.Detect(opts.Facility, dirs...)
}

func pipelineParams(opts *config.Options, fac *facility.Facility, log *zap.Logger) experiment.Params {
	return experiment.Params{
		Facility:    fac,
		ProjDir:     opts.ProjDir,
		FilePattern: opts.ProjFile,
		OutputDir:   opts.NXtomoDir,
		RawDir:      opts.RawDir,
		Scans:       opts.Scans,
		Projs:       opts.Projs,
		Angles:      opts.Angles,
		SortByAngle: opts.SortByAngle,
		PadToMax:    opts.PadToMax,
		Compress:    opts.Compress,
		SkipCheck:   opts.SkipFileCheck,
		DryRun:      opts.DryRun,
		Log:         log,
	}
}
