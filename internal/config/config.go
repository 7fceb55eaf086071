// Package config defines the flag plumbing and runtime options shared
// by the nxstacker commands, translating Cobra/Viper flag values into
// a strongly typed struct consumed by the stacking pipeline.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/example/nxstacker/internal/identifier"
)

// Options holds all CLI configuration shared by every experiment type.
type Options struct {
	ProjDir   string
	ProjFile  string
	NXtomoDir string
	RawDir    string
	Facility  string

	FromScan    string
	ScanList    string
	ExcludeScan string

	FromProj    string
	ProjList    string
	ExcludeProj string

	FromAngle    string
	AngleList    string
	ExcludeAngle string

	SortByAngle   bool
	PadToMax      bool
	Compress      bool
	SkipFileCheck bool
	DryRun        bool
	Quiet         bool

	// resolved by Validate
	Scans  *identifier.Set
	Projs  *identifier.Set
	Angles *identifier.Set
}

// PtychoOptions holds the ptychography-only switches.
type PtychoOptions struct {
	SaveComplex bool
	SaveModulus bool
	SavePhase   bool
	RemoveRamp  bool
	MedianNorm  bool
	UnwrapPhase bool
	Rescale     bool
}

// XRFOptions holds the fluorescence-only switches.
type XRFOptions struct {
	Transition string
}

// NewOptions returns Options with defaults applied.
func NewOptions() *Options {
	return &Options{
		ProjDir:   ".",
		NXtomoDir: ".",
		PadToMax:  true,
	}
}

// AddFlags binds the shared configuration flags to the provided
// command.
func (o *Options) AddFlags(cmd *cobra.Command) {
	o.BindFlags(cmd.Flags())
}

// BindFlags attaches the shared flags to an arbitrary FlagSet.
func (o *Options) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.ProjDir, "proj-dir", ".", "Directory to search for projection files")
	fs.StringVar(&o.ProjFile, "proj-file", "", "Projection file path with %(scan) and %(proj) placeholders, bypassing the directory search")
	fs.StringVar(&o.NXtomoDir, "nxtomo-dir", ".", "Directory where the NXtomo files are written")
	fs.StringVar(&o.RawDir, "raw-dir", "", "Directory of the raw data, overriding the one deduced from the projections")
	fs.StringVar(&o.Facility, "facility", "", "Facility/beamline name; deduced from the directories when omitted")

	fs.StringVar(&o.FromScan, "from-scan", "", "Scan identifiers to include, as START[-END[:STEP]] clauses separated by commas")
	fs.StringVar(&o.ScanList, "scan-list", "", "File with one scan identifier per line, merged with --from-scan")
	fs.StringVar(&o.ExcludeScan, "exclude-scan", "", "Scan identifiers to exclude from the included set")

	fs.StringVar(&o.FromProj, "from-proj", "", "Projection numbers to include, same format as --from-scan")
	fs.StringVar(&o.ProjList, "proj-list", "", "File with one projection number per line, merged with --from-proj")
	fs.StringVar(&o.ExcludeProj, "exclude-proj", "", "Projection numbers to exclude from the included set")

	fs.StringVar(&o.FromAngle, "from-angle", "", "Rotation angles to include, same format as --from-scan; beware of floating-point comparison")
	fs.StringVar(&o.AngleList, "angle-list", "", "File with one rotation angle per line, merged with --from-angle")
	fs.StringVar(&o.ExcludeAngle, "exclude-angle", "", "Rotation angles to exclude from the included set")

	fs.BoolVar(&o.SortByAngle, "sort-by-angle", false, "Order the stack by rotation angle instead of identifier")
	fs.BoolVar(&o.PadToMax, "pad-to-max", true, "Zero-pad smaller projections to the largest size in the stack")
	fs.BoolVar(&o.Compress, "compress", false, "Apply compression to the projection stack")
	fs.BoolVar(&o.SkipFileCheck, "skip-check", false, "Assume every candidate file is of the facility's preferred type instead of inspecting it")
	fs.BoolVar(&o.DryRun, "dry-run", false, "Run the pipeline without writing any NXtomo file")
	fs.BoolVarP(&o.Quiet, "quiet", "q", false, "Only log errors")
}

// BindFlags attaches the ptychography flags to a FlagSet.
func (o *PtychoOptions) BindFlags(fs *pflag.FlagSet) {
	fs.BoolVar(&o.SaveComplex, "save-complex", false, "Save the stack of complex objects")
	fs.BoolVar(&o.SaveModulus, "save-modulus", false, "Save the stack of object moduli")
	fs.BoolVar(&o.SavePhase, "save-phase", true, "Save the stack of object phases")
	fs.BoolVar(&o.RemoveRamp, "remove-ramp", false, "Remove the phase ramp (not implemented, accepted for compatibility)")
	fs.BoolVar(&o.MedianNorm, "median-norm", false, "Normalise the phase by shifting its median to zero")
	fs.BoolVar(&o.UnwrapPhase, "unwrap-phase", false, "Unwrap the phase after stacking transforms")
	fs.BoolVar(&o.Rescale, "rescale", false, "Rescale the projections (not implemented, accepted for compatibility)")
}

// BindFlags attaches the fluorescence flags to a FlagSet.
func (o *XRFOptions) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.Transition, "transition", "", "Comma-separated transitions to stack, each as <Element>-<Edge> (e.g. Fe-Ka)")
}

// Validate expands paths, resolves the identifier ranges and rejects
// inconsistent combinations before the pipeline starts.
func (o *Options) Validate() error {
	var err error
	if o.ProjDir, err = expandDir(o.ProjDir, true); err != nil {
		return fmt.Errorf("--proj-dir: %w", err)
	}
	if o.NXtomoDir, err = expandDir(o.NXtomoDir, false); err != nil {
		return fmt.Errorf("--nxtomo-dir: %w", err)
	}
	if o.RawDir != "" {
		if o.RawDir, err = expandDir(o.RawDir, true); err != nil {
			return fmt.Errorf("--raw-dir: %w", err)
		}
	}
	for _, p := range []*string{&o.ScanList, &o.ProjList, &o.AngleList} {
		if *p == "" {
			continue
		}
		if *p, err = expandFile(*p); err != nil {
			return err
		}
	}

	if o.Scans, err = identifier.Resolve(identifier.Scan, o.FromScan, o.ScanList, o.ExcludeScan); err != nil {
		return err
	}
	if o.Projs, err = identifier.Resolve(identifier.Proj, o.FromProj, o.ProjList, o.ExcludeProj); err != nil {
		return err
	}
	if o.Angles, err = identifier.Resolve(identifier.Angle, o.FromAngle, o.AngleList, o.ExcludeAngle); err != nil {
		return err
	}
	return nil
}

func expandDir(path string, mustExist bool) (string, error) {
	p, err := homedir.Expand(path)
	if err != nil {
		return "", err
	}
	if p, err = filepath.Abs(p); err != nil {
		return "", err
	}
	if mustExist {
		fi, err := os.Stat(p)
		if err != nil {
			return "", err
		}
		if !fi.IsDir() {
			return "", fmt.Errorf("%s is not a directory", p)
		}
	}
	return p, nil
}

func expandFile(path string) (string, error) {
	p, err := homedir.Expand(path)
	if err != nil {
		return "", err
	}
	if p, err = filepath.Abs(p); err != nil {
		return "", err
	}
	fi, err := os.Stat(p)
	if err != nil {
		return "", err
	}
	if fi.IsDir() {
		return "", fmt.Errorf("%s is a directory, expected a file", p)
	}
	return p, nil
}
