// Package projection locates reconstruction files on disk and
// classifies them by the software that produced them.
package projection

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Software identifies the program that produced a reconstruction file.
type Software string

const (
	SoftwarePtyPy     Software = "PtyPy"
	SoftwarePtyREX    Software = "PtyREX"
	SoftwareXRFWindow Software = "window"
)

// Dataset locations inside PtyPy reconstruction files.
const (
	PtyPyObjectRoot = "/content/obj"
	PtyPyProbeRoot  = "/content/probe"
	PtyPyScanRoot   = "/content/pars/scans"
)

// Dataset locations inside PtyREX reconstruction files.
const (
	PtyREXObjectModulus = "/entry_1/process_1/output_1/object_modulus"
	PtyREXObjectPhase   = "/entry_1/process_1/output_1/object_phase"
	PtyREXProbeModulus  = "/entry_1/process_1/output_1/probe_modulus"
	PtyREXProbePhase    = "/entry_1/process_1/output_1/probe_phase"
	PtyREXProjID        = "/entry_1/experiment_1/data/data_ID"
	PtyREXSaveDir       = "/entry_1/process_1/common_1/save_dir"
	PtyREXPixelSize     = "/entry_1/process_1/common_1/dx"
)

// Dataset locations inside XRF window files. Elemental maps live under
// /processed/<transition>/data.
const (
	XRFMCAData    = "/processed/mca/data"
	XRFResultData = "/processed/result/data"
	XRFProcessed  = "/processed"
)

// Schema describes how to recognise files from one software family: a
// set of container paths every genuine file carries, and the file
// extensions worth probing at all.
type Schema struct {
	Software       Software
	EssentialPaths []string
	Extensions     []string
}

var (
	PtyPySchema = &Schema{
		Software:       SoftwarePtyPy,
		EssentialPaths: []string{PtyPyObjectRoot, PtyPyProbeRoot, PtyPyScanRoot},
		Extensions:     []string{".ptyr"},
	}

	PtyREXSchema = &Schema{
		Software: SoftwarePtyREX,
		EssentialPaths: []string{
			PtyREXObjectModulus, PtyREXObjectPhase,
			PtyREXProbeModulus, PtyREXProbePhase,
			PtyREXProjID, PtyREXSaveDir, PtyREXPixelSize,
		},
		Extensions: []string{".hdf", ".hdf5", ".h5"},
	}

	XRFWindowSchema = &Schema{
		Software:       SoftwareXRFWindow,
		EssentialPaths: []string{XRFMCAData, XRFResultData, XRFProcessed},
		Extensions:     []string{".nxs"},
	}
)

// SchemaFor maps a software name, as it appears in a facility
// descriptor, to its schema.
func SchemaFor(name string) (*Schema, error) {
	switch Software(name) {
	case SoftwarePtyPy:
		return PtyPySchema, nil
	case SoftwarePtyREX:
		return PtyREXSchema, nil
	case SoftwareXRFWindow:
		return XRFWindowSchema, nil
	}
	return nil, fmt.Errorf("unsupported software %q", name)
}

// PtyPy records the raw data file it was reconstructed from; the scan
// number is recovered from that file's name.
var ptypyRawFileRegexes = []*regexp.Regexp{
	regexp.MustCompile(`-(\d+)\.nxs$`),
	regexp.MustCompile(`-(\d+)_processed\.nxs$`),
	regexp.MustCompile(`(\d+)\.ptyd$`),
}

func scanFromRawFile(rawFile string) (int64, error) {
	for _, re := range ptypyRawFileRegexes {
		if m := re.FindStringSubmatch(rawFile); m != nil {
			return strconv.ParseInt(m[1], 10, 64)
		}
	}
	return 0, fmt.Errorf("cannot deduce scan number from raw file %s", rawFile)
}

// PtyREX output names follow <PREFIX>_<SCAN>_<PROJ>_<TIMESTAMP>.hdf.
var ptyrexNameRegex = regexp.MustCompile(`\w*_(\d+)_\d+_.*\.(?:hdf|hdf5|h5)$`)

func scanFromPtyREXName(name string) (int64, error) {
	if m := ptyrexNameRegex.FindStringSubmatch(name); m != nil {
		return strconv.ParseInt(m[1], 10, 64)
	}
	return 0, fmt.Errorf("cannot deduce scan number from file name %s", name)
}

var xrfNameRegexes = []*regexp.Regexp{
	regexp.MustCompile(`-(\d+)_xrf\.nxs$`),
	regexp.MustCompile(`-(\d+)_processed\.nxs$`),
	regexp.MustCompile(`-(\d+)\.nxs$`),
}

func scanFromXRFName(path string) (int64, error) {
	for _, re := range xrfNameRegexes {
		if m := re.FindStringSubmatch(path); m != nil {
			return strconv.ParseInt(m[1], 10, 64)
		}
	}
	return 0, fmt.Errorf("cannot deduce scan number from file name %s", path)
}

func parseProjID(raw string) (int64, error) {
	s := strings.TrimSpace(strings.TrimRight(raw, "\x00"))
	// data_ID sometimes carries a prefix before the number
	if i := strings.LastIndexByte(s, '_'); i >= 0 {
		s = s[i+1:]
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("cannot parse projection identifier %q", raw)
	}
	return n, nil
}
