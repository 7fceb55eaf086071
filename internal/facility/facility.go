// Package facility holds the data-driven descriptors for the supported
// beamlines: naming conventions, metadata file locations and the HDF5
// paths used to interpret their files. Descriptors are flat capability
// records loaded once per invocation from embedded YAML assets.
package facility

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed specs/*.yaml
var specsFS embed.FS

// Source identity shared by every supported beamline.
const (
	SourceType  = "Synchrotron X-ray Source"
	SourceName  = "Diamond Light Source"
	SourceShort = "DLS"
	SourceProbe = "x-ray"
)

// Facility describes one beamline's data layout.
type Facility struct {
	Name    string   `yaml:"name"`
	Aliases []string `yaml:"aliases"`

	// PtychoFileTypes lists the reconstruction software families this
	// beamline produces, in preference order.
	PtychoFileTypes []string `yaml:"ptycho_file_types"`

	// MetadataFiles are path templates for the per-scan raw metadata
	// file, with %(raw_dir) and %(scan) placeholders, tried in order.
	MetadataFiles []string `yaml:"metadata_files"`

	// RotationAnglePaths are dataset paths tried in order inside the
	// metadata file when retrieving the rotation angle.
	RotationAnglePaths []string `yaml:"rotation_angle_paths"`

	// DetectorDistance is a fixed sample-detector distance in metres;
	// when zero the distance is read from DetectorDistancePaths and
	// multiplied by DetectorDistanceScale.
	DetectorDistance      float64  `yaml:"detector_distance"`
	DetectorDistancePaths []string `yaml:"detector_distance_paths"`
	DetectorDistanceScale float64  `yaml:"detector_distance_scale"`
}

// MetadataFileCandidates expands the metadata file templates for one scan.
func (f *Facility) MetadataFileCandidates(rawDir string, scan int64) []string {
	out := make([]string, 0, len(f.MetadataFiles))
	for _, tmpl := range f.MetadataFiles {
		p := strings.ReplaceAll(tmpl, "%(raw_dir)", rawDir)
		p = strings.ReplaceAll(p, "%(scan)", fmt.Sprintf("%d", scan))
		out = append(out, filepath.Clean(p))
	}
	return out
}

// UndeterminedError reports that no facility, or more than one, matched
// the supplied paths.
type UndeterminedError struct {
	Dirs    []string
	Matched []string
}

func (e *UndeterminedError) Error() string {
	if len(e.Matched) > 1 {
		return fmt.Sprintf("ambiguous facility: paths match %s; pass one explicitly",
			strings.Join(e.Matched, ", "))
	}
	return fmt.Sprintf("cannot determine the facility from %s; pass one explicitly",
		strings.Join(e.Dirs, ", "))
}

// Table is the immutable set of known facilities.
type Table struct {
	byName map[string]*Facility
	names  []string
}

// Load parses the embedded facility descriptors.
func Load() (*Table, error) {
	entries, err := specsFS.ReadDir("specs")
	if err != nil {
		return nil, fmt.Errorf("read facility specs: %w", err)
	}

	t := &Table{byName: make(map[string]*Facility)}
	for _, entry := range entries {
		raw, err := specsFS.ReadFile("specs/" + entry.Name())
		if err != nil {
			return nil, fmt.Errorf("read facility spec %s: %w", entry.Name(), err)
		}
		var fac Facility
		if err := yaml.Unmarshal(raw, &fac); err != nil {
			return nil, fmt.Errorf("parse facility spec %s: %w", entry.Name(), err)
		}
		if fac.Name == "" {
			return nil, fmt.Errorf("facility spec %s has no name", entry.Name())
		}
		t.byName[fac.Name] = &fac
		t.names = append(t.names, fac.Name)
		for _, alias := range fac.Aliases {
			t.byName[alias] = &fac
		}
	}
	sort.Strings(t.names)
	return t, nil
}

// Names returns the canonical facility names, sorted.
func (t *Table) Names() []string { return t.names }

// Get returns the facility for a name or alias.
func (t *Table) Get(name string) (*Facility, error) {
	fac, ok := t.byName[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("the facility %q is not supported (known: %s)",
			name, strings.Join(t.names, ", "))
	}
	return fac, nil
}

// beamlinePattern matches a beamline token such as i14, i08-1 or b24
// inside a directory path.
var beamlinePattern = regexp.MustCompile(`[ibempkx]\d\d(?:-\d)?`)

// Detect infers the facility from the supplied paths. An explicit
// override wins verbatim. Otherwise the BEAMLINE environment variable
// is honoured, then each path (plus the working directory) is matched
// against the beamline naming convention; all matching paths must agree
// on a single known facility. Detection is advisory, downstream schema
// validation is the authoritative check.
func (t *Table) Detect(override string, dirs ...string) (*Facility, error) {
	if override != "" {
		return t.Get(override)
	}

	if env := os.Getenv("BEAMLINE"); env != "" {
		return t.Get(env)
	}

	if cwd, err := os.Getwd(); err == nil {
		dirs = append(dirs, cwd)
	}

	matched := make(map[string]bool)
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		for _, token := range beamlinePattern.FindAllString(dir, -1) {
			if fac, ok := t.byName[token]; ok {
				matched[fac.Name] = true
			}
		}
	}

	names := make([]string, 0, len(matched))
	for name := range matched {
		names = append(names, name)
	}
	sort.Strings(names)

	if len(names) == 1 {
		return t.byName[names[0]], nil
	}
	return nil, &UndeterminedError{Dirs: dirs, Matched: names}
}
