package projection

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/example/nxstacker/internal/hdf"
	"github.com/example/nxstacker/internal/identifier"
)

const maxWorkers = 32

// DefaultWorkers returns the size of the per-file worker pool.
func DefaultWorkers() int {
	n := runtime.GOMAXPROCS(0)
	if n > maxWorkers {
		n = maxWorkers
	}
	if n < 1 {
		n = 1
	}
	return n
}

// Record is one located reconstruction file, carrying the identifiers
// and dataset locations needed downstream. The rotation angle is not
// known at this stage; it comes later from the raw metadata.
type Record struct {
	Path     string
	Software Software
	Scan     int64
	Proj     int64
	Angle    float64

	RawDir string

	// PtyPy keeps object and probe under a storage group named
	// after the scan; the resolved locations are recorded here so
	// readers need not repeat the discovery.
	ObjectPath    string
	ProbePath     string
	PixelSizePath string
	RawFile       string
}

// NotFoundError reports that no valid projection was found.
type NotFoundError struct {
	Dir string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no valid projection found in %s", e.Dir)
}

// SchemaError reports a named file missing the container paths its
// software family requires.
type SchemaError struct {
	Path    string
	Missing []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("%s is not a supported reconstruction file, expected paths: %s",
		e.Path, strings.Join(e.Missing, ", "))
}

// MixedSoftwareError reports projections from more than one software
// family in a single run.
type MixedSoftwareError struct {
	Found []string
}

func (e *MixedSoftwareError) Error() string {
	return fmt.Sprintf("projections from a single software are supported, found: %s",
		strings.Join(e.Found, ", "))
}

// container is the slice of hdf.File the locator needs; tests swap in
// in-memory fakes.
type container interface {
	HasPaths(paths []string) bool
	ReadString(path string) (string, error)
	ChildGroups(path string) ([]string, error)
	Close() error
}

func openContainer(path string) (container, error) { return hdf.Open(path) }

// Locator discovers reconstruction files under a directory, or through
// a file pattern with %(scan) and %(proj) placeholders, and filters
// them by the included scan and projection identifiers.
type Locator struct {
	Dir         string
	FilePattern string
	Schemas     []*Schema
	Scans       *identifier.Set
	Projs       *identifier.Set
	RawDir      string
	SkipCheck   bool
	Workers     int
	Log         *zap.Logger

	isContainer func(string) bool
	open        func(string) (container, error)
}

// Locate walks or expands the candidate files, classifies them
// concurrently and returns the included records in a deterministic
// preliminary order.
func (l *Locator) Locate(ctx context.Context) ([]*Record, error) {
	if l.isContainer == nil {
		l.isContainer = hdf.IsContainer
	}
	if l.open == nil {
		l.open = openContainer
	}
	if l.Log == nil {
		l.Log = zap.NewNop()
	}
	workers := l.Workers
	if workers <= 0 {
		workers = DefaultWorkers()
	}

	var (
		files    []string
		explicit bool
		err      error
	)
	if l.FilePattern != "" {
		explicit = true
		files, err = l.expandPattern()
	} else {
		files, err = l.walk()
	}
	if err != nil {
		return nil, err
	}

	var (
		mu   sync.Mutex
		recs []*Record
	)
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(workers)
	for _, fp := range files {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			rec, err := l.classify(fp, explicit)
			if err != nil {
				return err
			}
			if rec == nil {
				return nil
			}
			mu.Lock()
			recs = append(recs, rec)
			mu.Unlock()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	if len(recs) == 0 {
		return nil, &NotFoundError{Dir: l.Dir}
	}
	if err := checkSingleSoftware(recs); err != nil {
		return nil, err
	}
	sortRecords(recs)

	l.Log.Info("located projections",
		zap.Int("count", len(recs)),
		zap.String("software", string(recs[0].Software)))
	return recs, nil
}

// expandPattern substitutes the %(scan) and %(proj) placeholders with
// every included identifier and keeps the paths that exist. A
// placeholder demands the corresponding axis be filtered, otherwise
// there is nothing to substitute.
func (l *Locator) expandPattern() ([]string, error) {
	pat := l.FilePattern
	if !filepath.IsAbs(pat) {
		pat = filepath.Join(l.Dir, pat)
	}

	scans := []int64{0}
	if strings.Contains(pat, "%(scan)") {
		if l.Scans.Unfiltered() {
			return nil, fmt.Errorf("file pattern uses %%(scan) but no scan was included")
		}
		scans = l.Scans.Ints()
	}
	projs := []int64{0}
	if strings.Contains(pat, "%(proj)") {
		if l.Projs.Unfiltered() {
			return nil, fmt.Errorf("file pattern uses %%(proj) but no projection was included")
		}
		projs = l.Projs.Ints()
	}

	var out []string
	for _, s := range scans {
		withScan := strings.ReplaceAll(pat, "%(scan)", strconv.FormatInt(s, 10))
		for _, p := range projs {
			fp := strings.ReplaceAll(withScan, "%(proj)", strconv.FormatInt(p, 10))
			if fi, err := os.Stat(fp); err == nil && fi.Mode().IsRegular() {
				out = append(out, fp)
			} else {
				l.Log.Debug("pattern candidate missing", zap.String("path", fp))
			}
		}
	}
	return out, nil
}

func (l *Locator) walk() ([]string, error) {
	exts := make(map[string]bool)
	for _, s := range l.Schemas {
		for _, e := range s.Extensions {
			exts[e] = true
		}
	}

	var out []string
	err := filepath.WalkDir(l.Dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if exts[strings.ToLower(filepath.Ext(path))] {
			out = append(out, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", l.Dir, err)
	}
	return out, nil
}

// classify decides which software family produced the file and builds
// its record. A nil record with nil error means the file is skipped:
// either it is not a projection at all, or the include filters reject
// it. Files named explicitly through the pattern fail hard instead of
// being skipped silently.
func (l *Locator) classify(path string, explicit bool) (*Record, error) {
	if !l.isContainer(path) {
		if explicit {
			return nil, fmt.Errorf("%s is not an HDF5 file", path)
		}
		return nil, nil
	}

	c, err := l.open(path)
	if err != nil {
		if explicit {
			return nil, fmt.Errorf("open %s: %w", path, err)
		}
		l.Log.Debug("skipping unreadable file", zap.String("path", path), zap.Error(err))
		return nil, nil
	}
	defer c.Close()

	schema := l.match(c)
	if schema == nil {
		if explicit {
			missing := make([]string, 0)
			for _, s := range l.Schemas {
				missing = append(missing, s.EssentialPaths...)
			}
			return nil, &SchemaError{Path: path, Missing: missing}
		}
		return nil, nil
	}

	switch schema.Software {
	case SoftwarePtyPy:
		return l.recordPtyPy(path, c)
	case SoftwarePtyREX:
		return l.recordPtyREX(path, c)
	case SoftwareXRFWindow:
		return l.recordXRF(path)
	}
	return nil, fmt.Errorf("unsupported software %q", schema.Software)
}

// match probes the container against every schema in preference order.
// With the check skipped, the facility's preferred family is assumed.
func (l *Locator) match(c container) *Schema {
	if l.SkipCheck && len(l.Schemas) > 0 {
		return l.Schemas[0]
	}
	for _, s := range l.Schemas {
		if c.HasPaths(s.EssentialPaths) {
			return s
		}
	}
	return nil
}

func (l *Locator) recordPtyPy(path string, c container) (*Record, error) {
	names, err := c.ChildGroups(PtyPyScanRoot)
	if err != nil {
		return nil, fmt.Errorf("list scans in %s: %w", path, err)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("no scan entry in %s", path)
	}

	// one storage per reconstruction
	scanName := names[0]
	storage := fmt.Sprintf("S%sG00", scanName)

	rawFile, err := c.ReadString(fmt.Sprintf("%s/%s/data/intensities/file", PtyPyScanRoot, scanName))
	if err != nil {
		rawFile, err = c.ReadString(fmt.Sprintf("%s/%s/data/dfile", PtyPyScanRoot, scanName))
		if err != nil {
			return nil, fmt.Errorf("raw file path missing in %s: %w", path, err)
		}
	}
	scan, err := scanFromRawFile(rawFile)
	if err != nil {
		return nil, err
	}
	if !l.Scans.ContainsInt(scan) {
		return nil, nil
	}

	return &Record{
		Path:          path,
		Software:      SoftwarePtyPy,
		Scan:          scan,
		RawDir:        l.rawDirFor(rawFile, path),
		ObjectPath:    fmt.Sprintf("%s/%s/data", PtyPyObjectRoot, storage),
		ProbePath:     fmt.Sprintf("%s/%s/data", PtyPyProbeRoot, storage),
		PixelSizePath: fmt.Sprintf("%s/%s/_psize", PtyPyObjectRoot, storage),
		RawFile:       rawFile,
	}, nil
}

func (l *Locator) recordPtyREX(path string, c container) (*Record, error) {
	scan, err := scanFromPtyREXName(filepath.Base(path))
	if err != nil {
		return nil, err
	}
	rawProj, err := c.ReadString(PtyREXProjID)
	if err != nil {
		return nil, fmt.Errorf("projection identifier missing in %s: %w", path, err)
	}
	proj, err := parseProjID(rawProj)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if !l.Scans.ContainsInt(scan) || !l.Projs.ContainsInt(proj) {
		return nil, nil
	}

	// save_dir points back at the raw area; best effort only
	saveDir, _ := c.ReadString(PtyREXSaveDir)

	return &Record{
		Path:          path,
		Software:      SoftwarePtyREX,
		Scan:          scan,
		Proj:          proj,
		RawDir:        l.rawDirFor(saveDir, path),
		PixelSizePath: PtyREXPixelSize,
	}, nil
}

func (l *Locator) recordXRF(path string) (*Record, error) {
	scan, err := scanFromXRFName(path)
	if err != nil {
		return nil, err
	}
	if !l.Scans.ContainsInt(scan) {
		return nil, nil
	}
	return &Record{
		Path:     path,
		Software: SoftwareXRFWindow,
		Scan:     scan,
		RawDir:   l.rawDirFor("", path),
	}, nil
}

func (l *Locator) rawDirFor(recorded, filePath string) string {
	if l.RawDir != "" {
		return l.RawDir
	}
	return inferRawDir(recorded, filePath)
}

func checkSingleSoftware(recs []*Record) error {
	found := make(map[Software]struct{})
	for _, r := range recs {
		found[r.Software] = struct{}{}
	}
	if len(found) <= 1 {
		return nil
	}
	names := make([]string, 0, len(found))
	for sw := range found {
		names = append(names, string(sw))
	}
	sort.Strings(names)
	return &MixedSoftwareError{Found: names}
}

// sortRecords establishes the preliminary order: PtyREX output is
// serialised per projection so its files sort by projection number,
// everything else by scan number.
func sortRecords(recs []*Record) {
	byProj := recs[0].Software == SoftwarePtyREX
	sort.SliceStable(recs, func(i, j int) bool {
		a, b := recs[i], recs[j]
		if byProj {
			if a.Proj != b.Proj {
				return a.Proj < b.Proj
			}
			return a.Scan < b.Scan
		}
		if a.Scan != b.Scan {
			return a.Scan < b.Scan
		}
		return a.Proj < b.Proj
	})
}
