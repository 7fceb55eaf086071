package projection

import (
	"os"
	"path/filepath"
	"strings"
)

const (
	rawDirDepth     = 6
	stagingDirDepth = 8
	stagingRoot     = "/dls/staging"
)

// topLevelDir truncates a path to a fixed number of components, the
// leading separator counting as one. "/a/b/c/d/e" at depth 3 gives
// "/a/b".
func topLevelDir(path string, depth int) string {
	parts := strings.Split(filepath.Clean(path), string(filepath.Separator))
	if parts[0] == "" {
		// absolute path, keep the root as the first component
		parts[0] = string(filepath.Separator)
	}
	if len(parts) > depth {
		parts = parts[:depth]
	}
	return filepath.Join(parts...)
}

func isStagingArea(path string) bool {
	rel, err := filepath.Rel(stagingRoot, filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel == "." || !strings.HasPrefix(rel, "..")
}

func visitDepth(path string) int {
	if isStagingArea(path) {
		return stagingDirDepth
	}
	return rawDirDepth
}

// inferRawDir derives the raw-data directory from a path recorded
// inside the reconstruction, falling back to the reconstruction file's
// own location when the recorded one no longer exists.
func inferRawDir(recorded, filePath string) string {
	if recorded != "" {
		dir := topLevelDir(recorded, visitDepth(recorded))
		if fi, err := os.Stat(dir); err == nil && fi.IsDir() {
			return dir
		}
	}
	return topLevelDir(filePath, visitDepth(filePath))
}
