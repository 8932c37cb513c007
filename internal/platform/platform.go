// Package platform implements the path & platform layer (spec.md 4.A):
// canonicalisation, ownership introspection, disk-space probing and
// timestamp formatting. OS-specific pieces live behind build tags so the
// rest of the core depends only on this package's exported functions, per
// spec.md's design note on isolating platform differences.
package platform

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/juju/errors"
	"github.com/juju/loggo"
	"github.com/shirou/gopsutil/v3/disk"
)

var logger = loggo.GetLogger("checkpoint.platform")

// SnapshotNameLayout is the local-time layout used by IsoNow and parsed
// back by the retention policy when sorting by embedded timestamp.
const SnapshotNameLayout = "20060102_150405"

// Canonicalise resolves path to an absolute, symlink-free form. It is
// idempotent and never introduces a trailing slash (spec.md 4.A
// invariant).
func Canonicalise(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", errors.Annotatef(err, "resolving absolute path for %q", path)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", errors.Annotatef(err, "resolving symlinks for %q", abs)
	}
	return strings.TrimRight(filepath.Clean(resolved), string(filepath.Separator)), nil
}

// IsoNow renders the current local time as YYYYMMDD_HHMMSS.
func IsoNow() string {
	return time.Now().Format(SnapshotNameLayout)
}

// RelativeTo expresses target relative to base, falling back to target
// itself (absolute) if no relative path exists.
func RelativeTo(base, target string) string {
	rel, err := filepath.Rel(base, target)
	if err != nil || strings.HasPrefix(rel, "..") {
		return target
	}
	return rel
}

// DiskFreeKB returns the free space available at path, in kilobytes.
func DiskFreeKB(path string) (uint64, error) {
	usage, err := disk.Usage(path)
	if err != nil {
		return 0, errors.Annotatef(err, "probing free space at %q", path)
	}
	freeKB := usage.Free / 1024
	logger.Debugf("disk free at %q: %d KB", path, freeKB)
	return freeKB, nil
}
