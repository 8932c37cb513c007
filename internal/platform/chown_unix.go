//go:build !windows

package platform

import (
	"os"
	"syscall"

	"github.com/juju/errors"
)

// RawOwner returns the numeric (uid, gid) pair for path, the form the
// snapshot engine needs to replicate ownership onto a freshly mirrored
// file (spec.md 4.F step 7: "preservation of ownership, mode, symlinks,
// timestamps").
func RawOwner(path string) (uid, gid int, err error) {
	info, err := os.Lstat(path)
	if err != nil {
		return 0, 0, errors.Annotatef(err, "lstatting %q", path)
	}
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, 0, errors.Errorf("unsupported stat result for %q", path)
	}
	return int(stat.Uid), int(stat.Gid), nil
}

// Lchown applies uid/gid to path without following symlinks, so a
// mirrored symlink's ownership is set on the link itself, not its
// target. Callers tolerate a non-nil return: preserving ownership
// routinely requires privileges the invoking user doesn't have, and
// that alone must not abort a snapshot.
func Lchown(path string, uid, gid int) error {
	return os.Lchown(path, uid, gid)
}
