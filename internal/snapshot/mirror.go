package snapshot

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/juju/errors"

	"github.com/Open-Technology-Foundation/checkpoint/internal/checksum"
	"github.com/Open-Technology-Foundation/checkpoint/internal/exclude"
	"github.com/Open-Technology-Foundation/checkpoint/internal/platform"
)

// mirrorOptions configures one source-to-stage population pass.
type mirrorOptions struct {
	matcher      *exclude.Matcher
	base         string // prior snapshot path, "" if none
	hardlink     bool
	hardlinkFast bool // loose size+mtime predicate without content check, opt-in (spec.md 9)
	checker      *checksum.Provider
}

// mirror walks src and replicates its tree into dst, applying
// exclusions, archive semantics (ownership/mode/symlinks/timestamps),
// and hardlink dedup against opts.base when enabled (spec.md 4.F step 7).
func mirror(src, dst string, opts mirrorOptions) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return errors.Annotatef(err, "walking %q", path)
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return errors.Annotatef(err, "computing relative path for %q", path)
		}
		if rel == "." {
			return copyDirMeta(path, dst)
		}

		isDir := d.IsDir()
		if opts.matcher != nil && opts.matcher.Excluded(rel, isDir) {
			logger.Debugf("excluding %q", rel)
			if isDir {
				return filepath.SkipDir
			}
			return nil
		}

		target := filepath.Join(dst, rel)

		info, err := d.Info()
		if err != nil {
			return errors.Annotatef(err, "statting %q", path)
		}

		switch {
		case info.Mode()&os.ModeSymlink != 0:
			return mirrorSymlink(path, target, info)
		case isDir:
			if err := os.MkdirAll(target, info.Mode().Perm()); err != nil {
				return errors.Annotatef(err, "creating directory %q", target)
			}
			return applyMeta(path, target, info)
		default:
			return mirrorFile(path, target, rel, info, opts)
		}
	})
}

func copyDirMeta(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return errors.Annotatef(err, "statting %q", src)
	}
	if err := os.MkdirAll(dst, info.Mode().Perm()); err != nil {
		return errors.Annotatef(err, "creating stage root %q", dst)
	}
	return applyMeta(src, dst, info)
}

func mirrorSymlink(src, target string, info os.FileInfo) error {
	linkTarget, err := os.Readlink(src)
	if err != nil {
		return errors.Annotatef(err, "reading symlink %q", src)
	}
	if err := os.Symlink(linkTarget, target); err != nil {
		return errors.Annotatef(err, "creating symlink %q", target)
	}
	if uid, gid, err := platform.RawOwner(src); err == nil {
		_ = platform.Lchown(target, uid, gid)
	}
	return nil
}

func mirrorFile(src, target, rel string, info os.FileInfo, opts mirrorOptions) error {
	if opts.hardlink && opts.base != "" {
		baseFile := filepath.Join(opts.base, rel)
		identical, err := sameContent(src, baseFile, info, opts)
		if err == nil && identical {
			if err := os.Link(baseFile, target); err == nil {
				logger.Debugf("hardlinked %q to prior snapshot", rel)
				return nil
			}
			// Cross-device or other link failure: fall through to a
			// fresh copy rather than aborting the snapshot.
		}
	}
	return copyFile(src, target, info)
}

// sameContent implements the identity test from spec.md 4.F step 7:
// same size AND same modification time AND same content, short-
// circuiting the cheap checks first. hardlinkFast opts into the looser
// "same size and mtime" predicate (spec.md 9 Open Question), which skips
// the content comparison.
func sameContent(src, baseFile string, srcInfo os.FileInfo, opts mirrorOptions) (bool, error) {
	baseInfo, err := os.Stat(baseFile)
	if err != nil {
		return false, err
	}
	if baseInfo.IsDir() || srcInfo.Size() != baseInfo.Size() {
		return false, nil
	}
	if !srcInfo.ModTime().Equal(baseInfo.ModTime()) {
		return false, nil
	}
	if opts.hardlinkFast {
		return true, nil
	}
	checker := opts.checker
	if checker == nil {
		checker = checksum.New(checksum.SHA256)
	}
	a, err := checker.Digest(src)
	if err != nil {
		return false, err
	}
	b, err := checker.Digest(baseFile)
	if err != nil {
		return false, err
	}
	return string(a) == string(b), nil
}

func copyFile(src, target string, info os.FileInfo) error {
	in, err := os.Open(src)
	if err != nil {
		return errors.Annotatef(err, "opening %q", src)
	}
	defer in.Close()

	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return errors.Annotatef(err, "creating %q", target)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return errors.Annotatef(err, "copying %q to %q", src, target)
	}
	if err := out.Close(); err != nil {
		return errors.Annotatef(err, "closing %q", target)
	}
	return applyMeta(src, target, info)
}

// applyMeta replicates src's mode, ownership and modification time onto
// target, the "archive semantics" preservation spec.md 4.F step 7
// requires. Ownership failures are tolerated (the invoking user
// frequently lacks chown privilege) rather than aborting the snapshot.
func applyMeta(src, target string, info os.FileInfo) error {
	if err := os.Chmod(target, info.Mode().Perm()); err != nil {
		return errors.Annotatef(err, "chmod %q", target)
	}
	if uid, gid, err := platform.RawOwner(src); err == nil {
		_ = platform.Lchown(target, uid, gid)
	}
	if err := os.Chtimes(target, info.ModTime(), info.ModTime()); err != nil {
		return errors.Annotatef(err, "setting times on %q", target)
	}
	return nil
}
