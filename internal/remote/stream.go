package remote

import (
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/juju/errors"

	"github.com/Open-Technology-Foundation/checkpoint/internal/exclude"
)

// streamTree implements the filesystem-sync stream class of remote call
// (spec.md 6): it walks the local source tree and pushes it into the
// remote stage over SFTP, applying exclusions exactly as the local
// mirror does. Every file is sent in full; an interrupted stream is not
// resumed. A failed file aborts the whole create, which the caller
// turns into a removed stage (no partial snapshot is ever published
// under its final name).
func streamTree(t *Transport, localSource, remoteStage string, matcher *exclude.Matcher) error {
	return filepath.WalkDir(localSource, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(localSource, p)
		if err != nil {
			return err
		}
		remoteRel := filepath.ToSlash(rel)
		remotePath := path.Join(remoteStage, remoteRel)

		if rel == "." {
			return t.SFTP().MkdirAll(remotePath)
		}

		isDir := d.IsDir()
		if matcher.Excluded(remoteRel, isDir) {
			if isDir {
				return filepath.SkipDir
			}
			return nil
		}

		if isDir {
			return t.SFTP().MkdirAll(remotePath)
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.Mode()&os.ModeSymlink != 0 {
			// SFTP symlink creation is best-effort: some servers
			// disable it. A failure here degrades to skipping the
			// link rather than aborting the whole stream.
			target, rerr := os.Readlink(p)
			if rerr != nil {
				return rerr
			}
			if serr := t.SFTP().Symlink(target, remotePath); serr != nil {
				logger.Warningf("remote symlink %q unsupported, skipping: %v", remotePath, serr)
			}
			return nil
		}

		src, err := os.Open(p)
		if err != nil {
			return errors.Annotatef(err, "opening %q", p)
		}
		defer src.Close()

		dst, err := t.SFTP().Create(remotePath)
		if err != nil {
			return errors.Annotatef(err, "creating remote file %q", remotePath)
		}
		defer dst.Close()

		if _, err := io.Copy(dst, src); err != nil {
			return errors.Annotatef(err, "streaming %q to %q", p, remotePath)
		}
		return t.SFTP().Chmod(remotePath, info.Mode().Perm())
	})
}
