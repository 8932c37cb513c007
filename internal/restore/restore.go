// Package restore implements the restore engine (spec.md 4.I): full and
// selective restore with preview (dry run) and an optional pre-restore
// diff, merging into the target by default.
package restore

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/loggo"

	"github.com/Open-Technology-Foundation/checkpoint/internal/compare"
	"github.com/Open-Technology-Foundation/checkpoint/internal/errs"
	"github.com/Open-Technology-Foundation/checkpoint/internal/metadata"
	"github.com/Open-Technology-Foundation/checkpoint/internal/platform"
)

var logger = loggo.GetLogger("checkpoint.restore")

// Confirmer is asked to confirm a restore after the pre-restore diff is
// shown. It must honour ctx's deadline (spec.md 5: prompts are bounded
// by per-prompt timeouts).
type Confirmer func(ctx context.Context, report *compare.Report) (bool, error)

// Options configures one restore call.
type Options struct {
	TargetDir    string // defaults to SOURCE recorded in the snapshot metadata
	Patterns     []string
	DryRun       bool
	DiffFirst    bool
	FullReplace  bool // opt into subtractive sync; default is merge-only (spec.md 9)
	ConfirmFn    Confirmer
	ConfirmDelay time.Duration
}

// Change describes one file operation a restore would perform (dry-run
// preview) or did perform (actual run).
type Change struct {
	Path string
	Err  error
}

// Result summarises a restore call.
type Result struct {
	Changes []Change
	Failed  int
}

// Run implements spec.md 4.I's protocol.
func Run(snapshot string, opts Options, clk clock.Clock) (*Result, error) {
	if clk == nil {
		clk = clock.WallClock
	}
	target := opts.TargetDir
	if target == "" {
		record, err := metadata.Show(snapshot)
		if err != nil {
			return nil, errors.Annotatef(err, "resolving restore target from snapshot metadata")
		}
		source, ok := record.Get(metadata.KeySource)
		if !ok {
			return nil, errs.NewInput("snapshot %q metadata has no SOURCE to restore to", snapshot)
		}
		target = source
	}

	// 1. diff_first.
	if opts.DiffFirst {
		report, err := compare.Live(snapshot, target, compare.Options{Patterns: opts.Patterns})
		if err != nil && !errs.IsPartialComparison(err) {
			return nil, errors.Trace(err)
		}
		if opts.ConfirmFn != nil {
			timeout := opts.ConfirmDelay
			if timeout <= 0 {
				timeout = 30 * time.Second
			}
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			ok, cerr := opts.ConfirmFn(ctx, report)
			cancel()
			if cerr != nil {
				return nil, errs.NewCancelled("restore confirmation: %v", cerr)
			}
			if !ok {
				return nil, errs.NewCancelled("restore not confirmed")
			}
		}
	}

	entries, err := enumerateSnapshot(snapshot, opts.Patterns)
	if err != nil {
		return nil, errors.Trace(err)
	}

	result := &Result{}

	// 2. dry_run preview.
	if opts.DryRun {
		for _, rel := range entries {
			result.Changes = append(result.Changes, Change{Path: rel})
		}
		return result, nil
	}

	// 3/4. mirror snapshot -> target, merge by default.
	if err := os.MkdirAll(target, 0o755); err != nil {
		return nil, errors.Annotatef(err, "creating restore target %q", target)
	}

	for _, rel := range entries {
		src := filepath.Join(snapshot, rel)
		dst := filepath.Join(target, rel)
		if err := restoreOne(src, dst); err != nil {
			result.Changes = append(result.Changes, Change{Path: rel, Err: err})
			result.Failed++
			logger.Warningf("restoring %q: %v", rel, err)
			continue
		}
		result.Changes = append(result.Changes, Change{Path: rel})
	}

	if opts.FullReplace {
		if err := pruneNonMatching(snapshot, target, entries); err != nil {
			logger.Warningf("full-replace prune: %v", err)
		}
	}

	if result.Failed > 0 {
		return result, errs.NewPartialRestore("%d of %d file(s) failed to restore", result.Failed, len(entries))
	}
	return result, nil
}

func enumerateSnapshot(snapshot string, patterns []string) ([]string, error) {
	var rels []string
	err := filepath.Walk(snapshot, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		rel, relErr := filepath.Rel(snapshot, path)
		if relErr != nil || rel == "." || info.IsDir() || rel == metadata.FileName {
			return nil
		}
		if len(patterns) > 0 && !matchAny(patterns, rel) {
			return nil
		}
		rels = append(rels, rel)
		return nil
	})
	return rels, err
}

func matchAny(patterns []string, rel string) bool {
	for _, p := range patterns {
		if ok, _ := filepath.Match(p, rel); ok {
			return true
		}
		if ok, _ := filepath.Match(p, filepath.Base(rel)); ok {
			return true
		}
	}
	return false
}

func restoreOne(src, dst string) error {
	info, err := os.Lstat(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	if info.Mode()&os.ModeSymlink != 0 {
		target, err := os.Readlink(src)
		if err != nil {
			return err
		}
		os.Remove(dst)
		if err := os.Symlink(target, dst); err != nil {
			return err
		}
		if uid, gid, err := platform.RawOwner(src); err == nil {
			_ = platform.Lchown(dst, uid, gid)
		}
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := copyAll(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	if uid, gid, err := platform.RawOwner(src); err == nil {
		_ = platform.Lchown(dst, uid, gid)
	}
	return os.Chtimes(dst, info.ModTime(), info.ModTime())
}

func copyAll(dst *os.File, src *os.File) (int64, error) {
	buf := make([]byte, 64*1024)
	var total int64
	for {
		n, err := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return total, werr
			}
			total += int64(n)
		}
		if err != nil {
			if err == io.EOF {
				return total, nil
			}
			return total, err
		}
	}
}

// pruneNonMatching removes target entries absent from the snapshot's
// entry set, implementing FullReplace's subtractive semantics — off by
// default per spec.md 9's Open Question on restore's deletion
// semantics.
func pruneNonMatching(snapshot, target string, keep []string) error {
	keepSet := map[string]bool{}
	for _, k := range keep {
		keepSet[k] = true
	}
	return filepath.Walk(target, func(path string, info os.FileInfo, err error) error {
		if err != nil || path == target || info.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(target, path)
		if relErr != nil {
			return nil
		}
		if !keepSet[rel] {
			logger.Infof("full-replace removing %q", path)
			return os.Remove(path)
		}
		return nil
	})
}
