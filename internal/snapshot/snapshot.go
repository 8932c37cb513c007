// Package snapshot implements the snapshot engine (spec.md 4.F): atomic
// create with optional hardlink-to-prior, verify, and metadata
// emission. This is the hardest path in checkpoint and preserves the
// create algorithm's ordering exactly.
package snapshot

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"regexp"
	"runtime"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/loggo"

	"github.com/Open-Technology-Foundation/checkpoint/internal/checksum"
	"github.com/Open-Technology-Foundation/checkpoint/internal/cleanup"
	"github.com/Open-Technology-Foundation/checkpoint/internal/config"
	"github.com/Open-Technology-Foundation/checkpoint/internal/errs"
	"github.com/Open-Technology-Foundation/checkpoint/internal/exclude"
	"github.com/Open-Technology-Foundation/checkpoint/internal/lock"
	"github.com/Open-Technology-Foundation/checkpoint/internal/metadata"
	"github.com/Open-Technology-Foundation/checkpoint/internal/platform"
	"github.com/Open-Technology-Foundation/checkpoint/internal/retention"
)

var logger = loggo.GetLogger("checkpoint.snapshot")

// Version is reported in every snapshot's VERSION metadata field.
const Version = "1.0.0"

var suffixStripRE = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// Options configures one create() call.
type Options struct {
	Suffix          string
	Description     string
	Tags            map[string]string
	ExcludePatterns []string
	Hardlink        bool
	HardlinkFast    bool // opt-in loose dedup predicate, spec.md 9
	Verify          bool
	ForceLock       bool
	Retention       *retention.Mode // non-nil triggers step 11
	Checksum        checksum.Algorithm
}

// Create implements spec.md 4.F's algorithm end to end and returns the
// published snapshot's name (not full path).
func Create(source, root string, opts Options, cfg config.Config, clk clock.Clock) (name string, err error) {
	if clk == nil {
		clk = clock.WallClock
	}
	coord := cleanup.New()
	defer coord.Run()

	// 1. Prepare.
	source, err = platform.Canonicalise(source)
	if err != nil {
		return "", errors.Trace(err)
	}
	info, err := os.Stat(source)
	if err != nil || !info.IsDir() {
		return "", errs.NewEnvironment("source %q is not a directory", source)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return "", errs.NewEnvironment("cannot create backup root %q: %v", root, err)
	}
	root, err = platform.Canonicalise(root)
	if err != nil {
		return "", errors.Trace(err)
	}

	// 2. Guard.
	handle, err := lock.Acquire(root, cfg.LockTimeout, opts.ForceLock, clk)
	if err != nil {
		return "", errors.Trace(err)
	}
	coord.Register(func() {
		if err := handle.Release(); err != nil {
			logger.Warningf("releasing lock: %v", err)
		}
	})

	// 3. Capacity.
	sizeKB, err := dirSizeKB(source)
	if err != nil {
		return "", errors.Trace(err)
	}
	freeKB, err := platform.DiskFreeKB(root)
	if err != nil {
		return "", errors.Trace(err)
	}
	required := uint64(float64(sizeKB) * cfg.SpaceSafetyFactor)
	if freeKB < required {
		return "", errs.NewEnvironment("insufficient space: need %d KB, have %d KB free at %q", required, freeKB, root)
	}

	// 4. Name.
	suffix := ""
	if opts.Suffix != "" {
		sanitised := suffixStripRE.ReplaceAllString(opts.Suffix, "")
		if sanitised == "" {
			return "", errs.NewInput("suffix %q sanitises to empty string", opts.Suffix)
		}
		suffix = "_" + sanitised
	}
	// A snapshot already published under this second's name would make
	// the step 10 rename fail, so wait for the timestamp to move on.
	snapName := platform.IsoNow() + suffix
	for {
		if _, err := os.Lstat(filepath.Join(root, snapName)); err != nil {
			break
		}
		time.Sleep(100 * time.Millisecond)
		snapName = platform.IsoNow() + suffix
	}

	// 5. Select base for hardlink.
	var base string
	if opts.Hardlink {
		prior, err := retention.List(root)
		if err != nil {
			return "", errors.Trace(err)
		}
		if len(prior) > 0 {
			base = filepath.Join(root, prior[len(prior)-1])
		}
	}

	// 6. Stage.
	token := uuid.NewString()
	stage := filepath.Join(root, ".tmp."+token)
	if err := os.MkdirAll(stage, 0o755); err != nil {
		return "", errs.NewEnvironment("creating stage directory %q: %v", stage, err)
	}
	coord.Register(func() {
		if err := os.RemoveAll(stage); err != nil && !os.IsNotExist(err) {
			logger.Warningf("removing stage %q: %v", stage, err)
		}
	})

	// 7. Populate.
	matcher := exclude.New(opts.ExcludePatterns, source, root)
	checker := checksum.New(opts.Checksum)
	if err := mirror(source, stage, mirrorOptions{
		matcher:      matcher,
		base:         base,
		hardlink:     opts.Hardlink,
		hardlinkFast: opts.HardlinkFast,
		checker:      checker,
	}); err != nil {
		return "", errs.NewEnvironment("staging failed: %v", err)
	}

	// 8. Metadata.
	record := metadata.NewRecord()
	record.Set(metadata.KeyDescription, opts.Description)
	record.Set(metadata.KeyCreated, time.Now().UTC().Format(time.RFC3339))
	record.Set(metadata.KeyHost, hostname())
	record.Set(metadata.KeySystem, runtimeSystem())
	record.Set(metadata.KeyUser, currentUsername())
	record.Set(metadata.KeyVersion, Version)
	record.Set(metadata.KeySource, source)
	for k, v := range opts.Tags {
		if err := record.Set(k, v); err != nil {
			return "", errors.Trace(err)
		}
	}
	if err := metadata.Write(stage, record); err != nil {
		return "", errors.Trace(err)
	}

	// 9. Verify (optional).
	if opts.Verify {
		if err := verifyTrees(source, stage, matcher, checker, cfg.VerifyDigestThreshold); err != nil {
			return "", err
		}
	}

	// 10. Publish.
	dest := filepath.Join(root, snapName)
	if err := os.Rename(stage, dest); err != nil {
		return "", errs.NewPublishFailed("renaming stage to %q: %v", dest, err)
	}
	logger.Infof("published snapshot %q", dest)

	// 11. Retain.
	if opts.Retention != nil {
		if _, err := retention.Apply(root, *opts.Retention); err != nil {
			logger.Warningf("retention after create failed: %v", err)
		}
	}

	return snapName, nil
}

// Verify re-implements spec.md 4.F's verify() verb standalone: it
// compares an already-published snapshot against its live source.
func Verify(snapshotPath, source string, threshold int, checker *checksum.Provider) error {
	return verifyTrees(source, snapshotPath, nil, checker, threshold)
}

func verifyTrees(source, stage string, matcher *exclude.Matcher, checker *checksum.Provider, threshold int) error {
	entries, err := enumerate(source, matcher)
	if err != nil {
		return errors.Trace(err)
	}
	smallTree := len(entries) <= threshold

	for _, rel := range entries {
		srcPath := filepath.Join(source, rel)
		stagePath := filepath.Join(stage, rel)

		srcInfo, err1 := os.Lstat(srcPath)
		stageInfo, err2 := os.Lstat(stagePath)
		if err1 != nil || err2 != nil {
			return errs.NewVerifyMismatch("%q missing from stage", rel)
		}
		if srcInfo.IsDir() != stageInfo.IsDir() {
			return errs.NewVerifyMismatch("%q type mismatch", rel)
		}
		if srcInfo.IsDir() {
			continue
		}
		if srcInfo.Size() != stageInfo.Size() {
			return errs.NewVerifyMismatch("%q size mismatch", rel)
		}
		if smallTree && checker.Algorithm() != checksum.SizeOnly {
			a, err := checker.Digest(srcPath)
			if err != nil {
				return errors.Trace(err)
			}
			b, err := checker.Digest(stagePath)
			if err != nil {
				return errors.Trace(err)
			}
			if string(a) != string(b) {
				return errs.NewVerifyMismatch("%q digest mismatch", rel)
			}
		} else if !srcInfo.ModTime().Equal(stageInfo.ModTime()) {
			return errs.NewVerifyMismatch("%q mtime mismatch", rel)
		}
	}
	return nil
}

func enumerate(root string, matcher *exclude.Matcher) ([]string, error) {
	var rels []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil || rel == "." {
			return nil
		}
		if matcher != nil && matcher.Excluded(rel, info.IsDir()) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		rels = append(rels, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(rels)
	return rels, nil
}

func dirSizeKB(root string) (uint64, error) {
	var total int64
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			total += info.Size()
		}
		return nil
	})
	if err != nil {
		return 0, errors.Annotatef(err, "measuring source size")
	}
	return uint64(total) / 1024, nil
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return h
}

func currentUsername() string {
	u, err := user.Current()
	if err != nil {
		return "unknown"
	}
	return u.Username
}

func runtimeSystem() string {
	return fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH)
}
