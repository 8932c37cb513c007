// Package retention implements the count- and age-based rotation policy
// described in spec.md 4.G: enumerate snapshots by (timestamp-sortable)
// name, decide which to delete, then remove them oldest-first.
package retention

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"

	"github.com/juju/errors"
	"github.com/juju/loggo"
)

var logger = loggo.GetLogger("checkpoint.retention")

// NameRE is the snapshot-name regex from spec.md 3.
var NameRE = regexp.MustCompile(`^20\d{2}[01]\d[0-3]\d_[0-2]\d[0-5]\d[0-5]\d(_[A-Za-z0-9._-]+)?$`)

// Mode selects the retention rule in effect. Exactly one of KeepN or
// MaxAgeDays is active, chosen by Kind.
type Mode struct {
	Kind       Kind
	KeepN      int
	MaxAgeDays int
}

// Kind enumerates the two retention rules.
type Kind int

const (
	// KeepCount retains the KeepN most recent snapshots.
	KeepCount Kind = iota
	// MaxAge retains snapshots newer than MaxAgeDays.
	MaxAge
)

// KeepN builds a count-based Mode.
func KeepN(n int) Mode { return Mode{Kind: KeepCount, KeepN: n} }

// MaxAgeDays builds an age-based Mode.
func MaxAgeDays(days int) Mode { return Mode{Kind: MaxAge, MaxAgeDays: days} }

// List returns the snapshot directory names under root, sorted
// ascending (oldest first) by name — which is timestamp-sortable per
// spec.md 4.G.
func List(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, errors.Annotatef(err, "listing backup root %q", root)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() && NameRE.MatchString(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// timestampOf parses the leading YYYYMMDD_HHMMSS portion of a snapshot
// name. Age-based retention uses this rather than mtime, which is
// unreliable after restores or copies (spec.md 4.G).
func timestampOf(name string) (time.Time, error) {
	ts := name
	if idx := len(ts); idx > 15 {
		ts = ts[:15]
	}
	return time.ParseInLocation("20060102_150405", ts, time.Local)
}

// Plan computes, given the ascending-sorted snapshot list, which names
// should be deleted under mode. The most recent snapshot is never
// included unless mode is KeepN(0).
func Plan(names []string, mode Mode, now time.Time) []string {
	if len(names) == 0 {
		return nil
	}

	switch mode.Kind {
	case KeepCount:
		if mode.KeepN <= 0 {
			if mode.KeepN == 0 {
				out := make([]string, len(names))
				copy(out, names)
				return out
			}
			return nil
		}
		if len(names) <= mode.KeepN {
			return nil
		}
		return append([]string{}, names[:len(names)-mode.KeepN]...)

	case MaxAge:
		cutoff := now.Add(-time.Duration(mode.MaxAgeDays) * 24 * time.Hour)
		var doomed []string
		for _, n := range names {
			ts, err := timestampOf(n)
			if err != nil {
				logger.Warningf("skipping unparseable snapshot name %q in age-based retention", n)
				continue
			}
			if ts.Before(cutoff) {
				doomed = append(doomed, n)
			}
		}
		// Never prune the most recent snapshot via age rule alone.
		if len(doomed) == len(names) && len(names) > 0 {
			doomed = doomed[:len(doomed)-1]
		}
		return doomed
	}
	return nil
}

// Apply enumerates root, computes Plan, and deletes the doomed
// snapshots oldest-first, returning their names.
func Apply(root string, mode Mode) ([]string, error) {
	names, err := List(root)
	if err != nil {
		return nil, err
	}
	doomed := Plan(names, mode, time.Now())
	for _, n := range doomed {
		path := filepath.Join(root, n)
		logger.Infof("pruning snapshot %q", path)
		if err := os.RemoveAll(path); err != nil {
			return nil, errors.Annotatef(err, "removing snapshot %q", path)
		}
	}
	return doomed, nil
}
