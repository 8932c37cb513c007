// Package compare implements the comparison engine (spec.md 4.H):
// live-vs-snapshot and snapshot-vs-snapshot diffs with pattern
// filtering, producing a structured report that never aborts on a
// per-file error.
package compare

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/juju/loggo"

	"github.com/Open-Technology-Foundation/checkpoint/internal/errs"
)

var logger = loggo.GetLogger("checkpoint.compare")

// Class categorises one path's comparison outcome.
type Class int

const (
	Identical Class = iota
	Differs
	OnlyInFirst
	OnlyInSecond
	Inaccessible
)

func (c Class) String() string {
	switch c {
	case Identical:
		return "identical"
	case Differs:
		return "differs"
	case OnlyInFirst:
		return "only-in-first"
	case OnlyInSecond:
		return "only-in-second"
	case Inaccessible:
		return "inaccessible"
	default:
		return "unknown"
	}
}

// Entry is one path's classification, and optionally its unified diff
// body when Detailed was requested and the file is textual.
type Entry struct {
	Path  string
	Class Class
	Diff  string
}

// Report is the structured output of a comparison, whether
// live-vs-snapshot or snapshot-vs-snapshot. OnlyInFirst/OnlyInSecond
// read as OnlyInSnapshot/OnlyInLive for the live-vs-snapshot mode (the
// classification is symmetrical; callers label as needed).
type Report struct {
	Entries []Entry
	Errors  []string
}

// Totals summarises Entries by class.
func (r *Report) Totals() map[Class]int {
	out := map[Class]int{}
	for _, e := range r.Entries {
		out[e.Class]++
	}
	return out
}

// Options configures a comparison pass.
type Options struct {
	Patterns []string // restricts traversal to matching relative paths
	Detailed bool      // include unified textual diffs of Differs files
}

// diffToolCandidates is a preference list of external textual-diff
// tools, looked up on PATH in order for every diff rendered; the engine
// falls back to a line-unified diff of its own when none is available
// or none produces output (spec.md 4.H).
var diffToolCandidates = []string{"delta", "diff-so-fancy", "diff"}

// Live compares snapshot against liveDir (live-vs-snapshot mode).
func Live(snapshot, liveDir string, opts Options) (*Report, error) {
	return runCompare(snapshot, liveDir, opts)
}

// Snapshots compares two published snapshots (snapshot-vs-snapshot
// mode); symmetrical to Live.
func Snapshots(first, second string, opts Options) (*Report, error) {
	return runCompare(first, second, opts)
}

func runCompare(first, second string, opts Options) (*Report, error) {
	logger.Debugf("comparing %q against %q", first, second)
	firstWalk, firstErr := walkRel(first)
	secondWalk, secondErr := walkRel(second)

	report := &Report{}
	if firstErr != nil {
		report.Errors = append(report.Errors, firstErr.Error())
	}
	if secondErr != nil {
		report.Errors = append(report.Errors, secondErr.Error())
	}

	union := map[string]bool{}
	for p := range firstWalk.entries {
		union[p] = true
	}
	for p := range secondWalk.entries {
		union[p] = true
	}
	for p := range firstWalk.failed {
		union[p] = true
	}
	for p := range secondWalk.failed {
		union[p] = true
	}

	var paths []string
	for p := range union {
		if matches(opts.Patterns, p) {
			paths = append(paths, p)
		}
	}
	sort.Strings(paths)

	for _, rel := range paths {
		aInfo, aOK := firstWalk.entries[rel]
		bInfo, bOK := secondWalk.entries[rel]
		aErr, aFailed := firstWalk.failed[rel]
		bErr, bFailed := secondWalk.failed[rel]
		entry := Entry{Path: rel}

		switch {
		case aFailed || bFailed:
			entry.Class = Inaccessible
			if aFailed {
				report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", rel, aErr))
			}
			if bFailed {
				report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", rel, bErr))
			}
		case aOK && !bOK:
			entry.Class = OnlyInFirst
		case !aOK && bOK:
			entry.Class = OnlyInSecond
		default:
			aPath := filepath.Join(first, rel)
			bPath := filepath.Join(second, rel)
			same, err := filesEqual(aPath, bPath, aInfo, bInfo)
			if err != nil {
				entry.Class = Inaccessible
				report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", rel, err))
			} else if same {
				entry.Class = Identical
			} else {
				entry.Class = Differs
				if opts.Detailed && isTextual(aPath) && isTextual(bPath) {
					entry.Diff = unifiedDiff(aPath, bPath)
				}
			}
		}
		report.Entries = append(report.Entries, entry)
	}

	if len(report.Errors) > 0 {
		return report, errs.NewPartialComparison("comparison completed with %d error(s)", len(report.Errors))
	}
	return report, nil
}

func matches(patterns []string, rel string) bool {
	if len(patterns) == 0 {
		return true
	}
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

// walkResult separates paths walkRel could stat from ones it couldn't;
// the latter surface as Inaccessible entries rather than silently
// dropping out of the comparison (spec.md 4.H).
type walkResult struct {
	entries map[string]os.FileInfo
	failed  map[string]error
}

func walkRel(root string) (walkResult, error) {
	result := walkResult{entries: map[string]os.FileInfo{}, failed: map[string]error{}}
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		if err != nil {
			if rel == "." {
				return err // root itself unreadable: nothing per-path to record
			}
			result.failed[rel] = err
			if info != nil && info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if rel == "." || info.IsDir() {
			return nil
		}
		result.entries[rel] = info
		return nil
	})
	return result, err
}

func filesEqual(a, b string, aInfo, bInfo os.FileInfo) (bool, error) {
	if aInfo.Mode()&os.ModeSymlink != 0 || bInfo.Mode()&os.ModeSymlink != 0 {
		at, err1 := os.Readlink(a)
		bt, err2 := os.Readlink(b)
		if err1 != nil || err2 != nil {
			return false, fmt.Errorf("broken symlink")
		}
		return at == bt, nil
	}
	if aInfo.Size() != bInfo.Size() {
		return false, nil
	}
	af, err := os.Open(a)
	if err != nil {
		return false, err
	}
	defer af.Close()
	bf, err := os.Open(b)
	if err != nil {
		return false, err
	}
	defer bf.Close()

	const chunk = 64 * 1024
	bufA := make([]byte, chunk)
	bufB := make([]byte, chunk)
	for {
		na, errA := af.Read(bufA)
		nb, errB := bf.Read(bufB)
		if na != nb || !bytes.Equal(bufA[:na], bufB[:nb]) {
			return false, nil
		}
		if errA == io.EOF && errB == io.EOF {
			return true, nil
		}
		if errA != nil && errA != io.EOF {
			return false, errA
		}
		if errB != nil && errB != io.EOF {
			return false, errB
		}
	}
}

func isTextual(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()
	buf := make([]byte, 512)
	n, _ := f.Read(buf)
	return !bytes.Contains(buf[:n], []byte{0})
}

// unifiedDiff delegates to the first tool from diffToolCandidates that
// is on PATH and produces output, falling back to a minimal
// line-unified diff the engine produces itself.
func unifiedDiff(a, b string) string {
	for _, tool := range diffToolCandidates {
		if _, err := exec.LookPath(tool); err != nil {
			continue
		}
		cmd := exec.Command(tool, "-u", a, b)
		out, _ := cmd.Output()
		if len(out) > 0 {
			return string(out)
		}
	}
	return lineUnifiedDiff(a, b)
}

// lineUnifiedDiff is a minimal, dependency-free line diff used only
// when no external diff tool is available on PATH.
func lineUnifiedDiff(a, b string) string {
	aLines, err1 := readLines(a)
	bLines, err2 := readLines(b)
	if err1 != nil || err2 != nil {
		return ""
	}
	var buf strings.Builder
	fmt.Fprintf(&buf, "--- %s\n+++ %s\n", a, b)
	max := len(aLines)
	if len(bLines) > max {
		max = len(bLines)
	}
	for i := 0; i < max; i++ {
		var al, bl string
		if i < len(aLines) {
			al = aLines[i]
		}
		if i < len(bLines) {
			bl = bLines[i]
		}
		if al == bl {
			continue
		}
		if i < len(aLines) {
			fmt.Fprintf(&buf, "-%s\n", al)
		}
		if i < len(bLines) {
			fmt.Fprintf(&buf, "+%s\n", bl)
		}
	}
	return buf.String()
}

func readLines(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return strings.Split(string(data), "\n"), nil
}
