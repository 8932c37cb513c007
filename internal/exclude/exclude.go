// Package exclude implements the exclusion matcher (spec.md 4.B): the
// default pattern set, user patterns, and the backup root's
// relative-to-source form, combined and matched with gitignore-style
// glob-with-directory semantics.
package exclude

import (
	"path/filepath"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"
	"github.com/juju/loggo"
)

var logger = loggo.GetLogger("checkpoint.exclude")

// DefaultPatterns are unconditional and always prepend the user set
// (spec.md 3, Exclusion pattern set).
var DefaultPatterns = []string{
	".gudang/",
	"temp/",
	".temp/",
	"tmp/",
	"*~",
	"~*",
	".tmp.*",
	".checkpoint.lock",
}

// Matcher decides, for a path relative to the snapshot source, whether
// it should be excluded from a snapshot.
type Matcher struct {
	patterns []string
	ignore   *gitignore.GitIgnore
}

// New builds a Matcher from the default set, the caller's patterns, and
// (if non-empty) the backup root expressed relative to source — which
// must always match so the engine never copies its own output into
// itself (spec.md 4.B invariant).
func New(userPatterns []string, source, backupRoot string) *Matcher {
	all := make([]string, 0, len(DefaultPatterns)+len(userPatterns)+1)
	all = append(all, DefaultPatterns...)
	all = append(all, userPatterns...)

	if backupRoot != "" {
		rel, err := filepath.Rel(source, backupRoot)
		if err == nil && !strings.HasPrefix(rel, "..") {
			all = append(all, ensureDirPattern(filepath.ToSlash(rel)))
		}
	}

	ign := gitignore.CompileIgnoreLines(all...)
	m := &Matcher{patterns: all, ignore: ign}
	logger.Debugf("exclusion matcher compiled with %d patterns", len(all))
	return m
}

func ensureDirPattern(p string) string {
	if strings.HasSuffix(p, "/") {
		return p
	}
	return p + "/"
}

// Excluded reports whether relPath (slash-separated, relative to the
// snapshot source) should be excluded. isDir indicates whether relPath
// names a directory, needed because trailing-slash patterns restrict
// the match to directories (spec.md 4.B).
func (m *Matcher) Excluded(relPath string, isDir bool) bool {
	relPath = filepath.ToSlash(relPath)
	if isDir && !strings.HasSuffix(relPath, "/") {
		relPath += "/"
	}
	return m.ignore.MatchesPath(relPath)
}

// Patterns returns the fully combined pattern list, for diagnostics and
// remote dispatch (exclusions are sent as parameters, spec.md 4.J).
func (m *Matcher) Patterns() []string {
	out := make([]string, len(m.patterns))
	copy(out, m.patterns)
	return out
}
