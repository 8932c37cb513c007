// Package remote implements the remote dispatcher (spec.md 4.J): the
// same verbs executed against a (user, host, path) target over a
// secure shell transport, with strict input hardening at ingress.
package remote

import (
	"regexp"
	"strings"

	"github.com/juju/loggo"

	"github.com/Open-Technology-Foundation/checkpoint/internal/errs"
	"github.com/Open-Technology-Foundation/checkpoint/internal/retention"
)

var logger = loggo.GetLogger("checkpoint.remote")

// pathRE is the allowed character class for a remote path (spec.md 3,
// Remote specification).
var pathRE = regexp.MustCompile(`^[A-Za-z0-9_./-]+$`)

// Spec is a parsed, validated user@host:path remote target.
type Spec struct {
	User string
	Host string
	Path string
}

// ParseSpec parses and validates the literal user@host:path form. All
// checks run before any transport call, per spec.md 4.J.
func ParseSpec(literal string) (Spec, error) {
	at := strings.Index(literal, "@")
	colon := strings.LastIndex(literal, ":")
	if at < 0 || colon < 0 || colon < at {
		return Spec{}, errs.NewInput("invalid remote spec %q: want user@host:path", literal)
	}
	s := Spec{
		User: literal[:at],
		Host: literal[at+1 : colon],
		Path: literal[colon+1:],
	}
	if err := validatePath(s.Path); err != nil {
		return Spec{}, err
	}
	if s.User == "" || s.Host == "" {
		return Spec{}, errs.NewInput("invalid remote spec %q: missing user or host", literal)
	}
	return s, nil
}

// validatePath implements spec.md 4.J's remote_root hardening: must
// match the allowed character class and must not contain "..".
func validatePath(path string) error {
	if strings.Contains(path, "..") {
		return errs.NewInput("remote path %q cannot contain directory traversal", path)
	}
	if !pathRE.MatchString(path) {
		return errs.NewInput("remote path %q contains characters outside [A-Za-z0-9_./-]", path)
	}
	return nil
}

// ValidateCheckpointID rejects anything that isn't a legal snapshot
// name, per spec.md 4.J ("checkpoint identifiers passed to remote verbs
// must match the snapshot-name regex").
func ValidateCheckpointID(id string) error {
	if !retention.NameRE.MatchString(id) {
		return errs.NewInput("invalid checkpoint id %q", id)
	}
	return nil
}

// ValidateTimeout rejects anything that doesn't parse as a positive
// integer of seconds.
func ValidateTimeout(seconds int) error {
	if seconds <= 0 {
		return errs.NewInput("timeout must be a positive integer of seconds, got %d", seconds)
	}
	return nil
}
