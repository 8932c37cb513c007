// Package metadata implements the per-snapshot .metadata key/value store
// (spec.md 4.E): write, show, update and find, all via write-temp-then-
// rename so a reader never observes a torn record.
package metadata

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/juju/errors"
	"github.com/juju/loggo"

	"github.com/Open-Technology-Foundation/checkpoint/internal/errs"
)

var logger = loggo.GetLogger("checkpoint.metadata")

// FileName is the fixed name of the metadata file inside a snapshot.
const FileName = ".metadata"

// Reserved keys, per spec.md 3 (Metadata record).
const (
	KeyDescription = "DESCRIPTION"
	KeyCreated     = "CREATED"
	KeyHost        = "HOST"
	KeySystem      = "SYSTEM"
	KeyUser        = "USER"
	KeyVersion     = "VERSION"
	KeySource      = "SOURCE"
)

var tagKeyRE = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// Record is an ordered set of KEY=VALUE assignments; at most one
// assignment per key, matching spec.md's invariant.
type Record struct {
	order []string
	kv    map[string]string
}

// NewRecord returns an empty record.
func NewRecord() *Record {
	return &Record{kv: map[string]string{}}
}

// Set assigns key=value, validating keys per spec.md 4.E. Every key,
// reserved ones included, must match [A-Za-z0-9_]+.
func (r *Record) Set(key, value string) error {
	if !tagKeyRE.MatchString(key) {
		return errs.NewInput("invalid metadata key %q: must match [A-Za-z0-9_]+", key)
	}
	if _, exists := r.kv[key]; !exists {
		r.order = append(r.order, key)
	}
	r.kv[key] = value
	return nil
}

// Get returns the value for key and whether it was present.
func (r *Record) Get(key string) (string, bool) {
	v, ok := r.kv[key]
	return v, ok
}

// Keys returns keys in assignment order.
func (r *Record) Keys() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Format renders the record as one KEY=VALUE assignment per line, in
// assignment order.
func (r *Record) Format() string {
	var b strings.Builder
	for _, k := range r.order {
		fmt.Fprintf(&b, "%s=%s\n", k, r.kv[k])
	}
	return b.String()
}

// Parse reads a record from its on-disk KEY=VALUE text form. Lines with
// no '=' are skipped rather than rejected, and keys are kept without
// validation, matching the leniency of the local Find/Show path.
func Parse(data []byte) *Record {
	return parseRecord(data)
}

func parseRecord(data []byte) *Record {
	r := NewRecord()
	sc := bufio.NewScanner(strings.NewReader(string(data)))
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		idx := strings.IndexByte(line, '=')
		if idx < 0 {
			continue
		}
		key, value := line[:idx], line[idx+1:]
		if _, exists := r.kv[key]; !exists {
			r.order = append(r.order, key)
		}
		r.kv[key] = value
	}
	return r
}

func metadataPath(snapshot string) string {
	return filepath.Join(snapshot, FileName)
}

// Write atomically creates .metadata inside snapshot: write to a sibling
// temp file, then rename (spec.md 4.E).
func Write(snapshot string, record *Record) error {
	path := metadataPath(snapshot)
	tmp := filepath.Join(snapshot, "."+FileName+".tmp."+uuid.NewString())
	if err := os.WriteFile(tmp, []byte(record.Format()), 0o644); err != nil {
		return errors.Annotatef(err, "writing temp metadata %q", tmp)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return errors.Annotatef(err, "publishing metadata %q", path)
	}
	logger.Debugf("wrote metadata for %q", snapshot)
	return nil
}

// Show reads and returns snapshot's record.
func Show(snapshot string) (*Record, error) {
	data, err := os.ReadFile(metadataPath(snapshot))
	if err != nil {
		return nil, errors.Annotatef(err, "reading metadata for %q", snapshot)
	}
	return parseRecord(data), nil
}

// Update reads the current record, replaces or appends key=value, and
// atomically republishes it.
func Update(snapshot, key, value string) error {
	if !tagKeyRE.MatchString(key) {
		return errs.NewInput("invalid metadata key %q: must match [A-Za-z0-9_]+", key)
	}
	record, err := Show(snapshot)
	if err != nil {
		return err
	}
	if err := record.Set(key, value); err != nil {
		return err
	}
	return Write(snapshot, record)
}

// Predicate is a single KEY=VALUE equality test, evaluated by exact line
// match against the record (spec.md 4.E).
type Predicate struct {
	Key   string
	Value string
}

func (p Predicate) matches(r *Record) bool {
	v, ok := r.Get(p.Key)
	return ok && v == p.Value
}

// Find lists snapshot directories under backupRoot whose record
// satisfies predicate. Snapshots with no .metadata are silently
// skipped.
func Find(backupRoot string, predicate Predicate) ([]string, error) {
	entries, err := os.ReadDir(backupRoot)
	if err != nil {
		return nil, errors.Annotatef(err, "listing backup root %q", backupRoot)
	}
	var matches []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		snap := filepath.Join(backupRoot, e.Name())
		record, err := Show(snap)
		if err != nil {
			continue
		}
		if predicate.matches(record) {
			matches = append(matches, snap)
		}
	}
	sort.Strings(matches)
	return matches, nil
}
