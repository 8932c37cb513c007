// Package lock implements the crash-safe, PID-verified directory lock
// described in spec.md 4.D. Mutual exclusion across processes is the
// atomic mkdir of root/.checkpoint.lock; github.com/juju/mutex/v2 layers
// an in-process guard on top so a single process can never recursively
// acquire the same root (spec.md 5: "the lock itself is reentrant-unsafe").
package lock

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/loggo"
	mutexpkg "github.com/juju/mutex/v2"

	"github.com/Open-Technology-Foundation/checkpoint/internal/errs"
)

var logger = loggo.GetLogger("checkpoint.lock")

// DirName is the lock directory's fixed name inside a backup root.
const DirName = ".checkpoint.lock"

// Handle represents a held lock, bound to the root it was acquired on.
type Handle struct {
	root     string
	dir      string
	pid      int
	releaser mutexpkg.Releaser
}

// Root returns the backup root this handle locks.
func (h *Handle) Root() string { return h.root }

// Acquire implements the protocol in spec.md 4.D. timeout bounds how
// long to wait out a LIVE-OTHER holder; force short-circuits by
// removing any existing lock directory before the first attempt.
func Acquire(root string, timeout time.Duration, force bool, clk clock.Clock) (*Handle, error) {
	if clk == nil {
		clk = clock.WallClock
	}
	dir := filepath.Join(root, DirName)

	releaser, err := mutexpkg.Acquire(mutexpkg.Spec{
		Name:    mutexName(root),
		Clock:   clk,
		Delay:   10 * time.Millisecond,
		Timeout: 0,
	})
	if err != nil {
		return nil, errors.Annotatef(err, "lock on %q is already held within this process", root)
	}

	if force {
		logger.Warningf("force-unlocking %q before acquisition", dir)
		if err := os.RemoveAll(dir); err != nil && !os.IsNotExist(err) {
			releaser.Release()
			return nil, errors.Annotatef(err, "force-removing existing lock at %q", dir)
		}
	}

	deadline := timeout
	for {
		if err := os.Mkdir(dir, 0o755); err == nil {
			pid := os.Getpid()
			if err := writeLockFiles(dir, pid, clk.Now()); err != nil {
				os.RemoveAll(dir)
				releaser.Release()
				return nil, errors.Annotatef(err, "writing lock metadata in %q", dir)
			}
			logger.Infof("acquired lock %q (pid %d)", dir, pid)
			return &Handle{root: root, dir: dir, pid: pid, releaser: releaser}, nil
		} else if !os.IsExist(err) {
			releaser.Release()
			return nil, errors.Annotatef(err, "creating lock directory %q", dir)
		}

		heldPID, readErr := readPID(dir)
		if readErr != nil || !processRunning(heldPID) {
			logger.Warningf("reclaiming stale lock %q (pid %d)", dir, heldPID)
			if err := os.RemoveAll(dir); err != nil && !os.IsNotExist(err) {
				releaser.Release()
				return nil, errors.Annotatef(err, "removing stale lock %q", dir)
			}
			continue
		}

		if deadline <= 0 {
			releaser.Release()
			return nil, errs.NewLockTimeout("timed out waiting for lock on %q (held by pid %d)", root, heldPID)
		}
		<-clk.After(time.Second)
		deadline -= time.Second
	}
}

// Release is idempotent: it only removes the lock directory when its
// recorded pid still matches the holder this handle acquired as, and
// always releases the in-process guard.
func (h *Handle) Release() error {
	defer h.releaser.Release()

	heldPID, err := readPID(h.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Annotatef(err, "reading lock pid from %q", h.dir)
	}
	if heldPID != h.pid {
		return errs.NewLockStolen("lock %q was held by pid %d, not %d", h.dir, heldPID, h.pid)
	}
	if err := os.RemoveAll(h.dir); err != nil && !os.IsNotExist(err) {
		return errors.Annotatef(err, "removing lock directory %q", h.dir)
	}
	logger.Infof("released lock %q (pid %d)", h.dir, h.pid)
	return nil
}

// ForceRelease deletes root's lock directory unconditionally, for the
// --force-unlock verb (spec.md 6).
func ForceRelease(root string) error {
	dir := filepath.Join(root, DirName)
	if err := os.RemoveAll(dir); err != nil && !os.IsNotExist(err) {
		return errors.Annotatef(err, "force-removing lock directory %q", dir)
	}
	logger.Infof("force-released lock %q", dir)
	return nil
}

func writeLockFiles(dir string, pid int, now time.Time) error {
	if err := os.WriteFile(filepath.Join(dir, "pid"), []byte(strconv.Itoa(pid)), 0o644); err != nil {
		return err
	}
	ts := strconv.FormatInt(now.Unix(), 10)
	return os.WriteFile(filepath.Join(dir, "timestamp"), []byte(ts), 0o644)
}

func readPID(dir string) (int, error) {
	data, err := os.ReadFile(filepath.Join(dir, "pid"))
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, errors.Annotatef(err, "malformed pid file in %q", dir)
	}
	return pid, nil
}

func mutexName(root string) string {
	h := fmt.Sprintf("checkpoint-%x", []byte(root))
	if len(h) > 40 {
		h = h[:40]
	}
	return h
}
