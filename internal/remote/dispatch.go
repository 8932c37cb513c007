package remote

import (
	"fmt"
	"os"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/juju/errors"

	"github.com/Open-Technology-Foundation/checkpoint/internal/errs"
	"github.com/Open-Technology-Foundation/checkpoint/internal/exclude"
	"github.com/Open-Technology-Foundation/checkpoint/internal/retention"
)

// Dispatcher mirrors the core verbs against one remote backup root over
// an established Transport (spec.md 4.J).
type Dispatcher struct {
	transport *Transport
	root      string
}

// NewDispatcher binds a Transport to the remote backup root path.
func NewDispatcher(t *Transport, root string) (*Dispatcher, error) {
	if err := validatePath(root); err != nil {
		return nil, err
	}
	return &Dispatcher{transport: t, root: root}, nil
}

// Probe runs the probe class of call: `test -d <root>`.
func (d *Dispatcher) Probe() (bool, error) {
	_, err := d.transport.Run(fmt.Sprintf("test -d %s", quoteArg(d.root)))
	if err != nil {
		if errs.IsRemote(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// EnsureRoot runs the probe class's companion mkdir: `mkdir -p <root>`.
func (d *Dispatcher) EnsureRoot() error {
	_, err := d.transport.Run(fmt.Sprintf("mkdir -p %s", quoteArg(d.root)))
	return err
}

// List asks the far end to enumerate matching snapshot directories and
// returns parsed names, sorted ascending. Absence yields an empty list,
// never an error (spec.md 4.J).
func (d *Dispatcher) List() ([]string, error) {
	out, err := d.transport.Run(fmt.Sprintf("ls -1 %s 2>/dev/null || true", quoteArg(d.root)))
	if err != nil {
		return nil, nil
	}
	var names []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && retention.NameRE.MatchString(line) {
			names = append(names, line)
		}
	}
	sort.Strings(names)
	return names, nil
}

// remoteLockAcquire mirrors spec.md 4.D's protocol over the transport:
// mkdir is attempted via SFTP (atomic on the remote filesystem, which
// is the authority per spec.md 4.J), pid liveness is checked with a
// remote `kill -0` probe.
func (d *Dispatcher) remoteLockAcquire(timeout time.Duration) (string, error) {
	lockDir := path.Join(d.root, ".checkpoint.lock")
	deadline := timeout

	for {
		if err := d.transport.SFTP().Mkdir(lockDir); err == nil {
			pidFile := path.Join(lockDir, "pid")
			tsFile := path.Join(lockDir, "timestamp")
			if werr := writeRemoteFile(d.transport, pidFile, fmt.Sprintf("%d", os.Getpid())); werr != nil {
				return "", werr
			}
			if werr := writeRemoteFile(d.transport, tsFile, fmt.Sprintf("%d", time.Now().Unix())); werr != nil {
				return "", werr
			}
			return lockDir, nil
		}

		pidStr, rerr := d.transport.Run(fmt.Sprintf("cat %s 2>/dev/null", quoteArg(path.Join(lockDir, "pid"))))
		pidStr = strings.TrimSpace(pidStr)
		alive := false
		if rerr == nil && pidStr != "" {
			if _, err := strconv.Atoi(pidStr); err == nil {
				if _, err := d.transport.Run(fmt.Sprintf("kill -0 %s", quoteArg(pidStr))); err == nil {
					alive = true
				}
			}
		}
		if !alive {
			logger.Warningf("reclaiming stale remote lock %q", lockDir)
			d.transport.Run(fmt.Sprintf("rm -rf %s", quoteArg(lockDir)))
			continue
		}

		if deadline <= 0 {
			return "", errs.NewLockTimeout("timed out waiting for remote lock on %q", d.root)
		}
		time.Sleep(time.Second)
		deadline -= time.Second
	}
}

func (d *Dispatcher) remoteLockRelease(lockDir string) error {
	_, err := d.transport.Run(fmt.Sprintf("rm -rf %s", quoteArg(lockDir)))
	return err
}

func writeRemoteFile(t *Transport, remotePath, content string) error {
	f, err := t.SFTP().Create(remotePath)
	if err != nil {
		return errors.Annotatef(err, "creating remote file %q", remotePath)
	}
	defer f.Close()
	_, err = f.Write([]byte(content))
	return err
}

// CreateOptions configures a remote create verb.
type CreateOptions struct {
	Source          string
	Suffix          string
	ExcludePatterns []string
	LockTimeout     time.Duration
}

// Create mirrors spec.md 4.F's algorithm, but the stage, publish and
// rename happen on the far end (spec.md 4.J): the local tree is
// streamed into a remote .tmp.<token> via SFTP, then SFTP Rename
// commits it.
func (d *Dispatcher) Create(opts CreateOptions) (string, error) {
	if err := d.EnsureRoot(); err != nil {
		return "", errors.Trace(err)
	}

	lockDir, err := d.remoteLockAcquire(opts.LockTimeout)
	if err != nil {
		return "", errors.Trace(err)
	}
	defer d.remoteLockRelease(lockDir)

	ts := time.Now().Format("20060102_150405")
	name := ts
	if opts.Suffix != "" {
		name = ts + "_" + sanitiseSuffix(opts.Suffix)
	}

	token := fmt.Sprintf("%d", time.Now().UnixNano())
	stage := path.Join(d.root, ".tmp."+token)
	if err := d.transport.SFTP().MkdirAll(stage); err != nil {
		return "", errs.NewEnvironment("creating remote stage %q: %v", stage, err)
	}

	matcher := exclude.New(opts.ExcludePatterns, opts.Source, d.root)
	if err := streamTree(d.transport, opts.Source, stage, matcher); err != nil {
		d.transport.Run(fmt.Sprintf("rm -rf %s", quoteArg(stage)))
		return "", errs.NewEnvironment("streaming tree to remote stage: %v", err)
	}

	dest := path.Join(d.root, name)
	if err := d.transport.SFTP().Rename(stage, dest); err != nil {
		d.transport.Run(fmt.Sprintf("rm -rf %s", quoteArg(stage)))
		return "", errs.NewPublishFailed("renaming remote stage to %q: %v", dest, err)
	}
	logger.Infof("published remote snapshot %q on %s", dest, d.transport.spec.Host)
	return name, nil
}

func sanitiseSuffix(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '.' || r == '_' || r == '-' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Retain runs the retention policy against the remote root by shelling
// out to a remote `rm -rf` per doomed snapshot, after enumerating
// locally-computed doomed names from List's result.
func (d *Dispatcher) Retain(mode retention.Mode) ([]string, error) {
	names, err := d.List()
	if err != nil {
		return nil, err
	}
	doomed := retention.Plan(names, mode, time.Now())
	for _, n := range doomed {
		if _, err := d.transport.Run(fmt.Sprintf("rm -rf %s", quoteArg(path.Join(d.root, n)))); err != nil {
			return nil, errors.Annotatef(err, "pruning remote snapshot %q", n)
		}
	}
	return doomed, nil
}
