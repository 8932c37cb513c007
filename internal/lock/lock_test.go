package lock_test

import (
	"os"
	"path/filepath"
	"strconv"
	stdtesting "testing"
	"time"

	"github.com/juju/clock"
	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/Open-Technology-Foundation/checkpoint/internal/errs"
	"github.com/Open-Technology-Foundation/checkpoint/internal/lock"
)

func TestPackage(t *stdtesting.T) {
	gc.TestingT(t)
}

type lockSuite struct {
	testing.IsolationSuite
}

var _ = gc.Suite(&lockSuite{})

func (s *lockSuite) TestAcquireReleaseRoundTrip(c *gc.C) {
	root := c.MkDir()

	h, err := lock.Acquire(root, time.Second, false, clock.WallClock)
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(h.Root(), gc.Equals, root)

	_, err = os.Stat(filepath.Join(root, lock.DirName, "pid"))
	c.Assert(err, jc.ErrorIsNil)

	c.Assert(h.Release(), jc.ErrorIsNil)
	_, err = os.Stat(filepath.Join(root, lock.DirName))
	c.Assert(os.IsNotExist(err), jc.IsTrue)
}

func (s *lockSuite) TestAcquireReclaimsStaleDeadPID(c *gc.C) {
	root := c.MkDir()
	dir := filepath.Join(root, lock.DirName)
	c.Assert(os.MkdirAll(dir, 0o755), jc.ErrorIsNil)
	// pid 999999 is exceedingly unlikely to be a live process.
	c.Assert(os.WriteFile(filepath.Join(dir, "pid"), []byte(strconv.Itoa(999999)), 0o644), jc.ErrorIsNil)
	c.Assert(os.WriteFile(filepath.Join(dir, "timestamp"), []byte("0"), 0o644), jc.ErrorIsNil)

	h, err := lock.Acquire(root, time.Second, false, clock.WallClock)
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(h.Release(), jc.ErrorIsNil)
}

func (s *lockSuite) TestForceTakesTheLockUnconditionally(c *gc.C) {
	root := c.MkDir()
	dir := filepath.Join(root, lock.DirName)
	c.Assert(os.MkdirAll(dir, 0o755), jc.ErrorIsNil)
	c.Assert(os.WriteFile(filepath.Join(dir, "pid"), []byte(strconv.Itoa(os.Getpid())), 0o644), jc.ErrorIsNil)

	h, err := lock.Acquire(root, time.Second, true, clock.WallClock)
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(h.Release(), jc.ErrorIsNil)
}

func (s *lockSuite) TestAcquireTimesOutAgainstALiveHolder(c *gc.C) {
	root := c.MkDir()
	dir := filepath.Join(root, lock.DirName)
	c.Assert(os.MkdirAll(dir, 0o755), jc.ErrorIsNil)
	c.Assert(os.WriteFile(filepath.Join(dir, "pid"), []byte(strconv.Itoa(os.Getpid())), 0o644), jc.ErrorIsNil)

	_, err := lock.Acquire(root, 0, false, clock.WallClock)
	c.Assert(errs.IsLockTimeout(err), jc.IsTrue)
}

func (s *lockSuite) TestForceReleaseRemovesLockRegardlessOfHolder(c *gc.C) {
	root := c.MkDir()
	dir := filepath.Join(root, lock.DirName)
	c.Assert(os.MkdirAll(dir, 0o755), jc.ErrorIsNil)

	c.Assert(lock.ForceRelease(root), jc.ErrorIsNil)
	_, err := os.Stat(dir)
	c.Assert(os.IsNotExist(err), jc.IsTrue)
}
