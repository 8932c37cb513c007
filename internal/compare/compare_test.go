package compare_test

import (
	"os"
	"path/filepath"
	stdtesting "testing"

	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/Open-Technology-Foundation/checkpoint/internal/compare"
	"github.com/Open-Technology-Foundation/checkpoint/internal/errs"
)

func TestPackage(t *stdtesting.T) {
	gc.TestingT(t)
}

type compareSuite struct {
	testing.IsolationSuite
}

var _ = gc.Suite(&compareSuite{})

func (s *compareSuite) TestLiveClassifiesIdenticalDifferingAndOneSided(c *gc.C) {
	snap := c.MkDir()
	live := c.MkDir()

	write(c, snap, "same.txt", "same")
	write(c, live, "same.txt", "same")

	write(c, snap, "changed.txt", "before")
	write(c, live, "changed.txt", "after")

	write(c, snap, "only-in-snapshot.txt", "x")
	write(c, live, "only-in-live.txt", "y")

	report, err := compare.Live(snap, live, compare.Options{})
	c.Assert(err, jc.ErrorIsNil)

	byPath := map[string]compare.Class{}
	for _, e := range report.Entries {
		byPath[e.Path] = e.Class
	}

	c.Assert(byPath["same.txt"], gc.Equals, compare.Identical)
	c.Assert(byPath["changed.txt"], gc.Equals, compare.Differs)
	c.Assert(byPath["only-in-snapshot.txt"], gc.Equals, compare.OnlyInFirst)
	c.Assert(byPath["only-in-live.txt"], gc.Equals, compare.OnlyInSecond)
}

func (s *compareSuite) TestPatternsRestrictTraversal(c *gc.C) {
	snap := c.MkDir()
	live := c.MkDir()
	write(c, snap, "keep.log", "a")
	write(c, live, "keep.log", "b")
	write(c, snap, "ignore.txt", "a")
	write(c, live, "ignore.txt", "b")

	report, err := compare.Live(snap, live, compare.Options{Patterns: []string{"*.log"}})
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(report.Entries, gc.HasLen, 1)
	c.Assert(report.Entries[0].Path, gc.Equals, "keep.log")
}

func (s *compareSuite) TestUnreadableSubdirectoryIsInaccessibleNotDropped(c *gc.C) {
	if os.Geteuid() == 0 {
		c.Skip("permission bits don't block root")
	}
	snap := c.MkDir()
	live := c.MkDir()

	write(c, snap, "ok.txt", "fine")
	write(c, live, "ok.txt", "fine")

	locked := filepath.Join(live, "locked")
	c.Assert(os.Mkdir(locked, 0o755), jc.ErrorIsNil)
	write(c, locked, "secret.txt", "x")
	c.Assert(os.Chmod(locked, 0o000), jc.ErrorIsNil)
	s.AddCleanup(func(*gc.C) { os.Chmod(locked, 0o755) })

	report, err := compare.Live(snap, live, compare.Options{})
	c.Assert(errs.IsPartialComparison(err), jc.IsTrue)

	byPath := map[string]compare.Class{}
	for _, e := range report.Entries {
		byPath[e.Path] = e.Class
	}
	c.Assert(byPath["locked"], gc.Equals, compare.Inaccessible)
	c.Assert(report.Errors, gc.Not(gc.HasLen), 0)
}

func write(c *gc.C, dir, name, content string) {
	c.Assert(os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644), jc.ErrorIsNil)
}
