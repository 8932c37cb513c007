package retention_test

import (
	"os"
	"path/filepath"
	stdtesting "testing"
	"time"

	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/Open-Technology-Foundation/checkpoint/internal/retention"
)

func TestPackage(t *stdtesting.T) {
	gc.TestingT(t)
}

type retentionSuite struct {
	testing.IsolationSuite
}

var _ = gc.Suite(&retentionSuite{})

func (s *retentionSuite) TestListFiltersNonSnapshotEntries(c *gc.C) {
	root := c.MkDir()
	mkdirs(c, root, "20260101_120000", "20260102_120000", "not-a-snapshot", "20260103_120000_nightly")
	mkfile(c, filepath.Join(root, "README.md"))

	names, err := retention.List(root)
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(names, gc.DeepEquals, []string{
		"20260101_120000",
		"20260102_120000",
		"20260103_120000_nightly",
	})
}

func (s *retentionSuite) TestPlanKeepCount(c *gc.C) {
	names := []string{"20260101_120000", "20260102_120000", "20260103_120000", "20260104_120000"}

	doomed := retention.Plan(names, retention.KeepN(2), time.Now())
	c.Assert(doomed, gc.DeepEquals, []string{"20260101_120000", "20260102_120000"})

	c.Assert(retention.Plan(names, retention.KeepN(10), time.Now()), gc.HasLen, 0)
	c.Assert(retention.Plan(names, retention.KeepN(0), time.Now()), gc.DeepEquals, names)
}

func (s *retentionSuite) TestPlanMaxAgeNeverPrunesTheOnlySurvivor(c *gc.C) {
	now := time.Date(2026, 8, 3, 0, 0, 0, 0, time.Local)
	names := []string{"20260101_120000", "20260102_120000"}

	doomed := retention.Plan(names, retention.MaxAgeDays(1), now)
	c.Assert(doomed, gc.DeepEquals, []string{"20260101_120000"})
}

func (s *retentionSuite) TestApplyRemovesDoomedSnapshots(c *gc.C) {
	root := c.MkDir()
	mkdirs(c, root, "20260101_120000", "20260102_120000", "20260103_120000")

	removed, err := retention.Apply(root, retention.KeepN(1))
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(removed, gc.DeepEquals, []string{"20260101_120000", "20260102_120000"})

	remaining, err := retention.List(root)
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(remaining, gc.DeepEquals, []string{"20260103_120000"})
}

func mkdirs(c *gc.C, root string, names ...string) {
	for _, n := range names {
		c.Assert(os.Mkdir(filepath.Join(root, n), 0o755), jc.ErrorIsNil)
	}
}

func mkfile(c *gc.C, path string) {
	c.Assert(os.WriteFile(path, []byte("x"), 0o644), jc.ErrorIsNil)
}
