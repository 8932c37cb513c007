package snapshot_test

import (
	"os"
	"path/filepath"
	stdtesting "testing"

	"github.com/juju/clock"
	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/Open-Technology-Foundation/checkpoint/internal/checksum"
	"github.com/Open-Technology-Foundation/checkpoint/internal/config"
	"github.com/Open-Technology-Foundation/checkpoint/internal/metadata"
	"github.com/Open-Technology-Foundation/checkpoint/internal/snapshot"
)

func TestPackage(t *stdtesting.T) {
	gc.TestingT(t)
}

type snapshotSuite struct {
	testing.IsolationSuite
}

var _ = gc.Suite(&snapshotSuite{})

func (s *snapshotSuite) TestCreatePublishesAndRecordsMetadata(c *gc.C) {
	source := c.MkDir()
	root := c.MkDir()
	c.Assert(os.WriteFile(filepath.Join(source, "a.txt"), []byte("hello"), 0o644), jc.ErrorIsNil)
	c.Assert(os.Mkdir(filepath.Join(source, "sub"), 0o755), jc.ErrorIsNil)
	c.Assert(os.WriteFile(filepath.Join(source, "sub", "b.txt"), []byte("world"), 0o644), jc.ErrorIsNil)

	name, err := snapshot.Create(source, root, snapshot.Options{
		Description: "first",
		Hardlink:    true,
		Checksum:    checksum.SHA256,
	}, config.Default(), clock.WallClock)
	c.Assert(err, jc.ErrorIsNil)

	published := filepath.Join(root, name)
	data, err := os.ReadFile(filepath.Join(published, "a.txt"))
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(string(data), gc.Equals, "hello")

	record, err := metadata.Show(published)
	c.Assert(err, jc.ErrorIsNil)
	desc, _ := record.Get(metadata.KeyDescription)
	c.Assert(desc, gc.Equals, "first")
	src, _ := record.Get(metadata.KeySource)
	c.Assert(src, gc.Equals, source)
}

func (s *snapshotSuite) TestCreateHardlinksUnchangedFilesAgainstPrior(c *gc.C) {
	source := c.MkDir()
	root := c.MkDir()
	c.Assert(os.WriteFile(filepath.Join(source, "a.txt"), []byte("hello"), 0o644), jc.ErrorIsNil)

	first, err := snapshot.Create(source, root, snapshot.Options{Hardlink: true, Checksum: checksum.SHA256}, config.Default(), clock.WallClock)
	c.Assert(err, jc.ErrorIsNil)

	second, err := snapshot.Create(source, root, snapshot.Options{Hardlink: true, Checksum: checksum.SHA256}, config.Default(), clock.WallClock)
	c.Assert(err, jc.ErrorIsNil)

	firstInfo, err := os.Stat(filepath.Join(root, first, "a.txt"))
	c.Assert(err, jc.ErrorIsNil)
	secondInfo, err := os.Stat(filepath.Join(root, second, "a.txt"))
	c.Assert(err, jc.ErrorIsNil)

	c.Assert(os.SameFile(firstInfo, secondInfo), jc.IsTrue)
}

func (s *snapshotSuite) TestCreateExcludesDefaultPatterns(c *gc.C) {
	source := c.MkDir()
	root := c.MkDir()
	c.Assert(os.Mkdir(filepath.Join(source, "tmp"), 0o755), jc.ErrorIsNil)
	c.Assert(os.WriteFile(filepath.Join(source, "tmp", "scratch"), []byte("x"), 0o644), jc.ErrorIsNil)
	c.Assert(os.WriteFile(filepath.Join(source, "keep.txt"), []byte("x"), 0o644), jc.ErrorIsNil)

	name, err := snapshot.Create(source, root, snapshot.Options{Checksum: checksum.SHA256}, config.Default(), clock.WallClock)
	c.Assert(err, jc.ErrorIsNil)

	_, err = os.Stat(filepath.Join(root, name, "tmp"))
	c.Assert(os.IsNotExist(err), jc.IsTrue)
	_, err = os.Stat(filepath.Join(root, name, "keep.txt"))
	c.Assert(err, jc.ErrorIsNil)
}

func (s *snapshotSuite) TestVerifyDetectsDrift(c *gc.C) {
	source := c.MkDir()
	root := c.MkDir()
	c.Assert(os.WriteFile(filepath.Join(source, "a.txt"), []byte("hello"), 0o644), jc.ErrorIsNil)

	name, err := snapshot.Create(source, root, snapshot.Options{Checksum: checksum.SHA256}, config.Default(), clock.WallClock)
	c.Assert(err, jc.ErrorIsNil)

	c.Assert(os.WriteFile(filepath.Join(source, "a.txt"), []byte("changed"), 0o644), jc.ErrorIsNil)

	err = snapshot.Verify(filepath.Join(root, name), source, 100, checksum.New(checksum.SHA256))
	c.Assert(err, gc.NotNil)
}
