package metadata_test

import (
	"os"
	"path/filepath"
	stdtesting "testing"

	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/Open-Technology-Foundation/checkpoint/internal/metadata"
)

func TestPackage(t *stdtesting.T) {
	gc.TestingT(t)
}

type metadataSuite struct {
	testing.IsolationSuite
}

var _ = gc.Suite(&metadataSuite{})

func (s *metadataSuite) TestSetRejectsInvalidKey(c *gc.C) {
	r := metadata.NewRecord()
	err := r.Set("bad key", "v")
	c.Assert(err, gc.ErrorMatches, `invalid metadata key "bad key".*`)
}

func (s *metadataSuite) TestSetIsLastWriteWinsButPreservesOrder(c *gc.C) {
	r := metadata.NewRecord()
	c.Assert(r.Set("A", "1"), jc.ErrorIsNil)
	c.Assert(r.Set("B", "2"), jc.ErrorIsNil)
	c.Assert(r.Set("A", "3"), jc.ErrorIsNil)

	c.Assert(r.Keys(), gc.DeepEquals, []string{"A", "B"})
	v, ok := r.Get("A")
	c.Assert(ok, jc.IsTrue)
	c.Assert(v, gc.Equals, "3")
}

func (s *metadataSuite) TestFormatParseRoundTrip(c *gc.C) {
	r := metadata.NewRecord()
	c.Assert(r.Set(metadata.KeyDescription, "pre-migration"), jc.ErrorIsNil)
	c.Assert(r.Set(metadata.KeyHost, "db1"), jc.ErrorIsNil)

	parsed := metadata.Parse([]byte(r.Format()))
	c.Assert(parsed.Keys(), gc.DeepEquals, r.Keys())
	v, ok := parsed.Get(metadata.KeyDescription)
	c.Assert(ok, jc.IsTrue)
	c.Assert(v, gc.Equals, "pre-migration")
}

func (s *metadataSuite) TestWriteShowUpdate(c *gc.C) {
	dir := c.MkDir()
	r := metadata.NewRecord()
	c.Assert(r.Set(metadata.KeyDescription, "first"), jc.ErrorIsNil)
	c.Assert(metadata.Write(dir, r), jc.ErrorIsNil)

	loaded, err := metadata.Show(dir)
	c.Assert(err, jc.ErrorIsNil)
	v, _ := loaded.Get(metadata.KeyDescription)
	c.Assert(v, gc.Equals, "first")

	c.Assert(metadata.Update(dir, metadata.KeyDescription, "second"), jc.ErrorIsNil)
	loaded, err = metadata.Show(dir)
	c.Assert(err, jc.ErrorIsNil)
	v, _ = loaded.Get(metadata.KeyDescription)
	c.Assert(v, gc.Equals, "second")
}

func (s *metadataSuite) TestFindMatchesPredicate(c *gc.C) {
	root := c.MkDir()

	makeSnapshot(c, root, "20260101_120000", metadata.KeyDescription, "nightly")
	makeSnapshot(c, root, "20260102_120000", metadata.KeyDescription, "pre-migration")
	makeSnapshot(c, root, "20260103_120000", metadata.KeyDescription, "nightly")

	matches, err := metadata.Find(root, metadata.Predicate{Key: metadata.KeyDescription, Value: "nightly"})
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(matches, gc.HasLen, 2)
}

func makeSnapshot(c *gc.C, root, name, key, value string) {
	dir := filepath.Join(root, name)
	c.Assert(os.MkdirAll(dir, 0o755), jc.ErrorIsNil)
	r := metadata.NewRecord()
	c.Assert(r.Set(key, value), jc.ErrorIsNil)
	c.Assert(metadata.Write(dir, r), jc.ErrorIsNil)
}
