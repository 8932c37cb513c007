package remote_test

import (
	stdtesting "testing"

	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/Open-Technology-Foundation/checkpoint/internal/errs"
	"github.com/Open-Technology-Foundation/checkpoint/internal/remote"
)

func TestPackage(t *stdtesting.T) {
	gc.TestingT(t)
}

type specSuite struct {
	testing.IsolationSuite
}

var _ = gc.Suite(&specSuite{})

func (s *specSuite) TestParseSpecAcceptsUserHostPath(c *gc.C) {
	spec, err := remote.ParseSpec("backup@host.example.com:/srv/backups/app")
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(spec.User, gc.Equals, "backup")
	c.Assert(spec.Host, gc.Equals, "host.example.com")
	c.Assert(spec.Path, gc.Equals, "/srv/backups/app")
}

func (s *specSuite) TestParseSpecRejectsMissingAtOrColon(c *gc.C) {
	_, err := remote.ParseSpec("no-at-sign")
	c.Assert(errs.IsInput(err), jc.IsTrue)

	_, err = remote.ParseSpec("user@hostnocolon")
	c.Assert(errs.IsInput(err), jc.IsTrue)
}

func (s *specSuite) TestParseSpecRejectsTraversal(c *gc.C) {
	_, err := remote.ParseSpec("user@host:/srv/../etc")
	c.Assert(errs.IsInput(err), jc.IsTrue)
}

func (s *specSuite) TestParseSpecRejectsDisallowedCharacters(c *gc.C) {
	_, err := remote.ParseSpec("user@host:/srv/$(rm -rf /)")
	c.Assert(errs.IsInput(err), jc.IsTrue)
}

func (s *specSuite) TestValidateCheckpointID(c *gc.C) {
	c.Assert(remote.ValidateCheckpointID("20260101_120000"), jc.ErrorIsNil)
	c.Assert(remote.ValidateCheckpointID("20260101_120000_nightly"), jc.ErrorIsNil)
	c.Assert(errs.IsInput(remote.ValidateCheckpointID("../etc/passwd")), jc.IsTrue)
}

func (s *specSuite) TestValidateTimeout(c *gc.C) {
	c.Assert(remote.ValidateTimeout(30), jc.ErrorIsNil)
	c.Assert(errs.IsInput(remote.ValidateTimeout(0)), jc.IsTrue)
	c.Assert(errs.IsInput(remote.ValidateTimeout(-5)), jc.IsTrue)
}
