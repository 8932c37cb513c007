//go:build !windows

package platform

import (
	"os"
	"os/user"
	"strconv"
	"syscall"

	"github.com/juju/errors"
)

// GetOwner returns the (user, group) name pair that owns path. No
// third-party library in the retrieval pack resolves path ownership
// portably (gopsutil exposes process and host info, not filesystem
// owner bits), so this uses the syscall.Stat_t + os/user combination
// that is the idiomatic stdlib answer on unix.
func GetOwner(path string) (user_, group string, err error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", "", errors.Annotatef(err, "statting %q", path)
	}
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return "", "", errors.Errorf("unsupported stat result for %q", path)
	}

	uid := strconv.FormatUint(uint64(stat.Uid), 10)
	gid := strconv.FormatUint(uint64(stat.Gid), 10)

	uname := uid
	if u, err := user.LookupId(uid); err == nil {
		uname = u.Username
	}
	gname := gid
	if g, err := user.LookupGroupId(gid); err == nil {
		gname = g.Name
	}
	return uname, gname, nil
}
