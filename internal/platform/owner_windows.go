//go:build windows

package platform

import (
	"os"

	"github.com/juju/errors"
)

// GetOwner on Windows returns the current user as both fields; Windows
// ACL-based ownership has no direct analogue to the POSIX (uid, gid)
// pair this layer exposes, and checkpoint's production target is the
// unix backup-root layout described in spec.md section 6.
func GetOwner(path string) (user_, group string, err error) {
	if _, err := os.Stat(path); err != nil {
		return "", "", errors.Annotatef(err, "statting %q", path)
	}
	name := os.Getenv("USERNAME")
	if name == "" {
		name = "unknown"
	}
	return name, name, nil
}
