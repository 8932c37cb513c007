//go:build windows

package platform

// RawOwner is a no-op on Windows; ownership preservation is a unix
// concept in checkpoint's production layout (spec.md section 6).
func RawOwner(path string) (uid, gid int, err error) {
	return -1, -1, nil
}

// Lchown is a no-op on Windows.
func Lchown(path string, uid, gid int) error {
	return nil
}
