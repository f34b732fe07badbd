//go:build !(darwin || freebsd || linux || windows)

package statvfs

func freeSpace(path string) (int64, error) {
	return 0, ErrNotSupported
}
