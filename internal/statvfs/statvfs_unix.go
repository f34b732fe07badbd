//go:build darwin || freebsd || linux

package statvfs

import (
	"golang.org/x/sys/unix"
)

func freeSpace(path string) (int64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, err
	}

	return int64(stat.Bavail) * int64(stat.Bsize), nil
}
