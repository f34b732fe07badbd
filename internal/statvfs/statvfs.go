// Package statvfs reports the space available to unprivileged writers on a filesystem.
package statvfs

import (
	"errors"
)

// ErrNotSupported is returned on platforms without a free-space query.
var ErrNotSupported = errors.New("statvfs: not supported on this platform")

// FreeSpace returns the number of bytes available to an unprivileged user
// on the filesystem holding path.
func FreeSpace(path string) (int64, error) {
	return freeSpace(path)
}
