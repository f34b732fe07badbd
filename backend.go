package tftp

import (
	"io"
	"path"
	"strings"

	"github.com/pkg/errors"

	tftpfx "github.com/pkg/tftp/encoding/tftp/filexfer"
)

// ReadFile is a file opened for a read transfer.
type ReadFile interface {
	io.ReadCloser

	// Size returns the length of the file in bytes, as reported for the tsize option.
	Size() int64
}

// StorageBackend is the collaborator sessions use to reach file contents.
//
// Names are passed exactly as the client sent them,
// each backend is responsible for confining them to its own root.
// Each opened file is used by a single session goroutine.
type StorageBackend interface {
	OpenRead(name string) (ReadFile, error)
	Exists(name string) (bool, error)
	Create(name string) error

	// OpenWrite opens an existing file for writing, truncating it.
	OpenWrite(name string) (io.WriteCloser, error)

	// FreeSpace returns the number of bytes that may still be written next to name.
	FreeSpace(name string) (int64, error)
}

// TranslatePath takes in a root prefix and a client supplied file name,
// and returns a cleaned and validated slash separated path below prefix.
// It will resolve things like '..' while disallowing the prefix to be escaped.
// Backslashes are treated as separators, as some clients send them.
func TranslatePath(prefix, name string) (string, error) {
	clean := path.Clean("/" + strings.ReplaceAll(name, `\`, "/"))
	if clean == "/" {
		return "", errors.Wrapf(tftpfx.ErrorCodeAccessViolation, "invalid file name %q", name)
	}

	return strings.TrimLeft(path.Join("/", prefix, clean), "/"), nil
}
