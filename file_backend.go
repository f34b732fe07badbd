package tftp

import (
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	tftpfx "github.com/pkg/tftp/encoding/tftp/filexfer"
	"github.com/pkg/tftp/internal/statvfs"
)

// FileBackend serves files from a directory of the local filesystem.
type FileBackend struct {
	root string
}

// NewFileBackend returns a FileBackend rooted at root.
// An empty root means the current working directory.
func NewFileBackend(root string) (*FileBackend, error) {
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		root = wd
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.Wrapf(err, "resolving root %q", root)
	}

	return &FileBackend{
		root: abs,
	}, nil
}

// Root returns the absolute directory the backend is confined to.
func (b *FileBackend) Root() string {
	return b.root
}

func (b *FileBackend) localPath(name string) (string, error) {
	p, err := TranslatePath("", name)
	if err != nil {
		return "", err
	}

	return filepath.Join(b.root, filepath.FromSlash(p)), nil
}

type localReadFile struct {
	*os.File
	size int64
}

func (f *localReadFile) Size() int64 {
	return f.size
}

// OpenRead opens a regular file for reading.
func (b *FileBackend) OpenRead(name string) (ReadFile, error) {
	p, err := b.localPath(name)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(p)
	if err != nil {
		return nil, err
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	if !fi.Mode().IsRegular() {
		f.Close()
		return nil, errors.Wrapf(tftpfx.ErrorCodeFileNotFound, "%s is not a regular file", name)
	}

	return &localReadFile{
		File: f,
		size: fi.Size(),
	}, nil
}

// Exists reports whether name is present, a failed lookup other than not-exist is returned as an error.
func (b *FileBackend) Exists(name string) (bool, error) {
	p, err := b.localPath(name)
	if err != nil {
		return false, err
	}

	if _, err := os.Stat(p); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}

	return true, nil
}

// Create creates an empty file, failing if it already exists.
func (b *FileBackend) Create(name string) error {
	p, err := b.localPath(name)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}

	return f.Close()
}

// OpenWrite opens an existing file for writing, truncating it.
func (b *FileBackend) OpenWrite(name string) (io.WriteCloser, error) {
	p, err := b.localPath(name)
	if err != nil {
		return nil, err
	}

	return os.OpenFile(p, os.O_WRONLY|os.O_TRUNC, 0)
}

// FreeSpace returns the space available on the filesystem holding the directory of name.
func (b *FileBackend) FreeSpace(name string) (int64, error) {
	p, err := b.localPath(name)
	if err != nil {
		return 0, err
	}

	return statvfs.FreeSpace(filepath.Dir(p))
}
