//go:build !plan9
// +build !plan9

package tftp

import (
	"io/fs"
	"os"
	"syscall"

	"github.com/pkg/errors"

	tftpfx "github.com/pkg/tftp/encoding/tftp/filexfer"
)

// translateErrno translates a syscall error number to a TFTP error code.
func translateErrno(errno syscall.Errno) (tftpfx.ErrorCode, bool) {
	switch errno {
	case syscall.ENOENT:
		return tftpfx.ErrorCodeFileNotFound, true
	case syscall.EACCES, syscall.EPERM:
		return tftpfx.ErrorCodeAccessViolation, true
	case syscall.EEXIST:
		return tftpfx.ErrorCodeFileExists, true
	case syscall.ENOSPC, syscall.EDQUOT:
		return tftpfx.ErrorCodeOutOfSpace, true
	}

	return 0, false
}

func syscallErrorAsCode(err error) (tftpfx.ErrorCode, bool) {
	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		err = pathErr.Err // Replace the error with the underlying error.
	}

	var linkErr *os.LinkError
	if errors.As(err, &linkErr) {
		err = linkErr.Err
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		return translateErrno(errno)
	}

	return 0, false
}
