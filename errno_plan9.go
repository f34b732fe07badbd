package tftp

import (
	"io/fs"
	"syscall"

	"github.com/pkg/errors"

	tftpfx "github.com/pkg/tftp/encoding/tftp/filexfer"
)

// translateErrorString translates a syscall error string to a TFTP error code.
func translateErrorString(errno syscall.ErrorString) (tftpfx.ErrorCode, bool) {
	switch errno {
	case syscall.ENOENT:
		return tftpfx.ErrorCodeFileNotFound, true
	case syscall.EACCES, syscall.EPERM:
		return tftpfx.ErrorCodeAccessViolation, true
	case syscall.EEXIST:
		return tftpfx.ErrorCodeFileExists, true
	}

	return 0, false
}

func syscallErrorAsCode(err error) (tftpfx.ErrorCode, bool) {
	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		err = pathErr.Err // Replace the error with the underlying error.
	}

	var errno syscall.ErrorString
	if errors.As(err, &errno) {
		return translateErrorString(errno)
	}

	return 0, false
}
