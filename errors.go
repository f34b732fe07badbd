package tftp

import (
	"io/fs"

	"github.com/pkg/errors"

	tftpfx "github.com/pkg/tftp/encoding/tftp/filexfer"
)

// errorCodeFromError maps an error out of a StorageBackend to the code sent on the wire.
//
// An ErrorCode anywhere in the chain is used as is,
// so backends can choose the code a client sees by wrapping one.
// Anything unrecognized is reported as an access violation.
func errorCodeFromError(err error) tftpfx.ErrorCode {
	debug("errorCodeFromError: error is %T %#v", err, err)

	var code tftpfx.ErrorCode
	if errors.As(err, &code) {
		return code
	}

	var pkt *tftpfx.ErrorPacket
	if errors.As(err, &pkt) {
		return pkt.ErrorCode
	}

	if code, ok := syscallErrorAsCode(err); ok {
		return code
	}

	switch {
	case errors.Is(err, fs.ErrNotExist):
		return tftpfx.ErrorCodeFileNotFound
	case errors.Is(err, fs.ErrPermission):
		return tftpfx.ErrorCodeAccessViolation
	case errors.Is(err, fs.ErrExist):
		return tftpfx.ErrorCodeFileExists
	}

	return tftpfx.ErrorCodeAccessViolation
}

// errorPacketFromError converts err into the ERROR packet sent to the peer.
// Backend error text is never forwarded, only the standard message for the code.
func errorPacketFromError(err error) *tftpfx.ErrorPacket {
	var pkt *tftpfx.ErrorPacket
	if errors.As(err, &pkt) {
		return pkt
	}

	return tftpfx.NewErrorPacket(errorCodeFromError(err))
}
