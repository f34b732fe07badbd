package filexfer

import (
	"fmt"
)

// ErrorCode defines the TFTP error codes carried in ERROR packets.
type ErrorCode uint16

// Defines the various error codes.
const (
	// see RFC 1350, appendix I
	ErrorCodeUndefined = ErrorCode(iota)
	ErrorCodeFileNotFound
	ErrorCodeAccessViolation
	ErrorCodeOutOfSpace
	ErrorCodeIllegalOperation
	ErrorCodeUnknownTID
	ErrorCodeFileExists
	ErrorCodeNoSuchUser

	// see RFC 2347, termination of option negotiation
	ErrorCodeNegotiateFail
)

// Server specific error codes.
// These are not assigned by any RFC, so clients will usually just display the message.
const (
	ErrorCodeNoReadPermission = ErrorCode(iota + 20)
	ErrorCodeNoWritePermission
	ErrorCodeNoOverwritePermission
	ErrorCodeModeNotSupported
)

func (c ErrorCode) String() string {
	switch c {
	case ErrorCodeUndefined:
		return "UNDEFINED"
	case ErrorCodeFileNotFound:
		return "FILE_NOT_FOUND"
	case ErrorCodeAccessViolation:
		return "ACCESS_VIOLATION"
	case ErrorCodeOutOfSpace:
		return "OUT_OF_SPACE"
	case ErrorCodeIllegalOperation:
		return "ILLEGAL_OPERATION"
	case ErrorCodeUnknownTID:
		return "UNKNOWN_TID"
	case ErrorCodeFileExists:
		return "FILE_EXISTS"
	case ErrorCodeNoSuchUser:
		return "NO_SUCH_USER"
	case ErrorCodeNegotiateFail:
		return "NEGOTIATE_FAIL"
	case ErrorCodeNoReadPermission:
		return "NO_READ_PERMISSION"
	case ErrorCodeNoWritePermission:
		return "NO_WRITE_PERMISSION"
	case ErrorCodeNoOverwritePermission:
		return "NO_OVERWRITE_PERMISSION"
	case ErrorCodeModeNotSupported:
		return "MODE_NOT_SUPPORTED"
	default:
		return fmt.Sprintf("ERROR_CODE(%d)", uint16(c))
	}
}

// Error implements the error interface, returning the message sent with the code.
func (c ErrorCode) Error() string {
	switch c {
	case ErrorCodeUndefined:
		return "undefined"
	case ErrorCodeFileNotFound:
		return "file not found"
	case ErrorCodeAccessViolation:
		return "access violation"
	case ErrorCodeOutOfSpace:
		return "out of space"
	case ErrorCodeIllegalOperation:
		return "illegal operation"
	case ErrorCodeUnknownTID:
		return "unknown tid"
	case ErrorCodeFileExists:
		return "file exists"
	case ErrorCodeNoSuchUser:
		return "no such user"
	case ErrorCodeNegotiateFail:
		return "negotiate fail"
	case ErrorCodeNoReadPermission:
		return "no read permission"
	case ErrorCodeNoWritePermission:
		return "no write permission"
	case ErrorCodeNoOverwritePermission:
		return "no overwrite permission"
	case ErrorCodeModeNotSupported:
		return "mode not supported"
	default:
		return fmt.Sprintf("error code %d", uint16(c))
	}
}
