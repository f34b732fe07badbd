package filexfer

import (
	"fmt"
)

// Opcode defines the various TFTP packet types.
type Opcode uint16

// Opcodes from RFC 1350 section 5, and RFC 2347 for OACK.
const (
	OpcodeReadRequest = Opcode(iota + 1)
	OpcodeWriteRequest
	OpcodeData
	OpcodeAck
	OpcodeError
	OpcodeOptionAck
)

func (f Opcode) String() string {
	switch f {
	case OpcodeReadRequest:
		return "RRQ"
	case OpcodeWriteRequest:
		return "WRQ"
	case OpcodeData:
		return "DATA"
	case OpcodeAck:
		return "ACK"
	case OpcodeError:
		return "ERROR"
	case OpcodeOptionAck:
		return "OACK"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint16(f))
	}
}
