// Package filexfer implements the wire encoding of the Trivial File Transfer Protocol
// as described in RFC 1350, with the option extension of RFC 2347
// and the blksize, timeout and tsize options of RFC 2348 and RFC 2349.
package filexfer

// Packet defines the behavior of a TFTP packet.
type Packet interface {
	// Opcode returns the opcode this packet is encoded with.
	Opcode() Opcode

	MarshalPacket() (header, payload []byte, err error)
	MarshalBinary() ([]byte, error)
	UnmarshalBinary(data []byte) error

	// UnmarshalPacketBody decodes the packet body from the given Buffer.
	// It is assumed that the uint16(opcode) has already been consumed.
	UnmarshalPacketBody(buf *Buffer) error
}

// ComposePacket converts returns from MarshalPacket into the returns expected by MarshalBinary.
func ComposePacket(header, payload []byte, err error) ([]byte, error) {
	return append(header, payload...), err
}

// Protocol constants.
const (
	// MinPacketSize is the smallest valid TFTP datagram: an opcode plus two more bytes.
	MinPacketSize = 4

	// ModeOctet is the only transfer mode this package's users are expected to serve.
	// Mode comparison is case-sensitive.
	ModeOctet = "octet"

	// DefaultBlockSize is the RFC 1350 block size, used when blksize is not negotiated.
	DefaultBlockSize = 512

	// MinBlockSize and MaxBlockSize bound the blksize option, see RFC 2348.
	MinBlockSize = 8
	MaxBlockSize = 65464

	// DefaultTimeout is the retransmission timeout in seconds when timeout is not negotiated.
	DefaultTimeout = 3

	// MinTimeout and MaxTimeout bound the timeout option in seconds, see RFC 2349.
	MinTimeout = 1
	MaxTimeout = 255
)

func newPacketFromOpcode(op Opcode) (Packet, error) {
	switch op {
	case OpcodeReadRequest:
		return new(ReadRequestPacket), nil
	case OpcodeWriteRequest:
		return new(WriteRequestPacket), nil
	case OpcodeData:
		return new(DataPacket), nil
	case OpcodeAck:
		return new(AckPacket), nil
	case OpcodeError:
		return new(ErrorPacket), nil
	case OpcodeOptionAck:
		return new(OptionAckPacket), nil
	default:
		return nil, &UnknownOpcodeError{Opcode: op}
	}
}

// Unmarshal decodes a single datagram into the Packet variant selected by its opcode.
//
// NOTE: To avoid extra allocations, the payload of a DataPacket aliases data.
func Unmarshal(data []byte) (Packet, error) {
	buf := NewBuffer(data)

	op, err := buf.PeekUint16()
	if err != nil || len(data) < MinPacketSize {
		return nil, ErrShortPacket
	}

	p, err := newPacketFromOpcode(Opcode(op))
	if err != nil {
		return nil, err
	}

	if err := p.UnmarshalBinary(data); err != nil {
		return nil, err
	}

	return p, nil
}

// Marshal returns the binary encoding of p.
func Marshal(p Packet) ([]byte, error) {
	return ComposePacket(p.MarshalPacket())
}

// newUnmarshalBuffer wraps data, and consumes the expected opcode from it.
func newUnmarshalBuffer(data []byte, want Opcode) (*Buffer, error) {
	if len(data) < MinPacketSize {
		return nil, ErrShortPacket
	}

	buf := NewBuffer(data)

	op, err := buf.ConsumeUint16()
	if err != nil {
		return nil, err
	}

	if Opcode(op) != want {
		return nil, &UnexpectedOpcodeError{Opcode: Opcode(op), Want: want}
	}

	return buf, nil
}
