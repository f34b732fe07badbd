package filexfer

import (
	"bytes"
)

// ErrorPacket defines the ERROR packet.
//
// It also implements the error interface, so a session may return one directly.
type ErrorPacket struct {
	ErrorCode    ErrorCode
	ErrorMessage string
}

// NewErrorPacket returns an ErrorPacket carrying code, and the standard message for it.
func NewErrorPacket(code ErrorCode) *ErrorPacket {
	return &ErrorPacket{
		ErrorCode:    code,
		ErrorMessage: code.Error(),
	}
}

// Error makes ErrorPacket a distinct error type.
func (p *ErrorPacket) Error() string {
	if p.ErrorMessage == "" {
		return "tftp: " + p.ErrorCode.String()
	}

	return "tftp: " + p.ErrorCode.String() + ": " + p.ErrorMessage
}

// Is returns true if target is an ErrorCode with the same value as p.ErrorCode,
// or target is an ErrorPacket with the same code.
func (p *ErrorPacket) Is(target error) bool {
	switch target := target.(type) {
	case ErrorCode:
		return p.ErrorCode == target
	case *ErrorPacket:
		return p.ErrorCode == target.ErrorCode
	}

	return false
}

// Opcode returns OpcodeError.
func (p *ErrorPacket) Opcode() Opcode {
	return OpcodeError
}

// MarshalPacket returns p as a two-part binary encoding of p.
func (p *ErrorPacket) MarshalPacket() (header, payload []byte, err error) {
	// uint16(error code) + string(error message)
	buf := NewMarshalBuffer(OpcodeError, 2+len(p.ErrorMessage)+1)

	buf.AppendUint16(uint16(p.ErrorCode))
	buf.AppendString(p.ErrorMessage)

	return buf.Packet(nil)
}

// MarshalBinary returns p as the binary encoding of p.
func (p *ErrorPacket) MarshalBinary() ([]byte, error) {
	return ComposePacket(p.MarshalPacket())
}

// UnmarshalPacketBody unmarshals the packet body from the given Buffer.
// It is assumed that the uint16(opcode) has already been consumed.
//
// A missing terminator is tolerated, and no bytes at all yield an empty message.
func (p *ErrorPacket) UnmarshalPacketBody(buf *Buffer) error {
	code, err := buf.ConsumeUint16()
	if err != nil {
		return err
	}

	msg := buf.ConsumeRemaining()
	if i := bytes.IndexByte(msg, 0); i >= 0 {
		msg = msg[:i]
	}

	*p = ErrorPacket{
		ErrorCode:    ErrorCode(code),
		ErrorMessage: string(msg),
	}

	return nil
}

// UnmarshalBinary decodes a full ERROR packet, including its opcode, out of the given data.
func (p *ErrorPacket) UnmarshalBinary(data []byte) error {
	buf, err := newUnmarshalBuffer(data, OpcodeError)
	if err != nil {
		return err
	}

	return p.UnmarshalPacketBody(buf)
}

// OptionAckPacket defines the OACK packet.
//
// Defined in https://tools.ietf.org/html/rfc2347#section-2
type OptionAckPacket struct {
	Options Options
}

// Opcode returns OpcodeOptionAck.
func (p *OptionAckPacket) Opcode() Opcode {
	return OpcodeOptionAck
}

// MarshalPacket returns p as a two-part binary encoding of p.
//
// An OACK without any option would be shorter than MinPacketSize,
// and so it returns ErrEmptyOptionAck.
func (p *OptionAckPacket) MarshalPacket() (header, payload []byte, err error) {
	if !p.Options.Negotiating() {
		return nil, nil, ErrEmptyOptionAck
	}

	buf := NewMarshalBuffer(OpcodeOptionAck, p.Options.Len())

	p.Options.MarshalInto(buf)

	return buf.Packet(nil)
}

// MarshalBinary returns p as the binary encoding of p.
func (p *OptionAckPacket) MarshalBinary() ([]byte, error) {
	return ComposePacket(p.MarshalPacket())
}

// UnmarshalPacketBody unmarshals the packet body from the given Buffer.
// It is assumed that the uint16(opcode) has already been consumed.
func (p *OptionAckPacket) UnmarshalPacketBody(buf *Buffer) error {
	*p = OptionAckPacket{}

	return p.Options.UnmarshalFields(buf.ConsumeFields())
}

// UnmarshalBinary decodes a full OACK packet, including its opcode, out of the given data.
func (p *OptionAckPacket) UnmarshalBinary(data []byte) error {
	buf, err := newUnmarshalBuffer(data, OpcodeOptionAck)
	if err != nil {
		return err
	}

	return p.UnmarshalPacketBody(buf)
}
