package filexfer

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// Various encoding errors.
var (
	ErrShortPacket    = errors.New("packet too short")
	ErrMissingMode    = errors.New("request is missing the transfer mode")
	ErrEmptyOptionAck = errors.New("option acknowledgment carries no options")
)

// UnknownOpcodeError is returned when a datagram starts with an opcode outside 1–6.
type UnknownOpcodeError struct {
	Opcode Opcode
}

func (e *UnknownOpcodeError) Error() string {
	return fmt.Sprintf("unknown opcode: %d", uint16(e.Opcode))
}

// UnexpectedOpcodeError is returned when a packet is unmarshaled into the wrong variant.
type UnexpectedOpcodeError struct {
	Opcode Opcode
	Want   Opcode
}

func (e *UnexpectedOpcodeError) Error() string {
	return fmt.Sprintf("unexpected opcode %v, wanted %v", e.Opcode, e.Want)
}

// BadOptionError is returned when a recognized option carries a value that is not a decimal integer.
type BadOptionError struct {
	Name  string
	Value string
}

func (e *BadOptionError) Error() string {
	return fmt.Sprintf("bad value for option %q: %q", e.Name, e.Value)
}

// Buffer wraps up the various encoding details of the TFTP format.
//
// Integers are 16-bit in network byte order, strings are NUL-terminated netascii.
type Buffer struct {
	b   []byte
	off int
}

// NewBuffer creates and initializes a new Buffer using buf as its initial contents.
// The new Buffer takes ownership of buf, and the caller should not use buf after this call.
//
// In most cases, new(Buffer) (or just declaring a Buffer variable) is sufficient to initialize a Buffer.
func NewBuffer(buf []byte) *Buffer {
	return &Buffer{
		b: buf,
	}
}

// NewMarshalBuffer creates and initializes a new Buffer ready to start marshaling a Packet into.
// It prepopulates the 2-byte opcode,
// and preallocates enough space for an additional size bytes of data.
func NewMarshalBuffer(op Opcode, size int) *Buffer {
	buf := NewBuffer(make([]byte, 0, 2+size))

	buf.AppendUint16(uint16(op))

	return buf
}

// Bytes returns a slice of length b.Len() holding the unconsumed bytes in the Buffer.
// The slice is valid for use only until the next buffer modification
// (that is, only until the next call to an Append or Consume method).
func (b *Buffer) Bytes() []byte {
	return b.b[b.off:]
}

// Len returns the number of unconsumed bytes in the Buffer.
func (b *Buffer) Len() int {
	return len(b.b) - b.off
}

// Packet finalizes the packet started from NewMarshalBuffer.
// The header is the whole underlying slice, payload is passed through untouched.
func (b *Buffer) Packet(payload []byte) (header, payloadPassThru []byte, err error) {
	return b.b, payload, nil
}

// PeekUint16 returns the next uint16 in the Buffer without consuming it.
// If Buffer does not have enough data, it will return ErrShortPacket.
func (b *Buffer) PeekUint16() (uint16, error) {
	if b.Len() < 2 {
		return 0, ErrShortPacket
	}

	return binary.BigEndian.Uint16(b.b[b.off:]), nil
}

// ConsumeUint16 consumes a single uint16 from the Buffer, in network byte order (big-endian).
// If Buffer does not have enough data, it will return ErrShortPacket.
func (b *Buffer) ConsumeUint16() (uint16, error) {
	v, err := b.PeekUint16()
	if err != nil {
		return 0, err
	}

	b.off += 2
	return v, nil
}

// AppendUint16 appends single uint16 into the Buffer, in network byte order (big-endian).
func (b *Buffer) AppendUint16(v uint16) {
	b.b = append(b.b,
		byte(v>>8),
		byte(v>>0),
	)
}

// ConsumeString consumes a single NUL-terminated string from the Buffer.
// The terminator is consumed, but not returned.
// If the Buffer holds no NUL, it will return ErrShortPacket, and consume nothing.
func (b *Buffer) ConsumeString() (string, error) {
	i := bytes.IndexByte(b.b[b.off:], 0)
	if i < 0 {
		return "", ErrShortPacket
	}

	v := string(b.b[b.off : b.off+i])
	b.off += i + 1
	return v, nil
}

// AppendString appends a single string into the Buffer, followed by a NUL terminator.
func (b *Buffer) AppendString(v string) {
	b.b = append(b.b, v...)
	b.b = append(b.b, 0)
}

// ConsumeFields consumes the rest of the Buffer as a sequence of NUL-separated fields.
// A final empty field left by a trailing terminator is dropped.
func (b *Buffer) ConsumeFields() []string {
	rest := b.b[b.off:]
	b.off = len(b.b)

	if len(rest) == 0 {
		return nil
	}

	fields := bytes.Split(rest, []byte{0})
	if len(fields[len(fields)-1]) == 0 {
		fields = fields[:len(fields)-1]
	}

	strs := make([]string, len(fields))
	for i, f := range fields {
		strs[i] = string(f)
	}

	return strs
}

// ConsumeRemaining consumes all of the unconsumed bytes in the Buffer.
// The returned slice aliases the Buffer.
func (b *Buffer) ConsumeRemaining() []byte {
	v := b.b[b.off:]
	b.off = len(b.b)
	return v
}

// AppendBytes appends raw bytes into the Buffer.
func (b *Buffer) AppendBytes(v []byte) {
	b.b = append(b.b, v...)
}

// MarshalBinary returns the remaining binary data in the Buffer as a byte slice.
// This aliases the internal buffer, and so comes with the same caveats as Bytes().
//
// This function is a thin wrapper of Bytes() solely to implement encoding.BinaryMarshaler.
func (b *Buffer) MarshalBinary() ([]byte, error) {
	return b.Bytes(), nil
}

// UnmarshalBinary sets the internal buffer of b to be data, and zeros any internal offset.
// To avoid additional allocations,
// UnmarshalBinary takes ownership of buf, and the caller should not use buf after this call.
func (b *Buffer) UnmarshalBinary(data []byte) error {
	b.b = data
	b.off = 0
	return nil
}
