package filexfer

// RequestPacket holds the body shared by read and write requests.
//
// Defined in https://tools.ietf.org/html/rfc1350#section-5
// and extended by https://tools.ietf.org/html/rfc2347#section-2
type RequestPacket struct {
	Filename string
	Mode     string
	Options  Options
}

// Len returns the number of bytes the request body would marshal into.
func (p *RequestPacket) Len() int {
	return len(p.Filename) + 1 + len(p.Mode) + 1 + p.Options.Len()
}

func (p *RequestPacket) marshalPacket(op Opcode) (header, payload []byte, err error) {
	buf := NewMarshalBuffer(op, p.Len())

	buf.AppendString(p.Filename)
	buf.AppendString(p.Mode)
	p.Options.MarshalInto(buf)

	return buf.Packet(nil)
}

// UnmarshalPacketBody unmarshals the packet body from the given Buffer.
// It is assumed that the uint16(opcode) has already been consumed.
func (p *RequestPacket) UnmarshalPacketBody(buf *Buffer) error {
	fields := buf.ConsumeFields()
	if len(fields) < 2 {
		return ErrMissingMode
	}

	*p = RequestPacket{
		Filename: fields[0],
		Mode:     fields[1],
	}

	return p.Options.UnmarshalFields(fields[2:])
}

// ReadRequestPacket defines the RRQ packet.
type ReadRequestPacket struct {
	RequestPacket
}

// Opcode returns OpcodeReadRequest.
func (p *ReadRequestPacket) Opcode() Opcode {
	return OpcodeReadRequest
}

// MarshalPacket returns p as a two-part binary encoding of p.
func (p *ReadRequestPacket) MarshalPacket() (header, payload []byte, err error) {
	return p.marshalPacket(OpcodeReadRequest)
}

// MarshalBinary returns p as the binary encoding of p.
func (p *ReadRequestPacket) MarshalBinary() ([]byte, error) {
	return ComposePacket(p.MarshalPacket())
}

// UnmarshalBinary decodes a full RRQ packet, including its opcode, out of the given data.
func (p *ReadRequestPacket) UnmarshalBinary(data []byte) error {
	buf, err := newUnmarshalBuffer(data, OpcodeReadRequest)
	if err != nil {
		return err
	}

	return p.UnmarshalPacketBody(buf)
}

// WriteRequestPacket defines the WRQ packet.
type WriteRequestPacket struct {
	RequestPacket
}

// Opcode returns OpcodeWriteRequest.
func (p *WriteRequestPacket) Opcode() Opcode {
	return OpcodeWriteRequest
}

// MarshalPacket returns p as a two-part binary encoding of p.
func (p *WriteRequestPacket) MarshalPacket() (header, payload []byte, err error) {
	return p.marshalPacket(OpcodeWriteRequest)
}

// MarshalBinary returns p as the binary encoding of p.
func (p *WriteRequestPacket) MarshalBinary() ([]byte, error) {
	return ComposePacket(p.MarshalPacket())
}

// UnmarshalBinary decodes a full WRQ packet, including its opcode, out of the given data.
func (p *WriteRequestPacket) UnmarshalBinary(data []byte) error {
	buf, err := newUnmarshalBuffer(data, OpcodeWriteRequest)
	if err != nil {
		return err
	}

	return p.UnmarshalPacketBody(buf)
}
