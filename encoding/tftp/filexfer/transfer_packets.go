package filexfer

// DataPacket defines the DATA packet.
type DataPacket struct {
	BlockNumber uint16

	// Data aliases the datagram it was unmarshaled from.
	Data []byte
}

// Opcode returns OpcodeData.
func (p *DataPacket) Opcode() Opcode {
	return OpcodeData
}

// MarshalPacket returns p as a two-part binary encoding of p.
// The payload is p.Data passed through without copying.
func (p *DataPacket) MarshalPacket() (header, payload []byte, err error) {
	buf := NewMarshalBuffer(OpcodeData, 2)

	buf.AppendUint16(p.BlockNumber)

	return buf.Packet(p.Data)
}

// MarshalBinary returns p as the binary encoding of p.
func (p *DataPacket) MarshalBinary() ([]byte, error) {
	return ComposePacket(p.MarshalPacket())
}

// UnmarshalPacketBody unmarshals the packet body from the given Buffer.
// It is assumed that the uint16(opcode) has already been consumed.
//
// NOTE: To avoid extra allocations, Data aliases the Buffer.
func (p *DataPacket) UnmarshalPacketBody(buf *Buffer) (err error) {
	if p.BlockNumber, err = buf.ConsumeUint16(); err != nil {
		return err
	}

	p.Data = buf.ConsumeRemaining()
	return nil
}

// UnmarshalBinary decodes a full DATA packet, including its opcode, out of the given data.
func (p *DataPacket) UnmarshalBinary(data []byte) error {
	buf, err := newUnmarshalBuffer(data, OpcodeData)
	if err != nil {
		return err
	}

	return p.UnmarshalPacketBody(buf)
}

// AckPacket defines the ACK packet.
type AckPacket struct {
	BlockNumber uint16
}

// Opcode returns OpcodeAck.
func (p *AckPacket) Opcode() Opcode {
	return OpcodeAck
}

// MarshalPacket returns p as a two-part binary encoding of p.
func (p *AckPacket) MarshalPacket() (header, payload []byte, err error) {
	buf := NewMarshalBuffer(OpcodeAck, 2)

	buf.AppendUint16(p.BlockNumber)

	return buf.Packet(nil)
}

// MarshalBinary returns p as the binary encoding of p.
func (p *AckPacket) MarshalBinary() ([]byte, error) {
	return ComposePacket(p.MarshalPacket())
}

// UnmarshalPacketBody unmarshals the packet body from the given Buffer.
// It is assumed that the uint16(opcode) has already been consumed.
func (p *AckPacket) UnmarshalPacketBody(buf *Buffer) (err error) {
	p.BlockNumber, err = buf.ConsumeUint16()
	return err
}

// UnmarshalBinary decodes a full ACK packet, including its opcode, out of the given data.
func (p *AckPacket) UnmarshalBinary(data []byte) error {
	buf, err := newUnmarshalBuffer(data, OpcodeAck)
	if err != nil {
		return err
	}

	return p.UnmarshalPacketBody(buf)
}
