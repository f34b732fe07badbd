package filexfer

import (
	"bytes"
	"errors"
	"testing"
)

func TestErrorPacket(t *testing.T) {
	p := NewErrorPacket(ErrorCodeFileNotFound)

	data, err := p.MarshalBinary()
	if err != nil {
		t.Fatal("unexpected error:", err)
	}

	want := []byte{
		0x00, 0x05,
		0x00, 0x01,
		'f', 'i', 'l', 'e', ' ', 'n', 'o', 't', ' ', 'f', 'o', 'u', 'n', 'd', 0x00,
	}

	if !bytes.Equal(data, want) {
		t.Fatalf("MarshalBinary() = %X, but wanted %X", data, want)
	}

	*p = ErrorPacket{}

	if err := p.UnmarshalBinary(data); err != nil {
		t.Fatal("unexpected error:", err)
	}

	if p.ErrorCode != ErrorCodeFileNotFound {
		t.Errorf("UnmarshalBinary(): ErrorCode was %v, but expected %v", p.ErrorCode, ErrorCodeFileNotFound)
	}

	if p.ErrorMessage != "file not found" {
		t.Errorf("UnmarshalBinary(): ErrorMessage was %q, but expected %q", p.ErrorMessage, "file not found")
	}

	if !errors.Is(p, ErrorCodeFileNotFound) {
		t.Error("errors.Is(ErrorPacket, ErrorCodeFileNotFound) was false")
	}

	if errors.Is(p, ErrorCodeAccessViolation) {
		t.Error("errors.Is(ErrorPacket, ErrorCodeAccessViolation) was true")
	}
}

func TestErrorPacketServerCodes(t *testing.T) {
	p := NewErrorPacket(ErrorCodeModeNotSupported)

	data, err := p.MarshalBinary()
	if err != nil {
		t.Fatal("unexpected error:", err)
	}

	if !bytes.Equal(data[:4], []byte{0x00, 0x05, 0x00, 23}) {
		t.Fatalf("MarshalBinary() = %X, but wanted code 23", data)
	}
}

func TestErrorPacketNoMessage(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		msg  string
	}{
		{
			name: "no bytes after the code",
			data: []byte{0x00, 0x05, 0x00, 0x04},
		},
		{
			name: "terminator only",
			data: []byte{0x00, 0x05, 0x00, 0x04, 0x00},
		},
		{
			name: "unterminated message",
			data: []byte{0x00, 0x05, 0x00, 0x04, 'b', 'a', 'd'},
			msg:  "bad",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p ErrorPacket
			if err := p.UnmarshalBinary(tt.data); err != nil {
				t.Fatal("unexpected error:", err)
			}

			if p.ErrorCode != ErrorCodeIllegalOperation {
				t.Errorf("ErrorCode was %v, but expected %v", p.ErrorCode, ErrorCodeIllegalOperation)
			}

			if p.ErrorMessage != tt.msg {
				t.Errorf("ErrorMessage was %q, but expected %q", p.ErrorMessage, tt.msg)
			}
		})
	}
}

func TestOptionAckPacket(t *testing.T) {
	p := new(OptionAckPacket)
	p.Options.SetBlockSize(1024)
	p.Options.SetTransferSize(2048)

	data, err := p.MarshalBinary()
	if err != nil {
		t.Fatal("unexpected error:", err)
	}

	want := []byte{
		0x00, 0x06,
		'b', 'l', 'k', 's', 'i', 'z', 'e', 0x00, '1', '0', '2', '4', 0x00,
		't', 's', 'i', 'z', 'e', 0x00, '2', '0', '4', '8', 0x00,
	}

	if !bytes.Equal(data, want) {
		t.Fatalf("MarshalBinary() = %X, but wanted %X", data, want)
	}

	*p = OptionAckPacket{}

	if err := p.UnmarshalBinary(data); err != nil {
		t.Fatal("unexpected error:", err)
	}

	if p.Options.Flags != OptionBlockSize|OptionTransferSize {
		t.Errorf("UnmarshalBinary(): Flags was %#x", p.Options.Flags)
	}

	if p.Options.BlockSize != 1024 || p.Options.TransferSize != 2048 {
		t.Errorf("UnmarshalBinary(): Options was %+v", p.Options)
	}
}

func TestOptionAckPacketEmpty(t *testing.T) {
	p := new(OptionAckPacket)

	if _, err := p.MarshalBinary(); err != ErrEmptyOptionAck {
		t.Errorf("MarshalBinary() = %v, but expected %v", err, ErrEmptyOptionAck)
	}
}
