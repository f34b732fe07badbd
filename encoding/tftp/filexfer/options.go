package filexfer

import (
	"strconv"
	"strings"
)

// Option names from RFC 2348 and RFC 2349.
const (
	OptionNameBlockSize    = "blksize"
	OptionNameTimeout      = "timeout"
	OptionNameTransferSize = "tsize"
)

// Option related flags.
const (
	OptionBlockSize    = 1 << iota // blksize
	OptionTimeout                  // timeout
	OptionTransferSize             // tsize
)

// Options defines the negotiable options carried by requests and option acknowledgments.
//
// NOTE: The values of fields not covered in the o.Flags are explicitly undefined.
type Options struct {
	Flags uint8

	// OptionBlockSize
	BlockSize int

	// OptionTimeout, in seconds
	Timeout int

	// OptionTransferSize
	TransferSize int64
}

// Negotiating reports whether any option is present,
// in which case a server answers with an OACK rather than the first DATA or ACK.
func (o *Options) Negotiating() bool {
	return o.Flags&(OptionBlockSize|OptionTimeout|OptionTransferSize) != 0
}

// HasBlockSize returns true if o.Flags has OptionBlockSize set.
func (o *Options) HasBlockSize() bool {
	return o.Flags&OptionBlockSize != 0
}

// GetBlockSize returns the BlockSize field, the caller should check HasBlockSize first.
func (o *Options) GetBlockSize() int {
	return o.BlockSize
}

// SetBlockSize is a convenience function that sets the BlockSize field,
// and marks the field as valid.
func (o *Options) SetBlockSize(size int) {
	o.Flags |= OptionBlockSize
	o.BlockSize = size
}

// HasTimeout returns true if o.Flags has OptionTimeout set.
func (o *Options) HasTimeout() bool {
	return o.Flags&OptionTimeout != 0
}

// GetTimeout returns the Timeout field, the caller should check HasTimeout first.
func (o *Options) GetTimeout() int {
	return o.Timeout
}

// SetTimeout is a convenience function that sets the Timeout field,
// and marks the field as valid.
func (o *Options) SetTimeout(seconds int) {
	o.Flags |= OptionTimeout
	o.Timeout = seconds
}

// HasTransferSize returns true if o.Flags has OptionTransferSize set.
func (o *Options) HasTransferSize() bool {
	return o.Flags&OptionTransferSize != 0
}

// GetTransferSize returns the TransferSize field, the caller should check HasTransferSize first.
func (o *Options) GetTransferSize() int64 {
	return o.TransferSize
}

// SetTransferSize is a convenience function that sets the TransferSize field,
// and marks the field as valid.
func (o *Options) SetTransferSize(size int64) {
	o.Flags |= OptionTransferSize
	o.TransferSize = size
}

// Len returns the number of bytes o would marshal into.
func (o *Options) Len() int {
	var length int

	if o.HasBlockSize() {
		length += len(OptionNameBlockSize) + 1 + len(strconv.Itoa(o.BlockSize)) + 1
	}

	if o.HasTimeout() {
		length += len(OptionNameTimeout) + 1 + len(strconv.Itoa(o.Timeout)) + 1
	}

	if o.HasTransferSize() {
		length += len(OptionNameTransferSize) + 1 + len(strconv.FormatInt(o.TransferSize, 10)) + 1
	}

	return length
}

// MarshalInto marshals o onto the end of the given Buffer.
// Values are written as decimal text, per RFC 2347.
func (o *Options) MarshalInto(b *Buffer) {
	if o.HasBlockSize() {
		b.AppendString(OptionNameBlockSize)
		b.AppendString(strconv.Itoa(o.BlockSize))
	}

	if o.HasTimeout() {
		b.AppendString(OptionNameTimeout)
		b.AppendString(strconv.Itoa(o.Timeout))
	}

	if o.HasTransferSize() {
		b.AppendString(OptionNameTransferSize)
		b.AppendString(strconv.FormatInt(o.TransferSize, 10))
	}
}

// UnmarshalFields decodes (name, value) pairs out of the given fields into o.
// Option names are matched case-insensitively, unknown options are ignored,
// and a trailing name without a value is ignored.
func (o *Options) UnmarshalFields(fields []string) error {
	for i := 0; i+1 < len(fields); i += 2 {
		name, value := fields[i], fields[i+1]

		switch {
		case strings.EqualFold(name, OptionNameBlockSize):
			v, err := strconv.ParseUint(value, 10, 31)
			if err != nil {
				return &BadOptionError{Name: name, Value: value}
			}
			o.SetBlockSize(int(v))

		case strings.EqualFold(name, OptionNameTimeout):
			v, err := strconv.ParseUint(value, 10, 31)
			if err != nil {
				return &BadOptionError{Name: name, Value: value}
			}
			o.SetTimeout(int(v))

		case strings.EqualFold(name, OptionNameTransferSize):
			v, err := strconv.ParseUint(value, 10, 63)
			if err != nil {
				return &BadOptionError{Name: name, Value: value}
			}
			o.SetTransferSize(int64(v))
		}
	}

	return nil
}
