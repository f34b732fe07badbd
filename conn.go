package tftp

import (
	"net"

	"github.com/pkg/errors"

	tftpfx "github.com/pkg/tftp/encoding/tftp/filexfer"
	"github.com/pkg/tftp/internal/sync"
)

// conn wraps the single socket every session sends through.
type conn struct {
	net.PacketConn
	sync.Mutex // used to serialise writes to sendPacket
}

func (c *conn) sendPacket(addr net.Addr, p tftpfx.Packet) error {
	header, payload, err := p.MarshalPacket()
	if err != nil {
		return errors.Wrapf(err, "marshal %v", p.Opcode())
	}

	c.Lock()
	defer c.Unlock()

	if _, err := c.WriteTo(append(header, payload...), addr); err != nil {
		return errors.Wrapf(err, "send %v to %s", p.Opcode(), addr)
	}

	return nil
}
