package tftp

import (
	"io"

	"github.com/pkg/errors"

	tftpfx "github.com/pkg/tftp/encoding/tftp/filexfer"
)

// readTransfer serves a file to the peer, one DATA block per ACK.
type readTransfer struct {
	file ReadFile
	size int64

	block []byte // sized to the negotiated blksize for the session lifetime

	// cursor is the block number awaiting acknowledgment.
	// After 65535 it wraps to 0 rather than 1, which is what most clients expect.
	cursor   uint16
	finished bool // the final block has been sent
	sent     int64
}

func (t *readTransfer) begin(ss *session, req *tftpfx.RequestPacket) error {
	if req.Mode != tftpfx.ModeOctet {
		return tftpfx.NewErrorPacket(tftpfx.ErrorCodeModeNotSupported)
	}

	if !ss.srv.allowRead {
		return tftpfx.NewErrorPacket(tftpfx.ErrorCodeNoReadPermission)
	}

	opts, err := ss.negotiate(&req.Options, tftpfx.MaxBlockSize)
	if err != nil {
		return err
	}

	f, err := ss.srv.backend.OpenRead(req.Filename)
	if err != nil {
		ss.lg.Debug("open for read failed", "err", err)
		return tftpfx.NewErrorPacket(tftpfx.ErrorCodeFileNotFound)
	}

	t.file = f
	t.size = f.Size()
	t.block = make([]byte, ss.blockSize)

	ss.lg.Info("read started",
		"blksize", ss.blockSize,
		"timeout", ss.timeout,
		"size", t.size,
	)

	if opts.Negotiating() {
		if opts.HasTransferSize() {
			opts.SetTransferSize(t.size)
		}

		t.cursor = 0
		return ss.send(&tftpfx.OptionAckPacket{Options: opts})
	}

	t.cursor = 1
	return t.sendBlock(ss)
}

// sendBlock reads the block numbered t.cursor, and sends it.
func (t *readTransfer) sendBlock(ss *session) error {
	n, err := io.ReadFull(t.file, t.block)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return errors.Wrapf(err, "reading block %d", t.cursor)
	}

	if n == 0 && t.size%int64(len(t.block)) != 0 {
		// Nothing left and the last block was already short.
		return nil
	}

	if n < len(t.block) {
		t.finished = true
	}

	t.sent += int64(n)

	return ss.send(&tftpfx.DataPacket{
		BlockNumber: t.cursor,
		Data:        t.block[:n],
	})
}

func (t *readTransfer) onAck(ss *session, p *tftpfx.AckPacket) error {
	if ss.getState() == stateDone {
		// late duplicates of the final ACK
		return nil
	}

	if p.BlockNumber != t.cursor {
		return ss.retry()
	}

	ss.progress()

	if t.finished {
		err := t.file.Close()
		t.file = nil
		if err != nil {
			ss.lg.Warn("closing file", "err", err)
		}

		ss.lg.Info("read complete", "bytes", t.sent)
		ss.finish()
		return nil
	}

	t.cursor++
	return t.sendBlock(ss)
}

func (t *readTransfer) onData(ss *session, p *tftpfx.DataPacket) error {
	debug("session %s: DATA %d on a read transfer", ss.key, p.BlockNumber)
	return nil
}

func (t *readTransfer) release(ss *session) {
	if t.file == nil {
		return
	}

	if err := t.file.Close(); err != nil {
		ss.lg.Warn("closing file", "err", err)
	}
	t.file = nil
}

func (t *readTransfer) opcode() tftpfx.Opcode {
	return tftpfx.OpcodeReadRequest
}
