package tftp

import (
	"io"

	"github.com/pkg/errors"

	tftpfx "github.com/pkg/tftp/encoding/tftp/filexfer"
)

// aborter is implemented by writers that can discard an incomplete upload instead of storing it.
type aborter interface {
	Abort() error
}

// writeTransfer receives a file from the peer, one ACK per DATA block.
type writeTransfer struct {
	file io.WriteCloser

	// cursor is the block number expected next, wrapping from 65535 to 0.
	cursor   uint16
	final    uint16 // block number of the final DATA, once complete
	complete bool
	received int64
}

func (t *writeTransfer) begin(ss *session, req *tftpfx.RequestPacket) error {
	if req.Mode != tftpfx.ModeOctet {
		return tftpfx.NewErrorPacket(tftpfx.ErrorCodeModeNotSupported)
	}

	if !ss.srv.allowWrite {
		return tftpfx.NewErrorPacket(tftpfx.ErrorCodeNoWritePermission)
	}

	opts, err := ss.negotiate(&req.Options, maxWriteBlockSize)
	if err != nil {
		return err
	}

	backend := ss.srv.backend

	exists, err := backend.Exists(req.Filename)
	if err != nil {
		return errors.Wrapf(err, "checking %s", req.Filename)
	}

	if exists && !ss.srv.allowOverwrite {
		return tftpfx.NewErrorPacket(tftpfx.ErrorCodeNoOverwritePermission)
	}

	if opts.HasTransferSize() {
		free, err := backend.FreeSpace(req.Filename)
		switch {
		case err != nil:
			ss.lg.Warn("free space unknown, accepting upload", "err", err)
		case free < opts.GetTransferSize():
			ss.lg.Info("upload does not fit", "tsize", opts.GetTransferSize(), "free", free)
			return tftpfx.NewErrorPacket(tftpfx.ErrorCodeOutOfSpace)
		}
	}

	if !exists {
		if err := backend.Create(req.Filename); err != nil {
			ss.lg.Debug("create failed", "err", err)
			return tftpfx.NewErrorPacket(tftpfx.ErrorCodeAccessViolation)
		}
	}

	f, err := backend.OpenWrite(req.Filename)
	if err != nil {
		ss.lg.Debug("open for write failed", "err", err)
		return tftpfx.NewErrorPacket(tftpfx.ErrorCodeFileNotFound)
	}

	t.file = f
	t.cursor = 1

	ss.lg.Info("write started",
		"blksize", ss.blockSize,
		"timeout", ss.timeout,
		"overwrite", exists,
	)

	if opts.Negotiating() {
		return ss.send(&tftpfx.OptionAckPacket{Options: opts})
	}

	return ss.send(&tftpfx.AckPacket{BlockNumber: 0})
}

func (t *writeTransfer) onData(ss *session, p *tftpfx.DataPacket) error {
	if ss.getState() == stateDone {
		if t.complete && p.BlockNumber == t.final {
			// Our final ACK was lost, the peer is resending its last block.
			return ss.send(&tftpfx.AckPacket{BlockNumber: t.final})
		}
		return nil
	}

	if p.BlockNumber != t.cursor {
		return ss.retry()
	}

	if _, err := t.file.Write(p.Data); err != nil {
		return errors.Wrapf(err, "writing block %d", p.BlockNumber)
	}
	t.received += int64(len(p.Data))

	ss.progress()

	if len(p.Data) < ss.blockSize {
		err := t.file.Close()
		t.file = nil
		if err != nil {
			return errors.Wrap(err, "closing file")
		}

		t.complete = true
		t.final = p.BlockNumber

		// done before the ACK goes out, so a new request from the peer can replace us
		ss.finish()
		ss.lg.Info("write complete", "bytes", t.received)

		return ss.send(&tftpfx.AckPacket{BlockNumber: p.BlockNumber})
	}

	t.cursor++
	return ss.send(&tftpfx.AckPacket{BlockNumber: p.BlockNumber})
}

func (t *writeTransfer) onAck(ss *session, p *tftpfx.AckPacket) error {
	debug("session %s: ACK %d on a write transfer", ss.key, p.BlockNumber)
	return nil
}

func (t *writeTransfer) release(ss *session) {
	if t.file == nil {
		return
	}

	var err error
	if a, ok := t.file.(aborter); ok {
		err = a.Abort()
	} else {
		err = t.file.Close()
	}
	if err != nil {
		ss.lg.Warn("releasing incomplete upload", "err", err)
	}
	t.file = nil
}

func (t *writeTransfer) opcode() tftpfx.Opcode {
	return tftpfx.OpcodeWriteRequest
}
