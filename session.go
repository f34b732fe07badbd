package tftp

import (
	"fmt"
	"log/slog"
	"net"
	runtimedebug "runtime/debug"
	"sync/atomic"
	"time"

	tftpfx "github.com/pkg/tftp/encoding/tftp/filexfer"
	"github.com/pkg/tftp/internal/sync"
)

type sessionState int32

const (
	// stateNegotiating: the first response is out, and the peer has not yet moved the transfer forward.
	stateNegotiating sessionState = iota
	stateTransferring
	stateDone
)

type eventKind int

const (
	eventPacket eventKind = iota
	eventTimer
	eventIdle
	eventRequest // the peer repeated the request that started the session
)

// event is the unit of work in a session inbox.
type event struct {
	kind eventKind

	pkt tftpfx.Packet
	buf []byte // returned to the pool once pkt is handled

	gen uint64 // timer generation, stale generations are ignored
}

// transfer is the direction specific half of a session.
// Its methods are only called from the session goroutine.
type transfer interface {
	// opcode returns the request opcode that starts this kind of transfer.
	opcode() tftpfx.Opcode

	// begin validates the request, opens the file and sends the first response.
	begin(ss *session, req *tftpfx.RequestPacket) error

	onData(ss *session, p *tftpfx.DataPacket) error
	onAck(ss *session, p *tftpfx.AckPacket) error

	// release closes the file if the transfer did not complete.
	release(ss *session)
}

// session is the state of one transfer with one peer.
// Packets and timer callbacks are both delivered through the inbox,
// so everything below the inbox is touched only by the run goroutine.
type session struct {
	srv  *Server
	key  string
	addr net.Addr
	lg   *slog.Logger
	xfer transfer
	req  tftpfx.RequestPacket

	inbox    chan event
	done     chan struct{}
	exited   chan struct{} // closed once cleanup has released the file
	stopOnce sync.Once

	state atomic.Int32

	blockSize int
	timeout   time.Duration
	retries   int
	last      tftpfx.Packet // last packet sent, for retransmission
	exit      bool

	timer     Timer
	timerGen  uint64
	timerFunc func() error

	idle    Timer
	idleGen uint64
}

func newSession(srv *Server, key string, addr net.Addr, xfer transfer, req *tftpfx.RequestPacket) *session {
	return &session{
		srv:  srv,
		key:  key,
		addr: addr,
		lg: srv.lg.With(
			"peer", key,
			"file", req.Filename,
		),
		xfer:      xfer,
		req:       *req,
		inbox:     make(chan event, sessionInboxDepth),
		done:      make(chan struct{}),
		exited:    make(chan struct{}),
		blockSize: tftpfx.DefaultBlockSize,
		timeout:   tftpfx.DefaultTimeout * time.Second,
	}
}

// run drives the session until it exits.
// A session replacing prev for the same peer waits for prev to release its file first.
func (ss *session) run(req *tftpfx.RequestPacket, prev *session) {
	defer ss.srv.wg.Done()
	defer close(ss.exited)
	defer ss.cleanup()

	if prev != nil {
		select {
		case <-prev.exited:
		case <-ss.done:
			return
		}
	}

	ss.dispatch(func() error {
		return ss.xfer.begin(ss, req)
	})
	ss.resetIdle()

	for !ss.exit && !ss.stopped() {
		select {
		case ev := <-ss.inbox:
			// a stopped session must not act on anything still queued, cleanup drains it
			if ss.stopped() {
				if ev.buf != nil {
					ss.srv.bufPool.Put(ev.buf)
				}
				return
			}
			ss.handleEvent(ev)

		case <-ss.done:
			return
		}
	}
}

// stop asks the session goroutine to exit. It does not wait.
func (ss *session) stop() {
	ss.stopOnce.Do(func() {
		close(ss.done)
	})
}

func (ss *session) cleanup() {
	ss.stop()
	ss.setState(stateDone)

	if ss.timer != nil {
		ss.timer.Stop()
	}
	if ss.idle != nil {
		ss.idle.Stop()
	}

	ss.xfer.release(ss)
	ss.srv.closeSession(ss.key, ss)

	for {
		select {
		case ev := <-ss.inbox:
			if ev.buf != nil {
				ss.srv.bufPool.Put(ev.buf)
			}
		default:
			return
		}
	}
}

func (ss *session) stopped() bool {
	select {
	case <-ss.done:
		return true
	default:
		return false
	}
}

// deliver queues a packet from the reactor without blocking.
// It reports false when the packet was dropped.
func (ss *session) deliver(ev event) bool {
	if ss.stopped() {
		return false
	}

	select {
	case ss.inbox <- ev:
		return true
	default:
		return false
	}
}

// post queues a timer event, waiting for room unless the session has stopped.
func (ss *session) post(ev event) {
	select {
	case ss.inbox <- ev:
	case <-ss.done:
	}
}

func (ss *session) getState() sessionState {
	return sessionState(ss.state.Load())
}

func (ss *session) setState(st sessionState) {
	ss.state.Store(int32(st))
}

// sameRequest reports whether req, starting xfer, repeats the request this session was started from.
func (ss *session) sameRequest(xfer transfer, req *tftpfx.RequestPacket) bool {
	return xfer.opcode() == ss.xfer.opcode() && *req == ss.req
}

// restartable reports whether a new request from the same peer may replace this session.
func (ss *session) restartable() bool {
	switch ss.getState() {
	case stateNegotiating, stateDone:
		return true
	}
	return false
}

func (ss *session) handleEvent(ev event) {
	switch ev.kind {
	case eventPacket:
		ss.dispatch(func() error {
			return ss.handlePacket(ev.pkt)
		})
		ss.srv.bufPool.Put(ev.buf)
		ss.resetIdle()

	case eventTimer:
		if ev.gen != ss.timerGen || ss.timerFunc == nil {
			return
		}
		fn := ss.timerFunc
		ss.timer, ss.timerFunc = nil, nil
		ss.dispatch(fn)

	case eventIdle:
		if ev.gen != ss.idleGen {
			return
		}
		ss.lg.Warn("session idle, evicting", "idle", ss.idleTimeout())
		ss.exit = true

	case eventRequest:
		if ss.getState() != stateNegotiating {
			return
		}
		ss.dispatch(ss.repeatRequest)
		ss.resetIdle()
	}
}

func (ss *session) handlePacket(pkt tftpfx.Packet) error {
	switch p := pkt.(type) {
	case *tftpfx.ErrorPacket:
		ss.lg.Info("peer aborted transfer", "code", p.ErrorCode.String(), "msg", p.ErrorMessage)
		ss.setState(stateDone)
		ss.exit = true
		return nil

	case *tftpfx.DataPacket:
		return ss.xfer.onData(ss, p)

	case *tftpfx.AckPacket:
		return ss.xfer.onAck(ss, p)
	}

	debug("session %s: ignoring %v", ss.key, pkt.Opcode())
	return nil
}

// dispatch runs fn, turning a returned error or a panic into an ERROR packet and teardown.
func (ss *session) dispatch(fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			ss.lg.Error("session panic", "panic", fmt.Sprint(r), "stack", string(runtimedebug.Stack()))
			ss.fail(tftpfx.NewErrorPacket(tftpfx.ErrorCodeAccessViolation))
		}
	}()

	if err := fn(); err != nil {
		ss.fail(err)
	}
}

// fail sends the ERROR packet for err, and terminates the session.
func (ss *session) fail(err error) {
	pkt := errorPacketFromError(err)

	if pkt.ErrorCode == tftpfx.ErrorCodeAccessViolation || pkt.ErrorCode == tftpfx.ErrorCodeUndefined {
		ss.lg.Error("transfer failed", "code", pkt.ErrorCode.String(), "err", err)
	} else {
		ss.lg.Info("request refused", "code", pkt.ErrorCode.String(), "err", err)
	}

	ss.srv.sendError(ss.addr, pkt)
	ss.setState(stateDone)
	ss.exit = true
}

func (ss *session) send(p tftpfx.Packet) error {
	ss.last = p
	return ss.srv.conn.sendPacket(ss.addr, p)
}

// negotiate validates the requested options against the server limits,
// and returns the options to acknowledge.
// The tsize value is passed through, callers fill in the real size where it applies.
//
// blksize follows RFC 2348 rather than taking the client value as is:
// below 8 fails negotiation, and above maxBlockSize it is clamped, for reads too.
func (ss *session) negotiate(req *tftpfx.Options, maxBlockSize int) (tftpfx.Options, error) {
	var opts tftpfx.Options

	if req.HasBlockSize() {
		n := req.GetBlockSize()
		if n < tftpfx.MinBlockSize {
			return opts, &tftpfx.ErrorPacket{
				ErrorCode:    tftpfx.ErrorCodeNegotiateFail,
				ErrorMessage: fmt.Sprintf("blksize %d below %d", n, tftpfx.MinBlockSize),
			}
		}
		if n > maxBlockSize {
			n = maxBlockSize
		}
		ss.blockSize = n
		opts.SetBlockSize(n)
	}

	if req.HasTimeout() {
		n := req.GetTimeout()
		if n < tftpfx.MinTimeout || n > tftpfx.MaxTimeout {
			return opts, &tftpfx.ErrorPacket{
				ErrorCode:    tftpfx.ErrorCodeNegotiateFail,
				ErrorMessage: fmt.Sprintf("timeout %d outside %d-%d", n, tftpfx.MinTimeout, tftpfx.MaxTimeout),
			}
		}
		ss.timeout = time.Duration(n) * time.Second
		opts.SetTimeout(n)
	}

	if req.HasTransferSize() {
		opts.SetTransferSize(req.GetTransferSize())
	}

	return opts, nil
}

// progress records an in-sequence packet from the peer.
func (ss *session) progress() {
	ss.setState(stateTransferring)
	ss.retries = 0
	ss.cancelTimer()
}

// retry handles a stale packet: the last packet is resent after the retransmission delay,
// until the retry budget runs out.
func (ss *session) retry() error {
	ss.retries++
	if ss.retries > ss.srv.maxRetries {
		return errTooManyRetries()
	}

	last := ss.last
	if last == nil {
		return nil
	}

	delay := retransmitDelay(ss.timeout)
	ss.lg.Debug("stale packet, scheduling retransmission", "retries", ss.retries, "delay", delay)

	ss.schedule(delay, func() error {
		ss.lg.Debug("retransmitting", "opcode", last.Opcode())
		return ss.send(last)
	})
	return nil
}

// repeatRequest answers a retransmitted request: the peer never saw our first response,
// so it is sent again at once. It counts against the same budget as stale packets.
func (ss *session) repeatRequest() error {
	ss.retries++
	if ss.retries > ss.srv.maxRetries {
		return errTooManyRetries()
	}

	if ss.last == nil {
		return nil
	}

	ss.lg.Debug("request repeated, resending first response", "opcode", ss.last.Opcode(), "retries", ss.retries)
	return ss.send(ss.last)
}

func errTooManyRetries() error {
	return &tftpfx.ErrorPacket{
		ErrorCode:    tftpfx.ErrorCodeUndefined,
		ErrorMessage: "too many retries",
	}
}

// finish marks the transfer complete, and removes the session once the linger window has passed.
func (ss *session) finish() {
	ss.setState(stateDone)

	if ss.idle != nil {
		ss.idle.Stop()
		ss.idle = nil
	}

	ss.schedule(ss.srv.linger, func() error {
		ss.exit = true
		return nil
	})
}

// schedule arms the session timer, replacing any callback still pending.
func (ss *session) schedule(d time.Duration, fn func() error) {
	ss.cancelTimer()

	ss.timerGen++
	gen := ss.timerGen

	ss.timerFunc = fn
	ss.timer = ss.srv.sched.AfterFunc(d, func() {
		ss.post(event{kind: eventTimer, gen: gen})
	})
}

func (ss *session) cancelTimer() {
	if ss.timer != nil {
		ss.timer.Stop()
	}
	ss.timer, ss.timerFunc = nil, nil
}

func (ss *session) idleTimeout() time.Duration {
	if ss.srv.idleTimeout > 0 {
		return ss.srv.idleTimeout
	}
	return time.Duration(ss.srv.maxRetries+1) * ss.timeout
}

// resetIdle restarts the idle watchdog. Finished sessions are left to their linger timer.
func (ss *session) resetIdle() {
	if ss.idle != nil {
		ss.idle.Stop()
		ss.idle = nil
	}

	if ss.exit || ss.getState() == stateDone {
		return
	}

	ss.idleGen++
	gen := ss.idleGen

	ss.idle = ss.srv.sched.AfterFunc(ss.idleTimeout(), func() {
		ss.post(event{kind: eventIdle, gen: gen})
	})
}
