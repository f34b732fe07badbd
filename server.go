package tftp

// tftp server: one socket, many sessions keyed by peer address

import (
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/pkg/errors"

	tftpfx "github.com/pkg/tftp/encoding/tftp/filexfer"
	"github.com/pkg/tftp/internal/sync"
)

const (
	// maxWriteBlockSize caps the blksize accepted for uploads.
	maxWriteBlockSize = 8192

	// maxDatagramSize fits the largest DATA packet a negotiated blksize can produce.
	maxDatagramSize = tftpfx.MaxBlockSize + 4

	// bufPoolDepth bounds the number of idle receive buffers kept for reuse.
	bufPoolDepth = 64

	// sessionInboxDepth is how many packets may queue for a busy session before new ones are dropped.
	sessionInboxDepth = 16
)

// Server is a TFTP server answering every client through a single packet socket.
// Each peer address gets its own session, running on its own goroutine.
type Server struct {
	conn    conn
	backend StorageBackend
	rootDir string

	allowRead      bool
	allowWrite     bool
	allowOverwrite bool
	maxRetries     int
	linger         time.Duration
	idleTimeout    time.Duration

	sched Scheduler
	lg    *slog.Logger

	bufPool *sync.SlicePool[[]byte, byte]

	sessionLock sync.Mutex
	sessions    map[string]*session
	closed      bool
	wg          sync.WaitGroup
}

// A ServerOption is a function which applies configuration to a Server.
type ServerOption func(*Server) error

// WithBackend sets the storage the server reads and writes files through.
// It takes precedence over WithRootDir.
func WithBackend(b StorageBackend) ServerOption {
	return func(s *Server) error {
		if b == nil {
			return errors.New("tftp: nil storage backend")
		}
		s.backend = b
		return nil
	}
}

// WithRootDir serves files from dir on the local filesystem.
// Without it, and without WithBackend, the current working directory is served.
func WithRootDir(dir string) ServerOption {
	return func(s *Server) error {
		s.rootDir = dir
		return nil
	}
}

// ReadOnly configures a Server to refuse every write request.
func ReadOnly() ServerOption {
	return func(s *Server) error {
		s.allowWrite = false
		return nil
	}
}

// AllowRead sets whether read requests are served.
func AllowRead(allow bool) ServerOption {
	return func(s *Server) error {
		s.allowRead = allow
		return nil
	}
}

// AllowWrite sets whether write requests are served.
func AllowWrite(allow bool) ServerOption {
	return func(s *Server) error {
		s.allowWrite = allow
		return nil
	}
}

// AllowOverwrite sets whether a write request may replace an existing file.
func AllowOverwrite(allow bool) ServerOption {
	return func(s *Server) error {
		s.allowOverwrite = allow
		return nil
	}
}

// WithMaxRetries sets how many stale packets a session tolerates before abandoning the transfer.
func WithMaxRetries(n int) ServerOption {
	return func(s *Server) error {
		if n < 0 {
			return errors.Errorf("tftp: negative max retries %d", n)
		}
		s.maxRetries = n
		return nil
	}
}

// WithLinger sets how long a completed session keeps answering late duplicates before it is removed.
func WithLinger(d time.Duration) ServerOption {
	return func(s *Server) error {
		if d < 0 {
			return errors.Errorf("tftp: negative linger %v", d)
		}
		s.linger = d
		return nil
	}
}

// WithIdleTimeout sets how long a session may go without receiving anything before it is evicted.
// By default it is (max retries + 1) times the negotiated timeout.
func WithIdleTimeout(d time.Duration) ServerOption {
	return func(s *Server) error {
		if d < 0 {
			return errors.Errorf("tftp: negative idle timeout %v", d)
		}
		s.idleTimeout = d
		return nil
	}
}

// WithScheduler replaces the runtime timers used for retransmission and eviction.
func WithScheduler(sched Scheduler) ServerOption {
	return func(s *Server) error {
		if sched == nil {
			return errors.New("tftp: nil scheduler")
		}
		s.sched = sched
		return nil
	}
}

// WithLogger sets the logger for server and session events.
// By default nothing is logged.
func WithLogger(lg *slog.Logger) ServerOption {
	return func(s *Server) error {
		if lg == nil {
			return errors.New("tftp: nil logger")
		}
		s.lg = lg
		return nil
	}
}

// NewServer creates a new Server answering on pc.
// A subsequent call to Serve() is required.
func NewServer(pc net.PacketConn, options ...ServerOption) (*Server, error) {
	s := &Server{
		conn: conn{
			PacketConn: pc,
		},
		allowRead:      true,
		allowWrite:     true,
		allowOverwrite: true,
		maxRetries:     DefaultMaxRetries,
		linger:         DefaultLinger,
		sched:          clock{},
		lg:             slog.New(slog.NewTextHandler(io.Discard, nil)),
		bufPool:        sync.NewSlicePool[[]byte](bufPoolDepth, maxDatagramSize),
		sessions:       make(map[string]*session),
	}

	for _, o := range options {
		if err := o(s); err != nil {
			return nil, err
		}
	}

	if s.backend == nil {
		b, err := NewFileBackend(s.rootDir)
		if err != nil {
			return nil, err
		}
		s.backend = b
	}

	return s, nil
}

// ListenAndServe listens on the UDP address addr and then calls Serve.
func ListenAndServe(addr string, options ...ServerOption) error {
	pc, err := net.ListenPacket("udp", addr)
	if err != nil {
		return errors.Wrapf(err, "tftp: listen %s", addr)
	}

	s, err := NewServer(pc, options...)
	if err != nil {
		pc.Close()
		return err
	}

	return s.Serve()
}

// Addr returns the local address the server answers on.
func (s *Server) Addr() net.Addr {
	return s.conn.LocalAddr()
}

// Serve reads datagrams and dispatches them to sessions until the socket fails or Close is called.
// It returns nil after Close.
func (s *Server) Serve() error {
	s.lg.Info("tftp server started", "addr", s.Addr().String())

	for {
		buf := s.bufPool.Get()

		n, addr, err := s.conn.ReadFrom(buf)
		if err != nil {
			s.bufPool.Put(buf)

			if s.isClosed() {
				return nil
			}

			return errors.Wrap(err, "tftp: receive")
		}

		s.handlePacket(addr, buf[:n])
	}
}

// Close stops the server, tears down every session, and waits for them to release their files.
func (s *Server) Close() error {
	s.sessionLock.Lock()
	if s.closed {
		s.sessionLock.Unlock()
		return nil
	}
	s.closed = true
	sessions := s.sessions
	s.sessions = make(map[string]*session)
	s.sessionLock.Unlock()

	err := s.conn.Close()

	for _, ss := range sessions {
		ss.stop()
	}

	s.wg.Wait()

	return err
}

func (s *Server) isClosed() bool {
	s.sessionLock.Lock()
	defer s.sessionLock.Unlock()
	return s.closed
}

// handlePacket owns buf, it is either handed to a session or returned to the pool.
func (s *Server) handlePacket(addr net.Addr, buf []byte) {
	pkt, err := tftpfx.Unmarshal(buf)
	if err != nil {
		s.bufPool.Put(buf)
		s.lg.Debug("malformed packet", "peer", addr.String(), "err", err)
		s.sendError(addr, tftpfx.NewErrorPacket(tftpfx.ErrorCodeIllegalOperation))
		return
	}

	key := addr.String()

	switch pkt := pkt.(type) {
	case *tftpfx.ReadRequestPacket:
		s.bufPool.Put(buf)
		s.nextSession(key, addr, &readTransfer{}, &pkt.RequestPacket)

	case *tftpfx.WriteRequestPacket:
		s.bufPool.Put(buf)
		s.nextSession(key, addr, &writeTransfer{}, &pkt.RequestPacket)

	default:
		ss, ok := s.getSession(key)
		if !ok {
			s.bufPool.Put(buf)

			if pkt.Opcode() == tftpfx.OpcodeError {
				// never answer an error with an error
				return
			}

			s.lg.Debug("packet from unknown peer", "peer", key, "opcode", pkt.Opcode())
			s.sendError(addr, tftpfx.NewErrorPacket(tftpfx.ErrorCodeUnknownTID))
			return
		}

		if !ss.deliver(event{kind: eventPacket, pkt: pkt, buf: buf}) {
			s.bufPool.Put(buf)
			s.lg.Debug("session busy, dropped packet", "peer", key, "opcode", pkt.Opcode())
		}
	}
}

// nextSession starts a session for a request.
//
// A repeat of the request a session is still negotiating is handed to that session,
// which resends its first response.
// Any other request from a peer whose session is negotiating or already done replaces that session,
// while one arriving during an active transfer is ignored.
func (s *Server) nextSession(key string, addr net.Addr, xfer transfer, req *tftpfx.RequestPacket) {
	s.sessionLock.Lock()
	defer s.sessionLock.Unlock()

	if s.closed {
		return
	}

	var prev *session
	if old, ok := s.sessions[key]; ok {
		switch {
		case old.getState() == stateNegotiating && old.sameRequest(xfer, req):
			if !old.deliver(event{kind: eventRequest}) {
				s.lg.Debug("session busy, dropped repeated request", "peer", key, "file", req.Filename)
			}
			return

		case !old.restartable():
			s.lg.Debug("ignoring request during active transfer", "peer", key, "file", req.Filename)
			return
		}

		delete(s.sessions, key)
		old.stop()
		prev = old
	}

	ss := newSession(s, key, addr, xfer, req)
	s.sessions[key] = ss

	s.wg.Add(1)
	go ss.run(req, prev)
}

func (s *Server) getSession(key string) (*session, bool) {
	s.sessionLock.Lock()
	defer s.sessionLock.Unlock()
	ss, ok := s.sessions[key]
	return ss, ok
}

// closeSession removes ss from the table, unless it has already been replaced.
func (s *Server) closeSession(key string, ss *session) {
	s.sessionLock.Lock()
	defer s.sessionLock.Unlock()
	if cur, ok := s.sessions[key]; ok && cur == ss {
		delete(s.sessions, key)
	}
}

// sessionCount returns the number of sessions in the table.
func (s *Server) sessionCount() int {
	s.sessionLock.Lock()
	defer s.sessionLock.Unlock()
	return len(s.sessions)
}

func (s *Server) sendError(addr net.Addr, pkt *tftpfx.ErrorPacket) {
	if err := s.conn.sendPacket(addr, pkt); err != nil {
		s.lg.Warn("sending error packet failed", "peer", addr.String(), "code", pkt.ErrorCode.String(), "err", err)
	}
}
