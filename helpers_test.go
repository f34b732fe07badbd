package tftp

import (
	"bytes"
	"io"
	"io/fs"
	"net"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	tftpfx "github.com/pkg/tftp/encoding/tftp/filexfer"
)

// manualScheduler only runs callbacks when a test fires them.
type manualScheduler struct {
	mu     sync.Mutex
	timers []*manualTimer
}

type manualTimer struct {
	s       *manualScheduler
	d       time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (s *manualScheduler) AfterFunc(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := &manualTimer{s: s, d: d, f: f}
	s.timers = append(s.timers, t)
	return t
}

func (t *manualTimer) Stop() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// pending returns the delays of all timers that are neither stopped nor fired.
func (s *manualScheduler) pending() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ds []time.Duration
	for _, t := range s.timers {
		if !t.stopped && !t.fired {
			ds = append(ds, t.d)
		}
	}
	sort.Slice(ds, func(i, j int) bool { return ds[i] < ds[j] })
	return ds
}

func (s *manualScheduler) hasPending(d time.Duration) bool {
	for _, pd := range s.pending() {
		if pd == d {
			return true
		}
	}
	return false
}

// fire runs every live timer armed with delay d, and returns how many ran.
func (s *manualScheduler) fire(d time.Duration) int {
	s.mu.Lock()
	var due []*manualTimer
	for _, t := range s.timers {
		if !t.stopped && !t.fired && t.d == d {
			t.fired = true
			due = append(due, t)
		}
	}
	s.mu.Unlock()

	for _, t := range due {
		t.f()
	}
	return len(due)
}

// memBackend is an in-memory StorageBackend with failure injection.
type memBackend struct {
	mu    sync.Mutex
	files map[string][]byte
	open  int

	free      int64
	freeErr   error
	readErr   error // returned by reads once the first block has been served
	writeErr  error
	closeErr  error
	createErr error
}

func newMemBackend() *memBackend {
	return &memBackend{
		files: make(map[string][]byte),
		free:  1 << 30,
	}
}

func (b *memBackend) key(name string) (string, error) {
	return TranslatePath("", name)
}

func (b *memBackend) put(name string, data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	key, _ := b.key(name)
	b.files[key] = append([]byte(nil), data...)
}

func (b *memBackend) get(name string) ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	key, _ := b.key(name)
	data, ok := b.files[key]
	return data, ok
}

func (b *memBackend) openFiles() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.open
}

type memReadFile struct {
	b      *memBackend
	r      *bytes.Reader
	size   int64
	reads  int
	closed bool
}

func (f *memReadFile) Read(p []byte) (int, error) {
	f.b.mu.Lock()
	readErr := f.b.readErr
	f.b.mu.Unlock()

	if readErr != nil && f.reads > 0 {
		return 0, readErr
	}
	f.reads++
	return f.r.Read(p)
}

func (f *memReadFile) Size() int64 {
	return f.size
}

func (f *memReadFile) Close() error {
	if f.closed {
		return fs.ErrClosed
	}
	f.closed = true

	f.b.mu.Lock()
	defer f.b.mu.Unlock()
	f.b.open--
	return nil
}

func (b *memBackend) OpenRead(name string) (ReadFile, error) {
	key, err := b.key(name)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	data, ok := b.files[key]
	if !ok {
		return nil, &fs.PathError{Op: "open", Path: key, Err: fs.ErrNotExist}
	}

	b.open++
	return &memReadFile{
		b:    b,
		r:    bytes.NewReader(data),
		size: int64(len(data)),
	}, nil
}

func (b *memBackend) Exists(name string) (bool, error) {
	key, err := b.key(name)
	if err != nil {
		return false, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.files[key]
	return ok, nil
}

func (b *memBackend) Create(name string) error {
	key, err := b.key(name)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.createErr != nil {
		return b.createErr
	}
	if _, ok := b.files[key]; ok {
		return &fs.PathError{Op: "create", Path: key, Err: fs.ErrExist}
	}
	b.files[key] = nil
	return nil
}

type memWriteFile struct {
	b      *memBackend
	key    string
	closed bool
}

func (f *memWriteFile) Write(p []byte) (int, error) {
	f.b.mu.Lock()
	defer f.b.mu.Unlock()

	if f.b.writeErr != nil {
		return 0, f.b.writeErr
	}
	f.b.files[f.key] = append(f.b.files[f.key], p...)
	return len(p), nil
}

func (f *memWriteFile) Close() error {
	if f.closed {
		return fs.ErrClosed
	}
	f.closed = true

	f.b.mu.Lock()
	defer f.b.mu.Unlock()
	f.b.open--
	return f.b.closeErr
}

func (b *memBackend) OpenWrite(name string) (io.WriteCloser, error) {
	key, err := b.key(name)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.files[key]; !ok {
		return nil, &fs.PathError{Op: "open", Path: key, Err: fs.ErrNotExist}
	}
	b.files[key] = b.files[key][:0]
	b.open++
	return &memWriteFile{b: b, key: key}, nil
}

func (b *memBackend) FreeSpace(name string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.free, b.freeErr
}

// capturePacketConn records everything written to it, and never receives anything.
type capturePacketConn struct {
	mu     sync.Mutex
	sent   [][]byte
	closed chan struct{}
	once   sync.Once
}

func newCapturePacketConn() *capturePacketConn {
	return &capturePacketConn{
		closed: make(chan struct{}),
	}
}

func (c *capturePacketConn) ReadFrom(p []byte) (int, net.Addr, error) {
	<-c.closed
	return 0, nil, net.ErrClosed
}

func (c *capturePacketConn) WriteTo(p []byte, addr net.Addr) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, append([]byte(nil), p...))
	return len(p), nil
}

func (c *capturePacketConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *capturePacketConn) LocalAddr() net.Addr {
	return &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 69}
}

func (c *capturePacketConn) SetDeadline(t time.Time) error      { return nil }
func (c *capturePacketConn) SetReadDeadline(t time.Time) error  { return nil }
func (c *capturePacketConn) SetWriteDeadline(t time.Time) error { return nil }

// take decodes and clears everything sent so far.
func (c *capturePacketConn) take(t *testing.T) []tftpfx.Packet {
	t.Helper()

	c.mu.Lock()
	sent := c.sent
	c.sent = nil
	c.mu.Unlock()

	pkts := make([]tftpfx.Packet, 0, len(sent))
	for _, b := range sent {
		p, err := tftpfx.Unmarshal(b)
		require.NoError(t, err)
		pkts = append(pkts, p)
	}
	return pkts
}

// takeOne asserts exactly one packet was sent, and returns it.
func (c *capturePacketConn) takeOne(t *testing.T) tftpfx.Packet {
	t.Helper()

	pkts := c.take(t)
	require.Len(t, pkts, 1)
	return pkts[0]
}

// sessionHarness drives a session synchronously from the test goroutine.
type sessionHarness struct {
	t     *testing.T
	srv   *Server
	conn  *capturePacketConn
	sched *manualScheduler
	mem   *memBackend
	ss    *session
}

var testPeer = &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 40000}

func newSessionHarness(t *testing.T, opts ...ServerOption) *sessionHarness {
	t.Helper()

	h := &sessionHarness{
		t:     t,
		conn:  newCapturePacketConn(),
		sched: new(manualScheduler),
		mem:   newMemBackend(),
	}

	opts = append([]ServerOption{WithBackend(h.mem), WithScheduler(h.sched)}, opts...)

	srv, err := NewServer(h.conn, opts...)
	require.NoError(t, err)
	h.srv = srv

	return h
}

// begin starts a session for req, the way the run goroutine would.
func (h *sessionHarness) begin(xfer transfer, req *tftpfx.RequestPacket) {
	h.t.Helper()

	h.ss = newSession(h.srv, testPeer.String(), testPeer, xfer, req)
	h.srv.sessions[h.ss.key] = h.ss

	h.ss.dispatch(func() error {
		return xfer.begin(h.ss, req)
	})
	h.ss.resetIdle()
}

func (h *sessionHarness) read(filename string, configure func(o *tftpfx.Options)) *readTransfer {
	xfer := new(readTransfer)
	req := &tftpfx.RequestPacket{Filename: filename, Mode: tftpfx.ModeOctet}
	if configure != nil {
		configure(&req.Options)
	}
	h.begin(xfer, req)
	return xfer
}

func (h *sessionHarness) write(filename string, configure func(o *tftpfx.Options)) *writeTransfer {
	xfer := new(writeTransfer)
	req := &tftpfx.RequestPacket{Filename: filename, Mode: tftpfx.ModeOctet}
	if configure != nil {
		configure(&req.Options)
	}
	h.begin(xfer, req)
	return xfer
}

func (h *sessionHarness) packet(p tftpfx.Packet) {
	h.ss.handleEvent(event{kind: eventPacket, pkt: p})
}

// request delivers a repeat of the request the session was started from.
func (h *sessionHarness) request() {
	h.ss.handleEvent(event{kind: eventRequest})
}

func (h *sessionHarness) ack(n uint16) {
	h.packet(&tftpfx.AckPacket{BlockNumber: n})
}

func (h *sessionHarness) data(n uint16, payload []byte) {
	h.packet(&tftpfx.DataPacket{BlockNumber: n, Data: payload})
}

// fire runs the timers armed with delay d, then handles the events they queued.
func (h *sessionHarness) fire(d time.Duration) int {
	n := h.sched.fire(d)

	for {
		select {
		case ev := <-h.ss.inbox:
			h.ss.handleEvent(ev)
		default:
			return n
		}
	}
}

// finishSession runs the teardown the run goroutine would, once the session has exited.
func (h *sessionHarness) finishSession() {
	h.t.Helper()
	require.True(h.t, h.ss.exit, "session has not exited")
	h.ss.cleanup()
}

func expectData(t *testing.T, p tftpfx.Packet, block uint16, size int) *tftpfx.DataPacket {
	t.Helper()

	data, ok := p.(*tftpfx.DataPacket)
	require.True(t, ok, "expected DATA, got %T %v", p, p)
	require.Equal(t, block, data.BlockNumber)
	require.Len(t, data.Data, size)
	return data
}

func expectAck(t *testing.T, p tftpfx.Packet, block uint16) {
	t.Helper()

	ack, ok := p.(*tftpfx.AckPacket)
	require.True(t, ok, "expected ACK, got %T %v", p, p)
	require.Equal(t, block, ack.BlockNumber)
}

func expectError(t *testing.T, p tftpfx.Packet, code tftpfx.ErrorCode) {
	t.Helper()

	e, ok := p.(*tftpfx.ErrorPacket)
	require.True(t, ok, "expected ERROR, got %T %v", p, p)
	require.Equal(t, code, e.ErrorCode, "message: %q", e.ErrorMessage)
}

func expectOptionAck(t *testing.T, p tftpfx.Packet) tftpfx.Options {
	t.Helper()

	oack, ok := p.(*tftpfx.OptionAckPacket)
	require.True(t, ok, "expected OACK, got %T %v", p, p)
	return oack.Options
}

func pattern(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i % 251)
	}
	return b
}
