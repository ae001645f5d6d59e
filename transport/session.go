// Package transport implements the client side of mux-rpc: one Session per TCP
// connection, shared safely by any number of concurrent callers.
//
// Each request gets a unique correlation id, and a background goroutine
// (readLoop) continuously reads responses and hands each one to the Ticket
// its caller is blocked on:
//
//	goroutine-1 ──Send(id=0)──┐
//	goroutine-2 ──Send(id=1)──┼──→ single TCP conn ──→ Server
//	goroutine-3 ──Send(id=2)──┘
//
//	readLoop:  ←── response(id=1) → pending[1] ticket → goroutine-2 wakes up
//
// Responses may arrive in any order; they are matched purely by id.
package transport

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"mux-rpc/protocol"
)

const (
	DefaultTimeout      = 60 * time.Second
	DefaultCloseTimeout = 10 * time.Second
)

// Options configures a Session. The zero value is usable.
type Options struct {
	// Timeout caps how long Send waits for its response. Defaults to DefaultTimeout.
	Timeout time.Duration

	// CloseTimeout caps how long Close waits for the remote to finish the
	// connection before tearing it down forcibly. Defaults to DefaultCloseTimeout.
	CloseTimeout time.Duration

	// MaxPayloadSize rejects response frames announcing a larger payload. 0 disables the check.
	MaxPayloadSize uint64

	// OnClose is invoked once when the session starts closing, so that an
	// owner can drop it from its connection list.
	OnClose func(*Session)

	Logger logrus.FieldLogger
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.CloseTimeout <= 0 {
		o.CloseTimeout = DefaultCloseTimeout
	}
	if o.Logger == nil {
		o.Logger = logrus.StandardLogger()
	}
	return o
}

// Session is a single multiplexed client connection.
type Session struct {
	opts Options
	addr string
	conn net.Conn
	log  logrus.FieldLogger

	state  atomic.Int32  // ConnectionState
	nextID atomic.Uint64 // next correlation id to hand out

	pendingM sync.Mutex
	pending  map[uint64]*Ticket

	// sending serializes frame writes: req A's header followed by req B's
	// body would corrupt the stream
	sending sync.Mutex

	closing    atomic.Bool
	readerDone chan struct{}
}

// Open dials address and starts the session's reader.
func Open(ctx context.Context, address string, opts Options) (*Session, error) {
	s := newSession(address, opts)
	s.state.Store(int32(StateConnecting))

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		s.state.Store(int32(StateDisconnected))
		if errors.Is(err, syscall.ECONNREFUSED) {
			return nil, &ConnectionRefusedError{Addr: address, Err: err}
		}
		return nil, err
	}
	s.start(conn)
	return s, nil
}

// NewSession wraps an established connection and starts its reader.
func NewSession(conn net.Conn, opts Options) *Session {
	var addr string
	if ra := conn.RemoteAddr(); ra != nil {
		addr = ra.String()
	}
	s := newSession(addr, opts)
	s.start(conn)
	return s
}

func newSession(addr string, opts Options) *Session {
	opts = opts.withDefaults()
	s := &Session{
		opts:       opts,
		addr:       addr,
		pending:    make(map[uint64]*Ticket),
		readerDone: make(chan struct{}),
	}
	s.log = opts.Logger.WithField("remote", addr)
	return s
}

func (s *Session) start(conn net.Conn) {
	s.conn = conn
	s.state.Store(int32(StateOpen))
	s.log.Debug("session opened")
	go s.readLoop()
}

// Addr returns the remote address the session talks to.
func (s *Session) Addr() string { return s.addr }

// State returns the session's current ConnectionState.
func (s *Session) State() ConnectionState { return ConnectionState(s.state.Load()) }

// Pending returns the number of requests still waiting for a response.
func (s *Session) Pending() int {
	s.pendingM.Lock()
	defer s.pendingM.Unlock()
	return len(s.pending)
}

// Send writes request as one frame and blocks until the matching response
// arrives, the session's timeout elapses or ctx is done.
//
// A response arriving after its caller gave up finds no ticket and is dropped.
func (s *Session) Send(ctx context.Context, request []byte) ([]byte, error) {
	if s.State() != StateOpen {
		return nil, ErrNotOpen
	}

	// atomic.Uint64.Add returns the incremented value
	id := s.nextID.Add(1) - 1
	ticket := NewTicket(id)

	// Register before writing, otherwise a fast response could beat us to the map
	s.pendingM.Lock()
	s.pending[id] = ticket
	s.pendingM.Unlock()
	defer s.forget(id)
	if s.closing.Load() {
		return nil, ErrSessionClosed
	}

	frame := protocol.Encode(request, id)
	s.sending.Lock()
	err := protocol.WriteAll(s.conn, frame)
	s.sending.Unlock()
	if err != nil {
		return nil, err
	}
	s.log.WithField("id", id).Tracef("request sent, %d bytes", len(request))

	resp, err := ticket.Wait(ctx, s.opts.Timeout)
	if err != nil {
		if errors.Is(err, ErrTimeout) {
			s.log.Debugf("request %d timed out after %v", id, s.opts.Timeout)
		}
		return nil, err
	}
	return resp, nil
}

// LastID returns the most recently issued correlation id, or false if none was issued yet.
func (s *Session) LastID() (uint64, bool) {
	next := s.nextID.Load()
	if next == 0 {
		return 0, false
	}
	return next - 1, true
}

func (s *Session) forget(id uint64) {
	s.pendingM.Lock()
	delete(s.pending, id)
	s.pendingM.Unlock()
}

// readLoop is the only reader of the connection. TCP is a byte stream, so
// reads must be sequential to keep frame boundaries.
func (s *Session) readLoop() {
	defer close(s.readerDone)
	for {
		h, body, err := protocol.ReadFrame(s.conn, s.opts.MaxPayloadSize)
		if err != nil {
			if errors.Is(err, protocol.ErrFrameTooLarge) {
				s.log.Warnf("closing session: %v", err)
			} else {
				s.log.Debugf("reader exiting: %v", err)
			}
			s.shutdown(false)
			s.failPending(ErrSessionClosed)
			return
		}

		s.pendingM.Lock()
		ticket, ok := s.pending[h.ID]
		s.pendingM.Unlock()
		if !ok {
			s.log.Debugf("dropping orphaned response %d", h.ID)
			continue
		}
		ticket.AddResponse(body)
	}
}

func (s *Session) failPending(err error) {
	s.pendingM.Lock()
	defer s.pendingM.Unlock()
	for _, ticket := range s.pending {
		ticket.Fail(err)
	}
}

// Close shuts the session down. Only the first call does any work; later or
// concurrent calls return immediately.
func (s *Session) Close() error {
	return s.shutdown(true)
}

type closeWriter interface {
	CloseWrite() error
}

func (s *Session) shutdown(wait bool) error {
	if !s.closing.CompareAndSwap(false, true) {
		return nil
	}
	s.state.Store(int32(StateClosing))
	if s.opts.OnClose != nil {
		s.opts.OnClose(s)
	}

	// Half-close tells the server we are done; its session closes and our
	// reader sees EOF.
	var err error
	cw, halfClose := s.conn.(closeWriter)
	if halfClose {
		err = cw.CloseWrite()
	} else {
		err = s.conn.Close()
	}

	if wait {
		select {
		case <-s.readerDone:
		case <-time.After(s.opts.CloseTimeout):
			s.log.Warnf("remote did not close within %v, closing forcibly", s.opts.CloseTimeout)
		}
	}
	if halfClose {
		if cerr := s.conn.Close(); err == nil && cerr != nil && !errors.Is(cerr, net.ErrClosed) {
			err = cerr
		}
	}
	if wait {
		<-s.readerDone
	}
	s.log.Debug("session closed")
	return err
}
