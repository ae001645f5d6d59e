// Package server implements the mux-rpc server.
//
// An Engine owns one listening socket and every connection accepted from
// it, and drives all of them from a single readiness loop:
//
//	reactor.Wait ─┬─ listening fd readable → accept → new Session
//	              ├─ session fd readable  → one recv → Session.Feed
//	              └─ session fd errored   → close & forget
//
//	Session.Feed ─ request complete → Dispatcher.Submit → worker:
//	               handler → encode → write under the session's lock
//
// Handlers never run on the loop goroutine, so a slow request on one
// connection does not hold up reads on any other. Server wraps an Engine
// with middleware and service registration.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"mux-rpc/middleware"
	"mux-rpc/reactor"
)

var (
	ErrNotBound     = errors.New("engine is not bound")
	ErrAlreadyBound = errors.New("engine is already bound")
	ErrEngineClosed = errors.New("engine is closed")
	ErrRawHandler   = errors.New("server has a raw handler, services cannot be registered")
)

// Stats is a point-in-time snapshot of an engine's counters.
type Stats struct {
	Active    int64 `json:"active"`
	Accepted  int64 `json:"accepted"`
	Requests  int64 `json:"requests"`
	Responses int64 `json:"responses"`
	Failures  int64 `json:"failures"`
	RxBytes   int64 `json:"rx_bytes"`
	TxBytes   int64 `json:"tx_bytes"`
}

type counters struct {
	active    atomic.Int64
	accepted  atomic.Int64
	requests  atomic.Int64
	responses atomic.Int64
	failures  atomic.Int64
}

// Engine is the connection multiplexer.
type Engine struct {
	handler    middleware.HandlerFunc
	opts       Options
	log        logrus.FieldLogger
	dispatcher Dispatcher
	valve      *Valve
	stats      counters

	ctx    context.Context
	cancel context.CancelFunc

	reactor  reactor.EventReactor
	lfd      int
	addr     *net.TCPAddr
	sessions map[int]*Session // loop goroutine only
	buf      []byte
	inflight sync.WaitGroup

	runM    sync.Mutex
	running bool
	closing atomic.Bool
	done    chan struct{}
}

// NewEngine creates an engine that answers every request with handler.
func NewEngine(handler middleware.HandlerFunc, opts Options) *Engine {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		handler:    handler,
		opts:       opts,
		log:        opts.Logger,
		dispatcher: newDispatcher(opts.MaxWorkers),
		valve:      NewValve(opts.TxRate),
		ctx:        ctx,
		cancel:     cancel,
		lfd:        -1,
		sessions:   make(map[int]*Session),
		buf:        make([]byte, opts.ReadBufferSize),
		done:       make(chan struct{}),
	}
}

// Bind opens the listening socket. Port 0 picks an ephemeral port; the
// bound host and port are returned either way.
func (e *Engine) Bind(host string, port int) (string, int, error) {
	e.runM.Lock()
	defer e.runM.Unlock()
	if e.closing.Load() {
		return "", 0, ErrEngineClosed
	}
	if e.lfd >= 0 {
		return "", 0, ErrAlreadyBound
	}

	r, err := reactor.New()
	if err != nil {
		return "", 0, err
	}
	lfd, addr, err := listenTCP(host, port)
	if err != nil {
		r.Close()
		return "", 0, err
	}
	if err := r.Register(lfd); err != nil {
		closeSocket(lfd)
		r.Close()
		return "", 0, err
	}
	e.reactor, e.lfd, e.addr = r, lfd, addr
	e.log.Infof("listening on %v", addr)
	return addr.IP.String(), addr.Port, nil
}

// Addr returns the bound address as host:port, or "" before Bind and after Close.
func (e *Engine) Addr() string {
	e.runM.Lock()
	defer e.runM.Unlock()
	if e.addr == nil {
		return ""
	}
	return net.JoinHostPort(e.addr.IP.String(), strconv.Itoa(e.addr.Port))
}

// Start runs the loop on its own goroutine. Run logs the error it ends with.
func (e *Engine) Start() {
	go e.Run()
}

// Run drives the readiness loop until Close is called or the loop fails.
// Closing is not an error.
func (e *Engine) Run() error {
	e.runM.Lock()
	if e.closing.Load() {
		e.runM.Unlock()
		return nil
	}
	if e.running {
		e.runM.Unlock()
		return errors.New("engine is already running")
	}
	if e.lfd < 0 {
		e.runM.Unlock()
		return ErrNotBound
	}
	e.running = true
	e.runM.Unlock()
	defer close(e.done)
	defer e.teardown()

	err := e.loop()
	if err != nil {
		err = fmt.Errorf("server loop failed: %w", err)
		e.log.Error(err)
	}
	return err
}

func (e *Engine) loop() error {
	events := make([]reactor.Event, 128)
	for !e.closing.Load() {
		n, err := e.reactor.Wait(events)
		if err != nil {
			return err
		}
		for _, ev := range events[:n] {
			if e.closing.Load() {
				return nil
			}
			if ev.Fd == e.lfd {
				if ev.Errored {
					return errors.New("listening socket reported an error")
				}
				if err := e.accept(); err != nil {
					if acceptStopped(err) && e.closing.Load() {
						return nil
					}
					return fmt.Errorf("accept: %w", err)
				}
				continue
			}

			s, ok := e.sessions[ev.Fd]
			if !ok {
				continue
			}
			switch {
			case ev.Readable:
				e.receive(s)
			case ev.Errored || ev.Hangup:
				e.drop(s, io.ErrUnexpectedEOF)
			}
		}
	}
	return nil
}

func (e *Engine) accept() error {
	fd, remote, err := acceptConn(e.lfd)
	if err != nil {
		if acceptTransient(err) {
			return nil
		}
		return err
	}
	s := newSession(fd, remote, e.opts.MaxPayloadSize, nil)
	s.e = e
	s.deliver = func(id uint64, request []byte) { e.submit(s, id, request) }
	if err := e.reactor.Register(fd); err != nil {
		closeSocket(fd)
		return err
	}
	e.sessions[fd] = s
	e.stats.accepted.Add(1)
	e.stats.active.Add(1)
	e.log.WithField("remote", remote).Debug("connection accepted")
	return nil
}

// receive performs exactly one read on s, never past the frame boundary.
func (e *Engine) receive(s *Session) {
	want := s.MaxReadSize()
	if want > uint64(len(e.buf)) {
		want = uint64(len(e.buf))
	}
	n, err := recvSocket(s.fd, e.buf[:want])
	if err != nil {
		if wouldBlock(err) {
			return
		}
		e.drop(s, err)
		return
	}
	if n == 0 {
		e.drop(s, io.EOF)
		return
	}
	e.valve.AddRx(n)
	if err := s.Feed(e.buf[:n]); err != nil {
		e.log.WithField("remote", s.remote).Warnf("closing connection: %v", err)
		e.drop(s, err)
	}
}

func (e *Engine) submit(s *Session, id uint64, request []byte) {
	e.stats.requests.Add(1)
	e.log.WithField("remote", s.remote).Tracef("request %d received, %d bytes", id, len(request))
	e.inflight.Add(1)
	e.dispatcher.Submit(func() {
		defer e.inflight.Done()
		s.execute(e.ctx, id, request)
	})
}

// call runs the handler, turning a panic into an error.
func (e *Engine) call(ctx context.Context, request []byte) (resp []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			resp, err = nil, fmt.Errorf("handler panic: %v", r)
		}
	}()
	return e.handler(ctx, request)
}

func (e *Engine) drop(s *Session, reason error) {
	if err := e.reactor.Unregister(s.fd); err != nil {
		e.log.Debug(err)
	}
	delete(e.sessions, s.fd)
	s.close()
	e.stats.active.Add(-1)
	if reason == io.EOF {
		e.log.WithField("remote", s.remote).Debug("connection closed by peer")
	} else {
		e.log.WithField("remote", s.remote).Debugf("connection dropped: %v", reason)
	}
}

// teardown waits for in-flight requests, bounded by DrainTimeout, then
// closes every connection and the listening socket.
func (e *Engine) teardown() {
	e.closing.Store(true)
	if e.reactor != nil {
		_ = e.reactor.Unregister(e.lfd)
	}

	drained := make(chan struct{})
	go func() {
		e.inflight.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(e.opts.DrainTimeout):
		e.log.Warnf("requests still running after %v, closing connections anyway", e.opts.DrainTimeout)
	}

	e.cancel()
	for _, s := range e.sessions {
		e.drop(s, errSessionClosed)
	}
	if e.reactor != nil {
		e.runM.Lock()
		closeSocket(e.lfd)
		e.lfd, e.addr = -1, nil
		e.runM.Unlock()
		e.reactor.Close()
		e.log.Info("server closed")
	}

	select {
	case <-drained:
		e.dispatcher.Close()
	default:
		go e.dispatcher.Close()
	}
}

// Close stops the loop and waits for it to exit. It may be called any
// number of times, before or after Run.
func (e *Engine) Close() error {
	e.runM.Lock()
	first := e.closing.CompareAndSwap(false, true)
	idle := first && !e.running
	if idle {
		// Run will not start any more, so tear down here
		e.running = true
	}
	if first && !idle && e.lfd >= 0 {
		// wakes the readiness wait; accept then fails with EINVAL
		_ = shutdownSocket(e.lfd)
	}
	e.runM.Unlock()

	if idle {
		e.teardown()
		close(e.done)
	}
	<-e.done
	return nil
}

// Stats returns a snapshot of the engine's counters.
func (e *Engine) Stats() Stats {
	return Stats{
		Active:    e.stats.active.Load(),
		Accepted:  e.stats.accepted.Load(),
		Requests:  e.stats.requests.Load(),
		Responses: e.stats.responses.Load(),
		Failures:  e.stats.failures.Load(),
		RxBytes:   e.valve.Rx(),
		TxBytes:   e.valve.Tx(),
	}
}
