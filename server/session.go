package server

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"mux-rpc/protocol"
)

var errSessionClosed = errors.New("session closed")

// Session is the server side of one accepted connection. The readiness
// loop feeds it whatever bytes one receive call produced; once a whole
// request has accumulated it is handed to deliver.
//
// The read-side fields are touched only by the loop goroutine. Workers
// share the write side.
type Session struct {
	fd     int
	remote string
	e      *Engine

	maxPayload uint64
	deliver    func(id uint64, request []byte)

	// read side: exactly one of awaiting header / awaiting body holds
	awaitingHeader bool
	header         [protocol.HeaderSize]byte
	headerLen      int
	remaining      uint64
	body           []byte
	readingID      uint64

	writeM sync.Mutex

	// refs counts in-flight writers so that the descriptor is closed only
	// after the last of them is done with it
	fdM    sync.Mutex
	refs   int
	closed bool
}

func newSession(fd int, remote string, maxPayload uint64, deliver func(uint64, []byte)) *Session {
	return &Session{
		fd:             fd,
		remote:         remote,
		maxPayload:     maxPayload,
		deliver:        deliver,
		awaitingHeader: true,
	}
}

// RemoteAddr returns the peer's address.
func (s *Session) RemoteAddr() string { return s.remote }

// MaxReadSize returns how many bytes the next receive may take without
// crossing a frame boundary.
func (s *Session) MaxReadSize() uint64 {
	if s.awaitingHeader {
		return uint64(protocol.HeaderSize - s.headerLen)
	}
	return s.remaining
}

// Feed consumes one received fragment. The fragment is copied, so the
// caller may reuse its buffer.
func (s *Session) Feed(fragment []byte) error {
	if s.awaitingHeader {
		if len(fragment) > protocol.HeaderSize-s.headerLen {
			return fmt.Errorf("%d header bytes received, %d expected: %w",
				len(fragment), protocol.HeaderSize-s.headerLen, protocol.ErrMalformedHeader)
		}
		s.headerLen += copy(s.header[s.headerLen:], fragment)
		if s.headerLen < protocol.HeaderSize {
			return nil
		}

		h, err := protocol.DecodeHeader(s.header[:])
		if err != nil {
			return err
		}
		if s.maxPayload > 0 && h.Length > s.maxPayload {
			return fmt.Errorf("request %d announces %d bytes: %w", h.ID, h.Length, protocol.ErrFrameTooLarge)
		}
		s.headerLen = 0
		s.awaitingHeader = false
		s.readingID = h.ID
		s.remaining = h.Length
		s.body = make([]byte, 0, min(h.Length, 1<<20))
	} else {
		if uint64(len(fragment)) > s.remaining {
			return fmt.Errorf("%d body bytes received, %d expected: %w",
				len(fragment), s.remaining, protocol.ErrMalformedHeader)
		}
		s.body = append(s.body, fragment...)
		s.remaining -= uint64(len(fragment))
	}

	if s.remaining == 0 {
		id, request := s.readingID, s.body
		s.body = nil
		s.awaitingHeader = true
		s.deliver(id, request)
	}
	return nil
}

// execute runs the handler for one request and writes its response. A
// handler error or panic fails only this request: nothing is sent for it.
func (s *Session) execute(ctx context.Context, id uint64, request []byte) {
	e := s.e
	log := e.log.WithField("remote", s.remote)

	resp, err := e.call(ctx, request)
	if err != nil {
		e.stats.failures.Add(1)
		log.WithError(err).Warnf("request %d failed", id)
		return
	}

	frame := protocol.Encode(resp, id)
	e.valve.txWait(len(frame))
	if err := s.write(frame); err != nil {
		log.WithError(err).Debugf("response %d not sent", id)
		return
	}
	e.valve.AddTx(len(frame))
	e.stats.responses.Add(1)
	log.Tracef("response %d sent, %d bytes", id, len(resp))
}

// write sends frame in full under the session's write lock.
func (s *Session) write(frame []byte) error {
	if !s.acquire() {
		return errSessionClosed
	}
	defer s.release()

	s.writeM.Lock()
	defer s.writeM.Unlock()
	return sendSocket(s.fd, frame)
}

func (s *Session) acquire() bool {
	s.fdM.Lock()
	defer s.fdM.Unlock()
	if s.closed {
		return false
	}
	s.refs++
	return true
}

func (s *Session) release() {
	s.fdM.Lock()
	defer s.fdM.Unlock()
	s.refs--
	if s.closed && s.refs == 0 {
		closeSocket(s.fd)
	}
}

// close shuts the socket down, which wakes writers blocked waiting for
// buffer space, and closes the descriptor once no writer holds it.
func (s *Session) close() {
	s.fdM.Lock()
	defer s.fdM.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	shutdownSocket(s.fd)
	if s.refs == 0 {
		closeSocket(s.fd)
	}
}
