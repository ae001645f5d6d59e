// Package reactor provides the readiness wait the server multiplexer blocks in:
// a set of watched file descriptors and a call that sleeps until one of them
// is readable or errored.
//
// Linux uses epoll(7) in level-triggered mode, so a descriptor that still has
// unread bytes after one receive call is reported again by the next Wait.
// Other platforms get a stub whose constructor fails.
package reactor

import "errors"

// ErrNotSupported is returned by New on platforms without a reactor backend.
var ErrNotSupported = errors.New("reactor: this platform is not supported")

// EventReactor watches file descriptors for readability and errors.
type EventReactor interface {
	// Register starts watching fd.
	Register(fd int) error

	// Unregister stops watching fd. It must be called before fd is closed.
	Unregister(fd int) error

	// Wait blocks until at least one watched descriptor is ready and fills
	// events. An interrupted wait returns (0, nil).
	Wait(events []Event) (int, error)

	// Close releases the reactor itself; watched descriptors are left alone.
	Close() error
}

// Event reports the readiness of one descriptor.
type Event struct {
	Fd       int
	Readable bool // data, a pending connection or EOF can be read
	Hangup   bool // the peer closed, or the socket was shut down locally
	Errored  bool // an error is pending on the socket
}
