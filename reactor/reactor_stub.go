//go:build !linux

package reactor

// New returns ErrNotSupported on platforms without an epoll backend.
func New() (EventReactor, error) {
	return nil, ErrNotSupported
}
