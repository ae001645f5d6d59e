package transport

import (
	"context"
	"sync"
	"time"
)

// Ticket is a single-slot, single-fire rendezvous between a caller blocked in
// Send and the session's reader goroutine. The reader fills it exactly once;
// the caller consumes it at most once.
type Ticket struct {
	id   uint64
	once sync.Once
	done chan struct{}

	// written before done is closed, read after
	payload []byte
	err     error
}

// NewTicket creates an unfilled ticket for correlation id.
func NewTicket(id uint64) *Ticket {
	return &Ticket{id: id, done: make(chan struct{})}
}

// ID returns the correlation id the ticket waits for.
func (t *Ticket) ID() uint64 { return t.id }

// AddResponse stores payload and wakes the waiter. Only the first call
// (of AddResponse or Fail) has any effect.
func (t *Ticket) AddResponse(payload []byte) {
	t.once.Do(func() {
		t.payload = payload
		close(t.done)
	})
}

// Fail wakes the waiter with err instead of a payload.
func (t *Ticket) Fail(err error) {
	t.once.Do(func() {
		t.err = err
		close(t.done)
	})
}

// Wait blocks until the ticket is filled, timeout elapses or ctx is done.
// A non-positive timeout waits for ctx alone.
func (t *Ticket) Wait(ctx context.Context, timeout time.Duration) ([]byte, error) {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case <-t.done:
		return t.payload, t.err
	case <-expired:
		return nil, ErrTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
