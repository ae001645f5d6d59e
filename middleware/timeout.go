package middleware

import (
	"context"
	"errors"
	"time"
)

var ErrHandlerTimeout = errors.New("handler timed out")

// Timeout gives up on a handler that runs longer than d. The handler keeps
// running in the background with a cancelled context; its result is discarded.
func Timeout(d time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, request []byte) ([]byte, error) {
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()

			type result struct {
				resp []byte
				err  error
			}
			done := make(chan result, 1)
			go func() {
				resp, err := next(ctx, request)
				done <- result{resp, err}
			}()

			select {
			case r := <-done:
				return r.resp, r.err
			case <-ctx.Done():
				return nil, ErrHandlerTimeout
			}
		}
	}
}
