package middleware

import (
	"context"
	"time"
)

// Retryable marks a handler error as transient.
type Retryable interface {
	Temporary() bool
}

// Retry re-runs a handler that failed with a temporary error (one whose
// Temporary method reports true, or ErrHandlerTimeout) up to maxRetries
// times, doubling the delay from baseDelay each attempt.
func Retry(maxRetries int, baseDelay time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, request []byte) ([]byte, error) {
			resp, err := next(ctx, request)
			for i := 0; i < maxRetries && err != nil && temporary(err); i++ {
				select {
				case <-time.After(baseDelay << i):
				case <-ctx.Done():
					return nil, ctx.Err()
				}
				resp, err = next(ctx, request)
			}
			return resp, err
		}
	}
}

func temporary(err error) bool {
	if err == ErrHandlerTimeout {
		return true
	}
	t, ok := err.(Retryable)
	return ok && t.Temporary()
}
