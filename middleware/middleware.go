// Package middleware wraps request handlers with cross-cutting behaviour.
//
// A Middleware takes the next HandlerFunc and returns a new one, so a chain
// nests like an onion:
//
//	Chain(A, B, C)(h) == A(B(C(h)))
//	A.before → B.before → C.before → h → C.after → B.after → A.after
//
// Handlers run on server worker goroutines, never on the readiness loop, so a
// middleware may block (Timeout, RateLimit and Retry all do).
package middleware

import "context"

// HandlerFunc turns one request payload into one response payload. A
// returned error means no response is sent for the request.
type HandlerFunc func(ctx context.Context, request []byte) ([]byte, error)

type Middleware func(next HandlerFunc) HandlerFunc

// Chain composes middlewares so that the first one listed runs outermost.
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
