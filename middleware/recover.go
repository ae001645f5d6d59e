package middleware

import (
	"context"
	"fmt"
)

// Recover converts a handler panic into an error, so the request fails
// without a response and the worker survives.
func Recover() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, request []byte) (resp []byte, err error) {
			defer func() {
				if r := recover(); r != nil {
					resp, err = nil, fmt.Errorf("handler panic: %v", r)
				}
			}()
			return next(ctx, request)
		}
	}
}
