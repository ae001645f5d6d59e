package middleware

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// RateLimit admits at most r requests per second with bursts of burst. Excess
// requests wait for a token rather than being rejected; a request whose
// context ends while waiting fails with the context's error.
func RateLimit(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, request []byte) ([]byte, error) {
			if err := limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("rate limit: %w", err)
			}
			return next(ctx, request)
		}
	}
}
