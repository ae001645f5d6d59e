package middleware

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Logging records the size and duration of every request, and the error of
// failed ones.
func Logging(logger logrus.FieldLogger) Middleware {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, request []byte) ([]byte, error) {
			start := time.Now()
			resp, err := next(ctx, request)
			entry := logger.WithFields(logrus.Fields{
				"request_bytes": len(request),
				"duration":      time.Since(start),
			})
			if err != nil {
				entry.WithError(err).Warn("request failed")
				return resp, err
			}
			entry.WithField("response_bytes", len(resp)).Debug("request served")
			return resp, nil
		}
	}
}
