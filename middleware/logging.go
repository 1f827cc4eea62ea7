package middleware

import (
	"log/slog"
	"net/http"
	"time"
)

// Logging logs one debug record per request. Transport errors are logged at warn.
// Header values are never logged.
func Logging(logger *slog.Logger) Middleware {
	return func(next Doer) Doer {
		if logger == nil {
			return next
		}
		return DoerFunc(func(req *http.Request) (*http.Response, error) {
			start := time.Now()
			resp, err := next.Do(req)
			attrs := []any{
				slog.String("method", req.Method),
				slog.String("path", req.URL.Path),
				slog.Duration("duration", time.Since(start)),
			}
			if _, ok := IdempotencyKeyFrom(req.Context()); ok {
				attrs = append(attrs, slog.Bool("idempotent", true))
			}
			if err != nil {
				logger.WarnContext(req.Context(), "request failed", append(attrs, slog.Any("error", err))...)
				return resp, err
			}
			logger.DebugContext(req.Context(), "request completed", append(attrs, slog.Int("status", resp.StatusCode))...)
			return resp, nil
		})
	}
}

// Observe reports the duration of every request to fn.
func Observe(fn func(req *http.Request, d time.Duration)) Middleware {
	return func(next Doer) Doer {
		if fn == nil {
			return next
		}
		return DoerFunc(func(req *http.Request) (*http.Response, error) {
			start := time.Now()
			resp, err := next.Do(req)
			fn(req, time.Since(start))
			return resp, err
		})
	}
}
