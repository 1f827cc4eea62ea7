package middleware

import (
	"context"
	"net/http"
)

// DefaultIdempotencyHeader is the header carrying the idempotency key.
const DefaultIdempotencyHeader = "Idempotency-Key"

type idempotencyKey struct{}

// WithIdempotencyKey returns a context whose requests carry key.
func WithIdempotencyKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, idempotencyKey{}, key)
}

// IdempotencyKeyFrom returns the key stored by WithIdempotencyKey.
func IdempotencyKeyFrom(ctx context.Context) (string, bool) {
	key, ok := ctx.Value(idempotencyKey{}).(string)
	return key, ok && key != ""
}

// IdempotencyHeader sets header from the request context's idempotency key. An
// empty header name uses DefaultIdempotencyHeader.
func IdempotencyHeader(header string) Middleware {
	if header == "" {
		header = DefaultIdempotencyHeader
	}
	return func(next Doer) Doer {
		return DoerFunc(func(req *http.Request) (*http.Response, error) {
			key, ok := IdempotencyKeyFrom(req.Context())
			if !ok {
				return next.Do(req)
			}
			out := req.Clone(req.Context())
			out.Header.Set(header, key)
			return next.Do(out)
		})
	}
}
